package squads

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/pkg/multisig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToSquadsV4(t *testing.T) {
	assert.Equal(t, DefaultProgramID, New(solana.PublicKey{}).ID())

	custom := solana.NewWallet().PublicKey()
	assert.Equal(t, custom, New(custom).ID())
}

func TestProgramConfigPDAOnMainnet(t *testing.T) {
	config, _ := New(DefaultProgramID).ProgramConfigPDA()
	assert.Equal(t, "BSTq9w3kZwNwpBXJEvTZz2G9ZTNyKBvoSeXMvwb4cNZr", config.String())
}

func TestPDAsMatchMultisigHelpers(t *testing.T) {
	for _, programID := range []solana.PublicKey{DefaultProgramID, solana.NewWallet().PublicKey()} {
		p := New(programID)
		createKey := solana.NewWallet().PublicKey()

		want, wantBump := multisig.GetProgramConfigPDA(programID)
		got, gotBump := p.ProgramConfigPDA()
		assert.Equal(t, want, got)
		assert.Equal(t, wantBump, gotBump)

		ms, _ := p.MultisigPDA(createKey)
		want, _ = multisig.GetMultisigPDA(createKey, programID)
		assert.Equal(t, want, ms)

		vault, _ := p.VaultPDA(ms, 3)
		want, _ = multisig.GetVaultPDA(ms, 3, programID)
		assert.Equal(t, want, vault)

		tx, _ := p.TransactionPDA(ms, 42)
		want, _ = multisig.GetTransactionPDA(ms, 42, programID)
		assert.Equal(t, want, tx)

		proposal, _ := p.ProposalPDA(ms, 42)
		want, _ = multisig.GetProposalPDA(ms, 42, programID)
		assert.Equal(t, want, proposal)
	}
}

func TestDerivationFailureWrapsSentinel(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrAddressDerivation))
		assert.Contains(t, err.Error(), "vault PDA")
	}()
	derive("vault", func() (solana.PublicKey, uint8) {
		panic("no viable bump")
	})
}

func TestMultisigPDAIsDeterministic(t *testing.T) {
	p := New(DefaultProgramID)
	createKey := solana.NewWallet().PublicKey()

	first, firstBump := p.MultisigPDA(createKey)
	for i := 0; i < 5; i++ {
		again, bump := p.MultisigPDA(createKey)
		assert.Equal(t, first, again)
		assert.Equal(t, firstBump, bump)
	}

	other, _ := p.MultisigPDA(solana.NewWallet().PublicKey())
	assert.NotEqual(t, first, other)
}

func TestPDAsMatchProgramSeeds(t *testing.T) {
	p := New(DefaultProgramID)
	createKey := solana.NewWallet().PublicKey()
	multisig, bump := p.MultisigPDA(createKey)

	recreated, err := solana.CreateProgramAddress(
		[][]byte{[]byte("multisig"), []byte("multisig"), createKey.Bytes(), {bump}},
		DefaultProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, multisig, recreated)

	vault, vaultBump := p.VaultPDA(multisig, 0)
	recreated, err = solana.CreateProgramAddress(
		[][]byte{[]byte("multisig"), multisig.Bytes(), []byte("vault"), {0}, {vaultBump}},
		DefaultProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, vault, recreated)

	tx, txBump := p.TransactionPDA(multisig, 7)
	recreated, err = solana.CreateProgramAddress(
		[][]byte{[]byte("multisig"), multisig.Bytes(), []byte("transaction"), {7, 0, 0, 0, 0, 0, 0, 0}, {txBump}},
		DefaultProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, tx, recreated)

	proposal, proposalBump := p.ProposalPDA(multisig, 7)
	recreated, err = solana.CreateProgramAddress(
		[][]byte{[]byte("multisig"), multisig.Bytes(), []byte("transaction"), {7, 0, 0, 0, 0, 0, 0, 0}, []byte("proposal"), {proposalBump}},
		DefaultProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, proposal, recreated)

	config, configBump := p.ProgramConfigPDA()
	recreated, err = solana.CreateProgramAddress(
		[][]byte{[]byte("multisig"), []byte("program_config"), {configBump}},
		DefaultProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, config, recreated)
}

func TestPerIndexPDAsAreDistinct(t *testing.T) {
	p := New(DefaultProgramID)
	multisig, _ := p.MultisigPDA(solana.NewWallet().PublicKey())

	seen := make(map[solana.PublicKey]bool)
	for index := uint64(1); index <= 8; index++ {
		tx, _ := p.TransactionPDA(multisig, index)
		proposal, _ := p.ProposalPDA(multisig, index)
		assert.NotEqual(t, tx, proposal)
		assert.False(t, seen[tx], "transaction PDA reused at index %d", index)
		assert.False(t, seen[proposal], "proposal PDA reused at index %d", index)
		seen[tx] = true
		seen[proposal] = true
	}
}

func TestVaultPDADependsOnProgram(t *testing.T) {
	createKey := solana.NewWallet().PublicKey()
	a := New(DefaultProgramID)
	b := New(solana.NewWallet().PublicKey())

	msA, _ := a.MultisigPDA(createKey)
	msB, _ := b.MultisigPDA(createKey)
	assert.NotEqual(t, msA, msB)

	vault0, _ := a.VaultPDA(msA, 0)
	vault1, _ := a.VaultPDA(msA, 1)
	assert.NotEqual(t, vault0, vault1)
}
