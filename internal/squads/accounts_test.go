package squads_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartvault-go/internal/squads"
	"smartvault-go/internal/squads/squadstest"
)

func TestReaderMultisig(t *testing.T) {
	program := squads.New(squads.DefaultProgramID)
	ledger := squadstest.NewLedger(program)
	reader := squads.NewReader(program, ledger)

	creator := squadstest.NewKey()
	createKey := squadstest.NewKey()
	addr, bump := program.MultisigPDA(createKey)
	ledger.PutMultisig(squads.MultisigState{
		Address:          addr,
		CreateKey:        createKey,
		Threshold:        1,
		TransactionIndex: 3,
		RentCollector:    &creator,
		Bump:             bump,
		Members:          []squads.Member{{Key: creator, Permissions: squads.PermissionFull}},
	})

	ms, err := reader.Multisig(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, addr, ms.Address)
	assert.Equal(t, createKey, ms.CreateKey)
	assert.Equal(t, uint16(1), ms.Threshold)
	assert.Equal(t, uint64(3), ms.TransactionIndex)
	assert.Equal(t, bump, ms.Bump)
	require.NotNil(t, ms.RentCollector)
	assert.Equal(t, creator, *ms.RentCollector)
	require.Len(t, ms.Members, 1)
	assert.True(t, ms.Permits(creator, squads.PermissionFull))
	assert.False(t, ms.Permits(createKey, squads.PermissionInitiate))
	assert.True(t, ms.Members[0].Has(squads.PermissionVote|squads.PermissionExecute))
}

func TestReaderNotFoundAndDecodeErrorsAreDistinct(t *testing.T) {
	program := squads.New(squads.DefaultProgramID)
	ledger := squadstest.NewLedger(program)
	reader := squads.NewReader(program, ledger)
	ctx := context.Background()

	missing := squadstest.NewKey()
	_, err := reader.Multisig(ctx, missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, squads.ErrAccountNotFound)
	assert.NotErrorIs(t, err, squads.ErrAccountDecode)

	garbage := squadstest.NewKey()
	ledger.SetAccount(squads.Account{
		Address: garbage,
		Owner:   program.ID(),
		Data:    []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})
	_, err = reader.Multisig(ctx, garbage)
	require.Error(t, err)
	assert.ErrorIs(t, err, squads.ErrAccountDecode)
	assert.NotErrorIs(t, err, squads.ErrAccountNotFound)

	short := squadstest.NewKey()
	ledger.SetAccount(squads.Account{Address: short, Owner: program.ID(), Data: []byte{1}})
	_, err = reader.Multisig(ctx, short)
	assert.ErrorIs(t, err, squads.ErrAccountDecode)

	// right layout under the ProgramConfig discriminator
	wrongKind := squadstest.NewKey()
	ledger.SetAccount(squads.Account{
		Address: wrongKind,
		Owner:   program.ID(),
		Data:    squadstest.ProgramConfigAccountData(squads.ProgramConfigState{Treasury: squadstest.NewKey()}),
	})
	_, err = reader.Multisig(ctx, wrongKind)
	assert.ErrorIs(t, err, squads.ErrAccountDecode)
	assert.ErrorContains(t, err, "discriminator")
}

func TestAccountDataCarriesDeployedDiscriminators(t *testing.T) {
	ms := squadstest.MultisigAccountData(squads.MultisigState{Threshold: 1})
	assert.Equal(t, []byte{224, 116, 121, 186, 68, 161, 79, 236}, ms[:8])
	pc := squadstest.ProgramConfigAccountData(squads.ProgramConfigState{})
	assert.Equal(t, []byte{196, 210, 90, 231, 144, 149, 140, 63}, pc[:8])
}

func TestReaderRejectsProgramConfigAsMultisig(t *testing.T) {
	program := squads.New(squads.DefaultProgramID)
	ledger := squadstest.NewLedger(program)
	reader := squads.NewReader(program, ledger)

	configAddr, _ := program.ProgramConfigPDA()
	_, err := reader.Multisig(context.Background(), configAddr)
	assert.ErrorIs(t, err, squads.ErrAccountDecode)
}

func TestReaderRejectsForeignOwner(t *testing.T) {
	program := squads.New(squads.DefaultProgramID)
	ledger := squadstest.NewLedger(program)
	reader := squads.NewReader(program, ledger)

	addr := squadstest.NewKey()
	ledger.SetAccount(squads.Account{
		Address: addr,
		Owner:   solana.SystemProgramID,
		Data: squadstest.MultisigAccountData(squads.MultisigState{
			Threshold: 1,
		}),
	})
	_, err := reader.Multisig(context.Background(), addr)
	assert.ErrorIs(t, err, squads.ErrAccountDecode)
	assert.Contains(t, err.Error(), "owned by")
}

func TestReaderProgramConfig(t *testing.T) {
	program := squads.New(squads.DefaultProgramID)
	ledger := squadstest.NewLedger(program)
	reader := squads.NewReader(program, ledger)
	configAddr, _ := program.ProgramConfigPDA()

	pc, err := reader.ProgramConfig(context.Background(), configAddr)
	require.NoError(t, err)
	assert.Equal(t, ledger.Treasury(), pc.Treasury)
	assert.Equal(t, configAddr, pc.Address)

	ledger.DeleteAccount(configAddr)
	_, err = reader.ProgramConfig(context.Background(), configAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, squads.ErrAccountNotFound)
	assert.Contains(t, err.Error(), "missing on ledger")
}

func TestReaderPropagatesTransportErrors(t *testing.T) {
	program := squads.New(squads.DefaultProgramID)
	ledger := squadstest.NewLedger(program)
	reader := squads.NewReader(program, ledger)

	boom := errors.New("connection reset")
	ledger.GetAccountErr = boom
	_, err := reader.Multisig(context.Background(), squadstest.NewKey())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, squads.ErrAccountNotFound)
	assert.NotErrorIs(t, err, squads.ErrAccountDecode)
}

func TestDecodeMultisigWithoutRentCollector(t *testing.T) {
	member := squadstest.NewKey()
	data := squadstest.MultisigAccountData(squads.MultisigState{
		Threshold:             2,
		TimeLock:              60,
		TransactionIndex:      9,
		StaleTransactionIndex: 4,
		Members: []squads.Member{
			{Key: member, Permissions: squads.PermissionVote},
			{Key: squadstest.NewKey(), Permissions: squads.PermissionFull},
		},
	})

	ms, err := squads.DecodeMultisig(squadstest.NewKey(), data)
	require.NoError(t, err)
	assert.Nil(t, ms.RentCollector)
	assert.Equal(t, uint32(60), ms.TimeLock)
	assert.Equal(t, uint64(4), ms.StaleTransactionIndex)
	require.Len(t, ms.Members, 2)
	assert.False(t, ms.Members[0].Has(squads.PermissionExecute))
	assert.True(t, ms.Permits(member, squads.PermissionVote))
	assert.False(t, ms.Permits(member, squads.PermissionFull))
}
