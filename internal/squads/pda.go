package squads

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/pkg/multisig"
)

// ProgramConfigPDA derives the program-wide config account.
func (p Program) ProgramConfigPDA() (solana.PublicKey, uint8) {
	return derive("program config", func() (solana.PublicKey, uint8) {
		return multisig.GetProgramConfigPDA(p.id)
	})
}

// MultisigPDA derives the multisig account seeded by createKey.
func (p Program) MultisigPDA(createKey solana.PublicKey) (solana.PublicKey, uint8) {
	return derive("multisig", func() (solana.PublicKey, uint8) {
		return multisig.GetMultisigPDA(createKey, p.id)
	})
}

// VaultPDA derives the vault at vaultIndex of a multisig.
func (p Program) VaultPDA(ms solana.PublicKey, vaultIndex uint8) (solana.PublicKey, uint8) {
	return derive("vault", func() (solana.PublicKey, uint8) {
		return multisig.GetVaultPDA(ms, vaultIndex, p.id)
	})
}

// TransactionPDA derives the vault transaction account for transactionIndex.
func (p Program) TransactionPDA(ms solana.PublicKey, transactionIndex uint64) (solana.PublicKey, uint8) {
	return derive("transaction", func() (solana.PublicKey, uint8) {
		return multisig.GetTransactionPDA(ms, transactionIndex, p.id)
	})
}

// ProposalPDA derives the proposal account for transactionIndex.
func (p Program) ProposalPDA(ms solana.PublicKey, transactionIndex uint64) (solana.PublicKey, uint8) {
	return derive("proposal", func() (solana.PublicKey, uint8) {
		return multisig.GetProposalPDA(ms, transactionIndex, p.id)
	})
}

// derive re-panics a failed derivation with ErrAddressDerivation so callers
// recovering it can match the sentinel.
func derive(what string, find func() (solana.PublicKey, uint8)) (pda solana.PublicKey, bump uint8) {
	defer func() {
		if r := recover(); r != nil {
			panic(fmt.Errorf("%w: %s PDA: %v", ErrAddressDerivation, what, r))
		}
	}()
	return find()
}
