// Package squadstest provides account encoders and an in-memory ledger that
// understands the Squads instructions used by the smart account flow.
package squadstest

import (
	"bytes"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"

	"smartvault-go/internal/squads"
)

// MultisigAccountData encodes a Multisig account the way the program stores it.
func MultisigAccountData(ms squads.MultisigState) []byte {
	members := make([]squads_multisig_program.Member, len(ms.Members))
	for i, m := range ms.Members {
		members[i] = squads_multisig_program.Member{
			Key:         m.Key,
			Permissions: squads_multisig_program.Permissions{Mask: m.Permissions},
		}
	}
	return encode(squads_multisig_program.Multisig{
		CreateKey:             ms.CreateKey,
		ConfigAuthority:       ms.ConfigAuthority,
		Threshold:             ms.Threshold,
		TimeLock:              ms.TimeLock,
		TransactionIndex:      ms.TransactionIndex,
		StaleTransactionIndex: ms.StaleTransactionIndex,
		RentCollector:         ms.RentCollector,
		Bump:                  ms.Bump,
		Members:               members,
	})
}

// ProgramConfigAccountData encodes a ProgramConfig account.
func ProgramConfigAccountData(pc squads.ProgramConfigState) []byte {
	return encode(squads_multisig_program.ProgramConfig{
		Authority:           pc.Authority,
		MultisigCreationFee: pc.MultisigCreationFee,
		Treasury:            pc.Treasury,
	})
}

// NewKey returns a fresh random public key.
func NewKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func encode(account ag_binary.BinaryMarshaler) []byte {
	buf := new(bytes.Buffer)
	if err := account.MarshalWithEncoder(ag_binary.NewBorshEncoder(buf)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
