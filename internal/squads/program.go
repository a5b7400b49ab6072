// Package squads talks to the Squads v4 multisig program: it derives the
// program's addresses, decodes its accounts, compiles vault transaction
// messages and builds the instructions the smart account flow submits.
package squads

import (
	"errors"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"
)

// DefaultProgramID is the Squads v4 program on mainnet-beta and devnet.
var DefaultProgramID = solana.MustPublicKeyFromBase58("SQDS4ep65T869zMMBKyuUq6aD6EgTu8psMjkvj52pCf")

var (
	// ErrAddressDerivation is the panic payload when a PDA cannot be found.
	// Seeds are fixed-size, so this only happens on a programming error.
	ErrAddressDerivation = errors.New("address derivation failed")

	// ErrAccountNotFound is returned when the ledger has no account at the address.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountDecode is returned when account bytes do not hold the expected layout.
	ErrAccountDecode = errors.New("account decode failed")

	// ErrCompile is returned when instructions cannot be compiled into a vault message.
	ErrCompile = errors.New("transaction message compile failed")
)

// Permission bits of a multisig member.
const (
	PermissionInitiate uint8 = 1 << 0
	PermissionVote     uint8 = 1 << 1
	PermissionExecute  uint8 = 1 << 2
	PermissionFull           = PermissionInitiate | PermissionVote | PermissionExecute
)

// InstructionKind identifies a Squads instruction by its 8-byte discriminator.
type InstructionKind string

const (
	KindMultisigCreateV2              InstructionKind = "multisig_create_v2"
	KindVaultTransactionCreate        InstructionKind = "vault_transaction_create"
	KindProposalCreate                InstructionKind = "proposal_create"
	KindProposalApprove               InstructionKind = "proposal_approve"
	KindVaultTransactionExecute       InstructionKind = "vault_transaction_execute"
	KindVaultTransactionAccountsClose InstructionKind = "vault_transaction_accounts_close"
)

var instructionKinds = map[ag_binary.TypeID]InstructionKind{
	squads_multisig_program.Instruction_MultisigCreateV2:              KindMultisigCreateV2,
	squads_multisig_program.Instruction_VaultTransactionCreate:        KindVaultTransactionCreate,
	squads_multisig_program.Instruction_ProposalCreate:                KindProposalCreate,
	squads_multisig_program.Instruction_ProposalApprove:               KindProposalApprove,
	squads_multisig_program.Instruction_VaultTransactionExecute:       KindVaultTransactionExecute,
	squads_multisig_program.Instruction_VaultTransactionAccountsClose: KindVaultTransactionAccountsClose,
}

// KindOf reports which Squads instruction the data encodes, or "" if none.
func KindOf(data []byte) InstructionKind {
	if len(data) < 8 {
		return ""
	}
	return instructionKinds[ag_binary.TypeIDFromBytes(data[:8])]
}

// Program binds the Squads helpers to one deployed program id.
type Program struct {
	id solana.PublicKey
}

// New returns a Program for programID. A zero key selects DefaultProgramID.
func New(programID solana.PublicKey) Program {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return Program{id: programID}
}

// ID returns the program id.
func (p Program) ID() solana.PublicKey {
	return p.id
}
