package squads

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"
)

// MultisigCreateAccounts are the accounts of multisig_create_v2.
type MultisigCreateAccounts struct {
	ProgramConfig solana.PublicKey
	Treasury      solana.PublicKey
	Multisig      solana.PublicKey
	CreateKey     solana.PublicKey
	Creator       solana.PublicKey
}

// MultisigCreateArgs are the arguments of multisig_create_v2.
type MultisigCreateArgs struct {
	ConfigAuthority *solana.PublicKey
	Threshold       uint16
	Members         []Member
	TimeLock        uint32
	RentCollector   *solana.PublicKey
	Memo            *string
}

// MultisigCreateV2 builds the multisig_create_v2 instruction. CreateKey and
// Creator must both sign the transaction carrying it.
func (p Program) MultisigCreateV2(accounts MultisigCreateAccounts, args MultisigCreateArgs) (solana.Instruction, error) {
	members := make([]squads_multisig_program.Member, len(args.Members))
	for i, m := range args.Members {
		members[i] = squads_multisig_program.Member{
			Key:         m.Key,
			Permissions: squads_multisig_program.Permissions{Mask: m.Permissions},
		}
	}

	built := squads_multisig_program.NewMultisigCreateV2Instruction(
		squads_multisig_program.MultisigCreateArgsV2{
			ConfigAuthority: args.ConfigAuthority,
			Threshold:       args.Threshold,
			Members:         members,
			TimeLock:        args.TimeLock,
			RentCollector:   args.RentCollector,
			Memo:            args.Memo,
		},
		accounts.ProgramConfig,
		accounts.Treasury,
		accounts.Multisig,
		accounts.CreateKey,
		accounts.Creator,
		solana.SystemProgramID,
	).Build()

	return p.rebind("multisig_create_v2", built)
}

// VaultTransactionCreateAccounts are the accounts of vault_transaction_create.
type VaultTransactionCreateAccounts struct {
	Multisig    solana.PublicKey
	Transaction solana.PublicKey
	Creator     solana.PublicKey
	RentPayer   solana.PublicKey
}

// VaultTransactionCreate stores msg in a new vault transaction account.
func (p Program) VaultTransactionCreate(
	accounts VaultTransactionCreateAccounts,
	vaultIndex uint8,
	ephemeralSigners uint8,
	msg *TransactionMessage,
	memo *string,
) (solana.Instruction, error) {
	built := squads_multisig_program.NewVaultTransactionCreateInstruction(
		squads_multisig_program.VaultTransactionCreateArgs{
			VaultIndex:         vaultIndex,
			EphemeralSigners:   ephemeralSigners,
			TransactionMessage: msg.Bytes(),
			Memo:               memo,
		},
		accounts.Multisig,
		accounts.Transaction,
		accounts.Creator,
		accounts.RentPayer,
		solana.SystemProgramID,
	).Build()
	return p.rebind("vault_transaction_create", built)
}

// ProposalCreateAccounts are the accounts of proposal_create.
type ProposalCreateAccounts struct {
	Multisig  solana.PublicKey
	Proposal  solana.PublicKey
	Creator   solana.PublicKey
	RentPayer solana.PublicKey
}

// ProposalCreate opens a proposal for transactionIndex. A draft proposal
// cannot be voted on until activated.
func (p Program) ProposalCreate(accounts ProposalCreateAccounts, transactionIndex uint64, draft bool) (solana.Instruction, error) {
	built := squads_multisig_program.NewProposalCreateInstruction(
		squads_multisig_program.ProposalCreateArgs{
			TransactionIndex: transactionIndex,
			Draft:            draft,
		},
		accounts.Multisig,
		accounts.Proposal,
		accounts.Creator,
		accounts.RentPayer,
		solana.SystemProgramID,
	).Build()
	return p.rebind("proposal_create", built)
}

// ProposalVoteAccounts are the accounts of proposal_approve.
type ProposalVoteAccounts struct {
	Multisig solana.PublicKey
	Member   solana.PublicKey
	Proposal solana.PublicKey
}

// ProposalApprove casts an approving vote from the member.
func (p Program) ProposalApprove(accounts ProposalVoteAccounts, memo *string) (solana.Instruction, error) {
	built := squads_multisig_program.NewProposalApproveInstruction(
		squads_multisig_program.ProposalVoteArgs{Memo: memo},
		accounts.Multisig,
		accounts.Member,
		accounts.Proposal,
	).Build()
	return p.rebind("proposal_approve", built)
}

// VaultTransactionExecuteAccounts are the fixed accounts of vault_transaction_execute.
type VaultTransactionExecuteAccounts struct {
	Multisig    solana.PublicKey
	Proposal    solana.PublicKey
	Transaction solana.PublicKey
	Member      solana.PublicKey
}

// VaultTransactionExecute executes an approved vault transaction. msg must
// be the exact message stored by VaultTransactionCreate: its account keys
// are passed as remaining accounts and the program checks them against the
// stored copy.
func (p Program) VaultTransactionExecute(accounts VaultTransactionExecuteAccounts, msg *TransactionMessage) (solana.Instruction, error) {
	builder := squads_multisig_program.NewVaultTransactionExecuteInstruction(
		accounts.Multisig,
		accounts.Proposal,
		accounts.Transaction,
		accounts.Member,
	)
	// Inner signers are PDAs signed for by the program, never by the outer transaction.
	for i, key := range msg.AccountKeys {
		builder.AccountMetaSlice = append(builder.AccountMetaSlice,
			solana.NewAccountMeta(key, msg.IsWritable(i), false))
	}
	return p.rebind("vault_transaction_execute", builder.Build())
}

// VaultTransactionAccountsCloseAccounts are the accounts of vault_transaction_accounts_close.
type VaultTransactionAccountsCloseAccounts struct {
	Multisig      solana.PublicKey
	Proposal      solana.PublicKey
	Transaction   solana.PublicKey
	RentCollector solana.PublicKey
}

// VaultTransactionAccountsClose closes the proposal and transaction accounts
// of a finished vault transaction and returns their rent to RentCollector.
func (p Program) VaultTransactionAccountsClose(accounts VaultTransactionAccountsCloseAccounts) (solana.Instruction, error) {
	built := squads_multisig_program.NewVaultTransactionAccountsCloseInstruction(
		accounts.Multisig,
		accounts.Proposal,
		accounts.Transaction,
		accounts.RentCollector,
		solana.SystemProgramID,
	).Build()
	return p.rebind("vault_transaction_accounts_close", built)
}

// rebind encodes a generated instruction under our program id; the
// generated package keeps its own global.
func (p Program) rebind(name string, built *squads_multisig_program.Instruction) (solana.Instruction, error) {
	data, err := built.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return solana.NewInstruction(p.id, built.Accounts(), data), nil
}
