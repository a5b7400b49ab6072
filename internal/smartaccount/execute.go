package smartaccount

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"smartvault-go/internal/signer"
	"smartvault-go/internal/squads"
)

// Execution is the outcome of one ExecuteTransaction call.
type Execution struct {
	Signature        solana.Signature
	TransactionIndex uint64
	Transaction      solana.PublicKey
	Proposal         solana.PublicKey
	Message          *squads.TransactionMessage
}

// ExecuteTransaction runs ixs through the vault. It creates the vault
// transaction and its proposal at the next transaction index, approves
// and executes it, then closes both accounts back to the creator, all in
// one transaction so the ledger applies every step or none.
func (o *Orchestrator) ExecuteTransaction(ctx context.Context, id *signer.Identity, ixs []solana.Instruction) (*Execution, error) {
	addrs := o.Addresses(id)
	member := id.Creator.PublicKey()

	msg, err := squads.Compile(addrs.Vault, ixs)
	if err != nil {
		return nil, err
	}

	ms, err := o.reader.Multisig(ctx, addrs.Multisig)
	if err != nil {
		return nil, err
	}
	// The bundle creates, approves and executes with one key.
	if !ms.Permits(member, squads.PermissionFull) {
		return nil, fmt.Errorf("%w: %s lacks initiate, vote or execute on multisig %s", squads.ErrCompile, member, addrs.Multisig)
	}
	index := ms.TransactionIndex + 1
	transaction, _ := o.program.TransactionPDA(addrs.Multisig, index)
	proposal, _ := o.program.ProposalPDA(addrs.Multisig, index)

	bundle, err := o.bundle(addrs, member, index, transaction, proposal, msg)
	if err != nil {
		return nil, err
	}

	o.logger.Debug().
		Str("multisig", addrs.Multisig.String()).
		Uint64("transaction_index", index).
		Int("instructions", len(ixs)).
		Msg("submitting vault transaction")

	sig, err := o.submit(ctx, id, bundle)
	o.notify(Submission{
		Kind:             SubmissionVaultTransaction,
		Multisig:         addrs.Multisig,
		VaultIndex:       addrs.VaultIndex,
		TransactionIndex: index,
		Signature:        sig,
		Err:              err,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("multisig", addrs.Multisig.String()).
		Uint64("transaction_index", index).
		Str("signature", sig.String()).
		Msg("vault transaction submitted")
	return &Execution{
		Signature:        sig,
		TransactionIndex: index,
		Transaction:      transaction,
		Proposal:         proposal,
		Message:          msg,
	}, nil
}

// bundle assembles create, propose, approve, execute and close. Create
// and execute share msg so the executed bytes are the stored bytes.
func (o *Orchestrator) bundle(
	addrs Addresses,
	member solana.PublicKey,
	index uint64,
	transaction, proposal solana.PublicKey,
	msg *squads.TransactionMessage,
) ([]solana.Instruction, error) {
	p := o.program
	ixs := make([]solana.Instruction, 0, 5)

	create, err := p.VaultTransactionCreate(squads.VaultTransactionCreateAccounts{
		Multisig:    addrs.Multisig,
		Transaction: transaction,
		Creator:     member,
		RentPayer:   member,
	}, addrs.VaultIndex, 0, msg, nil)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, create)

	propose, err := p.ProposalCreate(squads.ProposalCreateAccounts{
		Multisig:  addrs.Multisig,
		Proposal:  proposal,
		Creator:   member,
		RentPayer: member,
	}, index, false)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, propose)

	approve, err := p.ProposalApprove(squads.ProposalVoteAccounts{
		Multisig: addrs.Multisig,
		Member:   member,
		Proposal: proposal,
	}, nil)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, approve)

	execute, err := p.VaultTransactionExecute(squads.VaultTransactionExecuteAccounts{
		Multisig:    addrs.Multisig,
		Proposal:    proposal,
		Transaction: transaction,
		Member:      member,
	}, msg)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, execute)

	closeIx, err := p.VaultTransactionAccountsClose(squads.VaultTransactionAccountsCloseAccounts{
		Multisig:      addrs.Multisig,
		Proposal:      proposal,
		Transaction:   transaction,
		RentCollector: member,
	})
	if err != nil {
		return nil, err
	}
	return append(ixs, closeIx), nil
}

// Ping moves one lamport from the vault back to the creator, a minimal
// end-to-end check that the vault can execute.
func (o *Orchestrator) Ping(ctx context.Context, id *signer.Identity) (*Execution, error) {
	vault := o.Addresses(id).Vault
	transfer := system.NewTransferInstruction(1, vault, id.Creator.PublicKey()).Build()
	exec, err := o.ExecuteTransaction(ctx, id, []solana.Instruction{transfer})
	if err != nil {
		return nil, fmt.Errorf("ping vault %s: %w", vault, err)
	}
	return exec, nil
}
