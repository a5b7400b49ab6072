package smartaccount

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// SubmissionKind names what a submitted transaction was for.
type SubmissionKind string

const (
	SubmissionCreateMultisig   SubmissionKind = "create_multisig"
	SubmissionVaultTransaction SubmissionKind = "vault_transaction"
)

// Submission describes one attempt to send a transaction to the ledger.
type Submission struct {
	Kind             SubmissionKind
	Multisig         solana.PublicKey
	VaultIndex       uint8
	TransactionIndex uint64 // zero for creation
	Signature        solana.Signature
	Err              error
	At               time.Time
}

// Observer receives every submission attempt, successful or not.
// Implementations must not block for long and cannot affect the outcome.
type Observer interface {
	Submitted(Submission)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Submission)

func (f ObserverFunc) Submitted(s Submission) { f(s) }
