// Package smartaccount drives the device's Squads smart account: it finds
// or creates the multisig for an identity and runs arbitrary instructions
// through its vault in one atomic transaction.
package smartaccount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"smartvault-go/internal/signer"
	"smartvault-go/internal/squads"
)

// Gateway is the ledger access the orchestrator needs.
type Gateway interface {
	squads.AccountSource
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Config fixes the program and vault the orchestrator works against.
type Config struct {
	ProgramID  solana.PublicKey // zero: Squads v4 mainnet
	VaultIndex uint8
	// ConfirmationDelay is the single wait between creating the multisig
	// and reading it back.
	ConfirmationDelay time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Option func(*Orchestrator)

// WithSleeper replaces the wait used after creation.
func WithSleeper(s Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithObserver adds an observer notified of every submission.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithClock overrides the time source stamped on submissions.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator holds no per-identity state; one value can serve any
// number of identities and concurrent calls. It does not serialize
// submissions for the same multisig: concurrent ExecuteTransaction calls
// race for the same transaction index and the ledger rejects the loser.
type Orchestrator struct {
	gw        Gateway
	program   squads.Program
	reader    *squads.Reader
	cfg       Config
	sleep     Sleeper
	observers []Observer
	now       func() time.Time
	logger    zerolog.Logger
}

func New(gw Gateway, cfg Config, logger zerolog.Logger, opts ...Option) *Orchestrator {
	program := squads.New(cfg.ProgramID)
	o := &Orchestrator{
		gw:      gw,
		program: program,
		reader:  squads.NewReader(program, gw),
		cfg:     cfg,
		sleep:   sleep,
		now:     time.Now,
		logger:  logger.With().Str("component", "smart_account").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Addresses are the accounts derived from an identity's create key.
type Addresses struct {
	Multisig   solana.PublicKey
	Vault      solana.PublicKey
	VaultIndex uint8
}

// Addresses derives the multisig and vault for id without touching the
// ledger.
func (o *Orchestrator) Addresses(id *signer.Identity) Addresses {
	ms, _ := o.program.MultisigPDA(id.CreateKey.PublicKey())
	vault, _ := o.program.VaultPDA(ms, o.cfg.VaultIndex)
	return Addresses{Multisig: ms, Vault: vault, VaultIndex: o.cfg.VaultIndex}
}

// Multisig reads the current multisig state for id.
func (o *Orchestrator) Multisig(ctx context.Context, id *signer.Identity) (*squads.MultisigState, error) {
	return o.reader.Multisig(ctx, o.Addresses(id).Multisig)
}

// GetOrCreate returns the multisig for id, creating it when the ledger
// has no account at its address. After creating it waits once for
// ConfirmationDelay and reads again; a multisig still missing then is
// ErrCreationUnconfirmed. Any other read failure is returned as is and
// never leads to a creation attempt.
func (o *Orchestrator) GetOrCreate(ctx context.Context, id *signer.Identity) (*squads.MultisigState, error) {
	addr := o.Addresses(id).Multisig
	log := o.logger.With().Str("multisig", addr.String()).Logger()

	ms, err := o.reader.Multisig(ctx, addr)
	if err == nil {
		log.Debug().Uint64("transaction_index", ms.TransactionIndex).Msg("multisig ready")
		return ms, nil
	}
	if !errors.Is(err, squads.ErrAccountNotFound) {
		return nil, err
	}

	log.Info().Msg("multisig not found, creating")
	if _, err := o.Create(ctx, id); err != nil {
		return nil, err
	}

	log.Debug().Dur("delay", o.cfg.ConfirmationDelay).Msg("waiting for confirmation")
	if err := o.sleep(ctx, o.cfg.ConfirmationDelay); err != nil {
		return nil, err
	}

	ms, err = o.reader.Multisig(ctx, addr)
	if errors.Is(err, squads.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s not visible after %s", ErrCreationUnconfirmed, addr, o.cfg.ConfirmationDelay)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Msg("multisig ready")
	return ms, nil
}

// Create submits the multisig_create_v2 transaction for id: threshold 1,
// the creator as sole member with every permission and as rent collector,
// no config authority and no time lock. It does not wait for the result.
func (o *Orchestrator) Create(ctx context.Context, id *signer.Identity) (solana.Signature, error) {
	creator := id.Creator.PublicKey()
	createKey := id.CreateKey.PublicKey()

	configAddr, _ := o.program.ProgramConfigPDA()
	config, err := o.reader.ProgramConfig(ctx, configAddr)
	if err != nil {
		return solana.Signature{}, err
	}

	addrs := o.Addresses(id)
	ix, err := o.program.MultisigCreateV2(squads.MultisigCreateAccounts{
		ProgramConfig: configAddr,
		Treasury:      config.Treasury,
		Multisig:      addrs.Multisig,
		CreateKey:     createKey,
		Creator:       creator,
	}, squads.MultisigCreateArgs{
		Threshold:     1,
		Members:       []squads.Member{{Key: creator, Permissions: squads.PermissionFull}},
		RentCollector: &creator,
	})
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := o.submit(ctx, id, []solana.Instruction{ix})
	o.notify(Submission{
		Kind:       SubmissionCreateMultisig,
		Multisig:   addrs.Multisig,
		VaultIndex: addrs.VaultIndex,
		Signature:  sig,
		Err:        err,
	})
	if err != nil {
		return solana.Signature{}, err
	}

	o.logger.Info().
		Str("multisig", addrs.Multisig.String()).
		Str("signature", sig.String()).
		Msg("multisig creation submitted")
	return sig, nil
}

// maxTransactionSize is the ledger's packet limit for a serialized
// transaction.
const maxTransactionSize = 1232

// submit builds a transaction paid by the creator, signs it with every
// identity key it requires and sends it.
func (o *Orchestrator) submit(ctx context.Context, id *signer.Identity, ixs []solana.Instruction) (solana.Signature, error) {
	blockhash, err := o.gw.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(id.Creator.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: build transaction: %w", squads.ErrCompile, err)
	}
	if _, err := tx.Sign(id.PrivateKey); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %w", signer.ErrSigning, err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: encode transaction: %w", squads.ErrCompile, err)
	}
	if len(raw) > maxTransactionSize {
		return solana.Signature{}, fmt.Errorf("%w: transaction is %d bytes, limit %d", squads.ErrCompile, len(raw), maxTransactionSize)
	}

	return o.gw.SendTransaction(ctx, tx)
}

func (o *Orchestrator) notify(s Submission) {
	s.At = o.now()
	for _, obs := range o.observers {
		obs.Submitted(s)
	}
	if s.Err != nil {
		o.logger.Warn().
			Err(s.Err).
			Str("kind", string(s.Kind)).
			Str("error_kind", Kind(s.Err)).
			Str("multisig", s.Multisig.String()).
			Msg("submission failed")
	}
}
