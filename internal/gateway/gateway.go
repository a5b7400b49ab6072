// Package gateway is the ledger gateway: a thin, stateless handle on a
// Solana RPC endpoint exposing only the calls the smart account flow needs.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"smartvault-go/internal/squads"
)

// ErrTransport wraps every RPC failure other than a missing account.
var ErrTransport = errors.New("ledger transport error")

// Gateway wraps one RPC endpoint. It is safe for concurrent use.
type Gateway struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
	timeout    time.Duration
	logger     zerolog.Logger
}

// New returns a Gateway for endpoint. A zero timeout leaves calls bounded
// only by the caller's context.
func New(endpoint string, commitment rpc.CommitmentType, timeout time.Duration, logger zerolog.Logger) *Gateway {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Gateway{
		client:     rpc.New(endpoint),
		commitment: commitment,
		timeout:    timeout,
		logger:     logger.With().Str("component", "ledger_gateway").Logger(),
	}
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

// GetAccount fetches the raw account at address.
func (g *Gateway) GetAccount(ctx context.Context, address solana.PublicKey) (*squads.Account, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := g.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: g.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (out == nil || out.Value == nil)) {
		g.logger.Debug().Str("address", address.String()).Msg("account not found")
		return nil, fmt.Errorf("%w: %s", squads.ErrAccountNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account %s: %w", ErrTransport, address, err)
	}

	return &squads.Account{
		Address:  address,
		Owner:    out.Value.Owner,
		Lamports: out.Value.Lamports,
		Data:     out.Value.Data.GetBinary(),
	}, nil
}

// GetLatestBlockhash returns a blockhash new transactions can reference.
func (g *Gateway) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := g.client.GetLatestBlockhash(ctx, g.commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("%w: get latest blockhash: %w", ErrTransport, err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("%w: empty blockhash response", ErrTransport)
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a signed transaction with preflight at the
// gateway commitment and returns its signature.
func (g *Gateway) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, fmt.Errorf("%w: transaction has no signatures", ErrTransport)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	sig, err := g.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: g.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: send transaction: %w", ErrTransport, err)
	}

	g.logger.Info().
		Str("signature", sig.String()).
		Int("instructions", len(tx.Message.Instructions)).
		Msg("transaction sent")
	return sig, nil
}

// GetBalance returns the lamports held by address.
func (g *Gateway) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := g.client.GetBalance(ctx, address, g.commitment)
	if err != nil {
		return 0, fmt.Errorf("%w: get balance %s: %w", ErrTransport, address, err)
	}
	return out.Value, nil
}
