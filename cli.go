package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"smartvault-go/internal/config"
	"smartvault-go/internal/gateway"
	"smartvault-go/internal/history"
	"smartvault-go/internal/logger"
	"smartvault-go/internal/metrics"
	"smartvault-go/internal/signer"
	"smartvault-go/internal/smartaccount"
)

// app is everything a command needs, built from the loaded config.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	gateway  *gateway.Gateway
	store    *signer.Store
	orch     *smartaccount.Orchestrator
	journal  *history.Journal
	registry *prometheus.Registry
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	program, err := cfg.Program()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   log,
		gateway:  gateway.New(cfg.RPCURL, rpc.CommitmentType(cfg.Commitment), cfg.RequestTimeout, log),
		registry: prometheus.NewRegistry(),
	}

	opts := []smartaccount.Option{}
	observer, err := metrics.NewObserver(a.registry)
	if err != nil {
		return nil, err
	}
	opts = append(opts, smartaccount.WithObserver(observer))

	if cfg.History.Path != "" {
		a.journal, err = history.Open(cfg.History.Path, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, smartaccount.WithObserver(a.journal))
	}

	a.orch = smartaccount.New(a.gateway, smartaccount.Config{
		ProgramID:         program,
		VaultIndex:        cfg.VaultIndex,
		ConfirmationDelay: cfg.ConfirmationDelay,
	}, log, opts...)
	return a, nil
}

// keyStore opens the keyring lazily so commands that never sign never
// unlock it.
func (a *app) keyStore() (*signer.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	ring, err := signer.OpenRing(signer.RingConfig{
		Service:  a.cfg.Keyring.Service,
		Backend:  a.cfg.Keyring.Backend,
		Dir:      a.cfg.Keyring.Dir,
		Password: a.cfg.Keyring.Password,
	})
	if err != nil {
		return nil, err
	}
	a.store = signer.NewStore(ring, a.cfg.Keyring.User, a.logger)
	return a.store, nil
}

func (a *app) loadOrCreateIdentity() (*signer.Identity, error) {
	store, err := a.keyStore()
	if err != nil {
		return nil, err
	}
	return store.LoadOrCreate()
}

func (a *app) close() error {
	var errs []error
	if a.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	return errors.Join(errs...)
}

// statusReport is what the status command prints.
type statusReport struct {
	Creator          string `json:"creator"`
	Multisig         string `json:"multisig"`
	Vault            string `json:"vault"`
	VaultIndex       uint8  `json:"vault_index"`
	Exists           bool   `json:"exists"`
	TransactionIndex uint64 `json:"transaction_index,omitempty"`
	Threshold        uint16 `json:"threshold,omitempty"`
	Members          int    `json:"members,omitempty"`
	VaultBalanceSOL  string `json:"vault_balance_sol"`
	CreatorSOL       string `json:"creator_balance_sol"`
}

func (a *app) status(ctx context.Context, id *signer.Identity) (*statusReport, error) {
	addrs := a.orch.Addresses(id)
	report := &statusReport{
		Creator:    id.Creator.PublicKey().String(),
		Multisig:   addrs.Multisig.String(),
		Vault:      addrs.Vault.String(),
		VaultIndex: addrs.VaultIndex,
	}

	ms, err := a.orch.Multisig(ctx, id)
	switch {
	case err == nil:
		report.Exists = true
		report.TransactionIndex = ms.TransactionIndex
		report.Threshold = ms.Threshold
		report.Members = len(ms.Members)
	case smartaccount.Kind(err) != smartaccount.KindNotFound:
		return nil, err
	}

	for _, b := range []struct {
		key solana.PublicKey
		out *string
	}{
		{addrs.Vault, &report.VaultBalanceSOL},
		{id.Creator.PublicKey(), &report.CreatorSOL},
	} {
		lamports, err := a.gateway.GetBalance(ctx, b.key)
		if err != nil {
			return nil, err
		}
		*b.out = lamportsToSOL(lamports).String()
	}
	return report, nil
}

// lamportsToSOL converts a lamport amount to SOL without rounding.
func lamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}
