package main

import (
	"context"
	"fmt"
	"io"

	"github.com/AlexZinkM/fident/internal/auth"
	"github.com/AlexZinkM/fident/internal/client"
	"github.com/AlexZinkM/fident/internal/common"
	"github.com/AlexZinkM/fident/internal/config"
	"github.com/AlexZinkM/fident/internal/logger"
	"github.com/AlexZinkM/fident/internal/onboarding"
	"github.com/AlexZinkM/fident/internal/secretstore"
	"github.com/AlexZinkM/fident/solana"

	"go.uber.org/zap"
)

// app is the process wiring shared by all commands.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    secretstore.Store
	closer   io.Closer
	provider *auth.TokenProvider
	ledger   *solana.Ledger
	machine  *onboarding.Machine
}

// newApp loads configuration, unlocks the secret store and builds the
// onboarding machine for the stored session.
func newApp(ctx context.Context) (*app, error) {
	if err := config.Init(); err != nil {
		return nil, err
	}
	cfg := config.Get()

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	if err := config.PromptForPassword(); err != nil {
		return nil, err
	}

	store, closer, err := secretstore.Open(cfg.SecretStoreBackend, cfg.SecretStorePath, config.GetStorePasswordBytes)
	if err != nil {
		return nil, err
	}

	provider, err := auth.Load(ctx, store, cfg.AuthToken)
	if err != nil {
		closer.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, store: store, closer: closer, provider: provider}
	a.ledger = solana.NewLedger(config.GetSolanaRPCURL(), nil, log.Named("ledger"))
	a.machine, err = a.newMachine(provider)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) newMachine(provider *auth.TokenProvider) (*onboarding.Machine, error) {
	records := client.NewRecordClient(a.cfg.BackendURL, a.cfg.RemoteTimeout, provider)

	var submitter onboarding.Submitter = records
	if a.cfg.SubmitVia == config.SubmitViaLedger {
		submitter = a.ledger
	}

	deps := onboarding.Deps{
		Store:     a.store,
		Records:   records,
		Submitter: submitter,
		Binder: solana.NewBinder(solana.BinderConfig{
			Endpoint:         a.cfg.SolanaRPCURL,
			ComputeUnitLimit: a.cfg.ComputeUnitLimit,
			PriorityFeeCap:   a.cfg.PriorityFeeCap,
		}, nil, a.log.Named("binder")),
		Log: a.log,
	}

	mc := onboarding.Config{Network: a.cfg.SolanaNetwork, SaveTimeout: a.cfg.RemoteTimeout}
	if a.cfg.FundNewWallets {
		lamports, err := common.SOLToLamports(a.cfg.AirdropSOL)
		if err != nil {
			return nil, fmt.Errorf("invalid AIRDROP_SOL %q: %w", a.cfg.AirdropSOL, err)
		}
		deps.Funder = a.ledger
		mc.FundLamports = lamports
	}

	return onboarding.New(onboarding.NewSession(provider), mc, deps), nil
}

// Close locks the store and flushes logs.
func (a *app) Close() {
	if err := a.closer.Close(); err != nil {
		a.log.Warn("failed to close secret store", zap.Error(err))
	}
	config.ClearStorePassword()
	a.log.Sync()
}
