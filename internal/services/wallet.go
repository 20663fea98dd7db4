package services

import (
	"context"
	"net/http"
	"time"

	"github.com/stellar/go/clients/horizonclient"

	"github.com/comunergy/energy-wallet/internal/agent"
	"github.com/comunergy/energy-wallet/internal/config"
	"github.com/comunergy/energy-wallet/internal/ledger"
	"github.com/comunergy/energy-wallet/internal/logger"
	"github.com/comunergy/energy-wallet/internal/profile"
	"github.com/comunergy/energy-wallet/internal/rpc"
	"github.com/comunergy/energy-wallet/internal/session"
	"github.com/comunergy/energy-wallet/internal/store"
	"github.com/comunergy/energy-wallet/internal/token"
)

// WalletService wires the wallet subsystem together for the CLI and the
// dashboard: session reconciliation, balance and payment reads, and the
// transaction pipeline.
type WalletService struct {
	config     *config.Config
	store      *store.Store
	registry   *agent.Registry
	reconciler *session.Reconciler
	balances   *ledger.BalanceCache
	payments   *ledger.PaymentFetcher
	pipeline   *token.Pipeline
}

// NewWalletService creates a wallet service with all dependencies.
func NewWalletService(cfg *config.Config) (*WalletService, error) {
	st := store.New()

	registry := agent.NewRegistry()
	if cfg.AgentSeed != "" {
		local, err := agent.NewLocal(cfg.AgentSeed, cfg.NetworkName, cfg.NetworkPassphrase)
		if err != nil {
			return nil, err
		}
		registry.Register(local)
	}

	horizon := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}

	rpcClient := rpc.NewClient(cfg.RPCURL)
	reconciler := session.NewReconciler(st, registry, cfg.PollInterval)

	return &WalletService{
		config:     cfg,
		store:      st,
		registry:   registry,
		reconciler: reconciler,
		balances:   ledger.NewBalanceCacheWithClient(horizon, cfg.Locale),
		payments:   ledger.NewPaymentFetcher(cfg.HorizonURL, cfg.PaymentsLimit),
		pipeline: token.NewPipeline(
			horizon,
			rpcClient,
			registry,
			reconciler,
			cfg.TokenContract,
			cfg.NetworkPassphrase,
			cfg.ConfirmInterval,
			cfg.TxValidity,
		),
	}, nil
}

// Start runs the initial reconciliation synchronously and keeps the session
// loop running until ctx is cancelled.
func (s *WalletService) Start(ctx context.Context) {
	s.reconciler.Start(ctx)
}

// Session returns the current session snapshot.
func (s *WalletService) Session() session.Session {
	return s.reconciler.Snapshot()
}

// Connect selects the configured signing agent and persists its identity.
// The session state itself is updated by the reconciliation loop.
func (s *WalletService) Connect(ctx context.Context) error {
	return s.reconciler.Connect(ctx, agent.ByID(s.config.DefaultAgent))
}

// Disconnect drops the agent session and clears all local state.
func (s *WalletService) Disconnect(ctx context.Context) {
	s.reconciler.Disconnect(ctx)
	s.balances.Invalidate()
	profile.Clear()
}

// RefreshBalances fetches the connected account's balances. A result whose
// triggering address went stale mid-fetch (the user disconnected or switched
// accounts) is discarded rather than applied to a mismatched address.
func (s *WalletService) RefreshBalances() ledger.Balances {
	snap := s.Session()
	if !snap.Connected {
		s.balances.Invalidate()
		return ledger.Balances{}
	}

	entries := s.balances.Refresh(snap.Address)

	if s.Session().Address != snap.Address {
		logger.Debug("Discarding balances for stale address %s", snap.Address)
		s.balances.Invalidate()
		return ledger.Balances{}
	}

	return entries
}

// Balances returns the cached balances without a fetch.
func (s *WalletService) Balances() ledger.Balances {
	entries, _ := s.balances.Current()
	return entries
}

// XLMBalance returns the formatted native balance of the connected account.
func (s *WalletService) XLMBalance() string {
	return s.balances.XLM()
}

// Payments fetches the connected account's recent payment history.
func (s *WalletService) Payments(ctx context.Context) ([]ledger.PaymentRecord, error) {
	snap := s.Session()
	if !snap.Connected {
		return []ledger.PaymentRecord{}, nil
	}

	records, err := s.payments.Fetch(ctx, snap.Address)
	if err != nil {
		return nil, err
	}

	if s.Session().Address != snap.Address {
		logger.Debug("Discarding payments for stale address %s", snap.Address)
		return []ledger.PaymentRecord{}, nil
	}

	return records, nil
}

// Transfer submits a token transfer and invalidates the balance cache on
// success.
func (s *WalletService) Transfer(ctx context.Context, to, amount string) (string, error) {
	hash, err := s.pipeline.Transfer(ctx, to, amount)
	if err != nil {
		return "", err
	}

	s.balances.Invalidate()
	return hash, nil
}

// Burn submits a token burn and invalidates the balance cache on success.
func (s *WalletService) Burn(ctx context.Context, amount string) (string, error) {
	hash, err := s.pipeline.Burn(ctx, amount)
	if err != nil {
		return "", err
	}

	s.balances.Invalidate()
	return hash, nil
}

// TokenBalance reads the token balance of an address via simulation.
func (s *WalletService) TokenBalance(ctx context.Context, address string) (string, error) {
	return s.pipeline.Balance(ctx, address)
}

// Profile returns the saved display profile, if any.
func (s *WalletService) Profile() *profile.Profile {
	return profile.Load()
}

// SetProfile persists the display profile.
func (s *WalletService) SetProfile(p profile.Profile) error {
	return profile.Save(p)
}
