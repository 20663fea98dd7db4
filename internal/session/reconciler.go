package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/comunergy/energy-wallet/internal/agent"
	"github.com/comunergy/energy-wallet/internal/logger"
	"github.com/comunergy/energy-wallet/internal/store"
)

// Session is the read-only projection of the wallet connection state.
// Connected is true exactly when Address is non-empty.
type Session struct {
	AgentID      string
	Address      string
	ShortAddress string
	Network      string
	Connected    bool
	Version      uint64
}

// Reconciler owns the session state machine. The signing agent exposes no
// push notifications, so a polling loop keeps persisted state, in-memory
// state and the agent's live report consistent. All state transitions go
// through this one loop; Connect and Disconnect only touch the persistent
// store and the agent.
type Reconciler struct {
	store    *store.Store
	registry *agent.Registry
	interval time.Duration

	mu    sync.RWMutex
	state Session

	// tickMu enforces at-most-one in-flight reconciliation. A tick that
	// finds it held is skipped, not queued; the next tick re-evaluates
	// current truth.
	tickMu sync.Mutex
}

// NewReconciler creates a reconciler polling at the given interval.
func NewReconciler(st *store.Store, registry *agent.Registry, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:    st,
		registry: registry,
		interval: interval,
	}
}

// Snapshot returns a copy of the current session state. Fields are written
// as a group, so a snapshot is always internally consistent.
func (r *Reconciler) Snapshot() Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Start runs one synchronous reconciliation so the first read reflects the
// true session state, then keeps reconciling until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.Reconcile(ctx)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Reconcile(ctx)
			}
		}
	}()
}

// Connect runs the agent selection and persists the chosen identity, its
// address and, for agents that support the query, its network. In-memory
// state is left untouched: the reconciliation loop is the single code path
// for state transitions, whether the user just connected or reloaded an
// existing session.
func (r *Reconciler) Connect(ctx context.Context, selector agent.Selector) error {
	ag, err := r.registry.Select(selector)
	if err != nil {
		return err
	}

	// The identity is persisted as soon as it is chosen, before the
	// address round trip resolves.
	r.store.Set(store.KeyAgentID, ag.ID())

	addr, err := ag.GetAddress(ctx)
	if err != nil {
		return err
	}

	if addr.Address == "" {
		r.store.SetGroup(map[string]string{
			store.KeyAgentID: "",
			store.KeyAddress: "",
		})
		return nil
	}

	r.store.Set(store.KeyAddress, addr.Address)

	if ag.SupportsNetworkQuery() {
		network, err := ag.GetNetwork(ctx)
		if err != nil || network.Network == "" || network.NetworkPassphrase == "" {
			r.store.SetGroup(map[string]string{
				store.KeyNetwork:           "",
				store.KeyNetworkPassphrase: "",
			})
		} else {
			r.store.SetGroup(map[string]string{
				store.KeyNetwork:           network.Network,
				store.KeyNetworkPassphrase: network.NetworkPassphrase,
			})
		}
	}

	return nil
}

// Disconnect asks the agent to drop its session and clears all persisted and
// in-memory state. Clearing happens unconditionally: the user's intent to
// disconnect wins over any agent failure. Calling it twice is harmless.
func (r *Reconciler) Disconnect(ctx context.Context) {
	agentID := r.store.Get(store.KeyAgentID)
	if agentID == "" {
		agentID = r.Snapshot().AgentID
	}

	if ag, ok := r.registry.Lookup(agentID); ok {
		if err := ag.Disconnect(ctx); err != nil {
			logger.Warn("Agent disconnect failed, clearing session anyway: %v", err)
		}
	}

	r.nullify()
}

// Reconcile performs a single tick of the reconciliation loop. A skipped tick
// changes nothing: every transition happens under the tick lock.
func (r *Reconciler) Reconcile(ctx context.Context) {
	if !r.tickMu.TryLock() {
		// A reconciliation is already in flight; skip rather than queue to
		// avoid stacking redundant prompts on the signing agent.
		return
	}
	defer r.tickMu.Unlock()

	agentID := r.store.Get(store.KeyAgentID)
	address := r.store.Get(store.KeyAddress)
	networkName := r.store.Get(store.KeyNetwork)

	cur := r.Snapshot()

	// On reload, adopt persisted state before any live query so the first
	// tick already reflects the stored session.
	if cur.Address == "" && address != "" {
		r.setConnected(agentID, address, networkName)
		cur = r.Snapshot()
	}

	if agentID == "" {
		if cur.Connected {
			r.nullify()
		}
		return
	}

	ag, ok := r.registry.Lookup(agentID)
	if !ok {
		r.nullify()
		return
	}

	// Agents without a network query keep their cached state once an
	// address is known; re-querying would only prompt the user again.
	if !ag.SupportsNetworkQuery() && address != "" {
		return
	}

	live, err := r.queryAgent(ctx, ag)
	if err != nil {
		// An unreachable agent is authoritative disconnection, not a
		// retry case: a stale "connected" view is worse than none.
		r.nullify()
		if !errors.Is(err, agent.ErrNotInstalled) {
			logger.Error("Wallet state error: %v", err)
		}
		return
	}

	if live.address == "" {
		// The agent revoked access. Clearing the persisted identity makes
		// the next tick transition to disconnected.
		r.store.Set(store.KeyAgentID, "")
		return
	}

	if live.address != cur.Address {
		r.store.SetGroup(map[string]string{
			store.KeyAddress:           live.address,
			store.KeyNetwork:           live.network,
			store.KeyNetworkPassphrase: live.passphrase,
		})
		r.setConnected(agentID, live.address, live.network)
	}
}

type liveState struct {
	address    string
	network    string
	passphrase string
}

func (r *Reconciler) queryAgent(ctx context.Context, ag agent.SigningAgent) (liveState, error) {
	var (
		wg      sync.WaitGroup
		addr    agent.Address
		network agent.Network
		addrErr error
		netErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		addr, addrErr = ag.GetAddress(ctx)
	}()
	go func() {
		defer wg.Done()
		network, netErr = ag.GetNetwork(ctx)
	}()
	wg.Wait()

	if addrErr != nil {
		return liveState{}, addrErr
	}
	if netErr != nil {
		return liveState{}, netErr
	}

	return liveState{
		address:    addr.Address,
		network:    network.Network,
		passphrase: network.NetworkPassphrase,
	}, nil
}

func (r *Reconciler) setConnected(agentID, address, network string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Session{
		AgentID:      agentID,
		Address:      address,
		ShortAddress: shortForm(address),
		Network:      network,
		Connected:    true,
		Version:      r.state.Version + 1,
	}
}

func (r *Reconciler) nullify() {
	// Store first: a concurrent tick that still sees the old persisted
	// address must not re-adopt it after the in-memory state is cleared.
	r.store.SetGroup(map[string]string{
		store.KeyAgentID:           "",
		store.KeyAddress:           "",
		store.KeyNetwork:           "",
		store.KeyNetworkPassphrase: "",
	})

	r.mu.Lock()
	r.state = Session{Version: r.state.Version + 1}
	r.mu.Unlock()
}

// shortForm derives the display address: first 6 and last 4 characters
// joined by an ellipsis.
func shortForm(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
