package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunergy/energy-wallet/internal/agent"
	"github.com/comunergy/energy-wallet/internal/logger"
	"github.com/comunergy/energy-wallet/internal/store"
)

func init() {
	logger.Init()
}

const testAddress = "GDUKMGUGDZQK6YHYA5Z6AY2G4XDSZPSZ3GB5HDXNKZXTMEDYB6A32NT2"

type fakeAgent struct {
	mu sync.Mutex

	id         string
	netQuery   bool
	address    string
	addressErr error
	network    agent.Network
	networkErr error

	addressCalls    int
	disconnectCalls int

	// When set, GetAddress blocks until the channel closes.
	block chan struct{}
}

func (f *fakeAgent) ID() string                 { return f.id }
func (f *fakeAgent) SupportsNetworkQuery() bool { return f.netQuery }

func (f *fakeAgent) GetAddress(ctx context.Context) (agent.Address, error) {
	f.mu.Lock()
	f.addressCalls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	if f.addressErr != nil {
		return agent.Address{}, f.addressErr
	}
	return agent.Address{Address: f.address}, nil
}

func (f *fakeAgent) GetNetwork(ctx context.Context) (agent.Network, error) {
	if f.networkErr != nil {
		return agent.Network{}, f.networkErr
	}
	return f.network, nil
}

func (f *fakeAgent) SignTransaction(ctx context.Context, envelopeXDR string) (string, error) {
	return envelopeXDR, nil
}

func (f *fakeAgent) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	return nil
}

func (f *fakeAgent) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addressCalls
}

func newTestReconciler(t *testing.T, ag *fakeAgent) (*Reconciler, *store.Store) {
	t.Helper()

	st := store.NewAt(t.TempDir())
	registry := agent.NewRegistry()
	if ag != nil {
		registry.Register(ag)
	}
	return NewReconciler(st, registry, 50*time.Millisecond), st
}

func TestReconcileConnectsFromAgentReport(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)
	st.Set(store.KeyAgentID, "local")

	r.Reconcile(context.Background())

	snap := r.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, testAddress, snap.Address)
	assert.Equal(t, testAddress[:6]+"..."+testAddress[len(testAddress)-4:], snap.ShortAddress)
	assert.Equal(t, "TESTNET", snap.Network)
	assert.Equal(t, testAddress, st.Get(store.KeyAddress))
}

func TestConnectedIffAddressInvariant(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)
	st.Set(store.KeyAgentID, "local")

	check := func() {
		snap := r.Snapshot()
		assert.Equal(t, snap.Address != "", snap.Connected,
			"connected must hold exactly when an address is present")
	}

	for i := 0; i < 3; i++ {
		r.Reconcile(context.Background())
		check()
	}

	ag.addressErr = errors.New("agent gone")
	for i := 0; i < 3; i++ {
		r.Reconcile(context.Background())
		check()
	}

	ag.addressErr = nil
	st.Set(store.KeyAgentID, "local")
	r.Reconcile(context.Background())
	check()
	assert.True(t, r.Snapshot().Connected)
}

func TestReconcileAdoptsPersistedSessionOnReload(t *testing.T) {
	// An agent without a network query is not re-queried once an address is
	// cached; the persisted session is adopted as-is.
	ag := &fakeAgent{id: "hardware", netQuery: false, address: testAddress}
	r, st := newTestReconciler(t, ag)

	st.SetGroup(map[string]string{
		store.KeyAgentID: "hardware",
		store.KeyAddress: testAddress,
		store.KeyNetwork: "TESTNET",
	})

	r.Reconcile(context.Background())

	snap := r.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, testAddress, snap.Address)
	assert.Equal(t, 0, ag.calls(), "cached session must not trigger an agent query")
}

func TestRevocationClearsInTwoTicks(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)
	st.Set(store.KeyAgentID, "local")

	r.Reconcile(context.Background())
	require.True(t, r.Snapshot().Connected)

	// Agent revokes access: it now reports no address.
	ag.address = ""

	r.Reconcile(context.Background())
	assert.Equal(t, "", st.Get(store.KeyAgentID), "revocation must clear the persisted agent id")
	assert.True(t, r.Snapshot().Connected, "state transition happens on the following tick")

	r.Reconcile(context.Background())
	snap := r.Snapshot()
	assert.False(t, snap.Connected)
	assert.Equal(t, "", snap.Address)
}

func TestAgentErrorNullifies(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)
	st.Set(store.KeyAgentID, "local")

	r.Reconcile(context.Background())
	require.True(t, r.Snapshot().Connected)

	ag.addressErr = errors.New("agent unreachable")
	r.Reconcile(context.Background())

	snap := r.Snapshot()
	assert.False(t, snap.Connected)
	assert.Equal(t, "", snap.Address)
	assert.Equal(t, "", st.Get(store.KeyAgentID))
	assert.Equal(t, "", st.Get(store.KeyAddress))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)
	st.Set(store.KeyAgentID, "local")
	r.Reconcile(context.Background())
	require.True(t, r.Snapshot().Connected)

	r.Disconnect(context.Background())
	first := r.Snapshot()

	r.Disconnect(context.Background())
	second := r.Snapshot()

	assert.False(t, first.Connected)
	assert.Equal(t, first.Address, second.Address)
	assert.Equal(t, first.AgentID, second.AgentID)
	assert.Equal(t, first.Network, second.Network)
	assert.Equal(t, "", st.Get(store.KeyAgentID))
	assert.Equal(t, "", st.Get(store.KeyAddress))
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)
	st.Set(store.KeyAgentID, "local")

	r.Reconcile(context.Background())
	require.True(t, r.Snapshot().Connected)
	before := r.Snapshot()
	callsBefore := ag.calls()

	// Tick N blocks inside the agent query while holding the lock.
	block := make(chan struct{})
	ag.mu.Lock()
	ag.block = block
	ag.mu.Unlock()

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		r.Reconcile(context.Background())
		close(done)
	}()

	<-started
	require.Eventually(t, func() bool {
		return ag.calls() == callsBefore+1
	}, time.Second, time.Millisecond)

	// Tick N+1 finds the lock held: no agent query, no state change.
	r.Reconcile(context.Background())
	assert.Equal(t, callsBefore+1, ag.calls())
	assert.Equal(t, before, r.Snapshot())

	close(block)
	<-done
}

func TestSkippedTickLeavesStateUntouched(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)
	st.SetGroup(map[string]string{
		store.KeyAgentID: "local",
		store.KeyAddress: testAddress,
		store.KeyNetwork: "TESTNET",
	})

	// While a tick is in flight, a skipped tick performs no transition at
	// all, not even adopting the persisted session.
	r.tickMu.Lock()
	r.Reconcile(context.Background())
	assert.False(t, r.Snapshot().Connected)
	assert.Equal(t, 0, ag.calls())
	r.tickMu.Unlock()

	r.Reconcile(context.Background())
	assert.True(t, r.Snapshot().Connected)
}

func TestConnectPersistsWithoutTouchingState(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)

	require.NoError(t, r.Connect(context.Background(), agent.ByID("local")))

	assert.Equal(t, "local", st.Get(store.KeyAgentID))
	assert.Equal(t, testAddress, st.Get(store.KeyAddress))
	assert.Equal(t, "TESTNET", st.Get(store.KeyNetwork))
	assert.Equal(t, "pass", st.Get(store.KeyNetworkPassphrase))

	// The reconciliation loop owns in-memory transitions.
	assert.False(t, r.Snapshot().Connected)

	r.Reconcile(context.Background())
	assert.True(t, r.Snapshot().Connected)
}

func TestConnectWithNoAddressClearsIdentity(t *testing.T) {
	ag := &fakeAgent{id: "local", netQuery: true, address: ""}
	r, st := newTestReconciler(t, ag)

	require.NoError(t, r.Connect(context.Background(), agent.ByID("local")))

	assert.Equal(t, "", st.Get(store.KeyAgentID))
	assert.Equal(t, "", st.Get(store.KeyAddress))
}

func TestStartRunsInitialTickSynchronously(t *testing.T) {
	ag := &fakeAgent{
		id:       "local",
		netQuery: true,
		address:  testAddress,
		network:  agent.Network{Network: "TESTNET", NetworkPassphrase: "pass"},
	}
	r, st := newTestReconciler(t, ag)
	st.Set(store.KeyAgentID, "local")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Start(ctx)
	assert.True(t, r.Snapshot().Connected, "state must reflect truth before Start returns")
}
