package agent

import (
	"context"
	"errors"
)

// Signing agents hold key material outside this process (a browser extension,
// a hardware device, a dev keypair) and expose only this query/sign protocol.

var (
	// ErrNotInstalled means the agent is not present at all. Callers treat
	// this as a silent disconnect rather than a loggable failure.
	ErrNotInstalled = errors.New("signing agent not installed")

	// ErrRejected means the human operator declined the request inside the agent.
	ErrRejected = errors.New("request rejected in signing agent")
)

// Address is the agent's report of its active account.
type Address struct {
	Address string
}

// Network is the agent's report of the network it is configured for.
type Network struct {
	Network           string
	NetworkPassphrase string
}

// SigningAgent is the protocol a connected wallet exposes. All calls suspend
// and any of them may fail or be rejected by the operator.
type SigningAgent interface {
	ID() string
	GetAddress(ctx context.Context) (Address, error)
	GetNetwork(ctx context.Context) (Network, error)
	SignTransaction(ctx context.Context, envelopeXDR string) (string, error)
	Disconnect(ctx context.Context) error

	// SupportsNetworkQuery reports whether GetNetwork is meaningful for this
	// agent kind. Agents without it keep their cached session state between
	// reconciliations instead of being re-queried.
	SupportsNetworkQuery() bool
}

// Selector picks one agent out of the available set.
type Selector func(available []SigningAgent) (SigningAgent, error)

// Registry holds the known signing agents keyed by id.
type Registry struct {
	agents map[string]SigningAgent
	order  []string
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]SigningAgent)}
}

// Register adds an agent. Registering the same id twice replaces it.
func (r *Registry) Register(a SigningAgent) {
	if _, exists := r.agents[a.ID()]; !exists {
		r.order = append(r.order, a.ID())
	}
	r.agents[a.ID()] = a
}

// Lookup returns the agent with the given id.
func (r *Registry) Lookup(id string) (SigningAgent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Available returns the registered agents in registration order.
func (r *Registry) Available() []SigningAgent {
	available := make([]SigningAgent, 0, len(r.order))
	for _, id := range r.order {
		available = append(available, r.agents[id])
	}
	return available
}

// Select runs the selector over the available agents.
func (r *Registry) Select(selector Selector) (SigningAgent, error) {
	if len(r.order) == 0 {
		return nil, ErrNotInstalled
	}
	return selector(r.Available())
}

// ByID returns a selector that picks the agent with the given id.
func ByID(id string) Selector {
	return func(available []SigningAgent) (SigningAgent, error) {
		for _, a := range available {
			if a.ID() == id {
				return a, nil
			}
		}
		return nil, ErrNotInstalled
	}
}
