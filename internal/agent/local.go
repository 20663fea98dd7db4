package agent

import (
	"context"
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// LocalAgent signs with a keypair held in memory. It stands in for a browser
// wallet in development and CI; it never rejects a request.
type LocalAgent struct {
	kp          *keypair.Full
	networkName string
	passphrase  string
}

// NewLocal creates a local agent from a secret seed.
func NewLocal(seed, networkName, passphrase string) (*LocalAgent, error) {
	kp, err := keypair.ParseFull(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent seed: %w", err)
	}

	return &LocalAgent{
		kp:          kp,
		networkName: networkName,
		passphrase:  passphrase,
	}, nil
}

// ID identifies the agent kind.
func (a *LocalAgent) ID() string {
	return "local"
}

// SupportsNetworkQuery is true: the local agent always knows its network.
func (a *LocalAgent) SupportsNetworkQuery() bool {
	return true
}

// GetAddress returns the keypair's public account address.
func (a *LocalAgent) GetAddress(ctx context.Context) (Address, error) {
	return Address{Address: a.kp.Address()}, nil
}

// GetNetwork returns the configured network identity.
func (a *LocalAgent) GetNetwork(ctx context.Context) (Network, error) {
	return Network{Network: a.networkName, NetworkPassphrase: a.passphrase}, nil
}

// SignTransaction signs the envelope with the local keypair and returns the
// signed envelope in the same base64 XDR encoding.
func (a *LocalAgent) SignTransaction(ctx context.Context, envelopeXDR string) (string, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return "", fmt.Errorf("failed to parse envelope: %w", err)
	}

	tx, ok := generic.Transaction()
	if !ok {
		return "", fmt.Errorf("envelope is not a simple transaction")
	}

	signed, err := tx.Sign(a.passphrase, a.kp)
	if err != nil {
		return "", fmt.Errorf("failed to sign envelope: %w", err)
	}

	signedXDR, err := signed.Base64()
	if err != nil {
		return "", fmt.Errorf("failed to encode signed envelope: %w", err)
	}

	return signedXDR, nil
}

// Disconnect is a no-op for the local agent.
func (a *LocalAgent) Disconnect(ctx context.Context) error {
	return nil
}
