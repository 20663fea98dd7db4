package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/comunergy/energy-wallet/internal/agent"
	"github.com/comunergy/energy-wallet/internal/logger"
	"github.com/comunergy/energy-wallet/internal/rpc"
	"github.com/comunergy/energy-wallet/internal/session"
)

// Contract invocations pay a higher flat fee than a simple payment to cover
// execution cost.
const contractInvocationFee = 100_000

// SessionSource provides the pipeline with a consistent snapshot of the
// wallet session.
type SessionSource interface {
	Snapshot() session.Session
}

// Pipeline drives one ledger operation from build through confirmation:
// build, simulate, prepare, sign (delegated to the signing agent), submit,
// confirm. It touches no local state until success; on success the caller is
// expected to invalidate balance and history caches.
type Pipeline struct {
	horizon  horizonclient.ClientInterface
	rpc      *rpc.Client
	registry *agent.Registry
	sessions SessionSource

	contract   string
	passphrase string

	confirmInterval time.Duration
	validity        time.Duration
}

// NewPipeline creates a transaction pipeline for the given token contract.
func NewPipeline(
	horizon horizonclient.ClientInterface,
	rpcClient *rpc.Client,
	registry *agent.Registry,
	sessions SessionSource,
	contract string,
	passphrase string,
	confirmInterval time.Duration,
	validity time.Duration,
) *Pipeline {
	return &Pipeline{
		horizon:         horizon,
		rpc:             rpcClient,
		registry:        registry,
		sessions:        sessions,
		contract:        contract,
		passphrase:      passphrase,
		confirmInterval: confirmInterval,
		validity:        validity,
	}
}

// Transfer sends tokens to another address and returns the transaction hash.
func (p *Pipeline) Transfer(ctx context.Context, to, amount string) (string, error) {
	stroops, err := ParseStroops(amount)
	if err != nil {
		return "", err
	}

	snap, ag, err := p.signer()
	if err != nil {
		return "", err
	}

	from, err := accountScVal(snap.Address)
	if err != nil {
		return "", err
	}
	dest, err := accountScVal(to)
	if err != nil {
		return "", err
	}

	return p.invoke(ctx, snap, ag, "transfer", []xdr.ScVal{from, dest, amountScVal(stroops)})
}

// Burn destroys tokens held by the connected account, e.g. when consuming
// the energy they represent, and returns the transaction hash.
func (p *Pipeline) Burn(ctx context.Context, amount string) (string, error) {
	stroops, err := ParseStroops(amount)
	if err != nil {
		return "", err
	}

	snap, ag, err := p.signer()
	if err != nil {
		return "", err
	}

	from, err := accountScVal(snap.Address)
	if err != nil {
		return "", err
	}

	return p.invoke(ctx, snap, ag, "burn_energy", []xdr.ScVal{from, amountScVal(stroops)})
}

// Balance reads the token balance of an address through a simulated contract
// call; nothing is submitted. An empty address means the connected account.
func (p *Pipeline) Balance(ctx context.Context, address string) (string, error) {
	if address == "" {
		snap := p.sessions.Snapshot()
		if !snap.Connected {
			return "", ErrNotConnected
		}
		address = snap.Address
	}

	seq, err := p.sequence(address)
	if err != nil {
		// An unfunded account holds no tokens; not an error.
		if horizonclient.IsNotFoundError(err) {
			return FormatDisplay(0), nil
		}
		return "", fmt.Errorf("failed to load account %s: %w", address, err)
	}

	holder, err := accountScVal(address)
	if err != nil {
		return "", err
	}

	tx, err := p.buildInvoke(address, seq, "balance", []xdr.ScVal{holder}, txnbuild.MinBaseFee, nil, nil)
	if err != nil {
		return "", err
	}

	envelope, err := tx.Base64()
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	sim, err := p.rpc.SimulateTransaction(ctx, envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSimulationFailed, err)
	}
	if sim.Error != "" || len(sim.Results) == 0 {
		return "", fmt.Errorf("%w: %s", ErrSimulationFailed, sim.Error)
	}

	var retval xdr.ScVal
	if err := xdr.SafeUnmarshalBase64(sim.Results[0].XDR, &retval); err != nil {
		return "", fmt.Errorf("%w: bad return value: %v", ErrSimulationFailed, err)
	}

	stroops, err := i128ToInt64(retval)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSimulationFailed, err)
	}

	return FormatDisplay(stroops), nil
}

// signer checks the preconditions shared by all state-mutating operations:
// a connected session and a live signing agent. No network call happens
// before this passes.
func (p *Pipeline) signer() (session.Session, agent.SigningAgent, error) {
	snap := p.sessions.Snapshot()
	if !snap.Connected {
		return snap, nil, ErrNotConnected
	}

	ag, ok := p.registry.Lookup(snap.AgentID)
	if !ok {
		return snap, nil, ErrNotConnected
	}

	return snap, ag, nil
}

func (p *Pipeline) invoke(ctx context.Context, snap session.Session, ag agent.SigningAgent, fn string, args []xdr.ScVal) (string, error) {
	seq, err := p.sequence(snap.Address)
	if err != nil {
		return "", fmt.Errorf("failed to load account %s: %w", snap.Address, err)
	}

	tx, err := p.buildInvoke(snap.Address, seq, fn, args, contractInvocationFee, nil, nil)
	if err != nil {
		return "", err
	}

	envelope, err := tx.Base64()
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	sim, err := p.rpc.SimulateTransaction(ctx, envelope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSimulationFailed, err)
	}
	if sim.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrSimulationFailed, sim.Error)
	}

	prepared, err := p.prepare(snap.Address, seq, fn, args, sim)
	if err != nil {
		return "", err
	}

	preparedXDR, err := prepared.Base64()
	if err != nil {
		return "", fmt.Errorf("failed to encode prepared envelope: %w", err)
	}

	signedXDR, err := ag.SignTransaction(ctx, preparedXDR)
	if err != nil {
		if errors.Is(err, agent.ErrRejected) {
			return "", fmt.Errorf("%w: %v", ErrSigningRejected, err)
		}
		return "", fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}

	send, err := p.rpc.SendTransaction(ctx, signedXDR)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	}

	switch send.Status {
	case rpc.StatusPending, rpc.StatusDuplicate:
		logger.Debug("Transaction %s accepted as pending", send.Hash)
		return p.confirm(ctx, send.Hash)
	default:
		reason := send.ErrorResultXDR
		if reason == "" {
			reason = send.Status
		}
		return "", fmt.Errorf("%w: %s", ErrSubmissionRejected, reason)
	}
}

// prepare re-builds the simulated envelope with the simulation-derived
// resource costs and authorization entries, ready for signing.
func (p *Pipeline) prepare(address string, seq int64, fn string, args []xdr.ScVal, sim *rpc.SimulateResult) (*txnbuild.Transaction, error) {
	var sorobanData xdr.SorobanTransactionData
	if err := xdr.SafeUnmarshalBase64(sim.TransactionData, &sorobanData); err != nil {
		return nil, fmt.Errorf("%w: bad transaction data: %v", ErrSimulationFailed, err)
	}

	var auth []xdr.SorobanAuthorizationEntry
	if len(sim.Results) > 0 {
		for _, encoded := range sim.Results[0].Auth {
			var entry xdr.SorobanAuthorizationEntry
			if err := xdr.SafeUnmarshalBase64(encoded, &entry); err != nil {
				return nil, fmt.Errorf("%w: bad auth entry: %v", ErrSimulationFailed, err)
			}
			auth = append(auth, entry)
		}
	}

	resourceFee := int64(0)
	if sim.MinResourceFee != "" {
		parsed, err := strconv.ParseInt(sim.MinResourceFee, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad resource fee %q: %v", ErrSimulationFailed, sim.MinResourceFee, err)
		}
		resourceFee = parsed
	}

	ext := xdr.TransactionExt{V: 1, SorobanData: &sorobanData}
	return p.buildInvoke(address, seq, fn, args, contractInvocationFee+resourceFee, &ext, auth)
}

func (p *Pipeline) buildInvoke(address string, seq int64, fn string, args []xdr.ScVal, fee int64, ext *xdr.TransactionExt, auth []xdr.SorobanAuthorizationEntry) (*txnbuild.Transaction, error) {
	contractAddress, err := contractScAddress(p.contract)
	if err != nil {
		return nil, err
	}

	op := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: contractAddress,
				FunctionName:    xdr.ScSymbol(fn),
				Args:            args,
			},
		},
		Auth:          auth,
		SourceAccount: address,
	}
	if ext != nil {
		op.Ext = *ext
	}

	// Each attempt re-reads the sequence, so the source account is built
	// fresh rather than mutated across builds.
	sourceAccount := txnbuild.NewSimpleAccount(address, seq)

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &sourceAccount,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              fee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(p.validity.Seconds())),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope: %w", err)
	}

	return tx, nil
}

func (p *Pipeline) sequence(address string) (int64, error) {
	account, err := p.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	if err != nil {
		return 0, err
	}
	return account.GetSequenceNumber()
}

// confirm polls the network until the transaction leaves NOT_FOUND. The
// envelope's validity window bounds the loop: once the window elapses the
// network rejects the envelope itself, and one extra interval of slack lets
// that rejection surface before the poll gives up.
func (p *Pipeline) confirm(ctx context.Context, hash string) (string, error) {
	maxAttempts := int(p.validity/p.confirmInterval) + 1

	ticker := time.NewTicker(p.confirmInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := p.rpc.GetTransaction(ctx, hash)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrTransactionFailed, err)
		}

		switch result.Status {
		case rpc.StatusSuccess:
			return hash, nil
		case rpc.StatusNotFound:
			// Not in a ledger yet; keep polling.
		default:
			return "", fmt.Errorf("%w: terminal status %s", ErrTransactionFailed, result.Status)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}

	return "", fmt.Errorf("%w: confirmation window elapsed for %s", ErrTransactionFailed, hash)
}
