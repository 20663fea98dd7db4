package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunergy/energy-wallet/internal/agent"
	"github.com/comunergy/energy-wallet/internal/logger"
	"github.com/comunergy/energy-wallet/internal/rpc"
	"github.com/comunergy/energy-wallet/internal/session"
)

func init() {
	logger.Init()
}

const testPassphrase = "Test SDF Network ; September 2015"

var testContract = strkey.MustEncode(strkey.VersionByteContract, make([]byte, 32))

type staticSessions struct {
	snap session.Session
}

func (s staticSessions) Snapshot() session.Session { return s.snap }

type pipelineAgent struct {
	signErr error

	mu        sync.Mutex
	signedXDR string
}

func (a *pipelineAgent) ID() string                 { return "local" }
func (a *pipelineAgent) SupportsNetworkQuery() bool { return true }

func (a *pipelineAgent) GetAddress(ctx context.Context) (agent.Address, error) {
	return agent.Address{}, nil
}

func (a *pipelineAgent) GetNetwork(ctx context.Context) (agent.Network, error) {
	return agent.Network{}, nil
}

func (a *pipelineAgent) SignTransaction(ctx context.Context, envelopeXDR string) (string, error) {
	if a.signErr != nil {
		return "", a.signErr
	}
	a.mu.Lock()
	a.signedXDR = envelopeXDR
	a.mu.Unlock()
	return envelopeXDR, nil
}

func (a *pipelineAgent) Disconnect(ctx context.Context) error { return nil }

func (a *pipelineAgent) signed() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signedXDR
}

// rpcFake is an in-process JSON-RPC node. onCall maps a method and its
// per-method call count to the result payload.
type rpcFake struct {
	t      *testing.T
	onCall func(method string, count int) interface{}

	mu    sync.Mutex
	calls map[string]int
}

func newRPCFake(t *testing.T, onCall func(method string, count int) interface{}) (*rpcFake, *rpc.Client) {
	f := &rpcFake{t: t, onCall: onCall, calls: map[string]int{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, rpc.NewClient(srv.URL)
}

func (f *rpcFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int               `json:"id"`
		Method string            `json:"method"`
		Params map[string]string `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		f.t.Errorf("bad rpc request: %v", err)
		return
	}

	f.mu.Lock()
	f.calls[req.Method]++
	count := f.calls[req.Method]
	f.mu.Unlock()

	result := f.onCall(req.Method, count)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	})
}

func (f *rpcFake) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func newHorizonClient(t *testing.T, h http.Handler) *horizonclient.Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &horizonclient.Client{HorizonURL: srv.URL, HTTP: srv.Client()}
}

func fundedAccountHandler(requests *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			atomic.AddInt32(requests, 1)
		}
		fmt.Fprint(w, `{"id":"acc","account_id":"acc","sequence":"100"}`)
	}
}

func missingAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"type":"https://stellar.org/horizon-errors/not_found","title":"Resource Missing","status":404}`)
	}
}

func simSuccess(t *testing.T, retStroops int64) rpc.SimulateResult {
	t.Helper()

	data, err := xdr.MarshalBase64(xdr.SorobanTransactionData{})
	require.NoError(t, err)
	ret, err := xdr.MarshalBase64(amountScVal(retStroops))
	require.NoError(t, err)

	return rpc.SimulateResult{
		TransactionData: data,
		MinResourceFee:  "5000",
		Results:         []rpc.HostResult{{XDR: ret}},
		LatestLedger:    1000,
	}
}

func newTestPipeline(
	t *testing.T,
	horizon horizonclient.ClientInterface,
	rpcClient *rpc.Client,
	ag *pipelineAgent,
	address string,
) *Pipeline {
	t.Helper()

	registry := agent.NewRegistry()
	if ag != nil {
		registry.Register(ag)
	}

	snap := session.Session{}
	if address != "" {
		snap = session.Session{AgentID: "local", Address: address, Connected: true}
	}

	return NewPipeline(horizon, rpcClient, registry, staticSessions{snap: snap},
		testContract, testPassphrase, 5*time.Millisecond, 100*time.Millisecond)
}

func TestTransferConfirmsAfterPending(t *testing.T) {
	source := keypair.MustRandom().Address()
	dest := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, nil)
	fake.onCall = func(method string, count int) interface{} {
		switch method {
		case "simulateTransaction":
			return simSuccess(t, 0)
		case "sendTransaction":
			return rpc.SendResult{Status: rpc.StatusPending, Hash: "deadbeef"}
		case "getTransaction":
			if count == 1 {
				return rpc.GetResult{Status: rpc.StatusNotFound}
			}
			return rpc.GetResult{Status: rpc.StatusSuccess}
		default:
			fake.t.Errorf("unexpected rpc method %s", method)
			return nil
		}
	}

	ag := &pipelineAgent{}
	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, ag, source)

	hash, err := p.Transfer(context.Background(), dest, "2.5")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", hash)
	assert.Equal(t, 1, fake.count("simulateTransaction"))
	assert.Equal(t, 1, fake.count("sendTransaction"))
	assert.Equal(t, 2, fake.count("getTransaction"))

	// The signed envelope carries the simulation-derived resource fee on top
	// of the flat invocation fee.
	generic, err := txnbuild.TransactionFromXDR(ag.signed())
	require.NoError(t, err)
	tx, ok := generic.Transaction()
	require.True(t, ok)
	assert.Equal(t, int64(contractInvocationFee+5000), tx.BaseFee())
	require.Len(t, tx.Operations(), 1)
}

func TestTransferNotConnectedMakesNoNetworkCalls(t *testing.T) {
	var horizonRequests int32
	fake, rpcClient := newRPCFake(t, func(method string, count int) interface{} {
		t.Errorf("unexpected rpc call %s", method)
		return nil
	})

	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(&horizonRequests)), rpcClient, &pipelineAgent{}, "")

	_, err := p.Transfer(context.Background(), keypair.MustRandom().Address(), "1")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, int32(0), atomic.LoadInt32(&horizonRequests))
	assert.Equal(t, 0, fake.count("simulateTransaction"))
}

func TestTransferUnknownAgentNotConnected(t *testing.T) {
	fake, rpcClient := newRPCFake(t, func(method string, count int) interface{} {
		t.Errorf("unexpected rpc call %s", method)
		return nil
	})

	// Session claims a connection but no agent with that id is registered.
	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, nil, keypair.MustRandom().Address())

	_, err := p.Transfer(context.Background(), keypair.MustRandom().Address(), "1")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, fake.count("simulateTransaction"))
}

func TestSigningRejectionStopsBeforeSubmission(t *testing.T) {
	source := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, nil)
	fake.onCall = func(method string, count int) interface{} {
		switch method {
		case "simulateTransaction":
			return simSuccess(t, 0)
		default:
			fake.t.Errorf("rejected transaction must not reach %s", method)
			return nil
		}
	}

	ag := &pipelineAgent{signErr: agent.ErrRejected}
	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, ag, source)

	_, err := p.Burn(context.Background(), "1")
	assert.ErrorIs(t, err, ErrSigningRejected)
	assert.Equal(t, 0, fake.count("sendTransaction"))
}

func TestAgentFailureDuringSigning(t *testing.T) {
	source := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, nil)
	fake.onCall = func(method string, count int) interface{} {
		if method == "simulateTransaction" {
			return simSuccess(t, 0)
		}
		fake.t.Errorf("unexpected rpc method %s", method)
		return nil
	}

	ag := &pipelineAgent{signErr: agent.ErrNotInstalled}
	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, ag, source)

	_, err := p.Burn(context.Background(), "1")
	assert.ErrorIs(t, err, ErrAgentUnavailable)
}

func TestSimulationFailureSurfaces(t *testing.T) {
	source := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, func(method string, count int) interface{} {
		if method == "simulateTransaction" {
			return rpc.SimulateResult{Error: "host function failed"}
		}
		t.Errorf("failed simulation must not reach %s", method)
		return nil
	})

	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, &pipelineAgent{}, source)

	_, err := p.Transfer(context.Background(), keypair.MustRandom().Address(), "1")
	assert.ErrorIs(t, err, ErrSimulationFailed)
	assert.Contains(t, err.Error(), "host function failed")
	assert.Equal(t, 0, fake.count("sendTransaction"))
}

func TestSubmissionRejection(t *testing.T) {
	source := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, nil)
	fake.onCall = func(method string, count int) interface{} {
		switch method {
		case "simulateTransaction":
			return simSuccess(t, 0)
		case "sendTransaction":
			return rpc.SendResult{Status: rpc.StatusError, ErrorResultXDR: "AAAA"}
		default:
			fake.t.Errorf("rejected submission must not reach %s", method)
			return nil
		}
	}

	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, &pipelineAgent{}, source)

	_, err := p.Burn(context.Background(), "1")
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	assert.Equal(t, 0, fake.count("getTransaction"))
}

func TestTerminalFailureDuringConfirm(t *testing.T) {
	source := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, nil)
	fake.onCall = func(method string, count int) interface{} {
		switch method {
		case "simulateTransaction":
			return simSuccess(t, 0)
		case "sendTransaction":
			return rpc.SendResult{Status: rpc.StatusPending, Hash: "deadbeef"}
		case "getTransaction":
			return rpc.GetResult{Status: rpc.StatusFailed}
		default:
			fake.t.Errorf("unexpected rpc method %s", method)
			return nil
		}
	}

	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, &pipelineAgent{}, source)

	_, err := p.Burn(context.Background(), "1")
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Equal(t, 1, fake.count("getTransaction"))
}

func TestConfirmationBoundedByValidityWindow(t *testing.T) {
	source := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, nil)
	fake.onCall = func(method string, count int) interface{} {
		switch method {
		case "simulateTransaction":
			return simSuccess(t, 0)
		case "sendTransaction":
			return rpc.SendResult{Status: rpc.StatusPending, Hash: "deadbeef"}
		case "getTransaction":
			return rpc.GetResult{Status: rpc.StatusNotFound}
		default:
			fake.t.Errorf("unexpected rpc method %s", method)
			return nil
		}
	}

	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, &pipelineAgent{}, source)

	_, err := p.Burn(context.Background(), "1")
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.Contains(t, err.Error(), "confirmation window elapsed")

	// validity / confirmInterval polls plus one slack attempt.
	assert.Equal(t, 21, fake.count("getTransaction"))
}

func TestBalanceDecodesSimulatedReturn(t *testing.T) {
	holder := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, nil)
	fake.onCall = func(method string, count int) interface{} {
		if method == "simulateTransaction" {
			return simSuccess(t, 1_234_500_000)
		}
		fake.t.Errorf("balance query must not reach %s", method)
		return nil
	}

	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, &pipelineAgent{}, "")

	balance, err := p.Balance(context.Background(), holder)
	require.NoError(t, err)
	assert.Equal(t, "123.45", balance)
	assert.Equal(t, 0, fake.count("sendTransaction"))
}

func TestBalanceUnfundedAccountIsZero(t *testing.T) {
	holder := keypair.MustRandom().Address()

	fake, rpcClient := newRPCFake(t, func(method string, count int) interface{} {
		t.Errorf("unfunded account must not reach %s", method)
		return nil
	})

	p := newTestPipeline(t, newHorizonClient(t, missingAccountHandler()), rpcClient, &pipelineAgent{}, "")

	balance, err := p.Balance(context.Background(), holder)
	require.NoError(t, err)
	assert.Equal(t, "0.00", balance)
	assert.Equal(t, 0, fake.count("simulateTransaction"))
}

func TestBalanceWithoutSessionOrAddress(t *testing.T) {
	_, rpcClient := newRPCFake(t, func(method string, count int) interface{} {
		t.Errorf("unexpected rpc call %s", method)
		return nil
	})

	p := newTestPipeline(t, newHorizonClient(t, fundedAccountHandler(nil)), rpcClient, &pipelineAgent{}, "")

	_, err := p.Balance(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotConnected)
}
