package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/comunergy/energy-wallet/internal/logger"
)

// Client talks JSON-RPC 2.0 to a Soroban RPC node for the simulate, submit
// and poll-by-hash operations of the transaction lifecycle. One client is
// shared by all pipeline invocations, which may run concurrently.
type Client struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a new RPC client for the given endpoint URL.
func NewClient(url string) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs a single JSON-RPC round trip and decodes the result.
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	request := rpcRequest{
		JSONRPC: "2.0",
		ID:      int(c.nextID.Add(1)),
		Method:  method,
		Params:  params,
	}

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("error marshaling request body: %w", err)
	}

	start := time.Now()
	logger.Debug("Starting %s call to %s", method, c.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		logger.Error("Call %s failed after %v: %v", method, elapsed, err)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	logger.Debug("Call %s completed in %v with status %d", method, elapsed, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.Error("%s: HTTP error %d: %s", method, resp.StatusCode, string(bodyBytes))
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var response rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		logger.Error("%s: Error decoding response: %v", method, err)
		return fmt.Errorf("error decoding response: %w", err)
	}

	if response.Error != nil {
		return fmt.Errorf("RPC error %d: %s", response.Error.Code, response.Error.Message)
	}

	if result != nil {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("error decoding result: %w", err)
		}
	}

	return nil
}

// SimulateTransaction dry-runs the envelope against current ledger state.
func (c *Client) SimulateTransaction(ctx context.Context, envelopeXDR string) (*SimulateResult, error) {
	params := map[string]string{"transaction": envelopeXDR}

	var result SimulateResult
	if err := c.call(ctx, "simulateTransaction", params, &result); err != nil {
		return nil, fmt.Errorf("failed to simulate transaction: %w", err)
	}

	return &result, nil
}

// SendTransaction submits the signed envelope to the network.
func (c *Client) SendTransaction(ctx context.Context, envelopeXDR string) (*SendResult, error) {
	params := map[string]string{"transaction": envelopeXDR}

	var result SendResult
	if err := c.call(ctx, "sendTransaction", params, &result); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	return &result, nil
}

// GetTransaction polls the network for the final status of a submitted hash.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*GetResult, error) {
	params := map[string]string{"hash": hash}

	var result GetResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}

	return &result, nil
}
