package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/comunergy/energy-wallet/internal/logger"
)

// ErrNetworkUnreachable marks a query-endpoint failure. Callers degrade to an
// empty view and offer an explicit retry; nothing retries automatically.
var ErrNetworkUnreachable = errors.New("ledger query endpoint unreachable")

// PaymentRecord is one historical payment as returned by the query endpoint.
// Records are immutable and arrive in descending ledger close time order.
type PaymentRecord struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	CreatedAt       string `json:"created_at"`
	TransactionHash string `json:"transaction_hash"`
	AssetType       string `json:"asset_type"`
	AssetCode       string `json:"asset_code,omitempty"`
	AssetIssuer     string `json:"asset_issuer,omitempty"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	Amount          string `json:"amount,omitempty"`
	SourceAmount    string `json:"source_amount,omitempty"`
}

type paymentsPage struct {
	Embedded struct {
		Records []PaymentRecord `json:"records"`
	} `json:"_embedded"`
}

// PaymentFetcher fetches bounded pages of payment history for an account.
type PaymentFetcher struct {
	horizonURL string
	httpClient *http.Client
	limit      int
}

// NewPaymentFetcher creates a fetcher with the given page size.
func NewPaymentFetcher(horizonURL string, limit int) *PaymentFetcher {
	return &PaymentFetcher{
		horizonURL: horizonURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limit:      limit,
	}
}

// Fetch returns the most recent payments for the address, newest first, as
// ordered by the endpoint. A 404 means the account is not funded yet and
// yields an empty list; any other failure is ErrNetworkUnreachable.
func (f *PaymentFetcher) Fetch(ctx context.Context, address string) ([]PaymentRecord, error) {
	url := fmt.Sprintf("%s/accounts/%s/payments?order=desc&limit=%d", f.horizonURL, address, f.limit)

	start := time.Now()
	logger.Debug("Starting request to %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		logger.Error("Request failed after %v: %v", time.Since(start), err)
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	logger.Debug("Request to %s completed in %v with status %d", url, time.Since(start), resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		return []PaymentRecord{}, nil
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error("%s: HTTP error %d", url, resp.StatusCode)
		return nil, fmt.Errorf("%w: HTTP error %d", ErrNetworkUnreachable, resp.StatusCode)
	}

	var page paymentsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		logger.Error("%s: Error decoding response: %v", url, err)
		return nil, fmt.Errorf("%w: error decoding response: %v", ErrNetworkUnreachable, err)
	}

	if page.Embedded.Records == nil {
		return []PaymentRecord{}, nil
	}

	return page.Embedded.Records, nil
}
