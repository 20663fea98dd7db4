package ledger

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/comunergy/energy-wallet/internal/logger"
)

// BalanceEntry is one asset balance of an account, formatted for display.
type BalanceEntry struct {
	Key       string
	AssetType string
	Code      string
	Issuer    string
	Balance   string
}

// Balances maps asset keys to entries. Keys: "xlm" for the native asset, the
// pool id for liquidity pool shares, "CODE:ISSUER" otherwise.
type Balances map[string]BalanceEntry

// BalanceCache fetches and holds the current account's asset balances.
// Balances are best-effort display data: every failure degrades to an empty
// map rather than an error.
type BalanceCache struct {
	horizon horizonclient.ClientInterface
	printer *message.Printer

	mu      sync.RWMutex
	entries Balances
	address string
}

// NewBalanceCache creates a balance cache against the given Horizon endpoint.
func NewBalanceCache(horizonURL, locale string) *BalanceCache {
	client := &horizonclient.Client{
		HorizonURL: horizonURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
	return NewBalanceCacheWithClient(client, locale)
}

// NewBalanceCacheWithClient creates a balance cache with an explicit Horizon client.
func NewBalanceCacheWithClient(client horizonclient.ClientInterface, locale string) *BalanceCache {
	return &BalanceCache{
		horizon: client,
		printer: message.NewPrinter(language.Make(locale)),
		entries: Balances{},
	}
}

// Refresh fetches the account's balances and replaces the cached map
// wholesale, so entries for fully withdrawn assets never linger. An account
// the endpoint does not know yet (new, unfunded) is a valid empty state.
func (c *BalanceCache) Refresh(address string) Balances {
	account, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	if err != nil {
		if !horizonclient.IsNotFoundError(err) {
			logger.Error("Failed to fetch balances for %s: %v", address, err)
		}
		return c.replace(address, Balances{})
	}

	mapped := make(Balances, len(account.Balances))
	for _, b := range account.Balances {
		var key string
		switch b.Type {
		case "native":
			key = "xlm"
		case "liquidity_pool_shares":
			key = b.LiquidityPoolId
		default:
			key = b.Code + ":" + b.Issuer
		}

		mapped[key] = BalanceEntry{
			Key:       key,
			AssetType: b.Type,
			Code:      b.Code,
			Issuer:    b.Issuer,
			Balance:   c.formatAmount(b.Balance),
		}
	}

	return c.replace(address, mapped)
}

// Current returns the cached balances and the address they belong to.
func (c *BalanceCache) Current() (Balances, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make(Balances, len(c.entries))
	for key, entry := range c.entries {
		entries[key] = entry
	}
	return entries, c.address
}

// XLM returns the formatted native balance, or the empty string.
func (c *BalanceCache) XLM() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries["xlm"].Balance
}

// Invalidate clears the cache, e.g. after a disconnect or a successful
// submission that made the cached view stale.
func (c *BalanceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = Balances{}
	c.address = ""
}

func (c *BalanceCache) replace(address string, entries Balances) Balances {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.address = address
	return entries
}

// formatAmount renders a decimal amount for locale-aware display. The raw
// value is not retained; the cache is display-only.
func (c *BalanceCache) formatAmount(raw string) string {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return c.printer.Sprint(number.Decimal(value))
}
