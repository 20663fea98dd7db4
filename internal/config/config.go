package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Ledger endpoints
	HorizonURL string
	RPCURL     string

	// Network settings
	NetworkName       string
	NetworkPassphrase string

	// Token settings
	TokenContract string

	// Session settings
	PollInterval time.Duration
	DefaultAgent string
	AgentSeed    string

	// Transaction settings
	ConfirmInterval time.Duration
	TxValidity      time.Duration

	// Display settings
	Locale        string
	PaymentsLimit int
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		HorizonURL:        "https://horizon-testnet.stellar.org",
		RPCURL:            "https://soroban-testnet.stellar.org",
		NetworkName:       "TESTNET",
		NetworkPassphrase: "Test SDF Network ; September 2015",
		PollInterval:      2 * time.Second,
		DefaultAgent:      "local",
		ConfirmInterval:   time.Second,
		TxValidity:        300 * time.Second,
		Locale:            "en",
		PaymentsLimit:     50,
	}
}

// LoadFromEnvironment loads configuration from environment variables
func (c *Config) LoadFromEnvironment() {
	if horizonURL := os.Getenv("ENERGY_WALLET_HORIZON_URL"); horizonURL != "" {
		c.HorizonURL = horizonURL
	}

	if rpcURL := os.Getenv("ENERGY_WALLET_RPC_URL"); rpcURL != "" {
		c.RPCURL = rpcURL
	}

	if name := os.Getenv("ENERGY_WALLET_NETWORK"); name != "" {
		c.NetworkName = name
	}

	if passphrase := os.Getenv("ENERGY_WALLET_NETWORK_PASSPHRASE"); passphrase != "" {
		c.NetworkPassphrase = passphrase
	}

	if contract := os.Getenv("ENERGY_WALLET_TOKEN_CONTRACT"); contract != "" {
		c.TokenContract = contract
	}

	if interval := os.Getenv("ENERGY_WALLET_POLL_INTERVAL"); interval != "" {
		if i, err := strconv.Atoi(interval); err == nil {
			c.PollInterval = time.Duration(i) * time.Millisecond
		}
	}

	if agent := os.Getenv("ENERGY_WALLET_AGENT"); agent != "" {
		c.DefaultAgent = agent
	}

	if seed := os.Getenv("ENERGY_WALLET_AGENT_SEED"); seed != "" {
		c.AgentSeed = seed
	}

	if locale := os.Getenv("ENERGY_WALLET_LOCALE"); locale != "" {
		c.Locale = locale
	}

	if limit := os.Getenv("ENERGY_WALLET_PAYMENTS_LIMIT"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			c.PaymentsLimit = l
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HorizonURL == "" {
		return fmt.Errorf("horizon URL cannot be empty")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL cannot be empty")
	}

	if c.NetworkPassphrase == "" {
		return fmt.Errorf("network passphrase cannot be empty")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %v", c.PollInterval)
	}

	if c.ConfirmInterval <= 0 {
		return fmt.Errorf("confirm interval must be positive, got: %v", c.ConfirmInterval)
	}

	if c.PaymentsLimit <= 0 || c.PaymentsLimit > 200 {
		return fmt.Errorf("payments limit must be between 1 and 200, got: %d", c.PaymentsLimit)
	}

	return nil
}
