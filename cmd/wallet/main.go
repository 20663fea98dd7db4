package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/comunergy/energy-wallet/internal/config"
	"github.com/comunergy/energy-wallet/internal/ledger"
	"github.com/comunergy/energy-wallet/internal/logger"
	"github.com/comunergy/energy-wallet/internal/services"
	"github.com/comunergy/energy-wallet/internal/tui"
	"github.com/comunergy/energy-wallet/internal/utils"
)

func newService(cfg *config.Config) *services.WalletService {
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}

	service, err := services.NewWalletService(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize wallet: %v", err)
	}

	return service
}

// startSession runs the initial reconciliation so commands observe the true
// session state, not a default disconnected one.
func startSession(ctx context.Context, service *services.WalletService) {
	service.Start(ctx)
}

func main() {
	logger.Init()
	utils.LoadEnvironment()

	cfg := config.NewConfig()
	cfg.LoadFromEnvironment()

	rootCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Community energy wallet",
		Long:  `wallet is the session and transaction frontend for the community energy marketplace.`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := logger.InitFileOnly(); err != nil {
				logger.Fatal("Failed to initialize file logging: %v", err)
			}
			defer logger.Close()

			service := newService(cfg)
			monitor := tui.NewWalletMonitor(service)
			if err := monitor.Run(cmd.Context()); err != nil {
				logger.Fatal("Dashboard failed: %v", err)
			}
		},
	}

	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect the configured signing agent",
		Run: func(cmd *cobra.Command, args []string) {
			service := newService(cfg)
			if err := service.Connect(cmd.Context()); err != nil {
				logger.Fatal("Failed to connect: %v", err)
			}

			startSession(cmd.Context(), service)
			snap := service.Session()
			if snap.Connected {
				logger.Info("Connected: %s on %s", snap.ShortAddress, snap.Network)
			} else {
				logger.Warn("Agent selected but no address reported yet")
			}
		},
	}

	disconnectCmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the signing agent and clear the session",
		Run: func(cmd *cobra.Command, args []string) {
			service := newService(cfg)
			service.Disconnect(cmd.Context())
			logger.Info("Disconnected")
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session state",
		Run: func(cmd *cobra.Command, args []string) {
			service := newService(cfg)
			startSession(cmd.Context(), service)

			snap := service.Session()
			if snap.Connected {
				logger.Info("Connected: %s (%s, %s)", snap.Address, snap.AgentID, snap.Network)
			} else {
				logger.Info("Not connected")
			}
		},
	}

	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "Show the connected account's asset balances",
		Run: func(cmd *cobra.Command, args []string) {
			service := newService(cfg)
			startSession(cmd.Context(), service)

			if !service.Session().Connected {
				logger.Fatal("No wallet connected")
			}

			balances := service.RefreshBalances()
			if len(balances) == 0 {
				logger.Info("No balances (account may not be funded yet)")
				return
			}
			for key, entry := range balances {
				logger.Info("%-40s %s", key, entry.Balance)
			}
		},
	}

	paymentsCmd := &cobra.Command{
		Use:   "payments",
		Short: "Show the connected account's recent payments",
		Run: func(cmd *cobra.Command, args []string) {
			service := newService(cfg)
			startSession(cmd.Context(), service)

			if !service.Session().Connected {
				logger.Fatal("No wallet connected")
			}

			payments, err := service.Payments(cmd.Context())
			if err != nil {
				if errors.Is(err, ledger.ErrNetworkUnreachable) {
					logger.Fatal("Payment history unavailable, try again: %v", err)
				}
				logger.Fatal("Failed to fetch payments: %v", err)
			}

			if len(payments) == 0 {
				logger.Info("No payments yet")
				return
			}
			for _, p := range payments {
				logger.Info("%s  %-18s  %-12s  %s", p.CreatedAt, p.Type, p.Amount, p.TransactionHash)
			}
		},
	}

	transferCmd := &cobra.Command{
		Use:   "transfer <destination> <amount>",
		Short: "Transfer energy tokens to another account",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			service := newService(cfg)
			startSession(cmd.Context(), service)

			hash, err := service.Transfer(cmd.Context(), args[0], args[1])
			if err != nil {
				logger.Fatal("Transfer failed: %v", err)
			}
			logger.Info("Transfer confirmed: %s", hash)
		},
	}

	burnCmd := &cobra.Command{
		Use:   "burn <amount>",
		Short: "Burn energy tokens from the connected account",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			service := newService(cfg)
			startSession(cmd.Context(), service)

			hash, err := service.Burn(cmd.Context(), args[0])
			if err != nil {
				logger.Fatal("Burn failed: %v", err)
			}
			logger.Info("Burn confirmed: %s", hash)
		},
	}

	tokenBalanceCmd := &cobra.Command{
		Use:   "token-balance [address]",
		Short: "Show the energy token balance of an account",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			service := newService(cfg)
			startSession(cmd.Context(), service)

			address := ""
			if len(args) == 1 {
				address = args[0]
			}

			balance, err := service.TokenBalance(cmd.Context(), address)
			if err != nil {
				logger.Fatal("Failed to read token balance: %v", err)
			}
			logger.Info("Token balance: %s", balance)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfg.HorizonURL, "horizon-url", cfg.HorizonURL, "Ledger query endpoint")
	rootCmd.PersistentFlags().StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "Ledger submission endpoint")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenContract, "token-contract", cfg.TokenContract, "Energy token contract id")
	rootCmd.PersistentFlags().StringVar(&cfg.DefaultAgent, "agent", cfg.DefaultAgent, "Signing agent to use")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(balancesCmd)
	rootCmd.AddCommand(paymentsCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(burnCmd)
	rootCmd.AddCommand(tokenBalanceCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to execute command: %v", err)
	}
}
