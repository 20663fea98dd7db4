package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/comunergy/energy-wallet/internal/services"
)

// WalletMonitor runs the dashboard TUI on top of the wallet service,
// pumping session, balance and payment updates into the model.
type WalletMonitor struct {
	service *services.WalletService
	program *tea.Program
	refresh chan struct{}
}

func NewWalletMonitor(service *services.WalletService) *WalletMonitor {
	return &WalletMonitor{
		service: service,
		refresh: make(chan struct{}, 1),
	}
}

// RequestRefresh triggers a balance and payment reload. This is the explicit,
// user-initiated retry path; nothing reloads automatically on failure.
func (wm *WalletMonitor) RequestRefresh() {
	select {
	case wm.refresh <- struct{}{}:
	default:
	}
}

func (wm *WalletMonitor) AddLog(message string) {
	if wm.program != nil {
		wm.program.Send(LogMessage{Message: message})
	}
}

// Run starts the session loop and the TUI, blocking until the user quits or
// ctx is cancelled.
func (wm *WalletMonitor) Run(ctx context.Context) error {
	model := NewModel(wm.RequestRefresh)
	wm.program = tea.NewProgram(model, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Initial reconciliation happens before the first frame, so the first
	// paint reflects the true session state instead of a disconnected flash.
	wm.service.Start(ctx)
	wm.program.Send(SessionUpdate{Session: wm.service.Session(), Pending: false})

	go wm.pump(ctx)

	if _, err := wm.program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	return nil
}

func (wm *WalletMonitor) pump(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastAddress string

	reload := func() {
		snap := wm.service.Session()

		balances := wm.service.RefreshBalances()
		wm.program.Send(BalancesUpdate{Balances: balances})

		payments, err := wm.service.Payments(ctx)
		wm.program.Send(PaymentsUpdate{Payments: payments, Error: err})

		if snap.Connected {
			wm.AddLog(fmt.Sprintf("Refreshed %d balances, %d payments for %s",
				len(balances), len(payments), snap.ShortAddress))
		}
	}

	reload()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wm.refresh:
			reload()
		case <-ticker.C:
			snap := wm.service.Session()
			wm.program.Send(SessionUpdate{Session: snap, Pending: false})

			if snap.Address != lastAddress {
				lastAddress = snap.Address
				if snap.Connected {
					wm.AddLog(fmt.Sprintf("Session connected: %s", snap.ShortAddress))
				} else {
					wm.AddLog("Session disconnected")
				}
				reload()
			}
		}
	}
}
