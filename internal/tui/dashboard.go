package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/comunergy/energy-wallet/internal/ledger"
	"github.com/comunergy/energy-wallet/internal/session"
)

type TxStage string

const (
	TxIdle     TxStage = "idle"
	TxBuild    TxStage = "build"
	TxSimulate TxStage = "simulate"
	TxSign     TxStage = "sign"
	TxSubmit   TxStage = "submit"
	TxConfirm  TxStage = "confirm"
	TxComplete TxStage = "complete"
	TxFailed   TxStage = "failed"
)

type SessionUpdate struct {
	Session session.Session
	Pending bool
}

type BalancesUpdate struct {
	Balances ledger.Balances
}

type PaymentsUpdate struct {
	Payments []ledger.PaymentRecord
	Error    error
}

type TxUpdate struct {
	Stage    TxStage
	Progress float64
	Message  string
	Error    error
}

type LogMessage struct {
	Message string
}

type Model struct {
	state       session.Session
	pending     bool
	balances    ledger.Balances
	payments    []ledger.PaymentRecord
	paymentsErr error
	txStage     TxStage
	txProgress  float64
	txMessage   string
	txErr       error
	logs        []string
	spinner     spinner.Model
	progress    progress.Model
	width       int
	height      int
	quit        bool
	onRefresh   func()
}

func NewModel(onRefresh func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pr := progress.New(progress.WithDefaultGradient())

	return Model{
		pending:   true,
		balances:  ledger.Balances{},
		txStage:   TxIdle,
		logs:      []string{},
		spinner:   sp,
		progress:  pr,
		width:     80,
		height:    24,
		onRefresh: onRefresh,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		case "r":
			if m.onRefresh != nil {
				m.onRefresh()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 40

	case SessionUpdate:
		m.state = msg.Session
		m.pending = msg.Pending

	case BalancesUpdate:
		m.balances = msg.Balances

	case PaymentsUpdate:
		m.payments = msg.Payments
		m.paymentsErr = msg.Error

	case TxUpdate:
		m.txStage = msg.Stage
		m.txProgress = msg.Progress
		m.txMessage = msg.Message
		m.txErr = msg.Error

	case LogMessage:
		m.logs = append(m.logs, fmt.Sprintf("[%s] %s",
			time.Now().Format("15:04:05"), msg.Message))
		if len(m.logs) > 10 {
			m.logs = m.logs[len(m.logs)-10:]
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("⚡ Energy Wallet"))
	s.WriteString("\n\n")

	s.WriteString(m.sessionView())
	s.WriteString("\n\n")

	s.WriteString(m.balancesView())
	s.WriteString("\n\n")

	s.WriteString(m.paymentsView())
	s.WriteString("\n\n")

	if m.txStage != TxIdle {
		s.WriteString(m.txView())
		s.WriteString("\n\n")
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Activity\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}
	s.WriteString(logStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))
	s.WriteString(footerStyle.Render("Press 'r' to refresh | 'q' to quit | Logs: logs/energy-wallet_*.log"))

	return s.String()
}

func (m Model) sessionView() string {
	sectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Width(m.width - 2)

	var line string
	switch {
	case m.pending:
		line = fmt.Sprintf("%s Checking wallet...", m.spinner.View())
	case m.state.Connected:
		connectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
		line = connectedStyle.Render(fmt.Sprintf("🔗 Connected  %s  (%s, %s)",
			m.state.ShortAddress, m.state.AgentID, m.state.Network))
	default:
		disconnectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
		line = disconnectedStyle.Render("⏸ Not connected, run 'wallet connect' first")
	}

	return sectionStyle.Render("👛 Session\n" + line)
}

func (m Model) balancesView() string {
	sectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Width(m.width - 2)

	var body strings.Builder
	body.WriteString("💰 Balances\n")

	if len(m.balances) == 0 {
		body.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render("No balances"))
	} else {
		for _, entry := range m.balances {
			label := entry.Code
			if entry.AssetType == "native" {
				label = "XLM"
			} else if label == "" {
				label = truncate(entry.Key, 12)
			}
			body.WriteString(fmt.Sprintf("%-14s %s\n", label, entry.Balance))
		}
	}

	return sectionStyle.Render(body.String())
}

func (m Model) paymentsView() string {
	sectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Width(m.width - 2)

	var body strings.Builder
	body.WriteString("📒 Recent Payments\n")

	switch {
	case m.paymentsErr != nil:
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		body.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v (press 'r' to retry)", m.paymentsErr)))
	case len(m.payments) == 0:
		body.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render("No payments yet"))
	default:
		shown := m.payments
		if len(shown) > 8 {
			shown = shown[:8]
		}
		for _, p := range shown {
			body.WriteString(fmt.Sprintf("%-22s %-18s %-10s %s\n",
				truncate(p.CreatedAt, 22), truncate(p.Type, 18), p.Amount, truncate(p.TransactionHash, 12)))
		}
	}

	return sectionStyle.Render(body.String())
}

func (m Model) txView() string {
	sectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Width(m.width - 2)

	var body strings.Builder
	body.WriteString("🚀 Transaction\n")

	line := fmt.Sprintf("%s %-10s", stageIcon(m.txStage), m.txStage)
	if m.txStage != TxComplete && m.txStage != TxFailed {
		line += " " + m.progress.ViewAs(m.txProgress)
	}
	if m.txErr != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		line += " " + errorStyle.Render(fmt.Sprintf("Error: %v", m.txErr))
	} else if m.txMessage != "" {
		messageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
		line += " " + messageStyle.Render(m.txMessage)
	}
	body.WriteString(line)

	return sectionStyle.Render(body.String())
}

func stageIcon(stage TxStage) string {
	switch stage {
	case TxBuild:
		return "🛠"
	case TxSimulate:
		return "🔍"
	case TxSign:
		return "✍️"
	case TxSubmit:
		return "📤"
	case TxConfirm:
		return "⏳"
	case TxComplete:
		return "✅"
	case TxFailed:
		return "❌"
	default:
		return "⏸"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
