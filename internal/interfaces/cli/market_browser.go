package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"mfl.dev/cli/internal/application/services"
	"mfl.dev/cli/internal/core/plugin"
)

// marketActions is what the browser needs from the services
type marketActions interface {
	Catalogue(ctx context.Context) ([]services.Listing, error)
	Install(ctx context.Context, id plugin.ID) (plugin.Record, error)
	Toggle(ctx context.Context, id plugin.ID) (bool, error)
}

// containerActions adapts the container services to marketActions
type containerActions struct {
	c *CLIContainer
}

func (a containerActions) Catalogue(ctx context.Context) ([]services.Listing, error) {
	return a.c.Marketplace.Catalogue(ctx)
}

func (a containerActions) Install(ctx context.Context, id plugin.ID) (plugin.Record, error) {
	return a.c.Marketplace.Install(ctx, id)
}

func (a containerActions) Toggle(ctx context.Context, id plugin.ID) (bool, error) {
	return a.c.Lifecycle.Toggle(ctx, id)
}

// runMarketBrowser starts the interactive marketplace browser
func runMarketBrowser(ctx context.Context, c *CLIContainer) error {
	model := newMarketModel(ctx, containerActions{c: c})

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("marketplace browser failed: %w", err)
	}
	return nil
}

// marketModel holds the state for the Bubble Tea marketplace browser
type marketModel struct {
	ctx          context.Context
	actions      marketActions
	listings     []services.Listing
	selectedRow  int
	busy         bool
	status       string
	lastUpdate   time.Time
	windowHeight int
	err          error
}

func newMarketModel(ctx context.Context, actions marketActions) marketModel {
	return marketModel{
		ctx:     ctx,
		actions: actions,
		busy:    true,
	}
}

// Init implements the Bubble Tea init method
func (m marketModel) Init() tea.Cmd {
	return m.loadCmd()
}

// Update implements the Bubble Tea update method
func (m marketModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit

		case "up", "k":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			return m, nil

		case "down", "j":
			if m.selectedRow < len(m.listings)-1 {
				m.selectedRow++
			}
			return m, nil

		case "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			return m, m.loadCmd()

		case "enter", "i":
			selected, ok := m.selected()
			if !ok || m.busy {
				return m, nil
			}
			if selected.State != plugin.StateUninstalled {
				m.status = fmt.Sprintf("%s is already installed", selected.Name)
				return m, nil
			}
			m.busy = true
			m.status = fmt.Sprintf("Installing %s...", selected.Name)
			return m, m.installCmd(selected.ID)

		case "t", " ":
			selected, ok := m.selected()
			if !ok || m.busy {
				return m, nil
			}
			if selected.State == plugin.StateUninstalled {
				m.status = fmt.Sprintf("%s is not installed", selected.Name)
				return m, nil
			}
			m.busy = true
			return m, m.toggleCmd(selected.ID)
		}

	case listingsLoadedMsg:
		m.busy = false
		m.err = nil
		m.listings = msg.listings
		m.lastUpdate = time.Now()
		if m.selectedRow >= len(m.listings) {
			m.selectedRow = max(len(m.listings)-1, 0)
		}
		return m, nil

	case actionDoneMsg:
		m.status = msg.status
		return m, m.loadCmd()

	case errMsg:
		m.busy = false
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// View implements the Bubble Tea view method
func (m marketModel) View() string {
	header := m.renderHeader()
	table := m.renderTable()
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, header, table, footer)
}

func (m marketModel) selected() (services.Listing, bool) {
	if m.selectedRow < 0 || m.selectedRow >= len(m.listings) {
		return services.Listing{}, false
	}
	return m.listings[m.selectedRow], true
}

func (m marketModel) renderHeader() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render("MFL Plugin Marketplace")

	installed := 0
	for _, l := range m.listings {
		if l.State != plugin.StateUninstalled {
			installed++
		}
	}
	info := fmt.Sprintf("Plugins: %d | Installed: %d", len(m.listings), installed)

	line2 := "Loading..."
	if !m.lastUpdate.IsZero() {
		line2 = fmt.Sprintf("Last Update: %s", m.lastUpdate.Format("15:04:05"))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", info),
		line2,
		"",
	)
}

func (m marketModel) renderTable() string {
	if m.err != nil {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Render(fmt.Sprintf("\n  Error: %v\n", m.err))
	}
	if len(m.listings) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("\n  No plugins in the marketplace.\n")
	}

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Render(fmt.Sprintf("%-6s │ %-24s │ %-8s │ %-16s │ %-9s │ %s",
			"ID", "NAME", "TYPE", "AUTHOR", "DOWNLOADS", "STATE"))

	rows := []string{header}

	start, end := 0, len(m.listings)
	if maxRows := m.windowHeight - 8; maxRows > 0 && len(m.listings) > maxRows {
		start = min(max(m.selectedRow-maxRows+1, 0), len(m.listings)-maxRows)
		end = start + maxRows
	}

	for i := start; i < end; i++ {
		l := m.listings[i]

		rowStyle := lipgloss.NewStyle()
		if i == m.selectedRow {
			rowStyle = rowStyle.Background(lipgloss.Color("240"))
		}

		row := fmt.Sprintf("%-6s │ %-24s │ %-8s │ %-16s │ %9d │ %s",
			l.ID,
			truncateString(l.Name, 24),
			truncateString(orDash(l.Type), 8),
			truncateString(orDash(l.AuthorName), 16),
			l.Downloads,
			stateStyle(l.State).Render(string(l.State)),
		)
		rows = append(rows, rowStyle.Render(row))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m marketModel) renderFooter() string {
	lines := []string{""}
	if m.status != "" {
		lines = append(lines, m.status)
	}
	lines = append(lines, lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Render("Controls: [↑↓] Navigate | [Enter] Install | [t] Toggle | [r] Refresh | [q] Quit"))
	return strings.Join(lines, "\n")
}

func stateStyle(state plugin.State) lipgloss.Style {
	switch state {
	case plugin.StateEnabled:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	case plugin.StateDisabled:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	}
}

// listingsLoadedMsg is sent when the catalogue is loaded
type listingsLoadedMsg struct {
	listings []services.Listing
}

// actionDoneMsg is sent when an install or toggle finished
type actionDoneMsg struct {
	status string
}

// errMsg is sent when an error occurs
type errMsg struct {
	err error
}

func (m marketModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		listings, err := m.actions.Catalogue(m.ctx)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to load marketplace: %w", err)}
		}
		return listingsLoadedMsg{listings: listings}
	}
}

func (m marketModel) installCmd(id plugin.ID) tea.Cmd {
	return func() tea.Msg {
		rec, err := m.actions.Install(m.ctx, id)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to install plugin %s: %w", id, err)}
		}
		return actionDoneMsg{status: fmt.Sprintf("Installed %s", rec.DisplayName())}
	}
}

func (m marketModel) toggleCmd(id plugin.ID) tea.Cmd {
	return func() tea.Msg {
		enabled, err := m.actions.Toggle(m.ctx, id)
		if err != nil {
			return errMsg{err: fmt.Errorf("failed to toggle plugin %s: %w", id, err)}
		}
		return actionDoneMsg{status: fmt.Sprintf("Plugin %s is now %s", id, enabledWord(enabled))}
	}
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
