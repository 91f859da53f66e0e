package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/tune/stage"
	"github.com/fleettune/fleettune/pkg/tune/types"
)

// AlertService drives the warning dialog lifecycle. Both a local poller's
// alerter and a remote fleettuned satisfy it.
type AlertService interface {
	// Next promotes the next queued warning to the active slot.
	Next() (types.WarningEvent, bool)

	// Dismiss clears the active warning for this session.
	Dismiss() error

	// DismissForever clears the active warning and persists the
	// dismissal so it never re-raises.
	DismissForever() error
}

// Options configures the watch TUI.
type Options struct {
	// Initial is the snapshot shown before the first feed message.
	Initial types.Snapshot

	// Feed delivers snapshot and warning updates.
	Feed <-chan broadcaster.Message

	// Alerts is the warning lifecycle service.
	Alerts AlertService

	// StopRun asks the backend to stop the active run. nil hides the
	// stop action.
	StopRun func(context.Context) error
}

// dialogKind identifies the active modal, if any.
type dialogKind int

const (
	dialogNone dialogKind = iota
	dialogWarning
	dialogStop
)

// Messages produced by commands.
type (
	snapshotMsg      types.Snapshot
	warningNoticeMsg struct{}
	warningMsg       types.WarningEvent
	feedClosedMsg    struct{}
	stopDoneMsg      struct{ err error }
)

// Model is the Bubble Tea model for the watch view.
type Model struct {
	snap    types.Snapshot
	feed    <-chan broadcaster.Message
	alerts  AlertService
	stopRun func(context.Context) error

	spinner spinner.Model
	width   int
	height  int

	dialog         dialogKind
	warning        types.WarningEvent
	confirmFocused int // 0 = cancel, 1 = stop
	feedClosed     bool
	stopErr        error
}

// NewModel creates the watch model.
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		snap:    opts.Initial,
		feed:    opts.Feed,
		alerts:  opts.Alerts,
		stopRun: opts.StopRun,
		spinner: s,
		width:   80,
		height:  24,
	}
}

// Init starts the spinner and the feed listener.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.listenFeed()}
	if m.snap.PendingWarnings > 0 {
		cmds = append(cmds, m.promoteWarning())
	}
	return tea.Batch(cmds...)
}

// listenFeed waits for the next feed message.
func (m Model) listenFeed() tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		for {
			msg, ok := <-feed
			if !ok {
				return feedClosedMsg{}
			}
			switch msg.Kind {
			case broadcaster.KindSnapshot:
				if msg.Snapshot != nil {
					return snapshotMsg(*msg.Snapshot)
				}
			case broadcaster.KindWarning:
				return warningNoticeMsg{}
			}
		}
	}
}

// promoteWarning asks the alert service for the next warning to show.
func (m Model) promoteWarning() tea.Cmd {
	alerts := m.alerts
	return func() tea.Msg {
		if alerts == nil {
			return nil
		}
		ev, ok := alerts.Next()
		if !ok {
			return nil
		}
		return warningMsg(ev)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.snap = types.Snapshot(msg)
		cmds := []tea.Cmd{m.listenFeed()}
		if m.dialog == dialogNone && m.snap.PendingWarnings > 0 {
			cmds = append(cmds, m.promoteWarning())
		}
		return m, tea.Batch(cmds...)

	case warningNoticeMsg:
		cmds := []tea.Cmd{m.listenFeed()}
		if m.dialog == dialogNone {
			cmds = append(cmds, m.promoteWarning())
		}
		return m, tea.Batch(cmds...)

	case warningMsg:
		if m.dialog == dialogNone {
			m.dialog = dialogWarning
			m.warning = types.WarningEvent(msg)
		}
		return m, nil

	case feedClosedMsg:
		m.feedClosed = true
		return m, nil

	case stopDoneMsg:
		m.stopErr = msg.err
		return m, nil
	}

	return m, nil
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.dialog {
	case dialogWarning:
		switch key {
		case "d", "enter", "esc":
			if m.alerts != nil {
				_ = m.alerts.Dismiss()
			}
			m.dialog = dialogNone
			return m, m.promoteWarning()
		case "x":
			if m.alerts != nil {
				_ = m.alerts.DismissForever()
			}
			m.dialog = dialogNone
			return m, m.promoteWarning()
		case "q":
			return m, tea.Quit
		}

	case dialogStop:
		switch key {
		case "q", "esc", "n":
			m.dialog = dialogNone
		case "left", "h":
			m.confirmFocused = 0
		case "right", "l":
			m.confirmFocused = 1
		case "tab":
			m.confirmFocused = (m.confirmFocused + 1) % 2
		case "enter":
			if m.confirmFocused == 1 {
				return m.startStop()
			}
			m.dialog = dialogNone
		case "y":
			return m.startStop()
		}

	case dialogNone:
		switch key {
		case "q", "esc":
			return m, tea.Quit
		case "s":
			if m.stopRun != nil && m.snap.Running {
				m.dialog = dialogStop
				m.confirmFocused = 0
			}
		}
	}

	return m, nil
}

// startStop fires the stop request and closes the dialog.
func (m Model) startStop() (tea.Model, tea.Cmd) {
	m.dialog = dialogNone
	stop := m.stopRun
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return stopDoneMsg{err: stop(ctx)}
	}
}

// View renders the watch screen.
func (m Model) View() string {
	main := m.renderMain()

	switch m.dialog {
	case dialogWarning:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.renderWarningDialog())
	case dialogStop:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.renderStopDialog())
	}
	return main
}

// renderMain renders the monitoring view.
func (m Model) renderMain() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderProgress(contentWidth))
	b.WriteString("\n")

	b.WriteString(m.renderStages())
	b.WriteString("\n")

	if len(m.snap.PSULoads) > 0 {
		b.WriteString(m.renderPSUs(contentWidth))
		b.WriteString("\n")
	}

	if m.stopErr != nil {
		b.WriteString(errorTextStyle.Render(fmt.Sprintf("  Stop failed: %v", m.stopErr)))
		b.WriteString("\n")
	}
	if m.feedClosed {
		b.WriteString(errorTextStyle.Render("  Update feed lost; showing last known state"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

// renderHeader renders the run state line.
func (m Model) renderHeader() string {
	if !m.snap.Running {
		return titleStyle.Render("  Fleettune") + mutedTextStyle.Render("  no active tuning run")
	}

	parts := []string{
		titleStyle.Render("  Fleettune"),
		m.spinner.View(),
		valueStyle.Render(m.snap.Mode.String()),
	}
	if m.snap.Device != "" {
		parts = append(parts, mutedTextStyle.Render("on"), valueStyle.Render(m.snap.Device))
	}
	return strings.Join(parts, " ")
}

// renderProgress renders the reconciled progress bar.
func (m Model) renderProgress(contentWidth int) string {
	prog := m.snap.Progress

	var b strings.Builder
	if prog.Planned > 0 {
		b.WriteString(fmt.Sprintf("  Progress: %s / %s tests",
			humanize.Comma(int64(prog.Completed)), humanize.Comma(int64(prog.Planned))))
	} else {
		b.WriteString("  Progress:")
	}
	b.WriteString("\n")

	barWidth := contentWidth - 10
	if barWidth < 10 {
		barWidth = 10
	}
	filled := prog.Percent * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	bar := "  " + progressFillStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", empty))
	b.WriteString(bar)
	b.WriteString(fmt.Sprintf(" %d%%", prog.Percent))
	b.WriteString("\n")

	return b.String()
}

// renderStages renders the five-stage workflow checklist.
func (m Model) renderStages() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Workflow"))
	b.WriteString("\n")

	done := make(map[string]bool, len(m.snap.Stage.CompletedLabels))
	for _, label := range m.snap.Stage.CompletedLabels {
		done[label] = true
	}

	for _, s := range stage.Stages {
		switch {
		case done[s.Label]:
			b.WriteString(successTextStyle.Render("    ✓ " + s.Label))
		case s.Label == m.snap.Stage.ActiveLabel && m.snap.Running:
			b.WriteString(titleStyle.Render("    ▶ " + s.Label))
		default:
			b.WriteString(mutedTextStyle.Render("    · " + s.Label))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderPSUs renders the power budget table.
func (m Model) renderPSUs(contentWidth int) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Power budget"))
	b.WriteString("\n")

	for _, load := range m.snap.PSULoads {
		name := load.PSU.Name
		if name == "" {
			name = "PSU " + load.PSU.ID
		}

		loadText := fmt.Sprintf("%.0f%% of %sW", load.LoadPercent,
			humanize.FtoaWithDigits(load.Wattage, 0))
		styled := successTextStyle.Render(loadText)
		switch {
		case load.LoadPercent >= 80:
			styled = errorTextStyle.Render(loadText)
		case load.LoadPercent >= 70:
			styled = warningTextStyle.Render(loadText)
		}

		line := fmt.Sprintf("    %s  %s  %s",
			psuNameStyle.Render(truncate(name, 20)),
			styled,
			mutedTextStyle.Render(fmt.Sprintf("%d device(s)", len(load.Assigned))))
		b.WriteString(line)

		if load.Hint != "" {
			b.WriteString("\n")
			b.WriteString(mutedTextStyle.Render("      " + truncate(load.Hint, contentWidth-8)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderFooter renders key hints.
func (m Model) renderFooter() string {
	hints := []string{
		keyStyle.Render("[q]") + " " + keyDescStyle.Render("quit"),
	}
	if m.stopRun != nil && m.snap.Running {
		hints = append(hints, keyStyle.Render("[s]")+" "+keyDescStyle.Render("stop run"))
	}
	if m.snap.PendingWarnings > 0 {
		hints = append(hints, warningTextStyle.Render(
			fmt.Sprintf("%d warning(s) pending", m.snap.PendingWarnings)))
	}
	return "  " + strings.Join(hints, "  ")
}

// renderWarningDialog renders the active warning modal.
func (m Model) renderWarningDialog() string {
	box := dialogBoxStyle
	title := dialogTitleStyle
	if m.warning.Level == types.LevelDanger {
		box = dangerDialogBoxStyle
		title = dangerDialogTitleStyle
	}

	var b strings.Builder
	b.WriteString(title.Width(48).Render(m.warning.Title))
	b.WriteString("\n\n")
	b.WriteString(dialogTextStyle.Render(m.warning.Message))
	b.WriteString("\n\n")
	b.WriteString(keyStyle.Render("[d]") + " " + keyDescStyle.Render("dismiss") + "   " +
		keyStyle.Render("[x]") + " " + keyDescStyle.Render("dismiss forever"))

	return box.Render(b.String())
}

// renderStopDialog renders the stop confirmation modal.
func (m Model) renderStopDialog() string {
	cancelBtn := inactiveButtonStyle.Render("Cancel")
	stopBtn := inactiveButtonStyle.Render("Stop run")
	if m.confirmFocused == 0 {
		cancelBtn = activeButtonStyle.Background(subtleColor).Render("Cancel")
	} else {
		stopBtn = activeButtonStyle.Render("Stop run")
	}

	var b strings.Builder
	b.WriteString(dialogTitleStyle.Width(48).Render("Stop tuning run?"))
	b.WriteString("\n\n")
	b.WriteString(dialogTextStyle.Render("The backend will abort the active sweep. Completed\ntest points are kept."))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, cancelBtn, "  ", stopBtn))

	return dialogBoxStyle.Render(b.String())
}

// Run starts the watch TUI and blocks until it exits.
func Run(opts Options) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
