// Package output renders monitor snapshots for non-interactive display:
// a styled terminal view and a machine-readable JSON form.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/fleettune/fleettune/pkg/tune/stage"
	"github.com/fleettune/fleettune/pkg/tune/types"
)

// RenderPretty writes a styled snapshot view to w.
func RenderPretty(w io.Writer, snap types.Snapshot) error {
	var b strings.Builder

	b.WriteString(renderHeader(snap))
	b.WriteString("\n")
	b.WriteString(renderStages(snap.Stage))

	if len(snap.PSULoads) > 0 {
		b.WriteString("\n")
		b.WriteString(renderPSUs(snap.PSULoads))
	}

	if snap.PendingWarnings > 0 {
		b.WriteString("\n")
		b.WriteString(WarningStyle.Render(
			fmt.Sprintf("%d pending warning(s); run `fleettune watch` to review", snap.PendingWarnings)))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderHeader builds the run summary box.
func renderHeader(snap types.Snapshot) string {
	var lines []string

	stateLabel := LabelStyle.Render("Run:")
	state := SuccessStyle.Render("active")
	if !snap.Running {
		state = MutedStyle.Render("idle")
	}
	mode := ""
	if snap.Running {
		mode = "  " + LabelStyle.Render("Mode:") + " " + ValueStyle.Render(snap.Mode.String())
	}
	device := ""
	if snap.Device != "" {
		device = "  " + LabelStyle.Render("Device:") + " " + ValueStyle.Render(snap.Device)
	}
	lines = append(lines, fmt.Sprintf("%s %s%s%s", stateLabel, state, mode, device))

	prog := snap.Progress
	progressLabel := LabelStyle.Render("Progress:")
	var progressValue string
	if prog.Planned > 0 {
		progressValue = ValueStyle.Render(fmt.Sprintf("%s / %s tests (%d%%)",
			humanize.Comma(int64(prog.Completed)), humanize.Comma(int64(prog.Planned)), prog.Percent))
	} else {
		progressValue = ValueStyle.Render(fmt.Sprintf("%d%%", prog.Percent))
	}
	lines = append(lines, fmt.Sprintf("%s %s", progressLabel, progressValue))

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// renderStages builds the five-stage checklist.
func renderStages(view types.StageView) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Workflow"))
	b.WriteString("\n")

	done := make(map[string]bool, len(view.CompletedLabels))
	for _, label := range view.CompletedLabels {
		done[label] = true
	}

	for _, s := range stage.Stages {
		switch {
		case done[s.Label]:
			b.WriteString(SuccessStyle.Render("  ✓ " + s.Label))
		case s.Label == view.ActiveLabel:
			b.WriteString(TitleStyle.Render("  ▶ " + s.Label))
		default:
			b.WriteString(MutedStyle.Render("  · " + s.Label))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderPSUs builds the per-PSU load table.
func renderPSUs(loads []types.PSULoad) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Power budget"))
	b.WriteString("\n")

	for _, load := range loads {
		name := load.PSU.Name
		if name == "" {
			name = "PSU " + load.PSU.ID
		}

		loadText := fmt.Sprintf("%.0f%% of %sW", load.LoadPercent,
			humanize.FtoaWithDigits(load.Wattage, 0))
		styled := SuccessStyle.Render(loadText)
		switch {
		case load.LoadPercent >= 80:
			styled = DangerStyle.Render(loadText)
		case load.LoadPercent >= 70:
			styled = WarningStyle.Render(loadText)
		}

		b.WriteString(fmt.Sprintf("  %s %s  %s %s",
			LabelStyle.Render(name+":"), styled,
			LabelStyle.Render("devices:"), ValueStyle.Render(fmt.Sprintf("%d", len(load.Assigned)))))

		if load.Voltage > 0 || load.Amperage > 0 {
			b.WriteString(MutedStyle.Render(fmt.Sprintf("  (%sV / %sA)",
				humanize.FtoaWithDigits(load.Voltage, 1), humanize.FtoaWithDigits(load.Amperage, 1))))
		} else if load.Hint != "" {
			b.WriteString(MutedStyle.Render("  hint: " + load.Hint))
		}
		b.WriteString("\n")
	}
	return b.String()
}
