package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vslabs/scripscrapo/internal/panel"
	"github.com/vslabs/scripscrapo/internal/scrape"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	symbolStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#10B981"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#EF4444"))
)

// RenderInstruments lays out search hits one per line.
func RenderInstruments(instruments []scrape.Instrument) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d result(s)", len(instruments))))
	b.WriteString("\n")
	for _, inst := range instruments {
		b.WriteString(fmt.Sprintf("%s  %s %s\n",
			symbolStyle.Render(inst.Label()),
			inst.Description,
			mutedStyle.Render(fmt.Sprintf("· %s · %s · id=%s", inst.Exchange, inst.Type, inst.ID)),
		))
	}
	return b.String()
}

// RenderPanelSummary describes the reconciled panel and where it went.
func RenderPanelSummary(pnl *panel.Panel, out string) string {
	if pnl.Empty() {
		return errorStyle.Render("No data downloaded; nothing written.")
	}
	first := pnl.Dates[0].Format("2006-01-02")
	last := pnl.Dates[len(pnl.Dates)-1].Format("2006-01-02")
	return titleStyle.Render(fmt.Sprintf("Panel: %d instrument(s), %d trading day(s) (%s to %s)",
		len(pnl.Columns), len(pnl.Dates), first, last)) +
		"\n" + mutedStyle.Render("written to "+out)
}

// RenderFailures lists every instrument that did not make it, with the
// terminal error it ended in.
func RenderFailures(failures []panel.Failure) string {
	var b strings.Builder
	b.WriteString(errorStyle.Render(fmt.Sprintf("%d instrument(s) failed:", len(failures))))
	b.WriteString("\n")
	for _, f := range failures {
		b.WriteString(fmt.Sprintf("  %s %s\n",
			symbolStyle.Render(f.Instrument.Label()),
			mutedStyle.Render(f.Err.Error()),
		))
	}
	return b.String()
}
