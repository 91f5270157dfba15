package progress

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1A3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C757D"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(0, 1)
)

// Summary renders the end-of-batch box: totals and the failures per kind.
func Summary(batchID string, s Snapshot, byKind map[string]int) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Batch finished"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(batchID))
	b.WriteString("\n\n")
	b.WriteString(successStyle.Render(fmt.Sprintf("saved   %d (%s)", s.Succeeded, humanize.Bytes(uint64(s.Bytes)))))
	b.WriteString("\n")
	b.WriteString(errorStyle.Render(fmt.Sprintf("failed  %d", s.Failed)))

	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	for _, kind := range kinds {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %-12s %d", kind, byKind[kind])))
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("took    %s", s.Elapsed.Round(time.Millisecond))))

	return boxStyle.Render(b.String())
}
