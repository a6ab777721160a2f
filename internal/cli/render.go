package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vietddude/verdict/internal/core/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const (
	idWidth    = 5
	inputWidth = 44
	checkWidth = 16
)

func statusStyle(s domain.CheckStatus) lipgloss.Style {
	switch s {
	case domain.StatusDone:
		return okStyle
	case domain.StatusError:
		return errorStyle
	case domain.StatusRateLimited, domain.StatusChecking:
		return warnStyle
	}
	return mutedStyle
}

func statusText(st domain.CheckState) string {
	if st.Progress != "" && !st.Status.Terminal() {
		return st.Progress
	}
	switch st.Status {
	case domain.StatusDone:
		if st.Value != "" && len(st.Value) <= 10 {
			return st.Value
		}
		return "Done"
	case domain.StatusNotFound:
		return "Not found"
	case domain.StatusRateLimited:
		return "Rate limited"
	}
	return string(st.Status)
}

func cell(s string, width int, style lipgloss.Style) string {
	return style.Width(width).Render(truncate(s, width-1))
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return string(r[:min(len(r), width)])
	}
	return string(r[:width-1]) + "…"
}

// renderItems draws one row per item and one column per check.
func renderItems(checks []string, items []domain.WorkItem) string {
	if len(items) == 0 {
		return mutedStyle.Render("No items.")
	}

	var b strings.Builder
	header := []string{cell("ID", idWidth, titleStyle), cell("INPUT", inputWidth, titleStyle)}
	for _, name := range checks {
		header = append(header, cell(strings.ToUpper(name), checkWidth, titleStyle))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header...))
	b.WriteString("\n")

	for _, it := range items {
		row := []string{
			cell(strconv.Itoa(it.ID), idWidth, lipgloss.NewStyle()),
			cell(it.Input, inputWidth, lipgloss.NewStyle()),
		}
		for _, name := range checks {
			st := it.Checks[name]
			row = append(row, cell(statusText(st), checkWidth, statusStyle(st.Status)))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
		b.WriteString("\n")
	}
	return b.String()
}

// renderDetails lists the notes and errors recorded on an item's checks.
func renderDetails(checks []string, it domain.WorkItem) string {
	var lines []string
	for _, name := range checks {
		st := it.Checks[name]
		if st.Detail == "" && st.Source == "" {
			continue
		}
		line := fmt.Sprintf("%s: %s", name, st.Detail)
		if st.Source != "" {
			line += mutedStyle.Render(" (" + st.Source + ")")
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return panelStyle.Render(titleStyle.Render(fmt.Sprintf("#%d %s", it.ID, truncate(it.Input, 60))) + "\n" + strings.Join(lines, "\n"))
}

// progressLines returns one line per check whose live progress text changed
// since the last call. seen is updated in place.
func progressLines(checks []string, items []domain.WorkItem, seen map[string]string) []string {
	var lines []string
	for _, it := range items {
		for _, name := range checks {
			st := it.Checks[name]
			key := fmt.Sprintf("%d/%s", it.ID, name)
			if st.Progress == "" || st.Status.Terminal() || seen[key] == st.Progress {
				continue
			}
			seen[key] = st.Progress
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("#%d %s:", it.ID, name))+" "+statusStyle(st.Status).Render(st.Progress))
		}
	}
	return lines
}
