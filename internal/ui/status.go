package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/hourbook/pkg/models"
)

var (
	openCardStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)

	closedCardStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)

	cardHeaderStyle = lipgloss.NewStyle().Bold(true)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				Padding(0, 1)
)

// TaskCounts tallies an owner's tasks by status.
type TaskCounts struct {
	Pending   int
	Completed int
}

func CountTasks(tasks []*models.Task) TaskCounts {
	var c TaskCounts
	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			c.Completed++
		} else {
			c.Pending++
		}
	}
	return c
}

// ClosureCard renders one closure summary as a bordered panel. Open closures
// are drawn in amber, closed ones in green.
func ClosureCard(s *models.ClosureSummary, width int) string {
	style := openCardStyle
	if s.Closure.IsClosed() {
		style = closedCardStyle
	}
	if width > 0 {
		style = style.Width(width)
	}

	var b strings.Builder
	b.WriteString(cardHeaderStyle.Render(fmt.Sprintf("%s  %s", s.Closure.Period(), s.Closure.Status)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "rate %s/h  tax %s%%\n", s.Closure.HourlyRate.StringFixed(2), s.Closure.TaxPercentage.String())
	for _, row := range s.Clients {
		name := row.ClientName
		if name == "" {
			name = row.ClientID
		}
		fmt.Fprintf(&b, "  %-20s %8sh %12s\n", name, row.TotalHours.String(), row.NetAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "hours %s  gross %s  tax %s  net %s\n",
		s.TotalHours.String(), s.TotalGross.StringFixed(2), s.TotalTax.StringFixed(2), s.TotalNet.StringFixed(2))
	fmt.Fprintf(&b, "expenses %s  final %s", s.TotalExpenses.StringFixed(2), s.FinalAmount.StringFixed(2))

	return style.Render(b.String())
}

// StatusView renders the task tally followed by one card per closure.
func StatusView(owner string, counts TaskCounts, summaries []*models.ClosureSummary, width int) string {
	var b strings.Builder
	b.WriteString(cardHeaderStyle.Render(fmt.Sprintf("owner %s", owner)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "tasks: %d pending, %d completed\n\n", counts.Pending, counts.Completed)

	if len(summaries) == 0 {
		b.WriteString(placeholderStyle.Render("No closures yet"))
		b.WriteString("\n")
		return b.String()
	}
	for _, s := range summaries {
		b.WriteString(ClosureCard(s, width))
		b.WriteString("\n")
	}
	return b.String()
}
