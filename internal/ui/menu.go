// Package ui holds the interactive command menu shown when hourbook runs
// without arguments.
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 2)
	itemStyle         = lipgloss.NewStyle().PaddingLeft(2)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("12")).Bold(true)
	helpStyle         = lipgloss.NewStyle().PaddingLeft(4).Foreground(lipgloss.Color("8"))
)

// Choice is one menu entry.
type Choice struct {
	Command string
	Help    string
}

// Choices lists the commands offered by the menu, in display order.
var Choices = []Choice{
	{"status", "show open and closed months with their totals"},
	{"list-tasks", "list tasks with hours and status"},
	{"list-closures", "list monthly closures"},
	{"web", "serve the read-only reporting API"},
	{"mcp", "run the MCP tool server on stdio"},
	{"export", "write a JSONL snapshot"},
	{"import", "load a JSONL snapshot"},
	{"init", "create .hourbook with config and database"},
}

type MenuModel struct {
	choices  []Choice
	cursor   int
	selected string
	quitting bool
}

func NewMenuModel() MenuModel {
	return MenuModel{choices: Choices}
}

func (m MenuModel) Init() tea.Cmd {
	return nil
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}

		case "home", "g":
			m.cursor = 0

		case "end", "G":
			m.cursor = len(m.choices) - 1

		case "enter":
			m.selected = m.choices[m.cursor].Command
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("hourbook"))
	s.WriteString("\n\n")

	for i, choice := range m.choices {
		if m.cursor == i {
			s.WriteString(selectedItemStyle.Render(fmt.Sprintf("> %s", choice.Command)))
			s.WriteString("\n")
			s.WriteString(helpStyle.Render(choice.Help))
		} else {
			s.WriteString(itemStyle.Render(fmt.Sprintf("  %s", choice.Command)))
		}
		s.WriteString("\n")
	}

	s.WriteString("\n(use arrow keys or j/k to navigate, enter to select, q to quit)\n")

	return s.String()
}

// Selected returns the chosen command, or "" if the menu was quit.
func (m MenuModel) Selected() string {
	return m.selected
}

func RunMenu() (string, error) {
	p := tea.NewProgram(NewMenuModel())
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}
	return finalModel.(MenuModel).Selected(), nil
}
