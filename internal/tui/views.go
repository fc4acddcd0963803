package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/cli"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/review"
)

// View implements tea.Model.
func (m Model) View() string {
	var body string
	switch m.state {
	case stateList:
		body = m.renderList()
	case stateEditing:
		body = m.form.view(m.theme)
	case stateConfirmDiscard:
		body = m.renderConfirmDiscard()
	case stateSaving:
		body = m.renderSaving()
	case stateSummary:
		body = m.renderSummary()
	case stateHelp:
		body = m.renderHelp()
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		body,
		"",
		m.theme.Help.Render(m.helpLine()),
	)
}

func (m Model) renderList() string {
	if len(m.items) == 0 {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.theme.Title.Render("Batch Review"),
			"",
			m.theme.Muted.Render("No receipts left to review."),
		)
	}

	rows := make([]string, 0, len(m.items)+2)
	rows = append(rows, m.theme.Title.Render(fmt.Sprintf("Batch Review · %d receipt(s)", len(m.items))))
	rows = append(rows, "")
	for i, item := range m.items {
		rows = append(rows, m.renderItem(item, i == m.cursor))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderItem(item review.Item, selected bool) string {
	cursor := "  "
	if selected {
		cursor = m.theme.Bold.Render("❯ ")
	}

	d := item.Draft
	line := fmt.Sprintf("%s %-30s %10s  %s",
		m.statusIcon(item),
		truncate(d.Merchant, 30),
		cli.FormatAmount(d.Total, d.Currency),
		d.Date.Format(dateLayout),
	)
	if item.Edited {
		line += m.theme.StatusWarning.Render("  (edited)")
	}
	if item.Err != "" {
		line += m.theme.StatusError.Render("  " + item.Err)
	}

	if selected {
		return cursor + m.theme.Normal.Render(line)
	}
	return cursor + m.theme.Muted.Render(line)
}

func (m Model) statusIcon(item review.Item) string {
	switch item.SaveState {
	case review.SaveSucceeded:
		return m.theme.StatusSuccess.Render("✓")
	case review.SaveFailed:
		return m.theme.StatusError.Render("✗")
	default:
		return m.theme.StatusPending.Render("·")
	}
}

func (m Model) renderConfirmDiscard() string {
	merchant := ""
	for _, item := range m.items {
		if item.ID == m.discardID {
			merchant = item.Draft.Merchant
			break
		}
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderList(),
		"",
		m.theme.StatusWarning.Render(fmt.Sprintf("Discard %s? [y/n]", merchant)),
	)
}

func (m Model) renderSaving() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderList(),
		"",
		m.theme.StatusPending.Render(fmt.Sprintf("Saving %d receipt(s)...", len(m.items))),
	)
}

func (m Model) renderSummary() string {
	rows := []string{}
	if m.saved > 0 {
		rows = append(rows, m.theme.StatusSuccess.Render(fmt.Sprintf("✓ %d receipt(s) saved", m.saved)))
	}
	if m.failed > 0 {
		rows = append(rows, m.theme.StatusError.Render(fmt.Sprintf("✗ %d receipt(s) failed", m.failed)))
		for _, item := range m.items {
			if item.SaveState != review.SaveFailed {
				continue
			}
			rows = append(rows, m.theme.Muted.Render(fmt.Sprintf("  %s: %s", item.Draft.Merchant, item.Err)))
		}
	}
	if m.saveErr != "" && m.saved == 0 {
		rows = append(rows, m.theme.StatusError.Render(m.saveErr))
	}
	rows = append(rows, "", m.theme.Muted.Render("Press q to close."))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderHelp() string {
	rows := []string{m.theme.Title.Render("Keys"), ""}
	for _, group := range m.keys.FullHelp() {
		for _, b := range group {
			h := b.Help()
			rows = append(rows, fmt.Sprintf("  %s %s",
				m.theme.Bold.Render(fmt.Sprintf("%-11s", h.Key)),
				m.theme.Muted.Render(h.Desc),
			))
		}
		rows = append(rows, "")
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) helpLine() string {
	switch m.state {
	case stateEditing:
		return "tab next field · enter apply · esc cancel"
	case stateConfirmDiscard:
		return "y discard · n keep"
	case stateSaving:
		return "saving..."
	case stateSummary:
		return "q close"
	case stateHelp:
		return "any key to return"
	}

	parts := make([]string, 0, 8)
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	parts = append(parts, "? help")
	return strings.Join(parts, " · ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
