package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// table renders rows under headers. Styled tables get a rounded border;
// plain tables are space-aligned columns.
func (p *Printer) table(headers []string, rows [][]string) string {
	t := table.New().Headers(headers...).Rows(rows...)
	if !p.color {
		return t.
			BorderTop(false).
			BorderBottom(false).
			BorderLeft(false).
			BorderRight(false).
			BorderHeader(false).
			BorderColumn(false).
			StyleFunc(func(_, col int) lipgloss.Style {
				if col < len(headers)-1 {
					return lipgloss.NewStyle().PaddingRight(2)
				}
				return lipgloss.NewStyle()
			}).
			Render()
	}
	return t.
		Border(lipgloss.RoundedBorder()).
		BorderStyle(muted).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return bold.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}
