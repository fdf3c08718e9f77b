package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Foreground(lipgloss.Color("#2B6CB0")).Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#718096")),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#2F855A")).Bold(true),
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#B7791F")).Bold(true),
	Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#C53030")).Bold(true),
	Header:  lipgloss.NewStyle().Bold(true).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
}

// grid renders rows under headers as a bordered table.
func grid(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.Muted).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			return styles.Cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
