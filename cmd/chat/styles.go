package main

import "github.com/charmbracelet/lipgloss"

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)
