package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent = lipgloss.Color("#58a6ff")
	colorGood   = lipgloss.Color("#3fb950")
	colorBad    = lipgloss.Color("#f85149")
	colorDim    = lipgloss.Color("#8b949e")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	labelStyle = lipgloss.NewStyle().Foreground(colorDim).Width(12)
	valueStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorGood)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBad)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 2)

	barFillStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// field renders one aligned "label value" line.
func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func banner(title string, fields ...string) string {
	lines := append([]string{titleStyle.Render(title), ""}, fields...)
	return bannerStyle.Render(strings.Join(lines, "\n"))
}

func mark(ok bool) string {
	if ok {
		return okStyle.Render("✓")
	}
	return errorStyle.Render("✗")
}

// progressBar draws p percent of width cells.
func progressBar(p, width int) string {
	p = min(max(p, 0), 100)
	filled := p * width / 100
	return barFillStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %3d%%", p)
}

// clock formats seconds as m:ss.mmm, or h:mm:ss.mmm past an hour.
func clock(seconds float64) string {
	ms := int64(seconds*1000 + 0.5)
	h, ms := ms/3_600_000, ms%3_600_000
	m, ms := ms/60_000, ms%60_000
	s, ms := ms/1000, ms%1000
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms)
	}
	return fmt.Sprintf("%d:%02d.%03d", m, s, ms)
}
