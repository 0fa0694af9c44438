package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/b/portkeeper/pkg/colors"
	"github.com/b/portkeeper/pkg/config"
	"github.com/b/portkeeper/pkg/grouping"
)

type styles struct {
	running  lipgloss.Style
	stopped  lipgloss.Style
	selected lipgloss.Style
	status   lipgloss.Style
	errorMsg lipgloss.Style
	dark     bool
}

func newStyles(ui config.UI, dark bool) styles {
	stopped := ui.StoppedColor
	if colors.IsValidHex(stopped) {
		stopped = colors.Muted(stopped, dark)
	}
	return styles{
		running:  lipgloss.NewStyle().Foreground(lipgloss.Color(ui.RunningColor)),
		stopped:  lipgloss.NewStyle().Foreground(lipgloss.Color(stopped)),
		selected: lipgloss.NewStyle().Reverse(true),
		status:   lipgloss.NewStyle().Faint(true),
		errorMsg: lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c")),
		dark:     dark,
	}
}

func (s styles) header(sec grouping.Section) lipgloss.Style {
	st := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	if sec.Color == "" || !colors.IsValidHex(sec.Color) {
		return st.Faint(true)
	}
	return st.Background(lipgloss.Color(sec.Color)).Foreground(lipgloss.Color(colors.TextColor(sec.Color)))
}

func rowState(r grouping.Row) string {
	switch {
	case r.Terminating:
		return "stopping…"
	case r.Starting:
		return "starting…"
	case r.Running:
		return fmt.Sprintf("pid %d", r.Record.PID)
	}
	return "stopped"
}

// View implements tea.Model
func (m listModel) View() string {
	var b strings.Builder
	if !m.connected && len(m.rows) == 0 {
		b.WriteString("Connecting to portkeeper-daemon…\n")
	}

	keyWidth := 0
	for _, r := range m.rows {
		keyWidth = max(keyWidth, runewidth.StringWidth(r.Key))
	}

	idx := 0
	for _, sec := range grouping.Sections(m.view.Rows) {
		title := fmt.Sprintf("%s  %d/%d", sec.Name, sec.RunningCount(), len(sec.Rows))
		b.WriteString(m.styles.header(sec).Render(title) + "\n")
		for _, r := range sec.Rows {
			b.WriteString(m.renderRow(r, idx == m.cursor, keyWidth) + "\n")
			idx++
		}
	}

	b.WriteString("\n" + m.styles.status.Render(m.view.Status))
	if m.message != "" {
		msg := m.message
		if m.messageErr {
			msg = m.styles.errorMsg.Render(msg)
		}
		b.WriteString("  " + msg)
	}
	b.WriteString("\n")

	if m.prompting {
		b.WriteString(m.prompt.View() + "\n")
	} else {
		b.WriteString(m.help.View(m.keys) + "\n")
	}
	return b.String()
}

func (m listModel) renderRow(r grouping.Row, selected bool, keyWidth int) string {
	marker, style := "○", m.styles.stopped
	if r.Running {
		marker, style = "●", m.styles.running
	}
	key := r.Key + strings.Repeat(" ", max(0, keyWidth-runewidth.StringWidth(r.Key)))
	line := fmt.Sprintf(" %s %s  %-10s", marker, key, rowState(r))
	if r.CommandLine != "" {
		room := m.width - runewidth.StringWidth(line) - 2
		if room > 3 {
			line += "  " + runewidth.Truncate(r.CommandLine, room, "…")
		}
	}
	if selected {
		return m.styles.selected.Render(line)
	}
	return style.Render(line)
}
