package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/b/portkeeper/pkg/colors"
	"github.com/b/portkeeper/pkg/grouping"
)

const defaultWidth = 100

type tableOptions struct {
	Width int
	Color bool
}

func outputWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

func colorOutput() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// rowState is the state column: the pid when running.
func rowState(r grouping.Row) string {
	switch {
	case r.Terminating:
		return "stopping"
	case r.Starting:
		return "starting"
	case r.Running:
		return "pid " + strconv.Itoa(r.Record.PID)
	}
	return "stopped"
}

func padRight(s string, width int) string {
	if gap := width - runewidth.StringWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// renderTable lays out the view by section, one server per line. The
// command column is cut to fit the width.
func renderTable(v grouping.View, opts tableOptions) string {
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	var b strings.Builder
	if len(v.Rows) == 0 {
		b.WriteString(v.Status + "\n")
		return b.String()
	}

	keyWidth, stateWidth := 0, 0
	for _, r := range v.Rows {
		keyWidth = max(keyWidth, runewidth.StringWidth(r.Key))
		stateWidth = max(stateWidth, runewidth.StringWidth(rowState(r)))
	}

	for _, sec := range grouping.Sections(v.Rows) {
		header := fmt.Sprintf("%s (%d/%d running)", sec.Name, sec.RunningCount(), len(sec.Rows))
		if opts.Color && sec.Color != "" && colors.IsValidHex(sec.Color) {
			header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(sec.Color)).Render(header)
		}
		b.WriteString(header + "\n")

		for _, r := range sec.Rows {
			marker := "○"
			if r.Running {
				marker = "●"
			}
			line := "  " + marker + " " + padRight(r.Key, keyWidth) + "  " + padRight(rowState(r), stateWidth)
			if r.CommandLine != "" {
				room := opts.Width - runewidth.StringWidth(line) - 2
				if room > 3 {
					line += "  " + runewidth.Truncate(r.CommandLine, room, "…")
				}
			}
			b.WriteString(line + "\n")
		}
	}
	b.WriteString(v.Status + "\n")
	return b.String()
}
