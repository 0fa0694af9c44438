package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/b/portkeeper/pkg/daemon"
	"github.com/b/portkeeper/pkg/grouping"
	"github.com/b/portkeeper/pkg/model"
)

const actionTimeout = 30 * time.Second

// listModel is the Bubbletea model for the server list
type listModel struct {
	client    *daemon.Client
	snaps     <-chan daemon.SnapshotPayload
	connected bool

	view     grouping.View
	rows     []grouping.Row // display order
	cursor   int
	selected uint64 // row ID under the cursor

	width  int
	height int

	keys      keyMap
	help      help.Model
	prompt    textinput.Model
	prompting bool

	message    string
	messageErr bool

	styles styles
}

// Message types
type connectedMsg struct {
	client *daemon.Client
	snaps  <-chan daemon.SnapshotPayload
}

type disconnectedMsg struct{ err error }

type snapshotMsg daemon.SnapshotPayload

type actionMsg struct {
	text string
	err  error
}

func newModel(st styles) listModel {
	ti := textinput.New()
	ti.Placeholder = "group name"
	ti.CharLimit = 64
	return listModel{
		width:  80,
		height: 24,
		keys:   defaultKeys(),
		help:   help.New(),
		prompt: ti,
		styles: st,
	}
}

// Init implements tea.Model
func (m listModel) Init() tea.Cmd {
	return connectCmd()
}

func connectCmd() tea.Cmd {
	return func() tea.Msg {
		var (
			c   *daemon.Client
			err error
		)
		for i := 0; i < 10; i++ {
			c, err = daemon.Dial(socketPath(), time.Second)
			if err == nil {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if err != nil {
			return disconnectedMsg{err: err}
		}
		snaps, err := c.Subscribe()
		if err != nil {
			c.Close()
			return disconnectedMsg{err: err}
		}
		return connectedMsg{client: c, snaps: snaps}
	}
}

// waitSnapshot delivers the next pushed snapshot.
func waitSnapshot(c *daemon.Client, snaps <-chan daemon.SnapshotPayload) tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-snaps:
			return snapshotMsg(snap)
		case <-c.Done():
			return disconnectedMsg{err: daemon.ErrClosed}
		}
	}
}

// Update implements tea.Model
func (m listModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case connectedMsg:
		m.client = msg.client
		m.snaps = msg.snaps
		m.connected = true
		m.setMessage("", nil)
		return m, waitSnapshot(m.client, m.snaps)

	case disconnectedMsg:
		m.connected = false
		m.setMessage("daemon unavailable, retrying", msg.err)
		return m, tea.Tick(time.Second, func(time.Time) tea.Msg {
			return connectCmd()()
		})

	case snapshotMsg:
		m.applyView(msg.View)
		if m.client == nil {
			return m, nil
		}
		return m, waitSnapshot(m.client, m.snaps)

	case actionMsg:
		m.setMessage(msg.text, msg.err)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *listModel) setMessage(text string, err error) {
	m.message = text
	m.messageErr = err != nil
	if err != nil {
		if text == "" {
			m.message = err.Error()
		} else {
			m.message = text + ": " + err.Error()
		}
	}
}

// applyView swaps in a new list and keeps the cursor on the same row.
func (m *listModel) applyView(v grouping.View) {
	m.view = v
	m.rows = make([]grouping.Row, 0, len(v.Rows))
	for _, sec := range grouping.Sections(v.Rows) {
		m.rows = append(m.rows, sec.Rows...)
	}
	if m.selected != 0 {
		for i, r := range m.rows {
			if r.ID == m.selected {
				m.cursor = i
				return
			}
		}
	}
	m.moveCursor(0)
}

func (m *listModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	if len(m.rows) > 0 {
		m.selected = m.rows[m.cursor].ID
	} else {
		m.selected = 0
	}
}

func (m listModel) current() (grouping.Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return grouping.Row{}, false
	}
	return m.rows[m.cursor], true
}

func (m listModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.client != nil {
			m.client.Close()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Refresh):
		return m, m.do(daemon.RequestPayload{Action: daemon.ActionRefresh}, "refreshed")
	}

	row, ok := m.current()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Stop):
		if !row.Running {
			m.setMessage(row.Key+" is not running", nil)
			return m, nil
		}
		m.setMessage("stopping "+row.Key, nil)
		return m, m.do(daemon.RequestPayload{Action: daemon.ActionTerminate, PID: row.Record.PID, Wait: true}, "stopped "+row.Key)
	case key.Matches(msg, m.keys.Start):
		if !row.CanStart() {
			m.setMessage(row.Key+" cannot be started", nil)
			return m, nil
		}
		return m, m.do(daemon.RequestPayload{Action: daemon.ActionStart, Key: row.Key}, "started "+row.Key)
	case key.Matches(msg, m.keys.Assign):
		m.prompting = true
		m.prompt.SetValue(row.GroupName)
		m.prompt.Prompt = "Group for " + row.Key + ": "
		return m, m.prompt.Focus()
	case key.Matches(msg, m.keys.Unassign):
		return m, m.do(daemon.RequestPayload{Action: daemon.ActionUnassign, Key: row.Key}, "ungrouped "+row.Key)
	case key.Matches(msg, m.keys.Ignore):
		return m, m.do(daemon.RequestPayload{Action: daemon.ActionIgnore, Name: row.Record.Name, Key: row.Key}, "ignoring "+row.Record.Name)
	case key.Matches(msg, m.keys.Forget):
		return m, m.do(daemon.RequestPayload{Action: daemon.ActionForget, Key: row.Key}, "forgot "+row.Key)
	}
	return m, nil
}

func (m listModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompting = false
		m.prompt.Blur()
		return m, nil
	case tea.KeyEnter:
		m.prompting = false
		m.prompt.Blur()
		name := strings.TrimSpace(m.prompt.Value())
		row, ok := m.current()
		if !ok || name == "" {
			return m, nil
		}
		return m, m.assign(row.Key, name)
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// do runs req and reports the outcome as an actionMsg.
func (m listModel) do(req daemon.RequestPayload, done string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		if c == nil {
			return actionMsg{err: daemon.ErrClosed}
		}
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if err := c.Call(ctx, req, nil); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: done}
	}
}

// assign places key in the named group, creating it when needed.
func (m listModel) assign(key, name string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		if c == nil {
			return actionMsg{err: daemon.ErrClosed}
		}
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		var groups []model.Group
		if err := c.Call(ctx, daemon.RequestPayload{Action: daemon.ActionListGroups}, &groups); err != nil {
			return actionMsg{err: err}
		}
		for _, g := range groups {
			if strings.EqualFold(g.Name, name) {
				err := c.Call(ctx, daemon.RequestPayload{Action: daemon.ActionAssign, Key: key, GroupID: g.ID}, nil)
				return actionMsg{text: fmt.Sprintf("assigned %s to %s", key, g.Name), err: err}
			}
		}
		err := c.Call(ctx, daemon.RequestPayload{Action: daemon.ActionCreateGroup, Name: name, AssignKey: key}, nil)
		return actionMsg{text: fmt.Sprintf("created %s with %s", name, key), err: err}
	}
}
