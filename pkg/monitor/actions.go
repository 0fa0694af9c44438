package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/b/portkeeper/pkg/catalog"
	"github.com/b/portkeeper/pkg/grouping"
	"github.com/b/portkeeper/pkg/launch"
	"github.com/b/portkeeper/pkg/metrics"
	"github.com/b/portkeeper/pkg/model"
	"github.com/b/portkeeper/pkg/terminate"
)

// Terminate escalates against pid without blocking the caller. A running
// row for pid is marked terminating until the escalation ends; a second
// request for it fails with ErrBusy. Completion triggers a refresh.
func (m *Monitor) Terminate(pid int, timeout time.Duration) (<-chan terminate.Result, error) {
	key := ""
	if row, ok := m.reconciler.FindPID(pid); ok {
		busy := false
		m.reconciler.Update(row.Key, func(r *grouping.Row) {
			busy = r.Terminating
			r.Terminating = true
		})
		if busy {
			return nil, fmt.Errorf("%w: %s is already terminating", ErrBusy, row.Key)
		}
		key = row.Key
		m.republish()
	}

	out := make(chan terminate.Result, 1)
	go func() {
		defer close(out)
		res := m.escalator.Terminate(context.Background(), pid, timeout)
		metrics.ObserveTermination(res.Stage.String(), res.OK)
		if res.OK {
			m.logger.Info("terminated", "pid", pid, "key", key, "stage", res.Stage)
		} else {
			m.logger.Error("terminate failed", "pid", pid, "key", key, "err", res.Err)
		}
		if key != "" {
			m.reconciler.Update(key, func(r *grouping.Row) { r.Terminating = false })
		}
		m.Refresh()
		out <- res
	}()
	return out, nil
}

// TerminateKey escalates against the running process behind key and
// returns its pid.
func (m *Monitor) TerminateKey(key string, timeout time.Duration) (int, <-chan terminate.Result, error) {
	row, ok := m.reconciler.Row(key)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownServer, key)
	}
	if !row.Running {
		return 0, nil, fmt.Errorf("%w: %s", ErrNotRunning, row.Key)
	}
	done, err := m.Terminate(row.Record.PID, timeout)
	return row.Record.PID, done, err
}

// StartServer launches a stopped row from its remembered command line.
// The row is marked starting until it shows up running or the settle
// delay passes.
func (m *Monitor) StartServer(key string) (launch.Process, error) {
	row, ok := m.reconciler.Row(key)
	if !ok {
		return launch.Process{}, fmt.Errorf("%w: %s", ErrUnknownServer, key)
	}
	if row.Running || row.Starting {
		return launch.Process{}, fmt.Errorf("%w: %s is running or starting", ErrBusy, row.Key)
	}
	if row.CommandLine == "" {
		return launch.Process{}, fmt.Errorf("%w: %s", ErrNoCommandLine, row.Key)
	}

	m.reconciler.Update(row.Key, func(r *grouping.Row) { r.Starting = true })
	m.republish()

	p, err := m.starter.Start(row.CommandLine, row.WorkingDirectory, row.Key)
	metrics.ObserveStart(err)
	if err != nil {
		m.reconciler.Update(row.Key, func(r *grouping.Row) { r.Starting = false })
		m.republish()
		return launch.Process{}, err
	}
	m.settle(row.Key)
	return p, nil
}

// StartCommand launches an arbitrary command line and refreshes once it
// has had time to bind its port.
func (m *Monitor) StartCommand(commandLine, workDir string) (launch.Process, error) {
	p, err := m.starter.Start(commandLine, workDir, labelFor(commandLine))
	metrics.ObserveStart(err)
	if err != nil {
		return launch.Process{}, err
	}
	m.settle("")
	return p, nil
}

func (m *Monitor) settle(key string) {
	go func() {
		time.Sleep(m.opts.SettleDelay)
		m.Refresh()
		if key == "" {
			return
		}
		cleared := false
		m.reconciler.Update(key, func(r *grouping.Row) {
			cleared = r.Starting
			r.Starting = false
		})
		if cleared {
			m.republish()
		}
	}()
}

// Groups lists the groups.
func (m *Monitor) Groups() []model.Group {
	return m.catalog.Groups()
}

// CreateGroup adds a group.
func (m *Monitor) CreateGroup(name, color string) (model.Group, error) {
	g, err := m.catalog.CreateGroup(name, color)
	if err != nil {
		return model.Group{}, err
	}
	m.regroup()
	return g, nil
}

// CreateGroupAndAssign adds a group and places key in it.
func (m *Monitor) CreateGroupAndAssign(name, color, key string) (model.Group, error) {
	g, err := m.catalog.CreateGroup(name, color)
	if err != nil {
		return model.Group{}, err
	}
	if err := m.catalog.Assign(key, g.ID); err != nil {
		return g, err
	}
	m.regroup()
	return g, nil
}

// UpdateGroup renames or recolors a group.
func (m *Monitor) UpdateGroup(id string, u catalog.GroupUpdate) (model.Group, error) {
	g, err := m.catalog.UpdateGroup(id, u)
	if err != nil {
		return model.Group{}, err
	}
	m.regroup()
	return g, nil
}

// DeleteGroup removes a group and its assignments.
func (m *Monitor) DeleteGroup(id string) error {
	if err := m.catalog.DeleteGroup(id); err != nil {
		return err
	}
	m.regroup()
	return nil
}

// AssignToGroup places key in a group.
func (m *Monitor) AssignToGroup(key, groupID string) error {
	if err := m.catalog.Assign(key, groupID); err != nil {
		return err
	}
	m.regroup()
	return nil
}

// RemoveFromGroup ungroups key.
func (m *Monitor) RemoveFromGroup(key string) {
	if m.catalog.Unassign(key) {
		m.regroup()
	}
}

// IgnoreProcess stops discovering name and forgets key, the server the
// request came from, if given.
func (m *Monitor) IgnoreProcess(name, key string) error {
	if err := m.catalog.AddIgnored(name); err != nil {
		return err
	}
	if key != "" {
		m.catalog.Forget(key)
		m.reconciler.Remove(key)
	}
	m.rescan()
	return nil
}

// UnignoreProcess resumes discovering name.
func (m *Monitor) UnignoreProcess(name string) {
	if m.catalog.RemoveIgnored(name) {
		m.rescan()
	}
}

// ForgetServer drops key's remembered entry and group assignment. A
// server that is still running is remembered again at once, without its
// group.
func (m *Monitor) ForgetServer(key string) {
	m.catalog.Forget(key)
	m.reconciler.Remove(key)
	m.reconcile()
}

// MonitorName adds a process name to the monitored list.
func (m *Monitor) MonitorName(name string) error {
	if err := m.catalog.AddMonitored(name); err != nil {
		return err
	}
	if m.opts.OnlyMonitored {
		m.rescan()
	}
	return nil
}

// UnmonitorName removes a process name from the monitored list.
func (m *Monitor) UnmonitorName(name string) {
	if m.catalog.RemoveMonitored(name) && m.opts.OnlyMonitored {
		m.rescan()
	}
}
