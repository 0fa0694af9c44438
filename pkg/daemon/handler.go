package daemon

import (
	"errors"
	"fmt"
	"strings"

	"github.com/b/portkeeper/pkg/catalog"
	"github.com/b/portkeeper/pkg/launch"
	"github.com/b/portkeeper/pkg/monitor"
	"github.com/b/portkeeper/pkg/terminate"
)

var errMissingField = errors.New("missing field")

// NewHandler maps requests onto monitor actions. Its result suits
// Server.OnRequest.
func NewHandler(m *monitor.Monitor) func(RequestPayload) ResultPayload {
	return func(req RequestPayload) ResultPayload {
		data, err := dispatch(m, req)
		if err != nil {
			return ResultPayload{Error: err.Error()}
		}
		return ResultPayload{OK: true, Data: data}
	}
}

func require(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", errMissingField, field)
	}
	return nil
}

func dispatch(m *monitor.Monitor, req RequestPayload) (interface{}, error) {
	switch req.Action {
	case ActionRefresh:
		return m.Refresh(), nil

	case ActionStatus:
		return m.Status(), nil

	case ActionTerminate:
		var (
			done <-chan terminate.Result
			err  error
		)
		pid := req.PID
		switch {
		case pid > 0:
			done, err = m.Terminate(pid, req.Timeout())
		case req.Key != "":
			pid, done, err = m.TerminateKey(req.Key, req.Timeout())
		default:
			return nil, fmt.Errorf("%w: pid or key", errMissingField)
		}
		if err != nil {
			return nil, err
		}
		if !req.Wait {
			return TerminateData{PID: pid, Pending: true}, nil
		}
		res := <-done
		if !res.OK {
			return nil, fmt.Errorf("terminate %d failed at %s: %v", res.PID, res.Stage, res.Err)
		}
		return TerminateData{PID: res.PID, Stage: res.Stage.String()}, nil

	case ActionStart:
		var (
			p   launch.Process
			err error
		)
		if req.CommandLine != "" {
			p, err = m.StartCommand(req.CommandLine, req.WorkingDirectory)
		} else {
			if err := require("key", req.Key); err != nil {
				return nil, err
			}
			p, err = m.StartServer(req.Key)
		}
		if err != nil {
			return nil, err
		}
		return StartData{PID: p.PID, LogPath: p.LogPath}, nil

	case ActionAssign:
		if err := require("key", req.Key); err != nil {
			return nil, err
		}
		if err := require("group_id", req.GroupID); err != nil {
			return nil, err
		}
		return nil, m.AssignToGroup(req.Key, req.GroupID)

	case ActionUnassign:
		if err := require("key", req.Key); err != nil {
			return nil, err
		}
		m.RemoveFromGroup(req.Key)
		return nil, nil

	case ActionCreateGroup:
		if req.AssignKey != "" {
			return m.CreateGroupAndAssign(req.Name, req.Color, req.AssignKey)
		}
		return m.CreateGroup(req.Name, req.Color)

	case ActionUpdateGroup:
		if err := require("group_id", req.GroupID); err != nil {
			return nil, err
		}
		return m.UpdateGroup(req.GroupID, catalog.GroupUpdate{Name: req.Rename, Color: req.Recolor})

	case ActionDeleteGroup:
		if err := require("group_id", req.GroupID); err != nil {
			return nil, err
		}
		return nil, m.DeleteGroup(req.GroupID)

	case ActionListGroups:
		return m.Groups(), nil

	case ActionIgnore:
		return nil, m.IgnoreProcess(req.Name, req.Key)

	case ActionUnignore:
		if err := require("name", req.Name); err != nil {
			return nil, err
		}
		m.UnignoreProcess(req.Name)
		return nil, nil

	case ActionForget:
		if err := require("key", req.Key); err != nil {
			return nil, err
		}
		m.ForgetServer(req.Key)
		return nil, nil

	case ActionMonitorName:
		return nil, m.MonitorName(req.Name)

	case ActionUnmonitorName:
		if err := require("name", req.Name); err != nil {
			return nil, err
		}
		m.UnmonitorName(req.Name)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown action %q", req.Action)
}
