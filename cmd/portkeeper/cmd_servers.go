package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/b/portkeeper/pkg/daemon"
	"github.com/b/portkeeper/pkg/grouping"
	"github.com/b/portkeeper/pkg/monitor"
)

func runList(cmd *cobra.Command, _ []string) error {
	var view grouping.View
	if err := call(cmd, daemon.RequestPayload{Action: daemon.ActionRefresh}, &view); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	fmt.Fprint(out, renderTable(view, tableOptions{Width: outputWidth(), Color: colorOutput()}))
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()
	snaps, err := c.Subscribe()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()
	redraw := colorOutput()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return fmt.Errorf("daemon connection closed")
		case snap := <-snaps:
			if redraw {
				fmt.Fprint(out, "\033[H\033[2J")
			}
			fmt.Fprint(out, renderTable(snap.View, tableOptions{Width: outputWidth(), Color: redraw}))
		}
	}
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	var view grouping.View
	if err := call(cmd, daemon.RequestPayload{Action: daemon.ActionRefresh}, &view); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), view.Status)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	var st monitor.Status
	if err := call(cmd, daemon.RequestPayload{Action: daemon.ActionStatus}, &st); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (polling: %v)\n", st.Summary, st.Polling)
	fmt.Fprintf(out, "catalog:   %s\n", st.Catalog)
	fmt.Fprintf(out, "monitored: %s\n", joinOrNone(st.Monitored))
	fmt.Fprintf(out, "ignored:   %s\n", joinOrNone(st.Ignored))
	if len(st.Launched) > 0 {
		pids := make([]string, len(st.Launched))
		for i, pid := range st.Launched {
			pids[i] = strconv.Itoa(pid)
		}
		fmt.Fprintf(out, "launched:  %s\n", strings.Join(pids, ", "))
	}
	return nil
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "(none)"
	}
	return strings.Join(list, ", ")
}

// stopTarget reads a stop argument as a pid or a server key.
func stopTarget(arg string) daemon.RequestPayload {
	req := daemon.RequestPayload{Action: daemon.ActionTerminate}
	if pid, err := strconv.Atoi(arg); err == nil && pid > 0 {
		req.PID = pid
	} else {
		req.Key = arg
	}
	return req
}

func runStop(cmd *cobra.Command, args []string) error {
	req := stopTarget(args[0])
	req.TimeoutMS = int(stopTimeout.Milliseconds())
	req.Wait = !stopNoWait

	var data daemon.TerminateData
	if err := call(cmd, req, &data); err != nil {
		return err
	}
	if data.Pending {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopping %s\n", args[0])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s (pid %d, %s)\n", args[0], data.PID, data.Stage)
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	req := daemon.RequestPayload{Action: daemon.ActionStart}
	switch {
	case startCmdArg != "":
		req.CommandLine = startCmdArg
		req.WorkingDirectory = startDirArg
		if req.WorkingDirectory == "" {
			req.WorkingDirectory, _ = os.Getwd()
		}
	case len(args) == 1:
		req.Key = args[0]
	default:
		return fmt.Errorf("give a server key or --cmd")
	}

	var data daemon.StartData
	if err := call(cmd, req, &data); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started pid %d\n", data.PID)
	if data.LogPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", data.LogPath)
	}
	return nil
}

func runIgnore(cmd *cobra.Command, args []string) error {
	req := daemon.RequestPayload{Action: daemon.ActionIgnore, Name: args[0], Key: ignoreKey}
	if err := call(cmd, req, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ignoring %s\n", args[0])
	return nil
}

func runUnignore(cmd *cobra.Command, args []string) error {
	return simple(cmd, daemon.RequestPayload{Action: daemon.ActionUnignore, Name: args[0]}, "No longer ignoring %s\n", args[0])
}

func runForget(cmd *cobra.Command, args []string) error {
	return simple(cmd, daemon.RequestPayload{Action: daemon.ActionForget, Key: args[0]}, "Forgot %s\n", args[0])
}

func runMonitorAdd(cmd *cobra.Command, args []string) error {
	return simple(cmd, daemon.RequestPayload{Action: daemon.ActionMonitorName, Name: args[0]}, "Monitoring %s\n", args[0])
}

func runMonitorRemove(cmd *cobra.Command, args []string) error {
	return simple(cmd, daemon.RequestPayload{Action: daemon.ActionUnmonitorName, Name: args[0]}, "No longer monitoring %s\n", args[0])
}

func simple(cmd *cobra.Command, req daemon.RequestPayload, format string, args ...interface{}) error {
	if err := call(cmd, req, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	return nil
}

// withClient runs fn on one connection.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *daemon.Client) error) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	return fn(ctx, c)
}
