package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	stopTimeout time.Duration
	stopNoWait  bool
	startCmdArg string
	startDirArg string
	ignoreKey   string
	groupColor  string

	listCmd = &cobra.Command{
		Use:     "list",
		Short:   "List running and remembered servers",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE:    runList,
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Redraw the server list whenever it changes",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	refreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "Poll for listening servers now",
		Args:  cobra.NoArgs,
		RunE:  runRefresh,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	stopCmd = &cobra.Command{
		Use:   "stop <pid|key>",
		Short: "Stop a server, escalating to a forced kill",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}
	startCmd = &cobra.Command{
		Use:   "start [key]",
		Short: "Start a stopped server from its remembered command line",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStart,
	}
	ignoreCmd = &cobra.Command{
		Use:   "ignore <name>",
		Short: "Stop discovering a process name",
		Args:  cobra.ExactArgs(1),
		RunE:  runIgnore,
	}
	unignoreCmd = &cobra.Command{
		Use:   "unignore <name>",
		Short: "Resume discovering a process name",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnignore,
	}
	forgetCmd = &cobra.Command{
		Use:   "forget <key>",
		Short: "Forget a remembered server and its group assignment",
		Args:  cobra.ExactArgs(1),
		RunE:  runForget,
	}
	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Manage monitored process names",
	}
	monitorAddCmd = &cobra.Command{
		Use:   "add <name>",
		Short: "Add a monitored process name",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonitorAdd,
	}
	monitorRemoveCmd = &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a monitored process name",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonitorRemove,
	}

	// --- Groups ---
	groupCmd = &cobra.Command{
		Use:   "group",
		Short: "Manage server groups",
	}
	groupListCmd = &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE:  runGroupList,
	}
	groupCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE:  runGroupCreate,
	}
	groupDeleteCmd = &cobra.Command{
		Use:   "delete <group>",
		Short: "Delete a group; its servers become ungrouped",
		Args:  cobra.ExactArgs(1),
		RunE:  runGroupDelete,
	}
	groupRenameCmd = &cobra.Command{
		Use:   "rename <group> <new-name>",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
		RunE:  runGroupRename,
	}
	groupColorCmd = &cobra.Command{
		Use:   "color <group> <#rrggbb>",
		Short: "Set a group's color",
		Args:  cobra.ExactArgs(2),
		RunE:  runGroupColor,
	}
	assignCmd = &cobra.Command{
		Use:   "assign <key> <group>",
		Short: "Place a server in a group",
		Args:  cobra.ExactArgs(2),
		RunE:  runAssign,
	}
	unassignCmd = &cobra.Command{
		Use:   "unassign <key>",
		Short: "Remove a server from its group",
		Args:  cobra.ExactArgs(1),
		RunE:  runUnassign,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "daemon socket path (default: runtime dir)")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "call-timeout", 30*time.Second, "how long to wait for the daemon")

	listCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the list as JSON")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 0, "graceful stages budget (default: daemon config)")
	stopCmd.Flags().BoolVar(&stopNoWait, "no-wait", false, "return before the escalation ends")
	startCmd.Flags().StringVar(&startCmdArg, "cmd", "", "start an arbitrary command line instead of a remembered server")
	startCmd.Flags().StringVar(&startDirArg, "dir", "", "working directory for --cmd")
	ignoreCmd.Flags().StringVar(&ignoreKey, "key", "", "also forget this server key")
	groupCreateCmd.Flags().StringVar(&groupColor, "color", "", "group color as #rrggbb")
	assignCmd.Flags().StringVar(&groupColor, "color", "", "color if the group has to be created")

	monitorCmd.AddCommand(monitorAddCmd, monitorRemoveCmd)
	groupCmd.AddCommand(groupListCmd, groupCreateCmd, groupDeleteCmd, groupRenameCmd, groupColorCmd)
	rootCmd.AddCommand(
		listCmd, watchCmd, refreshCmd, statusCmd,
		stopCmd, startCmd,
		ignoreCmd, unignoreCmd, forgetCmd, monitorCmd,
		groupCmd, assignCmd, unassignCmd,
	)
}
