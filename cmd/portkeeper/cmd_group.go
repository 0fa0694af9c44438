package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/b/portkeeper/pkg/daemon"
	"github.com/b/portkeeper/pkg/model"
)

// matchGroup finds a group by id, then by case-insensitive name.
func matchGroup(groups []model.Group, ref string) (model.Group, bool) {
	for _, g := range groups {
		if g.ID == ref {
			return g, true
		}
	}
	for _, g := range groups {
		if strings.EqualFold(g.Name, strings.TrimSpace(ref)) {
			return g, true
		}
	}
	return model.Group{}, false
}

func resolveGroup(ctx context.Context, c *daemon.Client, ref string) (model.Group, bool, error) {
	var groups []model.Group
	if err := c.Call(ctx, daemon.RequestPayload{Action: daemon.ActionListGroups}, &groups); err != nil {
		return model.Group{}, false, err
	}
	g, ok := matchGroup(groups, ref)
	return g, ok, nil
}

func mustResolveGroup(ctx context.Context, c *daemon.Client, ref string) (model.Group, error) {
	g, ok, err := resolveGroup(ctx, c, ref)
	if err != nil {
		return model.Group{}, err
	}
	if !ok {
		return model.Group{}, fmt.Errorf("no group %q", ref)
	}
	return g, nil
}

func runGroupList(cmd *cobra.Command, _ []string) error {
	var groups []model.Group
	if err := call(cmd, daemon.RequestPayload{Action: daemon.ActionListGroups}, &groups); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(groups) == 0 {
		fmt.Fprintln(out, "No groups")
		return nil
	}
	for _, g := range groups {
		color := g.Color
		if color == "" {
			color = "-"
		}
		fmt.Fprintf(out, "%-36s  %-8s  %s\n", g.ID, color, g.Name)
	}
	return nil
}

func runGroupCreate(cmd *cobra.Command, args []string) error {
	var g model.Group
	req := daemon.RequestPayload{Action: daemon.ActionCreateGroup, Name: args[0], Color: groupColor}
	if err := call(cmd, req, &g); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added group: %s (%s)\n", g.Name, g.ID)
	return nil
}

func runGroupDelete(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *daemon.Client) error {
		g, err := mustResolveGroup(ctx, c, args[0])
		if err != nil {
			return err
		}
		if err := c.Call(ctx, daemon.RequestPayload{Action: daemon.ActionDeleteGroup, GroupID: g.ID}, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted group: %s\n", g.Name)
		return nil
	})
}

func runGroupRename(cmd *cobra.Command, args []string) error {
	newName := args[1]
	return updateGroup(cmd, args[0], daemon.RequestPayload{Rename: &newName}, func(old, updated model.Group) string {
		return fmt.Sprintf("Renamed group: %s -> %s\n", old.Name, updated.Name)
	})
}

func runGroupColor(cmd *cobra.Command, args []string) error {
	color := args[1]
	return updateGroup(cmd, args[0], daemon.RequestPayload{Recolor: &color}, func(_, updated model.Group) string {
		return fmt.Sprintf("Set color of %s to %s\n", updated.Name, updated.Color)
	})
}

func updateGroup(cmd *cobra.Command, ref string, req daemon.RequestPayload, msg func(old, updated model.Group) string) error {
	return withClient(cmd, func(ctx context.Context, c *daemon.Client) error {
		g, err := mustResolveGroup(ctx, c, ref)
		if err != nil {
			return err
		}
		req.Action = daemon.ActionUpdateGroup
		req.GroupID = g.ID
		var updated model.Group
		if err := c.Call(ctx, req, &updated); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), msg(g, updated))
		return nil
	})
}

// runAssign places a server in a group, creating the group by name when
// it does not exist yet.
func runAssign(cmd *cobra.Command, args []string) error {
	key, ref := args[0], args[1]
	return withClient(cmd, func(ctx context.Context, c *daemon.Client) error {
		g, ok, err := resolveGroup(ctx, c, ref)
		if err != nil {
			return err
		}
		if !ok {
			req := daemon.RequestPayload{Action: daemon.ActionCreateGroup, Name: ref, Color: groupColor, AssignKey: key}
			if err := c.Call(ctx, req, &g); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added group %s and assigned %s\n", g.Name, key)
			return nil
		}
		if err := c.Call(ctx, daemon.RequestPayload{Action: daemon.ActionAssign, Key: key, GroupID: g.ID}, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s\n", key, g.Name)
		return nil
	})
}

func runUnassign(cmd *cobra.Command, args []string) error {
	return simple(cmd, daemon.RequestPayload{Action: daemon.ActionUnassign, Key: args[0]}, "Unassigned %s\n", args[0])
}
