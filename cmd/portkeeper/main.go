package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/b/portkeeper/pkg/daemon"
	"github.com/b/portkeeper/pkg/paths"
)

var (
	socketPath  string
	callTimeout time.Duration
	jsonOutput  bool

	rootCmd = &cobra.Command{
		Use:           "portkeeper",
		Short:         "List, group, stop and restart local development servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect dials the daemon socket.
func connect() (*daemon.Client, error) {
	path := socketPath
	if path == "" {
		path = paths.SocketPath()
	}
	c, err := daemon.Dial(path, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%w (is portkeeper-daemon running?)", err)
	}
	return c, nil
}

// call runs one request against the daemon and decodes its data into out.
func call(cmd *cobra.Command, req daemon.RequestPayload, out interface{}) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	return c.Call(ctx, req, out)
}
