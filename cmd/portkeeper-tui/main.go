package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/b/portkeeper/pkg/colors"
	"github.com/b/portkeeper/pkg/config"
	"github.com/b/portkeeper/pkg/paths"
)

var (
	socketFlag = flag.String("socket", "", "daemon socket path")
	configFlag = flag.String("config", "", "path to config.yaml")
	themeFlag  = flag.String("theme", "auto", "background: auto, dark or light")
)

func socketPath() string {
	if *socketFlag != "" {
		return *socketFlag
	}
	return paths.SocketPath()
}

func main() {
	flag.Parse()

	path := *configFlag
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		cfg = config.Default()
	}

	lipgloss.SetColorProfile(termenv.EnvColorProfile())
	dark := colors.DarkBackground(colors.ThemeMode(*themeFlag))

	p := tea.NewProgram(newModel(newStyles(cfg.UI, dark)), tea.WithAltScreen())

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
