// Package launch starts a remembered server from its command line on a
// fresh pseudo-terminal.
package launch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"github.com/google/shlex"
)

const drainTimeout = 2 * time.Second

var (
	ErrEmptyCommand = errors.New("empty command line")
	ErrBadWorkDir   = errors.New("working directory is not a directory")
)

// ParseCommandLine splits a command line into the executable and its
// arguments using shell quoting rules.
func ParseCommandLine(commandLine string) (string, []string, error) {
	args, err := shlex.Split(commandLine)
	if err != nil {
		return "", nil, fmt.Errorf("parse command line: %w", err)
	}
	if len(args) == 0 {
		return "", nil, ErrEmptyCommand
	}
	return args[0], args[1:], nil
}

// Process is a server started by the Launcher.
type Process struct {
	PID     int
	LogPath string
	// Done is closed once the process has been reaped.
	Done <-chan struct{}
}

type Options struct {
	// LogDir receives one output file per started server when LogOutput
	// is set.
	LogDir    string
	LogOutput bool
	Logger    *log.Logger
}

// Launcher spawns processes, each in its own session with a controlling
// terminal, so a later console interrupt reaches its whole group.
type Launcher struct {
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	running map[int]*exec.Cmd
}

func New(opts Options) *Launcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Launcher{opts: opts, logger: logger, running: make(map[int]*exec.Cmd)}
}

// Start runs commandLine in workDir. label names the output log
// ("node:3000" logs to node-3000.log). The child is reaped in the
// background.
func (l *Launcher) Start(commandLine, workDir, label string) (Process, error) {
	name, args, err := ParseCommandLine(commandLine)
	if err != nil {
		return Process{}, err
	}
	if workDir != "" {
		info, err := os.Stat(workDir)
		if err != nil {
			return Process{}, fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return Process{}, fmt.Errorf("%w: %s", ErrBadWorkDir, workDir)
		}
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()

	out, logPath := l.openLog(label)
	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 40, Cols: 160})
	if err != nil {
		if c, ok := out.(io.Closer); ok {
			c.Close()
		}
		return Process{}, fmt.Errorf("start %s: %w", name, err)
	}

	pid := cmd.Process.Pid
	l.mu.Lock()
	l.running[pid] = cmd
	l.mu.Unlock()

	done := make(chan struct{})
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		// Reading returns EIO once the child side closes.
		_, _ = io.Copy(out, tty)
	}()
	go func() {
		defer close(done)
		err := cmd.Wait()
		// Drain what the child wrote, unless a grandchild keeps the
		// terminal open.
		select {
		case <-copied:
		case <-time.After(drainTimeout):
		}
		tty.Close()
		<-copied
		if c, ok := out.(io.Closer); ok {
			c.Close()
		}
		l.mu.Lock()
		delete(l.running, pid)
		l.mu.Unlock()
		l.logger.Info("started server exited", "pid", pid, "label", label, "err", err)
	}()

	l.logger.Info("started server", "pid", pid, "label", label, "dir", workDir, "log", logPath)
	return Process{PID: pid, LogPath: logPath, Done: done}, nil
}

// Running returns the PIDs of started processes not yet reaped, in
// ascending order.
func (l *Launcher) Running() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pids := make([]int, 0, len(l.running))
	for pid := range l.running {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

func (l *Launcher) openLog(label string) (io.Writer, string) {
	if !l.opts.LogOutput || l.opts.LogDir == "" {
		return io.Discard, ""
	}
	if err := os.MkdirAll(l.opts.LogDir, 0755); err != nil {
		l.logger.Warn("create log dir", "dir", l.opts.LogDir, "err", err)
		return io.Discard, ""
	}
	path := filepath.Join(l.opts.LogDir, LogFileName(label))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.logger.Warn("open server log", "path", path, "err", err)
		return io.Discard, ""
	}
	return f, path
}

// LogFileName maps a label to a safe file name.
func LogFileName(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "server"
	}
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '-'
	}, label)
	return clean + ".log"
}
