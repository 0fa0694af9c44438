// Package terminate stops a foreign process by escalating through polite
// close, console interrupt, and finally a forced kill of its process tree.
package terminate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultForceKillWait = 2 * time.Second
)

// ErrProcessGone is returned by a Platform when the target has already
// exited. The escalator reads it as success.
var ErrProcessGone = errors.New("process no longer exists")

// Stage is one step of an escalation.
type Stage int

const (
	StageResolve Stage = iota
	StageClose
	StageInterrupt
	StageForceKill
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageResolve:
		return "resolve"
	case StageClose:
		return "close"
	case StageInterrupt:
		return "interrupt"
	case StageForceKill:
		return "force_kill"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Console is a target's console held for the duration of one interrupt.
type Console interface {
	Interrupt() error
	// Release restores the caller's own console state.
	Release()
}

// Platform is the OS surface the escalator drives.
type Platform interface {
	Exists(pid int) bool
	// CanClose reports whether the process accepts a polite close request.
	CanClose(pid int) bool
	Close(pid int) error
	HasConsole(pid int) bool
	AttachConsole(pid int) (Console, error)
	// KillTree kills pid and all of its descendants.
	KillTree(pid int) error
	// WaitExit reports whether pid exited within timeout.
	WaitExit(ctx context.Context, pid int, timeout time.Duration) bool
}

// Result is the outcome of one escalation. Stage is the stage that
// finished it.
type Result struct {
	PID   int
	OK    bool
	Stage Stage
	Err   error
}

type Options struct {
	Timeout       time.Duration
	ForceKillWait time.Duration
	Logger        *log.Logger
}

// Escalator runs escalations against a Platform.
type Escalator struct {
	platform      Platform
	timeout       time.Duration
	forceKillWait time.Duration
	logger        *log.Logger
}

func New(platform Platform, opts Options) *Escalator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ForceKillWait <= 0 {
		opts.ForceKillWait = DefaultForceKillWait
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Escalator{
		platform:      platform,
		timeout:       opts.Timeout,
		forceKillWait: opts.ForceKillWait,
		logger:        opts.Logger,
	}
}

// Terminate escalates until pid is gone or every stage is spent. timeout
// <= 0 uses the escalator's default; half of it goes to the close stage
// and half to the interrupt stage. The call blocks.
func (e *Escalator) Terminate(ctx context.Context, pid int, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = e.timeout
	}
	half := timeout / 2
	logger := e.logger.With("pid", pid)

	stage := StageResolve
	for {
		if err := ctx.Err(); err != nil {
			return Result{PID: pid, Stage: stage, Err: err}
		}

		switch stage {
		case StageResolve:
			if !e.platform.Exists(pid) {
				logger.Debug("process already gone")
				return Result{PID: pid, OK: true, Stage: StageResolve}
			}
			stage = StageClose

		case StageClose:
			if e.platform.CanClose(pid) {
				err := e.platform.Close(pid)
				switch {
				case errors.Is(err, ErrProcessGone):
					return Result{PID: pid, OK: true, Stage: StageClose}
				case err != nil:
					logger.Debug("close request failed", "err", err)
				case e.platform.WaitExit(ctx, pid, half):
					logger.Info("process closed")
					return Result{PID: pid, OK: true, Stage: StageClose}
				}
			}
			stage = StageInterrupt

		case StageInterrupt:
			if e.platform.HasConsole(pid) {
				err := e.interrupt(pid)
				switch {
				case errors.Is(err, ErrProcessGone):
					return Result{PID: pid, OK: true, Stage: StageInterrupt}
				case err != nil:
					logger.Debug("interrupt failed", "err", err)
				case e.platform.WaitExit(ctx, pid, half):
					logger.Info("process interrupted")
					return Result{PID: pid, OK: true, Stage: StageInterrupt}
				}
			}
			stage = StageForceKill

		case StageForceKill:
			logger.Warn("process did not exit, killing tree")
			err := e.platform.KillTree(pid)
			if errors.Is(err, ErrProcessGone) {
				return Result{PID: pid, OK: true, Stage: StageForceKill}
			}
			if e.platform.WaitExit(ctx, pid, e.forceKillWait) {
				return Result{PID: pid, OK: true, Stage: StageForceKill}
			}
			if err == nil {
				err = fmt.Errorf("process %d still running after force kill", pid)
			}
			logger.Error("termination failed", "err", err)
			return Result{PID: pid, Stage: StageForceKill, Err: err}

		default:
			return Result{PID: pid, Stage: StageDone}
		}
	}
}

// TerminateAsync runs Terminate in a goroutine. The channel receives one
// Result and is closed.
func (e *Escalator) TerminateAsync(ctx context.Context, pid int, timeout time.Duration) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- e.Terminate(ctx, pid, timeout)
	}()
	return ch
}

// consoleMu serializes console interrupts process-wide: attaching to a
// target console replaces our own until released.
var consoleMu sync.Mutex

func (e *Escalator) interrupt(pid int) (err error) {
	consoleMu.Lock()
	defer consoleMu.Unlock()

	console, err := e.platform.AttachConsole(pid)
	if err != nil {
		return err
	}
	defer console.Release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("console interrupt panicked: %v", r)
		}
	}()
	return console.Interrupt()
}
