//go:build !windows

package terminate

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

const pollInterval = 50 * time.Millisecond

// Unix maps the escalation onto signals: SIGTERM for close, SIGINT to the
// target's process group for interrupt, SIGKILL to the tree.
type Unix struct {
	info procInfo
	// selfPgid is never signalled as a group.
	selfPgid int
}

// NewPlatform returns the platform for the running OS.
func NewPlatform() Platform {
	return &Unix{info: newProcInfo(), selfPgid: unix.Getpgrp()}
}

func signal(pid int, sig unix.Signal) error {
	err := unix.Kill(pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return ErrProcessGone
	}
	return err
}

func (u *Unix) Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return false
	}
	return !u.info.zombie(pid)
}

// CanClose is true for any live process: every unix process can be sent
// SIGTERM.
func (u *Unix) CanClose(pid int) bool {
	return u.Exists(pid)
}

func (u *Unix) Close(pid int) error {
	return signal(pid, unix.SIGTERM)
}

// HasConsole reports whether the process has a controlling terminal.
func (u *Unix) HasConsole(pid int) bool {
	return u.info.tty(pid) != 0
}

func (u *Unix) AttachConsole(pid int) (Console, error) {
	pgid, err := unix.Getpgid(pid)
	if errors.Is(err, unix.ESRCH) {
		return nil, ErrProcessGone
	}
	if err != nil {
		return nil, err
	}
	return &ttyConsole{pid: pid, pgid: pgid, selfPgid: u.selfPgid}, nil
}

type ttyConsole struct {
	pid      int
	pgid     int
	selfPgid int
}

// Interrupt sends SIGINT the way a terminal's Ctrl-C does, to the whole
// foreground group, unless that group is our own.
func (c *ttyConsole) Interrupt() error {
	if c.pgid > 0 && c.pgid != c.selfPgid {
		return signal(-c.pgid, unix.SIGINT)
	}
	return signal(c.pid, unix.SIGINT)
}

// Release is a no-op: signalling does not take over our terminal.
func (c *ttyConsole) Release() {}

func (u *Unix) KillTree(pid int) error {
	return killTree(pid, u.info.descendants(pid), func(p int) error {
		return signal(p, unix.SIGKILL)
	})
}

func (u *Unix) WaitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if !u.Exists(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return !u.Exists(pid)
		case <-ticker.C:
		}
	}
}
