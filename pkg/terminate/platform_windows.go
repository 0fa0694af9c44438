//go:build windows

package terminate

import (
	"context"
	"os"
	"time"
)

// basic only force-kills; window close and console interrupt are not
// implemented on this platform.
type basic struct{}

func NewPlatform() Platform { return basic{} }

func (basic) Exists(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}

func (basic) CanClose(int) bool                  { return false }
func (basic) Close(int) error                    { return nil }
func (basic) HasConsole(int) bool                { return false }
func (basic) AttachConsole(int) (Console, error) { return nil, ErrProcessGone }

func (basic) KillTree(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessGone
	}
	return p.Kill()
}

func (b basic) WaitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !b.Exists(pid) || ctx.Err() != nil {
			return !b.Exists(pid)
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !b.Exists(pid)
}
