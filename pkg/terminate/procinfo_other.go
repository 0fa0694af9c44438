//go:build !linux && !windows

package terminate

type procInfo struct{}

func newProcInfo() procInfo { return procInfo{} }

func (procInfo) zombie(int) bool { return false }

// tty is unknown without /proc; the interrupt stage is skipped.
func (procInfo) tty(int) int { return 0 }

func (procInfo) descendants(int) []int { return nil }
