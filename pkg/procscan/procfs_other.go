//go:build !linux

package procscan

import "github.com/charmbracelet/log"

// ProcFS is empty on platforms without /proc; discovery finds nothing.
type ProcFS struct{}

func NewProcFS(string, *log.Logger) (*ProcFS, error) {
	return &ProcFS{}, nil
}

func (*ProcFS) Listeners() map[int][]int {
	return map[int][]int{}
}

func (*ProcFS) Processes() ([]Process, error) {
	return nil, nil
}

func (*ProcFS) CommandLine(int) (CommandInfo, bool) {
	return CommandInfo{}, false
}
