//go:build linux

package terminate

import (
	"github.com/prometheus/procfs"
)

type procInfo struct {
	fs procfs.FS
	ok bool
}

func newProcInfo() procInfo {
	fs, err := procfs.NewDefaultFS()
	return procInfo{fs: fs, ok: err == nil}
}

func (p procInfo) stat(pid int) (procfs.ProcStat, bool) {
	if !p.ok {
		return procfs.ProcStat{}, false
	}
	proc, err := p.fs.Proc(pid)
	if err != nil {
		return procfs.ProcStat{}, false
	}
	st, err := proc.Stat()
	if err != nil {
		return procfs.ProcStat{}, false
	}
	return st, true
}

func (p procInfo) zombie(pid int) bool {
	st, ok := p.stat(pid)
	return ok && (st.State == "Z" || st.State == "X")
}

func (p procInfo) tty(pid int) int {
	st, ok := p.stat(pid)
	if !ok {
		return 0
	}
	return st.TTY
}

// descendants lists every process below pid, parents before children.
func (p procInfo) descendants(pid int) []int {
	if !p.ok {
		return nil
	}
	procs, err := p.fs.AllProcs()
	if err != nil {
		return nil
	}
	children := make(map[int][]int)
	for _, proc := range procs {
		st, err := proc.Stat()
		if err != nil {
			continue
		}
		children[st.PPID] = append(children[st.PPID], proc.PID)
	}
	return walkTree(children, pid)
}
