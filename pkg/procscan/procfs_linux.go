//go:build linux

package procscan

import (
	"errors"
	"io"
	"io/fs"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/procfs"
)

// tcpListen is the kernel's TCP_LISTEN state in /proc/net/tcp.
const tcpListen = 0x0A

// ProcFS reads the process and socket tables from /proc.
type ProcFS struct {
	fs     procfs.FS
	logger *log.Logger
}

// NewProcFS opens the proc filesystem at mountPoint ("" for /proc).
func NewProcFS(mountPoint string, logger *log.Logger) (*ProcFS, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	pfs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ProcFS{fs: pfs, logger: logger}, nil
}

// Listeners maps PID to the sorted, distinct ports it listens on.
func (p *ProcFS) Listeners() map[int][]int {
	inodes := make(map[uint64]int)
	collect := func(family string, lines procfs.NetTCP, err error) {
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				p.logger.Warn("read tcp table", "family", family, "err", err)
			}
			return
		}
		for _, l := range lines {
			if l.St == tcpListen {
				inodes[l.Inode] = int(l.LocalPort)
			}
		}
	}
	v4, err := p.fs.NetTCP()
	collect("tcp", v4, err)
	v6, err := p.fs.NetTCP6()
	collect("tcp6", v6, err)

	out := make(map[int][]int)
	if len(inodes) == 0 {
		return out
	}

	procs, err := p.fs.AllProcs()
	if err != nil {
		p.logger.Warn("list processes for sockets", "err", err)
		return out
	}
	for _, proc := range procs {
		targets, err := proc.FileDescriptorTargets()
		if err != nil {
			continue
		}
		for _, t := range targets {
			inode, ok := socketInode(t)
			if !ok {
				continue
			}
			if port, ok := inodes[inode]; ok {
				out[proc.PID] = append(out[proc.PID], port)
			}
		}
	}
	for pid, ports := range out {
		out[pid] = dedupePorts(ports)
	}
	return out
}

// socketInode parses an fd link target of the form "socket:[12345]".
func socketInode(target string) (uint64, bool) {
	if !strings.HasPrefix(target, "socket:[") || !strings.HasSuffix(target, "]") {
		return 0, false
	}
	n, err := strconv.ParseUint(target[len("socket:["):len(target)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Processes lists every readable process. Processes that exit mid-scan are
// dropped; permission failures are reported through Process.Denied.
func (p *ProcFS) Processes() ([]Process, error) {
	procs, err := p.fs.AllProcs()
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, proc := range procs {
		comm, err := proc.Comm()
		if err != nil {
			continue
		}
		entry := Process{PID: proc.PID, Name: comm}

		exe, err := proc.Executable()
		switch {
		case errors.Is(err, fs.ErrPermission):
			entry.Denied = true
		case err != nil:
			continue
		default:
			exe = strings.TrimSuffix(exe, " (deleted)")
			entry.ExecutablePath = exe
			if exe != "" {
				entry.Name = filepath.Base(exe)
			}
		}

		if !entry.Denied {
			stat, err := proc.Stat()
			switch {
			case errors.Is(err, fs.ErrPermission):
				entry.Denied = true
			case err != nil:
				continue
			default:
				if secs, err := stat.StartTime(); err == nil {
					whole, frac := math.Modf(secs)
					entry.StartTime = time.Unix(int64(whole), int64(frac*1e9))
				}
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// CommandLine returns argv re-quoted as one string plus the working
// directory.
func (p *ProcFS) CommandLine(pid int) (CommandInfo, bool) {
	proc, err := p.fs.Proc(pid)
	if err != nil {
		return CommandInfo{}, false
	}
	args, err := proc.CmdLine()
	if err != nil || len(args) == 0 {
		return CommandInfo{}, false
	}
	info := CommandInfo{CommandLine: QuoteArgs(args)}
	if cwd, err := proc.Cwd(); err == nil {
		info.WorkingDirectory = cwd
	}
	return info, true
}
