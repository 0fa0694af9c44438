// Package discovery turns the OS process and socket tables into sorted
// server records and publishes the list whenever it changes.
package discovery

import (
	"sort"

	"github.com/b/portkeeper/pkg/model"
	"github.com/b/portkeeper/pkg/procscan"
)

// Filter decides which process names discovery reports.
type Filter struct {
	// Ignored names are never reported. Nil ignores nothing.
	Ignored func(name string) bool
	// Monitored, when set, restricts discovery to the names it accepts.
	Monitored func(name string) bool
}

func (f Filter) skip(name string) bool {
	if f.Ignored != nil && f.Ignored(name) {
		return true
	}
	return f.Monitored != nil && !f.Monitored(name)
}

// Apply drops the records the filter no longer accepts. records is not
// modified.
func (f Filter) Apply(records []model.Record) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, rec := range records {
		if !f.skip(rec.Name) {
			out = append(out, rec)
		}
	}
	return out
}

// Correlate joins a port table and a process list into server records,
// one per (process, port), sorted by port. Enumeration order breaks ties.
func Correlate(ports map[int][]int, procs []procscan.Process, cmds procscan.CommandLines, filter Filter) []model.Record {
	var out []model.Record
	for _, p := range procs {
		if filter.skip(p.Name) {
			continue
		}
		listening, ok := ports[p.PID]
		if !ok || len(listening) == 0 {
			continue
		}
		if p.Denied || p.ExecutablePath == "" {
			continue
		}

		var info procscan.CommandInfo
		if cmds != nil {
			info, _ = cmds.CommandLine(p.PID)
		}
		for _, port := range listening {
			out = append(out, model.Record{
				PID:              p.PID,
				Name:             p.Name,
				Port:             port,
				ExecutablePath:   p.ExecutablePath,
				StartTime:        p.StartTime,
				CommandLine:      info.CommandLine,
				WorkingDirectory: info.WorkingDirectory,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// Changed reports whether next differs from prev by (PID, Port).
func Changed(prev, next []model.Record) bool {
	return !model.ListsEqual(prev, next)
}

// Correlator scans a Source with a Filter.
type Correlator struct {
	Source procscan.Source
	// FilterFunc is consulted on every scan so ignore and monitor lists
	// edited at runtime apply to the next poll.
	FilterFunc func() Filter
}

// Scan reads the tables and correlates them. Only a failed process
// enumeration is an error; the port table absorbs its own failures.
func (c *Correlator) Scan() ([]model.Record, error) {
	ports := c.Source.Listeners()
	if len(ports) == 0 {
		return nil, nil
	}
	procs, err := c.Source.Processes()
	if err != nil {
		return nil, err
	}
	var filter Filter
	if c.FilterFunc != nil {
		filter = c.FilterFunc()
	}
	return Correlate(ports, procs, c.Source, filter), nil
}
