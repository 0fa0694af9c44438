package grouping

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/b/portkeeper/pkg/catalog"
	"github.com/b/portkeeper/pkg/colors"
	"github.com/b/portkeeper/pkg/model"
	"github.com/b/portkeeper/pkg/perf"
)

// Store is the catalog surface the reconciler reads and memorizes into.
type Store interface {
	Snapshot() catalog.Document
	Remember(model.Remembered) bool
}

// Row is one line of the presentation list. A row is created once per
// server key and reused for as long as the key is live or remembered.
type Row struct {
	ID     uint64       `json:"id"`
	Key    string       `json:"key"`
	Record model.Record `json:"record"`

	Running    bool   `json:"running"`
	GroupID    string `json:"group_id,omitempty"`
	GroupName  string `json:"group_name,omitempty"`
	GroupColor string `json:"group_color,omitempty"`

	// Last known launch info. Kept when a later record lacks it.
	CommandLine      string `json:"command_line,omitempty"`
	WorkingDirectory string `json:"working_directory,omitempty"`

	Terminating bool `json:"terminating,omitempty"`
	Starting    bool `json:"starting,omitempty"`
}

// Grouped reports whether the row has a resolved group.
func (r Row) Grouped() bool {
	return r.GroupName != ""
}

// CanStart reports whether the row is stopped with a known command line.
func (r Row) CanStart() bool {
	return !r.Running && !r.Starting && r.CommandLine != ""
}

// View is an ordered, immutable copy of the presentation list.
type View struct {
	Rows    []Row  `json:"rows"`
	Running int    `json:"running"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
}

// Options tune reconciliation.
type Options struct {
	// HideIgnoredRemembered drops stopped rows whose process name is in
	// the ignore set. Running rows of ignored names never reach the
	// reconciler.
	HideIgnoredRemembered bool
}

// Reconciler merges live records with remembered servers and group
// assignments into one ordered list.
type Reconciler struct {
	store Store
	opts  Options

	mu     sync.Mutex
	rows   map[string]*Row
	order  []*Row
	nextID uint64
}

func NewReconciler(store Store, opts Options) *Reconciler {
	return &Reconciler{
		store: store,
		opts:  opts,
		rows:  make(map[string]*Row),
	}
}

// SetOptions replaces the options used by the next reconciliation.
func (r *Reconciler) SetOptions(opts Options) {
	r.mu.Lock()
	r.opts = opts
	r.mu.Unlock()
}

// Reconcile merges live into the presentation list and returns it.
// Newly seen servers are memorized in the store; known ones gain any
// command line the store was missing.
func (r *Reconciler) Reconcile(live []model.Record) View {
	defer perf.Start("grouping.reconcile").Stop()

	byKey := make(map[string]model.Record, len(live))
	var liveOrder []string
	for _, rec := range live {
		key := rec.Key()
		if _, dup := byKey[key]; dup {
			continue
		}
		byKey[key] = rec
		liveOrder = append(liveOrder, key)
	}

	for _, key := range liveOrder {
		rec := byKey[key]
		r.store.Remember(model.Remembered{
			ProcessName:      rec.Name,
			Port:             rec.Port,
			CommandLine:      rec.CommandLine,
			WorkingDirectory: rec.WorkingDirectory,
		})
	}
	doc := r.store.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*Row, len(byKey)+len(doc.RememberedServers))
	for _, key := range liveOrder {
		rec := byKey[key]
		row := r.rowFor(key)
		row.Record = rec
		row.Running = true
		if rec.CommandLine != "" {
			row.CommandLine = rec.CommandLine
			row.WorkingDirectory = rec.WorkingDirectory
		}
		next[key] = row
	}

	for _, rem := range doc.RememberedServers {
		key := rem.Key()
		if _, ok := next[key]; ok {
			continue
		}
		if r.opts.HideIgnoredRemembered && doc.IsIgnored(rem.ProcessName) {
			continue
		}
		row, existed := r.rows[key]
		if !existed {
			row = r.rowFor(key)
			row.Record = rem.Placeholder()
		}
		row.Running = false
		row.Terminating = false
		if row.CommandLine == "" {
			row.CommandLine = rem.CommandLine
			row.WorkingDirectory = rem.WorkingDirectory
		}
		next[key] = row
	}

	for _, row := range next {
		resolveGroup(row, doc)
		if row.Running {
			row.Starting = false
		}
	}

	r.rows = next
	r.order = ordered(next)
	return r.viewLocked()
}

// rowFor returns the existing row for key or a fresh one.
func (r *Reconciler) rowFor(key string) *Row {
	if row, ok := r.rows[key]; ok {
		return row
	}
	r.nextID++
	return &Row{ID: r.nextID, Key: key}
}

func resolveGroup(row *Row, doc catalog.Document) {
	row.GroupID, row.GroupName, row.GroupColor = "", "", ""
	id, ok := doc.AssignmentFor(row.Key)
	if !ok {
		return
	}
	for i, g := range doc.Groups {
		if g.ID != id {
			continue
		}
		row.GroupID = g.ID
		row.GroupName = g.Name
		row.GroupColor = g.Color
		if row.GroupColor == "" {
			row.GroupColor = colors.GroupColor(i)
		}
		return
	}
}

// ordered sorts grouped rows first, then by group name, then by port.
// The key breaks remaining ties so equal inputs give equal order.
func ordered(rows map[string]*Row) []*Row {
	out := make([]*Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Grouped() != b.Grouped() {
			return a.Grouped()
		}
		if a.GroupName != b.GroupName {
			la, lb := strings.ToLower(a.GroupName), strings.ToLower(b.GroupName)
			if la != lb {
				return la < lb
			}
			return a.GroupName < b.GroupName
		}
		if a.Record.Port != b.Record.Port {
			return a.Record.Port < b.Record.Port
		}
		return a.Key < b.Key
	})
	return out
}

// View returns the current list without reconciling.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Reconciler) viewLocked() View {
	v := View{Rows: make([]Row, len(r.order)), Total: len(r.order)}
	for i, row := range r.order {
		v.Rows[i] = *row
		if row.Running {
			v.Running++
		}
	}
	v.Status = Status(v.Running, v.Total)
	return v
}

// Row returns a copy of the row for key.
func (r *Reconciler) Row(key string) (Row, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[model.NormalizeKey(key)]
	if !ok {
		return Row{}, false
	}
	return *row, true
}

// FindPID returns the running row for pid.
func (r *Reconciler) FindPID(pid int) (Row, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.order {
		if row.Running && row.Record.PID == pid {
			return *row, true
		}
	}
	return Row{}, false
}

// Update applies fn to the row for key under the lock. It reports false
// when there is no such row.
func (r *Reconciler) Update(key string, fn func(row *Row)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[model.NormalizeKey(key)]
	if !ok {
		return false
	}
	fn(row)
	return true
}

// Remove drops the row for key at once, ahead of the next reconciliation.
func (r *Reconciler) Remove(key string) bool {
	key = model.NormalizeKey(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[key]; !ok {
		return false
	}
	delete(r.rows, key)
	r.order = ordered(r.rows)
	return true
}

// Status renders the running summary line.
func Status(running, total int) string {
	switch {
	case total == 0:
		return "No servers"
	case running == total && running == 1:
		return "1 server running"
	case running == total:
		return strconv.Itoa(running) + " servers running"
	default:
		return strconv.Itoa(running) + " of " + strconv.Itoa(total) + " running"
	}
}
