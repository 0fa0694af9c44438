// Package monitor wires discovery, the catalog, the reconciler, the
// termination escalator and the launcher into the operator actions.
package monitor

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/b/portkeeper/pkg/catalog"
	"github.com/b/portkeeper/pkg/discovery"
	"github.com/b/portkeeper/pkg/grouping"
	"github.com/b/portkeeper/pkg/launch"
	"github.com/b/portkeeper/pkg/metrics"
	"github.com/b/portkeeper/pkg/procscan"
	"github.com/b/portkeeper/pkg/terminate"
)

var (
	ErrBusy          = errors.New("server is busy")
	ErrNotRunning    = errors.New("server is not running")
	ErrNoCommandLine = errors.New("no command line known for server")
	ErrUnknownServer = errors.New("unknown server")
)

// Starter launches a command line.
type Starter interface {
	Start(commandLine, workDir, label string) (launch.Process, error)
}

// launchTracker is a Starter that also reports the processes it started
// and still owns.
type launchTracker interface {
	Running() []int
}

type Deps struct {
	Source   procscan.Source
	Catalog  *catalog.Catalog
	Platform terminate.Platform
	Starter  Starter
	Logger   *log.Logger
}

type Options struct {
	Interval         time.Duration
	TerminateTimeout time.Duration
	ForceKillWait    time.Duration
	// SettleDelay is the wait between starting a server and refreshing.
	SettleDelay           time.Duration
	OnlyMonitored         bool
	HideIgnoredRemembered bool
}

// Status summarizes the monitor for operators.
type Status struct {
	Running   int      `json:"running"`
	Total     int      `json:"total"`
	Summary   string   `json:"summary"`
	Polling   bool     `json:"polling"`
	Ignored   []string `json:"ignored"`
	Monitored []string `json:"monitored"`
	Catalog   string   `json:"catalog,omitempty"`
	// Launched lists pids started by this daemon that have not exited.
	Launched []int `json:"launched,omitempty"`
}

// Monitor owns the live view. All methods are safe for concurrent use.
type Monitor struct {
	opts    Options
	logger  *log.Logger
	catalog *catalog.Catalog
	starter Starter

	loop       *discovery.Loop
	reconciler *grouping.Reconciler
	escalator  *terminate.Escalator

	// reconcileMu orders reconcile-and-publish so subscribers see views
	// in the order they were computed.
	reconcileMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan grouping.View
	nextID int

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(deps Deps, opts Options) *Monitor {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	m := &Monitor{
		opts:    opts,
		logger:  logger,
		catalog: deps.Catalog,
		starter: deps.Starter,
		subs:    make(map[int]chan grouping.View),
	}
	correlator := &discovery.Correlator{Source: deps.Source, FilterFunc: m.filter}
	m.loop = discovery.NewLoop(correlator, opts.Interval, logger.WithPrefix("discovery"))
	m.reconciler = grouping.NewReconciler(deps.Catalog, grouping.Options{
		HideIgnoredRemembered: opts.HideIgnoredRemembered,
	})
	m.escalator = terminate.New(deps.Platform, terminate.Options{
		Timeout:       opts.TerminateTimeout,
		ForceKillWait: opts.ForceKillWait,
		Logger:        logger.WithPrefix("terminate"),
	})
	return m
}

func (m *Monitor) filter() discovery.Filter {
	f := discovery.Filter{Ignored: m.catalog.IsIgnored}
	if m.opts.OnlyMonitored {
		f.Monitored = m.catalog.IsMonitored
	}
	return f
}

// Start begins polling and watching the catalog file. It is a no-op when
// already started.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	changes, unsubscribe := m.loop.Subscribe()
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		defer unsubscribe()
		m.reconcile()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				m.reconcile()
			}
		}
	}()
	go func() {
		defer m.wg.Done()
		err := m.catalog.Watch(ctx, func() { m.regroup() })
		if err != nil {
			m.logger.Warn("catalog watch stopped", "err", err)
		}
	}()
	m.loop.Start()
}

// Stop halts polling. Terminations and starts already under way finish.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.runMu.Unlock()
	if cancel == nil {
		return
	}
	m.loop.Stop()
	cancel()
	m.wg.Wait()
}

// Refresh polls now and returns the reconciled view.
func (m *Monitor) Refresh() grouping.View {
	m.loop.Refresh()
	return m.reconcile()
}

// rescan is Refresh after a catalog edit that changes what discovery
// reports.
func (m *Monitor) rescan() grouping.View {
	m.loop.Rescan()
	return m.reconcile()
}

// View returns the current view without polling.
func (m *Monitor) View() grouping.View {
	return m.reconciler.View()
}

// reconcile merges the last polled list into the view. The list is
// filtered again with the current catalog: a poll that began before an
// ignore must not memorize the ignored server.
func (m *Monitor) reconcile() grouping.View {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()
	v := m.reconciler.Reconcile(m.filter().Apply(m.loop.Current()))
	m.publish(v)
	return v
}

// regroup re-applies catalog data to the last live list.
func (m *Monitor) regroup() grouping.View {
	return m.reconcile()
}

// republish sends the current view after a row flag changed.
func (m *Monitor) republish() grouping.View {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()
	v := m.reconciler.View()
	m.publish(v)
	return v
}

// Subscribe returns a channel of views. A slow reader sees only the
// latest one.
func (m *Monitor) Subscribe() (<-chan grouping.View, func()) {
	ch := make(chan grouping.View, 1)
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Monitor) publish(v grouping.View) {
	metrics.SetServers(v.Running, v.Total)
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Status reports counts and the name lists.
func (m *Monitor) Status() Status {
	v := m.reconciler.View()
	st := Status{
		Running:   v.Running,
		Total:     v.Total,
		Summary:   v.Status,
		Polling:   m.loop.Running(),
		Ignored:   m.catalog.IgnoredNames(),
		Monitored: m.catalog.MonitoredNames(),
		Catalog:   m.catalog.Path(),
	}
	if t, ok := m.starter.(launchTracker); ok {
		st.Launched = t.Running()
	}
	return st
}

// labelFor names a started command for its log file.
func labelFor(commandLine string) string {
	name, _, err := launch.ParseCommandLine(commandLine)
	if err != nil {
		return "server"
	}
	return filepath.Base(name)
}
