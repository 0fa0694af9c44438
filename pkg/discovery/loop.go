package discovery

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/b/portkeeper/pkg/metrics"
	"github.com/b/portkeeper/pkg/model"
	"github.com/b/portkeeper/pkg/perf"
)

const DefaultInterval = 2 * time.Second

// Scanner produces one fresh list of server records.
type Scanner interface {
	Scan() ([]model.Record, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func() ([]model.Record, error)

func (f ScannerFunc) Scan() ([]model.Record, error) { return f() }

// Loop polls a Scanner on a fixed interval and publishes the list to
// subscribers when it changes. Polls never overlap: a refresh that arrives
// while a poll runs joins it, and a rescan waits for it.
type Loop struct {
	scanner  Scanner
	interval time.Duration
	logger   *log.Logger

	flight singleflight.Group
	pollMu sync.Mutex

	mu   sync.RWMutex
	last []model.Record

	subMu  sync.Mutex
	subs   map[int]chan []model.Record
	nextID int

	runMu sync.Mutex
	stop  chan struct{}
}

// NewLoop creates a stopped loop. interval <= 0 means DefaultInterval.
func NewLoop(scanner Scanner, interval time.Duration, logger *log.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Loop{
		scanner:  scanner,
		interval: interval,
		logger:   logger,
		subs:     make(map[int]chan []model.Record),
	}
}

// Start begins polling with an immediate first poll. It is a no-op when
// already running.
func (l *Loop) Start() {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.stop != nil {
		return
	}
	stop := make(chan struct{})
	l.stop = stop
	go l.run(stop)
}

// Stop halts further ticks. A poll already in flight completes.
func (l *Loop) Stop() {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.stop == nil {
		return
	}
	close(l.stop)
	l.stop = nil
}

// Running reports whether the ticker is active.
func (l *Loop) Running() bool {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	return l.stop != nil
}

func (l *Loop) run(stop chan struct{}) {
	l.Refresh()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			l.Refresh()
		}
	}
}

// Refresh runs one poll synchronously, also while stopped, and reports
// whether the list changed. Failures are logged and read as unchanged.
func (l *Loop) Refresh() bool {
	v, _, _ := l.flight.Do("poll", func() (interface{}, error) {
		return l.poll(), nil
	})
	changed, _ := v.(bool)
	return changed
}

// Rescan is Refresh for callers that just changed what a scan reports.
// It never joins a poll that began before the call; it waits for that
// poll and then scans again.
func (l *Loop) Rescan() bool {
	l.flight.Forget("poll")
	return l.Refresh()
}

func (l *Loop) poll() (changed bool) {
	l.pollMu.Lock()
	defer l.pollMu.Unlock()
	timer := perf.Start("discovery.poll")
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			l.logger.Error("discovery poll panicked", "panic", r)
			changed = false
		}
		metrics.ObservePoll(timer.Stop(), changed, err)
	}()

	records, err := l.scanner.Scan()
	if err != nil {
		l.logger.Warn("discovery poll failed", "err", err)
		return false
	}

	l.mu.Lock()
	if !Changed(l.last, records) {
		l.mu.Unlock()
		return false
	}
	l.last = records
	l.mu.Unlock()

	l.logger.Debug("servers changed", "count", len(records))
	l.publish(records)
	return true
}

// Current returns the last published list. Callers must not modify it.
func (l *Loop) Current() []model.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Subscribe returns a channel that receives every changed list. The
// channel holds one value; a slow reader sees only the latest list.
func (l *Loop) Subscribe() (<-chan []model.Record, func()) {
	ch := make(chan []model.Record, 1)
	l.subMu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, id)
			l.subMu.Unlock()
		})
	}
	return ch, cancel
}

func (l *Loop) publish(records []model.Record) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- records:
		default:
		}
	}
}
