// Package catalog persists what portkeeper remembers about servers:
// groups, group assignments, ignored and monitored process names, and
// servers that have been seen at least once.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/b/portkeeper/pkg/metrics"
	"github.com/b/portkeeper/pkg/model"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrGroupExists   = errors.New("group already exists")
	ErrInvalidName   = errors.New("name must not be empty")
)

// DefaultMonitoredNames seeds an empty monitored list.
var DefaultMonitoredNames = []string{"node", "dotnet"}

// Document is the persisted catalog.
type Document struct {
	Groups                []model.Group      `yaml:"groups"`
	Assignments           []model.Assignment `yaml:"assignments"`
	IgnoredProcessNames   []string           `yaml:"ignoredProcessNames"`
	RememberedServers     []model.Remembered `yaml:"rememberedServers"`
	MonitoredProcessNames []string           `yaml:"monitoredProcessNames"`
}

func (d Document) clone() Document {
	return Document{
		Groups:                append([]model.Group(nil), d.Groups...),
		Assignments:           append([]model.Assignment(nil), d.Assignments...),
		IgnoredProcessNames:   append([]string(nil), d.IgnoredProcessNames...),
		RememberedServers:     append([]model.Remembered(nil), d.RememberedServers...),
		MonitoredProcessNames: append([]string(nil), d.MonitoredProcessNames...),
	}
}

func emptyDocument() Document {
	return Document{MonitoredProcessNames: append([]string(nil), DefaultMonitoredNames...)}
}

// GroupByID returns the group with the given id.
func (d Document) GroupByID(id string) (model.Group, bool) {
	for _, g := range d.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return model.Group{}, false
}

// AssignmentFor returns the group id assigned to key.
func (d Document) AssignmentFor(key string) (string, bool) {
	key = model.NormalizeKey(key)
	for _, a := range d.Assignments {
		if model.NormalizeKey(a.ServerKey) == key {
			return a.GroupID, true
		}
	}
	return "", false
}

// IsIgnored reports whether name is in the ignore set, ignoring case.
func (d Document) IsIgnored(name string) bool {
	return containsFold(d.IgnoredProcessNames, name)
}

// Catalog is the in-memory authority for the document. Every mutation is
// written to disk at once; a failed write is logged and memory is kept.
type Catalog struct {
	path   string
	lock   *flock.Flock
	logger *log.Logger

	mu          sync.RWMutex
	doc         Document
	lastWritten []byte
	saveErr     error
}

// Open loads the catalog at path. A missing or unreadable document yields
// an empty catalog seeded with DefaultMonitoredNames. An empty path keeps
// the catalog in memory only.
func Open(path string, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	c := &Catalog{path: path, logger: logger, doc: emptyDocument()}
	if path == "" {
		return c
	}
	c.lock = flock.New(path + ".lock")

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("read catalog", "path", path, "err", err)
		}
		return c
	}
	doc, err := decode(data)
	if err != nil {
		logger.Warn("catalog is corrupt, starting empty", "path", path, "err", err)
		return c
	}
	c.doc = doc
	c.lastWritten = data
	return c
}

func decode(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(doc.MonitoredProcessNames) == 0 {
		doc.MonitoredProcessNames = append([]string(nil), DefaultMonitoredNames...)
	}
	return doc, nil
}

// Path returns the backing file, empty for an in-memory catalog.
func (c *Catalog) Path() string {
	return c.path
}

// Snapshot returns a copy of the whole document.
func (c *Catalog) Snapshot() Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.clone()
}

// LastSaveError returns the error of the most recent save, nil on success.
func (c *Catalog) LastSaveError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveErr
}

// mutate applies fn under the write lock and saves when fn reports a change.
func (c *Catalog) mutate(fn func(d *Document) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !fn(&c.doc) {
		return false
	}
	c.saveLocked()
	return true
}

func (c *Catalog) saveLocked() {
	if c.path == "" {
		return
	}
	data, err := yaml.Marshal(c.doc)
	if err == nil {
		err = c.write(data)
	}
	c.saveErr = err
	if err != nil {
		metrics.CatalogSaveErrors.Inc()
		c.logger.Error("save catalog", "path", c.path, "err", err)
		return
	}
	c.lastWritten = data
}

// write replaces the file atomically while holding the cross-process lock.
func (c *Catalog) write(data []byte) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock catalog: %w", err)
	}
	defer func() { _ = c.lock.Unlock() }()

	tmp, err := os.CreateTemp(dir, ".catalog-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp catalog: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

// reload replaces memory with data read from disk. It reports false when
// data is empty, is what this catalog last wrote, or cannot be parsed.
func (c *Catalog) reload(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(data, c.lastWritten) {
		return false
	}
	doc, err := decode(data)
	if err != nil {
		c.logger.Warn("ignoring unparsable catalog edit", "path", c.path, "err", err)
		return false
	}
	c.doc = doc
	c.lastWritten = data
	return true
}

func containsFold(list []string, name string) bool {
	for _, n := range list {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func removeFold(list []string, name string) ([]string, bool) {
	out := list[:0]
	removed := false
	for _, n := range list {
		if strings.EqualFold(n, name) {
			removed = true
			continue
		}
		out = append(out, n)
	}
	return out, removed
}
