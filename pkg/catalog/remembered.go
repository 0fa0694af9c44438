package catalog

import (
	"github.com/b/portkeeper/pkg/model"
)

// Remembered returns every remembered server.
func (c *Catalog) Remembered() []model.Remembered {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Remembered(nil), c.doc.RememberedServers...)
}

// Lookup returns the remembered server with the given key.
func (c *Catalog) Lookup(key string) (model.Remembered, bool) {
	key = model.NormalizeKey(key)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.doc.RememberedServers {
		if r.Key() == key {
			return r, true
		}
	}
	return model.Remembered{}, false
}

// Remember records a server. A new key is added; a known key only gains a
// command line (and its working directory) when it had none. Known
// command lines are never replaced. It reports whether anything changed.
func (c *Catalog) Remember(r model.Remembered) bool {
	key := r.Key()
	return c.mutate(func(d *Document) bool {
		for i := range d.RememberedServers {
			existing := &d.RememberedServers[i]
			if existing.Key() != key {
				continue
			}
			if r.CommandLine == "" || existing.CommandLine != "" {
				return false
			}
			existing.CommandLine = r.CommandLine
			existing.WorkingDirectory = r.WorkingDirectory
			return true
		}
		d.RememberedServers = append(d.RememberedServers, r)
		return true
	})
}

// Forget removes the remembered entry and the group assignment for key in
// one save.
func (c *Catalog) Forget(key string) bool {
	key = model.NormalizeKey(key)
	return c.mutate(func(d *Document) bool {
		before := len(d.RememberedServers) + len(d.Assignments)
		kept := d.RememberedServers[:0]
		for _, r := range d.RememberedServers {
			if r.Key() != key {
				kept = append(kept, r)
			}
		}
		d.RememberedServers = kept
		d.Assignments = dropAssignments(d.Assignments, sameKey(key))
		return len(d.RememberedServers)+len(d.Assignments) != before
	})
}
