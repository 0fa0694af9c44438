package catalog

import (
	"strings"
)

// IgnoredNames returns the ignore set.
func (c *Catalog) IgnoredNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.doc.IgnoredProcessNames...)
}

// IsIgnored reports whether name is ignored, ignoring case.
func (c *Catalog) IsIgnored(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.IsIgnored(name)
}

// AddIgnored adds name to the ignore set.
func (c *Catalog) AddIgnored(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	c.mutate(func(d *Document) bool {
		if containsFold(d.IgnoredProcessNames, name) {
			return false
		}
		d.IgnoredProcessNames = append(d.IgnoredProcessNames, name)
		return true
	})
	return nil
}

// RemoveIgnored drops name from the ignore set.
func (c *Catalog) RemoveIgnored(name string) bool {
	name = strings.TrimSpace(name)
	return c.mutate(func(d *Document) bool {
		var removed bool
		d.IgnoredProcessNames, removed = removeFold(d.IgnoredProcessNames, name)
		return removed
	})
}

// MonitoredNames returns the monitored process names.
func (c *Catalog) MonitoredNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.doc.MonitoredProcessNames...)
}

// IsMonitored reports whether name is monitored, ignoring case.
func (c *Catalog) IsMonitored(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return containsFold(c.doc.MonitoredProcessNames, name)
}

// AddMonitored adds a process name, trimmed and without a ".exe" suffix.
func (c *Catalog) AddMonitored(name string) error {
	name = strings.TrimSpace(name)
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		name = name[:len(name)-4]
	}
	if name == "" {
		return ErrInvalidName
	}
	c.mutate(func(d *Document) bool {
		if containsFold(d.MonitoredProcessNames, name) {
			return false
		}
		d.MonitoredProcessNames = append(d.MonitoredProcessNames, name)
		return true
	})
	return nil
}

// RemoveMonitored drops a process name from the monitored list.
func (c *Catalog) RemoveMonitored(name string) bool {
	name = strings.TrimSpace(name)
	return c.mutate(func(d *Document) bool {
		var removed bool
		d.MonitoredProcessNames, removed = removeFold(d.MonitoredProcessNames, name)
		return removed
	})
}
