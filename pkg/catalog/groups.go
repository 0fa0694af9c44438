package catalog

import (
	"strings"

	"github.com/google/uuid"

	"github.com/b/portkeeper/pkg/model"
)

// Groups returns all groups in creation order.
func (c *Catalog) Groups() []model.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Group(nil), c.doc.Groups...)
}

// Group returns the group with the given id.
func (c *Catalog) Group(id string) (model.Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.GroupByID(id)
}

// FindGroupByName looks a group up by display name, ignoring case.
func (c *Catalog) FindGroupByName(name string) (model.Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return findByName(c.doc.Groups, name)
}

func findByName(groups []model.Group, name string) (model.Group, bool) {
	name = strings.TrimSpace(name)
	for _, g := range groups {
		if strings.EqualFold(g.Name, name) {
			return g, true
		}
	}
	return model.Group{}, false
}

// CreateGroup adds a group with a fresh id.
func (c *Catalog) CreateGroup(name, color string) (model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Group{}, ErrInvalidName
	}
	g := model.Group{ID: uuid.NewString(), Name: name, Color: strings.TrimSpace(color)}
	var err error
	c.mutate(func(d *Document) bool {
		if _, exists := findByName(d.Groups, name); exists {
			err = ErrGroupExists
			return false
		}
		d.Groups = append(d.Groups, g)
		return true
	})
	if err != nil {
		return model.Group{}, err
	}
	return g, nil
}

// GroupUpdate names the fields UpdateGroup changes. Nil leaves a field.
type GroupUpdate struct {
	Name  *string
	Color *string
}

// UpdateGroup renames or recolors a group.
func (c *Catalog) UpdateGroup(id string, u GroupUpdate) (model.Group, error) {
	var (
		out model.Group
		err error
	)
	c.mutate(func(d *Document) bool {
		idx := -1
		for i, g := range d.Groups {
			if g.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			err = ErrGroupNotFound
			return false
		}
		g := d.Groups[idx]
		if u.Name != nil {
			name := strings.TrimSpace(*u.Name)
			if name == "" {
				err = ErrInvalidName
				return false
			}
			if other, exists := findByName(d.Groups, name); exists && other.ID != id {
				err = ErrGroupExists
				return false
			}
			g.Name = name
		}
		if u.Color != nil {
			g.Color = strings.TrimSpace(*u.Color)
		}
		out = g
		if g == d.Groups[idx] {
			return false
		}
		d.Groups[idx] = g
		return true
	})
	return out, err
}

// DeleteGroup removes a group and every assignment that references it in
// one save.
func (c *Catalog) DeleteGroup(id string) error {
	var err error
	c.mutate(func(d *Document) bool {
		groups := d.Groups[:0]
		found := false
		for _, g := range d.Groups {
			if g.ID == id {
				found = true
				continue
			}
			groups = append(groups, g)
		}
		if !found {
			err = ErrGroupNotFound
			return false
		}
		d.Groups = groups
		d.Assignments = dropAssignments(d.Assignments, func(a model.Assignment) bool {
			return a.GroupID == id
		})
		return true
	})
	return err
}

// Assignment returns the group id key is assigned to.
func (c *Catalog) Assignment(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.AssignmentFor(key)
}

// Assign places key in group groupID, replacing any earlier assignment.
func (c *Catalog) Assign(key, groupID string) error {
	key = model.NormalizeKey(key)
	var err error
	c.mutate(func(d *Document) bool {
		if _, ok := d.GroupByID(groupID); !ok {
			err = ErrGroupNotFound
			return false
		}
		if cur, ok := d.AssignmentFor(key); ok && cur == groupID {
			return false
		}
		d.Assignments = dropAssignments(d.Assignments, sameKey(key))
		d.Assignments = append(d.Assignments, model.Assignment{ServerKey: key, GroupID: groupID})
		return true
	})
	return err
}

// Unassign removes key from its group. It reports whether key had one.
func (c *Catalog) Unassign(key string) bool {
	key = model.NormalizeKey(key)
	return c.mutate(func(d *Document) bool {
		before := len(d.Assignments)
		d.Assignments = dropAssignments(d.Assignments, sameKey(key))
		return len(d.Assignments) != before
	})
}

func sameKey(key string) func(model.Assignment) bool {
	return func(a model.Assignment) bool {
		return model.NormalizeKey(a.ServerKey) == key
	}
}

func dropAssignments(list []model.Assignment, drop func(model.Assignment) bool) []model.Assignment {
	out := list[:0]
	for _, a := range list {
		if !drop(a) {
			out = append(out, a)
		}
	}
	return out
}
