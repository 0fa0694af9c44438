// Package grouping reconciles live servers with the catalog into an ordered
// presentation list and splits that list into group sections.
package grouping

// UngroupedName labels the section of rows without a group.
const UngroupedName = "Ungrouped"

// Section is a run of consecutive rows that share a group.
type Section struct {
	Name    string
	GroupID string
	Color   string
	Rows    []Row
}

// Sections splits an ordered row list into group sections. Rows without a
// group land in a final UngroupedName section. Empty sections are dropped.
func Sections(rows []Row) []Section {
	var result []*Section
	byGroup := make(map[string]*Section)
	var ungrouped *Section

	for _, row := range rows {
		if !row.Grouped() {
			if ungrouped == nil {
				ungrouped = &Section{Name: UngroupedName}
			}
			ungrouped.Rows = append(ungrouped.Rows, row)
			continue
		}
		s, ok := byGroup[row.GroupID]
		if !ok {
			s = &Section{Name: row.GroupName, GroupID: row.GroupID, Color: row.GroupColor}
			byGroup[row.GroupID] = s
			result = append(result, s)
		}
		s.Rows = append(s.Rows, row)
	}
	if ungrouped != nil {
		result = append(result, ungrouped)
	}

	out := make([]Section, 0, len(result))
	for _, s := range result {
		if len(s.Rows) > 0 {
			out = append(out, *s)
		}
	}
	return out
}

// RunningCount counts running rows in a section.
func (s Section) RunningCount() int {
	n := 0
	for _, r := range s.Rows {
		if r.Running {
			n++
		}
	}
	return n
}
