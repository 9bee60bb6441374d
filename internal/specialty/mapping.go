// Package specialty loads the specialty side table that maps specialty codes
// to display names.
package specialty

import "sort"

// Mapping is an immutable specialty ID to name table. The zero value is an
// empty mapping where every lookup misses.
type Mapping struct {
	names map[string]string
}

// NewMapping copies entries into a new Mapping.
func NewMapping(entries map[string]string) Mapping {
	names := make(map[string]string, len(entries))
	for id, name := range entries {
		names[id] = name
	}
	return Mapping{names: names}
}

func (m Mapping) Lookup(id string) (string, bool) {
	name, ok := m.names[id]
	return name, ok
}

func (m Mapping) Len() int {
	return len(m.names)
}

// IDs returns the specialty IDs in sorted order.
func (m Mapping) IDs() []string {
	out := make([]string, 0, len(m.names))
	for id := range m.names {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
