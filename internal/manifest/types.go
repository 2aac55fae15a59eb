package manifest

import (
	"sort"

	"github.com/mvp-joe/loadmap/internal/loadable"
)

// Entry pairs a module ID with its extracted metadata.
type Entry struct {
	Module  string
	Actions *loadable.ActionMap
}

// Manifest is the ordered collection of modules that carry loadable metadata.
// Entries are sorted by module ID and each module appears at most once.
type Manifest struct {
	Entries []Entry
}

// newManifest sorts entries by module ID.
func newManifest(entries []Entry) *Manifest {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Module < entries[j].Module
	})
	return &Manifest{Entries: entries}
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.Entries)
}

// Modules returns the module IDs in manifest order.
func (m *Manifest) Modules() []string {
	ids := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		ids[i] = e.Module
	}
	return ids
}

// Get returns the metadata recorded for a module ID.
func (m *Manifest) Get(moduleID string) (*loadable.ActionMap, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool {
		return m.Entries[i].Module >= moduleID
	})
	if i < len(m.Entries) && m.Entries[i].Module == moduleID {
		return m.Entries[i].Actions, true
	}
	return nil, false
}
