package plugin

import "sort"

// Registry maps plugin ids to installed records. A missing id means the
// plugin is not installed.
type Registry map[ID]Record

// NewRegistry returns an empty registry
func NewRegistry() Registry {
	return make(Registry)
}

// Get returns the record for id
func (r Registry) Get(id ID) (Record, bool) {
	rec, ok := r[id]
	return rec, ok
}

// Has reports whether id is installed
func (r Registry) Has(id ID) bool {
	_, ok := r[id]
	return ok
}

// Put inserts or overwrites the record for rec.ID
func (r Registry) Put(rec Record) {
	r[rec.ID] = rec
}

// Delete removes id and reports whether it was present
func (r Registry) Delete(id ID) bool {
	if _, ok := r[id]; !ok {
		return false
	}
	delete(r, id)
	return true
}

// Records returns all records ordered by id
func (r Registry) Records() []Record {
	out := make([]Record, 0, len(r))
	for _, rec := range r {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Enabled returns the enabled records ordered by id
func (r Registry) Enabled() []Record {
	var out []Record
	for _, rec := range r.Records() {
		if rec.IsEnabled {
			out = append(out, rec)
		}
	}
	return out
}

// State returns the lifecycle state of id
func (r Registry) State(id ID) State {
	rec, ok := r[id]
	switch {
	case !ok:
		return StateUninstalled
	case rec.IsEnabled:
		return StateEnabled
	default:
		return StateDisabled
	}
}

// Clone returns a copy that shares no storage with r
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for id, rec := range r {
		out[id] = rec
	}
	return out
}
