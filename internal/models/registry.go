// Package models holds the documents exchanged between replicas: the
// project registry and the per-project record with its child collections.
package models

import (
	"sort"
	"strings"
)

// RegistryEntry is one row of projects.json.
type RegistryEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
	UpdatedTS  int64  `json:"updated_utc_ts"`
	CloudSync  bool   `json:"cloud_sync"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// Registry is the projects.json document. Tombstoned entries stay in
// Projects so deletions reach every replica.
type Registry struct {
	Projects []RegistryEntry `json:"projects"`
}

func NewRegistry() *Registry {
	return &Registry{Projects: []RegistryEntry{}}
}

// Find returns a pointer into r.Projects for id.
func (r *Registry) Find(id string) (*RegistryEntry, bool) {
	for i := range r.Projects {
		if r.Projects[i].ID == id {
			return &r.Projects[i], true
		}
	}
	return nil, false
}

// FindByName looks up a non-deleted entry by name, case-insensitively.
func (r *Registry) FindByName(name string) (*RegistryEntry, bool) {
	for i := range r.Projects {
		e := &r.Projects[i]
		if !e.Deleted && strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return nil, false
}

// Active lists entries that are not tombstoned.
func (r *Registry) Active() []RegistryEntry {
	out := make([]RegistryEntry, 0, len(r.Projects))
	for _, e := range r.Projects {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}

// Index maps id to entry. The values are copies.
func (r *Registry) Index() map[string]RegistryEntry {
	m := make(map[string]RegistryEntry, len(r.Projects))
	for _, e := range r.Projects {
		m[e.ID] = e
	}
	return m
}

// Upsert replaces the entry with the same id or appends e.
func (r *Registry) Upsert(e RegistryEntry) {
	if cur, ok := r.Find(e.ID); ok {
		*cur = e
		return
	}
	r.Projects = append(r.Projects, e)
}

// Remove drops id from the document. Only local-only projects are ever
// removed; synced ones are tombstoned instead.
func (r *Registry) Remove(id string) bool {
	for i := range r.Projects {
		if r.Projects[i].ID == id {
			r.Projects = append(r.Projects[:i], r.Projects[i+1:]...)
			return true
		}
	}
	return false
}

// SortNewestFirst orders entries by UpdatedTS descending, then by id.
func (r *Registry) SortNewestFirst() {
	sort.SliceStable(r.Projects, func(i, j int) bool {
		a, b := r.Projects[i], r.Projects[j]
		if a.UpdatedTS != b.UpdatedTS {
			return a.UpdatedTS > b.UpdatedTS
		}
		return a.ID < b.ID
	})
}
