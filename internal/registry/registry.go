// Package registry tracks meeting participants for display purposes.
package registry

import (
	"sort"
	"sync"

	"zoom-transcript-service/internal/models"
)

// UnknownParticipant is returned for ids that are not registered.
const UnknownParticipant = "Unknown"

// Registry maps participant id to display name.
// It is consulted for display only; transcripts are attributed by the speech session.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{participants: make(map[string]string)}
}

// Add inserts a participant or overwrites the display name of an existing id.
func (r *Registry) Add(id, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[id] = displayName
}

// Remove deletes a participant. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
}

// Get returns the display name for id, or UnknownParticipant.
func (r *Registry) Get(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.participants[id]; ok {
		return name
	}
	return UnknownParticipant
}

// DisplayName returns the display name for id, or UnknownParticipant.
func (r *Registry) DisplayName(id string) string {
	return r.Get(id)
}

// Len returns the number of registered participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// List returns all participants ordered by id.
func (r *Registry) List() []models.Participant {
	r.mu.RLock()
	out := make([]models.Participant, 0, len(r.participants))
	for id, name := range r.participants {
		out = append(out, models.Participant{ID: id, DisplayName: name})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
