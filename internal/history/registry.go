package history

import (
	"sort"
	"strings"
	"sync"
)

// StateRegistry holds the legal state sets per tracked entity type. Each
// workflow-bearing module registers its states at startup; the history
// service only checks that a reported target state is known. Which edges
// between states are legal remains the owning module's policy.
type StateRegistry struct {
	mu     sync.RWMutex
	states map[string]map[string]struct{}
}

// NewStateRegistry constructs an empty registry.
func NewStateRegistry() *StateRegistry {
	return &StateRegistry{states: make(map[string]map[string]struct{})}
}

// RegisterStates adds legal states for an entity type. Repeat registration
// is additive and idempotent.
func (r *StateRegistry) RegisterStates(entityType string, states ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entityType = normalizeName(entityType)
	set, ok := r.states[entityType]
	if !ok {
		set = make(map[string]struct{}, len(states))
		r.states[entityType] = set
	}
	for _, state := range states {
		set[normalizeName(state)] = struct{}{}
	}
}

// Known reports whether the state is registered for the entity type.
func (r *StateRegistry) Known(entityType, state string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.states[normalizeName(entityType)]
	if !ok {
		return false
	}
	_, ok = set[normalizeName(state)]
	return ok
}

// States returns the sorted legal states for an entity type.
func (r *StateRegistry) States(entityType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.states[normalizeName(entityType)]
	if !ok {
		return nil
	}
	states := make([]string, 0, len(set))
	for state := range set {
		states = append(states, state)
	}
	sort.Strings(states)
	return states
}

// EntityTypes returns the sorted entity types with registered states.
func (r *StateRegistry) EntityTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.states))
	for entityType := range r.states {
		types = append(types, entityType)
	}
	sort.Strings(types)
	return types
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
