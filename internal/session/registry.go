package session

import "sync"

// Registry is the process-wide set of live sessions, keyed by call id and
// iterated in insertion order. Health reporting reads it; sessions insert
// and remove themselves.
type Registry struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Session)}
}

// Add registers a session under its call id. Re-adding the same id replaces
// the entry but keeps its original position.
func (r *Registry) Add(callID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[callID]; !ok {
		r.order = append(r.order, callID)
	}
	r.byID[callID] = s
}

// Remove drops the session registered under callID, if any.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[callID]; !ok {
		return
	}
	delete(r.byID, callID)
	for i, id := range r.order {
		if id == callID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// CallIDs returns the live call ids in insertion order.
func (r *Registry) CallIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
