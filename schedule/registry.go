package schedule

import "sync"

// registry is the process-wide map from schedule name to schedule,
// mirroring the named-entity registries barrier uses for MO/OM/RMO/MM.
// It holds ordinary pointers and nothing calls deregister, so a named
// schedule stays registered, and reachable, for the life of the process.
type registry struct {
	mu sync.RWMutex
	m  map[string]*Schedule
}

var named = registry{m: make(map[string]*Schedule)}

func (r *registry) register(name string, s *Schedule) {
	r.mu.Lock()
	r.m[name] = s
	r.mu.Unlock()
}

func (r *registry) deregister(name string) {
	r.mu.Lock()
	delete(r.m, name)
	r.mu.Unlock()
}

func (r *registry) lookup(name string) (*Schedule, bool) {
	r.mu.RLock()
	s, ok := r.m[name]
	r.mu.RUnlock()
	return s, ok
}
