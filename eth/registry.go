package eth

import "sync"

// Registry owns the set of connected peer sessions. It is the only side
// of the server<->session relationship that holds a pointer: sessions
// identify themselves to callers by their opaque id and never reference
// the Registry back.
//
// Writes (Register/Unregister) are single-writer from the accept loop;
// reads (Active, Get) may come from any number of goroutines.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*PeerSession
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*PeerSession)}
}

func (r *Registry) Register(p *PeerSession) {
	r.mu.Lock()
	r.byID[p.ID()] = p
	r.mu.Unlock()
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*PeerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Active returns every session currently in the Active state. The slice
// is a snapshot; sessions may transition away from Active concurrently
// with callers iterating the result.
func (r *Registry) Active() []*PeerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PeerSession, 0, len(r.byID))
	for _, p := range r.byID {
		if p.State() == Active {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
