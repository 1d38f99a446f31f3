package engine

import (
	"sync"

	"github.com/yawlgo/engine/net"
)

// specCache is the in-process cache of loaded net prototypes. It
// implements runner.SpecResolver so the runner never depends on the
// façade or the durable store directly; Engine is the only component
// that keeps specCache and store.Store in sync.
type specCache struct {
	mu   sync.RWMutex
	nets map[string]*net.Net
}

func newSpecCache() *specCache {
	return &specCache{nets: make(map[string]*net.Net)}
}

// Net implements runner.SpecResolver.
func (s *specCache) Net(id string) (*net.Net, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nets[id]
	return n, ok
}

func (s *specCache) set(n *net.Net) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nets[n.ID] = n
}

func (s *specCache) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nets, id)
}

func (s *specCache) list() []*net.Net {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*net.Net, 0, len(s.nets))
	for _, n := range s.nets {
		out = append(out, n)
	}
	return out
}
