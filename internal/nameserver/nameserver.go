// Package nameserver maps short printable names to task identifiers
// (spec.md §4.2). Names are first-come: once registered, a name cannot be
// reassigned to a different id.
package nameserver

import (
	"sync"

	"trainctl-go/errcode"
)

// Server is the name service. Safe for concurrent use; unlike most servers
// in this system it has no need for a single-goroutine event loop since its
// state (a name->id map) is trivially protected by a mutex and every
// operation completes in O(1) without blocking on anything else.
type Server struct {
	mu   sync.RWMutex
	byName map[string]int32
}

func New() *Server {
	return &Server{byName: map[string]int32{}}
}

// RegisterAs binds name to id. Returns NotOwner if name is already taken by
// a different id; re-registering the same (name, id) pair is a no-op
// success, matching "first-come" semantics without penalizing idempotent
// callers.
func (s *Server) RegisterAs(name string, id int32) error {
	if name == "" {
		return errcode.Wrap(errcode.InvalidArgument, "nameserver.RegisterAs", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byName[name]; ok {
		if existing != id {
			return errcode.Wrap(errcode.NotOwner, "nameserver.RegisterAs", nil)
		}
		return nil
	}
	s.byName[name] = id
	return nil
}

// WhoIs resolves a registered name to its task id.
func (s *Server) WhoIs(name string) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return 0, errcode.Wrap(errcode.NotFound, "nameserver.WhoIs", nil)
	}
	return id, nil
}
