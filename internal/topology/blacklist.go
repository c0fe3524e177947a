package topology

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// ReversalBlacklist tracks nodes where a reversal has been tried and failed
// to produce a usable path (spec.md §9's reversal-blacklist design note,
// grounded on original_source's MAX_BLACKLISTED_REVERSAL_NODES table). A
// cuckoo filter gives fast, bounded-memory probabilistic membership and
// supports deletion, unlike a Bloom filter, which matters here: entries
// expire and need to come back out of the blacklist once conditions change.
type ReversalBlacklist struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

// MaxBlacklistedReversalNodes bounds how many reversal sites are tracked at
// once, mirroring the original's fixed-size table.
const MaxBlacklistedReversalNodes = 32

func NewReversalBlacklist() *ReversalBlacklist {
	return &ReversalBlacklist{filter: cuckoo.NewFilter(MaxBlacklistedReversalNodes * 4)}
}

func key(nodeIdx int32) []byte {
	return []byte{byte(nodeIdx), byte(nodeIdx >> 8), byte(nodeIdx >> 16), byte(nodeIdx >> 24)}
}

// Add marks nodeIdx as a failed reversal site. Returns false if the filter
// is already at capacity and the insert was refused, in which case the
// caller should treat the node as usable rather than block pathfinding
// entirely.
func (r *ReversalBlacklist) Add(nodeIdx int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter.InsertUnique(key(nodeIdx))
}

// Contains reports whether nodeIdx was previously blacklisted. False
// positives are possible (cuckoo filter); false negatives are not.
func (r *ReversalBlacklist) Contains(nodeIdx int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter.Lookup(key(nodeIdx))
}

// Remove clears a previously blacklisted node, used when the deadlock or
// congestion that caused the blacklist entry has resolved.
func (r *ReversalBlacklist) Remove(nodeIdx int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter.Delete(key(nodeIdx))
}

// SensorBlacklist tracks sensors whose reports should be ignored: a faulty
// sensor that has already had its timeout logged once (spec.md §3's
// supplemented "log once" behavior) is blacklisted so every subsequent
// missed trip does not spam the log.
type SensorBlacklist struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

func NewSensorBlacklist(capacity uint) *SensorBlacklist {
	if capacity == 0 {
		capacity = 128
	}
	return &SensorBlacklist{filter: cuckoo.NewFilter(capacity)}
}

func (s *SensorBlacklist) MarkLogged(nodeIdx int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.InsertUnique(key(nodeIdx))
}

func (s *SensorBlacklist) AlreadyLogged(nodeIdx int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Lookup(key(nodeIdx))
}

func (s *SensorBlacklist) Clear(nodeIdx int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Delete(key(nodeIdx))
}
