// Package discovery implements the per-medium discovery helpers: a
// round-based lost-entity tracker and an exponential read-retry backoff,
// grounded on the same round/backoff semantics the wire mediums use
// during BLE/Wi-Fi LAN scanning.
package discovery

import "sync"

// LostEntityTracker records entities found on each discovery scan round
// and computes the set that disappeared between the previous round and
// the current one. Two entities that compare equal (by the comparable
// type parameter) are treated as the same entity, matching the spec's
// "two distinct object instances that compare equal are treated as the
// same entity."
type LostEntityTracker[T comparable] struct {
	mu           sync.Mutex
	priorRound   map[T]struct{}
	currentRound map[T]struct{}
}

// NewLostEntityTracker returns an empty tracker.
func NewLostEntityTracker[T comparable]() *LostEntityTracker[T] {
	return &LostEntityTracker[T]{
		priorRound:   make(map[T]struct{}),
		currentRound: make(map[T]struct{}),
	}
}

// Found records that entity was observed during the current round.
func (t *LostEntityTracker[T]) Found(entity T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentRound[entity] = struct{}{}
}

// ComputeLostEntities returns every entity present in the prior round but
// absent from the current one, then rotates rounds: the current round
// becomes the prior round and a fresh, empty current round begins.
//
// An entity reported in round N but not round N+1 appears exactly once in
// the return value of the call that rotates N+1 into "prior" — redelivering
// it in round N+2 makes it found again, not lost, because by then it is
// present in what was the current round before that call.
func (t *LostEntityTracker[T]) ComputeLostEntities() []T {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lost []T
	for entity := range t.priorRound {
		if _, stillFound := t.currentRound[entity]; !stillFound {
			lost = append(lost, entity)
		}
	}
	t.priorRound = t.currentRound
	t.currentRound = make(map[T]struct{})
	return lost
}
