package discovery

import (
	"reflect"
	"sort"
	"testing"
)

func TestLostEntityTrackerBasicRound(t *testing.T) {
	tr := NewLostEntityTracker[string]()

	tr.Found("alpha")
	tr.Found("beta")
	if lost := tr.ComputeLostEntities(); len(lost) != 0 {
		t.Fatalf("first round should report no losses, got %v", lost)
	}

	// Round N+1: beta is not re-found.
	tr.Found("alpha")
	lost := tr.ComputeLostEntities()
	if !reflect.DeepEqual(lost, []string{"beta"}) {
		t.Fatalf("want [beta] lost, got %v", lost)
	}
}

func TestLostEntityAppearsExactlyOnce(t *testing.T) {
	tr := NewLostEntityTracker[string]()
	tr.Found("gamma")
	tr.ComputeLostEntities() // round 1: establishes prior

	lostRoundTwo := tr.ComputeLostEntities() // round 2: gamma not re-found
	if !reflect.DeepEqual(lostRoundTwo, []string{"gamma"}) {
		t.Fatalf("want gamma lost exactly once at round 2, got %v", lostRoundTwo)
	}

	lostRoundThree := tr.ComputeLostEntities() // round 3: nothing new lost
	if len(lostRoundThree) != 0 {
		t.Fatalf("gamma should not be reported lost twice, got %v", lostRoundThree)
	}
}

func TestRediscoveryAfterLossIsNotLost(t *testing.T) {
	tr := NewLostEntityTracker[string]()
	tr.Found("delta")
	tr.ComputeLostEntities() // round 1

	tr.ComputeLostEntities() // round 2: delta lost here

	tr.Found("delta") // round 3: rediscovered
	lostRoundFour := tr.ComputeLostEntities()
	if len(lostRoundFour) != 0 {
		t.Fatalf("rediscovered entity must not be reported lost again, got %v", lostRoundFour)
	}
}

func TestMultipleEntitiesTrackedIndependently(t *testing.T) {
	tr := NewLostEntityTracker[int]()
	tr.Found(1)
	tr.Found(2)
	tr.Found(3)
	tr.ComputeLostEntities()

	tr.Found(1) // only 1 survives into the next round
	lost := tr.ComputeLostEntities()
	sort.Ints(lost)
	if !reflect.DeepEqual(lost, []int{2, 3}) {
		t.Fatalf("want [2 3] lost, got %v", lost)
	}
}
