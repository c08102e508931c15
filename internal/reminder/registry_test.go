package reminder

import (
	"testing"
	"time"
)

func TestRegistryArmClaimCancel(t *testing.T) {
	t.Parallel()

	clk := newManualClock()
	g := NewRegistry(clk)

	var fired []uint64
	fire := func(id string, gen uint64) {
		if _, ok := g.Claim(id, gen); ok {
			fired = append(fired, gen)
		}
	}

	g.Arm(Reminder{ID: "a"}, time.Second, fire)
	g.Arm(Reminder{ID: "b"}, 2*time.Second, fire)
	if g.Len() != 2 || !g.Has("a") {
		t.Fatalf("len=%d", g.Len())
	}
	if ids := g.IDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids=%v", ids)
	}

	if !g.Cancel("b") || g.Cancel("b") {
		t.Fatalf("cancel should report true then false")
	}
	clk.Advance(3 * time.Second)
	if len(fired) != 1 || g.Len() != 0 {
		t.Fatalf("fired=%v len=%d", fired, g.Len())
	}
}

func TestRegistryRearmRejectsStaleGeneration(t *testing.T) {
	t.Parallel()

	g := NewRegistry(newManualClock())
	noop := func(string, uint64) {}
	g.Arm(Reminder{ID: "a"}, time.Minute, noop)
	g.Arm(Reminder{ID: "a", Message: "new"}, time.Minute, noop)

	if _, ok := g.Claim("a", 1); ok {
		t.Fatalf("stale generation claimed")
	}
	r, ok := g.Claim("a", 2)
	if !ok || r.Message != "new" {
		t.Fatalf("current generation not claimed: %+v %v", r, ok)
	}
	if _, ok := g.Claim("a", 2); ok {
		t.Fatalf("double claim")
	}
}

func TestRegistryStopAll(t *testing.T) {
	t.Parallel()

	clk := newManualClock()
	g := NewRegistry(clk)
	calls := 0
	for _, id := range []string{"a", "b", "c"} {
		g.Arm(Reminder{ID: id}, time.Second, func(string, uint64) { calls++ })
	}
	if n := g.StopAll(); n != 3 {
		t.Fatalf("stopped %d", n)
	}
	clk.Advance(time.Minute)
	if calls != 0 || g.Len() != 0 {
		t.Fatalf("calls=%d len=%d", calls, g.Len())
	}
}
