package reminder

import (
	"sort"
	"sync"
	"time"
)

type armed struct {
	timer Timer
	gen   uint64
	rec   Reminder
}

// Registry tracks live timers by reminder id. Re-arming an id replaces its
// timer; the generation lets a callback from the replaced timer notice it
// is stale.
type Registry struct {
	clock Clock

	mu      sync.Mutex
	entries map[string]armed
	nextGen uint64
}

func NewRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = RealClock()
	}
	return &Registry{clock: clock, entries: map[string]armed{}}
}

// Arm schedules fire(id, gen) after d, replacing any timer under r.ID.
func (g *Registry) Arm(r Reminder, d time.Duration, fire func(id string, gen uint64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.entries[r.ID]; ok {
		old.timer.Stop()
	}
	g.nextGen++
	gen, id := g.nextGen, r.ID
	// Clock.AfterFunc never runs f synchronously, so holding mu is safe
	t := g.clock.AfterFunc(d, func() { fire(id, gen) })
	g.entries[id] = armed{timer: t, gen: gen, rec: r}
}

// Claim removes the entry for id if it still carries gen. Only one caller
// ever wins a claim.
func (g *Registry) Claim(id string, gen uint64) (Reminder, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[id]
	if !ok || e.gen != gen {
		return Reminder{}, false
	}
	delete(g.entries, id)
	return e.rec, true
}

// Cancel stops and forgets the timer for id. It reports whether one existed.
func (g *Registry) Cancel(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(g.entries, id)
	return true
}

func (g *Registry) Has(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entries[id]
	return ok
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// IDs returns the armed ids, sorted.
func (g *Registry) IDs() []string {
	g.mu.Lock()
	out := make([]string, 0, len(g.entries))
	for id := range g.entries {
		out = append(out, id)
	}
	g.mu.Unlock()
	sort.Strings(out)
	return out
}

// StopAll stops every timer and empties the registry.
func (g *Registry) StopAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.entries)
	for id, e := range g.entries {
		e.timer.Stop()
		delete(g.entries, id)
	}
	return n
}
