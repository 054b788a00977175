// Package guard decides whether a view may be shown for the current
// session status. Private views need a resolved-present session; public
// views (sign-in, registration) are their exact complement.
package guard

import (
	"fmt"
	"sync"
	"time"

	"helpdesk/internal/identity"
)

type Decision int

const (
	Wait Decision = iota
	Deny
	Allow
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Kind int

const (
	Private Kind = iota
	Public
)

// Evaluate maps a session status to a decision. Both kinds wait while the
// status is unknown.
func Evaluate(kind Kind, status identity.Status) Decision {
	switch status {
	case identity.StatusPresent:
		if kind == Private {
			return Allow
		}
		return Deny
	case identity.StatusAbsent:
		if kind == Private {
			return Deny
		}
		return Allow
	}
	return Wait
}

// Source publishes session state. *identity.Manager implements it.
type Source interface {
	Watch() (<-chan identity.State, func())
}

// Snapshot is what a guard knows at one instant.
type Snapshot struct {
	Status identity.Status
	// ShowRetry turns true once the wait timeout elapsed with the status
	// still unknown. It never changes the decision.
	ShowRetry         bool
	ReachabilityError string
}

func (s Snapshot) Decision(kind Kind) Decision {
	return Evaluate(kind, s.Status)
}

// Guard follows one Source for its whole lifetime and re-evaluates on
// every status change.
type Guard struct {
	stop func()
	done chan struct{}

	mu       sync.Mutex
	snap     Snapshot
	timer    *time.Timer
	watchers map[int]chan Snapshot
	next     int
	closed   bool
}

func New(src Source, waitTimeout time.Duration) *Guard {
	states, stop := src.Watch()
	g := &Guard{
		stop:     stop,
		done:     make(chan struct{}),
		watchers: make(map[int]chan Snapshot),
	}

	// Watch hands over the current state right away
	if s, ok := <-states; ok {
		g.snap = Snapshot{Status: s.Status, ReachabilityError: s.ReachabilityError}
	}
	if g.snap.Status == identity.StatusUnknown && waitTimeout > 0 {
		g.timer = time.AfterFunc(waitTimeout, g.expireWait)
	}

	go g.run(states)
	return g
}

func (g *Guard) run(states <-chan identity.State) {
	defer close(g.done)
	for s := range states {
		g.apply(s)
	}

	g.mu.Lock()
	g.shutdownLocked()
	g.mu.Unlock()
}

func (g *Guard) apply(s identity.State) {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.snap
	next.Status = s.Status
	next.ReachabilityError = s.ReachabilityError
	if s.Status != identity.StatusUnknown {
		next.ShowRetry = false
		if g.timer != nil {
			g.timer.Stop()
		}
	}
	if next == g.snap {
		return
	}
	g.snap = next
	g.notifyLocked()
}

func (g *Guard) expireWait() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.snap.Status != identity.StatusUnknown {
		return
	}
	g.snap.ShowRetry = true
	g.notifyLocked()
}

func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

func (g *Guard) Decision(kind Kind) Decision {
	return g.Snapshot().Decision(kind)
}

func (g *Guard) ShowRetry() bool {
	return g.Snapshot().ShowRetry
}

// Watch returns a channel holding the latest snapshot, starting with the
// current one. The channel is closed when the guard stops.
func (g *Guard) Watch() (<-chan Snapshot, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if g.closed {
		close(ch)
		return ch, func() {}
	}
	id := g.next
	g.next++
	g.watchers[id] = ch
	ch <- g.snap

	return ch, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if c, ok := g.watchers[id]; ok {
			delete(g.watchers, id)
			close(c)
		}
	}
}

// Close stops following the source and closes every watcher.
func (g *Guard) Close() {
	g.mu.Lock()
	g.shutdownLocked()
	g.mu.Unlock()

	g.stop()
	<-g.done
}

func (g *Guard) shutdownLocked() {
	if g.closed {
		return
	}
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
	}
	for id, ch := range g.watchers {
		delete(g.watchers, id)
		close(ch)
	}
}

func (g *Guard) notifyLocked() {
	for _, ch := range g.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- g.snap
	}
}
