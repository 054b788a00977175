package guard

import (
	"sync"
	"testing"
	"time"

	"helpdesk/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stateSource mimics identity.Manager's Watch contract.
type stateSource struct {
	mu      sync.Mutex
	state   identity.State
	ch      chan identity.State
	stopped bool
}

func newStateSource(status identity.Status) *stateSource {
	return &stateSource{state: identity.State{Status: status}}
}

func (s *stateSource) Watch() (<-chan identity.State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = make(chan identity.State, 1)
	s.ch <- s.state
	return s.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.stopped {
			s.stopped = true
			close(s.ch)
		}
	}
}

func (s *stateSource) set(status identity.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = status
	if s.stopped {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- s.state
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		status  identity.Status
		private Decision
		public  Decision
	}{
		{identity.StatusUnknown, Wait, Wait},
		{identity.StatusAbsent, Deny, Allow},
		{identity.StatusPresent, Allow, Deny},
	}
	for _, tc := range cases {
		t.Run(tc.status.String(), func(t *testing.T) {
			assert.Equal(t, tc.private, Evaluate(Private, tc.status))
			assert.Equal(t, tc.public, Evaluate(Public, tc.status))
		})
	}
}

func TestGuardFollowsStatusWithoutRemount(t *testing.T) {
	src := newStateSource(identity.StatusUnknown)
	g := New(src, time.Hour)
	defer g.Close()

	assert.Equal(t, Wait, g.Decision(Private))
	assert.Equal(t, Wait, g.Decision(Public))

	src.set(identity.StatusAbsent)
	assert.Eventually(t, func() bool { return g.Decision(Private) == Deny }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Allow, g.Decision(Public))

	src.set(identity.StatusPresent)
	assert.Eventually(t, func() bool { return g.Decision(Private) == Allow }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Deny, g.Decision(Public))

	src.set(identity.StatusAbsent)
	assert.Eventually(t, func() bool { return g.Decision(Private) == Deny }, time.Second, 5*time.Millisecond)
}

func TestGuardShowsRetryAfterWaitTimeout(t *testing.T) {
	src := newStateSource(identity.StatusUnknown)
	g := New(src, 20*time.Millisecond)
	defer g.Close()

	assert.False(t, g.ShowRetry())
	assert.Eventually(t, g.ShowRetry, time.Second, 5*time.Millisecond)
	assert.Equal(t, Wait, g.Decision(Private), "retry affordance does not change the decision")

	src.set(identity.StatusPresent)
	assert.Eventually(t, func() bool { return g.Decision(Private) == Allow }, time.Second, 5*time.Millisecond)
	assert.False(t, g.ShowRetry())
}

func TestGuardResolvedBeforeTimeout(t *testing.T) {
	src := newStateSource(identity.StatusAbsent)
	g := New(src, 10*time.Millisecond)
	defer g.Close()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, g.ShowRetry())
	assert.Equal(t, Deny, g.Decision(Private))
}

func TestGuardWatch(t *testing.T) {
	src := newStateSource(identity.StatusUnknown)
	g := New(src, time.Hour)

	snaps, stop := g.Watch()
	defer stop()

	first := <-snaps
	assert.Equal(t, Wait, first.Decision(Private))

	src.set(identity.StatusPresent)
	select {
	case snap := <-snaps:
		assert.Equal(t, Allow, snap.Decision(Private))
	case <-time.After(time.Second):
		t.Fatal("no snapshot after status change")
	}

	g.Close()
	_, open := <-snaps
	assert.False(t, open)

	late, _ := g.Watch()
	_, open = <-late
	assert.False(t, open, "watching a closed guard yields a closed channel")
}

func TestGuardStopsWhenSourceCloses(t *testing.T) {
	src := newStateSource(identity.StatusPresent)
	g := New(src, time.Hour)

	snaps, _ := g.Watch()
	<-snaps

	src.mu.Lock()
	src.stopped = true
	close(src.ch)
	src.mu.Unlock()

	select {
	case _, open := <-snaps:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("watchers not released")
	}
	g.Close()
}
