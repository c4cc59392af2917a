package room

import (
	"sync"
	"testing"
	"time"

	"arena/game"
	"arena/logger"
	"arena/protocol"
)

type fakeObserver struct {
	states    chan protocol.ArenaState
	errs      chan error
	completed chan struct{}

	mu    sync.Mutex
	order []string
	once  sync.Once
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{
		states:    make(chan protocol.ArenaState, 1024),
		errs:      make(chan error, 4),
		completed: make(chan struct{}),
	}
}

func (f *fakeObserver) record(kind string) {
	f.mu.Lock()
	f.order = append(f.order, kind)
	f.mu.Unlock()
}

func (f *fakeObserver) OnNext(s protocol.ArenaState) {
	f.record("next")
	select {
	case f.states <- s:
	default:
	}
}

func (f *fakeObserver) OnError(err error) {
	f.record("error")
	f.errs <- err
}

func (f *fakeObserver) OnCompleted() {
	f.record("completed")
	f.once.Do(func() { close(f.completed) })
}

func (f *fakeObserver) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.order {
		if k == kind {
			n++
		}
	}
	return n
}

func testOptions() Options {
	return Options{
		Tick:           5 * time.Millisecond,
		NotifyInterval: 5 * time.Millisecond,
		Seed:           1,
		Logger:         logger.Discard(),
	}
}

func nextState(t *testing.T, f *fakeObserver) protocol.ArenaState {
	t.Helper()
	select {
	case s := <-f.states:
		return s
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for state")
	}
	return protocol.ArenaState{}
}

func TestSessionSubscribeDeliversCurrentStateImmediately(t *testing.T) {
	opts := testOptions()
	opts.Tick = time.Hour
	s := NewSession("c1", opts)
	defer s.Stop()

	f := newFakeObserver()
	s.Subscribe(f)

	select {
	case st := <-f.states:
		if st.Player.X != game.PlayerSpawnX || st.Player.Y != game.PlayerSpawnY {
			t.Fatalf("player at (%v,%v), want spawn", st.Player.X, st.Player.Y)
		}
		if st.Player.Health != game.PlayerHealth {
			t.Fatalf("health = %d, want %d", st.Player.Health, game.PlayerHealth)
		}
		if st.ServerTimestamp == 0 {
			t.Fatalf("expected server timestamp")
		}
	default:
		t.Fatalf("expected a state delivered during Subscribe")
	}
}

func TestSessionPublishesPeriodically(t *testing.T) {
	s := NewSession("c1", testOptions())
	defer s.Stop()

	f := newFakeObserver()
	s.Subscribe(f)

	time.Sleep(200 * time.Millisecond)
	// 1 initial + roughly 40 periodic; allow wide scheduling slack.
	if n := f.count("next"); n < 5 || n > 60 {
		t.Fatalf("got %d states in 200ms, want between 5 and 60", n)
	}
}

func TestSessionMovesPlayerTowardTarget(t *testing.T) {
	s := NewSession("c1", testOptions())
	defer s.Stop()

	if err := s.SetPlayerTarget(400, 100); err != nil {
		t.Fatalf("SetPlayerTarget: %v", err)
	}

	f := newFakeObserver()
	s.Subscribe(f)

	lastX := -1.0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-f.states:
			if st.Player.X < lastX {
				t.Fatalf("states out of order: x went from %v to %v", lastX, st.Player.X)
			}
			lastX = st.Player.X
			if st.Player.TargetX != 400 {
				t.Fatalf("target x = %v, want 400", st.Player.TargetX)
			}
			if st.Player.X > game.PlayerSpawnX+10 {
				return
			}
		case <-timeout:
			t.Fatalf("player never moved; last x = %v", lastX)
		}
	}
}

func TestSessionStopCompletesOnceAndIsIdempotent(t *testing.T) {
	s := NewSession("c1", testOptions())
	f := newFakeObserver()
	s.Subscribe(f)

	s.Stop()
	s.Stop()

	select {
	case <-f.completed:
	case <-time.After(time.Second):
		t.Fatalf("expected completion")
	}
	if n := f.count("completed"); n != 1 {
		t.Fatalf("completed %d times, want 1", n)
	}
	if s.Running() {
		t.Fatalf("expected session stopped")
	}
	if err := s.SetPlayerTarget(1, 1); err != ErrSessionStopped {
		t.Fatalf("SetPlayerTarget after stop: got %v, want %v", err, ErrSessionStopped)
	}

	nexts := f.count("next")
	time.Sleep(30 * time.Millisecond)
	if f.count("next") != nexts {
		t.Fatalf("states delivered after stop")
	}
}

func TestSessionSubscribeAfterStopCompletesImmediately(t *testing.T) {
	s := NewSession("c1", testOptions())
	s.Stop()

	f := newFakeObserver()
	s.Subscribe(f)
	if f.count("next") != 1 || f.count("completed") != 1 {
		t.Fatalf("got order %v, want [next completed]", f.order)
	}
}

func TestSessionFaultNotifiesErrorThenCompletes(t *testing.T) {
	opts := testOptions()
	ticks := 0
	opts.Advance = func(w *game.World, dt float64) {
		ticks++
		if ticks == 3 {
			panic("boom")
		}
		w.Step(dt)
	}
	s := NewSession("c1", opts)
	f := newFakeObserver()
	s.Subscribe(f)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop after fault")
	}
	if s.Err() == nil {
		t.Fatalf("expected Err after fault")
	}

	select {
	case <-f.errs:
	default:
		t.Fatalf("expected OnError")
	}
	f.mu.Lock()
	order := append([]string(nil), f.order...)
	f.mu.Unlock()
	if len(order) < 2 || order[len(order)-2] != "error" || order[len(order)-1] != "completed" {
		t.Fatalf("got order %v, want error then completed at the end", order)
	}

	// Stop on a failed session must not block.
	s.Stop()
}

func TestSessionUnsubscribeStopsDelivery(t *testing.T) {
	s := NewSession("c1", testOptions())
	defer s.Stop()

	f := newFakeObserver()
	cancel := s.Subscribe(f)
	nextState(t, f)
	cancel()

	time.Sleep(20 * time.Millisecond)
	n := f.count("next")
	time.Sleep(30 * time.Millisecond)
	if f.count("next") != n {
		t.Fatalf("states delivered after unsubscribe")
	}
	cancel()
}

func TestSessionSeedIsReproducible(t *testing.T) {
	a := newRand(42, "c1")
	b := newRand(42, "c1")
	c := newRand(42, "c2")
	if a.Uint64() != b.Uint64() {
		t.Fatalf("same seed and id should give the same stream")
	}
	if b.Uint64() == c.Uint64() {
		t.Fatalf("different ids should give different streams")
	}
}

func TestSessionPublishDeliversNowAndFailsAfterStop(t *testing.T) {
	opts := testOptions()
	opts.Tick = time.Hour
	s := NewSession("c1", opts)
	obs := newFakeObserver()
	s.Subscribe(obs)
	nextState(t, obs)

	if err := s.Publish(); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	nextState(t, obs)

	s.Stop()
	if err := s.Publish(); err != ErrSessionStopped {
		t.Fatalf("Publish after stop = %v, want ErrSessionStopped", err)
	}
}
