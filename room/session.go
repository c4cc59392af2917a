package room

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"arena/game"
	"arena/logger"
	"arena/protocol"
)

var ErrSessionStopped = errors.New("session stopped")

type Options struct {
	// Tick is both the loop period and the physics step.
	Tick           time.Duration
	NotifyInterval time.Duration
	// Seed makes enemy spawns reproducible per connection id. 0 is random.
	Seed   uint64
	Logger logrus.FieldLogger
	Now    func() time.Time
	// Advance replaces World.Step; tests use it to inject faults.
	Advance func(w *game.World, dt float64)
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = time.Second / protocol.SimTickHz
	}
	if o.NotifyInterval <= 0 {
		o.NotifyInterval = time.Second / protocol.NotifyHz
	}
	if o.Logger == nil {
		o.Logger = logger.Log
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Advance == nil {
		o.Advance = (*game.World).Step
	}
	return o
}

// Session is one connection's arena and its tick loop. It moves from running
// to stopped exactly once.
type Session struct {
	ID string

	opts Options
	log  logrus.FieldLogger

	mu    sync.Mutex // guards world
	world *game.World

	// subMu guards the observer set and serializes every notification so
	// observers see states in publication order.
	subMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
	completed bool
	err       error

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewSession builds a fresh arena for id and starts its loop.
func NewSession(id string, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		opts:      opts,
		log:       opts.Logger.WithField("session", id),
		world:     game.NewWorld(newRand(opts.Seed, id)),
		observers: make(map[int]Observer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func newRand(seed uint64, id string) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.complete()

	s.log.Debug("session loop started")
	defer s.log.Debug("session loop stopped")

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	dt := s.opts.Tick.Seconds()
	var sinceNotify time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		if err := s.tick(dt); err != nil {
			s.fail(err)
			return
		}

		sinceNotify += s.opts.Tick
		if sinceNotify >= s.opts.NotifyInterval {
			s.notify()
			sinceNotify = 0
		}
	}
}

func (s *Session) tick(dt float64) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simulation fault: %v", r)
		}
	}()
	s.opts.Advance(s.world, dt)
	return nil
}

// Snapshot copies the current arena.
func (s *Session) Snapshot() protocol.ArenaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildSnapshot(s.world.State, s.opts.Now().UnixMilli())
}

// SetPlayerTarget is safe to call concurrently with the loop.
func (s *Session) SetPlayerTarget(x, y float64) error {
	if !s.Running() {
		return ErrSessionStopped
	}
	s.mu.Lock()
	s.world.State.Player.SetTarget(x, y)
	s.mu.Unlock()
	return nil
}

// Subscribe delivers the current state to obs right away, then every
// periodic state, then OnCompleted when the session stops. Subscribing to a
// stopped session yields the final state followed by OnCompleted.
func (s *Session) Subscribe(obs Observer) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	obs.OnNext(s.Snapshot())
	if s.completed {
		obs.OnCompleted()
		return func() {}
	}

	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	return func() {
		s.subMu.Lock()
		delete(s.observers, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.observers) == 0 {
		return
	}
	state := s.Snapshot()
	for _, obs := range s.observers {
		obs.OnNext(state.Clone())
	}
}

// Publish delivers the current state to every observer now, ordered with
// the periodic states.
func (s *Session) Publish() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.completed || !s.Running() {
		return ErrSessionStopped
	}
	state := s.Snapshot()
	for _, obs := range s.observers {
		obs.OnNext(state.Clone())
	}
	return nil
}

func (s *Session) fail(err error) {
	s.log.WithError(err).Error("session loop failed")

	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.err = err
	for _, obs := range s.observers {
		obs.OnError(err)
	}
}

func (s *Session) complete() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.completed {
		return
	}
	s.completed = true
	for id, obs := range s.observers {
		obs.OnCompleted()
		delete(s.observers, id)
	}
}

// Stop cancels the loop and waits for it to exit. It is idempotent. It must
// not be called from an Observer callback.
func (s *Session) Stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Err reports the fault that ended the loop, if any.
func (s *Session) Err() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.err
}

// Counts reports the live entity counts.
func (s *Session) Counts() (enemies, projectiles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.world.State.Enemies), len(s.world.State.Projectiles)
}
