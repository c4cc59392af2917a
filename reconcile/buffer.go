// Package reconcile turns a stream of delayed, discrete snapshots into a
// smooth state for rendering or bots.
package reconcile

import (
	"slices"
	"sync"
	"time"

	"arena/protocol"
)

type Options struct {
	// InterpolationDelay is how far behind real time the rendered state runs.
	InterpolationDelay time.Duration
	MaxRetention       time.Duration
	MaxExtrapolation   time.Duration
	MaxEntries         int
	Now                func() time.Time
}

func DefaultOptions() Options {
	return Options{
		InterpolationDelay: 120 * time.Millisecond,
		MaxRetention:       2 * time.Second,
		MaxExtrapolation:   200 * time.Millisecond,
		MaxEntries:         50,
		Now:                time.Now,
	}
}

type entry struct {
	state protocol.ArenaState
	at    time.Time
}

// Buffer holds recent snapshots ordered by their mapped time. It is safe for
// concurrent use.
type Buffer struct {
	opts Options

	mu        sync.Mutex
	entries   []entry
	last      *protocol.ArenaState
	lastAt    time.Time
	offset    time.Duration
	hasOffset bool
}

func NewBuffer(opts Options) *Buffer {
	def := DefaultOptions()
	if opts.InterpolationDelay <= 0 {
		opts.InterpolationDelay = def.InterpolationDelay
	}
	if opts.MaxRetention <= 0 {
		opts.MaxRetention = def.MaxRetention
	}
	if opts.MaxExtrapolation < 0 {
		opts.MaxExtrapolation = 0
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = def.MaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Buffer{opts: opts}
}

// Push records a snapshot. A server timestamp is mapped onto the local
// clock through an offset estimated from the first timestamped snapshot;
// otherwise the arrival time is used.
func (b *Buffer) Push(state protocol.ArenaState) {
	arrival := b.opts.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	at := arrival
	if state.ServerTimestamp != 0 {
		server := time.UnixMilli(state.ServerTimestamp)
		if !b.hasOffset {
			b.offset = arrival.Sub(server)
			b.hasOffset = true
		}
		at = server.Add(b.offset)
	}

	state = state.Clone()
	// Late snapshots are inserted after any entry with the same time.
	i, _ := slices.BinarySearchFunc(b.entries, at, func(e entry, t time.Time) int {
		if e.at.After(t) {
			return 1
		}
		return -1
	})
	b.entries = slices.Insert(b.entries, i, entry{state: state, at: at})
	if b.last == nil || !at.Before(b.lastAt) {
		b.last = &state
		b.lastAt = at
	}

	cutoff := arrival.Add(-b.opts.InterpolationDelay - b.opts.MaxRetention)
	kept := b.entries[:0]
	for _, e := range b.entries {
		if !e.at.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	b.entries = kept
	if over := len(b.entries) - b.opts.MaxEntries; over > 0 {
		b.entries = append(b.entries[:0], b.entries[over:]...)
	}
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Current is At(now).
func (b *Buffer) Current() (protocol.ArenaState, bool) {
	return b.At(b.opts.Now())
}

// At reconstructs the state to show at now, which lags by the
// interpolation delay. It reports false until a snapshot has arrived.
func (b *Buffer) At(now time.Time) (protocol.ArenaState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	query := now.Add(-b.opts.InterpolationDelay)

	switch len(b.entries) {
	case 0:
		if b.last == nil {
			return protocol.ArenaState{}, false
		}
		return b.last.Clone(), true
	case 1:
		only := b.entries[0]
		return extrapolate(only.state, b.clamp(query.Sub(only.at))), true
	}

	newest := b.entries[len(b.entries)-1]
	if query.After(newest.at) {
		return extrapolate(newest.state, b.clamp(query.Sub(newest.at))), true
	}

	older, newer := b.entries[0], b.entries[1]
	for i := 0; i < len(b.entries)-1; i++ {
		s0, s1 := b.entries[i], b.entries[i+1]
		if !query.Before(s0.at) && !query.After(s1.at) {
			older, newer = s0, s1
			break
		}
	}

	t := 0.0
	if span := newer.at.Sub(older.at); span > 0 {
		t = float64(query.Sub(older.at)) / float64(span)
	}
	return interpolate(older.state, newer.state, clamp01(t)), true
}

func (b *Buffer) clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return min(d, b.opts.MaxExtrapolation)
}
