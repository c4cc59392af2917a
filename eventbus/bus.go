// Package eventbus is an in-process publish/subscribe hub keyed by event type.
//
// Every subscriber owns a buffered queue drained by its own goroutine, so a
// slow or failing subscriber only ever loses its own events. Delivery to a
// single subscriber is FIFO.
package eventbus

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"arena/logger"
)

const defaultQueueSize = 256

type Bus struct {
	mu        sync.RWMutex
	subs      map[reflect.Type][]*subscriber
	closed    bool
	queueSize int
	log       logrus.FieldLogger
	wg        sync.WaitGroup
}

type subscriber struct {
	name    string
	queue   chan any
	handle  func(any)
	dropped atomic.Uint64
}

type Option func(*Bus)

func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Bus) { b.log = l }
}

// WithQueueSize sets the per-subscriber buffer. Values < 1 are ignored.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[reflect.Type][]*subscriber),
		queueSize: defaultQueueSize,
		log:       logger.Log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for events of type T. The returned function removes
// the subscription; it is safe to call more than once.
func Subscribe[T any](b *Bus, name string, fn func(T)) (unsubscribe func()) {
	key := reflect.TypeFor[T]()
	sub := &subscriber{
		name:  name,
		queue: make(chan any, b.queueSize),
		handle: func(ev any) {
			fn(ev.(T))
		},
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[key] = append(b.subs[key], sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(key, sub)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(key, sub) })
	}
}

// Publish offers ev to every subscriber of T without blocking. It returns the
// number of subscribers that queued the event.
func Publish[T any](b *Bus, ev T) int {
	key := reflect.TypeFor[T]()

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	delivered := 0
	for _, sub := range b.subs[key] {
		select {
		case sub.queue <- ev:
			delivered++
		default:
			n := sub.dropped.Add(1)
			b.log.WithFields(logrus.Fields{
				"subscriber": sub.name,
				"event":      key.String(),
				"dropped":    n,
			}).Warn("event queue full, dropping")
		}
	}
	return delivered
}

// Subscribers reports how many subscribers T currently has.
func Subscribers[T any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[T]()])
}

// Close stops accepting events and waits for subscribers to drain what they
// already queued.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for key, list := range b.subs {
		for _, sub := range list {
			close(sub.queue)
		}
		delete(b.subs, key)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bus) remove(key reflect.Type, target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[key]
	for i, sub := range list {
		if sub == target {
			b.subs[key] = append(list[:i:i], list[i+1:]...)
			close(sub.queue)
			break
		}
	}
	if len(b.subs[key]) == 0 {
		delete(b.subs, key)
	}
}

func (b *Bus) run(key reflect.Type, sub *subscriber) {
	defer b.wg.Done()
	for ev := range sub.queue {
		b.deliver(key, sub, ev)
	}
}

func (b *Bus) deliver(key reflect.Type, sub *subscriber, ev any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"subscriber": sub.name,
				"event":      key.String(),
			}).WithError(fmt.Errorf("panic: %v", r)).Error("subscriber panicked")
		}
	}()
	sub.handle(ev)
}
