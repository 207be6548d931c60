// Package live turns the store's change notifications into cancellable
// snapshot streams. A subscription delivers an initial snapshot, then a
// fresh one after every event on its topic, until Cancel is called or
// the context ends. Failing to cancel leaks a redis listener that keeps
// delivering indefinitely, so every subscriber owns exactly one Cancel.
package live

import (
	"context"
	"sync"

	"github.com/HuynhDucPhu2502/Flickr/internal/logger"
	"github.com/HuynhDucPhu2502/Flickr/internal/redis"
)

// Bus publishes and receives change events over redis pub/sub. Event
// payloads carry no data; subscribers re-query the store, which keeps
// the store the single source of truth.
type Bus struct {
	client *redis.Client
}

func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Notify signals that something changed under topic. Best-effort: a
// lost notification delays an update until the next one, it never loses
// data.
func (b *Bus) Notify(ctx context.Context, topic string) {
	if err := b.client.Publish(ctx, topic, "1"); err != nil {
		logger.Component("live").WithError(err).WithField("topic", topic).Warn("notify failed")
	}
}

// Subscription is a live sequence of T with an explicit cancellation
// handle.
type Subscription[T any] struct {
	ch   chan T
	stop chan struct{}
	once sync.Once
}

// C is the update channel. Closed after Cancel or context end.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Cancel tears the subscription down. Safe to call multiple times.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() { close(s.stop) })
}

// Subscribe starts a snapshot stream for topic. snapshot is invoked once
// up front and again after each event; its result is pushed to C().
// Snapshot errors are logged and skipped so one failed re-query does not
// kill the stream.
func Subscribe[T any](ctx context.Context, b *Bus, topic string, snapshot func(context.Context) (T, error)) *Subscription[T] {
	sub := &Subscription[T]{
		ch:   make(chan T, 8),
		stop: make(chan struct{}),
	}

	pubsub := b.client.Subscribe(ctx, topic)

	go func() {
		defer close(sub.ch)
		defer pubsub.Close()

		emit := func() {
			v, err := snapshot(ctx)
			if err != nil {
				logger.Component("live").WithError(err).WithField("topic", topic).Warn("snapshot failed")
				return
			}
			select {
			case sub.ch <- v:
			case <-sub.stop:
			case <-ctx.Done():
			}
		}

		emit()

		events := pubsub.Channel()
		for {
			select {
			case <-sub.stop:
				return
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				emit()
			}
		}
	}()

	return sub
}
