// Package events is an in-process fan-out bus. Publishers never block:
// when the delivery queue is full the event is dropped and counted.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDropped is returned by Emit when the bus is saturated or closed.
var ErrDropped = errors.New("events: dropped")

// HandlerFunc is the function called when an event is delivered.
type HandlerFunc func(context.Context, any) error

// Option configures a Bus
type Option func(*busConfig)

type busConfig struct {
	bufferSize int
	replay     bool
	logger     *slog.Logger
}

// WithBufferSize sets the delivery queue size
func WithBufferSize(size int) Option {
	return func(cfg *busConfig) {
		cfg.bufferSize = size
	}
}

// WithReplay keeps the last event of every topic and hands it to new
// subscribers that ask for it.
func WithReplay() Option {
	return func(cfg *busConfig) {
		cfg.replay = true
	}
}

// WithLogger sets a structured logger for handler errors
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *busConfig) {
		cfg.logger = logger
	}
}

type event struct {
	topic   string
	message any
}

// Subscription is a handler attached to one topic.
type Subscription struct {
	Topic   string
	ID      string
	handler HandlerFunc
	bus     *Bus
}

// Unsubscribe detaches the handler. It is safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.removeSubscription(s.Topic, s.ID)
	}
}

type subscriberMap map[string]map[string]Subscription

// Bus delivers events to subscribers on a single goroutine, in emit order.
type Bus struct {
	subscribers atomic.Pointer[subscriberMap]
	nextSubID   atomic.Int64
	dropped     atomic.Int64
	delivered   atomic.Int64

	lastMu sync.Mutex
	last   map[string]any

	events   chan event
	shutdown chan struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup

	config busConfig
}

// New creates a Bus and starts its delivery loop.
func New(opts ...Option) *Bus {
	cfg := busConfig{bufferSize: 256}
	for _, opt := range opts {
		opt(&cfg)
	}
	b := &Bus{
		events:   make(chan event, cfg.bufferSize),
		shutdown: make(chan struct{}),
		last:     map[string]any{},
		config:   cfg,
	}
	empty := make(subscriberMap)
	b.subscribers.Store(&empty)

	b.wg.Add(1)
	go b.loop()
	return b
}

// Emit queues value on topic without blocking. A nil bus discards.
func Emit[T any](b *Bus, topic string, value T) error {
	if b == nil {
		return nil
	}
	if b.closed.Load() {
		return ErrDropped
	}
	select {
	case b.events <- event{topic: topic, message: value}:
		return nil
	default:
		b.dropped.Add(1)
		return ErrDropped
	}
}

// Subscribe attaches a typed handler to topic. With replay set and the bus
// built WithReplay, the last event on the topic is delivered first.
func Subscribe[T any](b *Bus, topic string, handler func(context.Context, T) error, replay ...bool) Subscription {
	wrapped := HandlerFunc(func(ctx context.Context, data any) error {
		if typed, ok := data.(T); ok {
			return handler(ctx, typed)
		}
		return fmt.Errorf("type assertion failed for %T, expected %T", data, *new(T))
	})
	sub := Subscription{
		Topic:   topic,
		ID:      fmt.Sprintf("%s-%d", topic, b.nextSubID.Add(1)),
		handler: wrapped,
		bus:     b,
	}

	// Hold lastMu across registration so the replayed value is never older
	// than the first live event the subscriber sees.
	b.lastMu.Lock()
	b.addSubscription(sub)
	var (
		prev any
		ok   bool
	)
	if b.config.replay && len(replay) > 0 && replay[0] {
		prev, ok = b.last[topic]
	}
	b.lastMu.Unlock()

	if ok {
		b.deliver(sub, event{topic: topic, message: prev})
	}
	return sub
}

// Stats reports delivered and dropped event counts.
func (b *Bus) Stats() (delivered, dropped int64) {
	return b.delivered.Load(), b.dropped.Load()
}

// Close stops delivery after draining queued events. It is idempotent.
func (b *Bus) Close() {
	if b == nil || !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.shutdown)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

func (b *Bus) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.shutdown:
			for {
				select {
				case evt := <-b.events:
					b.dispatch(evt)
				default:
					return
				}
			}
		case evt := <-b.events:
			b.dispatch(evt)
		}
	}
}

func (b *Bus) dispatch(evt event) {
	b.lastMu.Lock()
	if b.config.replay {
		b.last[evt.topic] = evt.message
	}
	subs := b.subscribers.Load()
	b.lastMu.Unlock()

	for _, sub := range (*subs)[evt.topic] {
		b.deliver(sub, evt)
	}
	b.delivered.Add(1)
}

func (b *Bus) deliver(sub Subscription, evt event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer func() {
		if r := recover(); r != nil && b.config.logger != nil {
			b.config.logger.Error("event handler panic", "topic", evt.topic, "subscription_id", sub.ID, "panic", r)
		}
	}()
	if err := sub.handler(ctx, evt.message); err != nil && b.config.logger != nil {
		b.config.logger.Debug("event handler error",
			"topic", evt.topic,
			"error", err,
			"subscription_id", sub.ID)
	}
}

// addSubscription adds a subscription using copy-on-write
func (b *Bus) addSubscription(sub Subscription) {
	for {
		old := b.subscribers.Load()
		next := copySubscribers(*old)
		if _, ok := next[sub.Topic]; !ok {
			next[sub.Topic] = make(map[string]Subscription)
		}
		next[sub.Topic][sub.ID] = sub
		if b.subscribers.CompareAndSwap(old, &next) {
			return
		}
	}
}

// removeSubscription removes a subscription using copy-on-write
func (b *Bus) removeSubscription(topic, id string) {
	for {
		old := b.subscribers.Load()
		if _, ok := (*old)[topic][id]; !ok {
			return
		}
		next := copySubscribers(*old)
		delete(next[topic], id)
		if len(next[topic]) == 0 {
			delete(next, topic)
		}
		if b.subscribers.CompareAndSwap(old, &next) {
			return
		}
	}
}

func copySubscribers(original subscriberMap) subscriberMap {
	cp := make(subscriberMap, len(original))
	for topic, topicSubs := range original {
		cp[topic] = make(map[string]Subscription, len(topicSubs))
		for id, sub := range topicSubs {
			cp[topic][id] = sub
		}
	}
	return cp
}
