package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	EventQueueSize      = 20
	AsyncQueueSize      = 1000
	AsyncWorkerPoolSize = 2
)

type EventType string

type SubscriberID int

type HandlerFunc func(Event)

type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Phase     string    `json:"phase,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func NewEvent(eventType EventType, phase string, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Phase:     phase,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type metrics struct {
	published      *prometheus.CounterVec
	subscribers    *prometheus.GaugeVec
	deliveryErrors *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodesale_events_published_total",
			Help: "events published on the sale event bus",
		}, []string{"type"}),
		subscribers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nodesale_event_subscribers",
			Help: "current event bus subscribers",
		}, []string{"type"}),
		deliveryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodesale_event_delivery_errors_total",
			Help: "events that could not be delivered to a subscriber",
		}, []string{"type", "reason"}),
	}
}

type subscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func (s *subscriber) deliver(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.ch <- evt
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus fans sale events out to in-process subscribers. Delivery to a
// subscriber blocks until its buffered channel has room.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[SubscriberID]*subscriber
	lastID      SubscriberID
	metrics     *metrics
	logger      *zap.Logger

	queue   chan Event
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopMu  sync.RWMutex
	stopped bool
}

func NewBus(promRegistry prometheus.Registerer, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		subscribers: make(map[EventType]map[SubscriberID]*subscriber),
		logger:      logger,
		queue:       make(chan Event, AsyncQueueSize),
		stopCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		b.metrics = newMetrics(promRegistry)
	}
	for i := 0; i < AsyncWorkerPoolSize; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case evt := <-b.queue:
			b.Publish(evt)
		}
	}
}

func (b *Bus) Subscribe(eventType EventType) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscriber{ch: make(chan Event, EventQueueSize)}
	b.lastID++
	id := b.lastID
	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[SubscriberID]*subscriber)
	}
	b.subscribers[eventType][id] = sub
	if b.metrics != nil {
		b.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return id, sub.ch
}

// SubscribeFunc calls fn for every event of eventType until the subscriber is
// removed or the bus is stopped.
func (b *Bus) SubscribeFunc(eventType EventType, fn HandlerFunc) SubscriberID {
	id, ch := b.Subscribe(eventType)
	go func() {
		for evt := range ch {
			b.handle(fn, evt)
		}
	}()
	return id
}

func (b *Bus) handle(fn HandlerFunc, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic", zap.String("type", string(evt.Type)), zap.Any("panic", r))
			if b.metrics != nil {
				b.metrics.deliveryErrors.WithLabelValues(string(evt.Type), "panic").Inc()
			}
		}
	}()
	fn(evt)
}

func (b *Bus) Unsubscribe(eventType EventType, id SubscriberID) {
	b.mu.Lock()
	var sub *subscriber
	if subs, ok := b.subscribers[eventType]; ok {
		sub = subs[id]
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.subscribers, eventType)
		}
	}
	if sub != nil && b.metrics != nil {
		b.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
	}
	b.mu.Unlock()

	if sub != nil {
		sub.close()
	}
}

// Publish delivers evt to every subscriber of its type.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[evt.Type]))
	for _, sub := range b.subscribers[evt.Type] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(evt)
	}
	if b.metrics != nil {
		b.metrics.published.WithLabelValues(string(evt.Type)).Inc()
	}
	b.logger.Debug("event published",
		zap.String("type", string(evt.Type)),
		zap.String("id", evt.ID),
		zap.String("phase", evt.Phase),
	)
}

// PublishAsync queues evt for delivery by the worker pool. It reports false
// when the bus is stopped or the queue is full; the event is dropped then.
func (b *Bus) PublishAsync(evt Event) bool {
	b.stopMu.RLock()
	defer b.stopMu.RUnlock()
	if b.stopped {
		return false
	}
	select {
	case b.queue <- evt:
		return true
	default:
		b.logger.Warn("event queue full, dropping event", zap.String("type", string(evt.Type)), zap.String("id", evt.ID))
		if b.metrics != nil {
			b.metrics.deliveryErrors.WithLabelValues(string(evt.Type), "dropped").Inc()
		}
		return false
	}
}

// Stop halts the workers and closes every subscriber channel. Stop is
// idempotent; a stopped bus rejects asynchronous publishes.
func (b *Bus) Stop() {
	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		return
	}
	b.stopped = true
	close(b.stopCh)
	b.stopMu.Unlock()
	b.wg.Wait()

	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[EventType]map[SubscriberID]*subscriber)
	b.mu.Unlock()

	for eventType, byID := range subs {
		for _, sub := range byID {
			sub.close()
		}
		if b.metrics != nil {
			b.metrics.subscribers.DeleteLabelValues(string(eventType))
		}
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s[%s]", e.Type, e.ID)
}
