// Package sale implements the tiered node sale: phase and tier registry,
// capacity accounting, oracle pricing with stacked discounts and the order
// lifecycle. Every exported operation runs in a single storage transaction;
// payment transfers, issuance and the event log join that transaction through
// the context, so a failed operation leaves nothing behind.
package sale

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"nodesale/internal/event"
	"nodesale/internal/failure"
	"nodesale/internal/issuance"
	"nodesale/internal/oracle"
	"nodesale/internal/payment"
	"nodesale/internal/storage"
)

const (
	DefaultNativeDecimals    = 9
	DefaultNativeMaxPriceAge = 60 * time.Second
	DefaultTokenMaxPriceAge  = 120 * time.Second
)

// Transferer moves funds. It must either move the whole amount or fail.
type Transferer interface {
	Transfer(ctx context.Context, t payment.Transfer) error
}

// Issuer produces one unique asset per call. It is never called twice for
// the same reserved item.
type Issuer interface {
	Issue(ctx context.Context, req issuance.Request) (issuance.Asset, error)
}

type Engine struct {
	store      storage.Storage
	oracle     *oracle.Adapter
	transferer Transferer
	issuer     Issuer
	bus        *event.Bus
	logger     *zap.Logger
	now        func() time.Time

	nativeDecimals    uint8
	nativeMaxPriceAge time.Duration
	tokenMaxPriceAge  time.Duration

	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithEventBus publishes committed events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithNativeDecimals(decimals uint8) Option {
	return func(e *Engine) { e.nativeDecimals = decimals }
}

func WithMaxPriceAge(native, token time.Duration) Option {
	return func(e *Engine) {
		e.nativeMaxPriceAge = native
		e.tokenMaxPriceAge = token
	}
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		factory := promauto.With(reg)
		e.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nodesale_operation_duration_seconds",
			Help:    "duration of sale operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"})
		e.failures = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nodesale_operation_failures_total",
			Help: "failed sale operations by failure code",
		}, []string{"operation", "code"})
	}
}

func New(store storage.Storage, adapter *oracle.Adapter, transferer Transferer, issuer Issuer, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		oracle:            adapter,
		transferer:        transferer,
		issuer:            issuer,
		logger:            zap.NewNop(),
		now:               time.Now,
		nativeDecimals:    DefaultNativeDecimals,
		nativeMaxPriceAge: DefaultNativeMaxPriceAge,
		tokenMaxPriceAge:  DefaultTokenMaxPriceAge,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// unit is one operation in flight: the transaction repository plus the
// events it produced, recorded in the same transaction.
type unit struct {
	repo   *storage.Repository
	events []event.Event
}

func (u *unit) emit(eventType event.EventType, phase string, data any) error {
	evt := event.NewEvent(eventType, phase, data)
	if err := event.Record(u.repo, evt); err != nil {
		return err
	}
	u.events = append(u.events, evt)
	return nil
}

func (e *Engine) run(ctx context.Context, operation string, fn func(ctx context.Context, u *unit) error) error {
	start := time.Now()
	var events []event.Event
	err := e.store.Transaction(ctx, func(ctx context.Context, repo *storage.Repository) error {
		u := &unit{repo: repo}
		if err := fn(ctx, u); err != nil {
			return err
		}
		events = u.events
		return nil
	})
	if e.duration != nil {
		e.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		code := "internal"
		if f, ok := failure.As(err); ok {
			code = string(f.Code)
		}
		if e.failures != nil {
			e.failures.WithLabelValues(operation, code).Inc()
		}
		e.logger.Warn("operation failed", zap.String("operation", operation), zap.String("code", code), zap.Error(err))
		return err
	}

	e.logger.Debug("operation committed", zap.String("operation", operation), zap.Int("events", len(events)))
	if e.bus != nil {
		for _, evt := range events {
			e.bus.PublishAsync(evt)
		}
	}
	return nil
}
