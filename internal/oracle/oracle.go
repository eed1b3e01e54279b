package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nodesale/internal/failure"
	"nodesale/internal/fixedpoint"
)

// Quote is a single published price: Price × 10^Exponent USD per native unit.
type Quote struct {
	FeedID      string
	Price       int64
	Exponent    int32
	PublishedAt time.Time
}

// Source resolves the latest quote for a feed.
type Source interface {
	Name() string
	Latest(ctx context.Context, feedID string) (Quote, error)
}

// Adapter validates feeds and quote freshness on behalf of the sale engine.
type Adapter struct {
	source Source
	logger *zap.Logger
}

type Option func(*Adapter)

func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

func NewAdapter(source Source, opts ...Option) *Adapter {
	a := &Adapter{source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// NormalizeFeedID lower-cases the id and strips an optional 0x prefix.
func NormalizeFeedID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}

// Reading is a quote fetched for a presented feed together with the error the
// fetch produced, if any. It is validated later with Check, so a slow source
// can be queried before the caller takes any lock.
type Reading struct {
	presented string
	feed      string
	quote     Quote
	err       error
}

// Fetch asks the source for the latest quote of presentedFeed.
func (a *Adapter) Fetch(ctx context.Context, presentedFeed string) Reading {
	r := Reading{presented: presentedFeed, feed: NormalizeFeedID(presentedFeed)}
	if r.feed == "" {
		return r
	}
	r.quote, r.err = a.source.Latest(ctx, r.feed)
	if r.err != nil {
		if _, ok := failure.As(r.err); !ok {
			r.err = failure.Wrap(failure.ErrOracleUnavailable, "%s: %v", a.source.Name(), r.err)
		}
	}
	return r
}

// Check returns the fetched quote provided it belongs to configuredFeed, is
// positive and is no older than maxAge at now.
func (a *Adapter) Check(r Reading, configuredFeed string, now time.Time, maxAge time.Duration) (Quote, error) {
	configured := NormalizeFeedID(configuredFeed)
	if configured == "" || configured != r.feed {
		return Quote{}, failure.Wrap(failure.ErrOracleMismatch, "configured %q presented %q", configuredFeed, r.presented)
	}
	if r.err != nil {
		return Quote{}, r.err
	}
	quote := r.quote
	if quote.Price <= 0 {
		return Quote{}, failure.Wrap(failure.ErrInvalidOraclePrice, "feed %s price %d", configured, quote.Price)
	}
	age := now.Sub(quote.PublishedAt)
	if age > maxAge {
		a.logger.Debug("stale oracle quote",
			zap.String("feed", configured),
			zap.Duration("age", age),
			zap.Duration("max_age", maxAge),
		)
		return Quote{}, failure.Wrap(failure.ErrStalePrice, "feed %s age %s exceeds %s", configured, age, maxAge)
	}
	return quote, nil
}

// ReadPrice returns the quote for configuredFeed provided the caller presented
// the same feed and the quote is no older than maxAge at now.
func (a *Adapter) ReadPrice(ctx context.Context, configuredFeed, presentedFeed string, now time.Time, maxAge time.Duration) (Quote, error) {
	configured := NormalizeFeedID(configuredFeed)
	if configured == "" || configured != NormalizeFeedID(presentedFeed) {
		return Quote{}, failure.Wrap(failure.ErrOracleMismatch, "configured %q presented %q", configuredFeed, presentedFeed)
	}
	return a.Check(a.Fetch(ctx, presentedFeed), configuredFeed, now, maxAge)
}

// Convert turns usdAmount into base units of the paying asset. baseUnits is
// the number of base units in one whole asset unit (10^decimals). Evaluation
// order matches the on-chain formula: baseUnits × 10^|e| / price × usd.
func Convert(baseUnits uint64, quote Quote, usdAmount uint64) (uint64, error) {
	if quote.Price <= 0 {
		return 0, failure.Wrap(failure.ErrInvalidOraclePrice, "price %d", quote.Price)
	}
	price := uint64(quote.Price)

	if quote.Exponent <= 0 {
		scale, err := fixedpoint.Pow10(uint32(-quote.Exponent))
		if err != nil {
			return 0, err
		}
		perUSD, err := fixedpoint.Mul(baseUnits, scale)
		if err != nil {
			return 0, err
		}
		perUSD, err = fixedpoint.Div(perUSD, price)
		if err != nil {
			return 0, err
		}
		return fixedpoint.Mul(perUSD, usdAmount)
	}

	scale, err := fixedpoint.Pow10(uint32(quote.Exponent))
	if err != nil {
		return 0, err
	}
	scaledPrice, err := fixedpoint.Mul(price, scale)
	if err != nil {
		return 0, err
	}
	perUSD, err := fixedpoint.Div(baseUnits, scaledPrice)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Mul(perUSD, usdAmount)
}

// BaseUnits returns 10^decimals.
func BaseUnits(decimals uint8) (uint64, error) {
	units, err := fixedpoint.Pow10(uint32(decimals))
	if err != nil {
		return 0, fmt.Errorf("decimals %d: %w", decimals, err)
	}
	return units, nil
}
