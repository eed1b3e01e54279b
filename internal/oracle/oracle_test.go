package oracle

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodesale/internal/failure"
)

const feed = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"

func TestReadPriceFreshness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src := NewStaticSource()
	src.Set(Quote{FeedID: feed, Price: 2, Exponent: -1, PublishedAt: now.Add(-60 * time.Second)})
	adapter := NewAdapter(src)

	quote, err := adapter.ReadPrice(context.Background(), feed, "0x"+feed, now, 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), quote.Price)

	_, err = adapter.ReadPrice(context.Background(), feed, feed, now.Add(time.Second), 60*time.Second)
	assert.ErrorIs(t, err, failure.ErrStalePrice)

	// the token path tolerates the same quote for longer
	_, err = adapter.ReadPrice(context.Background(), feed, feed, now.Add(time.Second), 120*time.Second)
	assert.NoError(t, err)
}

func TestReadPriceMismatchAndInvalid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src := NewStaticSource()
	src.Set(Quote{FeedID: feed, Price: 0, Exponent: -8, PublishedAt: now})
	adapter := NewAdapter(src)

	_, err := adapter.ReadPrice(context.Background(), feed, "other", now, time.Minute)
	assert.ErrorIs(t, err, failure.ErrOracleMismatch)

	_, err = adapter.ReadPrice(context.Background(), "", "", now, time.Minute)
	assert.ErrorIs(t, err, failure.ErrOracleMismatch)

	_, err = adapter.ReadPrice(context.Background(), feed, feed, now, time.Minute)
	assert.ErrorIs(t, err, failure.ErrInvalidOraclePrice)

	_, err = adapter.ReadPrice(context.Background(), "abc", "abc", now, time.Minute)
	assert.ErrorIs(t, err, failure.ErrOracleUnavailable)
}

func TestFetchThenCheck(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	src := NewStaticSource()
	src.Set(Quote{FeedID: feed, Price: 2, Exponent: -1, PublishedAt: now})
	adapter := NewAdapter(src)

	reading := adapter.Fetch(context.Background(), "0x"+feed)
	quote, err := adapter.Check(reading, feed, now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), quote.Price)

	// the quote is validated against the clock at check time
	_, err = adapter.Check(reading, feed, now.Add(2*time.Minute), time.Minute)
	assert.ErrorIs(t, err, failure.ErrStalePrice)

	_, err = adapter.Check(reading, "abc", now, time.Minute)
	assert.ErrorIs(t, err, failure.ErrOracleMismatch)

	_, err = adapter.Check(adapter.Fetch(context.Background(), ""), feed, now, time.Minute)
	assert.ErrorIs(t, err, failure.ErrOracleMismatch)

	_, err = adapter.Check(adapter.Fetch(context.Background(), "abc"), "abc", now, time.Minute)
	assert.ErrorIs(t, err, failure.ErrOracleUnavailable)
}

func TestConvert(t *testing.T) {
	cases := []struct {
		name      string
		baseUnits uint64
		quote     Quote
		usd       uint64
		want      uint64
	}{
		{name: "whole units", baseUnits: 1, quote: Quote{Price: 2, Exponent: -1}, usd: 300, want: 1500},
		{name: "lamports", baseUnits: 1_000_000_000, quote: Quote{Price: 2, Exponent: -1}, usd: 300, want: 1_500_000_000_000},
		{name: "pyth eight decimals", baseUnits: 1_000_000_000, quote: Quote{Price: 15_000_000_000, Exponent: -8}, usd: 150, want: 999_999_900},
		{name: "positive exponent", baseUnits: 1_000_000, quote: Quote{Price: 5, Exponent: 1}, usd: 7, want: 140_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Convert(tc.baseUnits, tc.quote, tc.usd)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConvertOverflowFails(t *testing.T) {
	_, err := Convert(1_000_000_000, Quote{Price: 1, Exponent: -12}, 1)
	assert.ErrorIs(t, err, failure.ErrArithmeticOverflow)

	_, err = Convert(1, Quote{Price: 1, Exponent: 0}, math.MaxUint64)
	require.NoError(t, err)

	_, err = Convert(2, Quote{Price: 1, Exponent: 0}, math.MaxUint64)
	assert.ErrorIs(t, err, failure.ErrArithmeticOverflow)
}

func TestHermesSource(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("ids[]")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"binary":{"encoding":"hex","data":[]},"parsed":[{"id":%q,
			"price":{"price":"16000000000","conf":"1","expo":-8,"publish_time":1700000000},
			"ema_price":{"price":"15000000000","conf":"1","expo":-8,"publish_time":1700000005}}]}`, feed)
	}))
	defer server.Close()

	src := NewHermesSource(server.URL+"/", time.Second)
	quote, err := src.Latest(context.Background(), "0x"+feed)
	require.NoError(t, err)

	assert.Equal(t, feed, gotQuery)
	assert.Equal(t, int64(15_000_000_000), quote.Price)
	assert.Equal(t, int32(-8), quote.Exponent)
	assert.Equal(t, time.Unix(1_700_000_005, 0).UTC(), quote.PublishedAt)
}

func TestHermesSourceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ids[]") == "missing" {
			fmt.Fprint(w, `{"parsed":[]}`)
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := NewHermesSource(server.URL, time.Second)
	src.wait = time.Millisecond

	_, err := src.Latest(context.Background(), "missing")
	assert.ErrorIs(t, err, failure.ErrOracleUnavailable)

	_, err = src.Latest(context.Background(), feed)
	assert.ErrorIs(t, err, failure.ErrOracleUnavailable)
}

func TestHermesSourceRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprintf(w, `{"parsed":[{"id":%q,"ema_price":{"price":"100","expo":-2,"publish_time":1700000000}}]}`, feed)
	}))
	defer server.Close()

	src := NewHermesSource(server.URL, time.Second)
	src.wait = time.Millisecond
	quote, err := src.Latest(context.Background(), feed)
	require.NoError(t, err)
	assert.Equal(t, int64(100), quote.Price)
	assert.Equal(t, int32(3), calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls.Store(0)
	_, err = rateLimitRetry(ctx, time.Hour, func() (int, error) {
		calls.Add(1)
		return 0, errRateLimited
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}
