package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"nodesale/internal/failure"
)

// HermesSource reads EMA prices from a Pyth Hermes endpoint.
type HermesSource struct {
	endpoint string
	client   *http.Client
	wait     time.Duration
}

func NewHermesSource(endpoint string, timeout time.Duration) *HermesSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HermesSource{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		client:   &http.Client{Timeout: timeout},
		wait:     rateLimitWait,
	}
}

func (h *HermesSource) Name() string { return "hermes" }

func (h *HermesSource) Latest(ctx context.Context, feedID string) (Quote, error) {
	id := NormalizeFeedID(feedID)
	query := url.Values{}
	query.Add("ids[]", id)
	query.Set("parsed", "true")
	reqURL := h.endpoint + "/v2/updates/price/latest?" + query.Encode()

	body, err := rateLimitRetry(ctx, h.wait, func() ([]byte, error) {
		return h.fetch(ctx, reqURL)
	})
	if errors.Is(err, errRateLimited) {
		return Quote{}, failure.Wrap(failure.ErrOracleUnavailable, "hermes: %v", err)
	}
	if err != nil {
		return Quote{}, err
	}
	return parseHermes(id, body)
}

func (h *HermesSource) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.ErrOracleUnavailable, "hermes: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, failure.Wrap(failure.ErrOracleUnavailable, "hermes read: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, failure.Wrap(failure.ErrOracleUnavailable, "hermes status %d", resp.StatusCode)
	}
	return body, nil
}

func parseHermes(id string, body []byte) (Quote, error) {
	if !gjson.ValidBytes(body) {
		return Quote{}, failure.Wrap(failure.ErrOracleUnavailable, "hermes: malformed response")
	}
	var entry gjson.Result
	gjson.GetBytes(body, "parsed").ForEach(func(_, value gjson.Result) bool {
		if NormalizeFeedID(value.Get("id").String()) == id {
			entry = value
			return false
		}
		return true
	})
	if !entry.Exists() {
		return Quote{}, failure.Wrap(failure.ErrOracleUnavailable, "hermes: feed %s missing", id)
	}
	ema := entry.Get("ema_price")
	if !ema.Get("price").Exists() || !ema.Get("publish_time").Exists() {
		return Quote{}, failure.Wrap(failure.ErrOracleUnavailable, "hermes: feed %s has no ema price", id)
	}
	return Quote{
		FeedID:      id,
		Price:       ema.Get("price").Int(),
		Exponent:    int32(ema.Get("expo").Int()),
		PublishedAt: time.Unix(ema.Get("publish_time").Int(), 0).UTC(),
	}, nil
}
