package oracle

import (
	"context"
	"fmt"
	"sync"
)

// StaticSource serves quotes set in memory.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]Quote)}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Set(quote Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quote.FeedID = NormalizeFeedID(quote.FeedID)
	s.quotes[quote.FeedID] = quote
}

func (s *StaticSource) Latest(_ context.Context, feedID string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quote, ok := s.quotes[NormalizeFeedID(feedID)]
	if !ok {
		return Quote{}, fmt.Errorf("no quote for feed %s", feedID)
	}
	return quote, nil
}
