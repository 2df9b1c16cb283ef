package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"
)

// RoundData captures the latest answer reported by a price feed along with the
// fixed decimal precision of the feed and the observation timestamp.
type RoundData struct {
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy of the round data to prevent accidental mutations.
func (r RoundData) Clone() RoundData {
	clone := RoundData{Decimals: r.Decimals, UpdatedAt: r.UpdatedAt}
	if r.Answer != nil {
		clone.Answer = new(big.Int).Set(r.Answer)
	}
	return clone
}

// PriceFeed resolves the current USD price for a single collateral asset. The
// decimal precision is a fixed property of the feed, not of individual rounds,
// so consumers may cache the conversion factor at construction time.
type PriceFeed interface {
	LatestRoundData(ctx context.Context) (RoundData, error)
	Decimals() uint8
}

var (
	// ErrNoPrice indicates that the feed has never been populated.
	ErrNoPrice = errors.New("oracle: no price available")
	// ErrStalePrice indicates that every candidate answer fell outside the
	// configured freshness window.
	ErrStalePrice = errors.New("oracle: no fresh price available")
)

// ManualFeed is a settable feed used by tests and by the daemon's admin
// surface. Prices are pushed rather than pulled.
type ManualFeed struct {
	mu       sync.RWMutex
	decimals uint8
	answer   *big.Int
	updated  time.Time
}

// NewManualFeed constructs an empty manual feed with the supplied precision.
func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// Decimals returns the fixed precision of the feed.
func (m *ManualFeed) Decimals() uint8 {
	return m.decimals
}

// Set records a new answer observed now.
func (m *ManualFeed) Set(answer *big.Int) {
	m.SetAt(answer, time.Now())
}

// SetAt records a new answer with an explicit observation time.
func (m *ManualFeed) SetAt(answer *big.Int, at time.Time) {
	if answer == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = new(big.Int).Set(answer)
	m.updated = at
}

// LatestRoundData returns the most recent answer pushed into the feed.
func (m *ManualFeed) LatestRoundData(context.Context) (RoundData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.answer == nil {
		return RoundData{}, ErrNoPrice
	}
	return RoundData{
		Answer:    new(big.Int).Set(m.answer),
		Decimals:  m.decimals,
		UpdatedAt: m.updated,
	}, nil
}

// MedianFeed aggregates several feeds of identical precision and reports the
// median of the fresh answers. A zero maxAge disables the freshness filter.
type MedianFeed struct {
	feeds    []PriceFeed
	decimals uint8
	maxAge   time.Duration
	now      func() time.Time
}

// NewMedianFeed constructs an aggregator over the provided feeds. All feeds
// must share the same decimal precision.
func NewMedianFeed(feeds []PriceFeed, maxAge time.Duration) (*MedianFeed, error) {
	if len(feeds) == 0 {
		return nil, fmt.Errorf("oracle: at least one feed required")
	}
	decimals := feeds[0].Decimals()
	for _, feed := range feeds[1:] {
		if feed.Decimals() != decimals {
			return nil, fmt.Errorf("oracle: mixed feed precision %d and %d", decimals, feed.Decimals())
		}
	}
	return &MedianFeed{
		feeds:    append([]PriceFeed{}, feeds...),
		decimals: decimals,
		maxAge:   maxAge,
		now:      time.Now,
	}, nil
}

// Decimals returns the shared precision of the underlying feeds.
func (m *MedianFeed) Decimals() uint8 {
	return m.decimals
}

// LatestRoundData polls every underlying feed and returns the median fresh
// answer. Feed errors are tolerated as long as at least one answer survives.
func (m *MedianFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	type observation struct {
		answer  *big.Int
		updated time.Time
	}
	cutoff := time.Time{}
	if m.maxAge > 0 {
		cutoff = m.now().Add(-m.maxAge)
	}

	fresh := make([]observation, 0, len(m.feeds))
	var lastErr error
	for _, feed := range m.feeds {
		data, err := feed.LatestRoundData(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if data.Answer == nil {
			continue
		}
		if !cutoff.IsZero() && data.UpdatedAt.Before(cutoff) {
			lastErr = ErrStalePrice
			continue
		}
		fresh = append(fresh, observation{answer: data.Answer, updated: data.UpdatedAt})
	}
	if len(fresh) == 0 {
		if lastErr != nil {
			return RoundData{}, lastErr
		}
		return RoundData{}, ErrNoPrice
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].answer.Cmp(fresh[j].answer) < 0
	})
	mid := len(fresh) / 2
	median := new(big.Int).Set(fresh[mid].answer)
	if len(fresh)%2 == 0 {
		median.Add(median, fresh[mid-1].answer)
		median.Rsh(median, 1)
	}

	latest := fresh[0].updated
	for _, obs := range fresh[1:] {
		if obs.updated.After(latest) {
			latest = obs.updated
		}
	}
	return RoundData{Answer: median, Decimals: m.decimals, UpdatedAt: latest}, nil
}
