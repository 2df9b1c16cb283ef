package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestManualFeedRoundTrip(t *testing.T) {
	feed := NewManualFeed(8)

	if _, err := feed.LatestRoundData(context.Background()); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}

	feed.Set(big.NewInt(2000_00000000))
	data, err := feed.LatestRoundData(context.Background())
	if err != nil {
		t.Fatalf("latest round data: %v", err)
	}
	if data.Answer.Cmp(big.NewInt(2000_00000000)) != 0 {
		t.Fatalf("unexpected answer: %s", data.Answer)
	}
	if data.Decimals != 8 {
		t.Fatalf("unexpected decimals: %d", data.Decimals)
	}

	// Mutating the returned answer must not corrupt the feed.
	data.Answer.SetInt64(1)
	again, err := feed.LatestRoundData(context.Background())
	if err != nil {
		t.Fatalf("latest round data: %v", err)
	}
	if again.Answer.Cmp(big.NewInt(2000_00000000)) != 0 {
		t.Fatalf("feed state mutated through returned answer: %s", again.Answer)
	}
}

func TestMedianFeedSelectsMedian(t *testing.T) {
	a := NewManualFeed(8)
	b := NewManualFeed(8)
	c := NewManualFeed(8)
	a.Set(big.NewInt(100))
	b.Set(big.NewInt(105))
	c.Set(big.NewInt(90))

	median, err := NewMedianFeed([]PriceFeed{a, b, c}, 0)
	if err != nil {
		t.Fatalf("new median feed: %v", err)
	}
	data, err := median.LatestRoundData(context.Background())
	if err != nil {
		t.Fatalf("latest round data: %v", err)
	}
	if data.Answer.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected median: %s", data.Answer)
	}
}

func TestMedianFeedEvenCountAverages(t *testing.T) {
	a := NewManualFeed(8)
	b := NewManualFeed(8)
	a.Set(big.NewInt(100))
	b.Set(big.NewInt(110))

	median, err := NewMedianFeed([]PriceFeed{a, b}, 0)
	if err != nil {
		t.Fatalf("new median feed: %v", err)
	}
	data, err := median.LatestRoundData(context.Background())
	if err != nil {
		t.Fatalf("latest round data: %v", err)
	}
	if data.Answer.Cmp(big.NewInt(105)) != 0 {
		t.Fatalf("unexpected median: %s", data.Answer)
	}
}

func TestMedianFeedFiltersStale(t *testing.T) {
	fresh := NewManualFeed(8)
	stale := NewManualFeed(8)
	now := time.Now()
	fresh.SetAt(big.NewInt(200), now)
	stale.SetAt(big.NewInt(900), now.Add(-time.Hour))

	median, err := NewMedianFeed([]PriceFeed{fresh, stale}, time.Minute)
	if err != nil {
		t.Fatalf("new median feed: %v", err)
	}
	data, err := median.LatestRoundData(context.Background())
	if err != nil {
		t.Fatalf("latest round data: %v", err)
	}
	if data.Answer.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("stale answer leaked into median: %s", data.Answer)
	}
}

func TestMedianFeedAllStale(t *testing.T) {
	stale := NewManualFeed(8)
	stale.SetAt(big.NewInt(900), time.Now().Add(-time.Hour))

	median, err := NewMedianFeed([]PriceFeed{stale}, time.Minute)
	if err != nil {
		t.Fatalf("new median feed: %v", err)
	}
	if _, err := median.LatestRoundData(context.Background()); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestMedianFeedRejectsMixedPrecision(t *testing.T) {
	a := NewManualFeed(8)
	b := NewManualFeed(18)
	if _, err := NewMedianFeed([]PriceFeed{a, b}, 0); err == nil {
		t.Fatalf("expected precision mismatch error")
	}
}
