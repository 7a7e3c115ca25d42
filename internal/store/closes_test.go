package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/pricing"
)

func newMemoryCache(t *testing.T) *CloseCache {
	t.Helper()
	s, err := NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cache, err := NewCloseCache(context.Background(), s)
	if err != nil {
		t.Fatalf("NewCloseCache returned error: %v", err)
	}
	return cache
}

func seriesFrom(start time.Time, closes ...float64) pricing.Series {
	series := make(pricing.Series, len(closes))
	for i, c := range closes {
		series[i] = pricing.Point{Time: start.AddDate(0, 0, i), Close: c}
	}
	return series
}

func TestCloseCache_SaveAndLoad(t *testing.T) {
	cache := newMemoryCache(t)
	ctx := context.Background()
	key := CacheKey{Source: "binanceusdm", Symbol: "BTC/USDT:USDT", Timeframe: "1d"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := cache.Save(ctx, key, seriesFrom(start, 100, 101, 102, 103)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	all, err := cache.Load(ctx, key, 0)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(all) != 4 || all[0].Close != 100 || all[3].Close != 103 {
		t.Fatalf("unexpected series %+v", all)
	}
	if !all[0].Time.Equal(start) {
		t.Errorf("unexpected first timestamp %v", all[0].Time)
	}

	recent, err := cache.Load(ctx, key, 2)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(recent) != 2 || recent[0].Close != 102 || recent[1].Close != 103 {
		t.Errorf("expected most recent two closes ascending, got %+v", recent)
	}
}

func TestCloseCache_SaveUpserts(t *testing.T) {
	cache := newMemoryCache(t)
	ctx := context.Background()
	key := CacheKey{Source: "binanceusdm", Symbol: "ETH/USDT:USDT", Timeframe: "1d"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := cache.Save(ctx, key, seriesFrom(start, 10, 11)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := cache.Save(ctx, key, seriesFrom(start.AddDate(0, 0, 1), 12, 13)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	series, err := cache.Load(ctx, key, 0)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := []float64{10, 12, 13}
	if len(series) != len(want) {
		t.Fatalf("expected %d points, got %+v", len(want), series)
	}
	for i, p := range series {
		if p.Close != want[i] {
			t.Errorf("point %d close=%v, want %v", i, p.Close, want[i])
		}
	}
}

func TestCloseCache_MissIsolatedByKey(t *testing.T) {
	cache := newMemoryCache(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := cache.Save(ctx, CacheKey{Source: "a", Symbol: "X", Timeframe: "1d"}, seriesFrom(start, 1, 2)); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	_, err := cache.Load(ctx, CacheKey{Source: "a", Symbol: "X", Timeframe: "1h"}, 0)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestNewSQLite_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "orderflow.db")
	s, err := NewSQLite(config.DatabaseConfig{Path: path, MaxOpenConns: 2, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	defer s.Close()

	if err := s.DB().Ping(); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}
