// Package analytics aggregates transfer history into corridor statistics:
// counts and volume by asset, network and day.
package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	"pesabridge.io/internal/transfer"
)

// DefaultWindow is the reporting period when the caller does not specify one.
const DefaultWindow = 30 * 24 * time.Hour

// Stats is a count/volume pair. Volume is in minor units and only completed
// transfers contribute to it.
type Stats struct {
	Count  int64 `json:"count"`
	Volume int64 `json:"volume"`
}

// DayStats is one day's activity, keyed by UTC date.
type DayStats struct {
	Date   string `json:"date"`
	Count  int64  `json:"count"`
	Volume int64  `json:"volume"`
}

// Summary is the aggregated report for a reporting window.
type Summary struct {
	Since     time.Time        `json:"since"`
	Transfers int64            `json:"transfers"`
	Failed    int64            `json:"failed"`
	ByAsset   map[string]Stats `json:"by_asset"`
	ByNetwork map[string]Stats `json:"by_network"`
	ByDay     []DayStats       `json:"by_day"`
}

// Source produces a Summary for the window starting at since.
type Source interface {
	Summarize(ctx context.Context, since time.Time) (Summary, error)
}

// Service clamps the window and delegates to the source.
type Service struct {
	src Source
	now func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the analytics service.
func NewService(src Source, opts ...ServiceOption) (*Service, error) {
	if src == nil {
		return nil, errors.New("analytics: source is required")
	}
	s := &Service{src: src, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Summary aggregates the last window of activity. A non-positive window
// selects the default; windows longer than a year are clamped.
func (s *Service) Summary(ctx context.Context, window time.Duration) (Summary, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if window > 365*24*time.Hour {
		window = 365 * 24 * time.Hour
	}
	return s.src.Summarize(ctx, s.now().UTC().Add(-window))
}

// transferLister is the slice of transfer.Store the in-memory source needs.
type transferLister interface {
	AllSince(ctx context.Context, since time.Time) ([]transfer.Transfer, error)
}

// MemorySource aggregates in Go over an in-memory transfer store.
type MemorySource struct {
	store transferLister
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource wraps the transfer store.
func NewMemorySource(store transferLister) *MemorySource {
	return &MemorySource{store: store}
}

func (m *MemorySource) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	items, err := m.store.AllSince(ctx, since)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Since:     since,
		ByAsset:   make(map[string]Stats),
		ByNetwork: make(map[string]Stats),
	}
	days := make(map[string]*DayStats)
	for _, t := range items {
		if t.Status == transfer.StatusFailed {
			sum.Failed++
			continue
		}
		sum.Transfers++

		asset := sum.ByAsset[t.Asset]
		asset.Count++
		asset.Volume += t.Amount
		sum.ByAsset[t.Asset] = asset

		network := sum.ByNetwork[t.Network]
		network.Count++
		network.Volume += t.Amount
		sum.ByNetwork[t.Network] = network

		date := t.CreatedAt.UTC().Format("2006-01-02")
		day, ok := days[date]
		if !ok {
			day = &DayStats{Date: date}
			days[date] = day
		}
		day.Count++
		day.Volume += t.Amount
	}

	sum.ByDay = make([]DayStats, 0, len(days))
	for _, day := range days {
		sum.ByDay = append(sum.ByDay, *day)
	}
	sort.Slice(sum.ByDay, func(i, j int) bool { return sum.ByDay[i].Date < sum.ByDay[j].Date })
	return sum, nil
}
