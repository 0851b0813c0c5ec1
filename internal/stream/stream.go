// Package stream fan-outs live transfer events to SSE subscribers, mainly
// for the corridor visualisation on the dashboard.
package stream

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"
)

// Location is an approximate geographical point used for visualisation.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// TransferEvent describes one payment flowing between two corridor endpoints.
type TransferEvent struct {
	From      Location  `json:"from"`
	To        Location  `json:"to"`
	Amount    int64     `json:"amount"`
	Asset     string    `json:"asset"`
	Network   string    `json:"network"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs transfer events to all active subscribers.
type Stream struct {
	mu        sync.RWMutex
	subs      map[int]chan TransferEvent
	next      int
	rnd       *rand.Rand
	locations []Location
}

// New initialises an empty stream with the remittance corridor endpoints.
func New() *Stream {
	return &Stream{
		subs: make(map[int]chan TransferEvent),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
		locations: []Location{
			{Name: "Lagos", Lat: 6.5244, Lon: 3.3792},
			{Name: "Nairobi", Lat: -1.2921, Lon: 36.8219},
			{Name: "Accra", Lat: 5.6037, Lon: -0.1870},
			{Name: "Johannesburg", Lat: -26.2041, Lon: 28.0473},
			{Name: "Cairo", Lat: 30.0444, Lon: 31.2357},
			{Name: "Dakar", Lat: 14.7167, Lon: -17.4677},
			{Name: "Kampala", Lat: 0.3476, Lon: 32.5825},
			{Name: "Dar es Salaam", Lat: -6.7924, Lon: 39.2083},
			{Name: "Addis Ababa", Lat: 9.0320, Lon: 38.7469},
			{Name: "Kigali", Lat: -1.9441, Lon: 30.0619},
			{Name: "Casablanca", Lat: 33.5731, Lon: -7.5898},
			{Name: "Abidjan", Lat: 5.3600, Lon: -4.0083},
			{Name: "London", Lat: 51.5072, Lon: -0.1276},
			{Name: "Paris", Lat: 48.8566, Lon: 2.3522},
			{Name: "Dubai", Lat: 25.2048, Lon: 55.2708},
			{Name: "New York", Lat: 40.7128, Lon: -74.0060},
			{Name: "Guangzhou", Lat: 23.1291, Lon: 113.2644},
		},
	}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan TransferEvent {
	ch := make(chan TransferEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt TransferEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// LocationForID deterministically maps an account identifier to a corridor
// endpoint.
func (s *Stream) LocationForID(id string) Location {
	if len(s.locations) == 0 {
		return Location{}
	}
	hash := sha1.Sum([]byte(id))
	val := binary.BigEndian.Uint32(hash[:4])
	idx := int(val % uint32(len(s.locations)))
	return s.locations[idx]
}

// RandomDemoEvent creates an artificial flow for demo purposes.
func (s *Stream) RandomDemoEvent() TransferEvent {
	if len(s.locations) < 2 {
		return TransferEvent{Timestamp: time.Now().UTC()}
	}
	fromIdx := s.rnd.Intn(len(s.locations))
	toIdx := s.rnd.Intn(len(s.locations) - 1)
	if toIdx >= fromIdx {
		toIdx++
	}
	networks := []string{"stellar", "hedera"}
	amount := int64(1000 + s.rnd.Intn(1_000_000)) // minor units
	return TransferEvent{
		From:      s.locations[fromIdx],
		To:        s.locations[toIdx],
		Amount:    amount,
		Asset:     "USDC",
		Network:   networks[s.rnd.Intn(len(networks))],
		Timestamp: time.Now().UTC(),
	}
}

// StartDemo emits random events at the provided interval until the returned
// stop function is called.
func (s *Stream) StartDemo(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Publish(s.RandomDemoEvent())
			}
		}
	}()
	return cancel
}
