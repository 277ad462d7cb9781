package broker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/fxcore/tickpipe/internal/symbol"
	"github.com/fxcore/tickpipe/internal/tick"
)

// mockSession emits synthetic ticks on a timer for integration tests,
// never touching a real network transport.
type mockSession struct {
	cfg      VenueConfig
	interval time.Duration
	rng      *rand.Rand

	mu            sync.Mutex
	subscriptions map[string]struct{}
	stopped       bool

	ticks  chan TickEvent
	doneCh chan struct{}
}

func newMockSession(cfg VenueConfig) *mockSession {
	return &mockSession{
		cfg:           cfg,
		interval:      200 * time.Millisecond,
		rng:           rand.New(rand.NewSource(1)),
		subscriptions: make(map[string]struct{}),
		ticks:         make(chan TickEvent, 1024),
		doneCh:        make(chan struct{}),
	}
}

func (s *mockSession) Venue() string           { return s.cfg.Name }
func (s *mockSession) Ticks() <-chan TickEvent { return s.ticks }

func (s *mockSession) Connect(ctx context.Context) error {
	go s.emitLoop(ctx)
	return nil
}

func (s *mockSession) emitLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.doneCh:
			return
		case now := <-ticker.C:
			s.emitOne(now)
		}
	}
}

func (s *mockSession) emitOne(now time.Time) {
	s.mu.Lock()
	syms := make([]string, 0, len(s.subscriptions))
	for sym := range s.subscriptions {
		syms = append(syms, sym)
	}
	s.mu.Unlock()

	for _, sym := range syms {
		mid := 1.0 + s.rng.Float64()*0.2
		spread := 0.0001
		ev := TickEvent{
			Venue:    s.cfg.Name,
			Symbol:   sym,
			ClientID: s.cfg.ClientID,
			Tick: tick.Tick{
				T:   float64(now.Unix()),
				Bid: mid - spread/2,
				Ask: mid + spread/2,
			},
		}
		select {
		case s.ticks <- ev:
		default:
		}
	}
}

func (s *mockSession) Subscribe(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range symbols {
		s.subscriptions[symbol.Canonicalize(raw)] = struct{}{}
	}
	return nil
}

func (s *mockSession) Unsubscribe(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range symbols {
		delete(s.subscriptions, symbol.Canonicalize(raw))
	}
	return nil
}

func (s *mockSession) Disconnect() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.doneCh)
	s.mu.Unlock()

	close(s.ticks)
	return nil
}
