// Package broker maintains live connections to upstream venues and
// normalizes their price streams into a single tick event shape,
// grounded on the teacher's internal/providers/kraken WebSocket client
// (reconnect channel, message loop, ping loop) generalized to cover
// WS-framed, HTTP-stream, and mock venue variants (spec.md §4.A).
package broker

import (
	"context"
	"time"

	"github.com/fxcore/tickpipe/internal/tick"
)

// TickEvent is the unified price event a Session emits, tagged with
// its originating venue and, for per-client sessions, the client id.
type TickEvent struct {
	Venue    string
	Symbol   string
	ClientID string
	Tick     tick.Tick
}

// Session is one live connection to an upstream venue. Implementations
// are tolerant of network and protocol errors: those trigger
// reconnection internally and are never returned from these methods
// once Connect has succeeded. Only misconfiguration is fatal.
type Session interface {
	// Connect establishes the transport, starts the heartbeat and
	// parse loop, and returns once the initial dial completes (or
	// fails with AuthError/TransportError).
	Connect(ctx context.Context) error

	// Subscribe adds symbols to the live subscription set.
	Subscribe(symbols []string) error

	// Unsubscribe removes symbols from the live subscription set.
	Unsubscribe(symbols []string) error

	// Disconnect cancels the heartbeat and any pending reconnect
	// timer, and closes the transport. Idempotent.
	Disconnect() error

	// Ticks is the channel of normalized tick events. It is closed
	// after Disconnect returns.
	Ticks() <-chan TickEvent

	// Venue names the upstream this session talks to.
	Venue() string
}

const (
	heartbeatInterval = 30 * time.Second
	reconnectDelay    = 5 * time.Second
)

// VenueConfig describes one upstream venue for session construction.
type VenueConfig struct {
	Name       string
	Kind       string // "ws" | "http-stream" | "mock"
	AssetClass string // "forex" | "crypto" | "" (unspecified, routes as a catch-all)
	Endpoint   string
	APIKey     string
	AccountID  string
	ClientID   string // set for per-client sessions (Router.AddClientVenue)
}

// NewSession constructs the Session variant named by cfg.Kind.
func NewSession(cfg VenueConfig) (Session, error) {
	switch cfg.Kind {
	case "ws":
		return newWSSession(cfg), nil
	case "http-stream":
		return newHTTPStreamSession(cfg), nil
	case "mock":
		return newMockSession(cfg), nil
	default:
		return nil, &unknownVenueKindError{kind: cfg.Kind}
	}
}

type unknownVenueKindError struct{ kind string }

func (e *unknownVenueKindError) Error() string {
	return "broker: unknown venue kind " + e.kind
}
