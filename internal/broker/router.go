package broker

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/symbol"
)

const (
	assetClassForex  = "forex"
	assetClassCrypto = "crypto"
)

var forexLikePattern = regexp.MustCompile(`^(EUR|GBP|USD|JPY|CHF|AUD|CAD|NZD)(EUR|GBP|USD|JPY|CHF|AUD|CAD|NZD)$`)

// Router owns one Session per venue plus per-client overrides, routes
// subscribe/unsubscribe requests to the right session, and re-emits
// ticks on one consolidated channel. All mutating operations are
// serialized by mu, matching spec.md §4.B's
// single-logical-worker contract.
type Router struct {
	ticks chan TickEvent

	mu            sync.Mutex
	sessions      map[string]Session   // venue -> session
	assetClass    map[string]string    // venue -> asset class, for pickVenue routing
	clientSess    map[string]Session   // clientID -> per-client session
	symbolToVenue map[string]string    // canonical symbol -> venue
	forwarders    sync.WaitGroup
}

// NewRouter builds an empty Router. Call AddVenue to populate it.
func NewRouter() *Router {
	return &Router{
		ticks:         make(chan TickEvent, 4096),
		sessions:      make(map[string]Session),
		assetClass:    make(map[string]string),
		clientSess:    make(map[string]Session),
		symbolToVenue: make(map[string]string),
	}
}

// Ticks is the consolidated tick stream across every owned session.
func (r *Router) Ticks() <-chan TickEvent { return r.ticks }

// AddVenue constructs a Session for cfg and connects it. A connect
// failure is logged but the session is kept registered; its own
// reconnect logic will retry.
func (r *Router) AddVenue(ctx context.Context, cfg VenueConfig) error {
	sess, err := NewSession(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sessions[cfg.Name] = sess
	r.assetClass[cfg.Name] = cfg.AssetClass
	r.mu.Unlock()

	r.forward(sess)

	if err := sess.Connect(ctx); err != nil {
		log.Warn().Err(err).Str("venue", cfg.Name).Msg("initial connect failed, session kept for retry")
	}
	return nil
}

// AddClientVenue creates a per-client session with its own
// credentials, tagging every tick it emits with clientID.
func (r *Router) AddClientVenue(ctx context.Context, clientID string, cfg VenueConfig) error {
	cfg.ClientID = clientID
	sess, err := NewSession(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.clientSess[clientID] = sess
	r.mu.Unlock()

	r.forward(sess)

	if err := sess.Connect(ctx); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Str("venue", cfg.Name).Msg("initial connect failed, session kept for retry")
	}
	return nil
}

func (r *Router) forward(sess Session) {
	r.forwarders.Add(1)
	go func() {
		defer r.forwarders.Done()
		for ev := range sess.Ticks() {
			select {
			case r.ticks <- ev:
			default:
				log.Warn().Str("venue", ev.Venue).Msg("router tick channel full, dropping tick")
			}
		}
	}()
}

// Subscribe routes symbols to the client's session if clientID is set,
// else to venue if specified, otherwise to pickVenue's choice by asset
// class. A session's connection state is not checked.
func (r *Router) Subscribe(venue string, symbols []string, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sess Session
	if clientID != "" {
		sess = r.clientSess[clientID]
		if sess == nil {
			return &fxerr.AuthError{Venue: venue, Err: fmt.Errorf("no session for client %q", clientID)}
		}
	} else if venue != "" {
		sess = r.sessions[venue]
		if sess == nil {
			return fmt.Errorf("broker: unknown venue %q", venue)
		}
	} else {
		sess = r.pickVenue(symbols)
		if sess == nil {
			return fmt.Errorf("broker: no venue available to route subscribe")
		}
	}

	for _, raw := range symbols {
		r.symbolToVenue[symbol.Canonicalize(raw)] = sess.Venue()
	}
	return sess.Subscribe(symbols)
}

// Unsubscribe routes to the venue the symbol was last subscribed on.
func (r *Router) Unsubscribe(venue string, symbols []string, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sess Session
	switch {
	case clientID != "":
		sess = r.clientSess[clientID]
	case venue != "":
		sess = r.sessions[venue]
	default:
		if len(symbols) > 0 {
			if v, ok := r.symbolToVenue[symbol.Canonicalize(symbols[0])]; ok {
				sess = r.sessions[v]
			}
		}
	}
	if sess == nil {
		return fmt.Errorf("broker: no session found to unsubscribe")
	}
	return sess.Unsubscribe(symbols)
}

// pickVenue implements spec.md §4.B's routing heuristic: forex-looking
// symbols go to a venue tagged "forex", crypto-looking symbols (the
// default when the forex pattern doesn't match) go to a venue tagged
// "crypto", and if no venue carries the wanted asset class it falls
// back to any registered venue.
func (r *Router) pickVenue(symbols []string) Session {
	wanted := assetClassCrypto
	if len(symbols) > 0 && forexLikePattern.MatchString(symbol.Canonicalize(symbols[0])) {
		wanted = assetClassForex
	}
	for name, sess := range r.sessions {
		if r.assetClass[name] == wanted {
			return sess
		}
	}
	for _, sess := range r.sessions {
		return sess
	}
	return nil
}

// DisconnectAll tears down every owned session, including per-client
// ones, and waits for their forwarder goroutines to exit.
func (r *Router) DisconnectAll() error {
	r.mu.Lock()
	sessions := make([]Session, 0, len(r.sessions)+len(r.clientSess))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	for _, s := range r.clientSess {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]Session)
	r.assetClass = make(map[string]string)
	r.clientSess = make(map[string]Session)
	r.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.forwarders.Wait()
	return firstErr
}
