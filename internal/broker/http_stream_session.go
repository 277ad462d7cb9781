package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/symbol"
	"github.com/fxcore/tickpipe/internal/tick"
)

// httpStreamSession is the HTTP-stream venue variant: a long-poll GET
// returning newline-delimited JSON records, Bearer-authenticated, with
// the subscription set encoded in the request URL. Changing the
// subscription set requires tearing down and redialing.
type httpStreamSession struct {
	cfg    VenueConfig
	client *http.Client

	mu            sync.Mutex
	subscriptions map[string]struct{}
	connected     bool
	stopped       bool
	cancelStream  context.CancelFunc
	closeCh       chan struct{}

	ticks chan TickEvent
}

func newHTTPStreamSession(cfg VenueConfig) *httpStreamSession {
	return &httpStreamSession{
		cfg:           cfg,
		client:        &http.Client{Timeout: 0}, // long-poll: no client-level timeout
		subscriptions: make(map[string]struct{}),
		closeCh:       make(chan struct{}),
		ticks:         make(chan TickEvent, 1024),
	}
}

func (s *httpStreamSession) Venue() string          { return s.cfg.Name }
func (s *httpStreamSession) Ticks() <-chan TickEvent { return s.ticks }

func (s *httpStreamSession) Connect(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return &fxerr.AuthError{Venue: s.cfg.Name, Err: fmt.Errorf("missing bearer credential")}
	}
	return s.redial(ctx)
}

func (s *httpStreamSession) streamURL() string {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return s.cfg.Endpoint
	}
	q := u.Query()
	q.Del("symbols")
	for sym := range s.subscriptions {
		q.Add("symbols", sym)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *httpStreamSession) redial(parent context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	if s.cancelStream != nil {
		s.cancelStream()
	}
	streamCtx, cancel := context.WithCancel(parent)
	s.cancelStream = cancel
	reqURL := s.streamURL()
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &fxerr.TransportError{Endpoint: reqURL, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return &fxerr.TransportError{Endpoint: reqURL, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return &fxerr.AuthError{Venue: s.cfg.Name, Err: fmt.Errorf("HTTP 401")}
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return &fxerr.TransportError{Endpoint: reqURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	go s.readLoop(parent, resp)
	return nil
}

func (s *httpStreamSession) readLoop(parent context.Context, resp *http.Response) {
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-s.closeCh:
			return
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue // heartbeat line
		}
		if err := s.handleLine(line); err != nil {
			log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("dropping unparseable stream line")
		}
	}

	s.mu.Lock()
	stopped := s.stopped
	s.connected = false
	s.mu.Unlock()
	if stopped {
		return
	}

	log.Warn().Str("venue", s.cfg.Name).Msg("http stream closed, reconnecting")
	go s.scheduleReconnect(parent)
}

type httpPriceRecord struct {
	Symbol string  `json:"symbol"`
	T      float64 `json:"t"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

func (s *httpStreamSession) handleLine(line string) error {
	var rec httpPriceRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return fmt.Errorf("broker: parse stream line: %w", err)
	}
	if rec.Symbol == "" {
		return fmt.Errorf("broker: stream line missing symbol")
	}

	t := tick.Tick{T: rec.T, Bid: rec.Bid, Ask: rec.Ask}
	select {
	case s.ticks <- TickEvent{Venue: s.cfg.Name, Symbol: symbol.Canonicalize(rec.Symbol), ClientID: s.cfg.ClientID, Tick: t}:
	default:
		log.Warn().Str("venue", s.cfg.Name).Msg("tick channel full, dropping tick")
	}
	return nil
}

func (s *httpStreamSession) scheduleReconnect(parent context.Context) {
	select {
	case <-time.After(reconnectDelay):
	case <-parent.Done():
		return
	case <-s.closeCh:
		return
	}
	if err := s.redial(parent); err != nil {
		log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("reconnect redial failed")
	}
}

// Subscribe adds symbols and redials, since this venue's subscription
// set is encoded in the request URL.
func (s *httpStreamSession) Subscribe(symbols []string) error {
	s.mu.Lock()
	for _, raw := range symbols {
		s.subscriptions[symbol.Canonicalize(raw)] = struct{}{}
	}
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return nil
	}
	if err := s.redial(context.Background()); err != nil {
		log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("subscribe redial failed, awaiting reconnect")
	}
	return nil
}

// Unsubscribe removes symbols and redials.
func (s *httpStreamSession) Unsubscribe(symbols []string) error {
	s.mu.Lock()
	for _, raw := range symbols {
		delete(s.subscriptions, symbol.Canonicalize(raw))
	}
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return nil
	}
	if err := s.redial(context.Background()); err != nil {
		log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("unsubscribe redial failed, awaiting reconnect")
	}
	return nil
}

func (s *httpStreamSession) Disconnect() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.connected = false
	if s.cancelStream != nil {
		s.cancelStream()
	}
	close(s.closeCh)
	s.mu.Unlock()

	close(s.ticks)
	return nil
}
