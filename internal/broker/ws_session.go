package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fxcore/tickpipe/internal/fxerr"
	"github.com/fxcore/tickpipe/internal/symbol"
	"github.com/fxcore/tickpipe/internal/tick"
)

// wsSession is the WS-framed venue variant: a full-duplex socket with
// JSON control messages for subscription and a ping heartbeat.
type wsSession struct {
	cfg  VenueConfig
	conn *websocket.Conn

	mu            sync.Mutex
	subscriptions map[string]struct{}
	connected     bool
	reconnecting  bool
	stopped       bool
	closeCh       chan struct{}

	ticks chan TickEvent
}

func newWSSession(cfg VenueConfig) *wsSession {
	return &wsSession{
		cfg:           cfg,
		subscriptions: make(map[string]struct{}),
		closeCh:       make(chan struct{}),
		ticks:         make(chan TickEvent, 1024),
	}
}

func (s *wsSession) Venue() string { return s.cfg.Name }

func (s *wsSession) Ticks() <-chan TickEvent { return s.ticks }

func (s *wsSession) Connect(ctx context.Context) error {
	if s.cfg.APIKey == "" || s.cfg.AccountID == "" {
		return &fxerr.AuthError{Venue: s.cfg.Name, Err: fmt.Errorf("missing credentials")}
	}

	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.dial(ctx)
}

func (s *wsSession) dial(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, s.cfg.Endpoint, nil)
	if err != nil {
		return &fxerr.TransportError{Endpoint: s.cfg.Endpoint, Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	subs := s.snapshotSubscriptions()
	s.mu.Unlock()

	go s.messageLoop(ctx)
	go s.pingLoop(ctx)

	if len(subs) > 0 {
		if err := s.sendSubscribe(subs); err != nil {
			log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("resubscribe after dial failed")
		}
	}
	return nil
}

func (s *wsSession) snapshotSubscriptions() []string {
	out := make([]string, 0, len(s.subscriptions))
	for sym := range s.subscriptions {
		out = append(out, sym)
	}
	return out
}

func (s *wsSession) Subscribe(symbols []string) error {
	s.mu.Lock()
	for _, raw := range symbols {
		s.subscriptions[symbol.Canonicalize(raw)] = struct{}{}
	}
	connected := s.connected
	subs := s.snapshotSubscriptions()
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.sendSubscribe(subs)
}

func (s *wsSession) Unsubscribe(symbols []string) error {
	s.mu.Lock()
	for _, raw := range symbols {
		delete(s.subscriptions, symbol.Canonicalize(raw))
	}
	connected := s.connected
	subs := s.snapshotSubscriptions()
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.sendSubscribe(subs)
}

func (s *wsSession) sendSubscribe(symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}

	msg := struct {
		Event   string   `json:"event"`
		Symbols []string `json:"symbols"`
	}{Event: "subscribe", Symbols: symbols}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("broker: marshal subscribe: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The ping and read loops see the broken socket and reconnect,
		// which resends the whole subscription set.
		log.Warn().Err(&fxerr.TransportError{Endpoint: s.cfg.Endpoint, Err: err}).Str("venue", s.cfg.Name).Msg("subscribe write failed, awaiting reconnect")
	}
	return nil
}

func (s *wsSession) Disconnect() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.connected = false
	conn := s.conn
	s.conn = nil
	close(s.closeCh)
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	close(s.ticks)
	return err
}

func (s *wsSession) messageLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeCh:
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("websocket read error, reconnecting")
			s.scheduleReconnect(ctx)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := s.handleMessage(data); err != nil {
			log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("dropping unparseable websocket message")
		}
	}
}

type wsPriceMessage struct {
	Symbol string  `json:"symbol"`
	T      float64 `json:"t"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

func (s *wsSession) handleMessage(data []byte) error {
	var msg wsPriceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("broker: parse price message: %w", err)
	}
	if msg.Symbol == "" {
		return fmt.Errorf("broker: price message missing symbol")
	}

	t := tick.Tick{T: msg.T, Bid: msg.Bid, Ask: msg.Ask}
	select {
	case s.ticks <- TickEvent{Venue: s.cfg.Name, Symbol: symbol.Canonicalize(msg.Symbol), ClientID: s.cfg.ClientID, Tick: t}:
	default:
		log.Warn().Str("venue", s.cfg.Name).Msg("tick channel full, dropping tick")
	}
	return nil
}

func (s *wsSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("ping failed, reconnecting")
				s.scheduleReconnect(ctx)
				return
			}
		}
	}
}

func (s *wsSession) scheduleReconnect(ctx context.Context) {
	s.mu.Lock()
	if s.reconnecting || s.stopped {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.connected = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	go func() {
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		case <-s.closeCh:
			return
		}

		s.mu.Lock()
		s.reconnecting = false
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}

		if err := s.dial(ctx); err != nil {
			log.Warn().Err(err).Str("venue", s.cfg.Name).Msg("reconnect dial failed")
		}
	}()
}
