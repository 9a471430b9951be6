// Package polymarket maintains the market-data session for the order-book
// venue (exchange A).
//
// On open the session sends a single subscription frame for the configured
// asset IDs, then keeps the connection alive with an application-level PING
// every 20 seconds. Decoded events are published on a single ordered channel
// with drop-on-full semantics so a slow consumer can never stall the read
// loop. Reconnection uses capped exponential backoff with jitter and an
// attempt counter that resets after each successful open.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vantage-engine/internal/venue"
)

const (
	readTimeout  = 90 * time.Second // ~4 missed keep-alives triggers reconnect
	writeTimeout = 10 * time.Second
	eventBuffer  = 512
)

// Session is the persistent connection to the order-book venue.
type Session struct {
	url      string
	apiKey   string // optional credential included in the subscribe frame
	assetIDs []string

	reconnectBase time.Duration
	reconnectMax  time.Duration

	conn   *websocket.Conn
	connMu sync.Mutex

	events chan Event

	logger *slog.Logger
}

// NewSession creates a session for the given asset IDs. An empty asset list
// is allowed: the session opens and logs a warning, it simply receives no data.
func NewSession(url, apiKey string, assetIDs []string, reconnectBase, reconnectMax time.Duration, logger *slog.Logger) *Session {
	return &Session{
		url:           url,
		apiKey:        apiKey,
		assetIDs:      assetIDs,
		reconnectBase: reconnectBase,
		reconnectMax:  reconnectMax,
		events:        make(chan Event, eventBuffer),
		logger:        logger.With("component", "ws_polymarket"),
	}
}

// Events returns the read-only channel of decoded messages, in arrival order.
func (s *Session) Events() <-chan Event { return s.events }

// Run connects and maintains the session with auto-reconnect.
// Blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if len(s.assetIDs) == 0 {
		s.logger.Warn("no asset ids configured, session will receive no data")
	}
	return venue.RunLoop(ctx, s.reconnectBase, s.reconnectMax, s.logger, s.connectAndRead)
}

// Close closes the connection from the read side.
func (s *Session) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Session) connectAndRead(ctx context.Context, onOpen func()) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	if err := s.subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	onOpen()
	s.logger.Info("session connected", "assets", len(s.assetIDs))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		s.dispatch(msg)
	}
}

func (s *Session) subscribe() error {
	msg := subscribeMsg{
		Type:     "market",
		AssetIDs: s.assetIDs,
	}
	if s.apiKey != "" {
		msg.Auth = &subscribeAuth{ApiKey: s.apiKey}
	}
	return s.writeJSON(msg)
}

// dispatch routes one frame. The feed batches events into JSON arrays under
// load; unwrap those before routing.
func (s *Session) dispatch(data []byte) {
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(data, &batch); err != nil {
			s.logger.Debug("ignoring malformed array frame", "error", err)
			return
		}
		for _, item := range batch {
			s.dispatchOne(item)
		}
		return
	}
	s.dispatchOne(data)
}

func (s *Session) dispatchOne(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Debug("ignoring non-json frame", "data", string(data))
		return
	}

	switch envelope.EventType {
	case "book", "book_snapshot":
		var evt BookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.logger.Warn("malformed book event, dropping", "error", err)
			return
		}
		s.publish(evt, evt.AssetID)

	case "price_change":
		var evt PriceChangeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.logger.Warn("malformed price_change event, dropping", "error", err)
			return
		}
		evt.Raw = append(json.RawMessage(nil), data...)
		s.publish(evt, evt.AssetID)

	case "trade":
		var evt TradeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.logger.Warn("malformed trade event, dropping", "error", err)
			return
		}
		evt.Raw = append(json.RawMessage(nil), data...)
		s.publish(evt, evt.AssetID)

	case "last_trade_price":
		var evt LastTradePriceEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.logger.Warn("malformed last_trade_price event, dropping", "error", err)
			return
		}
		evt.Raw = append(json.RawMessage(nil), data...)
		s.publish(evt, evt.AssetID)

	default:
		s.logger.Debug("unknown event type", "type", envelope.EventType)
	}
}

// publish hands one event to the consumer, dropping when the buffer is full
// so a slow consumer cannot stall the read loop.
func (s *Session) publish(evt Event, asset string) {
	select {
	case s.events <- evt:
	default:
		s.logger.Warn("event channel full, dropping event", "asset", asset)
	}
}

// pingLoop sends the application-level keep-alive this venue expects.
func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(venue.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeMessage(websocket.TextMessage, []byte("ping")); err != nil {
				s.logger.Warn("keep-alive failed", "error", err)
				return
			}
		}
	}
}

func (s *Session) writeJSON(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *Session) writeMessage(msgType int, data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(msgType, data)
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
