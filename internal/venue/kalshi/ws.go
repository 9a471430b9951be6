// Package kalshi maintains the market-data session for the ticker venue
// (exchange B).
//
// On open the session sends two subscription frames (trade channel and
// ticker channel) for the configured tickers. Keep-alive uses native
// websocket ping frames — this venue rejects application-level "ping" text.
// Prices arrive in cents; decoding scales them to fractions before anything
// downstream sees them.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vantage-engine/internal/venue"
	"vantage-engine/pkg/types"
)

const (
	readTimeout  = 90 * time.Second
	writeTimeout = 10 * time.Second
	eventBuffer  = 256
)

// envelope wraps every inbound message: a type tag plus the typed payload.
type envelope struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// Event is one decoded inbound message. The session publishes all message
// families on a single channel so consumers see them in arrival order —
// a ticker update is always observed before the trade that followed it.
type Event interface {
	isEvent()
}

func (TradeEvent) isEvent()  {}
func (TickerEvent) isEvent() {}

// TradeEvent is one executed trade. Prices are in cents of a dollar.
type TradeEvent struct {
	MarketTicker string `json:"market_ticker"`
	YesPrice     int    `json:"yes_price"` // cents
	NoPrice      int    `json:"no_price"`  // cents
	Count        int    `json:"count"`     // contracts traded
	TakerSide    string `json:"taker_side"` // "yes" or "no"
	Ts           int64  `json:"ts"`         // unix seconds

	Raw json.RawMessage `json:"-"`
}

// YesProbability scales the cents price into a clamped fraction.
func (t *TradeEvent) YesProbability() types.Probability {
	return types.CentsProbability(t.YesPrice)
}

// Time returns the event time.
func (t *TradeEvent) Time() time.Time {
	if t.Ts == 0 {
		return time.Time{}
	}
	return time.Unix(t.Ts, 0).UTC()
}

// TickerEvent is a best bid/ask update. Prices are in cents of a dollar.
type TickerEvent struct {
	MarketTicker string `json:"market_ticker"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	NoBid        int    `json:"no_bid"`
	NoAsk        int    `json:"no_ask"`
	Volume       int64  `json:"volume"` // trailing 24h contracts
	Ts           int64  `json:"ts"`
}

// errorMsg is the venue's inline error report; never fatal to the session.
type errorMsg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// subscribeCmd is one outbound subscription frame.
type subscribeCmd struct {
	ID     int             `json:"id"`
	Cmd    string          `json:"cmd"` // "subscribe"
	Params subscribeParams `json:"params"`
}

type subscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

// Session is the persistent connection to the ticker venue.
type Session struct {
	url     string
	auth    *Auth
	tickers []string

	reconnectBase time.Duration
	reconnectMax  time.Duration

	conn   *websocket.Conn
	connMu sync.Mutex

	events chan Event

	logger *slog.Logger
}

// NewSession creates a session for the given tickers.
func NewSession(url string, auth *Auth, tickers []string, reconnectBase, reconnectMax time.Duration, logger *slog.Logger) *Session {
	return &Session{
		url:           url,
		auth:          auth,
		tickers:       tickers,
		reconnectBase: reconnectBase,
		reconnectMax:  reconnectMax,
		events:        make(chan Event, eventBuffer),
		logger:        logger.With("component", "ws_kalshi"),
	}
}

// Events returns the read-only channel of decoded messages, in arrival order.
func (s *Session) Events() <-chan Event { return s.events }

// Run connects and maintains the session with auto-reconnect.
// Blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if len(s.tickers) == 0 {
		s.logger.Warn("no tickers configured, session will receive no data")
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
	headers, err := s.auth.Headers(time.Now())
	if err != nil {
		return fmt.Errorf("auth headers: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, headers)
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
	s.logger.Info("session connected", "tickers", len(s.tickers))

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

// subscribe sends the two channel subscriptions this venue expects.
func (s *Session) subscribe() error {
	trade := subscribeCmd{
		ID:  1,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels:      []string{"trade"},
			MarketTickers: s.tickers,
		},
	}
	if err := s.writeJSON(trade); err != nil {
		return err
	}

	ticker := subscribeCmd{
		ID:  2,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels:      []string{"ticker"},
			MarketTickers: s.tickers,
		},
	}
	return s.writeJSON(ticker)
}

func (s *Session) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Debug("ignoring non-json frame", "data", string(data))
		return
	}

	switch env.Type {
	case "trade":
		var evt TradeEvent
		if err := json.Unmarshal(env.Msg, &evt); err != nil {
			s.logger.Warn("malformed trade message, dropping", "error", err)
			return
		}
		evt.Raw = append(json.RawMessage(nil), data...)
		s.publish(evt, evt.MarketTicker)

	case "ticker":
		var evt TickerEvent
		if err := json.Unmarshal(env.Msg, &evt); err != nil {
			s.logger.Warn("malformed ticker message, dropping", "error", err)
			return
		}
		s.publish(evt, evt.MarketTicker)

	case "subscribed":
		s.logger.Info("subscription confirmed")

	case "error":
		var e errorMsg
		if err := json.Unmarshal(env.Msg, &e); err == nil {
			s.logger.Warn("venue error message", "code", e.Code, "msg", e.Msg)
		} else {
			s.logger.Warn("venue error message", "raw", string(env.Msg))
		}

	case "pong", "ok":
		// liveness replies, nothing to do

	default:
		s.logger.Debug("unknown message type", "type", env.Type)
	}
}

// publish hands one event to the consumer, dropping when the buffer is full
// so a slow consumer cannot stall the read loop.
func (s *Session) publish(evt Event, ticker string) {
	select {
	case s.events <- evt:
	default:
		s.logger.Warn("event channel full, dropping event", "ticker", ticker)
	}
}

// pingLoop sends native websocket ping control frames every 20 seconds.
func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(venue.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeMessage(websocket.PingMessage, nil); err != nil {
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
