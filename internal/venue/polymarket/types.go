// types.go maps 1:1 to the JSON messages on the Polymarket market channel.
//
// One struct per message family so decoding is total: an unhandled variant
// is visible in the dispatch switch, not silently dropped in a generic map.
package polymarket

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// FlexNumber accepts a JSON number or a numeric string. The CLOB API returns
// prices and sizes as strings to preserve decimal precision; parsing goes
// through decimal so "0.6400" and 0.64 land on the same value.
type FlexNumber float64

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty number")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse number %q: %w", s, err)
		}
		*n = FlexNumber(d.InexactFloat64())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = FlexNumber(f)
	return nil
}

// LadderLevel is one rung of a bid or ask ladder. The feed emits levels as
// either objects {"price": "0.63", "size": "100"} or tuples ["0.63", "100"];
// both decode into the same struct.
type LadderLevel struct {
	Price FlexNumber `json:"price"`
	Size  FlexNumber `json:"size"`
}

func (l *LadderLevel) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var tuple []FlexNumber
		if err := json.Unmarshal(data, &tuple); err != nil {
			return err
		}
		if len(tuple) < 2 {
			return fmt.Errorf("ladder tuple needs 2 elements, got %d", len(tuple))
		}
		l.Price, l.Size = tuple[0], tuple[1]
		return nil
	}
	type plain LadderLevel
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = LadderLevel(p)
	return nil
}

// Event is one decoded inbound message. The session publishes all message
// families on a single channel so consumers see them in arrival order —
// a book update is always observed before the trade that followed it.
type Event interface {
	isEvent()
}

func (BookEvent) isEvent()           {}
func (PriceChangeEvent) isEvent()    {}
func (TradeEvent) isEvent()          {}
func (LastTradePriceEvent) isEvent() {}

// TradeEvent is an executed trade on the market channel.
type TradeEvent struct {
	EventType string     `json:"event_type"` // "trade"
	AssetID   string     `json:"asset_id"`
	Market    string     `json:"market"`
	Price     FlexNumber `json:"price"`
	Size      FlexNumber `json:"size"`
	Side      string     `json:"side"` // "BUY" or "SELL"
	Timestamp string     `json:"timestamp"`

	Raw json.RawMessage `json:"-"` // original frame, kept for quote raw_payload
}

// LastTradePriceEvent reports the most recent trade price for an asset.
type LastTradePriceEvent struct {
	EventType string     `json:"event_type"` // "last_trade_price"
	AssetID   string     `json:"asset_id"`
	Price     FlexNumber `json:"price"`
	Timestamp string     `json:"timestamp"`

	Raw json.RawMessage `json:"-"`
}

// PriceChangeEvent reports a new top of book for an asset.
type PriceChangeEvent struct {
	EventType string     `json:"event_type"` // "price_change"
	AssetID   string     `json:"asset_id"`
	BestBid   FlexNumber `json:"best_bid"`
	BestAsk   FlexNumber `json:"best_ask"`
	Timestamp string     `json:"timestamp"`

	Raw json.RawMessage `json:"-"`
}

// BookEvent is a full order book snapshot for an asset. The feed labels
// these "book" or "book_snapshot" depending on whether they were triggered
// by subscription or by a rebuild; the payload shape is identical.
type BookEvent struct {
	EventType string        `json:"event_type"` // "book" or "book_snapshot"
	AssetID   string        `json:"asset_id"`
	Market    string        `json:"market"`
	Bids      []LadderLevel `json:"bids"`
	Asks      []LadderLevel `json:"asks"`
	Buys      []LadderLevel `json:"buys"`  // legacy field name, same as Bids
	Sells     []LadderLevel `json:"sells"` // legacy field name, same as Asks
	Timestamp string        `json:"timestamp"`
}

// BidLadder returns the bid levels regardless of which field name the feed used.
func (b *BookEvent) BidLadder() []LadderLevel {
	if len(b.Bids) > 0 {
		return b.Bids
	}
	return b.Buys
}

// AskLadder returns the ask levels regardless of which field name the feed used.
func (b *BookEvent) AskLadder() []LadderLevel {
	if len(b.Asks) > 0 {
		return b.Asks
	}
	return b.Sells
}

// subscribeMsg is the single outbound subscription frame sent on open.
type subscribeMsg struct {
	Auth     *subscribeAuth `json:"auth,omitempty"`
	Type     string         `json:"type"` // channel identifier, always "market"
	AssetIDs []string       `json:"assets_ids"`
}

type subscribeAuth struct {
	ApiKey string `json:"apiKey"`
}
