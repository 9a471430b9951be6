package kalshi

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTradeEventYesProbability(t *testing.T) {
	t.Parallel()

	evt := TradeEvent{YesPrice: 64}
	if got := evt.YesProbability(); got != 0.64 {
		t.Errorf("YesProbability(64c) = %v, want 0.64", got)
	}

	evt = TradeEvent{YesPrice: 0}
	if got := evt.YesProbability(); got != 0 {
		t.Errorf("YesProbability(0c) = %v, want 0", got)
	}

	// 1 cent is a valid long-shot price and must not read as 100%.
	evt = TradeEvent{YesPrice: 1}
	if got := evt.YesProbability(); got != 0.01 {
		t.Errorf("YesProbability(1c) = %v, want 0.01", got)
	}

	evt = TradeEvent{YesPrice: 100}
	if got := evt.YesProbability(); got != 1 {
		t.Errorf("YesProbability(100c) = %v, want 1", got)
	}
}

func TestTradeEventTime(t *testing.T) {
	t.Parallel()

	evt := TradeEvent{Ts: 1773489600}
	want := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	if got := evt.Time(); !got.Equal(want) {
		t.Errorf("Time = %v, want %v", got, want)
	}

	if got := (&TradeEvent{}).Time(); !got.IsZero() {
		t.Errorf("zero ts should yield zero time, got %v", got)
	}
}

func TestEnvelopeDecode(t *testing.T) {
	t.Parallel()

	frame := `{"type": "trade", "msg": {"market_ticker": "FED-MAR", "yes_price": 64, "no_price": 36, "count": 10, "taker_side": "yes", "ts": 1773489600}}`

	var env envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != "trade" {
		t.Fatalf("type = %q", env.Type)
	}

	var evt TradeEvent
	if err := json.Unmarshal(env.Msg, &evt); err != nil {
		t.Fatalf("unmarshal trade: %v", err)
	}
	if evt.MarketTicker != "FED-MAR" || evt.YesPrice != 64 || evt.TakerSide != "yes" {
		t.Errorf("trade = %+v", evt)
	}
}

func TestTickerEventDecode(t *testing.T) {
	t.Parallel()

	msg := `{"market_ticker": "FED-MAR", "yes_bid": 62, "yes_ask": 65, "volume": 1200}`

	var evt TickerEvent
	if err := json.Unmarshal([]byte(msg), &evt); err != nil {
		t.Fatalf("unmarshal ticker: %v", err)
	}
	if evt.YesBid != 62 || evt.YesAsk != 65 || evt.Volume != 1200 {
		t.Errorf("ticker = %+v", evt)
	}
}
