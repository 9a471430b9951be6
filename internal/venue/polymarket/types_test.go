package polymarket

import (
	"encoding/json"
	"math"
	"testing"
)

func TestFlexNumberString(t *testing.T) {
	t.Parallel()

	var n FlexNumber
	if err := json.Unmarshal([]byte(`"0.6400"`), &n); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if math.Abs(float64(n)-0.64) > 1e-12 {
		t.Errorf("n = %v, want 0.64", n)
	}
}

func TestFlexNumberNumeric(t *testing.T) {
	t.Parallel()

	var n FlexNumber
	if err := json.Unmarshal([]byte(`0.64`), &n); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if math.Abs(float64(n)-0.64) > 1e-12 {
		t.Errorf("n = %v, want 0.64", n)
	}
}

func TestFlexNumberEmptyString(t *testing.T) {
	t.Parallel()

	var n FlexNumber
	if err := json.Unmarshal([]byte(`""`), &n); err != nil {
		t.Fatalf("unmarshal empty string: %v", err)
	}
	if n != 0 {
		t.Errorf("n = %v, want 0", n)
	}
}

func TestFlexNumberBadString(t *testing.T) {
	t.Parallel()

	var n FlexNumber
	if err := json.Unmarshal([]byte(`"abc"`), &n); err == nil {
		t.Error("non-numeric string should fail")
	}
}

func TestLadderLevelObject(t *testing.T) {
	t.Parallel()

	var l LadderLevel
	if err := json.Unmarshal([]byte(`{"price": "0.63", "size": "100"}`), &l); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if l.Price != 0.63 || l.Size != 100 {
		t.Errorf("level = %v/%v, want 0.63/100", l.Price, l.Size)
	}
}

func TestLadderLevelTuple(t *testing.T) {
	t.Parallel()

	var l LadderLevel
	if err := json.Unmarshal([]byte(`["0.63", "100"]`), &l); err != nil {
		t.Fatalf("unmarshal tuple: %v", err)
	}
	if l.Price != 0.63 || l.Size != 100 {
		t.Errorf("level = %v/%v, want 0.63/100", l.Price, l.Size)
	}

	if err := json.Unmarshal([]byte(`["0.63"]`), &l); err == nil {
		t.Error("one-element tuple should fail")
	}
}

func TestBookEventLegacyFieldNames(t *testing.T) {
	t.Parallel()

	var b BookEvent
	data := `{"event_type": "book", "asset_id": "a1",
		"buys": [["0.63", "100"]], "sells": [["0.65", "100"]]}`
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(b.BidLadder()) != 1 || b.BidLadder()[0].Price != 0.63 {
		t.Errorf("BidLadder = %v", b.BidLadder())
	}
	if len(b.AskLadder()) != 1 || b.AskLadder()[0].Price != 0.65 {
		t.Errorf("AskLadder = %v", b.AskLadder())
	}

	// Modern field names take precedence when present.
	data = `{"bids": [["0.60", "1"]], "buys": [["0.99", "1"]]}`
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if b.BidLadder()[0].Price != 0.60 {
		t.Errorf("BidLadder prefers bids: %v", b.BidLadder())
	}
}
