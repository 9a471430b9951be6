package persist

import (
	"testing"

	"vantage-engine/pkg/types"
)

func TestLatestByEventFirstSeenWins(t *testing.T) {
	t.Parallel()

	// The store returns quotes newest-first, so the first row per event is
	// the latest one.
	quotes := []types.Quote{
		{ID: "newest", EventID: "asset-1", ProbabilityPct: 64},
		{ID: "older", EventID: "asset-1", ProbabilityPct: 60},
		{ID: "other", EventID: "TKR-1", ProbabilityPct: 40},
	}

	latest := LatestByEvent(quotes)
	if len(latest) != 2 {
		t.Fatalf("len = %d, want 2", len(latest))
	}
	if latest["asset-1"].ID != "newest" {
		t.Errorf("asset-1 = %s, want newest", latest["asset-1"].ID)
	}
	if latest["TKR-1"].ID != "other" {
		t.Errorf("TKR-1 = %s, want other", latest["TKR-1"].ID)
	}
}

func TestLatestByEventEmpty(t *testing.T) {
	t.Parallel()

	if got := LatestByEvent(nil); len(got) != 0 {
		t.Errorf("LatestByEvent(nil) = %v, want empty", got)
	}
}
