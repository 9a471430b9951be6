package classify

import (
	"math"
	"strings"
	"testing"

	"vantage-engine/internal/config"
	"vantage-engine/pkg/types"
)

func testClassifierConfig() config.ClassifierConfig {
	return config.ClassifierConfig{
		Concurrency:            5,
		ArbFlagThresholdPct:    10,
		DivergenceThresholdPct: 5,
		HubLinkThreshold:       3,
	}
}

func pctPtr(v float64) *types.Percent {
	p := types.Percent(v)
	return &p
}

func TestBuildRelationshipCanonicalOrder(t *testing.T) {
	t.Parallel()

	edge := modelEdge{
		RelationshipType: "Equivalent",
		ConfidenceScore:  0.85,
		ImpactDirection:  "Positive",
	}

	// Keys arrive out of canonical order; probabilities must swap with them.
	rel := buildRelationship("zeta_market", "alpha_market", edge, pctPtr(90), pctPtr(20))

	if rel.MarketKeyA != "alpha_market" || rel.MarketKeyB != "zeta_market" {
		t.Fatalf("keys = %s/%s, want alpha_market/zeta_market", rel.MarketKeyA, rel.MarketKeyB)
	}
	if *rel.ProbabilityA != 20 || *rel.ProbabilityB != 90 {
		t.Errorf("probs = %v/%v, want 20/90 (swapped with keys)", *rel.ProbabilityA, *rel.ProbabilityB)
	}
	if rel.RelationshipType != types.RelEquivalent {
		t.Errorf("type = %q, want equivalent (lowercased)", rel.RelationshipType)
	}
	if rel.ImpactDirection != types.ImpactPositive {
		t.Errorf("impact = %q, want positive", rel.ImpactDirection)
	}
}

func TestBuildRelationshipClampsConfidence(t *testing.T) {
	t.Parallel()

	rel := buildRelationship("a", "b", modelEdge{RelationshipType: "correlated", ConfidenceScore: 1.7}, nil, nil)
	if rel.ConfidenceScore != 1 {
		t.Errorf("confidence = %v, want clamped to 1", rel.ConfidenceScore)
	}
	rel = buildRelationship("a", "b", modelEdge{RelationshipType: "correlated", ConfidenceScore: -0.2}, nil, nil)
	if rel.ConfidenceScore != 0 {
		t.Errorf("confidence = %v, want clamped to 0", rel.ConfidenceScore)
	}
}

func TestPostProcessEquivalentDivergence(t *testing.T) {
	t.Parallel()

	rel := types.Relationship{
		MarketKeyA:         "a",
		MarketKeyB:         "b",
		RelationshipType:   types.RelEquivalent,
		LogicJustification: "Same outcome on both venues.",
		ProbabilityA:       pctPtr(90),
		ProbabilityB:       pctPtr(20),
	}
	postProcess(&rel, testClassifierConfig())

	if rel.ProbabilitySpread == nil || *rel.ProbabilitySpread != 70 {
		t.Fatalf("spread = %v, want 70", rel.ProbabilitySpread)
	}
	if rel.RiskAlert == nil || *rel.RiskAlert != types.TagVenueDivergence {
		t.Errorf("risk alert = %v, want venue_divergence", rel.RiskAlert)
	}
	if rel.ArbitrageFlag == nil || *rel.ArbitrageFlag != types.TagHighValueArbitrage {
		t.Errorf("arbitrage flag = %v, want high_value_arbitrage", rel.ArbitrageFlag)
	}
	if !strings.Contains(rel.LogicJustification, "70.0 points") {
		t.Errorf("justification not extended with the spread: %q", rel.LogicJustification)
	}
}

func TestPostProcessEquivalentSmallSpread(t *testing.T) {
	t.Parallel()

	rel := types.Relationship{
		RelationshipType: types.RelEquivalent,
		ProbabilityA:     pctPtr(51),
		ProbabilityB:     pctPtr(49),
	}
	postProcess(&rel, testClassifierConfig())

	if rel.ProbabilitySpread == nil || *rel.ProbabilitySpread != 2 {
		t.Fatalf("spread = %v, want 2", rel.ProbabilitySpread)
	}
	if rel.RiskAlert != nil || rel.ArbitrageFlag != nil {
		t.Error("no tags expected under both thresholds")
	}
}

func TestPostProcessMutuallyExclusiveSum(t *testing.T) {
	t.Parallel()

	// 60 + 55 = 115: fifteen points over a clean split.
	rel := types.Relationship{
		RelationshipType: types.RelMutuallyExclusive,
		ProbabilityA:     pctPtr(60),
		ProbabilityB:     pctPtr(55),
	}
	postProcess(&rel, testClassifierConfig())

	if rel.ProbabilitySpread == nil || math.Abs(float64(*rel.ProbabilitySpread)-15) > 1e-9 {
		t.Fatalf("spread = %v, want 15", rel.ProbabilitySpread)
	}
	if rel.ArbitrageFlag == nil || *rel.ArbitrageFlag != types.TagHighValueArbitrage {
		t.Errorf("arbitrage flag = %v, want high_value_arbitrage", rel.ArbitrageFlag)
	}
	if rel.RiskAlert != nil {
		t.Error("venue divergence applies to equivalent pairs only")
	}
}

func TestPostProcessSkipsWithoutProbabilities(t *testing.T) {
	t.Parallel()

	rel := types.Relationship{RelationshipType: types.RelEquivalent, ProbabilityA: pctPtr(50)}
	postProcess(&rel, testClassifierConfig())
	if rel.ProbabilitySpread != nil {
		t.Error("spread computed with one side missing")
	}
}

func TestPostProcessIgnoresOtherTypes(t *testing.T) {
	t.Parallel()

	rel := types.Relationship{
		RelationshipType: types.RelCorrelated,
		ProbabilityA:     pctPtr(90),
		ProbabilityB:     pctPtr(10),
	}
	postProcess(&rel, testClassifierConfig())
	if rel.ProbabilitySpread != nil || rel.ArbitrageFlag != nil {
		t.Error("spread tags apply to equivalent and mutually_exclusive only")
	}
}

func TestHubNodes(t *testing.T) {
	t.Parallel()

	rels := []types.Relationship{
		{MarketKeyA: "hub", MarketKeyB: "a", RelationshipType: types.RelImplied},
		{MarketKeyA: "hub", MarketKeyB: "b", RelationshipType: types.RelCorrelated},
		{MarketKeyA: "c", MarketKeyB: "hub", RelationshipType: types.RelImplied},
		{MarketKeyA: "d", MarketKeyB: "hub", RelationshipType: types.RelCorrelated},
		// Equivalent edges do not count toward hub status.
		{MarketKeyA: "hub", MarketKeyB: "e", RelationshipType: types.RelEquivalent},
		{MarketKeyA: "quiet", MarketKeyB: "f", RelationshipType: types.RelImplied},
	}

	hubs := HubNodes(rels, 3)
	if len(hubs) != 1 || hubs[0] != "hub" {
		t.Errorf("hubs = %v, want [hub]", hubs)
	}

	// Threshold is strict: exactly 3 links is not a hub.
	if hubs := HubNodes(rels[:3], 3); len(hubs) != 0 {
		t.Errorf("hubs = %v, want none at exactly threshold", hubs)
	}
}

// The model sometimes emits implied_* synonyms; they count toward hub status
// exactly as the traversal treats them.
func TestHubNodesCountsImpliedSynonyms(t *testing.T) {
	t.Parallel()

	rels := []types.Relationship{
		{MarketKeyA: "hub", MarketKeyB: "a", RelationshipType: "implied_conditional"},
		{MarketKeyA: "hub", MarketKeyB: "b", RelationshipType: "implied_by"},
		{MarketKeyA: "c", MarketKeyB: "hub", RelationshipType: types.RelImplied},
		{MarketKeyA: "d", MarketKeyB: "hub", RelationshipType: types.RelCorrelated},
	}

	hubs := HubNodes(rels, 3)
	if len(hubs) != 1 || hubs[0] != "hub" {
		t.Errorf("hubs = %v, want [hub]", hubs)
	}
}
