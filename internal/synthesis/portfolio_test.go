package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prep-service/internal/model"
)

func testPortfolio() []model.PortfolioItem {
	return []model.PortfolioItem{
		{Name: "Line QA Overhaul", ClientIndustry: "manufacturing", Description: "automated visual inspection", KeyOutcomes: "cut defects 40%"},
		{Name: "Fleet Telemetry", ClientIndustry: "logistics", Description: "real-time truck telemetry platform", KeyOutcomes: "fuel costs down 12%"},
		{Name: "Retail Loyalty App", ClientIndustry: "retail", Description: "mobile loyalty program", KeyOutcomes: "repeat purchases up"},
	}
}

func TestSearch_ScoresByTermOverlap(t *testing.T) {
	s := NewPortfolioSearcher(testPortfolio())

	matches := s.Search("manufacturing inspection automation")
	require.NotEmpty(t, matches)
	assert.Equal(t, "Line QA Overhaul", matches[0].Item.Name)
	// 2 of 3 terms hit ("manufacturing", "inspection").
	assert.InDelta(t, 2.0/3.0, matches[0].Relevance, 0.001)
}

func TestSearch_WeakMatchesExcluded(t *testing.T) {
	s := NewPortfolioSearcher(testPortfolio())

	// One hit out of five terms scores 0.2, below the threshold.
	assert.Empty(t, s.Search("telemetry alpha bravo charlie delta"))

	// Exactly 0.3 is still excluded; only strictly above passes.
	assert.Empty(t, s.Search("telemetry truck fuel alpha bravo charlie delta echo foxtrot golf"))

	// Two hits out of five clears it.
	matches := s.Search("telemetry truck alpha bravo charlie")
	require.Len(t, matches, 1)
	assert.Equal(t, "Fleet Telemetry", matches[0].Item.Name)
	assert.InDelta(t, 0.4, matches[0].Relevance, 0.001)
}

func TestSearch_NoMatchesOmitted(t *testing.T) {
	s := NewPortfolioSearcher(testPortfolio())
	assert.Empty(t, s.Search("aerospace satellites"))
}

func TestSearch_EmptyQuery(t *testing.T) {
	s := NewPortfolioSearcher(testPortfolio())
	assert.Nil(t, s.Search("   "))
}

func TestSearch_StrongestFirstCappedAtFive(t *testing.T) {
	items := make([]model.PortfolioItem, 0, 7)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		items = append(items, model.PortfolioItem{Name: name, Description: "warehouse automation"})
	}
	items = append(items, model.PortfolioItem{Name: "best", Description: "warehouse automation robotics"})
	s := NewPortfolioSearcher(items)

	matches := s.Search("warehouse automation robotics")
	require.Len(t, matches, maxPortfolioMatches)
	assert.Equal(t, "best", matches[0].Item.Name)
	assert.Equal(t, 1.0, matches[0].Relevance)
}

func TestSearch_EmptyPortfolio(t *testing.T) {
	s := NewPortfolioSearcher(nil)
	assert.Empty(t, s.Search("anything at all"))
}
