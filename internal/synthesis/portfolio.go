package synthesis

import (
	"sort"
	"strings"

	"github.com/sells-group/prep-service/internal/model"
)

const (
	// relevanceThreshold excludes weak matches: only items scoring
	// strictly above it are returned.
	relevanceThreshold = 0.3

	maxPortfolioMatches = 5
)

// PortfolioSearcher scores a user's past projects against a free-text
// query by term overlap. It backs the synthesizer's search_portfolio
// tool; no external service is involved.
type PortfolioSearcher struct {
	items []model.PortfolioItem
}

// NewPortfolioSearcher indexes the given portfolio.
func NewPortfolioSearcher(items []model.PortfolioItem) *PortfolioSearcher {
	return &PortfolioSearcher{items: items}
}

// Match is one scored portfolio item.
type Match struct {
	Item      model.PortfolioItem `json:"item"`
	Relevance float64             `json:"relevance"`
}

// Search returns up to five items scoring above relevanceThreshold,
// strongest first. Relevance is the fraction of query terms found in
// the item's text.
func (s *PortfolioSearcher) Search(query string) []Match {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	var matches []Match
	for _, item := range s.items {
		text := strings.ToLower(strings.Join([]string{
			item.Name, item.ClientIndustry, item.Description, item.KeyOutcomes,
		}, " "))

		hits := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits++
			}
		}

		score := float64(hits) / float64(len(terms))
		if score <= relevanceThreshold {
			continue
		}
		matches = append(matches, Match{Item: item, Relevance: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Relevance > matches[j].Relevance
	})
	if len(matches) > maxPortfolioMatches {
		matches = matches[:maxPortfolioMatches]
	}
	return matches
}
