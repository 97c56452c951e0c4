package model

import "errors"

// ResearchPackage is the structured intelligence gathered about a prospect
// company by the research orchestrator. It is cached per company identity
// and consumed by the synthesizer.
type ResearchPackage struct {
	CompanyIntelligence CompanyIntel        `json:"company_intelligence"`
	DecisionMakers      []DecisionMakerLead `json:"decision_makers"`
	ResearchLimitations []string            `json:"research_limitations"`
	OverallConfidence   float64             `json:"overall_confidence"`
	SourcesUsed         []string            `json:"sources_used"`
}

// CompanyIntel holds the company-level facts collected during research.
type CompanyIntel struct {
	Name                 string   `json:"name"`
	Industry             string   `json:"industry"`
	Size                 string   `json:"size"`
	Description          string   `json:"description"`
	RecentNews           []string `json:"recent_news"`
	StrategicInitiatives []string `json:"strategic_initiatives"`
}

// DecisionMakerLead is a person surfaced during research, before synthesis
// turns it into a report profile.
type DecisionMakerLead struct {
	Name           string `json:"name"`
	Title          string `json:"title"`
	LinkedInURL    string `json:"linkedin_url,omitempty"`
	Background     string `json:"background"`
	RecentActivity string `json:"recent_activity"`
}

// Validate rejects packages with no usable company intelligence. A
// decoded package missing the company name is garbage regardless of how
// well-formed the JSON was.
func (p *ResearchPackage) Validate() error {
	if p.CompanyIntelligence.Name == "" {
		return errors.New("research package has no company name")
	}
	return nil
}

// ResearchResult is the envelope returned by the research phase. Success
// false means the research agent could not produce a usable package; the
// pipeline treats that as a hard failure rather than synthesizing from
// empty data.
type ResearchResult struct {
	Success         bool             `json:"success"`
	CompanyName     string           `json:"company_name"`
	ResearchData    *ResearchPackage `json:"research_data"`
	SourcesUsed     []string         `json:"sources_used"`
	ConfidenceScore float64          `json:"confidence_score"`
	Error           string           `json:"error,omitempty"`
}
