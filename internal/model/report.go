package model

import (
	"github.com/rotisserie/eris"
)

// PrepReport is the six-section sales-call briefing produced by the
// synthesizer. Field names are part of the agent contract: the model is
// instructed to emit exactly this JSON shape, and deviations are treated
// as coercion failures.
type PrepReport struct {
	ExecutiveSummary    ExecutiveSummary    `json:"executive_summary"`
	StrategicNarrative  StrategicNarrative  `json:"strategic_narrative"`
	TalkingPoints       TalkingPoints       `json:"talking_points"`
	QuestionsToAsk      QuestionsToAsk      `json:"questions_to_ask"`
	DecisionMakers      DecisionMakers      `json:"decision_makers"`
	CompanyIntelligence CompanyIntelligence `json:"company_intelligence"`
	ResearchLimitations []string            `json:"research_limitations"`
	OverallConfidence   float64             `json:"overall_confidence"`
	Sources             []string            `json:"sources"`
}

// ExecutiveSummary is section 1: the TL;DR of the call.
type ExecutiveSummary struct {
	TheClient  string  `json:"the_client"`
	OurAngle   string  `json:"our_angle"`
	CallGoal   string  `json:"call_goal"`
	Confidence float64 `json:"confidence"`
}

// StrategicNarrative is section 2: outcome, proof, and pain points.
type StrategicNarrative struct {
	DreamOutcome       string           `json:"dream_outcome"`
	ProofOfAchievement []PortfolioMatch `json:"proof_of_achievement"`
	PainPoints         []PainPoint      `json:"pain_points"`
	Confidence         float64          `json:"confidence"`
}

// PortfolioMatch ties a past project to the prospect's situation.
type PortfolioMatch struct {
	ProjectName    string  `json:"project_name"`
	Relevance      string  `json:"relevance"`
	RelevanceScore float64 `json:"relevance_score"`
}

// PainPoint is a prospect challenge ranked by urgency and impact (1-5).
type PainPoint struct {
	Pain     string   `json:"pain"`
	Urgency  int      `json:"urgency"`
	Impact   int      `json:"impact"`
	Evidence []string `json:"evidence"`
}

// TalkingPoints is section 3: pitch angles for the call.
type TalkingPoints struct {
	OpeningHook        string   `json:"opening_hook"`
	KeyPoints          []string `json:"key_points"`
	CompetitiveContext string   `json:"competitive_context"`
	Confidence         float64  `json:"confidence"`
}

// QuestionsToAsk is section 4: question banks by category.
type QuestionsToAsk struct {
	Strategic      []string `json:"strategic"`
	Technical      []string `json:"technical"`
	BusinessImpact []string `json:"business_impact"`
	Qualification  []string `json:"qualification"`
	Confidence     float64  `json:"confidence"`
}

// DecisionMakers is section 5. Profiles is nil when no contact data was
// available.
type DecisionMakers struct {
	Profiles   []DecisionMakerProfile `json:"profiles"`
	Confidence float64                `json:"confidence"`
}

// DecisionMakerProfile is a single person in the decision makers section.
type DecisionMakerProfile struct {
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	LinkedInURL      string   `json:"linkedin_url,omitempty"`
	BackgroundPoints []string `json:"background_points"`
}

// CompanyIntelligence is section 6: the researched company facts.
type CompanyIntelligence struct {
	Industry             string     `json:"industry"`
	CompanySize          string     `json:"company_size"`
	RecentNews           []NewsItem `json:"recent_news"`
	StrategicInitiatives []string   `json:"strategic_initiatives"`
	Confidence           float64    `json:"confidence"`
}

// NewsItem is a dated news event with why it matters.
type NewsItem struct {
	Headline     string `json:"headline"`
	Date         string `json:"date"`
	Significance string `json:"significance"`
}

// ClampConfidence bounds a confidence score to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Clamp bounds every confidence field in the report to [0, 1]. Called
// before persistence so out-of-range agent output never reaches storage.
func (r *PrepReport) Clamp() {
	r.ExecutiveSummary.Confidence = ClampConfidence(r.ExecutiveSummary.Confidence)
	r.StrategicNarrative.Confidence = ClampConfidence(r.StrategicNarrative.Confidence)
	r.TalkingPoints.Confidence = ClampConfidence(r.TalkingPoints.Confidence)
	r.QuestionsToAsk.Confidence = ClampConfidence(r.QuestionsToAsk.Confidence)
	r.DecisionMakers.Confidence = ClampConfidence(r.DecisionMakers.Confidence)
	r.CompanyIntelligence.Confidence = ClampConfidence(r.CompanyIntelligence.Confidence)
	r.OverallConfidence = ClampConfidence(r.OverallConfidence)
	for i := range r.StrategicNarrative.ProofOfAchievement {
		r.StrategicNarrative.ProofOfAchievement[i].RelevanceScore =
			ClampConfidence(r.StrategicNarrative.ProofOfAchievement[i].RelevanceScore)
	}
}

// Validate checks that a decoded report actually carries the six-section
// shape. JSON decoding leaves absent fields at their zero value, so an
// arbitrary object decodes without error; this is where malformed agent
// output gets rejected.
func (r *PrepReport) Validate() error {
	if r.ExecutiveSummary.TheClient == "" || r.ExecutiveSummary.OurAngle == "" || r.ExecutiveSummary.CallGoal == "" {
		return eris.New("report: executive_summary is incomplete")
	}
	if r.StrategicNarrative.DreamOutcome == "" {
		return eris.New("report: strategic_narrative is incomplete")
	}
	if r.TalkingPoints.OpeningHook == "" {
		return eris.New("report: talking_points is incomplete")
	}
	if r.CompanyIntelligence.Industry == "" || r.CompanyIntelligence.CompanySize == "" {
		return eris.New("report: company_intelligence is incomplete")
	}
	for _, p := range r.StrategicNarrative.PainPoints {
		if p.Urgency < 1 || p.Urgency > 5 {
			return eris.Errorf("report: pain point urgency %d out of range", p.Urgency)
		}
		if p.Impact < 1 || p.Impact > 5 {
			return eris.Errorf("report: pain point impact %d out of range", p.Impact)
		}
	}
	return nil
}

// NewErrorReport builds a structurally valid report for a failed synthesis:
// every section present with placeholder text, every list empty, every
// confidence zero, and the failure description in research_limitations.
// Callers detect degraded output via overall_confidence == 0 rather than a
// separate nil-check path.
func NewErrorReport(meetingObjective, reason string) *PrepReport {
	return &PrepReport{
		ExecutiveSummary: ExecutiveSummary{
			TheClient: "Error generating report",
			OurAngle:  "Unable to synthesize",
			CallGoal:  meetingObjective,
		},
		StrategicNarrative: StrategicNarrative{
			DreamOutcome:       "Unable to generate",
			ProofOfAchievement: []PortfolioMatch{},
			PainPoints:         []PainPoint{},
		},
		TalkingPoints: TalkingPoints{
			OpeningHook:        "Error occurred",
			KeyPoints:          []string{},
			CompetitiveContext: "N/A",
		},
		QuestionsToAsk: QuestionsToAsk{
			Strategic:      []string{},
			Technical:      []string{},
			BusinessImpact: []string{},
			Qualification:  []string{},
		},
		DecisionMakers: DecisionMakers{},
		CompanyIntelligence: CompanyIntelligence{
			Industry:             "Unknown",
			CompanySize:          "Unknown",
			RecentNews:           []NewsItem{},
			StrategicInitiatives: []string{},
		},
		ResearchLimitations: []string{"Error generating report: " + reason},
		OverallConfidence:   0,
		Sources:             []string{},
	}
}
