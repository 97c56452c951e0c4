package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// PrepRequest is the input for generating a sales prep report.
type PrepRequest struct {
	CompanyName        string `json:"company_name"`
	MeetingObjective   string `json:"meeting_objective"`
	ContactPersonName  string `json:"contact_person_name,omitempty"`
	ContactLinkedInURL string `json:"contact_linkedin_url,omitempty"`
	MeetingDate        string `json:"meeting_date,omitempty"`
}

// MeetingPrep is a persisted prep report with its request context. Preps
// are owned by a single user; the company cache underneath them is not.
type MeetingPrep struct {
	ID                 string      `json:"id"`
	UserID             string      `json:"user_id"`
	CompanyName        string      `json:"company_name"`
	CompanyIdentity    string      `json:"company_name_normalized"`
	MeetingObjective   string      `json:"meeting_objective"`
	MeetingDate        string      `json:"meeting_date,omitempty"`
	ContactPersonName  string      `json:"contact_person_name,omitempty"`
	ContactLinkedInURL string      `json:"contact_linkedin_url,omitempty"`
	PrepData           *PrepReport `json:"prep_data"`
	OverallConfidence  float64     `json:"overall_confidence"`
	CacheHit           bool        `json:"cache_hit"`
	CreatedAt          time.Time   `json:"created_at"`
}

// Meeting outcome enumerations. Stored as text; validated at the boundary.
const (
	MeetingStatusCompleted   = "completed"
	MeetingStatusCancelled   = "cancelled"
	MeetingStatusRescheduled = "rescheduled"

	OutcomeSuccessful       = "successful"
	OutcomeNeedsImprovement = "needs_improvement"
	OutcomeLostOpportunity  = "lost_opportunity"
)

// MeetingOutcome is post-meeting feedback attached to a prep by its owner.
// It is written after the fact and never touched by the prep pipeline.
type MeetingOutcome struct {
	ID                string    `json:"id"`
	PrepID            string    `json:"prep_id"`
	MeetingStatus     string    `json:"meeting_status"`
	Outcome           string    `json:"outcome,omitempty"`
	PrepAccuracy      int       `json:"prep_accuracy,omitempty"`
	MostUsefulSection string    `json:"most_useful_section,omitempty"`
	WhatWasMissing    string    `json:"what_was_missing,omitempty"`
	GeneralNotes      string    `json:"general_notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Validate checks the enumerated fields and rating range.
func (o *MeetingOutcome) Validate() error {
	switch o.MeetingStatus {
	case MeetingStatusCompleted, MeetingStatusCancelled, MeetingStatusRescheduled:
	default:
		return eris.Errorf("invalid meeting_status %q", o.MeetingStatus)
	}
	switch o.Outcome {
	case "", OutcomeSuccessful, OutcomeNeedsImprovement, OutcomeLostOpportunity:
	default:
		return eris.Errorf("invalid outcome %q", o.Outcome)
	}
	if o.PrepAccuracy != 0 && (o.PrepAccuracy < 1 || o.PrepAccuracy > 5) {
		return eris.Errorf("prep_accuracy %d out of range", o.PrepAccuracy)
	}
	return nil
}

// UserProfile is the seller's own context fed to the synthesizer.
type UserProfile struct {
	CompanyName        string          `json:"company_name"`
	CompanyDescription string          `json:"company_description"`
	IndustriesServed   []string        `json:"industries_served"`
	Portfolio          []PortfolioItem `json:"portfolio"`
}

// PortfolioItem is one past project in the user's portfolio.
type PortfolioItem struct {
	Name           string `json:"name"`
	ClientIndustry string `json:"client_industry"`
	Description    string `json:"description"`
	KeyOutcomes    string `json:"key_outcomes"`
}
