package models

import (
	"time"

	"github.com/google/uuid"
)

// Opportunity listing states. These describe the funding program itself,
// not a survivor's application to it.
const (
	OpportunityOpen     = "open"
	OpportunityClosed   = "closed"
	OpportunityArchived = "archived"
)

type FundingOpportunity struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Summary     string      `json:"summary"`
	Description string      `json:"description"` // Sanitized HTML
	ExternalURL string      `json:"external_url"`
	AgencyName  string      `json:"agency_name"`
	FunderType  string      `json:"funder_type"`
	AmountMin   float64     `json:"amount_min"`
	AmountMax   float64     `json:"amount_max"`
	Currency    string      `json:"currency"`
	DeadlineAt  *time.Time  `json:"deadline_at"`
	IsRolling   bool        `json:"is_rolling"`
	Status      string      `json:"status"`
	Criteria    []Criterion `json:"criteria"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ApplicantProfile is the snapshot of a survivor used for matching.
type ApplicantProfile struct {
	SurvivorID     uuid.UUID         `json:"survivor_id"`
	ZipCode        string            `json:"zip_code"`
	AnnualIncome   *float64          `json:"annual_income"`
	HouseholdSize  int               `json:"household_size"`
	DisasterEvents []string          `json:"disaster_events"`
	Custom         map[string]string `json:"custom"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
