package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusNotified Status = "notified"
	StatusApplied  Status = "applied"
	StatusAwarded  Status = "awarded"
	StatusFunded   Status = "funded"
	StatusRejected Status = "rejected"
	StatusArchived Status = "archived"

	// statusApprovedLegacy is still present in older rows.
	statusApprovedLegacy = "approved"
)

// ParseStatus reads a persisted or user-supplied status, mapping the legacy
// "approved" value to awarded.
func ParseStatus(raw string) (Status, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == statusApprovedLegacy {
		return StatusAwarded, nil
	}
	switch Status(s) {
	case StatusPending, StatusNotified, StatusApplied, StatusAwarded, StatusFunded, StatusRejected, StatusArchived:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown match status %q", raw)
}

// IsTerminal reports whether no further transition may leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusFunded || s == StatusRejected || s == StatusArchived
}

// CriterionResult is the outcome of evaluating one criterion for one profile.
type CriterionResult struct {
	Index        int           `json:"index"`
	Type         CriterionType `json:"type"`
	Name         string        `json:"name"`
	Matched      bool          `json:"matched"`
	Evaluated    bool          `json:"evaluated"` // false for criteria that need manual review
	MatchedRange string        `json:"matched_range,omitempty"`
	Detail       string        `json:"detail,omitempty"`
	Warning      string        `json:"warning,omitempty"`
}

type StatusChange struct {
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Event   string    `json:"event"`
	ActorID uuid.UUID `json:"actor_id"`
	At      time.Time `json:"at"`
}

// OpportunityMatch is the persisted relationship between one survivor and one
// funding opportunity. There is at most one per (OpportunityID, SurvivorID).
type OpportunityMatch struct {
	ID            uuid.UUID         `json:"id"`
	OpportunityID uuid.UUID         `json:"opportunity_id"`
	SurvivorID    uuid.UUID         `json:"survivor_id"`
	Score         int               `json:"match_score"`
	Details       []CriterionResult `json:"criteria_details"`
	Status        Status            `json:"status"`
	Notes         string            `json:"notes"`
	AwardAmount   *float64          `json:"award_amount"`
	AppliedAt     *time.Time        `json:"applied_at"`
	AppliedByID   *uuid.UUID        `json:"applied_by_id"`
	AwardedAt     *time.Time        `json:"awarded_at"`
	AwardedByID   *uuid.UUID        `json:"awarded_by_id"`
	FundedAt      *time.Time        `json:"funded_at"`
	FundedByID    *uuid.UUID        `json:"funded_by_id"`
	ArchivedFrom  Status            `json:"archived_from,omitempty"`
	History       []StatusChange    `json:"status_history"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Clone returns a copy that shares no slices or pointers with m.
func (m OpportunityMatch) Clone() OpportunityMatch {
	out := m
	out.Details = append([]CriterionResult(nil), m.Details...)
	out.History = append([]StatusChange(nil), m.History...)
	out.AwardAmount = cloneFloat(m.AwardAmount)
	out.AppliedAt = cloneTime(m.AppliedAt)
	out.AwardedAt = cloneTime(m.AwardedAt)
	out.FundedAt = cloneTime(m.FundedAt)
	out.AppliedByID = cloneUUID(m.AppliedByID)
	out.AwardedByID = cloneUUID(m.AwardedByID)
	out.FundedByID = cloneUUID(m.FundedByID)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneUUID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
