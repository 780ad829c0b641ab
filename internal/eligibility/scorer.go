package eligibility

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/david/recovery-match/internal/models"
)

type ScoreResult struct {
	Score        int                      `json:"score"`
	Matched      int                      `json:"matched"`
	Evaluated    int                      `json:"evaluated"`
	PerCriterion []models.CriterionResult `json:"per_criterion"`
}

// Score evaluates every criterion for display and aggregates the automatic
// ones into a 0..100 percentage. With no automatic criteria the opportunity
// has no disqualifiers and scores 100.
func Score(criteria []models.Criterion, p models.ApplicantProfile) ScoreResult {
	out := ScoreResult{PerCriterion: make([]models.CriterionResult, 0, len(criteria))}

	for i, c := range criteria {
		r := Evaluate(c, p)
		r.Index = i
		out.PerCriterion = append(out.PerCriterion, r)

		if !r.Evaluated {
			continue
		}
		out.Evaluated++
		if r.Matched {
			out.Matched++
		}
	}

	out.Score = percentage(out.Matched, out.Evaluated)
	return out
}

func percentage(matched, evaluated int) int {
	if evaluated == 0 {
		return 100
	}
	return int(math.Round(100 * float64(matched) / float64(evaluated)))
}

// EvaluateMatch builds the initial match for a survivor and an opportunity.
func EvaluateMatch(opp models.FundingOpportunity, p models.ApplicantProfile, now time.Time) models.OpportunityMatch {
	res := Score(opp.Criteria, p)
	now = now.UTC()

	return models.OpportunityMatch{
		ID:            uuid.New(),
		OpportunityID: opp.ID,
		SurvivorID:    p.SurvivorID,
		Score:         res.Score,
		Details:       res.PerCriterion,
		Status:        models.StatusPending,
		History:       []models.StatusChange{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RescoreMatch re-evaluates an existing match after the profile or the
// criteria changed. Status, notes, award fields and history are kept.
func RescoreMatch(opp models.FundingOpportunity, p models.ApplicantProfile, existing models.OpportunityMatch, now time.Time) models.OpportunityMatch {
	res := Score(opp.Criteria, p)

	m := existing.Clone()
	m.Score = res.Score
	m.Details = res.PerCriterion
	m.UpdatedAt = now.UTC()
	return m
}
