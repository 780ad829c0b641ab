package eligibility

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/david/recovery-match/internal/models"
)

func incomeAndHousehold() models.FundingOpportunity {
	return models.FundingOpportunity{
		ID:    uuid.New(),
		Title: "Home Repair Assistance",
		Criteria: []models.Criterion{
			models.IncomeCriterion(models.Between(models.Float(0), models.Float(50000))),
			models.HouseholdCriterion(models.Between(models.Float(2), models.Float(6))),
		},
	}
}

func TestScore_AllMatched(t *testing.T) {
	opp := incomeAndHousehold()
	res := Score(opp.Criteria, models.ApplicantProfile{AnnualIncome: models.Float(40000), HouseholdSize: 4})

	if res.Score != 100 {
		t.Fatalf("expected score 100, got %d", res.Score)
	}
	for _, r := range res.PerCriterion {
		if !r.Matched {
			t.Fatalf("expected criterion %d (%s) to match", r.Index, r.Type)
		}
	}
}

func TestScore_HalfMatched(t *testing.T) {
	opp := incomeAndHousehold()
	res := Score(opp.Criteria, models.ApplicantProfile{AnnualIncome: models.Float(60000), HouseholdSize: 4})

	if res.Score != 50 {
		t.Fatalf("expected score 50, got %d", res.Score)
	}
	if res.Matched != 1 || res.Evaluated != 2 {
		t.Fatalf("expected 1/2 matched, got %d/%d", res.Matched, res.Evaluated)
	}
}

func TestScore_OnlyCustomIs100(t *testing.T) {
	criteria := []models.Criterion{
		models.CustomRule("Homeowner", "", ""),
		models.CustomRule("Insurance denied", "", ""),
	}
	res := Score(criteria, models.ApplicantProfile{})

	if res.Score != 100 {
		t.Fatalf("expected score 100, got %d", res.Score)
	}
	if res.Evaluated != 0 {
		t.Fatalf("expected 0 evaluated, got %d", res.Evaluated)
	}
	if len(res.PerCriterion) != 2 {
		t.Fatalf("expected custom criteria kept for display, got %d", len(res.PerCriterion))
	}
}

func TestScore_NoCriteriaIs100(t *testing.T) {
	if got := Score(nil, models.ApplicantProfile{}).Score; got != 100 {
		t.Fatalf("expected score 100, got %d", got)
	}
}

func TestScore_CustomExcludedFromAggregation(t *testing.T) {
	criteria := []models.Criterion{
		models.CustomRule("Homeowner", "", ""),
		models.ZipCodeCriterion(models.ZipRange{Min: "70001", Max: "70199"}),
	}
	res := Score(criteria, models.ApplicantProfile{ZipCode: "70005"})
	if res.Score != 100 {
		t.Fatalf("expected score 100, got %d", res.Score)
	}
	if res.PerCriterion[0].Index != 0 || res.PerCriterion[1].Index != 1 {
		t.Fatal("expected per-criterion results in declaration order")
	}
}

func TestScore_Rounding(t *testing.T) {
	criteria := []models.Criterion{
		models.ZipCodeCriterion(models.ZipRange{Min: "70001", Max: "70199"}),
		models.HouseholdCriterion(models.Between(models.Float(2), nil)),
		models.DisasterCriterion("Hurricane Ida"),
	}

	if got := Score(criteria, models.ApplicantProfile{ZipCode: "70005"}).Score; got != 33 {
		t.Fatalf("expected 1/3 to round to 33, got %d", got)
	}
	if got := Score(criteria, models.ApplicantProfile{ZipCode: "70005", HouseholdSize: 3}).Score; got != 67 {
		t.Fatalf("expected 2/3 to round to 67, got %d", got)
	}
}

func TestEvaluateMatch_StartsPending(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opp := incomeAndHousehold()
	profile := models.ApplicantProfile{SurvivorID: uuid.New(), AnnualIncome: models.Float(40000), HouseholdSize: 4}

	m := EvaluateMatch(opp, profile, now)
	if m.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", m.Status)
	}
	if m.OpportunityID != opp.ID || m.SurvivorID != profile.SurvivorID {
		t.Fatal("expected match keyed by opportunity and survivor")
	}
	if m.Score != 100 || len(m.Details) != 2 {
		t.Fatalf("expected score 100 with 2 details, got %d with %d", m.Score, len(m.Details))
	}
	if !m.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %s, got %s", now, m.CreatedAt)
	}
}

func TestRescoreMatch_RoundTripIsStable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opp := incomeAndHousehold()
	opp.Criteria = append(opp.Criteria, models.CustomRule("Homeowner", "", ""))
	profile := models.ApplicantProfile{SurvivorID: uuid.New(), AnnualIncome: models.Float(60000), HouseholdSize: 4}

	original := EvaluateMatch(opp, profile, now)
	rescored := RescoreMatch(opp, profile, original, now.Add(time.Hour))

	if rescored.Score != original.Score {
		t.Fatalf("expected score %d, got %d", original.Score, rescored.Score)
	}
	if len(rescored.Details) != len(original.Details) {
		t.Fatalf("expected %d details, got %d", len(original.Details), len(rescored.Details))
	}
	for i := range original.Details {
		if rescored.Details[i] != original.Details[i] {
			t.Fatalf("detail %d changed: %+v vs %+v", i, original.Details[i], rescored.Details[i])
		}
	}
}

func TestRescoreMatch_PreservesWorkflowState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opp := incomeAndHousehold()
	profile := models.ApplicantProfile{SurvivorID: uuid.New(), AnnualIncome: models.Float(40000), HouseholdSize: 4}

	existing := EvaluateMatch(opp, profile, now)
	amount := 5000.0
	awardedAt := now.Add(time.Hour)
	existing.Status = models.StatusAwarded
	existing.Notes = "called on 3/2"
	existing.AwardAmount = &amount
	existing.AwardedAt = &awardedAt
	existing.History = []models.StatusChange{{From: models.StatusApplied, To: models.StatusAwarded, Event: "award", At: awardedAt}}

	profile.AnnualIncome = models.Float(90000)
	rescored := RescoreMatch(opp, profile, existing, now.Add(2*time.Hour))

	if rescored.Score != 50 {
		t.Fatalf("expected new score 50, got %d", rescored.Score)
	}
	if rescored.Status != models.StatusAwarded || rescored.Notes != existing.Notes {
		t.Fatal("expected status and notes preserved")
	}
	if rescored.AwardAmount == nil || *rescored.AwardAmount != 5000 {
		t.Fatal("expected award amount preserved")
	}
	if len(rescored.History) != 1 {
		t.Fatalf("expected history preserved, got %d entries", len(rescored.History))
	}
	if rescored.ID != existing.ID || !rescored.CreatedAt.Equal(existing.CreatedAt) {
		t.Fatal("expected identity preserved")
	}
}
