package eligibility

import (
	"strings"
	"testing"

	"github.com/david/recovery-match/internal/models"
)

func TestEvaluate_ZipRangeBoundsInclusive(t *testing.T) {
	c := models.ZipCodeCriterion(models.ZipRange{Min: "70001", Max: "70199"})

	for _, zip := range []string{"70001", "70199", "70115"} {
		res := Evaluate(c, models.ApplicantProfile{ZipCode: zip})
		if !res.Matched {
			t.Fatalf("expected %s to match, got detail %q", zip, res.Detail)
		}
		if res.MatchedRange != "70001-70199" {
			t.Fatalf("expected matched range 70001-70199, got %q", res.MatchedRange)
		}
	}

	res := Evaluate(c, models.ApplicantProfile{ZipCode: "70200"})
	if res.Matched {
		t.Fatal("expected 70200 to fall outside the range")
	}
	if res.Detail != DetailOutOfRange {
		t.Fatalf("expected detail %q, got %q", DetailOutOfRange, res.Detail)
	}
}

func TestEvaluate_ZipRangesAreORCombined(t *testing.T) {
	c := models.ZipCodeCriterion(
		models.ZipRange{Min: "10001", Max: "10099"},
		models.ZipRange{Min: "70001", Max: "70199"},
	)

	res := Evaluate(c, models.ApplicantProfile{ZipCode: "70112"})
	if !res.Matched {
		t.Fatal("expected second range to match")
	}
	if res.MatchedRange != "70001-70199" {
		t.Fatalf("expected second range reported, got %q", res.MatchedRange)
	}
}

func TestEvaluate_ZipNumericCompareUsesLeadingDigits(t *testing.T) {
	c := models.ZipCodeCriterion(models.ZipRange{Min: "70000", Max: "70999"})

	if res := Evaluate(c, models.ApplicantProfile{ZipCode: "70115-1234"}); !res.Matched {
		t.Fatal("expected ZIP+4 to match by its five-digit prefix")
	}
	// Lexicographically "7011" sorts between the bounds; numerically it does not.
	if res := Evaluate(c, models.ApplicantProfile{ZipCode: "7011"}); res.Matched {
		t.Fatal("expected short numeric zip to be compared numerically")
	}
}

func TestEvaluate_ZipAlphanumericLexicographic(t *testing.T) {
	c := models.ZipCodeCriterion(models.ZipRange{Min: "K1A 0A0", Max: "K1A 0Z9"})

	if res := Evaluate(c, models.ApplicantProfile{ZipCode: "k1a 0b1"}); !res.Matched {
		t.Fatalf("expected canadian postal code to match, got %q", res.Detail)
	}
	if res := Evaluate(c, models.ApplicantProfile{ZipCode: "M5V 2T6"}); res.Matched {
		t.Fatal("expected M5V postal code to fall outside the range")
	}
}

func TestEvaluate_ZipUnknown(t *testing.T) {
	c := models.ZipCodeCriterion(models.ZipRange{Min: "70001", Max: "70199"})
	res := Evaluate(c, models.ApplicantProfile{})
	if res.Matched || res.Detail != DetailZipUnknown {
		t.Fatalf("expected unmatched with %q, got matched=%v detail=%q", DetailZipUnknown, res.Matched, res.Detail)
	}
}

func TestEvaluate_MalformedRangeMatchesNothingWithWarning(t *testing.T) {
	zip := Evaluate(models.ZipCodeCriterion(models.ZipRange{Min: "70199", Max: "70001"}), models.ApplicantProfile{ZipCode: "70100"})
	if zip.Matched {
		t.Fatal("expected inverted zip range to match nothing")
	}
	if !strings.Contains(zip.Warning, "greater than") {
		t.Fatalf("expected warning for inverted zip range, got %q", zip.Warning)
	}

	income := 100.0
	inc := Evaluate(models.IncomeCriterion(models.Between(models.Float(500), models.Float(10))), models.ApplicantProfile{AnnualIncome: &income})
	if inc.Matched {
		t.Fatal("expected inverted income range to match nothing")
	}
	if inc.Warning == "" {
		t.Fatal("expected warning for inverted income range")
	}
	if !inc.Evaluated {
		t.Fatal("malformed automatic criterion still counts as evaluated")
	}
}

func TestEvaluate_MalformedRangeDoesNotHideValidOne(t *testing.T) {
	income := 30000.0
	c := models.IncomeCriterion(
		models.Between(models.Float(90000), models.Float(10)),
		models.Between(models.Float(0), models.Float(50000)),
	)
	res := Evaluate(c, models.ApplicantProfile{AnnualIncome: &income})
	if !res.Matched {
		t.Fatal("expected valid second range to match")
	}
	if res.Warning == "" {
		t.Fatal("expected warning for the inverted first range")
	}
}

func TestEvaluate_IncomeRange(t *testing.T) {
	c := models.IncomeCriterion(models.Between(models.Float(0), models.Float(50000)))

	tests := []struct {
		name    string
		income  *float64
		matched bool
		detail  string
	}{
		{name: "inside", income: models.Float(40000), matched: true},
		{name: "upper bound", income: models.Float(50000), matched: true},
		{name: "lower bound", income: models.Float(0), matched: true},
		{name: "above", income: models.Float(60000), matched: false, detail: DetailOutOfRange},
		{name: "unknown", income: nil, matched: false, detail: DetailIncomeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(c, models.ApplicantProfile{AnnualIncome: tt.income})
			if res.Matched != tt.matched {
				t.Fatalf("expected matched=%v, got %v", tt.matched, res.Matched)
			}
			if res.Detail != tt.detail {
				t.Fatalf("expected detail %q, got %q", tt.detail, res.Detail)
			}
		})
	}
}

func TestEvaluate_OpenRangeExcludesNoProfile(t *testing.T) {
	c := models.IncomeCriterion(models.Between(nil, nil))

	profiles := []models.ApplicantProfile{
		{},
		{AnnualIncome: models.Float(0)},
		{AnnualIncome: models.Float(1_000_000)},
	}
	for i, p := range profiles {
		if res := Evaluate(c, p); !res.Matched {
			t.Fatalf("profile %d: expected open range to match, got %q", i, res.Detail)
		}
		if got := Score([]models.Criterion{c}, p).Score; got != 100 {
			t.Fatalf("profile %d: expected score 100, got %d", i, got)
		}
	}

	household := models.HouseholdCriterion(models.Between(nil, nil))
	if res := Evaluate(household, models.ApplicantProfile{}); !res.Matched {
		t.Fatalf("expected open household range to match an unknown size, got %q", res.Detail)
	}
}

func TestEvaluate_HalfOpenRanges(t *testing.T) {
	minOnly := models.HouseholdCriterion(models.Between(models.Float(3), nil))
	maxOnly := models.HouseholdCriterion(models.Between(nil, models.Float(2)))

	if !Evaluate(minOnly, models.ApplicantProfile{HouseholdSize: 7}).Matched {
		t.Fatal("expected household of 7 to satisfy >= 3")
	}
	if Evaluate(minOnly, models.ApplicantProfile{HouseholdSize: 2}).Matched {
		t.Fatal("expected household of 2 to fail >= 3")
	}
	res := Evaluate(maxOnly, models.ApplicantProfile{HouseholdSize: 1})
	if !res.Matched || res.MatchedRange != "<= 2" {
		t.Fatalf("expected match on <= 2, got matched=%v range=%q", res.Matched, res.MatchedRange)
	}
}

func TestEvaluate_HouseholdUnknown(t *testing.T) {
	c := models.HouseholdCriterion(models.Between(models.Float(2), models.Float(6)))
	res := Evaluate(c, models.ApplicantProfile{HouseholdSize: 0})
	if res.Matched || res.Detail != DetailHouseholdUnknown {
		t.Fatalf("expected %q, got matched=%v detail=%q", DetailHouseholdUnknown, res.Matched, res.Detail)
	}
}

func TestEvaluate_DisasterEventIntersection(t *testing.T) {
	c := models.DisasterCriterion("Hurricane Ida", "2021 Winter Storm")

	res := Evaluate(c, models.ApplicantProfile{DisasterEvents: []string{"hurricane  ida", "Flood"}})
	if !res.Matched {
		t.Fatal("expected case-insensitive overlap to match")
	}
	if res.MatchedRange != "Hurricane Ida" {
		t.Fatalf("expected overlap Hurricane Ida, got %q", res.MatchedRange)
	}

	res = Evaluate(c, models.ApplicantProfile{DisasterEvents: []string{"Wildfire"}})
	if res.Matched || res.Detail != DetailNoOverlap {
		t.Fatalf("expected no overlap, got matched=%v detail=%q", res.Matched, res.Detail)
	}

	res = Evaluate(c, models.ApplicantProfile{})
	if res.Matched || res.Detail != DetailNoEvents {
		t.Fatalf("expected %q, got %q", DetailNoEvents, res.Detail)
	}
}

func TestEvaluate_CustomNeedsManualReview(t *testing.T) {
	c := models.CustomRule("Homeowner", "Must own the damaged property", "yes")
	res := Evaluate(c, models.ApplicantProfile{Custom: map[string]string{"Homeowner": "yes"}})

	if res.Matched {
		t.Fatal("custom criteria are never auto-satisfied")
	}
	if res.Evaluated {
		t.Fatal("custom criteria must be excluded from aggregation")
	}
	if res.Detail != DetailManualReview {
		t.Fatalf("expected %q, got %q", DetailManualReview, res.Detail)
	}
	if res.Name != "Homeowner" {
		t.Fatalf("expected name Homeowner, got %q", res.Name)
	}
}

func TestEvaluate_EmptyCriterionWarns(t *testing.T) {
	for _, c := range []models.Criterion{
		{Type: models.CriterionZipCodeRange},
		{Type: models.CriterionIncomeRange},
		{Type: models.CriterionDisasterEvent},
		{Type: models.CriterionHouseholdSize},
		{Type: "age"},
	} {
		res := Evaluate(c, models.ApplicantProfile{ZipCode: "70001", HouseholdSize: 3})
		if res.Matched {
			t.Fatalf("%s: expected no match", c.Type)
		}
		if res.Warning == "" {
			t.Fatalf("%s: expected a warning", c.Type)
		}
	}
}
