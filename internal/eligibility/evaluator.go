// Package eligibility evaluates funding-opportunity criteria against survivor
// profiles. Everything here is pure and safe for concurrent use; malformed
// criteria degrade to "no match" with a warning instead of failing.
package eligibility

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/david/recovery-match/internal/models"
)

const (
	DetailManualReview     = "manual review required"
	DetailIncomeUnknown    = "income unknown"
	DetailHouseholdUnknown = "household size unknown"
	DetailZipUnknown       = "zip code unknown"
	DetailNoEvents         = "no disaster events on profile"
	DetailOutOfRange       = "outside all ranges"
	DetailNoOverlap        = "no matching disaster event"
)

// Evaluate tests one criterion against one profile. A fully open numeric
// range matches even when the profile's income or household size is unknown.
func Evaluate(c models.Criterion, p models.ApplicantProfile) models.CriterionResult {
	res := models.CriterionResult{
		Type:      c.Type,
		Name:      c.Label(),
		Evaluated: c.IsAutomatic(),
	}

	switch c.Type {
	case models.CriterionZipCodeRange:
		evaluateZip(&res, c.ZipRanges, p.ZipCode)
	case models.CriterionIncomeRange:
		evaluateRanges(&res, c.IncomeRanges, p.AnnualIncome, DetailIncomeUnknown)
	case models.CriterionHouseholdSize:
		var size *float64
		if p.HouseholdSize > 0 {
			size = models.Float(float64(p.HouseholdSize))
		}
		evaluateRanges(&res, c.HouseholdRanges, size, DetailHouseholdUnknown)
	case models.CriterionDisasterEvent:
		evaluateEvents(&res, c.Events, p.DisasterEvents)
	case models.CriterionCustom:
		res.Detail = DetailManualReview
	default:
		res.Warning = fmt.Sprintf("unknown criterion type %q", c.Type)
	}

	return res
}

func evaluateZip(res *models.CriterionResult, ranges []models.ZipRange, rawZip string) {
	if len(ranges) == 0 {
		res.Warning = "no zip code ranges configured"
		return
	}

	zip := normalizeZip(rawZip)
	var warnings []string
	for i, r := range ranges {
		min, max := normalizeZip(r.Min), normalizeZip(r.Max)
		in, malformed := zipInRange(zip, min, max)
		if malformed {
			warnings = append(warnings, fmt.Sprintf("range %d: min %s is greater than max %s", i+1, min, max))
			continue
		}
		if zip != "" && in && !res.Matched {
			res.Matched = true
			res.MatchedRange = min + "-" + max
		}
	}

	res.Warning = strings.Join(warnings, "; ")
	if res.Matched {
		return
	}
	if zip == "" {
		res.Detail = DetailZipUnknown
	} else {
		res.Detail = DetailOutOfRange
	}
}

// zipInRange compares numerically only when both bounds are all-digit and of
// equal length; otherwise it falls back to string order so alphanumeric
// postal codes still work.
func zipInRange(zip, min, max string) (in bool, malformed bool) {
	if lo, hi, ok := numericBounds(min, max); ok {
		if lo > hi {
			return false, true
		}
		if v, ok := leadingDigits(zip); ok {
			return v >= lo && v <= hi, false
		}
	}

	if min > max {
		return false, true
	}
	return zip >= min && zip <= max, false
}

func normalizeZip(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

func numericBounds(min, max string) (int, int, bool) {
	if len(min) == 0 || len(min) != len(max) || !allDigits(min) || !allDigits(max) {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(min)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(max)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// leadingDigits parses the digit prefix of a postal code, so ZIP+4 values
// like 70115-1234 compare by their first five digits.
func leadingDigits(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, false
	}
	return v, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func evaluateRanges(res *models.CriterionResult, ranges []models.NumericRange, value *float64, unknownDetail string) {
	if len(ranges) == 0 {
		res.Warning = "no ranges configured"
		return
	}

	var warnings []string
	for i, r := range ranges {
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			warnings = append(warnings, fmt.Sprintf("range %d: min %s is greater than max %s", i+1, formatAmount(*r.Min), formatAmount(*r.Max)))
			continue
		}
		if res.Matched {
			continue
		}
		// An open range places no constraint, so even an unknown value passes.
		if r.Min == nil && r.Max == nil {
			res.Matched = true
			res.MatchedRange = formatRange(r)
			continue
		}
		if value == nil {
			continue
		}
		if (r.Min == nil || *value >= *r.Min) && (r.Max == nil || *value <= *r.Max) {
			res.Matched = true
			res.MatchedRange = formatRange(r)
		}
	}

	res.Warning = strings.Join(warnings, "; ")
	if res.Matched {
		return
	}
	if value == nil {
		res.Detail = unknownDetail
	} else {
		res.Detail = DetailOutOfRange
	}
}

func evaluateEvents(res *models.CriterionResult, wanted []string, experienced []string) {
	if len(wanted) == 0 {
		res.Warning = "no disaster events configured"
		return
	}
	if len(experienced) == 0 {
		res.Detail = DetailNoEvents
		return
	}

	have := make(map[string]struct{}, len(experienced))
	for _, e := range experienced {
		if k := normalizeEvent(e); k != "" {
			have[k] = struct{}{}
		}
	}

	var overlap []string
	for _, e := range wanted {
		if _, ok := have[normalizeEvent(e)]; ok {
			overlap = append(overlap, strings.TrimSpace(e))
		}
	}

	if len(overlap) == 0 {
		res.Detail = DetailNoOverlap
		return
	}
	res.Matched = true
	res.MatchedRange = strings.Join(overlap, ", ")
}

func normalizeEvent(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func formatRange(r models.NumericRange) string {
	switch {
	case r.Min != nil && r.Max != nil:
		return formatAmount(*r.Min) + "-" + formatAmount(*r.Max)
	case r.Min != nil:
		return ">= " + formatAmount(*r.Min)
	case r.Max != nil:
		return "<= " + formatAmount(*r.Max)
	default:
		return "any"
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
