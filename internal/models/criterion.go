package models

import (
	"errors"
	"fmt"
	"strings"
)

type CriterionType string

const (
	CriterionZipCodeRange  CriterionType = "zip_code_range"
	CriterionIncomeRange   CriterionType = "income_range"
	CriterionDisasterEvent CriterionType = "disaster_event"
	CriterionHouseholdSize CriterionType = "household_size"
	CriterionCustom        CriterionType = "custom"
)

// ErrInvalidCriterion is returned by Criterion.Validate.
var ErrInvalidCriterion = errors.New("invalid criterion")

// ZipRange is an inclusive postal code range. Bounds are kept as strings
// because postal codes outside the US may be alphanumeric.
type ZipRange struct {
	Min string `json:"min" yaml:"min"`
	Max string `json:"max" yaml:"max"`
}

// NumericRange is an inclusive range where a nil bound is unbounded.
type NumericRange struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

type CustomCriterion struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Value       string `json:"value" yaml:"value"`
}

// Criterion is one eligibility rule of a funding opportunity. Only the
// fields belonging to Type may be set.
type Criterion struct {
	Type            CriterionType    `json:"type" yaml:"type"`
	ZipRanges       []ZipRange       `json:"zip_ranges,omitempty" yaml:"zip_ranges,omitempty"`
	IncomeRanges    []NumericRange   `json:"income_ranges,omitempty" yaml:"income_ranges,omitempty"`
	Events          []string         `json:"events,omitempty" yaml:"events,omitempty"`
	HouseholdRanges []NumericRange   `json:"household_ranges,omitempty" yaml:"household_ranges,omitempty"`
	Custom          *CustomCriterion `json:"custom,omitempty" yaml:"custom,omitempty"`
}

func ZipCodeCriterion(ranges ...ZipRange) Criterion {
	return Criterion{Type: CriterionZipCodeRange, ZipRanges: ranges}
}

func IncomeCriterion(ranges ...NumericRange) Criterion {
	return Criterion{Type: CriterionIncomeRange, IncomeRanges: ranges}
}

func DisasterCriterion(events ...string) Criterion {
	return Criterion{Type: CriterionDisasterEvent, Events: events}
}

func HouseholdCriterion(ranges ...NumericRange) Criterion {
	return Criterion{Type: CriterionHouseholdSize, HouseholdRanges: ranges}
}

func CustomRule(name, description, value string) Criterion {
	return Criterion{Type: CriterionCustom, Custom: &CustomCriterion{Name: name, Description: description, Value: value}}
}

// Between builds a NumericRange; pass nil for an open bound.
func Between(min, max *float64) NumericRange {
	return NumericRange{Min: min, Max: max}
}

func Float(v float64) *float64 {
	return &v
}

// IsAutomatic reports whether the criterion can be evaluated without a
// manual review.
func (c Criterion) IsAutomatic() bool {
	return c.Type != CriterionCustom
}

// Label is the short display name used in match details.
func (c Criterion) Label() string {
	if c.Type == CriterionCustom && c.Custom != nil && c.Custom.Name != "" {
		return c.Custom.Name
	}
	return strings.ReplaceAll(string(c.Type), "_", " ")
}

// Validate checks the shape of the criterion. It does not reject ranges with
// min > max; those are stored as entered and evaluate to no match.
func (c Criterion) Validate() error {
	var present []string
	if len(c.ZipRanges) > 0 {
		present = append(present, "zip_ranges")
	}
	if len(c.IncomeRanges) > 0 {
		present = append(present, "income_ranges")
	}
	if len(c.Events) > 0 {
		present = append(present, "events")
	}
	if len(c.HouseholdRanges) > 0 {
		present = append(present, "household_ranges")
	}
	if c.Custom != nil {
		present = append(present, "custom")
	}

	var own string
	switch c.Type {
	case CriterionZipCodeRange:
		own = "zip_ranges"
	case CriterionIncomeRange:
		own = "income_ranges"
	case CriterionDisasterEvent:
		own = "events"
	case CriterionHouseholdSize:
		own = "household_ranges"
	case CriterionCustom:
		own = "custom"
		if c.Custom == nil || strings.TrimSpace(c.Custom.Name) == "" {
			return fmt.Errorf("%w: custom criterion requires a name", ErrInvalidCriterion)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCriterion, c.Type)
	}

	for _, field := range present {
		if field != own {
			return fmt.Errorf("%w: %s not allowed on %s criterion", ErrInvalidCriterion, field, c.Type)
		}
	}
	return nil
}

// ValidateCriteria validates every criterion and reports the first failing index.
func ValidateCriteria(criteria []Criterion) error {
	for i, c := range criteria {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("criterion %d: %w", i, err)
		}
	}
	return nil
}
