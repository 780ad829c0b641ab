// Package catalog loads and normalizes funding opportunities, including the
// embedded seed catalog used to bootstrap a fresh database.
package catalog

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/david/recovery-match/internal/models"
)

//go:embed seed/opportunities.yaml
var seedFS embed.FS

type Seed struct {
	Opportunities []SeedOpportunity `yaml:"opportunities"`
}

type SeedOpportunity struct {
	Title       string             `yaml:"title"`
	Summary     string             `yaml:"summary,omitempty"`
	Description string             `yaml:"description,omitempty"`
	ExternalURL string             `yaml:"external_url,omitempty"`
	AgencyName  string             `yaml:"agency_name"`
	FunderType  string             `yaml:"funder_type,omitempty"`
	AmountMin   float64            `yaml:"amount_min,omitempty"`
	AmountMax   float64            `yaml:"amount_max,omitempty"`
	Amount      string             `yaml:"amount,omitempty"` // free text, used when amount_min/max are unset
	Currency    string             `yaml:"currency,omitempty"`
	Deadline    string             `yaml:"deadline,omitempty"`
	IsRolling   bool               `yaml:"is_rolling,omitempty"`
	Status      string             `yaml:"status,omitempty"`
	Criteria    []models.Criterion `yaml:"criteria,omitempty"`
}

// LoadSeed decodes the embedded catalog.
func LoadSeed() ([]models.FundingOpportunity, error) {
	data, err := seedFS.ReadFile("seed/opportunities.yaml")
	if err != nil {
		return nil, err
	}
	return ParseSeed(data)
}

// LoadSeedFile decodes a catalog from disk. Environment variables in the
// file (e.g. ${PORTAL_URL}) are expanded first.
func LoadSeedFile(path string) ([]models.FundingOpportunity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeed([]byte(os.ExpandEnv(string(data))))
}

// ParseSeed decodes and normalizes a YAML catalog. The first invalid entry
// aborts the whole load.
func ParseSeed(data []byte) ([]models.FundingOpportunity, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed catalog: %w", err)
	}

	out := make([]models.FundingOpportunity, 0, len(seed.Opportunities))
	for i, s := range seed.Opportunities {
		o, err := s.toModel()
		if err != nil {
			return nil, fmt.Errorf("seed entry %d (%q): %w", i, s.Title, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func (s SeedOpportunity) toModel() (models.FundingOpportunity, error) {
	o := models.FundingOpportunity{
		Title:       s.Title,
		Summary:     s.Summary,
		Description: s.Description,
		ExternalURL: s.ExternalURL,
		AgencyName:  s.AgencyName,
		FunderType:  s.FunderType,
		AmountMin:   s.AmountMin,
		AmountMax:   s.AmountMax,
		Currency:    s.Currency,
		IsRolling:   s.IsRolling,
		Status:      s.Status,
		Criteria:    s.Criteria,
	}

	if d := strings.TrimSpace(s.Deadline); d != "" {
		t, err := ParseDeadline(d)
		if err != nil {
			return o, err
		}
		o.DeadlineAt = &t
	}

	if a := strings.TrimSpace(s.Amount); a != "" && s.AmountMin == 0 && s.AmountMax == 0 {
		min, max, currency, err := ParseAmount(a, s.Currency)
		if err != nil {
			return o, err
		}
		o.AmountMin, o.AmountMax, o.Currency = min, max, currency
	}

	if err := Normalize(&o); err != nil {
		return o, err
	}
	return o, nil
}
