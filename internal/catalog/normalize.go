package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/recovery-match/internal/models"
)

const summaryMaxLen = 280

var ErrInvalidOpportunity = errors.New("invalid opportunity")

var descriptionPolicy = bluemonday.UGCPolicy()

// TruncateText cuts a string to max length, appending ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return strings.TrimSpace(string(runes[:maxLen-3])) + "..."
	}
	return string(runes[:maxLen])
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanText(html)
	}
	return cleanText(doc.Text())
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize cleans an opportunity in place before it is stored: the
// description is sanitized, a summary is derived when missing, and the
// criteria are validated.
func Normalize(o *models.FundingOpportunity) error {
	o.Title = cleanText(o.Title)
	if o.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidOpportunity)
	}
	o.AgencyName = cleanText(o.AgencyName)
	o.FunderType = strings.ToLower(cleanText(o.FunderType))
	o.ExternalURL = strings.TrimSpace(o.ExternalURL)
	o.Description = descriptionPolicy.Sanitize(o.Description)

	o.Summary = cleanText(o.Summary)
	if o.Summary == "" && o.Description != "" {
		o.Summary = HTMLToText(o.Description)
	}
	o.Summary = TruncateText(o.Summary, summaryMaxLen)

	o.Currency = strings.ToUpper(strings.TrimSpace(o.Currency))
	if o.Currency == "" {
		o.Currency = "USD"
	}
	if o.Status == "" {
		o.Status = models.OpportunityOpen
	}
	switch o.Status {
	case models.OpportunityOpen, models.OpportunityClosed, models.OpportunityArchived:
	default:
		return fmt.Errorf("%w: unknown opportunity status %q", ErrInvalidOpportunity, o.Status)
	}
	if o.AmountMin > 0 && o.AmountMax > 0 && o.AmountMin > o.AmountMax {
		o.AmountMin, o.AmountMax = o.AmountMax, o.AmountMin
	}
	if o.Criteria == nil {
		o.Criteria = []models.Criterion{}
	}

	return models.ValidateCriteria(o.Criteria)
}
