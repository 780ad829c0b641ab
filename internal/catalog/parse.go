package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var amountRegex = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParseAmount reads a funding amount written for humans, such as
// "$5,000 - $25,000" or "up to 7,500 CAD". A single figure is a maximum
// unless the text says "minimum" or "at least". The currency falls back to
// defaultCurrency when the text names none.
func ParseAmount(text, defaultCurrency string) (min, max float64, currency string, err error) {
	lower := strings.ToLower(text)

	currency = strings.ToUpper(strings.TrimSpace(defaultCurrency))
	switch {
	case strings.Contains(lower, "cad") || strings.Contains(lower, "c$"):
		currency = "CAD"
	case strings.Contains(lower, "£") || strings.Contains(lower, "gbp"):
		currency = "GBP"
	case strings.Contains(lower, "€") || strings.Contains(lower, "eur"):
		currency = "EUR"
	case strings.Contains(lower, "$") || strings.Contains(lower, "usd"):
		currency = "USD"
	}

	var amounts []float64
	for _, m := range amountRegex.FindAllString(text, -1) {
		v, perr := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
		if perr == nil {
			amounts = append(amounts, v)
		}
	}

	switch len(amounts) {
	case 0:
		return 0, 0, currency, fmt.Errorf("%w: no amount in %q", ErrInvalidOpportunity, text)
	case 1:
		if strings.Contains(lower, "minimum") || strings.Contains(lower, "at least") {
			return amounts[0], 0, currency, nil
		}
		return 0, amounts[0], currency, nil
	}

	min, max = amounts[0], amounts[0]
	for _, a := range amounts[1:] {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	return min, max, currency, nil
}

var deadlineFormats = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"01/02/2006",
}

// ParseDeadline reads a deadline date. Dates without a time of day cover the
// whole day, so the result is the last second of that day in UTC.
func ParseDeadline(text string) (time.Time, error) {
	text = strings.Join(strings.Fields(text), " ")
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range deadlineFormats {
		if t, err := time.Parse(layout, text); err == nil {
			return endOfDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized deadline %q", ErrInvalidOpportunity, text)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
