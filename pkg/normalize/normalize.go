// Package normalize maps prices and dates from both sides of a reconciliation onto one comparable form.
// Fresh snapshots carry floats and time values, persisted records carry whatever the store returned;
// both go through the same functions before any comparison.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shelf-sync/pkg/models"
)

const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-01-2006",
}

// Price renders a price as a base-10 decimal with two fractional digits. Absent prices render as "".
func Price(v *float64) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}

// Round rounds a derived price to cents, half away from zero.
func Round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func RoundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round(*v)
	return &r
}

// ParsePrice reads a stored or scraped price string. Comma decimals and a euro sign are accepted.
func ParsePrice(s string) (*float64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "€"))
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", s, err)
	}
	f, _ := d.Float64()
	return &f, nil
}

// Date renders a calendar date as ISO-8601 without a time component.
func Date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// DateString normalizes a stored date value. Timestamps are cut to their calendar date; values that do
// not parse are returned trimmed so that they still compare equal to themselves.
func DateString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := ParseDate(s); err == nil {
		return t.Format(DateLayout)
	}
	return s
}

func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: unknown layout", s)
}

// Key is the comparison tuple of one product: the five fields reconciliation looks at.
type Key struct {
	CurrentPrice string
	RegularPrice string
	ValidFrom    string
	ValidTo      string
	Available    bool
}

// SnapshotKey derives the key of a fresh snapshot. Snapshots are always available.
func SnapshotKey(s *models.ProductSnapshot) Key {
	current := s.CurrentPrice
	return Key{
		CurrentPrice: Price(&current),
		RegularPrice: Price(s.RegularPrice),
		ValidFrom:    Date(s.ValidFrom),
		ValidTo:      Date(s.ValidTo),
		Available:    true,
	}
}

// RecordKey derives the key of a persisted record. A missing availability flag is not available.
func RecordKey(r *models.CatalogRecord) Key {
	return Key{
		CurrentPrice: Price(r.CurrentPrice),
		RegularPrice: Price(r.RegularPrice),
		ValidFrom:    DateString(r.ValidFrom),
		ValidTo:      DateString(r.ValidTo),
		Available:    r.IsAvailable(),
	}
}
