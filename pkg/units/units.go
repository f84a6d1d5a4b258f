// Package units turns free-text package sizes such as "6 x 250 g" or "ca. 1 kilo" into a quantity in a
// canonical unit (kg, l or piece).
package units

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"shelf-sync/pkg/models"
)

var (
	perPrefixPattern    = regexp.MustCompile(`^\s*per\s+`)
	circaPattern        = regexp.MustCompile(`\bca\.?\s+`)
	portionPattern      = regexp.MustCompile(`\bpers(?:oon|onen)?\b`)
	multiplyPattern     = regexp.MustCompile(`^(\d+)\s*x\s*(\d+(?:\.\d+)?)\s*([a-z]+)`)
	plusPattern         = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*\+\s*(\d+(?:\.\d+)?)\s*([a-z]+)`)
	quantityUnitPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-zA-Z]+)`)
)

// Normalize parses raw into a quantity and unit. ok is false when no leading quantity can be found;
// callers store the product with unknown unit fields in that case.
func Normalize(raw string) (qty float64, unit models.UnitType, ok bool) {
	s := clean(raw)
	if s == "" {
		return 0, "", false
	}

	// "2-3 pers | 20 min" describes a meal for a number of people, which is sold as one piece.
	if portionPattern.MatchString(s) {
		return 1, models.UnitPiece, true
	}

	s = strings.ReplaceAll(s, "-", " ")
	s = strings.TrimSpace(s)

	if !strings.ContainsAny(s, "0123456789") {
		s = "1 " + s
	}

	s = fold(s)

	m := quantityUnitPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, "", false
	}
	qty, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	qty, unit = canonical(qty, m[2])
	return qty, unit, true
}

// clean lower-cases raw and strips packaging noise around the quantity.
func clean(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.ReplaceAll(s, "×", "x")
	s = strings.ReplaceAll(s, "stuks", "stuk")
	s = strings.ReplaceAll(s, "st.", "stuk")

	if i := strings.Index(s, "|"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "("); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "los per ", "")
	s = circaPattern.ReplaceAllString(s, "")
	s = perPrefixPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// fold collapses "6 x 250 g" into "1500g" and "4 + 2 stuk" into "6stuk". Descriptive words after the
// unit token are dropped.
func fold(s string) string {
	if m := multiplyPattern.FindStringSubmatch(s); m != nil {
		count, _ := strconv.ParseFloat(m[1], 64)
		size, _ := strconv.ParseFloat(m[2], 64)
		s = formatQty(count*size) + m[3]
	}
	if m := plusPattern.FindStringSubmatch(s); m != nil {
		a, _ := strconv.ParseFloat(m[1], 64)
		b, _ := strconv.ParseFloat(m[2], 64)
		s = formatQty(a+b) + m[3]
	}
	return s
}

func formatQty(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
}

func canonical(qty float64, token string) (float64, models.UnitType) {
	switch strings.ToLower(token) {
	case "g", "gram", "gr":
		return qty / 1000, models.UnitKilogram
	case "kg", "kilo":
		return qty, models.UnitKilogram
	case "ml":
		return qty / 1000, models.UnitLiter
	case "cl":
		return qty / 100, models.UnitLiter
	case "l":
		return qty, models.UnitLiter
	default:
		return qty, models.UnitPiece
	}
}

// Format renders a normalized quantity the way Normalize reads it back, e.g. "0.5 kg".
func Format(qty float64, unit models.UnitType) string {
	return formatQty(qty) + " " + string(unit)
}
