// Package period reads the Dutch promotion validity labels retailers print next to an offer.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var months = map[string]time.Month{
	"jan": time.January, "januari": time.January,
	"feb": time.February, "februari": time.February,
	"mrt": time.March, "maa": time.March, "maart": time.March,
	"apr": time.April, "april": time.April,
	"mei": time.May,
	"jun": time.June, "juni": time.June,
	"jul": time.July, "juli": time.July,
	"aug": time.August, "augustus": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"okt": time.October, "oktober": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	bonusRight   = regexp.MustCompile(`^(\d{1,2})\s+([a-zA-Z]+)`)
	bonusLeft    = regexp.MustCompile(`^(\d{1,2})(?:\s+([a-zA-Z]+))?`)
	runtimeRange = regexp.MustCompile(`(?i)geldig van\s+\w+\s+(\d{1,2})\s+(\w+)\s+t/m\s+\w+\s+(\d{1,2})\s+(\w+)\s+(\d{4})`)
	dateRange    = regexp.MustCompile(`(?i)van\s+(\d{1,2})\s+([a-zA-Z]+)\s+t/m\s+(\d{1,2})\s+([a-zA-Z]+)`)
)

// Range is an inclusive promotion validity window of calendar dates.
type Range struct {
	From time.Time
	To   time.Time
}

// ParseBonusPeriod reads a bonus week label such as "17 t/m 23 nov" or "27 okt t/m 2 nov". The start
// month defaults to the end month. A range that wraps past December ends in the next year.
func ParseBonusPeriod(label string, year int) (Range, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(label), "t/m")
	if !ok {
		return Range{}, fmt.Errorf("bonus period %q: missing t/m", label)
	}
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)

	r := bonusRight.FindStringSubmatch(right)
	if r == nil {
		return Range{}, fmt.Errorf("bonus period %q: unexpected end %q", label, right)
	}
	endMonth, err := month(r[2])
	if err != nil {
		return Range{}, fmt.Errorf("bonus period %q: %w", label, err)
	}

	l := bonusLeft.FindStringSubmatch(left)
	if l == nil {
		return Range{}, fmt.Errorf("bonus period %q: unexpected start %q", label, left)
	}
	startMonth := endMonth
	if l[2] != "" {
		if startMonth, err = month(l[2]); err != nil {
			return Range{}, fmt.Errorf("bonus period %q: %w", label, err)
		}
	}

	endYear := year
	if endMonth < startMonth {
		endYear++
	}
	return build(year, startMonth, l[1], endYear, endMonth, r[1])
}

// ParseOfferRuntime reads "Geldig van woensdag 5 november t/m dinsdag 11 november 2025". Both dates
// take the printed year.
func ParseOfferRuntime(text string) (Range, error) {
	m := runtimeRange.FindStringSubmatch(text)
	if m == nil {
		return Range{}, fmt.Errorf("offer runtime %q: no match", text)
	}
	year, _ := strconv.Atoi(m[5])
	from, err := month(m[2])
	if err != nil {
		return Range{}, err
	}
	to, err := month(m[4])
	if err != nil {
		return Range{}, err
	}
	return build(year, from, m[1], year, to, m[3])
}

// ParseDateRange reads "Aanbieding is geldig van 19 november t/m 25 november", which carries no year.
func ParseDateRange(text string, year int) (Range, error) {
	m := dateRange.FindStringSubmatch(text)
	if m == nil {
		return Range{}, fmt.Errorf("date range %q: no match", text)
	}
	from, err := month(m[2])
	if err != nil {
		return Range{}, err
	}
	to, err := month(m[4])
	if err != nil {
		return Range{}, err
	}
	endYear := year
	if to < from {
		endYear++
	}
	return build(year, from, m[1], endYear, to, m[3])
}

func month(name string) (time.Month, error) {
	m, ok := months[strings.ToLower(strings.TrimSuffix(name, "."))]
	if !ok {
		return 0, fmt.Errorf("unknown month %q", name)
	}
	return m, nil
}

func build(fromYear int, fromMonth time.Month, fromDay string, toYear int, toMonth time.Month, toDay string) (Range, error) {
	from, err := date(fromYear, fromMonth, fromDay)
	if err != nil {
		return Range{}, err
	}
	to, err := date(toYear, toMonth, toDay)
	if err != nil {
		return Range{}, err
	}
	return Range{From: from, To: to}, nil
}

func date(year int, m time.Month, day string) (time.Time, error) {
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, fmt.Errorf("day %q: %w", day, err)
	}
	t := time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != m {
		return time.Time{}, fmt.Errorf("no day %d in %s %d", d, m, year)
	}
	return t, nil
}
