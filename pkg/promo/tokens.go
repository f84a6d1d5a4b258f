package promo

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"shelf-sync/pkg/models"
)

const (
	DefaultWindowSize   = 8
	DefaultFallbackSize = 50
	DefaultCartMarker   = "Voeg toe"

	// decoyMargin is how much higher a second price must be before it is read as the regular price
	// of an unbadged product.
	decoyMargin  = 0.01
	priceEpsilon = 0.005
)

var (
	quantityForPattern = regexp.MustCompile(`\d+\s+voor`)
	quantityForExact   = regexp.MustCompile(`^\d+\s+voor$`)
	countPattern       = regexp.MustCompile(`^\d+$`)
	plusFreePattern    = regexp.MustCompile(`\d+\+\d+`)
	plusFreeExact      = regexp.MustCompile(`^\d+\+\d+$`)
	labelPricePattern  = regexp.MustCompile(`^\d+[.,]\d{2}$`)
	centsPattern       = regexp.MustCompile(`^\d{2}$`)

	labelQuantityFor = regexp.MustCompile(`(\d+)\s+voor\s+(\d+[.,]\d{2})`)
	labelPlusFree    = regexp.MustCompile(`(\d+)\+(\d+)`)
)

// TokenResolver reads promotions from the flattened text of a product page. Promotion badges render
// just above the product title, so only a short window of tokens before the name is inspected.
type TokenResolver struct {
	WindowSize   int
	FallbackSize int
	// CartMarker is the add-to-cart button text. Prices rendered after it belong to other products.
	CartMarker string
}

func NewTokenResolver() *TokenResolver {
	return &TokenResolver{
		WindowSize:   DefaultWindowSize,
		FallbackSize: DefaultFallbackSize,
		CartMarker:   DefaultCartMarker,
	}
}

func (r *TokenResolver) Resolve(p Payload) (*Resolution, error) {
	window := r.Window(p.Tokens, p.Name)
	kind := Classify(window)

	candidates := r.Candidates(p.Tokens)
	if len(candidates) == 0 {
		return nil, models.ErrNoPrice
	}

	res := &Resolution{Kind: kind}
	switch kind {
	case KindDiscount:
		res.CurrentPrice = candidates[0]
		if len(candidates) > 1 {
			regular := candidates[1]
			res.RegularPrice = &regular
		}
		res.PromotionLabel = formatPrice(res.CurrentPrice)

	case KindMulti:
		regular := candidates[0]
		label, ok := ExtractLabel(window)
		if !ok {
			return nil, &ExtractionError{Product: p.Name}
		}
		current, ok := EffectivePrice(label, regular)
		if !ok {
			return nil, &ExtractionError{Product: p.Name}
		}
		res.RegularPrice = &regular
		res.CurrentPrice = current
		res.PromotionLabel = label

	default:
		res.CurrentPrice = candidates[0]
		// Unverified heuristic: a second, higher price without any badge is usually the shelf price of a
		// "per 100 gram" style promotion.
		if len(candidates) > 1 && candidates[1] > res.CurrentPrice+decoyMargin {
			regular := candidates[1]
			res.RegularPrice = &regular
			res.PromotionLabel = formatPrice(res.CurrentPrice)
		}
	}

	return res, nil
}

// Window returns the tokens right before the product name, or the first FallbackSize tokens when the
// name does not occur.
func (r *TokenResolver) Window(tokens []string, name string) []string {
	size, fallback := r.sizes()

	idx := -1
	if name != "" {
		for i, t := range tokens {
			if t == name {
				idx = i
				break
			}
		}
	}

	if idx < 0 {
		if len(tokens) > fallback {
			return tokens[:fallback]
		}
		return tokens
	}
	return tokens[max(0, idx-size):idx]
}

func (r *TokenResolver) sizes() (int, int) {
	size, fallback := r.WindowSize, r.FallbackSize
	if size <= 0 {
		size = DefaultWindowSize
	}
	if fallback <= 0 {
		fallback = DefaultFallbackSize
	}
	return size, fallback
}

// Classify decides the promotion kind of a window. Multi-buy wins over discount.
func Classify(window []string) Kind {
	lower := lowerAll(window)
	joined := strings.Join(lower, " ")

	hasQuantityFor := false
	for i, t := range lower {
		if quantityForPattern.MatchString(t) || splitQuantityFor(lower, i) {
			hasQuantityFor = true
			break
		}
	}

	hasPlusFree := containsMatch(lower, plusFreePattern) && containsSubstring(lower, "gratis")
	hasSecondHalf := containsToken(lower, "2e") && strings.Contains(joined, "halve prijs")

	if hasQuantityFor || hasPlusFree || hasSecondHalf {
		return KindMulti
	}
	if containsSubstring(lower, "korting") || containsToken(lower, "voor") {
		return KindDiscount
	}
	return KindNone
}

// ExtractLabel finds the promotion text of a multi-buy window: "2 voor 3.99", "1+1 gratis" or
// "2e halve prijs", checked in that order.
func ExtractLabel(window []string) (string, bool) {
	for i := range window {
		head, next := quantityForAt(window, i)
		if head == "" {
			continue
		}
		for j := next; j < len(window) && j < next+4; j++ {
			if labelPricePattern.MatchString(window[j]) {
				return head + " " + window[j], true
			}
		}
	}

	for i, t := range window {
		if plusFreeExact.MatchString(t) && i+1 < len(window) && strings.Contains(strings.ToLower(window[i+1]), "gratis") {
			return t + " " + window[i+1], true
		}
	}

	second, half := "", ""
	for i, t := range window {
		lt := strings.ToLower(strings.TrimSpace(t))
		switch {
		case lt == "2e":
			second = t
		case strings.Contains(lt, "halve prijs"):
			half = t
		case lt == "halve" && i+1 < len(window) && strings.HasPrefix(strings.ToLower(window[i+1]), "prijs"):
			half = t + " " + window[i+1]
		}
	}
	if second != "" && half != "" {
		return second + " " + half, true
	}

	return "", false
}

// quantityForAt recognises "2 voor" either as one token or as "2" followed by "voor". It returns the
// joined text and the index of the first token after it.
func quantityForAt(window []string, i int) (string, int) {
	t := strings.TrimSpace(window[i])
	if quantityForExact.MatchString(strings.ToLower(t)) {
		return t, i + 1
	}
	if splitQuantityFor(window, i) {
		return t + " " + window[i+1], i + 2
	}
	return "", 0
}

// splitQuantityFor reports whether window[i] is a count followed by a separate "voor" token. A count
// right after "." or "," is the cents part of a rendered price, not a badge.
func splitQuantityFor(window []string, i int) bool {
	if !countPattern.MatchString(strings.TrimSpace(window[i])) || i+1 >= len(window) {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(window[i+1]), "voor") {
		return false
	}
	if i > 0 {
		if prev := strings.TrimSpace(window[i-1]); prev == "." || prev == "," {
			return false
		}
	}
	return true
}

// EffectivePrice computes what one unit costs under a multi-buy label given the shelf price.
func EffectivePrice(label string, regular float64) (float64, bool) {
	l := strings.ToLower(label)

	if m := labelQuantityFor.FindStringSubmatch(l); m != nil {
		n, _ := strconv.Atoi(m[1])
		total, err := parsePrice(m[2])
		if err != nil || n == 0 {
			return 0, false
		}
		return total / float64(n), true
	}

	if strings.Contains(l, "gratis") {
		if m := labelPlusFree.FindStringSubmatch(l); m != nil {
			paid, _ := strconv.Atoi(m[1])
			free, _ := strconv.Atoi(m[2])
			if paid+free == 0 {
				return 0, false
			}
			return regular * float64(paid) / float64(paid+free), true
		}
	}

	if strings.Contains(l, "halve prijs") && strings.Contains(l, "2e") {
		return regular * 0.75, true
	}

	return 0, false
}

// Candidates returns the rendered prices on the page ("3", ".", "69") ordered by how close they sit
// before the cart marker, or in document order when there is no marker. Zero prices are dropped.
func (r *TokenResolver) Candidates(tokens []string) []float64 {
	marker := -1
	if r.CartMarker != "" {
		for i, t := range tokens {
			if t == r.CartMarker {
				marker = i
				break
			}
		}
	}

	limit := len(tokens) - 2
	if marker >= 0 && marker < limit {
		limit = marker
	}

	type candidate struct {
		pos   int
		price float64
	}
	var found []candidate
	for i := 0; i < limit; i++ {
		a, b, c := tokens[i], tokens[i+1], tokens[i+2]
		if !countPattern.MatchString(a) || (b != "." && b != ",") || !centsPattern.MatchString(c) {
			continue
		}
		price, err := strconv.ParseFloat(a+"."+c, 64)
		if err != nil || price == 0 {
			continue
		}
		found = append(found, candidate{pos: i, price: price})
	}

	if marker >= 0 {
		sort.SliceStable(found, func(i, j int) bool {
			return marker-found[i].pos < marker-found[j].pos
		})
	}

	prices := make([]float64, len(found))
	for i, c := range found {
		prices[i] = c.price
	}
	return prices
}

func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "€", ""))
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

func lowerAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.ToLower(strings.TrimSpace(t))
	}
	return out
}

func containsMatch(tokens []string, re *regexp.Regexp) bool {
	for _, t := range tokens {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

func containsSubstring(tokens []string, sub string) bool {
	for _, t := range tokens {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}
