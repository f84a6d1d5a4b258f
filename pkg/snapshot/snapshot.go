// Package snapshot assembles fetched products into canonical snapshots.
package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shelf-sync/pkg/models"
	"shelf-sync/pkg/promo"
	"shelf-sync/pkg/source"
	"shelf-sync/pkg/units"
)

// roundingSlack is how far a regular price may sit below the current price and still count as valid.
const roundingSlack = 0.01

// ErrSkip marks a product that has no price at all. It is left out of the fresh set for the run.
var ErrSkip = errors.New("snapshot: no price resolved")

type Normalizer struct {
	Source   string
	Key      models.IdentityKey
	Resolver promo.Resolver
	Now      func() time.Time
}

func NewNormalizer(source string, key models.IdentityKey) *Normalizer {
	return &Normalizer{
		Source:   source,
		Key:      key,
		Resolver: promo.NewAuto(),
		Now:      time.Now,
	}
}

// Normalize resolves the price of raw and builds its snapshot. It returns ErrSkip when no price can be
// resolved and passes a *promo.ExtractionError through unchanged.
func (n *Normalizer) Normalize(raw source.RawProduct) (*models.ProductSnapshot, error) {
	res, err := n.Resolver.Resolve(raw.Payload())
	if err != nil {
		if errors.Is(err, models.ErrNoPrice) {
			return nil, fmt.Errorf("%w: %s", ErrSkip, describe(raw))
		}
		return nil, err
	}

	snap := Assemble(raw, res)
	snap.Source = n.Source
	snap.Identity = snap.IdentityFor(n.Key)
	if n.Now != nil {
		snap.ScrapedAt = n.Now().UTC()
	}
	if snap.Identity == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrMissingIdentity, describe(raw))
	}
	return snap, nil
}

// Assemble combines a resolution with the descriptive and unit fields of raw. A regular price or label
// that would break the promotion invariant is dropped, as are validity dates without a promotion.
func Assemble(raw source.RawProduct, res *promo.Resolution) *models.ProductSnapshot {
	snap := &models.ProductSnapshot{
		URL:            raw.URL,
		SKU:            raw.SKU,
		Name:           strings.TrimSpace(raw.Name),
		Brand:          strings.TrimSpace(raw.Brand),
		UnitText:       strings.TrimSpace(raw.UnitText),
		CurrentPrice:   res.CurrentPrice,
		RegularPrice:   res.RegularPrice,
		PromotionLabel: res.PromotionLabel,
		ValidFrom:      res.ValidFrom,
		ValidTo:        res.ValidTo,
	}

	if qty, unit, ok := units.Normalize(snap.UnitText); ok {
		snap.UnitQty = &qty
		snap.UnitType = unit
	}

	if snap.ValidFrom == nil && snap.ValidTo == nil {
		snap.ValidFrom, snap.ValidTo = raw.ValidFrom, raw.ValidTo
	}

	if snap.RegularPrice == nil || *snap.RegularPrice < snap.CurrentPrice-roundingSlack {
		snap.RegularPrice = nil
		snap.PromotionLabel = ""
	}
	if snap.PromotionLabel == "" {
		snap.RegularPrice = nil
		snap.ValidFrom, snap.ValidTo = nil, nil
	}

	return snap
}

func describe(raw source.RawProduct) string {
	switch {
	case raw.Name != "":
		return raw.Name
	case raw.URL != "":
		return raw.URL
	default:
		return raw.SKU
	}
}
