package promo

import "shelf-sync/pkg/models"

// OfferResolver handles sources that report a normal and an offer price. An offer price of zero means
// the product is not on offer.
type OfferResolver struct{}

func (OfferResolver) Resolve(p Payload) (*Resolution, error) {
	o := p.Offer
	if o == nil {
		return nil, models.ErrNoPrice
	}

	if o.OfferPrice <= 0 {
		if o.NormalPrice <= 0 {
			return nil, models.ErrNoPrice
		}
		return &Resolution{Kind: KindNone, CurrentPrice: o.NormalPrice}, nil
	}

	// An offer that is not below the normal price is not a promotion.
	if o.NormalPrice <= 0 || o.OfferPrice >= o.NormalPrice-priceEpsilon {
		return &Resolution{Kind: KindNone, CurrentPrice: o.OfferPrice}, nil
	}

	regular := o.NormalPrice
	res := &Resolution{
		Kind:         KindDiscount,
		CurrentPrice: o.OfferPrice,
		RegularPrice: &regular,
		ValidFrom:    o.ValidFrom,
		ValidTo:      o.ValidTo,
	}
	res.PromotionLabel = formatPrice(o.OfferPrice)
	return res, nil
}
