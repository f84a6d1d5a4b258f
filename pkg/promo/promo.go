// Package promo classifies promotions and resolves the effective current and regular price of a product,
// either from the flattened text of a product page or from structured offer fields reported by an API.
package promo

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindMulti    Kind = "multi"
	KindDiscount Kind = "discount"
	KindNone     Kind = "none"
)

// Offer is the API-path input: prices already split by the source.
type Offer struct {
	NormalPrice float64    `json:"normal_price"`
	OfferPrice  float64    `json:"offer_price"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
}

// Payload is what the fetch layer hands over for one product. Tokens are the page text in reading
// order; Offer is set instead when the source reports prices directly.
type Payload struct {
	Name   string   `json:"name"`
	Tokens []string `json:"tokens,omitempty"`
	Offer  *Offer   `json:"offer,omitempty"`
}

type Resolution struct {
	Kind           Kind       `json:"kind"`
	CurrentPrice   float64    `json:"current_price"`
	RegularPrice   *float64   `json:"regular_price,omitempty"`
	PromotionLabel string     `json:"promotion_label,omitempty"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidTo        *time.Time `json:"valid_to,omitempty"`
}

// Resolver turns a payload into prices. It returns models.ErrNoPrice when nothing price-like is found
// and an *ExtractionError when a multi-buy promotion is detected but its text cannot be read.
type Resolver interface {
	Resolve(p Payload) (*Resolution, error)
}

// ExtractionError reports a multi-buy promotion whose text could not be extracted.
type ExtractionError struct {
	Product string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("multi promotion detected but no promotion text found for product %q", e.Product)
}

func IsExtractionError(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}

// Auto dispatches to Offers when the payload carries an offer and to Tokens otherwise.
type Auto struct {
	Tokens Resolver
	Offers Resolver
}

func NewAuto() *Auto {
	return &Auto{
		Tokens: NewTokenResolver(),
		Offers: OfferResolver{},
	}
}

func (a *Auto) Resolve(p Payload) (*Resolution, error) {
	if p.Offer != nil {
		return a.Offers.Resolve(p)
	}
	return a.Tokens.Resolve(p)
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
