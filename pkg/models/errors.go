package models

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrNoPrice         = errors.New("no price found")
	ErrMissingIdentity = errors.New("missing identity")
	ErrUnknownSource   = errors.New("unknown source")
)
