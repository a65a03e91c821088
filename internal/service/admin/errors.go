package admin

import (
	"errors"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrHallConflict     = errors.New("hall already exists")
	ErrPromoConflict    = errors.New("promo code already exists")
	ErrCatalogReference = errors.New("movie or hall does not exist")
	ErrSessionNotFound  = errors.New("session not found")
)
