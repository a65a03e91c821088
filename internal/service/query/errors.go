package query

import (
	"errors"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPromoNotFound   = errors.New("promo code not found")
)
