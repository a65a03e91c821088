package redis

import (
	"context"
	"time"

	"github.com/kirinyoku/tix-cinema/internal/domain"
)

// CatalogSource is the uncached catalog backend.
type CatalogSource interface {
	GetSession(ctx context.Context, id int64) (*domain.Session, error)
	GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error)
}

// CachedCatalog is a read-through cache in front of a CatalogSource. Errors
// from the source, repository.ErrNotFound included, are passed through
// unchanged and never cached.
type CachedCatalog struct {
	src   CatalogSource
	cache *Cache
	ttl   time.Duration
}

func NewCachedCatalog(src CatalogSource, cache *Cache, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &CachedCatalog{src: src, cache: cache, ttl: ttl}
}

func (c *CachedCatalog) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	s, err := GetOrSetJSON(ctx, c.cache, KeySessionSummary(id), c.ttl,
		func(ctx context.Context) (domain.Session, error) {
			s, err := c.src.GetSession(ctx, id)
			if err != nil {
				return domain.Session{}, err
			}
			return *s, nil
		},
	)
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (c *CachedCatalog) GetPromoCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	p, err := GetOrSetJSON(ctx, c.cache, KeyPromoCode(code), c.ttl,
		func(ctx context.Context) (domain.PromoCode, error) {
			p, err := c.src.GetPromoCode(ctx, code)
			if err != nil {
				return domain.PromoCode{}, err
			}
			return *p, nil
		},
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}
