package repository

import (
	"context"
	"errors"
	"time"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/pkg/cache"
	applogger "github.com/trickingegg/golden-dragon/pkg/logger"
)

const marginKeyPrefix = "margin"

// CachedMarginProvider memoizes futures margins for ttl. Lookup errors are not cached.
type CachedMarginProvider struct {
	next  domrepo.MarginProvider
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

var _ domrepo.MarginProvider = (*CachedMarginProvider)(nil)

func NewCachedMarginProvider(next domrepo.MarginProvider, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedMarginProvider {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedMarginProvider{next: next, cache: c, ttl: ttl, l: l}
}

func (p *CachedMarginProvider) FuturesMargin(ctx context.Context, instrumentID string) (models.Margin, error) {
	key := cache.GenerateKey(marginKeyPrefix, instrumentID)

	m, err := cache.GetTyped[models.Margin](ctx, p.cache, key)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		p.l.Warn("margin cache read failed", applogger.String("instrument", instrumentID), applogger.Error(err))
	}

	m, err = p.next.FuturesMargin(ctx, instrumentID)
	if err != nil {
		return models.Margin{}, err
	}
	if err := p.cache.Set(ctx, key, m, p.ttl); err != nil {
		p.l.Warn("margin cache write failed", applogger.String("instrument", instrumentID), applogger.Error(err))
	}
	return m, nil
}

// Invalidate drops the cached margin of an instrument.
func (p *CachedMarginProvider) Invalidate(ctx context.Context, instrumentID string) error {
	return p.cache.Delete(ctx, cache.GenerateKey(marginKeyPrefix, instrumentID))
}
