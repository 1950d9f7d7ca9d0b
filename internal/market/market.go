package market

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/port"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

// factory builds a market source from its config entry.
type factory func(cfg config.MarketConfig, client *http.Client, logger *zap.Logger) (port.MarketSource, error)

// Fixed source registry populated at compile time. No dynamic loading.
var factories = map[string]factory{
	"awattar": newAwattarSource,
	"tibber":  newTibberSource,
	"entsoe":  newEntsoeSource,
}

// NewSource builds the market source named in cfg. Unknown names are an
// error, not a fallback.
func NewSource(cfg config.MarketConfig, client *http.Client, logger *zap.Logger) (port.MarketSource, error) {
	f, ok := factories[strings.ToLower(cfg.Name)]
	if !ok {
		return nil, fmt.Errorf("unknown market source %q", cfg.Name)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return f(cfg, client, logger)
}

// Service keeps a price list fresh from a primary market source with an
// optional failback. A refresh only hits the network when the current list no
// longer covers now.
type Service struct {
	primary      port.MarketSource
	failback     port.MarketSource
	useSecondDay bool
	logger       *zap.Logger
}

func NewService(primary, failback port.MarketSource, useSecondDay bool, logger *zap.Logger) *Service {
	return &Service{
		primary:      primary,
		failback:     failback,
		useSecondDay: useSecondDay,
		logger:       logger,
	}
}

func (s *Service) failbackName() string {
	if s.failback == nil {
		return ""
	}
	return s.failback.Name()
}

// NewList returns an empty price list carrying the configured source names.
func (s *Service) NewList() *domain.PriceList {
	return domain.NewPriceList(nil, s.primary.Name(), s.failbackName())
}

// Refresh drops expired slots and, when the list no longer has a slot for
// now, reloads from the primary source, falling back to the failback source
// when the primary returns nothing. The returned list is the one to use from
// now on; on a total load failure it is the trimmed input list.
func (s *Service) Refresh(ctx context.Context, list *domain.PriceList, now time.Time) *domain.PriceList {
	list.RemoveExpiredItems(now)
	list.ActiveSource = list.PrimarySource
	if _, ok := list.CurrentPrice(now); ok {
		return list
	}

	s.logger.Info("market: price update", zap.String("source", s.primary.Name()))
	items, err := s.primary.LoadPriceItems(ctx, s.useSecondDay)
	if err != nil {
		s.logger.Warn("market: primary source failed", zap.String("source", s.primary.Name()), zap.Error(err))
	}
	if len(items) > 0 {
		return domain.NewPriceList(items, s.primary.Name(), s.failbackName())
	}

	if s.failback == nil {
		s.logger.Warn("market: no failback source configured, keeping stale list")
		return list
	}
	s.logger.Info("market: price update", zap.String("source", s.failback.Name()))
	items, err = s.failback.LoadPriceItems(ctx, s.useSecondDay)
	if err != nil {
		s.logger.Warn("market: failback source failed", zap.String("source", s.failback.Name()), zap.Error(err))
	}
	if len(items) > 0 {
		updated := domain.NewPriceList(items, s.primary.Name(), s.failback.Name())
		updated.ActiveSource = s.failback.Name()
		return updated
	}
	return list
}
