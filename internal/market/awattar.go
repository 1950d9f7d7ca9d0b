package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/port"

	"go.uber.org/zap"
)

const (
	awattarURLAT = "https://api.awattar.com/v1/marketdata"
	awattarURLDE = "https://api.awattar.de/v1/marketdata"
)

// awattarSource loads day-ahead prices from the Awattar market data API.
// Prices come in Eur/MWh with millisecond start/end timestamps per slot.
type awattarSource struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func newAwattarSource(cfg config.MarketConfig, client *http.Client, logger *zap.Logger) (port.MarketSource, error) {
	baseURL := awattarURLAT
	switch cfg.Country {
	case "", "AT":
	case "DE":
		baseURL = awattarURLDE
	default:
		return nil, fmt.Errorf("awattar: unsupported country %q", cfg.Country)
	}
	return &awattarSource{baseURL: baseURL, client: client, logger: logger}, nil
}

func (s *awattarSource) Name() string {
	return "awattar"
}

type awattarEntry struct {
	StartTimestamp int64 `json:"start_timestamp"`
	EndTimestamp   int64 `json:"end_timestamp"`
	// kept as the JSON literal so the fixed-point conversion stays exact
	MarketPrice json.Number `json:"marketprice"`
}

type awattarResponse struct {
	Data []awattarEntry `json:"data"`
}

func (s *awattarSource) LoadPriceItems(ctx context.Context, useSecondDay bool) ([]domain.PriceItem, error) {
	from, to := marketWindow(time.Now(), useSecondDay)
	query := url.Values{}
	query.Set("start", strconv.FormatInt(from.UnixMilli(), 10))
	query.Set("end", strconv.FormatInt(to.UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("awattar: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("awattar: unexpected status %d", resp.StatusCode)
	}

	var payload awattarResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("awattar: decode failed: %w", err)
	}

	items := make([]domain.PriceItem, 0, len(payload.Data))
	for _, entry := range payload.Data {
		item, err := domain.NewPriceItem(
			time.UnixMilli(entry.StartTimestamp).UTC(),
			time.UnixMilli(entry.EndTimestamp).UTC(),
			entry.MarketPrice.String(), domain.ScaleEurMWh)
		if err != nil {
			s.logger.Warn("awattar: skipping invalid slot",
				zap.Int64("start_timestamp", entry.StartTimestamp), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// marketWindow is the local-time request window: the current day, extended
// backwards to yesterday 23:00 and forwards through tomorrow when the second
// day is wanted.
func marketWindow(now time.Time, useSecondDay bool) (from, to time.Time) {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if useSecondDay {
		return midnight.AddDate(0, 0, -1).Add(23 * time.Hour), midnight.AddDate(0, 0, 2)
	}
	return midnight, midnight.AddDate(0, 0, 1)
}
