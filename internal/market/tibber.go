package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/port"

	"go.uber.org/zap"
)

const (
	tibberURL = "https://api.tibber.com/v1-beta/gql"

	tibberQuery = `{viewer{homes{currentSubscription{priceInfo{` +
		`today{total energy tax startsAt}tomorrow{total energy tax startsAt}}}}}}`

	// a full two-day window has 48 hourly slots; fewer than 25 means
	// tomorrow is missing
	tibberTwoDayMinimum = 25
)

// tibberSource loads hourly prices from the Tibber GraphQL API. Prices come
// in Eur/kWh with a startsAt per slot; the slot end is derived.
type tibberSource struct {
	url       string
	apiToken  string
	priceUnit string
	client    *http.Client
	logger    *zap.Logger
}

func newTibberSource(cfg config.MarketConfig, client *http.Client, logger *zap.Logger) (port.MarketSource, error) {
	if cfg.ApiToken == "" {
		return nil, fmt.Errorf("tibber: api_token is required")
	}
	priceUnit := cfg.PriceUnit
	if priceUnit == "" {
		priceUnit = "energy"
	}
	switch priceUnit {
	case "total", "energy", "tax":
	default:
		return nil, fmt.Errorf("tibber: unsupported price_unit %q", priceUnit)
	}
	return &tibberSource{
		url:       tibberURL,
		apiToken:  cfg.ApiToken,
		priceUnit: priceUnit,
		client:    client,
		logger:    logger,
	}, nil
}

func (s *tibberSource) Name() string {
	return "tibber"
}

type tibberSlot struct {
	Total    json.Number `json:"total"`
	Energy   json.Number `json:"energy"`
	Tax      json.Number `json:"tax"`
	StartsAt string      `json:"startsAt"`
}

type tibberResponse struct {
	Data struct {
		Viewer struct {
			Homes []struct {
				CurrentSubscription struct {
					PriceInfo struct {
						Today    []tibberSlot `json:"today"`
						Tomorrow []tibberSlot `json:"tomorrow"`
					} `json:"priceInfo"`
				} `json:"currentSubscription"`
			} `json:"homes"`
		} `json:"viewer"`
	} `json:"data"`
}

func (s *tibberSource) LoadPriceItems(ctx context.Context, useSecondDay bool) ([]domain.PriceItem, error) {
	body, err := json.Marshal(map[string]string{"query": tibberQuery})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tibber: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tibber: unexpected status %d", resp.StatusCode)
	}

	var payload tibberResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("tibber: decode failed: %w", err)
	}
	homes := payload.Data.Viewer.Homes
	if len(homes) == 0 {
		return nil, fmt.Errorf("tibber: response contains no homes")
	}

	priceInfo := homes[0].CurrentSubscription.PriceInfo
	slots := priceInfo.Today
	if useSecondDay {
		slots = append(slots, priceInfo.Tomorrow...)
	}

	items := make([]domain.PriceItem, 0, len(slots))
	for _, slot := range slots {
		item, err := s.toPriceItem(slot)
		if err != nil {
			s.logger.Warn("tibber: skipping invalid slot", zap.String("starts_at", slot.StartsAt), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	if useSecondDay && len(items) < tibberTwoDayMinimum {
		s.logger.Warn("tibber: prices for tomorrow could not be loaded", zap.Int("slots", len(items)))
	}
	return items, nil
}

func (s *tibberSource) toPriceItem(slot tibberSlot) (domain.PriceItem, error) {
	start, err := time.Parse(time.RFC3339, slot.StartsAt)
	if err != nil {
		return domain.PriceItem{}, err
	}
	price := slot.Energy
	switch s.priceUnit {
	case "total":
		price = slot.Total
	case "tax":
		price = slot.Tax
	}
	// zero end time: the slot runs one hour from its start
	return domain.NewPriceItem(start.UTC(), time.Time{}, price.String(), domain.ScaleEurKWh)
}
