package market

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/port"

	"go.uber.org/zap"
)

const (
	entsoeURL = "https://web-api.tp.entsoe.eu/api"

	// day-ahead prices document type
	entsoeDocumentType = "A44"
	entsoeHourly       = "PT60M"
	entsoeTimeLayout   = "2006-01-02T15:04Z"
	entsoeDateLayout   = "200601021504"

	// acknowledgement code for "no matching data"
	entsoeReasonNoData = 999
)

// entsoeSource loads day-ahead prices from the ENTSO-E transparency platform.
// Prices come in Eur/MWh as an XML market document with hourly positions
// relative to each period's start.
type entsoeSource struct {
	baseURL   string
	apiToken  string
	inDomain  string
	outDomain string
	client    *http.Client
	logger    *zap.Logger
}

func newEntsoeSource(cfg config.MarketConfig, client *http.Client, logger *zap.Logger) (port.MarketSource, error) {
	if cfg.ApiToken == "" {
		return nil, fmt.Errorf("entsoe: api_token is required")
	}
	if cfg.InDomain == "" {
		return nil, fmt.Errorf("entsoe: in_domain is required")
	}
	outDomain := cfg.OutDomain
	if outDomain == "" {
		outDomain = cfg.InDomain
	}
	return &entsoeSource{
		baseURL:   entsoeURL,
		apiToken:  cfg.ApiToken,
		inDomain:  cfg.InDomain,
		outDomain: outDomain,
		client:    client,
		logger:    logger,
	}, nil
}

func (s *entsoeSource) Name() string {
	return "entsoe"
}

type entsoePoint struct {
	Position int `xml:"position"`
	// kept as the XML literal so the fixed-point conversion stays exact
	PriceAmount string `xml:"price.amount"`
}

type entsoePeriod struct {
	Start      string        `xml:"timeInterval>start"`
	Resolution string        `xml:"resolution"`
	Points     []entsoePoint `xml:"Point"`
}

type entsoeReason struct {
	Code int    `xml:"code"`
	Text string `xml:"text"`
}

type entsoeDocument struct {
	Periods []entsoePeriod `xml:"TimeSeries>Period"`
	Reasons []entsoeReason `xml:"Reason"`
}

func (s *entsoeSource) LoadPriceItems(ctx context.Context, useSecondDay bool) ([]domain.PriceItem, error) {
	from, to := marketWindow(time.Now(), useSecondDay)
	query := url.Values{}
	query.Set("securityToken", s.apiToken)
	query.Set("documentType", entsoeDocumentType)
	query.Set("in_Domain", s.inDomain)
	query.Set("out_Domain", s.outDomain)
	query.Set("periodStart", from.Format(entsoeDateLayout))
	query.Set("periodEnd", to.Format(entsoeDateLayout))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("entsoe: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("entsoe: unexpected status %d", resp.StatusCode)
	}

	var doc entsoeDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("entsoe: decode failed: %w", err)
	}
	for _, reason := range doc.Reasons {
		if reason.Code == entsoeReasonNoData {
			s.logger.Warn("entsoe: data retrieval error in market document", zap.String("reason", reason.Text))
		}
	}

	var items []domain.PriceItem
	for _, period := range doc.Periods {
		if period.Resolution != entsoeHourly {
			continue
		}
		periodStart, err := time.Parse(entsoeTimeLayout, period.Start)
		if err != nil {
			s.logger.Warn("entsoe: skipping period with invalid start", zap.String("start", period.Start), zap.Error(err))
			continue
		}
		for _, point := range period.Points {
			start := periodStart.Add(time.Duration(point.Position-1) * time.Hour)
			item, err := domain.NewPriceItem(start, start.Add(time.Hour), point.PriceAmount, domain.ScaleEurMWh)
			if err != nil {
				s.logger.Warn("entsoe: skipping invalid slot", zap.Time("start", start), zap.Error(err))
				continue
			}
			items = append(items, item)
			// the first day ends at position 24 of the first hourly period
			if !useSecondDay && point.Position == 24 {
				return items, nil
			}
		}
	}
	return items, nil
}
