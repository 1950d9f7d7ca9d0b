package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/spotmarket2mqtt/internal/config"
	"github.com/berfenger/spotmarket2mqtt/internal/core/domain"
	"github.com/berfenger/spotmarket2mqtt/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const awattarPayload = `{
  "object": "list",
  "data": [
    {"start_timestamp": 1767394800000, "end_timestamp": 1767398400000, "marketprice": 91.45, "unit": "Eur/MWh"},
    {"start_timestamp": 1767398400000, "end_timestamp": 1767402000000, "marketprice": 75, "unit": "Eur/MWh"}
  ]
}`

const tibberPayload = `{
  "data": {"viewer": {"homes": [{"currentSubscription": {"priceInfo": {
    "today": [
      {"total": 0.2454, "energy": 0.1654, "tax": 0.08, "startsAt": "2026-03-10T00:00:00.000+01:00"},
      {"total": 0.2103, "energy": 0.1303, "tax": 0.08, "startsAt": "2026-03-10T01:00:00.000+01:00"}
    ],
    "tomorrow": [
      {"total": 0.1912, "energy": 0.1112, "tax": 0.08, "startsAt": "2026-03-11T00:00:00.000+01:00"}
    ]
  }}}]}}
}`

func TestNewSourceRegistry(t *testing.T) {
	_, err := NewSource(config.MarketConfig{Name: "Awattar"}, nil, zap.NewNop())
	assert.NoError(t, err)

	_, err = NewSource(config.MarketConfig{Name: "nordpool"}, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewSource(config.MarketConfig{Name: "tibber"}, nil, zap.NewNop())
	assert.Error(t, err, "tibber requires an api token")

	_, err = NewSource(config.MarketConfig{Name: "entsoe"}, nil, zap.NewNop())
	assert.Error(t, err, "entsoe requires an api token")

	_, err = NewSource(config.MarketConfig{Name: "entsoe", ApiToken: "token"}, nil, zap.NewNop())
	assert.Error(t, err, "entsoe requires an in_domain")

	source, err := NewSource(config.MarketConfig{Name: "entsoe", ApiToken: "token", InDomain: "10YAT-APG------L"}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "entsoe", source.Name())
}

func TestAwattarLoadPriceItems(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(awattarPayload))
	}))
	defer server.Close()

	source := &awattarSource{baseURL: server.URL, client: server.Client(), logger: zap.NewNop()}
	items, err := source.LoadPriceItems(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Contains(t, query, "start=")
	assert.Contains(t, query, "end=")

	// 91.45 Eur/MWh is 9.1450 Cent/kWh
	assert.Equal(t, "9.1450", items[0].PriceString())
	assert.Equal(t, "7.5000", items[1].PriceString())
	assert.Equal(t, time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC), items[0].Start)
	assert.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), items[0].End)
}

func TestAwattarRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	source := &awattarSource{baseURL: server.URL, client: server.Client(), logger: zap.NewNop()}
	_, err := source.LoadPriceItems(context.Background(), false)
	assert.Error(t, err)
}

func TestMarketWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	from, to := marketWindow(now, false)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), to)

	from, to = marketWindow(now, true)
	assert.Equal(t, time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), to)
}

func TestTibberLoadPriceItems(t *testing.T) {
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(tibberPayload))
	}))
	defer server.Close()

	source := &tibberSource{
		url: server.URL, apiToken: "token", priceUnit: "energy",
		client: server.Client(), logger: zap.NewNop(),
	}
	items, err := source.LoadPriceItems(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Bearer token", authorization)

	// 0.1654 Eur/kWh is 16.5400 Cent/kWh, starting 2026-03-09 23:00 UTC
	assert.Equal(t, "16.5400", items[0].PriceString())
	assert.Equal(t, time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC), items[0].Start)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), items[0].End)
}

func TestTibberSecondDay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tibberPayload))
	}))
	defer server.Close()

	source := &tibberSource{
		url: server.URL, apiToken: "token", priceUnit: "total",
		client: server.Client(), logger: zap.NewNop(),
	}
	items, err := source.LoadPriceItems(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "19.1200", items[2].PriceString())
}

const entsoePayload = `<?xml version="1.0" encoding="UTF-8"?>
<Publication_MarketDocument>
  <TimeSeries>
    <Period>
      <timeInterval><start>2026-03-09T23:00Z</start><end>2026-03-10T23:00Z</end></timeInterval>
      <resolution>PT60M</resolution>
      <Point><position>1</position><price.amount>91.45</price.amount></Point>
      <Point><position>2</position><price.amount>75</price.amount></Point>
    </Period>
    <Period>
      <timeInterval><start>2026-03-09T23:00Z</start><end>2026-03-10T23:00Z</end></timeInterval>
      <resolution>PT15M</resolution>
      <Point><position>1</position><price.amount>12.34</price.amount></Point>
    </Period>
  </TimeSeries>
</Publication_MarketDocument>`

func TestEntsoeLoadPriceItems(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(entsoePayload))
	}))
	defer server.Close()

	source := &entsoeSource{
		baseURL: server.URL, apiToken: "token",
		inDomain: "10YAT-APG------L", outDomain: "10YAT-APG------L",
		client: server.Client(), logger: zap.NewNop(),
	}
	items, err := source.LoadPriceItems(context.Background(), false)
	require.NoError(t, err)
	// the quarter-hourly period is skipped
	require.Len(t, items, 2)

	assert.Contains(t, query, "documentType=A44")
	assert.Contains(t, query, "securityToken=token")
	assert.Contains(t, query, "periodStart=")

	// 91.45 Eur/MWh is 9.1450 Cent/kWh, position 1 starts at the period start
	assert.Equal(t, "9.1450", items[0].PriceString())
	assert.Equal(t, time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC), items[0].Start)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), items[0].End)
	assert.Equal(t, "7.5000", items[1].PriceString())
}

func TestEntsoeRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	source := &entsoeSource{
		baseURL: server.URL, apiToken: "token",
		inDomain: "10YAT-APG------L", outDomain: "10YAT-APG------L",
		client: server.Client(), logger: zap.NewNop(),
	}
	_, err := source.LoadPriceItems(context.Background(), false)
	assert.Error(t, err)
}

type stubSource struct {
	name  string
	items []domain.PriceItem
	err   error
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) LoadPriceItems(_ context.Context, _ bool) ([]domain.PriceItem, error) {
	s.calls++
	return s.items, s.err
}

var _ port.MarketSource = (*stubSource)(nil)

func refreshSlot(t *testing.T, start time.Time, price string) domain.PriceItem {
	t.Helper()
	item, err := domain.NewPriceItem(start, time.Time{}, price, domain.ScaleCentKWh)
	require.NoError(t, err)
	return item
}

func TestRefreshKeepsCoveringList(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	primary := &stubSource{name: "awattar"}
	service := NewService(primary, nil, false, zap.NewNop())

	list := domain.NewPriceList([]domain.PriceItem{refreshSlot(t, now.Truncate(time.Hour), "7.50")}, "awattar", "")
	got := service.Refresh(context.Background(), list, now)

	assert.Same(t, list, got)
	assert.Zero(t, primary.calls, "no network call while the list covers now")
}

func TestRefreshLoadsFromPrimary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	primary := &stubSource{name: "awattar", items: []domain.PriceItem{refreshSlot(t, now.Truncate(time.Hour), "7.50")}}
	failback := &stubSource{name: "tibber"}
	service := NewService(primary, failback, false, zap.NewNop())

	got := service.Refresh(context.Background(), service.NewList(), now)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, "awattar", got.ActiveSource)
	assert.Zero(t, failback.calls)
}

func TestRefreshFailsOverToFailback(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	primary := &stubSource{name: "awattar", err: assert.AnError}
	failback := &stubSource{name: "tibber", items: []domain.PriceItem{refreshSlot(t, now.Truncate(time.Hour), "16.54")}}
	service := NewService(primary, failback, false, zap.NewNop())

	got := service.Refresh(context.Background(), service.NewList(), now)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, "tibber", got.ActiveSource)
	assert.Equal(t, "awattar", got.PrimarySource)
}

func TestRefreshKeepsStaleListOnTotalFailure(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	primary := &stubSource{name: "awattar", err: assert.AnError}
	failback := &stubSource{name: "tibber", err: assert.AnError}
	service := NewService(primary, failback, false, zap.NewNop())

	stale := domain.NewPriceList([]domain.PriceItem{refreshSlot(t, now.Add(2*time.Hour), "7.50")}, "awattar", "tibber")
	got := service.Refresh(context.Background(), stale, now)
	assert.Same(t, stale, got)
	assert.Equal(t, 1, got.Len())
}
