package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Per-source fixed-point scale exponents: 10^13 for sources quoting Eur/MWh,
// 10^14 for Cent/kWh and 10^15 for Eur/kWh. All slots in a list come from a
// single source and share its scale, so comparing a slot price with the live
// current price is exact integer equality.
const (
	ScaleEurMWh  = 13
	ScaleCentKWh = 14
	ScaleEurKWh  = 15
)

// ToFixedPoint converts a decimal price string to its fixed-point integer
// representation. Comma decimal separators are normalized first and the
// conversion goes through arbitrary-precision decimals, never binary floats.
func ToFixedPoint(price string, scale int32) (int64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(price), ",", ".")
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", price, err)
	}
	return d.Shift(scale).IntPart(), nil
}

// FromFixedPoint formats a fixed-point price as Cent/kWh with exactly 4
// decimal digits.
func FromFixedPoint(price int64) string {
	return decimal.New(price, -ScaleCentKWh).StringFixed(4)
}

// PriceItem is one immutable time-bounded market price slot.
// Start and End are UTC instants, End exclusive.
type PriceItem struct {
	Start time.Time
	End   time.Time
	Price int64
}

// NewPriceItem builds a slot from a source price string and its scale. A zero
// end time derives End as Start+1h (sources like Tibber omit it).
func NewPriceItem(start, end time.Time, price string, scale int32) (PriceItem, error) {
	fp, err := ToFixedPoint(price, scale)
	if err != nil {
		return PriceItem{}, err
	}
	start = start.UTC()
	if end.IsZero() {
		end = start.Add(time.Hour)
	} else {
		end = end.UTC()
	}
	if !start.Before(end) {
		return PriceItem{}, fmt.Errorf("price item start %s not before end %s", start, end)
	}
	return PriceItem{Start: start, End: end, Price: fp}, nil
}

// Contains reports whether now falls within [Start, End).
func (p PriceItem) Contains(now time.Time) bool {
	now = now.UTC()
	return !now.Before(p.Start) && now.Before(p.End)
}

// Expired reports whether the slot's end has passed.
func (p PriceItem) Expired(now time.Time) bool {
	return !now.UTC().Before(p.End)
}

// PriceString formats the slot price as Cent/kWh.
func (p PriceItem) PriceString() string {
	return FromFixedPoint(p.Price)
}
