package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// SlotSelection is a parsed number_of_*_prices configuration value: either an
// absolute per-day slot count ("3") or a ratio of the day average ("0.8",
// "1.2").
type SlotSelection struct {
	Count   int
	Ratio   decimal.Decimal
	IsRatio bool
}

// ParseSlotSelection parses a slot-selection config string. Values with a
// fractional part are ratios, whole numbers are absolute counts.
func ParseSlotSelection(s string) (SlotSelection, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return SlotSelection{}, err
	}
	if d.IsInteger() {
		return SlotSelection{Count: int(d.IntPart())}, nil
	}
	return SlotSelection{Ratio: d, IsRatio: true}, nil
}

// PriceList owns the fetched market slots plus the names of the primary and
// failback data sources and which one is currently active.
type PriceList struct {
	items          []PriceItem
	PrimarySource  string
	FailbackSource string
	ActiveSource   string
}

func NewPriceList(items []PriceItem, primary, failback string) *PriceList {
	l := &PriceList{
		items:          append([]PriceItem(nil), items...),
		PrimarySource:  primary,
		FailbackSource: failback,
		ActiveSource:   primary,
	}
	sort.Slice(l.items, func(i, j int) bool { return l.items[i].Start.Before(l.items[j].Start) })
	return l
}

func (l *PriceList) Add(item PriceItem) {
	l.items = append(l.items, item)
	sort.Slice(l.items, func(i, j int) bool { return l.items[i].Start.Before(l.items[j].Start) })
}

func (l *PriceList) Items() []PriceItem {
	return l.items
}

func (l *PriceList) Len() int {
	return len(l.items)
}

// CurrentPrice returns the price of the slot containing now (UTC). The second
// return value is false when no slot matches.
func (l *PriceList) CurrentPrice(now time.Time) (int64, bool) {
	for _, item := range l.items {
		if item.Contains(now) {
			return item.Price, true
		}
	}
	return 0, false
}

// IsToday reports whether the item starts before the end of the current UTC
// calendar day.
func (l *PriceList) IsToday(item PriceItem, now time.Time) bool {
	return item.Start.Before(endOfUTCDay(now))
}

// AveragePriceByDate returns the arithmetic mean price of the items
// overlapping today's and tomorrow's UTC calendar day. A nil value means no
// items overlap that day.
func (l *PriceList) AveragePriceByDate(now time.Time) (today, tomorrow *decimal.Decimal) {
	dayStart := startOfUTCDay(now)
	today = l.averageForWindow(dayStart, dayStart.AddDate(0, 0, 1))
	tomorrow = l.averageForWindow(dayStart.AddDate(0, 0, 1), dayStart.AddDate(0, 0, 2))
	return today, tomorrow
}

func (l *PriceList) averageForWindow(from, to time.Time) *decimal.Decimal {
	var sum decimal.Decimal
	count := 0
	for _, item := range l.items {
		if item.Start.Before(to) && item.End.After(from) {
			sum = sum.Add(decimal.NewFromInt(item.Price))
			count++
		}
	}
	if count == 0 {
		return nil
	}
	avg := sum.Div(decimal.NewFromInt(int64(count)))
	return &avg
}

// LowestPrices selects the cheapest slots per the given selection: an
// absolute count picks the n cheapest slots independently for today and for
// tomorrow, re-sorted by start time; a ratio returns every slot below
// avg*ratio of its own day.
func (l *PriceList) LowestPrices(sel SlotSelection, now time.Time) []PriceItem {
	if sel.IsRatio {
		return l.pricesRelativeToAverage(sel.Ratio, now)
	}
	return l.pickPerDay(sel.Count, now, func(a, b PriceItem) bool { return a.Price < b.Price })
}

// HighestPrices is the discharge-side counterpart of LowestPrices.
func (l *PriceList) HighestPrices(sel SlotSelection, now time.Time) []PriceItem {
	if sel.IsRatio {
		return l.pricesRelativeToAverage(sel.Ratio, now)
	}
	return l.pickPerDay(sel.Count, now, func(a, b PriceItem) bool { return a.Price > b.Price })
}

func (l *PriceList) pickPerDay(count int, now time.Time, less func(a, b PriceItem) bool) []PriceItem {
	if count <= 0 {
		return nil
	}
	var today, tomorrow []PriceItem
	for _, item := range l.items {
		if l.IsToday(item, now) {
			today = append(today, item)
		} else {
			tomorrow = append(tomorrow, item)
		}
	}
	picked := append(topN(today, count, less), topN(tomorrow, count, less)...)
	sort.Slice(picked, func(i, j int) bool { return picked[i].Start.Before(picked[j].Start) })
	return picked
}

func topN(items []PriceItem, n int, less func(a, b PriceItem) bool) []PriceItem {
	sorted := append([]PriceItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// pricesRelativeToAverage applies the ratio threshold separately to today's
// and tomorrow's day average. ratio >= 1 selects slots at or above
// avg*ratio, ratio < 1 selects slots strictly below avg*ratio. Days without
// an average contribute no slots.
func (l *PriceList) pricesRelativeToAverage(ratio decimal.Decimal, now time.Time) []PriceItem {
	avgToday, avgTomorrow := l.AveragePriceByDate(now)
	one := decimal.NewFromInt(1)
	var selected []PriceItem
	for _, item := range l.items {
		avg := avgTomorrow
		if l.IsToday(item, now) {
			avg = avgToday
		}
		if avg == nil {
			continue
		}
		threshold := avg.Mul(ratio)
		price := decimal.NewFromInt(item.Price)
		if ratio.GreaterThanOrEqual(one) {
			if price.GreaterThanOrEqual(threshold) {
				selected = append(selected, item)
			}
		} else if price.LessThan(threshold) {
			selected = append(selected, item)
		}
	}
	return selected
}

// ValidItemsUntilMidnight counts the slots in subset ending strictly between
// now and the next local midnight. Informational only, but must be
// timezone-correct at the UTC/local boundary.
func (l *PriceList) ValidItemsUntilMidnight(subset []PriceItem, now time.Time, loc *time.Location) int {
	localNow := now.In(loc)
	y, m, d := localNow.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1).UTC()
	now = now.UTC()
	count := 0
	for _, item := range subset {
		if item.End.After(now) && item.End.Before(midnight) {
			count++
		}
	}
	return count
}

// RemoveExpiredItems drops every slot whose end has passed.
func (l *PriceList) RemoveExpiredItems(now time.Time) {
	kept := l.items[:0]
	for _, item := range l.items {
		if !item.Expired(now) {
			kept = append(kept, item)
		}
	}
	l.items = kept
}

func startOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOfUTCDay(t time.Time) time.Time {
	return startOfUTCDay(t).AddDate(0, 0, 1)
}
