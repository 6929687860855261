package history

import (
	"strategy-lab/internal/domain"
)

// View is the price history visible to a strategy at the current tick.
// Only the simulator advances it; strategies get read-only slices that
// never extend past the current bar.
type View struct {
	store  *Store
	counts map[string]int
}

// NewView returns a view with no bars visible.
func NewView(store *Store) *View {
	return &View{
		store:  store,
		counts: make(map[string]int, len(store.instruments)),
	}
}

// Advance makes every bar with timestamp <= ts visible and returns the
// instruments that gained a bar exactly at ts, in sorted order.
func (v *View) Advance(ts int64) []string {
	var updated []string
	for _, inst := range v.store.instruments {
		s := v.store.series[inst]
		n := v.counts[inst]
		for n < len(s.candles) && s.candles[n].TimestampMs <= ts {
			n++
		}
		if n > v.counts[inst] && s.candles[n-1].TimestampMs == ts {
			updated = append(updated, inst)
		}
		v.counts[inst] = n
	}
	return updated
}

// Len returns the number of visible bars for an instrument.
func (v *View) Len(instrument string) int {
	return v.counts[instrument]
}

// Closes returns visible close prices, oldest first.
func (v *View) Closes(instrument string) []float64 {
	s, n := v.visible(instrument)
	if s == nil {
		return nil
	}
	return s.closes[:n:n]
}

// Highs returns visible high prices, oldest first.
func (v *View) Highs(instrument string) []float64 {
	s, n := v.visible(instrument)
	if s == nil {
		return nil
	}
	return s.highs[:n:n]
}

// Lows returns visible low prices, oldest first.
func (v *View) Lows(instrument string) []float64 {
	s, n := v.visible(instrument)
	if s == nil {
		return nil
	}
	return s.lows[:n:n]
}

// Candles returns a copy of the visible candles.
func (v *View) Candles(instrument string) []domain.Candle {
	s, n := v.visible(instrument)
	if s == nil {
		return nil
	}
	out := make([]domain.Candle, n)
	copy(out, s.candles[:n])
	return out
}

// Last returns the most recent visible candle.
func (v *View) Last(instrument string) (domain.Candle, bool) {
	s, n := v.visible(instrument)
	if s == nil || n == 0 {
		return domain.Candle{}, false
	}
	return s.candles[n-1], true
}

func (v *View) visible(instrument string) (*Series, int) {
	s, ok := v.store.series[instrument]
	if !ok {
		return nil, 0
	}
	return s, v.counts[instrument]
}
