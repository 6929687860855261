// Package history holds validated, time-ordered candle series and the
// read-only views the simulator hands to strategies.
package history

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"strategy-lab/internal/domain"
)

var (
	// ErrEmptySeries is returned when a series has no candles.
	ErrEmptySeries = errors.New("empty candle series")

	// ErrOutOfOrder is returned when timestamps decrease within a series.
	ErrOutOfOrder = errors.New("candles out of order")

	// ErrDuplicateTimestamp is returned when two candles share a timestamp.
	ErrDuplicateTimestamp = errors.New("duplicate candle timestamp")

	// ErrInstrumentMismatch is returned when a candle belongs to another instrument.
	ErrInstrumentMismatch = errors.New("candle instrument mismatch")

	// ErrInvalidCandle is returned for a bar with non-finite or non-positive
	// prices, or prices outside its own high/low range.
	ErrInvalidCandle = errors.New("invalid candle")

	// ErrUnknownInstrument is returned when the store has no series for an instrument.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrDuplicateInstrument is returned when a store receives two series for one instrument.
	ErrDuplicateInstrument = errors.New("duplicate instrument series")
)

// Series is an immutable, strictly time-ordered candle series for one instrument.
type Series struct {
	instrument string
	candles    []domain.Candle
	closes     []float64
	highs      []float64
	lows       []float64
}

// NewSeries validates candles and returns a Series.
// Candles are copied; the caller may reuse the input slice.
func NewSeries(instrument string, candles []domain.Candle) (*Series, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", instrument, ErrEmptySeries)
	}

	s := &Series{
		instrument: instrument,
		candles:    make([]domain.Candle, len(candles)),
		closes:     make([]float64, len(candles)),
		highs:      make([]float64, len(candles)),
		lows:       make([]float64, len(candles)),
	}
	copy(s.candles, candles)

	for i, c := range s.candles {
		if c.Instrument != instrument {
			return nil, fmt.Errorf("%s: candle %d has instrument %q: %w", instrument, i, c.Instrument, ErrInstrumentMismatch)
		}
		if reason := checkPrices(c); reason != "" {
			return nil, fmt.Errorf("%s: candle %d at %d: %s: %w", instrument, i, c.TimestampMs, reason, ErrInvalidCandle)
		}
		if i > 0 {
			prev := s.candles[i-1].TimestampMs
			switch {
			case c.TimestampMs < prev:
				return nil, fmt.Errorf("%s: candle %d at %d after %d: %w", instrument, i, c.TimestampMs, prev, ErrOutOfOrder)
			case c.TimestampMs == prev:
				return nil, fmt.Errorf("%s: candle %d at %d: %w", instrument, i, c.TimestampMs, ErrDuplicateTimestamp)
			}
		}
		s.closes[i] = c.Close
		s.highs[i] = c.High
		s.lows[i] = c.Low
	}

	return s, nil
}

// checkPrices returns why a candle is unusable, or "" if it is valid.
// Bid and ask closes may be 0, meaning the feed has no such side.
func checkPrices(c domain.Candle) string {
	for _, p := range []struct {
		name  string
		value float64
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}} {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) || p.value <= 0 {
			return fmt.Sprintf("%s %v", p.name, p.value)
		}
	}
	for _, p := range []struct {
		name  string
		value float64
	}{{"bid_close", c.BidClose}, {"ask_close", c.AskClose}, {"volume", c.Volume}} {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) || p.value < 0 {
			return fmt.Sprintf("%s %v", p.name, p.value)
		}
	}
	switch {
	case c.High < c.Low:
		return fmt.Sprintf("high %v below low %v", c.High, c.Low)
	case c.Open > c.High || c.Open < c.Low:
		return fmt.Sprintf("open %v outside [%v, %v]", c.Open, c.Low, c.High)
	case c.Close > c.High || c.Close < c.Low:
		return fmt.Sprintf("close %v outside [%v, %v]", c.Close, c.Low, c.High)
	}
	return ""
}

// Instrument returns the series instrument.
func (s *Series) Instrument() string { return s.instrument }

// Len returns the number of candles.
func (s *Series) Len() int { return len(s.candles) }

// At returns the i-th candle.
func (s *Series) At(i int) domain.Candle { return s.candles[i] }

// Candles returns a copy of all candles.
func (s *Series) Candles() []domain.Candle {
	out := make([]domain.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Store maps instruments to their series. It is read-only once built and
// safe to share across concurrent runs.
type Store struct {
	series      map[string]*Series
	instruments []string
	timeline    []int64
}

// NewStore builds a store from one series per instrument and precomputes
// the sorted, de-duplicated union of all timestamps.
func NewStore(series ...*Series) (*Store, error) {
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}

	st := &Store{series: make(map[string]*Series, len(series))}
	seen := make(map[int64]struct{})
	for _, s := range series {
		if _, ok := st.series[s.instrument]; ok {
			return nil, fmt.Errorf("%s: %w", s.instrument, ErrDuplicateInstrument)
		}
		st.series[s.instrument] = s
		st.instruments = append(st.instruments, s.instrument)
		for _, c := range s.candles {
			if _, ok := seen[c.TimestampMs]; !ok {
				seen[c.TimestampMs] = struct{}{}
				st.timeline = append(st.timeline, c.TimestampMs)
			}
		}
	}

	sort.Strings(st.instruments)
	sort.Slice(st.timeline, func(i, j int) bool { return st.timeline[i] < st.timeline[j] })
	return st, nil
}

// FromCandles groups candles by instrument and builds a Store.
// Each instrument's candles must already be in time order.
func FromCandles(candles []domain.Candle) (*Store, error) {
	grouped := make(map[string][]domain.Candle)
	var order []string
	for _, c := range candles {
		if _, ok := grouped[c.Instrument]; !ok {
			order = append(order, c.Instrument)
		}
		grouped[c.Instrument] = append(grouped[c.Instrument], c)
	}

	series := make([]*Series, 0, len(order))
	for _, inst := range order {
		s, err := NewSeries(inst, grouped[inst])
		if err != nil {
			return nil, err
		}
		series = append(series, s)
	}
	return NewStore(series...)
}

// Series returns the series for an instrument.
func (st *Store) Series(instrument string) (*Series, error) {
	s, ok := st.series[instrument]
	if !ok {
		return nil, fmt.Errorf("%s: %w", instrument, ErrUnknownInstrument)
	}
	return s, nil
}

// Instruments returns the instruments in sorted order.
func (st *Store) Instruments() []string {
	out := make([]string, len(st.instruments))
	copy(out, st.instruments)
	return out
}

// Timeline returns the sorted union of timestamps across all instruments.
func (st *Store) Timeline() []int64 {
	out := make([]int64, len(st.timeline))
	copy(out, st.timeline)
	return out
}
