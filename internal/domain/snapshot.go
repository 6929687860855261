package domain

import "sort"

// Quote is the per-instrument view of a MarketSnapshot.
type Quote struct {
	Bid    float64
	Ask    float64
	Mid    float64
	Spread float64
	Bar    Candle // source bar, used for intrabar stop/target checks
}

// QuoteFromCandle derives a quote from a candle.
func QuoteFromCandle(c Candle) Quote {
	bid, ask := c.Bid(), c.Ask()
	return Quote{
		Bid:    bid,
		Ask:    ask,
		Mid:    (bid + ask) / 2,
		Spread: ask - bid,
		Bar:    c,
	}
}

// ExitPrice returns the price a position of the given side would exit at.
// Longs sell at the bid, shorts buy back at the ask.
func (q Quote) ExitPrice(side Side) float64 {
	if side == SideSell {
		return q.Ask
	}
	return q.Bid
}

// EntryPrice returns the price a new position of the given side would fill at.
func (q Quote) EntryPrice(side Side) float64 {
	if side == SideSell {
		return q.Bid
	}
	return q.Ask
}

// MarketSnapshot is a read-only view of all instruments quoted at one timestamp.
// Instruments without data at that timestamp are absent, never zero-filled.
type MarketSnapshot struct {
	TimestampMs int64
	quotes      map[string]Quote
	instruments []string
}

// NewMarketSnapshot builds a snapshot from the candles printed at ts.
func NewMarketSnapshot(ts int64, candles []Candle) MarketSnapshot {
	s := MarketSnapshot{
		TimestampMs: ts,
		quotes:      make(map[string]Quote, len(candles)),
		instruments: make([]string, 0, len(candles)),
	}
	for _, c := range candles {
		if _, exists := s.quotes[c.Instrument]; !exists {
			s.instruments = append(s.instruments, c.Instrument)
		}
		s.quotes[c.Instrument] = QuoteFromCandle(c)
	}
	sort.Strings(s.instruments)
	return s
}

// Quote returns the quote for an instrument, if present.
func (s MarketSnapshot) Quote(instrument string) (Quote, bool) {
	q, ok := s.quotes[instrument]
	return q, ok
}

// Has reports whether the instrument is quoted in this snapshot.
func (s MarketSnapshot) Has(instrument string) bool {
	_, ok := s.quotes[instrument]
	return ok
}

// Instruments returns the quoted instruments in sorted order.
func (s MarketSnapshot) Instruments() []string {
	out := make([]string, len(s.instruments))
	copy(out, s.instruments)
	return out
}

// Len returns the number of quoted instruments.
func (s MarketSnapshot) Len() int {
	return len(s.instruments)
}

// Filter returns a snapshot restricted to instruments accepted by keep.
func (s MarketSnapshot) Filter(keep func(instrument string) bool) MarketSnapshot {
	out := MarketSnapshot{
		TimestampMs: s.TimestampMs,
		quotes:      make(map[string]Quote, len(s.quotes)),
	}
	for _, inst := range s.instruments {
		if keep(inst) {
			out.quotes[inst] = s.quotes[inst]
			out.instruments = append(out.instruments, inst)
		}
	}
	return out
}
