package history

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"strategy-lab/internal/domain"
)

// csvCandleDTO is one CSV row. Timestamps may be RFC3339, a plain date,
// or unix milliseconds. bid_close and ask_close are optional.
type csvCandleDTO struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	BidClose  float64 `csv:"bid_close"`
	AskClose  float64 `csv:"ask_close"`
	Volume    float64 `csv:"volume"`
}

func (dto *csvCandleDTO) toModel(instrument string) (domain.Candle, error) {
	ts, err := parseTimestamp(dto.Timestamp)
	if err != nil {
		return domain.Candle{}, err
	}
	return domain.Candle{
		Instrument:  instrument,
		TimestampMs: ts,
		Open:        dto.Open,
		High:        dto.High,
		Low:         dto.Low,
		Close:       dto.Close,
		BidClose:    dto.BidClose,
		AskClose:    dto.AskClose,
		Volume:      dto.Volume,
	}, nil
}

func parseTimestamp(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t.UnixMilli(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UnixMilli(), nil
}

// LoadCSV reads candles for one instrument from CSV with a header row
// (timestamp,open,high,low,close[,bid_close,ask_close][,volume]) and
// returns a validated Series.
func LoadCSV(r io.Reader, instrument string) (*Series, error) {
	var rows []*csvCandleDTO
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read csv for %s: %w", instrument, err)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := row.toModel(instrument)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", instrument, i+1, err)
		}
		candles = append(candles, c)
	}
	return NewSeries(instrument, candles)
}
