package reporting

import (
	"io"

	"github.com/gocarina/gocsv"
)

// WriteResultsCSV writes ranked result rows as CSV with a header line.
func WriteResultsCSV(w io.Writer, rows []ResultRow) error {
	return gocsv.Marshal(&rows, w)
}

// WriteTradesCSV writes trade rows as CSV with a header line.
func WriteTradesCSV(w io.Writer, rows []TradeRow) error {
	return gocsv.Marshal(&rows, w)
}

// WritePatternsCSV writes pattern rows as CSV with a header line.
func WritePatternsCSV(w io.Writer, rows []PatternRow) error {
	return gocsv.Marshal(&rows, w)
}

// RenderCSV renders ranked results as CSV string.
func RenderCSV(rows []ResultRow) (string, error) {
	return gocsv.MarshalString(&rows)
}
