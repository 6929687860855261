package optimizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"strategy-lab/internal/domain"
)

// DefaultCeiling is the largest parameter space enumerated when no ceiling is configured.
const DefaultCeiling = 10000

// maxValuesPerRange bounds a single start:stop:step expansion. It is
// checked while parsing, before Enumerate applies the ceiling.
const maxValuesPerRange = 1_000_000

var (
	// ErrParameterSpaceTooLarge is returned when the cartesian product of the
	// ranges exceeds the ceiling. No run is started.
	ErrParameterSpaceTooLarge = errors.New("parameter space too large")

	// ErrEmptyRange is returned for a parameter with no candidate values.
	ErrEmptyRange = errors.New("empty parameter range")

	// ErrInvalidRange is returned when a range expression cannot be parsed.
	ErrInvalidRange = errors.New("invalid parameter range")
)

// Ranges maps parameter names to their candidate values.
type Ranges map[string][]float64

// Names returns the parameter names, sorted.
func (r Ranges) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the number of combinations, saturating at math.MaxInt.
func (r Ranges) Size() int {
	if len(r) == 0 {
		return 0
	}
	size := 1
	for _, values := range r {
		n := len(values)
		if n == 0 {
			return 0
		}
		if size > math.MaxInt/n {
			return math.MaxInt
		}
		size *= n
	}
	return size
}

// Enumerate returns the cartesian product of the ranges. Parameters are
// iterated in name order with the last name varying fastest, and each set
// carries its position in that order as Index.
func Enumerate(ranges Ranges, ceiling int) ([]domain.ParameterSet, error) {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	names := ranges.Names()
	for _, name := range names {
		if len(ranges[name]) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyRange, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no parameters", ErrEmptyRange)
	}

	total := ranges.Size()
	if total > ceiling {
		return nil, fmt.Errorf("%w: %d combinations exceed ceiling %d", ErrParameterSpaceTooLarge, total, ceiling)
	}

	sets := make([]domain.ParameterSet, 0, total)
	odometer := make([]int, len(names))
	for idx := 0; idx < total; idx++ {
		params := make([]domain.Param, len(names))
		for i, name := range names {
			params[i] = domain.Param{Name: name, Value: ranges[name][odometer[i]]}
		}
		sets = append(sets, domain.ParameterSet{Index: idx, Params: params})

		for i := len(names) - 1; i >= 0; i-- {
			odometer[i]++
			if odometer[i] < len(ranges[names[i]]) {
				break
			}
			odometer[i] = 0
		}
	}
	return sets, nil
}

// ParseRanges parses range expressions of the form
//
//	name=v1,v2,v3
//	name=start:stop:step
//
// Values may be numbers or true/false. A start:stop:step range is inclusive
// of stop.
func ParseRanges(exprs []string) (Ranges, error) {
	out := make(Ranges, len(exprs))
	for _, expr := range exprs {
		name, spec, ok := strings.Cut(expr, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, expr)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: %s given twice", ErrInvalidRange, name)
		}

		var values []float64
		for _, part := range strings.Split(spec, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			vs, err := parseValues(part)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			values = append(values, vs...)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyRange, name)
		}
		out[name] = values
	}
	return out, nil
}

func parseValues(s string) ([]float64, error) {
	switch strings.ToLower(s) {
	case "true":
		return []float64{1}, nil
	case "false":
		return []float64{0}, nil
	}

	if !strings.Contains(s, ":") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		return []float64{v}, nil
	}

	bounds := strings.Split(s, ":")
	if len(bounds) != 3 {
		return nil, fmt.Errorf("%w: %q, want start:stop:step", ErrInvalidRange, s)
	}
	var nums [3]float64
	for i, b := range bounds {
		v, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		nums[i] = v
	}
	start, stop, step := nums[0], nums[1], nums[2]
	if step <= 0 || stop < start {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}

	// Count steps up front so float accumulation cannot drop the last value.
	count := math.Floor((stop-start)/step+1e-9) + 1
	if math.IsNaN(count) || math.IsInf(count, 0) || count > maxValuesPerRange {
		return nil, fmt.Errorf("%w: %q expands beyond %d values", ErrParameterSpaceTooLarge, s, maxValuesPerRange)
	}
	n := int(count)
	values := make([]float64, n)
	for i := range values {
		values[i] = trimFloat(start + float64(i)*step)
	}
	return values, nil
}

// trimFloat drops accumulated binary noise, so 0.1:0.3:0.1 yields 0.3
// rather than 0.30000000000000004.
func trimFloat(v float64) float64 {
	out, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 9, 64), 64)
	return out
}
