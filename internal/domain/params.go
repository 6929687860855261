package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Param is one named knob of a ParameterSet. Booleans are encoded as 0 or 1.
type Param struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ParameterSet is an ordered mapping of knob names to concrete values.
type ParameterSet struct {
	Index  int     `json:"index"` // position in enumeration order
	Params []Param `json:"params"`
}

// NewParameterSet builds a set from a map, ordering params by name.
func NewParameterSet(index int, values map[string]float64) ParameterSet {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]Param, len(names))
	for i, name := range names {
		params[i] = Param{Name: name, Value: values[name]}
	}
	return ParameterSet{Index: index, Params: params}
}

// Lookup returns the value of a param.
func (p ParameterSet) Lookup(name string) (float64, bool) {
	for _, kv := range p.Params {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return 0, false
}

// Float returns the param value or def when absent.
func (p ParameterSet) Float(name string, def float64) float64 {
	if v, ok := p.Lookup(name); ok {
		return v
	}
	return def
}

// Int returns the param value truncated to int, or def when absent.
func (p ParameterSet) Int(name string, def int) int {
	if v, ok := p.Lookup(name); ok {
		return int(v)
	}
	return def
}

// Bool returns true for any non-zero param value, or def when absent.
func (p ParameterSet) Bool(name string, def bool) bool {
	if v, ok := p.Lookup(name); ok {
		return v != 0
	}
	return def
}

// Key returns a canonical representation, e.g. "fast=9|slow=21".
func (p ParameterSet) Key() string {
	parts := make([]string, len(p.Params))
	for i, kv := range p.Params {
		parts[i] = kv.Name + "=" + strconv.FormatFloat(kv.Value, 'g', -1, 64)
	}
	return strings.Join(parts, "|")
}

// Map returns the params as a plain map.
func (p ParameterSet) Map() map[string]float64 {
	out := make(map[string]float64, len(p.Params))
	for _, kv := range p.Params {
		out[kv.Name] = kv.Value
	}
	return out
}
