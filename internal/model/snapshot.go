package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is one field of an indicator family: either an ordered series of
// readings (latest last) or a boolean flag such as "price above cloud".
type Value struct {
	Series []float64
	Flag   *bool
}

// Num wraps scalar readings as a series.
func Num(v ...float64) Value { return Value{Series: v} }

// Bool wraps a flag.
func Bool(b bool) Value { return Value{Flag: &b} }

// MarshalJSON encodes flags as JSON booleans and everything else as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Flag != nil {
		return json.Marshal(*v.Flag)
	}
	if v.Series == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Series)
}

// UnmarshalJSON accepts an array of numbers, a single number or a boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("indicator value: empty input")
	}
	switch data[0] {
	case '[':
		return json.Unmarshal(data, &v.Series)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		v.Flag = &b
		return nil
	case 'n':
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("indicator value: %w", err)
		}
		v.Series = []float64{f}
		return nil
	}
}

// Indicator holds the named fields of one indicator family,
// e.g. bollinger → {lowerband, middleband, upperband}.
type Indicator map[string]Value

// IndicatorSnapshot is the per-symbol, per-tick set of indicator readings
// supplied by the indicator subsystem. The engine treats it as read-only.
type IndicatorSnapshot map[string]Indicator

// Series returns the non-empty series stored at family.field.
func (s IndicatorSnapshot) Series(family, field string) ([]float64, bool) {
	ind, ok := s[family]
	if !ok {
		return nil, false
	}
	v, ok := ind[field]
	if !ok || len(v.Series) == 0 {
		return nil, false
	}
	return v.Series, true
}

// Latest returns the most recent reading at family.field.
func (s IndicatorSnapshot) Latest(family, field string) (float64, bool) {
	series, ok := s.Series(family, field)
	if !ok {
		return 0, false
	}
	return series[len(series)-1], true
}

// Flag returns the boolean stored at family.field.
func (s IndicatorSnapshot) Flag(family, field string) (bool, bool) {
	ind, ok := s[family]
	if !ok {
		return false, false
	}
	v, ok := ind[field]
	if !ok || v.Flag == nil {
		return false, false
	}
	return *v.Flag, true
}

// The snapshot may carry the tick's last traded price under price.close.
const (
	PriceFamily = "price"
	PriceField  = "close"
)

// Price returns the last traded price carried by the snapshot.
func (s IndicatorSnapshot) Price() (float64, bool) {
	return s.Latest(PriceFamily, PriceField)
}
