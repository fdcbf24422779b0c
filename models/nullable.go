// backend/models/nullable.go
package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var jsonNull = []byte("null")

// Float is a float64 where NaN means "no value". NaN is encoded as JSON null
// and decoded back from null, so ratios with a zero denominator survive a
// round trip through the snapshot store.
type Float float64

// NaN is the missing Float.
func NaN() Float { return Float(math.NaN()) }

func (f Float) IsNaN() bool { return math.IsNaN(float64(f)) }

func (f Float) MarshalJSON() ([]byte, error) {
	if f.IsNaN() || math.IsInf(float64(f), 0) {
		return jsonNull, nil
	}
	return json.Marshal(float64(f))
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) {
		*f = NaN()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// UnmarshalCSV lets csvutil decode Lat/Long cells. Empty cells become NaN.
func (f *Float) UnmarshalCSV(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" {
		*f = NaN()
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// NullInt64 is an int64 that may be missing, encoded as JSON null when not Valid.
type NullInt64 struct {
	Int64 int64
	Valid bool
}

// Int wraps a present value.
func Int(v int64) NullInt64 { return NullInt64{Int64: v, Valid: true} }

func (n NullInt64) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return jsonNull, nil
	}
	return []byte(strconv.FormatInt(n.Int64, 10)), nil
}

func (n *NullInt64) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) {
		*n = NullInt64{}
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Int(v)
	return nil
}
