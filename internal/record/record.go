// Package record defines the loosely-typed records the aggregation engine reads and
// the measure extractors that turn a record field into a number.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// DefaultMeasure is the field averaged when the caller names none.
const DefaultMeasure = "age"

// Measure extraction errors.
var (
	ErrMissingMeasure    = errors.New("measure field is missing")
	ErrNonNumericMeasure = errors.New("measure field is not numeric")
	ErrEmptyFieldName    = errors.New("measure field name cannot be empty")
)

// Record is one fetched row, keyed by column or attribute name.
// Records are treated as immutable once loaded.
type Record map[string]any

// Patient is the canonical shape of a record in the patients table.
type Patient struct {
	ID      int64  `json:"id"      yaml:"id"`
	Name    string `json:"name"    yaml:"name"`
	Age     int    `json:"age"     yaml:"age"`
	Disease string `json:"disease" yaml:"disease"`
}

// Record converts the patient into a Record.
func (p Patient) Record() Record {
	return Record{
		"id":      p.ID,
		"name":    p.Name,
		"age":     p.Age,
		"disease": p.Disease,
	}
}

// Field returns a measure extractor for the named field. The extractor accepts every
// Go integer and float kind plus json.Number; a nil or absent value is
// ErrMissingMeasure and anything else, including NaN and ±Inf, is
// ErrNonNumericMeasure.
func Field(name string) (func(Record) (float64, error), error) {
	if name == "" {
		return nil, ErrEmptyFieldName
	}
	return func(r Record) (float64, error) {
		v, ok := r[name]
		if !ok || v == nil {
			return 0, fmt.Errorf("%w: %q", ErrMissingMeasure, name)
		}
		f, err := ToFloat(v)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", name, err)
		}
		return f, nil
	}, nil
}

// ToFloat converts a numeric value to float64.
func ToFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNonNumericMeasure, n.String())
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: %T", ErrNonNumericMeasure, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonNumericMeasure, f)
	}
	return f, nil
}
