package record

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField(t *testing.T) {
	age, err := Field("age")
	require.NoError(t, err)

	tests := []struct {
		name    string
		rec     Record
		want    float64
		wantErr error
	}{
		{name: "int", rec: Record{"age": 42}, want: 42},
		{name: "int32 from postgres", rec: Record{"age": int32(7)}, want: 7},
		{name: "int64", rec: Record{"age": int64(65)}, want: 65},
		{name: "uint8", rec: Record{"age": uint8(3)}, want: 3},
		{name: "float64", rec: Record{"age": 30.5}, want: 30.5},
		{name: "float32", rec: Record{"age": float32(1.5)}, want: 1.5},
		{name: "json number", rec: Record{"age": json.Number("19")}, want: 19},
		{name: "missing", rec: Record{"name": "x"}, wantErr: ErrMissingMeasure},
		{name: "null", rec: Record{"age": nil}, wantErr: ErrMissingMeasure},
		{name: "string", rec: Record{"age": "forty"}, wantErr: ErrNonNumericMeasure},
		{name: "numeric string", rec: Record{"age": "40"}, wantErr: ErrNonNumericMeasure},
		{name: "bool", rec: Record{"age": true}, wantErr: ErrNonNumericMeasure},
		{name: "bad json number", rec: Record{"age": json.Number("4x")}, wantErr: ErrNonNumericMeasure},
		{name: "nan", rec: Record{"age": math.NaN()}, wantErr: ErrNonNumericMeasure},
		{name: "inf", rec: Record{"age": math.Inf(1)}, wantErr: ErrNonNumericMeasure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := age(tt.rec)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), "age")
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestField_EmptyName(t *testing.T) {
	fn, err := Field("")
	assert.ErrorIs(t, err, ErrEmptyFieldName)
	assert.Nil(t, fn)
}

func TestPatient_Record(t *testing.T) {
	p := Patient{ID: 1, Name: "Asha", Age: 34, Disease: "flu"}
	rec := p.Record()

	age, err := Field(DefaultMeasure)
	require.NoError(t, err)

	v, err := age(rec)
	require.NoError(t, err)
	assert.Equal(t, 34.0, v)
	assert.Equal(t, "Asha", rec["name"])
}
