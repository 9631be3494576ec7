package calc

import (
	"math"
	"net/url"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return q
}

func TestExtractParams(t *testing.T) {
	tests := []struct {
		query string
		want  MathParams
	}{
		{"a=5&b=3", MathParams{A: 5, B: 3}},
		{"a=-10&b=-5", MathParams{A: -10, B: -5}},
		{"a=2.5&b=3.7", MathParams{A: 2.5, B: 3.7}},
		{"a=0&b=0", MathParams{}},
		{"a=%2B1.5&b=.5", MathParams{A: 1.5, B: 0.5}},
		{"a=1e3&b=2E-2", MathParams{A: 1000, B: 0.02}},
		{"b=3&a=5&c=ignored", MathParams{A: 5, B: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := ExtractParams(mustQuery(t, tt.query))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractParams_Missing(t *testing.T) {
	for _, raw := range []string{"", "b=5", "a=5", "c=1", "b=xyz", "A=1&B=2"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ExtractParams(mustQuery(t, raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingParameters))
			assert.False(t, errors.Is(err, ErrInvalidNumber))
		})
	}
}

func TestExtractParams_Invalid(t *testing.T) {
	for _, raw := range []string{"a=abc&b=5", "a=10&b=xyz", "a=&b=1", "a=1&b=", "a=0x10&b=1", "a=1_000&b=1", "a=%205&b=1", "a=1,5&b=2", "a=1&a=2&b=3", "a=1&b=3&b=3"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ExtractParams(mustQuery(t, raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidNumber))

			var appErr *AppError
			require.True(t, errors.As(err, &appErr))
			assert.Contains(t, []string{ParamA, ParamB}, appErr.Param)
		})
	}
}

func TestExtractParams_DuplicateKey(t *testing.T) {
	_, err := ExtractParams(mustQuery(t, "a=1&a=2&b=3"))
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, InvalidNumber, appErr.Kind)
	assert.Equal(t, ParamA, appErr.Param)
	assert.Contains(t, appErr.Detail(), "duplicate field")

	// Missing still wins over a repeated key.
	_, err = ExtractParams(mustQuery(t, "a=1&a=2"))
	assert.True(t, errors.Is(err, ErrMissingParameters))
}

func TestExtractParams_NonFinitePassThrough(t *testing.T) {
	p, err := ExtractParams(mustQuery(t, "a=NaN&b=inf"))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(p.A))
	assert.True(t, math.IsInf(p.B, 1))

	p, err = ExtractParams(mustQuery(t, "a=1e400&b=-1e400"))
	require.NoError(t, err)
	assert.True(t, math.IsInf(p.A, 1))
	assert.True(t, math.IsInf(p.B, -1))
}
