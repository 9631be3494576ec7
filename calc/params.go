package calc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Query parameter names for the two operands.
const (
	ParamA = "a"
	ParamB = "b"
)

// MathParams holds the two operands of an arithmetic request.
type MathParams struct {
	A float64
	B float64
}

// ExtractParams decodes a and b from the query.
// Presence is checked for both keys before either value is parsed, so a
// missing key always wins over a malformed one. A key given more than once
// is an InvalidNumber.
func ExtractParams(query url.Values) (MathParams, error) {
	for _, key := range []string{ParamA, ParamB} {
		if vs, ok := query[key]; !ok || len(vs) == 0 {
			return MathParams{}, newAppError(MissingParameters, key, nil)
		}
	}

	a, err := operand(query, ParamA)
	if err != nil {
		return MathParams{}, err
	}
	b, err := operand(query, ParamB)
	if err != nil {
		return MathParams{}, err
	}
	return MathParams{A: a, B: b}, nil
}

func operand(query url.Values, key string) (float64, error) {
	vs := query[key]
	if len(vs) > 1 {
		return 0, newAppError(InvalidNumber, key, errors.Newf("duplicate field, %d values", len(vs)))
	}
	return parseOperand(key, vs[0])
}

// parseOperand accepts decimal and exponent notation plus NaN and
// Inf/Infinity. Hex floats are rejected. Literals beyond float64 range
// become ±Inf.
func parseOperand(key, raw string) (float64, error) {
	if raw == "" {
		return 0, newAppError(InvalidNumber, key, errors.New("empty value"))
	}
	if strings.ContainsAny(raw, "xX_") {
		return 0, newAppError(InvalidNumber, key, errors.Newf("unsupported number syntax %q", raw))
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return v, nil
		}
		return 0, newAppError(InvalidNumber, key, errors.Wrapf(err, "parse %q", raw))
	}
	return v, nil
}
