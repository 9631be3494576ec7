package calc

import (
	"encoding/json"
	"math"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Number is a float64 that encodes NaN and ±Inf as JSON null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// MathResult is the body of a successful arithmetic reply.
type MathResult struct {
	Operation Operation `json:"operation"`
	A         Number    `json:"a"`
	B         Number    `json:"b"`
	Result    Number    `json:"result"`
}

// NewResult evaluates op over p and packages operands and result.
func NewResult(op Operation, p MathParams) MathResult {
	return MathResult{
		Operation: op,
		A:         Number(p.A),
		B:         Number(p.B),
		Result:    Number(Evaluate(op, p.A, p.B)),
	}
}

// ToProto converts the result into a google.protobuf.Struct with the same
// field names as the JSON form.
func (r MathResult) ToProto() (proto.Message, error) {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"operation": structpb.NewStringValue(string(r.Operation)),
			"a":         structpb.NewNumberValue(float64(r.A)),
			"b":         structpb.NewNumberValue(float64(r.B)),
			"result":    structpb.NewNumberValue(float64(r.Result)),
		},
	}, nil
}
