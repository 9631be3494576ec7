package calc

import "fmt"

// Operation names an arithmetic operation. The value is what clients see
// in the operation field of a result.
type Operation string

const (
	Addition    Operation = "addition"
	Subtraction Operation = "subtraction"
)

var evaluators = map[Operation]func(a, b float64) float64{
	Addition:    func(a, b float64) float64 { return a + b },
	Subtraction: func(a, b float64) float64 { return a - b },
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	_, ok := evaluators[op]
	return ok
}

// Evaluate applies op to a and b with plain float64 arithmetic; NaN and
// Inf propagate. It panics on an unknown operation.
func Evaluate(op Operation, a, b float64) float64 {
	fn, ok := evaluators[op]
	if !ok {
		panic(fmt.Sprintf("calc: unknown operation %q", string(op)))
	}
	return fn(a, b)
}
