package record

import (
	"math"

	"github.com/difftape/difftape/ad/op"
	"github.com/pkg/errors"
)

// A Num is the differentiable scalar: either a constant, or a variable
// bound to the recording that produced it. Operations on Num values are
// observed by the recorder while a recording window is open.
type Num struct {
	r   *Recorder
	vid int // 0 when the value is a constant
	val float64
}

// C returns a constant Num. Constants never carry derivatives; they join
// the tape's parameter pool only when combined with a variable.
func C(v float64) Num { return Num{val: v} }

// Value returns the order-0 value as computed while recording.
func (a Num) Value() float64 { return a.val }

// IsVariable reports whether a is bound to a tape variable.
func (a Num) IsVariable() bool { return a.vid != 0 }

// rec returns the recorder shared by the operands, or nil when all are
// constants. Mixing variables from two recordings is a usage error.
func rec(a, b Num) *Recorder {
	switch {
	case a.vid != 0 && b.vid != 0:
		if a.r != b.r {
			a.r.fail(errOtherRecording)
		}
		return a.r
	case a.vid != 0:
		return a.r
	case b.vid != 0:
		return b.r
	}
	return nil
}

var errOtherRecording = errors.New("record: operands belong to different recordings")

// Add returns a + b.
func (a Num) Add(b Num) Num {
	r := rec(a, b)
	v := a.val + b.val
	switch {
	case r == nil:
		return C(v)
	case a.vid != 0 && b.vid != 0:
		return Num{r: r, vid: r.emit(op.AddVV, a.vid, b.vid), val: v}
	case a.vid != 0:
		// vp normalized to pv by commutativity
		return Num{r: r, vid: r.emit(op.AddPV, r.par(b.val), a.vid), val: v}
	default:
		return Num{r: r, vid: r.emit(op.AddPV, r.par(a.val), b.vid), val: v}
	}
}

// Sub returns a - b.
func (a Num) Sub(b Num) Num {
	r := rec(a, b)
	v := a.val - b.val
	switch {
	case r == nil:
		return C(v)
	case a.vid != 0 && b.vid != 0:
		return Num{r: r, vid: r.emit(op.SubVV, a.vid, b.vid), val: v}
	case a.vid != 0:
		return Num{r: r, vid: r.emit(op.SubVP, a.vid, r.par(b.val)), val: v}
	default:
		return Num{r: r, vid: r.emit(op.SubPV, r.par(a.val), b.vid), val: v}
	}
}

// Mul returns a * b.
func (a Num) Mul(b Num) Num {
	r := rec(a, b)
	v := a.val * b.val
	switch {
	case r == nil:
		return C(v)
	case a.vid != 0 && b.vid != 0:
		return Num{r: r, vid: r.emit(op.MulVV, a.vid, b.vid), val: v}
	case a.vid != 0:
		return Num{r: r, vid: r.emit(op.MulPV, r.par(b.val), a.vid), val: v}
	default:
		return Num{r: r, vid: r.emit(op.MulPV, r.par(a.val), b.vid), val: v}
	}
}

// Div returns a / b. Dividing by a zero constant propagates Inf/NaN through
// the value channel.
func (a Num) Div(b Num) Num {
	r := rec(a, b)
	v := a.val / b.val
	switch {
	case r == nil:
		return C(v)
	case a.vid != 0 && b.vid != 0:
		return Num{r: r, vid: r.emit(op.DivVV, a.vid, b.vid), val: v}
	case a.vid != 0:
		return Num{r: r, vid: r.emit(op.DivVP, a.vid, r.par(b.val)), val: v}
	default:
		return Num{r: r, vid: r.emit(op.DivPV, r.par(a.val), b.vid), val: v}
	}
}

// unary records a one-result or two-result unary operator, folding
// constants eagerly.
func unary(a Num, o op.Op, f func(float64) float64) Num {
	v := f(a.val)
	if a.vid == 0 {
		return C(v)
	}
	return Num{r: a.r, vid: a.r.emit(o, a.vid), val: v}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// Neg returns -a.
func Neg(a Num) Num { return unary(a, op.Neg, func(x float64) float64 { return -x }) }

// Abs returns |a|.
func Abs(a Num) Num { return unary(a, op.Abs, math.Abs) }

// Sign returns -1, 0 or 1 according to the sign of a. Its derivative is
// zero everywhere it is defined.
func Sign(a Num) Num { return unary(a, op.Sign, sign) }

// Sqrt returns the square root of a.
func Sqrt(a Num) Num { return unary(a, op.Sqrt, math.Sqrt) }

// Exp returns e**a.
func Exp(a Num) Num { return unary(a, op.Exp, math.Exp) }

// Log returns the natural logarithm of a.
func Log(a Num) Num { return unary(a, op.Log, math.Log) }

// Sin returns the sine of a.
func Sin(a Num) Num { return unary(a, op.Sin, math.Sin) }

// Cos returns the cosine of a.
func Cos(a Num) Num { return unary(a, op.Cos, math.Cos) }

// Tan returns the tangent of a.
func Tan(a Num) Num { return unary(a, op.Tan, math.Tan) }

// Asin returns the arcsine of a.
func Asin(a Num) Num { return unary(a, op.Asin, math.Asin) }

// Acos returns the arccosine of a.
func Acos(a Num) Num { return unary(a, op.Acos, math.Acos) }

// Atan returns the arctangent of a.
func Atan(a Num) Num { return unary(a, op.Atan, math.Atan) }

// Sinh returns the hyperbolic sine of a.
func Sinh(a Num) Num { return unary(a, op.Sinh, math.Sinh) }

// Cosh returns the hyperbolic cosine of a.
func Cosh(a Num) Num { return unary(a, op.Cosh, math.Cosh) }

// Tanh returns the hyperbolic tangent of a.
func Tanh(a Num) Num { return unary(a, op.Tanh, math.Tanh) }

// Asinh returns the inverse hyperbolic sine of a.
func Asinh(a Num) Num { return unary(a, op.Asinh, math.Asinh) }

// Acosh returns the inverse hyperbolic cosine of a.
func Acosh(a Num) Num { return unary(a, op.Acosh, math.Acosh) }

// Atanh returns the inverse hyperbolic tangent of a.
func Atanh(a Num) Num { return unary(a, op.Atanh, math.Atanh) }

// compare records a comparison operator with its live outcome so a later
// forward sweep can detect branch inversion. Comparisons allocate no
// result variable.
func compare(a, b Num, o op.Op, res bool) bool {
	r := rec(a, b)
	if r == nil {
		return res
	}
	flags := 0
	la, ra := r.operand(a), r.operand(b)
	if a.vid != 0 {
		flags |= 1
	}
	if b.vid != 0 {
		flags |= 2
	}
	rec01 := 0
	if res {
		rec01 = 1
	}
	r.emit(o, flags, la, ra, rec01)
	return res
}

// operand returns the argument slot for a: its variable index, or its
// parameter pool index.
func (r *Recorder) operand(a Num) int {
	if a.vid != 0 {
		return a.vid
	}
	return r.par(a.val)
}

// Eq records and returns a == b.
func (a Num) Eq(b Num) bool { return compare(a, b, op.Eq, a.val == b.val) }

// Lt records and returns a < b.
func (a Num) Lt(b Num) bool { return compare(a, b, op.Lt, a.val < b.val) }

// Le records and returns a <= b.
func (a Num) Le(b Num) bool { return compare(a, b, op.Le, a.val <= b.val) }

// condExp records a conditional expression. When at least one operand is a
// variable the result is a new variable, whichever of the others are
// constants, so replays can re-select. When all four operands are constants
// nothing is recorded and the selected constant is returned.
func condExp(o op.Op, cl, cr, ift, iff Num, live bool) Num {
	r := rec(rec2(cl, cr), rec2(ift, iff))
	v := iff.val
	if live {
		v = ift.val
	}
	if r == nil {
		return C(v)
	}
	flags := 0
	for i, n := range [...]Num{cl, cr, ift, iff} {
		if n.vid != 0 {
			flags |= 1 << uint(i)
		}
	}
	vid := r.emit(o, flags, r.operand(cl), r.operand(cr), r.operand(ift), r.operand(iff))
	return Num{r: r, vid: vid, val: v}
}

// rec2 folds two Nums into one carrying whichever recorder is bound.
func rec2(a, b Num) Num {
	if a.vid != 0 {
		return a
	}
	return b
}

// CondExpLt returns ifTrue when cl < cr, ifFalse otherwise, re-evaluated on
// every forward replay from the live order-0 values.
func CondExpLt(cl, cr, ifTrue, ifFalse Num) Num {
	return condExp(op.CondExpLt, cl, cr, ifTrue, ifFalse, cl.val < cr.val)
}

// CondExpLe returns ifTrue when cl <= cr, ifFalse otherwise.
func CondExpLe(cl, cr, ifTrue, ifFalse Num) Num {
	return condExp(op.CondExpLe, cl, cr, ifTrue, ifFalse, cl.val <= cr.val)
}

// CondExpEq returns ifTrue when cl == cr, ifFalse otherwise.
func CondExpEq(cl, cr, ifTrue, ifFalse Num) Num {
	return condExp(op.CondExpEq, cl, cr, ifTrue, ifFalse, cl.val == cr.val)
}

// CondExpGe returns ifTrue when cl >= cr, ifFalse otherwise.
func CondExpGe(cl, cr, ifTrue, ifFalse Num) Num {
	return condExp(op.CondExpGe, cl, cr, ifTrue, ifFalse, cl.val >= cr.val)
}

// CondExpGt returns ifTrue when cl > cr, ifFalse otherwise.
func CondExpGt(cl, cr, ifTrue, ifFalse Num) Num {
	return condExp(op.CondExpGt, cl, cr, ifTrue, ifFalse, cl.val > cr.val)
}
