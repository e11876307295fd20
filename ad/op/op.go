// Package op defines the catalog of elementary operations that can appear
// on a recorded tape: each opcode's argument count, result count, and which
// of its argument slots hold variable indices (as opposed to parameter or
// auxiliary indices).
package op

import "fmt"

// An Op identifies one elementary operation on a tape.
type Op uint8

//nolint:revive
const (
	// structural
	Begin Op = iota // start sentinel, owns variable index 0
	End             // end sentinel
	Inv             // independent variable
	Par             // materialize parameter <par> as a variable

	// binary arithmetic; the suffix states which operands are variables (v)
	// and which are parameters (p). Both-parameter forms are folded into the
	// parameter pool at record time and never appear on a tape. Addition and
	// multiplication normalize vp to pv by commutativity.
	AddVV // v + v
	AddPV // p + v
	SubVV // v - v
	SubVP // v - p
	SubPV // p - v
	MulVV // v * v
	MulPV // p * v
	DivVV // v / v
	DivVP // v / p
	DivPV // p / v

	// unary, one result
	Neg
	Abs
	Sign
	Sqrt
	Exp
	Log

	// unary, two results: the companion occupies the slot just below the
	// primary result (primary at vid, companion at vid-1)
	Sin   // primary sin(x), companion cos(x)
	Cos   // primary cos(x), companion sin(x)
	Tan   // primary tan(x), companion tan(x)^2
	Asin  // primary asin(x), companion sqrt(1-x^2)
	Acos  // primary acos(x), companion sqrt(1-x^2)
	Atan  // primary atan(x), companion 1+x^2
	Sinh  // primary sinh(x), companion cosh(x)
	Cosh  // primary cosh(x), companion sinh(x)
	Tanh  // primary tanh(x), companion tanh(x)^2
	Asinh // primary asinh(x), companion sqrt(1+x^2)
	Acosh // primary acosh(x), companion sqrt(x^2-1)
	Atanh // primary atanh(x), companion 1-x^2

	// comparisons: no result variable, record the sign of the predicate so
	// later forward sweeps can detect that a branch changed.
	// args: [flags, left, right, recorded] with recorded in {0,1}.
	Eq
	Lt
	Le

	// conditional expressions: select between ifTrue and ifFalse based on
	// the live order-0 comparison of condLeft and condRight.
	// args: [flags, condLeft, condRight, ifTrue, ifFalse].
	CondExpLt
	CondExpLe
	CondExpEq
	CondExpGe
	CondExpGt

	// tape vectors with possibly-variable indices.
	// VecLoad args: [vec, flags, index]; VecStore args: [vec, flags, index, value].
	VecLoad
	VecStore

	// atomic call boundary. A call is bracketed by two User ops; between
	// them only argument markers (UsrAp, UsrAv) followed by result markers
	// (UsrRp, UsrRv) appear.
	// User args: [atom, nIn, nOut]; UsrAp/UsrRp args: [par]; UsrAv args: [vid].
	User
	UsrAp
	UsrAv
	UsrRp
	UsrRv

	maxOp
)

var opNames = [...]string{
	Begin:     "begin",
	End:       "end",
	Inv:       "inv",
	Par:       "par",
	AddVV:     "addvv",
	AddPV:     "addpv",
	SubVV:     "subvv",
	SubVP:     "subvp",
	SubPV:     "subpv",
	MulVV:     "mulvv",
	MulPV:     "mulpv",
	DivVV:     "divvv",
	DivVP:     "divvp",
	DivPV:     "divpv",
	Neg:       "neg",
	Abs:       "abs",
	Sign:      "sign",
	Sqrt:      "sqrt",
	Exp:       "exp",
	Log:       "log",
	Sin:       "sin",
	Cos:       "cos",
	Tan:       "tan",
	Asin:      "asin",
	Acos:      "acos",
	Atan:      "atan",
	Sinh:      "sinh",
	Cosh:      "cosh",
	Tanh:      "tanh",
	Asinh:     "asinh",
	Acosh:     "acosh",
	Atanh:     "atanh",
	Eq:        "eq",
	Lt:        "lt",
	Le:        "le",
	CondExpLt: "cexplt",
	CondExpLe: "cexple",
	CondExpEq: "cexpeq",
	CondExpGe: "cexpge",
	CondExpGt: "cexpgt",
	VecLoad:   "vecld",
	VecStore:  "vecst",
	User:      "user",
	UsrAp:     "usrap",
	UsrAv:     "usrav",
	UsrRp:     "usrrp",
	UsrRv:     "usrrv",
}

// numArg records the number of argument slots consumed by each opcode.
var numArg = [...]int{
	Begin:     0,
	End:       0,
	Inv:       0,
	Par:       1,
	AddVV:     2,
	AddPV:     2,
	SubVV:     2,
	SubVP:     2,
	SubPV:     2,
	MulVV:     2,
	MulPV:     2,
	DivVV:     2,
	DivVP:     2,
	DivPV:     2,
	Neg:       1,
	Abs:       1,
	Sign:      1,
	Sqrt:      1,
	Exp:       1,
	Log:       1,
	Sin:       1,
	Cos:       1,
	Tan:       1,
	Asin:      1,
	Acos:      1,
	Atan:      1,
	Sinh:      1,
	Cosh:      1,
	Tanh:      1,
	Asinh:     1,
	Acosh:     1,
	Atanh:     1,
	Eq:        4,
	Lt:        4,
	Le:        4,
	CondExpLt: 5,
	CondExpLe: 5,
	CondExpEq: 5,
	CondExpGe: 5,
	CondExpGt: 5,
	VecLoad:   3,
	VecStore:  4,
	User:      3,
	UsrAp:     1,
	UsrAv:     1,
	UsrRp:     1,
	UsrRv:     0,
}

// numRes records the number of result variables allocated by each opcode.
var numRes = [...]int{
	Begin:     1,
	End:       0,
	Inv:       1,
	Par:       1,
	AddVV:     1,
	AddPV:     1,
	SubVV:     1,
	SubVP:     1,
	SubPV:     1,
	MulVV:     1,
	MulPV:     1,
	DivVV:     1,
	DivVP:     1,
	DivPV:     1,
	Neg:       1,
	Abs:       1,
	Sign:      1,
	Sqrt:      1,
	Exp:       1,
	Log:       1,
	Sin:       2,
	Cos:       2,
	Tan:       2,
	Asin:      2,
	Acos:      2,
	Atan:      2,
	Sinh:      2,
	Cosh:      2,
	Tanh:      2,
	Asinh:     2,
	Acosh:     2,
	Atanh:     2,
	Eq:        0,
	Lt:        0,
	Le:        0,
	CondExpLt: 1,
	CondExpLe: 1,
	CondExpEq: 1,
	CondExpGe: 1,
	CondExpGt: 1,
	VecLoad:   1,
	VecStore:  0,
	User:      0,
	UsrAp:     0,
	UsrAv:     0,
	UsrRp:     0,
	UsrRv:     1,
}

// NumArg returns the number of argument slots consumed by op.
func NumArg(o Op) int { return numArg[o] }

// NumRes returns the number of result variables allocated by op.
func NumRes(o Op) int { return numRes[o] }

// ArgIsVariable returns a bitmask over the argument slots of o: bit j is
// set iff args[j] holds a variable index. For opcodes with a flags slot
// (comparisons, conditional expressions, tape vectors) the mask depends on
// the recorded flags.
func ArgIsVariable(o Op, args []int) uint {
	switch o {
	case AddVV, SubVV, MulVV, DivVV:
		return 0b11
	case AddPV, SubPV, MulPV, DivPV:
		return 0b10
	case SubVP, DivVP:
		return 0b01
	case Neg, Abs, Sign, Sqrt, Exp, Log,
		Sin, Cos, Tan, Asin, Acos, Atan,
		Sinh, Cosh, Tanh, Asinh, Acosh, Atanh:
		return 0b1
	case Eq, Lt, Le:
		// flags bits 0,1 describe args[1], args[2]
		return uint(args[0]&0b11) << 1
	case CondExpLt, CondExpLe, CondExpEq, CondExpGe, CondExpGt:
		// flags bits 0..3 describe args[1..4]
		return uint(args[0]&0b1111) << 1
	case VecLoad:
		// flags bit 0 describes the index slot args[2]
		return uint(args[1]&0b1) << 2
	case VecStore:
		// flags bits 0,1 describe args[2] (index) and args[3] (value)
		return uint(args[1]&0b11) << 2
	case UsrAv:
		return 0b1
	}
	return 0
}

// HasCompanion reports whether o allocates a companion result in the slot
// just below its primary result variable.
func HasCompanion(o Op) bool { return numRes[o] == 2 }

// IsCompare reports whether o is a comparison opcode (no result variable,
// participates in the compare-change count).
func IsCompare(o Op) bool { return o == Eq || o == Lt || o == Le }

// IsCondExp reports whether o is a conditional expression opcode.
func IsCondExp(o Op) bool { return o >= CondExpLt && o <= CondExpGt }

// IsUser reports whether o belongs to an atomic call bracket.
func IsUser(o Op) bool { return o >= User && o <= UsrRv }

func (o Op) String() string {
	if o < maxOp {
		if name := opNames[o]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("illegal op (%d)", uint8(o))
}
