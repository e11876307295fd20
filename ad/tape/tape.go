// Package tape holds the immutable operation sequence produced by a
// recording. A Tape is the player side of the recorder/player pair: it
// offers random access iteration over the recorded opcodes and a mapping
// from variable indices back to the operator that produced them.
package tape

import (
	"github.com/difftape/difftape/ad/op"
	"github.com/pkg/errors"
)

// A Def carries the raw arrays assembled by a recorder. New validates a Def
// and freezes it into a Tape.
type Def struct {
	Ops   []op.Op // opcode sequence, Begin first, End last
	ArgIx []int   // per-op offset into Args
	Args  []int   // argument slots, consumed op by op
	Pars  []float64

	IndTaddr []int  // independent variable indices, declaration order
	DepTaddr []int  // dependent variable indices
	DepParam []bool // parallel to DepTaddr: dependent was a constant

	VecOff  []int // per tape vector, offset of its initializer run in VecInit
	VecInit []int // parameter index per initial vector slot
}

// A Tape is an immutable operation sequence. All mutation happens in the
// recorder before New; afterwards a Tape is safe for concurrent readers.
type Tape struct {
	def     Def
	resVid  []int // per-op primary result variable, -1 when none
	var2op  []int
	numVar  int
	numLoad int // count of VecLoad ops, for per-load caches
}

// New validates d and returns the finished tape. The returned error is nil
// only if every structural invariant holds: sentinel placement, argument
// indices referring to earlier variables, balanced atomic-call brackets and
// a consistent variable count.
func New(d Def) (*Tape, error) {
	n := len(d.Ops)
	if n < 2 || d.Ops[0] != op.Begin || d.Ops[n-1] != op.End {
		return nil, errors.New("tape: operation sequence must start with begin and finish with end")
	}
	if len(d.ArgIx) != n {
		return nil, errors.Errorf("tape: have %d argument offsets for %d operators", len(d.ArgIx), n)
	}

	t := &Tape{
		def:    d,
		resVid: make([]int, n),
	}

	numVar := 0
	inUser := false
	for i := 0; i < n; i++ {
		o := d.Ops[i]
		if op.NumArg(o) > 0 && d.ArgIx[i]+op.NumArg(o) > len(d.Args) {
			return nil, errors.Errorf("tape: operator %d (%s) arguments out of bounds", i, o)
		}
		args := d.Args[d.ArgIx[i] : d.ArgIx[i]+op.NumArg(o)]

		switch o {
		case op.Inv:
			if i-1 >= len(d.IndTaddr) || i != d.IndTaddr[i-1] {
				return nil, errors.Errorf("tape: inv operator %d outside the leading independent block", i)
			}
		case op.User:
			inUser = !inUser
		case op.UsrAp, op.UsrAv, op.UsrRp, op.UsrRv:
			if !inUser {
				return nil, errors.Errorf("tape: %s operator %d outside an atomic call bracket", o, i)
			}
		default:
			if inUser {
				return nil, errors.Errorf("tape: %s operator %d inside an atomic call bracket", o, i)
			}
		}

		mask := op.ArgIsVariable(o, args)
		for j, a := range args {
			switch {
			case mask&(1<<uint(j)) != 0:
				if a >= numVar {
					return nil, errors.Errorf("tape: operator %d (%s) refers to variable %d before it is produced", i, o, a)
				}
			case isParArg(o, j):
				if a < 0 || a >= len(d.Pars) {
					return nil, errors.Errorf("tape: operator %d (%s) parameter index %d out of range", i, o, a)
				}
			}
		}

		if r := op.NumRes(o); r > 0 {
			numVar += r
			t.resVid[i] = numVar - 1
		} else {
			t.resVid[i] = -1
		}
		if o == op.VecLoad {
			t.numLoad++
		}
	}
	if inUser {
		return nil, errors.New("tape: unbalanced atomic call bracket")
	}
	if c := countOps(d.Ops, op.Inv); c != len(d.IndTaddr) {
		return nil, errors.Errorf("tape: %d inv operators for %d independents", c, len(d.IndTaddr))
	}
	if len(d.DepParam) != len(d.DepTaddr) {
		return nil, errors.New("tape: dependent parameter flags do not match dependents")
	}
	for _, v := range d.DepTaddr {
		if v < 0 || v >= numVar {
			return nil, errors.Errorf("tape: dependent variable %d out of range", v)
		}
	}
	t.numVar = numVar

	t.var2op = make([]int, numVar)
	for i := 0; i < n; i++ {
		if v := t.resVid[i]; v >= 0 {
			for k := 0; k < op.NumRes(d.Ops[i]); k++ {
				t.var2op[v-k] = i
			}
		}
	}
	return t, nil
}

func countOps(ops []op.Op, o op.Op) int {
	n := 0
	for _, oo := range ops {
		if oo == o {
			n++
		}
	}
	return n
}

// isParArg reports whether argument slot j of o holds a parameter index
// when it does not hold a variable index. Flag and auxiliary slots (vector
// ids, atom ids, counts, recorded comparison results) are neither.
func isParArg(o op.Op, j int) bool {
	switch o {
	case op.Par, op.UsrAp, op.UsrRp:
		return j == 0
	case op.AddVV, op.AddPV, op.SubVV, op.SubVP, op.SubPV,
		op.MulVV, op.MulPV, op.DivVV, op.DivVP, op.DivPV:
		return true // non-variable operand slots are parameters
	case op.Eq, op.Lt, op.Le:
		return j == 1 || j == 2
	case op.CondExpLt, op.CondExpLe, op.CondExpEq, op.CondExpGe, op.CondExpGt:
		return j >= 1
	case op.VecLoad:
		return j == 2
	case op.VecStore:
		return j >= 2
	}
	return false
}

// NumOp returns the number of operators on the tape.
func (t *Tape) NumOp() int { return len(t.def.Ops) }

// NumVar returns the number of variables allocated by the recording,
// including the begin sentinel's variable 0.
func (t *Tape) NumVar() int { return t.numVar }

// NumPar returns the size of the parameter pool.
func (t *Tape) NumPar() int { return len(t.def.Pars) }

// NumVec returns the number of tape vectors.
func (t *Tape) NumVec() int { return len(t.def.VecOff) }

// NumLoad returns the number of VecLoad operators on the tape.
func (t *Tape) NumLoad() int { return t.numLoad }

// Op returns the opcode of operator i.
func (t *Tape) Op(i int) op.Op { return t.def.Ops[i] }

// OpInfo returns operator i's opcode, its argument slots and the index of
// its primary result variable (-1 when the operator allocates none). The
// returned slice aliases tape storage and must not be modified.
func (t *Tape) OpInfo(i int) (op.Op, []int, int) {
	o := t.def.Ops[i]
	ai := t.def.ArgIx[i]
	return o, t.def.Args[ai : ai+op.NumArg(o)], t.resVid[i]
}

// Var2Op returns the index of the operator that produced variable v.
func (t *Tape) Var2Op(v int) int { return t.var2op[v] }

// Par returns parameter i.
func (t *Tape) Par(i int) float64 { return t.def.Pars[i] }

// IndTaddr returns the variable indices of the independents in declaration
// order. The slice aliases tape storage.
func (t *Tape) IndTaddr() []int { return t.def.IndTaddr }

// DepTaddr returns the variable indices of the dependents. The slice
// aliases tape storage.
func (t *Tape) DepTaddr() []int { return t.def.DepTaddr }

// DepIsParameter reports whether dependent i was a constant when captured.
func (t *Tape) DepIsParameter(i int) bool { return t.def.DepParam[i] }

// VecLen returns the length of tape vector v.
func (t *Tape) VecLen(v int) int {
	if v+1 < len(t.def.VecOff) {
		return t.def.VecOff[v+1] - t.def.VecOff[v]
	}
	return len(t.def.VecInit) - t.def.VecOff[v]
}

// VecInitPar returns the parameter index initializing slot j of vector v.
func (t *Tape) VecInitPar(v, j int) int {
	return t.def.VecInit[t.def.VecOff[v]+j]
}

// Memory returns the bytes held by the tape arrays.
func (t *Tape) Memory() int {
	const intSize = 8
	return len(t.def.Ops) +
		intSize*(len(t.def.ArgIx)+len(t.def.Args)+len(t.def.IndTaddr)+
			len(t.def.DepTaddr)+len(t.def.VecOff)+len(t.def.VecInit)+
			len(t.resVid)+len(t.var2op)) +
		8*len(t.def.Pars) +
		len(t.def.DepParam)
}
