// Package fun implements the function object that owns a recorded tape and
// replays it: forward and reverse Taylor sweeps, Jacobian and Hessian
// sparsity sweeps, and the dense convenience drivers built on them.
package fun

import (
	"github.com/difftape/difftape/ad/op"
	"github.com/difftape/difftape/ad/sparse"
	"github.com/difftape/difftape/ad/tape"
	"github.com/pkg/errors"
)

// A Fun owns an immutable tape together with the mutable per-variable
// Taylor coefficients and sparsity caches produced by sweeps. A Fun must
// not be swept from two goroutines at once; distinct Funs are independent.
type Fun struct {
	t *tape.Tape

	// dense Taylor store: coefficient k of variable v lives at
	// taylor[v*taylorCap+k]; orders 0..perVar-1 are valid for every v.
	taylor    []float64
	taylorCap int
	perVar    int

	compareChange int

	// per-VecLoad resolved source, filled by the order-0 sweep; positive
	// values are variable indices, negative values encode -(par+1).
	loadSrc []int
	loadIx  []int // op index -> VecLoad ordinal, -1 otherwise

	// forward Jacobian sparsity cache, consumed by RevSparseHes
	forJac  sparse.PackSetVec
	forJacQ int
}

// New adopts t and returns a function object with no Taylor coefficients
// stored yet.
func New(t *tape.Tape) *Fun {
	f := &Fun{
		t:       t,
		loadSrc: make([]int, t.NumLoad()),
		loadIx:  make([]int, t.NumOp()),
	}
	k := 0
	for i := 0; i < t.NumOp(); i++ {
		f.loadIx[i] = -1
		if t.Op(i) == op.VecLoad {
			f.loadIx[i] = k
			k++
		}
	}
	return f
}

// Tape returns the owned tape (read-only).
func (f *Fun) Tape() *tape.Tape { return f.t }

// Domain returns the number of independent variables.
func (f *Fun) Domain() int { return len(f.t.IndTaddr()) }

// Range returns the number of dependent variables.
func (f *Fun) Range() int { return len(f.t.DepTaddr()) }

// SizeVar returns the number of variables in the operation sequence.
func (f *Fun) SizeVar() int { return f.t.NumVar() }

// TaylorSize returns the number of Taylor coefficients currently stored
// per variable (highest computed order plus one).
func (f *Fun) TaylorSize() int { return f.perVar }

// UseVecTape reports whether the operation sequence uses tape vectors.
func (f *Fun) UseVecTape() bool { return f.t.NumVec() > 0 }

// Parameter reports whether dependent i was a constant when recorded.
func (f *Fun) Parameter(i int) (bool, error) {
	if i < 0 || i >= f.Range() {
		return false, errors.Errorf("fun: dependent index %d out of range [0, %d)", i, f.Range())
	}
	return f.t.DepIsParameter(i), nil
}

// CompareChange returns the number of comparison operators whose predicate
// sign differed from the recorded sign during the most recent order-0
// forward sweep.
func (f *Fun) CompareChange() int { return f.compareChange }

// Memory returns the bytes held by the tape, the Taylor store and the
// sparsity cache.
func (f *Fun) Memory() int {
	return f.t.Memory() + 8*cap(f.taylor) + f.forJac.Memory()
}

// ShrinkTaylor drops all stored Taylor coefficients and releases their
// storage.
func (f *Fun) ShrinkTaylor() {
	f.taylor = nil
	f.taylorCap = 0
	f.perVar = 0
}

// ShrinkSparsity drops the cached forward Jacobian sparsity.
func (f *Fun) ShrinkSparsity() {
	f.forJac.Free()
	f.forJacQ = 0
}

// ty reads Taylor coefficient k of variable v.
func (f *Fun) ty(v, k int) float64 { return f.taylor[v*f.taylorCap+k] }

// sety writes Taylor coefficient k of variable v.
func (f *Fun) sety(v, k int, x float64) { f.taylor[v*f.taylorCap+k] = x }

// argc reads Taylor coefficient k of an argument slot that holds either a
// variable index or a parameter index; parameters are constant in t.
func (f *Fun) argc(isVar bool, a, k int) float64 {
	if isVar {
		return f.ty(a, k)
	}
	if k == 0 {
		return f.t.Par(a)
	}
	return 0
}

// growTaylor makes room for orders 0..orderCap-1, preserving the
// coefficients already stored.
func (f *Fun) growTaylor(orderCap int) {
	if orderCap <= f.taylorCap {
		return
	}
	nv := f.t.NumVar()
	nt := make([]float64, nv*orderCap)
	for v := 0; v < nv; v++ {
		copy(nt[v*orderCap:], f.taylor[v*f.taylorCap:v*f.taylorCap+f.perVar])
	}
	f.taylor = nt
	f.taylorCap = orderCap
}

// Jacobian evaluates the dense m x n Jacobian of the recorded function at
// x, choosing forward or reverse mode by the shape of the function. The
// result is row-major.
func (f *Fun) Jacobian(x []float64) ([]float64, error) {
	n, m := f.Domain(), f.Range()
	if _, err := f.Forward(0, x); err != nil {
		return nil, err
	}
	jac := make([]float64, m*n)
	if n >= m {
		w := make([]float64, m)
		for i := 0; i < m; i++ {
			w[i] = 1
			dx, err := f.Reverse(1, w)
			if err != nil {
				return nil, err
			}
			w[i] = 0
			copy(jac[i*n:(i+1)*n], dx)
		}
		return jac, nil
	}
	u := make([]float64, n)
	for j := 0; j < n; j++ {
		u[j] = 1
		dy, err := f.Forward(1, u)
		if err != nil {
			return nil, err
		}
		u[j] = 0
		for i := 0; i < m; i++ {
			jac[i*n+j] = dy[i]
		}
	}
	return jac, nil
}

// Hessian evaluates the dense n x n Hessian of range component i at x,
// row-major, by one first-order forward sweep per column and a
// second-order reverse sweep.
func (f *Fun) Hessian(x []float64, i int) ([]float64, error) {
	n, m := f.Domain(), f.Range()
	if i < 0 || i >= m {
		return nil, errors.Errorf("fun: range index %d out of range [0, %d)", i, m)
	}
	if _, err := f.Forward(0, x); err != nil {
		return nil, err
	}
	hes := make([]float64, n*n)
	u := make([]float64, n)
	w := make([]float64, m*2)
	w[i*2+1] = 1 // weight the order-1 coefficient of dependent i
	for j := 0; j < n; j++ {
		u[j] = 1
		if _, err := f.Forward(1, u); err != nil {
			return nil, err
		}
		u[j] = 0
		dw, err := f.Reverse(2, w)
		if err != nil {
			return nil, err
		}
		// dw[k*2] is the derivative of the weighted order-1 coefficient
		// with respect to independent k, i.e. column j of the Hessian.
		for k := 0; k < n; k++ {
			hes[k*n+j] = dw[k*2]
		}
	}
	return hes, nil
}
