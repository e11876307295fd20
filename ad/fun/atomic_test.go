package fun_test

import (
	"testing"

	"github.com/difftape/difftape/ad/fun"
	"github.com/difftape/difftape/ad/record"
	"github.com/difftape/difftape/internal/difftest"
	"github.com/stretchr/testify/require"
)

// mulAtom is a two-input one-output atomic function computing x0*x1, with
// full forward, reverse and sparsity hooks.
type mulAtom struct{}

func (mulAtom) Name() string { return "mulatom" }
func (mulAtom) NumIn() int   { return 2 }
func (mulAtom) NumOut() int  { return 1 }

func (mulAtom) Forward(order int, tx, ty [][]float64) error {
	s := 0.0
	for k := 0; k <= order; k++ {
		s += tx[0][k] * tx[1][order-k]
	}
	ty[0][order] = s
	return nil
}

func (mulAtom) Reverse(order int, tx, ty, px, py [][]float64) error {
	for p := order; p >= 0; p-- {
		a := py[0][p]
		for k := 0; k <= p; k++ {
			px[0][k] += a * tx[1][p-k]
			px[1][p-k] += a * tx[0][k]
		}
	}
	return nil
}

func (mulAtom) ForSparseJac(q int, rx [][]bool) ([][]bool, error) {
	ry := make([][]bool, 1)
	ry[0] = make([]bool, q)
	for k := 0; k < q; k++ {
		ry[0][k] = rx[0][k] || rx[1][k]
	}
	return ry, nil
}

func (mulAtom) RevSparseJac(q int, ry [][]bool) ([][]bool, error) {
	rx := make([][]bool, 2)
	for i := range rx {
		rx[i] = append([]bool(nil), ry[0]...)
	}
	return rx, nil
}

func (mulAtom) RevSparseHes(q int, s []bool, hy [][]bool, rx [][]bool) ([]bool, [][]bool, error) {
	st := []bool{s[0], s[0]}
	hx := make([][]bool, 2)
	for i := range hx {
		hx[i] = append([]bool(nil), hy[0]...)
		if s[0] {
			for k := 0; k < q; k++ {
				hx[i][k] = hx[i][k] || rx[1-i][k]
			}
		}
	}
	return st, hx, nil
}

func recordAtomicProduct(t *testing.T, x []float64) *fun.Fun {
	t.Helper()
	return difftest.Record(t, x, func(r *record.Recorder, xs []record.Num) []record.Num {
		ys, err := r.AtomicCall(mulAtom{}, xs)
		require.NoError(t, err)
		return ys
	})
}

func TestAtomicForwardReverse(t *testing.T) {
	x := []float64{3, 5}
	f := recordAtomicProduct(t, x)

	y, err := f.Forward(0, x)
	require.NoError(t, err)
	require.Equal(t, 15.0, y[0])

	dy, err := f.Forward(1, []float64{1, 0})
	require.NoError(t, err)
	require.Equal(t, 5.0, dy[0])

	// second order along e0: x0*x1 is linear in each argument
	dy, err = f.Forward(2, []float64{0, 0})
	require.NoError(t, err)
	require.Equal(t, 0.0, dy[0])

	dx, err := f.Reverse(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, []float64{5, 3}, dx)
}

func TestAtomicSparsity(t *testing.T) {
	f := recordAtomicProduct(t, []float64{3, 5})

	px := []bool{true, false, false, true}
	py, err := f.ForSparseJac(2, px)
	require.NoError(t, err)
	require.Equal(t, []bool{true, true}, py)

	h, err := f.RevSparseHes(2, []bool{true})
	require.NoError(t, err)
	// cross terms only: d2y/dx0dx1 nonzero, pure seconds zero
	require.Equal(t, []bool{false, true, true, false}, h)
}
