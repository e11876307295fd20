package subgraph_test

import (
	"testing"

	"github.com/difftape/difftape/ad/record"
	"github.com/difftape/difftape/ad/subgraph"
	"github.com/difftape/difftape/internal/difftest"
	"github.com/stretchr/testify/require"
)

func all(n int) []bool {
	b := make([]bool, n)
	for i := range b {
		b[i] = true
	}
	return b
}

func TestDepSparsityFull(t *testing.T) {
	f := difftest.Record(t, []float64{1, 2, 3}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[2]), xs[1].Add(xs[2])}
	})
	row, col, err := subgraph.DepSparsity(f.Tape(), all(3), all(2))
	require.NoError(t, err)
	require.Equal(t, []int{0, 0, 1, 1}, row)
	require.Equal(t, []int{0, 2, 1, 2}, col)
}

func TestDepSparsitySelectDomain(t *testing.T) {
	f := difftest.Record(t, []float64{1, 2, 3}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[2]), xs[1].Add(xs[2])}
	})
	row, col, err := subgraph.DepSparsity(f.Tape(), []bool{false, false, true}, all(2))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, row)
	require.Equal(t, []int{2, 2}, col)
}

func TestDepSparsitySelectRange(t *testing.T) {
	f := difftest.Record(t, []float64{1, 2, 3}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[2]), xs[1].Add(xs[2])}
	})
	row, col, err := subgraph.DepSparsity(f.Tape(), all(3), []bool{false, true})
	require.NoError(t, err)
	require.Equal(t, []int{1, 1}, row)
	require.Equal(t, []int{1, 2}, col)
}

func TestDepSparsityConstantDependent(t *testing.T) {
	f := difftest.Record(t, []float64{1}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{record.C(5), xs[0].Mul(xs[0])}
	})
	row, col, err := subgraph.DepSparsity(f.Tape(), all(1), all(2))
	require.NoError(t, err)
	require.Equal(t, []int{1}, row)
	require.Equal(t, []int{0}, col)
}

func TestDepSparsityDeepChain(t *testing.T) {
	// y = sin(exp(x0)) + x1, with an unused independent x2
	f := difftest.Record(t, []float64{0.5, 1, 2}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{record.Sin(record.Exp(xs[0])).Add(xs[1])}
	})
	row, col, err := subgraph.DepSparsity(f.Tape(), all(3), all(1))
	require.NoError(t, err)
	require.Equal(t, []int{0, 0}, row)
	require.Equal(t, []int{0, 1}, col)
}

// sumAtom adds its two inputs; only the order-0 forward is needed here.
type sumAtom struct{}

func (sumAtom) Name() string { return "sumatom" }
func (sumAtom) NumIn() int   { return 2 }
func (sumAtom) NumOut() int  { return 1 }

func (sumAtom) Forward(order int, tx, ty [][]float64) error {
	ty[0][order] = tx[0][order] + tx[1][order]
	return nil
}

func (sumAtom) Reverse(order int, tx, ty, px, py [][]float64) error {
	for k := 0; k <= order; k++ {
		px[0][k] += py[0][k]
		px[1][k] += py[0][k]
	}
	return nil
}

func (sumAtom) ForSparseJac(q int, rx [][]bool) ([][]bool, error) {
	ry := [][]bool{make([]bool, q)}
	for k := 0; k < q; k++ {
		ry[0][k] = rx[0][k] || rx[1][k]
	}
	return ry, nil
}

func (sumAtom) RevSparseJac(q int, ry [][]bool) ([][]bool, error) {
	return [][]bool{append([]bool(nil), ry[0]...), append([]bool(nil), ry[0]...)}, nil
}

func (sumAtom) RevSparseHes(q int, s []bool, hy [][]bool, rx [][]bool) ([]bool, [][]bool, error) {
	return []bool{s[0], s[0]}, [][]bool{append([]bool(nil), hy[0]...), append([]bool(nil), hy[0]...)}, nil
}

func TestDepSparsityAtomicCall(t *testing.T) {
	// y = atom(x0, x2), leaving x1 unconnected
	f := difftest.Record(t, []float64{1, 2, 3}, func(r *record.Recorder, xs []record.Num) []record.Num {
		ys, err := r.AtomicCall(sumAtom{}, []record.Num{xs[0], xs[2]})
		require.NoError(t, err)
		return ys
	})
	row, col, err := subgraph.DepSparsity(f.Tape(), all(3), all(1))
	require.NoError(t, err)
	require.Equal(t, []int{0, 0}, row)
	require.Equal(t, []int{0, 2}, col)
}

func TestDepSparsitySelectorSizes(t *testing.T) {
	f := difftest.Record(t, []float64{1}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0]}
	})
	_, _, err := subgraph.DepSparsity(f.Tape(), all(2), all(1))
	require.Error(t, err)
	_, _, err = subgraph.DepSparsity(f.Tape(), all(1), all(2))
	require.Error(t, err)
}
