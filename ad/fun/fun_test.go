package fun_test

import (
	"math"
	"testing"

	"github.com/difftape/difftape/ad/record"
	"github.com/difftape/difftape/internal/difftest"
	"github.com/stretchr/testify/require"
)

func TestAcoshRoundTrip(t *testing.T) {
	// y = acosh(cosh(x)) is the identity for x > 0
	eps := 200 * difftest.MachEps
	x0 := 0.5
	f := difftest.Record(t, []float64{x0}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{record.Acosh(record.Cosh(xs[0]))}
	})

	y, err := f.Forward(0, []float64{x0})
	require.NoError(t, err)
	difftest.NearEqual(t, y[0], x0, eps)

	dy, err := f.Forward(1, []float64{1})
	require.NoError(t, err)
	difftest.NearEqual(t, dy[0], 1, eps)

	for order := 2; order < 5; order++ {
		dy, err = f.Forward(order, []float64{0})
		require.NoError(t, err)
		difftest.NearEqual(t, dy[0], 0, eps)
	}

	dw, err := f.Reverse(5, []float64{1})
	require.NoError(t, err)
	difftest.NearEqual(t, dw[0], 1, eps)
	for order := 1; order < 5; order++ {
		difftest.NearEqual(t, dw[order], 0, eps)
	}
}

func TestSignGraph(t *testing.T) {
	// f(x) = sign(p0) + sign(x0) + sign(c0), p0 = 0.2 and c0 = -0.1 constant
	f := difftest.Record(t, []float64{0.3}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		s := record.Sign(record.C(0.2)).Add(record.Sign(xs[0])).Add(record.Sign(record.C(-0.1)))
		return []record.Num{s}
	})
	y, err := f.Forward(0, []float64{0.3})
	require.NoError(t, err)
	difftest.NearEqual(t, y[0], 1, 99*difftest.MachEps)

	y, err = f.Forward(0, []float64{-0.2})
	require.NoError(t, err)
	difftest.NearEqual(t, y[0], -1, 99*difftest.MachEps)
}

func TestMulTaylor(t *testing.T) {
	// y = x*x at x0 = 3: coefficients 9, 6, 1, 0, ...
	f := difftest.Record(t, []float64{3}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[0])}
	})
	y, err := f.Forward(0, []float64{3})
	require.NoError(t, err)
	require.Equal(t, 9.0, y[0])

	y, err = f.Forward(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, 6.0, y[0])

	y, err = f.Forward(2, []float64{0})
	require.NoError(t, err)
	require.Equal(t, 1.0, y[0])

	for order := 3; order < 6; order++ {
		y, err = f.Forward(order, []float64{0})
		require.NoError(t, err)
		require.Equal(t, 0.0, y[0])
	}
}

func TestDivReverse(t *testing.T) {
	// y = 1/x at x0 = 2: dy/dx = -1/4
	f := difftest.Record(t, []float64{2}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{record.C(1).Div(xs[0])}
	})
	_, err := f.Forward(0, []float64{2})
	require.NoError(t, err)
	dx, err := f.Reverse(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, -0.25, dx[0])
}

func TestForSparseJacPattern(t *testing.T) {
	// f(x0, x1, x2) = (x0*x2, x1+x2)
	f := difftest.Record(t, []float64{1, 2, 3}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[2]), xs[1].Add(xs[2])}
	})
	px := make([]bool, 3*3)
	for j := 0; j < 3; j++ {
		px[j*3+j] = true
	}
	py, err := f.ForSparseJac(3, px)
	require.NoError(t, err)

	want := map[[2]int]bool{{0, 0}: true, {0, 2}: true, {1, 1}: true, {1, 2}: true}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			require.Equal(t, want[[2]int{i, j}], py[i*3+j], "entry (%d,%d)", i, j)
		}
	}
}

func TestRevSparseJacMatchesForward(t *testing.T) {
	f := difftest.Record(t, []float64{1, 2, 3}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[2]), xs[1].Add(xs[2])}
	})
	py := make([]bool, 2*2)
	for i := 0; i < 2; i++ {
		py[i*2+i] = true
	}
	px, err := f.RevSparseJac(2, py)
	require.NoError(t, err)

	want := map[[2]int]bool{{0, 0}: true, {2, 0}: true, {1, 1}: true, {2, 1}: true}
	for j := 0; j < 3; j++ {
		for i := 0; i < 2; i++ {
			require.Equal(t, want[[2]int{j, i}], px[j*2+i], "entry (%d,%d)", j, i)
		}
	}
}

func TestRevSparseHes(t *testing.T) {
	// f = x0*x1 + sin(x2): hessian pattern {(0,1), (1,0), (2,2)}
	f := difftest.Record(t, []float64{1, 2, 0.5}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[1]).Add(record.Sin(xs[2]))}
	})
	px := make([]bool, 3*3)
	for j := 0; j < 3; j++ {
		px[j*3+j] = true
	}
	_, err := f.ForSparseJac(3, px)
	require.NoError(t, err)

	h, err := f.RevSparseHes(3, []bool{true})
	require.NoError(t, err)
	want := map[[2]int]bool{{0, 1}: true, {1, 0}: true, {2, 2}: true}
	for j := 0; j < 3; j++ {
		for k := 0; k < 3; k++ {
			require.Equal(t, want[[2]int{j, k}], h[j*3+k], "entry (%d,%d)", j, k)
		}
	}
}

func TestRevSparseHesRequiresForward(t *testing.T) {
	f := difftest.Record(t, []float64{1}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[0])}
	})
	_, err := f.RevSparseHes(1, []bool{true})
	require.Error(t, err)
}

// reverse(1, e_i) must equal row i of the Jacobian computed column by
// column with forward(1, e_j)
func TestForwardReverseRoundTrip(t *testing.T) {
	x := []float64{0.7, 1.3}
	f := difftest.Record(t, x, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{
			record.Sin(xs[0]).Mul(xs[1]),
			xs[0].Div(record.Exp(xs[1])),
		}
	})
	n, m := 2, 2

	_, err := f.Forward(0, x)
	require.NoError(t, err)

	fwd := make([]float64, m*n)
	u := make([]float64, n)
	for j := 0; j < n; j++ {
		u[j] = 1
		dy, err := f.Forward(1, u)
		require.NoError(t, err)
		u[j] = 0
		for i := 0; i < m; i++ {
			fwd[i*n+j] = dy[i]
		}
	}

	w := make([]float64, m)
	for i := 0; i < m; i++ {
		w[i] = 1
		dx, err := f.Reverse(1, w)
		require.NoError(t, err)
		w[i] = 0
		for j := 0; j < n; j++ {
			difftest.NearEqual(t, dx[j], fwd[i*n+j], 1e-12)
		}
	}
}

// reverse is linear in the weights
func TestReverseLinearity(t *testing.T) {
	x := []float64{0.4, 0.9}
	f := difftest.Record(t, x, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[1]), record.Log(xs[1])}
	})
	_, err := f.Forward(0, x)
	require.NoError(t, err)

	w1 := []float64{0.5, -2}
	w2 := []float64{3, 0.25}
	alpha, beta := 1.5, -0.75

	d1, err := f.Reverse(1, w1)
	require.NoError(t, err)
	d2, err := f.Reverse(1, w2)
	require.NoError(t, err)

	w := make([]float64, 2)
	for i := range w {
		w[i] = alpha*w1[i] + beta*w2[i]
	}
	d, err := f.Reverse(1, w)
	require.NoError(t, err)
	for j := range d {
		difftest.NearEqual(t, d[j], alpha*d1[j]+beta*d2[j], 1e-12)
	}
}

// every nonzero of the dense Jacobian implies a set sparsity bit
func TestSparsitySoundness(t *testing.T) {
	x := []float64{1.1, 0.6, -0.4}
	f := difftest.Record(t, x, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{
			xs[0].Mul(xs[2]).Add(record.Cos(xs[1])),
			xs[1].Sub(xs[2]),
		}
	})
	n, m := 3, 2
	jac, err := f.Jacobian(x)
	require.NoError(t, err)

	px := make([]bool, n*n)
	for j := 0; j < n; j++ {
		px[j*n+j] = true
	}
	py, err := f.ForSparseJac(n, px)
	require.NoError(t, err)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if jac[i*n+j] != 0 {
				require.True(t, py[i*n+j], "dense nonzero at (%d,%d) missing from pattern", i, j)
			}
		}
	}
}

func TestCondExpSelectsLive(t *testing.T) {
	// y = x*x when x < 1, else x
	f := difftest.Record(t, []float64{0.5}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{record.CondExpLt(xs[0], record.C(1), xs[0].Mul(xs[0]), xs[0])}
	})

	y, err := f.Forward(0, []float64{0.5})
	require.NoError(t, err)
	require.Equal(t, 0.25, y[0])
	dy, err := f.Forward(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, 1.0, dy[0])

	// replay on the other side of the branch
	y, err = f.Forward(0, []float64{2})
	require.NoError(t, err)
	require.Equal(t, 2.0, y[0])
	dy, err = f.Forward(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, 1.0, dy[0])

	dx, err := f.Reverse(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, 1.0, dx[0])
}

func TestCompareChange(t *testing.T) {
	f := difftest.Record(t, []float64{0.5}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		lt := xs[0].Lt(record.C(1)) // recorded true
		require.True(t, lt)
		return []record.Num{xs[0].Mul(xs[0])}
	})

	_, err := f.Forward(0, []float64{0.5})
	require.NoError(t, err)
	require.Equal(t, 0, f.CompareChange())

	_, err = f.Forward(0, []float64{2})
	require.NoError(t, err)
	require.Equal(t, 1, f.CompareChange())

	// the counter resets on every order-0 forward
	_, err = f.Forward(0, []float64{0.25})
	require.NoError(t, err)
	require.Equal(t, 0, f.CompareChange())
}

func TestVecTape(t *testing.T) {
	// v = [x0, 10]; y = v[x1] with a variable index
	f := difftest.Record(t, []float64{3, 0}, func(r *record.Recorder, xs []record.Num) []record.Num {
		v, err := r.NewVec([]float64{0, 10})
		require.NoError(t, err)
		v.Store(record.C(0), xs[0])
		return []record.Num{v.Load(xs[1])}
	})
	require.True(t, f.UseVecTape())

	y, err := f.Forward(0, []float64{3, 0})
	require.NoError(t, err)
	require.Equal(t, 3.0, y[0])
	dx, err := f.Reverse(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 0}, dx)

	// index 1 selects the constant slot
	y, err = f.Forward(0, []float64{3, 1})
	require.NoError(t, err)
	require.Equal(t, 10.0, y[0])
	dx, err = f.Reverse(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0}, dx)
}

func TestParameterDependent(t *testing.T) {
	f := difftest.Record(t, []float64{2}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[0]), record.C(7)}
	})
	isPar, err := f.Parameter(1)
	require.NoError(t, err)
	require.True(t, isPar)
	isPar, err = f.Parameter(0)
	require.NoError(t, err)
	require.False(t, isPar)

	y, err := f.Forward(0, []float64{2})
	require.NoError(t, err)
	require.Equal(t, []float64{4, 7}, y)
	dy, err := f.Forward(1, []float64{1})
	require.NoError(t, err)
	require.Equal(t, []float64{4, 0}, dy)
}

func TestForwardUsageErrors(t *testing.T) {
	f := difftest.Record(t, []float64{2}, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[0])}
	})
	_, err := f.Forward(0, []float64{1, 2})
	require.Error(t, err)
	_, err = f.Forward(1, []float64{1}) // no order-0 sweep yet
	require.Error(t, err)
	_, err = f.Forward(0, []float64{2})
	require.NoError(t, err)
	_, err = f.Forward(2, []float64{0}) // order 1 missing
	require.Error(t, err)
	_, err = f.Reverse(2, []float64{1, 0}) // forward order 1 missing
	require.Error(t, err)
	_, err = f.Reverse(0, nil)
	require.Error(t, err)
}

func TestJacobianDriverMatchesFiniteDifferences(t *testing.T) {
	x := []float64{0.8, 0.35}
	f := difftest.Record(t, x, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{
			record.Exp(xs[0]).Mul(record.Sin(xs[1])),
			record.Sqrt(xs[0].Add(xs[1])),
			xs[0].Div(xs[1]),
		}
	})
	jac, err := f.Jacobian(x)
	require.NoError(t, err)

	ref := difftest.FiniteJacobian(func(v []float64) []float64 {
		return []float64{
			math.Exp(v[0]) * math.Sin(v[1]),
			math.Sqrt(v[0] + v[1]),
			v[0] / v[1],
		}
	}, x, 1e-6)
	for k := range jac {
		difftest.NearEqual(t, jac[k], ref[k], 1e-7)
	}
}

func TestHessianDriver(t *testing.T) {
	// y = x0^2 * x1: hessian [[2*x1, 2*x0], [2*x0, 0]]
	x := []float64{1.5, -2}
	f := difftest.Record(t, x, func(_ *record.Recorder, xs []record.Num) []record.Num {
		return []record.Num{xs[0].Mul(xs[0]).Mul(xs[1])}
	})
	h, err := f.Hessian(x, 0)
	require.NoError(t, err)
	difftest.NearEqual(t, h[0], 2*x[1], 1e-12)
	difftest.NearEqual(t, h[1], 2*x[0], 1e-12)
	difftest.NearEqual(t, h[2], 2*x[0], 1e-12)
	difftest.NearEqual(t, h[3], 0, 1e-12)
}
