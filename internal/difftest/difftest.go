// Package difftest provides the helpers shared by the derivative tests:
// recording small functions, tolerance comparison and finite-difference
// reference Jacobians.
package difftest

import (
	"math"
	"testing"

	"github.com/difftape/difftape/ad/fun"
	"github.com/difftape/difftape/ad/record"
	"github.com/stretchr/testify/require"
)

// MachEps is the double precision machine epsilon, 2^-52.
const MachEps = 2.220446049250313e-16

// NearEqual fails the test unless got and want agree within eps, absolutely
// or relatively, the comparison used throughout the derivative tests.
func NearEqual(t *testing.T, got, want, eps float64) {
	t.Helper()
	d := math.Abs(got - want)
	if d <= eps {
		return
	}
	if r := d / (math.Abs(got) + math.Abs(want)); r <= eps {
		return
	}
	t.Fatalf("got %v, want %v (tolerance %v)", got, want, eps)
}

// Record traces build at the point x and returns the finished function
// object. build receives the recorder and the independents and returns the
// dependents.
func Record(t *testing.T, x []float64, build func(r *record.Recorder, xs []record.Num) []record.Num) *fun.Fun {
	t.Helper()
	r, xs, err := record.Independent(x)
	require.NoError(t, err)
	ys := build(r, xs)
	tp, err := r.Stop(ys)
	require.NoError(t, err)
	return fun.New(tp)
}

// FiniteJacobian approximates the Jacobian of g at x with central
// differences of step h, row-major m x n.
func FiniteJacobian(g func([]float64) []float64, x []float64, h float64) []float64 {
	n := len(x)
	y := g(x)
	m := len(y)
	jac := make([]float64, m*n)
	xx := append([]float64(nil), x...)
	for j := 0; j < n; j++ {
		xx[j] = x[j] + h
		yp := g(xx)
		xx[j] = x[j] - h
		ym := g(xx)
		xx[j] = x[j]
		for i := 0; i < m; i++ {
			jac[i*n+j] = (yp[i] - ym[i]) / (2 * h)
		}
	}
	return jac
}
