package fun

import (
	"github.com/difftape/difftape/ad/op"
	"github.com/pkg/errors"
)

// Reverse accumulates the adjoint Taylor coefficients of the independents
// for the weighted sum of dependents given by w, which must hold m*q
// weights: w[i*q+k] weights the order-k coefficient of dependent i. It
// requires forward coefficients up to order q-1 and returns dx with
// dx[j*q+k] the partial with respect to the order-k coefficient of
// independent j.
//
// As a shorthand, w may hold just m weights: they then apply to the order
// q-1 coefficients and dx[j*q+k] is the order-k Taylor coefficient of the
// derivative of the weighted sum with respect to independent j, the
// conventional shape for extracting one derivative order per entry.
func (f *Fun) Reverse(q int, w []float64) ([]float64, error) {
	n, m := f.Domain(), f.Range()
	if q < 1 {
		return nil, errors.Errorf("fun: reverse order %d must be positive", q)
	}
	if len(w) == m && q > 1 {
		ww := make([]float64, m*q)
		for i := 0; i < m; i++ {
			ww[i*q+q-1] = w[i]
		}
		dx, err := f.Reverse(q, ww)
		if err != nil {
			return nil, err
		}
		for j := 0; j < n; j++ {
			row := dx[j*q : (j+1)*q]
			for k := 0; k < q/2; k++ {
				row[k], row[q-1-k] = row[q-1-k], row[k]
			}
		}
		return dx, nil
	}
	if len(w) != m*q {
		return nil, errors.Errorf("fun: reverse wants %d weights, got %d", m*q, len(w))
	}
	if f.perVar < q {
		return nil, errors.Errorf("fun: reverse order %d requires %d forward coefficients, have %d",
			q, q, f.perVar)
	}

	t := f.t
	P := make([]float64, t.NumVar()*q)
	for i, v := range t.DepTaddr() {
		for k := 0; k < q; k++ {
			P[v*q+k] += w[i*q+k]
		}
	}

	for i := t.NumOp() - 1; i >= 0; i-- {
		o, args, res := t.OpInfo(i)
		switch o {
		case op.Begin, op.End, op.Inv, op.Par, op.Sign,
			op.Eq, op.Lt, op.Le, op.VecStore:
			// no adjoint flows through these

		case op.AddVV:
			for k := 0; k < q; k++ {
				P[args[0]*q+k] += P[res*q+k]
				P[args[1]*q+k] += P[res*q+k]
			}
		case op.AddPV:
			for k := 0; k < q; k++ {
				P[args[1]*q+k] += P[res*q+k]
			}
		case op.SubVV:
			for k := 0; k < q; k++ {
				P[args[0]*q+k] += P[res*q+k]
				P[args[1]*q+k] -= P[res*q+k]
			}
		case op.SubVP:
			for k := 0; k < q; k++ {
				P[args[0]*q+k] += P[res*q+k]
			}
		case op.SubPV:
			for k := 0; k < q; k++ {
				P[args[1]*q+k] -= P[res*q+k]
			}

		case op.MulVV:
			x, y := args[0], args[1]
			for p := 0; p < q; p++ {
				a := P[res*q+p]
				for k := 0; k <= p; k++ {
					P[x*q+k] += a * f.ty(y, p-k)
					P[y*q+p-k] += a * f.ty(x, k)
				}
			}
		case op.MulPV:
			c := t.Par(args[0])
			for k := 0; k < q; k++ {
				P[args[1]*q+k] += c * P[res*q+k]
			}

		case op.DivVV:
			x, y := args[0], args[1]
			y0 := f.ty(y, 0)
			for p := q - 1; p >= 0; p-- {
				a := P[res*q+p] / y0
				P[x*q+p] += a
				for k := 0; k < p; k++ {
					P[res*q+k] -= a * f.ty(y, p-k)
				}
				for k := 0; k <= p; k++ {
					P[y*q+p-k] -= a * f.ty(res, k)
				}
			}
		case op.DivVP:
			c := t.Par(args[1])
			for k := 0; k < q; k++ {
				P[args[0]*q+k] += P[res*q+k] / c
			}
		case op.DivPV:
			y := args[1]
			y0 := f.ty(y, 0)
			for p := q - 1; p >= 0; p-- {
				a := P[res*q+p] / y0
				for k := 0; k < p; k++ {
					P[res*q+k] -= a * f.ty(y, p-k)
				}
				for k := 0; k <= p; k++ {
					P[y*q+p-k] -= a * f.ty(res, k)
				}
			}

		case op.Neg:
			for k := 0; k < q; k++ {
				P[args[0]*q+k] -= P[res*q+k]
			}
		case op.Abs:
			s := signOf(f.ty(args[0], 0))
			for k := 0; k < q; k++ {
				P[args[0]*q+k] += s * P[res*q+k]
			}

		case op.Sqrt:
			x := args[0]
			z0 := f.ty(res, 0)
			for p := q - 1; p >= 1; p-- {
				a := P[res*q+p] / (2 * z0)
				P[x*q+p] += a
				for k := 1; k < p; k++ {
					P[res*q+k] -= 2 * a * f.ty(res, p-k)
				}
				P[res*q] -= 2 * a * f.ty(res, p)
			}
			P[x*q] += P[res*q] / (2 * z0)

		case op.Exp:
			x := args[0]
			for p := q - 1; p >= 1; p-- {
				a := P[res*q+p]
				for k := 1; k <= p; k++ {
					r := float64(k) / float64(p)
					P[x*q+k] += a * r * f.ty(res, p-k)
					P[res*q+p-k] += a * r * f.ty(x, k)
				}
			}
			P[x*q] += P[res*q] * f.ty(res, 0)

		case op.Log:
			x := args[0]
			x0 := f.ty(x, 0)
			for p := q - 1; p >= 1; p-- {
				a := P[res*q+p] / x0
				P[x*q+p] += a
				for k := 1; k < p; k++ {
					r := float64(k) / float64(p)
					P[res*q+k] -= a * r * f.ty(x, p-k)
					P[x*q+p-k] -= a * r * f.ty(res, k)
				}
				P[x*q] -= a * f.ty(res, p)
			}
			P[x*q] += P[res*q] / x0

		case op.Sin:
			f.reverseSinCos(P, q, args[0], res, res-1, false)
		case op.Cos:
			f.reverseSinCos(P, q, args[0], res-1, res, false)
		case op.Sinh:
			f.reverseSinCos(P, q, args[0], res, res-1, true)
		case op.Cosh:
			f.reverseSinCos(P, q, args[0], res-1, res, true)

		case op.Tan:
			f.reverseTan(P, q, args[0], res, res-1, false)
		case op.Tanh:
			f.reverseTan(P, q, args[0], res, res-1, true)

		case op.Asin, op.Acos, op.Atan, op.Asinh, op.Acosh, op.Atanh:
			f.reverseInverse(P, q, o, args[0], res, res-1)

		case op.CondExpLt, op.CondExpLe, op.CondExpEq, op.CondExpGe, op.CondExpGt:
			src, isVar := args[4], args[0]&8 != 0
			if f.condTrue(o, args) {
				src, isVar = args[3], args[0]&4 != 0
			}
			if isVar {
				for k := 0; k < q; k++ {
					P[src*q+k] += P[res*q+k]
				}
			}

		case op.VecLoad:
			if src := f.loadSrc[f.loadIx[i]]; src > 0 {
				for k := 0; k < q; k++ {
					P[src*q+k] += P[res*q+k]
				}
			}

		case op.User:
			begin := i - 1
			for t.Op(begin) != op.User {
				begin--
			}
			c, err := f.scanUser(begin)
			if err != nil {
				return nil, err
			}
			if err := f.reverseUser(c, P, q); err != nil {
				return nil, err
			}
			i = c.begin

		default:
			panic(errors.Errorf("fun: malformed tape, unexpected %s at operator %d", o, i))
		}
	}

	dx := make([]float64, n*q)
	for j, v := range t.IndTaddr() {
		copy(dx[j*q:(j+1)*q], P[v*q:(v+1)*q])
	}
	return dx, nil
}

// reverseSinCos pushes the adjoints of a sine/cosine (or hyperbolic) pair
// back to the argument.
func (f *Fun) reverseSinCos(P []float64, q, x, sv, cv int, hyper bool) {
	sgn := -1.0
	if hyper {
		sgn = 1.0
	}
	for p := q - 1; p >= 1; p-- {
		as, ac := P[sv*q+p], P[cv*q+p]
		for k := 1; k <= p; k++ {
			r := float64(k) / float64(p)
			P[x*q+k] += as*r*f.ty(cv, p-k) + sgn*ac*r*f.ty(sv, p-k)
			P[cv*q+p-k] += as * r * f.ty(x, k)
			P[sv*q+p-k] += sgn * ac * r * f.ty(x, k)
		}
	}
	P[x*q] += P[sv*q]*f.ty(cv, 0) + sgn*P[cv*q]*f.ty(sv, 0)
}

// reverseTan pushes the adjoints of the tangent primary and its squared
// companion back to the argument.
func (f *Fun) reverseTan(P []float64, q, x, yv, zv int, hyper bool) {
	sgn := 1.0
	if hyper {
		sgn = -1.0
	}
	for p := q - 1; p >= 1; p-- {
		// z_p = sum y_k y_{p-k}, computed after y_p
		az := P[zv*q+p]
		for k := 0; k <= p; k++ {
			P[yv*q+k] += 2 * az * f.ty(yv, p-k)
		}
		ay := P[yv*q+p]
		P[x*q+p] += ay
		for k := 1; k <= p; k++ {
			r := float64(k) / float64(p)
			P[x*q+k] += sgn * ay * r * f.ty(zv, p-k)
			P[zv*q+p-k] += sgn * ay * r * f.ty(x, k)
		}
	}
	P[yv*q] += 2 * P[zv*q] * f.ty(yv, 0)
	P[x*q] += P[yv*q] * (1 + sgn*f.ty(zv, 0))
}

// reverseInverse pushes the adjoints of the inverse trigonometric and
// hyperbolic primaries and companions back to the argument.
func (f *Fun) reverseInverse(P []float64, q int, o op.Op, x, yv, bv int) {
	b0 := f.ty(bv, 0)
	for p := q - 1; p >= 1; p-- {
		// primary first: y_p = (+-x_p - (1/p) sum k y_k b_{p-k}) / b_0
		a := P[yv*q+p] / b0
		if o == op.Acos {
			P[x*q+p] -= a
		} else {
			P[x*q+p] += a
		}
		for k := 1; k < p; k++ {
			r := float64(k) / float64(p)
			P[yv*q+k] -= a * r * f.ty(bv, p-k)
			P[bv*q+p-k] -= a * r * f.ty(yv, k)
		}
		P[bv*q] -= a * f.ty(yv, p)

		// companion
		ab := P[bv*q+p]
		switch o {
		case op.Asin, op.Acos:
			c := ab / (2 * b0)
			for j := 0; j <= p; j++ {
				P[x*q+j] -= 2 * c * f.ty(x, p-j)
			}
			for k := 1; k < p; k++ {
				P[bv*q+k] -= 2 * c * f.ty(bv, p-k)
			}
			P[bv*q] -= 2 * c * f.ty(bv, p)
		case op.Asinh, op.Acosh:
			c := ab / (2 * b0)
			for j := 0; j <= p; j++ {
				P[x*q+j] += 2 * c * f.ty(x, p-j)
			}
			for k := 1; k < p; k++ {
				P[bv*q+k] -= 2 * c * f.ty(bv, p-k)
			}
			P[bv*q] -= 2 * c * f.ty(bv, p)
		case op.Atan:
			for j := 0; j <= p; j++ {
				P[x*q+j] += 2 * ab * f.ty(x, p-j)
			}
		case op.Atanh:
			for j := 0; j <= p; j++ {
				P[x*q+j] -= 2 * ab * f.ty(x, p-j)
			}
		}
	}

	// order 0
	x0 := f.ty(x, 0)
	ay, ab := P[yv*q], P[bv*q]
	switch o {
	case op.Asin:
		P[x*q] += ay/b0 - ab*x0/b0
	case op.Acos:
		P[x*q] += -ay/b0 - ab*x0/b0
	case op.Atan:
		P[x*q] += ay/b0 + 2*ab*x0
	case op.Asinh, op.Acosh:
		P[x*q] += ay/b0 + ab*x0/b0
	case op.Atanh:
		P[x*q] += ay/b0 - 2*ab*x0
	}
}

// reverseUser drives the atomic hook's reverse for one call and gathers the
// argument partials.
func (f *Fun) reverseUser(c userCall, P []float64, q int) error {
	tx := make([][]float64, len(c.in))
	px := make([][]float64, len(c.in))
	for i, src := range c.in {
		row := make([]float64, q)
		if src > 0 {
			for k := 0; k < q; k++ {
				row[k] = f.ty(src, k)
			}
		} else {
			row[0] = f.t.Par(-src - 1)
		}
		tx[i] = row
		px[i] = make([]float64, q)
	}
	ty := make([][]float64, len(c.out))
	py := make([][]float64, len(c.out))
	for i, dst := range c.out {
		trow := make([]float64, q)
		prow := make([]float64, q)
		if dst > 0 {
			for k := 0; k < q; k++ {
				trow[k] = f.ty(dst, k)
				prow[k] = P[dst*q+k]
			}
		} else {
			trow[0] = f.t.Par(-dst - 1)
		}
		ty[i] = trow
		py[i] = prow
	}
	if err := c.fn.Reverse(q-1, tx, ty, px, py); err != nil {
		return errors.Wrapf(err, "fun: atomic %s reverse order %d", c.fn.Name(), q-1)
	}
	for i, src := range c.in {
		if src > 0 {
			for k := 0; k < q; k++ {
				P[src*q+k] += px[i][k]
			}
		}
	}
	return nil
}
