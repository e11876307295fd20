package fun

import (
	"math"

	"github.com/difftape/difftape/ad/atomic"
	"github.com/difftape/difftape/ad/op"
	"github.com/pkg/errors"
)

// Forward computes the order-p Taylor coefficients of every variable from
// the new coefficients u of the independents and the coefficients of all
// lower orders stored by earlier calls. Order 0 is plain evaluation and
// resets the compare-change counter; order p > 0 requires that orders
// 0..p-1 have been computed (recomputing an order truncates the higher
// ones). The returned vector holds the order-p coefficient of each
// dependent.
func (f *Fun) Forward(order int, u []float64) ([]float64, error) {
	n := f.Domain()
	if order < 0 {
		return nil, errors.Errorf("fun: negative forward order %d", order)
	}
	if len(u) != n {
		return nil, errors.Errorf("fun: forward wants %d coefficients, got %d", n, len(u))
	}
	if order == 0 {
		f.growTaylor(1)
		f.compareChange = 0
	} else {
		if f.perVar < order {
			return nil, errors.Errorf("fun: forward order %d requires %d stored coefficients, have %d",
				order, order, f.perVar)
		}
		f.growTaylor(order + 1)
	}
	for j, v := range f.t.IndTaddr() {
		f.sety(v, order, u[j])
	}
	if err := f.sweepForward(order); err != nil {
		return nil, err
	}
	f.perVar = order + 1

	y := make([]float64, f.Range())
	for i, v := range f.t.DepTaddr() {
		y[i] = f.ty(v, order)
	}
	return y, nil
}

// sweepForward replays the tape left to right computing the order-p
// coefficient of every result variable.
func (f *Fun) sweepForward(p int) error {
	t := f.t

	// live per-slot sources of the tape vectors, rebuilt by each order-0
	// replay; higher orders reuse the per-load resolution it left behind.
	var vecSrc [][]int
	if p == 0 && t.NumVec() > 0 {
		vecSrc = make([][]int, t.NumVec())
		for v := range vecSrc {
			vecSrc[v] = make([]int, t.VecLen(v))
			for j := range vecSrc[v] {
				vecSrc[v][j] = -(t.VecInitPar(v, j) + 1)
			}
		}
	}

	numOp := t.NumOp()
	for i := 0; i < numOp; i++ {
		o, args, res := t.OpInfo(i)
		switch o {
		case op.Begin:
			f.sety(0, p, 0)

		case op.End, op.Inv:
			// independents were seeded by Forward

		case op.Par:
			if p == 0 {
				f.sety(res, 0, t.Par(args[0]))
			} else {
				f.sety(res, p, 0)
			}

		case op.AddVV:
			f.sety(res, p, f.ty(args[0], p)+f.ty(args[1], p))
		case op.AddPV:
			f.sety(res, p, f.argc(false, args[0], p)+f.ty(args[1], p))
		case op.SubVV:
			f.sety(res, p, f.ty(args[0], p)-f.ty(args[1], p))
		case op.SubVP:
			f.sety(res, p, f.ty(args[0], p)-f.argc(false, args[1], p))
		case op.SubPV:
			f.sety(res, p, f.argc(false, args[0], p)-f.ty(args[1], p))

		case op.MulVV:
			s := 0.0
			for k := 0; k <= p; k++ {
				s += f.ty(args[0], k) * f.ty(args[1], p-k)
			}
			f.sety(res, p, s)
		case op.MulPV:
			f.sety(res, p, t.Par(args[0])*f.ty(args[1], p))

		case op.DivVV:
			y0 := f.ty(args[1], 0)
			s := f.ty(args[0], p)
			for k := 0; k < p; k++ {
				s -= f.ty(res, k) * f.ty(args[1], p-k)
			}
			f.sety(res, p, s/y0)
		case op.DivVP:
			f.sety(res, p, f.ty(args[0], p)/t.Par(args[1]))
		case op.DivPV:
			y0 := f.ty(args[1], 0)
			s := 0.0
			if p == 0 {
				s = t.Par(args[0])
			}
			for k := 0; k < p; k++ {
				s -= f.ty(res, k) * f.ty(args[1], p-k)
			}
			f.sety(res, p, s/y0)

		case op.Neg:
			f.sety(res, p, -f.ty(args[0], p))
		case op.Abs:
			if p == 0 {
				f.sety(res, 0, math.Abs(f.ty(args[0], 0)))
			} else {
				f.sety(res, p, signOf(f.ty(args[0], 0))*f.ty(args[0], p))
			}
		case op.Sign:
			if p == 0 {
				f.sety(res, 0, signOf(f.ty(args[0], 0)))
			} else {
				f.sety(res, p, 0)
			}

		case op.Sqrt:
			x := args[0]
			if p == 0 {
				f.sety(res, 0, math.Sqrt(f.ty(x, 0)))
				break
			}
			s := f.ty(x, p)
			for k := 1; k < p; k++ {
				s -= f.ty(res, k) * f.ty(res, p-k)
			}
			f.sety(res, p, s/(2*f.ty(res, 0)))

		case op.Exp:
			x := args[0]
			if p == 0 {
				f.sety(res, 0, math.Exp(f.ty(x, 0)))
				break
			}
			s := 0.0
			for k := 1; k <= p; k++ {
				s += float64(k) * f.ty(x, k) * f.ty(res, p-k)
			}
			f.sety(res, p, s/float64(p))

		case op.Log:
			x := args[0]
			if p == 0 {
				f.sety(res, 0, math.Log(f.ty(x, 0)))
				break
			}
			s := f.ty(x, p)
			for k := 1; k < p; k++ {
				s -= float64(k) / float64(p) * f.ty(res, k) * f.ty(x, p-k)
			}
			f.sety(res, p, s/f.ty(x, 0))

		case op.Sin:
			f.forwardSinCos(args[0], res, res-1, p, false)
		case op.Cos:
			f.forwardSinCos(args[0], res-1, res, p, false)
		case op.Sinh:
			f.forwardSinCos(args[0], res, res-1, p, true)
		case op.Cosh:
			f.forwardSinCos(args[0], res-1, res, p, true)

		case op.Tan:
			f.forwardTan(args[0], res, res-1, p, false)
		case op.Tanh:
			f.forwardTan(args[0], res, res-1, p, true)

		case op.Asin, op.Acos, op.Atan, op.Asinh, op.Acosh, op.Atanh:
			f.forwardInverse(o, args[0], res, res-1, p)

		case op.Eq, op.Lt, op.Le:
			if p == 0 {
				lv := f.argc(args[0]&1 != 0, args[1], 0)
				rv := f.argc(args[0]&2 != 0, args[2], 0)
				live := false
				switch o {
				case op.Eq:
					live = lv == rv
				case op.Lt:
					live = lv < rv
				case op.Le:
					live = lv <= rv
				}
				if live != (args[3] == 1) {
					f.compareChange++
				}
			}

		case op.CondExpLt, op.CondExpLe, op.CondExpEq, op.CondExpGe, op.CondExpGt:
			src, isVar := args[4], args[0]&8 != 0
			if f.condTrue(o, args) {
				src, isVar = args[3], args[0]&4 != 0
			}
			f.sety(res, p, f.argc(isVar, src, p))

		case op.VecLoad:
			li := f.loadIx[i]
			if p == 0 {
				vec := args[0]
				ix := int(f.argc(args[1]&1 != 0, args[2], 0))
				if ix < 0 || ix >= t.VecLen(vec) {
					return errors.Errorf("fun: vector index %d out of range [0, %d)", ix, t.VecLen(vec))
				}
				f.loadSrc[li] = vecSrc[vec][ix]
			}
			if src := f.loadSrc[li]; src > 0 {
				f.sety(res, p, f.ty(src, p))
			} else if p == 0 {
				f.sety(res, 0, t.Par(-src-1))
			} else {
				f.sety(res, p, 0)
			}

		case op.VecStore:
			if p == 0 {
				vec := args[0]
				ix := int(f.argc(args[1]&1 != 0, args[2], 0))
				if ix < 0 || ix >= t.VecLen(vec) {
					return errors.Errorf("fun: vector index %d out of range [0, %d)", ix, t.VecLen(vec))
				}
				if args[1]&2 != 0 {
					vecSrc[vec][ix] = args[3]
				} else {
					vecSrc[vec][ix] = -(args[3] + 1)
				}
			}

		case op.User:
			c, err := f.scanUser(i)
			if err != nil {
				return err
			}
			if err := f.forwardUser(c, p); err != nil {
				return err
			}
			i = c.end

		default:
			panic(errors.Errorf("fun: malformed tape, unexpected %s at operator %d", o, i))
		}
	}
	return nil
}

func signOf(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// condTrue evaluates a conditional expression's predicate from the current
// order-0 coefficients, not from the recorded sign.
func (f *Fun) condTrue(o op.Op, args []int) bool {
	lv := f.argc(args[0]&1 != 0, args[1], 0)
	rv := f.argc(args[0]&2 != 0, args[2], 0)
	switch o {
	case op.CondExpLt:
		return lv < rv
	case op.CondExpLe:
		return lv <= rv
	case op.CondExpEq:
		return lv == rv
	case op.CondExpGe:
		return lv >= rv
	default: // op.CondExpGt
		return lv > rv
	}
}

// forwardSinCos advances the sine/cosine (or hyperbolic) pair: sv holds the
// sine-like series, cv the cosine-like series, and x the argument.
func (f *Fun) forwardSinCos(x, sv, cv, p int, hyper bool) {
	if p == 0 {
		if hyper {
			f.sety(sv, 0, math.Sinh(f.ty(x, 0)))
			f.sety(cv, 0, math.Cosh(f.ty(x, 0)))
		} else {
			f.sety(sv, 0, math.Sin(f.ty(x, 0)))
			f.sety(cv, 0, math.Cos(f.ty(x, 0)))
		}
		return
	}
	var s, c float64
	for k := 1; k <= p; k++ {
		kx := float64(k) * f.ty(x, k)
		s += kx * f.ty(cv, p-k)
		c += kx * f.ty(sv, p-k)
	}
	f.sety(sv, p, s/float64(p))
	if hyper {
		f.sety(cv, p, c/float64(p))
	} else {
		f.sety(cv, p, -c/float64(p))
	}
}

// forwardTan advances the tangent (or hyperbolic tangent) primary y and its
// squared companion z.
func (f *Fun) forwardTan(x, yv, zv, p int, hyper bool) {
	if p == 0 {
		y0 := math.Tan(f.ty(x, 0))
		if hyper {
			y0 = math.Tanh(f.ty(x, 0))
		}
		f.sety(yv, 0, y0)
		f.sety(zv, 0, y0*y0)
		return
	}
	s := 0.0
	for k := 1; k <= p; k++ {
		s += float64(k) * f.ty(x, k) * f.ty(zv, p-k)
	}
	y := f.ty(x, p) + s/float64(p)
	if hyper {
		y = f.ty(x, p) - s/float64(p)
	}
	f.sety(yv, p, y)
	z := 0.0
	for k := 0; k <= p; k++ {
		z += f.ty(yv, k) * f.ty(yv, p-k)
	}
	f.sety(zv, p, z)
}

// forwardInverse advances the inverse trigonometric and hyperbolic ops:
// primary y and companion b with b*y' = x' (b*y' = -x' for acos).
func (f *Fun) forwardInverse(o op.Op, x, yv, bv, p int) {
	x0 := f.ty(x, 0)
	if p == 0 {
		switch o {
		case op.Asin:
			f.sety(bv, 0, math.Sqrt(1-x0*x0))
			f.sety(yv, 0, math.Asin(x0))
		case op.Acos:
			f.sety(bv, 0, math.Sqrt(1-x0*x0))
			f.sety(yv, 0, math.Acos(x0))
		case op.Atan:
			f.sety(bv, 0, 1+x0*x0)
			f.sety(yv, 0, math.Atan(x0))
		case op.Asinh:
			f.sety(bv, 0, math.Sqrt(1+x0*x0))
			f.sety(yv, 0, math.Asinh(x0))
		case op.Acosh:
			f.sety(bv, 0, math.Sqrt(x0*x0-1))
			f.sety(yv, 0, math.Acosh(x0))
		case op.Atanh:
			f.sety(bv, 0, 1-x0*x0)
			f.sety(yv, 0, math.Atanh(x0))
		}
		return
	}

	// Q_p is the order-p coefficient of x*x, S_p the partial square
	// convolution of b with itself.
	q := 0.0
	for k := 0; k <= p; k++ {
		q += f.ty(x, k) * f.ty(x, p-k)
	}
	s := 0.0
	for k := 1; k < p; k++ {
		s += f.ty(bv, k) * f.ty(bv, p-k)
	}
	switch o {
	case op.Asin, op.Acos:
		f.sety(bv, p, (-q-s)/(2*f.ty(bv, 0)))
	case op.Atan:
		f.sety(bv, p, q)
	case op.Asinh, op.Acosh:
		f.sety(bv, p, (q-s)/(2*f.ty(bv, 0)))
	case op.Atanh:
		f.sety(bv, p, -q)
	}

	u := f.ty(x, p)
	if o == op.Acos {
		u = -u
	}
	for k := 1; k < p; k++ {
		u -= float64(k) / float64(p) * f.ty(yv, k) * f.ty(bv, p-k)
	}
	f.sety(yv, p, u/f.ty(bv, 0))
}

// A userCall describes one atomic call bracket on the tape. Argument and
// result sources are encoded as the variable index when positive and as
// -(parameter+1) otherwise.
type userCall struct {
	fn         atomic.Fn
	begin, end int
	in, out    []int
}

// scanUser walks an atomic call bracket starting at its opening User op.
func (f *Fun) scanUser(begin int) (userCall, error) {
	t := f.t
	_, args, _ := t.OpInfo(begin)
	fn, err := atomic.ByIndex(args[0])
	if err != nil {
		return userCall{}, err
	}
	c := userCall{fn: fn, begin: begin}
	for i := begin + 1; ; i++ {
		o, margs, res := t.OpInfo(i)
		switch o {
		case op.User:
			c.end = i
			if len(c.in) != fn.NumIn() || len(c.out) != fn.NumOut() {
				return userCall{}, errors.Errorf(
					"fun: atomic %s bracket has %d inputs and %d outputs, want %d and %d",
					fn.Name(), len(c.in), len(c.out), fn.NumIn(), fn.NumOut())
			}
			return c, nil
		case op.UsrAv:
			c.in = append(c.in, margs[0])
		case op.UsrAp:
			c.in = append(c.in, -(margs[0] + 1))
		case op.UsrRv:
			c.out = append(c.out, res)
		case op.UsrRp:
			c.out = append(c.out, -(margs[0] + 1))
		default:
			panic(errors.Errorf("fun: malformed tape, %s inside atomic call bracket", o))
		}
	}
}

// forwardUser drives the atomic hook for one call at order p and scatters
// the order-p result coefficients.
func (f *Fun) forwardUser(c userCall, p int) error {
	tx := make([][]float64, len(c.in))
	for i, src := range c.in {
		row := make([]float64, p+1)
		if src > 0 {
			for k := 0; k <= p; k++ {
				row[k] = f.ty(src, k)
			}
		} else {
			row[0] = f.t.Par(-src - 1)
		}
		tx[i] = row
	}
	ty := make([][]float64, len(c.out))
	for i, dst := range c.out {
		row := make([]float64, p+1)
		if dst > 0 {
			for k := 0; k < p; k++ {
				row[k] = f.ty(dst, k)
			}
		} else {
			row[0] = f.t.Par(-dst - 1)
		}
		ty[i] = row
	}
	if err := c.fn.Forward(p, tx, ty); err != nil {
		return errors.Wrapf(err, "fun: atomic %s forward order %d", c.fn.Name(), p)
	}
	for i, dst := range c.out {
		if dst > 0 {
			f.sety(dst, p, ty[i][p])
		}
	}
	return nil
}
