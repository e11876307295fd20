package fun

import (
	"github.com/difftape/difftape/ad/op"
	"github.com/difftape/difftape/ad/sparse"
	"github.com/pkg/errors"
)

// ForSparseJac propagates Jacobian sparsity forward: px is the n x q
// row-major bit matrix for the independents and the result is the m x q
// matrix for the dependents. The per-variable pattern is cached for a
// subsequent RevSparseHes with the same q.
func (f *Fun) ForSparseJac(q int, px []bool) ([]bool, error) {
	t := f.t
	n, m := f.Domain(), f.Range()
	if q < 1 {
		return nil, errors.Errorf("fun: sparsity width %d must be positive", q)
	}
	if len(px) != n*q {
		return nil, errors.Errorf("fun: forward sparsity wants %d bits, got %d", n*q, len(px))
	}

	f.forJac.Resize(t.NumVar(), q)
	for j, v := range t.IndTaddr() {
		for k := 0; k < q; k++ {
			if px[j*q+k] {
				f.forJac.AddElement(v, k)
			}
		}
	}
	var vecJac sparse.PackSetVec
	if t.NumVec() > 0 {
		vecJac.Resize(t.NumVec(), q)
	}

	s := &f.forJac
	numOp := t.NumOp()
	for i := 0; i < numOp; i++ {
		o, args, res := t.OpInfo(i)
		switch o {
		case op.Begin, op.End, op.Inv, op.Par, op.Eq, op.Lt, op.Le:

		case op.VecStore:
			if args[1]&2 != 0 {
				vecJac.BinaryUnion(args[0], args[0], args[3], s)
			}

		case op.AddVV, op.SubVV, op.MulVV, op.DivVV:
			s.BinaryUnion(res, args[0], args[1], s)
		case op.AddPV, op.SubPV, op.MulPV, op.DivPV:
			s.Assignment(res, args[1], s)
		case op.SubVP, op.DivVP:
			s.Assignment(res, args[0], s)

		case op.Neg, op.Abs, op.Sign, op.Sqrt, op.Exp, op.Log:
			s.Assignment(res, args[0], s)
		case op.Sin, op.Cos, op.Tan, op.Asin, op.Acos, op.Atan,
			op.Sinh, op.Cosh, op.Tanh, op.Asinh, op.Acosh, op.Atanh:
			s.Assignment(res, args[0], s)
			s.Assignment(res-1, args[0], s)

		case op.CondExpLt, op.CondExpLe, op.CondExpEq, op.CondExpGe, op.CondExpGt:
			// the condition contributes no derivative; the result pattern is
			// the union of the variable branches
			s.Clear(res)
			if args[0]&4 != 0 {
				s.BinaryUnion(res, res, args[3], s)
			}
			if args[0]&8 != 0 {
				s.BinaryUnion(res, res, args[4], s)
			}

		case op.VecLoad:
			s.Assignment(res, args[0], &vecJac)

		case op.User:
			c, err := f.scanUser(i)
			if err != nil {
				return nil, err
			}
			rx := make([][]bool, len(c.in))
			for j, src := range c.in {
				row := make([]bool, q)
				if src > 0 {
					orFromPack(row, s, src)
				}
				rx[j] = row
			}
			ry, err := c.fn.ForSparseJac(q, rx)
			if err != nil {
				return nil, errors.Wrapf(err, "fun: atomic %s forward sparsity", c.fn.Name())
			}
			for j, dst := range c.out {
				if dst > 0 {
					s.Clear(dst)
					packFromBools(s, dst, ry[j])
				}
			}
			i = c.end

		default:
			panic(errors.Errorf("fun: malformed tape, unexpected %s at operator %d", o, i))
		}
	}
	f.forJacQ = q

	py := make([]bool, m*q)
	for i, v := range t.DepTaddr() {
		for k := 0; k < q; k++ {
			py[i*q+k] = s.IsElement(v, k)
		}
	}
	return py, nil
}

// RevSparseJac propagates Jacobian sparsity backward: py is the m x q bit
// matrix for the dependents and the result is the n x q matrix for the
// independents.
func (f *Fun) RevSparseJac(q int, py []bool) ([]bool, error) {
	t := f.t
	n, m := f.Domain(), f.Range()
	if q < 1 {
		return nil, errors.Errorf("fun: sparsity width %d must be positive", q)
	}
	if len(py) != m*q {
		return nil, errors.Errorf("fun: reverse sparsity wants %d bits, got %d", m*q, len(py))
	}

	var s sparse.PackSetVec
	s.Resize(t.NumVar(), q)
	for i, v := range t.DepTaddr() {
		for k := 0; k < q; k++ {
			if py[i*q+k] {
				s.AddElement(v, k)
			}
		}
	}
	var vecJac sparse.PackSetVec
	if t.NumVec() > 0 {
		vecJac.Resize(t.NumVec(), q)
	}

	for i := t.NumOp() - 1; i >= 0; i-- {
		o, args, res := t.OpInfo(i)
		switch o {
		case op.Begin, op.End, op.Inv, op.Par, op.Eq, op.Lt, op.Le:

		case op.AddVV, op.SubVV, op.MulVV, op.DivVV:
			s.BinaryUnion(args[0], args[0], res, &s)
			s.BinaryUnion(args[1], args[1], res, &s)
		case op.AddPV, op.SubPV, op.MulPV, op.DivPV:
			s.BinaryUnion(args[1], args[1], res, &s)
		case op.SubVP, op.DivVP:
			s.BinaryUnion(args[0], args[0], res, &s)

		case op.Neg, op.Abs, op.Sign, op.Sqrt, op.Exp, op.Log:
			s.BinaryUnion(args[0], args[0], res, &s)
		case op.Sin, op.Cos, op.Tan, op.Asin, op.Acos, op.Atan,
			op.Sinh, op.Cosh, op.Tanh, op.Asinh, op.Acosh, op.Atanh:
			s.BinaryUnion(args[0], args[0], res, &s)
			s.BinaryUnion(args[0], args[0], res-1, &s)

		case op.CondExpLt, op.CondExpLe, op.CondExpEq, op.CondExpGe, op.CondExpGt:
			if args[0]&4 != 0 {
				s.BinaryUnion(args[3], args[3], res, &s)
			}
			if args[0]&8 != 0 {
				s.BinaryUnion(args[4], args[4], res, &s)
			}

		case op.VecLoad:
			vecJac.BinaryUnion(args[0], args[0], res, &s)
		case op.VecStore:
			if args[1]&2 != 0 {
				s.BinaryUnion(args[3], args[3], args[0], &vecJac)
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
			ry := make([][]bool, len(c.out))
			for j, dst := range c.out {
				row := make([]bool, q)
				if dst > 0 {
					orFromPack(row, &s, dst)
				}
				ry[j] = row
			}
			rx, err := c.fn.RevSparseJac(q, ry)
			if err != nil {
				return nil, errors.Wrapf(err, "fun: atomic %s reverse sparsity", c.fn.Name())
			}
			for j, src := range c.in {
				if src > 0 {
					packFromBools(&s, src, rx[j])
				}
			}
			i = c.begin

		default:
			panic(errors.Errorf("fun: malformed tape, unexpected %s at operator %d", o, i))
		}
	}

	px := make([]bool, n*q)
	for j, v := range t.IndTaddr() {
		for k := 0; k < q; k++ {
			px[j*q+k] = s.IsElement(v, k)
		}
	}
	return px, nil
}

// RevSparseHes propagates Hessian sparsity backward for the dependents
// selected by sy (length m). It consumes the per-variable pattern cached by
// a ForSparseJac call with the same width q, and returns the n x q Hessian
// pattern of the independents.
func (f *Fun) RevSparseHes(q int, sy []bool) ([]bool, error) {
	t := f.t
	n, m := f.Domain(), f.Range()
	if len(sy) != m {
		return nil, errors.Errorf("fun: hessian sparsity wants %d selectors, got %d", m, len(sy))
	}
	if f.forJacQ != q {
		return nil, errors.Errorf("fun: hessian sparsity with width %d requires a prior forward "+
			"jacobian sparsity with the same width (have %d)", q, f.forJacQ)
	}

	jacFlag := make([]bool, t.NumVar())
	var hes sparse.PackSetVec
	hes.Resize(t.NumVar(), q)
	for i, v := range t.DepTaddr() {
		if sy[i] {
			jacFlag[v] = true
		}
	}
	var vecFlag []bool
	var vecHes sparse.PackSetVec
	if t.NumVec() > 0 {
		vecFlag = make([]bool, t.NumVec())
		vecHes.Resize(t.NumVec(), q)
	}

	fj := &f.forJac
	for i := t.NumOp() - 1; i >= 0; i-- {
		o, args, res := t.OpInfo(i)
		switch o {
		case op.Begin, op.End, op.Inv, op.Par, op.Sign, op.Eq, op.Lt, op.Le:
			// sign has zero derivative: nothing propagates

		case op.AddVV, op.SubVV:
			for _, a := range args[:2] {
				jacFlag[a] = jacFlag[a] || jacFlag[res]
				hes.BinaryUnion(a, a, res, &hes)
			}
		case op.AddPV, op.SubPV, op.MulPV:
			jacFlag[args[1]] = jacFlag[args[1]] || jacFlag[res]
			hes.BinaryUnion(args[1], args[1], res, &hes)
		case op.SubVP, op.DivVP:
			jacFlag[args[0]] = jacFlag[args[0]] || jacFlag[res]
			hes.BinaryUnion(args[0], args[0], res, &hes)
		case op.Neg, op.Abs:
			jacFlag[args[0]] = jacFlag[args[0]] || jacFlag[res]
			hes.BinaryUnion(args[0], args[0], res, &hes)

		case op.MulVV:
			x, y := args[0], args[1]
			jacFlag[x] = jacFlag[x] || jacFlag[res]
			jacFlag[y] = jacFlag[y] || jacFlag[res]
			hes.BinaryUnion(x, x, res, &hes)
			hes.BinaryUnion(y, y, res, &hes)
			if jacFlag[res] {
				hes.BinaryUnion(x, x, y, fj)
				hes.BinaryUnion(y, y, x, fj)
			}
		case op.DivVV:
			x, y := args[0], args[1]
			jacFlag[x] = jacFlag[x] || jacFlag[res]
			jacFlag[y] = jacFlag[y] || jacFlag[res]
			hes.BinaryUnion(x, x, res, &hes)
			hes.BinaryUnion(y, y, res, &hes)
			if jacFlag[res] {
				hes.BinaryUnion(x, x, y, fj)
				hes.BinaryUnion(y, y, x, fj)
				hes.BinaryUnion(y, y, y, fj)
			}
		case op.DivPV:
			y := args[1]
			jacFlag[y] = jacFlag[y] || jacFlag[res]
			hes.BinaryUnion(y, y, res, &hes)
			if jacFlag[res] {
				hes.BinaryUnion(y, y, y, fj)
			}

		case op.Sqrt, op.Exp, op.Log:
			x := args[0]
			jacFlag[x] = jacFlag[x] || jacFlag[res]
			hes.BinaryUnion(x, x, res, &hes)
			if jacFlag[res] {
				hes.BinaryUnion(x, x, x, fj)
			}
		case op.Sin, op.Cos, op.Tan, op.Asin, op.Acos, op.Atan,
			op.Sinh, op.Cosh, op.Tanh, op.Asinh, op.Acosh, op.Atanh:
			x := args[0]
			zf := jacFlag[res] || jacFlag[res-1]
			jacFlag[x] = jacFlag[x] || zf
			hes.BinaryUnion(x, x, res, &hes)
			hes.BinaryUnion(x, x, res-1, &hes)
			if zf {
				hes.BinaryUnion(x, x, x, fj)
			}

		case op.CondExpLt, op.CondExpLe, op.CondExpEq, op.CondExpGe, op.CondExpGt:
			if args[0]&4 != 0 {
				jacFlag[args[3]] = jacFlag[args[3]] || jacFlag[res]
				hes.BinaryUnion(args[3], args[3], res, &hes)
			}
			if args[0]&8 != 0 {
				jacFlag[args[4]] = jacFlag[args[4]] || jacFlag[res]
				hes.BinaryUnion(args[4], args[4], res, &hes)
			}

		case op.VecLoad:
			v := args[0]
			vecFlag[v] = vecFlag[v] || jacFlag[res]
			vecHes.BinaryUnion(v, v, res, &hes)
		case op.VecStore:
			if args[1]&2 != 0 {
				val := args[3]
				jacFlag[val] = jacFlag[val] || vecFlag[args[0]]
				hes.BinaryUnion(val, val, args[0], &vecHes)
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
			s := make([]bool, len(c.out))
			hy := make([][]bool, len(c.out))
			for j, dst := range c.out {
				row := make([]bool, q)
				if dst > 0 {
					s[j] = jacFlag[dst]
					orFromPack(row, &hes, dst)
				}
				hy[j] = row
			}
			rx := make([][]bool, len(c.in))
			for j, src := range c.in {
				row := make([]bool, q)
				if src > 0 {
					orFromPack(row, fj, src)
				}
				rx[j] = row
			}
			st, hx, err := c.fn.RevSparseHes(q, s, hy, rx)
			if err != nil {
				return nil, errors.Wrapf(err, "fun: atomic %s hessian sparsity", c.fn.Name())
			}
			for j, src := range c.in {
				if src > 0 {
					jacFlag[src] = jacFlag[src] || st[j]
					packFromBools(&hes, src, hx[j])
				}
			}
			i = c.begin

		default:
			panic(errors.Errorf("fun: malformed tape, unexpected %s at operator %d", o, i))
		}
	}

	h := make([]bool, n*q)
	for j, v := range t.IndTaddr() {
		for k := 0; k < q; k++ {
			h[j*q+k] = hes.IsElement(v, k)
		}
	}
	return h, nil
}

// orFromPack ors the elements of row i of s into the bool row.
func orFromPack(row []bool, s *sparse.PackSetVec, i int) {
	it := s.RowIter(i)
	for j := it.Next(); j < s.End(); j = it.Next() {
		row[j] = true
	}
}

// packFromBools ors a bool row into row i of s.
func packFromBools(s *sparse.PackSetVec, i int, row []bool) {
	for j, b := range row {
		if b {
			s.AddElement(i, j)
		}
	}
}
