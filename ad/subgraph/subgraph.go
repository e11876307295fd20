// Package subgraph computes the dependency sparsity pattern of a recorded
// function by forward reachability labelling over the operator graph
// followed by one backward traversal per selected dependent. Work space is
// reused across dependents by re-labelling visited operators with the
// dependent's own index.
package subgraph

import (
	"github.com/difftape/difftape/ad/op"
	"github.com/difftape/difftape/ad/tape"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// DepSparsity returns the (row, col) pairs of the dependency sparsity
// pattern restricted to the selected dependents (rows) and independents
// (columns): row[k] = i and col[k] = j means dependent i depends on
// independent j. Pairs are ordered by row, then column.
func DepSparsity(t *tape.Tape, selectDomain, selectRange []bool) (row, col []int, err error) {
	n, m := len(t.IndTaddr()), len(t.DepTaddr())
	if len(selectDomain) != n {
		return nil, nil, errors.Errorf("subgraph: %d domain selectors for %d independents", len(selectDomain), n)
	}
	if len(selectRange) != m {
		return nil, nil, errors.Errorf("subgraph: %d range selectors for %d dependents", len(selectRange), m)
	}

	mapUser := mapUserOp(t)

	// labels: a value < nDep marks "visited for that dependent", dependYes
	// marks reachable from the selected independents, dependNo unreachable.
	dependYes := m
	dependNo := m + 1
	inSubgraph := initSubgraph(t, mapUser, selectDomain, dependYes, dependNo)

	var subgraph []int
	for iDep := 0; iDep < m; iDep++ {
		if !selectRange[iDep] {
			continue
		}
		subgraph = getSubgraph(t, mapUser, inSubgraph, subgraph[:0], dependYes, iDep)
		for _, iOp := range subgraph {
			if t.Op(iOp) == op.Inv {
				// begin and inv both have one result, so the variable index
				// equals the operator index and the user index is one less
				row = append(row, iDep)
				col = append(col, iOp-1)
			}
		}
	}

	ord := make([]int, len(row))
	for i := range ord {
		ord[i] = i
	}
	slices.SortFunc(ord, func(a, b int) int {
		if row[a] != row[b] {
			return row[a] - row[b]
		}
		return col[a] - col[b]
	})
	srow := make([]int, len(row))
	scol := make([]int, len(col))
	for i, k := range ord {
		srow[i], scol[i] = row[k], col[k]
	}
	return srow, scol, nil
}

// mapUserOp collapses every operator inside an atomic call bracket onto the
// call's opening User operator; every other operator maps to itself.
func mapUserOp(t *tape.Tape) []int {
	numOp := t.NumOp()
	m := make([]int, numOp)
	for i := 0; i < numOp; i++ {
		m[i] = i
		if t.Op(i) == op.User {
			begin := i
			for i++; t.Op(i) != op.User; i++ {
				m[i] = begin
			}
			m[i] = begin
		}
	}
	return m
}

// argumentVariables collects the variable arguments of operator iOp, which
// must not be an interior atomic-call marker: for an opening User it
// gathers the variable arguments of the whole call.
func argumentVariables(t *tape.Tape, iOp int, out []int) []int {
	out = out[:0]
	o, args, _ := t.OpInfo(iOp)
	if o == op.User {
		for i := iOp + 1; t.Op(i) != op.User; i++ {
			if mo, margs, _ := t.OpInfo(i); mo == op.UsrAv {
				out = append(out, margs[0])
			}
		}
		return out
	}
	mask := op.ArgIsVariable(o, args)
	for j, a := range args {
		if mask&(1<<uint(j)) != 0 {
			out = append(out, a)
		}
	}
	return out
}

// initSubgraph walks the tape once, labelling every operator with
// dependYes when its result depends on a selected independent and dependNo
// otherwise. Only the opening User carries the label for an atomic call;
// comparison operators (no result) are excluded.
func initSubgraph(t *tape.Tape, mapUser []int, selectDomain []bool, dependYes, dependNo int) []int {
	numOp := t.NumOp()
	inSubgraph := make([]int, numOp)
	var argVar []int

	beginAtomic := false
	for iOp := 0; iOp < numOp; iOp++ {
		o := t.Op(iOp)
		switch o {
		case op.Inv:
			if selectDomain[iOp-1] {
				inSubgraph[iOp] = dependYes
			} else {
				inSubgraph[iOp] = dependNo
			}

		case op.User:
			beginAtomic = !beginAtomic
			inSubgraph[iOp] = dependNo
			if beginAtomic {
				argVar = argumentVariables(t, iOp, argVar)
				for _, v := range argVar {
					if inSubgraph[mapUser[t.Var2Op(v)]] == dependYes {
						inSubgraph[iOp] = dependYes
						break
					}
				}
			}

		case op.UsrAp, op.UsrAv, op.UsrRp, op.UsrRv:
			inSubgraph[iOp] = dependNo

		default:
			inSubgraph[iOp] = dependNo
			if op.NumRes(o) > 0 {
				argVar = argumentVariables(t, iOp, argVar)
				for _, v := range argVar {
					if inSubgraph[mapUser[t.Var2Op(v)]] == dependYes {
						inSubgraph[iOp] = dependYes
						break
					}
				}
			}
		}
	}
	return inSubgraph
}

// getSubgraph drains a worklist of the operators connected to dependent
// iDep that depend on the selected independents, marking visited operators
// with iDep so repeated calls reuse inSubgraph without clearing it.
func getSubgraph(t *tape.Tape, mapUser, inSubgraph, subgraph []int, dependYes, iDep int) []int {
	var argVar []int

	iOp := mapUser[t.Var2Op(t.DepTaddr()[iDep])]
	if inSubgraph[iOp] <= dependYes {
		subgraph = append(subgraph, iOp)
		inSubgraph[iOp] = iDep
	}
	for next := 0; next < len(subgraph); next++ {
		iOp = subgraph[next]
		argVar = argumentVariables(t, iOp, argVar)
		for _, v := range argVar {
			jOp := mapUser[t.Var2Op(v)]
			if inSubgraph[jOp] <= dependYes && inSubgraph[jOp] != iDep {
				subgraph = append(subgraph, jOp)
				inSubgraph[jOp] = iDep
			}
		}
	}
	return subgraph
}
