// Package atomic declares the hook through which the sweep engines drive a
// user-supplied opaque function recorded between User brackets on a tape,
// and a process-global registry resolving the atom index stored on tapes.
package atomic

import (
	"sync"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
)

// Fn is an externally supplied function that participates in sweeps as a
// single opaque operation. Taylor matrices are indexed [argument][order]:
// tx is nIn x (order+1), ty is nOut x (order+1). Sparsity rows are q bits
// wide.
type Fn interface {
	// Name identifies the atomic function in the registry.
	Name() string

	// NumIn and NumOut fix the call arity.
	NumIn() int
	NumOut() int

	// Forward computes ty[.][order] from tx, whose coefficients are valid
	// up to and including order.
	Forward(order int, tx, ty [][]float64) error

	// Reverse receives the partials py of the results and accumulates the
	// partials px of the arguments, both of width order+1.
	Reverse(order int, tx, ty, px, py [][]float64) error

	// ForSparseJac maps per-input sparsity rows to per-output rows.
	ForSparseJac(q int, rx [][]bool) ([][]bool, error)

	// RevSparseJac maps per-output sparsity rows to per-input rows.
	RevSparseJac(q int, ry [][]bool) ([][]bool, error)

	// RevSparseHes maps reverse Hessian state through the call: s carries
	// per-output Jacobian flags, hy per-output Hessian rows and rx the
	// per-input forward Jacobian rows. It returns per-input Jacobian flags
	// and Hessian rows.
	RevSparseHes(q int, s []bool, hy [][]bool, rx [][]bool) ([]bool, [][]bool, error)
}

var (
	mu     sync.RWMutex
	fns    []Fn
	byName = swiss.NewMap[string, int](8)
)

// Register adds f to the registry and returns the atom index recorded on
// tapes that call it. Registering the same name twice replaces the earlier
// function but keeps its index.
func Register(f Fn) int {
	mu.Lock()
	defer mu.Unlock()
	if i, ok := byName.Get(f.Name()); ok {
		fns[i] = f
		return i
	}
	fns = append(fns, f)
	byName.Put(f.Name(), len(fns)-1)
	return len(fns) - 1
}

// ByIndex resolves an atom index stored on a tape.
func ByIndex(i int) (Fn, error) {
	mu.RLock()
	defer mu.RUnlock()
	if i < 0 || i >= len(fns) {
		return nil, errors.Errorf("atomic: no function registered at index %d", i)
	}
	return fns[i], nil
}

// ByName resolves a registered atomic function by name.
func ByName(name string) (Fn, bool) {
	mu.RLock()
	defer mu.RUnlock()
	i, ok := byName.Get(name)
	if !ok {
		return nil, false
	}
	return fns[i], true
}
