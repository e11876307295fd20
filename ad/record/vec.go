package record

import (
	"github.com/difftape/difftape/ad/op"
	"github.com/pkg/errors"
)

// A Vec is an array stored on the tape whose elements can be read and
// written with indices that are themselves variables. Loads and stores are
// recorded so replays at other inputs re-select the addressed slot from the
// live order-0 index value.
type Vec struct {
	r    *Recorder
	id   int
	vals []float64 // record-time shadow of the slot values
}

// NewVec registers a tape vector initialized with the given constants and
// returns it. The initial values join the parameter pool.
func (r *Recorder) NewVec(init []float64) (*Vec, error) {
	if r.stopped {
		return nil, errors.New("record: vector created after stop")
	}
	if len(init) == 0 {
		return nil, errors.New("record: tape vector must not be empty")
	}
	if r.cfg.MaxVecs > 0 && len(r.vecOff) >= r.cfg.MaxVecs {
		return nil, errors.Errorf("record: tape vector limit of %d exceeded", r.cfg.MaxVecs)
	}
	v := &Vec{r: r, id: len(r.vecOff), vals: append([]float64(nil), init...)}
	r.vecOff = append(r.vecOff, len(r.vecInit))
	for _, x := range init {
		r.vecInit = append(r.vecInit, r.par(x))
	}
	r.vecs = append(r.vecs, v)
	return v, nil
}

// Len returns the number of slots in the vector.
func (v *Vec) Len() int { return len(v.vals) }

// Load reads the slot addressed by the order-0 value of ix.
func (v *Vec) Load(ix Num) Num {
	r := v.r
	i := int(ix.val)
	if i < 0 || i >= len(v.vals) {
		r.fail(errors.Errorf("record: vector index %d out of range [0, %d)", i, len(v.vals)))
		return C(0)
	}
	flags := 0
	if ix.vid != 0 {
		flags = 1
	}
	vid := r.emit(op.VecLoad, v.id, flags, r.operand(ix))
	return Num{r: r, vid: vid, val: v.vals[i]}
}

// Store writes val to the slot addressed by the order-0 value of ix.
func (v *Vec) Store(ix, val Num) {
	r := v.r
	i := int(ix.val)
	if i < 0 || i >= len(v.vals) {
		r.fail(errors.Errorf("record: vector index %d out of range [0, %d)", i, len(v.vals)))
		return
	}
	flags := 0
	if ix.vid != 0 {
		flags |= 1
	}
	if val.vid != 0 {
		flags |= 2
	}
	r.emit(op.VecStore, v.id, flags, r.operand(ix), r.operand(val))
	v.vals[i] = val.val
}
