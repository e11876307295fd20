package record

import (
	"github.com/difftape/difftape/ad/atomic"
	"github.com/difftape/difftape/ad/op"
	"github.com/pkg/errors"
)

// AtomicCall records a call to the atomic function f with arguments ax.
// The call is bracketed by User markers on the tape; the sweeps treat its
// interior as opaque and drive it through the atomic hook. The function is
// registered (idempotently, by name) so the tape's atom index resolves.
func (r *Recorder) AtomicCall(f atomic.Fn, ax []Num) ([]Num, error) {
	if r.stopped {
		return nil, errors.New("record: atomic call recorded after stop")
	}
	nIn, nOut := f.NumIn(), f.NumOut()
	if len(ax) != nIn {
		return nil, errors.Errorf("record: atomic %s takes %d arguments, got %d", f.Name(), nIn, len(ax))
	}

	// order-0 forward gives the recording-time values of the results
	tx := make([][]float64, nIn)
	for i, a := range ax {
		tx[i] = []float64{a.val}
	}
	ty := make([][]float64, nOut)
	for i := range ty {
		ty[i] = make([]float64, 1)
	}
	if err := f.Forward(0, tx, ty); err != nil {
		return nil, errors.Wrapf(err, "record: atomic %s order-0 forward", f.Name())
	}

	atom := atomic.Register(f)
	r.emit(op.User, atom, nIn, nOut)
	for _, a := range ax {
		if a.vid != 0 {
			r.emit(op.UsrAv, a.vid)
		} else {
			r.emit(op.UsrAp, r.par(a.val))
		}
	}
	ys := make([]Num, nOut)
	for i := range ys {
		vid := r.emit(op.UsrRv)
		ys[i] = Num{r: r, vid: vid, val: ty[i][0]}
	}
	r.emit(op.User, atom, nIn, nOut)
	return ys, nil
}
