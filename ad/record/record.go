// Package record implements the operation recorder: it observes elementary
// operations on the differentiable scalar Num during an independent..stop
// window and appends them to a growing tape.
package record

import (
	"math"
	"sync/atomic"

	"github.com/caarlos0/env/v6"
	"github.com/difftape/difftape/ad/op"
	"github.com/difftape/difftape/ad/tape"
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
)

// Config bounds the size of a recording. Zero values mean unlimited. The
// defaults come from the environment.
type Config struct {
	MaxOps  int `env:"DIFFTAPE_MAX_OPS"`
	MaxPars int `env:"DIFFTAPE_MAX_PARS"`
	MaxVecs int `env:"DIFFTAPE_MAX_VECS"`
}

// ConfigFromEnv returns the recording limits configured in the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "record: parse config")
	}
	return cfg, nil
}

// recording guards against nested recording windows; it is process-global
// like the trace state of the original engine.
var recording atomic.Bool

// A Recorder accumulates the operation sequence of one recording window.
// It is created by Independent and consumed by Stop (or discarded by
// Abort). A Recorder must be used from a single goroutine.
type Recorder struct {
	cfg Config

	ops   []op.Op
	argIx []int
	args  []int
	pars  []float64
	parIx *swiss.Map[uint64, int]

	numVar   int
	indTaddr []int

	vecOff  []int
	vecInit []int
	vecs    []*Vec

	stopped bool
	err     error // sticky recording error, reported by Stop
}

// Independent opens a recording window with the environment-configured
// limits: it marks xs as the independent variables, assigning them variable
// indices 1..len(xs) in order, and returns the recorder together with the
// differentiable values to compute with. It fails if a recording is already
// active.
func Independent(xs []float64) (*Recorder, []Num, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	return IndependentWithConfig(cfg, xs)
}

// IndependentWithConfig is Independent with explicit limits.
func IndependentWithConfig(cfg Config, xs []float64) (*Recorder, []Num, error) {
	if len(xs) == 0 {
		return nil, nil, errors.New("record: no independent variables")
	}
	if !recording.CompareAndSwap(false, true) {
		return nil, nil, errors.New("record: a recording is already active")
	}
	r := &Recorder{
		cfg:    cfg,
		numVar: 0,
		parIx:  swiss.NewMap[uint64, int](16),
	}
	r.emit(op.Begin) // allocates variable 0
	nums := make([]Num, len(xs))
	for i, x := range xs {
		vid := r.emit(op.Inv)
		r.indTaddr = append(r.indTaddr, vid)
		nums[i] = Num{r: r, vid: vid, val: x}
	}
	return r, nums, nil
}

// Stop closes the recording window: it captures deps as the dependent
// variables, emits the end sentinel, validates and returns the finished
// tape. Dependents that are constants are materialized with a Par operator
// and flagged. The process-global recording guard is released whether or
// not Stop succeeds.
func (r *Recorder) Stop(deps []Num) (*tape.Tape, error) {
	defer r.release()
	if r.stopped {
		return nil, errors.New("record: recording already stopped")
	}
	if len(deps) == 0 {
		return nil, errors.New("record: no dependent variables")
	}

	depTaddr := make([]int, len(deps))
	depParam := make([]bool, len(deps))
	for i, d := range deps {
		if d.vid == 0 {
			depTaddr[i] = r.emit(op.Par, r.par(d.val))
			depParam[i] = true
			continue
		}
		if d.r != r {
			r.fail(errors.Errorf("record: dependent %d belongs to another recording", i))
			break
		}
		depTaddr[i] = d.vid
	}
	r.emit(op.End)
	if r.err != nil {
		return nil, r.err
	}

	t, err := tape.New(tape.Def{
		Ops:      r.ops,
		ArgIx:    r.argIx,
		Args:     r.args,
		Pars:     r.pars,
		IndTaddr: r.indTaddr,
		DepTaddr: depTaddr,
		DepParam: depParam,
		VecOff:   r.vecOff,
		VecInit:  r.vecInit,
	})
	return t, errors.Wrap(err, "record: finalize")
}

// Abort discards the recording and releases the recording guard.
func (r *Recorder) Abort() {
	r.release()
}

func (r *Recorder) release() {
	if !r.stopped {
		r.stopped = true
		recording.Store(false)
	}
}

// fail records the first usage error encountered; Stop reports it.
func (r *Recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// emit appends an operator and its argument slots, allocating its result
// variables. It returns the primary result variable index, or -1 when the
// operator allocates none.
func (r *Recorder) emit(o op.Op, args ...int) int {
	if r.stopped {
		panic("record: operation recorded after stop")
	}
	if r.cfg.MaxOps > 0 && len(r.ops) >= r.cfg.MaxOps {
		r.fail(errors.Errorf("record: tape limit of %d operators exceeded", r.cfg.MaxOps))
		return r.numVar - 1
	}
	r.argIx = append(r.argIx, len(r.args))
	r.args = append(r.args, args...)
	r.ops = append(r.ops, o)
	if n := op.NumRes(o); n > 0 {
		r.numVar += n
		return r.numVar - 1
	}
	return -1
}

// par returns the pool index of parameter v, deduplicating by bit pattern
// so that +0 and -0, and distinct NaN payloads, keep separate identities.
func (r *Recorder) par(v float64) int {
	key := math.Float64bits(v)
	if i, ok := r.parIx.Get(key); ok {
		return i
	}
	if r.cfg.MaxPars > 0 && len(r.pars) >= r.cfg.MaxPars {
		r.fail(errors.Errorf("record: parameter pool limit of %d exceeded", r.cfg.MaxPars))
		return 0
	}
	r.pars = append(r.pars, v)
	r.parIx.Put(key, len(r.pars)-1)
	return len(r.pars) - 1
}
