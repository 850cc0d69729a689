package engine

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// rescaleStage multiplies each channel of the delayed feature tensor by its
// hard-sigmoid gate value and shifts by F. The product of two saturated W-bit
// operands with a gate bounded to [0, 1.0] already fits before the shift, so
// there is no further saturation here.
type rescaleStage struct {
	format     fixed.Format
	name       string
	rows, cols int
	channels   int

	feat dataflow.Token
	gate dataflow.Token
	out  dataflow.Token
}

func (r *rescaleStage) Push(t *dataflow.Tensor) {
	r.feat = dataflow.Token{Valid: true, Data: t}
}

func (r *rescaleStage) PushGate(g *dataflow.Tensor) {
	if g.Channels() != r.channels {
		panic(fmt.Errorf("engine: %s gate expects %d channels, got %d", r.name, r.channels, g.Channels()))
	}
	r.gate = dataflow.Token{Valid: true, Data: g}
}

func (r *rescaleStage) Output() (*dataflow.Tensor, bool) {
	return r.out.Data, r.out.Valid
}

func (r *rescaleStage) Reset() {
	r.feat = dataflow.Token{}
	r.gate = dataflow.Token{}
	r.out = dataflow.Token{}
}

func (r *rescaleStage) Tick() {
	if r.feat.Valid != r.gate.Valid {
		panic(fmt.Errorf("engine: %s feature and gate tokens desynchronized", r.name))
	}
	if !r.feat.Valid {
		r.out = dataflow.Token{}
		return
	}
	src := r.feat.Data
	gate := r.gate.Data
	dst := dataflow.NewTensor(src.Rows(), src.Cols(), src.Channels())
	frac := uint(r.format.Frac())
	for y := 0; y < src.Rows(); y++ {
		for x := 0; x < src.Cols(); x++ {
			for ch := 0; ch < src.Channels(); ch++ {
				v := (int64(src.At(y, x, ch)) * int64(gate.At(0, 0, ch))) >> frac
				dst.Set(y, x, ch, int32(v))
			}
		}
	}
	r.feat = dataflow.Token{}
	r.gate = dataflow.Token{}
	r.out = dataflow.Token{Valid: true, Data: dst}
}

// SqueezeExcite is the channel-attention sub-pipeline: global pool -> linear
// reduce -> batch-norm -> ReLU -> linear expand -> batch-norm -> hard-sigmoid,
// producing a per-channel gate that rescales the original (pre-pool) tensor.
// The original tensor rides a delay line matched to the gate path latency so
// feature and gate arrive at the rescale stage on the same tick. A disabled SE
// is a structural bypass at the block level, never a zero-weighted pass
// through this engine.
type SqueezeExcite struct {
	name     string
	channels int

	pool       *AvgPool
	reduce     *Linear
	reduceNorm *BatchNorm
	relu       *Activation
	expand     *Linear
	expandNorm *BatchNorm
	gateAct    *Activation
	delay      *dataflow.Delay
	rescale    *rescaleStage

	staged  dataflow.Token
	latency int
}

// NewSqueezeExcite builds the sub-pipeline for a rows x cols x channels tensor
// with the given reduced (squeezed) width.
func NewSqueezeExcite(format fixed.Format, rows, cols, channels, reduced int, name string, mon *dataflow.OverflowMonitor) (*SqueezeExcite, error) {
	if reduced <= 0 {
		return nil, fmt.Errorf("engine: %s squeezed width %d must be positive", name, reduced)
	}
	pool, err := NewGlobalAvgPool(format, rows, cols, channels, name+".pool", mon)
	if err != nil {
		return nil, err
	}
	reduce, err := NewLinear(format, channels, reduced, name+".reduce", mon)
	if err != nil {
		return nil, err
	}
	reduceNorm, err := NewBatchNorm(format, reduced, name+".reduce_norm", mon)
	if err != nil {
		return nil, err
	}
	relu, err := NewActivation(format, ActReLU, name+".relu", mon)
	if err != nil {
		return nil, err
	}
	expand, err := NewLinear(format, reduced, channels, name+".expand", mon)
	if err != nil {
		return nil, err
	}
	expandNorm, err := NewBatchNorm(format, channels, name+".expand_norm", mon)
	if err != nil {
		return nil, err
	}
	gateAct, err := NewActivation(format, ActHSigmoid, name+".gate", mon)
	if err != nil {
		return nil, err
	}

	gateLatency := pool.Latency() + reduce.Latency() + reduceNorm.Latency() +
		relu.Latency() + expand.Latency() + expandNorm.Latency() + gateAct.Latency()
	return &SqueezeExcite{
		name:       name,
		channels:   channels,
		pool:       pool,
		reduce:     reduce,
		reduceNorm: reduceNorm,
		relu:       relu,
		expand:     expand,
		expandNorm: expandNorm,
		gateAct:    gateAct,
		delay:      dataflow.NewDelay(gateLatency),
		rescale: &rescaleStage{
			format:   format,
			name:     name + ".rescale",
			rows:     rows,
			cols:     cols,
			channels: channels,
		},
		latency: gateLatency + 1,
	}, nil
}

// Reduce exposes the squeeze transform for the weight loader.
func (s *SqueezeExcite) Reduce() *Linear {
	return s.reduce
}

// ReduceNorm exposes the squeeze-side batch-norm for the weight loader.
func (s *SqueezeExcite) ReduceNorm() *BatchNorm {
	return s.reduceNorm
}

// Expand exposes the excite transform for the weight loader.
func (s *SqueezeExcite) Expand() *Linear {
	return s.expand
}

// ExpandNorm exposes the excite-side batch-norm for the weight loader.
func (s *SqueezeExcite) ExpandNorm() *BatchNorm {
	return s.expandNorm
}

// Latency returns the fixed pipeline depth (gate path plus the rescale stage).
func (s *SqueezeExcite) Latency() int {
	return s.latency
}

// Push presents the input tensor for this tick.
func (s *SqueezeExcite) Push(t *dataflow.Tensor) {
	if t.Channels() != s.channels {
		panic(fmt.Errorf("engine: %s expects %d channels, got %d", s.name, s.channels, t.Channels()))
	}
	s.staged = dataflow.Token{Valid: true, Data: t}
}

// Output returns the rescaled tensor delivered this tick, if any.
func (s *SqueezeExcite) Output() (*dataflow.Tensor, bool) {
	return s.rescale.Output()
}

// Reset drops every in-flight token.
func (s *SqueezeExcite) Reset() {
	s.staged = dataflow.Token{}
	s.pool.Reset()
	s.reduce.Reset()
	s.reduceNorm.Reset()
	s.relu.Reset()
	s.expand.Reset()
	s.expandNorm.Reset()
	s.gateAct.Reset()
	s.delay.Reset()
	s.rescale.Reset()
}

// Tick advances every constituent one stage and then moves tokens across the
// internal wires for the next tick.
func (s *SqueezeExcite) Tick() {
	if s.staged.Valid {
		s.pool.Push(s.staged.Data)
	}
	delayed := s.delay.Tick(s.staged)
	s.staged = dataflow.Token{}

	s.pool.Tick()
	s.reduce.Tick()
	s.reduceNorm.Tick()
	s.relu.Tick()
	s.expand.Tick()
	s.expandNorm.Tick()
	s.gateAct.Tick()
	s.rescale.Tick()

	if t, ok := s.pool.Output(); ok {
		s.reduce.Push(t)
	}
	if t, ok := s.reduce.Output(); ok {
		s.reduceNorm.Push(t)
	}
	if t, ok := s.reduceNorm.Output(); ok {
		s.relu.Push(t)
	}
	if t, ok := s.relu.Output(); ok {
		s.expand.Push(t)
	}
	if t, ok := s.expand.Output(); ok {
		s.expandNorm.Push(t)
	}
	if t, ok := s.expandNorm.Output(); ok {
		s.gateAct.Push(t)
	}
	if g, ok := s.gateAct.Output(); ok {
		s.rescale.PushGate(g)
	}
	if delayed.Valid {
		s.rescale.Push(delayed.Data)
	}
}
