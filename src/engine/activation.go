// Package engine implements the datapath engines of the quantized inference
// pipeline: activations, fused batch-norm, the three convolution variants, the
// linear transform, pooling, the squeeze-excite sub-pipeline and the
// inverted-residual block. Every engine advances one pipeline stage per Tick,
// accepts at most one valid-qualified tensor per tick on Push (ready is always
// asserted; there is no backpressure) and delivers results in FIFO order after
// its fixed latency.
package engine

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// ActKind selects the piecewise activation applied by an Activation engine.
type ActKind int

const (
	ActReLU ActKind = iota
	ActReLU6
	ActHSwish
	ActHSigmoid
)

// String names the activation kind for instrumentation and config dumps.
func (k ActKind) String() string {
	switch k {
	case ActReLU:
		return "relu"
	case ActReLU6:
		return "relu6"
	case ActHSwish:
		return "hswish"
	case ActHSigmoid:
		return "hsigmoid"
	default:
		return "unknown"
	}
}

// Activation is a single-stage elementwise engine applying one of the four
// piecewise activations. The hard variants use the reciprocal-multiply
// division by six; the hard-sigmoid output is additionally clamped to
// [0, 1.0] on top of the generic saturation bounds.
type Activation struct {
	format fixed.Format
	kind   ActKind
	name   string
	mon    *dataflow.OverflowMonitor

	three int32
	six   int32

	in  dataflow.Token
	out dataflow.Token
}

// NewActivation validates the kind against the format (the clamping variants
// need 6.0 to be representable) and builds the engine.
func NewActivation(format fixed.Format, kind ActKind, name string, mon *dataflow.OverflowMonitor) (*Activation, error) {
	switch kind {
	case ActReLU, ActReLU6, ActHSwish, ActHSigmoid:
	default:
		return nil, fmt.Errorf("engine: unknown activation kind %d", kind)
	}
	six := int64(6) << format.Frac()
	if kind != ActReLU && six > int64(format.Max()) {
		return nil, fmt.Errorf("engine: 6.0 not representable in Q(%d,%d)", format.Width(), format.Frac())
	}
	return &Activation{
		format: format,
		kind:   kind,
		name:   name,
		mon:    mon,
		three:  int32(3) << format.Frac(),
		six:    int32(six),
	}, nil
}

// Kind returns the configured activation kind.
func (a *Activation) Kind() ActKind {
	return a.kind
}

// Latency returns the fixed pipeline depth.
func (a *Activation) Latency() int {
	return 1
}

// Push presents the input tensor for this tick.
func (a *Activation) Push(t *dataflow.Tensor) {
	a.in = dataflow.Token{Valid: true, Data: t}
}

// Output returns the result delivered this tick, if any.
func (a *Activation) Output() (*dataflow.Tensor, bool) {
	return a.out.Data, a.out.Valid
}

// Reset drops any in-flight token.
func (a *Activation) Reset() {
	a.in = dataflow.Token{}
	a.out = dataflow.Token{}
}

// Tick advances the single stage: the output register takes the activated
// input consumed this tick.
func (a *Activation) Tick() {
	if !a.in.Valid {
		a.out = dataflow.Token{}
		return
	}
	src := a.in.Data
	dst := dataflow.NewTensor(src.Rows(), src.Cols(), src.Channels())
	in := src.Data()
	out := dst.Data()
	clipped := 0
	for i, x := range in {
		v, c := a.apply(x)
		out[i] = v
		if c {
			clipped++
		}
	}
	a.mon.Note(a.name, clipped)
	a.in = dataflow.Token{}
	a.out = dataflow.Token{Valid: true, Data: dst}
}

// relu6Wide clamps a widened value to [0, 6.0] in raw fixed point.
func (a *Activation) relu6Wide(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > int64(a.six) {
		return int64(a.six)
	}
	return v
}

func (a *Activation) apply(x int32) (int32, bool) {
	switch a.kind {
	case ActReLU:
		if x < 0 {
			return 0, false
		}
		return x, false
	case ActReLU6:
		return int32(a.relu6Wide(int64(x))), false
	case ActHSwish:
		// The ReLU6 clamp is applied to x+3 before the multiply; the divide
		// by six and the fractional realignment share one rounding step.
		gate := a.relu6Wide(int64(x) + int64(a.three))
		q := fixed.DivByConstShift(int64(x)*gate, 6, uint(a.format.Frac()))
		return a.format.Saturate(q)
	case ActHSigmoid:
		gate := a.relu6Wide(int64(x) + int64(a.three))
		q := fixed.DivByConst(gate, 6)
		// Range invariant: hard-sigmoid never leaves [0, 1.0], enforced
		// explicitly on top of the generic saturation bounds.
		if q < 0 {
			q = 0
		}
		one := int64(a.format.One())
		if q > one {
			q = one
		}
		return int32(q), false
	default:
		panic(fmt.Errorf("engine: unreachable activation kind %d", a.kind))
	}
}
