package engine

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// Linear is the dense matrix-vector engine used by the classifier head and by
// the squeeze-excite transforms. Four stages: (0) register the input vector
// and compute a widened dot product per output unit, (1) add the sign-extended
// bias, (2) shift by F and saturate, (3) register the output. Input and output
// travel as 1x1xC tensors.
type Linear struct {
	format fixed.Format
	name   string
	mon    *dataflow.OverflowMonitor

	inFeatures  int
	outFeatures int

	// [outFeatures][inFeatures], flattened.
	weights []int32
	biases  []int32

	in dataflow.Token

	s0Valid bool
	s0      []int64
	s1Valid bool
	s1      []int64
	s2Valid bool
	s2      []int32

	out dataflow.Token
}

// NewLinear validates the geometry and builds a linear engine.
func NewLinear(format fixed.Format, inFeatures, outFeatures int, name string, mon *dataflow.OverflowMonitor) (*Linear, error) {
	if inFeatures <= 0 || outFeatures <= 0 {
		return nil, fmt.Errorf("engine: %s feature counts %d->%d must be positive", name, inFeatures, outFeatures)
	}
	if err := checkAccumulator(format, inFeatures, name); err != nil {
		return nil, err
	}
	return &Linear{
		format:      format,
		name:        name,
		mon:         mon,
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weights:     make([]int32, outFeatures*inFeatures),
		biases:      make([]int32, outFeatures),
	}, nil
}

// Weights exposes the coefficient bank, laid out [outFeatures][inFeatures].
func (l *Linear) Weights() []int32 {
	return l.weights
}

// Biases exposes the bias bank.
func (l *Linear) Biases() []int32 {
	return l.biases
}

// OutFeatures returns the output unit count.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}

// Latency returns the fixed pipeline depth.
func (l *Linear) Latency() int {
	return 4
}

// Push presents the input vector for this tick.
func (l *Linear) Push(t *dataflow.Tensor) {
	if t.Rows() != 1 || t.Cols() != 1 || t.Channels() != l.inFeatures {
		panic(fmt.Errorf("engine: %s expects 1x1x%d, got %dx%dx%d",
			l.name, l.inFeatures, t.Rows(), t.Cols(), t.Channels()))
	}
	l.in = dataflow.Token{Valid: true, Data: t}
}

// Output returns the result delivered this tick, if any.
func (l *Linear) Output() (*dataflow.Tensor, bool) {
	return l.out.Data, l.out.Valid
}

// Reset drops every in-flight token.
func (l *Linear) Reset() {
	l.in = dataflow.Token{}
	l.out = dataflow.Token{}
	l.s0Valid = false
	l.s1Valid = false
	l.s2Valid = false
	l.s0 = nil
	l.s1 = nil
	l.s2 = nil
}

// Tick advances all four stages, downstream first so each register takes the
// value its upstream neighbour held at the start of the tick.
func (l *Linear) Tick() {
	// Stage 3: output register.
	if l.s2Valid {
		dst := dataflow.NewVector(l.outFeatures)
		copy(dst.Data(), l.s2)
		l.out = dataflow.Token{Valid: true, Data: dst}
	} else {
		l.out = dataflow.Token{}
	}

	// Stage 2: shift and saturate.
	if l.s1Valid {
		sat := make([]int32, l.outFeatures)
		frac := uint(l.format.Frac())
		clipped := 0
		for i, v := range l.s1 {
			r, clip := l.format.Saturate(v >> frac)
			sat[i] = r
			if clip {
				clipped++
			}
		}
		l.mon.Note(l.name, clipped)
		l.s2 = sat
		l.s2Valid = true
	} else {
		l.s2Valid = false
	}

	// Stage 1: sign-extended bias add. The bias is held in raw F-fractional
	// form, so it is re-aligned to the 2F accumulator before the add.
	if l.s0Valid {
		biased := make([]int64, l.outFeatures)
		frac := uint(l.format.Frac())
		for i, v := range l.s0 {
			biased[i] = v + int64(l.biases[i])<<frac
		}
		l.s1 = biased
		l.s1Valid = true
	} else {
		l.s1Valid = false
	}

	// Stage 0: widened dot product against each weight row.
	if l.in.Valid {
		src := l.in.Data.Data()
		acc := make([]int64, l.outFeatures)
		for o := 0; o < l.outFeatures; o++ {
			wBase := o * l.inFeatures
			var sum int64
			for i := 0; i < l.inFeatures; i++ {
				sum += int64(l.weights[wBase+i]) * int64(src[i])
			}
			acc[o] = sum
		}
		l.s0 = acc
		l.s0Valid = true
	} else {
		l.s0Valid = false
	}
	l.in = dataflow.Token{}
}
