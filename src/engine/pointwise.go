package engine

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// PointwiseConv2D is the 1x1 convolution: a per-pixel matrix-vector product
// over channels with no spatial kernel. It serves both as a layer type and as
// the expand/project steps inside inverted-residual blocks. Same two-stage
// accumulate/saturate shape as the other convolution engines; no bias.
type PointwiseConv2D struct {
	format fixed.Format
	name   string
	mon    *dataflow.OverflowMonitor

	inCh, outCh int
	rows, cols  int

	// [outCh][inCh], flattened.
	weights []int32

	s0Valid bool
	s0      *dataflow.Acc
	in      dataflow.Token
	out     dataflow.Token
}

// NewPointwiseConv2D validates the geometry and builds a pointwise engine.
func NewPointwiseConv2D(format fixed.Format, inCh, outCh, rows, cols int, name string, mon *dataflow.OverflowMonitor) (*PointwiseConv2D, error) {
	if inCh <= 0 || outCh <= 0 {
		return nil, fmt.Errorf("engine: %s channel counts %d->%d must be positive", name, inCh, outCh)
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("engine: %s input %dx%d invalid", name, rows, cols)
	}
	if err := checkAccumulator(format, inCh, name); err != nil {
		return nil, err
	}
	return &PointwiseConv2D{
		format:  format,
		name:    name,
		mon:     mon,
		inCh:    inCh,
		outCh:   outCh,
		rows:    rows,
		cols:    cols,
		weights: make([]int32, outCh*inCh),
	}, nil
}

// Weights exposes the coefficient bank, laid out [outCh][inCh].
func (p *PointwiseConv2D) Weights() []int32 {
	return p.weights
}

// OutChannels returns the output channel count.
func (p *PointwiseConv2D) OutChannels() int {
	return p.outCh
}

// Latency returns the fixed pipeline depth.
func (p *PointwiseConv2D) Latency() int {
	return 2
}

// Push presents the input tensor for this tick.
func (p *PointwiseConv2D) Push(t *dataflow.Tensor) {
	if t.Rows() != p.rows || t.Cols() != p.cols || t.Channels() != p.inCh {
		panic(fmt.Errorf("engine: %s expects %dx%dx%d, got %dx%dx%d",
			p.name, p.rows, p.cols, p.inCh, t.Rows(), t.Cols(), t.Channels()))
	}
	p.in = dataflow.Token{Valid: true, Data: t}
}

// Output returns the result delivered this tick, if any.
func (p *PointwiseConv2D) Output() (*dataflow.Tensor, bool) {
	return p.out.Data, p.out.Valid
}

// Reset drops every in-flight token.
func (p *PointwiseConv2D) Reset() {
	p.in = dataflow.Token{}
	p.out = dataflow.Token{}
	p.s0Valid = false
	p.s0 = nil
}

// Tick advances both stages.
func (p *PointwiseConv2D) Tick() {
	if p.s0Valid {
		p.out = dataflow.Token{Valid: true, Data: p.saturateStage(p.s0)}
	} else {
		p.out = dataflow.Token{}
	}
	if p.in.Valid {
		p.s0 = p.accumulateStage(p.in.Data)
		p.s0Valid = true
	} else {
		p.s0Valid = false
	}
	p.in = dataflow.Token{}
}

func (p *PointwiseConv2D) accumulateStage(src *dataflow.Tensor) *dataflow.Acc {
	acc := dataflow.NewAcc(p.rows, p.cols, p.outCh)
	for y := 0; y < p.rows; y++ {
		for x := 0; x < p.cols; x++ {
			for oc := 0; oc < p.outCh; oc++ {
				wBase := oc * p.inCh
				var sum int64
				for ic := 0; ic < p.inCh; ic++ {
					sum += int64(p.weights[wBase+ic]) * int64(src.At(y, x, ic))
				}
				acc.Set(y, x, oc, sum)
			}
		}
	}
	return acc
}

func (p *PointwiseConv2D) saturateStage(acc *dataflow.Acc) *dataflow.Tensor {
	dst := dataflow.NewTensor(acc.Rows(), acc.Cols(), acc.Channels())
	frac := uint(p.format.Frac())
	in := acc.Data()
	out := dst.Data()
	clipped := 0
	for i, v := range in {
		r, clip := p.format.Saturate(v >> frac)
		out[i] = r
		if clip {
			clipped++
		}
	}
	p.mon.Note(p.name, clipped)
	return dst
}
