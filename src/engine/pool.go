package engine

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// AvgPool is the global/adaptive average pooling engine. Stage 0 sums every
// spatial element of each output cell per channel into a widened accumulator;
// stage 1 divides by the cell element count using the reciprocal-multiply
// constants (rounded direct division for unlisted counts) and saturates. The
// global case (1x1 output) yields a per-channel vector; larger output grids
// are part of the contract even though the network only exercises the global
// case.
type AvgPool struct {
	format fixed.Format
	name   string
	mon    *dataflow.OverflowMonitor

	inRows, inCols   int
	channels         int
	outRows, outCols int

	s0Valid bool
	s0      *dataflow.Acc
	in      dataflow.Token
	out     dataflow.Token
}

// NewAvgPool validates the geometry and builds a pooling engine.
func NewAvgPool(format fixed.Format, inRows, inCols, channels, outRows, outCols int, name string, mon *dataflow.OverflowMonitor) (*AvgPool, error) {
	if inRows <= 0 || inCols <= 0 || channels <= 0 {
		return nil, fmt.Errorf("engine: %s input %dx%dx%d invalid", name, inRows, inCols, channels)
	}
	if outRows <= 0 || outCols <= 0 || outRows > inRows || outCols > inCols {
		return nil, fmt.Errorf("engine: %s output grid %dx%d invalid for input %dx%d", name, outRows, outCols, inRows, inCols)
	}
	if err := checkAccumulator(format, inRows*inCols, name); err != nil {
		return nil, err
	}
	return &AvgPool{
		format:   format,
		name:     name,
		mon:      mon,
		inRows:   inRows,
		inCols:   inCols,
		channels: channels,
		outRows:  outRows,
		outCols:  outCols,
	}, nil
}

// NewGlobalAvgPool builds the global (1x1 output) pooling variant.
func NewGlobalAvgPool(format fixed.Format, inRows, inCols, channels int, name string, mon *dataflow.OverflowMonitor) (*AvgPool, error) {
	return NewAvgPool(format, inRows, inCols, channels, 1, 1, name, mon)
}

// Latency returns the fixed pipeline depth.
func (p *AvgPool) Latency() int {
	return 2
}

// Push presents the input tensor for this tick.
func (p *AvgPool) Push(t *dataflow.Tensor) {
	if t.Rows() != p.inRows || t.Cols() != p.inCols || t.Channels() != p.channels {
		panic(fmt.Errorf("engine: %s expects %dx%dx%d, got %dx%dx%d",
			p.name, p.inRows, p.inCols, p.channels, t.Rows(), t.Cols(), t.Channels()))
	}
	p.in = dataflow.Token{Valid: true, Data: t}
}

// Output returns the result delivered this tick, if any.
func (p *AvgPool) Output() (*dataflow.Tensor, bool) {
	return p.out.Data, p.out.Valid
}

// Reset drops every in-flight token.
func (p *AvgPool) Reset() {
	p.in = dataflow.Token{}
	p.out = dataflow.Token{}
	p.s0Valid = false
	p.s0 = nil
}

// cell returns the half-open input range covered by output index i along a
// dimension of the given size.
func (p *AvgPool) cell(i, outDim, inDim int) (int, int) {
	start := i * inDim / outDim
	end := ((i+1)*inDim + outDim - 1) / outDim
	return start, end
}

// Tick advances both stages.
func (p *AvgPool) Tick() {
	if p.s0Valid {
		p.out = dataflow.Token{Valid: true, Data: p.divideStage(p.s0)}
	} else {
		p.out = dataflow.Token{}
	}
	if p.in.Valid {
		p.s0 = p.sumStage(p.in.Data)
		p.s0Valid = true
	} else {
		p.s0Valid = false
	}
	p.in = dataflow.Token{}
}

func (p *AvgPool) sumStage(src *dataflow.Tensor) *dataflow.Acc {
	acc := dataflow.NewAcc(p.outRows, p.outCols, p.channels)
	for oy := 0; oy < p.outRows; oy++ {
		y0, y1 := p.cell(oy, p.outRows, p.inRows)
		for ox := 0; ox < p.outCols; ox++ {
			x0, x1 := p.cell(ox, p.outCols, p.inCols)
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					for ch := 0; ch < p.channels; ch++ {
						acc.Add(oy, ox, ch, int64(src.At(y, x, ch)))
					}
				}
			}
		}
	}
	return acc
}

func (p *AvgPool) divideStage(acc *dataflow.Acc) *dataflow.Tensor {
	dst := dataflow.NewTensor(p.outRows, p.outCols, p.channels)
	clipped := 0
	for oy := 0; oy < p.outRows; oy++ {
		y0, y1 := p.cell(oy, p.outRows, p.inRows)
		for ox := 0; ox < p.outCols; ox++ {
			x0, x1 := p.cell(ox, p.outCols, p.inCols)
			count := (y1 - y0) * (x1 - x0)
			for ch := 0; ch < p.channels; ch++ {
				v, clip := p.format.Saturate(fixed.DivByConst(acc.At(oy, ox, ch), count))
				dst.Set(oy, ox, ch, v)
				if clip {
					clipped++
				}
			}
		}
	}
	p.mon.Note(p.name, clipped)
	return dst
}
