package engine

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// DepthwiseConv2D convolves each channel independently with its own K x K
// kernel; there is no channel mixing. Padding is materialized into an explicit
// zero-padded buffer before the sliding-window sum, trading memory for simpler
// bounds logic. Same two-stage accumulate/saturate shape as Conv2D; no bias.
type DepthwiseConv2D struct {
	format fixed.Format
	name   string
	mon    *dataflow.OverflowMonitor

	channels         int
	kernel, stride   int
	pad              int
	inRows, inCols   int
	outRows, outCols int

	// [channel][kh][kw], flattened.
	weights []int32

	// Reusable zero-padded staging buffer; the border stays zero for the
	// lifetime of the engine.
	padded *dataflow.Tensor

	s0Valid bool
	s0      *dataflow.Acc
	in      dataflow.Token
	out     dataflow.Token
}

// NewDepthwiseConv2D validates the geometry and builds a depthwise engine.
func NewDepthwiseConv2D(format fixed.Format, channels, kernel, stride, pad, inRows, inCols int, name string, mon *dataflow.OverflowMonitor) (*DepthwiseConv2D, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("engine: %s channel count %d must be positive", name, channels)
	}
	if kernel <= 0 || stride <= 0 || pad < 0 {
		return nil, fmt.Errorf("engine: %s kernel %d stride %d pad %d invalid", name, kernel, stride, pad)
	}
	if inRows <= 0 || inCols <= 0 {
		return nil, fmt.Errorf("engine: %s input %dx%d invalid", name, inRows, inCols)
	}
	if kernel > inRows+2*pad || kernel > inCols+2*pad {
		return nil, fmt.Errorf("engine: %s kernel %d larger than padded input %dx%d", name, kernel, inRows+2*pad, inCols+2*pad)
	}
	if err := checkAccumulator(format, kernel*kernel, name); err != nil {
		return nil, err
	}
	return &DepthwiseConv2D{
		format:   format,
		name:     name,
		mon:      mon,
		channels: channels,
		kernel:   kernel,
		stride:   stride,
		pad:      pad,
		inRows:   inRows,
		inCols:   inCols,
		outRows:  convOutDim(inRows, kernel, stride, pad),
		outCols:  convOutDim(inCols, kernel, stride, pad),
		weights:  make([]int32, channels*kernel*kernel),
		padded:   dataflow.NewTensor(inRows+2*pad, inCols+2*pad, channels),
	}, nil
}

// Weights exposes the coefficient bank, laid out [channel][kh][kw].
func (d *DepthwiseConv2D) Weights() []int32 {
	return d.weights
}

// OutRows returns the output spatial height.
func (d *DepthwiseConv2D) OutRows() int {
	return d.outRows
}

// OutCols returns the output spatial width.
func (d *DepthwiseConv2D) OutCols() int {
	return d.outCols
}

// Latency returns the fixed pipeline depth.
func (d *DepthwiseConv2D) Latency() int {
	return 2
}

// Push presents the input tensor for this tick.
func (d *DepthwiseConv2D) Push(t *dataflow.Tensor) {
	if t.Rows() != d.inRows || t.Cols() != d.inCols || t.Channels() != d.channels {
		panic(fmt.Errorf("engine: %s expects %dx%dx%d, got %dx%dx%d",
			d.name, d.inRows, d.inCols, d.channels, t.Rows(), t.Cols(), t.Channels()))
	}
	d.in = dataflow.Token{Valid: true, Data: t}
}

// Output returns the result delivered this tick, if any.
func (d *DepthwiseConv2D) Output() (*dataflow.Tensor, bool) {
	return d.out.Data, d.out.Valid
}

// Reset drops every in-flight token.
func (d *DepthwiseConv2D) Reset() {
	d.in = dataflow.Token{}
	d.out = dataflow.Token{}
	d.s0Valid = false
	d.s0 = nil
}

// Tick advances both stages.
func (d *DepthwiseConv2D) Tick() {
	if d.s0Valid {
		d.out = dataflow.Token{Valid: true, Data: d.saturateStage(d.s0)}
	} else {
		d.out = dataflow.Token{}
	}
	if d.in.Valid {
		d.s0 = d.accumulateStage(d.in.Data)
		d.s0Valid = true
	} else {
		d.s0Valid = false
	}
	d.in = dataflow.Token{}
}

func (d *DepthwiseConv2D) accumulateStage(src *dataflow.Tensor) *dataflow.Acc {
	for y := 0; y < d.inRows; y++ {
		for x := 0; x < d.inCols; x++ {
			for ch := 0; ch < d.channels; ch++ {
				d.padded.Set(y+d.pad, x+d.pad, ch, src.At(y, x, ch))
			}
		}
	}
	acc := dataflow.NewAcc(d.outRows, d.outCols, d.channels)
	k := d.kernel
	for ch := 0; ch < d.channels; ch++ {
		wBase := ch * k * k
		for oy := 0; oy < d.outRows; oy++ {
			for ox := 0; ox < d.outCols; ox++ {
				var sum int64
				for kh := 0; kh < k; kh++ {
					wKH := wBase + kh*k
					for kw := 0; kw < k; kw++ {
						sum += int64(d.weights[wKH+kw]) * int64(d.padded.At(oy*d.stride+kh, ox*d.stride+kw, ch))
					}
				}
				acc.Set(oy, ox, ch, sum)
			}
		}
	}
	return acc
}

func (d *DepthwiseConv2D) saturateStage(acc *dataflow.Acc) *dataflow.Tensor {
	dst := dataflow.NewTensor(acc.Rows(), acc.Cols(), acc.Channels())
	frac := uint(d.format.Frac())
	in := acc.Data()
	out := dst.Data()
	clipped := 0
	for i, v := range in {
		r, clip := d.format.Saturate(v >> frac)
		out[i] = r
		if clip {
			clipped++
		}
	}
	d.mon.Note(d.name, clipped)
	return dst
}
