package engine

import (
	"fmt"
	"math/bits"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// accBits returns the accumulator width required for a reduction of the given
// element count: two full operand widths plus the tree growth plus a six bit
// margin for cross-term growth.
func accBits(format fixed.Format, reduction int) int {
	growth := 0
	if reduction > 1 {
		growth = bits.Len(uint(reduction - 1))
	}
	return 2*format.Width() + growth + 6
}

// checkAccumulator rejects configurations whose widened sums could escape the
// int64 accumulator. This is a construction-time contract, never a runtime
// discovery.
func checkAccumulator(format fixed.Format, reduction int, name string) error {
	if reduction <= 0 {
		return fmt.Errorf("engine: %s reduction count %d must be positive", name, reduction)
	}
	if n := accBits(format, reduction); n > 63 {
		return fmt.Errorf("engine: %s needs a %d-bit accumulator, exceeds 64", name, n)
	}
	return nil
}

func convOutDim(in, kernel, stride, pad int) int {
	return (in+2*pad-kernel)/stride + 1
}

// Conv2D is the full K x K convolution engine: every output channel sums over
// in-channel x kh x kw with stride and symmetric zero padding; out-of-bounds
// taps contribute zero. Two stages: stage 0 accumulates widened sums over the
// receptive field, stage 1 right-shifts by F and saturates. There is no bias
// term; bias folds into the fused batch-norm that always follows.
type Conv2D struct {
	format fixed.Format
	name   string
	mon    *dataflow.OverflowMonitor

	inCh, outCh      int
	kernel, stride   int
	pad              int
	inRows, inCols   int
	outRows, outCols int

	// [outCh][inCh][kh][kw], flattened.
	weights []int32

	s0Valid bool
	s0      *dataflow.Acc
	in      dataflow.Token
	out     dataflow.Token
}

// NewConv2D validates the geometry and builds a full convolution engine.
func NewConv2D(format fixed.Format, inCh, outCh, kernel, stride, pad, inRows, inCols int, name string, mon *dataflow.OverflowMonitor) (*Conv2D, error) {
	if inCh <= 0 || outCh <= 0 {
		return nil, fmt.Errorf("engine: %s channel counts %d->%d must be positive", name, inCh, outCh)
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
	if err := checkAccumulator(format, inCh*kernel*kernel, name); err != nil {
		return nil, err
	}
	return &Conv2D{
		format:  format,
		name:    name,
		mon:     mon,
		inCh:    inCh,
		outCh:   outCh,
		kernel:  kernel,
		stride:  stride,
		pad:     pad,
		inRows:  inRows,
		inCols:  inCols,
		outRows: convOutDim(inRows, kernel, stride, pad),
		outCols: convOutDim(inCols, kernel, stride, pad),
		weights: make([]int32, outCh*inCh*kernel*kernel),
	}, nil
}

// Weights exposes the coefficient bank, laid out [outCh][inCh][kh][kw].
func (c *Conv2D) Weights() []int32 {
	return c.weights
}

// OutRows returns the output spatial height.
func (c *Conv2D) OutRows() int {
	return c.outRows
}

// OutCols returns the output spatial width.
func (c *Conv2D) OutCols() int {
	return c.outCols
}

// OutChannels returns the output channel count.
func (c *Conv2D) OutChannels() int {
	return c.outCh
}

// Latency returns the fixed pipeline depth.
func (c *Conv2D) Latency() int {
	return 2
}

// Push presents the input tensor for this tick.
func (c *Conv2D) Push(t *dataflow.Tensor) {
	if t.Rows() != c.inRows || t.Cols() != c.inCols || t.Channels() != c.inCh {
		panic(fmt.Errorf("engine: %s expects %dx%dx%d, got %dx%dx%d",
			c.name, c.inRows, c.inCols, c.inCh, t.Rows(), t.Cols(), t.Channels()))
	}
	c.in = dataflow.Token{Valid: true, Data: t}
}

// Output returns the result delivered this tick, if any.
func (c *Conv2D) Output() (*dataflow.Tensor, bool) {
	return c.out.Data, c.out.Valid
}

// Reset drops every in-flight token.
func (c *Conv2D) Reset() {
	c.in = dataflow.Token{}
	c.out = dataflow.Token{}
	c.s0Valid = false
	c.s0 = nil
}

// Tick advances both stages: stage 1 saturates the accumulator tensor staged
// last tick, stage 0 accumulates the tensor consumed this tick.
func (c *Conv2D) Tick() {
	if c.s0Valid {
		c.out = dataflow.Token{Valid: true, Data: c.saturateStage(c.s0)}
	} else {
		c.out = dataflow.Token{}
	}
	if c.in.Valid {
		c.s0 = c.accumulateStage(c.in.Data)
		c.s0Valid = true
	} else {
		c.s0Valid = false
	}
	c.in = dataflow.Token{}
}

func (c *Conv2D) accumulateStage(src *dataflow.Tensor) *dataflow.Acc {
	acc := dataflow.NewAcc(c.outRows, c.outCols, c.outCh)
	k := c.kernel
	kk := k * k
	for oc := 0; oc < c.outCh; oc++ {
		wBase := oc * c.inCh * kk
		for oy := 0; oy < c.outRows; oy++ {
			for ox := 0; ox < c.outCols; ox++ {
				var sum int64
				for ic := 0; ic < c.inCh; ic++ {
					wIC := wBase + ic*kk
					for kh := 0; kh < k; kh++ {
						iy := oy*c.stride + kh - c.pad
						if iy < 0 || iy >= c.inRows {
							continue
						}
						wKH := wIC + kh*k
						for kw := 0; kw < k; kw++ {
							ix := ox*c.stride + kw - c.pad
							if ix < 0 || ix >= c.inCols {
								continue
							}
							sum += int64(c.weights[wKH+kw]) * int64(src.At(iy, ix, ic))
						}
					}
				}
				acc.Set(oy, ox, oc, sum)
			}
		}
	}
	return acc
}

func (c *Conv2D) saturateStage(acc *dataflow.Acc) *dataflow.Tensor {
	dst := dataflow.NewTensor(acc.Rows(), acc.Cols(), acc.Channels())
	frac := uint(c.format.Frac())
	in := acc.Data()
	out := dst.Data()
	clipped := 0
	for i, v := range in {
		r, clip := c.format.Saturate(v >> frac)
		out[i] = r
		if clip {
			clipped++
		}
	}
	c.mon.Note(c.name, clipped)
	return dst
}
