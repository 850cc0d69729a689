package engine

import (
	"fmt"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

// BatchNorm applies the inference-time fused batch-norm affine map
// y = saturate((x * effectiveWeight[c]) >> F + effectiveBias[c]) per channel.
// The engine never computes running statistics: the parameters are precomputed
// upstream (gamma/sqrt(var+eps) and beta - mean*effectiveWeight), loaded once
// and reused across inferences. One pipeline stage; works on spatial tensors
// and on 1x1xC feature vectors alike.
type BatchNorm struct {
	format   fixed.Format
	name     string
	mon      *dataflow.OverflowMonitor
	channels int

	effWeight []int32
	effBias   []int32

	in  dataflow.Token
	out dataflow.Token
}

// NewBatchNorm builds a fused batch-norm stage for the given channel count.
func NewBatchNorm(format fixed.Format, channels int, name string, mon *dataflow.OverflowMonitor) (*BatchNorm, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("engine: batch-norm channel count %d must be positive", channels)
	}
	return &BatchNorm{
		format:    format,
		name:      name,
		mon:       mon,
		channels:  channels,
		effWeight: make([]int32, channels),
		effBias:   make([]int32, channels),
	}, nil
}

// EffectiveWeights exposes the per-channel scale bank for the weight loader.
func (b *BatchNorm) EffectiveWeights() []int32 {
	return b.effWeight
}

// EffectiveBiases exposes the per-channel shift bank for the weight loader.
func (b *BatchNorm) EffectiveBiases() []int32 {
	return b.effBias
}

// Channels returns the configured channel count.
func (b *BatchNorm) Channels() int {
	return b.channels
}

// Latency returns the fixed pipeline depth.
func (b *BatchNorm) Latency() int {
	return 1
}

// Push presents the input tensor for this tick.
func (b *BatchNorm) Push(t *dataflow.Tensor) {
	if t.Channels() != b.channels {
		panic(fmt.Errorf("engine: %s expects %d channels, got %d", b.name, b.channels, t.Channels()))
	}
	b.in = dataflow.Token{Valid: true, Data: t}
}

// Output returns the result delivered this tick, if any.
func (b *BatchNorm) Output() (*dataflow.Tensor, bool) {
	return b.out.Data, b.out.Valid
}

// Reset drops any in-flight token.
func (b *BatchNorm) Reset() {
	b.in = dataflow.Token{}
	b.out = dataflow.Token{}
}

// Tick applies the affine map to the tensor consumed this tick.
func (b *BatchNorm) Tick() {
	if !b.in.Valid {
		b.out = dataflow.Token{}
		return
	}
	src := b.in.Data
	dst := dataflow.NewTensor(src.Rows(), src.Cols(), src.Channels())
	frac := uint(b.format.Frac())
	in := src.Data()
	out := dst.Data()
	clipped := 0
	for i, x := range in {
		ch := i % b.channels
		acc := (int64(x)*int64(b.effWeight[ch]))>>frac + int64(b.effBias[ch])
		v, c := b.format.Saturate(acc)
		out[i] = v
		if c {
			clipped++
		}
	}
	b.mon.Note(b.name, clipped)
	b.in = dataflow.Token{}
	b.out = dataflow.Token{Valid: true, Data: dst}
}
