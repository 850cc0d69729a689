// Package dataflow provides the tensor, token and timing plumbing shared by
// the datapath engines: fixed-shape feature tensors, widened accumulator
// tensors, valid-qualified tokens, delay lines for path alignment and the
// saturation instrumentation monitor.
package dataflow

import "fmt"

// Tensor is a 3-D feature map indexed [row][col][channel] over raw fixed-point
// values. Dimensions are fixed at construction; 1-D feature vectors travel as
// 1x1xC tensors so every engine port carries the same token type.
type Tensor struct {
	rows  int
	cols  int
	chans int
	data  []int32
}

// NewTensor allocates a zeroed tensor. Non-positive dimensions are a
// structural contract violation.
func NewTensor(rows, cols, chans int) *Tensor {
	if rows <= 0 || cols <= 0 || chans <= 0 {
		panic(fmt.Errorf("dataflow: invalid tensor shape %dx%dx%d", rows, cols, chans))
	}
	return &Tensor{
		rows:  rows,
		cols:  cols,
		chans: chans,
		data:  make([]int32, rows*cols*chans),
	}
}

// NewVector allocates a 1x1xC tensor.
func NewVector(chans int) *Tensor {
	return NewTensor(1, 1, chans)
}

// Rows returns the spatial height.
func (t *Tensor) Rows() int {
	return t.rows
}

// Cols returns the spatial width.
func (t *Tensor) Cols() int {
	return t.cols
}

// Channels returns the channel count.
func (t *Tensor) Channels() int {
	return t.chans
}

// Len returns the total element count.
func (t *Tensor) Len() int {
	return len(t.data)
}

// At reads the element at (row, col, channel).
func (t *Tensor) At(row, col, ch int) int32 {
	return t.data[(row*t.cols+col)*t.chans+ch]
}

// Set writes the element at (row, col, channel).
func (t *Tensor) Set(row, col, ch int, v int32) {
	t.data[(row*t.cols+col)*t.chans+ch] = v
}

// Data exposes the flat backing slice in row-major [row][col][channel] order.
func (t *Tensor) Data() []int32 {
	return t.data
}

// Fill sets every element to v.
func (t *Tensor) Fill(v int32) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := NewTensor(t.rows, t.cols, t.chans)
	copy(c.data, t.data)
	return c
}

// SameShape reports whether two tensors have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.rows == o.rows && t.cols == o.cols && t.chans == o.chans
}

// Acc is the widened counterpart of Tensor used by the accumulate stages of
// the multi-stage engines. Indexing matches Tensor.
type Acc struct {
	rows  int
	cols  int
	chans int
	data  []int64
}

// NewAcc allocates a zeroed accumulator tensor.
func NewAcc(rows, cols, chans int) *Acc {
	if rows <= 0 || cols <= 0 || chans <= 0 {
		panic(fmt.Errorf("dataflow: invalid accumulator shape %dx%dx%d", rows, cols, chans))
	}
	return &Acc{
		rows:  rows,
		cols:  cols,
		chans: chans,
		data:  make([]int64, rows*cols*chans),
	}
}

// Rows returns the spatial height.
func (a *Acc) Rows() int {
	return a.rows
}

// Cols returns the spatial width.
func (a *Acc) Cols() int {
	return a.cols
}

// Channels returns the channel count.
func (a *Acc) Channels() int {
	return a.chans
}

// At reads the accumulator at (row, col, channel).
func (a *Acc) At(row, col, ch int) int64 {
	return a.data[(row*a.cols+col)*a.chans+ch]
}

// Set writes the accumulator at (row, col, channel).
func (a *Acc) Set(row, col, ch int, v int64) {
	a.data[(row*a.cols+col)*a.chans+ch] = v
}

// Add accumulates into (row, col, channel).
func (a *Acc) Add(row, col, ch int, v int64) {
	a.data[(row*a.cols+col)*a.chans+ch] += v
}

// Data exposes the flat backing slice.
func (a *Acc) Data() []int64 {
	return a.data
}

// Zero clears every accumulator cell.
func (a *Acc) Zero() {
	for i := range a.data {
		a.data[i] = 0
	}
}
