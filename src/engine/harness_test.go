package engine

import (
	"testing"

	"fixflow/src/dataflow"
	"fixflow/src/fixed"
)

var q84 = fixed.MustFormat(8, 4)

// staged is the Push/Tick/Output/Latency surface shared by every engine.
type staged interface {
	Push(*dataflow.Tensor)
	Tick()
	Output() (*dataflow.Tensor, bool)
	Latency() int
}

// drive pushes one tensor, asserts silence for latency-1 ticks and returns
// the result delivered on the final tick.
func drive(t *testing.T, e staged, in *dataflow.Tensor) *dataflow.Tensor {
	t.Helper()

	e.Push(in)
	for i := 1; i < e.Latency(); i++ {
		e.Tick()
		if _, ok := e.Output(); ok {
			t.Fatalf("output valid at tick %d, want silence until tick %d", i, e.Latency())
		}
	}
	e.Tick()
	out, ok := e.Output()
	if !ok {
		t.Fatalf("no output after %d ticks", e.Latency())
	}
	return out
}

// vector wraps raw channel values in a 1x1xC tensor.
func vector(vals ...int32) *dataflow.Tensor {
	v := dataflow.NewVector(len(vals))
	copy(v.Data(), vals)
	return v
}

// sweepTensor holds every representable raw value of the W=8 format once.
func sweepTensor() *dataflow.Tensor {
	t := dataflow.NewTensor(16, 16, 1)
	data := t.Data()
	for i := range data {
		data[i] = int32(i - 128)
	}
	return t
}

func expectPanic(t *testing.T, msg string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", msg)
		}
	}()
	f()
}
