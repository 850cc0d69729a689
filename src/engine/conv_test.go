package engine

import (
	"testing"

	"fixflow/src/dataflow"
)

func TestConvOutDim(t *testing.T) {
	tests := []struct {
		in, kernel, stride, pad int
		want                    int
	}{
		{224, 3, 2, 1, 112},
		{7, 5, 2, 2, 4},
		{5, 3, 1, 1, 5},
		{1, 1, 1, 0, 1},
	}
	for _, tt := range tests {
		if got := convOutDim(tt.in, tt.kernel, tt.stride, tt.pad); got != tt.want {
			t.Fatalf("convOutDim(%d,%d,%d,%d): want %d, got %d",
				tt.in, tt.kernel, tt.stride, tt.pad, tt.want, got)
		}
	}
}

func TestConv2DCenterTapIdentity(t *testing.T) {
	conv, err := NewConv2D(q84, 1, 1, 3, 1, 1, 5, 5, "conv", nil)
	if err != nil {
		t.Fatal(err)
	}
	if conv.Latency() != 2 {
		t.Fatalf("latency: want 2, got %d", conv.Latency())
	}

	// Only the center tap carries 1.0, making the convolution an identity.
	conv.Weights()[4] = q84.One()

	in := dataflow.NewTensor(5, 5, 1)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			in.Set(y, x, 0, int32(y*5+x-12))
		}
	}
	out := drive(t, conv, in)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			if got, want := out.At(y, x, 0), in.At(y, x, 0); got != want {
				t.Fatalf("(%d,%d): want %d, got %d", y, x, want, got)
			}
		}
	}
}

func TestConv2DStridePaddingAndSaturation(t *testing.T) {
	mon := dataflow.NewOverflowMonitor()
	conv, err := NewConv2D(q84, 1, 1, 3, 2, 1, 5, 5, "conv_sat", mon)
	if err != nil {
		t.Fatal(err)
	}
	if conv.OutRows() != 3 || conv.OutCols() != 3 {
		t.Fatalf("output grid: want 3x3, got %dx%d", conv.OutRows(), conv.OutCols())
	}

	for i := range conv.Weights() {
		conv.Weights()[i] = q84.One()
	}
	in := dataflow.NewTensor(5, 5, 1)
	in.Fill(q84.One())

	// Each output sums 1.0 per in-bounds tap: 4, 6 or 9 taps depending on
	// how much padding the window overlaps. 9.0 escapes Q(8,4).
	want := [3][3]int32{
		{64, 96, 64},
		{96, 127, 96},
		{64, 96, 64},
	}
	out := drive(t, conv, in)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if got := out.At(y, x, 0); got != want[y][x] {
				t.Fatalf("(%d,%d): want %d, got %d", y, x, want[y][x], got)
			}
		}
	}
	if mon.Count() != 1 {
		t.Fatalf("clip count: want 1, got %d", mon.Count())
	}
}

func TestConv2DChannelMixing(t *testing.T) {
	conv, err := NewConv2D(q84, 2, 1, 1, 1, 0, 1, 1, "conv_mix", nil)
	if err != nil {
		t.Fatal(err)
	}
	// 1x1 kernel over two input channels: out = 1.0*x0 + 2.0*x1.
	copy(conv.Weights(), []int32{16, 32})

	out := drive(t, conv, vector(8, 12))
	if got := out.At(0, 0, 0); got != 32 {
		t.Fatalf("want 32, got %d", got)
	}
}

func TestConv2DPipelinesBackToBack(t *testing.T) {
	conv, err := NewConv2D(q84, 1, 1, 1, 1, 0, 1, 1, "conv_fifo", nil)
	if err != nil {
		t.Fatal(err)
	}
	conv.Weights()[0] = q84.One()

	conv.Push(vector(3))
	conv.Tick()
	conv.Push(vector(7))
	conv.Tick()
	out, ok := conv.Output()
	if !ok || out.At(0, 0, 0) != 3 {
		t.Fatalf("first result: want 3, got %v valid=%v", out, ok)
	}
	conv.Tick()
	out, ok = conv.Output()
	if !ok || out.At(0, 0, 0) != 7 {
		t.Fatalf("second result: want 7, got %v valid=%v", out, ok)
	}
	conv.Tick()
	if _, ok := conv.Output(); ok {
		t.Fatal("spurious third result")
	}
}

func TestConv2DRejectsBadGeometry(t *testing.T) {
	if _, err := NewConv2D(q84, 0, 1, 3, 1, 1, 5, 5, "bad", nil); err == nil {
		t.Fatal("expected error for zero input channels")
	}
	if _, err := NewConv2D(q84, 1, 1, 7, 1, 1, 4, 4, "bad", nil); err == nil {
		t.Fatal("expected error for kernel larger than padded input")
	}
	conv, err := NewConv2D(q84, 1, 1, 3, 1, 1, 5, 5, "conv", nil)
	if err != nil {
		t.Fatal(err)
	}
	expectPanic(t, "shape mismatch", func() {
		conv.Push(dataflow.NewTensor(4, 4, 1))
	})
}
