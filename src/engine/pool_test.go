package engine

import (
	"testing"

	"fixflow/src/dataflow"
)

func TestGlobalAvgPoolAverages(t *testing.T) {
	pool, err := NewGlobalAvgPool(q84, 7, 7, 2, "gap", nil)
	if err != nil {
		t.Fatal(err)
	}
	if pool.Latency() != 2 {
		t.Fatalf("latency: want 2, got %d", pool.Latency())
	}

	in := dataflow.NewTensor(7, 7, 2)
	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			in.Set(y, x, 0, 32)
			in.Set(y, x, 1, int32(y*7+x)) // 0..48, sums to 1176 = 49*24
		}
	}
	out := drive(t, pool, in)
	if out.Rows() != 1 || out.Cols() != 1 {
		t.Fatalf("output grid: want 1x1, got %dx%d", out.Rows(), out.Cols())
	}
	if got := out.At(0, 0, 0); got != 32 {
		t.Fatalf("channel 0: want 32, got %d", got)
	}
	if got := out.At(0, 0, 1); got != 24 {
		t.Fatalf("channel 1: want 24, got %d", got)
	}
}

func TestGlobalAvgPoolRoundsLikeReciprocal(t *testing.T) {
	pool, err := NewGlobalAvgPool(q84, 7, 7, 1, "gap_round", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Sum 73 over 49 elements: 73/49 = 1.49, rounds to 1.
	in := dataflow.NewTensor(7, 7, 1)
	in.Set(0, 0, 0, 73)
	if got := drive(t, pool, in).At(0, 0, 0); got != 1 {
		t.Fatalf("want 1, got %d", got)
	}

	// Sum 74 crosses the half point: rounds to 2.
	in2 := dataflow.NewTensor(7, 7, 1)
	in2.Set(0, 0, 0, 74)
	if got := drive(t, pool, in2).At(0, 0, 0); got != 2 {
		t.Fatalf("want 2, got %d", got)
	}
}

func TestAvgPoolAdaptiveCells(t *testing.T) {
	pool, err := NewAvgPool(q84, 4, 4, 1, 2, 2, "adaptive", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Each 2x2 cell holds one distinct constant.
	in := dataflow.NewTensor(4, 4, 1)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			in.Set(y, x, 0, int32(10*(y/2*2+x/2+1)))
		}
	}
	out := drive(t, pool, in)
	want := [2][2]int32{{10, 20}, {30, 40}}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if got := out.At(y, x, 0); got != want[y][x] {
				t.Fatalf("(%d,%d): want %d, got %d", y, x, want[y][x], got)
			}
		}
	}
}

func TestAvgPoolNegativeAverages(t *testing.T) {
	pool, err := NewGlobalAvgPool(q84, 2, 3, 1, "gap_neg", nil)
	if err != nil {
		t.Fatal(err)
	}

	in := dataflow.NewTensor(2, 3, 1)
	in.Fill(-9)
	// Sum -54 over 6 elements via the reciprocal pair for 6: exactly -9.
	if got := drive(t, pool, in).At(0, 0, 0); got != -9 {
		t.Fatalf("want -9, got %d", got)
	}
}

func TestAvgPoolRejectsBadGrid(t *testing.T) {
	if _, err := NewAvgPool(q84, 4, 4, 1, 5, 5, "bad", nil); err == nil {
		t.Fatal("expected error for output grid larger than input")
	}
	if _, err := NewAvgPool(q84, 0, 4, 1, 1, 1, "bad", nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
