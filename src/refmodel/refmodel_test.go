package refmodel

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestActivationKnownPoints(t *testing.T) {
	tests := []struct {
		x                        float64
		relu, relu6, hswish, hsg float64
	}{
		{-4, 0, 0, 0, 0},
		{-3, 0, 0, 0, 0},
		{-1.5, 0, 0, -0.375, 0.25},
		{0, 0, 0, 0, 0.5},
		{1, 1, 1, 2.0 / 3, 2.0 / 3},
		{3, 3, 3, 3, 1},
		{7, 7, 6, 7, 1},
	}
	for _, tt := range tests {
		if got := ReLU(tt.x); !almostEqual(got, tt.relu) {
			t.Fatalf("relu(%f): want %f, got %f", tt.x, tt.relu, got)
		}
		if got := ReLU6(tt.x); !almostEqual(got, tt.relu6) {
			t.Fatalf("relu6(%f): want %f, got %f", tt.x, tt.relu6, got)
		}
		if got := HSwish(tt.x); !almostEqual(got, tt.hswish) {
			t.Fatalf("hswish(%f): want %f, got %f", tt.x, tt.hswish, got)
		}
		if got := HSigmoid(tt.x); !almostEqual(got, tt.hsg) {
			t.Fatalf("hsigmoid(%f): want %f, got %f", tt.x, tt.hsg, got)
		}
	}
}

func TestHSwishIsGatedIdentity(t *testing.T) {
	for x := -10.0; x <= 10.0; x += 0.125 {
		if got, want := HSwish(x), x*HSigmoid(x); !almostEqual(got, want) {
			t.Fatalf("hswish(%f): want %f, got %f", x, want, got)
		}
	}
}

func TestFuseBatchNorm(t *testing.T) {
	scale, shift, err := FuseBatchNorm(
		[]float64{2, 1},
		[]float64{1, 0},
		[]float64{0.5, -1},
		[]float64{0.25, 1},
		0,
	)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(scale[0], 4) || !almostEqual(shift[0], -1) {
		t.Fatalf("channel 0: want scale 4 shift -1, got %f %f", scale[0], shift[0])
	}
	if !almostEqual(scale[1], 1) || !almostEqual(shift[1], 1) {
		t.Fatalf("channel 1: want scale 1 shift 1, got %f %f", scale[1], shift[1])
	}
}

func TestFuseBatchNormRejectsBadStatistics(t *testing.T) {
	if _, _, err := FuseBatchNorm([]float64{1}, []float64{1, 2}, []float64{1}, []float64{1}, 0); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
	if _, _, err := FuseBatchNorm([]float64{1}, []float64{1}, []float64{1}, []float64{-1}, 0); err == nil {
		t.Fatal("expected error for negative variance")
	}
}

func TestErrorMetrics(t *testing.T) {
	got := []float64{1, 2, 3}
	want := []float64{1, 1, 5}

	if max := MaxAbsError(got, want); !almostEqual(max, 2) {
		t.Fatalf("max error: want 2, got %f", max)
	}
	if mean := MeanAbsError(got, want); !almostEqual(mean, 1) {
		t.Fatalf("mean error: want 1, got %f", mean)
	}
}
