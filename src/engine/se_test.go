package engine

import (
	"testing"

	"fixflow/src/dataflow"
)

func newTestSE(t *testing.T, rows, cols, channels, reduced int) *SqueezeExcite {
	t.Helper()
	se, err := NewSqueezeExcite(q84, rows, cols, channels, reduced, "se", nil)
	if err != nil {
		t.Fatal(err)
	}
	return se
}

func TestSqueezeExciteLatency(t *testing.T) {
	se := newTestSE(t, 2, 2, 4, 2)
	// pool 2 + reduce 4 + norm 1 + relu 1 + expand 4 + norm 1 + hsigmoid 1,
	// plus the rescale stage.
	if se.Latency() != 15 {
		t.Fatalf("latency: want 15, got %d", se.Latency())
	}
}

func TestSqueezeExciteNeutralGateHalves(t *testing.T) {
	se := newTestSE(t, 2, 2, 4, 2)

	// With all parameters zero the gate path computes hsigmoid(0) = 0.5,
	// so every channel comes out halved.
	in := dataflow.NewTensor(2, 2, 4)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			for ch := 0; ch < 4; ch++ {
				in.Set(y, x, ch, int32(16*(ch+1)))
			}
		}
	}
	out := drive(t, se, in)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			for ch := 0; ch < 4; ch++ {
				if got, want := out.At(y, x, ch), int32(8*(ch+1)); got != want {
					t.Fatalf("(%d,%d,%d): want %d, got %d", y, x, ch, want, got)
				}
			}
		}
	}
}

func TestSqueezeExciteSaturatedGateIsIdentity(t *testing.T) {
	se := newTestSE(t, 2, 2, 3, 2)

	// A large excite-side bias drives the hard-sigmoid into its upper clamp,
	// making the gate exactly 1.0 per channel.
	biases := se.ExpandNorm().EffectiveBiases()
	for i := range biases {
		biases[i] = q84.Max()
	}

	in := dataflow.NewTensor(2, 2, 3)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			for ch := 0; ch < 3; ch++ {
				in.Set(y, x, ch, int32(y*31-x*17+ch*5))
			}
		}
	}
	out := drive(t, se, in)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			for ch := 0; ch < 3; ch++ {
				if got, want := out.At(y, x, ch), in.At(y, x, ch); got != want {
					t.Fatalf("(%d,%d,%d): want %d, got %d", y, x, ch, want, got)
				}
			}
		}
	}
}

func TestSqueezeExciteZeroGateZeroesOutput(t *testing.T) {
	se := newTestSE(t, 1, 1, 2, 2)

	// A strongly negative excite-side bias pins the gate at 0.0.
	biases := se.ExpandNorm().EffectiveBiases()
	for i := range biases {
		biases[i] = q84.Min()
	}

	out := drive(t, se, vector(100, -100))
	for ch := 0; ch < 2; ch++ {
		if got := out.At(0, 0, ch); got != 0 {
			t.Fatalf("channel %d: want 0, got %d", ch, got)
		}
	}
}

func TestSqueezeExciteRejectsChannelMismatch(t *testing.T) {
	se := newTestSE(t, 2, 2, 4, 2)
	expectPanic(t, "channel mismatch", func() {
		se.Push(dataflow.NewTensor(2, 2, 3))
	})
}

func TestSqueezeExciteResetDropsInFlight(t *testing.T) {
	se := newTestSE(t, 1, 1, 2, 2)
	se.Push(vector(16, 16))
	for i := 0; i < 5; i++ {
		se.Tick()
	}
	se.Reset()
	for i := 0; i < 2*se.Latency(); i++ {
		se.Tick()
		if _, ok := se.Output(); ok {
			t.Fatalf("output survived reset at tick %d", i+1)
		}
	}
}
