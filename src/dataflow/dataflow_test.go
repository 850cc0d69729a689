package dataflow

import "testing"

func TestTensorIndexing(t *testing.T) {
	ts := NewTensor(2, 3, 4)
	if ts.Len() != 24 {
		t.Fatalf("len mismatch: want 24, got %d", ts.Len())
	}
	ts.Set(1, 2, 3, 42)
	if ts.At(1, 2, 3) != 42 {
		t.Fatalf("round trip failed: got %d", ts.At(1, 2, 3))
	}
	if ts.Data()[(1*3+2)*4+3] != 42 {
		t.Fatalf("flat layout mismatch")
	}
	c := ts.Clone()
	c.Set(0, 0, 0, 7)
	if ts.At(0, 0, 0) != 0 {
		t.Fatalf("clone must not alias the original")
	}
	if !ts.SameShape(c) {
		t.Fatalf("clone shape mismatch")
	}
}

func TestTensorRejectsBadShape(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for zero dimension")
		}
	}()
	NewTensor(0, 1, 1)
}

func TestDelayLatency(t *testing.T) {
	for _, depth := range []int{1, 2, 5} {
		d := NewDelay(depth)
		in := NewVector(1)
		var arrived int
		for tick := 1; tick <= depth+3; tick++ {
			var tok Token
			if tick == 1 {
				tok = Token{Valid: true, Data: in}
			}
			out := d.Tick(tok)
			if out.Valid {
				arrived = tick
				if out.Data != in {
					t.Fatalf("depth %d: wrong tensor emerged", depth)
				}
			}
		}
		if arrived != depth {
			t.Fatalf("depth %d: token arrived at tick %d", depth, arrived)
		}
	}
}

func TestDelayZeroDepthIsWire(t *testing.T) {
	d := NewDelay(0)
	tok := Token{Valid: true, Data: NewVector(1)}
	out := d.Tick(tok)
	if !out.Valid || out.Data != tok.Data {
		t.Fatalf("depth 0 must pass through")
	}
}

func TestOverflowMonitor(t *testing.T) {
	var nilMon *OverflowMonitor
	nilMon.Note("stem", 3)
	if nilMon.Count() != 0 || nilMon.LastStage() != "" {
		t.Fatalf("nil monitor must be inert")
	}

	m := NewOverflowMonitor()
	m.Note("stem", 2)
	m.Note("block3.project", 1)
	m.Note("pool", 0)
	if m.Count() != 3 {
		t.Fatalf("count mismatch: want 3, got %d", m.Count())
	}
	if m.LastStage() != "block3.project" {
		t.Fatalf("last stage mismatch: got %q", m.LastStage())
	}
	m.Reset()
	if m.Count() != 0 || m.LastStage() != "" {
		t.Fatalf("reset must clear counters")
	}
}
