package dataflow

// OverflowMonitor counts saturation events across the datapath and remembers
// which stage clamped last. It is diagnostic only: results are identical with
// or without a monitor attached, and a nil monitor is accepted everywhere.
type OverflowMonitor struct {
	total     int64
	lastStage string
}

// NewOverflowMonitor creates an empty monitor.
func NewOverflowMonitor() *OverflowMonitor {
	return &OverflowMonitor{}
}

// Note records that a stage clamped the given number of elements this tick.
func (m *OverflowMonitor) Note(stage string, clipped int) {
	if m == nil || clipped <= 0 {
		return
	}
	m.total += int64(clipped)
	m.lastStage = stage
}

// Count returns the cumulative number of clamped elements.
func (m *OverflowMonitor) Count() int64 {
	if m == nil {
		return 0
	}
	return m.total
}

// LastStage returns the name of the stage that saturated most recently, or
// the empty string when nothing has clamped yet.
func (m *OverflowMonitor) LastStage() string {
	if m == nil {
		return ""
	}
	return m.lastStage
}

// Reset clears the counters.
func (m *OverflowMonitor) Reset() {
	if m == nil {
		return
	}
	m.total = 0
	m.lastStage = ""
}
