package dataflow

// Token is a valid-qualified tensor moving between pipeline stages. The zero
// value is a bubble. A token is live from the tick an engine consumes it until
// the tick the corresponding result is delivered; downstream stages gate on
// Valid, never on tensor content.
type Token struct {
	Valid bool
	Data  *Tensor
}

// Delay is a fixed-depth shift register of tokens used to align parallel
// paths (residual shortcuts, the squeeze-excite feature path). A delay of
// depth N behaves like an engine of latency N: a token consumed on tick t is
// returned on tick t+N-1. Depth 0 is a plain wire.
type Delay struct {
	regs []Token
}

// NewDelay builds a delay line of the given depth.
func NewDelay(depth int) *Delay {
	if depth < 0 {
		depth = 0
	}
	return &Delay{regs: make([]Token, depth)}
}

// Depth returns the configured latency.
func (d *Delay) Depth() int {
	return len(d.regs)
}

// Tick consumes the token presented this tick and returns the token that has
// completed the full delay.
func (d *Delay) Tick(in Token) Token {
	if len(d.regs) == 0 {
		return in
	}
	for i := len(d.regs) - 1; i > 0; i-- {
		d.regs[i] = d.regs[i-1]
	}
	d.regs[0] = in
	return d.regs[len(d.regs)-1]
}

// Reset drops every in-flight token.
func (d *Delay) Reset() {
	for i := range d.regs {
		d.regs[i] = Token{}
	}
}
