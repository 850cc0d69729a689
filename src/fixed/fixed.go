// Package fixed implements the saturating Q(W,F) fixed-point arithmetic shared
// by every datapath engine. A value is a signed integer of width W interpreted
// as raw/2^F. All operations are total: an out-of-range result clamps to the
// nearest representable bound instead of wrapping or returning an error.
package fixed

import (
	"fmt"
	"math"
)

const (
	// MinWidth and MaxWidth bound the representable integer width. Raw values
	// are carried in int32, widened intermediates in int64.
	MinWidth = 4
	MaxWidth = 16
)

// Format describes one Q(W,F) fixed-point configuration. The same format is
// used by every stage of one pipeline instance.
type Format struct {
	width int
	frac  int
}

// NewFormat validates and constructs a fixed-point format. Width must lie in
// [MinWidth, MaxWidth] and the fractional bit count must leave at least two
// integer bits so that the activation constants 3.0 and 6.0 stay encodable.
func NewFormat(width, frac int) (Format, error) {
	if width < MinWidth || width > MaxWidth {
		return Format{}, fmt.Errorf("fixed: width %d out of range [%d, %d]", width, MinWidth, MaxWidth)
	}
	if frac < 0 || frac > width-2 {
		return Format{}, fmt.Errorf("fixed: frac %d out of range [0, %d] for width %d", frac, width-2, width)
	}
	return Format{width: width, frac: frac}, nil
}

// MustFormat is NewFormat for statically known-good parameters.
func MustFormat(width, frac int) Format {
	f, err := NewFormat(width, frac)
	if err != nil {
		panic(err)
	}
	return f
}

// Width returns the total bit width W.
func (f Format) Width() int {
	return f.width
}

// Frac returns the fractional bit count F.
func (f Format) Frac() int {
	return f.frac
}

// Max returns the largest representable raw value, 2^(W-1)-1.
func (f Format) Max() int32 {
	return int32(1)<<(f.width-1) - 1
}

// Min returns the smallest representable raw value, -2^(W-1).
func (f Format) Min() int32 {
	return -(int32(1) << (f.width - 1))
}

// One returns the raw encoding of 1.0, i.e. 2^F.
func (f Format) One() int32 {
	return int32(1) << f.frac
}

// Saturate clamps a widened accumulator to the format bounds. The second
// return reports whether clamping occurred, which feeds the overflow
// instrumentation; the datapath itself never distinguishes the two cases.
func (f Format) Saturate(v int64) (int32, bool) {
	if v > int64(f.Max()) {
		return f.Max(), true
	}
	if v < int64(f.Min()) {
		return f.Min(), true
	}
	return int32(v), false
}

// SatAdd adds two raw values with a widened intermediate and clamps.
func (f Format) SatAdd(a, b int32) int32 {
	v, _ := f.Saturate(int64(a) + int64(b))
	return v
}

// SatMulShift multiplies two raw values into a 2W-bit intermediate, realigns
// by an arithmetic right shift of the given fractional bit count and clamps.
func (f Format) SatMulShift(a, b int32, shift uint) int32 {
	v, _ := f.Saturate((int64(a) * int64(b)) >> shift)
	return v
}

// FromFloat encodes a real value, rounding to nearest and clamping.
func (f Format) FromFloat(x float64) int32 {
	v, _ := f.Saturate(int64(math.Round(x * float64(f.One()))))
	return v
}

// ToFloat decodes a raw value back to a real number.
func (f Format) ToFloat(v int32) float64 {
	return float64(v) / float64(f.One())
}
