package fixed

// Division by the denominators that actually occur in the network (the
// activation constant 6 and the spatial element counts of the pooled feature
// maps) is realised as a reciprocal multiply followed by a rounding right
// shift. The constants are chosen so that round(num*Mul >> Shift) differs from
// num/denom by less than one ULP across the widened accumulator ranges these
// denominators see; changing a pair changes the documented error bound, so
// the table is part of the numeric contract.
type recipEntry struct {
	Mul   int64
	Shift uint
}

var recipTable = map[int]recipEntry{
	6:     {Mul: 43691, Shift: 18},
	49:    {Mul: 21400, Shift: 20},
	196:   {Mul: 21400, Shift: 22},
	784:   {Mul: 21400, Shift: 24},
	3136:  {Mul: 21400, Shift: 26},
	12544: {Mul: 21400, Shift: 28},
}

// HasRecip reports whether a precomputed reciprocal pair exists for denom.
func HasRecip(denom int) bool {
	_, ok := recipTable[denom]
	return ok
}

// DivByConst divides a widened accumulator by a positive constant denominator,
// rounding to nearest. Denominators with a precomputed reciprocal use the
// multiply/shift path; anything else falls back to rounded direct division.
func DivByConst(num int64, denom int) int64 {
	return DivByConstShift(num, denom, 0)
}

// DivByConstShift is DivByConst with an additional arithmetic right shift of
// extra bits folded into the rounding step. Engines use it to realign the
// fractional format in the same rounding operation as the division, which is
// what keeps the activation approximations inside their one-ULP bound.
func DivByConstShift(num int64, denom int, extra uint) int64 {
	if denom <= 0 {
		panic("fixed: non-positive constant denominator")
	}
	if e, ok := recipTable[denom]; ok {
		shift := e.Shift + extra
		return (num*e.Mul + int64(1)<<(shift-1)) >> shift
	}
	d := int64(denom) << extra
	if num >= 0 {
		return (num + d/2) / d
	}
	return -((-num + d/2) / d)
}
