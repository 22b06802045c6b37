// Package ratio implements exact-fraction arithmetic and the half-open
// integer Range used to slice a static loop into per-thread pieces.
//
// A schedule is computed once and reused across steps, so every range
// split has to be exact: no floating-point drift is allowed to creep in
// between one step's [0, 4/6) and the next thread's [4/6, 1) or two
// adjacent subtasks would overlap or leave a gap. Ratio never reduces to
// a float; every operation below stays in integer numerator/denominator
// space.
package ratio

import "fmt"

// Ratio is an exact fraction Num/Den with Den > 0. Zero-value Ratio is
// not meaningful; use New or one of the package constants.
type Ratio struct {
	Num int64
	Den int64
}

// New builds a Ratio, panicking on a non-positive denominator — an
// invalid Ratio is always a caller bug, never a runtime condition to
// recover from (spec.md §7).
func New(num, den int64) Ratio {
	if den <= 0 {
		panic(fmt.Sprintf("ratio: non-positive denominator %d", den))
	}
	return Ratio{Num: num, Den: den}
}

// Zero and One are the two ratios every loop range tiling must start
// and end on.
var (
	Zero = Ratio{0, 1}
	One  = Ratio{1, 1}
)

// Add returns r + o, cross-multiplying denominators. Not reduced: callers
// that compare ratios use cross-multiplication (Less/Equal), so an
// un-reduced fraction is never wrong, only occasionally larger than it
// needs to be.
func (r Ratio) Add(o Ratio) Ratio {
	return Ratio{Num: r.Num*o.Den + o.Num*r.Den, Den: r.Den * o.Den}
}

// Sub returns r - o.
func (r Ratio) Sub(o Ratio) Ratio {
	return Ratio{Num: r.Num*o.Den - o.Num*r.Den, Den: r.Den * o.Den}
}

// Mul returns r * o.
func (r Ratio) Mul(o Ratio) Ratio {
	return Ratio{Num: r.Num * o.Num, Den: r.Den * o.Den}
}

// Less reports whether r < o.
func (r Ratio) Less(o Ratio) bool {
	return r.Num*o.Den < o.Num*r.Den
}

// Equal reports whether r == o as fractions (2/4 == 1/2).
func (r Ratio) Equal(o Ratio) bool {
	return r.Num*o.Den == o.Num*r.Den
}

// LessEqual reports whether r <= o.
func (r Ratio) LessEqual(o Ratio) bool {
	return r.Less(o) || r.Equal(o)
}

// Float64 returns the ratio as a float64, for logging/diagnostics only —
// never use this for a scheduling decision.
func (r Ratio) Float64() float64 {
	return float64(r.Num) / float64(r.Den)
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}
