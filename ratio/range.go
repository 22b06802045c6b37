package ratio

// Range is a closed-open interval [Start, End) over an ordered numeric
// type. For loop tasks this is either the integer iteration space the
// application asked to parallelize, or a Ratio sub-range of [0, 1]
// describing which fractional slice of that space one subtask owns.
type Range[T int64 | Ratio] struct {
	Start T
	End   T
}

// NewRange builds a Range, panicking if it isn't ordered or — for a
// Ratio range — if it strays outside [0, 1] (spec.md §3: "invariant
// r.start >= 0 and r.end <= 1").
func NewRange[T int64 | Ratio](start, end T) Range[T] {
	switch s := any(start).(type) {
	case int64:
		if any(end).(int64) < s {
			panic("ratio: NewRange end before start")
		}
	case Ratio:
		e := any(end).(Ratio)
		if e.Less(s) {
			panic("ratio: NewRange end before start")
		}
		if s.Less(Zero) || One.Less(e) {
			panic("ratio: NewRange ratio range outside [0,1]")
		}
	}
	return Range[T]{Start: start, End: end}
}

// Full returns the whole-range Range for an int64-bounded loop: [0, n).
func Full(n int64) Range[int64] {
	return Range[int64]{Start: 0, End: n}
}

// FullRatio returns the whole unit interval, Zero to One, as a Ratio
// range; passing it to AssignLoop gives one subtask the entire loop.
func FullRatio() Range[Ratio] {
	return Range[Ratio]{Start: Zero, End: One}
}

// Len returns End - Start for an integer range.
func (r Range[T]) Len() int64 {
	switch any(r.Start).(type) {
	case int64:
		return int64(any(r.End).(int64) - any(r.Start).(int64))
	default:
		panic("ratio: Len only defined for Range[int64]")
	}
}

// Subset maps a Ratio slice of [0, 1] onto the contiguous integer
// sub-range of an int64 Range it corresponds to.
//
// Both endpoints round down (floor), which is what makes adjacent
// ratios tile an integer range exactly: if s1.End == s2.Start as ratios,
// then Subset(s1).End == Subset(s2).Start as integers, with no gap and
// no overlap (spec.md §4.3, §8 round-trip law).
func (r Range[T]) Subset(s Range[Ratio]) Range[int64] {
	full, ok := any(r).(Range[int64])
	if !ok {
		panic("ratio: Subset only defined on Range[int64]")
	}
	if s.Start.Num < 0 || s.End.Less(Zero) {
		panic("ratio: Subset range below zero")
	}
	if s.Start.Less(Zero) || One.Less(s.Start) || One.Less(s.End) {
		panic("ratio: Subset range outside [0,1]")
	}
	n := full.End - full.Start
	start := full.Start + floorMulInt(n, s.Start)
	end := full.Start + floorMulInt(n, s.End)
	return Range[int64]{Start: start, End: end}
}

// floorMulInt computes floor(n * r) for an int64 n and a Ratio r, staying
// in exact integer arithmetic throughout (no float division).
func floorMulInt(n int64, r Ratio) int64 {
	num := n * r.Num
	den := r.Den
	q := num / den
	if num%den != 0 && (num < 0) != (den < 0) {
		q--
	}
	return q
}
