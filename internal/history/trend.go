package history

type Trend int

const (
	TrendUndefined Trend = iota
	TrendIncreasing
	TrendDecreasing
	TrendFlat
)

func (t Trend) String() string {
	switch t {
	case TrendIncreasing:
		return "increasing"
	case TrendDecreasing:
		return "decreasing"
	case TrendFlat:
		return "flat"
	default:
		return "undefined"
	}
}

// TrendAt compares the bug count at index with the chronologically previous
// entry, which is index+1 in a newest-first view.
func TrendAt(view []Entry, index int) Trend {
	if index < 0 || index+1 >= len(view) {
		return TrendUndefined
	}
	cur, ok := view[index].Result.TotalBugs()
	if !ok {
		return TrendUndefined
	}
	prev, ok := view[index+1].Result.TotalBugs()
	if !ok {
		return TrendUndefined
	}
	switch {
	case cur > prev:
		return TrendIncreasing
	case cur < prev:
		return TrendDecreasing
	default:
		return TrendFlat
	}
}
