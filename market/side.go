package market

// Side is the direction of a trade or bias.
type Side int

const (
	Long Side = iota + 1
	Short
)

func (s Side) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Sign returns +1 for Long and -1 for Short. Price comparisons use it so
// long and short rules share one code path.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// ParseSide converts scanner/config strings ("LONG", "long", "SHORT") to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "LONG", "long", "Long":
		return Long, nil
	case "SHORT", "short", "Short":
		return Short, nil
	default:
		return 0, &DataError{Field: "side", Reason: "must be LONG or SHORT, got " + s}
	}
}
