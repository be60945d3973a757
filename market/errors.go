package market

import "fmt"

// DataError marks a malformed bar, sample, or scanner row. Callers reject
// the single tick, log it, and keep processing subsequent ticks for that
// symbol; a DataError never crashes the session.
type DataError struct {
	Field  string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("bad market data: %s: %s", e.Field, e.Reason)
}
