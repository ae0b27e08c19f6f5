package domain

// Cursor iterates lazily over historical samples. Callers must Close it;
// Close is safe to call more than once.
type Cursor interface {
	Next() bool
	Sample() PositionSample
	// Skipped is the number of rows dropped so far because their key or
	// attribute payload could not be parsed.
	Skipped() int
	// Truncated reports that the scan stopped at its row cap while matching
	// rows remained.
	Truncated() bool
	Err() error
	Close()
}
