package markov

import "errors"

var (
	// ErrInvalidOrder is returned when a state length is not positive or is
	// not smaller than the number of tokens it is built from.
	ErrInvalidOrder = errors.New("invalid state length")
	// ErrOrderMismatch is returned when tables or states of different lengths
	// would be mixed.
	ErrOrderMismatch = errors.New("state length mismatch")
	// ErrUnknownState is returned when a state is not a key of the table.
	ErrUnknownState = errors.New("unknown state")
	// ErrSeedNotFound is returned by Generate when the requested seed state
	// is not a key of the table.
	ErrSeedNotFound = errors.New("seed does not exist in markov chain")
	// ErrDeadEnd is returned when a state has no recorded successors.
	ErrDeadEnd = errors.New("state has no successors")
	// ErrEmptyInput is returned when rendering an empty token sequence.
	ErrEmptyInput = errors.New("empty input")
	// ErrEmptyTable is returned when sampling a start state from an empty table.
	ErrEmptyTable = errors.New("table is empty")
	// ErrInvalidTable is returned when persisted table data is malformed.
	ErrInvalidTable = errors.New("invalid table data")
	// ErrUnknownEncoding is returned by FileSource for unsupported charsets.
	ErrUnknownEncoding = errors.New("unknown text encoding")
	// ErrModelNotFound is returned by SQLStore when a named model does not exist.
	ErrModelNotFound = errors.New("model not found")
)
