package pipeline

import "errors"

// Sentinel errors classifying fatal run failures. Wrapped causes stay
// inspectable through the %w chain, so errors.Is finds both the
// category and the underlying sentinel (snapshot.ErrNoRecords,
// artifact.ErrRunInFlight, ...).
var (
	// ErrInput marks unusable input data: missing or empty snapshots,
	// a snapshot that does not cover the requested partition.
	ErrInput = errors.New("input error")
	// ErrConfig marks invalid configuration rejected before processing
	// begins.
	ErrConfig = errors.New("config error")
	// ErrCompute marks failures while scoring or aggregating, including
	// runs cancelled mid-computation.
	ErrCompute = errors.New("computation error")
	// ErrStorage marks artifact store and bundle export failures.
	ErrStorage = errors.New("storage error")
)

// ErrSelector marks a malformed (state, year) selector. Selector
// validation happens before any I/O, so these surface as usage errors
// rather than run failures.
var ErrSelector = errors.New("invalid selector")
