package types

import "errors"

// Error kinds shared by all stages. Callers wrap them with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	// ErrConfiguration marks a missing or placeholder credential. Raised
	// before any network call.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport marks a network failure or a non-success HTTP status.
	ErrTransport = errors.New("transport error")

	// ErrParse marks an API or model response that could not be decoded.
	ErrParse = errors.New("parse error")

	// ErrMissingInput marks an upstream stage file that does not exist.
	ErrMissingInput = errors.New("missing input")
)
