package eventlog

import "errors"

// Error kinds returned by Store operations. Callers match with errors.Is;
// the returned errors wrap the underlying cause.
var (
	// ErrStorageUnavailable means the backing medium could not be opened or written.
	ErrStorageUnavailable = errors.New("eventlog: storage unavailable")
	// ErrInvalidArgument reports a rejected parameter such as a bound below 1.
	ErrInvalidArgument = errors.New("eventlog: invalid argument")
	// ErrInvalidState reports an operation on a closed store.
	ErrInvalidState = errors.New("eventlog: store closed")
)
