package health

import "errors"

var (
	// ErrCheckFailed indicates a health check failed.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrNilStore indicates a checker was built around a nil store.
	ErrNilStore = errors.New("health: store is nil")
)
