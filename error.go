package tenantcache

// SentinelError is an error.
type SentinelError string

const (
	// ErrInvalidConfig indicates a cache table that can not be constructed with given configuration.
	ErrInvalidConfig = SentinelError("invalid cache configuration")

	// ErrUnexpectedType indicates a value that does not match cache value type.
	ErrUnexpectedType = SentinelError("unexpected value type")

	// ErrNothingToInvalidate indicates no caches were added to Invalidator.
	ErrNothingToInvalidate = SentinelError("nothing to invalidate")

	// ErrAlreadyInvalidated indicates recent invalidation.
	ErrAlreadyInvalidated = SentinelError("already invalidated")
)

// Error implements error.
func (e SentinelError) Error() string {
	return string(e)
}
