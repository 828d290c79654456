package tenantcache

import (
	"context"
	"time"
)

// detachedContext keeps values of parent context, but never expires.
//
// It is used for background refresh that should outlive the request that triggered it.
type detachedContext struct {
	parent context.Context
}

func (detachedContext) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

func (detachedContext) Done() <-chan struct{} {
	return nil
}

func (detachedContext) Err() error {
	return nil
}

func (d detachedContext) Value(key interface{}) interface{} {
	return d.parent.Value(key)
}
