package api

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Single-flight keys for the two token kinds.
const (
	sessionFlightKey = "session"
	partnerFlightKey = "partner"
)

// refreshCoordinator guarantees at most one in-flight token refresh per
// token kind. Concurrent 401 handlers join the flight and share the same
// new token or the same error; queue ordering is not preserved.
type refreshCoordinator struct {
	group singleflight.Group
}

// do runs fn under the single-flight key. The flight runs detached from the
// first caller's cancellation so that joined waiters are not failed by an
// unrelated caller giving up.
func (coordinator *refreshCoordinator) do(key string, fn func() (string, error)) (string, error) {
	token, flightErr, _ := coordinator.group.Do(key, func() (any, error) {
		return fn()
	})
	if flightErr != nil {
		return "", flightErr
	}
	return token.(string), nil
}

// detachedContext strips cancellation from the triggering request's context
// so a shared refresh flight survives the first caller's deadline.
func detachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
