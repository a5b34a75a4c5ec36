package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrDanglingReference indicates a compact listing entry whose cache key is unknown.
	ErrDanglingReference = errors.New("dangling descriptor reference")

	// ErrDescriptorError indicates the agent could not describe an MBean.
	ErrDescriptorError = errors.New("mbean descriptor error")

	// ErrCapabilityProbe indicates the optimised list probe failed.
	ErrCapabilityProbe = errors.New("list optimisation probe failed")

	// ErrRefreshInFlight is returned when a refresh is already running.
	ErrRefreshInFlight = errors.New("refresh already in flight")

	// ErrStaleResult marks a result discarded because a newer cycle started.
	ErrStaleResult = errors.New("stale discovery result")

	// ErrWatchUnsupported is returned when the transport cannot poll requests.
	ErrWatchUnsupported = errors.New("transport does not support watches")
)

// EntryError reports one listing entry skipped during reconciliation.
type EntryError struct {
	Domain   string
	PropList string
	Err      error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("skipped %s:%s: %v", e.Domain, e.PropList, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
