package service

import "time"

// Clock supplies the current time.  Production code uses SystemClock;
// tests inject a controllable clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// snapshot reads the clock once for an operation.  The ledger stores
// whole seconds, so the snapshot is truncated to match what SQL
// predicates compare against.
func snapshot(c Clock) time.Time {
	return c.Now().UTC().Truncate(time.Second)
}
