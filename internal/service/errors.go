// Package service implements seat reservation with time-bounded holds:
// the reservation engine, the seat-map projector and the expiry reaper.
// All shared state lives in the seat ledger; nothing in memory is
// authoritative.
package service

import "errors"

var (
	// ErrSeatUnavailable means the seat is held by someone else or sold.
	// The caller may pick another seat.
	ErrSeatUnavailable = errors.New("seat unavailable")

	// ErrNotFound means the session, seat or ticket does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyFinalizedOrExpired means a confirmation hit a ticket that
	// is already sold, released, or whose hold has expired.
	ErrAlreadyFinalizedOrExpired = errors.New("ticket already finalized or expired")

	// ErrStoreUnavailable marks transient seat ledger failures.  The
	// operation may be retried.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNoSeats is returned for a hold request without any valid seat.
	ErrNoSeats = errors.New("no seats requested")

	// ErrTicketCodeExhausted is returned when every generated ticket code
	// collided with an existing one.
	ErrTicketCodeExhausted = errors.New("could not generate a unique ticket code")
)

// StoreError wraps a driver or connection failure of the seat ledger.
// errors.Is(err, ErrStoreUnavailable) holds for every StoreError.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + ErrStoreUnavailable.Error() + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeError(op string, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// isOutcome reports whether err is a domain outcome rather than an
// infrastructure failure.
func isOutcome(err error) bool {
	return errors.Is(err, ErrSeatUnavailable) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyFinalizedOrExpired) ||
		errors.Is(err, ErrNoSeats) ||
		errors.Is(err, ErrTicketCodeExhausted)
}
