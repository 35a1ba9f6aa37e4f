// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// reservation service to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ErrTicketNotFound is returned when no ticket matches the lookup.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrSessionNotFound is returned when a session (or its hall) does not
// exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrDuplicate is returned when an insert violates a unique key: either
// the seat already has a live ticket or the ticket code is taken.
var ErrDuplicate = errors.New("duplicate key")

// MySQL server error numbers the ledger reacts to.
const (
	mysqlDuplicateEntry  = 1062 // ER_DUP_ENTRY
	mysqlLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
	mysqlDeadlock        = 1213 // ER_LOCK_DEADLOCK
)

// isUniqueViolation recognises unique-key failures from both supported
// drivers.
func isUniqueViolation(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint &&
			(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

// isTxConflict recognises failures where the database aborted a
// transaction because of a concurrent one.  Re-running the whole
// transaction is safe and usually settles the race.
func isTxConflict(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
