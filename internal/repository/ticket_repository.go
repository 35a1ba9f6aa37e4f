package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
)

// dbTimeLayout is the storage format of every timestamp in the ledger.
// Both MySQL DATETIME and SQLite text compare correctly in this layout.
const dbTimeLayout = "2006-01-02 15:04:05"

// dbTime formats t for storage.  Sub-second precision is dropped.
func dbTime(t time.Time) string { return t.UTC().Format(dbTimeLayout) }

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can
// run inside or outside a transaction.
type querier interface {
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TicketRepo is the seat ledger: durable holds and sales per (session,
// row, seat).  Every state change is a conditional write, so the
// database arbitrates concurrent callers:
//
//   - a unique key on (session_id, seat_row, seat_number, active) admits
//     one HELD or SOLD row per seat;
//   - HELD → SOLD and HELD → RELEASED only apply while the row still
//     matches its expiry predicate at write time.
//
// All timestamps are UTC.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a TicketRepo bound to the provided database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// DB exposes the underlying handle.
func (r *TicketRepo) DB() *sql.DB { return r.db }

// maxTxAttempts bounds how often WithTx re-runs a transaction the
// database aborted as a deadlock or lock timeout.
const maxTxAttempts = 3

// WithTx runs fn inside a transaction.  The transaction is committed when
// fn returns nil and rolled back otherwise.  When the database aborts it
// because of a concurrent transaction, fn is run again in a fresh one, up
// to maxTxAttempts times, so fn must not keep state between calls.
func (r *TicketRepo) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
    var err error
    for attempt := 0; attempt < maxTxAttempts; attempt++ {
        err = r.runTx(ctx, fn)
        if err == nil || !isTxConflict(err) || ctx.Err() != nil {
            return err
        }
    }
    return err
}

func (r *TicketRepo) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
    tx, err := r.db.BeginTx(ctx, r.txOptions())
    if err != nil {
        return fmt.Errorf("begin transaction: %w", err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(tx); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return fmt.Errorf("commit transaction: %w", err)
    }
    committed = true
    return nil
}

// txOptions selects READ COMMITTED on MySQL.  Under InnoDB's default
// REPEATABLE READ a conditional UPDATE that matches nothing still takes a
// gap lock, and two holds on the same free seat then deadlock on their
// INSERTs instead of one of them hitting the unique key.  SQLite keeps
// its default.
func (r *TicketRepo) txOptions() *sql.TxOptions {
    if _, ok := r.db.Driver().(*mysql.MySQLDriver); ok {
        return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
    }
    return nil
}

const ticketColumns = `id, session_id, seat_row, seat_number, owner_id, price_cents, code, status, expires_at, created_at, updated_at`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanTicket(s rowScanner) (*model.Ticket, error) {
    var (
        t         model.Ticket
        status    string
        expiresAt sql.NullTime
    )
    if err := s.Scan(
        &t.ID, &t.SessionID, &t.Row, &t.SeatNumber, &t.OwnerID, &t.PriceCents,
        &t.Code, &status, &expiresAt, &t.CreatedAt, &t.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    t.Status = model.TicketStatus(status)
    if expiresAt.Valid {
        exp := expiresAt.Time.UTC()
        t.ExpiresAt = &exp
    }
    t.CreatedAt = t.CreatedAt.UTC()
    t.UpdatedAt = t.UpdatedAt.UTC()
    return &t, nil
}

func (r *TicketRepo) queryOne(ctx context.Context, q querier, query string, args ...any) (*model.Ticket, error) {
    t, err := scanTicket(q.QueryRowContext(ctx, query, args...))
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrTicketNotFound
        }
        return nil, err
    }
    return t, nil
}

func (r *TicketRepo) queryMany(ctx context.Context, q querier, query string, args ...any) ([]model.Ticket, error) {
    rows, err := q.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Ticket, 0)
    for rows.Next() {
        t, err := scanTicket(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *t)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// ActiveBySeat returns the HELD or SOLD ticket occupying a seat, or
// ErrTicketNotFound.  The returned hold may already be past its expiry;
// callers decide whether it still occupies the seat.
func (r *TicketRepo) ActiveBySeat(ctx context.Context, q querier, sessionID uint64, row, seat uint32) (*model.Ticket, error) {
    if q == nil {
        q = r.db
    }
    return r.queryOne(ctx, q,
        `SELECT `+ticketColumns+` FROM tickets
         WHERE session_id = ? AND seat_row = ? AND seat_number = ? AND active = 1`,
        sessionID, row, seat,
    )
}

// ReleaseExpiredSeatTx releases the hold on one seat if it has expired at
// now.  It returns the number of rows released (0 or 1).
func (r *TicketRepo) ReleaseExpiredSeatTx(ctx context.Context, tx *sql.Tx, sessionID uint64, row, seat uint32, now time.Time) (int64, error) {
    res, err := tx.ExecContext(ctx,
        `UPDATE tickets SET status = ?, active = NULL, updated_at = ?
         WHERE session_id = ? AND seat_row = ? AND seat_number = ?
           AND status = ? AND expires_at <= ?`,
        string(model.TicketReleased), dbTime(now),
        sessionID, row, seat,
        string(model.TicketHeld), dbTime(now),
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// CodeExists reports whether any ticket, including released ones, carries
// code.
func (r *TicketRepo) CodeExists(ctx context.Context, q querier, code string) (bool, error) {
    if q == nil {
        q = r.db
    }
    var one int
    err := q.QueryRowContext(ctx, `SELECT 1 FROM tickets WHERE code = ?`, code).Scan(&one)
    if errors.Is(err, sql.ErrNoRows) {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}

// CreateTx inserts a HELD ticket and fills in its ID.  A unique-key
// violation (seat already live, or code taken) is reported as
// ErrDuplicate.  The caller owns the transaction.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
    if t.Status != model.TicketHeld || t.ExpiresAt == nil {
        return fmt.Errorf("create ticket: new tickets must be HELD with an expiry")
    }
    res, err := tx.ExecContext(ctx,
        `INSERT INTO tickets (session_id, seat_row, seat_number, owner_id, price_cents, code, status, active, expires_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
        t.SessionID, t.Row, t.SeatNumber, t.OwnerID, t.PriceCents, t.Code,
        string(t.Status), dbTime(*t.ExpiresAt), dbTime(t.CreatedAt), dbTime(t.CreatedAt),
    )
    if err != nil {
        if isUniqueViolation(err) {
            return fmt.Errorf("%w: %v", ErrDuplicate, err)
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    t.ID = uint64(id)
    exp := t.ExpiresAt.UTC().Truncate(time.Second)
    t.ExpiresAt = &exp
    t.CreatedAt = t.CreatedAt.UTC().Truncate(time.Second)
    t.UpdatedAt = t.CreatedAt
    return nil
}

// MarkSold flips a ticket from HELD to SOLD and clears its expiry, but
// only while the hold is still unexpired at now.  It reports whether the
// row changed.
func (r *TicketRepo) MarkSold(ctx context.Context, id uint64, now time.Time) (bool, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE tickets SET status = ?, expires_at = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND expires_at > ?`,
        string(model.TicketSold), dbTime(now),
        id, string(model.TicketHeld), dbTime(now),
    )
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// ReleaseExpired releases every hold whose expiry is at or before now in
// a single statement and returns the number of rows released.  SOLD rows
// never match.
func (r *TicketRepo) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE tickets SET status = ?, active = NULL, updated_at = ?
         WHERE status = ? AND expires_at <= ?`,
        string(model.TicketReleased), dbTime(now),
        string(model.TicketHeld), dbTime(now),
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// ReleaseHeldByOwner releases all holds owned by ownerID on a session and
// returns the number of rows released.
func (r *TicketRepo) ReleaseHeldByOwner(ctx context.Context, sessionID, ownerID uint64, now time.Time) (int64, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE tickets SET status = ?, active = NULL, updated_at = ?
         WHERE session_id = ? AND owner_id = ? AND status = ?`,
        string(model.TicketReleased), dbTime(now),
        sessionID, ownerID, string(model.TicketHeld),
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// GetByID returns a ticket by internal ID or ErrTicketNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (*model.Ticket, error) {
    return r.queryOne(ctx, r.db, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
}

// GetByCode returns a ticket by its public code or ErrTicketNotFound.
func (r *TicketRepo) GetByCode(ctx context.Context, code string) (*model.Ticket, error) {
    return r.queryOne(ctx, r.db, `SELECT `+ticketColumns+` FROM tickets WHERE code = ?`, code)
}

// ListActiveBySession returns the HELD and SOLD tickets of a session in
// row-major order.
func (r *TicketRepo) ListActiveBySession(ctx context.Context, sessionID uint64) ([]model.Ticket, error) {
    return r.queryMany(ctx, r.db,
        `SELECT `+ticketColumns+` FROM tickets
         WHERE session_id = ? AND active = 1
         ORDER BY seat_row, seat_number`,
        sessionID,
    )
}

// ListByOwner returns the tickets owned by ownerID, newest first.  When
// status is empty every status is returned.
func (r *TicketRepo) ListByOwner(ctx context.Context, ownerID uint64, status model.TicketStatus) ([]model.Ticket, error) {
    if status == "" {
        return r.queryMany(ctx, r.db,
            `SELECT `+ticketColumns+` FROM tickets WHERE owner_id = ? ORDER BY created_at DESC, id DESC`,
            ownerID,
        )
    }
    return r.queryMany(ctx, r.db,
        `SELECT `+ticketColumns+` FROM tickets WHERE owner_id = ? AND status = ? ORDER BY created_at DESC, id DESC`,
        ownerID, string(status),
    )
}
