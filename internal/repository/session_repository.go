package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
)

// SessionRepo reads session metadata and hall geometry.  Sessions and
// halls are managed elsewhere; the create helpers exist for seeding
// development databases and tests.
type SessionRepo struct {
    db *sql.DB
}

// NewSessionRepo constructs a SessionRepo with the given DB handle.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// GetByID loads a session together with its hall.  It returns
// ErrSessionNotFound if either row is missing.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
    const q = `SELECT s.id, s.hall_id, s.title, s.starts_at, s.price_cents,
                      h.id, h.name, h.seat_rows, h.seats_per_row
               FROM sessions s
               JOIN halls h ON h.id = s.hall_id
               WHERE s.id = ?`
    var s model.Session
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &s.ID, &s.HallID, &s.Title, &s.StartsAt, &s.PriceCents,
        &s.Hall.ID, &s.Hall.Name, &s.Hall.SeatRows, &s.Hall.SeatsPerRow,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrSessionNotFound
        }
        return nil, err
    }
    s.StartsAt = s.StartsAt.UTC()
    return &s, nil
}

// CreateHall inserts a hall and assigns the generated ID.
func (r *SessionRepo) CreateHall(ctx context.Context, h *model.Hall) error {
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO halls (name, seat_rows, seats_per_row) VALUES (?, ?, ?)`,
        h.Name, h.SeatRows, h.SeatsPerRow,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    h.ID = uint64(id)
    return nil
}

// CreateSession inserts a session for an existing hall and assigns the
// generated ID.
func (r *SessionRepo) CreateSession(ctx context.Context, s *model.Session) error {
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO sessions (hall_id, title, starts_at, price_cents) VALUES (?, ?, ?, ?)`,
        s.HallID, s.Title, dbTime(s.StartsAt), s.PriceCents,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    s.ID = uint64(id)
    return nil
}

// UpdatePrice changes the current price of a session.  Existing tickets
// keep the price they were created with.
func (r *SessionRepo) UpdatePrice(ctx context.Context, id uint64, priceCents uint32) error {
    res, err := r.db.ExecContext(ctx, `UPDATE sessions SET price_cents = ? WHERE id = ?`, priceCents, id)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        // MySQL reports 0 affected rows when the price is unchanged.
        _, err := r.GetByID(ctx, id)
        return err
    }
    return nil
}
