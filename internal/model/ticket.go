package model

import "time"

// TicketStatus is the lifecycle state of a ticket row in the seat ledger.
type TicketStatus string

const (
    // TicketHeld marks a temporary hold that expires at ExpiresAt.
    TicketHeld TicketStatus = "HELD"
    // TicketSold marks a confirmed sale.  Sold tickets never expire.
    TicketSold TicketStatus = "SOLD"
    // TicketReleased is terminal: the hold expired or was dropped.
    TicketReleased TicketStatus = "RELEASED"
)

// Active reports whether the status occupies its seat in the ledger.
func (s TicketStatus) Active() bool {
    return s == TicketHeld || s == TicketSold
}

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
    return s.Active() || s == TicketReleased
}

// Ticket is one hold or sale of a physical seat for a session.  At most
// one Held or Sold ticket exists per (SessionID, Row, SeatNumber).
//
// Fields:
//  ID          – internal identifier (tickets.id).
//  SessionID   – session (showing) the seat belongs to.
//  Row         – 1-based row of the seat in the hall.
//  SeatNumber  – 1-based seat number within the row.
//  OwnerID     – identity of the holder or purchaser.
//  PriceCents  – session price captured when the hold was created.
//  Code        – unique, human-presentable ticket code; never reused.
//  Status      – HELD, SOLD or RELEASED.
//  ExpiresAt   – end of the hold; nil once sold.
//  CreatedAt   – when the hold was created.
//  UpdatedAt   – last status change.
type Ticket struct {
    ID         uint64       `json:"id"`
    SessionID  uint64       `json:"session_id"`
    Row        uint32       `json:"row"`
    SeatNumber uint32       `json:"seat_number"`
    OwnerID    uint64       `json:"owner_id"`
    PriceCents uint32       `json:"price_cents"`
    Code       string       `json:"code"`
    Status     TicketStatus `json:"status"`
    ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
    CreatedAt  time.Time    `json:"created_at"`
    UpdatedAt  time.Time    `json:"updated_at"`
}

// HoldExpired reports whether the ticket is a hold whose expiry is at or
// before now.  Such a hold no longer occupies its seat even if the row
// has not been released yet.
func (t *Ticket) HoldExpired(now time.Time) bool {
    return t.Status == TicketHeld && t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// Occupies reports whether the ticket makes its seat unavailable at now.
func (t *Ticket) Occupies(now time.Time) bool {
    switch t.Status {
    case TicketSold:
        return true
    case TicketHeld:
        return !t.HoldExpired(now)
    }
    return false
}
