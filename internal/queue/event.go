// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Both queues are durable.
const (
    TicketSoldQueue    = "ticket.sold"
    HoldsReleasedQueue = "holds.released"
)

// TicketSoldEvent is published when a hold is confirmed as a sale.  It
// carries enough information for downstream consumers to log, notify or
// feed analytics without querying the seat ledger.
type TicketSoldEvent struct {
    TicketID   uint64 `json:"ticket_id"`
    Code       string `json:"code"`
    SessionID  uint64 `json:"session_id"`
    OwnerID    uint64 `json:"owner_id"`
    Row        uint32 `json:"row"`
    SeatNumber uint32 `json:"seat_number"`
    PriceCents uint32 `json:"price_cents"`
    SoldAt     string `json:"sold_at"`
}

// HoldsReleasedEvent is published after a reaper cycle that released at
// least one expired hold.
type HoldsReleasedEvent struct {
    Count      int64  `json:"count"`
    ReleasedAt string `json:"released_at"`
}
