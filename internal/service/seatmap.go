package service

import (
	"context"
	"fmt"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/repository"
)

// Projector renders the seat map of a session from the ledger.
type Projector struct {
	tickets  *repository.TicketRepo
	sessions SessionLookup
	clock    Clock
}

// NewProjector returns a Projector.  A nil clock means SystemClock.
func NewProjector(tickets *repository.TicketRepo, sessions SessionLookup, clock Clock) *Projector {
	if clock == nil {
		clock = SystemClock()
	}
	return &Projector{tickets: tickets, sessions: sessions, clock: clock}
}

// GetSeatStatuses returns one entry per seat of the session's hall in
// row-major order.  Sold seats are SOLD, unexpired holds are RESERVED
// with their expiry, and everything else, including holds that have run
// out but were not reaped yet, is AVAILABLE.  The whole map is evaluated
// against a single clock reading.
func (p *Projector) GetSeatStatuses(ctx context.Context, sessionID uint64) ([]model.SeatStatus, error) {
	s, err := p.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if isSessionMissing(err) {
			return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
		}
		return nil, storeError("load session", err)
	}
	active, err := p.tickets.ListActiveBySession(ctx, sessionID)
	if err != nil {
		return nil, storeError("list seats", err)
	}
	now := snapshot(p.clock)

	live := make(map[model.SeatRef]model.Ticket, len(active))
	for _, t := range active {
		if t.Occupies(now) {
			live[model.SeatRef{Row: t.Row, Seat: t.SeatNumber}] = t
		}
	}

	out := make([]model.SeatStatus, 0, s.Hall.Capacity())
	for row := uint32(1); row <= s.Hall.SeatRows; row++ {
		for seat := uint32(1); seat <= s.Hall.SeatsPerRow; seat++ {
			st := model.SeatStatus{Row: row, SeatNumber: seat, State: model.SeatAvailable}
			if t, ok := live[model.SeatRef{Row: row, Seat: seat}]; ok {
				switch t.Status {
				case model.TicketSold:
					st.State = model.SeatSold
				case model.TicketHeld:
					st.State = model.SeatReserved
					st.ExpiresAt = t.ExpiresAt
				}
			}
			out = append(out, st)
		}
	}
	return out, nil
}
