package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/queue"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/repository"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultHoldTTL      = 5 * time.Minute
	DefaultCodeAttempts = 10
)

// SessionLookup provides session price and hall geometry.
type SessionLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.Session, error)
}

// EventPublisher receives ticket lifecycle events.  Publishing is best
// effort: failures are logged by the caller and never undo a sale.
type EventPublisher interface {
	PublishTicketSold(ctx context.Context, ev queue.TicketSoldEvent) error
	PublishHoldsReleased(ctx context.Context, ev queue.HoldsReleasedEvent) error
}

// Options tunes an Engine.  Zero values select defaults.
type Options struct {
	Clock        Clock
	HoldTTL      time.Duration
	CodeAttempts int
	NewCode      CodeGenerator
	Events       EventPublisher
	Logger       *slog.Logger
}

// Engine decides seat availability, places holds and confirms sales.
// It is safe for concurrent use; per-seat exclusion comes from the
// ledger's unique key, not from locks in this process.
type Engine struct {
	tickets      *repository.TicketRepo
	sessions     SessionLookup
	clock        Clock
	holdTTL      time.Duration
	codeAttempts int
	newCode      CodeGenerator
	events       EventPublisher
	log          *slog.Logger
}

// NewEngine constructs an Engine.  tickets and sessions must be non-nil.
func NewEngine(tickets *repository.TicketRepo, sessions SessionLookup, opts Options) *Engine {
	if tickets == nil || sessions == nil {
		panic("nil repository passed to NewEngine")
	}
	e := &Engine{
		tickets:      tickets,
		sessions:     sessions,
		clock:        opts.Clock,
		holdTTL:      opts.HoldTTL,
		codeAttempts: opts.CodeAttempts,
		newCode:      opts.NewCode,
		events:       opts.Events,
		log:          opts.Logger,
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	if e.holdTTL <= 0 {
		e.holdTTL = DefaultHoldTTL
	}
	if e.codeAttempts <= 0 {
		e.codeAttempts = DefaultCodeAttempts
	}
	if e.newCode == nil {
		e.newCode = NewTicketCode
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// HoldTTL returns how long a new hold lasts.
func (e *Engine) HoldTTL() time.Duration { return e.holdTTL }

func (e *Engine) loadSession(ctx context.Context, sessionID uint64) (*model.Session, error) {
	s, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if isSessionMissing(err) {
			return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
		}
		return nil, storeError("load session", err)
	}
	return s, nil
}

func isSessionMissing(err error) bool {
	return errors.Is(err, repository.ErrSessionNotFound)
}

// HoldSeat places a hold on one seat for ownerID.  It fails with
// ErrSeatUnavailable when the seat is sold or held by an unexpired hold,
// and with ErrNotFound when the session or seat does not exist.  On
// success the returned ticket carries its code and expiry.
func (e *Engine) HoldSeat(ctx context.Context, sessionID, ownerID uint64, row, seat uint32) (*model.Ticket, error) {
	s, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.holdSeat(ctx, s, ownerID, model.SeatRef{Row: row, Seat: seat})
}

func (e *Engine) holdSeat(ctx context.Context, s *model.Session, ownerID uint64, ref model.SeatRef) (*model.Ticket, error) {
	if !s.Hall.Contains(ref.Row, ref.Seat) {
		return nil, fmt.Errorf("seat %d/%d in session %d: %w", ref.Row, ref.Seat, s.ID, ErrNotFound)
	}
	now := snapshot(e.clock)
	expires := now.Add(e.holdTTL)

	var created *model.Ticket
	err := e.tickets.WithTx(ctx, func(tx *sql.Tx) error {
		// An expired hold no longer owns the seat; retire it so the
		// unique key admits the new hold.
		if _, err := e.tickets.ReleaseExpiredSeatTx(ctx, tx, s.ID, ref.Row, ref.Seat, now); err != nil {
			return storeError("release expired hold", err)
		}
		existing, err := e.tickets.ActiveBySeat(ctx, tx, s.ID, ref.Row, ref.Seat)
		switch {
		case err == nil:
			if existing.Occupies(now) {
				return ErrSeatUnavailable
			}
		case !errors.Is(err, repository.ErrTicketNotFound):
			return storeError("load seat", err)
		}

		for attempt := 0; attempt < e.codeAttempts; attempt++ {
			code, err := e.newCode(now)
			if err != nil {
				return fmt.Errorf("generate ticket code: %w", err)
			}
			taken, err := e.tickets.CodeExists(ctx, tx, code)
			if err != nil {
				return storeError("check ticket code", err)
			}
			if taken {
				continue
			}
			t := &model.Ticket{
				SessionID:  s.ID,
				Row:        ref.Row,
				SeatNumber: ref.Seat,
				OwnerID:    ownerID,
				PriceCents: s.PriceCents,
				Code:       code,
				Status:     model.TicketHeld,
				ExpiresAt:  &expires,
				CreatedAt:  now,
			}
			err = e.tickets.CreateTx(ctx, tx, t)
			if err == nil {
				created = t
				return nil
			}
			if !errors.Is(err, repository.ErrDuplicate) {
				return storeError("insert hold", err)
			}
			// The unique key fired: a concurrent hold won the seat, or
			// the code appeared since the check.
			taken, cerr := e.tickets.CodeExists(ctx, tx, code)
			if cerr != nil {
				return storeError("check ticket code", cerr)
			}
			if !taken {
				return ErrSeatUnavailable
			}
		}
		return ErrTicketCodeExhausted
	})
	if err != nil {
		if isOutcome(err) {
			return nil, err
		}
		return nil, storeError("hold seat", err)
	}
	e.log.Debug("seat held",
		"session_id", s.ID, "row", ref.Row, "seat", ref.Seat,
		"owner_id", ownerID, "code", created.Code, "expires_at", expires)
	return created, nil
}

// SeatFailure records why one seat of a batch hold was not held.
type SeatFailure struct {
	Seat model.SeatRef
	Err  error
}

// HoldResult is the outcome of HoldSeats.  Tickets holds the seats that
// were held, in request order; Failed the rest.
type HoldResult struct {
	Requested int
	Tickets   []model.Ticket
	Failed    []SeatFailure
}

// HoldSeats holds each requested seat independently.  Seats that fail
// are reported in Failed rather than aborting the batch.  Duplicate
// seats are collapsed.  When no seat could be held the returned error
// explains why: a store failure wins over ErrSeatUnavailable so callers
// can tell "try again" from "seat taken".
func (e *Engine) HoldSeats(ctx context.Context, sessionID, ownerID uint64, seats []model.SeatRef) (*HoldResult, error) {
	unique := make([]model.SeatRef, 0, len(seats))
	seen := make(map[model.SeatRef]struct{}, len(seats))
	for _, ref := range seats {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		unique = append(unique, ref)
	}
	if len(unique) == 0 {
		return nil, ErrNoSeats
	}
	s, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	res := &HoldResult{Requested: len(unique), Tickets: make([]model.Ticket, 0, len(unique))}
	for _, ref := range unique {
		t, err := e.holdSeat(ctx, s, ownerID, ref)
		if err != nil {
			res.Failed = append(res.Failed, SeatFailure{Seat: ref, Err: err})
			continue
		}
		res.Tickets = append(res.Tickets, *t)
	}
	if len(res.Tickets) > 0 {
		return res, nil
	}
	return res, batchError(res.Failed)
}

func batchError(failed []SeatFailure) error {
	var first error
	for _, f := range failed {
		if errors.Is(f.Err, ErrStoreUnavailable) {
			return f.Err
		}
		if first == nil {
			first = f.Err
		}
	}
	for _, f := range failed {
		if errors.Is(f.Err, ErrSeatUnavailable) {
			return ErrSeatUnavailable
		}
	}
	return first
}

// ConfirmSale turns an unexpired hold into a sale.  It fails with
// ErrNotFound for an unknown ticket and with ErrAlreadyFinalizedOrExpired
// when the ticket is not HELD or its hold has run out, even if the
// reaper has not released it yet.  Confirming twice fails the second
// time.
func (e *Engine) ConfirmSale(ctx context.Context, ticketID uint64) (*model.Ticket, error) {
	now := snapshot(e.clock)
	ok, err := e.tickets.MarkSold(ctx, ticketID, now)
	if err != nil {
		return nil, storeError("confirm sale", err)
	}
	if !ok {
		if _, err := e.tickets.GetByID(ctx, ticketID); err != nil {
			if errors.Is(err, repository.ErrTicketNotFound) {
				return nil, fmt.Errorf("ticket %d: %w", ticketID, ErrNotFound)
			}
			return nil, storeError("load ticket", err)
		}
		return nil, fmt.Errorf("ticket %d: %w", ticketID, ErrAlreadyFinalizedOrExpired)
	}

	t, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		// The sale is committed; report it even though the re-read failed.
		e.log.Warn("reload sold ticket failed", "ticket_id", ticketID, "error", err)
		t = &model.Ticket{ID: ticketID, Status: model.TicketSold, UpdatedAt: now}
	}
	e.publishSold(ctx, t, now)
	return t, nil
}

func (e *Engine) publishSold(ctx context.Context, t *model.Ticket, now time.Time) {
	if e.events == nil {
		return
	}
	ev := queue.TicketSoldEvent{
		TicketID:   t.ID,
		Code:       t.Code,
		SessionID:  t.SessionID,
		OwnerID:    t.OwnerID,
		Row:        t.Row,
		SeatNumber: t.SeatNumber,
		PriceCents: t.PriceCents,
		SoldAt:     now.Format(time.RFC3339),
	}
	if err := e.events.PublishTicketSold(ctx, ev); err != nil {
		e.log.Warn("publish ticket.sold failed", "ticket_id", t.ID, "error", err)
	}
}

// ConfirmOutcome is the result of confirming one ticket of a batch.
type ConfirmOutcome struct {
	TicketID uint64
	Ticket   *model.Ticket
	Err      error
}

// ConfirmSales confirms each ticket independently; one failure does not
// affect the others.
func (e *Engine) ConfirmSales(ctx context.Context, ticketIDs []uint64) []ConfirmOutcome {
	out := make([]ConfirmOutcome, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		t, err := e.ConfirmSale(ctx, id)
		out = append(out, ConfirmOutcome{TicketID: id, Ticket: t, Err: err})
	}
	return out
}

// IsSeatAvailable reports whether a seat could be held right now.  A hold
// past its expiry counts as free even before the reaper releases it.
func (e *Engine) IsSeatAvailable(ctx context.Context, sessionID uint64, row, seat uint32) (bool, error) {
	s, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !s.Hall.Contains(row, seat) {
		return false, fmt.Errorf("seat %d/%d in session %d: %w", row, seat, sessionID, ErrNotFound)
	}
	now := snapshot(e.clock)
	t, err := e.tickets.ActiveBySeat(ctx, nil, sessionID, row, seat)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return true, nil
		}
		return false, storeError("load seat", err)
	}
	return !t.Occupies(now), nil
}

// ReleaseHolds drops every hold ownerID has on a session and returns how
// many were released.  Sales are never touched.
func (e *Engine) ReleaseHolds(ctx context.Context, sessionID, ownerID uint64) (int64, error) {
	if _, err := e.loadSession(ctx, sessionID); err != nil {
		return 0, err
	}
	n, err := e.tickets.ReleaseHeldByOwner(ctx, sessionID, ownerID, snapshot(e.clock))
	if err != nil {
		return 0, storeError("release holds", err)
	}
	return n, nil
}

// LookupTicket finds a ticket by its public code.
func (e *Engine) LookupTicket(ctx context.Context, code string) (*model.Ticket, error) {
	t, err := e.tickets.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, fmt.Errorf("ticket %q: %w", code, ErrNotFound)
		}
		return nil, storeError("lookup ticket", err)
	}
	return t, nil
}

// GetTicket finds a ticket by internal ID.
func (e *Engine) GetTicket(ctx context.Context, id uint64) (*model.Ticket, error) {
	t, err := e.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, fmt.Errorf("ticket %d: %w", id, ErrNotFound)
		}
		return nil, storeError("get ticket", err)
	}
	return t, nil
}

// ListTickets returns the tickets of ownerID, newest first, optionally
// filtered by status.
func (e *Engine) ListTickets(ctx context.Context, ownerID uint64, status model.TicketStatus) ([]model.Ticket, error) {
	ts, err := e.tickets.ListByOwner(ctx, ownerID, status)
	if err != nil {
		return nil, storeError("list tickets", err)
	}
	return ts, nil
}
