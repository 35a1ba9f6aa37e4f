package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/queue"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/repository"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/service"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/testutil"
)

var base = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine    *service.Engine
	projector *service.Projector
	tickets   *repository.TicketRepo
	sessions  *repository.SessionRepo
	clock     *testutil.Clock
	session   *model.Session
}

func newFixture(t *testing.T, rows, perRow, price uint32, opts service.Options) *fixture {
	t.Helper()
	db := testutil.OpenLedger(t)
	s := testutil.SeedSession(t, db, rows, perRow, price)
	f := &fixture{
		tickets:  repository.NewTicketRepo(db),
		sessions: repository.NewSessionRepo(db),
		clock:    testutil.NewClock(base),
		session:  s,
	}
	opts.Clock = f.clock
	f.engine = service.NewEngine(f.tickets, f.sessions, opts)
	f.projector = service.NewProjector(f.tickets, f.sessions, f.clock)
	return f
}

// scriptedCodes returns the given codes in order, then repeats the last.
func scriptedCodes(codes ...string) service.CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func(time.Time) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	sold     []queue.TicketSoldEvent
	released []queue.HoldsReleasedEvent
	err      error
}

func (p *recordingPublisher) PublishTicketSold(_ context.Context, ev queue.TicketSoldEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sold = append(p.sold, ev)
	return p.err
}

func (p *recordingPublisher) PublishHoldsReleased(_ context.Context, ev queue.HoldsReleasedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, ev)
	return p.err
}

func TestEngine_SmallHallScenario(t *testing.T) {
	f := newFixture(t, 2, 3, 1000, service.Options{})
	ctx := context.Background()

	tk, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), tk.PriceCents)
	assert.Equal(t, model.TicketHeld, tk.Status)
	require.NotNil(t, tk.ExpiresAt)
	assert.True(t, tk.ExpiresAt.Equal(base.Add(service.DefaultHoldTTL)))
	assert.Regexp(t, `^TICKET-20261018-[0-9A-F]{16}$`, tk.Code)

	seats, err := f.projector.GetSeatStatuses(ctx, f.session.ID)
	require.NoError(t, err)
	require.Len(t, seats, 6)
	assert.Equal(t, model.SeatReserved, seats[0].State)
	for _, st := range seats[1:] {
		assert.Equal(t, model.SeatAvailable, st.State)
	}

	sold, err := f.engine.ConfirmSale(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketSold, sold.Status)
	assert.Nil(t, sold.ExpiresAt)
	assert.Equal(t, tk.Code, sold.Code)

	seats, err = f.projector.GetSeatStatuses(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, seats[0].State)

	_, err = f.engine.HoldSeat(ctx, f.session.ID, 2, 1, 1)
	assert.ErrorIs(t, err, service.ErrSeatUnavailable)

	byCode, err := f.engine.LookupTicket(ctx, tk.Code)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, byCode.ID)
	assert.Equal(t, model.TicketSold, byCode.Status)
}

func TestEngine_ParallelHoldsOneWinner(t *testing.T) {
	f := newFixture(t, 1, 1, 1000, service.Options{})
	ctx := context.Background()

	const n = 16
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		succeeded atomic.Int32
		errs      = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(owner uint64) {
			defer wg.Done()
			<-start
			_, err := f.engine.HoldSeat(ctx, f.session.ID, owner, 1, 1)
			if err == nil {
				succeeded.Add(1)
				return
			}
			errs <- err
		}(uint64(i + 1))
	}
	close(start)
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), succeeded.Load())
	for err := range errs {
		assert.ErrorIs(t, err, service.ErrSeatUnavailable)
	}
	active, err := f.tickets.ListActiveBySession(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEngine_ConfirmTwice(t *testing.T) {
	f := newFixture(t, 1, 2, 1000, service.Options{})
	ctx := context.Background()

	tk, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 2)
	require.NoError(t, err)
	_, err = f.engine.ConfirmSale(ctx, tk.ID)
	require.NoError(t, err)
	_, err = f.engine.ConfirmSale(ctx, tk.ID)
	assert.ErrorIs(t, err, service.ErrAlreadyFinalizedOrExpired)

	_, err = f.engine.ConfirmSale(ctx, tk.ID+1000)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestEngine_ExpiredHoldIsAvailable(t *testing.T) {
	f := newFixture(t, 1, 2, 1000, service.Options{HoldTTL: time.Minute})
	ctx := context.Background()

	tk, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)

	ok, err := f.engine.IsSeatAvailable(ctx, f.session.ID, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	f.clock.Advance(59 * time.Second)
	ok, err = f.engine.IsSeatAvailable(ctx, f.session.ID, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok, "hold still live one second before expiry")

	f.clock.Advance(time.Second)
	ok, err = f.engine.IsSeatAvailable(ctx, f.session.ID, 1, 1)
	require.NoError(t, err)
	assert.True(t, ok, "hold expires exactly at its deadline")

	seats, err := f.projector.GetSeatStatuses(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeatAvailable, seats[0].State)

	_, err = f.engine.ConfirmSale(ctx, tk.ID)
	assert.ErrorIs(t, err, service.ErrAlreadyFinalizedOrExpired)

	other, err := f.engine.HoldSeat(ctx, f.session.ID, 2, 1, 1)
	require.NoError(t, err, "expired hold must not block a new one")
	assert.NotEqual(t, tk.Code, other.Code)

	old, err := f.engine.GetTicket(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketReleased, old.Status)
}

func TestEngine_NotFound(t *testing.T) {
	f := newFixture(t, 2, 3, 1000, service.Options{})
	ctx := context.Background()

	_, err := f.engine.HoldSeat(ctx, f.session.ID+99, 1, 1, 1)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.engine.HoldSeat(ctx, f.session.ID, 1, 3, 1)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 0)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.engine.IsSeatAvailable(ctx, f.session.ID, 2, 4)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.projector.GetSeatStatuses(ctx, f.session.ID+99)
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.engine.LookupTicket(ctx, "TICKET-NOPE")
	assert.ErrorIs(t, err, service.ErrNotFound)
	_, err = f.engine.ReleaseHolds(ctx, f.session.ID+99, 1)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestEngine_PriceSnapshot(t *testing.T) {
	f := newFixture(t, 1, 2, 1000, service.Options{})
	ctx := context.Background()

	first, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)
	require.NoError(t, f.sessions.UpdatePrice(ctx, f.session.ID, 1500))
	second, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 2)
	require.NoError(t, err)

	sold, err := f.engine.ConfirmSale(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), sold.PriceCents)
	assert.Equal(t, uint32(1500), second.PriceCents)
}

func TestEngine_CodeCollisionRetries(t *testing.T) {
	f := newFixture(t, 1, 3, 1000, service.Options{NewCode: scriptedCodes("DUP", "DUP", "FRESH")})
	ctx := context.Background()

	first, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "DUP", first.Code)

	second, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "FRESH", second.Code)
}

func TestEngine_ReleasedCodesAreNotReused(t *testing.T) {
	f := newFixture(t, 1, 2, 1000, service.Options{NewCode: scriptedCodes("ONCE", "ONCE", "TWICE")})
	ctx := context.Background()

	_, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)
	n, err := f.engine.ReleaseHolds(ctx, f.session.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	again, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "TWICE", again.Code)
}

func TestEngine_CodeExhaustion(t *testing.T) {
	f := newFixture(t, 1, 2, 1000, service.Options{NewCode: scriptedCodes("SAME"), CodeAttempts: 3})
	ctx := context.Background()

	_, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)
	_, err = f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 2)
	assert.ErrorIs(t, err, service.ErrTicketCodeExhausted)

	ok, err := f.engine.IsSeatAvailable(ctx, f.session.ID, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok, "failed hold leaves nothing behind")
}

func TestEngine_HoldSeatsPartial(t *testing.T) {
	f := newFixture(t, 2, 3, 1000, service.Options{})
	ctx := context.Background()

	_, err := f.engine.HoldSeat(ctx, f.session.ID, 9, 1, 1)
	require.NoError(t, err)

	res, err := f.engine.HoldSeats(ctx, f.session.ID, 1, []model.SeatRef{
		{Row: 1, Seat: 1}, {Row: 1, Seat: 2}, {Row: 1, Seat: 2}, {Row: 5, Seat: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Requested)
	require.Len(t, res.Tickets, 1)
	assert.Equal(t, uint32(2), res.Tickets[0].SeatNumber)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[0].Err, service.ErrSeatUnavailable)
	assert.ErrorIs(t, res.Failed[1].Err, service.ErrNotFound)

	res, err = f.engine.HoldSeats(ctx, f.session.ID, 1, []model.SeatRef{{Row: 1, Seat: 1}})
	assert.ErrorIs(t, err, service.ErrSeatUnavailable)
	require.NotNil(t, res)
	assert.Empty(t, res.Tickets)

	_, err = f.engine.HoldSeats(ctx, f.session.ID, 1, nil)
	assert.ErrorIs(t, err, service.ErrNoSeats)
}

func TestEngine_ConfirmSalesIndependent(t *testing.T) {
	f := newFixture(t, 1, 2, 1000, service.Options{})
	ctx := context.Background()

	tk, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)

	out := f.engine.ConfirmSales(ctx, []uint64{tk.ID, tk.ID + 50, tk.ID})
	require.Len(t, out, 3)
	assert.NoError(t, out[0].Err)
	assert.Equal(t, model.TicketSold, out[0].Ticket.Status)
	assert.ErrorIs(t, out[1].Err, service.ErrNotFound)
	assert.ErrorIs(t, out[2].Err, service.ErrAlreadyFinalizedOrExpired)
}

func TestEngine_ReleaseHoldsAndList(t *testing.T) {
	f := newFixture(t, 1, 3, 1000, service.Options{})
	ctx := context.Background()

	a, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)
	_, err = f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 2)
	require.NoError(t, err)
	_, err = f.engine.ConfirmSale(ctx, a.ID)
	require.NoError(t, err)

	n, err := f.engine.ReleaseHolds(ctx, f.session.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sold, err := f.engine.ListTickets(ctx, 1, model.TicketSold)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Equal(t, a.ID, sold[0].ID)

	all, err := f.engine.ListTickets(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ok, err := f.engine.IsSeatAvailable(ctx, f.session.ID, 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_PublishesSale(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, 1, 1, 1000, service.Options{Events: pub})
	ctx := context.Background()

	tk, err := f.engine.HoldSeat(ctx, f.session.ID, 4, 1, 1)
	require.NoError(t, err)
	_, err = f.engine.ConfirmSale(ctx, tk.ID)
	require.NoError(t, err)

	require.Len(t, pub.sold, 1)
	ev := pub.sold[0]
	assert.Equal(t, tk.ID, ev.TicketID)
	assert.Equal(t, tk.Code, ev.Code)
	assert.Equal(t, uint64(4), ev.OwnerID)
	assert.Equal(t, uint32(1000), ev.PriceCents)
	assert.Equal(t, "2026-10-18T12:00:00Z", ev.SoldAt)
}

func TestEngine_PublishFailureKeepsSale(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	f := newFixture(t, 1, 1, 1000, service.Options{Events: pub})
	ctx := context.Background()

	tk, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)
	sold, err := f.engine.ConfirmSale(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TicketSold, sold.Status)
}

func TestEngine_StoreUnavailable(t *testing.T) {
	f := newFixture(t, 1, 1, 1000, service.Options{})
	ctx := context.Background()
	tk, err := f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	require.NoError(t, err)

	require.NoError(t, f.tickets.DB().Close())

	_, err = f.engine.HoldSeat(ctx, f.session.ID, 1, 1, 1)
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	_, err = f.engine.ConfirmSale(ctx, tk.ID)
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	_, err = f.engine.IsSeatAvailable(ctx, f.session.ID, 1, 1)
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)
	_, err = f.projector.GetSeatStatuses(ctx, f.session.ID)
	assert.ErrorIs(t, err, service.ErrStoreUnavailable)

	var se *service.StoreError
	assert.True(t, errors.As(err, &se))
}
