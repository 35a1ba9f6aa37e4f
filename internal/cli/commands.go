package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/model"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/repository"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/service"
	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/utils"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openLedger()
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", opts.Driver)
			return nil
		},
	}
}

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Hall        string
	Rows        uint32
	SeatsPerRow uint32
	Title       string
	StartsAt    string
	PriceCents  uint32
}

// NewSeedCommand creates the seed command, which adds a hall and a
// session to a development ledger.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a hall and a session for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Hall, "hall", "Hall 1", "hall name")
	cmd.Flags().Uint32Var(&opts.Rows, "rows", 10, "number of seat rows")
	cmd.Flags().Uint32Var(&opts.SeatsPerRow, "seats-per-row", 12, "seats in each row")
	cmd.Flags().StringVar(&opts.Title, "title", "Premiere", "session title")
	cmd.Flags().StringVar(&opts.StartsAt, "starts-at", "", "session start (RFC3339, default tomorrow)")
	cmd.Flags().Uint32Var(&opts.PriceCents, "price-cents", 1000, "ticket price in cents")
	return cmd
}

func runSeed(ctx context.Context, opts *SeedOptions, w io.Writer) error {
	if opts.Rows == 0 || opts.SeatsPerRow == 0 {
		return fmt.Errorf("rows and seats-per-row must be positive")
	}
	starts := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	if opts.StartsAt != "" {
		t, err := time.Parse(time.RFC3339, opts.StartsAt)
		if err != nil {
			return fmt.Errorf("invalid --starts-at: %w", err)
		}
		starts = t.UTC()
	}
	db, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	sessions := repository.NewSessionRepo(db)
	hall := &model.Hall{Name: opts.Hall, SeatRows: opts.Rows, SeatsPerRow: opts.SeatsPerRow}
	if err := sessions.CreateHall(ctx, hall); err != nil {
		return fmt.Errorf("create hall: %w", err)
	}
	s := &model.Session{HallID: hall.ID, Title: opts.Title, StartsAt: starts, PriceCents: opts.PriceCents}
	if err := sessions.CreateSession(ctx, s); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.Hall = *hall
	return opts.emit(w, s, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "session %d in hall %d (%dx%d) at %d cents\n",
			s.ID, hall.ID, hall.SeatRows, hall.SeatsPerRow, s.PriceCents)
		return err
	})
}

// NewReapCommand creates the reap command, which runs one reaper cycle.
func NewReapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Release every expired hold once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openLedger()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := service.NewReaper(repository.NewTicketRepo(db), service.ReaperOptions{}).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), map[string]int64{"released": n}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "released %d expired holds\n", n)
				return err
			})
		},
	}
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup CODE",
		Short: "Show the ticket with the given code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openLedger()
			if err != nil {
				return err
			}
			defer db.Close()

			tickets := repository.NewTicketRepo(db)
			engine := service.NewEngine(tickets, repository.NewSessionRepo(db), service.Options{})
			t, err := engine.LookupTicket(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), t, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s  %s  session=%d seat=%d/%d owner=%d price=%d\n",
					t.Code, t.Status, t.SessionID, t.Row, t.SeatNumber, t.OwnerID, t.PriceCents)
				return err
			})
		},
	}
}

// NewSeatMapCommand creates the seat-map command.
func NewSeatMapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seat-map SESSION_ID",
		Short: "Print the seat map of a session",
		Long: `Print the seat map of a session, one line per row:
  .  available
  h  reserved (unexpired hold)
  X  sold`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			db, err := opts.openLedger()
			if err != nil {
				return err
			}
			defer db.Close()

			p := service.NewProjector(repository.NewTicketRepo(db), repository.NewSessionRepo(db), nil)
			seats, err := p.GetSeatStatuses(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), seats, func(w io.Writer) error {
				return renderSeatMap(w, seats)
			})
		},
	}
}

func renderSeatMap(w io.Writer, seats []model.SeatStatus) error {
	var (
		b   strings.Builder
		row uint32
	)
	for _, st := range seats {
		if st.Row != row {
			if row != 0 {
				b.WriteByte('\n')
			}
			row = st.Row
			fmt.Fprintf(&b, "%3d ", row)
		}
		switch st.State {
		case model.SeatSold:
			b.WriteByte('X')
		case model.SeatReserved:
			b.WriteByte('h')
		default:
			b.WriteByte('.')
		}
	}
	if row != 0 {
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Owner uint64
	Role  string
	TTL   time.Duration
}

// NewTokenCommand creates the token command, which mints an access token
// signed with JWT_SECRET for manual API testing.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			if opts.Owner == 0 {
				return fmt.Errorf("--owner is required")
			}
			at, err := utils.NewAccessToken(secret, opts.Owner, opts.Role, opts.TTL)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), at, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, at.Token)
				return err
			})
		},
	}
	cmd.Flags().Uint64Var(&opts.Owner, "owner", 0, "owner ID placed in the sub claim")
	cmd.Flags().StringVar(&opts.Role, "role", "CUSTOMER", "role claim")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")
	return cmd
}
