// Package cli implements ledgerctl, the operator tool for the seat
// ledger.
package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matvey1347srgtjh/uchebnaia-practika/internal/database"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Driver     string
	SQLitePath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for ledgerctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the cinema seat ledger",
		Long: `ledgerctl inspects and maintains the seat ledger directly.

MySQL connection settings come from DB_USER, DB_PASS, DB_HOST, DB_PORT
and DB_NAME; --driver sqlite3 with --sqlite-path selects an embedded
ledger instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", envOr("DB_DRIVER", database.DriverMySQL), "ledger driver (mysql|sqlite3)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", envOr("SQLITE_PATH", "cinema.db"), "SQLite database file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewReapCommand(opts))
	cmd.AddCommand(NewLookupCommand(opts))
	cmd.AddCommand(NewSeatMapCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openLedger opens the configured ledger and applies the schema.
func (o *RootOptions) openLedger() (*sql.DB, error) {
	db, err := database.OpenDriver(database.Params{
		Driver:     o.Driver,
		User:       os.Getenv("DB_USER"),
		Pass:       os.Getenv("DB_PASS"),
		Host:       os.Getenv("DB_HOST"),
		Port:       os.Getenv("DB_PORT"),
		Name:       os.Getenv("DB_NAME"),
		SQLitePath: o.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return db, nil
}

// emit writes v as indented JSON, or calls text for the text format.
func (o *RootOptions) emit(w io.Writer, v any, text func(io.Writer) error) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
