package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema_mysql.sql
var schemaMySQL string

//go:embed schema_sqlite.sql
var schemaSQLite string

// Migrate creates the halls, sessions and tickets tables if they do not
// exist.  Statements are executed one by one so the MySQL DSN does not
// need multiStatements.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var schema string
	switch driver {
	case DriverMySQL:
		schema = schemaMySQL
	case DriverSQLite:
		schema = schemaSQLite
	default:
		return fmt.Errorf("unknown database driver %q", driver)
	}
	for _, stmt := range splitStatements(schema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// splitStatements splits a schema file on ';' and drops blank and
// comment-only chunks.
func splitStatements(schema string) []string {
	var out []string
	for _, chunk := range strings.Split(schema, ";") {
		var b strings.Builder
		for _, line := range strings.Split(chunk, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
