package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strings"

    "github.com/matvey1347srgtjh/uchebnaia-practika/internal/database"
)

// Config holds the process-level configuration.  Each field corresponds to
// an environment variable.  Reservation and broker settings live in their
// own loaders so tools that only need the ledger can skip them.
type Config struct {
    Env        string // application environment (e.g. "dev", "prod")
    Port       string // HTTP port to listen on
    DBDriver   string // "mysql" or "sqlite3"
    DBUser     string // database username (mysql only)
    DBPass     string // database password (optional)
    DBHost     string // database host address (mysql only)
    DBPort     string // database port number (mysql only)
    DBName     string // database name (mysql only)
    SQLitePath string // database file (sqlite3 only)
    JWTSecret  string // secret used to verify JWTs
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The DB_* variables
// are only required for the mysql driver.
func Load() Config {
    cfg := Config{
        Env:        must("APP_ENV"),
        Port:       must("APP_PORT"),
        DBDriver:   strings.ToLower(envStr("DB_DRIVER", database.DriverMySQL)),
        DBPass:     os.Getenv("DB_PASS"), // empty allowed
        SQLitePath: envStr("SQLITE_PATH", "cinema.db"),
        JWTSecret:  must("JWT_SECRET"),
    }
    switch cfg.DBDriver {
    case database.DriverMySQL:
        cfg.DBUser = must("DB_USER")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    case database.DriverSQLite:
    default:
        log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
