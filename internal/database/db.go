package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Driver names accepted by OpenDriver.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Params selects and configures the seat ledger backend.
type Params struct {
	Driver     string
	User       string
	Pass       string
	Host       string
	Port       string
	Name       string
	SQLitePath string
}

// OpenDriver opens the backend named by p.Driver and applies the schema.
func OpenDriver(p Params) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch p.Driver {
	case "", DriverMySQL:
		db, err = Open(p.User, p.Pass, p.Host, p.Port, p.Name)
	case DriverSQLite:
		db, err = OpenSQLite(p.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", p.Driver)
	}
	if err != nil {
		return nil, err
	}
	driver := p.Driver
	if driver == "" {
		driver = DriverMySQL
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := Migrate(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
