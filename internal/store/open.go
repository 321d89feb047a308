package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"          // Postgres driver
	_ "modernc.org/sqlite"         // Pure Go SQLite driver
)

// Open creates a page store for the configured driver.
func Open(driver, dsn string) (*SQLStore, error) {
	var db *sql.DB
	var err error
	switch driver {
	case "sqlite":
		db, err = sql.Open("sqlite", dsn)
	case "postgres":
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s store: %w", driver, err)
	}
	return NewSQLStore(db, driver)
}
