package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the outcomes table if it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Outcomes arrive from many goroutines; SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY,
		batch_id TEXT NOT NULL,
		record_id TEXT NOT NULL,
		source_url TEXT,
		status TEXT NOT NULL,
		kind TEXT,
		detail TEXT,
		path TEXT,
		attempts INTEGER DEFAULT 0,
		bytes INTEGER DEFAULT 0,
		updated_at DATETIME,
		UNIQUE(batch_id, record_id)
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create outcomes table: %w", err)
	}

	return db, nil
}
