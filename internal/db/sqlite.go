package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/neboloop/hotword/internal/db/migrations"
	"github.com/neboloop/hotword/internal/logging"
)

// journalPragmas favour a single writer appending small rows while the
// history endpoints read.
var journalPragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range journalPragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

// NewSQLite opens (creating if needed) the journal at path and migrates it
// to the latest schema.
func NewSQLite(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := migrations.Run(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	logging.Debugf("journal ready at %s", path)
	return NewStore(conn), nil
}
