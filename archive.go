package serialchat

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is an append-only SQLite log of every message. The in-memory
// store deliberately drops port history past its cap; the archive keeps
// the long tail queryable.
type Archive struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	port_name TEXT NOT NULL,
	direction INTEGER NOT NULL,
	data      BLOB NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_port_time ON messages(port_name, timestamp);
`

// OpenArchive opens (creating if needed) the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging archive %s: %w", path, err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Append stores msg. Re-appending an id already present is a no-op.
func (a *Archive) Append(msg Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrArchiveClosed
	}

	_, err := a.db.Exec(
		`INSERT OR IGNORE INTO messages (id, port_name, direction, data, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.PortName, int(msg.Direction), msg.Data,
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("archiving message %s: %w", msg.ID, err)
	}
	return nil
}

// Messages returns the newest limit messages for a port in ascending
// timestamp order. A non-positive limit returns everything.
func (a *Archive) Messages(portName string, limit int) ([]Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrArchiveClosed
	}

	query := `SELECT id, port_name, direction, data, timestamp FROM messages WHERE port_name = ? ORDER BY timestamp DESC`
	args := []interface{}{portName}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive for %s: %w", portName, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg       Message
			direction int
			ts        string
		)
		if err := rows.Scan(&msg.ID, &msg.PortName, &direction, &msg.Data, &ts); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}
		msg.Direction = Direction(direction)
		if t, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			msg.Timestamp = t
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating archive rows: %w", err)
	}

	// rows arrive newest-first; flip to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns how many messages are archived for a port.
func (a *Archive) Count(portName string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrArchiveClosed
	}

	var n int64
	err := a.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE port_name = ?`, portName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting archive for %s: %w", portName, err)
	}
	return n, nil
}

// Close releases the database. Safe to call multiple times.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}
