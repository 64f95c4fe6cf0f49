package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"pollroom/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS poll_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	question TEXT NOT NULL,
	options TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL,
	started_at TIMESTAMP NOT NULL,
	closed_at TIMESTAMP NOT NULL,
	counts TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_poll_history_session ON poll_history(session_id, closed_at);
`

// Archive persists completed-poll records to SQLite. Writes funnel through a
// single goroutine; SQLite handles concurrent readers but serialized writes
// avoid lock contention.
type Archive struct {
	db       *sql.DB
	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	a := &Archive{
		db:       db,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}

	a.wg.Add(1)
	go a.writeLoop()

	return a, nil
}

func (a *Archive) writeLoop() {
	defer a.wg.Done()

	for {
		select {
		case op := <-a.writeCh:
			err := op.operation(a.db)
			if err != nil {
				log.Printf("Archive write failed, retrying: %v", err)
				err = op.operation(a.db)
			}
			op.result <- err
		case <-a.shutdown:
			return
		}
	}
}

func (a *Archive) executeWrite(operation func(*sql.DB) error) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return fmt.Errorf("archive is closed")
	}
	a.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case a.writeCh <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(10 * time.Second):
		return fmt.Errorf("archive write timeout")
	case <-a.shutdown:
		return fmt.Errorf("archive is shutting down")
	}
}

// RecordPoll appends one completed-poll record.
func (a *Archive) RecordPoll(ctx context.Context, record *types.PollRecord) error {
	options, err := json.Marshal(record.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	counts, err := json.Marshal(record.Counts)
	if err != nil {
		return fmt.Errorf("failed to encode counts: %w", err)
	}

	return a.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO poll_history (session_id, question, options, duration_seconds, started_at, closed_at, counts)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.SessionID, record.Question, string(options), record.Duration,
			record.StartedAt, record.ClosedAt, string(counts))
		return err
	})
}

// SessionHistory returns a session's archived polls in close order.
func (a *Archive) SessionHistory(ctx context.Context, sessionID string) ([]*types.PollRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT session_id, question, options, duration_seconds, started_at, closed_at, counts
		FROM poll_history WHERE session_id = ? ORDER BY closed_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll history: %w", err)
	}
	defer rows.Close()

	var records []*types.PollRecord
	for rows.Next() {
		var record types.PollRecord
		var options, counts string
		if err := rows.Scan(&record.SessionID, &record.Question, &options, &record.Duration,
			&record.StartedAt, &record.ClosedAt, &counts); err != nil {
			return nil, fmt.Errorf("failed to scan poll record: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &record.Options); err != nil {
			return nil, fmt.Errorf("failed to decode options: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &record.Counts); err != nil {
			return nil, fmt.Errorf("failed to decode counts: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// Close drains the writer and closes the database.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.shutdown)
	a.wg.Wait()
	return a.db.Close()
}
