// Package progressdb is the Progress Store: a durable key-value layer over
// an embedded SQLite database recording which Message-IDs have been seen
// and the per-group high-water mark.
package progressdb

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// BatchSize is the number of writes batched inside one transaction before
// an implicit commit, matching the reference behavior (N=10000).
const BatchSize = 10000

// DB is the Progress Store handle. Safe for concurrent use; all access is
// serialized behind a single mutex per spec.md §5 ("single logical writer").
type DB struct {
	mu          sync.Mutex
	sqldb       *sql.DB
	tx          *sql.Tx
	pending     int
	markEnabled bool
	cache       *lru.Cache[string, struct{}]
}

// Open creates or opens the Progress Store at path. shouldMarkArticles
// mirrors misc.shouldMarkArticles: when false, hasArticle always reports
// absent and markArticle is a no-op, letting an operator force a clean
// rebuild without touching persistent state. cacheSize sizes the in-process
// LRU front-cache for hasArticle (0 disables it).
func Open(path string, shouldMarkArticles bool, cacheSize int) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("progressdb: create data dir: %w", err)
		}
	}
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("progressdb: open %s: %w", path, err)
	}
	db := &DB{sqldb: sqldb, markEnabled: shouldMarkArticles}
	if cacheSize > 0 {
		c, err := lru.New[string, struct{}](cacheSize)
		if err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("progressdb: init cache: %w", err)
		}
		db.cache = c
	}
	if err := db.initSchema(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("progressdb: init schema: %w", err)
	}
	return db, nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		message_id TEXT PRIMARY KEY,
		group_name TEXT NOT NULL,
		status TEXT NOT NULL,
		ts DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS groups (
		group_name TEXT PRIMARY KEY,
		last_id INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := d.sqldb.Exec(schema)
	return err
}

// execer returns the current transaction if a batch is open, else the raw
// *sql.DB. Callers must hold d.mu.
func (d *DB) execer() interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
} {
	if d.tx != nil {
		return d.tx
	}
	return d.sqldb
}

// beginIfNeeded opens a transaction for batched writes. Callers must hold d.mu.
func (d *DB) beginIfNeeded() error {
	if d.tx != nil {
		return nil
	}
	tx, err := d.sqldb.Begin()
	if err != nil {
		return err
	}
	d.tx = tx
	return nil
}

// noteWrite increments the pending-write counter and commits the batch once
// BatchSize writes have accumulated. Callers must hold d.mu.
func (d *DB) noteWrite() error {
	d.pending++
	if d.pending >= BatchSize {
		return d.commitLocked()
	}
	return nil
}

func (d *DB) commitLocked() error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Commit()
	d.tx = nil
	d.pending = 0
	return err
}

// HasArticle returns true iff an article record exists for messageID. When
// article-marking is disabled, it always reports false.
func (d *DB) HasArticle(messageID string) (bool, error) {
	if !d.markEnabled {
		return false, nil
	}
	if d.cache != nil {
		if _, ok := d.cache.Get(messageID); ok {
			return true, nil
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var found int
	err := withRetry("hasArticle", func() error {
		row := d.execer().QueryRow(`SELECT 1 FROM articles WHERE message_id = ?`, messageID)
		scanErr := row.Scan(&found)
		if scanErr == sql.ErrNoRows {
			found = 0
			return nil
		}
		return scanErr
	})
	if err != nil {
		return false, fmt.Errorf("progressdb: hasArticle: %w", err)
	}
	if found == 1 && d.cache != nil {
		d.cache.Add(messageID, struct{}{})
	}
	return found == 1, nil
}

// MarkArticle upserts an article record with the current wall-clock
// timestamp. A no-op when article-marking is disabled.
func (d *DB) MarkArticle(messageID, group string, status relaymodel.Status) error {
	if !d.markEnabled {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	err := withRetry("markArticle", func() error {
		if err := d.beginIfNeeded(); err != nil {
			return err
		}
		_, err := d.tx.Exec(`
			INSERT INTO articles (message_id, group_name, status, ts)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(message_id) DO UPDATE SET
				group_name = excluded.group_name,
				status = excluded.status,
				ts = excluded.ts
		`, messageID, group, string(status), time.Now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("progressdb: markArticle(%s): %w", messageID, err)
	}
	if d.cache != nil {
		d.cache.Add(messageID, struct{}{})
	}
	return d.noteWrite()
}

// GetLastID returns the stored last_id for group, or 0 when absent.
func (d *DB) GetLastID(group string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var lastID int64
	err := withRetry("getLastId", func() error {
		row := d.execer().QueryRow(`SELECT last_id FROM groups WHERE group_name = ?`, group)
		scanErr := row.Scan(&lastID)
		if scanErr == sql.ErrNoRows {
			lastID = 0
			return nil
		}
		return scanErr
	})
	if err != nil {
		return 0, fmt.Errorf("progressdb: getLastId(%s): %w", group, err)
	}
	return lastID, nil
}

// SetLastID upserts the group's last_id, batched identically to MarkArticle.
func (d *DB) SetLastID(group string, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := withRetry("setLastId", func() error {
		if err := d.beginIfNeeded(); err != nil {
			return err
		}
		_, err := d.tx.Exec(`
			INSERT INTO groups (group_name, last_id) VALUES (?, ?)
			ON CONFLICT(group_name) DO UPDATE SET last_id = excluded.last_id
		`, group, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("progressdb: setLastId(%s): %w", group, err)
	}
	return d.noteWrite()
}

// GetGroupRange computes the range to process for group, per spec.md §4.1.
func (d *DB) GetGroupRange(group string, first, last, maxArticles int64) (relaymodel.GroupRange, error) {
	lastID, err := d.GetLastID(group)
	if err != nil {
		return relaymodel.GroupRange{}, err
	}
	myfirst := lastID + 1
	if myfirst < first || myfirst > last+1 {
		myfirst = first
	}
	mycount := last - myfirst + 1
	if mycount <= 0 {
		return relaymodel.GroupRange{First: myfirst, Last: last, Count: 0}, nil
	}
	if maxArticles > 0 && mycount > maxArticles {
		myfirst = myfirst + (mycount - maxArticles)
		mycount = maxArticles
	}
	return relaymodel.GroupRange{First: myfirst, Last: last, Count: mycount}, nil
}

// Close commits any pending batch and closes the underlying database. Safe
// to call once, including from the processing-timeout cancellation path.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.commitLocked(); err != nil {
		log.Printf("[PROGRESSDB] commit on close failed: %v", err)
	}
	return d.sqldb.Close()
}

// Flush commits the current batch without closing the database. Useful on
// graceful shutdown before the final Close.
func (d *DB) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commitLocked()
}
