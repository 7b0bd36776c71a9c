package progressdb

import (
	"fmt"
	"time"

	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// ArticleRecord is one row as seen by the dump/load companion utilities.
type ArticleRecord struct {
	MessageID string
	Group     string
	Status    relaymodel.Status
}

// GroupRecord is one row as seen by the dump/load companion utilities.
type GroupRecord struct {
	Group  string
	LastID int64
}

// WalkArticles calls fn once per article record, ordered by message_id. Any
// pending batch is committed first so the walk sees consistent state.
func (d *DB) WalkArticles(fn func(ArticleRecord) error) error {
	d.mu.Lock()
	if err := d.commitLocked(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("progressdb: walkArticles: flush: %w", err)
	}
	rows, err := d.sqldb.Query(`SELECT message_id, group_name, status FROM articles ORDER BY message_id`)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("progressdb: walkArticles: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec ArticleRecord
		var status string
		if err := rows.Scan(&rec.MessageID, &rec.Group, &status); err != nil {
			return fmt.Errorf("progressdb: walkArticles: scan: %w", err)
		}
		rec.Status = relaymodel.Status(status)
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// WalkGroups calls fn once per group record, ordered by group_name.
func (d *DB) WalkGroups(fn func(GroupRecord) error) error {
	d.mu.Lock()
	if err := d.commitLocked(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("progressdb: walkGroups: flush: %w", err)
	}
	rows, err := d.sqldb.Query(`SELECT group_name, last_id FROM groups ORDER BY group_name`)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("progressdb: walkGroups: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec GroupRecord
		if err := rows.Scan(&rec.Group, &rec.LastID); err != nil {
			return fmt.Errorf("progressdb: walkGroups: scan: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ImportArticleRaw upserts an article record from a dump line's raw value
// (status only; original dump format carries no timestamp, so "now" is
// used), bypassing markEnabled — load always writes regardless of the
// running configuration's shouldMarkArticles setting.
func (d *DB) ImportArticleRaw(messageID, group string, status relaymodel.Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return withRetry("importArticleRaw", func() error {
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
}

// ImportGroupRaw upserts a group's last_id from a dump line's raw value.
func (d *DB) ImportGroupRaw(group string, lastID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return withRetry("importGroupRaw", func() error {
		if err := d.beginIfNeeded(); err != nil {
			return err
		}
		_, err := d.tx.Exec(`
			INSERT INTO groups (group_name, last_id) VALUES (?, ?)
			ON CONFLICT(group_name) DO UPDATE SET last_id = excluded.last_id
		`, group, lastID)
		return err
	})
}
