// Package dumpload implements the simple dump/load utilities for the
// Progress Store: tab-separated "key\tvalue" lines, one per record,
// preserving the key space (`a/<message-id>` for articles, `l/<group>` for
// groups) of the original source's anydbm-backed db_dump.py/db_load.py so
// existing tooling built around that format still works.
package dumpload

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-while/nntp-relay/internal/progressdb"
)

const (
	articlePrefix = "a/"
	groupPrefix   = "l/"
)

// Options selects which record kinds Dump writes, mirroring db_dump.py's
// `-a`/`-g` flags. Both false means "dump everything" (same as no flags).
type Options struct {
	Articles bool
	Groups   bool
}

func (o Options) wantArticles() bool { return o.Articles || (!o.Articles && !o.Groups) }
func (o Options) wantGroups() bool   { return o.Groups || (!o.Articles && !o.Groups) }

// Dump writes every selected record to w as "key\tvalue\n" lines.
func Dump(db *progressdb.DB, w io.Writer, opts Options) error {
	bw := bufio.NewWriter(w)

	if opts.wantArticles() {
		err := db.WalkArticles(func(rec progressdb.ArticleRecord) error {
			_, err := fmt.Fprintf(bw, "%s%s\t%s|%s\n", articlePrefix, rec.MessageID, rec.Group, rec.Status)
			return err
		})
		if err != nil {
			return fmt.Errorf("dumpload: dump articles: %w", err)
		}
	}

	if opts.wantGroups() {
		err := db.WalkGroups(func(rec progressdb.GroupRecord) error {
			_, err := fmt.Fprintf(bw, "%s%s\t%d\n", groupPrefix, rec.Group, rec.LastID)
			return err
		})
		if err != nil {
			return fmt.Errorf("dumpload: dump groups: %w", err)
		}
	}

	return bw.Flush()
}

// splitValue parses an article dump value of the form "group|status".
func splitValue(value string) (group, status string, ok bool) {
	idx := strings.LastIndex(value, "|")
	if idx < 0 {
		return "", "", false
	}
	return value[:idx], value[idx+1:], true
}

// parseLine splits one dump line into its key and value, rejecting blank
// lines and lines with no tab separator the same way original_source's
// db_load.py implicitly required (it always expects a\tb).
func parseLine(line string) (key, value string, err error) {
	line = strings.TrimRight(line, "\r\n")
	idx := strings.IndexByte(line, '\t')
	if idx < 0 {
		return "", "", fmt.Errorf("dumpload: malformed line (no tab): %q", line)
	}
	return line[:idx], line[idx+1:], nil
}

// parseLastID parses a group record's value as a decimal last_id.
func parseLastID(value string) (int64, error) {
	return strconv.ParseInt(value, 10, 64)
}
