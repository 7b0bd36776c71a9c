package dumpload

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-while/nntp-relay/internal/progressdb"
	"github.com/go-while/nntp-relay/internal/relaymodel"
)

// Load reads "key\tvalue" lines from r and upserts them into db, dispatching
// on the key prefix exactly like db_load.py dispatches on anydbm key[0].
func Load(db *progressdb.DB, r io.Reader) (articles, groups int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, perr := parseLine(line)
		if perr != nil {
			return articles, groups, fmt.Errorf("dumpload: line %d: %w", lineNo, perr)
		}

		switch {
		case strings.HasPrefix(key, articlePrefix):
			messageID := strings.TrimPrefix(key, articlePrefix)
			group, status, ok := splitValue(value)
			if !ok {
				return articles, groups, fmt.Errorf("dumpload: line %d: malformed article value %q", lineNo, value)
			}
			if err := db.ImportArticleRaw(messageID, group, relaymodel.Status(status)); err != nil {
				return articles, groups, fmt.Errorf("dumpload: line %d: %w", lineNo, err)
			}
			articles++

		case strings.HasPrefix(key, groupPrefix):
			group := strings.TrimPrefix(key, groupPrefix)
			lastID, perr := parseLastID(value)
			if perr != nil {
				return articles, groups, fmt.Errorf("dumpload: line %d: malformed group value %q: %w", lineNo, value, perr)
			}
			if err := db.ImportGroupRaw(group, lastID); err != nil {
				return articles, groups, fmt.Errorf("dumpload: line %d: %w", lineNo, err)
			}
			groups++

		default:
			return articles, groups, fmt.Errorf("dumpload: line %d: unrecognized key prefix %q", lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return articles, groups, fmt.Errorf("dumpload: scan: %w", err)
	}
	return articles, groups, db.Flush()
}
