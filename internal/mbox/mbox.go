// Package mbox implements the mbox-ingest side mode: a read/count-only audit
// pass over a local mbox file, named by a group's "folder path" in the
// config. It deliberately does not feed parsed messages anywhere — the
// original source's mbox branch read and counted messages without ever
// defining what "done" meant for them, and spec.md §9 forbids guessing that
// intent (Open Question 2, decided: non-feeding audit mode only).
package mbox

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Summary is what one audit pass over an mbox file found.
type Summary struct {
	Path     string
	Messages int
	Bytes    int64
}

// Count scans path for "From " message separators (the classic mbox
// delimiter) and returns how many messages and bytes it holds. It never
// returns an error for a missing file — an ungenerated mbox is zero messages,
// not a fault.
func Count(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{Path: path}, nil
		}
		return Summary{}, fmt.Errorf("mbox: open %s: %w", path, err)
	}
	defer f.Close()

	s := Summary{Path: path}
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := r.ReadString('\n')
		s.Bytes += int64(len(line))
		if strings.HasPrefix(line, "From ") {
			s.Messages++
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return s, fmt.Errorf("mbox: read %s: %w", path, err)
		}
	}
	return s, nil
}

// Audit runs Count and logs the result; it is the MboxHandler the Group
// Pipeline calls for groups configured in mbox mode (spec.md §4.4 step 1).
// No article is ever marked in the Progress Store or sent to a destination.
func Audit(group, path string) error {
	summary, err := Count(path)
	if err != nil {
		return err
	}
	log.Printf("[MBOX] %s: %s holds %d messages (%d bytes) — read-only audit, nothing fed", group, summary.Path, summary.Messages, summary.Bytes)
	return nil
}
