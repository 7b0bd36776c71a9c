package orchestrator

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-while/nntp-relay/internal/worker"
)

// newSalvageWriter builds the per-article repair-record writer
// (spec.md §6 "bad.<group>"): one line `group=G num=N messid=M
// pgrp=P/.artN` appended per salvage record, one file per group under dir.
// An empty dir disables salvage entirely (requests are simply dropped).
func newSalvageWriter(dir string) worker.SalvageWriter {
	if dir == "" {
		return nil
	}
	return func(group string, articleNo int64, messageID string) {
		path := filepath.Join(dir, fmt.Sprintf("bad.%s", group))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[SALVAGE] cannot open %s: %v", path, err)
			return
		}
		defer f.Close()
		fmt.Fprintf(f, "group=%s num=%d messid=%s pgrp=%s/.art%d\n", group, articleNo, messageID, group, articleNo)
	}
}
