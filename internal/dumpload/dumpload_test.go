package dumpload

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/go-while/nntp-relay/internal/progressdb"
	"github.com/go-while/nntp-relay/internal/relaymodel"
)

func openTestDB(t *testing.T) *progressdb.DB {
	t.Helper()
	db, err := progressdb.Open(filepath.Join(t.TempDir(), "progress.db"), true, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDumpThenLoadRoundTrips(t *testing.T) {
	src := openTestDB(t)
	if err := src.MarkArticle("<a>", "alt.test", relaymodel.StatusSuccess); err != nil {
		t.Fatalf("MarkArticle: %v", err)
	}
	if err := src.MarkArticle("<b>", "alt.test", relaymodel.StatusDup); err != nil {
		t.Fatalf("MarkArticle: %v", err)
	}
	if err := src.SetLastID("alt.test", 2); err != nil {
		t.Fatalf("SetLastID: %v", err)
	}

	var buf bytes.Buffer
	if err := Dump(src, &buf, Options{}); err != nil {
		t.Fatalf("Dump: %v", err)
	}

	dst := openTestDB(t)
	articles, groups, err := Load(dst, &buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if articles != 2 || groups != 1 {
		t.Fatalf("loaded articles=%d groups=%d, want 2/1", articles, groups)
	}

	has, _ := dst.HasArticle("<a>")
	if !has {
		t.Fatalf("expected <a> present after load")
	}
	lastID, _ := dst.GetLastID("alt.test")
	if lastID != 2 {
		t.Fatalf("lastID = %d, want 2", lastID)
	}
}

func TestDumpFiltersByOptions(t *testing.T) {
	src := openTestDB(t)
	if err := src.MarkArticle("<a>", "alt.test", relaymodel.StatusSuccess); err != nil {
		t.Fatalf("MarkArticle: %v", err)
	}
	if err := src.SetLastID("alt.test", 1); err != nil {
		t.Fatalf("SetLastID: %v", err)
	}

	var buf bytes.Buffer
	if err := Dump(src, &buf, Options{Groups: true}); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte(articlePrefix)) {
		t.Fatalf("expected no article lines with Groups-only Options, got: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(groupPrefix)) {
		t.Fatalf("expected group lines present")
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	dst := openTestDB(t)
	_, _, err := Load(dst, bytes.NewBufferString("not-a-valid-line-no-tab\n"))
	if err == nil {
		t.Fatalf("expected error for line with no tab separator")
	}
}
