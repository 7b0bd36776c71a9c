package mbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCountCountsSeparators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt.test.mbox")
	body := "From alice@example.net Mon Jan  1 00:00:00 2024\r\nSubject: hi\r\n\r\nbody\r\n" +
		"From bob@example.net Mon Jan  1 00:01:00 2024\r\nSubject: again\r\n\r\nbody2\r\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	summary, err := Count(path)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if summary.Messages != 2 {
		t.Fatalf("messages = %d, want 2", summary.Messages)
	}
	if summary.Bytes != int64(len(body)) {
		t.Fatalf("bytes = %d, want %d", summary.Bytes, len(body))
	}
}

func TestCountMissingFileIsZeroNotError(t *testing.T) {
	summary, err := Count(filepath.Join(t.TempDir(), "does-not-exist.mbox"))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if summary.Messages != 0 {
		t.Fatalf("messages = %d, want 0", summary.Messages)
	}
}

func TestAuditNeverMarksOrFeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt.test.mbox")
	if err := os.WriteFile(path, []byte("From a@b Mon Jan 1 00:00:00 2024\r\n\r\nhi\r\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := Audit("alt.test", path); err != nil {
		t.Fatalf("Audit: %v", err)
	}
}
