package progressdb

import (
	"path/filepath"
	"testing"

	"github.com/go-while/nntp-relay/internal/relaymodel"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "progress.db"), true, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetGroupRangeUnlimited(t *testing.T) {
	db := openTestDB(t)

	rng, err := db.GetGroupRange("alt.test", 1, 10, 0)
	if err != nil {
		t.Fatalf("GetGroupRange: %v", err)
	}
	if rng.First < 1 || rng.First > 11 {
		t.Fatalf("myfirst out of bounds: %+v", rng)
	}
	if rng.Last != 10 {
		t.Fatalf("mylast = %d, want 10", rng.Last)
	}
	want := rng.Last - rng.First + 1
	if want < 0 {
		want = 0
	}
	if rng.Count != want {
		t.Fatalf("mycount = %d, want %d", rng.Count, want)
	}
}

func TestGetGroupRangeMaxArticlesCap(t *testing.T) {
	db := openTestDB(t)

	// getLastId == 0, source reports (first=1,last=1000), maxArticles=100.
	rng, err := db.GetGroupRange("alt.big", 1, 1000, 100)
	if err != nil {
		t.Fatalf("GetGroupRange: %v", err)
	}
	if rng.Count != 100 {
		t.Fatalf("mycount = %d, want 100", rng.Count)
	}
	if rng.First != 901 {
		t.Fatalf("myfirst = %d, want 901", rng.First)
	}
	if rng.Last != 1000 {
		t.Fatalf("mylast = %d, want 1000", rng.Last)
	}
}

func TestGetGroupRangeCursorReset(t *testing.T) {
	db := openTestDB(t)

	if err := db.SetLastID("alt.stale", 10); err != nil {
		t.Fatalf("SetLastID: %v", err)
	}
	if err := db.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rng, err := db.GetGroupRange("alt.stale", 20, 30, 0)
	if err != nil {
		t.Fatalf("GetGroupRange: %v", err)
	}
	if rng.First != 20 || rng.Last != 30 || rng.Count != 11 {
		t.Fatalf("got %+v, want (20,30,11)", rng)
	}
}

func TestGetGroupRangeEmptyWhenBackwards(t *testing.T) {
	db := openTestDB(t)

	rng, err := db.GetGroupRange("alt.empty", 100, 5, 0)
	if err != nil {
		t.Fatalf("GetGroupRange: %v", err)
	}
	if rng.Count != 0 {
		t.Fatalf("mycount = %d, want 0", rng.Count)
	}
}

func TestMarkArticleThenHasArticle(t *testing.T) {
	db := openTestDB(t)

	const id = "<a@test>"
	has, err := db.HasArticle(id)
	if err != nil {
		t.Fatalf("HasArticle: %v", err)
	}
	if has {
		t.Fatalf("expected article absent before mark")
	}

	for _, status := range []relaymodel.Status{
		relaymodel.StatusSuccess,
		relaymodel.StatusDup,
		relaymodel.StatusUnwant,
		relaymodel.StatusNotfound,
		relaymodel.StatusError,
	} {
		if err := db.MarkArticle(id, "alt.test", status); err != nil {
			t.Fatalf("MarkArticle(%s): %v", status, err)
		}
		if err := db.Flush(); err != nil {
			t.Fatalf("Flush: %v", err)
		}
		has, err := db.HasArticle(id)
		if err != nil {
			t.Fatalf("HasArticle: %v", err)
		}
		if !has {
			t.Fatalf("expected article present after mark(%s)", status)
		}
	}
}

func TestSetLastIDMonotoneWithinRun(t *testing.T) {
	db := openTestDB(t)

	before, err := db.GetLastID("alt.test")
	if err != nil {
		t.Fatalf("GetLastID: %v", err)
	}
	if before != 0 {
		t.Fatalf("expected 0 before any writes, got %d", before)
	}

	if err := db.SetLastID("alt.test", 5); err != nil {
		t.Fatalf("SetLastID: %v", err)
	}
	if err := db.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	after, err := db.GetLastID("alt.test")
	if err != nil {
		t.Fatalf("GetLastID: %v", err)
	}
	if after < before {
		t.Fatalf("last_id went backwards: %d -> %d", before, after)
	}
	if after != 5 {
		t.Fatalf("last_id = %d, want 5", after)
	}
}

func TestMarkArticleDisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "progress.db"), false, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.MarkArticle("<x@test>", "alt.test", relaymodel.StatusSuccess); err != nil {
		t.Fatalf("MarkArticle: %v", err)
	}
	has, err := db.HasArticle("<x@test>")
	if err != nil {
		t.Fatalf("HasArticle: %v", err)
	}
	if has {
		t.Fatalf("expected HasArticle to report false when marking disabled")
	}
}
