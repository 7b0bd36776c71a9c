package filters

import (
	"os"
	"path/filepath"
	"testing"
)

func writeList(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var content string
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadRegexListRejectsBlankLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(path, []byte("alt.test\n\nalt.other\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRegexList(path); err == nil {
		t.Fatalf("expected error for blank line")
	}
}

func TestAcceptPrecedence(t *testing.T) {
	dir := t.TempDir()
	ignore := writeList(t, dir, "ignore.txt", `^alt\.binaries\..*`)
	global := writeList(t, dir, "global.txt", `^control\..*`)
	force := writeList(t, dir, "force.txt", `^alt\..*`)

	lists, err := Load(ignore, global, force, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cases := []struct {
		group     string
		useIgnore bool
		want      bool
	}{
		{"alt.test", true, true},
		{"comp.lang.go", true, false}, // fails force predicate
		{"alt.binaries.foo", true, false}, // ignored
		{"alt.binaries.foo", false, true}, // ignore not applied
		{"control.cancel", true, false},   // fails force predicate (also global-ignored)
	}
	for _, c := range cases {
		got := lists.Accept(c.group, c.useIgnore)
		if got != c.want {
			t.Errorf("Accept(%q, useIgnore=%v) = %v, want %v", c.group, c.useIgnore, got, c.want)
		}
	}
}

func TestAcceptDoneListExcludes(t *testing.T) {
	lists := &Lists{Done: map[string]struct{}{"alt.test": {}}}
	if lists.Accept("alt.test", false) {
		t.Fatalf("expected done group to be excluded")
	}
	if !lists.Accept("alt.other", false) {
		t.Fatalf("expected non-done group to be accepted")
	}
}

func TestMarkDonePersists(t *testing.T) {
	dir := t.TempDir()
	donePath := filepath.Join(dir, "done.txt")
	lists := &Lists{Done: map[string]struct{}{}}

	if err := lists.MarkDone("alt.test", donePath); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	data, err := os.ReadFile(donePath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "alt.test\n" {
		t.Fatalf("done file content = %q", data)
	}
	if lists.Accept("alt.test", false) {
		t.Fatalf("expected alt.test excluded after MarkDone")
	}
}
