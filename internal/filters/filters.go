// Package filters loads the regex ignore/global-ignore/force lists and the
// plain-string done-list consulted by the Server Orchestrator, and applies
// the precedence algorithm that decides whether a catalogue group is
// processed this run.
package filters

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
)

// Lists holds the compiled regex lists and the done set.
type Lists struct {
	Ignore       []*regexp.Regexp
	GlobalIgnore []*regexp.Regexp
	Force        []*regexp.Regexp
	Done         map[string]struct{}
}

// LoadRegexList reads path, one regex pattern per line. A blank line is a
// hard load error. An empty path yields a nil (always-non-matching) list.
func LoadRegexList(path string) ([]*regexp.Regexp, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filters: open %s: %w", path, err)
	}
	defer f.Close()

	var out []*regexp.Regexp
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			return nil, fmt.Errorf("filters: %s:%d: blank line not allowed", path, line)
		}
		re, err := regexp.Compile(text)
		if err != nil {
			return nil, fmt.Errorf("filters: %s:%d: bad pattern %q: %w", path, line, text, err)
		}
		out = append(out, re)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("filters: read %s: %w", path, err)
	}
	return out, nil
}

// LoadDoneList reads path, one finished group name per line.
func LoadDoneList(path string) (map[string]struct{}, error) {
	done := make(map[string]struct{})
	if path == "" {
		return done, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return done, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filters: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			return nil, fmt.Errorf("filters: %s:%d: blank line not allowed", path, line)
		}
		done[text] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("filters: read %s: %w", path, err)
	}
	return done, nil
}

// Load reads all four lists per the misc config options in spec.md §6.
func Load(filterList, globalFilterList, forcedList, doneList string) (*Lists, error) {
	ignore, err := LoadRegexList(filterList)
	if err != nil {
		return nil, err
	}
	globalIgnore, err := LoadRegexList(globalFilterList)
	if err != nil {
		return nil, err
	}
	force, err := LoadRegexList(forcedList)
	if err != nil {
		return nil, err
	}
	done, err := LoadDoneList(doneList)
	if err != nil {
		return nil, err
	}
	return &Lists{Ignore: ignore, GlobalIgnore: globalIgnore, Force: force, Done: done}, nil
}

func anyMatch(patterns []*regexp.Regexp, group string) bool {
	for _, re := range patterns {
		if re.MatchString(group) {
			return true
		}
	}
	return false
}

// Accept applies the precedence chain from spec.md §4.5 step 6: force is a
// required predicate (if configured, only matching groups pass), then done
// excludes already-finished groups, then global-ignore unconditionally
// excludes, then ignore excludes only when useIgnore is set.
func (l *Lists) Accept(group string, useIgnore bool) bool {
	if len(l.Force) > 0 && !anyMatch(l.Force, group) {
		return false
	}
	if _, finished := l.Done[group]; finished {
		return false
	}
	if anyMatch(l.GlobalIgnore, group) {
		return false
	}
	if useIgnore && anyMatch(l.Ignore, group) {
		return false
	}
	return true
}

// MarkDone records group as finished, both in-memory and appended to the
// done-list file so a re-run skips it.
func (l *Lists) MarkDone(group, doneListPath string) error {
	if l.Done == nil {
		l.Done = make(map[string]struct{})
	}
	l.Done[group] = struct{}{}
	if doneListPath == "" {
		return nil
	}
	f, err := os.OpenFile(doneListPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("filters: append %s: %w", doneListPath, err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, group)
	return err
}
