// Package worker implements the long-lived consumer that performs
// destination writes: one source connection, one destination connection,
// consuming fetch requests and emitting outcome records (spec.md §4.3).
package worker

import (
	"errors"
	"log"
	"strings"

	"github.com/go-while/nntp-relay/internal/charset"
	"github.com/go-while/nntp-relay/internal/nntp"
	"github.com/go-while/nntp-relay/internal/relaymodel"
	"github.com/go-while/nntp-relay/internal/utils"
)

// ApprovedHeaders is the default POST-mode header whitelist (spec.md §1
// non-goals: headers are only ever whitelisted, never rewritten).
var ApprovedHeaders = map[string]bool{
	"from":       true,
	"newsgroups": true,
	"subject":    true,
	"message-id": true,
	"references": true,
	"date":       true,
}

// SalvageWriter persists a per-article repair record when copyArticle hits
// a non-fatal source ARTICLE failure (other than 423) in reader, reader1,
// ihave or ihave2 mode (spec.md §6 "bad.<group>").
type SalvageWriter func(group string, articleNo int64, messageID string)

// copyArticle dispatches on mode exactly per spec.md §4.3.1. It returns the
// outcome tag to report and, when the connection must be abandoned, a
// non-nil error wrapping nntp.ErrBroken.
func copyArticle(mode relaymodel.Mode, src, dest *nntp.RelayConn, group string, articleNo int64, messageID string, salvage SalvageWriter) (relaymodel.OutcomeTag, error) {
	switch mode {
	case relaymodel.ModeReader, relaymodel.ModeReader1:
		return copyReaderMode(src, group, articleNo, messageID, salvage)
	case relaymodel.ModeIhave:
		return copyIhaveMode(src, dest, group, articleNo, messageID, salvage)
	case relaymodel.ModeIhave2:
		return copyIhave2Mode(src, dest, group, articleNo, messageID, salvage)
	case relaymodel.ModePost:
		return copyPostMode(src, dest, articleNo, messageID)
	default:
		return relaymodel.OutcomeError, nil
	}
}

func copyReaderMode(src *nntp.RelayConn, group string, articleNo int64, messageID string, salvage SalvageWriter) (relaymodel.OutcomeTag, error) {
	_, err := src.Article(articleNo, "")
	if err == nil {
		return relaymodel.OutcomeSuccess, nil
	}
	if errors.Is(err, nntp.ErrNoSuchArticleNumber) {
		return relaymodel.OutcomeNotfound, nil
	}
	if isFatal(err) {
		return relaymodel.OutcomeError, nntp.ErrBroken
	}
	if salvage != nil {
		salvage(group, articleNo, messageID)
	}
	return relaymodel.OutcomeError, nil
}

func copyIhaveMode(src, dest *nntp.RelayConn, group string, articleNo int64, messageID string, salvage SalvageWriter) (relaymodel.OutcomeTag, error) {
	res, err := dest.IHave(messageID)
	if err != nil {
		if isFatal(err) {
			return relaymodel.OutcomeError, nntp.ErrBroken
		}
		return relaymodel.OutcomeError, nil
	}

	switch res {
	case nntp.IHaveDuplicate:
		return relaymodel.OutcomeDup, nil
	case nntp.IHaveRetryLater:
		return relaymodel.OutcomeRetry, nil
	case nntp.IHaveRejected:
		return relaymodel.OutcomeError, nil
	case nntp.IHaveWanted:
		lines, err := src.Article(articleNo, "")
		if err != nil {
			_ = dest.CancelIHave()
			if errors.Is(err, nntp.ErrNoSuchArticleNumber) {
				return relaymodel.OutcomeNotfound, nil
			}
			if isFatal(err) {
				return relaymodel.OutcomeError, nntp.ErrBroken
			}
			if salvage != nil {
				salvage(group, articleNo, messageID)
			}
			return relaymodel.OutcomeError, nil
		}
		return takeThisOutcome(dest, messageID, lines)
	default:
		return relaymodel.OutcomeError, nil
	}
}

func copyIhave2Mode(src, dest *nntp.RelayConn, group string, articleNo int64, messageID string, salvage SalvageWriter) (relaymodel.OutcomeTag, error) {
	lines, err := src.Article(articleNo, "")
	if err != nil {
		if errors.Is(err, nntp.ErrNoSuchArticleNumber) {
			return relaymodel.OutcomeNotfound, nil
		}
		if isFatal(err) {
			return relaymodel.OutcomeError, nntp.ErrBroken
		}
		if salvage != nil {
			salvage(group, articleNo, messageID)
		}
		return relaymodel.OutcomeError, nil
	}

	res, err := dest.IHave(messageID)
	if err != nil {
		if isFatal(err) {
			return relaymodel.OutcomeError, nntp.ErrBroken
		}
		return relaymodel.OutcomeError, nil
	}
	switch res {
	case nntp.IHaveDuplicate:
		return relaymodel.OutcomeDup, nil
	case nntp.IHaveRetryLater:
		return relaymodel.OutcomeRetry, nil
	case nntp.IHaveRejected:
		return relaymodel.OutcomeError, nil
	case nntp.IHaveWanted:
		return takeThisOutcome(dest, messageID, lines)
	default:
		return relaymodel.OutcomeError, nil
	}
}

func takeThisOutcome(dest *nntp.RelayConn, messageID string, lines []string) (relaymodel.OutcomeTag, error) {
	res, err := dest.TakeThis(messageID, lines)
	if err != nil {
		if isFatal(err) {
			return relaymodel.OutcomeError, nntp.ErrBroken
		}
		return relaymodel.OutcomeError, nil
	}
	switch res {
	case nntp.TakeThisAccepted:
		return relaymodel.OutcomeSuccess, nil
	case nntp.TakeThisRetryLater:
		return relaymodel.OutcomeRetry, nil
	case nntp.TakeThisRejected:
		return relaymodel.OutcomeUnwanted, nil
	default:
		return relaymodel.OutcomeError, nil
	}
}

func copyPostMode(src, dest *nntp.RelayConn, articleNo int64, messageID string) (relaymodel.OutcomeTag, error) {
	lines, err := src.Article(articleNo, "")
	if err != nil {
		if errors.Is(err, nntp.ErrNoSuchArticleNumber) {
			return relaymodel.OutcomeNotfound, nil
		}
		if isFatal(err) {
			return relaymodel.OutcomeError, nntp.ErrBroken
		}
		return relaymodel.OutcomeError, nil
	}

	split := len(lines)
	for i, l := range lines {
		if l == "" {
			split = i
			break
		}
	}
	headers, body := lines[:split], lines[minInt(split+1, len(lines)):]
	logReferenceDepth(headers, messageID)

	if err := dest.Post(headers, body, ApprovedHeaders); err != nil {
		if isFatal(err) {
			return relaymodel.OutcomeError, nntp.ErrBroken
		}
		log.Printf("[WORKER] POST %s rejected: %q: %v", messageID, subjectOf(headers), err)
		return relaymodel.OutcomeError, nil
	}
	return relaymodel.OutcomeSuccess, nil
}

// subjectOf extracts and charset-decodes the Subject header for diagnostic
// logging only; it never influences what gets forwarded to the destination.
func subjectOf(headerLines []string) string {
	for _, h := range headerLines {
		const prefix = "subject:"
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return charset.ToUTF8(strings.TrimSpace(h[len(prefix):]))
		}
	}
	return ""
}

// logReferenceDepth logs a deeply-threaded article's reference chain length;
// POST mode is the only mode that re-derives headers from raw text, so it's
// the only place a malformed References header would otherwise go unnoticed.
func logReferenceDepth(headerLines []string, messageID string) {
	for _, h := range headerLines {
		const prefix = "references:"
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			refs := utils.ParseReferenceChain(h[len(prefix):])
			if len(refs) > 50 {
				log.Printf("[WORKER] %s: unusually deep reference chain (%d)", messageID, len(refs))
			}
			return
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// isFatal distinguishes a protocol-level rejection (worth reporting and
// moving on) from a transport failure the worker cannot recover from
// without reconnecting. Anything that isn't one of our known sentinel or
// formatted protocol errors is treated as a transport failure.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, nntp.ErrArticleNotFound) || errors.Is(err, nntp.ErrArticleRemoved) || errors.Is(err, nntp.ErrNoSuchArticleNumber) {
		return false
	}
	msg := strings.ToLower(err.Error())
	// protocol-level "unexpected code" errors are formatted inline by the
	// nntp package rather than wrapped in a sentinel; they are not fatal.
	if strings.Contains(msg, "unexpected") || strings.Contains(msg, "refused") || strings.Contains(msg, "rejected") {
		return false
	}
	return true
}
