package nntp

// IHAVE / TAKETHIS / POST feeder-mode primitives. The teacher has no client
// analog for these (its nntp-cmd-posting.go is server-side, answering
// inbound POST); these are grounded instead on the original Python
// nntpsucka.py's NNTPClient.ihave/takeThis/post methods, reimplemented with
// explicit response-code branching instead of exception control flow, per
// spec.md §9 re-architecture guidance.

import (
	"fmt"
	"io"
	"strings"
)

// IHaveResult is the destination's disposition for an offered Message-ID.
type IHaveResult int

const (
	IHaveWanted IHaveResult = iota
	IHaveDuplicate
	IHaveRetryLater
	IHaveRejected
)

// TakeThisResult is the destination's disposition after a streamed body.
type TakeThisResult int

const (
	TakeThisAccepted TakeThisResult = iota
	TakeThisRejected
	TakeThisRetryLater
)

// IHave sends "IHAVE <message-id>" and maps the response per spec.md §4.2.
func (c *RelayConn) IHave(messageID string) (IHaveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.textConn.Cmd("IHAVE %s", messageID)
	if err != nil {
		return IHaveRejected, fmt.Errorf("nntp: send IHAVE %s: %w", messageID, err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, msg, err := c.textConn.ReadCodeLine(codeIhaveWanted)
	if err != nil && code == 0 {
		return IHaveRejected, fmt.Errorf("nntp: read IHAVE %s response: %w", messageID, err)
	}
	switch code {
	case codeIhaveWanted:
		return IHaveWanted, nil
	case codeIhaveDup:
		return IHaveDuplicate, nil
	case codeIhaveRetry:
		return IHaveRetryLater, nil
	case codeIhaveRejected:
		return IHaveRejected, nil
	default:
		_ = msg
		return IHaveRejected, nil
	}
}

// CancelIHave sends a bare terminator to cleanly abandon a body the
// destination is expecting, per spec.md §4.3.1 ihave-mode step 6.
func (c *RelayConn) CancelIHave() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	dw := c.textConn.DotWriter()
	if err := dw.Close(); err != nil {
		return fmt.Errorf("nntp: cancel IHAVE: %w", err)
	}
	_, _, err := c.textConn.ReadCodeLine(codeTakeAccepted)
	return err
}

// TakeThis streams bodyLines (already dot-unstuffed from the source) with
// dot-stuffing re-applied via textproto.Writer.DotWriter, then reads the
// destination's disposition. It is the body half of an IHAVE exchange that
// got 335, so no command line precedes the body.
func (c *RelayConn) TakeThis(messageID string, bodyLines []string) (TakeThisResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dw := c.textConn.DotWriter()
	for _, line := range bodyLines {
		if _, err := io.WriteString(dw, line+"\r\n"); err != nil {
			dw.Close()
			return TakeThisRejected, fmt.Errorf("nntp: stream TAKETHIS %s body: %w", messageID, err)
		}
	}
	if err := dw.Close(); err != nil {
		return TakeThisRejected, fmt.Errorf("nntp: close TAKETHIS %s body: %w", messageID, err)
	}

	code, msg, err := c.textConn.ReadCodeLine(codeTakeAccepted)
	if err != nil && code == 0 {
		return TakeThisRejected, fmt.Errorf("nntp: read TAKETHIS %s response: %w", messageID, err)
	}
	switch code {
	case codeTakeAccepted:
		return TakeThisAccepted, nil
	case codeIhaveRetry:
		return TakeThisRetryLater, nil
	case codeIhaveRejected:
		return TakeThisRejected, nil
	default:
		_ = msg
		return TakeThisRejected, nil
	}
}

// Post issues POST, expects 340, streams headers (optionally filtered to a
// whitelist) then the body. Used only by reader-mode destinations that
// refuse IHAVE.
func (c *RelayConn) Post(headerLines, bodyLines []string, whitelist map[string]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.textConn.Cmd("POST")
	if err != nil {
		return fmt.Errorf("nntp: send POST: %w", err)
	}
	c.textConn.StartResponse(id)
	code, msg, err := c.textConn.ReadCodeLine(codePostIntermediate)
	c.textConn.EndResponse(id)
	if err != nil {
		return fmt.Errorf("nntp: read POST response: %w", err)
	}
	if code != codePostIntermediate {
		return fmt.Errorf("nntp: POST refused: %d %s", code, msg)
	}

	dw := c.textConn.DotWriter()
	for _, h := range headerLines {
		if whitelist != nil {
			name := h
			if idx := strings.IndexByte(h, ':'); idx >= 0 {
				name = strings.TrimSpace(h[:idx])
			}
			if !whitelist[strings.ToLower(name)] {
				continue
			}
		}
		if _, err := io.WriteString(dw, h+"\r\n"); err != nil {
			dw.Close()
			return fmt.Errorf("nntp: stream POST headers: %w", err)
		}
	}
	if _, err := io.WriteString(dw, "\r\n"); err != nil {
		dw.Close()
		return fmt.Errorf("nntp: stream POST header/body separator: %w", err)
	}
	for _, line := range bodyLines {
		if _, err := io.WriteString(dw, line+"\r\n"); err != nil {
			dw.Close()
			return fmt.Errorf("nntp: stream POST body: %w", err)
		}
	}
	if err := dw.Close(); err != nil {
		return fmt.Errorf("nntp: close POST body: %w", err)
	}

	code, msg, err = c.textConn.ReadCodeLine(codePostOK)
	if err != nil {
		return fmt.Errorf("nntp: read POST result: %w", err)
	}
	if code != codePostOK {
		return fmt.Errorf("nntp: POST rejected: %d %s", code, msg)
	}
	return nil
}
