package nntp

// GROUP / XHDR / ARTICLE / LIST, grounded on nntp-client-commands.go's
// SelectGroup/XHdr/GetArticle/ListGroups — reimplemented against RelayConn's
// unshared connection and textproto's built-in dot-(un)stuffing reader.

import (
	"fmt"
	"strconv"
	"strings"
)

// HeaderEntry is one row of an XHDR response.
type HeaderEntry struct {
	ArticleNo int64
	Value     string
}

// CatalogueEntry is one row of a LIST response.
type CatalogueEntry struct {
	Group string
	Last  int64
	First int64
	Flag  string
}

// Group issues GROUP and parses "211 count first last name".
func (c *RelayConn) Group(name string) (count, first, last int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.textConn.Cmd("GROUP %s", name)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("nntp: send GROUP %s: %w", name, err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, msg, err := c.textConn.ReadCodeLine(codeGroupSelected)
	if err != nil && code == 0 {
		return 0, 0, 0, fmt.Errorf("nntp: read GROUP %s response: %w", name, err)
	}
	if code != codeGroupSelected {
		return 0, 0, 0, fmt.Errorf("nntp: GROUP %s: %d %s", name, code, msg)
	}

	fields := strings.Fields(msg)
	if len(fields) < 3 {
		return 0, 0, 0, fmt.Errorf("nntp: GROUP %s: malformed response %q", name, msg)
	}
	count, _ = strconv.ParseInt(fields[0], 10, 64)
	first, _ = strconv.ParseInt(fields[1], 10, 64)
	last, _ = strconv.ParseInt(fields[2], 10, 64)
	c.CurrentGroup = name
	return count, first, last, nil
}

// XHdr issues "XHDR header first-last" and streams the multi-line response
// until the lone ".".
func (c *RelayConn) XHdr(header string, first, last int64) ([]HeaderEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.textConn.Cmd("XHDR %s %d-%d", header, first, last)
	if err != nil {
		return nil, fmt.Errorf("nntp: send XHDR: %w", err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, msg, err := c.textConn.ReadCodeLine(221)
	if err != nil {
		return nil, fmt.Errorf("nntp: read XHDR response: %w", err)
	}
	if code != 221 {
		return nil, fmt.Errorf("nntp: XHDR %s %d-%d: %d %s", header, first, last, code, msg)
	}

	lines, err := c.textConn.ReadDotLines()
	if err != nil {
		return nil, fmt.Errorf("nntp: read XHDR body: %w", err)
	}

	entries := make([]HeaderEntry, 0, len(lines))
	for _, line := range lines {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		num, perr := strconv.ParseInt(parts[0], 10, 64)
		if perr != nil {
			continue
		}
		entries = append(entries, HeaderEntry{ArticleNo: num, Value: parts[1]})
	}
	return entries, nil
}

// articleSpecifier formats either an article number (within the currently
// selected group) or a bracketed Message-ID for ARTICLE/STAT/IHAVE-style
// commands.
func articleSpecifier(articleNo int64, messageID string) string {
	if messageID != "" {
		return messageID
	}
	return strconv.FormatInt(articleNo, 10)
}

// Article issues ARTICLE <specifier> and returns the dot-unstuffed lines
// when the server answers 220; sentinel errors are returned for 423/430/451.
func (c *RelayConn) Article(articleNo int64, messageID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	spec := articleSpecifier(articleNo, messageID)
	id, err := c.textConn.Cmd("ARTICLE %s", spec)
	if err != nil {
		return nil, fmt.Errorf("nntp: send ARTICLE %s: %w", spec, err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, msg, err := c.textConn.ReadCodeLine(ArticleFollows)
	if err != nil && code == 0 {
		return nil, fmt.Errorf("nntp: read ARTICLE %s response: %w", spec, err)
	}
	switch code {
	case ArticleFollows:
		// fall through to body read
	case 423:
		return nil, ErrNoSuchArticleNumber
	case NoSuchArticle:
		return nil, ErrArticleNotFound
	case DMCA:
		return nil, ErrArticleRemoved
	default:
		return nil, fmt.Errorf("nntp: ARTICLE %s: %d %s", spec, code, msg)
	}

	lines, err := c.textConn.ReadDotLines()
	if err != nil {
		return nil, fmt.Errorf("nntp: read ARTICLE %s body: %w", spec, err)
	}
	return lines, nil
}

// List issues LIST and returns the destination's group catalogue.
func (c *RelayConn) List() ([]CatalogueEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.textConn.Cmd("LIST")
	if err != nil {
		return nil, fmt.Errorf("nntp: send LIST: %w", err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, msg, err := c.textConn.ReadCodeLine(codeListFollows)
	if err != nil {
		return nil, fmt.Errorf("nntp: read LIST response: %w", err)
	}
	if code != codeListFollows {
		return nil, fmt.Errorf("nntp: LIST: %d %s", code, msg)
	}

	lines, err := c.textConn.ReadDotLines()
	if err != nil {
		return nil, fmt.Errorf("nntp: read LIST body: %w", err)
	}

	out := make([]CatalogueEntry, 0, len(lines))
	for _, line := range lines {
		f := strings.Fields(line)
		if len(f) < 3 {
			continue
		}
		last, _ := strconv.ParseInt(f[1], 10, 64)
		first, _ := strconv.ParseInt(f[2], 10, 64)
		flag := ""
		if len(f) > 3 {
			flag = f[3]
		}
		out = append(out, CatalogueEntry{Group: f[0], Last: last, First: first, Flag: flag})
	}
	return out, nil
}
