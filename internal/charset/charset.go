// Package charset decodes legacy newsgroup header encodings to UTF-8 for
// diagnostic logging. It never touches article bytes that go out over the
// wire — POST-mode whitelisting forwards headers verbatim; this is strictly
// a display-time concern.
package charset

import (
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ToUTF8 decodes a RFC 2047 MIME encoded-word header value and falls back to
// Latin-1 when the result still isn't valid UTF-8. It never returns an
// error: logging code should never fail on malformed article metadata.
func ToUTF8(text string) string {
	decoded, err := (&mime.WordDecoder{}).DecodeHeader(text)
	if err != nil {
		decoded = text
	}
	if utf8.ValidString(decoded) {
		return decoded
	}
	result, _, err := transform.String(charmap.ISO8859_1.NewDecoder(), decoded)
	if err != nil {
		return strings.ToValidUTF8(decoded, "�")
	}
	return result
}
