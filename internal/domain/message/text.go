package message

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidData is returned by repositories when the store refuses a value
// (too long, bad encoding). Retrying the same write cannot succeed.
var ErrInvalidData = errors.New("invalid data for store")

const (
	// MaxFieldLength bounds names, addresses, links, tags and external ids.
	MaxFieldLength = 255
	// MaxCompanyCodeLength bounds company codes.
	MaxCompanyCodeLength = 63
)

// TimestampPrecision is the resolution timestamps are stored with. Times are
// truncated to it before they are compared or written.
const TimestampPrecision = time.Microsecond

// StorableText reports whether s can be written to a text column: valid
// UTF-8 without NUL bytes.
func StorableText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

// CleanText makes s storable, replacing invalid sequences and dropping NULs.
func CleanText(s string) string {
	if StorableText(s) {
		return s
	}
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
}

// ClipText is CleanText truncated to at most max characters.
func ClipText(s string, max int) string {
	s = CleanText(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// CleanExtra returns a copy of extra with every string made storable.
func CleanExtra(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[CleanText(k)] = cleanValue(v)
	}
	return out
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case string:
		return CleanText(t)
	case map[string]any:
		return CleanExtra(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cleanValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = CleanText(item)
		}
		return out
	}
	return v
}

// Storable returns a copy of m that the store accepts: bounded fields are
// clipped to MaxFieldLength and all text is cleaned.
func (m *Message) Storable() *Message {
	cp := *m
	cp.ExternalID = ClipText(m.ExternalID, MaxFieldLength)
	cp.ToFirstName = ClipText(m.ToFirstName, MaxFieldLength)
	cp.ToLastName = ClipText(m.ToLastName, MaxFieldLength)
	cp.ToAddress = ClipText(m.ToAddress, MaxFieldLength)
	cp.ToUserLink = ClipText(m.ToUserLink, MaxFieldLength)
	cp.Subject = CleanText(m.Subject)
	cp.Body = CleanText(m.Body)
	cp.Tags = clipAll(m.Tags)
	cp.Attachments = clipAll(m.Attachments)
	cp.Extra = CleanExtra(m.Extra)
	return &cp
}

func clipAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = ClipText(s, MaxFieldLength)
	}
	return out
}
