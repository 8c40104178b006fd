package render

import (
	"crypto/rand"
	"encoding/base64"
	"regexp"
	"sort"
)

var (
	linkPattern  = regexp.MustCompile(`^https?://`)
	skippedLinks = []*regexp.Regexp{
		regexp.MustCompile(`\.(?:png|jpg|bmp)$`),
		regexp.MustCompile(`^https?://maps\.googleapis\.com`),
		regexp.MustCompile(`^https?://maps\.google\.com`),
	}
)

// LooksLikeLink reports whether a context value should be click-tracked.
func LooksLikeLink(v any) bool {
	s, ok := v.(string)
	if !ok || !linkPattern.MatchString(s) {
		return false
	}
	for _, re := range skippedLinks {
		if re.MatchString(s) {
			return false
		}
	}
	return true
}

// Token returns a random url-safe token of exactly n characters.
func Token(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n]
}

// shortenLinks replaces every link-valued context entry with a tracking URL
// and keeps the original under "{key}_original". With backup set the
// original is also carried base64 encoded in a "u" query argument so the
// redirect still works if the token is unknown.
func (r *Renderer) shortenLinks(ctx map[string]any, tokenLen int, backup bool) []Link {
	keys := make([]string, 0, len(ctx))
	for k, v := range ctx {
		if k != "unsubscribe_link" && LooksLikeLink(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	links := make([]Link, 0, len(keys))
	for _, k := range keys {
		original := ctx[k].(string)
		token := r.token(tokenLen)

		tracked := r.clickURL + token
		if backup {
			tracked += "?u=" + base64.URLEncoding.EncodeToString([]byte(original))
		}

		ctx[k] = tracked
		ctx[k+"_original"] = original
		links = append(links, Link{Token: token, URL: original})
	}
	return links
}
