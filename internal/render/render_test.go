package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTokens(r *Renderer) *Renderer {
	n := 0
	r.token = func(size int) string {
		n++
		return strings.Repeat(string(rune('a'+n-1)), size)
	}
	return r
}

func TestEmailRendersLayoutWithContentPartial(t *testing.T) {
	r := New("")
	tpl := &Templates{
		Main:     "<html>{{> content}}</html>",
		Subject:  "Hello {{ recipient_first_name }}",
		Partials: map[string]string{ContentPartial: "<p>{{ greeting }} {{ recipient_name }}</p>"},
	}

	out, err := r.Email(tpl, EmailInput{
		FirstName: "Ann",
		LastName:  "Lee",
		Context:   map[string]any{"greeting": "Hi"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello Ann", out.Subject)
	assert.Equal(t, "Ann Lee", out.FullName)
	assert.Equal(t, "<html><p>Hi Ann Lee</p></html>", out.HTML)
	assert.Empty(t, out.Links)
}

func TestEmailMarkdownAndRenderKeys(t *testing.T) {
	r := New("")
	tpl := &Templates{Main: "{{{ intro }}}|{{{ summary }}}", Subject: "s"}

	out, err := r.Email(tpl, EmailInput{Context: map[string]any{
		"intro__md":        "**bold**",
		"name":             "Ann",
		"summary__render":  "_{{ name }}_",
		"unrelated__other": "x",
	}})
	require.NoError(t, err)
	assert.Equal(t, "<p><strong>bold</strong></p>\n|<p><em>Ann</em></p>\n", out.HTML)
}

func TestEmailBrokenNestedTemplateIsRenderError(t *testing.T) {
	r := New("")
	tpl := &Templates{Main: "{{{ body }}}", Subject: "s"}

	_, err := r.Email(tpl, EmailInput{Context: map[string]any{"body__render": "{{#open}} never closed"}})

	var rerr *RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "body__render", rerr.Part)
}

func TestEmailBrokenSubjectFallsBackToRaw(t *testing.T) {
	out, err := New("").Email(&Templates{Main: "ok", Subject: "{{#x}} hi"}, EmailInput{})
	require.NoError(t, err)
	assert.Equal(t, "{{#x}} hi", out.Subject)
}

func TestEmailShortLinks(t *testing.T) {
	r := fixedTokens(New("https://click.example.com/l"))
	tpl := &Templates{Main: "{{ signup }} {{ logo }} {{ unsubscribe_link }}", Subject: "s"}

	out, err := r.Email(tpl, EmailInput{Context: map[string]any{
		"signup":           "https://example.com/signup",
		"logo":             "https://example.com/logo.png",
		"unsubscribe_link": "https://example.com/unsub",
	}})
	require.NoError(t, err)

	require.Len(t, out.Links, 1)
	assert.Equal(t, strings.Repeat("a", 30), out.Links[0].Token)
	assert.Equal(t, "https://example.com/signup", out.Links[0].URL)
	assert.Contains(t, out.HTML, "https://click.example.com/l"+strings.Repeat("a", 30)+"?u=aHR0cHM6Ly9leGFtcGxlLmNvbS9zaWdudXA=")
	assert.Contains(t, out.HTML, "https://example.com/logo.png")
	assert.Equal(t, "<https://example.com/unsub>", out.Headers["List-Unsubscribe"])
}

func TestSMSShortLinksAndLength(t *testing.T) {
	r := fixedTokens(New("https://click.example.com/l"))

	out, err := r.SMS(&Templates{Main: "Visit {{ link }}"}, map[string]any{"link": "https://example.com/x"})
	require.NoError(t, err)

	token := strings.Repeat("a", 12)
	assert.Equal(t, "Visit https://click.example.com/l"+token, out.Body)
	assert.Equal(t, []Link{{Token: token, URL: "https://example.com/x"}}, out.Links)
	assert.Equal(t, Length{Length: 45, Parts: 1}, out.Length)
}

func TestSMSTooLong(t *testing.T) {
	_, err := New("").SMS(&Templates{Main: strings.Repeat("x", 1400)}, nil)
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestMergeDoesNotMutateShared(t *testing.T) {
	shared := map[string]any{"a": 1, "b": 2}
	merged := Merge(shared, map[string]any{"b": 3})
	merged["c"] = 4

	assert.Equal(t, map[string]any{"a": 1, "b": 2}, shared)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, merged)
}

func TestToken(t *testing.T) {
	a, b := Token(30), Token(30)
	assert.Len(t, a, 30)
	assert.NotEqual(t, a, b)
}
