// Package render turns resolved templates and a recipient context into the
// final subject and body of a message.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cbroglie/mustache"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// ContentPartial is the partial name the inner template is bound to.
const ContentPartial = "content"

// Templates is a fully resolved template set.
type Templates struct {
	Main     string            `msgpack:"main"`
	Subject  string            `msgpack:"subject"`
	Partials map[string]string `msgpack:"partials"`
}

// RenderError marks a per-message render failure. It is terminal.
type RenderError struct {
	Part string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("error rendering %s: %v", e.Part, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Link is a URL replaced with a click-tracking token.
type Link struct {
	Token string
	URL   string
}

// Email is a rendered email.
type Email struct {
	FullName string
	Subject  string
	HTML     string
	Headers  map[string]string
	Links    []Link
}

// EmailInput carries the recipient side of an email render.
type EmailInput struct {
	FirstName string
	LastName  string
	Context   map[string]any
	Headers   map[string]string
}

// Renderer renders emails and SMS bodies.
type Renderer struct {
	md       goldmark.Markdown
	clickURL string
	token    func(n int) string
}

// New returns a renderer that rewrites links to clickURL+token. An empty
// clickURL disables link tracking.
func New(clickURL string) *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithUnsafe(),
			),
		),
		clickURL: clickURL,
		token:    Token,
	}
}

// Merge returns a new map with shared overlaid by specific.
func Merge(shared, specific map[string]any) map[string]any {
	out := make(map[string]any, len(shared)+len(specific))
	for k, v := range shared {
		out[k] = v
	}
	for k, v := range specific {
		out[k] = v
	}
	return out
}

// MergeHeaders is Merge for header maps.
func MergeHeaders(shared, specific map[string]string) map[string]string {
	out := make(map[string]string, len(shared)+len(specific))
	for k, v := range shared {
		out[k] = v
	}
	for k, v := range specific {
		out[k] = v
	}
	return out
}

// Markdown renders src to HTML.
func (r *Renderer) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Email renders subject and body. ctx is owned by the call and is mutated.
func (r *Renderer) Email(t *Templates, in EmailInput) (*Email, error) {
	ctx := in.Context
	if ctx == nil {
		ctx = map[string]any{}
	}

	fullName := strings.TrimSpace(in.FirstName + " " + in.LastName)
	setDefault(ctx, "recipient_name", fullName)
	if in.FirstName != "" {
		setDefault(ctx, "recipient_first_name", in.FirstName)
	} else {
		setDefault(ctx, "recipient_first_name", fullName)
	}
	setDefault(ctx, "recipient_last_name", in.LastName)

	subject, err := mustache.Render(t.Subject, ctx)
	if err != nil {
		// an unrenderable subject is sent as written
		subject = t.Subject
	}

	var links []Link
	if r.clickURL != "" {
		links = r.shortenLinks(ctx, 30, true)
	}

	ctx["email_subject"] = subject
	if err := r.expandContext(ctx, t.Partials); err != nil {
		return nil, err
	}

	headers := in.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	if unsub, ok := ctx["unsubscribe_link"].(string); ok && unsub != "" {
		if _, set := headers["List-Unsubscribe"]; !set {
			headers["List-Unsubscribe"] = "<" + unsub + ">"
		}
	}

	body, err := mustache.RenderPartials(t.Main, &mustache.StaticProvider{Partials: t.Partials}, ctx)
	if err != nil {
		return nil, &RenderError{Part: "body", Err: err}
	}

	return &Email{
		FullName: fullName,
		Subject:  subject,
		HTML:     body,
		Headers:  headers,
		Links:    links,
	}, nil
}

// SMS is a rendered text message.
type SMS struct {
	Body   string
	Length Length
	Links  []Link
}

// SMS renders the body of a text message and measures it.
func (r *Renderer) SMS(t *Templates, ctx map[string]any) (*SMS, error) {
	if ctx == nil {
		ctx = map[string]any{}
	}

	var links []Link
	if r.clickURL != "" {
		links = r.shortenLinks(ctx, 12, false)
	}

	body, err := mustache.RenderPartials(t.Main, &mustache.StaticProvider{Partials: t.Partials}, ctx)
	if err != nil {
		return nil, &RenderError{Part: "sms", Err: err}
	}

	length, err := SMSLength(body)
	if err != nil {
		return nil, &RenderError{Part: "sms", Err: err}
	}

	return &SMS{Body: body, Length: length, Links: links}, nil
}

// expandContext handles the suffix conventions on context keys:
// "x__md" sets x to the markdown rendering of the value and "x__render" sets
// x to the markdown rendering of the value rendered as a template.
func (r *Renderer) expandContext(ctx map[string]any, partials map[string]string) error {
	expanded := map[string]any{}

	for k, v := range ctx {
		s, ok := v.(string)
		if !ok {
			continue
		}

		switch {
		case strings.HasSuffix(k, "__md"):
			out, err := r.Markdown(s)
			if err != nil {
				return &RenderError{Part: k, Err: err}
			}
			expanded[strings.TrimSuffix(k, "__md")] = out

		case strings.HasSuffix(k, "__render"):
			nested, err := mustache.RenderPartials(s, &mustache.StaticProvider{Partials: partials}, ctx)
			if err != nil {
				return &RenderError{Part: k, Err: err}
			}
			out, err := r.Markdown(nested)
			if err != nil {
				return &RenderError{Part: k, Err: err}
			}
			expanded[strings.TrimSuffix(k, "__render")] = out
		}
	}

	for k, v := range expanded {
		ctx[k] = v
	}
	return nil
}

func setDefault(ctx map[string]any, key string, value any) {
	if _, ok := ctx[key]; !ok {
		ctx[key] = value
	}
}
