// Package attachment talks to the PDF renderer and the attachment store.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotConfigured is returned when an attachment is requested but no
// collaborator URL was configured.
var ErrNotConfigured = errors.New("attachment service not configured")

// maxSize caps a single attachment.
const maxSize = 20 << 20

// File is binary attachment content.
type File struct {
	Name     string
	MimeType string
	Content  []byte
}

// Renderer turns HTML into a PDF.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// Store fetches stored attachments by path.
type Store interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Client implements Renderer and Store over HTTP.
type Client struct {
	rendererURL string
	storeURL    string
	httpClient  *http.Client
}

func NewClient(rendererURL, storeURL string, timeout time.Duration) *Client {
	return &Client{
		rendererURL: rendererURL,
		storeURL:    strings.TrimRight(storeURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Render posts html to the PDF renderer and returns the PDF bytes.
func (c *Client) Render(ctx context.Context, html string) ([]byte, error) {
	if c.rendererURL == "" {
		return nil, ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rendererURL, strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/html; charset=utf-8")
	req.Header.Set("Accept", "application/pdf")
	return c.do(req)
}

// Fetch downloads path from the attachment store.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	if c.storeURL == "" {
		return nil, ErrNotConfigured
	}
	u := c.storeURL + "/" + strings.TrimLeft((&url.URL{Path: path}).EscapedPath(), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: non-2xx status: %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if n > maxSize {
		return nil, fmt.Errorf("%s %s: attachment larger than %d bytes", req.Method, req.URL.Path, maxSize)
	}
	return buf.Bytes(), nil
}

var (
	_ Renderer = (*Client)(nil)
	_ Store    = (*Client)(nil)
)
