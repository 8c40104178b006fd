// Package provider exposes the capability every send backend implements and
// the registry that selects a backend by send method.
package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/oggyb/courier/internal/attachment"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/render"
)

// ErrNoProvider is returned by Registry.Get for unregistered send methods.
var ErrNoProvider = errors.New("no provider for send method")

// Envelope is one rendered message ready for a provider.
type Envelope struct {
	Method      message.SendMethod
	GroupUUID   string
	CompanyCode string

	FromAddress string
	FromName    string

	ToAddress  string
	ToName     string
	ToUserLink string

	Subject     string
	HTML        string
	Headers     map[string]string
	Attachments []attachment.File

	// SMS only.
	Text   string
	Number *render.Number
	Length render.Length

	Tags       []string
	Subaccount string
	Important  bool
}

// Receipt is a provider acceptance.
type Receipt struct {
	ExternalID string
	Cost       *float64
}

// Provider sends one message.
type Provider interface {
	Send(ctx context.Context, env *Envelope) (*Receipt, error)
}

// DispatchError is a terminal provider failure for one message.
type DispatchError struct {
	Method message.SendMethod
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: send request failed: %v", e.Method, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Registry maps send methods to providers.
type Registry struct {
	providers map[message.SendMethod]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[message.SendMethod]Provider)}
}

// Register binds p to method, replacing any previous binding.
func (r *Registry) Register(method message.SendMethod, p Provider) *Registry {
	r.providers[method] = p
	return r
}

func (r *Registry) Get(method message.SendMethod) (Provider, error) {
	p, ok := r.providers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, method)
	}
	return p, nil
}

var unsafeID = regexp.MustCompile(`[^a-zA-Z0-9\-]`)

// StableID derives a deterministic message id from parts, keeping only
// characters safe for file names and provider references.
func StableID(parts ...string) string {
	return unsafeID.ReplaceAllString(strings.Join(parts, "-"), "")
}

func costOf(f float64) *float64 { return &f }
