package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Mandrill sends email through the Mandrill messages API.
type Mandrill struct {
	api *apiClient
	key string
	log zerolog.Logger
}

func NewMandrill(baseURL, key string, opts ClientOptions, log zerolog.Logger) *Mandrill {
	return &Mandrill{
		api: newAPIClient(baseURL, nil, opts, log),
		key: key,
		log: log,
	}
}

type mandrillRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type"`
}

type mandrillAttachment struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type mandrillMessage struct {
	HTML            string               `json:"html"`
	Subject         string               `json:"subject"`
	FromEmail       string               `json:"from_email"`
	FromName        string               `json:"from_name,omitempty"`
	To              []mandrillRecipient  `json:"to"`
	Headers         map[string]string    `json:"headers,omitempty"`
	TrackOpens      bool                 `json:"track_opens"`
	TrackClicks     bool                 `json:"track_clicks"`
	AutoText        bool                 `json:"auto_text"`
	ViewContentLink bool                 `json:"view_content_link"`
	SigningDomain   string               `json:"signing_domain,omitempty"`
	Subaccount      string               `json:"subaccount,omitempty"`
	Tags            []string             `json:"tags,omitempty"`
	InlineCSS       bool                 `json:"inline_css"`
	Important       bool                 `json:"important"`
	Attachments     []mandrillAttachment `json:"attachments,omitempty"`
}

type mandrillSendRequest struct {
	Key     string          `json:"key"`
	Async   bool            `json:"async"`
	Message mandrillMessage `json:"message"`
}

type mandrillSendResult struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	ID     string `json:"_id"`
}

// Send posts env to messages/send.json. Addresses at example.com are never
// sent; they get a derived id so the rest of the pipeline behaves normally.
func (m *Mandrill) Send(ctx context.Context, env *Envelope) (*Receipt, error) {
	if strings.HasSuffix(env.ToAddress, "@example.com") {
		return &Receipt{ExternalID: StableID("mandrill", env.ToAddress)}, nil
	}

	msg := mandrillMessage{
		HTML:        env.HTML,
		Subject:     env.Subject,
		FromEmail:   env.FromAddress,
		FromName:    env.FromName,
		To:          []mandrillRecipient{{Email: env.ToAddress, Name: env.ToName, Type: "to"}},
		Headers:     env.Headers,
		TrackOpens:  true,
		AutoText:    true,
		Subaccount:  env.Subaccount,
		Tags:        env.Tags,
		InlineCSS:   true,
		Important:   env.Important,
		Attachments: make([]mandrillAttachment, 0, len(env.Attachments)),
	}
	if _, domain, ok := strings.Cut(env.FromAddress, "@"); ok {
		msg.SigningDomain = domain
	}
	for _, a := range env.Attachments {
		msg.Attachments = append(msg.Attachments, mandrillAttachment{
			Type:    a.MimeType,
			Name:    a.Name,
			Content: base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	var results []mandrillSendResult
	err := m.api.do(ctx, http.MethodPost, "messages/send.json", mandrillSendRequest{
		Key:     m.key,
		Async:   true,
		Message: msg,
	}, &results)
	if err != nil {
		return nil, &DispatchError{Method: env.Method, Err: err}
	}

	if len(results) != 1 || results[0].ID == "" {
		return nil, &DispatchError{Method: env.Method, Err: fmt.Errorf("unexpected send response: %+v", results)}
	}
	if results[0].Email != env.ToAddress {
		m.log.Warn().Str("expected", env.ToAddress).Str("got", results[0].Email).Msg("mandrill response address mismatch")
	}
	return &Receipt{ExternalID: results[0].ID}, nil
}

// Ping checks the API key.
func (m *Mandrill) Ping(ctx context.Context) error {
	return m.api.do(ctx, http.MethodPost, "users/ping.json", map[string]string{"key": m.key}, nil)
}

// SubaccountReuseLimit is the most emails an existing subaccount may have
// sent and still be handed to a new company with the same code.
const SubaccountReuseLimit = 100

// ErrUnknownSubaccount is returned when deleting a subaccount Mandrill does
// not know.
var ErrUnknownSubaccount = errors.New("unknown subaccount")

// SubaccountInUseError refuses to reuse a subaccount that already sent mail.
type SubaccountInUseError struct {
	ID        string
	SentTotal int
}

func (e *SubaccountInUseError) Error() string {
	return fmt.Sprintf("subaccount %q already exists with %d emails sent, reuse not permitted", e.ID, e.SentTotal)
}

// Subaccount is the outcome of CreateSubaccount. Created is false when an
// unused subaccount with the same id already existed.
type Subaccount struct {
	Created   bool
	SentTotal int
}

type mandrillSubaccountRequest struct {
	Key  string `json:"key"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// mandrillError is the body Mandrill sends with its error replies.
type mandrillError struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func asMandrillError(err error) *mandrillError {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	var me mandrillError
	if json.Unmarshal([]byte(apiErr.Body), &me) != nil {
		return nil
	}
	return &me
}

// CreateSubaccount adds subaccount id. An existing subaccount is accepted
// if it has sent at most SubaccountReuseLimit emails.
func (m *Mandrill) CreateSubaccount(ctx context.Context, id, name string) (*Subaccount, error) {
	err := m.api.do(ctx, http.MethodPost, "subaccounts/add.json", mandrillSubaccountRequest{Key: m.key, ID: id, Name: name}, nil)
	if err == nil {
		return &Subaccount{Created: true}, nil
	}

	me := asMandrillError(err)
	if me == nil || !strings.Contains(me.Message, "already exists") {
		return nil, err
	}

	var info struct {
		SentTotal int `json:"sent_total"`
	}
	if err := m.api.do(ctx, http.MethodPost, "subaccounts/info.json", mandrillSubaccountRequest{Key: m.key, ID: id}, &info); err != nil {
		return nil, err
	}
	if info.SentTotal > SubaccountReuseLimit {
		return nil, &SubaccountInUseError{ID: id, SentTotal: info.SentTotal}
	}
	return &Subaccount{SentTotal: info.SentTotal}, nil
}

// DeleteSubaccount removes subaccount id.
func (m *Mandrill) DeleteSubaccount(ctx context.Context, id string) error {
	err := m.api.do(ctx, http.MethodPost, "subaccounts/delete.json", mandrillSubaccountRequest{Key: m.key, ID: id}, nil)
	if me := asMandrillError(err); me != nil && me.Name == "Unknown_Subaccount" {
		return fmt.Errorf("%w: %s", ErrUnknownSubaccount, me.Message)
	}
	return err
}

var _ Provider = (*Mandrill)(nil)
