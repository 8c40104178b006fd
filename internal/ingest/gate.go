// Package ingest authenticates, decodes and validates send requests.
package ingest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/vmihailenco/msgpack/v5"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Courier-Signature"

// Channel is the endpoint family a request arrived on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func (c Channel) accepts(m message.SendMethod) bool {
	if c == ChannelSMS {
		return m.IsSMS()
	}
	return m.IsEmail()
}

var countryCode = regexp.MustCompile(`^[A-Z]{2}$`)

// Gate is the single entry point for inbound send requests. It is
// all-or-nothing: on error the caller must not act on the request.
type Gate struct {
	key []byte
}

func NewGate(key string) *Gate {
	return &Gate{key: []byte(key)}
}

// Sign returns the signature a client must send for body.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body in constant time.
func (g *Gate) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return &AuthenticationError{Reason: "missing signature"}
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return &AuthenticationError{Reason: "malformed signature"}
	}

	mac := hmac.New(sha256.New, g.key)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return &AuthenticationError{Reason: "invalid signature"}
	}
	return nil
}

// Open verifies, decodes and validates a request for the given channel.
func (g *Gate) Open(body []byte, signature string, channel Channel) (*Request, error) {
	if err := g.Verify(body, signature); err != nil {
		return nil, err
	}

	req, err := Decode(body)
	if err != nil {
		return nil, err
	}
	if err := Validate(req, channel); err != nil {
		return nil, err
	}
	return req, nil
}

// Decode unpacks a msgpack request body.
func Decode(body []byte) (*Request, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(body))
	dec.UseLooseInterfaceDecoding(true)

	var req Request
	if err := dec.Decode(&req); err != nil {
		verr := &ValidationError{}
		verr.add("body", "malformed msgpack: %v", err)
		return nil, verr
	}
	return &req, nil
}

// Validate checks required fields and normalises defaults in place.
func Validate(req *Request, channel Channel) error {
	verr := &ValidationError{}

	if id, err := uuid.Parse(req.UID); err != nil {
		verr.add("uid", "must be a uuid")
	} else {
		req.UUID = id
	}

	req.CompanyCode = strings.TrimSpace(req.CompanyCode)
	if req.CompanyCode == "" {
		verr.add("company_code", "required")
	}

	if _, err := message.ParseSendMethod(string(req.Method)); err != nil {
		verr.add("method", "unknown send method %q", req.Method)
	} else if !channel.accepts(req.Method) {
		verr.add("method", "%s is not a %s method", req.Method, channel)
	}

	if strings.TrimSpace(req.MainTemplate) == "" {
		verr.add("main_template", "required")
	}

	switch channel {
	case ChannelEmail:
		validateEmail(req, verr)
	case ChannelSMS:
		validateSMS(req, verr)
	}

	if len(req.Recipients) == 0 {
		verr.add("recipients", "at least one recipient is required")
	}

	validateStorable(req, verr)

	return verr.orNil()
}

// validateStorable rejects values the message store cannot hold. Failing
// here is the only point where the caller can still correct them.
func validateStorable(req *Request, verr *ValidationError) {
	checkText(verr, "company_code", req.CompanyCode, message.MaxCompanyCodeLength)
	checkText(verr, "from_address", req.FromAddress, message.MaxFieldLength)
	checkText(verr, "from_name", req.FromName, message.MaxFieldLength)
	checkText(verr, "subaccount", req.Subaccount, message.MaxFieldLength)
	checkText(verr, "main_template", req.MainTemplate, 0)
	checkText(verr, "inner_template", req.InnerTemplate, 0)
	checkText(verr, "subject_template", req.SubjectTemplate, 0)
	for i, tag := range req.Tags {
		checkText(verr, "tags["+strconv.Itoa(i)+"]", tag, message.MaxFieldLength)
	}
	checkContext(verr, "context", req.Context)

	for i := range req.Recipients {
		r := &req.Recipients[i]
		checkText(verr, recipientField(i, "first_name"), r.FirstName, message.MaxFieldLength)
		checkText(verr, recipientField(i, "last_name"), r.LastName, message.MaxFieldLength)
		checkText(verr, recipientField(i, "user_link"), r.UserLink, message.MaxFieldLength)
		checkText(verr, recipientField(i, "address"), r.Address, message.MaxFieldLength)
		checkText(verr, recipientField(i, "number"), r.Number, message.MaxFieldLength)
		for j, tag := range r.Tags {
			checkText(verr, recipientField(i, "tags["+strconv.Itoa(j)+"]"), tag, message.MaxFieldLength)
		}
		for _, a := range r.Attachments {
			checkText(verr, recipientField(i, "attachments"), a.Name, message.MaxFieldLength)
		}
		for _, a := range r.PDFAttachments {
			checkText(verr, recipientField(i, "pdf_attachments"), a.Name, message.MaxFieldLength)
		}
		checkContext(verr, recipientField(i, "context"), r.Context)
	}
}

// checkText adds a problem when v is not valid UTF-8, holds a NUL byte or
// is longer than max characters. max 0 means unbounded.
func checkText(verr *ValidationError, field, v string, max int) {
	switch {
	case !message.StorableText(v):
		verr.add(field, "must be valid UTF-8 without NUL bytes")
	case max > 0 && utf8.RuneCountInString(v) > max:
		verr.add(field, "at most %d characters", max)
	}
}

// checkContext walks render context values; their strings end up in the
// stored body.
func checkContext(verr *ValidationError, field string, values map[string]any) {
	for k, v := range values {
		checkText(verr, field+"."+k, k, 0)
		checkValue(verr, field+"."+k, v)
	}
}

func checkValue(verr *ValidationError, field string, v any) {
	switch t := v.(type) {
	case string:
		checkText(verr, field, t, 0)
	case map[string]any:
		checkContext(verr, field, t)
	case []any:
		for i, item := range t {
			checkValue(verr, field+"["+strconv.Itoa(i)+"]", item)
		}
	}
}

func validateEmail(req *Request, verr *ValidationError) {
	if strings.TrimSpace(req.SubjectTemplate) == "" {
		verr.add("subject_template", "required")
	}
	if _, err := mail.ParseAddress(req.FromAddress); err != nil {
		verr.add("from_address", "invalid email address")
	}

	for i := range req.Recipients {
		r := &req.Recipients[i]
		r.Address = strings.TrimSpace(r.Address)
		if r.Address == "" {
			verr.add(recipientField(i, "address"), "required")
		} else if _, err := mail.ParseAddress(r.Address); err != nil {
			verr.add(recipientField(i, "address"), "invalid email address")
		}
		for j, a := range r.Attachments {
			if a.Path == "" || a.Name == "" {
				verr.add(recipientField(i, "attachments"), "attachment %d needs a name and a path", j)
			}
		}
		for j, a := range r.PDFAttachments {
			if a.Name == "" {
				verr.add(recipientField(i, "pdf_attachments"), "attachment %d needs a name", j)
			}
		}
	}
}

func validateSMS(req *Request, verr *ValidationError) {
	req.CountryCode = strings.ToUpper(strings.TrimSpace(req.CountryCode))
	if req.CountryCode == "" {
		req.CountryCode = "GB"
	}
	if !countryCode.MatchString(req.CountryCode) {
		verr.add("country_code", "must be a two letter region code")
	}

	if req.FromName == "" {
		req.FromName = "Courier"
	}
	if len(req.FromName) > 11 {
		verr.add("from_name", "at most 11 characters")
	}

	if req.CostLimit != nil && *req.CostLimit < 0 {
		verr.add("cost_limit", "must not be negative")
	}

	for i := range req.Recipients {
		r := &req.Recipients[i]
		if r.Number == "" {
			r.Number = r.Address
		}
		r.Number = strings.TrimSpace(r.Number)
		if r.Number == "" {
			verr.add(recipientField(i, "number"), "required")
		}
	}
}

func recipientField(i int, name string) string {
	return "recipients[" + strconv.Itoa(i) + "]." + name
}
