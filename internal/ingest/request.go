package ingest

import (
	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/domain/message"
)

// Group is the shared part of a send request.
type Group struct {
	UID             string             `msgpack:"uid"`
	CompanyCode     string             `msgpack:"company_code"`
	Method          message.SendMethod `msgpack:"method"`
	FromAddress     string             `msgpack:"from_address"`
	FromName        string             `msgpack:"from_name"`
	MainTemplate    string             `msgpack:"main_template"`
	InnerTemplate   string             `msgpack:"inner_template"`
	SubjectTemplate string             `msgpack:"subject_template"`
	Partials        map[string]string  `msgpack:"mustache_partials"`
	Context         map[string]any     `msgpack:"context"`
	Tags            []string           `msgpack:"tags"`
	Headers         map[string]string  `msgpack:"headers"`
	Subaccount      string             `msgpack:"subaccount"`
	Important       bool               `msgpack:"important"`
	CountryCode     string             `msgpack:"country_code"`
	CostLimit       *float64           `msgpack:"cost_limit"`

	// UUID is UID parsed by the gate.
	UUID uuid.UUID `msgpack:"-"`
}

// PDFAttachment is rendered from HTML at dispatch time.
type PDFAttachment struct {
	Name string `msgpack:"name"`
	HTML string `msgpack:"html"`
	ID   int64  `msgpack:"id"`
}

// Attachment references an object in the attachment store.
type Attachment struct {
	Name     string `msgpack:"name"`
	Path     string `msgpack:"path"`
	MimeType string `msgpack:"mime_type"`
}

// Recipient is one addressee of a group.
type Recipient struct {
	FirstName      string            `msgpack:"first_name"`
	LastName       string            `msgpack:"last_name"`
	UserLink       string            `msgpack:"user_link"`
	Address        string            `msgpack:"address"`
	Number         string            `msgpack:"number"`
	Tags           []string          `msgpack:"tags"`
	Context        map[string]any    `msgpack:"context"`
	Headers        map[string]string `msgpack:"headers"`
	PDFAttachments []PDFAttachment   `msgpack:"pdf_attachments"`
	Attachments    []Attachment      `msgpack:"attachments"`
}

// To returns the address for email recipients and the number for SMS ones.
func (r *Recipient) To(method message.SendMethod) string {
	if method.IsSMS() && r.Number != "" {
		return r.Number
	}
	return r.Address
}

// Request is a decoded, validated send request.
type Request struct {
	Group      `msgpack:",inline"`
	Recipients []Recipient `msgpack:"recipients"`
}
