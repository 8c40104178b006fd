// Package message holds the domain model and invariants for send groups,
// messages and their delivery events.
package message

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownMethod is returned when a send method string is not recognised.
	ErrUnknownMethod = errors.New("unknown send method")
	// ErrUnknownStatus is returned when a status string is not recognised.
	ErrUnknownStatus = errors.New("unknown message status")
)

// Company is a tenant. Groups and messages are always scoped to one.
type Company struct {
	ID   uint
	Code string
}

// GroupState tracks how far the orchestrator got with a send group.
type GroupState string

const (
	GroupReceived          GroupState = "received"
	GroupTemplatesResolved GroupState = "templates-resolved"
	GroupRecorded          GroupState = "group-recorded"
	GroupFannedOut         GroupState = "fanned-out"
	GroupComplete          GroupState = "complete"
	GroupPartialFailure    GroupState = "partial-failure"
	GroupFailed            GroupState = "failed"
)

// Settled reports whether the orchestrator has nothing left to do for the group.
func (s GroupState) Settled() bool {
	switch s {
	case GroupFannedOut, GroupComplete, GroupPartialFailure, GroupFailed:
		return true
	}
	return false
}

// Group is one inbound send request.
type Group struct {
	ID             uint
	UUID           uuid.UUID
	CompanyID      uint
	Method         SendMethod
	CreatedTS      time.Time
	FromAddress    string
	FromName       string
	Tags           []string
	State          GroupState
	RecipientCount int
	// AdmittedCount is -1 until the quota ledger has been consulted.
	AdmittedCount int
}

// Message is one recipient's send.
type Message struct {
	ID             uint
	ExternalID     string
	GroupID        uint
	CompanyID      uint
	Method         SendMethod
	RecipientIndex int
	SendTS         time.Time
	UpdateTS       time.Time
	Status         Status
	ToFirstName    string
	ToLastName     string
	ToAddress      string
	ToUserLink     string
	Tags           []string
	Subject        string
	Body           string
	Attachments    []string
	Cost           *float64
	Extra          map[string]any
}

// NewMessage returns a message in the default send status, stamped with ts for
// both the send and update timestamps.
func NewMessage(g *Group, index int, ts time.Time) *Message {
	ts = ts.Truncate(TimestampPrecision)
	return &Message{
		GroupID:        g.ID,
		CompanyID:      g.CompanyID,
		Method:         g.Method,
		RecipientIndex: index,
		SendTS:         ts,
		UpdateTS:       ts,
		Status:         StatusSend,
	}
}

// FullName joins first and last name, skipping blanks.
func (m *Message) FullName() string {
	return strings.TrimSpace(m.ToFirstName + " " + m.ToLastName)
}

// Apply applies a delivery event using the last-writer-wins-by-timestamp rule.
// It returns true if the message state changed. Events with a timestamp equal
// to or older than UpdateTS are ignored.
func (m *Message) Apply(e *Event) bool {
	e.TS = e.TS.Truncate(TimestampPrecision)
	if !e.TS.After(m.UpdateTS.Truncate(TimestampPrecision)) {
		return false
	}
	m.Status = e.Status
	m.UpdateTS = e.TS
	return true
}

// Event is one delivery-lifecycle observation. Events are append-only.
type Event struct {
	ID        uint
	MessageID uint
	Status    Status
	TS        time.Time
	Extra     map[string]any
}

// Link is a trackable URL extracted from a message body.
type Link struct {
	ID        uint
	MessageID uint
	Token     string
	URL       string
}
