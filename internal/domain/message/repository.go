package message

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GroupRepository persists companies and send groups.
type GroupRepository interface {
	// CompanyID returns the id for code, creating the company if needed.
	CompanyID(ctx context.Context, code string) (uint, error)

	// FindCompany returns the company with the given code or ErrNotFound.
	FindCompany(ctx context.Context, code string) (*Company, error)

	// CreateGroup inserts g unless a group with the same UUID exists. In both
	// cases g is populated with the stored row; created reports which happened.
	CreateGroup(ctx context.Context, g *Group) (created bool, err error)

	// GroupByUUID returns the group or ErrNotFound.
	GroupByUUID(ctx context.Context, id uuid.UUID) (*Group, error)

	// SetGroupState records orchestration progress.
	SetGroupState(ctx context.Context, groupID uint, state GroupState) error

	// SetGroupAdmitted stores the quota decision for the group.
	SetGroupAdmitted(ctx context.Context, groupID uint, admitted int) error
}

// CompanyPurge counts what DeleteCompanies removed.
type CompanyPurge struct {
	Companies int64
	Groups    int64
	Messages  int64
}

// CompanyRepository removes companies together with everything they sent.
type CompanyRepository interface {
	// DeleteCompanies deletes every company whose code starts with
	// codePrefix. Groups, messages, events and links go by cascade.
	DeleteCompanies(ctx context.Context, codePrefix string) (*CompanyPurge, error)
}

// MessageRepository writes messages and applies delivery events.
type MessageRepository interface {
	// MessageExists reports whether the recipient at index already has a row.
	MessageExists(ctx context.Context, groupID uint, index int) (bool, error)

	// CreateMessage inserts m together with its links in one transaction and
	// computes the search vector in the same statement. If a message for the
	// same (group, recipient index) exists nothing is written and created is false.
	CreateMessage(ctx context.Context, m *Message, links []Link) (created bool, err error)

	// ApplyEvent appends e to the message identified by (method, externalID) and
	// updates the message status only if e.TS is newer than its update_ts.
	// Returns ErrNotFound if no such message exists.
	ApplyEvent(ctx context.Context, method SendMethod, externalID string, e *Event) (updated bool, err error)

	// ApplyEventToMessage is ApplyEvent for a known message id (click tracking).
	ApplyEventToMessage(ctx context.Context, messageID uint, e *Event) (updated bool, err error)

	// LinkByToken returns the link for a click token or ErrNotFound.
	LinkByToken(ctx context.Context, token string) (*Link, error)

	// DeleteGroupsBefore removes groups (and, by cascade, their messages)
	// created before cutoff.
	DeleteGroupsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SearchFilter narrows a message listing.
type SearchFilter struct {
	CompanyID uint
	Method    SendMethod
	Tags      []string
	Query     string
	Offset    int
	Limit     int
}

// AggregateFilter scopes an aggregate query.
type AggregateFilter struct {
	CompanyID uint
	Method    SendMethod
	Start     time.Time
	End       time.Time
	Statuses  []Status
}

// StatusCount is one bucket of an aggregate.
type StatusCount struct {
	Status Status
	Count  int64
	Cost   float64
}

// Aggregate is the result of an aggregate query.
type Aggregate struct {
	Total     int64
	TotalCost float64
	ByStatus  []StatusCount
}

// QueryRepository serves read-side queries.
type QueryRepository interface {
	Search(ctx context.Context, f SearchFilter) ([]*Message, int64, error)
	MessageByID(ctx context.Context, companyID uint, method SendMethod, id uint) (*Message, error)
	Events(ctx context.Context, messageID uint, limit int) ([]*Event, error)
	GroupStatusCounts(ctx context.Context, groupID uint) ([]StatusCount, error)
	Aggregate(ctx context.Context, f AggregateFilter) (*Aggregate, error)
	Spend(ctx context.Context, companyID uint, method SendMethod, start, end time.Time) (float64, error)
}
