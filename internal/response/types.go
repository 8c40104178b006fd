package response

import (
	"time"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/service"
)

type WelcomePayload struct {
	Message string `json:"message"`
}

type HealthPayload struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type WelcomeResponse struct {
	Success   bool           `json:"success"`
	Data      WelcomePayload `json:"data"`
	Timestamp string         `json:"timestamp"`
}

type HealthResponse struct {
	Success   bool          `json:"success"`
	Data      HealthPayload `json:"data"`
	Timestamp string        `json:"timestamp"`
}

type SchedulerControlPayload struct {
	Message string `json:"message"`
	Running bool   `json:"running"`
}

type SchedulerControlResponse struct {
	Success   bool                    `json:"success"`
	Data      SchedulerControlPayload `json:"data"`
	Timestamp string                  `json:"timestamp"`
}

// AcceptedPayload acknowledges a send group.
type AcceptedPayload struct {
	UID        string `json:"uid"`
	Method     string `json:"method"`
	Recipients int    `json:"recipients"`
}

type AcceptedResponse struct {
	Success   bool            `json:"success"`
	Data      AcceptedPayload `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// WebhookPayload reports how many events were queued.
type WebhookPayload struct {
	Events int `json:"events"`
}

// MessageDTO is the wire form of a message.
type MessageDTO struct {
	ID          uint           `json:"id"`
	ExternalID  string         `json:"external_id,omitempty"`
	GroupID     uint           `json:"group_id"`
	Method      string         `json:"method"`
	Index       int            `json:"recipient_index"`
	SendTS      time.Time      `json:"send_ts"`
	UpdateTS    time.Time      `json:"update_ts"`
	Status      string         `json:"status"`
	FirstName   string         `json:"to_first_name,omitempty"`
	LastName    string         `json:"to_last_name,omitempty"`
	Address     string         `json:"to_address"`
	UserLink    string         `json:"to_user_link,omitempty"`
	Tags        []string       `json:"tags"`
	Subject     string         `json:"subject,omitempty"`
	Body        string         `json:"body,omitempty"`
	Attachments []string       `json:"attachments,omitempty"`
	Cost        *float64       `json:"cost,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// EventDTO is the wire form of a delivery event.
type EventDTO struct {
	Status string         `json:"status"`
	TS     time.Time      `json:"ts"`
	Extra  map[string]any `json:"extra,omitempty"`
}

type MessagesPayload struct {
	Items  []MessageDTO `json:"items"`
	Total  int64        `json:"total"`
	Offset int          `json:"offset"`
	Limit  int          `json:"limit"`
}

type MessagesResponse struct {
	Success   bool            `json:"success"`
	Data      MessagesPayload `json:"data"`
	Timestamp string          `json:"timestamp"`
}

type MessageDetailPayload struct {
	MessageDTO
	Events []EventDTO `json:"events"`
}

type MessageDetailResponse struct {
	Success   bool                 `json:"success"`
	Data      MessageDetailPayload `json:"data"`
	Timestamp string               `json:"timestamp"`
}

// StatusCountDTO is one status bucket.
type StatusCountDTO struct {
	Status string  `json:"status"`
	Count  int64   `json:"count"`
	Cost   float64 `json:"cost"`
}

type GroupPayload struct {
	UID            string           `json:"uid"`
	Method         string           `json:"method"`
	State          string           `json:"state"`
	CreatedTS      time.Time        `json:"created_ts"`
	RecipientCount int              `json:"recipient_count"`
	AdmittedCount  int              `json:"admitted_count"`
	Counts         []StatusCountDTO `json:"counts"`
}

type GroupResponse struct {
	Success   bool         `json:"success"`
	Data      GroupPayload `json:"data"`
	Timestamp string       `json:"timestamp"`
}

type StatsPayload struct {
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Total     int64            `json:"total"`
	TotalCost float64          `json:"total_cost"`
	ByStatus  []StatusCountDTO `json:"by_status"`
}

type StatsResponse struct {
	Success   bool         `json:"success"`
	Data      StatsPayload `json:"data"`
	Timestamp string       `json:"timestamp"`
}

type BillingPayload struct {
	Company string    `json:"company"`
	Method  string    `json:"method"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Spend   float64   `json:"spend"`
}

type BillingResponse struct {
	Success   bool           `json:"success"`
	Data      BillingPayload `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// FromDomainMessage converts a message for an HTTP response.
func FromDomainMessage(m *message.Message) MessageDTO {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	return MessageDTO{
		ID:          m.ID,
		ExternalID:  m.ExternalID,
		GroupID:     m.GroupID,
		Method:      string(m.Method),
		Index:       m.RecipientIndex,
		SendTS:      m.SendTS,
		UpdateTS:    m.UpdateTS,
		Status:      string(m.Status),
		FirstName:   m.ToFirstName,
		LastName:    m.ToLastName,
		Address:     m.ToAddress,
		UserLink:    m.ToUserLink,
		Tags:        tags,
		Subject:     m.Subject,
		Body:        m.Body,
		Attachments: m.Attachments,
		Cost:        m.Cost,
		Extra:       m.Extra,
	}
}

// FromDomainMessages converts a page of messages. The list body is left
// out; it is only returned by the detail endpoint.
func FromDomainMessages(msgs []*message.Message) []MessageDTO {
	out := make([]MessageDTO, len(msgs))
	for i, m := range msgs {
		out[i] = FromDomainMessage(m)
		out[i].Body = ""
	}
	return out
}

// FromMessageDetail converts a message with its events.
func FromMessageDetail(d *service.MessageDetail) MessageDetailPayload {
	events := make([]EventDTO, len(d.Events))
	for i, e := range d.Events {
		events[i] = EventDTO{Status: string(e.Status), TS: e.TS, Extra: e.Extra}
	}
	return MessageDetailPayload{MessageDTO: FromDomainMessage(d.Message), Events: events}
}

// FromStatusCounts converts status buckets.
func FromStatusCounts(counts []message.StatusCount) []StatusCountDTO {
	out := make([]StatusCountDTO, len(counts))
	for i, c := range counts {
		out[i] = StatusCountDTO{Status: string(c.Status), Count: c.Count, Cost: c.Cost}
	}
	return out
}

// FromGroupSummary converts a group summary.
func FromGroupSummary(s *service.GroupSummary) GroupPayload {
	return GroupPayload{
		UID:            s.Group.UUID.String(),
		Method:         string(s.Group.Method),
		State:          string(s.Group.State),
		CreatedTS:      s.Group.CreatedTS,
		RecipientCount: s.Group.RecipientCount,
		AdmittedCount:  s.Group.AdmittedCount,
		Counts:         FromStatusCounts(s.Counts),
	}
}

// SubaccountPayload reports the outcome of a subaccount change.
type SubaccountPayload struct {
	Message     string `json:"message"`
	Method      string `json:"method"`
	CompanyCode string `json:"company_code"`
	Outcome     string `json:"outcome,omitempty"`
	SentTotal   int    `json:"sent_total,omitempty"`
}

type SubaccountResponse struct {
	Success   bool              `json:"success"`
	Data      SubaccountPayload `json:"data"`
	Timestamp string            `json:"timestamp"`
}

// PurgePayload counts what a company deletion removed.
type PurgePayload struct {
	Message   string `json:"message"`
	Companies int64  `json:"deleted_companies"`
	Groups    int64  `json:"deleted_message_groups"`
	Messages  int64  `json:"deleted_messages"`
}

type PurgeResponse struct {
	Success   bool         `json:"success"`
	Data      PurgePayload `json:"data"`
	Timestamp string       `json:"timestamp"`
}

// NumberDTO is a parsed phone number.
type NumberDTO struct {
	Number      string `json:"number"`
	CountryCode string `json:"country_code"`
	Formatted   string `json:"number_formatted"`
	Region      string `json:"region"`
	Mobile      bool   `json:"is_mobile"`
}

// NumbersResponse maps each submitted key to its number, or null when the
// number is invalid.
type NumbersResponse struct {
	Success   bool                  `json:"success"`
	Data      map[string]*NumberDTO `json:"data"`
	Timestamp string                `json:"timestamp"`
}
