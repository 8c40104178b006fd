package messagegorm

import (
	"encoding/json"

	"github.com/oggyb/courier/internal/domain/message"
	"gorm.io/datatypes"
)

func companyToDomain(m *CompanyModel) *message.Company {
	return &message.Company{ID: m.ID, Code: m.Code}
}

func groupToDomain(m *GroupModel) *message.Group {
	return &message.Group{
		ID:             m.ID,
		UUID:           m.UUID,
		CompanyID:      m.CompanyID,
		Method:         message.SendMethod(m.Method),
		CreatedTS:      m.CreatedTS,
		FromAddress:    m.FromAddress,
		FromName:       m.FromName,
		Tags:           []string(m.Tags),
		State:          message.GroupState(m.State),
		RecipientCount: m.RecipientCount,
		AdmittedCount:  m.AdmittedCount,
	}
}

func groupFromDomain(g *message.Group) *GroupModel {
	return &GroupModel{
		ID:             g.ID,
		UUID:           g.UUID,
		CompanyID:      g.CompanyID,
		Method:         string(g.Method),
		CreatedTS:      g.CreatedTS,
		FromAddress:    g.FromAddress,
		FromName:       g.FromName,
		Tags:           g.Tags,
		State:          string(g.State),
		RecipientCount: g.RecipientCount,
		AdmittedCount:  g.AdmittedCount,
	}
}

// toDomain maps a MessageModel to a domain-level Message.
func toDomain(m *MessageModel) *message.Message {
	out := &message.Message{
		ID:             m.ID,
		GroupID:        m.GroupID,
		CompanyID:      m.CompanyID,
		Method:         message.SendMethod(m.Method),
		RecipientIndex: m.RecipientIndex,
		SendTS:         m.SendTS,
		UpdateTS:       m.UpdateTS,
		Status:         message.Status(m.Status),
		ToFirstName:    m.ToFirstName,
		ToLastName:     m.ToLastName,
		ToAddress:      m.ToAddress,
		ToUserLink:     m.ToUserLink,
		Tags:           []string(m.Tags),
		Subject:        m.Subject,
		Body:           m.Body,
		Attachments:    []string(m.Attachments),
		Cost:           m.Cost,
		Extra:          decodeExtra(m.Extra),
	}
	if m.ExternalID != nil {
		out.ExternalID = *m.ExternalID
	}
	return out
}

// toDomainMany maps a slice of MessageModel to a slice of domain Messages.
func toDomainMany(models []MessageModel) []*message.Message {
	out := make([]*message.Message, len(models))
	for i := range models {
		out[i] = toDomain(&models[i])
	}
	return out
}

// fromDomain maps a domain Message to a MessageModel, deriving the search
// vector from the message fields.
func fromDomain(d *message.Message) (*MessageModel, error) {
	extra, err := encodeExtra(d.Extra)
	if err != nil {
		return nil, err
	}

	m := &MessageModel{
		ID:             d.ID,
		GroupID:        d.GroupID,
		CompanyID:      d.CompanyID,
		Method:         string(d.Method),
		RecipientIndex: d.RecipientIndex,
		SendTS:         d.SendTS,
		UpdateTS:       d.UpdateTS,
		Status:         string(d.Status),
		ToFirstName:    d.ToFirstName,
		ToLastName:     d.ToLastName,
		ToAddress:      d.ToAddress,
		ToUserLink:     d.ToUserLink,
		Tags:           d.Tags,
		Subject:        d.Subject,
		Body:           d.Body,
		Attachments:    d.Attachments,
		Cost:           d.Cost,
		Extra:          extra,
		Vector:         SearchVector{Parts: d.SearchParts()},
	}
	if d.ExternalID != "" {
		id := d.ExternalID
		m.ExternalID = &id
	}
	return m, nil
}

func eventToDomain(m *EventModel) *message.Event {
	return &message.Event{
		ID:        m.ID,
		MessageID: m.MessageID,
		Status:    message.Status(m.Status),
		TS:        m.TS,
		Extra:     decodeExtra(m.Extra),
	}
}

func eventFromDomain(e *message.Event) (*EventModel, error) {
	extra, err := encodeExtra(e.Extra)
	if err != nil {
		return nil, err
	}
	return &EventModel{
		ID:        e.ID,
		MessageID: e.MessageID,
		Status:    string(e.Status),
		TS:        e.TS,
		Extra:     extra,
	}, nil
}

func linkToDomain(m *LinkModel) *message.Link {
	return &message.Link{ID: m.ID, MessageID: m.MessageID, Token: m.Token, URL: m.URL}
}

// encodeExtra drops NULs from strings first; jsonb rejects \u0000.
func encodeExtra(extra map[string]any) (datatypes.JSON, error) {
	if len(extra) == 0 {
		return datatypes.JSON("{}"), nil
	}
	b, err := json.Marshal(message.CleanExtra(extra))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func decodeExtra(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || len(out) == 0 {
		return nil
	}
	return out
}
