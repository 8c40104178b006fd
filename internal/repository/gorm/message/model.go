package messagegorm

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CompanyModel maps to the "companies" table.
type CompanyModel struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"size:63;not null;uniqueIndex"`
}

func (CompanyModel) TableName() string { return "companies" }

// GroupModel maps to the "message_groups" table.
type GroupModel struct {
	ID             uint           `gorm:"primaryKey"`
	UUID           uuid.UUID      `gorm:"column:uuid;type:uuid;not null;uniqueIndex"`
	CompanyID      uint           `gorm:"not null;index:message_group_company_method,priority:1"`
	Company        CompanyModel   `gorm:"constraint:OnDelete:CASCADE"`
	Method         string         `gorm:"size:31;not null;index:message_group_company_method,priority:2"`
	CreatedTS      time.Time      `gorm:"column:created_ts;not null;index"`
	FromAddress    string         `gorm:"size:255"`
	FromName       string         `gorm:"size:255"`
	Tags           pq.StringArray `gorm:"type:varchar(255)[]"`
	State          string         `gorm:"size:31;not null"`
	RecipientCount int            `gorm:"not null"`
	AdmittedCount  int            `gorm:"not null"`
}

func (GroupModel) TableName() string { return "message_groups" }

// BeforeCreate stamps the creation time when the caller left it empty.
func (g *GroupModel) BeforeCreate(tx *gorm.DB) error {
	if g.CreatedTS.IsZero() {
		g.CreatedTS = time.Now().UTC()
	}
	return nil
}

// MessageModel maps to the "messages" table. The (group_id, recipient_index)
// unique index is the dispatch idempotency key.
type MessageModel struct {
	ID             uint           `gorm:"primaryKey"`
	ExternalID     *string        `gorm:"size:255;index:message_external_method,priority:1"`
	GroupID        uint           `gorm:"not null;uniqueIndex:message_group_recipient,priority:1"`
	Group          GroupModel     `gorm:"constraint:OnDelete:CASCADE"`
	CompanyID      uint           `gorm:"not null;index:message_company_method,priority:1"`
	Company        CompanyModel   `gorm:"constraint:OnDelete:CASCADE"`
	Method         string         `gorm:"size:31;not null;index:message_company_method,priority:2;index:message_external_method,priority:2"`
	RecipientIndex int            `gorm:"not null;uniqueIndex:message_group_recipient,priority:2"`
	SendTS         time.Time      `gorm:"column:send_ts;not null;index"`
	UpdateTS       time.Time      `gorm:"column:update_ts;not null;index"`
	Status         string         `gorm:"size:31;not null;default:send"`
	ToFirstName    string         `gorm:"size:255"`
	ToLastName     string         `gorm:"size:255"`
	ToUserLink     string         `gorm:"size:255"`
	ToAddress      string         `gorm:"size:255"`
	Tags           pq.StringArray `gorm:"type:varchar(255)[]"`
	Subject        string         `gorm:"type:text"`
	Body           string         `gorm:"type:text"`
	Attachments    pq.StringArray `gorm:"type:varchar(255)[]"`
	Cost           *float64
	Extra          datatypes.JSON `gorm:"type:jsonb"`
	Vector         SearchVector   `gorm:"type:tsvector;not null"`
}

func (MessageModel) TableName() string { return "messages" }

// EventModel maps to the append-only "events" table.
type EventModel struct {
	ID        uint           `gorm:"primaryKey"`
	MessageID uint           `gorm:"not null;index"`
	Message   MessageModel   `gorm:"constraint:OnDelete:CASCADE"`
	Status    string         `gorm:"size:31;not null"`
	TS        time.Time      `gorm:"column:ts;not null"`
	Extra     datatypes.JSON `gorm:"type:jsonb"`
}

func (EventModel) TableName() string { return "events" }

// LinkModel maps to the "links" table.
type LinkModel struct {
	ID        uint         `gorm:"primaryKey"`
	MessageID uint         `gorm:"not null;index"`
	Message   MessageModel `gorm:"constraint:OnDelete:CASCADE"`
	Token     string       `gorm:"size:31;not null;uniqueIndex"`
	URL       string       `gorm:"column:url;type:text;not null"`
}

func (LinkModel) TableName() string { return "links" }

// Models lists every table in migration order.
func Models() []any {
	return []any{&CompanyModel{}, &GroupModel{}, &MessageModel{}, &EventModel{}, &LinkModel{}}
}

// Indexes returns the DDL for indexes struct tags cannot express.
func Indexes() []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS message_vector ON messages USING GIN (vector)",
		"CREATE INDEX IF NOT EXISTS message_tags ON messages USING GIN (tags)",
		"CREATE INDEX IF NOT EXISTS event_message_ts ON events (message_id, ts DESC)",
	}
}
