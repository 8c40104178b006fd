package messagegorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oggyb/courier/internal/db"
	"github.com/oggyb/courier/internal/domain/message"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a GORM-backed implementation of the message repositories.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a message repository using the given DB adapter.
func NewRepository(d db.DB) *Repository {
	return &Repository{
		db: d.Conn().(*gorm.DB),
	}
}

// CompanyID returns the id for code, inserting the company on first use.
func (r *Repository) CompanyID(ctx context.Context, code string) (uint, error) {
	c := CompanyModel{Code: code}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&c).Error
	if err != nil {
		return 0, err
	}
	if c.ID != 0 {
		return c.ID, nil
	}

	found, err := r.FindCompany(ctx, code)
	if err != nil {
		return 0, err
	}
	return found.ID, nil
}

// FindCompany returns the company with the given code.
func (r *Repository) FindCompany(ctx context.Context, code string) (*message.Company, error) {
	var c CompanyModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).Take(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return companyToDomain(&c), nil
}

// CreateGroup inserts g, or loads the existing group with the same UUID.
func (r *Repository) CreateGroup(ctx context.Context, g *message.Group) (bool, error) {
	model := groupFromDomain(g)
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "uuid"}}, DoNothing: true}).
		Create(model)
	if res.Error != nil {
		return false, res.Error
	}

	if res.RowsAffected == 0 {
		existing, err := r.GroupByUUID(ctx, g.UUID)
		if err != nil {
			return false, err
		}
		*g = *existing
		return false, nil
	}

	*g = *groupToDomain(model)
	return true, nil
}

// GroupByUUID loads a group by its client-supplied UUID.
func (r *Repository) GroupByUUID(ctx context.Context, id uuid.UUID) (*message.Group, error) {
	var m GroupModel
	if err := r.db.WithContext(ctx).Where("uuid = ?", id).Take(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return groupToDomain(&m), nil
}

// SetGroupState persists orchestration progress for a group.
func (r *Repository) SetGroupState(ctx context.Context, groupID uint, state message.GroupState) error {
	return r.db.WithContext(ctx).
		Model(&GroupModel{}).
		Where("id = ?", groupID).
		Update("state", string(state)).Error
}

// SetGroupAdmitted persists the quota decision for a group.
func (r *Repository) SetGroupAdmitted(ctx context.Context, groupID uint, admitted int) error {
	return r.db.WithContext(ctx).
		Model(&GroupModel{}).
		Where("id = ?", groupID).
		Update("admitted_count", admitted).Error
}

// MessageExists reports whether a message row exists for (group, index).
func (r *Repository) MessageExists(ctx context.Context, groupID uint, index int) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("group_id = ? AND recipient_index = ?", groupID, index).
		Count(&n).Error
	return n > 0, err
}

// CreateMessage inserts the message and its links in one transaction. The
// search vector is computed by the INSERT itself.
func (r *Repository) CreateMessage(ctx context.Context, m *message.Message, links []message.Link) (bool, error) {
	model, err := fromDomain(m)
	if err != nil {
		return false, err
	}

	created := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := insertMessage(tx, model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true

		if len(links) == 0 {
			return nil
		}
		rows := linkRows(model.ID, links)
		if err := insertLinks(tx, rows).Error; err != nil {
			return err
		}
		for i := range links {
			links[i].ID = rows[i].ID
			links[i].MessageID = model.ID
		}
		return nil
	})
	if err != nil {
		return false, dataError(err)
	}

	if created {
		m.ID = model.ID
	}
	return created, nil
}

// insertMessage writes model unless (group_id, recipient_index) is taken.
func insertMessage(tx *gorm.DB, model *MessageModel) *gorm.DB {
	return tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "recipient_index"}},
			DoNothing: true,
		}).
		Create(model)
}

func linkRows(messageID uint, links []message.Link) []LinkModel {
	rows := make([]LinkModel, len(links))
	for i, l := range links {
		rows[i] = LinkModel{MessageID: messageID, Token: l.Token, URL: l.URL}
	}
	return rows
}

func insertLinks(tx *gorm.DB, rows []LinkModel) *gorm.DB {
	return tx.Omit(clause.Associations).Create(&rows)
}

// ApplyEvent locks the message addressed by (method, externalID), appends the
// event and advances the status if the event is newer than the last update.
func (r *Repository) ApplyEvent(ctx context.Context, method message.SendMethod, externalID string, e *message.Event) (bool, error) {
	return r.applyEvent(ctx, e, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("external_id = ? AND method = ?", externalID, string(method)).Order("id ASC")
	})
}

// ApplyEventToMessage is ApplyEvent addressed by primary key.
func (r *Repository) ApplyEventToMessage(ctx context.Context, messageID uint, e *message.Event) (bool, error) {
	return r.applyEvent(ctx, e, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ?", messageID)
	})
}

func (r *Repository) applyEvent(ctx context.Context, e *message.Event, scope func(*gorm.DB) *gorm.DB) (bool, error) {
	updated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = applyEventTx(tx, e, scope)
		return err
	})
	return updated, dataError(err)
}

// applyEventTx runs inside a transaction: lock the message row, append the
// event, then move status and update_ts only if the event is newer.
func applyEventTx(tx *gorm.DB, e *message.Event, scope func(*gorm.DB) *gorm.DB) (bool, error) {
	var row MessageModel
	err := scope(tx.Model(&MessageModel{}).Select("id", "status", "update_ts")).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&row).Error
	if err != nil {
		return false, notFound(err)
	}

	e.MessageID = row.ID
	e.TS = e.TS.Truncate(message.TimestampPrecision)
	ev, err := eventFromDomain(e)
	if err != nil {
		return false, err
	}
	if err := tx.Omit(clause.Associations).Create(ev).Error; err != nil {
		return false, err
	}
	e.ID = ev.ID

	current := &message.Message{ID: row.ID, Status: message.Status(row.Status), UpdateTS: row.UpdateTS}
	if !current.Apply(e) {
		return false, nil
	}

	err = tx.Model(&MessageModel{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"status":    string(current.Status),
			"update_ts": current.UpdateTS,
		}).Error
	return err == nil, err
}

// LinkByToken resolves a click-tracking token.
func (r *Repository) LinkByToken(ctx context.Context, token string) (*message.Link, error) {
	var l LinkModel
	if err := r.db.WithContext(ctx).Where("token = ?", token).Take(&l).Error; err != nil {
		return nil, notFound(err)
	}
	return linkToDomain(&l), nil
}

// DeleteGroupsBefore prunes old groups. Messages, events and links go with
// them through ON DELETE CASCADE.
func (r *Repository) DeleteGroupsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_ts < ?", cutoff).
		Delete(&GroupModel{})
	return res.RowsAffected, res.Error
}

// DeleteCompanies removes every company whose code starts with codePrefix.
// Groups, messages, events and links go with them through ON DELETE CASCADE;
// the counts are taken in the same transaction as the delete.
func (r *Repository) DeleteCompanies(ctx context.Context, codePrefix string) (*message.CompanyPurge, error) {
	if codePrefix == "" {
		return nil, errors.New("company code prefix must not be empty")
	}

	var out *message.CompanyPurge
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = purgeCompaniesTx(tx, codePrefix)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func purgeCompaniesTx(tx *gorm.DB, codePrefix string) (*message.CompanyPurge, error) {
	out := &message.CompanyPurge{}
	pattern := likePrefix(codePrefix)
	companies := func() *gorm.DB {
		return tx.Model(&CompanyModel{}).Select("id").Where("code LIKE ?", pattern)
	}

	if err := tx.Model(&MessageModel{}).Where("company_id IN (?)", companies()).Count(&out.Messages).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&GroupModel{}).Where("company_id IN (?)", companies()).Count(&out.Groups).Error; err != nil {
		return nil, err
	}

	res := tx.Where("code LIKE ?", pattern).Delete(&CompanyModel{})
	if res.Error != nil {
		return nil, res.Error
	}
	out.Companies = res.RowsAffected
	return out, nil
}

// likePrefix escapes LIKE metacharacters in s and appends the wildcard.
func likePrefix(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s) + "%"
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return message.ErrNotFound
	}
	return err
}

// dataError marks postgres data exceptions (SQLSTATE class 22: value too
// long, bad encoding, NUL in text) as message.ErrInvalidData.
func dataError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
		return fmt.Errorf("%w: %s (%s)", message.ErrInvalidData, pgErr.Message, pgErr.Code)
	}
	return err
}

// compile-time interface checks
var (
	_ message.GroupRepository   = (*Repository)(nil)
	_ message.MessageRepository = (*Repository)(nil)
	_ message.QueryRepository   = (*Repository)(nil)
	_ message.CompanyRepository = (*Repository)(nil)
)
