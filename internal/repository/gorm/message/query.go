package messagegorm

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/oggyb/courier/internal/domain/message"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Search returns a page of messages matching f plus the total match count.
// Free text is matched with websearch_to_tsquery against the weighted vector
// and ranked; otherwise results are ordered by send time, newest first.
func (r *Repository) Search(ctx context.Context, f message.SearchFilter) ([]*message.Message, int64, error) {
	var models []MessageModel
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&MessageModel{}).Scopes(searchFilter(f)).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Model(&MessageModel{}).
		Scopes(searchFilter(f), searchOrder(f)).
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	return toDomainMany(models), total, nil
}

func searchFilter(f message.SearchFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("company_id = ? AND method = ?", f.CompanyID, string(f.Method))
		if len(f.Tags) > 0 {
			db = db.Where("tags @> ?::varchar[]", pq.StringArray(f.Tags))
		}
		if f.Query != "" {
			db = db.Where("vector @@ websearch_to_tsquery('"+searchConfig+"', ?)", f.Query)
		}
		return db
	}
}

func searchOrder(f message.SearchFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Query == "" {
			return db.Order("send_ts DESC, id DESC")
		}
		return db.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "ts_rank(vector, websearch_to_tsquery('" + searchConfig + "', ?)) DESC, send_ts DESC, id DESC",
			Vars:               []interface{}{f.Query},
			WithoutParentheses: true,
		}})
	}
}

// MessageByID returns one message scoped to its company and method.
func (r *Repository) MessageByID(ctx context.Context, companyID uint, method message.SendMethod, id uint) (*message.Message, error) {
	var m MessageModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ? AND method = ?", id, companyID, string(method)).
		Take(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return toDomain(&m), nil
}

// Events returns the most recent events of a message, newest first.
func (r *Repository) Events(ctx context.Context, messageID uint, limit int) ([]*message.Event, error) {
	var models []EventModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("ts DESC").
		Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]*message.Event, len(models))
	for i := range models {
		out[i] = eventToDomain(&models[i])
	}
	return out, nil
}

type statusRow struct {
	Status string
	Count  int64
	Cost   float64
}

// GroupStatusCounts buckets the messages of a group by current status.
func (r *Repository) GroupStatusCounts(ctx context.Context, groupID uint) ([]message.StatusCount, error) {
	var rows []statusRow
	err := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Select("status, count(*) AS count, coalesce(sum(cost), 0) AS cost").
		Where("group_id = ?", groupID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toStatusCounts(rows), nil
}

// Aggregate counts messages and sums cost per status for a company, method
// and send-time window.
func (r *Repository) Aggregate(ctx context.Context, f message.AggregateFilter) (*message.Aggregate, error) {
	query := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Select("status, count(*) AS count, coalesce(sum(cost), 0) AS cost").
		Where("company_id = ? AND method = ?", f.CompanyID, string(f.Method)).
		Where("send_ts >= ? AND send_ts < ?", f.Start, f.End)

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status IN ?", statuses)
	}

	var rows []statusRow
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := &message.Aggregate{ByStatus: toStatusCounts(rows)}
	for _, c := range out.ByStatus {
		out.Total += c.Count
		out.TotalCost += c.Cost
	}
	return out, nil
}

// Spend sums message cost for a company and method within [start, end).
func (r *Repository) Spend(ctx context.Context, companyID uint, method message.SendMethod, start, end time.Time) (float64, error) {
	var spend float64
	err := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Select("coalesce(sum(cost), 0)").
		Where("company_id = ? AND method = ?", companyID, string(method)).
		Where("send_ts >= ? AND send_ts < ?", start, end).
		Scan(&spend).Error
	return spend, err
}

// toStatusCounts orders buckets by the canonical status order.
func toStatusCounts(rows []statusRow) []message.StatusCount {
	byStatus := make(map[message.Status]statusRow, len(rows))
	for _, row := range rows {
		byStatus[message.Status(row.Status)] = row
	}

	out := make([]message.StatusCount, 0, len(rows))
	for _, s := range message.Statuses {
		if row, ok := byStatus[s]; ok {
			out = append(out, message.StatusCount{Status: s, Count: row.Count, Cost: row.Cost})
		}
	}
	return out
}
