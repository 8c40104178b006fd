package messagegorm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oggyb/courier/internal/domain/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlLog keeps every statement gorm builds.
type sqlLog struct {
	logger.Interface
	mu    sync.Mutex
	stmts []string
}

func (l *sqlLog) LogMode(logger.LogLevel) logger.Interface { return l }

func (l *sqlLog) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stmts = append(l.stmts, sql)
}

func (l *sqlLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.stmts...)
}

// dryRun opens a postgres gorm session that builds statements without
// connecting.
func dryRun(t *testing.T) (*gorm.DB, *sqlLog) {
	t.Helper()
	log := &sqlLog{Interface: logger.Discard}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 port=1 user=courier dbname=courier sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 log,
	})
	require.NoError(t, err)
	return db, log
}

var sendTS = time.Date(2032, 6, 6, 12, 0, 0, 0, time.UTC)

func TestInsertMessageIsIdempotentOnRecipient(t *testing.T) {
	db, log := dryRun(t)

	model, err := fromDomain(&message.Message{
		GroupID:        3,
		CompanyID:      1,
		Method:         message.MethodEmailTest,
		RecipientIndex: 2,
		SendTS:         sendTS,
		UpdateTS:       sendTS,
		Status:         message.StatusSend,
		ToFirstName:    "Jane",
		ToAddress:      "jane@testing.org",
		Subject:        "Welcome",
		Body:           "hello there",
		Tags:           []string{"welcome"},
	})
	require.NoError(t, err)

	require.NoError(t, insertMessage(db, model).Error)

	stmts := log.all()
	require.Len(t, stmts, 1)
	sql := stmts[0]
	assert.Contains(t, sql, `INSERT INTO "messages"`)
	assert.Contains(t, sql, `ON CONFLICT ("group_id","recipient_index") DO NOTHING`)
	assert.Contains(t, sql, `RETURNING "id"`)
	assert.Contains(t, sql, `setweight(to_tsvector('english', 'Jane jane@testing.org'), 'A') || setweight(to_tsvector('english', 'Welcome welcome'), 'B')`)
	assert.Contains(t, sql, `setweight(to_tsvector('english', 'hello there'), 'D')`)
	assert.Contains(t, sql, `'{"welcome"}'`)
	assert.Contains(t, sql, "NULL", "empty external id is stored as NULL")
}

func TestInsertLinks(t *testing.T) {
	db, log := dryRun(t)

	rows := linkRows(9, []message.Link{{Token: "t1", URL: "https://a.example"}, {Token: "t2", URL: "https://b.example"}})
	require.NoError(t, insertLinks(db, rows).Error)

	stmts := log.all()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `INSERT INTO "links" ("message_id","token","url")`)
	assert.Contains(t, stmts[0], `(9,'t1','https://a.example'),(9,'t2','https://b.example')`)
}

func TestApplyEventLocksRowAndAdvancesStatus(t *testing.T) {
	db, log := dryRun(t)

	e := &message.Event{Status: message.StatusDelivered, TS: sendTS.Add(1500 * time.Nanosecond)}
	updated, err := applyEventTx(db, e, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("external_id = ? AND method = ?", "abc123", string(message.MethodEmailMandrill)).Order("id ASC")
	})
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, sendTS.Add(time.Microsecond), e.TS)

	stmts := log.all()
	require.Len(t, stmts, 3)

	assert.Contains(t, stmts[0], `FROM "messages" WHERE external_id = 'abc123' AND method = 'email-mandrill'`)
	assert.Contains(t, stmts[0], "ORDER BY id ASC LIMIT 1 FOR UPDATE")

	assert.Contains(t, stmts[1], `INSERT INTO "events"`)
	assert.Contains(t, stmts[1], `'delivered'`)

	assert.Contains(t, stmts[2], `UPDATE "messages" SET "status"='delivered',"update_ts"=`)
	assert.Contains(t, stmts[2], "WHERE id = 0")
}

func TestSearchWithTextAndTags(t *testing.T) {
	db, log := dryRun(t)
	repo := &Repository{db: db}

	_, _, err := repo.Search(context.Background(), message.SearchFilter{
		CompanyID: 1,
		Method:    message.MethodEmailTest,
		Tags:      []string{"welcome"},
		Query:     "jane",
		Offset:    20,
		Limit:     10,
	})
	require.NoError(t, err)

	stmts := log.all()
	require.Len(t, stmts, 2)

	count, page := stmts[0], stmts[1]
	for _, sql := range stmts {
		assert.Contains(t, sql, "company_id = 1 AND method = 'email-test'")
		assert.Contains(t, sql, `tags @> '{"welcome"}'::varchar[]`)
		assert.Contains(t, sql, "vector @@ websearch_to_tsquery('english', 'jane')")
	}
	assert.Contains(t, count, "SELECT count(*)")
	assert.NotContains(t, count, "ORDER BY")
	assert.Contains(t, page, "ORDER BY ts_rank(vector, websearch_to_tsquery('english', 'jane')) DESC, send_ts DESC, id DESC")
	assert.Contains(t, page, "LIMIT 10 OFFSET 20")
}

func TestSearchWithoutTextOrdersBySendTime(t *testing.T) {
	db, log := dryRun(t)
	repo := &Repository{db: db}

	_, _, err := repo.Search(context.Background(), message.SearchFilter{CompanyID: 2, Method: message.MethodSMSTest, Limit: 100})
	require.NoError(t, err)

	stmts := log.all()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "ORDER BY send_ts DESC, id DESC")
	assert.NotContains(t, stmts[1], "websearch_to_tsquery")
	assert.NotContains(t, stmts[1], "tags @>")
}

func TestMessageByIDIsScoped(t *testing.T) {
	db, log := dryRun(t)
	repo := &Repository{db: db}

	_, err := repo.MessageByID(context.Background(), 4, message.MethodSMSTest, 17)
	require.NoError(t, err)

	stmts := log.all()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "id = 17 AND company_id = 4 AND method = 'sms-test'")
}

func TestAggregateFiltersStatuses(t *testing.T) {
	db, log := dryRun(t)
	repo := &Repository{db: db}

	_, err := repo.Aggregate(context.Background(), message.AggregateFilter{
		CompanyID: 1,
		Method:    message.MethodEmailSES,
		Start:     sendTS,
		End:       sendTS.Add(24 * time.Hour),
		Statuses:  []message.Status{message.StatusDelivered, message.StatusOpen},
	})
	// Scan is not supported in dry run; the statement is still built.
	assert.ErrorIs(t, err, gorm.ErrDryRunModeUnsupported)

	stmts := log.all()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "SELECT status, count(*) AS count, coalesce(sum(cost), 0) AS cost")
	assert.Contains(t, stmts[0], "company_id = 1 AND method = 'email-ses'")
	assert.Contains(t, stmts[0], "status IN ('delivered','open')")
	assert.Contains(t, stmts[0], "GROUP BY")
}

func TestPurgeCompaniesCascadesFromCompanies(t *testing.T) {
	db, log := dryRun(t)

	_, err := purgeCompaniesTx(db, "acme_")
	require.NoError(t, err)

	stmts := log.all()
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], `SELECT count(*) FROM "messages" WHERE company_id IN (SELECT`)
	assert.Contains(t, stmts[1], `SELECT count(*) FROM "message_groups" WHERE company_id IN (SELECT`)
	for _, sql := range stmts[:2] {
		assert.Contains(t, sql, `FROM "companies" WHERE code LIKE 'acme\_%'`)
	}
	assert.Contains(t, stmts[2], `DELETE FROM "companies" WHERE code LIKE 'acme\_%'`)
}

func TestDeleteCompaniesRejectsEmptyPrefix(t *testing.T) {
	db, log := dryRun(t)
	repo := &Repository{db: db}

	_, err := repo.DeleteCompanies(context.Background(), "")
	assert.Error(t, err)
	assert.Empty(t, log.all())
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, "acme%", likePrefix("acme"))
	assert.Equal(t, `a\%b\_c\\%`, likePrefix(`a%b_c\`))
}

func TestDataError(t *testing.T) {
	tooLong := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "22001", Message: "value too long for type character varying(255)"})
	assert.ErrorIs(t, dataError(tooLong), message.ErrInvalidData)

	nul := &pgconn.PgError{Code: "22021", Message: "invalid byte sequence for encoding \"UTF8\": 0x00"}
	assert.ErrorIs(t, dataError(nul), message.ErrInvalidData)

	dup := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	assert.NotErrorIs(t, dataError(dup), message.ErrInvalidData)
	assert.Nil(t, dataError(nil))
}

func TestSearchVectorValue(t *testing.T) {
	db, _ := dryRun(t)

	expr := SearchVector{Parts: []message.SearchPart{
		{Weight: message.WeightA, Text: "jane"},
		{Weight: message.WeightD, Text: "body"},
	}}.GormValue(context.Background(), db)
	assert.Equal(t, "setweight(to_tsvector('english', ?), 'A') || setweight(to_tsvector('english', ?), 'D')", expr.SQL)
	assert.Equal(t, []any{"jane", "body"}, expr.Vars)

	assert.Equal(t, "''::tsvector", SearchVector{}.GormValue(context.Background(), db).SQL)
}

func TestEncodeExtraDropsNUL(t *testing.T) {
	raw, err := encodeExtra(map[string]any{"reason": "bad\x00byte"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"reason":"badbyte"}`, string(raw))
}
