package webhook

import (
	"net/url"
	"testing"
	"time"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mandrillBatch = `[
	{"ts": 1700000000, "event": "open", "_id": "abc/123", "user_agent": "Mozilla/5.0", "msg": {"state": "sent", "opens": [{"ts": 1700000000}], "subject": "ignored"}},
	{"ts": 1700000100, "event": "hard_bounce", "_id": "def", "msg": {"bounce_description": "bad_mailbox"}}
]`

func TestMandrillSignature(t *testing.T) {
	form := url.Values{MandrillEventsField: {mandrillBatch}}
	sig := MandrillSignature("webhook-key", "https://courier.example.com/webhook/mandrill/", form)

	assert.NoError(t, VerifyMandrill("webhook-key", "https://courier.example.com/webhook/mandrill/", form, sig))
	assert.ErrorIs(t, VerifyMandrill("other-key", "https://courier.example.com/webhook/mandrill/", form, sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyMandrill("webhook-key", "https://courier.example.com/webhook/mandrill/", form, ""), ErrInvalidSignature)

	tampered := url.Values{MandrillEventsField: {mandrillBatch + " "}}
	assert.ErrorIs(t, VerifyMandrill("webhook-key", "https://courier.example.com/webhook/mandrill/", tampered, sig), ErrInvalidSignature)
}

func TestParseMandrill(t *testing.T) {
	events, err := ParseMandrill(url.Values{MandrillEventsField: {mandrillBatch}})
	require.NoError(t, err)
	require.Len(t, events, 2)

	open := events[0]
	assert.Equal(t, message.MethodEmailMandrill, open.Method)
	assert.Equal(t, "abc123", open.ExternalID)
	assert.Equal(t, message.StatusOpen, open.Status)
	assert.True(t, open.TS.Equal(time.Unix(1700000000, 0)))
	assert.Equal(t, "sent", open.Extra["state"])
	assert.NotContains(t, open.Extra, "subject")

	assert.Equal(t, message.StatusHardBounce, events[1].Status)
	assert.Equal(t, "bad_mailbox", events[1].Extra["bounce_description"])
}

func TestParseMandrillRejectsUnknownEvent(t *testing.T) {
	_, err := ParseMandrill(url.Values{MandrillEventsField: {`[{"ts": 1, "event": "exploded", "_id": "x"}]`}})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseMandrill(url.Values{})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseMessageBird(t *testing.T) {
	e, err := ParseMessageBird(url.Values{
		"id":              {"mb-1"},
		"status":          {"delivered"},
		"statusDatetime":  {"2032-06-06T12:00:00+01:00"},
		"statusErrorCode": {"7"},
	})
	require.NoError(t, err)

	assert.Equal(t, message.MethodSMSMessagebird, e.Method)
	assert.Equal(t, message.StatusDelivered, e.Status)
	assert.Equal(t, time.Date(2032, 6, 6, 11, 0, 0, 0, time.UTC), e.TS)
	assert.Equal(t, "7", e.Extra["error_code"])

	_, err = ParseMessageBird(url.Values{"id": {"mb-1"}, "status": {"nope"}, "statusDatetime": {"2032-06-06T12:00:00Z"}})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseTest(t *testing.T) {
	e, err := ParseTest([]byte(`{"ts": "2032-06-06T12:10:00Z", "event": "click", "_id": "uuid-jane"}`))
	require.NoError(t, err)
	assert.Equal(t, message.MethodEmailTest, e.Method)
	assert.Equal(t, message.StatusClick, e.Status)

	e, err = ParseTest([]byte(`{"ts": 2000000000, "event": "delivered", "_id": "uuid-447891123856", "method": "sms-test"}`))
	require.NoError(t, err)
	assert.Equal(t, message.MethodSMSTest, e.Method)
	assert.Equal(t, message.StatusDelivered, e.Status)

	_, err = ParseTest([]byte(`{"ts": 1, "event": "open", "_id": "x", "method": "email-mandrill"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEventKey(t *testing.T) {
	ts := time.Date(2032, 6, 6, 12, 0, 0, 0, time.UTC)
	a := &Event{ExternalID: "x", Status: message.StatusOpen, TS: ts, Extra: map[string]any{"b": 1, "a": "z"}}
	b := &Event{ExternalID: "x", Status: message.StatusOpen, TS: ts, Extra: map[string]any{"a": "z", "b": 1}}
	c := &Event{ExternalID: "x", Status: message.StatusClick, TS: ts, Extra: map[string]any{"a": "z", "b": 1}}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Len(t, a.Key(), 32)
}

func TestParseTSHasMicrosecondPrecision(t *testing.T) {
	ts, err := parseTS("1700000000.1234567")
	require.NoError(t, err)
	assert.Equal(t, time.UnixMicro(1700000000123457).UTC(), ts)

	ts, err = parseTS("1700000000.5")
	require.NoError(t, err)
	assert.Equal(t, time.UnixMicro(1700000000500000).UTC(), ts)

	ts, err = parseTS("2032-06-06T12:00:00.123456789Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2032, 6, 6, 12, 0, 0, 123456000, time.UTC), ts)
	assert.Zero(t, ts.Nanosecond()%1000)

	_, err = parseTS("yesterday")
	assert.ErrorIs(t, err, ErrMalformed)
}
