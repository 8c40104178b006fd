package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const testKey = "testing"

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := msgpack.Marshal(v)
	require.NoError(t, err)
	return b
}

func emailBody() map[string]any {
	return map[string]any{
		"uid":              "6f0c7e2e-54f4-4b4b-8a55-4f1d2f2b9d11",
		"company_code":     "acme",
		"method":           "email-test",
		"from_address":     "Acme <hello@acme.com>",
		"main_template":    "layouts/main.mustache",
		"subject_template": "subjects/welcome.mustache",
		"context":          map[string]any{"count": 3, "nested": map[string]any{"a": "b"}},
		"tags":             []string{"welcome"},
		"recipients": []map[string]any{
			{"first_name": "Ann", "address": "ann@example.com", "context": map[string]any{"x": 1}},
			{"address": "bob@example.com"},
		},
	}
}

func TestOpenValidEmail(t *testing.T) {
	body := encode(t, emailBody())
	g := NewGate(testKey)

	req, err := g.Open(body, Sign(testKey, body), ChannelEmail)
	require.NoError(t, err)

	assert.Equal(t, "6f0c7e2e-54f4-4b4b-8a55-4f1d2f2b9d11", req.UUID.String())
	assert.Equal(t, message.MethodEmailTest, req.Method)
	assert.Equal(t, []string{"welcome"}, req.Tags)
	require.Len(t, req.Recipients, 2)
	assert.Equal(t, "Ann", req.Recipients[0].FirstName)
	assert.EqualValues(t, 3, req.Context["count"])
	assert.Equal(t, map[string]any{"a": "b"}, req.Context["nested"])
}

func TestOpenRejectsBadSignatureBeforeDecoding(t *testing.T) {
	g := NewGate(testKey)
	garbage := []byte{0xc1, 0xc1, 0xc1}

	cases := map[string]string{
		"missing":   "",
		"malformed": "zz",
		"wrong":     Sign("other-key", garbage),
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := g.Open(garbage, sig, ChannelEmail)
			var aerr *AuthenticationError
			require.True(t, errors.As(err, &aerr), "got %v", err)

			var verr *ValidationError
			assert.False(t, errors.As(err, &verr))
		})
	}
}

func TestOpenMalformedBody(t *testing.T) {
	g := NewGate(testKey)
	body := []byte{0xc1}

	_, err := g.Open(body, Sign(testKey, body), ChannelEmail)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "body", verr.Problems[0].Field)
}

func TestOpenCollectsValidationProblems(t *testing.T) {
	raw := emailBody()
	raw["uid"] = "nope"
	raw["method"] = "sms-test"
	delete(raw, "subject_template")
	raw["recipients"] = []map[string]any{{"address": "not-an-address"}}
	body := encode(t, raw)

	_, err := NewGate(testKey).Open(body, Sign(testKey, body), ChannelEmail)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	fields := make([]string, 0, len(verr.Problems))
	for _, p := range verr.Problems {
		fields = append(fields, p.Field)
	}
	assert.ElementsMatch(t, []string{"uid", "method", "subject_template", "recipients[0].address"}, fields)
}

func TestOpenRequiresRecipients(t *testing.T) {
	raw := emailBody()
	raw["recipients"] = []map[string]any{}
	body := encode(t, raw)

	_, err := NewGate(testKey).Open(body, Sign(testKey, body), ChannelEmail)
	assert.ErrorContains(t, err, "recipients: at least one recipient is required")
}

func TestOpenSMSDefaults(t *testing.T) {
	body := encode(t, map[string]any{
		"uid":           "0b7d6c39-92d4-4a4b-9f59-3f8c3c4a2b10",
		"company_code":  "acme",
		"method":        "sms-test",
		"main_template": "sms/reminder.mustache",
		"recipients":    []map[string]any{{"number": "07891123856"}, {"address": "07891123857"}},
	})

	req, err := NewGate(testKey).Open(body, Sign(testKey, body), ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "GB", req.CountryCode)
	assert.Equal(t, "Courier", req.FromName)
	assert.Equal(t, "07891123857", req.Recipients[1].To(req.Method))
}

func TestOpenSMSRejectsNegativeCostLimit(t *testing.T) {
	body := encode(t, map[string]any{
		"uid":           "0b7d6c39-92d4-4a4b-9f59-3f8c3c4a2b10",
		"company_code":  "acme",
		"method":        "sms-messagebird",
		"main_template": "sms/reminder.mustache",
		"cost_limit":    -1.0,
		"country_code":  "gbr",
		"recipients":    []map[string]any{{"number": "07891123856"}},
	})

	_, err := NewGate(testKey).Open(body, Sign(testKey, body), ChannelSMS)
	assert.ErrorContains(t, err, "cost_limit")
	assert.ErrorContains(t, err, "country_code")
}

func TestOpenRejectsUnstorableValues(t *testing.T) {
	raw := emailBody()
	raw["company_code"] = strings.Repeat("c", message.MaxCompanyCodeLength+1)
	raw["tags"] = []string{strings.Repeat("t", message.MaxFieldLength+1)}
	raw["context"] = map[string]any{"nested": map[string]any{"note": "a\x00b"}}
	raw["recipients"] = []map[string]any{
		{"first_name": "Ann\xff", "address": "ann@example.com"},
		{"address": "bob@example.com", "user_link": "https://acme.com/" + strings.Repeat("u", 300)},
	}
	body := encode(t, raw)

	_, err := NewGate(testKey).Open(body, Sign(testKey, body), ChannelEmail)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	fields := make([]string, 0, len(verr.Problems))
	for _, p := range verr.Problems {
		fields = append(fields, p.Field)
	}
	assert.ElementsMatch(t, []string{
		"company_code",
		"tags[0]",
		"context.nested.note",
		"recipients[0].first_name",
		"recipients[1].user_link",
	}, fields)
	assert.ErrorContains(t, err, "company_code: at most 63 characters")
	assert.ErrorContains(t, err, "recipients[0].first_name: must be valid UTF-8 without NUL bytes")
}

func TestOpenAcceptsLongMultibyteWithinLimit(t *testing.T) {
	raw := emailBody()
	raw["recipients"] = []map[string]any{
		{"first_name": strings.Repeat("é", message.MaxFieldLength), "address": "ann@example.com"},
	}
	body := encode(t, raw)

	_, err := NewGate(testKey).Open(body, Sign(testKey, body), ChannelEmail)
	assert.NoError(t, err)
}
