// Package webhook normalizes provider delivery callbacks into events.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/courier/internal/domain/message"
)

var (
	// ErrInvalidSignature is returned when a signed webhook does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrMalformed is returned for payloads that cannot be normalized.
	ErrMalformed = errors.New("malformed webhook payload")
)

// MandrillSignatureHeader carries the mandrill webhook signature.
const MandrillSignatureHeader = "X-Mandrill-Signature"

// MandrillEventsField is the form field holding the JSON event batch.
const MandrillEventsField = "mandrill_events"

// Event is a provider callback normalized for the reconciler.
type Event struct {
	Method     message.SendMethod
	ExternalID string
	Status     message.Status
	TS         time.Time
	Extra      map[string]any
}

// Key is the dedupe signature of the event: the same callback delivered
// twice yields the same key.
func (e *Event) Key() string {
	extra, _ := json.Marshal(e.Extra)
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%d-%s-%s", e.ExternalID, e.TS.UnixMilli(), e.Status, extra)))
	return hex.EncodeToString(sum[:])
}

var idCleaner = regexp.MustCompile(`[/<>= ]`)

func cleanID(id string) string {
	return idCleaner.ReplaceAllString(id, "")
}

var mandrillStatuses = map[string]message.Status{
	"send":        message.StatusSend,
	"deferral":    message.StatusDeferral,
	"hard_bounce": message.StatusHardBounce,
	"soft_bounce": message.StatusSoftBounce,
	"open":        message.StatusOpen,
	"click":       message.StatusClick,
	"spam":        message.StatusSpam,
	"unsub":       message.StatusUnsub,
	"reject":      message.StatusReject,
}

var messageBirdStatuses = map[string]message.Status{
	"scheduled":       message.StatusScheduled,
	"sent":            message.StatusSend,
	"send":            message.StatusSend,
	"buffered":        message.StatusBuffered,
	"delivered":       message.StatusDelivered,
	"expired":         message.StatusExpired,
	"delivery_failed": message.StatusDeliveryFailed,
}

// mandrillMsgFields are copied from the event's msg object into extra.
var mandrillMsgFields = []string{"bounce_description", "clicks", "diag", "reject", "opens", "resends", "smtp_events", "state"}

type mandrillEvent struct {
	TS        json.RawMessage `json:"ts"`
	Event     string          `json:"event"`
	ID        string          `json:"_id"`
	UserAgent *string         `json:"user_agent"`
	Location  map[string]any  `json:"location"`
	Msg       map[string]any  `json:"msg"`
	// Method is only honoured by the test webhook.
	Method string `json:"method"`
}

func (m *mandrillEvent) normalize(method message.SendMethod, statuses map[string]message.Status) (*Event, error) {
	status, ok := statuses[m.Event]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformed, m.Event)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("%w: missing _id", ErrMalformed)
	}
	ts, err := parseTS(strings.Trim(string(m.TS), `"`))
	if err != nil {
		return nil, err
	}

	extra := map[string]any{
		"user_agent": m.UserAgent,
		"location":   m.Location,
	}
	for _, f := range mandrillMsgFields {
		extra[f] = m.Msg[f]
	}

	return &Event{
		Method:     method,
		ExternalID: cleanID(m.ID),
		Status:     status,
		TS:         ts,
		Extra:      extra,
	}, nil
}

// MandrillSignature computes the mandrill webhook signature: base64
// HMAC-SHA1 over the webhook url followed by each form key and value,
// sorted by key.
func MandrillSignature(key, webhookURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(webhookURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyMandrill checks signature against the expected value.
func VerifyMandrill(key, webhookURL string, form url.Values, signature string) error {
	if signature == "" {
		return ErrInvalidSignature
	}
	expected := MandrillSignature(key, webhookURL, form)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseMandrill normalizes the mandrill_events batch of a verified form.
func ParseMandrill(form url.Values) ([]*Event, error) {
	raw := form.Get(MandrillEventsField)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, MandrillEventsField)
	}

	var batch []mandrillEvent
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := make([]*Event, 0, len(batch))
	for i := range batch {
		e, err := batch[i].normalize(message.MethodEmailMandrill, mandrillStatuses)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ParseTest normalizes a single mandrill-shaped event posted for messages
// faux-sent by a test sink. The method defaults to email-test.
func ParseTest(body []byte) (*Event, error) {
	var m mandrillEvent
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	method := message.MethodEmailTest
	if m.Method != "" {
		parsed, err := message.ParseSendMethod(m.Method)
		if err != nil || (parsed != message.MethodEmailTest && parsed != message.MethodSMSTest) {
			return nil, fmt.Errorf("%w: method %q", ErrMalformed, m.Method)
		}
		method = parsed
	}

	statuses := mandrillStatuses
	if method == message.MethodSMSTest {
		statuses = messageBirdStatuses
	}
	return m.normalize(method, statuses)
}

// ParseMessageBird normalizes a messagebird delivery report (query string).
func ParseMessageBird(q url.Values) (*Event, error) {
	id := q.Get("id")
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	status, ok := messageBirdStatuses[q.Get("status")]
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformed, q.Get("status"))
	}
	ts, err := parseTS(q.Get("statusDatetime"))
	if err != nil {
		return nil, err
	}

	extra := map[string]any{}
	if code := q.Get("statusErrorCode"); code != "" {
		extra["error_code"] = code
	}

	return &Event{
		Method:     message.MethodSMSMessagebird,
		ExternalID: cleanID(id),
		Status:     status,
		TS:         ts,
		Extra:      extra,
	}, nil
}

// parseTS accepts unix seconds (optionally fractional) or RFC 3339. The
// result has the store's microsecond precision.
func parseTS(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMicro(int64(math.Round(f * 1e6))).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrMalformed, s)
	}
	return t.UTC().Truncate(message.TimestampPrecision), nil
}
