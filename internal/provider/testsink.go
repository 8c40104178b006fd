package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TestSMSCost is the emulated per-part price of the SMS test sink.
const TestSMSCost = 0.012

// TestSink accepts every message without contacting a provider. When dir is
// set each message is written to dir/{id}.txt.
type TestSink struct {
	dir string
	now func() time.Time
	log zerolog.Logger
}

func NewTestSink(dir string, log zerolog.Logger) *TestSink {
	return &TestSink{dir: dir, now: time.Now, log: log}
}

func (s *TestSink) Send(ctx context.Context, env *Envelope) (*Receipt, error) {
	if env.Method.IsSMS() {
		return s.sendSMS(env)
	}
	return s.sendEmail(env)
}

func (s *TestSink) sendEmail(env *Envelope) (*Receipt, error) {
	id := StableID(env.GroupUUID, env.ToAddress)

	names := make([]string, len(env.Attachments))
	for i, a := range env.Attachments {
		preview := string(a.Content)
		if len(preview) > 40 {
			preview = preview[:40]
		}
		names[i] = a.Name + ":" + preview
	}
	data, err := json.MarshalIndent(map[string]any{
		"from_email":   env.FromAddress,
		"from_name":    env.FromName,
		"group_uuid":   env.GroupUUID,
		"headers":      env.Headers,
		"to_address":   env.ToAddress,
		"to_name":      env.ToName,
		"to_user_link": env.ToUserLink,
		"tags":         env.Tags,
		"important":    env.Important,
		"attachments":  names,
	}, "", "  ")
	if err != nil {
		return nil, &DispatchError{Method: env.Method, Err: err}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "to: %s\n", env.ToAddress)
	fmt.Fprintf(&b, "msg id: %s\n", id)
	fmt.Fprintf(&b, "ts: %s\n", s.now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "subject: %s\n", env.Subject)
	fmt.Fprintf(&b, "data: %s\n", data)
	fmt.Fprintf(&b, "content:\n%s\n", env.HTML)

	if err := s.write(id, b.String()); err != nil {
		return nil, &DispatchError{Method: env.Method, Err: err}
	}
	return &Receipt{ExternalID: id}, nil
}

func (s *TestSink) sendSMS(env *Envelope) (*Receipt, error) {
	number := env.ToAddress
	if env.Number != nil {
		number = env.Number.E164
	}
	id := StableID(env.GroupUUID, strings.TrimPrefix(number, "+"))
	cost := TestSMSCost * float64(max(env.Length.Parts, 1))

	var b strings.Builder
	fmt.Fprintf(&b, "to: %s\n", number)
	fmt.Fprintf(&b, "msg id: %s\n", id)
	fmt.Fprintf(&b, "ts: %s\n", s.now().UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "tags: %v\n", env.Tags)
	fmt.Fprintf(&b, "company_code: %s\n", env.CompanyCode)
	fmt.Fprintf(&b, "from_name: %s\n", env.FromName)
	fmt.Fprintf(&b, "cost: %g\n", cost)
	fmt.Fprintf(&b, "length: %d chars, %d parts\n", env.Length.Length, env.Length.Parts)
	fmt.Fprintf(&b, "message:\n%s\n", env.Text)

	if err := s.write(id, b.String()); err != nil {
		return nil, &DispatchError{Method: env.Method, Err: err}
	}
	return &Receipt{ExternalID: id, Cost: costOf(cost)}, nil
}

func (s *TestSink) write(id, output string) error {
	if s.dir == "" {
		s.log.Info().Str("id", id).Msg("test message accepted")
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.dir, id+".txt")
	s.log.Info().Str("id", id).Str("path", path).Msg("test message saved")
	return os.WriteFile(path, []byte(output), 0o644)
}

var _ Provider = (*TestSink)(nil)
