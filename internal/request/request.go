// Package request parses HTTP request bodies and query strings.
package request

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/courier/internal/domain/message"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// SchedulerRequest represents the JSON body for scheduler control.
type SchedulerRequest struct {
	// Action controls the scheduler. Allowed values:
	// - "start": start processing batches
	// - "stop":  stop processing batches
	Action string `json:"action"`
}

// SubaccountRequest names the company a provider subaccount belongs to.
type SubaccountRequest struct {
	CompanyCode string `json:"company_code"`
	CompanyName string `json:"company_name,omitempty"`
}

// NumbersRequest is a batch of phone numbers to validate, keyed by the
// caller's own ids.
type NumbersRequest struct {
	Numbers     map[int]string `json:"numbers"`
	CountryCode string         `json:"country_code"`
}

// Normalize fills the default country and checks its shape.
func (r *NumbersRequest) Normalize() error {
	if r.CountryCode == "" {
		r.CountryCode = "GB"
	}
	if len(r.CountryCode) != 2 {
		return fmt.Errorf("country_code must be two letters")
	}
	r.CountryCode = strings.ToUpper(r.CountryCode)
	return nil
}

// Paging reads offset and limit, clamping both to sane values.
func Paging(q url.Values) (offset, limit int) {
	limit = DefaultLimit
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = min(v, MaxLimit)
	}
	return offset, limit
}

// Tags reads repeated or comma separated "tags" arguments.
func Tags(q url.Values) []string {
	var out []string
	for _, v := range q["tags"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// Window reads start and end as RFC 3339 timestamps or dates. The default
// window is the month to date.
func Window(q url.Values, now time.Time) (start, end time.Time, err error) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = now

	if v := q.Get("start"); v != "" {
		if start, err = parseTime(v); err != nil {
			return start, end, fmt.Errorf("start: %w", err)
		}
	}
	if v := q.Get("end"); v != "" {
		if end, err = parseTime(v); err != nil {
			return start, end, fmt.Errorf("end: %w", err)
		}
	}
	if !end.After(start) {
		return start, end, fmt.Errorf("end must be after start")
	}
	return start, end, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", v)
	}
	return t, nil
}

// Statuses reads repeated or comma separated "status" arguments.
func Statuses(q url.Values) ([]message.Status, error) {
	var out []message.Status
	for _, v := range q["status"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			st, err := message.ParseStatus(s)
			if err != nil {
				return nil, err
			}
			out = append(out, st)
		}
	}
	return out, nil
}
