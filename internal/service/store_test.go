package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oggyb/courier/internal/domain/message"
)

// memStore is an in-memory message store with the same idempotency and
// ordering rules as the gorm repository.
type memStore struct {
	mu        sync.Mutex
	companies map[string]*message.Company
	groups    []*message.Group
	messages  []*message.Message
	events    []*message.Event
	links     []*message.Link
	pruned    time.Time
}

func newMemStore() *memStore {
	return &memStore{companies: map[string]*message.Company{}}
}

func (s *memStore) CompanyID(_ context.Context, code string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.companies[code]; ok {
		return c.ID, nil
	}
	c := &message.Company{ID: uint(len(s.companies) + 1), Code: code}
	s.companies[code] = c
	return c.ID, nil
}

func (s *memStore) FindCompany(_ context.Context, code string) (*message.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[code]
	if !ok {
		return nil, message.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// DeleteCompanies drops companies by code prefix and everything below them,
// like the ON DELETE CASCADE chain in postgres.
func (s *memStore) DeleteCompanies(_ context.Context, codePrefix string) (*message.CompanyPurge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purge := &message.CompanyPurge{}
	gone := map[uint]bool{}
	for code, c := range s.companies {
		if strings.HasPrefix(code, codePrefix) {
			gone[c.ID] = true
			delete(s.companies, code)
			purge.Companies++
		}
	}

	groups := s.groups[:0]
	for _, g := range s.groups {
		if gone[g.CompanyID] {
			purge.Groups++
			continue
		}
		groups = append(groups, g)
	}
	s.groups = groups

	msgs := s.messages[:0]
	for _, m := range s.messages {
		if gone[m.CompanyID] {
			purge.Messages++
			continue
		}
		msgs = append(msgs, m)
	}
	s.messages = msgs
	return purge, nil
}

func (s *memStore) CreateGroup(_ context.Context, g *message.Group) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.UUID == g.UUID {
			*g = *existing
			return false, nil
		}
	}
	g.ID = uint(len(s.groups) + 1)
	cp := *g
	s.groups = append(s.groups, &cp)
	return true, nil
}

func (s *memStore) GroupByUUID(_ context.Context, id uuid.UUID) (*message.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.UUID == id {
			cp := *g
			return &cp, nil
		}
	}
	return nil, message.ErrNotFound
}

func (s *memStore) group(id uint) *message.Group {
	for _, g := range s.groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func (s *memStore) SetGroupState(_ context.Context, groupID uint, state message.GroupState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.group(groupID); g != nil {
		g.State = state
	}
	return nil
}

func (s *memStore) SetGroupAdmitted(_ context.Context, groupID uint, admitted int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.group(groupID); g != nil {
		g.AdmittedCount = admitted
	}
	return nil
}

func (s *memStore) MessageExists(_ context.Context, groupID uint, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.GroupID == groupID && m.RecipientIndex == index {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CreateMessage(_ context.Context, m *message.Message, links []message.Link) (bool, error) {
	if err := storeCheck(m); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages {
		if existing.GroupID == m.GroupID && existing.RecipientIndex == m.RecipientIndex {
			return false, nil
		}
	}
	m.ID = uint(len(s.messages) + 1)
	cp := *m
	s.messages = append(s.messages, &cp)
	for i := range links {
		links[i].ID = uint(len(s.links) + 1)
		links[i].MessageID = m.ID
		l := links[i]
		s.links = append(s.links, &l)
	}
	return true, nil
}

func (s *memStore) apply(m *message.Message, e *message.Event) bool {
	e.ID = uint(len(s.events) + 1)
	e.MessageID = m.ID
	cp := *e
	s.events = append(s.events, &cp)
	return m.Apply(e)
}

func (s *memStore) ApplyEvent(_ context.Context, method message.SendMethod, externalID string, e *message.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Method == method && m.ExternalID == externalID {
			return s.apply(m, e), nil
		}
	}
	return false, message.ErrNotFound
}

func (s *memStore) ApplyEventToMessage(_ context.Context, messageID uint, e *message.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == messageID {
			return s.apply(m, e), nil
		}
	}
	return false, message.ErrNotFound
}

func (s *memStore) LinkByToken(_ context.Context, token string) (*message.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, message.ErrNotFound
}

func (s *memStore) DeleteGroupsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned = cutoff
	kept := s.groups[:0]
	var n int64
	for _, g := range s.groups {
		if g.CreatedTS.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, g)
	}
	s.groups = kept
	return n, nil
}

func (s *memStore) Search(_ context.Context, f message.SearchFilter) ([]*message.Message, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*message.Message
	for _, m := range s.messages {
		if m.CompanyID != f.CompanyID || m.Method != f.Method || !containsAll(m.Tags, f.Tags) {
			continue
		}
		if f.Query != "" && !strings.Contains(m.Subject+" "+m.Body+" "+m.ToAddress, f.Query) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	total := int64(len(out))
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (s *memStore) MessageByID(_ context.Context, companyID uint, method message.SendMethod, id uint) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id && m.CompanyID == companyID && m.Method == method {
			cp := *m
			return &cp, nil
		}
	}
	return nil, message.ErrNotFound
}

func (s *memStore) Events(_ context.Context, messageID uint, limit int) ([]*message.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*message.Event
	for _, e := range s.events {
		if e.MessageID == messageID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.After(out[j].TS) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) counts(keep func(*message.Message) bool) []message.StatusCount {
	byStatus := map[message.Status]*message.StatusCount{}
	for _, m := range s.messages {
		if !keep(m) {
			continue
		}
		c, ok := byStatus[m.Status]
		if !ok {
			c = &message.StatusCount{Status: m.Status}
			byStatus[m.Status] = c
		}
		c.Count++
		if m.Cost != nil {
			c.Cost += *m.Cost
		}
	}
	var out []message.StatusCount
	for _, st := range message.Statuses {
		if c, ok := byStatus[st]; ok {
			out = append(out, *c)
		}
	}
	return out
}

func (s *memStore) GroupStatusCounts(_ context.Context, groupID uint) ([]message.StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts(func(m *message.Message) bool { return m.GroupID == groupID }), nil
}

func (s *memStore) Aggregate(_ context.Context, f message.AggregateFilter) (*message.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &message.Aggregate{ByStatus: s.counts(func(m *message.Message) bool {
		return m.CompanyID == f.CompanyID && m.Method == f.Method &&
			!m.SendTS.Before(f.Start) && m.SendTS.Before(f.End)
	})}
	for _, c := range out.ByStatus {
		out.Total += c.Count
		out.TotalCost += c.Cost
	}
	return out, nil
}

func (s *memStore) Spend(_ context.Context, companyID uint, method message.SendMethod, start, end time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var spend float64
	for _, m := range s.messages {
		if m.CompanyID == companyID && m.Method == method && m.Cost != nil &&
			!m.SendTS.Before(start) && m.SendTS.Before(end) {
			spend += *m.Cost
		}
	}
	return spend, nil
}

// byStatus counts the stored messages of a group per status.
func (s *memStore) byStatus(groupID uint) map[message.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[message.Status]int{}
	for _, m := range s.messages {
		if m.GroupID == groupID {
			out[m.Status]++
		}
	}
	return out
}

func (s *memStore) messagesOf(groupID uint) []*message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*message.Message
	for _, m := range s.messages {
		if m.GroupID == groupID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientIndex < out[j].RecipientIndex })
	return out
}

func (s *memStore) eventsOf(messageID uint) []*message.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*message.Event
	for _, e := range s.events {
		if e.MessageID == messageID {
			out = append(out, e)
		}
	}
	return out
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

var (
	_ message.GroupRepository   = (*memStore)(nil)
	_ message.MessageRepository = (*memStore)(nil)
	_ message.QueryRepository   = (*memStore)(nil)
)

// storeCheck refuses what postgres refuses: over-long varchar values and
// text that is not valid UTF-8 or holds NUL bytes.
func storeCheck(m *message.Message) error {
	bounded := append([]string{m.ExternalID, m.ToFirstName, m.ToLastName, m.ToAddress, m.ToUserLink}, m.Tags...)
	bounded = append(bounded, m.Attachments...)
	for _, v := range bounded {
		if utf8.RuneCountInString(v) > message.MaxFieldLength {
			return fmt.Errorf("%w: value too long for type character varying(255) (22001)", message.ErrInvalidData)
		}
	}
	for _, v := range append(bounded, m.Subject, m.Body) {
		if !message.StorableText(v) {
			return fmt.Errorf("%w: invalid byte sequence for encoding \"UTF8\" (22021)", message.ErrInvalidData)
		}
	}
	return nil
}
