package auditlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yxshee/marketplace-storefront/internal/platform/identifier"
)

var ErrInvalidAuditLog = errors.New("invalid audit log input")

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Entry is one recorded admin or vendor action.
type Entry struct {
	ID            string          `json:"id"`
	ActorType     string          `json:"actor_type"`
	ActorID       string          `json:"actor_id"`
	ActorRole     string          `json:"actor_role,omitempty"`
	Action        string          `json:"action"`
	TargetType    string          `json:"target_type"`
	TargetID      string          `json:"target_id"`
	BeforeJSON    json.RawMessage `json:"before_json,omitempty"`
	AfterJSON     json.RawMessage `json:"after_json,omitempty"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	MetadataJSON  json.RawMessage `json:"metadata_json,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RecordInput struct {
	ActorType  string
	ActorID    string
	ActorRole  string
	Action     string
	TargetType string
	TargetID   string
	Before     interface{}
	After      interface{}
	Metadata   interface{}
}

type ListInput struct {
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Since      time.Time
	Limit      int
	Offset     int
}

type ListResult struct {
	Items []Entry `json:"items"`
	Total int     `json:"total"`
}

// Service is an append-only in-memory log. Entries are never edited; once
// the retention limit is reached the oldest entries are dropped.
type Service struct {
	mu        sync.RWMutex
	entries   []Entry
	retention int
	now       func() time.Time
}

type Option func(*Service)

// WithRetention caps how many entries are kept. Non-positive values keep
// everything.
func WithRetention(maxEntries int) Option {
	return func(s *Service) { s.retention = maxEntries }
}

func NewService(opts ...Option) *Service {
	s := &Service{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Record(input RecordInput) (Entry, error) {
	entry := Entry{
		ActorRole: strings.ToLower(strings.TrimSpace(input.ActorRole)),
	}
	for _, field := range []struct {
		dst   *string
		raw   string
		lower bool
	}{
		{&entry.ActorType, input.ActorType, true},
		{&entry.ActorID, input.ActorID, false},
		{&entry.Action, input.Action, true},
		{&entry.TargetType, input.TargetType, true},
		{&entry.TargetID, input.TargetID, false},
	} {
		value, err := normalizeRequired(field.raw, field.lower)
		if err != nil {
			return Entry{}, err
		}
		*field.dst = value
	}

	var err error
	for _, payload := range []struct {
		dst   *json.RawMessage
		value interface{}
	}{
		{&entry.BeforeJSON, input.Before},
		{&entry.AfterJSON, input.After},
		{&entry.MetadataJSON, input.Metadata},
	} {
		if *payload.dst, err = normalizeOptionalJSON(payload.value); err != nil {
			return Entry{}, err
		}
	}
	entry.ChangedFields = ChangedFields(entry.BeforeJSON, entry.AfterJSON)
	entry.ID = identifier.New("aud")

	s.mu.Lock()
	defer s.mu.Unlock()
	entry.CreatedAt = s.now()
	s.entries = append(s.entries, entry)
	if s.retention > 0 && len(s.entries) > s.retention {
		s.entries = append([]Entry(nil), s.entries[len(s.entries)-s.retention:]...)
	}
	return entry, nil
}

func (in ListInput) normalized() ListInput {
	in.ActorType = strings.ToLower(strings.TrimSpace(in.ActorType))
	in.ActorID = strings.TrimSpace(in.ActorID)
	in.Action = strings.ToLower(strings.TrimSpace(in.Action))
	in.TargetType = strings.ToLower(strings.TrimSpace(in.TargetType))
	in.TargetID = strings.TrimSpace(in.TargetID)
	switch {
	case in.Limit <= 0:
		in.Limit = defaultPageSize
	case in.Limit > maxPageSize:
		in.Limit = maxPageSize
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	return in
}

func (in ListInput) matches(entry Entry) bool {
	return (in.ActorType == "" || entry.ActorType == in.ActorType) &&
		(in.ActorID == "" || entry.ActorID == in.ActorID) &&
		(in.Action == "" || entry.Action == in.Action) &&
		(in.TargetType == "" || entry.TargetType == in.TargetType) &&
		(in.TargetID == "" || entry.TargetID == in.TargetID) &&
		(in.Since.IsZero() || !entry.CreatedAt.Before(in.Since))
}

// List returns matching entries newest first.
func (s *Service) List(input ListInput) ListResult {
	filter := input.normalized()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if filter.matches(s.entries[i]) {
			matches = append(matches, s.entries[i])
		}
	}

	total := len(matches)
	if filter.Offset >= total {
		return ListResult{Items: []Entry{}, Total: total}
	}
	end := min(filter.Offset+filter.Limit, total)
	return ListResult{Items: matches[filter.Offset:end], Total: total}
}

// ChangedFields lists the top-level keys whose values differ between two JSON
// objects, sorted. Non-object payloads yield nil.
func ChangedFields(before, after json.RawMessage) []string {
	if len(before) == 0 && len(after) == 0 {
		return nil
	}

	var beforeFields, afterFields map[string]json.RawMessage
	if len(before) > 0 && json.Unmarshal(before, &beforeFields) != nil {
		return nil
	}
	if len(after) > 0 && json.Unmarshal(after, &afterFields) != nil {
		return nil
	}

	changed := make([]string, 0)
	for key, value := range afterFields {
		if previous, ok := beforeFields[key]; !ok || !bytes.Equal(previous, value) {
			changed = append(changed, key)
		}
	}
	for key := range beforeFields {
		if _, ok := afterFields[key]; !ok {
			changed = append(changed, key)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	sort.Strings(changed)
	return changed
}

func normalizeRequired(raw string, forceLower bool) (string, error) {
	value := strings.TrimSpace(raw)
	if forceLower {
		value = strings.ToLower(value)
	}
	if value == "" {
		return "", ErrInvalidAuditLog
	}
	return value, nil
}

// normalizeOptionalJSON re-encodes payloads so object keys are sorted, which
// keeps ChangedFields byte comparisons stable.
func normalizeOptionalJSON(value interface{}) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}

	raw, isRaw := value.(json.RawMessage)
	if !isRaw {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, ErrInvalidAuditLog
		}
		raw = encoded
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, ErrInvalidAuditLog
	}
	if decoded == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return nil, ErrInvalidAuditLog
	}
	return json.RawMessage(encoded), nil
}
