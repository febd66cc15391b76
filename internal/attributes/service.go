// Package attributes holds the shared catalog of predefined product attributes
// that sellers pick from in the variant editor.
package attributes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/yxshee/marketplace-storefront/internal/variants"
)

var (
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrInvalidDefinition = errors.New("invalid attribute definition")
	ErrNotCreatable      = errors.New("attribute does not accept new values")
	ErrPersistence       = errors.New("attribute catalog persistence failed")
)

// Definition is one predefined attribute of the shared catalog.
type Definition struct {
	KeyName       string    `json:"key_name"`
	DisplayName   string    `json:"display_name"`
	Values        []string  `json:"values"`
	AllowMultiple bool      `json:"allow_multiple"`
	Creatable     bool      `json:"creatable"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (d Definition) entry() variants.CatalogEntry {
	return variants.CatalogEntry{
		KeyName:       d.KeyName,
		DisplayName:   d.DisplayName,
		Values:        append([]string{}, d.Values...),
		AllowMultiple: d.AllowMultiple,
		Creatable:     d.Creatable,
	}
}

type UpsertInput struct {
	KeyName       string
	DisplayName   string
	Values        []string
	AllowMultiple bool
	Creatable     bool
}

// Service is the in-memory attribute catalog, written through to Redis when a
// client is configured.
type Service struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	store       *RedisStore
	logger      *logrus.Entry
	now         func() time.Time
}

var _ variants.Catalog = (*Service)(nil)

func NewService(store *RedisStore, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		definitions: make(map[string]Definition),
		store:       store,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Warm replaces the in-memory catalog with the persisted one.
func (s *Service) Warm(ctx context.Context) error {
	definitions, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !s.store.Enabled() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions = make(map[string]Definition, len(definitions))
	for _, definition := range definitions {
		s.definitions[definition.KeyName] = definition
	}
	s.logger.WithField("count", len(definitions)).Info("attribute catalog loaded")
	return nil
}

func (s *Service) Upsert(ctx context.Context, input UpsertInput) (Definition, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	keyName := strings.TrimSpace(input.KeyName)
	if keyName == "" {
		keyName = variants.KeyFromDisplayName(displayName)
	} else {
		keyName = variants.KeyFromDisplayName(keyName)
	}
	if displayName == "" || keyName == "" {
		return Definition{}, ErrInvalidDefinition
	}

	definition := Definition{
		KeyName:       keyName,
		DisplayName:   displayName,
		Values:        variants.NormalizeValues(input.Values),
		AllowMultiple: input.AllowMultiple,
		Creatable:     input.Creatable,
		UpdatedAt:     s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(ctx, definition); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.definitions[keyName] = definition
	return cloneDefinition(definition), nil
}

func (s *Service) Delete(ctx context.Context, keyName string) error {
	key := strings.TrimSpace(keyName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.definitions[key]; !exists {
		return ErrAttributeNotFound
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	delete(s.definitions, key)
	return nil
}

// AddValues appends values to a creatable entry, skipping ones already present.
func (s *Service) AddValues(ctx context.Context, keyName string, values []string) (Definition, error) {
	key := strings.TrimSpace(keyName)

	s.mu.Lock()
	defer s.mu.Unlock()
	definition, exists := s.definitions[key]
	if !exists {
		return Definition{}, ErrAttributeNotFound
	}
	if !definition.Creatable {
		return Definition{}, ErrNotCreatable
	}

	merged := variants.NormalizeValues(append(append([]string{}, definition.Values...), values...))
	if len(merged) == len(definition.Values) {
		return cloneDefinition(definition), nil
	}

	definition.Values = merged
	definition.UpdatedAt = s.now()
	if err := s.store.Save(ctx, definition); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.definitions[key] = definition
	s.logger.WithFields(logrus.Fields{"key_name": key, "values": len(merged)}).Debug("attribute values added")
	return cloneDefinition(definition), nil
}

func (s *Service) Get(keyName string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	definition, exists := s.definitions[strings.TrimSpace(keyName)]
	if !exists {
		return Definition{}, false
	}
	return cloneDefinition(definition), true
}

// Lookup exposes a definition to the variant editor.
func (s *Service) Lookup(keyName string) (variants.CatalogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	definition, exists := s.definitions[strings.TrimSpace(keyName)]
	if !exists {
		return variants.CatalogEntry{}, false
	}
	return definition.entry(), true
}

// List returns every definition ordered by display name, compared loosely so
// case and accents do not split neighbours.
func (s *Service) List() []Definition {
	s.mu.RLock()
	items := make([]Definition, 0, len(s.definitions))
	for _, definition := range s.definitions {
		items = append(items, cloneDefinition(definition))
	}
	s.mu.RUnlock()

	collator := collate.New(language.Und, collate.Loose)
	sort.SliceStable(items, func(i, j int) bool {
		if order := collator.CompareString(items[i].DisplayName, items[j].DisplayName); order != 0 {
			return order < 0
		}
		return items[i].KeyName < items[j].KeyName
	})
	return items
}

func cloneDefinition(definition Definition) Definition {
	definition.Values = append([]string{}, definition.Values...)
	return definition
}
