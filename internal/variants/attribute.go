// Package variants derives a product's SKU matrix from its classification
// attributes and keeps per-variant edits stable across regeneration.
package variants

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrInvalidAttribute   = errors.New("invalid attribute")
	ErrEmptyValues        = errors.New("attribute requires at least one value")
	ErrDuplicateAttribute = errors.New("attribute already present")
	ErrTooManyValues      = errors.New("attribute accepts a single value")
)

var (
	valueSeparators = regexp.MustCompile(`[,;.\n]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	nonKeyChars     = regexp.MustCompile(`[^a-z0-9_]`)
)

// Attribute is one classification axis of a product, e.g. Color.
type Attribute struct {
	KeyName       string   `json:"key_name"`
	DisplayName   string   `json:"display_name"`
	Values        []string `json:"values"`
	AllowMultiple bool     `json:"allow_multiple"`
	Custom        bool     `json:"custom,omitempty"`
	AdHocValues   []string `json:"ad_hoc_values,omitempty"`
}

// Active reports whether the attribute contributes to variant generation.
func (a Attribute) Active() bool {
	return len(a.Values) > 0
}

// CatalogEntry is a predefined attribute offered to sellers.
type CatalogEntry struct {
	KeyName       string
	DisplayName   string
	Values        []string
	AllowMultiple bool
	Creatable     bool
}

func (e CatalogEntry) allows(value string) bool {
	for _, allowed := range e.Values {
		if allowed == value {
			return true
		}
	}
	return false
}

// Catalog resolves predefined attributes by key.
type Catalog interface {
	Lookup(keyName string) (CatalogEntry, bool)
}

// UpdateResult describes what UpdateValues did with the submitted values.
type UpdateResult struct {
	Found bool
	// AdHoc holds values missing from the catalog entry's allowed values.
	AdHoc []string
	// Persist is the subset of AdHoc that belongs in the shared catalog
	// because the entry is flagged creatable.
	Persist []string
}

// Store is the ordered attribute set of a single product.
type Store struct {
	attributes []Attribute
}

// NewStore validates and normalizes attributes into a store.
func NewStore(attributes []Attribute) (*Store, error) {
	store := &Store{attributes: make([]Attribute, 0, len(attributes))}
	for _, attribute := range attributes {
		key := strings.TrimSpace(attribute.KeyName)
		if key == "" {
			return nil, ErrInvalidAttribute
		}
		if store.index(key) >= 0 {
			return nil, ErrDuplicateAttribute
		}

		attribute.KeyName = key
		attribute.DisplayName = strings.TrimSpace(attribute.DisplayName)
		if attribute.DisplayName == "" {
			attribute.DisplayName = key
		}
		attribute.Values = NormalizeValues(attribute.Values)
		if !attribute.AllowMultiple && len(attribute.Values) > 1 {
			return nil, ErrTooManyValues
		}
		attribute.AdHocValues = retain(attribute.AdHocValues, attribute.Values)
		store.attributes = append(store.attributes, attribute)
	}
	return store, nil
}

// Attributes returns a copy of every attribute in declaration order.
func (s *Store) Attributes() []Attribute {
	return cloneAttributes(s.attributes)
}

// Get returns the attribute with the given key.
func (s *Store) Get(keyName string) (Attribute, bool) {
	i := s.index(strings.TrimSpace(keyName))
	if i < 0 {
		return Attribute{}, false
	}
	return cloneAttribute(s.attributes[i]), true
}

// Select adds a predefined attribute, without values, when it is not yet present.
// Unknown catalog keys are ignored.
func (s *Store) Select(catalog Catalog, keyName string) bool {
	key := strings.TrimSpace(keyName)
	if catalog == nil || key == "" || s.index(key) >= 0 {
		return false
	}

	entry, ok := catalog.Lookup(key)
	if !ok {
		return false
	}

	s.attributes = append(s.attributes, Attribute{
		KeyName:       entry.KeyName,
		DisplayName:   entry.DisplayName,
		Values:        []string{},
		AllowMultiple: entry.AllowMultiple,
	})
	return true
}

// DefineCustom parses a free-text value block into a new seller-defined attribute.
func (s *Store) DefineCustom(displayName string, allowMultiple bool, rawValues string) (Attribute, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return Attribute{}, ErrInvalidAttribute
	}
	key := KeyFromDisplayName(name)
	if key == "" {
		return Attribute{}, ErrInvalidAttribute
	}
	values := ParseValues(rawValues)
	if len(values) == 0 {
		return Attribute{}, ErrEmptyValues
	}
	if !allowMultiple && len(values) > 1 {
		return Attribute{}, ErrTooManyValues
	}
	if s.index(key) >= 0 {
		return Attribute{}, ErrDuplicateAttribute
	}

	attribute := Attribute{
		KeyName:       key,
		DisplayName:   name,
		Values:        values,
		AllowMultiple: allowMultiple,
		Custom:        true,
	}
	s.attributes = append(s.attributes, attribute)
	return cloneAttribute(attribute), nil
}

// Remove drops an attribute. Missing keys are ignored.
func (s *Store) Remove(keyName string) bool {
	i := s.index(strings.TrimSpace(keyName))
	if i < 0 {
		return false
	}
	s.attributes = append(s.attributes[:i:i], s.attributes[i+1:]...)
	return true
}

// UpdateValues replaces an attribute's value set. Missing keys are ignored.
func (s *Store) UpdateValues(catalog Catalog, keyName string, values []string) (UpdateResult, error) {
	i := s.index(strings.TrimSpace(keyName))
	if i < 0 {
		return UpdateResult{}, nil
	}

	attribute := s.attributes[i]
	normalized := NormalizeValues(values)
	if !attribute.AllowMultiple && len(normalized) > 1 {
		return UpdateResult{}, ErrTooManyValues
	}

	result := UpdateResult{Found: true}
	var tagged []string
	if !attribute.Custom && catalog != nil {
		if entry, ok := catalog.Lookup(attribute.KeyName); ok {
			for _, value := range normalized {
				if entry.allows(value) {
					continue
				}
				result.AdHoc = append(result.AdHoc, value)
				if entry.Creatable {
					result.Persist = append(result.Persist, value)
				} else {
					tagged = append(tagged, value)
				}
			}
		}
	}

	attribute.Values = normalized
	attribute.AdHocValues = tagged
	s.attributes[i] = attribute
	return result, nil
}

func (s *Store) clone() *Store {
	return &Store{attributes: cloneAttributes(s.attributes)}
}

func (s *Store) index(keyName string) int {
	for i, attribute := range s.attributes {
		if attribute.KeyName == keyName {
			return i
		}
	}
	return -1
}

// KeyFromDisplayName derives the machine key of a custom attribute.
func KeyFromDisplayName(displayName string) string {
	key := cases.Lower(language.Und).String(strings.TrimSpace(displayName))
	key = whitespaceRun.ReplaceAllString(key, "_")
	return nonKeyChars.ReplaceAllString(key, "")
}

// ParseValues splits a free-text block on commas, semicolons, periods and newlines.
func ParseValues(raw string) []string {
	return NormalizeValues(valueSeparators.Split(raw, -1))
}

// NormalizeValues trims values and drops empty and repeated entries, keeping order.
// Comparison is case-sensitive.
func NormalizeValues(values []string) []string {
	normalized := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

func retain(values, allowed []string) []string {
	if len(values) == 0 {
		return nil
	}
	kept := make([]string, 0, len(values))
	for _, value := range values {
		for _, candidate := range allowed {
			if candidate == value {
				kept = append(kept, value)
				break
			}
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func cloneAttribute(attribute Attribute) Attribute {
	attribute.Values = append([]string{}, attribute.Values...)
	if attribute.AdHocValues != nil {
		attribute.AdHocValues = append([]string{}, attribute.AdHocValues...)
	}
	return attribute
}

func cloneAttributes(attributes []Attribute) []Attribute {
	cloned := make([]Attribute, 0, len(attributes))
	for _, attribute := range attributes {
		cloned = append(cloned, cloneAttribute(attribute))
	}
	return cloned
}
