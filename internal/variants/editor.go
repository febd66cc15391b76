package variants

import (
	"context"
	"errors"
)

var ErrTooManyVariants = errors.New("variant matrix exceeds the configured limit")

// Editor binds one product's attribute store to its variant list. Every store
// mutation recomputes the variants before returning.
type Editor struct {
	catalog  Catalog
	store    *Store
	variants []Variant
	defaults Defaults
	limit    int
}

// NewEditor rebuilds the variant matrix for the attributes, carrying over the
// overrides found in variants by SKU. A limit of zero or less disables the cap.
func NewEditor(catalog Catalog, attributes []Attribute, variants []Variant, defaults Defaults, limit int) (*Editor, error) {
	store, err := NewStore(attributes)
	if err != nil {
		return nil, err
	}

	editor := &Editor{
		catalog:  catalog,
		store:    store,
		defaults: defaults,
		limit:    limit,
	}
	if err := editor.checkLimit(store); err != nil {
		return nil, err
	}
	editor.variants = generate(store.attributes, variants, defaults)
	return editor, nil
}

func (e *Editor) Attributes() []Attribute { return e.store.Attributes() }

func (e *Editor) Variants() []Variant { return cloneVariants(e.variants) }

func (e *Editor) Defaults() Defaults { return e.defaults }

// SetDefaults changes the values given to variants generated from now on.
func (e *Editor) SetDefaults(defaults Defaults) {
	e.defaults = defaults
}

func (e *Editor) SelectAttribute(keyName string) (bool, error) {
	var added bool
	err := e.mutate(func(store *Store) error {
		added = store.Select(e.catalog, keyName)
		return nil
	})
	return added, err
}

func (e *Editor) DefineCustomAttribute(displayName string, allowMultiple bool, rawValues string) (Attribute, error) {
	var attribute Attribute
	err := e.mutate(func(store *Store) error {
		var err error
		attribute, err = store.DefineCustom(displayName, allowMultiple, rawValues)
		return err
	})
	return attribute, err
}

func (e *Editor) RemoveAttribute(keyName string) (bool, error) {
	var removed bool
	err := e.mutate(func(store *Store) error {
		removed = store.Remove(keyName)
		return nil
	})
	return removed, err
}

func (e *Editor) UpdateValues(keyName string, values []string) (UpdateResult, error) {
	var result UpdateResult
	err := e.mutate(func(store *Store) error {
		var err error
		result, err = store.UpdateValues(e.catalog, keyName, values)
		return err
	})
	return result, err
}

func (e *Editor) ApplyToAll(ctx context.Context, edit BulkEdit, uploader ImageUploader) error {
	updated, err := ApplyToAll(ctx, e.variants, edit, uploader)
	if err != nil {
		return err
	}
	e.variants = updated
	return nil
}

func (e *Editor) ApplyToGroup(ctx context.Context, selection Selection, edit BulkEdit, uploader ImageUploader) error {
	updated, err := ApplyToGroup(ctx, e.variants, selection, edit, uploader)
	if err != nil {
		return err
	}
	e.variants = updated
	return nil
}

func (e *Editor) UpdateField(skuCode string, field Field, value string) (bool, error) {
	updated, found, err := UpdateField(e.variants, skuCode, field, value)
	if err != nil || !found {
		return false, err
	}
	e.variants = updated
	return true, nil
}

// Submission renders the variant rows for the product payload.
func (e *Editor) Submission() []SubmissionRecord {
	return Submission(e.store.attributes, e.variants)
}

// mutate runs fn against a copy of the store and commits it only when fn
// succeeds and the resulting matrix stays within the limit.
func (e *Editor) mutate(fn func(store *Store) error) error {
	draft := e.store.clone()
	if err := fn(draft); err != nil {
		return err
	}
	if err := e.checkLimit(draft); err != nil {
		return err
	}
	e.store = draft
	e.variants, _ = Recompute(draft.attributes, e.variants, e.defaults)
	return nil
}

func (e *Editor) checkLimit(store *Store) error {
	if e.limit > 0 && CombinationCount(store.attributes) > e.limit {
		return ErrTooManyVariants
	}
	return nil
}
