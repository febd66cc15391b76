package variants

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidBulkEdit     = errors.New("invalid bulk edit")
	ErrImageUpload         = errors.New("image upload failed")
	ErrUploaderUnavailable = errors.New("image uploader unavailable")
)

// ImageUpload is an image file waiting to be stored.
type ImageUpload struct {
	Body        io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// ImageUploader stores an image and returns its public URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, image ImageUpload) (string, error)
}

// BulkEdit is one price/quantity/image update. Nil or empty fields are left
// untouched on the affected variants.
type BulkEdit struct {
	PriceCents *int64
	Quantity   *int32
	ImageURL   string
	Image      *ImageUpload
}

// Empty reports whether the edit would change nothing.
func (e BulkEdit) Empty() bool {
	return e.PriceCents == nil && e.Quantity == nil && strings.TrimSpace(e.ImageURL) == "" && e.Image == nil
}

// Validate rejects negative amounts.
func (e BulkEdit) Validate() error {
	if e.PriceCents != nil && *e.PriceCents < 0 {
		return fmt.Errorf("%w: price must be zero or positive", ErrInvalidBulkEdit)
	}
	if e.Quantity != nil && *e.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be zero or positive", ErrInvalidBulkEdit)
	}
	return nil
}

// Resolve uploads the pending image, if any, and returns an edit carrying its URL.
func (e BulkEdit) Resolve(ctx context.Context, uploader ImageUploader) (BulkEdit, error) {
	if err := e.Validate(); err != nil {
		return BulkEdit{}, err
	}
	if e.Image == nil {
		return e, nil
	}
	if uploader == nil {
		return BulkEdit{}, ErrUploaderUnavailable
	}

	url, err := uploader.UploadImage(ctx, *e.Image)
	if err != nil {
		return BulkEdit{}, fmt.Errorf("%w: %w", ErrImageUpload, err)
	}
	e.ImageURL = url
	e.Image = nil
	return e, nil
}

// ApplyToAll applies the edit to every variant.
func ApplyToAll(ctx context.Context, variants []Variant, edit BulkEdit, uploader ImageUploader) ([]Variant, error) {
	return applyMatching(ctx, variants, func(Variant) bool { return true }, edit, uploader)
}

// ApplyToGroup applies the edit to the variants generated from the given pair.
// When nothing matches, the list is returned unchanged and no upload happens.
func ApplyToGroup(ctx context.Context, variants []Variant, selection Selection, edit BulkEdit, uploader ImageUploader) ([]Variant, error) {
	return applyMatching(ctx, variants, func(v Variant) bool { return v.Has(selection) }, edit, uploader)
}

// MatchCount returns how many variants carry the pair.
func MatchCount(variants []Variant, selection Selection) int {
	count := 0
	for _, variant := range variants {
		if variant.Has(selection) {
			count++
		}
	}
	return count
}

func applyMatching(ctx context.Context, variants []Variant, match func(Variant) bool, edit BulkEdit, uploader ImageUploader) ([]Variant, error) {
	if err := edit.Validate(); err != nil {
		return variants, err
	}

	matched := false
	for _, variant := range variants {
		if match(variant) {
			matched = true
			break
		}
	}
	if !matched || edit.Empty() {
		return variants, nil
	}

	resolved, err := edit.Resolve(ctx, uploader)
	if err != nil {
		return variants, err
	}

	updated := cloneVariants(variants)
	for i := range updated {
		if !match(updated[i]) {
			continue
		}
		if resolved.PriceCents != nil {
			updated[i].PriceCents = *resolved.PriceCents
		}
		if resolved.Quantity != nil {
			updated[i].Quantity = *resolved.Quantity
		}
		if url := strings.TrimSpace(resolved.ImageURL); url != "" {
			updated[i].ImageURL = url
		}
	}
	return updated, nil
}
