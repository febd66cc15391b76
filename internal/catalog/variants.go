package catalog

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/yxshee/marketplace-storefront/internal/events"
	"github.com/yxshee/marketplace-storefront/internal/variants"
)

// SelectAttribute activates a shared catalog attribute on the product. The
// returned flag is false when the key is unknown or already active.
func (s *Service) SelectAttribute(ctx context.Context, productID, ownerUserID, vendorID, keyName string) (Product, bool, error) {
	var added bool
	product, err := s.editAttributes(ctx, productID, ownerUserID, vendorID, func(editor *variants.Editor) error {
		var err error
		added, err = editor.SelectAttribute(keyName)
		return err
	})
	return product, added, err
}

func (s *Service) DefineCustomAttribute(ctx context.Context, productID, ownerUserID, vendorID, displayName string, allowMultiple bool, rawValues string) (Product, variants.Attribute, error) {
	var attribute variants.Attribute
	product, err := s.editAttributes(ctx, productID, ownerUserID, vendorID, func(editor *variants.Editor) error {
		var err error
		attribute, err = editor.DefineCustomAttribute(displayName, allowMultiple, rawValues)
		return err
	})
	return product, attribute, err
}

func (s *Service) RemoveAttribute(ctx context.Context, productID, ownerUserID, vendorID, keyName string) (Product, bool, error) {
	var removed bool
	product, err := s.editAttributes(ctx, productID, ownerUserID, vendorID, func(editor *variants.Editor) error {
		var err error
		removed, err = editor.RemoveAttribute(keyName)
		return err
	})
	return product, removed, err
}

// UpdateAttributeValues replaces the chosen values of an active attribute.
// New values of creatable catalog entries are written back to the catalog.
func (s *Service) UpdateAttributeValues(ctx context.Context, productID, ownerUserID, vendorID, keyName string, values []string) (Product, variants.UpdateResult, error) {
	var result variants.UpdateResult
	product, err := s.editAttributes(ctx, productID, ownerUserID, vendorID, func(editor *variants.Editor) error {
		var err error
		result, err = editor.UpdateValues(keyName, values)
		return err
	})
	if err != nil {
		return Product{}, variants.UpdateResult{}, err
	}

	if len(result.Persist) > 0 && s.attributes != nil {
		if _, err := s.attributes.AddValues(ctx, keyName, result.Persist); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"product_id": productID,
				"key_name":   keyName,
			}).Warn("attribute values not added to catalog")
		}
	}
	return product, result, nil
}

// ApplyBulkEdit applies the edit to every variant, or only to the variants
// carrying scope when it is set. A pending image is uploaded before the product
// is locked; a failed upload leaves the product untouched. A scope matching no
// variant returns the product as is without uploading.
func (s *Service) ApplyBulkEdit(ctx context.Context, productID, ownerUserID, vendorID string, scope *variants.Selection, edit variants.BulkEdit, uploader variants.ImageUploader) (Product, error) {
	product, err := s.GetOwnedProduct(productID, ownerUserID, vendorID)
	if err != nil {
		return Product{}, err
	}
	if err := edit.Validate(); err != nil {
		return Product{}, err
	}
	if scope != nil && variants.MatchCount(product.Variants, *scope) == 0 {
		return product, nil
	}
	resolved, err := edit.Resolve(ctx, uploader)
	if err != nil {
		return Product{}, err
	}

	return s.EditVariants(productID, ownerUserID, vendorID, func(current []variants.Variant) ([]variants.Variant, error) {
		if scope != nil {
			return variants.ApplyToGroup(ctx, current, *scope, resolved, nil)
		}
		return variants.ApplyToAll(ctx, current, resolved, nil)
	})
}

// UpdateVariantField sets one field of the variant with the given SKU. An
// unknown SKU returns the product unchanged with found set to false.
func (s *Service) UpdateVariantField(productID, ownerUserID, vendorID, skuCode string, field variants.Field, value string) (Product, bool, error) {
	var found bool
	product, err := s.EditVariants(productID, ownerUserID, vendorID, func(current []variants.Variant) ([]variants.Variant, error) {
		updated, ok, err := variants.UpdateField(current, skuCode, field, value)
		found = ok
		return updated, err
	})
	return product, found, err
}

// EditVariants runs fn on a copy of the product's variants under the catalog
// lock and stores the result. fn must keep one row per combination; a result
// with rows added, dropped or reordered is discarded.
func (s *Service) EditVariants(productID, ownerUserID, vendorID string, fn func(current []variants.Variant) ([]variants.Variant, error)) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.ownedLocked(productID, ownerUserID, vendorID)
	if err != nil {
		return Product{}, err
	}

	current := append([]variants.Variant(nil), product.Variants...)
	updated, err := fn(current)
	if err != nil {
		return Product{}, err
	}
	if !sameCombinations(product.Variants, updated) {
		return product, nil
	}

	if pricingChanged(product.Variants, updated) {
		returnToDraft(&product)
	}
	product.Variants = updated
	refreshSummary(&product)
	product.UpdatedAt = s.now()
	s.byID[productID] = product
	return product, nil
}

// editAttributes rebuilds the product's editor, applies fn and stores the new
// attribute list and matrix. A regenerated SKU layout publishes an event.
func (s *Service) editAttributes(ctx context.Context, productID, ownerUserID, vendorID string, fn func(editor *variants.Editor) error) (Product, error) {
	s.mu.Lock()
	product, err := s.ownedLocked(productID, ownerUserID, vendorID)
	if err != nil {
		s.mu.Unlock()
		return Product{}, err
	}

	editor, err := variants.NewEditor(s.catalog(), product.Attributes, product.Variants, product.defaults(), s.variantLimit)
	if err != nil {
		s.mu.Unlock()
		return Product{}, err
	}
	if err := fn(editor); err != nil {
		s.mu.Unlock()
		return Product{}, err
	}

	previous := product.Variants
	product.Attributes = editor.Attributes()
	product.Variants = editor.Variants()
	regenerated := !variants.SameLayout(previous, product.Variants)
	if regenerated {
		returnToDraft(&product)
	}
	refreshSummary(&product)
	product.UpdatedAt = s.now()
	s.byID[productID] = product
	s.mu.Unlock()

	if regenerated {
		s.publish(ctx, events.New(events.ProductVariantsRegenerated, product.ID, product.VendorID, ownerUserID, map[string]any{
			"previous_count": len(previous),
			"variant_count":  len(product.Variants),
		}))
	}
	return product, nil
}

// pricingChanged reports edits other than stock counts.
func pricingChanged(before, after []variants.Variant) bool {
	for i := range before {
		left, right := before[i], after[i]
		left.Quantity, right.Quantity = 0, 0
		if !reflect.DeepEqual(left, right) {
			return true
		}
	}
	return false
}

func sameCombinations(before, after []variants.Variant) bool {
	if len(before) != len(after) {
		return false
	}
	for i := range before {
		if !reflect.DeepEqual(before[i].Selections, after[i].Selections) {
			return false
		}
	}
	return true
}
