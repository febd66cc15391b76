package variants

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Field names a single editable column of a variant row.
type Field string

const (
	FieldPrice    Field = "price"
	FieldQuantity Field = "quantity"
	FieldSKU      Field = "sku"
	FieldImageURL Field = "image_url"
)

var (
	ErrUnknownField      = errors.New("unknown variant field")
	ErrInvalidFieldValue = errors.New("invalid variant field value")
)

// ParseField maps a form column name onto a Field.
func ParseField(raw string) (Field, error) {
	switch field := Field(strings.ToLower(strings.TrimSpace(raw))); field {
	case FieldPrice, FieldQuantity, FieldSKU, FieldImageURL:
		return field, nil
	case "image", "imageurl":
		return FieldImageURL, nil
	default:
		return "", ErrUnknownField
	}
}

// UpdateField overwrites one field of the variant with the given SKU. An unknown
// SKU leaves the list untouched and reports false without an error.
func UpdateField(variants []Variant, skuCode string, field Field, value string) ([]Variant, bool, error) {
	value = strings.TrimSpace(value)

	var (
		price    int64
		quantity int64
		err      error
	)
	switch field {
	case FieldPrice:
		price, err = strconv.ParseInt(value, 10, 64)
		if err != nil || price < 0 {
			return variants, false, fmt.Errorf("%w: price must be a whole number of cents", ErrInvalidFieldValue)
		}
	case FieldQuantity:
		quantity, err = strconv.ParseInt(value, 10, 32)
		if err != nil || quantity < 0 {
			return variants, false, fmt.Errorf("%w: quantity must be a whole number", ErrInvalidFieldValue)
		}
	case FieldSKU:
		if value == "" {
			return variants, false, fmt.Errorf("%w: sku must not be empty", ErrInvalidFieldValue)
		}
	case FieldImageURL:
	default:
		return variants, false, ErrUnknownField
	}

	target := -1
	for i, variant := range variants {
		if variant.SKUCode == skuCode {
			target = i
			break
		}
	}
	if target < 0 {
		return variants, false, nil
	}

	if field == FieldSKU && value != skuCode {
		for _, variant := range variants {
			if variant.SKUCode == value {
				return variants, false, fmt.Errorf("%w: sku %q already in use", ErrInvalidFieldValue, value)
			}
		}
	}

	updated := cloneVariants(variants)
	switch field {
	case FieldPrice:
		updated[target].PriceCents = price
	case FieldQuantity:
		updated[target].Quantity = int32(quantity)
	case FieldSKU:
		updated[target].SKUCode = value
	case FieldImageURL:
		updated[target].ImageURL = value
	}
	return updated, true, nil
}
