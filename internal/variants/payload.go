package variants

import "strings"

// SubmissionAttribute is one attribute entry of a submitted variant row.
type SubmissionAttribute struct {
	KeyName    string   `json:"key_name"`
	KeyDisplay string   `json:"key_display"`
	Values     []string `json:"values"`
}

// SubmissionRecord is the shape the product create/update payload uses for a variant.
type SubmissionRecord struct {
	SKU        string                `json:"sku"`
	Price      int64                 `json:"price"`
	Quantity   int32                 `json:"quantity"`
	ImageURL   string                `json:"image_url"`
	Attributes []SubmissionAttribute `json:"attributes"`
}

// Submission converts variants into payload rows.
func Submission(attributes []Attribute, variants []Variant) []SubmissionRecord {
	displayNames := make(map[string]string, len(attributes))
	for _, attribute := range attributes {
		displayNames[attribute.KeyName] = attribute.DisplayName
	}

	records := make([]SubmissionRecord, 0, len(variants))
	for _, variant := range variants {
		record := SubmissionRecord{
			SKU:        variant.SKUCode,
			Price:      variant.PriceCents,
			Quantity:   variant.Quantity,
			ImageURL:   variant.ImageURL,
			Attributes: make([]SubmissionAttribute, 0, len(variant.Selections)),
		}
		for _, selection := range variant.Selections {
			display := displayNames[selection.KeyName]
			if display == "" {
				display = selection.KeyName
			}
			record.Attributes = append(record.Attributes, SubmissionAttribute{
				KeyName:    selection.KeyName,
				KeyDisplay: display,
				Values:     []string{selection.Value},
			})
		}
		records = append(records, record)
	}
	return records
}

// OverridesFromSubmission turns submitted rows back into variants usable as the
// previous list of Recompute, so submitted prices survive regeneration.
func OverridesFromSubmission(records []SubmissionRecord) []Variant {
	overrides := make([]Variant, 0, len(records))
	for _, record := range records {
		sku := strings.TrimSpace(record.SKU)
		if sku == "" {
			continue
		}
		overrides = append(overrides, Variant{
			SKUCode:    sku,
			PriceCents: record.Price,
			Quantity:   record.Quantity,
			ImageURL:   strings.TrimSpace(record.ImageURL),
		})
	}
	return overrides
}
