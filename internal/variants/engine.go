package variants

import "math"

// Selection is one (attribute, value) pair of a variant.
type Selection struct {
	KeyName string `json:"key_name"`
	Value   string `json:"value"`
}

// Variant is one purchasable combination of attribute values.
type Variant struct {
	SKUCode    string      `json:"sku"`
	PriceCents int64       `json:"price_cents"`
	Quantity   int32       `json:"quantity"`
	ImageURL   string      `json:"image_url"`
	Selections []Selection `json:"selections"`
}

// Has reports whether the variant was generated from the given pair.
func (v Variant) Has(selection Selection) bool {
	for _, candidate := range v.Selections {
		if candidate == selection {
			return true
		}
	}
	return false
}

// Defaults are the base product values given to newly generated variants.
type Defaults struct {
	PriceCents int64 `json:"price_cents"`
	Quantity   int32 `json:"quantity"`
}

// ActiveAttributes returns the attributes that have at least one value, with
// values normalized.
func ActiveAttributes(attributes []Attribute) []Attribute {
	active := make([]Attribute, 0, len(attributes))
	for _, attribute := range attributes {
		values := NormalizeValues(attribute.Values)
		if len(values) == 0 {
			continue
		}
		attribute.Values = values
		active = append(active, attribute)
	}
	return active
}

// CombinationCount is the size of the variant matrix the attributes produce.
func CombinationCount(attributes []Attribute) int {
	active := ActiveAttributes(attributes)
	if len(active) == 0 {
		return 0
	}

	count := 1
	for _, attribute := range active {
		n := len(attribute.Values)
		if count > math.MaxInt/n {
			return math.MaxInt
		}
		count *= n
	}
	return count
}

// Recompute builds the full variant matrix for the attributes. Variants whose
// SKU already exists in previous keep their price, quantity and image. When the
// resulting layout equals previous, previous is returned unchanged with false.
func Recompute(attributes []Attribute, previous []Variant, defaults Defaults) ([]Variant, bool) {
	next := generate(attributes, previous, defaults)
	if SameLayout(previous, next) {
		return previous, false
	}
	return next, true
}

func generate(attributes []Attribute, previous []Variant, defaults Defaults) []Variant {
	active := ActiveAttributes(attributes)

	combinations := [][]Selection{}
	if len(active) > 0 {
		combinations = [][]Selection{{}}
		for _, attribute := range active {
			expanded := make([][]Selection, 0, len(combinations)*len(attribute.Values))
			for _, combination := range combinations {
				for _, value := range attribute.Values {
					next := make([]Selection, len(combination), len(combination)+1)
					copy(next, combination)
					expanded = append(expanded, append(next, Selection{KeyName: attribute.KeyName, Value: value}))
				}
			}
			combinations = expanded
		}
	}

	bySKU := make(map[string]Variant, len(previous))
	for _, variant := range previous {
		if _, exists := bySKU[variant.SKUCode]; !exists {
			bySKU[variant.SKUCode] = variant
		}
	}

	next := make([]Variant, 0, len(combinations))
	for _, selections := range combinations {
		variant := Variant{
			SKUCode:    skuCode(selections),
			PriceCents: defaults.PriceCents,
			Quantity:   defaults.Quantity,
			Selections: selections,
		}
		if prior, exists := bySKU[variant.SKUCode]; exists {
			variant.PriceCents = prior.PriceCents
			variant.Quantity = prior.Quantity
			variant.ImageURL = prior.ImageURL
		}
		next = append(next, variant)
	}
	return next
}

// SameLayout reports whether both lists hold the same SKUs in the same order.
func SameLayout(a, b []Variant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SKUCode != b[i].SKUCode {
			return false
		}
	}
	return true
}

func cloneVariants(variants []Variant) []Variant {
	cloned := make([]Variant, len(variants))
	for i, variant := range variants {
		variant.Selections = append([]Selection{}, variant.Selections...)
		cloned[i] = variant
	}
	return cloned
}
