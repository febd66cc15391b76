package variants

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const (
	SKUPrefix    = "SKU"
	SKUSeparator = "-"
)

// Abbreviate returns the SKU segment of a value: its first word reduced to
// letters and digits, upper-cased.
func Abbreviate(value string) string {
	words := strings.Fields(value)
	if len(words) == 0 {
		return ""
	}

	var b strings.Builder
	for _, r := range words[0] {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// SegmentCode returns the SKU segment of one value. A single word already in
// canonical casing (XL, 40, Red) keeps its plain abbreviation; anything else
// gets a hash of the full value appended after an underscore. The segment
// depends on nothing but the value.
func SegmentCode(value string) string {
	code := Abbreviate(value)
	if code != "" && isCanonicalWord(value) {
		return code
	}
	return code + "_" + valueHash(value)
}

// isCanonicalWord reports whether value is one word of letters and digits
// written either fully upper-case (up to two runes) or capitalized.
func isCanonicalWord(value string) bool {
	runes := []rune(value)
	if len(runes) == 0 {
		return false
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
		switch {
		case unicode.IsDigit(r):
		case i == 0 || len(runes) <= 2:
			if !unicode.IsUpper(r) {
				return false
			}
		default:
			if !unicode.IsLower(r) {
				return false
			}
		}
	}
	return true
}

func valueHash(value string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return fmt.Sprintf("%08X", h.Sum32())
}

// skuCode joins the prefix and each selection's segment in attribute order.
func skuCode(selections []Selection) string {
	parts := make([]string, 0, len(selections)+1)
	parts = append(parts, SKUPrefix)
	for _, selection := range selections {
		parts = append(parts, SegmentCode(selection.Value))
	}
	return strings.Join(parts, SKUSeparator)
}
