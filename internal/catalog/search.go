package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/yxshee/marketplace-storefront/internal/variants"
)

type SortOption string

const (
	SortRelevance SortOption = "relevance"
	SortNewest    SortOption = "newest"
	SortPriceAsc  SortOption = "price_low_high"
	SortPriceDesc SortOption = "price_high_low"
	SortRating    SortOption = "rating"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type SearchParams struct {
	Query     string
	Category  string
	VendorID  string
	PriceMin  int64
	PriceMax  int64
	MinRating float64
	// Attributes keeps products with a variant carrying every key/value pair.
	Attributes map[string]string
	SortBy     SortOption
	Limit      int
	Offset     int
}

type SearchResult struct {
	Items []Product
	Total int
}

// Search lists approved products of visible vendors. Price filters and sorts
// use the cheapest variant.
func (s *Service) Search(params SearchParams, vendorVisible func(vendorID string) bool) SearchResult {
	filter := newSearchFilter(params, vendorVisible)

	s.mu.RLock()
	ranked := make([]rankedProduct, 0)
	for _, productID := range s.ordered {
		product := s.byID[productID]
		if !filter.admits(product) {
			continue
		}
		score := relevanceScore(product, filter.query)
		if filter.query != "" && score == 0 {
			continue
		}
		ranked = append(ranked, rankedProduct{Product: product, score: score})
	}
	s.mu.RUnlock()

	slices.SortStableFunc(ranked, orderingFor(params.SortBy, filter.query))

	limit := params.Limit
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	offset := max(params.Offset, 0)

	result := SearchResult{Items: []Product{}, Total: len(ranked)}
	if offset < len(ranked) {
		for _, entry := range ranked[offset:min(offset+limit, len(ranked))] {
			result.Items = append(result.Items, entry.Product)
		}
	}
	return result
}

func (s *Service) ListVisibleProducts(vendorVisible func(vendorID string) bool) []Product {
	return s.Search(SearchParams{SortBy: SortNewest, Limit: maxPageSize}, vendorVisible).Items
}

type searchFilter struct {
	query         string
	category      string
	vendorID      string
	priceMin      int64
	priceMax      int64
	minRating     float64
	attributes    []variants.Selection
	vendorVisible func(vendorID string) bool
}

func newSearchFilter(params SearchParams, vendorVisible func(vendorID string) bool) searchFilter {
	filter := searchFilter{
		query:         strings.ToLower(strings.TrimSpace(params.Query)),
		category:      normalizeCategorySlug(params.Category),
		vendorID:      strings.TrimSpace(params.VendorID),
		priceMin:      params.PriceMin,
		priceMax:      params.PriceMax,
		minRating:     params.MinRating,
		vendorVisible: vendorVisible,
	}
	for key, value := range params.Attributes {
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			filter.attributes = append(filter.attributes, variants.Selection{KeyName: key, Value: value})
		}
	}
	return filter
}

// admits applies every filter except the text query.
func (f searchFilter) admits(product Product) bool {
	if product.Status != ProductStatusApproved {
		return false
	}
	if f.vendorVisible != nil && !f.vendorVisible(product.VendorID) {
		return false
	}
	if (f.category != "" && product.CategorySlug != f.category) || (f.vendorID != "" && product.VendorID != f.vendorID) {
		return false
	}
	if f.priceMin > 0 && product.PriceMaxCents < f.priceMin {
		return false
	}
	if f.priceMax > 0 && product.PriceMinCents > f.priceMax {
		return false
	}
	if f.minRating > 0 && product.RatingAverage < f.minRating {
		return false
	}
	return len(f.attributes) == 0 || slices.ContainsFunc(product.Variants, func(variant variants.Variant) bool {
		return carriesAll(variant, f.attributes)
	})
}

func carriesAll(variant variants.Variant, wanted []variants.Selection) bool {
	for _, filter := range wanted {
		matched := slices.ContainsFunc(variant.Selections, func(selection variants.Selection) bool {
			return selection.KeyName == filter.KeyName && strings.EqualFold(selection.Value, filter.Value)
		})
		if !matched {
			return false
		}
	}
	return true
}

type rankedProduct struct {
	Product
	score int
}

var productOrderings = map[SortOption]func(a, b rankedProduct) int{
	SortNewest: func(a, b rankedProduct) int {
		return newestFirst(a.Product, b.Product)
	},
	SortPriceAsc: func(a, b rankedProduct) int {
		return cmp.Or(cmp.Compare(a.PriceMinCents, b.PriceMinCents), strings.Compare(a.ID, b.ID))
	},
	SortPriceDesc: func(a, b rankedProduct) int {
		return cmp.Or(cmp.Compare(b.PriceMinCents, a.PriceMinCents), strings.Compare(a.ID, b.ID))
	},
	SortRating: func(a, b rankedProduct) int {
		return cmp.Or(cmp.Compare(b.RatingAverage, a.RatingAverage), strings.Compare(a.ID, b.ID))
	},
	SortRelevance: func(a, b rankedProduct) int {
		return cmp.Or(cmp.Compare(b.score, a.score), newestFirst(a.Product, b.Product))
	},
}

// orderingFor resolves the requested sort. Without one, text searches rank by
// relevance and browsing shows the newest listings first.
func orderingFor(sortBy SortOption, query string) func(a, b rankedProduct) int {
	if sortBy == "" {
		sortBy = SortNewest
		if query != "" {
			sortBy = SortRelevance
		}
	}
	if ordering, ok := productOrderings[sortBy]; ok {
		return ordering
	}
	return productOrderings[SortRelevance]
}

func newestFirst(a, b Product) int {
	return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID, b.ID))
}

const (
	titleMatchWeight = 3
	tagMatchWeight   = 2
	textMatchWeight  = 1
)

func relevanceScore(product Product, query string) int {
	if query == "" {
		return 1
	}

	score := 0
	if strings.Contains(strings.ToLower(product.Title), query) {
		score += titleMatchWeight
	}
	if strings.Contains(strings.ToLower(product.Description), query) {
		score += textMatchWeight
	}
	for _, tag := range product.Tags {
		if strings.Contains(tag, query) {
			score += tagMatchWeight
		}
	}
	for _, attribute := range product.Attributes {
		for _, value := range attribute.Values {
			if strings.EqualFold(value, query) {
				score += textMatchWeight
			}
		}
	}
	return score
}
