package router

import (
	"net/http"
	"sort"

	"github.com/yxshee/marketplace-storefront/internal/catalog"
)

type vendorAnalyticsOverviewResponse struct {
	Currency         string                         `json:"currency"`
	ProductCount     int                            `json:"product_count"`
	ProductsByStatus map[catalog.ProductStatus]int  `json:"products_by_status"`
	Inventory        vendorAnalyticsInventoryStats  `json:"inventory"`
	Messaging        vendorAnalyticsMessagingStats  `json:"messaging"`
	Moderation       vendorAnalyticsModerationStats `json:"moderation"`
}

type vendorAnalyticsInventoryStats struct {
	VariantCount        int   `json:"variant_count"`
	UnitsInStock        int64 `json:"units_in_stock"`
	StockValueCents     int64 `json:"stock_value_cents"`
	OutOfStockVariants  int   `json:"out_of_stock_variants"`
	VariantsWithImage   int   `json:"variants_with_image"`
	ImageCoverageBPS    int   `json:"image_coverage_bps"`
	ProductsWithoutSKUs int   `json:"products_without_skus"`
}

type vendorAnalyticsMessagingStats struct {
	ThreadCount  int `json:"thread_count"`
	MessageCount int `json:"message_count"`
}

type vendorAnalyticsModerationStats struct {
	Reviewed        int `json:"reviewed"`
	ApprovalRateBPS int `json:"approval_rate_bps"`
}

type vendorLowStockItem struct {
	ProductID  string `json:"product_id"`
	Title      string `json:"title"`
	SKU        string `json:"sku"`
	Quantity   int32  `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

func (a *api) handleVendorAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	products := a.catalogService.ListVendorProducts(identity.UserID, registeredVendor.ID)
	response := vendorAnalyticsOverviewResponse{
		Currency:     a.defaultCurrency,
		ProductCount: len(products),
		ProductsByStatus: map[catalog.ProductStatus]int{
			catalog.ProductStatusDraft:           0,
			catalog.ProductStatusPendingApproval: 0,
			catalog.ProductStatusApproved:        0,
			catalog.ProductStatusRejected:        0,
		},
	}

	for _, product := range products {
		response.ProductsByStatus[product.Status]++
		if product.Currency != "" {
			response.Currency = product.Currency
		}
		if len(product.Variants) == 0 {
			response.Inventory.ProductsWithoutSKUs++
			response.Inventory.UnitsInStock += int64(product.BaseQuantity)
			response.Inventory.StockValueCents += product.BasePriceCents * int64(product.BaseQuantity)
			continue
		}
		for _, variant := range product.Variants {
			response.Inventory.VariantCount++
			response.Inventory.UnitsInStock += int64(variant.Quantity)
			response.Inventory.StockValueCents += variant.PriceCents * int64(variant.Quantity)
			if variant.Quantity == 0 {
				response.Inventory.OutOfStockVariants++
			}
			if variant.ImageURL != "" {
				response.Inventory.VariantsWithImage++
			}
		}
	}
	response.Inventory.ImageCoverageBPS = ratioBPS(response.Inventory.VariantsWithImage, response.Inventory.VariantCount)

	approved := response.ProductsByStatus[catalog.ProductStatusApproved]
	rejected := response.ProductsByStatus[catalog.ProductStatusRejected]
	response.Moderation = vendorAnalyticsModerationStats{
		Reviewed:        approved + rejected,
		ApprovalRateBPS: ratioBPS(approved, approved+rejected),
	}

	threads := a.messages.ListForVendor(registeredVendor.ID)
	response.Messaging.ThreadCount = len(threads)
	for _, thread := range threads {
		response.Messaging.MessageCount += thread.MessageCount
	}

	writeJSON(w, http.StatusOK, response)
}

// handleVendorAnalyticsLowStock lists variants at or below the threshold,
// emptiest first.
func (a *api) handleVendorAnalyticsLowStock(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	threshold := parseQueryInt(r, "threshold", int(registeredVendor.Settings.LowStockThreshold))
	if threshold < 0 {
		writeError(w, http.StatusBadRequest, "threshold must be zero or positive")
		return
	}

	items := make([]vendorLowStockItem, 0)
	for _, product := range a.catalogService.ListVendorProducts(identity.UserID, registeredVendor.ID) {
		for _, variant := range product.Variants {
			if int(variant.Quantity) > threshold {
				continue
			}
			items = append(items, vendorLowStockItem{
				ProductID:  product.ID,
				Title:      product.Title,
				SKU:        variant.SKUCode,
				Quantity:   variant.Quantity,
				PriceCents: variant.PriceCents,
			})
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Quantity == items[j].Quantity {
			if items[i].ProductID == items[j].ProductID {
				return items[i].SKU < items[j].SKU
			}
			return items[i].ProductID < items[j].ProductID
		}
		return items[i].Quantity < items[j].Quantity
	})

	writeList(w, items, len(items))
}

func ratioBPS(numerator, denominator int) int {
	if denominator <= 0 || numerator <= 0 {
		return 0
	}
	return int((int64(numerator) * 10000) / int64(denominator))
}
