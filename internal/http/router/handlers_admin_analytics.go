package router

import (
	"net/http"
	"sort"
	"time"

	"github.com/yxshee/marketplace-storefront/internal/catalog"
	"github.com/yxshee/marketplace-storefront/internal/vendors"
)

var productStatuses = []catalog.ProductStatus{
	catalog.ProductStatusDraft,
	catalog.ProductStatusPendingApproval,
	catalog.ProductStatusApproved,
	catalog.ProductStatusRejected,
}

type adminDashboardOverviewResponse struct {
	VendorMetrics   adminDashboardVendorMetrics          `json:"vendor_metrics"`
	CatalogMetrics  adminDashboardCatalogMetrics         `json:"catalog_metrics"`
	ModerationQueue adminDashboardModerationQueueMetrics `json:"moderation_queue"`
	GeneratedAt     time.Time                            `json:"generated_at"`
}

type adminDashboardVendorMetrics struct {
	TotalVendors           int `json:"total_vendors"`
	PendingVerification    int `json:"pending_verification"`
	Verified               int `json:"verified"`
	Rejected               int `json:"rejected"`
	Suspended              int `json:"suspended"`
	WithCommissionOverride int `json:"with_commission_override"`
}

type adminDashboardCatalogMetrics struct {
	ProductsByStatus    map[catalog.ProductStatus]int `json:"products_by_status"`
	VariantCount        int                           `json:"variant_count"`
	Categories          int                           `json:"categories"`
	CatalogAttributes   int                           `json:"catalog_attributes"`
	AverageVariantCount float64                       `json:"average_variant_count"`
}

type adminDashboardModerationQueueMetrics struct {
	PendingProducts   int        `json:"pending_products"`
	OldestSubmittedAt *time.Time `json:"oldest_submitted_at,omitempty"`
	ApprovalRateBPS   int        `json:"approval_rate_bps"`
}

type adminVendorAnalyticsItem struct {
	VendorID          string                    `json:"vendor_id"`
	Slug              string                    `json:"slug"`
	DisplayName       string                    `json:"display_name"`
	VerificationState vendors.VerificationState `json:"verification_state"`
	CommissionBPS     int32                     `json:"commission_bps"`
	ProductCount      int                       `json:"product_count"`
	ApprovedCount     int                       `json:"approved_count"`
	PendingCount      int                       `json:"pending_count"`
	VariantCount      int                       `json:"variant_count"`
	UnitsInStock      int64                     `json:"units_in_stock"`
}

func (a *api) productsByStatus() map[catalog.ProductStatus][]catalog.Product {
	grouped := make(map[catalog.ProductStatus][]catalog.Product, len(productStatuses))
	for _, status := range productStatuses {
		grouped[status] = a.catalogService.ListByStatus(status)
	}
	return grouped
}

func (a *api) handleAdminDashboardOverview(w http.ResponseWriter, _ *http.Request) {
	grouped := a.productsByStatus()

	response := adminDashboardOverviewResponse{
		CatalogMetrics: adminDashboardCatalogMetrics{
			ProductsByStatus:  make(map[catalog.ProductStatus]int, len(productStatuses)),
			Categories:        len(a.catalogService.ListCategories()),
			CatalogAttributes: len(a.attributes.List()),
		},
		GeneratedAt: time.Now().UTC(),
	}

	productCount := 0
	for _, status := range productStatuses {
		items := grouped[status]
		response.CatalogMetrics.ProductsByStatus[status] = len(items)
		productCount += len(items)
		for _, product := range items {
			response.CatalogMetrics.VariantCount += len(product.Variants)
		}
	}
	if productCount > 0 {
		response.CatalogMetrics.AverageVariantCount = float64(response.CatalogMetrics.VariantCount) / float64(productCount)
	}

	pending := grouped[catalog.ProductStatusPendingApproval]
	response.ModerationQueue.PendingProducts = len(pending)
	for _, product := range pending {
		submittedAt := product.UpdatedAt
		if response.ModerationQueue.OldestSubmittedAt == nil || submittedAt.Before(*response.ModerationQueue.OldestSubmittedAt) {
			response.ModerationQueue.OldestSubmittedAt = &submittedAt
		}
	}
	approved := len(grouped[catalog.ProductStatusApproved])
	rejected := len(grouped[catalog.ProductStatusRejected])
	response.ModerationQueue.ApprovalRateBPS = ratioBPS(approved, approved+rejected)

	for _, registeredVendor := range a.vendorService.List(nil) {
		response.VendorMetrics.TotalVendors++
		switch registeredVendor.VerificationState {
		case vendors.VerificationPending:
			response.VendorMetrics.PendingVerification++
		case vendors.VerificationVerified:
			response.VendorMetrics.Verified++
		case vendors.VerificationRejected:
			response.VendorMetrics.Rejected++
		case vendors.VerificationSuspended:
			response.VendorMetrics.Suspended++
		}
		if registeredVendor.CommissionOverrideBPS != nil {
			response.VendorMetrics.WithCommissionOverride++
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleAdminAnalyticsVendors ranks vendors by approved listings, then by
// total listings.
func (a *api) handleAdminAnalyticsVendors(w http.ResponseWriter, _ *http.Request) {
	registered := a.vendorService.List(nil)
	byVendor := make(map[string]*adminVendorAnalyticsItem, len(registered))
	items := make([]*adminVendorAnalyticsItem, 0, len(registered))
	for _, registeredVendor := range registered {
		commission := a.defaultCommBPS
		if registeredVendor.CommissionOverrideBPS != nil {
			commission = *registeredVendor.CommissionOverrideBPS
		}
		item := &adminVendorAnalyticsItem{
			VendorID:          registeredVendor.ID,
			Slug:              registeredVendor.Slug,
			DisplayName:       registeredVendor.DisplayName,
			VerificationState: registeredVendor.VerificationState,
			CommissionBPS:     commission,
		}
		byVendor[registeredVendor.ID] = item
		items = append(items, item)
	}

	for status, products := range a.productsByStatus() {
		for _, product := range products {
			item, exists := byVendor[product.VendorID]
			if !exists {
				continue
			}
			item.ProductCount++
			item.VariantCount += len(product.Variants)
			item.UnitsInStock += product.TotalQuantity
			switch status {
			case catalog.ProductStatusApproved:
				item.ApprovedCount++
			case catalog.ProductStatusPendingApproval:
				item.PendingCount++
			}
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ApprovedCount != items[j].ApprovedCount {
			return items[i].ApprovedCount > items[j].ApprovedCount
		}
		if items[i].ProductCount != items[j].ProductCount {
			return items[i].ProductCount > items[j].ProductCount
		}
		return items[i].VendorID < items[j].VendorID
	})

	response := make([]adminVendorAnalyticsItem, 0, len(items))
	for _, item := range items {
		response = append(response, *item)
	}
	writeList(w, response, len(response))
}
