package router

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yxshee/marketplace-storefront/internal/auth"
	"github.com/yxshee/marketplace-storefront/internal/catalog"
	"github.com/yxshee/marketplace-storefront/internal/variants"
)

// Query parameters starting with attributeFilterPrefix filter the storefront by
// variant selections, e.g. attr.color=Red.
const attributeFilterPrefix = "attr."

type productDraft struct {
	Title          string                      `json:"title"`
	Description    string                      `json:"description"`
	CategorySlug   string                      `json:"category_slug"`
	Tags           []string                    `json:"tags"`
	BasePriceCents int64                       `json:"base_price_cents"`
	BaseQuantity   int32                       `json:"base_quantity"`
	Currency       string                      `json:"currency"`
	Attributes     []variants.Attribute        `json:"attributes"`
	Variants       []variants.SubmissionRecord `json:"variants"`
}

func (d productDraft) input(ownerUserID, vendorID string) catalog.CreateProductInput {
	return catalog.CreateProductInput{
		OwnerUserID:    ownerUserID,
		VendorID:       vendorID,
		Title:          d.Title,
		Description:    d.Description,
		CategorySlug:   d.CategorySlug,
		Tags:           d.Tags,
		BasePriceCents: d.BasePriceCents,
		BaseQuantity:   d.BaseQuantity,
		Currency:       d.Currency,
		Status:         catalog.ProductStatusDraft,
		Attributes:     d.Attributes,
		Variants:       d.Variants,
	}
}

type moderationVerdict struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

type categoryName struct {
	Name string `json:"name"`
}

// catalogErrorStatus maps catalog and variant engine errors onto responses. An
// empty message echoes the error text.
var catalogErrorStatus = []struct {
	err     error
	status  int
	message string
}{
	{catalog.ErrProductNotFound, http.StatusNotFound, "product not found"},
	{catalog.ErrCategoryNotFound, http.StatusNotFound, "category not found"},
	{catalog.ErrUnauthorizedProductAccess, http.StatusForbidden, "forbidden"},
	{catalog.ErrInvalidStatusTransition, http.StatusConflict, "invalid product status transition"},
	{catalog.ErrCategoryInUse, http.StatusConflict, "category is in use"},
	{variants.ErrDuplicateAttribute, http.StatusConflict, "attribute already present"},
	{catalog.ErrInvalidModerationDecision, http.StatusBadRequest, "invalid moderation decision"},
	{catalog.ErrInvalidStatus, http.StatusBadRequest, "invalid moderation status filter"},
	{catalog.ErrInvalidProductInput, http.StatusBadRequest, "invalid product payload"},
	{catalog.ErrInvalidCategory, http.StatusBadRequest, "invalid category"},
	{variants.ErrTooManyVariants, http.StatusUnprocessableEntity, "too many variant combinations"},
	{variants.ErrInvalidAttribute, http.StatusBadRequest, ""},
	{variants.ErrEmptyValues, http.StatusBadRequest, ""},
	{variants.ErrTooManyValues, http.StatusBadRequest, ""},
	{variants.ErrInvalidBulkEdit, http.StatusBadRequest, ""},
	{variants.ErrInvalidFieldValue, http.StatusBadRequest, ""},
	{variants.ErrUnknownField, http.StatusBadRequest, ""},
	{variants.ErrImageUpload, http.StatusBadGateway, "image upload failed"},
	{variants.ErrUploaderUnavailable, http.StatusServiceUnavailable, "image uploads unavailable"},
}

func writeCatalogError(w http.ResponseWriter, err error, fallback string) {
	for _, known := range catalogErrorStatus {
		if !errors.Is(err, known.err) {
			continue
		}
		message := known.message
		if message == "" {
			message = err.Error()
		}
		writeError(w, known.status, message)
		return
	}
	writeError(w, http.StatusBadRequest, fallback)
}

func (a *api) handleVendorCreateProduct(w http.ResponseWriter, r *http.Request) {
	identity, shop, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	var draft productDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case strings.TrimSpace(draft.Title) == "" || draft.BasePriceCents < 0:
		writeError(w, http.StatusBadRequest, "title and a non-negative price are required")
		return
	case draft.BaseQuantity < 0:
		writeError(w, http.StatusBadRequest, "base quantity must be zero or positive")
		return
	}

	product, err := a.catalogService.CreateProductWithInput(draft.input(identity.UserID, shop.ID))
	if err != nil {
		writeCatalogError(w, err, "unable to create product")
		return
	}

	a.logger.WithField("product_id", product.ID).WithField("variants", len(product.Variants)).Debug("product created")
	a.recordAuditLog(r, "product.created", "product", product.ID, nil, productSnapshot(product), nil)
	writeJSON(w, http.StatusCreated, product)
}

func (a *api) handleVendorListProducts(w http.ResponseWriter, r *http.Request) {
	if identity, shop, ok := a.vendorOwnerContext(w, r); ok {
		items := a.catalogService.ListVendorProducts(identity.UserID, shop.ID)
		writeList(w, items, len(items))
	}
}

// handleVendorGetProduct returns the product together with its submission
// form, the attribute and variant list the seller dashboard edits.
func (a *api) handleVendorGetProduct(w http.ResponseWriter, r *http.Request) {
	identity, shop, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	product, err := a.catalogService.GetOwnedProduct(chi.URLParam(r, "productID"), identity.UserID, shop.ID)
	if err != nil {
		writeCatalogError(w, err, "unable to load product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item":       product,
		"submission": variants.Submission(product.Attributes, product.Variants),
	})
}

func (a *api) handleVendorUpdateProduct(w http.ResponseWriter, r *http.Request) {
	identity, shop, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	var edit catalog.UpdateProductInput
	if err := decodeJSON(r, &edit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if edit.Empty() {
		writeError(w, http.StatusBadRequest, "at least one field is required")
		return
	}

	productID := chi.URLParam(r, "productID")
	before, err := a.catalogService.GetOwnedProduct(productID, identity.UserID, shop.ID)
	if err != nil {
		writeCatalogError(w, err, "unable to load product")
		return
	}
	updated, err := a.catalogService.UpdateProduct(productID, identity.UserID, shop.ID, edit)
	if err != nil {
		writeCatalogError(w, err, "unable to update product")
		return
	}

	a.recordAuditLog(r, "product.updated", "product", productID, productSnapshot(before), productSnapshot(updated), nil)
	writeJSON(w, http.StatusOK, updated)
}

func (a *api) handleVendorDeleteProduct(w http.ResponseWriter, r *http.Request) {
	identity, shop, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	productID := chi.URLParam(r, "productID")
	before, _ := a.catalogService.GetProductByID(productID)
	if err := a.catalogService.DeleteProduct(productID, identity.UserID, shop.ID); err != nil {
		writeCatalogError(w, err, "unable to delete product")
		return
	}

	a.recordAuditLog(r, "product.deleted", "product", productID, productSnapshot(before), nil, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleVendorSubmitModeration queues a product for review. Only verified
// shops may submit.
func (a *api) handleVendorSubmitModeration(w http.ResponseWriter, r *http.Request) {
	identity, shop, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	if !shop.CanSell() {
		writeError(w, http.StatusForbidden, "vendor must be verified before submission")
		return
	}

	submitted, err := a.catalogService.SubmitForModeration(r.Context(), chi.URLParam(r, "productID"), identity.UserID, shop.ID)
	if err != nil {
		writeCatalogError(w, err, "unable to submit moderation")
		return
	}
	writeJSON(w, http.StatusOK, submitted)
}

// handleAdminModerationList defaults to the review queue.
func (a *api) handleAdminModerationList(w http.ResponseWriter, r *http.Request) {
	status := catalog.ProductStatusPendingApproval
	if raw := r.URL.Query().Get("status"); strings.TrimSpace(raw) != "" {
		parsed, err := catalog.ParseProductStatus(raw)
		if err != nil {
			writeCatalogError(w, err, "invalid moderation status filter")
			return
		}
		status = parsed
	}

	items := a.catalogService.ListByStatus(status)
	writeList(w, items, len(items))
}

func (a *api) handleAdminModerateProduct(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var verdict moderationVerdict
	if err := decodeJSON(r, &verdict); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	decision := catalog.ModerationDecision(strings.ToLower(strings.TrimSpace(verdict.Decision)))

	productID := chi.URLParam(r, "productID")
	before, _ := a.catalogService.GetProductByID(productID)
	reviewed, err := a.catalogService.ReviewProduct(r.Context(), productID, identity.UserID, decision, verdict.Reason)
	if err != nil {
		writeCatalogError(w, err, "unable to moderate product")
		return
	}

	a.recordAuditLog(r, "product.moderated", "product", productID, productSnapshot(before), productSnapshot(reviewed), auditMetadata{
		"decision": string(decision),
	})
	writeJSON(w, http.StatusOK, reviewed)
}

func (a *api) handleAdminCategoryUpsert(w http.ResponseWriter, r *http.Request) {
	var req categoryName
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	category, err := a.catalogService.UpsertCategory(chi.URLParam(r, "slug"), req.Name)
	if err != nil {
		writeCatalogError(w, err, "invalid category")
		return
	}

	a.recordAuditLog(r, "category.upserted", "category", category.Slug, nil, category, nil)
	writeJSON(w, http.StatusOK, category)
}

// handleAdminCategoryDelete refuses to drop the default category or one still
// referenced by a product.
func (a *api) handleAdminCategoryDelete(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := a.catalogService.DeleteCategory(slug); err != nil {
		writeCatalogError(w, err, "unable to delete category")
		return
	}

	a.recordAuditLog(r, "category.deleted", "category", slug, nil, nil, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleCatalogList(w http.ResponseWriter, r *http.Request) {
	params := storefrontSearch(r)
	result := a.catalogService.Search(params, a.vendorVisible)

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  result.Items,
		"total":  result.Total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

// storefrontSearch reads the buyer catalog query string.
func storefrontSearch(r *http.Request) catalog.SearchParams {
	query := r.URL.Query()
	params := catalog.SearchParams{
		Query:      strings.TrimSpace(query.Get("q")),
		Category:   strings.TrimSpace(query.Get("category")),
		VendorID:   strings.TrimSpace(query.Get("vendor")),
		PriceMin:   parseQueryInt64(r, "price_min", 0),
		PriceMax:   parseQueryInt64(r, "price_max", 0),
		MinRating:  parseQueryFloat64(r, "min_rating", 0),
		SortBy:     catalog.SortOption(strings.TrimSpace(query.Get("sort"))),
		Limit:      parseQueryInt(r, "limit", 20),
		Offset:     parseQueryInt(r, "offset", 0),
		Attributes: make(map[string]string),
	}
	for key, values := range query {
		name, isFilter := strings.CutPrefix(key, attributeFilterPrefix)
		if isFilter && len(values) > 0 {
			params.Attributes[name] = values[0]
		}
	}
	return params
}

func (a *api) handleCatalogProductDetail(w http.ResponseWriter, r *http.Request) {
	product, found := a.catalogService.GetProductByID(chi.URLParam(r, "productID"))
	if !found {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	shop, found := a.vendorService.GetByID(product.VendorID)
	listed := found && shop.CanSell() && product.Status == catalog.ProductStatusApproved
	if !found || (!listed && !canPreview(r, product)) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"item": product,
		"vendor": map[string]string{
			"id":           shop.ID,
			"slug":         shop.Slug,
			"display_name": shop.DisplayName,
		},
	})
}

// canPreview lets the owning vendor and moderators open products that are not
// publicly listed.
func canPreview(r *http.Request, product catalog.Product) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return false
	}
	return identity.OwnsVendor(product.VendorID) || identity.Can(auth.PermissionModerateProducts)
}

func (a *api) handleCatalogCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": a.catalogService.ListCategories(),
	})
}

func searchAllForVendor(vendorID string) catalog.SearchParams {
	return catalog.SearchParams{VendorID: vendorID, SortBy: catalog.SortNewest, Limit: 1}
}

// productSnapshot keeps audit entries small: the variant matrix is summarized.
func productSnapshot(product catalog.Product) map[string]any {
	if product.ID == "" {
		return nil
	}
	return map[string]any{
		"title":            product.Title,
		"description":      product.Description,
		"category_slug":    product.CategorySlug,
		"tags":             product.Tags,
		"base_price_cents": product.BasePriceCents,
		"base_quantity":    product.BaseQuantity,
		"currency":         product.Currency,
		"status":           product.Status,
		"variant_count":    len(product.Variants),
		"price_min_cents":  product.PriceMinCents,
		"price_max_cents":  product.PriceMaxCents,
	}
}
