package catalog

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/golang-commonmark/markdown"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/yxshee/marketplace-storefront/internal/attributes"
	"github.com/yxshee/marketplace-storefront/internal/events"
	"github.com/yxshee/marketplace-storefront/internal/platform/identifier"
	"github.com/yxshee/marketplace-storefront/internal/variants"
)

type ProductStatus string

const (
	ProductStatusDraft           ProductStatus = "draft"
	ProductStatusPendingApproval ProductStatus = "pending_approval"
	ProductStatusApproved        ProductStatus = "approved"
	ProductStatusRejected        ProductStatus = "rejected"
)

// ParseProductStatus accepts a status name in any case.
func ParseProductStatus(raw string) (ProductStatus, error) {
	status := ProductStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case ProductStatusDraft, ProductStatusPendingApproval, ProductStatusApproved, ProductStatusRejected:
		return status, nil
	}
	return "", ErrInvalidStatus
}

const DefaultCategory = "general"

var (
	ErrProductNotFound           = errors.New("product not found")
	ErrUnauthorizedProductAccess = errors.New("unauthorized product access")
	ErrInvalidStatus             = errors.New("invalid product status")
	ErrInvalidStatusTransition   = errors.New("invalid status transition")
	ErrInvalidModerationDecision = errors.New("invalid moderation decision")
	ErrInvalidProductInput       = errors.New("invalid product input")
	ErrCategoryNotFound          = errors.New("category not found")
	ErrCategoryInUse             = errors.New("category has products")
	ErrInvalidCategory           = errors.New("invalid category")
)

// Category is a discoverable category in the buyer catalog.
type Category struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Product is a vendor listing together with its attribute list and the
// variant matrix generated from it.
type Product struct {
	ID               string               `json:"id"`
	VendorID         string               `json:"vendor_id"`
	OwnerUserID      string               `json:"owner_user_id"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	DescriptionHTML  string               `json:"description_html"`
	CategorySlug     string               `json:"category_slug"`
	Tags             []string             `json:"tags"`
	BasePriceCents   int64                `json:"base_price_cents"`
	BaseQuantity     int32                `json:"base_quantity"`
	Currency         string               `json:"currency"`
	RatingAverage    float64              `json:"rating_average"`
	Attributes       []variants.Attribute `json:"attributes"`
	Variants         []variants.Variant   `json:"variants"`
	PriceMinCents    int64                `json:"price_min_cents"`
	PriceMaxCents    int64                `json:"price_max_cents"`
	TotalQuantity    int64                `json:"total_quantity"`
	Status           ProductStatus        `json:"status"`
	ModerationReason string               `json:"moderation_reason,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

func (p Product) defaults() variants.Defaults {
	return variants.Defaults{PriceCents: p.BasePriceCents, Quantity: p.BaseQuantity}
}

type CreateProductInput struct {
	OwnerUserID    string
	VendorID       string
	Title          string
	Description    string
	CategorySlug   string
	Tags           []string
	BasePriceCents int64
	BaseQuantity   int32
	Currency       string
	RatingAverage  float64
	Status         ProductStatus
	Attributes     []variants.Attribute
	Variants       []variants.SubmissionRecord
}

// UpdateProductInput is a partial product edit. Nil fields stay untouched.
type UpdateProductInput struct {
	Title          *string   `json:"title"`
	Description    *string   `json:"description"`
	CategorySlug   *string   `json:"category_slug"`
	Tags           *[]string `json:"tags"`
	BasePriceCents *int64    `json:"base_price_cents"`
	BaseQuantity   *int32    `json:"base_quantity"`
	Currency       *string   `json:"currency"`
}

// Empty reports whether the edit changes nothing.
func (in UpdateProductInput) Empty() bool {
	return in == UpdateProductInput{}
}

type Options struct {
	Attributes      *attributes.Service
	Events          events.Publisher
	Logger          *logrus.Entry
	VariantLimit    int
	DefaultCurrency string
}

// Service provides product, variant and moderation workflow operations.
type Service struct {
	mu            sync.RWMutex
	byID          map[string]Product
	ordered       []string
	categories    map[string]Category
	categoryOrder []string

	attributes      *attributes.Service
	events          events.Publisher
	logger          *logrus.Entry
	markdown        *markdown.Markdown
	variantLimit    int
	defaultCurrency string
	now             func() time.Time
}

func NewService(options Options) *Service {
	publisher := options.Events
	if publisher == nil {
		publisher = events.Discard{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	currency := strings.ToUpper(strings.TrimSpace(options.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}

	service := &Service{
		byID:            make(map[string]Product),
		categories:      make(map[string]Category),
		attributes:      options.Attributes,
		events:          publisher,
		logger:          logger,
		markdown:        markdown.New(markdown.HTML(false), markdown.XHTMLOutput(true), markdown.Linkify(true)),
		variantLimit:    options.VariantLimit,
		defaultCurrency: currency,
		now:             func() time.Time { return time.Now().UTC() },
	}
	_, _ = service.UpsertCategory(DefaultCategory, "General")
	return service
}

// catalog returns the shared attribute catalog, or nil when none is configured.
func (s *Service) catalog() variants.Catalog {
	if s.attributes == nil {
		return nil
	}
	return s.attributes
}

func normalizeCategorySlug(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// UpsertCategory creates or renames a category. An empty name is derived from
// the slug.
func (s *Service) UpsertCategory(slug, name string) (Category, error) {
	category := Category{Slug: normalizeCategorySlug(slug), Name: strings.TrimSpace(name)}
	if category.Slug == "" {
		return Category{}, ErrInvalidCategory
	}
	if category.Name == "" {
		category.Name = categoryDisplayName(category.Slug)
	}

	s.mu.Lock()
	s.putCategoryLocked(category)
	s.mu.Unlock()
	return category, nil
}

func (s *Service) ensureCategoryLocked(slug string) {
	if _, known := s.categories[slug]; !known {
		s.putCategoryLocked(Category{Slug: slug, Name: categoryDisplayName(slug)})
	}
}

func (s *Service) putCategoryLocked(category Category) {
	if _, known := s.categories[category.Slug]; !known {
		s.categoryOrder = append(s.categoryOrder, category.Slug)
	}
	s.categories[category.Slug] = category
}

// DeleteCategory removes a category no product references. The default
// category always stays.
func (s *Service) DeleteCategory(slug string) error {
	slug = normalizeCategorySlug(slug)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.categories[slug]; !known {
		return ErrCategoryNotFound
	}
	if slug == DefaultCategory || s.categoryUsedLocked(slug) {
		return ErrCategoryInUse
	}

	delete(s.categories, slug)
	s.categoryOrder = slices.DeleteFunc(s.categoryOrder, func(candidate string) bool { return candidate == slug })
	return nil
}

func (s *Service) categoryUsedLocked(slug string) bool {
	for _, product := range s.byID {
		if product.CategorySlug == slug {
			return true
		}
	}
	return false
}

func (s *Service) ListCategories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]Category, len(s.categoryOrder))
	for i, slug := range s.categoryOrder {
		categories[i] = s.categories[slug]
	}
	return categories
}

func (s *Service) CreateProductWithInput(input CreateProductInput) (Product, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || input.BasePriceCents < 0 || input.BaseQuantity < 0 {
		return Product{}, ErrInvalidProductInput
	}
	if strings.TrimSpace(input.VendorID) == "" || strings.TrimSpace(input.OwnerUserID) == "" {
		return Product{}, ErrInvalidProductInput
	}

	category := normalizeCategorySlug(input.CategorySlug)
	if category == "" {
		category = DefaultCategory
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	now := s.now()
	product := Product{
		ID:             identifier.New("prd"),
		OwnerUserID:    input.OwnerUserID,
		VendorID:       input.VendorID,
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		CategorySlug:   category,
		Tags:           normalizeTags(input.Tags),
		BasePriceCents: input.BasePriceCents,
		BaseQuantity:   input.BaseQuantity,
		Currency:       currency,
		RatingAverage:  input.RatingAverage,
		Status:         input.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if product.Status == "" {
		product.Status = ProductStatusDraft
	}
	product.DescriptionHTML = s.renderDescription(product.Description)

	editor, err := variants.NewEditor(s.catalog(), input.Attributes, variants.OverridesFromSubmission(input.Variants), product.defaults(), s.variantLimit)
	if err != nil {
		return Product{}, err
	}
	product.Attributes = editor.Attributes()
	product.Variants = editor.Variants()
	refreshSummary(&product)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureCategoryLocked(category)
	s.byID[product.ID] = product
	s.ordered = append(s.ordered, product.ID)
	return product, nil
}

func (s *Service) GetProductByID(productID string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, exists := s.byID[productID]
	return product, exists
}

// GetOwnedProduct returns the product if it belongs to the vendor owner.
func (s *Service) GetOwnedProduct(productID, ownerUserID, vendorID string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownedLocked(productID, ownerUserID, vendorID)
}

func (s *Service) ownedLocked(productID, ownerUserID, vendorID string) (Product, error) {
	product, exists := s.byID[productID]
	switch {
	case !exists:
		return Product{}, ErrProductNotFound
	case !product.ownedBy(ownerUserID, vendorID):
		return Product{}, ErrUnauthorizedProductAccess
	}
	return product, nil
}

func (p Product) ownedBy(ownerUserID, vendorID string) bool {
	return p.OwnerUserID == ownerUserID && p.VendorID == vendorID
}

// ListVendorProducts returns the vendor's products, newest first.
func (s *Service) ListVendorProducts(ownerUserID, vendorID string) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Product, 0)
	for _, productID := range slices.Backward(s.ordered) {
		if product := s.byID[productID]; product.ownedBy(ownerUserID, vendorID) {
			items = append(items, product)
		}
	}
	return items
}

// UpdateProduct applies the non-nil fields. Base price and quantity only seed
// variants generated later; existing rows keep their values.
func (s *Service) UpdateProduct(productID, ownerUserID, vendorID string, input UpdateProductInput) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, err := s.ownedLocked(productID, ownerUserID, vendorID)
	if err != nil {
		return Product{}, err
	}
	before := product
	contentChanged, err := applyProductUpdate(&product, input)
	if err != nil {
		return Product{}, err
	}

	if product.Description != before.Description {
		product.DescriptionHTML = s.renderDescription(product.Description)
	}
	if product.CategorySlug != before.CategorySlug {
		s.ensureCategoryLocked(product.CategorySlug)
	}
	if len(product.Variants) == 0 {
		refreshSummary(&product)
	}
	if contentChanged {
		returnToDraft(&product)
	}
	product.UpdatedAt = s.now()
	s.byID[productID] = product
	return product, nil
}

// applyProductUpdate copies input onto product and reports whether anything a
// moderator reviews has changed. Base quantity is stock, not content.
func applyProductUpdate(product *Product, input UpdateProductInput) (bool, error) {
	changed := false
	text := []struct {
		target    *string
		value     *string
		normalize func(string) string
		required  bool
	}{
		{&product.Title, input.Title, strings.TrimSpace, true},
		{&product.Description, input.Description, strings.TrimSpace, false},
		{&product.CategorySlug, input.CategorySlug, normalizeCategorySlug, true},
		{&product.Currency, input.Currency, func(raw string) string { return strings.ToUpper(strings.TrimSpace(raw)) }, true},
	}
	for _, field := range text {
		if field.value == nil {
			continue
		}
		value := field.normalize(*field.value)
		if field.required && value == "" {
			return false, ErrInvalidProductInput
		}
		if value != *field.target {
			*field.target = value
			changed = true
		}
	}

	if input.Tags != nil {
		tags := normalizeTags(*input.Tags)
		changed = changed || !slices.Equal(tags, product.Tags)
		product.Tags = tags
	}
	if price := input.BasePriceCents; price != nil {
		if *price < 0 {
			return false, ErrInvalidProductInput
		}
		changed = changed || *price != product.BasePriceCents
		product.BasePriceCents = *price
	}
	if quantity := input.BaseQuantity; quantity != nil {
		if *quantity < 0 {
			return false, ErrInvalidProductInput
		}
		product.BaseQuantity = *quantity
	}
	return changed, nil
}

func (s *Service) DeleteProduct(productID, ownerUserID, vendorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedLocked(productID, ownerUserID, vendorID); err != nil {
		return err
	}
	delete(s.byID, productID)
	s.ordered = slices.DeleteFunc(s.ordered, func(candidate string) bool { return candidate == productID })
	return nil
}

type ModerationDecision string

const (
	ModerationDecisionApprove ModerationDecision = "approve"
	ModerationDecisionReject  ModerationDecision = "reject"
)

var moderationOutcomes = map[ModerationDecision]struct {
	status ProductStatus
	event  string
}{
	ModerationDecisionApprove: {ProductStatusApproved, events.ProductApproved},
	ModerationDecisionReject:  {ProductStatusRejected, events.ProductRejected},
}

// SubmitForModeration queues a draft or rejected product for review.
func (s *Service) SubmitForModeration(ctx context.Context, productID, ownerUserID, vendorID string) (Product, error) {
	return s.transition(ctx, productID, func(product *Product) (events.Event, error) {
		if !product.ownedBy(ownerUserID, vendorID) {
			return events.Event{}, ErrUnauthorizedProductAccess
		}
		if product.Status != ProductStatusDraft && product.Status != ProductStatusRejected {
			return events.Event{}, ErrInvalidStatusTransition
		}
		product.Status = ProductStatusPendingApproval
		product.ModerationReason = ""
		return events.New(events.ProductSubmitted, product.ID, product.VendorID, ownerUserID, map[string]any{
			"variant_count": len(product.Variants),
		}), nil
	})
}

func (s *Service) ReviewProduct(ctx context.Context, productID, reviewerID string, decision ModerationDecision, reason string) (Product, error) {
	if reviewerID == "" {
		return Product{}, ErrUnauthorizedProductAccess
	}
	outcome, known := moderationOutcomes[decision]
	if !known {
		return Product{}, ErrInvalidModerationDecision
	}

	return s.transition(ctx, productID, func(product *Product) (events.Event, error) {
		if product.Status != ProductStatusPendingApproval {
			return events.Event{}, ErrInvalidStatusTransition
		}
		product.Status = outcome.status
		product.ModerationReason = ""
		if decision == ModerationDecisionReject {
			product.ModerationReason = strings.TrimSpace(reason)
		}
		return events.New(outcome.event, product.ID, product.VendorID, reviewerID, map[string]any{
			"reason": product.ModerationReason,
		}), nil
	})
}

// transition runs change against the stored product under the write lock and
// publishes the event it returns after the lock is released.
func (s *Service) transition(ctx context.Context, productID string, change func(product *Product) (events.Event, error)) (Product, error) {
	s.mu.Lock()
	product, exists := s.byID[productID]
	if !exists {
		s.mu.Unlock()
		return Product{}, ErrProductNotFound
	}
	event, err := change(&product)
	if err != nil {
		s.mu.Unlock()
		return Product{}, err
	}
	product.UpdatedAt = s.now()
	s.byID[productID] = product
	s.mu.Unlock()

	s.publish(ctx, event)
	return product, nil
}

// ListByStatus returns products in status, most recently updated first.
func (s *Service) ListByStatus(status ProductStatus) []Product {
	target := ProductStatus(strings.TrimSpace(string(status)))
	items := make([]Product, 0)
	if target == "" {
		return items
	}

	s.mu.RLock()
	for _, product := range s.byID {
		if product.Status == target {
			items = append(items, product)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(items, func(a, b Product) int {
		return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), strings.Compare(a.ID, b.ID))
	})
	return items
}

func (s *Service) renderDescription(source string) string {
	if source == "" {
		return ""
	}
	return s.markdown.RenderToString([]byte(source))
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	err := s.events.Publish(ctx, event)
	if err == nil {
		return
	}
	s.logger.WithError(err).WithFields(logrus.Fields{
		"event":      event.Type,
		"product_id": event.ProductID,
		"vendor_id":  event.VendorID,
	}).Warn("catalog event not published")
}

// refreshSummary recomputes the storefront price range and stock from the
// variants, falling back to the base values for a product without any.
func refreshSummary(product *Product) {
	if len(product.Variants) == 0 {
		product.PriceMinCents, product.PriceMaxCents = product.BasePriceCents, product.BasePriceCents
		product.TotalQuantity = int64(product.BaseQuantity)
		return
	}

	first := product.Variants[0].PriceCents
	product.PriceMinCents, product.PriceMaxCents, product.TotalQuantity = first, first, 0
	for _, variant := range product.Variants {
		product.PriceMinCents = min(product.PriceMinCents, variant.PriceCents)
		product.PriceMaxCents = max(product.PriceMaxCents, variant.PriceCents)
		product.TotalQuantity += int64(variant.Quantity)
	}
}

// returnToDraft pulls an approved listing off the storefront until it is
// reviewed again.
func returnToDraft(product *Product) {
	if product.Status == ProductStatusApproved {
		product.Status = ProductStatusDraft
		product.ModerationReason = ""
	}
}

func categoryDisplayName(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

func normalizeTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, value := range raw {
		tag := strings.ToLower(strings.TrimSpace(value))
		if tag != "" && !slices.Contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}
