package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yxshee/marketplace-storefront/internal/attributes"
	"github.com/yxshee/marketplace-storefront/internal/events"
	"github.com/yxshee/marketplace-storefront/internal/platform/logging"
	"github.com/yxshee/marketplace-storefront/internal/variants"
)

func newTestService(t *testing.T, recorder *events.Recorder) (*Service, *attributes.Service) {
	t.Helper()
	catalogAttributes := attributes.NewService(nil, logging.Component(nil, "attributes"))
	ctx := context.Background()
	if _, err := catalogAttributes.Upsert(ctx, attributes.UpsertInput{DisplayName: "Color", Values: []string{"Red", "Blue"}, AllowMultiple: true}); err != nil {
		t.Fatalf("Upsert(color) error = %v", err)
	}
	if _, err := catalogAttributes.Upsert(ctx, attributes.UpsertInput{DisplayName: "Size", Values: []string{"S", "M"}, AllowMultiple: true, Creatable: true}); err != nil {
		t.Fatalf("Upsert(size) error = %v", err)
	}

	options := Options{
		Attributes:   catalogAttributes,
		Logger:       logging.Component(nil, "catalog"),
		VariantLimit: 20,
	}
	if recorder != nil {
		options.Events = recorder
	}
	return NewService(options), catalogAttributes
}

func createProduct(t *testing.T, service *Service, input CreateProductInput) Product {
	t.Helper()
	if input.OwnerUserID == "" {
		input.OwnerUserID = "usr_1"
	}
	if input.VendorID == "" {
		input.VendorID = "ven_1"
	}
	product, err := service.CreateProductWithInput(input)
	if err != nil {
		t.Fatalf("CreateProductWithInput() error = %v", err)
	}
	return product
}

func TestModerationWorkflow(t *testing.T) {
	recorder := &events.Recorder{}
	service, _ := newTestService(t, recorder)
	product := createProduct(t, service, CreateProductInput{Title: "Notebook", Description: "Simple notebook", BasePriceCents: 2499})
	ctx := context.Background()

	if _, err := service.SubmitForModeration(ctx, product.ID, "usr_2", "ven_1"); !errors.Is(err, ErrUnauthorizedProductAccess) {
		t.Fatalf("expected ErrUnauthorizedProductAccess, got %v", err)
	}

	submitted, err := service.SubmitForModeration(ctx, product.ID, "usr_1", "ven_1")
	if err != nil {
		t.Fatalf("SubmitForModeration() error = %v", err)
	}
	if submitted.Status != ProductStatusPendingApproval {
		t.Fatalf("expected pending_approval status, got %s", submitted.Status)
	}
	if _, err := service.SubmitForModeration(ctx, product.ID, "usr_1", "ven_1"); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}

	if _, err := service.ReviewProduct(ctx, product.ID, "admin_1", ModerationDecision("maybe"), ""); !errors.Is(err, ErrInvalidModerationDecision) {
		t.Fatalf("expected ErrInvalidModerationDecision, got %v", err)
	}
	approved, err := service.ReviewProduct(ctx, product.ID, "admin_1", ModerationDecisionApprove, "")
	if err != nil {
		t.Fatalf("ReviewProduct() error = %v", err)
	}
	if approved.Status != ProductStatusApproved {
		t.Fatalf("expected approved status, got %s", approved.Status)
	}

	visible := service.ListVisibleProducts(func(vendorID string) bool { return vendorID == "ven_1" })
	if len(visible) != 1 {
		t.Fatalf("expected 1 visible product, got %d", len(visible))
	}

	assert.Equal(t, []string{events.ProductSubmitted, events.ProductApproved}, recorder.Types())
}

func TestRejectedProductCanBeResubmitted(t *testing.T) {
	recorder := &events.Recorder{}
	service, _ := newTestService(t, recorder)
	product := createProduct(t, service, CreateProductInput{Title: "Mug", BasePriceCents: 1200})
	ctx := context.Background()

	_, err := service.SubmitForModeration(ctx, product.ID, "usr_1", "ven_1")
	require.NoError(t, err)
	rejected, err := service.ReviewProduct(ctx, product.ID, "mod_1", ModerationDecisionReject, "  blurry photos ")
	require.NoError(t, err)
	assert.Equal(t, ProductStatusRejected, rejected.Status)
	assert.Equal(t, "blurry photos", rejected.ModerationReason)

	resubmitted, err := service.SubmitForModeration(ctx, product.ID, "usr_1", "ven_1")
	require.NoError(t, err)
	assert.Empty(t, resubmitted.ModerationReason)
	assert.Equal(t, []string{events.ProductSubmitted, events.ProductRejected, events.ProductSubmitted}, recorder.Types())
	assert.Len(t, service.ListByStatus(ProductStatusPendingApproval), 1)
}

func TestSearchFilteringSortingAndPagination(t *testing.T) {
	service, _ := newTestService(t, nil)
	_, _ = service.UpsertCategory("notebooks", "Notebooks")
	_, _ = service.UpsertCategory("prints", "Prints")

	createProduct(t, service, CreateProductInput{
		OwnerUserID:    "usr_1",
		VendorID:       "ven_1",
		Title:          "Graph Paper Notebook",
		Description:    "Dotted notebook for sketching",
		CategorySlug:   "notebooks",
		Tags:           []string{"paper", "graph"},
		BasePriceCents: 1999,
		RatingAverage:  4.8,
		Status:         ProductStatusApproved,
	})
	createProduct(t, service, CreateProductInput{
		OwnerUserID:    "usr_2",
		VendorID:       "ven_2",
		Title:          "Poster Print",
		Description:    "A minimal line-art print",
		CategorySlug:   "prints",
		Tags:           []string{"wall", "art"},
		BasePriceCents: 4999,
		RatingAverage:  4.2,
		Status:         ProductStatusApproved,
	})
	createProduct(t, service, CreateProductInput{
		OwnerUserID:    "usr_3",
		VendorID:       "ven_3",
		Title:          "Pocket Notebook",
		Description:    "Compact notebook",
		CategorySlug:   "notebooks",
		Tags:           []string{"paper"},
		BasePriceCents: 999,
		RatingAverage:  3.9,
		Status:         ProductStatusApproved,
	})

	result := service.Search(SearchParams{
		Query:    "notebook",
		Category: "notebooks",
		SortBy:   SortPriceAsc,
		Limit:    10,
	}, func(vendorID string) bool { return vendorID != "ven_2" })

	if result.Total != 2 {
		t.Fatalf("expected 2 results, got %d", result.Total)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 paged items, got %d", len(result.Items))
	}
	if result.Items[0].PriceMinCents > result.Items[1].PriceMinCents {
		t.Fatalf("expected ascending price order")
	}

	paged := service.Search(SearchParams{SortBy: SortNewest, Limit: 1, Offset: 1}, func(string) bool { return true })
	if paged.Total != 3 {
		t.Fatalf("expected total 3, got %d", paged.Total)
	}
	if len(paged.Items) != 1 {
		t.Fatalf("expected one paged item, got %d", len(paged.Items))
	}

	ranged := service.Search(SearchParams{PriceMin: 1000, PriceMax: 2000}, nil)
	if ranged.Total != 1 || ranged.Items[0].Title != "Graph Paper Notebook" {
		t.Fatalf("unexpected price range result: %#v", ranged.Items)
	}
}

func TestSearchByVariantAttributes(t *testing.T) {
	service, _ := newTestService(t, nil)

	createProduct(t, service, CreateProductInput{
		Title:          "Tee",
		BasePriceCents: 2000,
		Status:         ProductStatusApproved,
		Attributes: []variants.Attribute{
			{KeyName: "color", DisplayName: "Color", Values: []string{"Red", "Blue"}, AllowMultiple: true},
			{KeyName: "size", DisplayName: "Size", Values: []string{"S"}, AllowMultiple: true},
		},
	})
	createProduct(t, service, CreateProductInput{
		Title:          "Hoodie",
		BasePriceCents: 5000,
		Status:         ProductStatusApproved,
		Attributes: []variants.Attribute{
			{KeyName: "color", DisplayName: "Color", Values: []string{"Blue"}, AllowMultiple: true},
			{KeyName: "size", DisplayName: "Size", Values: []string{"M"}, AllowMultiple: true},
		},
	})

	red := service.Search(SearchParams{Attributes: map[string]string{"color": "red"}}, nil)
	require.Equal(t, 1, red.Total)
	assert.Equal(t, "Tee", red.Items[0].Title)

	blueMedium := service.Search(SearchParams{Attributes: map[string]string{"Color": "Blue", "size": "M"}}, nil)
	require.Equal(t, 1, blueMedium.Total)
	assert.Equal(t, "Hoodie", blueMedium.Items[0].Title)

	none := service.Search(SearchParams{Attributes: map[string]string{"color": "Red", "size": "M"}}, nil)
	assert.Zero(t, none.Total)
}

func TestVendorProductUpdateDeleteAndList(t *testing.T) {
	service, _ := newTestService(t, nil)
	product := createProduct(t, service, CreateProductInput{
		OwnerUserID:    "usr_vendor",
		VendorID:       "ven_vendor",
		Title:          "Notebook",
		Description:    "Simple *notebook*",
		BasePriceCents: 2500,
		Currency:       "eur",
	})
	if product.Currency != "EUR" {
		t.Fatalf("expected upper-cased currency, got %q", product.Currency)
	}
	if !strings.Contains(product.DescriptionHTML, "<em>notebook</em>") {
		t.Fatalf("expected rendered description, got %q", product.DescriptionHTML)
	}

	price := int64(3100)
	title := "Notebook Pro"
	updated, err := service.UpdateProduct(product.ID, "usr_vendor", "ven_vendor", UpdateProductInput{
		Title:          &title,
		BasePriceCents: &price,
	})
	if err != nil {
		t.Fatalf("UpdateProduct() error = %v", err)
	}
	if updated.Title != title || updated.BasePriceCents != price || updated.PriceMinCents != price {
		t.Fatalf("unexpected updated product payload: %#v", updated)
	}

	if _, err := service.UpdateProduct(product.ID, "usr_other", "ven_vendor", UpdateProductInput{Title: &title}); !errors.Is(err, ErrUnauthorizedProductAccess) {
		t.Fatalf("expected ErrUnauthorizedProductAccess, got %v", err)
	}
	negative := int64(-1)
	if _, err := service.UpdateProduct(product.ID, "usr_vendor", "ven_vendor", UpdateProductInput{BasePriceCents: &negative}); !errors.Is(err, ErrInvalidProductInput) {
		t.Fatalf("expected ErrInvalidProductInput, got %v", err)
	}

	listed := service.ListVendorProducts("usr_vendor", "ven_vendor")
	if len(listed) != 1 {
		t.Fatalf("expected one vendor product, got %d", len(listed))
	}

	if err := service.DeleteProduct(product.ID, "usr_vendor", "ven_vendor"); err != nil {
		t.Fatalf("DeleteProduct() error = %v", err)
	}
	if _, exists := service.GetProductByID(product.ID); exists {
		t.Fatalf("expected product to be deleted")
	}
	if err := service.DeleteProduct(product.ID, "usr_vendor", "ven_vendor"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.CreateProductWithInput(CreateProductInput{OwnerUserID: "usr_1", VendorID: "ven_1", Title: "  "})
	assert.ErrorIs(t, err, ErrInvalidProductInput)

	_, err = service.CreateProductWithInput(CreateProductInput{OwnerUserID: "usr_1", VendorID: "ven_1", Title: "Mug", BasePriceCents: -5})
	assert.ErrorIs(t, err, ErrInvalidProductInput)

	many := make([]string, 0, 21)
	for i := 0; i < 21; i++ {
		many = append(many, strings.Repeat("x", i+1))
	}
	_, err = service.CreateProductWithInput(CreateProductInput{
		OwnerUserID: "usr_1",
		VendorID:    "ven_1",
		Title:       "Too many",
		Attributes:  []variants.Attribute{{KeyName: "length", Values: many, AllowMultiple: true}},
	})
	assert.ErrorIs(t, err, variants.ErrTooManyVariants)
}

func TestCategoryLifecycle(t *testing.T) {
	service, _ := newTestService(t, nil)

	category, err := service.UpsertCategory(" Wall-Art ", "")
	require.NoError(t, err)
	assert.Equal(t, Category{Slug: "wall-art", Name: "Wall Art"}, category)

	_, err = service.UpsertCategory("  ", "Nope")
	assert.ErrorIs(t, err, ErrInvalidCategory)

	product := createProduct(t, service, CreateProductInput{Title: "Poster", CategorySlug: "wall-art"})
	assert.ErrorIs(t, service.DeleteCategory("wall-art"), ErrCategoryInUse)
	assert.ErrorIs(t, service.DeleteCategory(DefaultCategory), ErrCategoryInUse)
	assert.ErrorIs(t, service.DeleteCategory("missing"), ErrCategoryNotFound)

	require.NoError(t, service.DeleteProduct(product.ID, "usr_1", "ven_1"))
	require.NoError(t, service.DeleteCategory("wall-art"))
	assert.Equal(t, []Category{{Slug: DefaultCategory, Name: "General"}}, service.ListCategories())
}

func TestVariantEditingFlow(t *testing.T) {
	recorder := &events.Recorder{}
	service, catalogAttributes := newTestService(t, recorder)
	ctx := context.Background()
	product := createProduct(t, service, CreateProductInput{Title: "Tee", BasePriceCents: 20000, BaseQuantity: 10})

	product, added, err := service.SelectAttribute(ctx, product.ID, "usr_1", "ven_1", "color")
	require.NoError(t, err)
	require.True(t, added)
	assert.Empty(t, product.Variants)

	product, _, err = service.UpdateAttributeValues(ctx, product.ID, "usr_1", "ven_1", "color", []string{"Red", "Blue"})
	require.NoError(t, err)
	_, _, err = service.SelectAttribute(ctx, product.ID, "usr_1", "ven_1", "size")
	require.NoError(t, err)
	product, result, err := service.UpdateAttributeValues(ctx, product.ID, "usr_1", "ven_1", "size", []string{"S", "XL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"XL"}, result.Persist)

	size, ok := catalogAttributes.Get("size")
	require.True(t, ok)
	assert.Equal(t, []string{"S", "M", "XL"}, size.Values)

	codes := make([]string, 0, len(product.Variants))
	for _, variant := range product.Variants {
		codes = append(codes, variant.SKUCode)
		assert.Equal(t, int64(20000), variant.PriceCents)
	}
	assert.Equal(t, []string{"SKU-RED-S", "SKU-RED-XL", "SKU-BLUE-S", "SKU-BLUE-XL"}, codes)
	assert.Equal(t, int64(40), product.TotalQuantity)

	price := int64(15000)
	product, err = service.ApplyBulkEdit(ctx, product.ID, "usr_1", "ven_1", &variants.Selection{KeyName: "color", Value: "Blue"}, variants.BulkEdit{PriceCents: &price}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), product.PriceMinCents)
	assert.Equal(t, int64(20000), product.PriceMaxCents)

	product, found, err := service.UpdateVariantField(product.ID, "usr_1", "ven_1", "SKU-RED-S", variants.FieldQuantity, "3")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int32(3), product.Variants[0].Quantity)

	_, found, err = service.UpdateVariantField(product.ID, "usr_1", "ven_1", "NON_EXISTENT_SKU", variants.FieldPrice, "1")
	require.NoError(t, err)
	assert.False(t, found)

	product, removed, err := service.RemoveAttribute(ctx, product.ID, "usr_1", "ven_1", "size")
	require.NoError(t, err)
	require.True(t, removed)
	require.Len(t, product.Variants, 2)
	assert.Equal(t, "SKU-RED", product.Variants[0].SKUCode)

	assert.Contains(t, recorder.Types(), events.ProductVariantsRegenerated)
	for _, event := range recorder.Events() {
		assert.Equal(t, product.ID, event.ProductID)
	}
}

func TestQuantityEditKeepsApproval(t *testing.T) {
	service, _ := newTestService(t, nil)
	product := createProduct(t, service, CreateProductInput{
		Title:          "Tee",
		BasePriceCents: 1000,
		Status:         ProductStatusApproved,
		Attributes:     []variants.Attribute{{KeyName: "color", DisplayName: "Color", Values: []string{"Red"}, AllowMultiple: true}},
	})

	product, _, err := service.UpdateVariantField(product.ID, "usr_1", "ven_1", "SKU-RED", variants.FieldQuantity, "7")
	require.NoError(t, err)
	assert.Equal(t, ProductStatusApproved, product.Status)

	product, _, err = service.UpdateVariantField(product.ID, "usr_1", "ven_1", "SKU-RED", variants.FieldPrice, "900")
	require.NoError(t, err)
	assert.Equal(t, ProductStatusDraft, product.Status)
}

type failingUploader struct{}

func (failingUploader) UploadImage(context.Context, variants.ImageUpload) (string, error) {
	return "", errors.New("storage offline")
}

func TestBulkEditUploadFailureLeavesProductUntouched(t *testing.T) {
	service, _ := newTestService(t, nil)
	product := createProduct(t, service, CreateProductInput{
		Title:          "Tee",
		BasePriceCents: 1000,
		Attributes:     []variants.Attribute{{KeyName: "color", DisplayName: "Color", Values: []string{"Red", "Blue"}, AllowMultiple: true}},
	})

	price := int64(1)
	_, err := service.ApplyBulkEdit(context.Background(), product.ID, "usr_1", "ven_1", nil, variants.BulkEdit{
		PriceCents: &price,
		Image:      &variants.ImageUpload{Body: strings.NewReader("png"), Filename: "a.png"},
	}, failingUploader{})
	assert.ErrorIs(t, err, variants.ErrImageUpload)

	stored, ok := service.GetProductByID(product.ID)
	require.True(t, ok)
	assert.Equal(t, product.Variants, stored.Variants)

	_, err = service.ApplyBulkEdit(context.Background(), product.ID, "usr_2", "ven_1", nil, variants.BulkEdit{PriceCents: &price}, nil)
	assert.ErrorIs(t, err, ErrUnauthorizedProductAccess)
}

type countingUploader struct {
	uploads int
}

func (u *countingUploader) UploadImage(context.Context, variants.ImageUpload) (string, error) {
	u.uploads++
	return "https://cdn.test/variant.png", nil
}

func TestBulkEditWithUnmatchedScopeSkipsUpload(t *testing.T) {
	service, _ := newTestService(t, nil)
	product := createProduct(t, service, CreateProductInput{
		Title:          "Tee",
		BasePriceCents: 1000,
		Attributes:     []variants.Attribute{{KeyName: "color", DisplayName: "Color", Values: []string{"Red", "Blue"}, AllowMultiple: true}},
	})

	uploader := &countingUploader{}
	price := int64(1)
	edit := variants.BulkEdit{
		PriceCents: &price,
		Image:      &variants.ImageUpload{Body: strings.NewReader("png"), Filename: "a.png"},
	}
	updated, err := service.ApplyBulkEdit(context.Background(), product.ID, "usr_1", "ven_1", &variants.Selection{KeyName: "color", Value: "Green"}, edit, uploader)
	require.NoError(t, err)
	assert.Equal(t, 0, uploader.uploads)
	assert.Equal(t, product.Variants, updated.Variants)

	edit.Image = &variants.ImageUpload{Body: strings.NewReader("png"), Filename: "a.png"}
	updated, err = service.ApplyBulkEdit(context.Background(), product.ID, "usr_1", "ven_1", &variants.Selection{KeyName: "color", Value: "Red"}, edit, uploader)
	require.NoError(t, err)
	assert.Equal(t, 1, uploader.uploads)
	assert.Equal(t, "https://cdn.test/variant.png", updated.Variants[0].ImageURL)
	assert.Equal(t, int64(1), updated.Variants[0].PriceCents)
	assert.Equal(t, int64(1000), updated.Variants[1].PriceCents)
}

func TestParseProductStatus(t *testing.T) {
	status, err := ParseProductStatus(" Pending_Approval ")
	require.NoError(t, err)
	assert.Equal(t, ProductStatusPendingApproval, status)

	_, err = ParseProductStatus("archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	assert.True(t, UpdateProductInput{}.Empty())
	title := "x"
	assert.False(t, UpdateProductInput{Title: &title}.Empty())
}

func TestUnchangedContentKeepsApproval(t *testing.T) {
	service, _ := newTestService(t, nil)
	product := createProduct(t, service, CreateProductInput{
		Title:          "Tote Bag",
		Tags:           []string{"Canvas", "bags"},
		CategorySlug:   "bags",
		BasePriceCents: 1800,
		Status:         ProductStatusApproved,
	})

	tags := []string{" canvas", "BAGS", "canvas"}
	title := "Tote Bag"
	updated, err := service.UpdateProduct(product.ID, "usr_1", "ven_1", UpdateProductInput{Title: &title, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, ProductStatusApproved, updated.Status)
	assert.Equal(t, []string{"canvas", "bags"}, updated.Tags)

	category := "Travel-Gear"
	updated, err = service.UpdateProduct(product.ID, "usr_1", "ven_1", UpdateProductInput{CategorySlug: &category})
	require.NoError(t, err)
	assert.Equal(t, ProductStatusDraft, updated.Status)
	assert.Equal(t, "travel-gear", updated.CategorySlug)
	assert.Contains(t, service.ListCategories(), Category{Slug: "travel-gear", Name: "Travel Gear"})

	blank := "  "
	_, err = service.UpdateProduct(product.ID, "usr_1", "ven_1", UpdateProductInput{Currency: &blank})
	assert.ErrorIs(t, err, ErrInvalidProductInput)
}
