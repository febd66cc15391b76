package router

import (
	"context"

	"github.com/yxshee/marketplace-storefront/internal/attributes"
	"github.com/yxshee/marketplace-storefront/internal/catalog"
	"github.com/yxshee/marketplace-storefront/internal/variants"
	"github.com/yxshee/marketplace-storefront/internal/vendors"
)

var seedAttributes = []attributes.UpsertInput{
	{KeyName: "color", DisplayName: "Color", Values: []string{"Black", "White", "Sand", "Forest Green"}, AllowMultiple: true, Creatable: true},
	{KeyName: "size", DisplayName: "Size", Values: []string{"XS", "S", "M", "L", "XL"}, AllowMultiple: true},
	{KeyName: "paper", DisplayName: "Paper", Values: []string{"Dotted", "Lined", "Blank"}, AllowMultiple: true, Creatable: true},
}

func (a *api) seedDevelopmentCatalog(ctx context.Context) {
	if len(a.attributes.List()) == 0 {
		for _, input := range seedAttributes {
			if _, err := a.attributes.Upsert(ctx, input); err != nil {
				a.logger.WithError(err).WithField("key_name", input.KeyName).Warn("seed attribute skipped")
			}
		}
	}
	if len(a.catalogService.ListVisibleProducts(func(string) bool { return true })) > 0 {
		return
	}

	for slug, name := range map[string]string{"stationery": "Stationery", "prints": "Prints", "apparel": "Apparel"} {
		if _, err := a.catalogService.UpsertCategory(slug, name); err != nil {
			a.logger.WithError(err).WithField("slug", slug).Warn("seed category skipped")
		}
	}

	ownerA := "seed-owner-a"
	ownerB := "seed-owner-b"
	for owner, profile := range map[string][2]string{
		ownerA: {"north-studio", "North Studio"},
		ownerB: {"line-press", "Line Press"},
	} {
		registered, err := a.vendorService.Register(owner, profile[0], profile[1])
		if err != nil {
			continue
		}
		if _, err := a.vendorService.SetVerificationState(registered.ID, vendors.VerificationVerified, "development seed"); err != nil {
			a.logger.WithError(err).WithField("vendor_id", registered.ID).Warn("seed vendor not verified")
		}
	}

	seed := func(input catalog.CreateProductInput) {
		if _, err := a.catalogService.CreateProductWithInput(input); err != nil {
			a.logger.WithError(err).WithField("title", input.Title).Warn("seed product skipped")
		}
	}

	if firstVendor, ok := a.vendorService.GetByOwner(ownerA); ok {
		seed(catalog.CreateProductInput{
			OwnerUserID:    ownerA,
			VendorID:       firstVendor.ID,
			Title:          "Grid Notebook",
			Description:    "A minimal notebook with **soft cover** and a choice of pages.",
			CategorySlug:   "stationery",
			Tags:           []string{"notebook", "paper", "grid"},
			BasePriceCents: 2200,
			BaseQuantity:   25,
			Currency:       "USD",
			RatingAverage:  4.8,
			Status:         catalog.ProductStatusApproved,
			Attributes: []variants.Attribute{
				{KeyName: "paper", DisplayName: "Paper", Values: []string{"Dotted", "Lined", "Blank"}, AllowMultiple: true},
			},
			Variants: []variants.SubmissionRecord{
				{SKU: "SKU-DOTTED", Price: 2400, Quantity: 40},
			},
		})
		seed(catalog.CreateProductInput{
			OwnerUserID:    ownerA,
			VendorID:       firstVendor.ID,
			Title:          "Studio Tee",
			Description:    "Heavyweight cotton tee printed in small batches.",
			CategorySlug:   "apparel",
			Tags:           []string{"tee", "cotton"},
			BasePriceCents: 3500,
			BaseQuantity:   10,
			Currency:       "USD",
			RatingAverage:  4.5,
			Status:         catalog.ProductStatusApproved,
			Attributes: []variants.Attribute{
				{KeyName: "color", DisplayName: "Color", Values: []string{"Black", "Sand"}, AllowMultiple: true},
				{KeyName: "size", DisplayName: "Size", Values: []string{"S", "M", "L"}, AllowMultiple: true},
			},
		})
	}

	if secondVendor, ok := a.vendorService.GetByOwner(ownerB); ok {
		seed(catalog.CreateProductInput{
			OwnerUserID:    ownerB,
			VendorID:       secondVendor.ID,
			Title:          "Monochrome Poster Print",
			Description:    "Museum-grade paper print for modern workspaces.",
			CategorySlug:   "prints",
			Tags:           []string{"poster", "print", "art"},
			BasePriceCents: 4800,
			BaseQuantity:   19,
			Currency:       "USD",
			RatingAverage:  4.9,
			Status:         catalog.ProductStatusApproved,
		})
	}
}
