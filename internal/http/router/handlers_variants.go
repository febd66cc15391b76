package router

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/yxshee/marketplace-storefront/internal/catalog"
	"github.com/yxshee/marketplace-storefront/internal/spreadsheet"
	"github.com/yxshee/marketplace-storefront/internal/variants"
)

const spreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type variantSelectRequest struct {
	KeyName string `json:"key_name"`
}

type variantCustomAttributeRequest struct {
	DisplayName   string `json:"display_name"`
	AllowMultiple bool   `json:"allow_multiple"`
	Values        string `json:"values"`
}

type variantValuesRequest struct {
	Values []string `json:"values"`
}

type variantBulkRequest struct {
	PriceCents *int64              `json:"price_cents"`
	Quantity   *int32              `json:"quantity"`
	ImageURL   string              `json:"image_url"`
	Scope      *variants.Selection `json:"scope"`
}

type variantFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type variantEditorResponse struct {
	Item       catalog.Product             `json:"item"`
	Submission []variants.SubmissionRecord `json:"submission"`
}

func editorResponse(product catalog.Product) variantEditorResponse {
	return variantEditorResponse{
		Item:       product,
		Submission: variants.Submission(product.Attributes, product.Variants),
	}
}

func (a *api) handleVariantSelectAttribute(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	var req variantSelectRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.KeyName) == "" {
		writeError(w, http.StatusBadRequest, "key_name is required")
		return
	}

	product, added, err := a.catalogService.SelectAttribute(r.Context(), chi.URLParam(r, "productID"), identity.UserID, registeredVendor.ID, strings.TrimSpace(req.KeyName))
	if err != nil {
		writeCatalogError(w, err, "unable to select attribute")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"added":      added,
		"item":       product,
		"submission": variants.Submission(product.Attributes, product.Variants),
	})
}

func (a *api) handleVariantDefineCustom(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")

	var req variantCustomAttributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, attribute, err := a.catalogService.DefineCustomAttribute(r.Context(), productID, identity.UserID, registeredVendor.ID, req.DisplayName, req.AllowMultiple, req.Values)
	if err != nil {
		writeCatalogError(w, err, "unable to define attribute")
		return
	}

	a.recordAuditLog(r, "product.attribute_defined", "product", productID, nil, attribute, auditMetadata{
		"variant_count": len(product.Variants),
	})
	writeJSON(w, http.StatusCreated, editorResponse(product))
}

func (a *api) handleVariantUpdateValues(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	keyName := chi.URLParam(r, "keyName")

	var req variantValuesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, result, err := a.catalogService.UpdateAttributeValues(r.Context(), productID, identity.UserID, registeredVendor.ID, keyName, req.Values)
	if err != nil {
		writeCatalogError(w, err, "unable to update attribute values")
		return
	}
	if !result.Found {
		writeError(w, http.StatusNotFound, "attribute not selected on product")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item":       product,
		"submission": variants.Submission(product.Attributes, product.Variants),
		"ad_hoc":     result.AdHoc,
	})
}

func (a *api) handleVariantRemoveAttribute(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	keyName := chi.URLParam(r, "keyName")

	product, removed, err := a.catalogService.RemoveAttribute(r.Context(), productID, identity.UserID, registeredVendor.ID, keyName)
	if err != nil {
		writeCatalogError(w, err, "unable to remove attribute")
		return
	}
	if removed {
		a.recordAuditLog(r, "product.attribute_removed", "product", productID, nil, nil, auditMetadata{
			"key_name":      keyName,
			"variant_count": len(product.Variants),
		})
	}

	writeJSON(w, http.StatusOK, editorResponse(product))
}

// handleVariantBulkEdit accepts either a JSON body or a multipart form carrying
// an "image" file next to the price_cents, quantity, scope_key and scope_value
// fields.
func (a *api) handleVariantBulkEdit(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")

	var (
		edit  variants.BulkEdit
		scope *variants.Selection
	)
	if isMultipart(r) {
		upload, err := a.readUpload(w, r, "image")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			writeUploadError(w, err)
			return
		}
		if upload != nil {
			defer upload.Close()
			edit.Image = &variants.ImageUpload{
				Body:        upload,
				Filename:    upload.filename,
				ContentType: upload.contentType,
				Size:        upload.size,
			}
		}
		if edit, scope, err = bulkEditFromForm(r, edit); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var req variantBulkRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		edit = variants.BulkEdit{PriceCents: req.PriceCents, Quantity: req.Quantity, ImageURL: req.ImageURL}
		scope = req.Scope
	}
	if edit.Empty() {
		writeError(w, http.StatusBadRequest, "bulk edit changes nothing")
		return
	}
	if scope != nil && (strings.TrimSpace(scope.KeyName) == "" || strings.TrimSpace(scope.Value) == "") {
		writeError(w, http.StatusBadRequest, "scope requires key_name and value")
		return
	}

	product, err := a.catalogService.ApplyBulkEdit(r.Context(), productID, identity.UserID, registeredVendor.ID, scope, edit, a.assets)
	if err != nil {
		if errors.Is(err, variants.ErrImageUpload) && isClientUploadError(err) {
			writeUploadError(w, err)
			return
		}
		writeCatalogError(w, err, "unable to apply bulk edit")
		return
	}

	metadata := auditMetadata{"matched": len(product.Variants)}
	if scope != nil {
		metadata["scope_key"] = scope.KeyName
		metadata["scope_value"] = scope.Value
		metadata["matched"] = variants.MatchCount(product.Variants, *scope)
	}
	a.recordAuditLog(r, "product.variants_bulk_edited", "product", productID, nil, nil, metadata)
	writeJSON(w, http.StatusOK, editorResponse(product))
}

func (a *api) handleVariantUpdateField(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	var req variantFieldRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	field, err := variants.ParseField(req.Field)
	if err != nil {
		writeCatalogError(w, err, "unknown variant field")
		return
	}

	product, found, err := a.catalogService.UpdateVariantField(chi.URLParam(r, "productID"), identity.UserID, registeredVendor.ID, chi.URLParam(r, "sku"), field, req.Value)
	if err != nil {
		writeCatalogError(w, err, "unable to update variant")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "variant not found")
		return
	}

	writeJSON(w, http.StatusOK, editorResponse(product))
}

func (a *api) handleVariantRowImage(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")
	skuCode := chi.URLParam(r, "sku")

	current, err := a.catalogService.GetOwnedProduct(productID, identity.UserID, registeredVendor.ID)
	if err != nil {
		writeCatalogError(w, err, "unable to load product")
		return
	}
	if !hasVariant(current.Variants, skuCode) {
		writeError(w, http.StatusNotFound, "variant not found")
		return
	}

	upload, err := a.readUpload(w, r, "image")
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer upload.Close()

	imageURL, err := a.assets.UploadImage(r.Context(), variants.ImageUpload{
		Body:        upload,
		Filename:    upload.filename,
		ContentType: upload.contentType,
		Size:        upload.size,
	})
	if err != nil {
		writeUploadError(w, err)
		return
	}

	product, found, err := a.catalogService.UpdateVariantField(productID, identity.UserID, registeredVendor.ID, skuCode, variants.FieldImageURL, imageURL)
	if err != nil {
		writeCatalogError(w, err, "unable to update variant")
		return
	}
	if !found {
		writeError(w, http.StatusConflict, "variant changed during upload")
		return
	}

	writeJSON(w, http.StatusOK, editorResponse(product))
}

func (a *api) handleVariantExport(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	product, err := a.catalogService.GetOwnedProduct(chi.URLParam(r, "productID"), identity.UserID, registeredVendor.ID)
	if err != nil {
		writeCatalogError(w, err, "unable to load product")
		return
	}

	var buf bytes.Buffer
	if err := spreadsheet.Export(&buf, product.Attributes, product.Variants); err != nil {
		a.logger.WithError(err).WithField("product_id", product.ID).Error("variant export failed")
		writeError(w, http.StatusInternalServerError, "unable to export variants")
		return
	}

	w.Header().Set("Content-Type", spreadsheetContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-variants.xlsx"`, product.ID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		a.logger.WithError(err).Debug("variant export interrupted")
	}
}

func (a *api) handleVariantImport(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	productID := chi.URLParam(r, "productID")

	upload, err := a.readUpload(w, r, "file")
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer upload.Close()

	var report spreadsheet.Report
	product, err := a.catalogService.EditVariants(productID, identity.UserID, registeredVendor.ID, func(current []variants.Variant) ([]variants.Variant, error) {
		updated, imported, err := spreadsheet.Import(upload, current)
		report = imported
		return updated, err
	})
	if err != nil {
		switch {
		case errors.Is(err, spreadsheet.ErrInvalidWorkbook):
			writeError(w, http.StatusBadRequest, "file is not a readable xlsx workbook")
		case errors.Is(err, spreadsheet.ErrMissingSKUColumn):
			writeError(w, http.StatusBadRequest, "workbook has no sku column")
		default:
			writeCatalogError(w, err, "unable to import variants")
		}
		return
	}

	a.recordAuditLog(r, "product.variants_imported", "product", productID, nil, nil, auditMetadata{
		"updated":      report.Updated,
		"unknown_skus": len(report.UnknownSKUs),
		"row_errors":   len(report.Errors),
	})
	a.logger.WithFields(logrus.Fields{
		"product_id": productID,
		"updated":    report.Updated,
		"row_errors": len(report.Errors),
	}).Info("variant spreadsheet imported")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item":   product,
		"report": report,
	})
}

func bulkEditFromForm(r *http.Request, edit variants.BulkEdit) (variants.BulkEdit, *variants.Selection, error) {
	if raw := strings.TrimSpace(r.FormValue("price_cents")); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return edit, nil, errors.New("price_cents must be an integer")
		}
		edit.PriceCents = &price
	}
	if raw := strings.TrimSpace(r.FormValue("quantity")); raw != "" {
		quantity, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return edit, nil, errors.New("quantity must be an integer")
		}
		value := int32(quantity)
		edit.Quantity = &value
	}
	edit.ImageURL = strings.TrimSpace(r.FormValue("image_url"))

	keyName := strings.TrimSpace(r.FormValue("scope_key"))
	value := strings.TrimSpace(r.FormValue("scope_value"))
	if keyName == "" && value == "" {
		return edit, nil, nil
	}
	return edit, &variants.Selection{KeyName: keyName, Value: value}, nil
}

func hasVariant(rows []variants.Variant, skuCode string) bool {
	for _, row := range rows {
		if row.SKUCode == skuCode {
			return true
		}
	}
	return false
}
