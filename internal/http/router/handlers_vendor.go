package router

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/yxshee/marketplace-storefront/internal/auth"
	"github.com/yxshee/marketplace-storefront/internal/events"
	"github.com/yxshee/marketplace-storefront/internal/vendors"
)

type shopRegistration struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
}

type verificationDecision struct {
	State  string `json:"state"`
	Reason string `json:"reason"`
}

type commissionOverride struct {
	CommissionOverrideBPS int32 `json:"commission_override_bps"`
}

// storefrontVendor is the public face of a shop. Verification history and
// commission stay private.
type storefrontVendor struct {
	ID           string               `json:"id"`
	Slug         string               `json:"slug"`
	DisplayName  string               `json:"display_name"`
	Settings     vendors.ShopSettings `json:"settings"`
	ProductCount int                  `json:"product_count"`
}

var vendorErrorStatus = []struct {
	err     error
	status  int
	message string
}{
	{vendors.ErrVendorNotFound, http.StatusNotFound, "vendor not found"},
	{vendors.ErrOwnerAlreadyVendor, http.StatusConflict, "user already owns a vendor"},
	{vendors.ErrSlugInUse, http.StatusConflict, "vendor slug unavailable"},
	{vendors.ErrInvalidTransition, http.StatusConflict, "verification state change not allowed"},
	{vendors.ErrInvalidSlug, http.StatusBadRequest, vendors.ErrInvalidSlug.Error()},
	{vendors.ErrInvalidState, http.StatusBadRequest, "invalid verification state"},
	{vendors.ErrInvalidSettings, http.StatusBadRequest, "invalid shop settings"},
	{vendors.ErrInvalidCommission, http.StatusBadRequest, "commission must be between 0 and 10000 bps"},
}

func writeVendorError(w http.ResponseWriter, err error, fallback string) {
	for _, known := range vendorErrorStatus {
		if errors.Is(err, known.err) {
			writeError(w, known.status, known.message)
			return
		}
	}
	writeError(w, http.StatusBadRequest, fallback)
}

// handleVendorRegister opens a pending shop for the caller and links it to
// their account. Staff accounts cannot sell.
func (a *api) handleVendorRegister(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if identity.Role.IsStaff() {
		writeError(w, http.StatusForbidden, "staff accounts cannot own a vendor")
		return
	}

	var req shopRegistration
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	shop, err := a.vendorService.Register(identity.UserID, req.Slug, req.DisplayName)
	if err != nil {
		writeVendorError(w, err, "unable to register vendor")
		return
	}
	if _, err := a.authService.AttachVendor(identity.UserID, shop.ID); err != nil {
		a.logger.WithError(err).WithField("vendor_id", shop.ID).Error("vendor not linked to owner")
		writeError(w, http.StatusInternalServerError, "unable to link vendor")
		return
	}

	a.recordAuditLog(r, "vendor.registered", "vendor", shop.ID, nil, shop, nil)
	writeJSON(w, http.StatusCreated, shop)
}

func (a *api) handleVendorVerificationStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireIdentity(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	shop, exists := a.vendorService.GetByOwner(identity.UserID)
	if !exists {
		writeError(w, http.StatusNotFound, "vendor not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vendor_id":          shop.ID,
		"verification_state": shop.VerificationState,
		"can_sell":           shop.CanSell(),
		"history":            shop.VerificationHistory,
	})
}

func (a *api) handleVendorPublicProfile(w http.ResponseWriter, r *http.Request) {
	shop, exists := a.vendorService.GetBySlug(chi.URLParam(r, "slug"))
	if !exists || !shop.CanSell() {
		writeError(w, http.StatusNotFound, "vendor not found")
		return
	}

	listed := a.catalogService.Search(searchAllForVendor(shop.ID), a.vendorVisible)
	writeJSON(w, http.StatusOK, storefrontVendor{
		ID:           shop.ID,
		Slug:         shop.Slug,
		DisplayName:  shop.DisplayName,
		Settings:     shop.Settings,
		ProductCount: listed.Total,
	})
}

func (a *api) handleVendorSettingsGet(w http.ResponseWriter, r *http.Request) {
	if _, shop, ok := a.vendorOwnerContext(w, r); ok {
		writeJSON(w, http.StatusOK, shop)
	}
}

func (a *api) handleVendorSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	_, shop, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	var patch vendors.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := a.vendorService.UpdateSettings(shop.ID, patch)
	if err != nil {
		writeVendorError(w, err, "unable to update shop settings")
		return
	}

	a.recordAuditLog(r, "vendor.settings_updated", "vendor", updated.ID, shop.Settings, updated.Settings, nil)
	writeJSON(w, http.StatusOK, updated)
}

func (a *api) handleAdminVendorList(w http.ResponseWriter, r *http.Request) {
	var filter *vendors.VerificationState
	if raw := r.URL.Query().Get("verification_state"); strings.TrimSpace(raw) != "" {
		state, err := vendors.ParseVerificationState(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid verification state filter")
			return
		}
		filter = &state
	}

	items := a.vendorService.List(filter)
	writeList(w, items, len(items))
}

// handleAdminVendorVerification applies a verification decision. Suspending or
// rejecting a shop hides its products from the storefront immediately.
func (a *api) handleAdminVendorVerification(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "vendorID")
	before, exists := a.vendorService.GetByID(vendorID)
	if !exists {
		writeError(w, http.StatusNotFound, "vendor not found")
		return
	}

	var req verificationDecision
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	state, err := vendors.ParseVerificationState(req.State)
	if err != nil {
		writeVendorError(w, err, "invalid verification state")
		return
	}

	updated, err := a.vendorService.SetVerificationState(vendorID, state, req.Reason)
	if err != nil {
		writeVendorError(w, err, "unable to update verification")
		return
	}

	if before.VerificationState != updated.VerificationState {
		a.logger.WithFields(logrus.Fields{
			"vendor_id": vendorID,
			"from":      before.VerificationState,
			"to":        updated.VerificationState,
		}).Info("vendor verification changed")
		a.recordAuditLog(r, "vendor.verification_changed", "vendor", vendorID, before.VerificationState, updated.VerificationState, auditMetadata{
			"reason": strings.TrimSpace(req.Reason),
		})
		identity, _ := auth.IdentityFromContext(r.Context())
		event := events.New(events.VendorVerificationChanged, "", vendorID, identity.UserID, map[string]any{
			"from":   before.VerificationState,
			"to":     updated.VerificationState,
			"reason": strings.TrimSpace(req.Reason),
		})
		if err := a.events.Publish(r.Context(), event); err != nil {
			a.logger.WithError(err).WithField("vendor_id", vendorID).Warn("verification event not published")
		}
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *api) handleAdminVendorCommission(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "vendorID")
	before, exists := a.vendorService.GetByID(vendorID)
	if !exists {
		writeError(w, http.StatusNotFound, "vendor not found")
		return
	}

	var req commissionOverride
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := a.vendorService.SetCommission(vendorID, req.CommissionOverrideBPS)
	if err != nil {
		writeVendorError(w, err, "unable to update commission")
		return
	}

	a.recordAuditLog(r, "vendor.commission_changed", "vendor", vendorID, before.CommissionOverrideBPS, updated.CommissionOverrideBPS, auditMetadata{
		"default_commission_bps": a.defaultCommBPS,
	})
	writeJSON(w, http.StatusOK, updated)
}

func (a *api) vendorVisible(vendorID string) bool {
	shop, exists := a.vendorService.GetByID(vendorID)
	return exists && shop.CanSell()
}
