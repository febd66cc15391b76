package router

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yxshee/marketplace-storefront/internal/attributes"
)

type adminAttributeRequest struct {
	DisplayName   string   `json:"display_name"`
	Values        []string `json:"values"`
	AllowMultiple bool     `json:"allow_multiple"`
	Creatable     bool     `json:"creatable"`
}

type adminAttributeValuesRequest struct {
	Values []string `json:"values"`
}

func writeAttributeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, attributes.ErrAttributeNotFound):
		writeError(w, http.StatusNotFound, "attribute not found")
	case errors.Is(err, attributes.ErrNotCreatable):
		writeError(w, http.StatusConflict, "attribute does not accept new values")
	case errors.Is(err, attributes.ErrInvalidDefinition):
		writeError(w, http.StatusBadRequest, "invalid attribute definition")
	case errors.Is(err, attributes.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, "attribute catalog unavailable")
	default:
		writeError(w, http.StatusBadRequest, fallback)
	}
}

func (a *api) handleAttributeCatalogList(w http.ResponseWriter, _ *http.Request) {
	items := a.attributes.List()
	writeList(w, items, len(items))
}

func (a *api) handleAdminAttributeUpsert(w http.ResponseWriter, r *http.Request) {
	keyName := chi.URLParam(r, "keyName")

	var req adminAttributeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	before, _ := a.attributes.Get(keyName)
	definition, err := a.attributes.Upsert(r.Context(), attributes.UpsertInput{
		KeyName:       keyName,
		DisplayName:   req.DisplayName,
		Values:        req.Values,
		AllowMultiple: req.AllowMultiple,
		Creatable:     req.Creatable,
	})
	if err != nil {
		writeAttributeError(w, err, "unable to save attribute")
		return
	}

	a.recordAuditLog(r, "attribute.upserted", "attribute", definition.KeyName, before, definition, nil)
	writeJSON(w, http.StatusOK, definition)
}

func (a *api) handleAdminAttributeAddValues(w http.ResponseWriter, r *http.Request) {
	keyName := chi.URLParam(r, "keyName")

	var req adminAttributeValuesRequest
	if err := decodeJSON(r, &req); err != nil || len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values are required")
		return
	}

	before, _ := a.attributes.Get(keyName)
	definition, err := a.attributes.AddValues(r.Context(), keyName, req.Values)
	if err != nil {
		writeAttributeError(w, err, "unable to add attribute values")
		return
	}

	a.recordAuditLog(r, "attribute.values_added", "attribute", keyName, before, definition, nil)
	writeJSON(w, http.StatusOK, definition)
}

func (a *api) handleAdminAttributeDelete(w http.ResponseWriter, r *http.Request) {
	keyName := chi.URLParam(r, "keyName")
	before, _ := a.attributes.Get(keyName)

	if err := a.attributes.Delete(r.Context(), keyName); err != nil {
		writeAttributeError(w, err, "unable to delete attribute")
		return
	}

	a.recordAuditLog(r, "attribute.deleted", "attribute", keyName, before, nil, nil)
	w.WriteHeader(http.StatusNoContent)
}
