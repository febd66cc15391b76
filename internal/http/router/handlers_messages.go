package router

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yxshee/marketplace-storefront/internal/auth"
	"github.com/yxshee/marketplace-storefront/internal/catalog"
	"github.com/yxshee/marketplace-storefront/internal/messaging"
)

type startThreadRequest struct {
	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type postMessageRequest struct {
	Body string `json:"body"`
}

func writeMessagingError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, messaging.ErrThreadNotFound):
		writeError(w, http.StatusNotFound, "thread not found")
	case errors.Is(err, messaging.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, messaging.ErrInvalidMessage),
		errors.Is(err, messaging.ErrInvalidThread),
		errors.Is(err, messaging.ErrMessageToSelf):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadRequest, fallback)
	}
}

func buyerParticipant(identity auth.Identity) messaging.Participant {
	return messaging.Participant{UserID: identity.UserID}
}

func (a *api) handleBuyerThreads(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	items := a.messages.ListForBuyer(identity.UserID)
	writeList(w, items, len(items))
}

func (a *api) handleBuyerStartThread(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req startThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	vendorID := strings.TrimSpace(req.VendorID)
	productID := strings.TrimSpace(req.ProductID)
	if productID != "" {
		product, exists := a.catalogService.GetProductByID(productID)
		if !exists || product.Status != catalog.ProductStatusApproved {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		if vendorID != "" && vendorID != product.VendorID {
			writeError(w, http.StatusBadRequest, "product belongs to another vendor")
			return
		}
		vendorID = product.VendorID
	}
	if vendorID == "" || !a.vendorVisible(vendorID) {
		writeError(w, http.StatusNotFound, "vendor not found")
		return
	}

	buyer := buyerParticipant(identity)
	buyer.VendorID = identity.LinkedVendor()
	thread, created, err := a.messages.StartThread(buyer, vendorID, productID, req.Subject)
	if err != nil {
		writeMessagingError(w, err, "unable to start thread")
		return
	}

	if strings.TrimSpace(req.Body) != "" {
		if _, err := a.messages.Post(thread.ID, buyerParticipant(identity), req.Body); err != nil {
			writeMessagingError(w, err, "unable to post message")
			return
		}
		if thread, _, err = a.messages.Messages(thread.ID, buyerParticipant(identity)); err != nil {
			writeMessagingError(w, err, "unable to load thread")
			return
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, thread)
}

func (a *api) handleBuyerThreadMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	a.writeThread(w, chi.URLParam(r, "threadID"), buyerParticipant(identity))
}

func (a *api) handleBuyerPostMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	a.postMessage(w, r, buyerParticipant(identity))
}

func (a *api) handleVendorThreads(w http.ResponseWriter, r *http.Request) {
	_, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	items := a.messages.ListForVendor(registeredVendor.ID)
	writeList(w, items, len(items))
}

func (a *api) handleVendorThreadMessages(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	a.writeThread(w, chi.URLParam(r, "threadID"), messaging.Participant{UserID: identity.UserID, VendorID: registeredVendor.ID})
}

func (a *api) handleVendorPostMessage(w http.ResponseWriter, r *http.Request) {
	identity, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}
	a.postMessage(w, r, messaging.Participant{UserID: identity.UserID, VendorID: registeredVendor.ID})
}

func (a *api) writeThread(w http.ResponseWriter, threadID string, reader messaging.Participant) {
	thread, messages, err := a.messages.Messages(threadID, reader)
	if err != nil {
		writeMessagingError(w, err, "unable to load thread")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"thread":   thread,
		"messages": messages,
	})
}

func (a *api) postMessage(w http.ResponseWriter, r *http.Request, sender messaging.Participant) {
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := a.messages.Post(chi.URLParam(r, "threadID"), sender, req.Body)
	if err != nil {
		writeMessagingError(w, err, "unable to post message")
		return
	}
	writeJSON(w, http.StatusCreated, message)
}
