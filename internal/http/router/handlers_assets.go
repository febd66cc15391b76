package router

import (
	"errors"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yxshee/marketplace-storefront/internal/storage"
)

const multipartMemory = 8 << 20

type uploadedFile struct {
	multipart.File
	filename    string
	contentType string
	size        int64
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// readUpload parses a multipart body capped at the upload limit and opens the
// named file field. The caller closes the file.
func (a *api) readUpload(w http.ResponseWriter, r *http.Request, field string) (*uploadedFile, error) {
	limit := a.maxUploadBytes
	if limit <= 0 {
		limit = 25 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	return &uploadedFile{
		File:        file,
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		size:        header.Size,
	}, nil
}

func isClientUploadError(err error) bool {
	return errors.Is(err, storage.ErrUnsupportedType) ||
		errors.Is(err, storage.ErrEmptyUpload) ||
		errors.Is(err, storage.ErrTooLarge)
}

func writeUploadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr), errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
	case errors.Is(err, http.ErrMissingFile):
		writeError(w, http.StatusBadRequest, "file is required")
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, multipart.ErrMessageTooLarge):
		writeError(w, http.StatusBadRequest, "multipart form required")
	case errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
	case errors.Is(err, storage.ErrEmptyUpload):
		writeError(w, http.StatusBadRequest, "empty upload")
	case errors.Is(err, storage.ErrUploadFailed):
		writeError(w, http.StatusBadGateway, "asset upload failed")
	default:
		writeError(w, http.StatusBadRequest, "invalid upload")
	}
}

func (a *api) handleVendorAssetUpload(w http.ResponseWriter, r *http.Request) {
	_, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	upload, err := a.readUpload(w, r, "file")
	if err != nil {
		writeUploadError(w, err)
		return
	}
	defer upload.Close()

	rawType := strings.TrimSpace(r.FormValue("resource_type"))
	if rawType == "" {
		rawType = string(storage.ResourceImage)
	}
	resourceType, valid := storage.ParseResourceType(rawType)
	if !valid {
		writeError(w, http.StatusBadRequest, "resource_type must be image or video")
		return
	}

	asset, err := a.assets.Upload(r.Context(), upload, storage.UploadInput{
		ResourceType: resourceType,
		Filename:     upload.filename,
		ContentType:  upload.contentType,
	})
	if err != nil {
		writeUploadError(w, err)
		return
	}

	a.recordAuditLog(r, "asset.uploaded", "asset", asset.PublicID, nil, asset, auditMetadata{
		"vendor_id": registeredVendor.ID,
	})
	writeJSON(w, http.StatusCreated, asset)
}

func (a *api) handleVendorAssetDelete(w http.ResponseWriter, r *http.Request) {
	_, registeredVendor, ok := a.vendorOwnerContext(w, r)
	if !ok {
		return
	}

	publicID := chi.URLParam(r, "publicID")
	if err := a.assets.Delete(r.Context(), publicID); err != nil {
		switch {
		case errors.Is(err, storage.ErrEmptyUpload):
			writeError(w, http.StatusBadRequest, "public id is required")
			return
		case errors.Is(err, fs.ErrNotExist):
			writeError(w, http.StatusNotFound, "asset not found")
			return
		}
		a.logger.WithError(err).WithField("public_id", publicID).Warn("asset delete failed")
		writeError(w, http.StatusBadGateway, "unable to delete asset")
		return
	}

	a.recordAuditLog(r, "asset.deleted", "asset", publicID, nil, nil, auditMetadata{
		"vendor_id": registeredVendor.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}
