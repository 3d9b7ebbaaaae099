package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/storage"
)

// PhotoStore persists evidence photos and returns their public URL.
type PhotoStore interface {
	Upload(ctx context.Context, familyID, contentType string, body io.Reader, size int64) (string, error)
}

type UploadHandler struct {
	photos PhotoStore
	logger *slog.Logger
}

// NewUploadHandler accepts a nil store, in which case uploads answer 501.
func NewUploadHandler(photos PhotoStore, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{photos: photos, logger: logger}
}

// Upload handles POST /api/uploads with a multipart "photo" field.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.photos == nil {
		writeError(w, r, h.logger, apperr.New(apperr.KindUnimplemented, "photo storage is not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxPhotoSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.logger, apperr.InvalidInput("photo is too large"))
			return
		}
		writeError(w, r, h.logger, apperr.InvalidInput("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, r, h.logger, apperr.InvalidInput("photo is required"))
		return
	}
	defer file.Close()

	url, err := h.photos.Upload(r.Context(), actor(r).FamilyID, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"url": url})
}
