package transport

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"allhall/internal/blobstore"
	"allhall/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MediaHandler serves uploaded product images
type MediaHandler struct {
	blobs  blobstore.Store
	logger *zap.Logger
}

func NewMediaHandler(blobs blobstore.Store, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{blobs: blobs, logger: logger}
}

func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.Get("/media/{id}", h.Serve)
}

func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	obj, err := h.blobs.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "image not found")
			return
		}
		h.logger.Error("Failed to open image", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "image store unavailable")
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Debug("Image download interrupted", zap.Error(err))
	}
}
