package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/mkarlin/listening-insights/internal/events"
	"github.com/mkarlin/listening-insights/internal/insights"
	"github.com/mkarlin/listening-insights/internal/warehouse"
)

const (
	// maxUploadFiles bounds the file count of one upload call.
	maxUploadFiles = 20

	// maxUploadMemory is the in-memory threshold for multipart parsing.
	maxUploadMemory = 32 << 20
)

// Pipeline is the ingestion pipeline the handlers call into.
type Pipeline interface {
	StartSession(ctx context.Context, identity string) (string, error)
	Upload(ctx context.Context, key string, docs [][]byte) error
	FinishSession(ctx context.Context, key string) (*insights.Document, error)
	GetInsights(ctx context.Context, identity string) (*insights.Document, error)
}

// Handlers contains the HTTP handlers for the pipeline surface.
type Handlers struct {
	pipeline Pipeline
	logger   *log.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(pipeline Pipeline, logger *log.Logger) *Handlers {
	return &Handlers{pipeline: pipeline, logger: logger}
}

// StartSession provisions a workspace for the identity (POST /start-session).
func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "user email is required")
		return
	}

	key, err := h.pipeline.StartSession(r.Context(), email)
	if err != nil {
		h.logger.Error("start-session failed", "err", err)
		writeError(w, http.StatusInternalServerError, "error starting session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Session started",
		"workspaceKey": key,
	})
}

// Upload loads one or more export files into the workspace (POST /upload).
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("workspaceKey")
	if key == "" {
		writeError(w, http.StatusBadRequest, "workspace key is required")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	if len(files) > maxUploadFiles {
		writeError(w, http.StatusBadRequest, "too many files")
		return
	}

	docs := make([][]byte, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file: "+header.Filename)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file: "+header.Filename)
			return
		}
		docs = append(docs, data)
	}

	if err := h.pipeline.Upload(r.Context(), key, docs); err != nil {
		if errors.Is(err, events.ErrMalformedInput) {
			writeError(w, http.StatusBadRequest, "invalid JSON file format")
			return
		}
		h.logger.Error("upload failed", "workspace", key, "err", err)
		writeError(w, http.StatusInternalServerError, "error during upload or data processing")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Files uploaded and data inserted successfully!",
	})
}

// FinishSession aggregates, caches, and tears down (POST /finish-session).
func (h *Handlers) FinishSession(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("workspaceKey")
	if key == "" {
		writeError(w, http.StatusBadRequest, "workspace key is required")
		return
	}

	doc, err := h.pipeline.FinishSession(r.Context(), key)
	if err != nil {
		h.logger.Error("finish-session failed", "workspace", key, "err", err)
		writeError(w, http.StatusInternalServerError, "error finishing session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Session finished successfully!",
		"insights": doc,
	})
}

// GetInsights serves the cached document (GET /get-insights/{email}).
func (h *Handlers) GetInsights(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "user email is required")
		return
	}

	doc, err := h.pipeline.GetInsights(r.Context(), email)
	if errors.Is(err, warehouse.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no insights found for this user")
		return
	}
	if err != nil {
		h.logger.Error("get-insights failed", "err", err)
		writeError(w, http.StatusInternalServerError, "error retrieving insights")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
