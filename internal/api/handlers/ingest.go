package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/service"
	"github.com/cloo-solutions/docrag/internal/source"
)

type IngestService interface {
	Run(ctx context.Context, src source.Source, opts service.IngestOptions) (*service.IngestSummary, error)
}

// SourceOpener turns a folder argument (local path or s3:// URI) into a source.
// An empty folder selects the configured default.
type SourceOpener interface {
	Open(ctx context.Context, folder string) (source.Source, error)
}

type IngestHandler struct {
	svc     IngestService
	sources SourceOpener

	recreateDenied bool
}

func NewIngestHandler(svc IngestService, sources SourceOpener) *IngestHandler {
	return &IngestHandler{svc: svc, sources: sources}
}

// DenyRecreate makes recreate requests fail with 403. Used when the API has no token.
func (h *IngestHandler) DenyRecreate() *IngestHandler {
	h.recreateDenied = true
	return h
}

type IngestRequest struct {
	Folder   string `json:"folder,omitempty"`
	Recreate bool   `json:"recreate,omitempty"`
}

type IngestResponse struct {
	*service.IngestSummary
	SuccessRate float64 `json:"success_rate"`
}

func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Recreate && h.recreateDenied {
		api.Error(w, http.StatusForbidden, "recreate requires RAG_API_TOKEN to be set")
		return
	}

	src, err := h.sources.Open(r.Context(), req.Folder)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	summary, err := h.svc.Run(r.Context(), src, service.IngestOptions{Recreate: req.Recreate})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, IngestResponse{IngestSummary: summary, SuccessRate: summary.SuccessRate()})
}
