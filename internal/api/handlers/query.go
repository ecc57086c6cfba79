package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/service"
)

type QueryService interface {
	Query(ctx context.Context, question string, opts service.QueryOptions) (*service.Answer, error)
}

type QueryHandler struct {
	svc QueryService
}

func NewQueryHandler(svc QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	Query     string   `json:"query"`
	TopK      int      `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopK < 0 {
		api.Error(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}
	if req.Threshold != nil && (*req.Threshold < -1 || *req.Threshold > 1) {
		api.Error(w, http.StatusBadRequest, "threshold must be within [-1, 1]")
		return
	}

	answer, err := h.svc.Query(r.Context(), req.Query, service.QueryOptions{
		TopK:      req.TopK,
		Threshold: req.Threshold,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, answer)
}
