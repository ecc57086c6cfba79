package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/pagination"
	"github.com/cloo-solutions/docrag/internal/service"
)

type QueryLogService interface {
	List(ctx context.Context, cursor string, limit int) (*pagination.Page[service.QueryLog], error)
}

type QueryLogHandler struct {
	svc QueryLogService
}

func NewQueryLogHandler(svc QueryLogService) *QueryLogHandler {
	return &QueryLogHandler{svc: svc}
}

// List serves GET /query-logs?cursor=&limit=
func (h *QueryLogHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	page, err := h.svc.List(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, page)
}
