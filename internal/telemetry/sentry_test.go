package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestStartSpan_ChildOfExistingSpan(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "IngestService.Run", SpanAttributes{Collection: "rag_chunks"})
	defer parent.End()

	childCtx, child := StartSpan(ctx, "IngestService.processDocument", SpanAttributes{DocumentID: "a.txt", Operation: "ingest"})
	defer child.End()

	span := sentry.SpanFromContext(childCtx)
	require.NotNil(t, span)
	assert.Equal(t, "a.txt", span.Tags["document_id"])
	assert.Equal(t, parent.inner.TraceID, span.TraceID)
}

func TestSpan_NilInnerIsSafe(t *testing.T) {
	s := &Span{}
	s.SetData("k", 1)
	s.SetError(errors.New("boom"))
	s.SetStatus(sentry.SpanStatusOK)
	s.SetTag("collection", "rag_chunks")
	s.End()
}

func TestStartRequest_ContinuesTrace(t *testing.T) {
	const traceID = "bc6d53f15eb88f4320054569b8c553d4"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
	req.Header.Set(sentry.SentryTraceHeader, traceID+"-b72fa28504b07285-1")

	ctx, span := StartRequest(req)
	span.SetTag("collection", "rag_chunks")
	span.SetStatus(StatusFromHTTP(http.StatusOK))
	span.End()

	tx := sentry.SpanFromContext(ctx)
	require.NotNil(t, tx)
	assert.Equal(t, traceID, tx.TraceID.String())
	assert.Equal(t, "POST /api/v1/query", tx.Name)
	assert.Equal(t, "rag_chunks", tx.Tags["collection"])
	assert.Equal(t, sentry.SpanStatusOK, tx.Status)
	assert.NotNil(t, sentry.GetHubFromContext(ctx))
}

func TestStatusFromHTTP(t *testing.T) {
	assert.Equal(t, sentry.SpanStatusOK, StatusFromHTTP(http.StatusOK))
	assert.Equal(t, sentry.SpanStatusInvalidArgument, StatusFromHTTP(http.StatusBadRequest))
	assert.Equal(t, sentry.SpanStatusPermissionDenied, StatusFromHTTP(http.StatusForbidden))
	assert.Equal(t, sentry.SpanStatusFailedPrecondition, StatusFromHTTP(http.StatusUnprocessableEntity))
	assert.Equal(t, sentry.SpanStatusUnavailable, StatusFromHTTP(http.StatusServiceUnavailable))
	assert.Equal(t, sentry.SpanStatusDeadlineExceeded, StatusFromHTTP(http.StatusGatewayTimeout))
	assert.Equal(t, sentry.SpanStatusInternalError, StatusFromHTTP(http.StatusBadGateway))
}

func TestAddBreadcrumb_UsesContextHub(t *testing.T) {
	hub := sentry.NewHub(nil, sentry.NewScope())
	ctx := sentry.SetHubOnContext(context.Background(), hub)

	AddBreadcrumb(ctx, "ingest", "a.txt processed")

	crumbs := hub.Scope().ApplyToEvent(&sentry.Event{}, nil, nil).Breadcrumbs
	require.Len(t, crumbs, 1)
	assert.Equal(t, "ingest", crumbs[0].Category)
	assert.Equal(t, "a.txt processed", crumbs[0].Message)
}
