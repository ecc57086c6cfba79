//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloo-solutions/docrag/internal/api/handlers"
	"github.com/cloo-solutions/docrag/internal/api/middleware"
	"github.com/cloo-solutions/docrag/internal/cli"
	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/cloo-solutions/docrag/internal/server"
	"github.com/cloo-solutions/docrag/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	testToken      = "e2e-token"
	testDimensions = 256
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	Pool       *pgxpool.Pool
	Model      *testutil.FakeOpenAI
	Config     *config.Config
	App        *cli.App
	Server     *httptest.Server
	DataDir    string
	HTTPClient *http.Client
}

// SetupE2EEnv starts pgvector, RustFS and a fake model server, then serves the API
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC)
	model := testutil.NewFakeOpenAI(t, testDimensions)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg.IndexBackend = config.IndexBackendPgVector
	cfg.DatabaseURL = pgC.ConnectionString()
	cfg.EmbeddingBaseURL = model.BaseURL()
	cfg.LLMBaseURL = model.BaseURL()
	cfg.EmbeddingDimensions = testDimensions
	cfg.ChunkSize = 40
	cfg.ChunkOverlap = 5
	cfg.SimilarityThreshold = 0.3
	cfg.DataDir = t.TempDir()
	cfg.APIToken = testToken
	cfg.S3Endpoint = s3C.Endpoint()
	cfg.S3AccessKey = s3C.AccessKey
	cfg.S3SecretKey = s3C.SecretKey
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}

	app, err := cli.NewApp(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}

	router := server.NewRouter(server.RouterConfig{
		TokenValidator:  middleware.StaticToken{Token: cfg.APIToken},
		MaxBodyBytes:    cfg.MaxBodyBytes,
		Index:           app.Admin,
		QueryHandler:    handlers.NewQueryHandler(app.Query),
		IngestHandler:   handlers.NewIngestHandler(app.Ingest, app.Sources.Confined()),
		StatsHandler:    handlers.NewStatsHandler(app.Admin),
		QueryLogHandler: handlers.NewQueryLogHandler(app.QueryLogs),
	})
	srv := httptest.NewServer(router)

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		Model:      model,
		Config:     cfg,
		App:        app,
		Server:     srv,
		DataDir:    cfg.DataDir,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
	waitForServer(t, srv.URL, 10*time.Second)
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.App != nil {
		e.App.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// WriteDoc writes a document under the data dir
func (e *E2ETestEnv) WriteDoc(name, content string) {
	path := filepath.Join(e.DataDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.T.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		e.T.Fatalf("failed to write %s: %v", name, err)
	}
}

// APIResponse is the {data} / {error} envelope
type APIResponse struct {
	StatusCode int             `json:"-"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.Server.URL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	apiResp.StatusCode = resp.StatusCode

	if resp.StatusCode >= 400 {
		return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}
