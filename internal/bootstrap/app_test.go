package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"document-backend/internal/documents"
	"document-backend/internal/extract"
	"document-backend/internal/extract/extracttest"
	"document-backend/internal/shared/config"
	"document-backend/internal/shared/storage/db"
)

type cannedLLM struct{ response string }

func (c cannedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return c.response, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ObjectStoreType = "local"
	cfg.LocalStoreDir = t.TempDir()
	cfg.RepoBackend = "memory"
	cfg.LLMProvider = "none"
	cfg.CORSAllowOrigin = nil
	return cfg
}

func upload(t *testing.T, router *gin.Engine, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", extract.MimePDF)
	part, err := writer.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestBuildServesUploadAndAnalyze(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)

	app, err := Build(context.Background(), cfg, WithLLMClient(cannedLLM{
		response: `{"summary":"Invoice","type":"invoice","attributes":{"total":"50"}}`,
	}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	resp := upload(t, app.Router, "invoice.pdf", extracttest.PDF("Invoice #123", "Total: $50"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created documents.UploadResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	doc, err := app.Repo.FindByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.LocalStoreDir, cfg.Bucket, doc.StorageKey)); err != nil {
		t.Fatalf("expected blob on disk: %v", err)
	}

	analyze := httptest.NewRecorder()
	app.Router.ServeHTTP(analyze, httptest.NewRequest(http.MethodPost, "/documents/"+created.ID+"/analyze", nil))
	if analyze.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", analyze.Code, analyze.Body.String())
	}

	doc, _ = app.Repo.FindByID(context.Background(), created.ID)
	if doc.Status != documents.StatusAnalyzed || doc.AIMetadata == nil || doc.AIMetadata.Type != "invoice" {
		t.Fatalf("unexpected document after analyze: %+v", doc)
	}
}

func TestBuildWithoutProviderFailsAnalysis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := Build(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	resp := upload(t, app.Router, "a.pdf", extracttest.PDF("hello"))
	var created documents.UploadResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &created)

	analyze := httptest.NewRecorder()
	app.Router.ServeHTTP(analyze, httptest.NewRequest(http.MethodPost, "/documents/"+created.ID+"/analyze", nil))
	if analyze.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", analyze.Code)
	}
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "store", mutate: func(c *config.Config) { c.ObjectStoreType = "ftp" }},
		{name: "repo", mutate: func(c *config.Config) { c.RepoBackend = "mongo" }},
		{name: "llm", mutate: func(c *config.Config) { c.LLMProvider = "clippy" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			if _, err := Build(context.Background(), cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildWiresLockWhenRedisConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:6399"
	cfg.RepoBackend = "postgres"
	cfg.AutoAnalyze = true

	app, err := Build(context.Background(), cfg, WithRepo(documents.NewMemoryRepo()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close()

	if app.Service.Locker == nil {
		t.Fatalf("expected redis locker")
	}
	if app.Service.Queue == nil {
		t.Fatalf("expected analysis queue")
	}
}

func TestDBOptionsOverridesDefaults(t *testing.T) {
	cfg := config.Config{DBMaxOpenConns: 3, DBPingTimeout: time.Second}
	opts := DBOptions(cfg, db.DefaultServerOptions())
	if opts.MaxOpenConns != 3 || opts.PingTimeout != time.Second {
		t.Fatalf("expected overrides applied, got %+v", opts)
	}
	if opts.MaxIdleConns != db.DefaultServerOptions().MaxIdleConns {
		t.Fatalf("expected default idle conns kept, got %d", opts.MaxIdleConns)
	}
}

func TestRedisOpt(t *testing.T) {
	cfg := config.Config{RedisAddr: " redis:6379 ", RedisPassword: "pw", RedisDB: 2}
	opt := RedisOpt(cfg)
	if opt.Addr != "redis:6379" || opt.Password != "pw" || opt.DB != 2 {
		t.Fatalf("unexpected redis opt %+v", opt)
	}
}
