package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"learnapp/config"
	"learnapp/internal/ai"
	"learnapp/internal/examples"
	"learnapp/internal/models"
	"learnapp/internal/normalizer"
	"learnapp/internal/pipeline"
	"learnapp/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (g *stubGenerator) Model() string { return "stub-model" }

func (g *stubGenerator) Generate(ctx context.Context, req ai.Request, content *models.NormalizedContent) (*models.GenerationResult, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.BasePrompt)
	g.mu.Unlock()

	if req.ResponseMIMEType == ai.JSONMIMEType {
		return &models.GenerationResult{
			RawText: `{"spec":"A drag and drop tide simulator."}`,
			Usage:   &models.TokenUsage{PromptTokens: 1_000_000, OutputTokens: 0, TotalTokens: 1_000_000},
		}, nil
	}
	return &models.GenerationResult{
		RawText: "```html\n<!DOCTYPE html><html><body>tides</body></html>\n```",
		Usage:   &models.TokenUsage{PromptTokens: 0, OutputTokens: 1_000_000, TotalTokens: 1_000_000},
	}, nil
}

func (g *stubGenerator) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

type memoryStore struct {
	mu    sync.Mutex
	saved map[string][2]string
}

func (m *memoryStore) SaveArtifact(ctx context.Context, id, spec, code string) (*storage.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string][2]string{}
	}
	m.saved[id] = [2]string{spec, code}
	return &storage.Artifact{ID: id, SpecURL: "/apps/" + id + "/spec.md", CodeURL: "/apps/" + id + "/index.html"}, nil
}

func (m *memoryStore) ListArtifacts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.saved {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryStore) DeleteArtifact(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saved[id]; !ok {
		return errors.New("not found")
	}
	delete(m.saved, id)
	return nil
}

// blockingStore 第一次保存会阻塞，直到release被关闭
type blockingStore struct {
	memoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingStore) SaveArtifact(ctx context.Context, id, spec, code string) (*storage.Artifact, error) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.entered)
		<-b.release
	}
	return b.memoryStore.SaveArtifact(ctx, id, spec, code)
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test", SessionCacheSize: 8},
		AI:     config.AIConfig{Temperature: 0.75},
		Pricing: config.PricingConfig{
			InputPriceTextPerMillion:  0.15,
			InputPriceAudioPerMillion: 1.00,
			OutputPricePerMillion:     0.60,
			MarkupRate:                0.15,
			BTCPriceUSD:               30000,
		},
	}
}

type testServer struct {
	server    *Server
	generator *stubGenerator
}

func newTestServer(t *testing.T, cfg *config.Config, store ArtifactStore) *testServer {
	t.Helper()
	gen := &stubGenerator{}
	fetch := fetcherFunc(func(ctx context.Context, url string) (string, error) { return "", errors.New("offline") })
	deps := Dependencies{
		Normalizer: normalizer.NewWithFetcher(&config.NormalizerConfig{}, fetch, zerolog.Nop()),
		Generator:  gen,
		Catalog:    examples.NewCatalog(zerolog.Nop()),
		Logger:     zerolog.Nop(),
	}
	if store != nil {
		deps.Store = store
	}
	s, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return &testServer{server: s, generator: gen}
}

type fetcherFunc func(ctx context.Context, url string) (string, error)

func (f fetcherFunc) FetchText(ctx context.Context, url string) (string, error) { return f(ctx, url) }

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) pipeline.Snapshot {
	t.Helper()
	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"model":"stub-model"`)
}

func TestSubmitTopicThenCostAndRender(t *testing.T) {
	store := &memoryStore{}
	ts := newTestServer(t, testConfig(), store)
	id := ts.createSession(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions?wait=true", gin.H{"type": "topic", "topic": "Tides"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decodeSnapshot(t, w)
	assert.Equal(t, pipeline.StateReady, snap.State)
	assert.Equal(t, "<!DOCTYPE html><html><body>tides</body></html>", snap.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/render", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, snap.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/cost", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var costResp struct {
		Estimate struct {
			TotalCostUSD      float64 `json:"totalCostUsd"`
			TotalCostSatoshis int64   `json:"totalCostSatoshis"`
		} `json:"estimate"`
		Formatted string            `json:"formatted"`
		Artifact  *storage.Artifact `json:"artifact"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &costResp))
	assert.InDelta(t, 0.8625, costResp.Estimate.TotalCostUSD, 1e-9)
	assert.InDelta(t, 2875, costResp.Estimate.TotalCostSatoshis, 1)
	assert.True(t, strings.HasSuffix(costResp.Formatted, " sats"))
	require.NotNil(t, costResp.Artifact)
	assert.Equal(t, snap.SubmissionID, costResp.Artifact.ID)

	saved := store.saved[snap.SubmissionID]
	assert.Equal(t, snap.Spec, saved[0])
	assert.Equal(t, snap.Code, saved[1])

	w = ts.do(t, http.MethodGet, "/api/v1/artifacts", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), snap.SubmissionID)

	w = ts.do(t, http.MethodDelete, "/api/v1/artifacts/"+snap.SubmissionID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCostSurvivesSlowEarlierUpload(t *testing.T) {
	store := newBlockingStore()
	ts := newTestServer(t, testConfig(), store)
	id := ts.createSession(t)
	entry, ok := ts.server.registry.get(id)
	require.True(t, ok)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions", gin.H{"type": "topic", "topic": "Tides"})
	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first upload never started")
	}

	ex, ok := ts.server.catalog.Default()
	require.True(t, ok)
	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions?wait=true", gin.H{"type": "youtube", "url": ex.URL})
	require.Equal(t, http.StatusOK, w.Code)
	preseeded := decodeSnapshot(t, w)
	require.Equal(t, pipeline.StateReady, preseeded.State)

	close(store.release)
	entry.session.Wait()

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/cost", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		SubmissionID string `json:"submissionId"`
		Formatted    string `json:"formatted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, preseeded.SubmissionID, resp.SubmissionID)
	assert.Equal(t, "0 sats", resp.Formatted)
}

func TestSubmitAsync(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.createSession(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions", gin.H{"type": "text", "text": "Photosynthesis turns light into sugar"})
	require.Equal(t, http.StatusAccepted, w.Code)

	entry, ok := ts.server.registry.get(id)
	require.True(t, ok)
	entry.session.Wait()

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, pipeline.StateReady, decodeSnapshot(t, w).State)
	assert.Contains(t, ts.generator.calls()[0], `Text description: "Photosynthesis turns light into sugar"`)
}

func TestSubmitValidation(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.createSession(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions", gin.H{"type": "topic", "topic": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"topic"`)

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions", gin.H{"type": "weblink", "url": "ftp://example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions", gin.H{"type": "hologram"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, ts.generator.calls())
}

func TestSubmitExampleUsesPreseed(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.createSession(t)
	ex, ok := ts.server.catalog.Default()
	require.True(t, ok)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions?wait=true", gin.H{"type": "youtube", "url": ex.URL})
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, pipeline.StateReady, snap.State)
	assert.Equal(t, ex.Code, snap.Code)
	assert.Empty(t, ts.generator.calls())

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/cost", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"formatted":"0 sats"`)
}

func TestSubmitFileUpload(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.createSession(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("The water cycle moves water between oceans, air and land."))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("guidance", "for ten year olds"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/submissions?wait=true", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, pipeline.StateReady, decodeSnapshot(t, w).State)
	assert.Contains(t, ts.generator.calls()[0], "The water cycle moves water")
}

func TestEditSpecAndCode(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.createSession(t)

	w := ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/spec", gin.H{"spec": "new"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/code", gin.H{"code": "<p/>"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions?wait=true", gin.H{"type": "topic", "topic": "Tides"})
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)

	w = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/spec", gin.H{"spec": " " + snap.Spec + " "})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"changed":false`)
	assert.Len(t, ts.generator.calls(), 2)

	w = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/spec", gin.H{"spec": "A tide pool explorer."})
	assert.Equal(t, http.StatusAccepted, w.Code)
	entry, _ := ts.server.registry.get(id)
	entry.session.Wait()
	calls := ts.generator.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "A tide pool explorer.", calls[2])

	w = ts.do(t, http.MethodPut, "/api/v1/sessions/"+id+"/code", gin.H{"code": "<p>mine</p>"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<p>mine</p>", decodeSnapshot(t, w).Code)
}

func TestClearResetsSession(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.createSession(t)
	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions?wait=true", gin.H{"type": "topic", "topic": "Tides"})

	w := ts.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/submission", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pipeline.StateIdle, decodeSnapshot(t, w).State)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/cost", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/render", nil).Code)
}

func TestUnknownSessionAndEviction(t *testing.T) {
	cfg := testConfig()
	cfg.Server.SessionCacheSize = 1
	ts := newTestServer(t, cfg, nil)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/sessions/nope", nil).Code)

	first := ts.createSession(t)
	second := ts.createSession(t)
	assert.Equal(t, 1, ts.server.registry.len())
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/sessions/"+first, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/sessions/"+second, nil).Code)
}

func TestArtifactsWithoutStore(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, "/api/v1/artifacts", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodDelete, "/api/v1/artifacts/x", nil).Code)
}

func TestExamples(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	w := ts.do(t, http.MethodGet, "/api/v1/examples", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Examples []examples.Example `json:"examples"`
		Default  *examples.Example  `json:"default"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Examples)
	require.NotNil(t, resp.Default)
	assert.Equal(t, resp.Examples[0].URL, resp.Default.URL)
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	id := ts.createSession(t)

	srv := httptest.NewServer(ts.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev stateEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "snapshot", ev.Type)
	assert.Equal(t, pipeline.StateIdle, ev.Snapshot.State)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/submissions?wait=true", gin.H{"type": "topic", "topic": "Tides"})
	require.Equal(t, http.StatusOK, w.Code)

	for ev.Snapshot.State != pipeline.StateReady {
		require.NoError(t, conn.ReadJSON(&ev))
	}
	assert.NotEmpty(t, ev.Snapshot.Code)
}
