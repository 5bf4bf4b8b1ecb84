package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	apppromo "github.com/blackms/memtier-go/internal/application/promotion"
	appres "github.com/blackms/memtier-go/internal/application/resources"
	appsearch "github.com/blackms/memtier-go/internal/application/search"
	"github.com/blackms/memtier-go/internal/infrastructure/analysis"
	"github.com/blackms/memtier-go/internal/infrastructure/embeddings"
	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// In-memory fixtures
// ============================================================================

type memRepo struct {
	mu    sync.Mutex
	tiers map[shared.Tier]map[string]*shared.Record
}

func newMemRepo() *memRepo {
	tiers := make(map[shared.Tier]map[string]*shared.Record)
	for _, tier := range shared.AllTiers() {
		tiers[tier] = make(map[string]*shared.Record)
	}
	return &memRepo{tiers: tiers}
}

func (r *memRepo) Store(_ context.Context, record *shared.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[record.Tier][record.ID] = record.Clone()
	return nil
}

func (r *memRepo) StoreBatch(ctx context.Context, records []*shared.Record) (int, error) {
	for _, record := range records {
		if err := r.Store(ctx, record); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (r *memRepo) Update(_ context.Context, record *shared.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tiers[record.Tier][record.ID]; !ok {
		return shared.NotFoundf("record %q not in %s", record.ID, record.Tier)
	}
	r.tiers[record.Tier][record.ID] = record.Clone()
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string, tier shared.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tiers[tier][id]; !ok {
		return shared.NotFoundf("record %q not in %s", id, tier)
	}
	delete(r.tiers[tier], id)
	return nil
}

func (r *memRepo) Get(_ context.Context, id string, tier shared.Tier) (*shared.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.tiers[tier][id]
	if !ok {
		return nil, shared.NotFoundf("record %q not in %s", id, tier)
	}
	return record.Clone(), nil
}

func (r *memRepo) List(_ context.Context, tier shared.Tier, limit int) ([]*shared.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tiers[tier]))
	for id := range r.tiers[tier] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	records := make([]*shared.Record, 0, len(ids))
	for _, id := range ids {
		records = append(records, r.tiers[tier][id].Clone())
	}
	return records, nil
}

func (r *memRepo) FilterByMetadata(_ context.Context, _ shared.MetadataFilter, tier shared.Tier) ([]*shared.Record, error) {
	return r.List(context.Background(), tier, 0)
}

func (r *memRepo) HealthCheck(context.Context) (*shared.HealthStatus, error) {
	return &shared.HealthStatus{Healthy: true, CheckedAt: time.Now()}, nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) MoveTier(_ context.Context, id string, from, to shared.Tier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.tiers[from][id]
	if !ok {
		return shared.NotFoundf("record %q not in %s", id, from)
	}
	delete(r.tiers[from], id)
	record.Tier = to
	r.tiers[to][id] = record
	return nil
}

func (r *memRepo) ResourceAccounting(context.Context) (uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records, bytes uint64
	for _, tier := range r.tiers {
		for _, record := range tier {
			records++
			bytes += uint64(len(record.Embedding)) * 4
		}
	}
	return records, bytes, nil
}

// memIndex is a minimal vector index: it returns every embedded record of a
// tier with a fixed score.
type memIndex struct {
	repo *memRepo
}

func (i *memIndex) Search(ctx context.Context, _ []float32, tier shared.Tier, topK int) ([]shared.SearchResult, error) {
	records, err := i.repo.List(ctx, tier, 0)
	if err != nil {
		return nil, err
	}
	var results []shared.SearchResult
	for _, record := range records {
		if record.Embedding == nil {
			continue
		}
		results = append(results, shared.SearchResult{Record: record, Score: 0.9})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

func (i *memIndex) Add(context.Context, *shared.Record) error { return nil }

func (i *memIndex) Remove(context.Context, string, shared.Tier) error { return nil }

func (i *memIndex) Move(context.Context, string, shared.Tier, shared.Tier) error { return nil }

func newTestServer(t *testing.T) (*Server, *memRepo) {
	t.Helper()
	return newTestServerWith(t, appres.DefaultConfig())
}

func newTestServerWith(t *testing.T, resCfg appres.Config) (*Server, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	index := &memIndex{repo: repo}
	embedder := embeddings.NewMockProvider(8)

	coordinator := appsearch.NewCoordinator(appsearch.DefaultConfig(), embedder, index)

	controller := appres.NewController(resCfg, repo)

	usage := analysis.NewUsageTracker()
	semantic := analysis.NewKeywordAnalyzer(nil)
	extractor := apppromo.NewExtractor(usage, semantic)
	engine := apppromo.NewEngine(apppromo.DefaultEngineConfig(), extractor, apppromo.NewDefaultNormalizer(), repo)
	promotion := apppromo.NewService(apppromo.DefaultServiceConfig(), repo, engine, apppromo.NewRuleBasedScorer(), usage)

	return NewServer(coordinator, controller, promotion, repo, embedder, WithRecordIndex(index)), repo
}

func doJSON(t *testing.T, server *Server, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

// ============================================================================
// Tests
// ============================================================================

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v", body["status"])
	}
}

func TestCreateGetDeleteRecord(t *testing.T) {
	server, repo := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/v1/records", map[string]any{
		"content": "release checklist for the search service",
		"tier":    "interact",
		"metadata": map[string]any{
			"tags":    []string{"release"},
			"project": "memtier",
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var created shared.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" || len(created.Embedding) == 0 {
		t.Fatalf("created record missing id or embedding: %+v", created)
	}

	get := doJSON(t, server, http.MethodGet, "/v1/records/interact/"+created.ID, nil)
	if get.Code != http.StatusOK {
		t.Fatalf("get status = %d", get.Code)
	}

	del := doJSON(t, server, http.MethodDelete, "/v1/records/interact/"+created.ID, nil)
	if del.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", del.Code)
	}
	if _, err := repo.Get(context.Background(), created.ID, shared.TierInteract); err == nil {
		t.Fatal("record should be gone after delete")
	}
}

func TestCreateRecordValidation(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"empty content", map[string]any{"tier": "interact"}},
		{"bad tier", map[string]any{"content": "x", "tier": "archive"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, server, http.MethodPost, "/v1/records", tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateRecordGatedByMemoryPressure(t *testing.T) {
	// A one-byte budget keeps the memory gate permanently closed, so the
	// write must trigger reclamation and then surface exhaustion.
	resCfg := appres.DefaultConfig()
	resCfg.MemoryBudgetBytes = 1
	server, repo := newTestServerWith(t, resCfg)

	rec := doJSON(t, server, http.MethodPost, "/v1/records", map[string]any{
		"content": "record arriving under memory pressure",
		"tier":    "interact",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when still exhausted after reclamation", rec.Code)
	}
	records, err := repo.List(context.Background(), shared.TierInteract, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatal("gated write must not reach storage")
	}

	// The emergency path always leaves a resource_exhaustion alert behind.
	res := doJSON(t, server, http.MethodGet, "/v1/resources", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("resources status = %d", res.Code)
	}
	var body struct {
		Alerts []struct {
			Type string `json:"type"`
		} `json:"alerts"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, alert := range body.Alerts {
		if alert.Type == "resource_exhaustion" {
			found = true
		}
	}
	if !found {
		t.Fatalf("alerts = %+v, want a resource_exhaustion alert", body.Alerts)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/v1/records/interact/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	create := doJSON(t, server, http.MethodPost, "/v1/records", map[string]any{
		"content": "incident postmortem for cache stampede",
		"tier":    "interact",
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d", create.Code)
	}

	rec := doJSON(t, server, http.MethodPost, "/v1/search", map[string]any{
		"query": "cache stampede",
		"tier":  "interact",
		"topK":  5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body %s", rec.Code, rec.Body)
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
}

func TestSearchValidation(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/v1/search", map[string]any{
		"query": "",
		"tier":  "interact",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty query", rec.Code)
	}
}

func TestVectorSearchEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	create := doJSON(t, server, http.MethodPost, "/v1/records", map[string]any{
		"content": "vector only lookup target",
		"tier":    "insights",
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d", create.Code)
	}

	vector := make([]float32, 8)
	vector[0] = 1
	rec := doJSON(t, server, http.MethodPost, "/v1/search/vector", map[string]any{
		"vector": vector,
		"tier":   "insights",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestResourcesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodGet, "/v1/resources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"usage", "limits", "alerts", "trend", "metrics"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("missing %q in resources payload", key)
		}
	}
}

func TestFreeResourcesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server, http.MethodPost, "/v1/resources/free", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestPromotionEndpoints(t *testing.T) {
	server, repo := newTestServer(t)

	// A record old and hot enough to promote.
	record := shared.NewRecord("critical error pattern worth keeping around for the team", shared.TierInteract)
	record.CreatedAt = time.Now().Add(-50 * time.Hour)
	record.AccessCount = 20
	if err := repo.Store(context.Background(), record); err != nil {
		t.Fatalf("store: %v", err)
	}

	run := doJSON(t, server, http.MethodPost, "/v1/promotion/run", map[string]any{"dryRun": true})
	if run.Code != http.StatusOK {
		t.Fatalf("run status = %d, body %s", run.Code, run.Body)
	}

	force := doJSON(t, server, http.MethodPost, "/v1/promotion/force", map[string]any{
		"ids":  []string{record.ID},
		"tier": "assets",
	})
	if force.Code != http.StatusOK {
		t.Fatalf("force status = %d, body %s", force.Code, force.Body)
	}
	if _, err := repo.Get(context.Background(), record.ID, shared.TierAssets); err != nil {
		t.Fatalf("record should be in assets after force: %v", err)
	}

	stats := doJSON(t, server, http.MethodGet, "/v1/promotion/stats", nil)
	if stats.Code != http.StatusOK {
		t.Fatalf("stats status = %d, body %s", stats.Code, stats.Body)
	}
}

func TestPromotionForceValidation(t *testing.T) {
	server, _ := newTestServer(t)
	ids := make([]string, 51)
	for i := range ids {
		ids[i] = fmt.Sprintf("r%d", i)
	}
	rec := doJSON(t, server, http.MethodPost, "/v1/promotion/force", map[string]any{
		"ids":  ids,
		"tier": "assets",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 over the cap", rec.Code)
	}
}
