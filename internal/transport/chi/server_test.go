package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/seren-labs/serendex/internal/domain"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
	"github.com/seren-labs/serendex/internal/tokenizer"
	clusteruc "github.com/seren-labs/serendex/internal/usecase/cluster"
	"github.com/seren-labs/serendex/internal/usecase/engine"
	healthuc "github.com/seren-labs/serendex/internal/usecase/health"
	"github.com/seren-labs/serendex/internal/usecase/ranking"
	"github.com/seren-labs/serendex/internal/usecase/similarity"
)

// --- Stubs ---

type stubStore struct {
	records []domvec.Record
	deleted []string
	put     []domvec.Record
}

func (s *stubStore) Put(_ context.Context, rec *domvec.Record) error {
	s.put = append(s.put, *rec)
	return nil
}

func (s *stubStore) BatchPut(_ context.Context, recs []domvec.Record) error {
	s.put = append(s.put, recs...)
	return nil
}

func (s *stubStore) Get(_ context.Context, typ domvec.Type, id string) (domvec.Record, bool, error) {
	for i := range s.records {
		if s.records[i].EntityType() == typ && s.records[i].EntityID() == id {
			return s.records[i], true, nil
		}
	}
	return domvec.Record{}, false, nil
}

func (s *stubStore) Delete(_ context.Context, typ domvec.Type, id string) error {
	s.deleted = append(s.deleted, string(typ)+":"+id)
	return nil
}

func (s *stubStore) Candidates(
	_ context.Context, _ string, _ []domvec.Type, limit int,
) ([]domvec.Record, error) {
	if len(s.records) > limit {
		return s.records[:limit], nil
	}
	return s.records, nil
}

func (s *stubStore) ProjectRecords(
	_ context.Context, _ string, limit int,
) ([]domvec.Record, error) {
	if len(s.records) > limit {
		return s.records[:limit], nil
	}
	return s.records, nil
}

func (s *stubStore) CheckDim(n int) error {
	if n == 0 {
		return fmt.Errorf("empty vector: %w", domain.ErrValidation)
	}
	return nil
}

type stubSearcher struct {
	matches []similarity.Match
	err     error
}

func (s *stubSearcher) Search(
	_ context.Context, _ []float32, _ string, _ similarity.Options,
) ([]similarity.Match, error) {
	return s.matches, s.err
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (e *stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: e.vec}, nil
}

type stubPinger struct{ err error }

func (p *stubPinger) Ping(_ context.Context) error { return p.err }

type testEnv struct {
	router   http.Handler
	store    *stubStore
	searcher *stubSearcher
	embedder *stubEmbedder
	pinger   *stubPinger
	scorer   *ranking.Scorer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    &stubStore{},
		searcher: &stubSearcher{},
		embedder: &stubEmbedder{vec: []float32{1, 0}},
		pinger:   &stubPinger{},
		scorer:   ranking.NewScorer(),
	}

	logger := zap.NewNop()
	eng := engine.New(
		env.store, env.searcher, env.scorer,
		ranking.NewTextScorer(tokenizer.New()),
		env.embedder, logger,
	)
	clusters := clusteruc.New(env.store)
	health := healthuc.New(env.pinger, nil)

	r := chirouter.NewRouter()
	NewServer(eng, clusters, env.scorer, health, logger).Routes(r)
	env.router = r
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func testRecord(t *testing.T, id string, vec []float32) domvec.Record {
	t.Helper()
	rec, err := domvec.New(domvec.TypeNote, id, "p1", vec, map[string]string{
		domvec.MetaTitle: "title " + id,
	})
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return rec
}

// --- Search ---

func TestSearch_ReturnsRankedResults(t *testing.T) {
	env := newTestEnv(t)
	env.searcher.matches = []similarity.Match{{
		EntityType: domvec.TypeNote,
		EntityID:   "n1",
		ProjectID:  "p1",
		Similarity: 1,
		Vector:     []float32{1, 0},
		Magnitude:  1,
		CreatedAt:  time.Now().UTC(),
	}}

	rr := env.do(t, "POST", "/search", searchRequest{
		Embedding: []float32{1, 0},
		ProjectID: "p1",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Fatalf("expected 1 result, got %d", resp.Total)
	}
	item := resp.Items[0]
	if item.EntityID != "n1" || item.EntityType != "note" {
		t.Errorf("unexpected item identity: %s:%s", item.EntityType, item.EntityID)
	}
	if item.VectorScore < 0.99 {
		t.Errorf("expected identical vectors to score ~1, got %f", item.VectorScore)
	}
	if item.FinalScore <= 0 {
		t.Errorf("expected positive final score, got %f", item.FinalScore)
	}
}

func TestSearch_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/search", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != codeBadRequest {
		t.Errorf("error code: got %s, want %s", resp.Code, codeBadRequest)
	}
}

func TestSearch_MissingTextAndEmbedding(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/search", searchRequest{ProjectID: "p1"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	if resp := decodeError(t, rr); resp.Code != codeValidationFailed {
		t.Errorf("error code: got %s, want %s", resp.Code, codeValidationFailed)
	}
}

func TestSearch_InvalidMode(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/search", searchRequest{
		Embedding: []float32{1, 0},
		Mode:      "psychic",
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSearch_EmbedderUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.err = fmt.Errorf("provider down: %w", domain.ErrEmbedderUnavailable)

	rr := env.do(t, "POST", "/search", searchRequest{Text: "hello"})

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusBadGateway, rr.Body.String())
	}
	if resp := decodeError(t, rr); resp.Code != codeEmbedderError {
		t.Errorf("error code: got %s, want %s", resp.Code, codeEmbedderError)
	}
}

func TestSearch_InternalError(t *testing.T) {
	env := newTestEnv(t)
	env.searcher.err = errors.New("boom")

	rr := env.do(t, "POST", "/search", searchRequest{Embedding: []float32{1, 0}})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	resp := decodeError(t, rr)
	if resp.Code != codeInternalError {
		t.Errorf("error code: got %s, want %s", resp.Code, codeInternalError)
	}
	if resp.Message != "internal error" {
		t.Errorf("internal detail leaked to client: %q", resp.Message)
	}
}

// --- Entities ---

func TestIndexEntity_Created(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/entities", indexRequest{
		Type:      "note",
		ID:        "n1",
		ProjectID: "p1",
		Title:     "hello",
		Content:   "world",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if len(env.store.put) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(env.store.put))
	}
	if env.store.put[0].Key() != "note:n1" {
		t.Errorf("unexpected key: %s", env.store.put[0].Key())
	}
}

func TestIndexEntity_NoText(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/entities", indexRequest{Type: "note", ID: "n1"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != codeValidationFailed {
		t.Errorf("error code: got %s, want %s", resp.Code, codeValidationFailed)
	}
}

func TestDeleteEntity_NoContent(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "DELETE", "/entities/note/n1", nil)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(env.store.deleted) != 1 || env.store.deleted[0] != "note:n1" {
		t.Errorf("unexpected deletions: %v", env.store.deleted)
	}
}

// --- Projects ---

func TestReindexProject_CountsRecords(t *testing.T) {
	env := newTestEnv(t)
	env.store.records = []domvec.Record{
		testRecord(t, "a", []float32{1, 0}),
		testRecord(t, "b", []float32{0, 1}),
	}

	rr := env.do(t, "POST", "/projects/p1/reindex", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp reindexResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ProjectID != "p1" || resp.Reindexed != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClusterProject_Succeeds(t *testing.T) {
	env := newTestEnv(t)
	env.store.records = []domvec.Record{
		testRecord(t, "a", []float32{1, 0}),
		testRecord(t, "b", []float32{0, 1}),
	}

	rr := env.do(t, "POST", "/projects/p1/cluster", clusterRequest{K: 2})

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp clusterResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(resp.Clusters))
	}
	total := 0
	for _, cl := range resp.Clusters {
		total += cl.Size
	}
	if total != 2 {
		t.Errorf("expected cluster sizes to sum to 2, got %d", total)
	}
}

func TestClusterProject_InsufficientData(t *testing.T) {
	env := newTestEnv(t)
	env.store.records = []domvec.Record{testRecord(t, "a", []float32{1, 0})}

	rr := env.do(t, "POST", "/projects/p1/cluster", clusterRequest{K: 5})

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
	if resp := decodeError(t, rr); resp.Code != codeInsufficientData {
		t.Errorf("error code: got %s, want %s", resp.Code, codeInsufficientData)
	}
}

// --- Weights ---

func TestGetWeights_Defaults(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/weights", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp weightsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sum := resp.Vector + resp.Text + resp.Temporal + resp.Diversity + resp.Project + resp.Type
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("expected weights to sum to 1, got %f", sum)
	}
}

func TestUpdateWeights_MergesAndRenormalizes(t *testing.T) {
	env := newTestEnv(t)

	v := 0.8
	rr := env.do(t, "PUT", "/weights", weightsPatchRequest{Vector: &v})

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp weightsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sum := resp.Vector + resp.Text + resp.Temporal + resp.Diversity + resp.Project + resp.Type
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("expected renormalized weights, sum %f", sum)
	}
	if resp.Vector <= resp.Text {
		t.Errorf("expected boosted vector weight to outrank text: %+v", resp)
	}

	// A subsequent read sees the persisted update.
	rr = env.do(t, "GET", "/weights", nil)
	var again weightsResponse
	if err := json.NewDecoder(rr.Body).Decode(&again); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if again.Vector != resp.Vector {
		t.Errorf("update not persisted: %f != %f", again.Vector, resp.Vector)
	}
}

func TestUpdateWeights_NegativeRejected(t *testing.T) {
	env := newTestEnv(t)

	v := -0.5
	rr := env.do(t, "PUT", "/weights", weightsPatchRequest{Vector: &v})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != codeValidationFailed {
		t.Errorf("error code: got %s, want %s", resp.Code, codeValidationFailed)
	}
}

// --- Health ---

func TestHealthCheck_Healthy(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/health", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("unexpected report: %+v", resp)
	}
}

func TestHealthCheck_Degraded(t *testing.T) {
	env := newTestEnv(t)
	env.pinger.err = errors.New("connection refused")

	rr := env.do(t, "GET", "/health", nil)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["database"] != "error" {
		t.Errorf("unexpected report: %+v", resp)
	}
}
