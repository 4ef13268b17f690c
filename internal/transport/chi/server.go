// Package chi exposes the retrieval engine over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/seren-labs/serendex/internal/domain"
	domcluster "github.com/seren-labs/serendex/internal/domain/cluster"
	domrank "github.com/seren-labs/serendex/internal/domain/ranking"
	"github.com/seren-labs/serendex/internal/domain/search/candidate"
	"github.com/seren-labs/serendex/internal/domain/search/mode"
	"github.com/seren-labs/serendex/internal/domain/search/query"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
	clusteruc "github.com/seren-labs/serendex/internal/usecase/cluster"
	"github.com/seren-labs/serendex/internal/usecase/engine"
	healthuc "github.com/seren-labs/serendex/internal/usecase/health"
	"github.com/seren-labs/serendex/internal/usecase/ranking"
)

// Error response codes.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeDimMismatch      = "dimension_mismatch"
	codeInsufficientData = "insufficient_data"
	codeEmbedderError    = "embedder_unavailable"
	codeNotFound         = "not_found"
	codeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes HTTP requests to the engine, cluster, and health usecases.
type Server struct {
	engine        *engine.Service
	clusters      *clusteruc.Service
	scorer        *ranking.Scorer
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	eng *engine.Service,
	clusters *clusteruc.Service,
	scorer *ranking.Scorer,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine:   eng,
		clusters: clusters,
		scorer:   scorer,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, codeDimMismatch),
		sentinelHandler(domain.ErrInsufficientData, http.StatusUnprocessableEntity, codeInsufficientData),
		sentinelHandler(domain.ErrEmbedderUnavailable, http.StatusBadGateway, codeEmbedderError),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
	}
	return s
}

// Routes mounts every handler on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/search", s.Search)
	r.Post("/entities", s.IndexEntity)
	r.Delete("/entities/{type}/{id}", s.DeleteEntity)
	r.Post("/projects/{projectID}/reindex", s.ReindexProject)
	r.Post("/projects/{projectID}/cluster", s.ClusterProject)
	r.Get("/weights", s.GetWeights)
	r.Put("/weights", s.UpdateWeights)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type searchRequest struct {
	Text         string    `json:"text,omitempty"`
	Embedding    []float32 `json:"embedding,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	Perturbation string    `json:"perturbation,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	EntityTypes  []string  `json:"entity_types,omitempty"`
	MinScore     float64   `json:"min_score,omitempty"`
	ExcludeIDs   []string  `json:"exclude_ids,omitempty"`
}

type searchResultItem struct {
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ProjectID  string            `json:"project_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`

	FinalScore    float64 `json:"final_score"`
	VectorScore   float64 `json:"vector_score"`
	TextScore     float64 `json:"text_score"`
	TemporalScore float64 `json:"temporal_score"`
	ProjectScore  float64 `json:"project_score"`
	TypeScore     float64 `json:"type_score"`

	TitleMatches     int     `json:"title_matches,omitempty"`
	ContentMatches   int     `json:"content_matches,omitempty"`
	DiversityPenalty float64 `json:"diversity_penalty,omitempty"`
}

type searchResponse struct {
	Items []searchResultItem `json:"items"`
	Total int                `json:"total"`
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := query.New(
		req.Text,
		req.Embedding,
		req.ProjectID,
		mode.Mode(req.Mode),
		mode.Perturbation(req.Perturbation),
		req.Limit,
		typesFromStrings(req.EntityTypes),
		req.MinScore,
		req.ExcludeIDs,
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	results, err := s.engine.Search(r.Context(), &q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i := range results {
		items[i] = resultToItem(&results[i])
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items, Total: len(items)})
}

type indexRequest struct {
	Type      string            `json:"type"`
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id,omitempty"`
	Title     string            `json:"title,omitempty"`
	Content   string            `json:"content,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IndexEntity handles POST /entities.
func (s *Server) IndexEntity(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	err := s.engine.Index(r.Context(), engine.Entity{
		Type:      domvec.Type(req.Type),
		ID:        req.ID,
		ProjectID: req.ProjectID,
		Title:     req.Title,
		Content:   req.Content,
		Metadata:  req.Metadata,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// DeleteEntity handles DELETE /entities/{type}/{id}.
func (s *Server) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	typ := domvec.Type(chi.URLParam(r, "type"))
	id := chi.URLParam(r, "id")

	if err := s.engine.Delete(r.Context(), typ, id); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reindexResponse struct {
	ProjectID string `json:"project_id"`
	Reindexed int    `json:"reindexed"`
}

// ReindexProject handles POST /projects/{projectID}/reindex.
func (s *Server) ReindexProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	count, err := s.engine.ReindexProject(r.Context(), projectID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reindexResponse{ProjectID: projectID, Reindexed: count})
}

type clusterRequest struct {
	K             int      `json:"k"`
	EntityTypes   []string `json:"entity_types,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty"`
}

type clusterItem struct {
	ID        int       `json:"id"`
	Centroid  []float32 `json:"centroid,omitempty"`
	MemberIDs []string  `json:"member_ids"`
	Size      int       `json:"size"`
}

type clusterResponse struct {
	Clusters   []clusterItem `json:"clusters"`
	Iterations int           `json:"iterations"`
	Converged  bool          `json:"converged"`
}

// ClusterProject handles POST /projects/{projectID}/cluster.
func (s *Server) ClusterProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req clusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	result, err := s.clusters.Cluster(r.Context(), projectID, req.K, clusteruc.Options{
		EntityTypes:   typesFromStrings(req.EntityTypes),
		MaxIterations: req.MaxIterations,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clusterResultToResponse(result))
}

type weightsResponse struct {
	Vector    float64 `json:"vector"`
	Text      float64 `json:"text"`
	Temporal  float64 `json:"temporal"`
	Diversity float64 `json:"diversity"`
	Project   float64 `json:"project"`
	Type      float64 `json:"type"`
}

type weightsPatchRequest struct {
	Vector    *float64 `json:"vector,omitempty"`
	Text      *float64 `json:"text,omitempty"`
	Temporal  *float64 `json:"temporal,omitempty"`
	Diversity *float64 `json:"diversity,omitempty"`
	Project   *float64 `json:"project,omitempty"`
	Type      *float64 `json:"type,omitempty"`
}

// GetWeights handles GET /weights.
func (s *Server) GetWeights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, weightsToResponse(s.scorer.Weights()))
}

// UpdateWeights handles PUT /weights. Omitted fields keep their current
// value; the stored vector is renormalized after the merge.
func (s *Server) UpdateWeights(w http.ResponseWriter, r *http.Request) {
	var req weightsPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	updated, err := s.scorer.UpdateWeights(domrank.Patch{
		Vector:    req.Vector,
		Text:      req.Text,
		Temporal:  req.Temporal,
		Diversity: req.Diversity,
		Project:   req.Project,
		Type:      req.Type,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, weightsToResponse(updated))
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func resultToItem(c *candidate.Candidate) searchResultItem {
	return searchResultItem{
		EntityType:       string(c.EntityType),
		EntityID:         c.EntityID,
		ProjectID:        c.ProjectID,
		Metadata:         c.Metadata,
		CreatedAt:        c.CreatedAt,
		FinalScore:       c.FinalScore,
		VectorScore:      c.VectorScore,
		TextScore:        c.TextScore,
		TemporalScore:    c.TemporalScore,
		ProjectScore:     c.ProjectScore,
		TypeScore:        c.TypeScore,
		TitleMatches:     c.TitleMatches,
		ContentMatches:   c.ContentMatches,
		DiversityPenalty: c.DiversityPenalty,
	}
}

func clusterResultToResponse(result domcluster.Result) clusterResponse {
	items := make([]clusterItem, len(result.Clusters))
	for i, cl := range result.Clusters {
		items[i] = clusterItem{
			ID:        cl.ID,
			Centroid:  cl.Centroid,
			MemberIDs: cl.MemberIDs,
			Size:      cl.Size,
		}
	}
	return clusterResponse{
		Clusters:   items,
		Iterations: result.Iterations,
		Converged:  result.Converged,
	}
}

func weightsToResponse(w domrank.Weights) weightsResponse {
	return weightsResponse{
		Vector:    w.Vector(),
		Text:      w.Text(),
		Temporal:  w.Temporal(),
		Diversity: w.Diversity(),
		Project:   w.Project(),
		Type:      w.Type(),
	}
}

func typesFromStrings(ss []string) []domvec.Type {
	if len(ss) == 0 {
		return nil
	}
	types := make([]domvec.Type, len(ss))
	for i, s := range ss {
		types[i] = domvec.Type(s)
	}
	return types
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrDimensionMismatch,
		domain.ErrInsufficientData,
		domain.ErrEmbedderUnavailable,
		domain.ErrNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	var stage *domain.StageError
	if errors.As(err, &stage) {
		s.logger.Warn("pipeline stage failed", zap.String("stage", stage.Stage), zap.Error(stage.Err))
	} else {
		s.logger.Warn("domain error", zap.Error(err))
	}

	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
