package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// Search
// ============================================================================

type searchRequest struct {
	Query          string    `json:"query"`
	Vector         []float32 `json:"vector,omitempty"`
	Tier           string    `json:"tier"`
	TopK           int       `json:"topK"`
	ScoreThreshold float64   `json:"scoreThreshold"`
	Tags           []string  `json:"tags,omitempty"`
	Project        string    `json:"project,omitempty"`
	RerankTopK     int       `json:"rerankTopK,omitempty"`
}

func (req searchRequest) options() shared.SearchOptions {
	opts := shared.DefaultSearchOptions()
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	opts.ScoreThreshold = req.ScoreThreshold
	opts.Tags = req.Tags
	opts.Project = req.Project
	return opts
}

type searchResponse struct {
	Results []shared.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	tier := shared.Tier(req.Tier)
	var (
		results []shared.SearchResult
		err     error
	)
	if len(req.Vector) > 0 {
		results, err = s.search.HybridSearch(r.Context(), req.Query, req.Vector, tier, req.options())
	} else {
		results, err = s.search.Search(r.Context(), req.Query, tier, req.options())
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	results, err := s.search.VectorSearch(r.Context(), req.Vector, shared.Tier(req.Tier), req.options())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleRerankSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	topK := req.RerankTopK
	if topK <= 0 {
		topK = req.options().TopK
	}
	results, err := s.search.SearchWithRerank(r.Context(), req.Query, shared.Tier(req.Tier), req.options(), topK)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

// ============================================================================
// Records
// ============================================================================

type createRecordRequest struct {
	Content  string                `json:"content"`
	Tier     string                `json:"tier"`
	Metadata shared.RecordMetadata `json:"metadata"`
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.Content == "" {
		s.respondError(w, shared.Validationf("content must not be empty"))
		return
	}
	tier := shared.Tier(req.Tier)
	if req.Tier == "" {
		tier = shared.TierInteract
	}
	if !tier.Valid() {
		s.respondError(w, shared.Validationf("invalid tier %q", req.Tier))
		return
	}

	if !s.resources.CheckResources(r.Context(), "store_record") {
		// Memory pressure: reclaim, then re-check before refusing the write.
		if _, err := s.resources.FreeResources(r.Context()); err != nil {
			s.logger.Warn("emergency reclamation failed", "error", err.Error())
		}
		if !s.resources.CheckResources(r.Context(), "store_record") {
			s.respondError(w, shared.Exhaustedf("memory budget exceeded"))
			return
		}
	}

	record := shared.NewRecord(req.Content, tier)
	record.Metadata = req.Metadata

	if s.embedder != nil {
		embedding, err := s.embedder.Embed(r.Context(), req.Content)
		if err != nil {
			s.respondError(w, err)
			return
		}
		record.Embedding = embedding
	}

	if err := s.repo.Store(r.Context(), record); err != nil {
		s.respondError(w, err)
		return
	}
	if s.index != nil && record.Embedding != nil {
		if err := s.index.Add(r.Context(), record); err != nil {
			// Storage is authoritative; the index catches up on rebuild.
			s.logger.Warn("index add failed", "record_id", record.ID, "error", err.Error())
		}
	}
	s.resources.RecordOperation()
	s.respond(w, http.StatusCreated, record)
}

func (s *Server) recordParams(r *http.Request) (string, shared.Tier, error) {
	tier := shared.Tier(chi.URLParam(r, "tier"))
	id := chi.URLParam(r, "id")
	if !tier.Valid() {
		return "", "", shared.Validationf("invalid tier %q", string(tier))
	}
	return id, tier, nil
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, tier, err := s.recordParams(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	record, err := s.repo.Get(r.Context(), id, tier)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, record)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, tier, err := s.recordParams(r)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.repo.Delete(r.Context(), id, tier); err != nil {
		s.respondError(w, err)
		return
	}
	if s.index != nil {
		if err := s.index.Remove(r.Context(), id, tier); err != nil {
			s.logger.Warn("index remove failed", "record_id", id, "error", err.Error())
		}
	}
	s.search.InvalidateCache()
	s.respond(w, http.StatusNoContent, nil)
}

// ============================================================================
// Resources
// ============================================================================

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	usage, err := s.resources.ResourceUsage(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"usage":   usage,
		"limits":  s.resources.GetLimits(),
		"alerts":  s.resources.Alerts(),
		"trend":   s.resources.Trend(),
		"scaling": s.resources.ScalingHistory(),
		"metrics": s.resources.Metrics(),
		"search":  s.search.Metrics(),
	})
}

func (s *Server) handleFreeResources(w http.ResponseWriter, r *http.Request) {
	freed, err := s.resources.FreeResources(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]uint64{"freedBytes": freed})
}

// ============================================================================
// Promotion
// ============================================================================

type promotionRunRequest struct {
	DryRun bool `json:"dryRun"`
}

func (s *Server) handlePromotionRun(w http.ResponseWriter, r *http.Request) {
	var req promotionRunRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
	}
	result, err := s.promotion.Promote(r.Context(), req.DryRun)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if !req.DryRun {
		s.search.InvalidateCache()
	}
	s.respond(w, http.StatusOK, result)
}

type promotionForceRequest struct {
	IDs  []string `json:"ids"`
	Tier string   `json:"tier"`
}

func (s *Server) handlePromotionForce(w http.ResponseWriter, r *http.Request) {
	var req promotionForceRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	result, err := s.promotion.ForcePromote(r.Context(), req.IDs, shared.Tier(req.Tier))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.search.InvalidateCache()
	s.respond(w, http.StatusOK, result)
}

func (s *Server) handlePromotionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.promotion.Statistics(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"tiers": stats})
}
