package promotion

import (
	"context"
	"log/slog"
	"sort"
	"time"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// Service Configuration
// ============================================================================

// Repository is the storage surface the promotion service needs: the shared
// record operations plus the atomic tier move.
type Repository interface {
	shared.StorageRepository
	MoveTier(ctx context.Context, id string, from, to shared.Tier) error
}

// IndexSync keeps a vector index in step with tier moves and deletions.
type IndexSync interface {
	Move(ctx context.Context, id string, from, to shared.Tier) error
	Remove(ctx context.Context, id string, tier shared.Tier) error
}

// ServiceConfig tunes promotion discovery and execution.
type ServiceConfig struct {
	// ConfidenceThreshold is the minimum scorer confidence for a
	// recommendation.
	ConfidenceThreshold float64 `json:"confidenceThreshold"`

	// ForcePromoteCap bounds one forced-promotion request.
	ForcePromoteCap int `json:"forcePromoteCap"`

	// DiscoveryLimit caps how many records each tier contributes to one
	// analysis pass.
	DiscoveryLimit int `json:"discoveryLimit"`

	// InteractTTL is the nominal interact-tier lifetime. Records older than
	// twice this are swept during automated cycles.
	InteractTTL time.Duration `json:"interactTtl"`

	// InteractCriteria gates interact -> insights promotion.
	InteractCriteria domainpromo.Criteria `json:"interactCriteria"`

	// InsightsCriteria gates insights -> assets promotion. It demands more
	// accesses and a higher importance floor than the interact gate.
	InsightsCriteria domainpromo.Criteria `json:"insightsCriteria"`
}

// DefaultServiceConfig returns production promotion settings.
func DefaultServiceConfig() ServiceConfig {
	interact := domainpromo.DefaultCriteria()
	insights := interact
	insights.MinAccessCount = 5
	insights.MinAge = 12 * time.Hour
	insights.MinImportanceScore = interact.MinImportanceScore * 1.2
	return ServiceConfig{
		ConfidenceThreshold: 0.7,
		ForcePromoteCap:     50,
		DiscoveryLimit:      1000,
		InteractTTL:         24 * time.Hour,
		InteractCriteria:    interact,
		InsightsCriteria:    insights,
	}
}

// accelerationChecker is satisfied by usage analyzers that can report a
// rising access pattern. Optional; a criteria set requiring acceleration is
// only enforceable against analyzers that implement it.
type accelerationChecker interface {
	HasAcceleration(id string) bool
}

// ============================================================================
// Service
// ============================================================================

// Service runs the promotion pipeline: discovery, scoring, execution, forced
// moves, and the automated cycle with expiry sweeping.
type Service struct {
	config ServiceConfig
	repo   Repository
	engine *Engine
	scorer domainpromo.Scorer
	usage  domainpromo.UsageAnalyzer
	index  IndexSync
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithIndexSync mirrors tier moves and deletions into a vector index.
func WithIndexSync(index IndexSync) ServiceOption {
	return func(s *Service) { s.index = index }
}

// WithServiceLogger sets the structured logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService wires the promotion service.
func NewService(config ServiceConfig, repo Repository, engine *Engine, scorer domainpromo.Scorer, usage domainpromo.UsageAnalyzer, opts ...ServiceOption) *Service {
	s := &Service{
		config: config,
		repo:   repo,
		engine: engine,
		scorer: scorer,
		usage:  usage,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Discovery
// ============================================================================

// Analyze scans the non-terminal tiers and returns recommendations ordered
// by descending confidence. It never mutates storage.
func (s *Service) Analyze(ctx context.Context) ([]domainpromo.Recommendation, error) {
	var recs []domainpromo.Recommendation
	for _, tier := range shared.AllTiers() {
		next, ok := tier.Next()
		if !ok {
			continue
		}
		records, err := s.repo.List(ctx, tier, s.config.DiscoveryLimit)
		if err != nil {
			return nil, err
		}
		criteria := s.criteriaFor(tier)
		for _, record := range records {
			features, err := s.engine.ExtractFeatures(ctx, record)
			if err != nil {
				s.logger.Warn("feature extraction failed",
					slog.String("record_id", record.ID),
					slog.String("error", err.Error()))
				continue
			}
			if !s.meetsCriteria(record, features, criteria) {
				continue
			}
			score := s.scorer.Score(features)
			if score.Confidence <= s.config.ConfidenceThreshold {
				continue
			}
			recs = append(recs, domainpromo.Recommendation{
				RecordID:   record.ID,
				FromTier:   tier,
				ToTier:     next,
				Confidence: score.Confidence,
				Rationale:  score.Rationale,
				Features:   features,
			})
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Confidence > recs[j].Confidence })
	return recs, nil
}

func (s *Service) criteriaFor(tier shared.Tier) domainpromo.Criteria {
	if tier == shared.TierInsights {
		return s.config.InsightsCriteria
	}
	return s.config.InteractCriteria
}

func (s *Service) meetsCriteria(record *shared.Record, features domainpromo.Features, criteria domainpromo.Criteria) bool {
	if record.AccessCount < criteria.MinAccessCount {
		return false
	}
	if record.HoursSinceAccess() > criteria.MaxAccessInterval.Hours() {
		return false
	}
	if record.AgeHours() < criteria.MinAge.Hours() {
		return false
	}
	if features.SemanticImportance < criteria.MinImportanceScore {
		return false
	}
	if criteria.RequireAcceleration {
		checker, ok := s.usage.(accelerationChecker)
		if !ok || !checker.HasAcceleration(record.ID) {
			return false
		}
	}
	return true
}

// ============================================================================
// Execution
// ============================================================================

// Execute applies a batch of recommendations. One record's failure never
// aborts the batch. With dryRun set, no storage is touched and outcomes
// report what would have happened.
func (s *Service) Execute(ctx context.Context, recs []domainpromo.Recommendation, dryRun bool) domainpromo.BatchResult {
	start := s.now()
	result := domainpromo.BatchResult{
		TotalCandidates: len(recs),
		DryRun:          dryRun,
	}
	for _, rec := range recs {
		outcome := s.executeOne(ctx, rec, dryRun)
		switch {
		case outcome.Skipped:
			result.Skipped++
		case outcome.Success:
			result.Promoted++
		default:
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	result.Duration = s.now().Sub(start)
	return result
}

func (s *Service) executeOne(ctx context.Context, rec domainpromo.Recommendation, dryRun bool) domainpromo.RecordOutcome {
	start := s.now()
	outcome := domainpromo.RecordOutcome{
		RecordID: rec.RecordID,
		FromTier: rec.FromTier,
		ToTier:   rec.ToTier,
	}
	if dryRun {
		outcome.Success = true
		outcome.Reason = "dry run"
		outcome.Duration = s.now().Sub(start)
		return outcome
	}

	if err := s.repo.MoveTier(ctx, rec.RecordID, rec.FromTier, rec.ToTier); err != nil {
		outcome.Reason = err.Error()
		outcome.Duration = s.now().Sub(start)
		s.logger.Warn("promotion failed",
			slog.String("record_id", rec.RecordID),
			slog.String("from", string(rec.FromTier)),
			slog.String("to", string(rec.ToTier)),
			slog.String("error", err.Error()))
		return outcome
	}

	if s.index != nil {
		if err := s.index.Move(ctx, rec.RecordID, rec.FromTier, rec.ToTier); err != nil {
			// Storage already moved; the index catches up on next rebuild.
			s.logger.Warn("index move failed",
				slog.String("record_id", rec.RecordID),
				slog.String("error", err.Error()))
		}
	}
	s.engine.InvalidateFeatures(rec.RecordID)

	outcome.Success = true
	outcome.Duration = s.now().Sub(start)
	s.logger.Info("record promoted",
		slog.String("record_id", rec.RecordID),
		slog.String("from", string(rec.FromTier)),
		slog.String("to", string(rec.ToTier)),
		slog.Float64("confidence", rec.Confidence))
	return outcome
}

// Promote runs discovery and immediately executes the recommendations.
func (s *Service) Promote(ctx context.Context, dryRun bool) (domainpromo.BatchResult, error) {
	recs, err := s.Analyze(ctx)
	if err != nil {
		return domainpromo.BatchResult{}, err
	}
	return s.Execute(ctx, recs, dryRun), nil
}

// ForcePromote moves the named records to the target tier, bypassing scoring
// and criteria. Requests above the configured cap are rejected outright.
func (s *Service) ForcePromote(ctx context.Context, ids []string, to shared.Tier) (domainpromo.BatchResult, error) {
	if !to.Valid() {
		return domainpromo.BatchResult{}, shared.Validationf("invalid target tier %q", to)
	}
	if len(ids) == 0 {
		return domainpromo.BatchResult{}, shared.Validationf("no record ids given")
	}
	if len(ids) > s.config.ForcePromoteCap {
		return domainpromo.BatchResult{}, shared.Validationf("too many records: %d exceeds cap %d", len(ids), s.config.ForcePromoteCap)
	}

	start := s.now()
	result := domainpromo.BatchResult{TotalCandidates: len(ids)}
	for _, id := range ids {
		outcome := s.forceOne(ctx, id, to)
		switch {
		case outcome.Skipped:
			result.Skipped++
		case outcome.Success:
			result.Promoted++
		default:
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	result.Duration = s.now().Sub(start)
	return result, nil
}

func (s *Service) forceOne(ctx context.Context, id string, to shared.Tier) domainpromo.RecordOutcome {
	start := s.now()
	outcome := domainpromo.RecordOutcome{RecordID: id, ToTier: to}

	record, from, err := s.locate(ctx, id)
	if err != nil {
		outcome.Skipped = true
		outcome.Reason = "record not found"
		outcome.Duration = s.now().Sub(start)
		return outcome
	}
	outcome.FromTier = from
	if from == to {
		outcome.Skipped = true
		outcome.Reason = "already in target tier"
		outcome.Duration = s.now().Sub(start)
		return outcome
	}

	if err := s.repo.MoveTier(ctx, id, from, to); err != nil {
		outcome.Reason = err.Error()
		outcome.Duration = s.now().Sub(start)
		return outcome
	}
	if s.index != nil && record.Embedding != nil {
		if err := s.index.Move(ctx, id, from, to); err != nil {
			s.logger.Warn("index move failed",
				slog.String("record_id", id),
				slog.String("error", err.Error()))
		}
	}
	s.engine.InvalidateFeatures(id)

	outcome.Success = true
	outcome.Duration = s.now().Sub(start)
	return outcome
}

// locate finds a record by id across tiers, innermost first.
func (s *Service) locate(ctx context.Context, id string) (*shared.Record, shared.Tier, error) {
	for _, tier := range shared.AllTiers() {
		record, err := s.repo.Get(ctx, id, tier)
		if err == nil {
			return record, tier, nil
		}
	}
	return nil, "", shared.NotFoundf("record %q not found in any tier", id)
}

// ============================================================================
// Automated Cycle
// ============================================================================

// AutomatedCycle runs one maintenance pass: sweep expired interact records,
// then discover and execute promotions. Records already in the terminal tier
// are never candidates, so repeated cycles are idempotent on a quiet corpus.
func (s *Service) AutomatedCycle(ctx context.Context) (domainpromo.BatchResult, error) {
	expired, err := s.sweepExpired(ctx)
	if err != nil {
		s.logger.Warn("expiry sweep failed", slog.String("error", err.Error()))
	}
	result, err := s.Promote(ctx, false)
	if err != nil {
		return domainpromo.BatchResult{}, err
	}
	result.Expired = expired
	s.logger.Info("promotion cycle complete",
		slog.Int("candidates", result.TotalCandidates),
		slog.Int("promoted", result.Promoted),
		slog.Int("failed", result.Failed),
		slog.Int("expired", result.Expired))
	return result, nil
}

// sweepExpired deletes interact records older than twice the interact TTL.
func (s *Service) sweepExpired(ctx context.Context) (int, error) {
	records, err := s.repo.List(ctx, shared.TierInteract, s.config.DiscoveryLimit)
	if err != nil {
		return 0, err
	}
	maxAge := 2 * s.config.InteractTTL.Hours()
	expired := 0
	for _, record := range records {
		if record.AgeHours() <= maxAge {
			continue
		}
		if err := s.repo.Delete(ctx, record.ID, shared.TierInteract); err != nil {
			s.logger.Warn("expired record delete failed",
				slog.String("record_id", record.ID),
				slog.String("error", err.Error()))
			continue
		}
		if s.index != nil {
			if err := s.index.Remove(ctx, record.ID, shared.TierInteract); err != nil {
				s.logger.Warn("index remove failed",
					slog.String("record_id", record.ID),
					slog.String("error", err.Error()))
			}
		}
		s.engine.InvalidateFeatures(record.ID)
		expired++
	}
	return expired, nil
}

// ============================================================================
// Statistics
// ============================================================================

// Statistics reports per-tier record and candidate counts. The terminal tier
// always reports zero candidates.
func (s *Service) Statistics(ctx context.Context) ([]domainpromo.TierStatistics, error) {
	recs, err := s.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make(map[shared.Tier]int)
	for _, rec := range recs {
		candidates[rec.FromTier]++
	}

	var stats []domainpromo.TierStatistics
	for _, tier := range shared.AllTiers() {
		records, err := s.repo.List(ctx, tier, s.config.DiscoveryLimit)
		if err != nil {
			return nil, err
		}
		stats = append(stats, domainpromo.TierStatistics{
			Tier:       tier,
			Records:    len(records),
			Candidates: candidates[tier],
		})
	}
	return stats, nil
}
