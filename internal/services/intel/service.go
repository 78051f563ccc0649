// Package intel is the query orchestrator: it fans one IOC query out to every
// eligible source, isolates per-source failures, aggregates the verdicts and
// maintains both cache tiers.
package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"vigil/internal/domain"
	"vigil/internal/metrics"
	"vigil/internal/ports"
)

// SourceRegistry resolves eligible sources for a query.
type SourceRegistry interface {
	EligibleWithCredentials(ctx context.Context, names []string, autoOnly bool) ([]domain.CredentialedSource, error)
	EligibleWithoutCredentials(ctx context.Context, names []string) ([]domain.SourceDescriptor, error)
}

type Options struct {
	CacheTTL      time.Duration // how long aggregated results stay cached
	SourceTimeout time.Duration // per-source call budget within one query
}

type Service struct {
	registry    SourceRegistry
	client      ports.SourceClient
	secrets     ports.SecretStore
	local       ports.ResultCache
	shared      ports.ResultCache // nil when no networked tier is configured
	queries     ports.QueryRepository
	credentials ports.CredentialRepository
	opts        Options
	log         *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(registry SourceRegistry, client ports.SourceClient, secrets ports.SecretStore, local, shared ports.ResultCache, queries ports.QueryRepository, credentials ports.CredentialRepository, opts Options, log *slog.Logger) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 30 * time.Second
	}
	return &Service{
		registry:    registry,
		client:      client,
		secrets:     secrets,
		local:       local,
		shared:      shared,
		queries:     queries,
		credentials: credentials,
		opts:        opts,
		log:         log,
		now:         time.Now,
		limiters:    make(map[string]*rate.Limiter),
	}
}

type unit struct {
	credential *domain.Credential
	source     domain.SourceDescriptor
}

// Query executes one IOC query end to end. Source-level failure never
// surfaces as an error; the returned result describes per source what
// succeeded, what failed and why.
func (s *Service) Query(ctx context.Context, userID string, req domain.QueryRequest) (domain.QueryResult, error) {
	if req.IOCValue == "" {
		return domain.QueryResult{}, fmt.Errorf("ioc value is required")
	}
	if req.IOCType == "" || req.IOCType == domain.IOCTypeUnknown {
		req.IOCType = domain.DetectIOCType(req.IOCValue)
	}
	req.IOCValue = domain.NormalizeIOC(req.IOCType, req.IOCValue)

	// Shared tier is the source of truth when present; the local tier is the
	// degrade path and backfills the shared tier on a hit.
	if s.shared != nil {
		if cached, ok := s.shared.Get(ctx, req.IOCType, req.IOCValue); ok {
			metrics.CacheHits.WithLabelValues("shared").Inc()
			return cached, nil
		}
	}
	if cached, ok := s.local.Get(ctx, req.IOCType, req.IOCValue); ok {
		metrics.CacheHits.WithLabelValues("local").Inc()
		if s.shared != nil {
			s.shared.Set(ctx, cached, s.opts.CacheTTL)
		}
		return cached, nil
	}

	units, err := s.resolveSources(ctx, req)
	if err != nil {
		return domain.QueryResult{}, err
	}

	if len(units) == 0 {
		result := domain.QueryResult{
			IOCType:   req.IOCType,
			IOCValue:  req.IOCValue,
			QueriedAt: s.now().UTC(),
			Sources: []domain.SourceResult{{
				Source:      "system",
				Status:      domain.StatusError,
				Description: "no active credentials or sources found for the requested sources",
			}},
		}
		metrics.QueriesTotal.WithLabelValues("none").Inc()
		return result, nil
	}

	// Fan out. Each source is an independent unit of work; a timeout or
	// failure in one never cancels its siblings.
	results := make([]domain.SourceResult, len(units))
	var wg sync.WaitGroup
	for i, u := range units {
		wg.Add(1)
		go func(i int, u unit) {
			defer wg.Done()
			results[i] = s.querySource(ctx, u, req.IOCType, req.IOCValue)
		}(i, u)
	}
	wg.Wait()

	overall := overallRisk(results)
	result := domain.QueryResult{
		IOCType:     req.IOCType,
		IOCValue:    req.IOCValue,
		OverallRisk: overall,
		Sources:     results,
		QueriedAt:   s.now().UTC(),
	}

	s.local.Set(ctx, result, s.opts.CacheTTL)
	if s.shared != nil {
		s.shared.Set(ctx, result, s.opts.CacheTTL)
	}

	// Best-effort: the caller gets the in-memory result even when the write
	// fails.
	if err := s.persist(ctx, userID, result); err != nil {
		s.log.Error("persisting query failed", "ioc_type", req.IOCType, "ioc_value", req.IOCValue, "err", err)
	}

	verdict := "none"
	if overall != nil {
		verdict = string(*overall)
	}
	metrics.QueriesTotal.WithLabelValues(verdict).Inc()
	return result, nil
}

func (s *Service) resolveSources(ctx context.Context, req domain.QueryRequest) ([]unit, error) {
	withCreds, err := s.registry.EligibleWithCredentials(ctx, req.Sources, req.AutoModeOnly)
	if err != nil {
		return nil, fmt.Errorf("resolving credentialed sources: %w", err)
	}
	withoutCreds, err := s.registry.EligibleWithoutCredentials(ctx, req.Sources)
	if err != nil {
		return nil, fmt.Errorf("resolving unauthenticated sources: %w", err)
	}

	units := make([]unit, 0, len(withCreds)+len(withoutCreds))
	seen := make(map[string]bool, len(withCreds))
	for _, cs := range withCreds {
		cred := cs.Credential
		units = append(units, unit{credential: &cred, source: cs.Source})
		seen[cs.Source.ID] = true
	}
	for _, src := range withoutCreds {
		if seen[src.ID] {
			continue
		}
		units = append(units, unit{source: src})
	}
	return units, nil
}

// querySource runs one source end to end: type gate, rate-limit gate,
// credential decryption, adapter call, categorical normalization. Failures
// are values, not errors.
func (s *Service) querySource(ctx context.Context, u unit, iocType domain.IOCType, iocValue string) domain.SourceResult {
	desc := u.source
	if !desc.Supports(iocType) {
		r := domain.SourceResult{
			Source:      desc.Name,
			Status:      domain.StatusSkipped,
			Description: fmt.Sprintf("IOC type %q not supported by %s", iocType, desc.DisplayName),
		}
		metrics.SourceCalls.WithLabelValues(desc.Name, string(r.Status)).Inc()
		return r
	}

	if lim := s.limiter(desc); lim != nil && !lim.Allow() {
		r := domain.SourceResult{
			Source:      desc.Name,
			Status:      domain.StatusError,
			Description: "source rate limit exceeded, skipping call",
		}
		metrics.SourceCalls.WithLabelValues(desc.Name, string(r.Status)).Inc()
		return r
	}

	material, errResult := s.decryptMaterial(u)
	if errResult != nil {
		metrics.SourceCalls.WithLabelValues(desc.Name, string(errResult.Status)).Inc()
		return *errResult
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.SourceTimeout)
	defer cancel()
	result, rawSignal := s.client.Execute(callCtx, desc, material, iocType, iocValue)

	if u.credential != nil {
		if err := s.credentials.TouchLastUsed(ctx, u.credential.ID, s.now().UTC()); err != nil {
			s.log.Warn("updating credential last_used failed", "source", desc.Name, "err", err)
		}
	}

	normalizeSignal(desc.Name, rawSignal, &result)
	metrics.SourceCalls.WithLabelValues(desc.Name, string(result.Status)).Inc()
	return result
}

// decryptMaterial resolves the plaintext secret material for one unit. A
// decrypt failure on a required key is a per-source error result, exactly
// like a transient failure; username/password degrade to unset.
func (s *Service) decryptMaterial(u unit) (domain.CredentialMaterial, *domain.SourceResult) {
	if !u.source.RequiresAuth() {
		return domain.CredentialMaterial{}, nil
	}
	if u.credential == nil || u.credential.APIKey == "" {
		return domain.CredentialMaterial{}, &domain.SourceResult{
			Source:      u.source.Name,
			Status:      domain.StatusError,
			Description: "an API key is required for this source",
		}
	}
	material := domain.CredentialMaterial{
		APIKey:          s.secrets.Decrypt(u.credential.APIKey),
		BaseURLOverride: u.credential.BaseURLOverride,
	}
	if material.APIKey == "" {
		return domain.CredentialMaterial{}, &domain.SourceResult{
			Source:      u.source.Name,
			Status:      domain.StatusError,
			Description: "failed to decrypt API key or API key is empty",
		}
	}
	if u.credential.Username != "" {
		if material.Username = s.secrets.Decrypt(u.credential.Username); material.Username == "" {
			s.log.Warn("username decryption failed, continuing without it", "source", u.source.Name)
		}
	}
	if u.credential.Password != "" {
		if material.Password = s.secrets.Decrypt(u.credential.Password); material.Password == "" {
			s.log.Warn("password decryption failed, continuing without it", "source", u.source.Name)
		}
	}
	return material, nil
}

// limiter returns the per-source outbound limiter built from the descriptor's
// rate-limit hint, or nil when the hint is absent.
func (s *Service) limiter(desc domain.SourceDescriptor) *rate.Limiter {
	if desc.RateLimit.Limit <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if lim, ok := s.limiters[desc.Name]; ok {
		return lim
	}
	period := ratePeriod(desc.RateLimit.Period)
	lim := rate.NewLimiter(rate.Limit(float64(desc.RateLimit.Limit)/period.Seconds()), desc.RateLimit.Limit)
	s.limiters[desc.Name] = lim
	return lim
}

func ratePeriod(period string) time.Duration {
	switch period {
	case "second":
		return time.Second
	case "30_seconds":
		return 30 * time.Second
	case "minute":
		return time.Minute
	case "hour":
		return time.Hour
	case "month":
		return 30 * 24 * time.Hour
	default: // day, and anything unrecognized
		return 24 * time.Hour
	}
}

func (s *Service) persist(ctx context.Context, userID string, result domain.QueryResult) error {
	resultsJSON, err := json.Marshal(struct {
		OverallRisk *domain.RiskLevel     `json:"overall_risk"`
		Sources     []domain.SourceResult `json:"queried_sources"`
	}{result.OverallRisk, result.Sources})
	if err != nil {
		return err
	}

	status := "pending"
	var score *float64
	if result.OverallRisk != nil {
		status = string(*result.OverallRisk)
		score = domain.ScoreFromRisk(*result.OverallRisk)
	}
	stored := domain.StoredQuery{
		ID:        uuid.NewString(),
		UserID:    userID,
		IOCType:   result.IOCType,
		IOCValue:  result.IOCValue,
		RiskScore: score,
		Status:    status,
		Results:   resultsJSON,
		QueriedAt: result.QueriedAt,
	}

	records := make([]domain.SourceRecord, 0, len(result.Sources))
	for _, sr := range result.Sources {
		processed, err := json.Marshal(struct {
			Status      domain.SourceStatus `json:"status"`
			RiskScore   *float64            `json:"risk_score"`
			Description string              `json:"description"`
		}{sr.Status, sr.RiskScore, sr.Description})
		if err != nil {
			return err
		}
		records = append(records, domain.SourceRecord{
			ID:        uuid.NewString(),
			QueryID:   stored.ID,
			Source:    sr.Source,
			Raw:       sr.Raw,
			Processed: processed,
			RiskScore: sr.RiskScore,
		})
	}
	return s.queries.SaveQuery(ctx, stored, records)
}

// History lists the caller's persisted queries.
func (s *Service) History(ctx context.Context, userID string, f domain.QueryFilter) ([]domain.StoredQuery, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return s.queries.ListQueries(ctx, userID, f)
}

// QueryDetail returns one persisted query with its per-source records.
func (s *Service) QueryDetail(ctx context.Context, id, userID string) (domain.StoredQuery, []domain.SourceRecord, error) {
	return s.queries.GetQuery(ctx, id, userID)
}
