package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/observability"
	"github.com/couchcryptid/storm-vision-service/internal/render"
)

// ErrUpstream marks failures of the AI or map provider, as opposed to bad
// client input.
var ErrUpstream = errors.New("upstream service failed")

// ErrDisabled is returned when an optional integration is not configured.
var ErrDisabled = errors.New("feature disabled")

// Config wires the service to its boundaries. Analyzer and Store are
// required; a nil Geocoder, Conditions, Publisher or Maps disables that
// feature.
type Config struct {
	Analyzer   domain.Analyzer
	Store      domain.Store
	Geocoder   domain.Geocoder
	Conditions domain.ConditionsProvider
	Publisher  domain.Publisher
	Maps       domain.MapRenderer

	Fonts             *render.Fonts
	CardWidth         int
	MapStyle          string
	ConditionsTimeout time.Duration
}

// Service owns the current analysis snapshot and orchestrates analysis,
// enrichment, persistence and rendering.
type Service struct {
	cfg     Config
	canvas  *render.Canvas
	logger  *slog.Logger
	metrics *observability.Metrics

	mu         sync.RWMutex
	snap       *domain.Snapshot
	conditions *domain.Conditions

	// saveMu serializes persistence so the store ends on the current snapshot.
	saveMu sync.Mutex

	background sync.WaitGroup
}

// New creates a Service with no snapshot loaded.
func New(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if cfg.CardWidth <= 0 {
		cfg.CardWidth = 1080
	}
	if cfg.ConditionsTimeout <= 0 {
		cfg.ConditionsTimeout = 10 * time.Second
	}
	return &Service{
		cfg:     cfg,
		canvas:  render.NewCanvas(cfg.Fonts),
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a snapshot is available, or an error
// describing why the service is not yet ready.
func (s *Service) CheckReadiness(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return errors.New("no analysis loaded yet")
	}
	return nil
}

// LoadLatest restores the persisted snapshot. A store with nothing saved is
// not an error; the service simply stays unready.
func (s *Service) LoadLatest(ctx context.Context) error {
	snap, err := domain.LoadSnapshot(ctx, s.cfg.Store)
	if errors.Is(err, domain.ErrNoAnalysis) {
		s.logger.Info("no persisted analysis found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load latest analysis: %w", err)
	}
	s.setSnapshot(snap)
	s.logger.Info("persisted analysis loaded",
		"analysis_id", snap.Analysis.ID,
		"location", snap.Analysis.LocationName,
	)
	return nil
}

// Latest returns a copy of the current snapshot.
func (s *Service) Latest() (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return domain.Snapshot{}, domain.ErrNoAnalysis
	}
	return *s.snap, nil
}

// Analyze runs one image through the AI service and makes the result the
// current snapshot. With enhance set, an AI-generated rendition is also
// requested; its failure is logged and does not fail the analysis.
// Persistence and event publishing are best effort.
func (s *Service) Analyze(ctx context.Context, img domain.SourceImage, enhance bool) (domain.Snapshot, error) {
	start := time.Now()
	raw, err := s.cfg.Analyzer.Analyze(ctx, img)
	if err != nil {
		s.metrics.Analyses.WithLabelValues("ai_error").Inc()
		return domain.Snapshot{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	analysis, err := domain.ParseAnalysis(raw)
	if err != nil {
		s.metrics.Analyses.WithLabelValues("parse_error").Inc()
		s.logger.Warn("AI response rejected", "error", err, "bytes", len(raw))
		return domain.Snapshot{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	analysis = domain.Stamp(analysis, img)
	analysis = domain.EnrichWithGeocoding(ctx, analysis, s.cfg.Geocoder, s.logger)

	snap := domain.Snapshot{Analysis: analysis, Image: img}
	if enhance {
		snap.Enhanced = s.enhance(ctx, analysis)
	}

	s.setSnapshot(snap)
	s.metrics.Analyses.WithLabelValues("success").Inc()
	s.logger.Info("analysis completed",
		"analysis_id", analysis.ID,
		"location", analysis.LocationName,
		"geo_source", analysis.GeoSource,
		"track_points", len(analysis.StormTrack),
		"duration", time.Since(start),
	)

	s.persist(ctx, snap)
	if s.cfg.Publisher != nil {
		if err := s.cfg.Publisher.Publish(ctx, analysis); err != nil {
			s.logger.Warn("publish analysis failed", "analysis_id", analysis.ID, "error", err)
		}
	}
	if s.cfg.Conditions != nil && analysis.Center != nil {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			if err := s.refresh(context.Background(), analysis); err != nil {
				s.logger.Warn("conditions refresh failed", "analysis_id", analysis.ID, "error", err)
			}
		}()
	}
	return snap, nil
}

func (s *Service) enhance(ctx context.Context, a domain.WeatherAnalysis) *domain.SourceImage {
	img, err := s.cfg.Analyzer.Enhance(ctx, a)
	if err != nil {
		s.logger.Warn("image enhancement failed", "analysis_id", a.ID, "error", err)
		return nil
	}
	return &img
}

// persist saves snap unless a newer analysis has already replaced it.
func (s *Service) persist(ctx context.Context, snap domain.Snapshot) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if !s.isCurrent(snap.Analysis.ID) {
		s.logger.Debug("skipping persist of superseded analysis", "analysis_id", snap.Analysis.ID)
		return
	}
	if err := domain.SaveSnapshot(ctx, s.cfg.Store, snap); err != nil {
		s.logger.Error("persist analysis failed", "analysis_id", snap.Analysis.ID, "error", err)
	}
}

func (s *Service) isCurrent(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap != nil && s.snap.Analysis.ID == id
}

// Wait blocks until background condition refreshes have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// setSnapshot replaces the current snapshot and drops conditions that
// belonged to the previous analysis.
func (s *Service) setSnapshot(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snap
	if s.conditions != nil && s.conditions.AnalysisID != snap.Analysis.ID {
		s.conditions = nil
	}
	s.metrics.SnapshotLoaded.Set(1)
}
