package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
)

// forecastDays is the length of the forecast fetched for an analysis.
const forecastDays = 5

// ErrNoLocation is returned when conditions are requested for an analysis
// without a geographic center.
var ErrNoLocation = errors.New("analysis has no location")

// Conditions returns the weather conditions for the current analysis,
// fetching them if none are cached yet.
func (s *Service) Conditions(ctx context.Context) (domain.Conditions, error) {
	s.mu.RLock()
	snap, cached := s.snap, s.conditions
	s.mu.RUnlock()

	if snap == nil {
		return domain.Conditions{}, domain.ErrNoAnalysis
	}
	if cached != nil && cached.AnalysisID == snap.Analysis.ID {
		return *cached, nil
	}
	if err := s.RefreshConditions(ctx); err != nil {
		return domain.Conditions{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conditions == nil || s.conditions.AnalysisID != snap.Analysis.ID {
		// Superseded by a newer analysis while fetching.
		return domain.Conditions{}, fmt.Errorf("%w: analysis replaced during fetch", ErrUpstream)
	}
	return *s.conditions, nil
}

// RefreshConditions fetches live weather and the forecast for the current
// analysis concurrently. Each fetch keeps its own error.
func (s *Service) RefreshConditions(ctx context.Context) error {
	if s.cfg.Conditions == nil {
		return ErrDisabled
	}
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap == nil {
		return domain.ErrNoAnalysis
	}
	return s.refresh(ctx, snap.Analysis)
}

// refresh fetches conditions for a. Results are discarded if another
// analysis became current while they were in flight.
func (s *Service) refresh(ctx context.Context, a domain.WeatherAnalysis) error {
	center := a.Center
	if center == nil {
		return ErrNoLocation
	}
	id := a.ID

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConditionsTimeout)
	defer cancel()

	c := domain.Conditions{AnalysisID: id}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		live, err := s.cfg.Conditions.Live(ctx, center.Lat, center.Lon)
		if err != nil {
			c.LiveError = err.Error()
			s.metrics.ConditionsRequests.WithLabelValues("live", "error").Inc()
			return
		}
		c.Live = &live
		s.metrics.ConditionsRequests.WithLabelValues("live", "success").Inc()
	}()
	go func() {
		defer wg.Done()
		days, err := s.cfg.Conditions.Forecast(ctx, center.Lat, center.Lon, forecastDays)
		if err != nil {
			c.ForecastError = err.Error()
			s.metrics.ConditionsRequests.WithLabelValues("forecast", "error").Inc()
			return
		}
		c.Forecast = days
		s.metrics.ConditionsRequests.WithLabelValues("forecast", "success").Inc()
	}()
	wg.Wait()
	c.FetchedAt = domain.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil || s.snap.Analysis.ID != id {
		s.metrics.ConditionsRequests.WithLabelValues("live", "stale").Inc()
		s.metrics.ConditionsRequests.WithLabelValues("forecast", "stale").Inc()
		s.logger.Debug("discarding conditions for superseded analysis", "analysis_id", id)
		return nil
	}
	s.conditions = &c
	s.logger.Debug("conditions refreshed",
		"analysis_id", id,
		"live_error", c.LiveError,
		"forecast_error", c.ForecastError,
	)
	return nil
}
