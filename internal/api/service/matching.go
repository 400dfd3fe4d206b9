package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/api/storage"
	"github.com/shiftlyhq/backend/internal/geo"
)

// MatchingConfig bounds nearby-job searches.
type MatchingConfig struct {
	DefaultRadiusKm float64
	MaxRadiusKm     float64
	DefaultLimit    int
}

// JobMatch is a job annotated with its distance from the search origin.
type JobMatch struct {
	Job        domain.Job
	DistanceKm float64
}

// MatchingService finds published jobs near a worker. The bounding box is
// a coarse database prefilter; the exact haversine distance decides
// membership and ordering.
type MatchingService struct {
	jobs   JobStore
	logger *slog.Logger
	config MatchingConfig
}

// NewMatchingService builds the service.
func NewMatchingService(jobs JobStore, logger *slog.Logger, config MatchingConfig) *MatchingService {
	return &MatchingService{
		jobs:   jobs,
		logger: logger,
		config: config,
	}
}

// SearchInput is a nearby-jobs query. Zero radius and limit take the
// configured defaults; the radius is clamped to the configured maximum.
type SearchInput struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
	JobType  string
	Limit    int
}

// FindNearby returns open published jobs within the radius, nearest first.
// Invalid coordinates fail closed: an empty result, never a wildcard
// search and never an error.
func (s *MatchingService) FindNearby(ctx context.Context, actor domain.Actor, input SearchInput) ([]JobMatch, error) {
	if err := geo.ValidateCoordinates(input.Lat, input.Lng); err != nil {
		s.logger.Warn("nearby search with invalid origin",
			slog.Float64("lat", input.Lat),
			slog.Float64("lng", input.Lng),
			slog.Any("error", err),
		)
		return []JobMatch{}, nil
	}

	radius := input.RadiusKm
	if radius <= 0 {
		radius = s.config.DefaultRadiusKm
	}
	if radius > s.config.MaxRadiusKm {
		radius = s.config.MaxRadiusKm
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}

	var excludeWorker string
	if actor.IsWorker() {
		excludeWorker = actor.ID
	}

	// Overfetch: the box admits corner jobs the radius will reject.
	candidates, err := s.jobs.SearchPublished(ctx, storage.SearchFilter{
		Box:             geo.ComputeBoundingBox(input.Lat, input.Lng, radius),
		JobType:         input.JobType,
		ExcludeWorkerID: excludeWorker,
		Limit:           limit * 2,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]JobMatch, 0, len(candidates))
	for i := range candidates {
		distance := geo.Distance(input.Lat, input.Lng, candidates[i].LocationLat, candidates[i].LocationLng)
		if distance > radius {
			continue
		}
		matches = append(matches, JobMatch{Job: candidates[i], DistanceKm: distance})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.logger.Debug("nearby search completed",
		slog.Float64("radius_km", radius),
		slog.Int("candidates", len(candidates)),
		slog.Int("matches", len(matches)),
	)

	return matches, nil
}
