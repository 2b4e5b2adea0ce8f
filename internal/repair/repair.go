// Package repair reconciles catalog records whose storage keys are
// missing or stale against the live bucket index.
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/neuralpositive/trackgate/internal/catalog"
	"github.com/neuralpositive/trackgate/internal/event"
	"github.com/neuralpositive/trackgate/internal/resolver"
)

// Catalog is the subset of catalog operations the repair run needs.
type Catalog interface {
	ListNeedingRepair(ctx context.Context) ([]*catalog.Track, error)
	UpdateStorageKey(ctx context.Context, id, key, note string) error
}

// RunResult tracks the progress of one repair run.
type RunResult struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	TotalTracks int `json:"total_tracks"`
	Fixed       int `json:"fixed"`
	FixedMedium int `json:"fixed_medium"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
}

// Service runs repair passes over the catalog. Only one pass runs at a
// time; Status exposes a snapshot of the current or last pass.
type Service struct {
	catalog    Catalog
	resolver   *resolver.Resolver
	thresholds resolver.Thresholds
	limiter    *rate.Limiter
	bucket     string
	logger     *slog.Logger
	eventBus   *event.Bus

	mu         sync.Mutex
	currentRun *RunResult
}

// NewService creates a repair service. rps bounds how many tracks are
// resolved per second so a large backlog cannot saturate the storage API.
func NewService(cat Catalog, res *resolver.Resolver, thresholds resolver.Thresholds, bucket string, rps float64, logger *slog.Logger) *Service {
	if rps <= 0 {
		rps = 5
	}
	return &Service{
		catalog:    cat,
		resolver:   res,
		thresholds: thresholds,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		bucket:     bucket,
		logger:     logger.With(slog.String("component", "repair")),
	}
}

// SetEventBus sets the event bus for publishing repair events.
func (s *Service) SetEventBus(bus *event.Bus) {
	s.eventBus = bus
}

// Run starts a repair pass. Only one pass runs at a time.
// Returns a snapshot of the initial run result (safe to read without synchronization).
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	s.mu.Lock()
	if s.currentRun != nil && s.currentRun.Status == "running" {
		s.mu.Unlock()
		return nil, fmt.Errorf("repair already in progress")
	}

	result := &RunResult{
		ID:        uuid.New().String(),
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	s.currentRun = result
	snapshot := *result
	s.mu.Unlock()

	go s.runRepair(ctx, result)

	return &snapshot, nil
}

// Status returns a snapshot of the current or most recent repair run.
// The returned value is a copy and safe to read without synchronization.
func (s *Service) Status() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentRun == nil {
		return nil
	}
	snapshot := *s.currentRun
	return &snapshot
}

func (s *Service) runRepair(ctx context.Context, result *RunResult) {
	defer func() {
		s.mu.Lock()
		now := time.Now().UTC()
		result.CompletedAt = &now
		if result.Status == "running" {
			result.Status = "completed"
		}
		snapshot := *result
		s.mu.Unlock()

		if s.eventBus != nil {
			s.eventBus.Publish(event.Event{
				Type: event.RepairCompleted,
				Data: map[string]any{
					"run_id":       snapshot.ID,
					"status":       snapshot.Status,
					"total_tracks": snapshot.TotalTracks,
					"fixed":        snapshot.Fixed,
					"fixed_medium": snapshot.FixedMedium,
					"skipped":      snapshot.Skipped,
					"errors":       snapshot.Errors,
				},
			})
		}
	}()

	tracks, err := s.catalog.ListNeedingRepair(ctx)
	if err != nil {
		s.mu.Lock()
		result.Status = "failed"
		result.Error = fmt.Sprintf("listing tracks needing repair: %v", err)
		s.mu.Unlock()
		s.logger.Error("repair run failed", "error", err)
		return
	}

	s.mu.Lock()
	result.TotalTracks = len(tracks)
	s.mu.Unlock()

	s.logger.Info("repair run started", "run_id", result.ID, "tracks", len(tracks))

	for _, track := range tracks {
		if err := s.limiter.Wait(ctx); err != nil {
			s.mu.Lock()
			result.Status = "failed"
			result.Error = "repair canceled"
			s.mu.Unlock()
			return
		}

		if err := s.repairTrack(ctx, track, result); err != nil {
			s.mu.Lock()
			result.Errors++
			s.mu.Unlock()
			s.logger.Warn("error repairing track",
				"track_id", track.ID, "error", err)
		}
	}
}

// repairTrack resolves one track's best storage key and applies the
// tiered write policy: high-confidence matches are written as fixed,
// medium ones as fixed with a note flagging them for review, and
// everything below the medium threshold is left untouched.
func (s *Service) repairTrack(ctx context.Context, track *catalog.Track, result *RunResult) error {
	bucket := track.Bucket
	if bucket == "" {
		bucket = s.bucket
	}

	var best resolver.Result
	for _, candidate := range track.Candidates() {
		res, err := s.resolver.Resolve(ctx, bucket, candidate, resolver.KindAudio)
		if err != nil {
			return fmt.Errorf("resolving %q: %w", candidate, err)
		}
		if res.Score > best.Score {
			best = res
		}
		if res.Score == 1.0 {
			break
		}
	}

	switch s.thresholds.Tier(best.Score) {
	case resolver.TierHigh:
		if err := s.catalog.UpdateStorageKey(ctx, track.ID, best.Key, catalog.NoteFixed); err != nil {
			return fmt.Errorf("writing repaired key: %w", err)
		}
		s.mu.Lock()
		result.Fixed++
		s.mu.Unlock()
		s.publishRepaired(track.ID, best, catalog.NoteFixed)
	case resolver.TierMedium:
		if err := s.catalog.UpdateStorageKey(ctx, track.ID, best.Key, catalog.NoteFixedMediumConf); err != nil {
			return fmt.Errorf("writing repaired key: %w", err)
		}
		s.mu.Lock()
		result.FixedMedium++
		s.mu.Unlock()
		s.publishRepaired(track.ID, best, catalog.NoteFixedMediumConf)
	default:
		s.mu.Lock()
		result.Skipped++
		s.mu.Unlock()
		s.logger.Debug("no confident match for track",
			"track_id", track.ID, "best_score", best.Score, "best_key", best.Key)
	}
	return nil
}

func (s *Service) publishRepaired(trackID string, res resolver.Result, note string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(event.Event{
		Type: event.TrackRepaired,
		Data: map[string]any{
			"track_id": trackID,
			"key":      res.Key,
			"score":    res.Score,
			"note":     note,
		},
	})
}
