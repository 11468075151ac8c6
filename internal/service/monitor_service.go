package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/detector"
	"github.com/karimadel/giu-portal-monitor/internal/models"
	"github.com/karimadel/giu-portal-monitor/internal/notifier"
	"github.com/karimadel/giu-portal-monitor/internal/portal"
	"github.com/karimadel/giu-portal-monitor/internal/repository"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("monitoring run already in progress")

// SnapshotAssembler is what the monitor needs from the portal layer.
type SnapshotAssembler interface {
	Assemble(ctx context.Context) (*models.Snapshot, error)
}

type MonitorService interface {
	RunOnce(ctx context.Context) error
	Running() bool
	Status() models.RunStatus
	LastChanges() []models.ChangeEvent
}

type monitorService struct {
	assembler SnapshotAssembler
	detector  *detector.Detector
	store     repository.SnapshotStore
	notifiers []notifier.Notifier
	logger    zerolog.Logger

	mu          sync.RWMutex
	status      models.RunStatus
	lastChanges []models.ChangeEvent
}

func NewMonitorService(
	assembler SnapshotAssembler,
	det *detector.Detector,
	store repository.SnapshotStore,
	notifiers []notifier.Notifier,
	logger zerolog.Logger,
) MonitorService {
	return &monitorService{
		assembler: assembler,
		detector:  det,
		store:     store,
		notifiers: notifiers,
		logger:    logger,
	}
}

// RunOnce performs one complete monitoring cycle. Unexpected failures are
// converted into a single monitoring-error event pushed through the
// notifiers; the discovery failure (no courses at all) is only logged, since
// it usually means bad credentials rather than a portal change.
func (s *monitorService) RunOnce(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}

	run := models.RunInfo{
		ID:        uuid.New().String(),
		CheckedAt: time.Now().UTC(),
	}
	log := s.logger.With().Str("run_id", run.ID).Logger()
	log.Info().Msg("Starting monitoring run")

	changes, err := s.run(ctx, run, log)
	if err != nil {
		log.Error().Err(err).Msg("Monitoring run failed")
		if !errors.Is(err, portal.ErrNoCourses) {
			changes = []models.ChangeEvent{{
				Type:     models.ChangeMonitorError,
				Category: models.CategoryOther,
				Message:  err.Error(),
			}}
			s.notify(ctx, run, changes, log)
		}
	} else {
		log.Info().Int("changes", len(changes)).Msg("Monitoring run completed")
	}

	s.finish(run, changes, err)

	return err
}

func (s *monitorService) run(ctx context.Context, run models.RunInfo, log zerolog.Logger) (changes []models.ChangeEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			changes = nil
			err = fmt.Errorf("unexpected panic: %v", r)
		}
	}()

	current, err := s.assembler.Assemble(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble snapshot: %w", err)
	}

	// The store already degrades read failures to an absent baseline.
	baseline, err := s.store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load baseline, comparing against none")
		baseline = nil
	}

	changes = s.detector.Detect(baseline, current)
	if len(changes) > 0 {
		log.Info().Int("changes", len(changes)).Msg("Changes detected")
		s.notify(ctx, run, changes, log)
	} else {
		log.Info().Msg("No changes detected")
	}

	// A failed save is not a failed run; only the next baseline goes stale.
	if err := s.store.Save(ctx, run, current); err != nil {
		log.Error().Err(err).Msg("Failed to save snapshot")
	}

	return changes, nil
}

func (s *monitorService) notify(ctx context.Context, run models.RunInfo, changes []models.ChangeEvent, log zerolog.Logger) {
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, run, changes); err != nil {
			log.Error().Err(err).Msg("Failed to deliver notification")
		}
	}
}

func (s *monitorService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Running {
		return ErrRunInProgress
	}
	s.status.Running = true

	return nil
}

func (s *monitorService) finish(run models.RunInfo, changes []models.ChangeEvent, err error) {
	counts := make(map[models.ChangeCategory]int)
	for cat, events := range models.GroupByCategory(changes) {
		counts[cat] = len(events)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Running = false
	s.status.LastRunID = run.ID
	s.status.LastRunAt = run.CheckedAt
	s.status.TotalRuns++
	s.status.TotalChanges += len(changes)
	s.status.LastChanges = counts
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}

	s.lastChanges = changes
}

func (s *monitorService) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Running
}

func (s *monitorService) Status() models.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	status.LastChanges = make(map[models.ChangeCategory]int, len(s.status.LastChanges))
	for cat, n := range s.status.LastChanges {
		status.LastChanges[cat] = n
	}

	return status
}

func (s *monitorService) LastChanges() []models.ChangeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := make([]models.ChangeEvent, len(s.lastChanges))
	copy(changes, s.lastChanges)

	return changes
}
