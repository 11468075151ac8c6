package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/models"
)

type fileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore keeps the baseline as one indented JSON document at path.
func NewFileStore(path string, logger zerolog.Logger) SnapshotStore {
	return &fileStore{
		path:   path,
		logger: logger,
	}
}

func (s *fileStore) Load(ctx context.Context) (*models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", s.path).Msg("No baseline file, treating as first run")
			return nil, nil
		}
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read baseline, treating as absent")
		return nil, nil
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Baseline file is malformed, treating as absent")
		return nil, nil
	}

	return &snapshot, nil
}

func (s *fileStore) Save(ctx context.Context, run models.RunInfo, snapshot *models.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write-then-rename so a crash mid-save never leaves a truncated baseline.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace baseline file: %w", err)
	}

	s.logger.Info().Str("path", s.path).Str("run_id", run.ID).Msg("Snapshot saved")

	return nil
}

func (s *fileStore) Close() error {
	return nil
}
