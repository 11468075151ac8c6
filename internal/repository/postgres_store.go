package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/karimadel/giu-portal-monitor/internal/models"
)

type postgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresStore keeps every snapshot as a row in the snapshots table; the
// newest row is the baseline, older rows remain as history.
func NewPostgresStore(db *sql.DB, logger zerolog.Logger) SnapshotStore {
	return &postgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *postgresStore) Load(ctx context.Context) (*models.Snapshot, error) {
	query := `
		SELECT data
		FROM snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT 1
	`

	var data []byte
	err := s.db.QueryRowContext(ctx, query).Scan(&data)
	if err == sql.ErrNoRows {
		s.logger.Debug().Msg("No baseline row, treating as first run")
		return nil, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load baseline, treating as absent")
		return nil, nil
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("Baseline row is malformed, treating as absent")
		return nil, nil
	}

	return &snapshot, nil
}

func (s *postgresStore) Save(ctx context.Context, run models.RunInfo, snapshot *models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshots (run_id, taken_at, data)
		VALUES ($1, $2, $3)
	`

	if _, err := s.db.ExecContext(ctx, query, run.ID, run.CheckedAt, data); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	s.logger.Info().Str("run_id", run.ID).Msg("Snapshot saved")

	return nil
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}
