package repositories

import (
	"context"
	"encoding/json"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/domain/exploration"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// The full state lives in the JSONB document; the scalar columns mirror it
// for listing and for the version check.
const (
	queryInsertExploration = `
		INSERT INTO explorations (
			id, name, version, current_generation, seed_count, candidate_count, archived, document, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	querySelectExploration = `SELECT document FROM explorations WHERE id = $1`

	queryUpdateExploration = `
		UPDATE explorations
		SET name = $1, version = $2, current_generation = $3, seed_count = $4, candidate_count = $5,
		    archived = $6, document = $7, updated_at = $8
		WHERE id = $9 AND version = $10`

	queryExplorationExists = `SELECT EXISTS (SELECT 1 FROM explorations WHERE id = $1)`

	queryCountExplorations = `SELECT COUNT(*) FROM explorations`

	queryListExplorations = `
		SELECT id, name, seed_count, candidate_count, current_generation, version, archived, updated_at
		FROM explorations
		ORDER BY updated_at DESC, id
		LIMIT $1 OFFSET $2`
)

type postgresExplorationRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// NewPostgresExplorationRepo returns the JSONB-backed exploration.Repository.
func NewPostgresExplorationRepo(conn *postgres.Connection, log logging.Logger) exploration.Repository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &postgresExplorationRepo{conn: conn, log: log}
}

func (r *postgresExplorationRepo) executor() queryExecutor {
	return r.conn.DB()
}

func (r *postgresExplorationRepo) Create(ctx context.Context, s *exploration.ExplorationState) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode exploration")
	}
	res, err := r.executor().ExecContext(ctx, queryInsertExploration,
		s.ID, s.Name, s.Version, s.CurrentGeneration, len(s.SeedIDs), len(s.Candidates), s.Archived, doc, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create exploration")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrCodeExplorationAlreadyExists, "exploration %s already exists", s.ID)
	}
	r.log.Debug("exploration created", logging.ExplorationID(s.ID))
	return nil
}

func (r *postgresExplorationRepo) Get(ctx context.Context, id string) (*exploration.ExplorationState, error) {
	var doc []byte
	err := r.executor().QueryRowContext(ctx, querySelectExploration, id).Scan(&doc)
	if noRows(err) {
		return nil, errors.Newf(errors.ErrCodeExplorationNotFound, "exploration %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load exploration")
	}
	var s exploration.ExplorationState
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode exploration")
	}
	if s.Candidates == nil {
		s.Candidates = make(map[string]*exploration.CandidateRecord)
	}
	return &s, nil
}

// Update writes s only if the stored version still equals expectedVersion.
func (r *postgresExplorationRepo) Update(ctx context.Context, s *exploration.ExplorationState, expectedVersion int64) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode exploration")
	}
	res, err := r.executor().ExecContext(ctx, queryUpdateExploration,
		s.Name, s.Version, s.CurrentGeneration, len(s.SeedIDs), len(s.Candidates), s.Archived, doc, s.UpdatedAt,
		s.ID, expectedVersion,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update exploration")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err := r.executor().QueryRowContext(ctx, queryExplorationExists, s.ID).Scan(&exists); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to check exploration")
	}
	if !exists {
		return errors.Newf(errors.ErrCodeExplorationNotFound, "exploration %s not found", s.ID)
	}
	r.log.Warn("stale exploration update rejected",
		logging.ExplorationID(s.ID), logging.Int64("expected_version", expectedVersion))
	return errors.Newf(errors.ErrCodeStaleGenerationConflict,
		"exploration %s was modified concurrently (expected version %d)", s.ID, expectedVersion)
}

func (r *postgresExplorationRepo) List(ctx context.Context, limit, offset int) ([]exploration.Summary, int64, error) {
	var total int64
	if err := r.executor().QueryRowContext(ctx, queryCountExplorations).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count explorations")
	}

	rows, err := r.executor().QueryContext(ctx, queryListExplorations, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list explorations")
	}
	defer rows.Close()

	out := make([]exploration.Summary, 0, limit)
	for rows.Next() {
		var s exploration.Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.SeedCount, &s.CandidateCount, &s.CurrentGeneration,
			&s.Version, &s.Archived, &s.UpdatedAt); err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan exploration summary")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate explorations")
	}
	return out, total, nil
}
