package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/latticelab/pyramid-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the runtime image without shipping the .sql file alongside it.
//
//go:embed schema.sql
var schemaSQL string

// Store persists solver runs (as restorable snapshots) and found solutions.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("Successfully connected to PostgreSQL for solver persistence")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *Store) InitSchema() error {
	if _, err := s.pool.Exec(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Solver persistence schema initialized")
	return nil
}

// SaveRun upserts the run row together with its latest snapshot, so a
// paused or finished search can be resumed from storage.
func (s *Store) SaveRun(ctx context.Context, runID, state, reason string, snap models.Snapshot) error {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %v", err)
	}
	sql := `
		INSERT INTO solver_runs
			(run_id, container_id, state, reason, snapshot, nodes, pruned, solutions, elapsed_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (run_id) DO UPDATE SET
			state      = EXCLUDED.state,
			reason     = EXCLUDED.reason,
			snapshot   = EXCLUDED.snapshot,
			nodes      = EXCLUDED.nodes,
			pruned     = EXCLUDED.pruned,
			solutions  = EXCLUDED.solutions,
			elapsed_ms = EXCLUDED.elapsed_ms,
			updated_at = NOW();
	`
	_, err = s.pool.Exec(ctx, sql, runID, snap.ContainerID, state, reason, snapJSON,
		snap.Nodes, snap.Pruned, snap.Solutions, snap.ElapsedMs)
	return err
}

// LoadSnapshot fetches the stored snapshot for a run.
func (s *Store) LoadSnapshot(ctx context.Context, runID string) (models.Snapshot, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM solver_runs WHERE run_id = $1`, runID).Scan(&raw)
	if err != nil {
		return models.Snapshot{}, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to decode snapshot: %v", err)
	}
	return snap, nil
}

// SaveSolution persists one emitted solution. Duplicate signatures within a
// run are ignored (the engine already dedups; this guards restarts).
func (s *Store) SaveSolution(ctx context.Context, runID string, sol models.SolutionEvent) error {
	placements, err := json.Marshal(sol.Placements)
	if err != nil {
		return fmt.Errorf("failed to encode placements: %v", err)
	}
	sql := `
		INSERT INTO solver_solutions (run_id, signature, placements)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, signature) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, sql, runID, sol.Signature, placements)
	return err
}

// SolutionRow is one stored solution for the listing API.
type SolutionRow struct {
	RunID      string             `json:"runId"`
	Signature  string             `json:"signature"`
	Placements []models.Placement `json:"placements"`
	FoundAt    string             `json:"foundAt"`
}

// ListSolutions pages through a run's stored solutions, newest first.
func (s *Store) ListSolutions(ctx context.Context, runID string, page, limit int) ([]SolutionRow, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var totalCount int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM solver_solutions WHERE run_id = $1`, runID).Scan(&totalCount)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, signature, placements, found_at::text
		FROM solver_solutions
		WHERE run_id = $1
		ORDER BY found_at DESC
		LIMIT $2 OFFSET $3
	`, runID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	solutions := make([]SolutionRow, 0, limit)
	for rows.Next() {
		var row SolutionRow
		var raw []byte
		if err := rows.Scan(&row.RunID, &row.Signature, &raw, &row.FoundAt); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(raw, &row.Placements); err != nil {
			return nil, 0, err
		}
		solutions = append(solutions, row)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return solutions, totalCount, nil
}
