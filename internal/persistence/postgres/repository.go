// Package postgres provides pgx-backed access to the materialized input
// snapshots and to the persisted estimation runs.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/mau/internal/domain"
)

// Repository reads the snapshot tables owned by the extraction layer and
// owns the estimation_runs and mau_estimates output tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadSnapshot reads all four input views inside one repeatable-read
// transaction so the run sees a consistent snapshot.
func (r *Repository) LoadSnapshot(ctx context.Context, windowStart, windowEnd time.Time) (*domain.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	snap := &domain.Snapshot{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Users:       make(map[string]domain.UserRecord),
		Titles:      make(map[string]domain.TitleRecord),
		InstallBase: make(map[domain.InstallBaseKey]int64),
	}

	const activityQuery = `SELECT user_id, title_id, occurred_at
        FROM activity_snapshot WHERE occurred_at >= $1 AND occurred_at < $2
        ORDER BY occurred_at, user_id, title_id`

	rows, err := tx.Query(ctx, activityQuery, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var rec domain.ActivityRecord
		if err := rows.Scan(&rec.UserID, &rec.TitleID, &rec.OccurredAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Activity = append(snap.Activity, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const userQuery = `SELECT user_id, country_code, created_at FROM user_snapshot`
	rows, err = tx.Query(ctx, userQuery)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var rec domain.UserRecord
		if err := rows.Scan(&rec.UserID, &rec.CountryCode, &rec.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Users[rec.UserID] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const titleQuery = `SELECT title_id, name, genre, release_date FROM title_snapshot`
	rows, err = tx.Query(ctx, titleQuery)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var rec domain.TitleRecord
		if err := rows.Scan(&rec.TitleID, &rec.Name, &rec.Genre, &rec.ReleaseDate); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Titles[rec.TitleID] = rec
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const baseQuery = `SELECT country_code, year, install_base FROM install_base`
	rows, err = tx.Query(ctx, baseQuery)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var rec domain.InstallBaseRecord
		if err := rows.Scan(&rec.CountryCode, &rec.Year, &rec.InstallBase); err != nil {
			rows.Close()
			return nil, err
		}
		snap.InstallBase[domain.InstallBaseKey{CountryCode: rec.CountryCode, Year: rec.Year}] = rec.InstallBase
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snap, tx.Commit(ctx)
}

type violationRow struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// SaveRun persists the manifest and every estimate row in one transaction. A
// rejected run is stored with its violations and no partial estimate rows are
// ever visible to readers.
func (r *Repository) SaveRun(ctx context.Context, result *domain.RunResult) error {
	manifest := result.Manifest

	violations := make([]violationRow, 0, len(manifest.Violations))
	for _, v := range manifest.Violations {
		violations = append(violations, violationRow{Kind: string(v.Kind), Detail: v.Detail})
	}
	body, err := json.Marshal(violations)
	if err != nil {
		return fmt.Errorf("encode violations: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertRun = `INSERT INTO estimation_runs (run_id, window_start, window_end, status, violations, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6)`

	if _, err := tx.Exec(ctx, insertRun,
		manifest.RunID,
		manifest.WindowStart,
		manifest.WindowEnd,
		string(manifest.Status),
		body,
		manifest.CompletedAt,
	); err != nil {
		return err
	}

	const insertEstimate = `INSERT INTO mau_estimates (run_id, country_code, title_id, sample_distinct_users, scaling_factor, mau_estimate, mau_rounded, margin_of_error, margin_of_error_users)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	for _, est := range result.Estimates {
		if _, err := tx.Exec(ctx, insertEstimate,
			manifest.RunID,
			est.CountryCode,
			est.TitleID,
			est.SampleDistinctUsers,
			est.ScalingFactor,
			est.FinalMAUEstimate,
			est.FinalMAURounded,
			est.MarginOfError,
			est.MarginOfErrorUsers,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// TrailingEstimates returns published estimates for one (country, title)
// pair, newest first, for the outlier comparison.
func (r *Repository) TrailingEstimates(ctx context.Context, country, title string, limit int) ([]float64, error) {
	const query = `SELECT e.mau_estimate
        FROM mau_estimates e
        JOIN estimation_runs r ON r.run_id = e.run_id
        WHERE e.country_code = $1 AND e.title_id = $2
          AND r.status IN ('published', 'published_with_warnings')
        ORDER BY r.completed_at DESC
        LIMIT $3`

	rows, err := r.pool.Query(ctx, query, country, title, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

// LatestRun returns the most recent run manifest.
func (r *Repository) LatestRun(ctx context.Context) (*domain.RunManifest, error) {
	const query = `SELECT run_id, window_start, window_end, status, violations, completed_at
        FROM estimation_runs ORDER BY completed_at DESC LIMIT 1`

	row := r.pool.QueryRow(ctx, query)

	var (
		manifest domain.RunManifest
		status   string
		body     []byte
	)
	if err := row.Scan(&manifest.RunID, &manifest.WindowStart, &manifest.WindowEnd, &status, &body, &manifest.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}
	manifest.Status = domain.RunStatus(status)

	var violations []violationRow
	if err := json.Unmarshal(body, &violations); err != nil {
		return nil, fmt.Errorf("decode violations: %w", err)
	}
	for _, v := range violations {
		manifest.Violations = append(manifest.Violations, domain.Violation{Kind: domain.ViolationKind(v.Kind), Detail: v.Detail})
	}
	return &manifest, nil
}

// ListEstimates returns the estimate rows of one run, optionally filtered by
// country, in stable (country, title) order.
func (r *Repository) ListEstimates(ctx context.Context, runID, country string) ([]domain.MAUEstimate, error) {
	query := `SELECT country_code, title_id, sample_distinct_users, scaling_factor, mau_estimate, mau_rounded, margin_of_error, margin_of_error_users
        FROM mau_estimates WHERE run_id = $1`
	args := []interface{}{runID}

	if country != "" {
		query += ` AND country_code = $2`
		args = append(args, country)
	}
	query += ` ORDER BY country_code, title_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MAUEstimate
	for rows.Next() {
		var est domain.MAUEstimate
		if err := rows.Scan(&est.CountryCode, &est.TitleID, &est.SampleDistinctUsers, &est.ScalingFactor, &est.FinalMAUEstimate, &est.FinalMAURounded, &est.MarginOfError, &est.MarginOfErrorUsers); err != nil {
			return nil, err
		}
		out = append(out, est)
	}
	return out, rows.Err()
}
