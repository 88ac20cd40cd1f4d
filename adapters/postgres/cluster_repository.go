// Package postgres provides a ClusterStore backed by PostgreSQL. Cluster
// and result documents are stored as jsonb alongside the columns the
// finders filter on.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"epiwatch/domain/core"
	"epiwatch/domain/epi"
	"epiwatch/ports"
)

// Schema creates the tables this repository needs.
const Schema = `
CREATE TABLE IF NOT EXISTS clusters (
	id           TEXT PRIMARY KEY,
	disease_type TEXT NOT NULL,
	status       TEXT NOT NULL,
	start_date   DATE NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS detection_results (
	algorithm_id    TEXT PRIMARY KEY,
	detection_level TEXT NOT NULL,
	recorded_at     TIMESTAMPTZ NOT NULL,
	payload         JSONB NOT NULL
);`

// ClusterRepository implements ports.ClusterStore for PostgreSQL.
type ClusterRepository struct {
	db *sqlx.DB
}

// NewClusterRepository creates a new PostgreSQL cluster repository
func NewClusterRepository(db *sqlx.DB) *ClusterRepository {
	return &ClusterRepository{db: db}
}

// Connect opens a database handle and verifies the connection.
func Connect(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the required tables when they do not exist.
func (r *ClusterRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

// Create upserts a cluster document.
func (r *ClusterRepository) Create(ctx context.Context, cluster *epi.Cluster) error {
	now := time.Now()
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = now
	}
	if cluster.UpdatedAt.IsZero() {
		cluster.UpdatedAt = now
	}

	payload, err := json.Marshal(cluster)
	if err != nil {
		return fmt.Errorf("failed to marshal cluster: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO clusters (id, disease_type, status, start_date, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			disease_type = EXCLUDED.disease_type,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		cluster.ID.String(), string(cluster.DiseaseType), string(cluster.Status),
		cluster.StartDate.Time(), payload, cluster.CreatedAt, cluster.UpdatedAt)
	return err
}

// Get returns a cluster by id.
func (r *ClusterRepository) Get(ctx context.Context, id core.ClusterID) (*epi.Cluster, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM clusters WHERE id = $1`, id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("cluster", id.String())
	}
	if err != nil {
		return nil, err
	}
	return unmarshalCluster(payload)
}

// GetAll returns every stored cluster.
func (r *ClusterRepository) GetAll(ctx context.Context) ([]*epi.Cluster, error) {
	return r.query(ctx, `SELECT payload FROM clusters ORDER BY created_at`)
}

// Update replaces an existing cluster; a missing id is an error.
func (r *ClusterRepository) Update(ctx context.Context, cluster *epi.Cluster) error {
	cluster.UpdatedAt = time.Now()

	payload, err := json.Marshal(cluster)
	if err != nil {
		return fmt.Errorf("failed to marshal cluster: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE clusters SET
			disease_type = $2, status = $3, start_date = $4,
			payload = $5, updated_at = $6
		WHERE id = $1`,
		cluster.ID.String(), string(cluster.DiseaseType), string(cluster.Status),
		cluster.StartDate.Time(), payload, cluster.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError("cluster", cluster.ID.String())
	}
	return nil
}

// Delete removes a cluster, reporting whether it existed.
func (r *ClusterRepository) Delete(ctx context.Context, id core.ClusterID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clusters WHERE id = $1`, id.String())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FindByDiseaseType returns clusters for one disease.
func (r *ClusterRepository) FindByDiseaseType(ctx context.Context, diseaseType epi.DiseaseType) ([]*epi.Cluster, error) {
	return r.query(ctx,
		`SELECT payload FROM clusters WHERE disease_type = $1 ORDER BY created_at`,
		string(diseaseType))
}

// FindActive returns clusters that are not closed.
func (r *ClusterRepository) FindActive(ctx context.Context) ([]*epi.Cluster, error) {
	return r.query(ctx,
		`SELECT payload FROM clusters WHERE status <> $1 ORDER BY created_at`,
		string(epi.StatusClosed))
}

// FindByDateRange returns clusters whose start date falls within
// [start, end] inclusive.
func (r *ClusterRepository) FindByDateRange(ctx context.Context, start, end core.Date) ([]*epi.Cluster, error) {
	return r.query(ctx,
		`SELECT payload FROM clusters WHERE start_date >= $1 AND start_date <= $2 ORDER BY start_date`,
		start.Time(), end.Time())
}

// FindByCaseID returns clusters containing the case, using jsonb
// containment on the cases array.
func (r *ClusterRepository) FindByCaseID(ctx context.Context, caseID core.CaseID) ([]*epi.Cluster, error) {
	return r.query(ctx,
		`SELECT payload FROM clusters WHERE payload->'cases' @> to_jsonb($1::text) ORDER BY created_at`,
		caseID.String())
}

func (r *ClusterRepository) query(ctx context.Context, sqlText string, args ...interface{}) ([]*epi.Cluster, error) {
	rows, err := r.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*epi.Cluster
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		cluster, err := unmarshalCluster(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, cluster)
	}
	return out, rows.Err()
}

func unmarshalCluster(payload []byte) (*epi.Cluster, error) {
	var cluster epi.Cluster
	if err := json.Unmarshal(payload, &cluster); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cluster: %w", err)
	}
	return &cluster, nil
}

// StoreDetectionResult stores the latest result for an algorithm,
// overwriting any previous one.
func (r *ClusterRepository) StoreDetectionResult(ctx context.Context, algorithmID string, result ports.DetectionResult) error {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal detection result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO detection_results (algorithm_id, detection_level, recorded_at, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (algorithm_id) DO UPDATE SET
			detection_level = EXCLUDED.detection_level,
			recorded_at = EXCLUDED.recorded_at,
			payload = EXCLUDED.payload`,
		algorithmID, string(result.DetectionLevel), result.Timestamp, payload)
	return err
}

// GetDetectionResult returns the latest stored result for an algorithm.
func (r *ClusterRepository) GetDetectionResult(ctx context.Context, algorithmID string) (*ports.DetectionResult, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM detection_results WHERE algorithm_id = $1`, algorithmID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("detection result", algorithmID)
	}
	if err != nil {
		return nil, err
	}

	var result ports.DetectionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detection result: %w", err)
	}
	return &result, nil
}

// GetAllDetectionResults returns the latest result per algorithm.
func (r *ClusterRepository) GetAllDetectionResults(ctx context.Context) (map[string]ports.DetectionResult, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT algorithm_id, payload FROM detection_results`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]ports.DetectionResult)
	for rows.Next() {
		var algorithmID string
		var payload []byte
		if err := rows.Scan(&algorithmID, &payload); err != nil {
			return nil, err
		}
		var result ports.DetectionResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal detection result: %w", err)
		}
		out[algorithmID] = result
	}
	return out, rows.Err()
}

var _ ports.ClusterStore = (*ClusterRepository)(nil)
