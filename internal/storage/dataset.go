// Package storage persists datasets in PostgreSQL with pgvector embeddings.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/embedscope/internal/dataset"
	"github.com/todmy/embedscope/pkg/models"
)

var ErrDatasetNotFound = errors.New("dataset not found")

// Schema creates the tables used by the repository
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS datasets (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_points (
	dataset_id UUID NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	point_id TEXT NOT NULL,
	text TEXT NOT NULL,
	hue JSONB,
	embedding vector NOT NULL,
	PRIMARY KEY (dataset_id, position),
	UNIQUE (dataset_id, point_id)
);
`

// Dataset represents a stored dataset header
type Dataset struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Dimension int       `json:"dimension"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

// DatasetRepository defines the interface for dataset storage operations
type DatasetRepository interface {
	Create(ctx context.Context, name string, data *dataset.Set) (*Dataset, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error)
	Load(ctx context.Context, id uuid.UUID) (*dataset.Set, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostgresDatasetRepository implements DatasetRepository using PostgreSQL with pgvector
type PostgresDatasetRepository struct {
	db *sql.DB
}

// NewPostgresDatasetRepository creates a new PostgresDatasetRepository
func NewPostgresDatasetRepository(db *sql.DB) *PostgresDatasetRepository {
	return &PostgresDatasetRepository{db: db}
}

// Migrate creates the schema if it does not exist
func (r *PostgresDatasetRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

// Create inserts a dataset and all of its points in a single transaction
func (r *PostgresDatasetRepository) Create(ctx context.Context, name string, data *dataset.Set) (*Dataset, error) {
	ds := &Dataset{
		ID:        uuid.New(),
		Name:      name,
		Dimension: data.Dimension(),
		Points:    data.Len(),
		CreatedAt: time.Now(),
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (id, name, dimension, created_at)
		VALUES ($1, $2, $3, $4)
	`, ds.ID, ds.Name, ds.Dimension, ds.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dataset_points (dataset_id, position, point_id, text, hue, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for i, p := range data.Points() {
		hue, err := json.Marshal(p.Hue)
		if err != nil {
			return nil, fmt.Errorf("failed to encode hue of %q: %w", p.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			ds.ID,
			i,
			p.ID,
			p.Text,
			hue,
			pgvector.NewVector(toFloat32(p.Embedding)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert point %q: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ds, nil
}

// GetByID retrieves a dataset header by its ID
func (r *PostgresDatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	query := `
		SELECT d.id, d.name, d.dimension, d.created_at, COUNT(p.position)
		FROM datasets d
		LEFT JOIN dataset_points p ON p.dataset_id = d.id
		WHERE d.id = $1
		GROUP BY d.id
	`

	ds := &Dataset{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ds.ID,
		&ds.Name,
		&ds.Dimension,
		&ds.CreatedAt,
		&ds.Points,
	)
	if err == sql.ErrNoRows {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}
	return ds, nil
}

// Load retrieves the points of a dataset in their stored order
func (r *PostgresDatasetRepository) Load(ctx context.Context, id uuid.UUID) (*dataset.Set, error) {
	query := `
		SELECT point_id, text, hue, embedding
		FROM dataset_points
		WHERE dataset_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.DataPoint
	for rows.Next() {
		var (
			p   models.DataPoint
			hue []byte
			emb pgvector.Vector
		)
		if err := rows.Scan(&p.ID, &p.Text, &hue, &emb); err != nil {
			return nil, err
		}
		if len(hue) > 0 {
			if err := json.Unmarshal(hue, &p.Hue); err != nil {
				return nil, fmt.Errorf("failed to decode hue of %q: %w", p.ID, err)
			}
		}
		p.Embedding = toFloat64(emb.Slice())
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(points) == 0 {
		return nil, ErrDatasetNotFound
	}
	return dataset.New(points)
}

// Delete removes a dataset and its points
func (r *PostgresDatasetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDatasetNotFound
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
