package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fusion-core/engine/internal/models"
)

// PostgresStore persists job bookkeeping and the reference-face gallery.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg models.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

// CreateJob inserts a queued job for the given task config path.
func (s *PostgresStore) CreateJob(ctx context.Context, taskConfigPath, taskID string) (*models.Job, error) {
	j := &models.Job{
		ID:             uuid.New(),
		TaskConfigPath: taskConfigPath,
		TaskID:         taskID,
		Status:         models.JobQueued,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, task_config_path, task_id, status) VALUES ($1, $2, $3, $4) RETURNING submitted_at`,
		j.ID, j.TaskConfigPath, j.TaskID, j.Status,
	).Scan(&j.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j := &models.Job{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, task_config_path, task_id, status, error, output_paths, submitted_at, started_at, finished_at
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.TaskConfigPath, &j.TaskID, &j.Status, &j.Error, &j.OutputPaths,
		&j.SubmittedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, task_config_path, task_id, status, error, output_paths, submitted_at, started_at, finished_at
		FROM jobs`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY submitted_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.TaskConfigPath, &j.TaskID, &j.Status, &j.Error, &j.OutputPaths,
			&j.SubmittedAt, &j.StartedAt, &j.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// UpdateJobRunning marks a job as picked up by a worker.
func (s *PostgresStore) UpdateJobRunning(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, started_at = now() WHERE id = $2`, models.JobRunning, id)
	return err
}

// UpdateJobFinished records a job's terminal status, error, and outputs.
func (s *PostgresStore) UpdateJobFinished(ctx context.Context, id uuid.UUID, status models.JobStatus, errMsg string, outputPaths []string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, output_paths = $3, finished_at = now() WHERE id = $4`,
		status, errMsg, outputPaths, id)
	return err
}

// --- Reference face gallery ---

func (s *PostgresStore) AddGalleryFace(ctx context.Context, label string, embedding []float32, sourceKey string) (*models.GalleryFace, error) {
	f := &models.GalleryFace{
		ID:        uuid.New(),
		Label:     label,
		Embedding: embedding,
		SourceKey: sourceKey,
	}
	vec := pgvector.NewVector(embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO gallery_faces (id, label, embedding, source_key) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		f.ID, f.Label, vec, f.SourceKey,
	).Scan(&f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add gallery face: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) DeleteGalleryFace(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gallery_faces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete gallery face: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("gallery face not found")
	}
	return nil
}

func (s *PostgresStore) ListGalleryFaces(ctx context.Context) ([]models.GalleryFace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, label, source_key, created_at FROM gallery_faces ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list gallery faces: %w", err)
	}
	defer rows.Close()

	var faces []models.GalleryFace
	for rows.Next() {
		var f models.GalleryFace
		if err := rows.Scan(&f.ID, &f.Label, &f.SourceKey, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gallery face: %w", err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// SearchGalleryFaces finds the closest matching reference faces for an
// embedding. It backs the gallery search endpoint; the pipeline's
// "reference" face selector mode does not query the gallery.
func (s *PostgresStore) SearchGalleryFaces(ctx context.Context, embedding []float32, limit int) ([]models.GalleryMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT id, label, 1 - (embedding <=> $1) AS score
		 FROM gallery_faces ORDER BY embedding <=> $1 LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("search gallery faces: %w", err)
	}
	defer rows.Close()

	var matches []models.GalleryMatch
	for rows.Next() {
		var m models.GalleryMatch
		if err := rows.Scan(&m.FaceID, &m.Label, &m.Score); err != nil {
			return nil, fmt.Errorf("scan gallery match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}
