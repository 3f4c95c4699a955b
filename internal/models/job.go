package models

import (
	"time"

	"github.com/google/uuid"
)

// Job is one task submission tracked by the daemon: a TaskConfig handed
// off to a queue worker, with its resulting status and outputs.
type Job struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TaskConfigPath string     `json:"task_config_path" db:"task_config_path"`
	TaskID         string     `json:"task_id" db:"task_id"`
	Status         JobStatus  `json:"status" db:"status"`
	Error          string     `json:"error,omitempty" db:"error"`
	OutputPaths    []string   `json:"output_paths,omitempty" db:"output_paths"`
	SubmittedAt    time.Time  `json:"submitted_at" db:"submitted_at"`
	StartedAt      *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// JobMessage is the payload published to the queue for a queued job.
type JobMessage struct {
	JobID          uuid.UUID `json:"job_id"`
	TaskConfigPath string    `json:"task_config_path"`
}

// GalleryFace is one named reference embedding in the persistent face
// gallery, used to resolve a "reference" face selector without needing
// the reference image available locally at run time.
type GalleryFace struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Label     string    `json:"label" db:"label"`
	Embedding []float32 `json:"-" db:"embedding"`
	SourceKey string    `json:"source_key" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// GalleryMatch is one ranked result from a gallery similarity search.
type GalleryMatch struct {
	FaceID uuid.UUID `json:"face_id"`
	Label  string    `json:"label"`
	Score  float32   `json:"score"`
}
