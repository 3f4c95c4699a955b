package dto

import "github.com/google/uuid"

// SubmitJobRequest asks the daemon to run a task config already written
// to a path reachable from the queue worker (typically a shared volume).
type SubmitJobRequest struct {
	TaskConfigPath string `json:"task_config_path" binding:"required"`
	TaskID         string `json:"task_id" binding:"required"`
}

type JobResponse struct {
	ID             uuid.UUID `json:"id"`
	TaskConfigPath string    `json:"task_config_path"`
	TaskID         string    `json:"task_id"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	OutputPaths    []string  `json:"output_paths,omitempty"`
	SubmittedAt    string    `json:"submitted_at"`
	StartedAt      string    `json:"started_at,omitempty"`
	FinishedAt     string    `json:"finished_at,omitempty"`
}

type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// WSJobEvent is a WebSocket message reporting a job's lifecycle change.
type WSJobEvent struct {
	Type   string      `json:"type"` // job_running, job_succeeded, job_failed
	JobID  uuid.UUID   `json:"job_id"`
	Status string      `json:"status"`
	Data   JobResponse `json:"data,omitempty"`
}

// AddGalleryFaceRequest registers a reference face by label for later
// gallery searches; the pipeline's "reference" selector does not read the
// gallery.
type AddGalleryFaceRequest struct {
	Label     string `json:"label" binding:"required"`
	ImagePath string `json:"image_path" binding:"required"`
}

type GalleryFaceResponse struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	SourceKey string    `json:"source_key"`
	CreatedAt string    `json:"created_at"`
}

type GallerySearchRequest struct {
	ImagePath string `json:"image_path" binding:"required"`
	Limit     int    `json:"limit"`
}

type GallerySearchResult struct {
	FaceID uuid.UUID `json:"face_id"`
	Label  string    `json:"label"`
	Score  float32   `json:"score"`
}
