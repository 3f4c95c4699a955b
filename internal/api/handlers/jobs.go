package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/queue"
	"github.com/fusion-core/engine/internal/storage"
	"github.com/fusion-core/engine/pkg/dto"
)

// JobHandler exposes submission and status lookup for tasks run by queue
// workers. It never runs a task itself.
type JobHandler struct {
	db       *storage.PostgresStore
	producer *queue.Producer
}

func NewJobHandler(db *storage.PostgresStore, producer *queue.Producer) *JobHandler {
	return &JobHandler{db: db, producer: producer}
}

func (h *JobHandler) Submit(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.db.CreateJob(c.Request.Context(), req.TaskConfigPath, req.TaskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.producer.PublishJob(ctx, models.JobMessage{JobID: job.ID, TaskConfigPath: job.TaskConfigPath}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, toJobResponse(job))
}

func (h *JobHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.db.GetJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

func (h *JobHandler) List(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	jobs, err := h.db.ListJobs(c.Request.Context(), status, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.JobListResponse{Jobs: make([]dto.JobResponse, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toJobResponse(&jobs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func toJobResponse(j *models.Job) dto.JobResponse {
	resp := dto.JobResponse{
		ID:             j.ID,
		TaskConfigPath: j.TaskConfigPath,
		TaskID:         j.TaskID,
		Status:         string(j.Status),
		Error:          j.Error,
		OutputPaths:    j.OutputPaths,
		SubmittedAt:    j.SubmittedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.FinishedAt != nil {
		resp.FinishedAt = j.FinishedAt.Format(time.RFC3339)
	}
	return resp
}
