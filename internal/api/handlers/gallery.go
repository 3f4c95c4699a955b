package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fusion-core/engine/internal/faceanalyser"
	"github.com/fusion-core/engine/internal/runner"
	"github.com/fusion-core/engine/internal/storage"
	"github.com/fusion-core/engine/pkg/dto"
)

// GalleryHandler manages the persistent reference-face gallery backing
// the "reference" face selector mode.
type GalleryHandler struct {
	db       *storage.PostgresStore
	analyser *faceanalyser.Analyser
}

func NewGalleryHandler(db *storage.PostgresStore, analyser *faceanalyser.Analyser) *GalleryHandler {
	return &GalleryHandler{db: db, analyser: analyser}
}

func (h *GalleryHandler) Add(c *gin.Context) {
	var req dto.AddGalleryFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	face, err := runner.LoadSourceFace(h.analyser, req.ImagePath)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	stored, err := h.db.AddGalleryFace(c.Request.Context(), req.Label, face.Embedding.Vector, req.ImagePath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.GalleryFaceResponse{
		ID: stored.ID, Label: stored.Label, SourceKey: stored.SourceKey,
		CreatedAt: stored.CreatedAt.Format(time.RFC3339),
	})
}

func (h *GalleryHandler) List(c *gin.Context) {
	faces, err := h.db.ListGalleryFaces(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.GalleryFaceResponse, len(faces))
	for i, f := range faces {
		resp[i] = dto.GalleryFaceResponse{ID: f.ID, Label: f.Label, SourceKey: f.SourceKey, CreatedAt: f.CreatedAt.Format(time.RFC3339)}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GalleryHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid face id"})
		return
	}
	if err := h.db.DeleteGalleryFace(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GalleryHandler) Search(c *gin.Context) {
	var req dto.GallerySearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	face, err := runner.LoadSourceFace(h.analyser, req.ImagePath)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	matches, err := h.db.SearchGalleryFaces(c.Request.Context(), face.Embedding.Vector, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.GallerySearchResult, len(matches))
	for i, m := range matches {
		resp[i] = dto.GallerySearchResult{FaceID: m.FaceID, Label: m.Label, Score: m.Score}
	}
	c.JSON(http.StatusOK, resp)
}
