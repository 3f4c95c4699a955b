package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fusion-core/engine/internal/api/handlers"
	"github.com/fusion-core/engine/internal/api/ws"
	"github.com/fusion-core/engine/internal/auth"
	"github.com/fusion-core/engine/internal/faceanalyser"
	"github.com/fusion-core/engine/internal/queue"
	"github.com/fusion-core/engine/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
	Analyser *faceanalyser.Analyser
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket (job lifecycle events)
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Jobs
	jobH := handlers.NewJobHandler(cfg.DB, cfg.Producer)
	v1.POST("/jobs", jobH.Submit)
	v1.GET("/jobs", jobH.List)
	v1.GET("/jobs/:id", jobH.Get)

	// Reference face gallery
	galleryH := handlers.NewGalleryHandler(cfg.DB, cfg.Analyser)
	v1.POST("/gallery/faces", galleryH.Add)
	v1.GET("/gallery/faces", galleryH.List)
	v1.DELETE("/gallery/faces/:id", galleryH.Delete)
	v1.POST("/gallery/search", galleryH.Search)

	return r
}
