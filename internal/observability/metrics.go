package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion",
		Name:      "frames_pushed_total",
		Help:      "Total number of frames pushed into the pipeline engine",
	}, []string{"task_id"})

	FramesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion",
		Name:      "frames_emitted_total",
		Help:      "Total number of frames emitted by the pipeline dispatcher",
	}, []string{"task_id"})

	FramesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion",
		Name:      "frames_failed_total",
		Help:      "Total number of frames whose stage chain raised an error",
	}, []string{"task_id"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fusion",
		Name:      "stage_duration_seconds",
		Help:      "Duration of a single pipeline stage invocation",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	InputQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fusion",
		Name:      "input_queue_depth",
		Help:      "Number of frames buffered in a pipeline's input queue",
	}, []string{"task_id"})

	ReorderBufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fusion",
		Name:      "reorder_buffer_depth",
		Help:      "Number of out-of-order frames held by the dispatcher's reorder buffer",
	}, []string{"task_id"})

	GPUSemaphoreInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fusion",
		Name:      "gpu_semaphore_in_use",
		Help:      "Number of GPU-bound stage executions currently holding the semaphore",
	})

	InferenceSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fusion",
		Name:      "inference_sessions_active",
		Help:      "Number of distinct model sessions currently held by the registry",
	})

	FaceCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion",
		Name:      "face_cache_hits_total",
		Help:      "Face analyser cache hits by requested analysis coverage",
	}, []string{"outcome"})

	CheckpointsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion",
		Name:      "checkpoints_written_total",
		Help:      "Total number of checkpoint records persisted",
	}, []string{"task_id"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fusion",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fusion",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections streaming job progress",
	})
)
