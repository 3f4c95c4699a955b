// Package pipeline implements the bounded, order-preserving frame
// scheduler of spec §4.1: a worker pool runs each frame through a stage
// chain, a reorder buffer collects out-of-order completions, and a single
// dispatcher goroutine emits frames to the output queue in strictly
// ascending sequence order. Grounded on the teacher's
// internal/queue/consumer.go fetch-loop-plus-worker-goroutines pattern and
// on hbomb79-Thea's WorkerPool/dual-shutdown-ordering processor.
package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/fusion-core/engine/internal/faceanalyser"
	"github.com/fusion-core/engine/internal/fusionerr"
	"github.com/fusion-core/engine/internal/models"
	"github.com/fusion-core/engine/internal/observability"
	"github.com/fusion-core/engine/internal/processors"
)

// ErrCancelled is returned by PushFrame once Stop has been called.
// PopFrame does not return it: after Stop it reports ok=false.
var ErrCancelled = fusionerr.New(fusionerr.CodeCancelled, "pipeline cancelled")

// Stage pairs a processor with the face-selector configuration its step
// was configured with, and an optional analysis bitmask the engine must
// satisfy via the face analyser before invoking the processor.
type Stage struct {
	Name        string
	Processor   processors.Processor
	Analyser    *faceanalyser.Analyser
	Want        models.AnalysisField
	Selector    models.FaceSelector
	IsGPUBound  bool
}

// Config carries the engine's sizing knobs, per spec §4.1's recognised
// options.
type Config struct {
	TaskID                string
	MaxQueueSize          int
	WorkerThreadCount     int
	MaxConcurrentGPUTasks int
}

// Engine runs Stages over pushed frames, preserving strict sequence order
// on output regardless of worker scheduling.
type Engine struct {
	cfg    Config
	stages []Stage

	input  chan *models.FrameData
	output chan *models.FrameData

	gpuSem chan struct{}

	completions chan *models.FrameData

	stopOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu          sync.Mutex
	started     bool
	expectedSeq int64
	seqSet      bool
}

// NewEngine constructs an Engine for the given stage chain. Call Start
// before pushing frames.
func NewEngine(cfg Config, stages []Stage) *Engine {
	if cfg.MaxQueueSize < 1 {
		cfg.MaxQueueSize = 1
	}
	if cfg.WorkerThreadCount < 1 {
		cfg.WorkerThreadCount = 1
	}
	if cfg.MaxConcurrentGPUTasks < 1 {
		cfg.MaxConcurrentGPUTasks = 1
	}
	return &Engine{
		cfg:         cfg,
		stages:      stages,
		input:       make(chan *models.FrameData, cfg.MaxQueueSize),
		output:      make(chan *models.FrameData, cfg.MaxQueueSize),
		gpuSem:      make(chan struct{}, cfg.MaxConcurrentGPUTasks),
		completions: make(chan *models.FrameData, cfg.WorkerThreadCount*2),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the worker pool and the dispatcher goroutine. startSeq is
// the first sequence id the dispatcher expects to emit, allowing a resumed
// video task to begin past frame 0. Start is idempotent.
func (e *Engine) Start(startSeq int64) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.expectedSeq = startSeq
	e.seqSet = true
	e.mu.Unlock()

	for i := 0; i < e.cfg.WorkerThreadCount; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	e.wg.Add(1)
	go e.dispatch()
}

// Stop signals cancellation, waits for in-flight frames to finish their
// current stage, and releases worker and dispatcher goroutines. Stop is
// idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.doneCh)
	})
	e.wg.Wait()
}

// PushFrame enqueues frame for processing, blocking if the input queue is
// at its high-water mark. Returns ErrCancelled if the engine has been
// stopped.
func (e *Engine) PushFrame(ctx context.Context, frame *models.FrameData) error {
	select {
	case <-e.doneCh:
		return ErrCancelled
	default:
	}

	observability.InputQueueDepth.WithLabelValues(e.cfg.TaskID).Set(float64(len(e.input)))
	select {
	case e.input <- frame:
		observability.FramesPushed.WithLabelValues(e.cfg.TaskID).Inc()
		return nil
	case <-e.doneCh:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PopFrame returns the next frame in ascending sequence order, or ok=false
// once the stream has ended or the engine has been stopped, and the output
// queue is drained.
func (e *Engine) PopFrame(ctx context.Context) (*models.FrameData, bool, error) {
	select {
	case f, ok := <-e.output:
		return f, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case frame, ok := <-e.input:
			if !ok {
				return
			}
			e.runStages(frame)
			select {
			case e.completions <- frame:
			case <-e.doneCh:
				return
			}
			if frame.IsEndOfStream {
				return
			}
		case <-e.doneCh:
			return
		}
	}
}

// runStages executes every stage on frame in order. A stage error marks
// the frame failed and halts the chain for that frame (passthrough
// semantics, per spec §4.6's "emitted unchanged") but does not stop the
// worker from picking up the next frame.
func (e *Engine) runStages(frame *models.FrameData) {
	if frame.IsEndOfStream {
		return
	}

	for _, stage := range e.stages {
		select {
		case <-e.doneCh:
			return
		default:
		}
		if stage.IsGPUBound {
			e.gpuSem <- struct{}{}
			observability.GPUSemaphoreInUse.Inc()
		}

		err := e.runOneStage(stage, frame)

		if stage.IsGPUBound {
			<-e.gpuSem
			observability.GPUSemaphoreInUse.Dec()
		}

		if err != nil {
			frame.Failed = true
			frame.FailErr = err
			observability.FramesFailed.WithLabelValues(e.cfg.TaskID).Inc()
			return
		}
	}
}

func (e *Engine) runOneStage(stage Stage, frame *models.FrameData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fusionerr.Newf(fusionerr.CodeInferenceFailed, "stage %s panicked: %v", stage.Name, r)
		}
	}()

	started := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues(stage.Name).Observe(time.Since(started).Seconds())
	}()

	faces, faceErr := e.facesFor(stage, frame)
	if faceErr != nil {
		return faceErr
	}
	return stage.Processor.Process(frame, faces)
}

// facesFor resolves the faces a stage's processor should act on, running
// the face analyser (if the stage requested one) and applying its
// FaceSelector.
func (e *Engine) facesFor(stage Stage, frame *models.FrameData) ([]models.Face, error) {
	if stage.Analyser == nil {
		return nil, nil
	}
	faces, err := stage.Analyser.Analyse(e.cfg.TaskID, frame.Image, stage.Want)
	if err != nil {
		return nil, err
	}

	var refEmbedding []float32
	if stage.Selector.Mode == models.SelectReference && frame.SourceEmbedding != nil {
		refEmbedding = frame.SourceEmbedding.NormedVector
	}
	return faceanalyser.Select(faces, stage.Selector, refEmbedding), nil
}

// dispatch is the single goroutine responsible for strict output ordering:
// it buffers out-of-order completions in a reorder map and only emits once
// the next expected sequence id has arrived.
func (e *Engine) dispatch() {
	defer e.wg.Done()
	defer close(e.output)

	pending := make(map[int64]*models.FrameData)

	for {
		select {
		case frame, ok := <-e.completions:
			if !ok {
				return
			}
			pending[frame.SequenceID] = frame
			observability.ReorderBufferDepth.WithLabelValues(e.cfg.TaskID).Set(float64(len(pending)))

			e.mu.Lock()
			next := e.expectedSeq
			e.mu.Unlock()

			for {
				f, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				select {
				case e.output <- f:
					observability.FramesEmitted.WithLabelValues(e.cfg.TaskID).Inc()
				case <-e.doneCh:
					return
				}
				eos := f.IsEndOfStream
				next++
				e.mu.Lock()
				e.expectedSeq = next
				e.mu.Unlock()
				observability.ReorderBufferDepth.WithLabelValues(e.cfg.TaskID).Set(float64(len(pending)))
				if eos {
					return
				}
			}
		case <-e.doneCh:
			return
		}
	}
}

// TaskIDLabel formats an int64 sequence id for use as a Prometheus label
// value in call sites that need to log it alongside the task id.
func TaskIDLabel(seq int64) string {
	return strconv.FormatInt(seq, 10)
}

var errNilStage = errors.New("pipeline: stage processor is nil")

// Validate reports an error if any configured stage is missing its
// processor, catching a wiring mistake before Start spins up workers that
// would panic on the first frame.
func Validate(stages []Stage) error {
	for _, s := range stages {
		if s.Processor == nil {
			return errNilStage
		}
	}
	return nil
}
