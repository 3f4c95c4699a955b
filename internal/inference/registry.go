// Package inference implements the process-wide inference session
// registry (spec §4.5): pooling, provider fallback, and reference-counted
// release, generalised from the teacher's per-model ONNX session wrapping
// in internal/vision/{detect,embed,attributes}.go into a shared pool.
package inference

import (
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fusion-core/engine/internal/fusionerr"
	"github.com/fusion-core/engine/internal/models"
)

// SessionKey canonicalises (model path, options) per spec §6's
// "Inference session key" contract.
type SessionKey struct {
	ModelPath         string
	ProviderList      string // joined provider names, ordered
	DeviceID          int
	WorkspaceLimitMB  int
	FP16              bool
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s|%s|%d|%d|%v", k.ModelPath, k.ProviderList, k.DeviceID, k.WorkspaceLimitMB, k.FP16)
}

// IOSpec describes one model's input/output tensor shapes, used to
// construct the underlying ORT session the first time a key is requested.
type IOSpec struct {
	InputNames   []string
	InputShapes  []ort.Shape
	OutputNames  []string
	OutputShapes []ort.Shape
}

// Handle is a reference-counted wrapper around a live ORT session, shared
// by every caller requesting the same SessionKey.
type Handle struct {
	key     SessionKey
	session *ort.AdvancedSession
	inputs  []*ort.Tensor[float32]
	outputs []*ort.Tensor[float32]

	mu         sync.Mutex // serialises Run(); ORT sessions are not safe for concurrent Run
	refs       int
	lastUnused time.Time
}

// Run executes the session against inputData, copied into the first
// input tensor, returning a copy of the first output tensor's data.
// Multi-input/output models should use RunAll instead.
func (h *Handle) Run(inputData []float32) ([]float32, error) {
	outs, err := h.RunAll([][]float32{inputData})
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

// RunAll executes the session against all input tensors and returns
// copies of all output tensors' data, in declared order.
func (h *Handle) RunAll(inputData [][]float32) ([][]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(inputData) != len(h.inputs) {
		return nil, fusionerr.Newf(fusionerr.CodeTensorShapeMismatch,
			"session %s expects %d inputs, got %d", h.key.ModelPath, len(h.inputs), len(inputData))
	}
	for i, data := range inputData {
		copy(h.inputs[i].GetData(), data)
	}

	if err := h.session.Run(); err != nil {
		return nil, fusionerr.Wrap(fusionerr.CodeInferenceFailed, "session run", err).WithPath(h.key.ModelPath)
	}

	out := make([][]float32, len(h.outputs))
	for i, t := range h.outputs {
		data := t.GetData()
		if len(data) == 0 {
			return nil, fusionerr.New(fusionerr.CodeEmptyOutput, "session produced empty output").WithPath(h.key.ModelPath)
		}
		cp := make([]float32, len(data))
		copy(cp, data)
		out[i] = cp
	}
	return out, nil
}

// destroy releases the underlying ORT resources. Callers must hold the
// registry lock and confirm refs == 0 before calling.
func (h *Handle) destroy() {
	if h.session != nil {
		h.session.Destroy()
	}
	for _, t := range h.inputs {
		t.Destroy()
	}
	for _, t := range h.outputs {
		t.Destroy()
	}
}

// Registry is the process-wide singleton session pool. Sessions are keyed
// by SessionKey; two requests for the same key share a Handle.
type Registry struct {
	mu       sync.Mutex
	handles  map[string]*Handle
	providers []models.ExecutionProviderConfig
}

// NewRegistry constructs a registry with the app's configured provider
// fallback order. CPU is appended as the last resort when the list has no
// cpu entry; a configured cpu entry keeps its listed position.
func NewRegistry(providers []models.ExecutionProviderConfig) *Registry {
	hasCPU := false
	for _, p := range providers {
		if p.Name == "cpu" {
			hasCPU = true
		}
	}
	if !hasCPU {
		providers = append(providers, models.ExecutionProviderConfig{Name: "cpu"})
	}
	return &Registry{
		handles:   make(map[string]*Handle),
		providers: providers,
	}
}

// Acquire returns a shared Handle for key, constructing the underlying
// session on first request and cycling through the registry's provider
// fallback chain on initialisation failure. The caller must call
// Release(key) exactly once when done with the handle.
func (r *Registry) Acquire(key SessionKey, spec IOSpec) (*Handle, error) {
	k := key.String()

	r.mu.Lock()
	if h, ok := r.handles[k]; ok {
		h.refs++
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	h, err := r.construct(key, spec)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have raced us to construction; keep whichever
	// won and discard the loser's session.
	if existing, ok := r.handles[k]; ok {
		existing.refs++
		h.destroy()
		return existing, nil
	}
	h.refs = 1
	r.handles[k] = h
	return h, nil
}

func (r *Registry) construct(key SessionKey, spec IOSpec) (*Handle, error) {
	var lastErr error
	for _, provider := range r.providers {
		opts, err := newSessionOptions(provider)
		if err != nil {
			lastErr = err
			continue
		}

		inputs := make([]*ort.Tensor[float32], len(spec.InputShapes))
		inputVals := make([]ort.Value, len(spec.InputShapes))
		ok := true
		for i, shape := range spec.InputShapes {
			t, terr := ort.NewEmptyTensor[float32](shape)
			if terr != nil {
				lastErr = fusionerr.Wrap(fusionerr.CodeModelLoadFailed, "create input tensor", terr)
				ok = false
				break
			}
			inputs[i] = t
			inputVals[i] = t
		}
		if !ok {
			destroyTensors(inputs)
			opts.Destroy()
			continue
		}

		outputs := make([]*ort.Tensor[float32], len(spec.OutputShapes))
		outputVals := make([]ort.Value, len(spec.OutputShapes))
		for i, shape := range spec.OutputShapes {
			t, terr := ort.NewEmptyTensor[float32](shape)
			if terr != nil {
				lastErr = fusionerr.Wrap(fusionerr.CodeModelLoadFailed, "create output tensor", terr)
				ok = false
				break
			}
			outputs[i] = t
			outputVals[i] = t
		}
		if !ok {
			destroyTensors(inputs)
			destroyTensors(outputs)
			opts.Destroy()
			continue
		}

		session, serr := ort.NewAdvancedSession(key.ModelPath, spec.InputNames, spec.OutputNames, inputVals, outputVals, opts)
		opts.Destroy()
		if serr != nil {
			destroyTensors(inputs)
			destroyTensors(outputs)
			lastErr = fusionerr.Wrap(fusionerr.CodeProviderInitFailed,
				fmt.Sprintf("provider %s init failed, trying next", provider.Name), serr)
			continue
		}

		return &Handle{
			key:        key,
			session:    session,
			inputs:     inputs,
			outputs:    outputs,
			refs:       0,
			lastUnused: time.Time{},
		}, nil
	}

	if lastErr == nil {
		lastErr = fusionerr.New(fusionerr.CodeModelNotFound, "no providers configured")
	}
	return nil, fusionerr.Wrap(fusionerr.CodeProviderInitFailed, "all providers exhausted", lastErr).WithPath(key.ModelPath)
}

func destroyTensors(ts []*ort.Tensor[float32]) {
	for _, t := range ts {
		if t != nil {
			t.Destroy()
		}
	}
}

// newSessionOptions builds provider-specific ORT session options. CUDA
// and TensorRT provider wiring is delegated to onnxruntime_go's append
// helpers; unsupported builds simply fail to append and fall back via the
// caller's provider loop.
func newSessionOptions(provider models.ExecutionProviderConfig) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	switch provider.Name {
	case "cuda":
		if err := opts.AppendExecutionProviderCUDA(); err != nil {
			opts.Destroy()
			return nil, err
		}
	case "tensorrt":
		if err := opts.AppendExecutionProviderTensorRT(); err != nil {
			opts.Destroy()
			return nil, err
		}
	}
	return opts, nil
}

// Release decrements the reference count for key; when it reaches zero
// the handle becomes eligible for CleanupExpired but is not destroyed
// immediately (sessions are retained for max_idle per spec §4.5).
func (r *Registry) Release(key SessionKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key.String()]
	if !ok {
		return
	}
	h.refs--
	if h.refs <= 0 {
		h.refs = 0
		h.lastUnused = time.Now()
	}
}

// CleanupExpired frees handles with zero outstanding references whose
// last-use timestamp exceeds maxIdle.
func (r *Registry) CleanupExpired(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	freed := 0
	for k, h := range r.handles {
		if h.refs > 0 {
			continue
		}
		if h.lastUnused.IsZero() || time.Since(h.lastUnused) < maxIdle {
			continue
		}
		h.destroy()
		delete(r.handles, k)
		freed++
	}
	return freed
}

// Count returns the number of distinct sessions currently pooled.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// CloseAll tears down every pooled session regardless of outstanding
// references. Called once at process exit per spec §9's "Global state"
// note.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, h := range r.handles {
		h.destroy()
		delete(r.handles, k)
	}
}
