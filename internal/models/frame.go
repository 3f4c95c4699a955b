package models

import "image"

// FrameData is the pipeline's carrier type: one unit of work flowing
// through the engine's queues and worker stages.
//
// Ownership: exclusively owned by the queue slot or the worker currently
// processing it. Image and Attrs may hold shared-immutable handles (e.g.
// a source embedding) that are safe to copy by reference.
type FrameData struct {
	SequenceID    int64
	PTSMillis     int64 // presentation timestamp; 0 if not applicable
	HasPTS        bool
	Image         image.Image
	// OriginalImage is the frame's unmodified pre-pipeline content, set
	// once by the producer and never reassigned by a stage. Stages that
	// need the pre-swap appearance of a face (e.g. the expression
	// restorer's driving motion) read this instead of Image, which each
	// face stage replaces with a processed copy.
	OriginalImage image.Image
	Attrs         map[string]any
	IsEndOfStream bool
	Failed        bool
	FailErr       error

	// SourceEmbedding is a shared-immutable reference to the swap
	// source's face embedding, set once by the runner's producer and
	// read by every frame's FaceSwapper stage.
	SourceEmbedding *SharedEmbedding
}

// SharedEmbedding wraps an embedding computed once per task and shared
// by reference across every frame, avoiding per-frame recomputation.
type SharedEmbedding struct {
	Vector       []float32
	NormedVector []float32
}

// CloneShallow returns a shallow copy suitable for passing a frame to the next
// stage without sharing the Attrs map with the original.
func (f FrameData) CloneShallow() FrameData {
	cp := f
	if f.Attrs != nil {
		cp.Attrs = make(map[string]any, len(f.Attrs))
		for k, v := range f.Attrs {
			cp.Attrs[k] = v
		}
	}
	return cp
}
