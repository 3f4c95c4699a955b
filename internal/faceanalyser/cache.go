package faceanalyser

import (
	"sync"

	"github.com/fusion-core/engine/internal/models"
)

// cacheKey shards the store by run and fingerprint (SPEC_FULL §4's
// original_source-recovered detail: identical frames across different
// pipeline runs must not collide).
type cacheKey struct {
	runID       string
	fingerprint Fingerprint
}

type cacheEntry struct {
	faces []models.Face
}

// Store is the face analyser's content-addressed cache. It is protected
// by a read-write lock: readers share, writers are exclusive, per spec
// §5's "Shared resources".
type Store struct {
	mu      sync.RWMutex
	entries map[cacheKey]*cacheEntry
}

// NewStore constructs an empty cache.
func NewStore() *Store {
	return &Store{entries: make(map[cacheKey]*cacheEntry)}
}

// Lookup returns the cached faces for (runID, fp) if every face already
// carries the requested analysis fields, per spec §4.3 step 2's "cache
// covers the requested bitmask fully" rule. When some but not all fields
// are missing, ok is false so the caller re-runs the missing stages and
// calls Upgrade.
func (s *Store) Lookup(runID string, fp Fingerprint, want models.AnalysisField) ([]models.Face, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[cacheKey{runID, fp}]
	if !ok {
		return nil, false
	}
	for _, f := range e.faces {
		if !f.Analysed.Has(want) {
			return e.faces, false
		}
	}
	return e.faces, true
}

// Store records the analyser's result for (runID, fp), replacing any
// prior entry.
func (s *Store) Store(runID string, fp Fingerprint, faces []models.Face) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[cacheKey{runID, fp}] = &cacheEntry{faces: faces}
}

// Upgrade merges newly-computed richer faces into the cached entry at the
// same sequence position, preserving any attribute the new computation
// didn't touch (spec §4.3 step 6 and §3's cache-upgrade invariant).
func (s *Store) Upgrade(runID string, fp Fingerprint, faces []models.Face) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cacheKey{runID, fp}
	e, ok := s.entries[key]
	if !ok {
		s.entries[key] = &cacheEntry{faces: faces}
		return
	}

	for i, nf := range faces {
		if i >= len(e.faces) {
			e.faces = append(e.faces, nf)
			continue
		}
		e.faces[i] = mergeFace(e.faces[i], nf)
	}
}

// mergeFace combines two analyses of the same identity, keeping whichever
// side populated each field.
func mergeFace(old, fresh models.Face) models.Face {
	out := old
	out.Analysed |= fresh.Analysed
	if fresh.Analysed.Has(models.FieldDetection) {
		out.Box = fresh.Box
		out.DetectorConfidence = fresh.DetectorConfidence
	}
	if fresh.Analysed.Has(models.FieldLandmark) {
		out.Landmarks5 = fresh.Landmarks5
		out.Landmarks68 = fresh.Landmarks68
		out.HasLandmarks68 = fresh.HasLandmarks68
		out.LandmarkConfidence = fresh.LandmarkConfidence
	}
	if fresh.Analysed.Has(models.FieldEmbedding) {
		out.Embedding = fresh.Embedding
		out.NormedEmbedding = fresh.NormedEmbedding
	}
	if fresh.Analysed.Has(models.FieldGenderAge) {
		out.Gender = fresh.Gender
		out.GenderConfidence = fresh.GenderConfidence
		out.Age = fresh.Age
		out.Race = fresh.Race
	}
	return out
}

// Evict drops every entry for a run, called when a task completes to
// bound memory growth across long-lived processes.
func (s *Store) Evict(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.runID == runID {
			delete(s.entries, k)
		}
	}
}
