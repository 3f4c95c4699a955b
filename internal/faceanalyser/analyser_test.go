package faceanalyser

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-core/engine/internal/models"
)

func TestAnalyseWithNoDetectorReturnsNoFaces(t *testing.T) {
	a := NewAnalyser(NewStore(), nil, nil, nil, nil, Config{})
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))

	faces, err := a.Analyse("run-1", frame, models.FieldDetection)
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestAnalyseSecondCallHitsCacheForSameFingerprint(t *testing.T) {
	cache := NewStore()
	a := NewAnalyser(cache, nil, nil, nil, nil, Config{})
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))

	// Seed the cache directly since no detector is wired in this test.
	fp := ComputeFingerprint(frame)
	seeded := []models.Face{{
		Box:      models.BBox{X1: 0, Y1: 0, X2: 1, Y2: 1},
		Analysed: models.FieldDetection,
	}}
	cache.Store("run-1", fp, seeded)

	faces, err := a.Analyse("run-1", frame, models.FieldDetection)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, seeded[0].Box, faces[0].Box)
}

func TestNormalizeBoxRestoresOrdering(t *testing.T) {
	b := normalizeBox(models.BBox{X1: 10, Y1: 10, X2: 2, Y2: 2})
	assert.Equal(t, models.BBox{X1: 2, Y1: 2, X2: 10, Y2: 10}, b)
}

// countingDetector returns perCall[n] on its nth invocation (and no
// candidates once exhausted), recording how many times it was invoked.
type countingDetector struct {
	calls   int
	perCall [][]candidate
}

func (d *countingDetector) Detect(img image.Image, threshold float32) ([]candidate, error) {
	idx := d.calls
	d.calls++
	if idx < len(d.perCall) {
		return d.perCall[idx], nil
	}
	return nil, nil
}

func TestDetectStopsAtFirstWinningRotation(t *testing.T) {
	det := &countingDetector{perCall: [][]candidate{
		nil, // 0 degrees: miss
		{{box: models.BBox{X1: 1, Y1: 1, X2: 2, Y2: 2}, score: 0.9}}, // 90 degrees: hit
		{{box: models.BBox{X1: 3, Y1: 3, X2: 4, Y2: 4}, score: 0.9}}, // 180 degrees: would also hit
	}}
	a := NewAnalyser(NewStore(), det, nil, nil, nil, Config{})
	frame := image.NewRGBA(image.Rect(0, 0, 8, 8))

	faces, err := a.detect(frame)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, 2, det.calls, "sweep must stop after the first angle with a detection")
}

func TestAnalyseCacheUpgradeSkipsReDetection(t *testing.T) {
	det := &countingDetector{perCall: [][]candidate{
		{{box: models.BBox{X1: 0, Y1: 0, X2: 1, Y2: 1}, score: 0.9}},
	}}
	a := NewAnalyser(NewStore(), det, nil, nil, nil, Config{})
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))

	first, err := a.Analyse("run-1", frame, models.FieldDetection)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, det.calls)

	second, err := a.Analyse("run-1", frame, models.FieldDetection|models.FieldLandmark)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.True(t, second[0].Analysed.Has(models.FieldLandmark))
	assert.Equal(t, 1, det.calls, "a partial cache hit must not re-run detection")
}
