package runner

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-core/engine/internal/models"
)

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.White)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func imageRunConfig(dir string, order models.ExecutionOrder, targets ...string) *models.TaskConfig {
	return &models.TaskConfig{
		ConfigVersion: "1.0",
		TaskInfo:      models.TaskInfo{ID: "imgtask"},
		IO: models.IOConfig{
			SourcePaths: []string{"source.jpg"},
			TargetPaths: targets,
			Output:      models.IOOutput{Path: dir, ImageFormat: "png"},
		},
		Resource: models.ResourceConfig{WorkerThreadCount: 2, ExecutionOrder: order},
	}
}

func TestRunImagesSequentialPreservesTargetOrder(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	writeTestPNG(t, a)
	writeTestPNG(t, b)

	cfg := imageRunConfig(dir, models.ExecutionSequential, a, b)
	written, err := RunImages(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Contains(t, written[0], "a")
	assert.Contains(t, written[1], "b")
}

func TestRunImagesBatchReturnsEveryTargetInOrder(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 5)
	for i := range paths {
		paths[i] = filepath.Join(dir, string(rune('a'+i))+".png")
		writeTestPNG(t, paths[i])
	}

	cfg := imageRunConfig(dir, models.ExecutionBatch, paths...)
	written, err := RunImages(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, written, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		assert.Contains(t, written[i], base[:len(base)-len(filepath.Ext(base))])
	}
}
