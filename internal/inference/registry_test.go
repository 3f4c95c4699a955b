package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fusion-core/engine/internal/models"
)

func TestNewRegistryAppendsCPUFallback(t *testing.T) {
	r := NewRegistry([]models.ExecutionProviderConfig{{Name: "cuda"}})
	assert.Equal(t, "cuda", r.providers[0].Name)
	assert.Equal(t, "cpu", r.providers[len(r.providers)-1].Name)
}

func TestNewRegistryDoesNotDuplicateCPU(t *testing.T) {
	r := NewRegistry([]models.ExecutionProviderConfig{{Name: "cpu"}})
	count := 0
	for _, p := range r.providers {
		if p.Name == "cpu" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSessionKeyStringIsStableForEqualKeys(t *testing.T) {
	a := SessionKey{ModelPath: "m.onnx", ProviderList: "cpu", DeviceID: 0}
	b := SessionKey{ModelPath: "m.onnx", ProviderList: "cpu", DeviceID: 0}
	assert.Equal(t, a.String(), b.String())
}

func TestReleaseOnUnknownKeyIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	assert.NotPanics(t, func() {
		r.Release(SessionKey{ModelPath: "missing.onnx"})
	})
}

func TestCleanupExpiredOnEmptyRegistry(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, 0, r.CleanupExpired(0))
}
