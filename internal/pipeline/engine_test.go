package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusion-core/engine/internal/models"
)

// delayProcessor sleeps a random-ish but deterministic jitter per frame so
// workers finish out of submission order, exercising the reorder buffer.
type delayProcessor struct {
	delays []time.Duration
}

func (p *delayProcessor) Process(frame *models.FrameData, faces []models.Face) error {
	d := p.delays[int(frame.SequenceID)%len(p.delays)]
	time.Sleep(d)
	return nil
}

type failEveryNth struct {
	n     int
	count int
	mu    sync.Mutex
}

func (p *failEveryNth) Process(frame *models.FrameData, faces []models.Face) error {
	p.mu.Lock()
	p.count++
	hit := p.count%p.n == 0
	p.mu.Unlock()
	if hit {
		return errors.New("synthetic stage failure")
	}
	return nil
}

func TestEngineEmitsStrictlyAscendingSequenceIDsUnderJitter(t *testing.T) {
	delays := []time.Duration{0, 3 * time.Millisecond, 1 * time.Millisecond, 5 * time.Millisecond, 0}
	stage := Stage{Name: "jitter", Processor: &delayProcessor{delays: delays}}
	eng := NewEngine(Config{TaskID: "t1", MaxQueueSize: 8, WorkerThreadCount: 6}, []Stage{stage})
	eng.Start(0)
	defer eng.Stop()

	const total = 40
	ctx := context.Background()
	go func() {
		for i := int64(0); i < total; i++ {
			require.NoError(t, eng.PushFrame(ctx, &models.FrameData{SequenceID: i}))
		}
		require.NoError(t, eng.PushFrame(ctx, &models.FrameData{SequenceID: total, IsEndOfStream: true}))
	}()

	var got []int64
	for {
		f, ok, err := eng.PopFrame(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, f.SequenceID)
		if f.IsEndOfStream {
			break
		}
	}

	require.Len(t, got, total+1)
	for i, seq := range got {
		assert.Equal(t, int64(i), seq, "frame %d out of order", i)
	}
}

func TestEngineFailedFrameStillAdvancesAndEmits(t *testing.T) {
	stage := Stage{Name: "flaky", Processor: &failEveryNth{n: 3}}
	eng := NewEngine(Config{TaskID: "t2", MaxQueueSize: 4, WorkerThreadCount: 3}, []Stage{stage})
	eng.Start(0)
	defer eng.Stop()

	const total = 10
	ctx := context.Background()
	go func() {
		for i := int64(0); i < total; i++ {
			_ = eng.PushFrame(ctx, &models.FrameData{SequenceID: i})
		}
		_ = eng.PushFrame(ctx, &models.FrameData{SequenceID: total, IsEndOfStream: true})
	}()

	var gotSeqs []int64
	failedCount := 0
	for {
		f, ok, err := eng.PopFrame(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		gotSeqs = append(gotSeqs, f.SequenceID)
		if f.Failed {
			failedCount++
		}
		if f.IsEndOfStream {
			break
		}
	}

	require.Len(t, gotSeqs, total+1)
	for i, seq := range gotSeqs {
		assert.Equal(t, int64(i), seq)
	}
	assert.Greater(t, failedCount, 0)
}

func TestEngineStopUnblocksPendingPush(t *testing.T) {
	eng := NewEngine(Config{TaskID: "t3", MaxQueueSize: 1, WorkerThreadCount: 1}, []Stage{
		{Name: "noop", Processor: &delayProcessor{delays: []time.Duration{50 * time.Millisecond}}},
	})
	eng.Start(0)

	ctx := context.Background()
	require.NoError(t, eng.PushFrame(ctx, &models.FrameData{SequenceID: 0}))
	require.NoError(t, eng.PushFrame(ctx, &models.FrameData{SequenceID: 1}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.PushFrame(ctx, &models.FrameData{SequenceID: 2})
	}()

	time.Sleep(5 * time.Millisecond)
	eng.Stop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("PushFrame did not unblock after Stop")
	}
}

func TestEngineStopIsIdempotent(t *testing.T) {
	eng := NewEngine(Config{TaskID: "t4", MaxQueueSize: 1, WorkerThreadCount: 1}, []Stage{
		{Name: "noop", Processor: &failEveryNth{n: 1000}},
	})
	eng.Start(0)
	eng.Stop()
	assert.NotPanics(t, eng.Stop)
}

func TestValidateRejectsNilProcessor(t *testing.T) {
	err := Validate([]Stage{{Name: "bad"}})
	assert.Error(t, err)
}

func TestValidateAcceptsWiredStages(t *testing.T) {
	err := Validate([]Stage{{Name: "ok", Processor: &failEveryNth{n: 2}}})
	assert.NoError(t, err)
}

func TestNewEngineAppliesFloorDefaults(t *testing.T) {
	eng := NewEngine(Config{}, nil)
	assert.Equal(t, 1, eng.cfg.MaxQueueSize)
	assert.Equal(t, 1, eng.cfg.WorkerThreadCount)
	assert.Equal(t, 1, eng.cfg.MaxConcurrentGPUTasks)
}
