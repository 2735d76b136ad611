package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabbir-lite-0/repolens/core/gemini"
	"github.com/sabbir-lite-0/repolens/utils"
)

func testLogger() *utils.Logger {
	return utils.NewLogger(false, "")
}

// stubInvoker routes by prompt text; per-dimension behavior is keyed on the
// task text the dispatcher passes through.
type stubInvoker struct {
	mu      sync.Mutex
	calls   int
	handler func(prompt, credential string) (string, error)
}

func (s *stubInvoker) Generate(ctx context.Context, prompt, credential string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.handler(prompt, credential)
}

func (s *stubInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func makeTasks(poolSize int) []PromptTask {
	tasks := make([]PromptTask, len(CoreDimensions))
	for i, dim := range CoreDimensions {
		tasks[i] = PromptTask{
			Index:           i,
			Dimension:       dim,
			Text:            dim,
			PrimaryKeyIndex: i % poolSize,
		}
	}
	return tasks
}

func validRecordJSON(score int) string {
	return fmt.Sprintf(`{"score": %d, "strengths": ["s"], "weaknesses": ["w"], "hidden_risks": ["r"], "remediation_steps": ["fix"]}`, score)
}

func fastOptions() DispatcherOptions {
	return DispatcherOptions{
		OverloadBackoff:  time.Millisecond,
		TransportBackoff: time.Millisecond,
	}
}

// Fault tolerance: four dimensions fail permanently, six succeed; the run
// returns exactly the six survivors.
func TestDispatcher_FaultTolerance(t *testing.T) {
	failing := map[string]bool{
		DimSecurity:     true,
		DimPerformance:  true,
		DimTesting:      true,
		DimDependencies: true,
	}

	invoker := &stubInvoker{handler: func(prompt, credential string) (string, error) {
		if failing[prompt] {
			return "", &gemini.APIError{Kind: gemini.ErrInvalidCredential, Message: "bad key"}
		}
		return validRecordJSON(70), nil
	}}

	pool := gemini.NewKeyPool([]string{"k1", "k2", "k3"}, 0)
	dispatcher := NewDispatcher(invoker, pool, testLogger(), fastOptions())

	partial, err := dispatcher.Run(context.Background(), makeTasks(pool.Size()), nil)
	require.NoError(t, err)
	require.Len(t, partial, 6)

	for dim := range failing {
		_, present := partial[dim]
		assert.False(t, present, "failed dimension %s must be absent", dim)
	}
	for _, dim := range CoreDimensions {
		if !failing[dim] {
			record, present := partial[dim]
			require.True(t, present, "dimension %s missing", dim)
			assert.Equal(t, 70, record.Score)
		}
	}
}

// Total failure: six or more dimensions failing regardless of fallback
// yields InsufficientResults naming the success count.
func TestDispatcher_TotalFailure(t *testing.T) {
	succeeding := map[string]bool{
		DimCodeQuality: true,
		DimStructure:   true,
		DimCICD:        true,
		DimScalability: true,
	}

	invoker := &stubInvoker{handler: func(prompt, credential string) (string, error) {
		if succeeding[prompt] {
			return validRecordJSON(60), nil
		}
		return "", &gemini.APIError{Kind: gemini.ErrInvalidCredential, Message: "bad key"}
	}}

	pool := gemini.NewKeyPool([]string{"k1", "k2", "k3"}, 0)
	dispatcher := NewDispatcher(invoker, pool, testLogger(), fastOptions())

	_, err := dispatcher.Run(context.Background(), makeTasks(pool.Size()), nil)
	require.Error(t, err)

	var insufficientErr *InsufficientResultsError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 4, insufficientErr.Successes)
	assert.Equal(t, 5, insufficientErr.Required)
}

// Unparseable output downgrades a completed task to failed.
func TestDispatcher_ParseFailureDowngradesTask(t *testing.T) {
	invoker := &stubInvoker{handler: func(prompt, credential string) (string, error) {
		if prompt == DimSecurity {
			return "complete nonsense with no json whatsoever", nil
		}
		return validRecordJSON(55), nil
	}}

	pool := gemini.NewKeyPool([]string{"k1"}, 0)
	dispatcher := NewDispatcher(invoker, pool, testLogger(), fastOptions())

	partial, err := dispatcher.Run(context.Background(), makeTasks(pool.Size()), nil)
	require.NoError(t, err)
	assert.Len(t, partial, 9)
	_, present := partial[DimSecurity]
	assert.False(t, present)
}

// Credential failures rotate to the next healthy key and recover.
func TestDispatcher_KeyFallbackRecovers(t *testing.T) {
	invoker := &stubInvoker{handler: func(prompt, credential string) (string, error) {
		if credential == "dead-key" {
			return "", &gemini.APIError{Kind: gemini.ErrQuotaExceeded, Message: "quota"}
		}
		return validRecordJSON(65), nil
	}}

	pool := gemini.NewKeyPool([]string{"dead-key", "live-key"}, 0)
	dispatcher := NewDispatcher(invoker, pool, testLogger(), fastOptions())

	partial, err := dispatcher.Run(context.Background(), makeTasks(pool.Size()), nil)
	require.NoError(t, err)
	assert.Len(t, partial, len(CoreDimensions))
}

// The fallback chain is bounded: a permanently failing task stops after
// min(5, max(3, poolSize/2)) attempts, not after walking every key.
func TestDispatcher_AttemptBound(t *testing.T) {
	invoker := &stubInvoker{handler: func(prompt, credential string) (string, error) {
		return "", &gemini.APIError{Kind: gemini.ErrInvalidCredential, Message: "bad key"}
	}}

	pool := gemini.NewKeyPool([]string{"k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8", "k9", "k10", "k11", "k12"}, 0)
	dispatcher := NewDispatcher(invoker, pool, testLogger(), fastOptions())

	task := []PromptTask{{Index: 0, Dimension: DimSecurity, Text: DimSecurity, PrimaryKeyIndex: 0}}
	_, err := dispatcher.Run(context.Background(), task, nil)
	require.Error(t, err)

	// poolSize/2 = 6, capped at 5.
	assert.Equal(t, 5, invoker.callCount())
}

// The batch deadline cuts off stalled tasks; the run still returns instead
// of blocking on them.
func TestDispatcher_BatchTimeout(t *testing.T) {
	invoker := &stubInvoker{handler: func(prompt, credential string) (string, error) {
		return "", &gemini.APIError{Kind: gemini.ErrServiceOverloaded, Message: "overloaded"}
	}}

	pool := gemini.NewKeyPool([]string{"k1"}, 0)
	dispatcher := NewDispatcher(invoker, pool, testLogger(), DispatcherOptions{
		BatchTimeout:    50 * time.Millisecond,
		OverloadBackoff: 10 * time.Second,
	})

	started := time.Now()
	_, err := dispatcher.Run(context.Background(), makeTasks(pool.Size()), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)

	var insufficientErr *InsufficientResultsError
	assert.ErrorAs(t, err, &insufficientErr)
}

// Concurrent batches on one dispatcher keep their progress callbacks
// separate: each run sees exactly its own lifecycle events, none of the
// other run's.
func TestDispatcher_ConcurrentRunsIsolateProgress(t *testing.T) {
	invoker := &stubInvoker{handler: func(prompt, credential string) (string, error) {
		return validRecordJSON(60), nil
	}}

	pool := gemini.NewKeyPool([]string{"k1", "k2"}, 0)
	dispatcher := NewDispatcher(invoker, pool, testLogger(), fastOptions())

	var counts [2]int32
	var wg sync.WaitGroup
	for run := 0; run < 2; run++ {
		run := run
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dispatcher.Run(context.Background(), makeTasks(pool.Size()), func(dimension, event string) {
				atomic.AddInt32(&counts[run], 1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// One started plus one terminal event per task.
	perRun := int32(2 * len(CoreDimensions))
	assert.Equal(t, perRun, atomic.LoadInt32(&counts[0]))
	assert.Equal(t, perRun, atomic.LoadInt32(&counts[1]))
}

// Progress events fire once per task, terminal event matching the outcome.
func TestDispatcher_ProgressEvents(t *testing.T) {
	invoker := &stubInvoker{handler: func(prompt, credential string) (string, error) {
		if prompt == DimCICD {
			return "", &gemini.APIError{Kind: gemini.ErrUnknown, Message: "boom"}
		}
		return validRecordJSON(50), nil
	}}

	pool := gemini.NewKeyPool([]string{"k1"}, 0)
	dispatcher := NewDispatcher(invoker, pool, testLogger(), fastOptions())

	var mu sync.Mutex
	events := map[string][]string{}

	_, err := dispatcher.Run(context.Background(), makeTasks(pool.Size()), func(dimension, event string) {
		mu.Lock()
		events[dimension] = append(events[dimension], event)
		mu.Unlock()
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventDimensionStarted, EventDimensionFailed}, events[DimCICD])
	assert.Equal(t, []string{EventDimensionStarted, EventDimensionCompleted}, events[DimCodeQuality])
}
