package core

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sabbir-lite-0/repolens/core/gemini"
	"github.com/sabbir-lite-0/repolens/utils"
)

// Invoker executes one prompt against one credential. *gemini.Client
// satisfies it; tests substitute a stub.
type Invoker interface {
	Generate(ctx context.Context, prompt, credential string) (string, error)
}

// Progress event names broadcast while a batch runs.
const (
	EventDimensionStarted   = "dimension_started"
	EventDimensionCompleted = "dimension_completed"
	EventDimensionFailed    = "dimension_failed"
)

// ProgressFunc receives per-dimension lifecycle events. Callbacks must be
// fast; they run on task goroutines. The callback belongs to one Run call
// so concurrent batches never observe each other's events.
type ProgressFunc func(dimension, event string)

// DispatcherOptions carries the tuning knobs. Zero values select the
// defaults; the threshold and chain depth are deliberately configurable
// rather than hard constants.
type DispatcherOptions struct {
	// MinSuccesses is how many core dimensions must parse for the batch to
	// count as a success. Default 5.
	MinSuccesses int

	// MaxKeyAttempts bounds the per-task fallback chain. Zero derives
	// min(5, max(3, poolSize/2)) so no task ever walks the whole pool.
	MaxKeyAttempts int

	// BatchTimeout is the hard wall-clock deadline for the whole batch.
	// Zero derives 90s plus 10s per credential beyond the first, capped at
	// 120s.
	BatchTimeout time.Duration

	// OverloadBackoff is the pause after a ServiceOverloaded failure.
	OverloadBackoff time.Duration

	// TransportBackoff is the pause after a NetworkError or Timeout.
	TransportBackoff time.Duration
}

// Dispatcher fans prompt tasks out concurrently over a shared key pool,
// applies per-task fallback chains, and collects whatever succeeded.
type Dispatcher struct {
	invoker Invoker
	pool    *gemini.KeyPool
	logger  *utils.Logger
	opts    DispatcherOptions
}

func NewDispatcher(invoker Invoker, pool *gemini.KeyPool, logger *utils.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.MinSuccesses <= 0 {
		opts.MinSuccesses = 5
	}
	if opts.OverloadBackoff <= 0 {
		opts.OverloadBackoff = 3 * time.Second
	}
	if opts.TransportBackoff <= 0 {
		opts.TransportBackoff = 1500 * time.Millisecond
	}

	return &Dispatcher{
		invoker: invoker,
		pool:    pool,
		logger:  logger,
		opts:    opts,
	}
}

type taskOutcome struct {
	dimension string
	success   bool
	rawText   string
	err       error
}

// Run launches every task concurrently, waits for the error-tolerant join,
// parses the successful raw texts, and applies the success policy: at least
// MinSuccesses core dimensions parsed, or the batch fails with
// *InsufficientResultsError. The holistic dimension rides along but never
// counts toward the threshold. progress may be nil; it receives this run's
// lifecycle events only.
func (d *Dispatcher) Run(ctx context.Context, tasks []PromptTask, progress ProgressFunc) (PartialResults, error) {
	batchCtx, cancel := context.WithTimeout(ctx, d.batchTimeout())
	defer cancel()

	outcomes := make([]taskOutcome, len(tasks))

	// errgroup is used for the structured join only: task errors are
	// captured in outcomes, never returned, so one task's exhaustion cannot
	// cancel the others.
	g, taskCtx := errgroup.WithContext(batchCtx)
	for i := range tasks {
		i, task := i, tasks[i]
		g.Go(func() error {
			emit(progress, task.Dimension, EventDimensionStarted)
			outcomes[i] = d.runTask(taskCtx, task)
			if outcomes[i].success {
				emit(progress, task.Dimension, EventDimensionCompleted)
			} else {
				emit(progress, task.Dimension, EventDimensionFailed)
			}
			return nil
		})
	}
	g.Wait()

	partial := make(PartialResults)
	coreSuccesses := 0

	for _, outcome := range outcomes {
		if !outcome.success {
			d.logger.Warning("Dimension %s failed: %v", outcome.dimension, outcome.err)
			continue
		}

		record, ok := TryParseModuleRecord(outcome.rawText)
		if !ok {
			// Unrecoverable response text counts as a failed task.
			d.logger.Warning("Dimension %s returned unparseable output", outcome.dimension)
			continue
		}

		partial[outcome.dimension] = record
		if outcome.dimension != DimHolistic {
			coreSuccesses++
		}
	}

	if coreSuccesses < d.opts.MinSuccesses {
		return nil, &InsufficientResultsError{Successes: coreSuccesses, Required: d.opts.MinSuccesses}
	}

	d.logger.Info("Analysis batch finished: %d/%d core dimensions succeeded", coreSuccesses, len(CoreDimensions))
	return partial, nil
}

// runTask walks the per-task fallback chain: primary key first, then the
// next healthy keys in pool order. Credential-class failures rotate
// immediately; transient failures back off in place.
func (d *Dispatcher) runTask(ctx context.Context, task PromptTask) taskOutcome {
	maxAttempts := d.maxKeyAttempts()
	keyIndex := task.PrimaryKeyIndex
	credential := d.pool.KeyAt(keyIndex)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			break
		}

		text, err := d.invoker.Generate(ctx, task.Text, credential)
		if err == nil {
			return taskOutcome{dimension: task.Dimension, success: true, rawText: text}
		}
		lastErr = err

		switch gemini.KindOf(err) {
		case gemini.ErrInvalidCredential, gemini.ErrQuotaExceeded:
			d.pool.MarkFailed(keyIndex)
			keyIndex, credential = d.pool.NextAfter(keyIndex)
			d.logger.Debug("Dimension %s rotating to key %d after %v", task.Dimension, keyIndex, err)
		case gemini.ErrServiceOverloaded:
			if !sleepContext(ctx, d.opts.OverloadBackoff) {
				return taskOutcome{dimension: task.Dimension, err: lastErr}
			}
		default:
			// NetworkError, Timeout, EmptyResponse, Unknown: brief pause,
			// same key.
			if !sleepContext(ctx, d.opts.TransportBackoff) {
				return taskOutcome{dimension: task.Dimension, err: lastErr}
			}
		}
	}

	return taskOutcome{dimension: task.Dimension, err: lastErr}
}

func (d *Dispatcher) maxKeyAttempts() int {
	if d.opts.MaxKeyAttempts > 0 {
		return d.opts.MaxKeyAttempts
	}
	poolSize := d.pool.Size()
	attempts := poolSize / 2
	if attempts < 3 {
		attempts = 3
	}
	if attempts > 5 {
		attempts = 5
	}
	return attempts
}

func (d *Dispatcher) batchTimeout() time.Duration {
	if d.opts.BatchTimeout > 0 {
		return d.opts.BatchTimeout
	}
	timeout := 90*time.Second + time.Duration(d.pool.Size()-1)*10*time.Second
	if timeout > 120*time.Second {
		timeout = 120 * time.Second
	}
	if timeout < 90*time.Second {
		timeout = 90 * time.Second
	}
	return timeout
}

func emit(progress ProgressFunc, dimension, event string) {
	if progress != nil {
		progress(dimension, event)
	}
}

// sleepContext waits for the given duration unless the context is done
// first; returns false when the wait was cut short.
func sleepContext(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
