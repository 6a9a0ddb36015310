package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/telemetry"
)

// TaskFailure is a task whose Execute returned an error.
type TaskFailure struct {
	Task Task
	Err  error
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	// ID uniquely identifies the cycle.
	ID string

	StartedAt time.Time
	Duration  time.Duration

	// Executed counts the tasks that ran, including those added during the cycle.
	Executed int

	Failures []TaskFailure

	// Next holds the tasks carried into the next cycle.
	Next []Task

	// Interrupted is set when the context ended before the queue drained.
	Interrupted bool
}

// Failed reports whether at least one task failed.
func (r *CycleResult) Failed() bool {
	return len(r.Failures) > 0
}

// Runner executes the tasks of a cycle one at a time on the calling goroutine.
type Runner struct {
	logger  zerolog.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTracer records a span per cycle and per task.
func WithTracer(t *telemetry.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = t
	}
}

// WithMetrics records cycle and task metrics.
func WithMetrics(m *telemetry.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a new cycle runner.
func NewRunner(logger zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger: logger.With().Str("component", "runner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCycle sorts tasks by sort key and executes them in order. Tasks added to
// the current cycle are merged into the pending queue; tasks added to the
// next cycle are returned in the result. If ctx ends, pending tasks are
// carried over to the next cycle.
func (r *Runner) RunCycle(ctx context.Context, tasks []Task) *CycleResult {
	cycleID := uuid.New().String()
	start := time.Now()

	ctx, span := r.tracer.StartCycleSpan(ctx, cycleID, len(tasks))
	defer span.End()

	cc := &cycleContext{
		queue:    newTaskQueue(tasks),
		nextKeys: make(map[string]struct{}),
		logger:   r.logger.With().Str("cycle_id", cycleID).Logger(),
	}
	result := &CycleResult{ID: cycleID, StartedAt: start}

	cc.logger.Debug().Int("tasks", cc.queue.len()).Msg("Starting cycle")

	for {
		if ctx.Err() != nil {
			result.Interrupted = true
			for t, ok := cc.queue.pop(); ok; t, ok = cc.queue.pop() {
				cc.AddTaskToNextCycle(t)
			}
			break
		}

		task, ok := cc.queue.pop()
		if !ok {
			break
		}

		result.Executed++
		if err := r.execute(ctx, cycleID, cc, task); err != nil {
			result.Failures = append(result.Failures, TaskFailure{Task: task, Err: err})
		}
	}

	result.Next = cc.next
	result.Duration = time.Since(start)
	r.metrics.RecordCycle(result.Failed(), result.Duration)

	if result.Failed() {
		telemetry.RecordError(span, fmt.Errorf("%d of %d tasks failed", len(result.Failures), result.Executed))
	} else {
		telemetry.RecordSuccess(span)
	}

	cc.logger.Debug().
		Int("executed", result.Executed).
		Int("failed", len(result.Failures)).
		Int("next", len(result.Next)).
		Dur("duration", result.Duration).
		Msg("Finished cycle")

	return result
}

func (r *Runner) execute(ctx context.Context, cycleID string, cc *cycleContext, task Task) (err error) {
	kind := TaskKind(task)
	started := time.Now()

	taskCtx, span := r.tracer.StartTaskSpan(ctx, cycleID, kind, task.SortKey())
	defer span.End()

	prev := cc.logger
	cc.logger = prev.With().Str("task", task.SortKey()).Logger()
	defer func() {
		cc.logger = prev
	}()

	defer func() {
		if p := recover(); p != nil {
			err = NewPermanentError("task panicked", fmt.Errorf("%v", p)).
				WithCode(ErrCodeInternal).
				WithTask(task.SortKey())
		}

		outcome := "ok"
		if err != nil {
			outcome = "failed"
			class, code := Classify(err)
			r.metrics.RecordError(string(class), code)
			telemetry.RecordError(span, err)
			cc.logger.Warn().
				Err(err).
				Str("kind", kind).
				Str("class", string(class)).
				Msgf("Task %s failed", task)
		} else {
			telemetry.RecordSuccess(span)
		}
		r.metrics.RecordTask(kind, outcome, time.Since(started))
	}()

	return task.Execute(taskCtx, cc)
}

// cycleContext implements InstallationContext for one running cycle.
type cycleContext struct {
	queue    *taskQueue
	next     []Task
	nextKeys map[string]struct{}
	logger   zerolog.Logger
}

func (c *cycleContext) AddTaskToCurrentCycle(t Task) {
	if !c.queue.push(t) {
		c.logger.Debug().Str("sort_key", t.SortKey()).Msg("Task already pending in this cycle")
	}
}

func (c *cycleContext) AddTaskToNextCycle(t Task) {
	key := t.SortKey()
	if _, ok := c.nextKeys[key]; ok {
		return
	}
	c.nextKeys[key] = struct{}{}
	c.next = append(c.next, t)
}

func (c *cycleContext) Log(format string, args ...any) {
	c.logger.Info().Msgf(format, args...)
}
