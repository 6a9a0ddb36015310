package engine

import (
	"context"
	"slices"
	"strings"
)

// Task is one orderable unit of work executed within a cycle.
type Task interface {
	// SortKey totally orders the tasks of a cycle.
	SortKey() string

	// Execute runs the task. A returned error is recorded as a failure of
	// this invocation; it never aborts the cycle.
	Execute(ctx context.Context, ictx InstallationContext) error

	String() string
}

// Kinder is implemented by tasks that report a kind for metrics and spans.
type Kinder interface {
	Kind() string
}

// InstallationContext is handed to every task of a cycle.
type InstallationContext interface {
	// AddTaskToCurrentCycle schedules t in the running cycle, merged by sort key.
	AddTaskToCurrentCycle(t Task)

	// AddTaskToNextCycle carries t into the next cycle.
	AddTaskToNextCycle(t Task)

	// Log records a message on behalf of the running task.
	Log(format string, args ...any)
}

// TaskKind returns the kind of t, or "task" when it does not report one.
func TaskKind(t Task) string {
	if k, ok := t.(Kinder); ok {
		return k.Kind()
	}
	return "task"
}

// taskQueue keeps pending tasks sorted by sort key without duplicates.
type taskQueue struct {
	tasks []Task
}

func newTaskQueue(tasks []Task) *taskQueue {
	q := &taskQueue{}
	for _, t := range tasks {
		q.push(t)
	}
	return q
}

// push inserts t in sort order. It reports false when a pending task already
// has the same sort key.
func (q *taskQueue) push(t Task) bool {
	i, found := slices.BinarySearchFunc(q.tasks, t.SortKey(), func(e Task, key string) int {
		return strings.Compare(e.SortKey(), key)
	})
	if found {
		return false
	}
	q.tasks = slices.Insert(q.tasks, i, t)
	return true
}

func (q *taskQueue) pop() (Task, bool) {
	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *taskQueue) len() int {
	return len(q.tasks)
}

// SortTasks orders tasks by sort key and drops duplicate keys.
func SortTasks(tasks []Task) []Task {
	return newTaskQueue(tasks).tasks
}
