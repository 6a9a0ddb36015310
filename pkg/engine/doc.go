// Package engine runs the task cycles of the installer.
//
// A Task exposes a sort key and an Execute operation. The Runner orders the
// tasks of a cycle by sort key and executes them sequentially on the calling
// goroutine. While executing, a task may schedule further work through its
// InstallationContext:
//
//   - AddTaskToCurrentCycle merges a task into the running cycle in sort-key
//     order, so an install can chain its start into the same cycle.
//   - AddTaskToNextCycle carries a task into the next cycle. Tasks without a
//     backing resource use it to stay alive, since the driver cannot recreate
//     them from the registry.
//
// Pending tasks with equal sort keys are collapsed. A failing task is recorded
// in the CycleResult and the cycle continues.
//
// # Errors
//
// Tasks raise EngineError values classified as transient, throttled, conflict
// or permanent:
//
//	return engine.NewPermanentError("invalid start level", err).
//	    WithCode(engine.ErrCodeMalformedMetadata).
//	    WithResource(r.URL)
//
// IsPermanent and IsRetryable inspect wrapped errors with errors.As.
package engine
