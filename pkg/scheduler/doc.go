// Package scheduler runs keyed units of work under a fixed concurrency ceiling.
//
// A Scheduler accepts an ordered list of tasks, keeps at most Concurrency of
// them in flight, and returns one Result per task. Results carry the task's
// Key so callers can put them back in order with Ordered, whatever order the
// tasks completed in.
//
// Two admission policies are available:
//
//   - ModeDrain admits tasks until the ceiling is reached, then waits for the
//     whole in-flight set to finish before admitting more. Concurrency can dip
//     below the ceiling between drains.
//   - ModeSliding starts the next pending task as soon as any in-flight task
//     finishes.
//
// Both modes return the same result set and never exceed the ceiling. A task
// error (or panic) fails the whole run and no partial results are returned.
//
// Example usage:
//
//	sched := scheduler.New[[]string](scheduler.Config{Name: "pages", Concurrency: 2})
//	results, err := sched.Run(ctx, tasks)
//	if err != nil {
//		return err
//	}
//	slots, err := scheduler.Ordered(results, len(tasks))
//
// Every Scheduler owns its in-flight state. Two schedulers never share a
// concurrency budget, so nested levels of work each get their own instance.
package scheduler
