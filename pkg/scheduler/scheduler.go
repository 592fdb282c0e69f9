package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/fx-rate-scraper/pkg/logging"
)

// Mode selects the admission policy.
type Mode string

const (
	// ModeDrain admits until full, then awaits the whole in-flight set.
	ModeDrain Mode = "drain"

	// ModeSliding replaces each finished task with the next pending one.
	ModeSliding Mode = "sliding"
)

// ParseMode converts a config string to a Mode. Unknown values fall back to ModeDrain.
func ParseMode(s string) Mode {
	if Mode(s) == ModeSliding {
		return ModeSliding
	}
	return ModeDrain
}

// Config holds scheduler configuration.
type Config struct {
	// Name labels logs and metrics (e.g. "entities", "pages:USD").
	Name string

	// Concurrency is the in-flight ceiling K. Values below 1 are treated as 1.
	Concurrency int

	// Mode is the admission policy (default: ModeDrain).
	Mode Mode
}

// Task is a deferred unit of work. Key is only used to place the result.
type Task[R any] struct {
	Key int
	Run func(ctx context.Context) (R, error)
}

// NewTask creates a task with the given order key.
func NewTask[R any](key int, run func(ctx context.Context) (R, error)) Task[R] {
	return Task[R]{Key: key, Run: run}
}

// Result is the value produced by a task, tagged with the task's key.
type Result[R any] struct {
	Key   int
	Value R
}

// Scheduler executes tasks with at most Concurrency of them outstanding.
type Scheduler[R any] struct {
	config Config
	logger zerolog.Logger
}

type outcome[R any] struct {
	key   int
	value R
	err   error
}

// New creates a new scheduler.
func New[R any](cfg Config) *Scheduler[R] {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeDrain
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	return &Scheduler[R]{
		config: cfg,
		logger: logging.NewLogger("scheduler").With().Str("scheduler", cfg.Name).Logger(),
	}
}

// Concurrency returns the effective in-flight ceiling.
func (s *Scheduler[R]) Concurrency() int {
	return s.config.Concurrency
}

// Run executes every task and returns one result per task, in completion
// batches rather than key order. Any task failure fails the run.
func (s *Scheduler[R]) Run(ctx context.Context, tasks []Task[R]) ([]Result[R], error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	start := time.Now()
	s.logger.Debug().
		Int("tasks", len(tasks)).
		Int("concurrency", s.config.Concurrency).
		Str("mode", string(s.config.Mode)).
		Msg("Scheduler run started")

	var (
		results []Result[R]
		err     error
	)
	switch s.config.Mode {
	case ModeSliding:
		results, err = s.runSliding(ctx, tasks)
	default:
		results, err = s.runDrain(ctx, tasks)
	}
	if err != nil {
		s.logger.Warn().Err(err).Int("tasks", len(tasks)).Msg("Scheduler run failed")
		return nil, err
	}

	s.logger.Debug().
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Scheduler run complete")

	return results, nil
}

// runDrain implements wave admission: fill the in-flight set up to the
// ceiling, then wait for all of it before admitting the next task. A failure
// cancels the rest of its wave and stops admission.
func (s *Scheduler[R]) runDrain(parent context.Context, tasks []Task[R]) ([]Result[R], error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	limit := s.config.Concurrency
	results := make([]Result[R], 0, len(tasks))
	wave := make([]outcome[R], limit)
	inFlight := 0

	var wg sync.WaitGroup

	drain := func() error {
		wg.Wait()
		Drains.WithLabelValues(s.config.Name).Inc()

		n := inFlight
		inFlight = 0

		var failed *TaskError
		for i := 0; i < n; i++ {
			out := wave[i]
			if out.err == nil {
				continue
			}
			// Prefer the root cause over tasks that only saw our cancellation.
			if failed == nil || (errors.Is(failed.Err, context.Canceled) && !errors.Is(out.err, context.Canceled)) {
				failed = &TaskError{Scheduler: s.config.Name, Key: out.key, Err: out.err}
			}
		}
		if failed != nil {
			return failed
		}

		for i := 0; i < n; i++ {
			results = append(results, Result[R]{Key: wave[i].key, Value: wave[i].value})
		}
		return nil
	}

	for _, task := range tasks {
		if inFlight == limit {
			if err := drain(); err != nil {
				return nil, err
			}
		}

		if err := parent.Err(); err != nil {
			wg.Wait()
			return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
		}

		slot := inFlight
		inFlight++
		wg.Add(1)
		go func(t Task[R]) {
			defer wg.Done()
			out := s.execute(ctx, t)
			if out.err != nil {
				cancel()
			}
			wave[slot] = out
		}(task)
	}

	if inFlight > 0 {
		if err := drain(); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// runSliding keeps the window full: a finished task frees its slot for the
// next pending task immediately. The first failure stops admission and
// cancels the tasks still running.
func (s *Scheduler[R]) runSliding(parent context.Context, tasks []Task[R]) ([]Result[R], error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sem := make(chan struct{}, s.config.Concurrency)
	outcomes := make(chan outcome[R], len(tasks))

	var wg sync.WaitGroup

admit:
	for _, task := range tasks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break admit
		}
		if ctx.Err() != nil {
			<-sem
			break admit
		}

		wg.Add(1)
		go func(t Task[R]) {
			defer wg.Done()
			defer func() { <-sem }()

			out := s.execute(ctx, t)
			if out.err != nil {
				cancel()
			}
			outcomes <- out
		}(task)
	}

	wg.Wait()
	close(outcomes)

	results := make([]Result[R], 0, len(tasks))
	var failed *TaskError
	for out := range outcomes {
		if out.err == nil {
			results = append(results, Result[R]{Key: out.key, Value: out.value})
			continue
		}
		// Prefer the root cause over tasks that only saw our cancellation.
		if failed == nil || (errors.Is(failed.Err, context.Canceled) && !errors.Is(out.err, context.Canceled)) {
			failed = &TaskError{Scheduler: s.config.Name, Key: out.key, Err: out.err}
		}
	}

	if failed != nil {
		return nil, failed
	}
	if err := parent.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	return results, nil
}

// execute runs one task, converting a panic into an error.
func (s *Scheduler[R]) execute(ctx context.Context, t Task[R]) (out outcome[R]) {
	out.key = t.Key

	InFlight.WithLabelValues(s.config.Name).Inc()
	defer InFlight.WithLabelValues(s.config.Name).Dec()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Int("key", t.Key).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Task panicked")
			out.err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}

		outcomeLabel := "success"
		if out.err != nil {
			outcomeLabel = "failure"
		}
		TasksTotal.WithLabelValues(s.config.Name, outcomeLabel).Inc()
	}()

	if t.Run == nil {
		out.err = ErrNilTask
		return out
	}

	out.value, out.err = t.Run(ctx)
	return out
}

// Ordered places results into a slot array of the given size by key. Every
// slot must be filled exactly once.
func Ordered[R any](results []Result[R], size int) ([]R, error) {
	slots := make([]R, size)
	filled := make([]bool, size)

	for _, r := range results {
		if r.Key < 0 || r.Key >= size {
			return nil, fmt.Errorf("%w: key %d, size %d", ErrKeyOutOfRange, r.Key, size)
		}
		if filled[r.Key] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateKey, r.Key)
		}
		slots[r.Key] = r.Value
		filled[r.Key] = true
	}

	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrMissingSlot, i)
		}
	}

	return slots, nil
}
