// Package registry owns the set of live mirror tasks.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"trade-mirror-bot/internal/checkpoint"
	"trade-mirror-bot/internal/interfaces"
	"trade-mirror-bot/internal/logger"
	"trade-mirror-bot/internal/page"
	"trade-mirror-bot/internal/types"
)

var (
	ErrDuplicateTask = errors.New("task already exists")
	ErrTaskNotFound  = errors.New("task not found")
)

// Factory builds an unstarted task for cfg. ctx bounds any checks it makes
// against external services.
type Factory func(ctx context.Context, cfg types.TaskConfig) (interfaces.Task, error)

// Checkpointer persists task configs across restarts.
type Checkpointer interface {
	Save(ctx context.Context, cfg types.TaskConfig, running bool) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]checkpoint.Record, error)
}

type entry struct {
	cfg  types.TaskConfig
	task interfaces.Task
}

// Registry serializes create, stop and list. Tasks run on the registry's base context,
// never on the context of the request that created them.
type Registry struct {
	base    context.Context
	factory Factory
	store   Checkpointer

	mu    sync.Mutex
	tasks map[string]*entry
	wg    sync.WaitGroup
}

func New(base context.Context, factory Factory, store Checkpointer) *Registry {
	return &Registry{
		base:    base,
		factory: factory,
		store:   store,
		tasks:   make(map[string]*entry),
	}
}

// Create validates cfg, checkpoints it and starts the task.
func (r *Registry) Create(ctx context.Context, cfg types.TaskConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[cfg.ID]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTask, cfg.ID)
	}

	task, err := r.factory(ctx, cfg)
	if err != nil {
		return "", err
	}
	if err := r.store.Save(ctx, cfg, true); err != nil {
		return "", err
	}

	e := &entry{cfg: cfg, task: task}
	r.tasks[cfg.ID] = e
	r.wg.Add(1)
	go r.run(e)

	logger.Info(ctx, "Task created", "task_id", cfg.ID, "link", cfg.Link)
	return cfg.ID, nil
}

func (r *Registry) run(e *entry) {
	defer r.wg.Done()

	err := e.task.Run(r.base)
	if err == nil || !errors.Is(err, page.ErrDriverStart) {
		return
	}

	// initialization failed: keep the entry visible as not running
	logger.ErrorWithErr(r.base, "Task failed to start", err, "task_id", e.cfg.ID)
	r.mu.Lock()
	current := r.tasks[e.cfg.ID] == e
	r.mu.Unlock()
	if current {
		if serr := r.store.Save(r.base, e.cfg, false); serr != nil {
			logger.ErrorWithErr(r.base, "Failed to checkpoint task state", serr, "task_id", e.cfg.ID)
		}
	}
}

// Stop removes the task, deletes its checkpoint and waits for its loop to exit or ctx to end.
func (r *Registry) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	e.task.Stop()
	if err := r.store.Delete(ctx, id); err != nil {
		logger.ErrorWithErr(ctx, "Failed to delete task checkpoint", err, "task_id", id)
	}

	select {
	case <-e.task.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Info(ctx, "Task stopped", "task_id", id)
	return nil
}

// List returns the status of every registered task ordered by id.
func (r *Registry) List() []types.TaskStatus {
	r.mu.Lock()
	out := make([]types.TaskStatus, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, e.task.Status())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore starts every checkpointed task marked running. It returns how many started.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	op := logger.StartOperation(ctx, "registry.Restore")
	ctx = op.GetContext()

	recs, err := r.store.List(ctx)
	if err != nil {
		op.EndWithError(err)
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}

	started := 0
	for _, rec := range recs {
		if !rec.Running {
			logger.Info(ctx, "Skipping stopped checkpoint", "task_id", rec.Config.ID)
			continue
		}
		if _, err := r.Create(ctx, rec.Config); err != nil {
			logger.ErrorWithErr(ctx, "Failed to restore task", err, "task_id", rec.Config.ID)
			continue
		}
		started++
	}
	op.End("checkpoints", len(recs), "started", started)
	return started, nil
}

// Shutdown stops every task but leaves checkpoints untouched so Restore resumes them.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.tasks))
	for id, e := range r.tasks {
		entries = append(entries, e)
		delete(r.tasks, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.task.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
