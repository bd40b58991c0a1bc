/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package taskflow

import (
	"context"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tevino/abool"
	"golang.org/x/sync/errgroup"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/coordinator"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/metrics"
	"github.com/Mirantis/dspace/pkg/objects"
)

// ErrTaskflowLocked is returned by Run when non-blocking lock is held.
var ErrTaskflowLocked = dspcommon.NewError(dspcommon.ErrLockAcquireFailed, "lock is held by another taskflow")

// FailureHandler is notified about every failed taskflow.
type FailureHandler func(ctx context.Context, row *objects.Taskflow)

// Engine creates taskflows sharing persistence, locks and registry.
type Engine struct {
	log       zerolog.Logger
	db        db.Store
	coord     coordinator.Coordinator
	registry  *Registry
	onFailure FailureHandler
}

func NewEngine(log zerolog.Logger, store db.Store, coord coordinator.Coordinator, registry *Registry) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Engine{log: log, db: store, coord: coord, registry: registry}
}

func (e *Engine) SetFailureHandler(handler FailureHandler) {
	e.onFailure = handler
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) NewTaskflow(clusterID, name string, root Node) *Taskflow {
	return &Taskflow{
		engine:    e,
		name:      name,
		clusterID: clusterID,
		root:      root,
		canceled:  abool.New(),
		log:       dspcommon.ObjectLogger(e.log, "taskflow", name),
	}
}

// Taskflow is named persisted run of flow graph.
type Taskflow struct {
	engine       *Engine
	name         string
	clusterID    string
	root         Node
	args         map[string]any
	lockName     string
	lockBlocking bool
	canceled     *abool.AtomicBool
	log          zerolog.Logger
	row          *objects.Taskflow
}

func (t *Taskflow) Name() string {
	return t.name
}

// WithArgs sets flow arguments, they are persisted and seed flow store.
func (t *Taskflow) WithArgs(args map[string]any) *Taskflow {
	t.args = args
	return t
}

// RequireLock makes Run acquire cluster scoped lock first.
func (t *Taskflow) RequireLock(name string, blocking bool) *Taskflow {
	t.lockName = name
	t.lockBlocking = blocking
	return t
}

// Cancel sets cooperative cancel flag checked before each task.
func (t *Taskflow) Cancel() {
	t.canceled.Set()
}

// Row returns persisted taskflow row, nil before Run.
func (t *Taskflow) Row() *objects.Taskflow {
	return t.row
}

// Run executes flow graph. On failure completed tasks are reverted in
// reverse completion order and taskflow row is marked failed with
// aggregated reason.
func (t *Taskflow) Run(ctx context.Context) (*Store, error) {
	if t.lockName != "" {
		lock := t.engine.coord.GetLock(coordinator.ClusterLockName(t.clusterID, t.lockName))
		acquired, err := lock.Acquire(ctx, t.lockBlocking)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to acquire lock for taskflow '%s'", t.name)
		}
		if !acquired {
			t.log.Info().Msgf("taskflow lock '%s' is held, skipping", t.lockName)
			return nil, errors.Wrapf(ErrTaskflowLocked, "failed to run taskflow '%s'", t.name)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				t.log.Error().Err(err).Msgf("failed to release taskflow lock '%s'", t.lockName)
			}
		}()
	}

	t.engine.registry.add(t.name)
	defer t.engine.registry.remove(t.name)

	t.row = &objects.Taskflow{ClusterID: t.clusterID, Name: t.name, Status: objects.TaskStatusRunning, Args: t.args}
	if err := t.engine.db.Taskflows().Create(ctx, t.row); err != nil {
		return nil, errors.Wrapf(err, "failed to persist taskflow '%s'", t.name)
	}
	t.log.Info().Msg("taskflow started")

	r := &runner{
		db:  t.engine.db,
		log: t.log,
		fc: &FlowContext{
			ctx:       ctx,
			Log:       t.log,
			ClusterID: t.clusterID,
			FlowName:  t.name,
			FlowID:    t.row.ID,
			canceled:  t.canceled,
		},
		store: NewStore(t.args),
	}
	runErr := r.run(t.root)

	finished := dspcommon.GetCurrentTime()
	t.row.FinishedAt = &finished
	if runErr != nil {
		r.revert(runErr)
		t.row.Status = objects.TaskStatusFailed
		t.row.Reason = runErr.Error()
		t.log.Error().Err(runErr).Msg("taskflow failed")
	} else {
		t.row.Status = objects.TaskStatusSuccess
		t.log.Info().Msg("taskflow finished")
	}
	if err := t.engine.db.Taskflows().Update(context.WithoutCancel(ctx), t.row); err != nil {
		t.log.Error().Err(err).Msg("failed to update taskflow row")
	}
	metrics.TaskflowFinished(t.name, string(t.row.Status))
	if runErr != nil {
		if t.engine.onFailure != nil {
			t.engine.onFailure(context.WithoutCancel(ctx), t.row)
		}
		return r.store, runErr
	}
	return r.store, nil
}

type completedTask struct {
	task   Task
	result any
}

type runner struct {
	db    db.Store
	log   zerolog.Logger
	fc    *FlowContext
	store *Store

	mu   sync.Mutex
	done []completedTask
}

func (r *runner) run(node Node) error {
	switch n := node.(type) {
	case *Flow:
		if n.parallel {
			return r.runParallel(n)
		}
		for _, child := range n.children {
			if err := r.run(child); err != nil {
				return err
			}
		}
		return nil
	case Task:
		return r.runTask(n)
	}
	return dspcommon.NewError(dspcommon.ErrProgramming, "unsupported flow node %T", node)
}

func (r *runner) runParallel(flow *Flow) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs *multierror.Error
	)
	for _, child := range flow.children {
		g.Go(func() error {
			if err := r.run(child); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if errs == nil {
		return nil
	}
	if len(errs.Errors) == 1 {
		return errs.Errors[0]
	}
	errs.ErrorFormat = formatReasons
	return dspcommon.WrapError(dspcommon.GetErrorKind(errs.Errors[0]), errs, "")
}

func formatReasons(errs []error) string {
	reasons := make([]string, 0, len(errs))
	for _, err := range errs {
		reasons = append(reasons, err.Error())
	}
	return strings.Join(reasons, "; ")
}

func (r *runner) runTask(task Task) error {
	if err := r.fc.CheckCanceled(); err != nil {
		return err
	}
	row := r.prepareTask(task)
	r.log.Info().Msgf("task '%s' started", task.Name())
	result, err := task.Execute(r.fc, r.store)
	if err != nil {
		r.failedTask(row, err)
		r.log.Error().Err(err).Msgf("task '%s' failed", task.Name())
		return errors.Wrapf(err, "task '%s' failed", task.Name())
	}
	r.finishTask(row)
	r.log.Info().Msgf("task '%s' finished", task.Name())
	r.mu.Lock()
	r.done = append(r.done, completedTask{task: task, result: result})
	r.mu.Unlock()
	return nil
}

func (r *runner) prepareTask(task Task) *objects.Task {
	row := &objects.Task{
		ClusterID:  r.fc.ClusterID,
		TaskflowID: r.fc.FlowID,
		Name:       task.Name(),
		Status:     objects.TaskStatusRunning,
	}
	if err := r.db.Tasks().Create(r.fc.ctx, row); err != nil {
		r.log.Error().Err(err).Msgf("failed to persist task '%s'", task.Name())
	}
	return row
}

func (r *runner) finishTask(row *objects.Task) {
	r.updateTask(row, objects.TaskStatusSuccess, "")
}

func (r *runner) failedTask(row *objects.Task, err error) {
	r.updateTask(row, objects.TaskStatusFailed, err.Error())
}

func (r *runner) updateTask(row *objects.Task, status objects.TaskStatus, reason string) {
	if row.ID == 0 {
		return
	}
	finished := dspcommon.GetCurrentTime()
	row.Status = status
	row.Reason = reason
	row.FinishedAt = &finished
	if err := r.db.Tasks().Update(context.WithoutCancel(r.fc.ctx), row); err != nil {
		r.log.Error().Err(err).Msgf("failed to update task '%s'", row.Name)
	}
}

// revert undoes completed tasks in reverse completion order, revert
// failures are logged and do not stop the rest.
func (r *runner) revert(cause error) {
	failures := []error{cause}
	fc := r.fc.withContext(context.WithoutCancel(r.fc.ctx))
	for i := len(r.done) - 1; i >= 0; i-- {
		done := r.done[i]
		r.log.Info().Msgf("reverting task '%s'", done.task.Name())
		if err := done.task.Revert(fc, done.result, failures); err != nil {
			r.log.Error().Err(err).Msgf("failed to revert task '%s'", done.task.Name())
		}
	}
}
