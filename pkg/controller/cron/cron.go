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


package cron

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/coordinator"
	"github.com/Mirantis/dspace/pkg/metrics"
)

const (
	OsdTreeCheckLock     = "osd_tree_check"
	CephMonCheckLock     = "ceph_mon_check"
	NodeServiceCheckLock = "node_service_check"
	SlowRequestGetLock   = "slow_request_get"
	DsaCheckLock         = "dsa_check"
)

// Reconciler is single periodic loop. Reconcile takes its lock itself, so
// concurrent callers get LockAcquireFailed error.
type Reconciler struct {
	Name      string
	Interval  time.Duration
	Reconcile func(ctx context.Context) error
}

// locked wraps reconcile pass into non-blocking named lock.
func locked(c *controller.Context, lockName string, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return coordinator.WithLock(ctx, c.Coord, lockName, false, func() error {
			return fn(ctx)
		})
	}
}

// Reconcilers returns every admin loop with configured intervals.
func Reconcilers(c *controller.Context) []Reconciler {
	return []Reconciler{
		NewOsdTreeReconciler(c),
		NewMonitorReconciler(c),
		NewNodeServiceReconciler(c),
		NewSlowRequestReconciler(c),
		NewDsaReconciler(c),
	}
}

// Scheduler runs reconcilers on gocron, each job in singleton mode.
type Scheduler struct {
	log       zerolog.Logger
	scheduler gocron.Scheduler
	jobs      map[string]uuid.UUID
}

func NewScheduler(log zerolog.Logger) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scheduler")
	}
	return &Scheduler{log: log, scheduler: scheduler, jobs: map[string]uuid.UUID{}}, nil
}

// Register adds reconciler job or updates interval of already known one.
func (s *Scheduler) Register(r Reconciler) error {
	if r.Interval <= 0 {
		return dspcommon.NewError(dspcommon.ErrInvalid, "reconciler '%s' has invalid interval %v", r.Name, r.Interval)
	}
	definition := gocron.DurationJob(r.Interval)
	task := gocron.NewTask(s.wrap(r))
	options := []gocron.JobOption{
		gocron.WithName(r.Name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	}
	if id, ok := s.jobs[r.Name]; ok {
		if _, err := s.scheduler.Update(id, definition, task, options...); err != nil {
			return errors.Wrapf(err, "failed to update reconciler '%s'", r.Name)
		}
		return nil
	}
	job, err := s.scheduler.NewJob(definition, task, options...)
	if err != nil {
		return errors.Wrapf(err, "failed to register reconciler '%s'", r.Name)
	}
	s.jobs[r.Name] = job.ID()
	s.log.Info().Msgf("reconciler '%s' registered with interval %v", r.Name, r.Interval)
	return nil
}

func (s *Scheduler) wrap(r Reconciler) func(ctx context.Context) {
	return func(ctx context.Context) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		RunOnce(ctx, s.log, r)
	}
}

// RunOnce runs single reconcile pass and records its outcome.
func RunOnce(ctx context.Context, log zerolog.Logger, r Reconciler) {
	started := time.Now()
	err := r.Reconcile(ctx)
	switch {
	case err == nil:
		metrics.ReconcileFinished(r.Name, "success", started)
	case dspcommon.IsLockAcquireFailed(err):
		log.Debug().Msgf("reconciler '%s' skipped: %v", r.Name, err)
		metrics.ReconcileFinished(r.Name, "skipped", started)
	default:
		log.Error().Err(err).Msgf("reconciler '%s' failed", r.Name)
		metrics.ReconcileFinished(r.Name, "error", started)
	}
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}
