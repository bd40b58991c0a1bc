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


package workers

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/client-go/util/workqueue"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

const DefaultPoolSize = 50

// Work is fire-and-forget unit of work, returned error is only logged.
type Work func(ctx context.Context) error

type job struct {
	name string
	work Work
}

// Submitter accepts background work without blocking caller.
type Submitter interface {
	Submit(name string, work Work) error
}

// Pool runs submitted work on fixed number of workers.
type Pool struct {
	name   string
	size   int
	queue  workqueue.TypedInterface[*job]
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewPool(log zerolog.Logger, name string, size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   name,
		size:   size,
		queue:  workqueue.NewTyped[*job](),
		log:    log.With().Str(dspcommon.LoggerObjectField, "pool "+name).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) Size() int {
	return p.size
}

// Pending returns number of queued and not started jobs.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

func (p *Pool) Submit(name string, work Work) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return dspcommon.NewError(dspcommon.ErrCanceled, "pool '%s' is shutting down, '%s' rejected", p.name, name)
	}
	p.queue.Add(&job{name: name, work: work})
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		j, shutdown := p.queue.Get()
		if shutdown {
			return
		}
		p.run(j)
		p.queue.Done(j)
	}
}

func (p *Pool) run(j *job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Msgf("work '%s' panicked: %v\n%s", j.name, r, debug.Stack())
		}
	}()
	started := time.Now()
	if err := j.work(p.ctx); err != nil {
		p.log.Error().Err(err).Msgf("work '%s' failed", j.name)
		return
	}
	p.log.Debug().Msgf("work '%s' finished in %v", j.name, time.Since(started).Round(time.Millisecond))
}

// Shutdown rejects new work and waits up to grace period for queued work to
// drain. Work still running after that is abandoned and its context canceled.
func (p *Pool) Shutdown(grace time.Duration) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return true
	}
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.queue.ShutDownWithDrain()
		p.wg.Wait()
		close(drained)
	}()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-drained:
		p.cancel()
		p.log.Info().Msg("all workers finished")
		return true
	case <-timer.C:
		p.cancel()
		p.log.Warn().Msgf("workers did not finish in %v, abandoning %d queued jobs", grace, p.queue.Len())
		return false
	}
}
