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


package coordinator

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

// Lock is advisory named lock. Locks are not reentrant.
type Lock interface {
	Name() string
	// Acquire returns false without error when lock is held by someone else
	// and blocking is not requested.
	Acquire(ctx context.Context, blocking bool) (bool, error)
	Release(ctx context.Context) error
}

type Coordinator interface {
	GetLock(name string) Lock
	Close() error
}

// New returns redis backed coordinator for non-empty url, in-process one otherwise.
func New(log zerolog.Logger, url string) (Coordinator, error) {
	if url == "" {
		return NewMemoryCoordinator(), nil
	}
	return NewRedisCoordinator(log, RedisOptions{URL: url})
}

func ClusterLockName(clusterID, name string) string {
	return fmt.Sprintf("cluster/%s/%s", clusterID, name)
}

// ProcessLockName scopes lock to current process.
func ProcessLockName(name string) string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("process/%s/%d/%s", hostname, os.Getpid(), name)
}

// WithLock runs fn under lock, non-blocking acquire failure is reported
// as LockAcquireFailed error.
func WithLock(ctx context.Context, coordinator Coordinator, name string, blocking bool, fn func() error) error {
	lock := coordinator.GetLock(name)
	acquired, err := lock.Acquire(ctx, blocking)
	if err != nil {
		return err
	}
	if !acquired {
		return dspcommon.NewError(dspcommon.ErrLockAcquireFailed, "lock '%s' is held by another owner", name)
	}
	defer func() {
		// release must succeed even when work context is already canceled
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn()
}
