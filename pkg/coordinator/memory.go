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
	"sync"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

// MemoryCoordinator keeps locks inside current process.
type MemoryCoordinator struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{slots: map[string]chan struct{}{}}
}

func (c *MemoryCoordinator) slot(name string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		c.slots[name] = slot
	}
	return slot
}

func (c *MemoryCoordinator) GetLock(name string) Lock {
	return &memoryLock{name: name, slot: c.slot(name)}
}

func (c *MemoryCoordinator) Close() error {
	return nil
}

type memoryLock struct {
	name string
	slot chan struct{}
	mu   sync.Mutex
	held bool
}

func (l *memoryLock) Name() string {
	return l.name
}

func (l *memoryLock) Acquire(ctx context.Context, blocking bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, dspcommon.NewError(dspcommon.ErrProgramming, "lock '%s' is already held by this owner", l.name)
	}
	if !blocking {
		select {
		case l.slot <- struct{}{}:
			l.held = true
			return true, nil
		default:
			return false, nil
		}
	}
	select {
	case l.slot <- struct{}{}:
		l.held = true
		return true, nil
	case <-ctx.Done():
		return false, dspcommon.WrapError(dspcommon.ErrTimeout, ctx.Err(), "failed to acquire lock '%s'", l.name)
	}
}

func (l *memoryLock) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return dspcommon.NewError(dspcommon.ErrProgramming, "lock '%s' is not held", l.name)
	}
	<-l.slot
	l.held = false
	return nil
}
