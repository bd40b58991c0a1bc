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

package session

import (
	"context"
	"maps"
	"sync"
	"time"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

type memoryEntry struct {
	data    map[string]any
	expires time.Time
}

type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, sessions: map[string]memoryEntry{}}
}

func (m *MemoryStore) get(token string) (memoryEntry, bool) {
	entry, ok := m.sessions[token]
	if !ok {
		return memoryEntry{}, false
	}
	if dspcommon.GetCurrentTime().After(entry.expires) {
		delete(m.sessions, token)
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *MemoryStore) Get(_ context.Context, token string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.get(token)
	if !ok {
		return nil, nil
	}
	return maps.Clone(entry.data), nil
}

func (m *MemoryStore) Save(_ context.Context, token string, data map[string]any) (string, error) {
	if token != "" && !ValidToken(token) {
		return "", invalidToken(token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.get(token); !ok {
		token = dspcommon.NewToken()
	}
	m.sessions[token] = memoryEntry{data: maps.Clone(data), expires: dspcommon.GetCurrentTime().Add(m.ttl)}
	return token, nil
}

func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}
