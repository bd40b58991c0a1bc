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
	"sort"
	"sync"
)

// Registry tracks running taskflows by name.
type Registry struct {
	mu     sync.Mutex
	active map[string]int
}

func NewRegistry() *Registry {
	return &Registry{active: map[string]int{}}
}

func (r *Registry) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[name]++
}

func (r *Registry) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[name] <= 1 {
		delete(r.active, name)
		return
	}
	r.active[name]--
}

func (r *Registry) CheckExists(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[name] > 0
}

func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear forgets all taskflows, used on teardown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = map[string]int{}
}
