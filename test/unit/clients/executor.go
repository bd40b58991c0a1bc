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


package helpers

import (
	"sync"

	"github.com/Mirantis/dspace/test/unit/clients/fakeexec"
)

type CommandReaction = fakeexec.CommandReaction
type FakeExecutor = fakeexec.FakeExecutor

var NewFakeExecutor = fakeexec.NewFakeExecutor

// FakeRemotes hands out one fake executor per node hostname, new executors
// start with Reactions.
type FakeRemotes struct {
	mu        sync.Mutex
	execs     map[string]*FakeExecutor
	Reactions map[string]CommandReaction
	// DialErrors fail connection to listed hostnames
	DialErrors map[string]error
}

func NewFakeRemotes(reactions map[string]CommandReaction) *FakeRemotes {
	return &FakeRemotes{execs: map[string]*FakeExecutor{}, Reactions: reactions, DialErrors: map[string]error{}}
}

// Get returns executor of hostname creating it on first use.
func (r *FakeRemotes) Get(hostname string) *FakeExecutor {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec, ok := r.execs[hostname]
	if !ok {
		exec = NewFakeExecutor(r.Reactions)
		r.execs[hostname] = exec
	}
	return exec
}
