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


package fakeexec

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
)

// CommandReaction describes fake response for a command line prefix.
type CommandReaction struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err is returned as is, e.g. timeout or connection errors
	Err error
	// Outputs are returned one by one for repeated calls, last one sticks
	Outputs []CommandReaction
}

// FakeExecutor is in-memory executor.Executor which answers commands with
// reactions registered by command line prefix, the longest prefix wins.
type FakeExecutor struct {
	mu        sync.Mutex
	reactions map[string]*CommandReaction
	served    map[string]int
	commands  []string
	Files     map[string][]byte
	Modes     map[string]executor.FileOptions
	// WriteErrors fails WriteFile for listed paths
	WriteErrors map[string]error
	Closed      bool
}

var _ executor.Executor = &FakeExecutor{}

func NewFakeExecutor(reactions map[string]CommandReaction) *FakeExecutor {
	e := &FakeExecutor{
		reactions:   map[string]*CommandReaction{},
		served:      map[string]int{},
		Files:       map[string][]byte{},
		Modes:       map[string]executor.FileOptions{},
		WriteErrors: map[string]error{},
	}
	for prefix, reaction := range reactions {
		e.AddReaction(prefix, reaction)
	}
	return e
}

func (e *FakeExecutor) AddReaction(prefix string, reaction CommandReaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := reaction
	e.reactions[prefix] = &r
	delete(e.served, prefix)
}

// Commands returns executed command lines in order.
func (e *FakeExecutor) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.commands...)
}

// CommandsWithPrefix returns executed command lines starting with prefix.
func (e *FakeExecutor) CommandsWithPrefix(prefix string) []string {
	found := []string{}
	for _, cmd := range e.Commands() {
		if strings.HasPrefix(cmd, prefix) {
			found = append(found, cmd)
		}
	}
	return found
}

func (e *FakeExecutor) ResetCommands() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = nil
}

func (e *FakeExecutor) findReaction(line string) (string, *CommandReaction) {
	prefixes := make([]string, 0, len(e.reactions))
	for prefix := range e.reactions {
		if strings.HasPrefix(line, prefix) {
			prefixes = append(prefixes, prefix)
		}
	}
	if len(prefixes) == 0 {
		return "", nil
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return prefixes[0], e.reactions[prefixes[0]]
}

func (e *FakeExecutor) RunCommand(ctx context.Context, argv []string, _ time.Duration) (*executor.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, dspcommon.WrapError(dspcommon.ErrCanceled, err, "command canceled")
	}
	line := strings.Join(argv, " ")
	e.mu.Lock()
	e.commands = append(e.commands, line)
	prefix, reaction := e.findReaction(line)
	if reaction != nil && len(reaction.Outputs) > 0 {
		idx := e.served[prefix]
		if idx >= len(reaction.Outputs) {
			idx = len(reaction.Outputs) - 1
		}
		e.served[prefix]++
		next := reaction.Outputs[idx]
		reaction = &next
	}
	e.mu.Unlock()
	if reaction == nil {
		result := &executor.CommandResult{ExitCode: 127, Stderr: fmt.Sprintf("no fake reaction for '%s'", line)}
		return result, &dspcommon.CommandError{Command: line, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	if reaction.Err != nil {
		return nil, reaction.Err
	}
	result := &executor.CommandResult{ExitCode: reaction.ExitCode, Stdout: reaction.Stdout, Stderr: reaction.Stderr}
	if result.ExitCode != 0 {
		return result, &dspcommon.CommandError{Command: line, ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
	}
	return result, nil
}

func (e *FakeExecutor) WriteFile(_ context.Context, path string, content []byte, opts executor.FileOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.WriteErrors[path]; ok {
		return err
	}
	e.Files[path] = append([]byte{}, content...)
	e.Modes[path] = opts
	return nil
}

func (e *FakeExecutor) ReadFile(_ context.Context, path string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	content, ok := e.Files[path]
	if !ok {
		return nil, dspcommon.NewError(dspcommon.ErrNotFound, "file '%s' not found", path)
	}
	return append([]byte{}, content...), nil
}

func (e *FakeExecutor) PathExists(_ context.Context, path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for file := range e.Files {
		if file == path || strings.HasPrefix(file, strings.TrimSuffix(path, "/")+"/") {
			return true, nil
		}
	}
	return false, nil
}

func (e *FakeExecutor) RemovePath(_ context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for file := range e.Files {
		if file == path || strings.HasPrefix(file, strings.TrimSuffix(path, "/")+"/") {
			delete(e.Files, file)
		}
	}
	return nil
}

func (e *FakeExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}

