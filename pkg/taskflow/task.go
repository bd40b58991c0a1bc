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
	"sync"

	"github.com/rs/zerolog"
	"github.com/tevino/abool"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

// Node is element of flow graph, either Task or Flow.
type Node interface {
	Name() string
}

// Task is single persisted step of taskflow. Revert is called when
// enclosing flow fails after Execute succeeded and must be idempotent.
type Task interface {
	Node
	Execute(fc *FlowContext, store *Store) (any, error)
	Revert(fc *FlowContext, result any, failures []error) error
}

type ExecuteFunc func(fc *FlowContext, store *Store) (any, error)
type RevertFunc func(fc *FlowContext, result any, failures []error) error

type funcTask struct {
	name    string
	execute ExecuteFunc
	revert  RevertFunc
}

// NewTask builds task from functions, revert may be nil.
func NewTask(name string, execute ExecuteFunc, revert RevertFunc) Task {
	return &funcTask{name: name, execute: execute, revert: revert}
}

func (t *funcTask) Name() string {
	return t.name
}

func (t *funcTask) Execute(fc *FlowContext, store *Store) (any, error) {
	return t.execute(fc, store)
}

func (t *funcTask) Revert(fc *FlowContext, result any, failures []error) error {
	if t.revert == nil {
		return nil
	}
	return t.revert(fc, result, failures)
}

// Flow composes nodes sequentially or in parallel.
type Flow struct {
	name     string
	parallel bool
	children []Node
}

// Linear runs children in declared order, first failure stops the flow.
func Linear(name string, children ...Node) *Flow {
	return &Flow{name: name, children: children}
}

// Parallel runs children concurrently and waits for all of them.
func Parallel(name string, children ...Node) *Flow {
	return &Flow{name: name, parallel: true, children: children}
}

func (f *Flow) Name() string {
	return f.name
}

func (f *Flow) Add(children ...Node) *Flow {
	f.children = append(f.children, children...)
	return f
}

func (f *Flow) Children() []Node {
	return f.children
}

// FlowContext is shared by all tasks of one taskflow run.
type FlowContext struct {
	ctx       context.Context
	Log       zerolog.Logger
	ClusterID string
	FlowName  string
	FlowID    int64
	canceled  *abool.AtomicBool
}

// NewFlowContext is used to run tasks outside of engine, mostly in tests.
func NewFlowContext(ctx context.Context, log zerolog.Logger, clusterID string) *FlowContext {
	return &FlowContext{ctx: ctx, Log: log, ClusterID: clusterID, canceled: abool.New()}
}

func (fc *FlowContext) Context() context.Context {
	return fc.ctx
}

func (fc *FlowContext) withContext(ctx context.Context) *FlowContext {
	copied := *fc
	copied.ctx = ctx
	return &copied
}

func (fc *FlowContext) Canceled() bool {
	return fc.canceled.IsSet()
}

// CheckCanceled is called by tasks between sub-steps.
func (fc *FlowContext) CheckCanceled() error {
	if fc.canceled.IsSet() {
		return dspcommon.NewError(dspcommon.ErrCanceled, "taskflow '%s' is canceled", fc.FlowName)
	}
	return nil
}

// Store keeps values shared between tasks of one flow.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewStore(initial map[string]any) *Store {
	values := make(map[string]any, len(initial))
	for key, value := range initial {
		values[key] = value
	}
	return &Store{values: values}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// GetAs returns typed value, missing or mistyped value is programming error.
func GetAs[T any](s *Store, key string) (T, error) {
	var empty T
	value, ok := s.Get(key)
	if !ok {
		return empty, dspcommon.NewError(dspcommon.ErrProgramming, "value '%s' is not found in flow store", key)
	}
	typed, ok := value.(T)
	if !ok {
		return empty, dspcommon.NewError(dspcommon.ErrProgramming, "value '%s' has unexpected type %T", key, value)
	}
	return typed, nil
}
