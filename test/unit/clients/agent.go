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
	"context"
	"fmt"
	"strings"
	"sync"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/workers"
)

// FakeAgent records agent calls and answers with preset results.
type FakeAgent struct {
	mu     sync.Mutex
	calls  []string
	served map[string]int
	// Errors are returned one by one per method name, last one sticks
	Errors        map[string][]error
	PrepareResult rpc.OsdResult
	ActiveResult  rpc.OsdResult
	ServiceStatus rpc.OsdServiceStatus
	SlowRequests  []rpc.OsdSlowRequests
	// DsaStatuses are returned one by one, last one sticks
	DsaStatuses []rpc.AgentStatus
	// Files keeps content written through conf and keyring calls
	Files   map[string]string
	Targets map[string]rpc.PrometheusTarget
}

var _ controller.Agent = &FakeAgent{}

func NewFakeAgent() *FakeAgent {
	return &FakeAgent{
		served:      map[string]int{},
		Errors:      map[string][]error{},
		Files:       map[string]string{},
		Targets:     map[string]rpc.PrometheusTarget{},
		DsaStatuses: []rpc.AgentStatus{{Status: dspcommon.AgentStatusReady}},
	}
}

// SetError makes method fail with errs in order.
func (a *FakeAgent) SetError(method string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Errors[method] = errs
	delete(a.served, method)
}

func (a *FakeAgent) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.calls...)
}

// CallsOf returns calls of single method.
func (a *FakeAgent) CallsOf(method string) []string {
	found := []string{}
	for _, call := range a.Calls() {
		if call == method || strings.HasPrefix(call, method+" ") {
			found = append(found, call)
		}
	}
	return found
}

func (a *FakeAgent) record(method string, args ...any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	call := method
	for _, arg := range args {
		call += " " + fmt.Sprint(arg)
	}
	a.calls = append(a.calls, call)
	errs := a.Errors[method]
	if len(errs) == 0 {
		return nil
	}
	idx := a.served[method]
	if idx >= len(errs) {
		idx = len(errs) - 1
	}
	a.served[method]++
	return errs[idx]
}

func (a *FakeAgent) write(path, content string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	changed := a.Files[path] != content
	a.Files[path] = content
	return changed
}

func (a *FakeAgent) CephConfWrite(_ context.Context, content string) (bool, error) {
	if err := a.record(rpc.MethodCephConfWrite); err != nil {
		return false, err
	}
	return a.write(dspcommon.CephConfigFile, content), nil
}

func (a *FakeAgent) CephKeyringWrite(_ context.Context, path, content string) (bool, error) {
	if err := a.record(rpc.MethodCephKeyringWrite, path); err != nil {
		return false, err
	}
	return a.write(path, content), nil
}

func (a *FakeAgent) CephMonRemove(_ context.Context, lastMon bool) error {
	return a.record(rpc.MethodCephMonRemove, lastMon)
}

func (a *FakeAgent) CephOsdPackageUninstall(_ context.Context) error {
	return a.record(rpc.MethodCephOsdPackageUninstall)
}

func (a *FakeAgent) CephPackageUninstall(_ context.Context) error {
	return a.record(rpc.MethodCephPackageUninstall)
}

func osdRef(osd rpc.OsdGraph) string {
	if osd.Osd.OsdID != nil {
		return "osd." + *osd.Osd.OsdID
	}
	return osd.Disk.Name
}

func (a *FakeAgent) CephOsdDestroy(_ context.Context, osd rpc.OsdGraph) error {
	return a.record(rpc.MethodCephOsdDestroy, osdRef(osd))
}

func (a *FakeAgent) CephPrepareDisk(_ context.Context, osd rpc.OsdGraph) (rpc.OsdResult, error) {
	if err := a.record(rpc.MethodCephPrepareDisk, osdRef(osd)); err != nil {
		return rpc.OsdResult{}, err
	}
	return a.PrepareResult, nil
}

func (a *FakeAgent) CephActiveDisk(_ context.Context, osd rpc.OsdGraph) (rpc.OsdResult, error) {
	if err := a.record(rpc.MethodCephActiveDisk, osdRef(osd)); err != nil {
		return rpc.OsdResult{}, err
	}
	return a.ActiveResult, nil
}

func (a *FakeAgent) CephOsdServiceStatus(_ context.Context, osdIDs []string) (rpc.OsdServiceStatus, error) {
	if err := a.record(rpc.MethodCephOsdServiceStatus, strings.Join(osdIDs, ",")); err != nil {
		return nil, err
	}
	return a.ServiceStatus, nil
}

func (a *FakeAgent) CephSlowRequest(_ context.Context, osdIDs []string) ([]rpc.OsdSlowRequests, error) {
	if err := a.record(rpc.MethodCephSlowRequest, strings.Join(osdIDs, ",")); err != nil {
		return nil, err
	}
	return a.SlowRequests, nil
}

func (a *FakeAgent) DiskPartitionsRemove(_ context.Context, name string) error {
	return a.record(rpc.MethodDiskPartitionsRemove, name)
}

func targetKey(target rpc.PrometheusTarget) string {
	return fmt.Sprintf("%s:%d", target.IP, target.Port)
}

func (a *FakeAgent) PrometheusTargetAdd(_ context.Context, target rpc.PrometheusTarget) error {
	if err := a.record(rpc.MethodPrometheusTargetAdd, targetKey(target)); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Targets[targetKey(target)] = target
	return nil
}

func (a *FakeAgent) PrometheusTargetRemove(_ context.Context, target rpc.PrometheusTarget) error {
	if err := a.record(rpc.MethodPrometheusTargetRemove, targetKey(target)); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.Targets, targetKey(target))
	return nil
}

func (a *FakeAgent) ServiceRestart(_ context.Context, name string) error {
	return a.record(rpc.MethodServiceRestart, name)
}

func (a *FakeAgent) ServiceStop(_ context.Context, name string) error {
	return a.record(rpc.MethodServiceStop, name)
}

func (a *FakeAgent) CheckDsaStatus(_ context.Context) (rpc.AgentStatus, error) {
	if err := a.record(rpc.MethodCheckDsaStatus); err != nil {
		return rpc.AgentStatus{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.served["dsa_status"]
	if idx >= len(a.DsaStatuses) {
		idx = len(a.DsaStatuses) - 1
	}
	a.served["dsa_status"]++
	return a.DsaStatuses[idx], nil
}

// FakeAgents resolves agents by node hostname.
type FakeAgents struct {
	mu     sync.Mutex
	agents map[string]*FakeAgent
}

var _ controller.Agents = &FakeAgents{}

func NewFakeAgents(hostnames ...string) *FakeAgents {
	agents := &FakeAgents{agents: map[string]*FakeAgent{}}
	for _, hostname := range hostnames {
		agents.agents[hostname] = NewFakeAgent()
	}
	return agents
}

func (f *FakeAgents) Get(hostname string) *FakeAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[hostname]
}

func (f *FakeAgents) Set(hostname string, agent *FakeAgent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[hostname] = agent
}

func (f *FakeAgents) ForNode(_ context.Context, node *objects.Node) (controller.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	agent, ok := f.agents[node.Hostname]
	if !ok {
		return nil, dspcommon.NewError(dspcommon.ErrNotFound, "rpc service '%s' for node '%s' not found", dspcommon.AgentServiceName, node.Hostname)
	}
	return agent, nil
}

// FakeAlerts collects emitted alerts.
type FakeAlerts struct {
	mu     sync.Mutex
	alerts []objects.Alert
}

var _ controller.AlertEmitter = &FakeAlerts{}

func (f *FakeAlerts) Emit(_ context.Context, alert objects.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *FakeAlerts) Alerts() []objects.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]objects.Alert{}, f.alerts...)
}

// Categories returns categories of emitted alerts in order.
func (f *FakeAlerts) Categories() []objects.AlertCategory {
	categories := []objects.AlertCategory{}
	for _, alert := range f.Alerts() {
		categories = append(categories, alert.Category)
	}
	return categories
}

// FakeSubmitter runs submitted work synchronously unless Hold is set.
type FakeSubmitter struct {
	mu        sync.Mutex
	Hold      bool
	Submitted []string
	held      []workers.Work
	Errors    []error
}

var _ workers.Submitter = &FakeSubmitter{}

func (s *FakeSubmitter) Submit(name string, work workers.Work) error {
	s.mu.Lock()
	s.Submitted = append(s.Submitted, name)
	if s.Hold {
		s.held = append(s.held, work)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	if err := work(context.Background()); err != nil {
		s.mu.Lock()
		s.Errors = append(s.Errors, err)
		s.mu.Unlock()
	}
	return nil
}

// RunHeld runs work kept while Hold was set.
func (s *FakeSubmitter) RunHeld() {
	s.mu.Lock()
	held := s.held
	s.held = nil
	s.mu.Unlock()
	for _, work := range held {
		if err := work(context.Background()); err != nil {
			s.mu.Lock()
			s.Errors = append(s.Errors, err)
			s.mu.Unlock()
		}
	}
}
