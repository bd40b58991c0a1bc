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


package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

const statusStarting = "starting"

// Options are node local settings of agent.
type Options struct {
	ClusterID string
	Hostname  string
	IP        string
	Port      int
	Version   string
	// filesystem rebase of chrooted agent
	HostPrefix string
	// default timeout of ceph and shell commands
	CommandTimeout        time.Duration
	ControlSocket         string
	PrometheusTargetsFile string
	TaskWorkers           int
	ShutdownGracePeriod   time.Duration
}

// Agent composes node feature modules and exposes them as rpc methods.
type Agent struct {
	log  zerolog.Logger
	opts Options

	ceph       cephModule
	disk       diskModule
	network    networkModule
	bgw        bgwModule
	prometheus prometheusModule
	service    serviceModule

	mu   sync.RWMutex
	node *objects.Node
}

func New(log zerolog.Logger, exec executor.Executor, opts Options) *Agent {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = dspcommon.DefaultCommandTimeout
	}
	if opts.ControlSocket == "" {
		opts.ControlSocket = dspcommon.DefaultControlSocket
	}
	return &Agent{
		log:        log,
		opts:       opts,
		ceph:       cephModule{log: log, exec: exec, hostname: opts.Hostname, ip: opts.IP, timeout: opts.CommandTimeout},
		disk:       diskModule{log: log, exec: exec, timeout: opts.CommandTimeout},
		network:    networkModule{log: log, exec: exec, hostname: opts.Hostname, timeout: opts.CommandTimeout},
		bgw:        bgwModule{log: log, gateway: NewTargetcliGateway(log, exec, opts.CommandTimeout)},
		prometheus: prometheusModule{log: log, exec: exec, path: opts.PrometheusTargetsFile, mu: &sync.Mutex{}},
		service:    serviceModule{log: log, exec: exec, hostPrefix: opts.HostPrefix, timeout: opts.CommandTimeout},
	}
}

// WithGateway replaces block gateway backend.
func (a *Agent) WithGateway(gateway BlockGateway) *Agent {
	a.bgw.gateway = gateway
	return a
}

// Node returns node entity once admin accepted the agent.
func (a *Agent) Node() *objects.Node {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.node
}

func (a *Agent) setNode(node *objects.Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.node = node
}

// Status reports agent readiness, agent is ready when its node is known.
func (a *Agent) Status(_ context.Context, _ rpc.Empty) (rpc.AgentStatus, error) {
	status := rpc.AgentStatus{Status: statusStarting, Hostname: a.opts.Hostname, Version: a.opts.Version}
	if a.Node() != nil {
		status.Status = dspcommon.AgentStatusReady
	}
	return status, nil
}

// Router builds agent method table.
func (a *Agent) Router() *rpc.Router {
	r := rpc.NewRouter(rpc.AgentService)
	a.ceph.register(r)
	a.disk.register(r)
	a.network.register(r)
	a.bgw.register(r)
	a.prometheus.register(r)
	a.service.register(r)
	r.Register(rpc.MethodCheckDsaStatus, rpc.Typed(a.Status))
	return r
}
