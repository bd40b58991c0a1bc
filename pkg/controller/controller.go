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


package controller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
	"github.com/Mirantis/dspace/pkg/coordinator"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/state"
	"github.com/Mirantis/dspace/pkg/taskflow"
	"github.com/Mirantis/dspace/pkg/workers"
)

// Agent is the part of node agent api used by admin controllers.
type Agent interface {
	CephConfWrite(ctx context.Context, content string) (bool, error)
	CephKeyringWrite(ctx context.Context, path, content string) (bool, error)
	CephMonRemove(ctx context.Context, lastMon bool) error
	CephOsdPackageUninstall(ctx context.Context) error
	CephPackageUninstall(ctx context.Context) error
	CephOsdDestroy(ctx context.Context, osd rpc.OsdGraph) error
	CephPrepareDisk(ctx context.Context, osd rpc.OsdGraph) (rpc.OsdResult, error)
	CephActiveDisk(ctx context.Context, osd rpc.OsdGraph) (rpc.OsdResult, error)
	CephOsdServiceStatus(ctx context.Context, osdIDs []string) (rpc.OsdServiceStatus, error)
	CephSlowRequest(ctx context.Context, osdIDs []string) ([]rpc.OsdSlowRequests, error)
	DiskPartitionsRemove(ctx context.Context, name string) error
	PrometheusTargetAdd(ctx context.Context, target rpc.PrometheusTarget) error
	PrometheusTargetRemove(ctx context.Context, target rpc.PrometheusTarget) error
	ServiceRestart(ctx context.Context, name string) error
	ServiceStop(ctx context.Context, name string) error
	CheckDsaStatus(ctx context.Context) (rpc.AgentStatus, error)
}

type Agents interface {
	ForNode(ctx context.Context, node *objects.Node) (Agent, error)
}

type AlertEmitter interface {
	Emit(ctx context.Context, alert objects.Alert) error
}

var _ Agent = &rpc.AgentClient{}

type resolverAgents struct {
	resolver *rpc.AgentResolver
}

// NewAgents exposes agents registered in rpc service table.
func NewAgents(resolver *rpc.AgentResolver) Agents {
	return &resolverAgents{resolver: resolver}
}

func (a *resolverAgents) ForNode(ctx context.Context, node *objects.Node) (Agent, error) {
	client, err := a.resolver.ForNode(ctx, node)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Context carries admin dependencies shared by every controller.
type Context struct {
	Log    zerolog.Logger
	Config *config.Config
	DB     db.Store
	Coord  coordinator.Coordinator
	Flows  *taskflow.Engine
	Agents Agents
	Ceph   *CephConnector
	Alerts AlertEmitter
	// Workers runs fire-and-forget work like osd restarts
	Workers workers.Submitter
	State   *state.State
	// Exec runs commands on admin host
	Exec executor.Executor
	// Remotes run commands on nodes which have no agent yet
	Remotes Remotes
}

// Alert emits alert and logs failure, alerts never fail caller.
func (c *Context) Alert(ctx context.Context, alert objects.Alert) {
	if c.Alerts == nil {
		return
	}
	if err := c.Alerts.Emit(ctx, alert); err != nil {
		c.Log.Error().Err(err).Msgf("failed to emit %s alert for %s '%s'", alert.Category, alert.ResourceType, alert.ResourceName)
	}
}

// CephConnector opens ceph clients for clusters using admin owned config files.
type CephConnector struct {
	log     zerolog.Logger
	exec    executor.Executor
	db      db.Store
	cephx   bool
	timeout time.Duration
}

func NewCephConnector(log zerolog.Logger, exec executor.Executor, store db.Store, cephx bool, timeout time.Duration) *CephConnector {
	return &CephConnector{log: log, exec: exec, db: store, cephx: cephx, timeout: timeout}
}

func (c *CephConnector) ConnectionConfig(ctx context.Context, clusterID string) (ceph.ConnectionConfig, error) {
	monHost, err := db.GetCephConfigValue(ctx, c.db, clusterID, "global", "mon_host")
	if err != nil {
		return ceph.ConnectionConfig{}, err
	}
	if monHost == "" {
		return ceph.ConnectionConfig{}, dspcommon.NewError(dspcommon.ErrNotReady, "cluster '%s' has no mon_host configured", clusterID)
	}
	cfg := ceph.ConnectionConfig{
		MonHost:  monHost,
		ConfFile: dspcommon.ClusterConfigFile(clusterID),
		Timeout:  c.timeout,
	}
	if c.cephx {
		cfg.Keyring = dspcommon.ClusterAdminKeyringFile(clusterID)
	}
	return cfg, nil
}

func (c *CephConnector) Open(ctx context.Context, clusterID string) (*ceph.Client, error) {
	cfg, err := c.ConnectionConfig(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	return ceph.Open(dspcommon.ObjectLogger(c.log, "cluster", clusterID), c.exec, cfg)
}

// With runs fn with scoped ceph client of cluster.
func (c *CephConnector) With(ctx context.Context, clusterID string, fn func(*ceph.Client) error) error {
	cfg, err := c.ConnectionConfig(ctx, clusterID)
	if err != nil {
		return err
	}
	return ceph.WithClient(dspcommon.ObjectLogger(c.log, "cluster", clusterID), c.exec, cfg, fn)
}

// Executor returns executor ceph commands run with, used to read admin keyrings.
func (c *CephConnector) Executor() executor.Executor {
	return c.exec
}
