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


package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Mirantis/dspace/pkg/alert"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/coordinator"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/session"
	"github.com/Mirantis/dspace/pkg/state"
	"github.com/Mirantis/dspace/pkg/taskflow"
	"github.com/Mirantis/dspace/pkg/workers"
)

// Options are process level settings of admin service.
type Options struct {
	// ssh private key used to reach nodes without agent
	SSHKeyFile string
	Version    string
}

// Admin serves agent reports and runs cluster reconcilers.
type Admin struct {
	log     zerolog.Logger
	c       *controller.Context
	hub     *alert.Hub
	version string

	// owned by Build, released on shutdown
	pool    *workers.Pool
	clients *rpc.ClientManager

	listeners *listeners
}

// New wraps prepared controller context. Taskflow failures are reported
// through context alerts.
func New(log zerolog.Logger, c *controller.Context, hub *alert.Hub) *Admin {
	a := &Admin{log: log, c: c, hub: hub}
	if c.Flows != nil {
		c.Flows.SetFailureHandler(a.taskflowFailed)
	}
	return a
}

// Build creates admin with every collaborator configured from cfg.
func Build(log zerolog.Logger, cfg *config.Config, store db.Store, opts Options) (*Admin, error) {
	coord, err := coordinator.New(log, cfg.Session.CoordinationURL)
	if err != nil {
		return nil, err
	}
	sessions, err := session.New(log, cfg.Session)
	if err != nil {
		return nil, err
	}
	remotes, err := controller.NewSSHRemotes(log, cfg.Install, opts.SSHKeyFile)
	if err != nil {
		return nil, err
	}
	exec := executor.NewLocalExecutor(log, executor.LocalOptions{HostPrefix: cfg.HostPrefix})
	clients := rpc.NewClientManager(log, cfg.RPC.CallTimeout)
	pool := workers.NewPool(log, "admin", cfg.TaskWorkers)
	st := state.New()
	hub := alert.NewHub(log, sessions)

	c := &controller.Context{
		Log:     log,
		Config:  cfg,
		DB:      store,
		Coord:   coord,
		Flows:   taskflow.NewEngine(log, store, coord, st.Tasks),
		Agents:  controller.NewAgents(rpc.NewAgentResolver(store, clients)),
		Ceph:    controller.NewCephConnector(log, exec, store, cfg.EnableCephx, cfg.CephCommandTimeout),
		Alerts:  alert.NewBridge(log, store, hub),
		Workers: pool,
		State:   st,
		Exec:    exec,
		Remotes: remotes,
	}
	a := New(log, c, hub)
	a.version = opts.Version
	a.pool = pool
	a.clients = clients
	return a, nil
}

// Context exposes shared controller context.
func (a *Admin) Context() *controller.Context {
	return a.c
}

func (a *Admin) taskflowFailed(ctx context.Context, row *objects.Taskflow) {
	a.c.Alert(ctx, objects.Alert{
		ClusterID:    row.ClusterID,
		ResourceType: objects.ResourceCluster,
		ResourceID:   row.ClusterID,
		ResourceName: row.Name,
		Level:        objects.AlertError,
		Category:     objects.AlertTaskflowFailed,
		Message:      fmt.Sprintf("taskflow '%s' failed: %s", row.Name, row.Reason),
	})
}

// registerEndpoint publishes admin endpoint for every known cluster,
// agents resolve admin through these rows.
func (a *Admin) registerEndpoint(ctx context.Context, ip string, port int) error {
	for _, cluster := range a.c.State.Clusters.List() {
		_, err := rpc.RegisterService(ctx, a.c.DB, objects.RPCService{
			ServiceName: dspcommon.AdminServiceName,
			Hostname:    dspcommon.AdminServiceName,
			ClusterID:   cluster.UUID,
			Endpoint:    objects.Endpoint{IP: ip, Port: port},
		})
		if err != nil {
			return errors.Wrapf(err, "failed to register admin of cluster '%s'", cluster.UUID)
		}
	}
	return nil
}

func (a *Admin) release(grace time.Duration) {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.pool != nil {
		a.pool.Shutdown(grace)
	}
	if a.clients != nil {
		if err := a.clients.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close rpc clients")
		}
	}
	a.c.State.Teardown()
}
