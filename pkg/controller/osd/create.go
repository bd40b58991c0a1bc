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


package osd

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/controller/pool"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/taskflow"
)

const (
	activeAttempts = 5
	activeTimeout  = 300 * time.Second
	waitUpAttempts = 7

	bootstrapOsdEntity = "client.bootstrap-osd"

	osdIDKey = "osd_id"
)

var (
	activeRetryInterval = 2 * time.Second
	waitUpInterval      = time.Second
)

type osdTasks struct {
	c  *controller.Context
	id int64
}

func (o *osdTasks) graph(ctx context.Context) (*rpc.OsdGraph, controller.Agent, error) {
	graph, err := LoadGraph(ctx, o.c.DB, o.id)
	if err != nil {
		return nil, nil, err
	}
	agent, err := o.c.Agents.ForNode(ctx, &graph.Node)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to get agent of node '%s'", graph.Node.Hostname)
	}
	return graph, agent, nil
}

func (o *osdTasks) configSet(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	graph, agent, err := o.graph(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := db.GetCephConfigs(ctx, o.c.DB, graph.Osd.ClusterID)
	if err != nil {
		return nil, err
	}
	if _, err := agent.CephConfWrite(ctx, ceph.RenderConfig(configGroups(groups))); err != nil {
		return nil, errors.Wrapf(err, "failed to write ceph config on node '%s'", graph.Node.Hostname)
	}
	if !o.c.Config.EnableCephx {
		return nil, nil
	}
	keyringPath := dspcommon.ClusterAdminKeyringFile(graph.Osd.ClusterID)
	adminKeyring, err := o.c.Exec.ReadFile(ctx, keyringPath)
	if err != nil {
		return nil, dspcommon.WrapError(dspcommon.ErrNotFound, err, "admin keyring '%s' is not available", keyringPath)
	}
	if _, err := agent.CephKeyringWrite(ctx, dspcommon.CephAdminKeyringFile, string(adminKeyring)); err != nil {
		return nil, errors.Wrapf(err, "failed to write admin keyring on node '%s'", graph.Node.Hostname)
	}
	var bootstrapKeyring string
	err = o.c.Ceph.With(ctx, graph.Osd.ClusterID, func(client *ceph.Client) error {
		bootstrapKeyring, err = client.AuthGetOrCreate(ctx, bootstrapOsdEntity, "mon", "allow profile bootstrap-osd")
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get bootstrap-osd keyring")
	}
	if _, err := agent.CephKeyringWrite(ctx, dspcommon.CephBootstrapOsdKey, bootstrapKeyring); err != nil {
		return nil, errors.Wrapf(err, "failed to write bootstrap-osd keyring on node '%s'", graph.Node.Hostname)
	}
	return nil, nil
}

func (o *osdTasks) prepare(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	graph, agent, err := o.graph(ctx)
	if err != nil {
		return nil, err
	}
	result, err := agent.CephPrepareDisk(ctx, *graph)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to prepare disk '%s'", graph.Disk.Name)
	}
	if result.Fsid == "" {
		return nil, dspcommon.NewError(dspcommon.ErrCeph, "prepare of disk '%s' returned no fsid", graph.Disk.Name)
	}
	updated, err := o.c.DB.Osds().CompareAndUpdate(ctx, o.id,
		func(osd *objects.Osd) bool { return osd.Status == objects.OsdStatusCreating },
		func(osd *objects.Osd) { osd.Fsid = objects.StringPtr(result.Fsid) })
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "osd on disk '%s' left creating status", graph.Disk.Name)
	}
	return result.Fsid, nil
}

func (o *osdTasks) prepareRevert(fc *taskflow.FlowContext, _ any, _ []error) error {
	ctx := fc.Context()
	graph, agent, err := o.graph(ctx)
	if err != nil {
		return err
	}
	if err := agent.CephOsdDestroy(ctx, *graph); err != nil {
		return errors.Wrapf(err, "failed to zap disk '%s'", graph.Disk.Name)
	}
	_, err = o.c.DB.Osds().CompareAndUpdate(ctx, o.id, nil, func(osd *objects.Osd) { osd.Fsid = nil })
	return err
}

func (o *osdTasks) active(fc *taskflow.FlowContext, store *taskflow.Store) (any, error) {
	ctx := fc.Context()
	graph, agent, err := o.graph(ctx)
	if err != nil {
		return nil, err
	}
	result, err := agent.CephActiveDisk(ctx, *graph)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to activate disk '%s'", graph.Disk.Name)
	}
	if result.OsdID == "" {
		return nil, dspcommon.NewError(dspcommon.ErrCeph, "activation of disk '%s' returned no osd id", graph.Disk.Name)
	}
	fc.Log.Info().Msgf("disk '%s' activated as osd.%s", graph.Disk.Name, result.OsdID)
	store.Set(osdIDKey, result.OsdID)
	return result.OsdID, nil
}

func (o *osdTasks) activeRevert(fc *taskflow.FlowContext, result any, _ []error) error {
	osdID, ok := result.(string)
	if !ok || osdID == "" {
		return nil
	}
	osd, err := o.c.DB.Osds().Get(fc.Context(), o.id)
	if err != nil {
		return err
	}
	return o.c.Ceph.With(fc.Context(), osd.ClusterID, func(client *ceph.Client) error {
		return client.OsdRemoveFromCluster(fc.Context(), osdID)
	})
}

func (o *osdTasks) waitUp(fc *taskflow.FlowContext, store *taskflow.Store) (any, error) {
	ctx := fc.Context()
	osdID, err := taskflow.GetAs[string](store, osdIDKey)
	if err != nil {
		return nil, err
	}
	osd, err := o.c.DB.Osds().Get(ctx, o.id)
	if err != nil {
		return nil, err
	}
	var size int64
	err = o.c.Ceph.With(ctx, osd.ClusterID, func(client *ceph.Client) error {
		tree, err := client.OsdTree(ctx)
		if err != nil {
			return err
		}
		up := false
		for _, node := range tree.Osds() {
			if node.Name == "osd."+osdID {
				up = node.Status == "up"
				break
			}
		}
		if !up {
			return dspcommon.NewError(dspcommon.ErrOsdStatusNotUp, "osd.%s is not up", osdID)
		}
		size, err = client.OsdSize(ctx, osdID)
		return err
	})
	if err != nil {
		return nil, err
	}
	updated, err := o.c.DB.Osds().CompareAndUpdate(ctx, o.id,
		func(osd *objects.Osd) bool { return osd.Status == objects.OsdStatusCreating },
		func(osd *objects.Osd) {
			osd.OsdID = objects.StringPtr(osdID)
			osd.Size = size
			osd.Status = objects.OsdStatusActive
			osd.LastStatusChange = dspcommon.GetCurrentTime()
		})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "osd.%s left creating status", osdID)
	}
	return nil, nil
}

func CreateFlowName(graph *rpc.OsdGraph) string {
	return flowName("osd_create", graph)
}

// CreateFlow pushes config, prepares and activates disk of osd and waits
// until osd is up in the cluster.
func CreateFlow(c *controller.Context, graph *rpc.OsdGraph) *taskflow.Flow {
	o := &osdTasks{c: c, id: graph.Osd.ID}
	return taskflow.Linear(CreateFlowName(graph),
		taskflow.NewTask("OsdConfigSet", o.configSet, nil),
		taskflow.NewTask("OsdPrepare", o.prepare, o.prepareRevert),
		taskflow.WithRetry(taskflow.NewTask("OsdActive", o.active, o.activeRevert), activeAttempts, activeRetryInterval, activeTimeout),
		taskflow.WithRetry(taskflow.NewTask("OsdWaitUp", o.waitUp, nil), waitUpAttempts, waitUpInterval, 0),
	)
}

// Create runs create flow for osd row in creating status. Failed osd is
// marked error and OSD_ERROR alert is emitted.
func Create(ctx context.Context, c *controller.Context, id int64) error {
	graph, err := LoadGraph(ctx, c.DB, id)
	if err != nil {
		return err
	}
	log := dspcommon.ObjectLogger(c.Log, "osd", graph.Node.Hostname+"/"+graph.Disk.Name)
	if graph.Osd.Status != objects.OsdStatusCreating {
		return dspcommon.NewError(dspcommon.ErrInvalid, "osd on disk '%s' is in '%s' status, expected '%s'",
			graph.Disk.Name, graph.Osd.Status, objects.OsdStatusCreating)
	}
	name := CreateFlowName(graph)
	flow := c.Flows.NewTaskflow(graph.Osd.ClusterID, name, CreateFlow(c, graph)).
		RequireLock(name, false).
		WithArgs(map[string]any{"osd_row_id": id, "hostname": graph.Node.Hostname, "disk": graph.Disk.Name})
	if _, err := flow.Run(ctx); err != nil {
		if dspcommon.IsLockAcquireFailed(err) {
			return err
		}
		ctx = context.WithoutCancel(ctx)
		if _, casErr := db.OsdStatusCAS(ctx, c.DB, id, []objects.OsdStatus{objects.OsdStatusCreating}, objects.OsdStatusError); casErr != nil {
			log.Error().Err(casErr).Msg("failed to mark osd as error")
		}
		c.Alert(ctx, objects.Alert{
			ClusterID:    graph.Osd.ClusterID,
			ResourceType: objects.ResourceOsd,
			ResourceID:   fmt.Sprint(id),
			ResourceName: graph.Disk.Name,
			Level:        objects.AlertError,
			Category:     objects.AlertOsdError,
			Message:      fmt.Sprintf("osd creation on %s:%s failed", graph.Node.Hostname, graph.Disk.Name),
		})
		return err
	}
	log.Info().Msg("osd is active")
	if graph.Osd.PoolName == "" {
		return nil
	}
	if err := pool.OsdsChanged(ctx, c, graph.Osd.PoolName, graph.Osd.ClusterID); err != nil {
		return errors.Wrapf(err, "osd is active, but pool '%s' was not updated", graph.Osd.PoolName)
	}
	return nil
}
