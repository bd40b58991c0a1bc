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

// withOsdID runs fn for activated osd only, osd which never got id has
// nothing in the cluster to clean.
func (o *osdTasks) withOsdID(fc *taskflow.FlowContext, fn func(context.Context, *ceph.Client, string) error) (any, error) {
	ctx := fc.Context()
	osd, err := o.c.DB.Osds().Get(ctx, o.id)
	if err != nil {
		return nil, err
	}
	if osd.OsdID == nil {
		return nil, nil
	}
	return nil, o.c.Ceph.With(ctx, osd.ClusterID, func(client *ceph.Client) error {
		return fn(ctx, client, *osd.OsdID)
	})
}

func (o *osdTasks) markOut(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	return o.withOsdID(fc, func(ctx context.Context, client *ceph.Client, osdID string) error {
		if err := client.OsdOut(ctx, osdID); err != nil && !dspcommon.IsNotFound(err) {
			return errors.Wrapf(err, "failed to mark osd.%s out", osdID)
		}
		return nil
	})
}

func (o *osdTasks) stopService(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	graph, agent, err := o.graph(ctx)
	if err != nil {
		return nil, err
	}
	if graph.Osd.OsdID == nil {
		return nil, nil
	}
	service := fmt.Sprintf(dspcommon.CephOsdServiceTmpl, *graph.Osd.OsdID)
	if err := agent.ServiceStop(ctx, service); err != nil {
		return nil, errors.Wrapf(err, "failed to stop '%s' on node '%s'", service, graph.Node.Hostname)
	}
	return nil, nil
}

// zap unmounts osd data dir and wipes data disk on the agent.
func (o *osdTasks) zap(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	graph, agent, err := o.graph(ctx)
	if err != nil {
		return nil, err
	}
	if err := agent.CephOsdDestroy(ctx, *graph); err != nil {
		return nil, errors.Wrapf(err, "failed to destroy osd on disk '%s'", graph.Disk.Name)
	}
	_, err = o.c.DB.Osds().CompareAndUpdate(ctx, o.id, nil, func(osd *objects.Osd) { osd.Fsid = nil })
	return nil, err
}

func (o *osdTasks) removeFromCluster(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	return o.withOsdID(fc, func(ctx context.Context, client *ceph.Client, osdID string) error {
		return client.OsdRemoveFromCluster(ctx, osdID)
	})
}

func (o *osdTasks) clearPartitions(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	osd, err := o.c.DB.Osds().Get(ctx, o.id)
	if err != nil {
		return nil, err
	}
	for _, id := range linkedPartitions(osd) {
		if _, err := o.c.DB.Partitions().CompareAndUpdate(ctx, id, nil, func(p *objects.DiskPartition) {
			p.Status = objects.PartitionStatusAvailable
		}); err != nil && !dspcommon.IsNotFound(err) {
			return nil, errors.Wrapf(err, "failed to release partition %d", id)
		}
	}
	_, err = o.c.DB.Disks().CompareAndUpdate(ctx, osd.DiskID, nil, func(d *objects.Disk) { d.Status = objects.DiskStatusAvailable })
	if err != nil && !dspcommon.IsNotFound(err) {
		return nil, err
	}
	return nil, nil
}

func (o *osdTasks) deleteRow(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	return nil, o.c.DB.Osds().Delete(fc.Context(), o.id)
}

func DestroyFlowName(graph *rpc.OsdGraph) string {
	return flowName("osd_delete", graph)
}

// DestroyFlow removes osd from the cluster and wipes its disk. Osd row is
// deleted by the last task.
func DestroyFlow(c *controller.Context, graph *rpc.OsdGraph) *taskflow.Flow {
	o := &osdTasks{c: c, id: graph.Osd.ID}
	return taskflow.Linear(DestroyFlowName(graph),
		taskflow.NewTask("OsdMarkOut", o.markOut, nil),
		taskflow.NewTask("OsdStopService", o.stopService, nil),
		taskflow.NewTask("OsdZap", o.zap, nil),
		taskflow.NewTask("OsdRemoveFromCluster", o.removeFromCluster, nil),
		taskflow.NewTask("OsdClearPartitions", o.clearPartitions, nil),
		taskflow.NewTask("OsdDeleteRow", o.deleteRow, nil),
	)
}

// Destroy moves osd to deleting and runs destroy flow, failed osd is
// marked error.
func Destroy(ctx context.Context, c *controller.Context, id int64) error {
	graph, err := LoadGraph(ctx, c.DB, id)
	if err != nil {
		return err
	}
	log := dspcommon.ObjectLogger(c.Log, "osd", graph.Node.Hostname+"/"+graph.Disk.Name)
	updated, err := db.OsdStatusCAS(ctx, c.DB, id, []objects.OsdStatus{
		objects.OsdStatusActive, objects.OsdStatusWarning, objects.OsdStatusOffline,
		objects.OsdStatusRestarting, objects.OsdStatusError,
	}, objects.OsdStatusDeleting)
	if err != nil {
		return err
	}
	if !updated {
		return dspcommon.NewError(dspcommon.ErrInvalid, "osd on disk '%s' is busy", graph.Disk.Name)
	}
	name := DestroyFlowName(graph)
	flow := c.Flows.NewTaskflow(graph.Osd.ClusterID, name, DestroyFlow(c, graph)).
		WithArgs(map[string]any{"osd_row_id": id, "hostname": graph.Node.Hostname, "disk": graph.Disk.Name})
	if _, err := flow.Run(ctx); err != nil {
		if _, casErr := db.OsdStatusCAS(context.WithoutCancel(ctx), c.DB, id,
			[]objects.OsdStatus{objects.OsdStatusDeleting}, objects.OsdStatusError); casErr != nil {
			log.Error().Err(casErr).Msg("failed to mark osd as error")
		}
		return err
	}
	log.Info().Msg("osd destroyed")
	if graph.Osd.PoolName == "" || graph.Osd.OsdID == nil {
		return nil
	}
	if err := pool.OsdsChanged(ctx, c, graph.Osd.PoolName, graph.Osd.ClusterID); err != nil && !dspcommon.IsNotFound(err) {
		return errors.Wrapf(err, "osd destroyed, but pool '%s' was not updated", graph.Osd.PoolName)
	}
	return nil
}
