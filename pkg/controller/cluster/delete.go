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

package cluster

import (
	"context"

	"github.com/pkg/errors"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/controller/node"
	"github.com/Mirantis/dspace/pkg/controller/osd"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/taskflow"
)

type clusterTasks struct {
	c         *controller.Context
	clusterID string
}

type nodeTask struct {
	*clusterTasks
	node *objects.Node
}

func (n *nodeTask) agent(fc *taskflow.FlowContext) (controller.Agent, error) {
	agent, err := n.c.Agents.ForNode(fc.Context(), n.node)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reach agent of node '%s'", n.node.Hostname)
	}
	return agent, nil
}

func (n *nodeTask) osdPackageUninstall(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	agent, err := n.agent(fc)
	if err != nil {
		return nil, err
	}
	return nil, agent.CephOsdPackageUninstall(fc.Context())
}

func (n *nodeTask) packageUninstall(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	agent, err := n.agent(fc)
	if err != nil {
		return nil, err
	}
	return nil, agent.CephPackageUninstall(fc.Context())
}

func monRemove(n *nodeTask, lastMon bool) taskflow.ExecuteFunc {
	return func(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
		agent, err := n.agent(fc)
		if err != nil {
			return nil, err
		}
		fc.Log.Info().Msgf("removing monitor of node '%s', last: %t", n.node.Hostname, lastMon)
		return nil, agent.CephMonRemove(fc.Context(), lastMon)
	}
}

// dbClean deletes every row of cluster except cluster itself and its
// taskflows.
func (t *clusterTasks) dbClean(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	if err := db.DeleteClusterRows(ctx, t.c.DB, t.clusterID); err != nil {
		return nil, errors.Wrapf(err, "failed to clean db of cluster '%s'", t.clusterID)
	}
	if t.c.State != nil {
		t.c.State.IgnoredOsds.Remove(t.clusterID, t.c.State.IgnoredOsds.List(t.clusterID)...)
		t.c.State.SlowRequests.Delete(t.clusterID)
	}
	return nil, nil
}

func DeleteFlowName(clusterID string) string {
	return "cluster_delete_" + clusterID
}

// DeleteFlow tears cluster down. With cleanCeph osds, ceph packages and
// monitors are removed first, dspace services are uninstalled from all
// nodes afterwards and db is cleaned last.
func DeleteFlow(c *controller.Context, clusterID string, nodes []*objects.Node, osds []*rpc.OsdGraph, cleanCeph bool) *taskflow.Flow {
	t := &clusterTasks{c: c, clusterID: clusterID}
	flow := taskflow.Linear(DeleteFlowName(clusterID))
	if cleanCeph {
		osdFlow := taskflow.Parallel("OsdUninstall")
		for _, graph := range osds {
			osdFlow.Add(osd.DestroyFlow(c, graph))
		}
		storageFlow := taskflow.Parallel("StoragePackageUninstall")
		monFlow := taskflow.Linear("MonUninstall")
		commonFlow := taskflow.Parallel("CephPackageUninstall")
		monitors := []*nodeTask{}
		for _, n := range nodes {
			task := &nodeTask{clusterTasks: t, node: n}
			if n.Roles.Storage {
				storageFlow.Add(taskflow.NewTask("CephOsdPackageUninstall", task.osdPackageUninstall, nil))
			}
			if n.Roles.Monitor {
				monitors = append(monitors, task)
			}
			commonFlow.Add(taskflow.NewTask("CephPackageUninstall", task.packageUninstall, nil))
		}
		for i, task := range monitors {
			monFlow.Add(taskflow.NewTask("CephMonRemove", monRemove(task, i == len(monitors)-1), nil))
		}
		flow.Add(osdFlow, storageFlow, monFlow, commonFlow)
	}
	return flow.Add(
		node.NewInstaller(c).UninstallFlow("ServiceUninstall", nodes),
		taskflow.NewTask("DbClean", t.dbClean, nil),
	)
}

// Delete uninstalls cluster from all of its nodes and removes cluster row.
// Failed flow leaves cluster and its nodes in error.
func Delete(ctx context.Context, c *controller.Context, clusterID string, cleanCeph bool) error {
	cluster, err := db.GetClusterByUUID(ctx, c.DB, clusterID)
	if err != nil {
		return err
	}
	from := cluster.Status
	updated, err := c.DB.Clusters().CompareAndUpdate(ctx, cluster.ID,
		func(cl *objects.Cluster) bool { return cl.Status != objects.ClusterStatusDeleting },
		func(cl *objects.Cluster) { cl.Status = objects.ClusterStatusDeleting })
	if err != nil {
		return err
	}
	if !updated {
		return dspcommon.NewError(dspcommon.ErrInvalid, "cluster '%s' is busy in '%s' status", clusterID, from)
	}
	log := dspcommon.ObjectLogger(c.Log, "cluster", clusterID)

	nodes, err := db.ListNodes(ctx, c.DB, clusterID)
	if err != nil {
		return markError(ctx, c, cluster.ID, nil, err)
	}
	for _, n := range nodes {
		if _, err := c.DB.Nodes().CompareAndUpdate(ctx, n.ID, nil, func(n *objects.Node) { n.Status = objects.NodeStatusDeleting }); err != nil {
			return markError(ctx, c, cluster.ID, nodes, err)
		}
	}
	graphs := []*rpc.OsdGraph{}
	if cleanCeph {
		osds, err := db.ListOsds(ctx, c.DB, clusterID)
		if err != nil {
			return markError(ctx, c, cluster.ID, nodes, err)
		}
		for _, o := range osds {
			if _, err := c.DB.Osds().CompareAndUpdate(ctx, o.ID, nil, func(o *objects.Osd) { o.Status = objects.OsdStatusDeleting }); err != nil {
				return markError(ctx, c, cluster.ID, nodes, err)
			}
			graph, err := osd.LoadGraph(ctx, c.DB, o.ID)
			if err != nil {
				return markError(ctx, c, cluster.ID, nodes, err)
			}
			graphs = append(graphs, graph)
		}
	}

	name := DeleteFlowName(clusterID)
	flow := c.Flows.NewTaskflow(clusterID, name, DeleteFlow(c, clusterID, nodes, graphs, cleanCeph)).
		RequireLock(name, false).
		WithArgs(map[string]any{"cluster_id": clusterID, "clean_ceph": cleanCeph})
	if _, err := flow.Run(ctx); err != nil {
		return markError(ctx, c, cluster.ID, nodes, err)
	}
	if err := c.DB.Clusters().Delete(ctx, cluster.ID); err != nil {
		return err
	}
	if c.State != nil {
		if err := c.State.Clusters.Refresh(ctx, c.DB); err != nil {
			log.Warn().Err(err).Msg("failed to refresh cluster cache")
		}
	}
	log.Info().Msgf("cluster is deleted, %d nodes and %d osds uninstalled", len(nodes), len(graphs))
	return nil
}

func markError(ctx context.Context, c *controller.Context, id int64, nodes []*objects.Node, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if _, err := c.DB.Clusters().CompareAndUpdate(ctx, id, nil, func(cl *objects.Cluster) { cl.Status = objects.ClusterStatusError }); err != nil {
		c.Log.Error().Err(err).Msg("failed to mark cluster as error")
	}
	for _, n := range nodes {
		if _, err := db.NodeStatusCAS(ctx, c.DB, n.ID, objects.NodeStatusDeleting, objects.NodeStatusError); err != nil && !dspcommon.IsNotFound(err) {
			c.Log.Error().Err(err).Msgf("failed to mark node '%s' as error", n.Hostname)
		}
	}
	return cause
}
