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


package node

import (
	"context"
	"path"
	"path/filepath"

	"github.com/pkg/errors"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/taskflow"
)

func (n *nodeTasks) uninstallCephRepo(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	_, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	return nil, exec.RemovePath(ctx, cephRepoFile)
}

func (n *nodeTasks) uninstallAgent(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	if err := removeContainer(ctx, exec, dspcommon.AgentContainerName); err != nil {
		return nil, err
	}
	if err := exec.RemovePath(ctx, dspcommon.AgentConfigFile); err != nil {
		return nil, errors.Wrapf(err, "failed to remove agent config on node '%s'", node.Hostname)
	}
	if node.Roles.Admin {
		if err := exec.RemovePath(ctx, n.c.Config.PrometheusTargetsFile); err != nil {
			return nil, errors.Wrapf(err, "failed to remove prometheus targets on node '%s'", node.Hostname)
		}
	}
	if _, err := n.c.DB.RPCServices().DeleteWhere(ctx, func(s *objects.RPCService) bool { return s.NodeID == node.ID }); err != nil {
		return nil, err
	}
	return nil, db.DeleteService(ctx, n.c.DB, node.ID, dspcommon.AgentServiceName)
}

func (n *nodeTasks) uninstallNodeExporter(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	agents, err := n.adminAgents(ctx, fc.Log, node.ClusterID)
	if err != nil {
		return nil, err
	}
	for _, agent := range agents {
		if err := agent.PrometheusTargetRemove(ctx, exporterTarget(node)); err != nil {
			fc.Log.Warn().Err(err).Msgf("failed to unregister node exporter of node '%s'", node.Hostname)
		}
	}
	if err := removeContainer(ctx, exec, dspcommon.NodeExporterContainerName); err != nil {
		return nil, err
	}
	return nil, db.DeleteService(ctx, n.c.DB, node.ID, dspcommon.NodeExporterContainerName)
}

func (n *nodeTasks) uninstallChrony(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	if _, err := exec.RunCommand(ctx, []string{"systemctl", "disable", "--now", chronyService}, 0); err != nil {
		return nil, errors.Wrapf(err, "failed to stop %s on node '%s'", chronyService, node.Hostname)
	}
	return nil, db.DeleteService(ctx, n.c.DB, node.ID, chronyService)
}

func (n *nodeTasks) uninstallDocker(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	node, exec, err := n.remote(ctx)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	params := n.c.Config.Install
	argv := []string{"docker", "image", "rm", "-f",
		image(params, dspcommon.AgentContainerName), image(params, dspcommon.NodeExporterContainerName)}
	if _, err := exec.RunCommand(ctx, argv, 0); err != nil {
		fc.Log.Warn().Err(err).Msgf("failed to remove images on node '%s'", node.Hostname)
	}
	if params.ImageBundleURL != "" {
		bundlePath := path.Join(params.ImageCacheDir, filepath.Base(n.bundles.CachePath(params.ImageBundleURL)))
		if err := exec.RemovePath(ctx, bundlePath); err != nil {
			return nil, errors.Wrapf(err, "failed to remove image bundle on node '%s'", node.Hostname)
		}
	}
	return nil, db.DeleteService(ctx, n.c.DB, node.ID, dockerService)
}

func UninstallFlowName(node *objects.Node) string {
	return "node_uninstall_" + node.Hostname
}

// UninstallChain removes what install flow brought to node in reverse order.
func (i *Installer) UninstallChain(node *objects.Node) *taskflow.Flow {
	n := &nodeTasks{Installer: i, id: node.ID}
	flow := taskflow.Linear(UninstallFlowName(node))
	if i.c.Config.Install.CephRepoEnabled {
		flow.Add(taskflow.NewTask("UninstallCephRepo", n.uninstallCephRepo, nil))
	}
	return flow.Add(
		taskflow.NewTask("UninstallDSpaceAgent", n.uninstallAgent, nil),
		taskflow.NewTask("UninstallNodeExporter", n.uninstallNodeExporter, nil),
		taskflow.NewTask("UninstallChrony", n.uninstallChrony, nil),
		taskflow.NewTask("UninstallDocker", n.uninstallDocker, nil),
	)
}

// UninstallFlow runs uninstall chains of nodes in parallel.
func (i *Installer) UninstallFlow(name string, nodes []*objects.Node) *taskflow.Flow {
	flow := taskflow.Parallel(name)
	for _, node := range nodes {
		flow.Add(i.UninstallChain(node))
	}
	return flow
}

// Uninstall removes dspace services from node without osds and deletes
// node with its disks and networks.
func (i *Installer) Uninstall(ctx context.Context, id int64) error {
	node, err := i.c.DB.Nodes().Get(ctx, id)
	if err != nil {
		return err
	}
	osds, err := db.ListNodeOsds(ctx, i.c.DB, id)
	if err != nil {
		return err
	}
	if len(osds) > 0 {
		return dspcommon.NewError(dspcommon.ErrInvalid, "node '%s' still has %d osds", node.Hostname, len(osds))
	}
	from := node.Status
	updated, err := i.c.DB.Nodes().CompareAndUpdate(ctx, id,
		func(n *objects.Node) bool { return n.Status != objects.NodeStatusDeleting && n.Status != objects.NodeStatusDeploying },
		func(n *objects.Node) { n.Status = objects.NodeStatusDeleting })
	if err != nil {
		return err
	}
	if !updated {
		return dspcommon.NewError(dspcommon.ErrInvalid, "node '%s' is busy in '%s' status", node.Hostname, from)
	}
	log := dspcommon.ObjectLogger(i.c.Log, "node", node.Hostname)
	name := UninstallFlowName(node)
	flow := i.c.Flows.NewTaskflow(node.ClusterID, name, i.UninstallChain(node)).
		RequireLock(name, false).
		WithArgs(map[string]any{"node_id": id, "hostname": node.Hostname})
	if _, runErr := flow.Run(ctx); runErr != nil {
		ctx = context.WithoutCancel(ctx)
		if _, err := db.NodeStatusCAS(ctx, i.c.DB, id, objects.NodeStatusDeleting, objects.NodeStatusError); err != nil {
			log.Error().Err(err).Msg("failed to mark node as error")
		}
		return runErr
	}
	if err := DeleteNodeRows(ctx, i.c.DB, id); err != nil {
		return err
	}
	log.Info().Msg("node is uninstalled")
	return nil
}

// DeleteNodeRows deletes node with rows owned by it.
func DeleteNodeRows(ctx context.Context, store db.Store, id int64) error {
	if _, err := store.Partitions().DeleteWhere(ctx, func(p *objects.DiskPartition) bool { return p.NodeID == id }); err != nil {
		return err
	}
	if _, err := store.Disks().DeleteWhere(ctx, func(d *objects.Disk) bool { return d.NodeID == id }); err != nil {
		return err
	}
	if _, err := store.Networks().DeleteWhere(ctx, func(n *objects.Network) bool { return n.NodeID == id }); err != nil {
		return err
	}
	if _, err := store.Services().DeleteWhere(ctx, func(s *objects.Service) bool { return s.NodeID == id }); err != nil {
		return err
	}
	return store.Nodes().Delete(ctx, id)
}
