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


package cron

import (
	"context"
	"sort"

	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

type slowRequestReconciler struct {
	c *controller.Context
}

func NewSlowRequestReconciler(c *controller.Context) Reconciler {
	r := &slowRequestReconciler{c: c}
	return Reconciler{
		Name:      SlowRequestGetLock,
		Interval:  c.Config.Reconcile.SlowRequestInterval,
		Reconcile: locked(c, SlowRequestGetLock, r.reconcile),
	}
}

func (r *slowRequestReconciler) reconcile(ctx context.Context) error {
	clusters, err := r.c.DB.Clusters().List(ctx, func(c *objects.Cluster) bool { return c.CephStatus })
	if err != nil {
		return err
	}
	for _, cluster := range clusters {
		requests, err := r.collect(ctx, cluster.UUID)
		if err != nil {
			return err
		}
		r.c.State.SlowRequests.Set(cluster.UUID, requests)
	}
	return nil
}

// collect asks agents of every osd node for slow ops. Osds are ordered by
// slow ops count, ops of each osd by duration.
func (r *slowRequestReconciler) collect(ctx context.Context, clusterID string) ([]rpc.OsdSlowRequests, error) {
	osds, err := db.ListOsds(ctx, r.c.DB, clusterID)
	if err != nil {
		return nil, err
	}
	byNode := map[int64][]string{}
	for _, osd := range osds {
		if osd.OsdID != nil && osd.Status == objects.OsdStatusActive {
			byNode[osd.NodeID] = append(byNode[osd.NodeID], *osd.OsdID)
		}
	}
	merged := []rpc.OsdSlowRequests{}
	for nodeID, ids := range byNode {
		node, err := r.c.DB.Nodes().Get(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		agent, err := r.c.Agents.ForNode(ctx, node)
		if err != nil {
			r.c.Log.Error().Err(err).Msgf("failed to get agent of node '%s'", node.Hostname)
			continue
		}
		sort.Strings(ids)
		requests, err := agent.CephSlowRequest(ctx, ids)
		if err != nil {
			r.c.Log.Error().Err(err).Msgf("failed to get slow requests from node '%s'", node.Hostname)
			continue
		}
		for _, request := range requests {
			request.Hostname = node.Hostname
			request.Count = len(request.Ops)
			sort.SliceStable(request.Ops, func(i, j int) bool { return request.Ops[i].Duration > request.Ops[j].Duration })
			merged = append(merged, request)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Count != merged[j].Count {
			return merged[i].Count > merged[j].Count
		}
		return merged[i].OsdID < merged[j].OsdID
	})
	return merged, nil
}
