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
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
)

type nodeServiceReconciler struct {
	c *controller.Context
}

func NewNodeServiceReconciler(c *controller.Context) Reconciler {
	r := &nodeServiceReconciler{c: c}
	return Reconciler{
		Name:      NodeServiceCheckLock,
		Interval:  c.Config.Reconcile.NodeCheckInterval,
		Reconcile: locked(c, NodeServiceCheckLock, r.reconcile),
	}
}

func (r *nodeServiceReconciler) reconcile(ctx context.Context) error {
	nodes, err := r.c.DB.Nodes().List(ctx, func(n *objects.Node) bool {
		return n.Status == objects.NodeStatusActive || n.Status == objects.NodeStatusWarning
	})
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, node := range nodes {
		if err := r.checkNode(ctx, node); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "node '%s'", node.Hostname))
		}
	}
	return result.ErrorOrNil()
}

// unhealthyReason returns first degraded resource of node, empty when node is healthy.
func (r *nodeServiceReconciler) unhealthyReason(ctx context.Context, node *objects.Node) (string, error) {
	services, err := r.c.DB.Services().List(ctx, func(s *objects.Service) bool { return s.NodeID == node.ID })
	if err != nil {
		return "", err
	}
	for _, service := range services {
		if service.Unhealthy() {
			return fmt.Sprintf("service '%s' is %s", service.Name, service.Status), nil
		}
	}
	osds, err := db.ListNodeOsds(ctx, r.c.DB, node.ID)
	if err != nil {
		return "", err
	}
	for _, osd := range osds {
		if osd.Unhealthy() {
			return fmt.Sprintf("%s is %s", osd.Name(), osd.Status), nil
		}
	}
	radosgws, err := r.c.DB.Radosgws().List(ctx, func(rgw *objects.Radosgw) bool { return rgw.NodeID == node.ID })
	if err != nil {
		return "", err
	}
	for _, rgw := range radosgws {
		if rgw.Unhealthy() {
			return fmt.Sprintf("radosgw '%s' is %s", rgw.Name, rgw.Status), nil
		}
	}
	return "", nil
}

func (r *nodeServiceReconciler) checkNode(ctx context.Context, node *objects.Node) error {
	reason, err := r.unhealthyReason(ctx, node)
	if err != nil {
		return err
	}
	from, to := objects.NodeStatusWarning, objects.NodeStatusActive
	level, category, message := objects.AlertInfo, objects.AlertNodeActive, fmt.Sprintf("node '%s' is healthy", node.Hostname)
	if reason != "" {
		from, to = objects.NodeStatusActive, objects.NodeStatusWarning
		level, category, message = objects.AlertWarn, objects.AlertNodeWarning, fmt.Sprintf("node '%s' is degraded: %s", node.Hostname, reason)
	}
	if node.Status != from {
		return nil
	}
	updated, err := db.NodeStatusCAS(ctx, r.c.DB, node.ID, from, to)
	if err != nil || !updated {
		return err
	}
	r.c.Log.Info().Msgf("node '%s' status '%s' -> '%s'", node.Hostname, from, to)
	r.c.Alert(ctx, objects.Alert{
		ClusterID:    node.ClusterID,
		ResourceType: objects.ResourceNode,
		ResourceID:   fmt.Sprint(node.ID),
		ResourceName: node.Hostname,
		Level:        level,
		Category:     category,
		Message:      message,
	})
	return nil
}
