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

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
)

type monitorReconciler struct {
	c *controller.Context
}

func NewMonitorReconciler(c *controller.Context) Reconciler {
	r := &monitorReconciler{c: c}
	return Reconciler{
		Name:      CephMonCheckLock,
		Interval:  c.Config.Reconcile.MonCheckInterval,
		Reconcile: locked(c, CephMonCheckLock, r.reconcile),
	}
}

// reconcile refreshes clusters cache before checking monitors and once more
// afterwards to publish ceph status changes.
func (r *monitorReconciler) reconcile(ctx context.Context) error {
	if err := r.c.State.Clusters.Refresh(ctx, r.c.DB); err != nil {
		return errors.Wrap(err, "failed to refresh clusters cache")
	}
	clusters, err := r.c.DB.Clusters().List(ctx, nil)
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, cluster := range clusters {
		if cluster.Status == objects.ClusterStatusCreating || cluster.Status == objects.ClusterStatusDeleting {
			continue
		}
		if err := r.checkCluster(ctx, cluster); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "failed to check monitors of cluster '%s'", cluster.UUID))
		}
	}
	if err := r.c.State.Clusters.Refresh(ctx, r.c.DB); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "failed to refresh clusters cache"))
	}
	return result.ErrorOrNil()
}

func (r *monitorReconciler) hasMonitors(ctx context.Context, clusterID string) (bool, error) {
	monitors, err := r.c.DB.Nodes().List(ctx, func(n *objects.Node) bool {
		return n.ClusterID == clusterID && n.Roles.Monitor
	})
	if err != nil {
		return false, err
	}
	if len(monitors) == 0 {
		return false, nil
	}
	monHost, err := db.GetCephConfigValue(ctx, r.c.DB, clusterID, "global", "mon_host")
	return monHost != "", err
}

func (r *monitorReconciler) checkCluster(ctx context.Context, cluster *objects.Cluster) error {
	log := dspcommon.ObjectLogger(r.c.Log, "cluster", cluster.UUID)
	configured, err := r.hasMonitors(ctx, cluster.UUID)
	if err != nil {
		return err
	}
	if !configured {
		if cluster.CephStatus {
			log.Info().Msg("cluster has no monitors, ceph status is off")
			_, err = db.ClusterCephStatusCAS(ctx, r.c.DB, cluster.ID, true, false)
		}
		return err
	}
	probeErr := r.c.Ceph.With(ctx, cluster.UUID, func(client *ceph.Client) error {
		_, err := client.Status(ctx)
		return err
	})
	alert := objects.Alert{
		ClusterID:    cluster.UUID,
		ResourceType: objects.ResourceCluster,
		ResourceID:   cluster.UUID,
		ResourceName: cluster.Name,
	}
	switch {
	case probeErr == nil && !cluster.CephStatus:
		updated, err := db.ClusterCephStatusCAS(ctx, r.c.DB, cluster.ID, false, true)
		if err != nil || !updated {
			return err
		}
		log.Info().Msg("ceph cluster connection restored")
		alert.Level = objects.AlertInfo
		alert.Category = objects.AlertCephConnect
		alert.Message = "ceph cluster reconnected"
		r.c.Alert(ctx, alert)
	case probeErr != nil && cluster.CephStatus:
		log.Error().Err(probeErr).Msg("ceph cluster is not reachable")
		alert.Level = objects.AlertError
		alert.Category = objects.AlertCephDisconnect
		alert.Message = "could not connect to ceph cluster"
		r.c.Alert(ctx, alert)
		_, err := db.ClusterCephStatusCAS(ctx, r.c.DB, cluster.ID, true, false)
		return err
	case probeErr != nil:
		log.Debug().Err(probeErr).Msg("ceph cluster is still not reachable")
	}
	return nil
}
