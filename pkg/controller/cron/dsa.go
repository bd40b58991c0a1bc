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

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/objects"
)

// dsaReconciler tracks agent service of every deployed node.
type dsaReconciler struct {
	c *controller.Context
}

func NewDsaReconciler(c *controller.Context) Reconciler {
	r := &dsaReconciler{c: c}
	return Reconciler{
		Name:      DsaCheckLock,
		Interval:  c.Config.Reconcile.DsaCheckInterval,
		Reconcile: locked(c, DsaCheckLock, r.reconcile),
	}
}

func (r *dsaReconciler) reconcile(ctx context.Context) error {
	nodes, err := r.c.DB.Nodes().List(ctx, func(n *objects.Node) bool {
		return n.Status == objects.NodeStatusActive || n.Status == objects.NodeStatusWarning
	})
	if err != nil {
		return err
	}
	for _, node := range nodes {
		status := objects.ServiceStatusActive
		if err := r.probe(ctx, node); err != nil {
			r.c.Log.Warn().Err(err).Msgf("agent of node '%s' is not ready", node.Hostname)
			status = objects.ServiceStatusInactive
		}
		if err := r.update(ctx, node, status); err != nil {
			return err
		}
	}
	return nil
}

func (r *dsaReconciler) probe(ctx context.Context, node *objects.Node) error {
	agent, err := r.c.Agents.ForNode(ctx, node)
	if err != nil {
		return err
	}
	status, err := agent.CheckDsaStatus(ctx)
	if err != nil {
		return err
	}
	if status.Status != dspcommon.AgentStatusReady {
		return dspcommon.NewError(dspcommon.ErrNotReady, "agent reports '%s' status", status.Status)
	}
	return nil
}

func (r *dsaReconciler) update(ctx context.Context, node *objects.Node, status objects.ServiceStatus) error {
	services, err := r.c.DB.Services().List(ctx, func(s *objects.Service) bool {
		return s.NodeID == node.ID && s.Name == dspcommon.AgentServiceName
	})
	if err != nil {
		return err
	}
	if len(services) == 0 {
		return r.c.DB.Services().Create(ctx, &objects.Service{
			ClusterID: node.ClusterID,
			NodeID:    node.ID,
			Name:      dspcommon.AgentServiceName,
			Role:      "base",
			Status:    status,
		})
	}
	service := services[0]
	if service.Status == status {
		return nil
	}
	previous := service.Status
	updated, err := r.c.DB.Services().CompareAndUpdate(ctx, service.ID,
		func(s *objects.Service) bool { return s.Status == previous },
		func(s *objects.Service) {
			s.Status = status
			if status != objects.ServiceStatusActive {
				s.Counter++
			}
		})
	if err != nil || !updated {
		return err
	}
	level := objects.AlertInfo
	if status != objects.ServiceStatusActive {
		level = objects.AlertError
	}
	r.c.Alert(ctx, objects.Alert{
		ClusterID:    node.ClusterID,
		ResourceType: objects.ResourceService,
		ResourceID:   fmt.Sprint(service.ID),
		ResourceName: service.Name,
		Level:        level,
		Category:     objects.AlertServiceStatus,
		Message:      fmt.Sprintf("service '%s' on node '%s' is %s", service.Name, node.Hostname, status),
	})
	return nil
}
