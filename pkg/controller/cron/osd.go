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
	"sort"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
)

const (
	osdIn   = "in"
	osdOut  = "out"
	osdUp   = "up"
	osdDown = "down"
)

type osdTreeReconciler struct {
	c *controller.Context
}

func NewOsdTreeReconciler(c *controller.Context) Reconciler {
	r := &osdTreeReconciler{c: c}
	return Reconciler{
		Name:      OsdTreeCheckLock,
		Interval:  c.Config.Reconcile.OsdCheckInterval,
		Reconcile: locked(c, OsdTreeCheckLock, r.reconcile),
	}
}

func (r *osdTreeReconciler) reconcile(ctx context.Context) error {
	clusters, err := r.c.DB.Clusters().List(ctx, func(c *objects.Cluster) bool { return c.CephStatus })
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, cluster := range clusters {
		if err := r.checkCluster(ctx, cluster); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "cluster '%s'", cluster.UUID))
		}
	}
	return result.ErrorOrNil()
}

type osdState struct {
	in bool
	up bool
}

func (s osdState) String() string {
	state := osdOut
	if s.in {
		state = osdIn
	}
	if s.up {
		return state + "&" + osdUp
	}
	return state + "&" + osdDown
}

func (r *osdTreeReconciler) checkCluster(ctx context.Context, cluster *objects.Cluster) error {
	osds, err := db.ListOsds(ctx, r.c.DB, cluster.UUID)
	if err != nil {
		return err
	}
	if len(osds) == 0 {
		return nil
	}
	log := dspcommon.ObjectLogger(r.c.Log, "cluster", cluster.UUID)
	toCheck := map[string]*objects.Osd{}
	for _, osd := range osds {
		if osd.OsdID == nil || osd.InTransientState() || r.c.State.IgnoredOsds.Has(cluster.UUID, *osd.OsdID) {
			continue
		}
		toCheck[*osd.OsdID] = osd
	}

	var tree *dspcommon.OsdTree
	err = r.c.Ceph.With(ctx, cluster.UUID, func(client *ceph.Client) error {
		tree, err = client.OsdTree(ctx)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "failed to get osd tree")
	}
	treeOsds := tree.Osds()
	states := make(map[string]osdState, len(treeOsds))
	up := 0
	for _, node := range treeOsds {
		state := osdState{in: node.Reweight > 0, up: node.Status == osdUp}
		if state.up {
			up++
		}
		states[strconv.Itoa(node.ID)] = state
	}
	if len(treeOsds) > 0 && float64(up)/float64(len(treeOsds)) <= r.c.Config.Reconcile.MonOsdMinUpRatio {
		log.Warn().Msgf("only %d of %d osds are up, using agents service status", up, len(treeOsds))
		r.applyServiceStatus(ctx, log, toCheck, states)
	}

	for _, node := range treeOsds {
		id := strconv.Itoa(node.ID)
		osd, ok := toCheck[id]
		if !ok {
			continue
		}
		delete(toCheck, id)
		r.checkOsd(ctx, log, osd, states[id])
	}
	for id, osd := range toCheck {
		if osd.Status == objects.OsdStatusError {
			continue
		}
		updated, err := db.OsdStatusCAS(ctx, r.c.DB, osd.ID, []objects.OsdStatus{osd.Status}, objects.OsdStatusError)
		if err != nil {
			return err
		}
		if updated {
			log.Error().Msgf("osd.%s is missing in osd tree", id)
			r.alert(ctx, osd, objects.AlertError, objects.AlertOsdError, fmt.Sprintf("osd.%s is missing in cluster", id))
		}
	}
	return nil
}

// applyServiceStatus replaces up flag with local unit state reported by agents.
func (r *osdTreeReconciler) applyServiceStatus(ctx context.Context, log zerolog.Logger, toCheck map[string]*objects.Osd, states map[string]osdState) {
	byNode := map[int64][]string{}
	for id, osd := range toCheck {
		byNode[osd.NodeID] = append(byNode[osd.NodeID], id)
	}
	for nodeID, ids := range byNode {
		node, err := r.c.DB.Nodes().Get(ctx, nodeID)
		if err != nil {
			log.Error().Err(err).Msgf("failed to get node %d", nodeID)
			continue
		}
		agent, err := r.c.Agents.ForNode(ctx, node)
		if err != nil {
			log.Error().Err(err).Msgf("failed to get agent of node '%s'", node.Hostname)
			continue
		}
		sort.Strings(ids)
		status, err := agent.CephOsdServiceStatus(ctx, ids)
		if err != nil {
			log.Error().Err(err).Msgf("failed to get osd service status from node '%s'", node.Hostname)
			continue
		}
		for id, active := range status {
			if state, ok := states[id]; ok {
				state.up = active
				states[id] = state
			}
		}
	}
}

func (r *osdTreeReconciler) checkOsd(ctx context.Context, log zerolog.Logger, osd *objects.Osd, state osdState) {
	name := osd.Name()
	switch {
	case state.in && state.up:
		if osd.Status != objects.OsdStatusOffline && osd.Status != objects.OsdStatusRestarting && osd.Status != objects.OsdStatusError {
			return
		}
		if r.cas(ctx, log, osd, []objects.OsdStatus{osd.Status}, objects.OsdStatusActive) {
			r.alert(ctx, osd, objects.AlertInfo, objects.AlertOsdActive, fmt.Sprintf("%s is active", name))
		}
	case state.in:
		if osd.Status != objects.OsdStatusActive {
			return
		}
		if !r.cas(ctx, log, osd, []objects.OsdStatus{objects.OsdStatusActive}, objects.OsdStatusOffline) {
			return
		}
		r.alert(ctx, osd, objects.AlertWarn, objects.AlertOsdOffline, fmt.Sprintf("%s is down", name))
		r.scheduleRestart(ctx, log, osd)
	default:
		if osd.Status != objects.OsdStatusActive && osd.Status != objects.OsdStatusWarning {
			return
		}
		if r.cas(ctx, log, osd, []objects.OsdStatus{osd.Status}, objects.OsdStatusOffline) {
			r.alert(ctx, osd, objects.AlertWarn, objects.AlertOsdOffline, fmt.Sprintf("%s is %s", name, state))
		}
	}
}

func (r *osdTreeReconciler) cas(ctx context.Context, log zerolog.Logger, osd *objects.Osd, from []objects.OsdStatus, to objects.OsdStatus) bool {
	updated, err := db.OsdStatusCAS(ctx, r.c.DB, osd.ID, from, to)
	if err != nil {
		log.Error().Err(err).Msgf("failed to move %s to '%s'", osd.Name(), to)
		return false
	}
	if updated {
		log.Info().Msgf("%s status '%s' -> '%s'", osd.Name(), osd.Status, to)
	}
	return updated
}

// scheduleRestart submits restart of offline osd service to worker pool.
func (r *osdTreeReconciler) scheduleRestart(ctx context.Context, log zerolog.Logger, osd *objects.Osd) {
	if !r.c.Config.Reconcile.ServiceAutoRestart {
		log.Info().Msgf("auto restart is disabled, %s stays offline", osd.Name())
		return
	}
	if r.c.Workers == nil {
		return
	}
	osdCopy := *osd
	if err := r.c.Workers.Submit("osd_restart_"+*osd.OsdID, func(ctx context.Context) error {
		return RestartOsd(ctx, r.c, &osdCopy)
	}); err != nil {
		log.Error().Err(err).Msgf("failed to submit restart of %s", osd.Name())
	}
}

// RestartOsd restarts service of offline osd on its node, osd is moved
// back to offline when restart fails.
func RestartOsd(ctx context.Context, c *controller.Context, osd *objects.Osd) error {
	updated, err := db.OsdStatusCAS(ctx, c.DB, osd.ID, []objects.OsdStatus{objects.OsdStatusOffline}, objects.OsdStatusRestarting)
	if err != nil || !updated {
		return err
	}
	node, err := c.DB.Nodes().Get(ctx, osd.NodeID)
	if err == nil {
		var agent controller.Agent
		agent, err = c.Agents.ForNode(ctx, node)
		if err == nil {
			err = agent.ServiceRestart(ctx, fmt.Sprintf(dspcommon.CephOsdServiceTmpl, *osd.OsdID))
		}
	}
	if err == nil {
		c.Log.Info().Msgf("%s service restarted", osd.Name())
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	if _, casErr := db.OsdStatusCAS(ctx, c.DB, osd.ID, []objects.OsdStatus{objects.OsdStatusRestarting}, objects.OsdStatusOffline); casErr != nil {
		c.Log.Error().Err(casErr).Msgf("failed to move %s back to offline", osd.Name())
	}
	c.Alert(ctx, osdAlert(osd, objects.AlertError, objects.AlertOsdOffline, fmt.Sprintf("%s restart failed", osd.Name())))
	return errors.Wrapf(err, "failed to restart %s", osd.Name())
}

func osdAlert(osd *objects.Osd, level objects.AlertLevel, category objects.AlertCategory, message string) objects.Alert {
	return objects.Alert{
		ClusterID:    osd.ClusterID,
		ResourceType: objects.ResourceOsd,
		ResourceID:   fmt.Sprint(osd.ID),
		ResourceName: osd.Name(),
		Level:        level,
		Category:     category,
		Message:      message,
	}
}

func (r *osdTreeReconciler) alert(ctx context.Context, osd *objects.Osd, level objects.AlertLevel, category objects.AlertCategory, message string) {
	r.c.Alert(ctx, osdAlert(osd, level, category, message))
}
