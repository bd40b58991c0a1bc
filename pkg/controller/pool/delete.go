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


package pool

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/crush"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/taskflow"
)

func (p *poolTasks) poolsDelete(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return nil, p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		if err := deletePool(ctx, client, pool.Name); err != nil {
			return err
		}
		if erasure(pool) {
			return deletePool(ctx, client, metadataName(pool))
		}
		return nil
	})
}

func (p *poolTasks) rulesDelete(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return nil, p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		return removeRules(ctx, client, pool, true)
	})
}

// crushClean drops crush subtree of pool root, pool must have no osds left.
func (p *poolTasks) crushClean(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return nil, p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		osdTree, err := client.OsdTree(ctx)
		if err != nil {
			return err
		}
		if _, err := crush.FromOsdTree(osdTree, pool.Name); err != nil {
			return ignoreNotFound(err)
		}
		if _, err := crush.Sync(ctx, fc.Log, client, p.c.Coord, pool.ClusterID, pool.Name, nil); err != nil {
			return err
		}
		return ignoreNotFound(client.BucketRemove(ctx, pool.Name))
	})
}

func (p *poolTasks) rowsDelete(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	names := []string{pool.Name, metadataName(pool)}
	if _, err := p.c.DB.CrushRules().DeleteWhere(ctx, func(r *objects.CrushRule) bool {
		return r.ClusterID == pool.ClusterID && dspcommon.Contains(names, r.Name)
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to delete crush rules of pool '%s'", pool.Name)
	}
	return nil, p.c.DB.Pools().Delete(ctx, pool.ID)
}

func DeleteFlowName(pool *objects.Pool) string {
	return "pool_delete_" + pool.Name
}

// DeleteFlow removes pools, rules and crush root of pool. Rows are deleted last.
func DeleteFlow(c *controller.Context, pool *objects.Pool) *taskflow.Flow {
	p := &poolTasks{c: c, poolID: pool.ID}
	return taskflow.Linear(DeleteFlowName(pool),
		taskflow.NewTask("PoolDelete", p.poolsDelete, nil),
		taskflow.NewTask("PoolRuleDelete", p.rulesDelete, nil),
		taskflow.NewTask("PoolCrushClean", p.crushClean, nil),
		taskflow.NewTask("PoolRowsDelete", p.rowsDelete, nil),
	)
}

// Delete removes pool which has no osds assigned.
func Delete(ctx context.Context, c *controller.Context, poolID int64) error {
	pool, err := c.DB.Pools().Get(ctx, poolID)
	if err != nil {
		return err
	}
	log := dspcommon.ObjectLogger(c.Log, "pool", pool.Name)
	osds, err := c.DB.Osds().List(ctx, func(o *objects.Osd) bool {
		return o.ClusterID == pool.ClusterID && o.PoolName == pool.Name
	})
	if err != nil {
		return err
	}
	if len(osds) > 0 {
		return dspcommon.NewError(dspcommon.ErrInvalid, "pool '%s' still has %d osds", pool.Name, len(osds))
	}
	prevStatus := pool.Status
	updated, err := c.DB.Pools().CompareAndUpdate(ctx, pool.ID,
		func(p *objects.Pool) bool { return p.Status != objects.StatusCreating && p.Status != objects.StatusDeleting },
		func(p *objects.Pool) { p.Status = objects.StatusDeleting })
	if err != nil {
		return err
	}
	if !updated {
		return dspcommon.NewError(dspcommon.ErrInvalid, "pool '%s' is busy", pool.Name)
	}
	flow := c.Flows.NewTaskflow(pool.ClusterID, DeleteFlowName(pool), DeleteFlow(c, pool)).
		WithArgs(map[string]any{"pool_id": pool.ID, "pool_name": pool.Name})
	if _, err := flow.Run(ctx); err != nil {
		log.Error().Err(err).Msgf("pool delete failed, previous status '%s'", prevStatus)
		markError(context.WithoutCancel(ctx), log, c, pool.ID, objects.StatusDeleting)
		return err
	}
	log.Info().Msg("pool deleted")
	return nil
}

// maxSplitCount reads mon_osd_max_split_count from cluster, configured value
// is used when cluster does not report it.
func maxSplitCount(ctx context.Context, c *controller.Context, client *ceph.Client) int {
	value, err := client.ConfigGet(ctx, ceph.TargetMon, "mon_osd_max_split_count")
	if err == nil {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return c.Config.Reconcile.MonOsdMaxSplitCount
}

// OsdsChanged syncs pool crush subtree with its osds and grows pg_num in
// lockstep with pgp_num when pool got enough new osds for it.
func OsdsChanged(ctx context.Context, c *controller.Context, poolName, clusterID string) error {
	pools, err := c.DB.Pools().List(ctx, func(p *objects.Pool) bool {
		return p.ClusterID == clusterID && p.Name == poolName
	})
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return dspcommon.NewError(dspcommon.ErrPoolNameNotFound, "pool '%s' not found", poolName)
	}
	pool := pools[0]
	log := dspcommon.ObjectLogger(c.Log, "pool", pool.Name)
	if pool.Status != objects.StatusActive {
		log.Info().Msgf("pool is in '%s' status, skipping osd placement", pool.Status)
		return nil
	}
	placements, err := Placements(ctx, c.DB, pool)
	if err != nil {
		return err
	}
	return c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		if _, err := crush.Sync(ctx, log, client, c.Coord, pool.ClusterID, pool.Name, placements); err != nil {
			return errors.Wrapf(err, "failed to place osds of pool '%s'", pool.Name)
		}
		current, err := client.PoolPgNum(ctx, pool.Name)
		if err != nil {
			return err
		}
		maxSplit := maxSplitCount(ctx, c, client)
		target, bump := crush.ShouldBumpPg(current, len(placements), pool.DataChunksTotal(), maxSplit)
		if !bump {
			log.Debug().Msgf("pg_num %d stays for %d osds (max split %d)", current, len(placements), maxSplit)
			return nil
		}
		if err := client.PoolSetPgNum(ctx, pool.Name, target); err != nil {
			return errors.Wrapf(err, "failed to set pg_num %d for pool '%s'", target, pool.Name)
		}
		log.Info().Msgf("pg_num changed %d -> %d", current, target)
		_, err = c.DB.Pools().CompareAndUpdate(ctx, pool.ID, nil, func(p *objects.Pool) { p.PgNum = target })
		return err
	})
}
