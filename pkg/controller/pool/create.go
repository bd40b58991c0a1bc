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
	"github.com/rs/zerolog"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/crush"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/taskflow"
)

const (
	defaultFailureDomain = "host"
	rbdApplication       = "rbd"
	metadataPoolPgNum    = 32
)

// flow store keys
const (
	osdCountKey = "osd_count"
	pgNumKey    = "pg_num"
	ruleIDKey   = "crush_rule_id"
)

func failureDomain(pool *objects.Pool) string {
	if pool.FailureDomain == "" {
		return defaultFailureDomain
	}
	return pool.FailureDomain
}

func erasure(pool *objects.Pool) bool {
	return pool.Type == objects.PoolTypeErasure
}

func metadataName(pool *objects.Pool) string {
	return pool.Name + dspcommon.ErasurePoolMetadataSuffix
}

// Placements returns crush placement of activated osds assigned to pool.
func Placements(ctx context.Context, store db.Store, pool *objects.Pool) ([]crush.OsdPlacement, error) {
	osds, err := store.Osds().List(ctx, func(o *objects.Osd) bool {
		return o.ClusterID == pool.ClusterID && o.PoolName == pool.Name && o.OsdID != nil && o.Status != objects.OsdStatusDeleting
	})
	if err != nil {
		return nil, err
	}
	placements := make([]crush.OsdPlacement, 0, len(osds))
	for _, osd := range osds {
		node, err := store.Nodes().Get(ctx, osd.NodeID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get node of %s", osd.Name())
		}
		placement := crush.OsdPlacement{OsdID: *osd.OsdID, Size: osd.Size, Host: node.Hostname}
		if node.RackID != nil {
			rack, err := store.Racks().Get(ctx, *node.RackID)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to get rack of node '%s'", node.Hostname)
			}
			placement.Rack = rack.Name
			if rack.DatacenterID != nil {
				dc, err := store.Datacenters().Get(ctx, *rack.DatacenterID)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to get datacenter of rack '%s'", rack.Name)
				}
				placement.Datacenter = dc.Name
			}
		}
		placements = append(placements, placement)
	}
	return placements, nil
}

type poolTasks struct {
	c      *controller.Context
	poolID int64
}

func (p *poolTasks) load(ctx context.Context) (*objects.Pool, error) {
	pool, err := p.c.DB.Pools().Get(ctx, p.poolID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get pool %d", p.poolID)
	}
	return pool, nil
}

func (p *poolTasks) crushSync(fc *taskflow.FlowContext, store *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	placements, err := Placements(ctx, p.c.DB, pool)
	if err != nil {
		return nil, err
	}
	if len(placements) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "pool '%s' has no active osds", pool.Name)
	}
	if len(placements) < pool.DataChunksTotal() && failureDomain(pool) == string(ceph.BucketOsd) {
		fc.Log.Warn().Msgf("pool '%s' needs %d osds, only %d assigned", pool.Name, pool.DataChunksTotal(), len(placements))
	}
	store.Set(osdCountKey, len(placements))
	err = p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		_, err := crush.Sync(ctx, fc.Log, client, p.c.Coord, pool.ClusterID, pool.Name, placements)
		return err
	})
	return nil, err
}

// crushRevert drops crush subtree built for pool which failed to create.
func (p *poolTasks) crushRevert(fc *taskflow.FlowContext, _ any, _ []error) error {
	_, err := p.crushClean(fc, nil)
	return err
}

func (p *poolTasks) ruleCreate(fc *taskflow.FlowContext, store *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	rule := &objects.CrushRule{
		ClusterID:     pool.ClusterID,
		Name:          pool.Name,
		RootName:      pool.Name,
		Type:          pool.Type,
		FailureDomain: failureDomain(pool),
		Status:        objects.StatusCreating,
	}
	err = p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		if erasure(pool) {
			if pool.ErasureCoded == nil {
				return dspcommon.NewError(dspcommon.ErrInvalid, "erasure pool '%s' has no coding chunks specified", pool.Name)
			}
			rule.DataChunks = int(pool.ErasureCoded.DataChunks)
			rule.CodingChunks = int(pool.ErasureCoded.CodingChunks)
			if err := client.ErasureProfileSet(ctx, pool.Name, rule.DataChunks, rule.CodingChunks, rule.FailureDomain, rule.RootName); err != nil {
				return errors.Wrapf(err, "failed to set erasure profile '%s'", pool.Name)
			}
			if err := client.CrushRuleCreateErasure(ctx, rule.Name, pool.Name); err != nil && !dspcommon.IsAlreadyExists(err) {
				return errors.Wrapf(err, "failed to create crush rule '%s'", rule.Name)
			}
		} else if err := client.CrushRuleCreateReplicated(ctx, rule.Name, rule.RootName, rule.FailureDomain); err != nil && !dspcommon.IsAlreadyExists(err) {
			return errors.Wrapf(err, "failed to create crush rule '%s'", rule.Name)
		}
		info, err := client.CrushRuleDump(ctx, rule.Name)
		if err != nil {
			return err
		}
		rule.RuleID = &info.RuleID
		return nil
	})
	if err != nil {
		return nil, err
	}
	rule.Status = objects.StatusActive
	if err := p.c.DB.CrushRules().Create(ctx, rule); err != nil {
		return nil, errors.Wrapf(err, "failed to save crush rule '%s'", rule.Name)
	}
	store.Set(ruleIDKey, rule.ID)
	return rule.ID, nil
}

func (p *poolTasks) ruleRevert(fc *taskflow.FlowContext, result any, _ []error) error {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return err
	}
	if err := p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		return removeRules(ctx, client, pool, false)
	}); err != nil {
		return err
	}
	if ruleID, ok := result.(int64); ok {
		return p.c.DB.CrushRules().Delete(ctx, ruleID)
	}
	return nil
}

func (p *poolTasks) dataCreate(fc *taskflow.FlowContext, store *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	osdCount, err := taskflow.GetAs[int](store, osdCountKey)
	if err != nil {
		return nil, err
	}
	pgNum := crush.PgNum(osdCount, pool.DataChunksTotal())
	spec := ceph.PoolSpec{Name: pool.Name, PgNum: pgNum, RuleName: pool.Name}
	if erasure(pool) {
		spec.ErasureProfile = pool.Name
	}
	err = p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		if err := client.PoolCreate(ctx, spec); err != nil {
			return errors.Wrapf(err, "failed to create pool '%s'", pool.Name)
		}
		if erasure(pool) {
			return client.PoolSet(ctx, pool.Name, "allow_ec_overwrites", "true")
		}
		return client.PoolSet(ctx, pool.Name, "size", strconv.Itoa(pool.DataChunksTotal()))
	})
	if err != nil {
		return nil, err
	}
	fc.Log.Info().Msgf("pool '%s' created with pg_num %d for %d osds", pool.Name, pgNum, osdCount)
	store.Set(pgNumKey, pgNum)
	return nil, nil
}

func (p *poolTasks) dataRevert(fc *taskflow.FlowContext, _ any, _ []error) error {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return err
	}
	return p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		return deletePool(ctx, client, pool.Name)
	})
}

func (p *poolTasks) metadataCreate(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	name := metadataName(pool)
	return nil, p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		if err := client.CrushRuleCreateReplicated(ctx, name, pool.Name, failureDomain(pool)); err != nil && !dspcommon.IsAlreadyExists(err) {
			return errors.Wrapf(err, "failed to create crush rule '%s'", name)
		}
		if err := client.PoolCreate(ctx, ceph.PoolSpec{Name: name, PgNum: metadataPoolPgNum, RuleName: name}); err != nil {
			if rmErr := ignoreNotFound(client.CrushRuleRemove(ctx, name)); rmErr != nil {
				fc.Log.Error().Err(rmErr).Msgf("failed to remove crush rule '%s'", name)
			}
			return errors.Wrapf(err, "failed to create metadata pool '%s'", name)
		}
		return nil
	})
}

func (p *poolTasks) metadataRevert(fc *taskflow.FlowContext, _ any, _ []error) error {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return err
	}
	return p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		if err := deletePool(ctx, client, metadataName(pool)); err != nil {
			return err
		}
		return ignoreNotFound(client.CrushRuleRemove(ctx, metadataName(pool)))
	})
}

func (p *poolTasks) applicationEnable(fc *taskflow.FlowContext, _ *taskflow.Store) (any, error) {
	ctx := fc.Context()
	pool, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return nil, p.c.Ceph.With(ctx, pool.ClusterID, func(client *ceph.Client) error {
		names := []string{pool.Name}
		if erasure(pool) {
			names = append(names, metadataName(pool))
		}
		for _, name := range names {
			if err := client.PoolApplicationEnable(ctx, name, rbdApplication); err != nil {
				return errors.Wrapf(err, "failed to enable rbd application for pool '%s'", name)
			}
		}
		return nil
	})
}

func (p *poolTasks) finish(fc *taskflow.FlowContext, store *taskflow.Store) (any, error) {
	pgNum, err := taskflow.GetAs[int](store, pgNumKey)
	if err != nil {
		return nil, err
	}
	ruleID, err := taskflow.GetAs[int64](store, ruleIDKey)
	if err != nil {
		return nil, err
	}
	updated, err := p.c.DB.Pools().CompareAndUpdate(fc.Context(), p.poolID,
		func(pool *objects.Pool) bool { return pool.Status == objects.StatusCreating },
		func(pool *objects.Pool) {
			pool.Status = objects.StatusActive
			pool.PgNum = pgNum
			pool.CrushRuleID = &ruleID
		})
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "pool %d left creating status during creation", p.poolID)
	}
	return nil, nil
}

func CreateFlowName(pool *objects.Pool) string {
	return "pool_create_" + pool.Name
}

// CreateFlow builds crush root, rule and pools for pool row in creating status.
// Erasure pool also gets replicated metadata pool for rbd headers.
func CreateFlow(c *controller.Context, pool *objects.Pool) *taskflow.Flow {
	p := &poolTasks{c: c, poolID: pool.ID}
	flow := taskflow.Linear(CreateFlowName(pool),
		taskflow.NewTask("PoolCrushSync", p.crushSync, p.crushRevert),
		taskflow.NewTask("PoolRuleCreate", p.ruleCreate, p.ruleRevert),
		taskflow.NewTask("PoolDataCreate", p.dataCreate, p.dataRevert),
	)
	if erasure(pool) {
		flow.Add(taskflow.NewTask("PoolMetadataCreate", p.metadataCreate, p.metadataRevert))
	}
	return flow.Add(
		taskflow.NewTask("PoolApplicationEnable", p.applicationEnable, nil),
		taskflow.NewTask("PoolFinish", p.finish, nil),
	)
}

// Create runs create flow for pool row, pool is marked error on failure.
func Create(ctx context.Context, c *controller.Context, poolID int64) error {
	pool, err := c.DB.Pools().Get(ctx, poolID)
	if err != nil {
		return err
	}
	log := dspcommon.ObjectLogger(c.Log, "pool", pool.Name)
	if pool.Status != objects.StatusCreating {
		return dspcommon.NewError(dspcommon.ErrInvalid, "pool '%s' is in '%s' status, expected '%s'", pool.Name, pool.Status, objects.StatusCreating)
	}
	flow := c.Flows.NewTaskflow(pool.ClusterID, CreateFlowName(pool), CreateFlow(c, pool)).
		RequireLock(CreateFlowName(pool), false).
		WithArgs(map[string]any{"pool_id": pool.ID, "pool_name": pool.Name})
	if _, err := flow.Run(ctx); err != nil {
		if dspcommon.IsLockAcquireFailed(err) {
			return err
		}
		markError(context.WithoutCancel(ctx), log, c, pool.ID, objects.StatusCreating)
		return err
	}
	log.Info().Msg("pool is active")
	return nil
}

func markError(ctx context.Context, log zerolog.Logger, c *controller.Context, poolID int64, from objects.LifecycleStatus) {
	_, err := c.DB.Pools().CompareAndUpdate(ctx, poolID,
		func(pool *objects.Pool) bool { return pool.Status == from },
		func(pool *objects.Pool) { pool.Status = objects.StatusError })
	if err != nil {
		log.Error().Err(err).Msg("failed to mark pool as error")
	}
}

func ignoreNotFound(err error) error {
	if dspcommon.IsNotFound(err) {
		return nil
	}
	return err
}

func deletePool(ctx context.Context, client *ceph.Client, name string) error {
	if err := ignoreNotFound(client.PoolDelete(ctx, name)); err != nil {
		return errors.Wrapf(err, "failed to delete pool '%s'", name)
	}
	return nil
}

// removeRules drops pool crush rules and erasure profile, missing ones are skipped.
func removeRules(ctx context.Context, client *ceph.Client, pool *objects.Pool, withMetadata bool) error {
	names := []string{pool.Name}
	if withMetadata && erasure(pool) {
		names = append(names, metadataName(pool))
	}
	for _, name := range names {
		if err := ignoreNotFound(client.CrushRuleRemove(ctx, name)); err != nil {
			return errors.Wrapf(err, "failed to remove crush rule '%s'", name)
		}
	}
	if erasure(pool) {
		if err := ignoreNotFound(client.ErasureProfileRemove(ctx, pool.Name)); err != nil {
			return errors.Wrapf(err, "failed to remove erasure profile '%s'", pool.Name)
		}
	}
	return nil
}
