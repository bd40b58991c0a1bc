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


package ceph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	faketestclients "github.com/Mirantis/dspace/test/unit/clients/fakeexec"
	unitinputs "github.com/Mirantis/dspace/test/unit/inputs"
)

func TestOsdTree(t *testing.T) {
	c, _ := fakeClient(t, map[string]faketestclients.CommandReaction{"ceph osd tree": {Stdout: unitinputs.CephOsdTreeThreeOsds}})
	tree, err := c.OsdTree(context.Background())
	assert.Nil(t, err)
	osds := tree.Osds()
	assert.Len(t, osds, 3)
	assert.Equal(t, "osd.2", osds[2].Name)
	assert.Equal(t, "up", osds[2].Status)
	assert.Equal(t, 0.5, osds[2].Weight)

	bucket, err := c.BucketGet(context.Background(), "node-1-default")
	assert.Nil(t, err)
	assert.Equal(t, []int{2, 1, 0}, bucket.Children)
	_, err = c.BucketGet(context.Background(), "node-2-default")
	assert.True(t, dspcommon.IsNotFound(err))
}

func TestOsdSize(t *testing.T) {
	c, _ := fakeClient(t, map[string]faketestclients.CommandReaction{
		"ceph osd metadata 5": {Stdout: unitinputs.CephOsdMetadata(5, 107369988096)},
		"ceph osd metadata 6": {ExitCode: 2, Stderr: "Error ENOENT: osd.6 does not exist"},
	})
	size, err := c.OsdSize(context.Background(), "5")
	assert.Nil(t, err)
	assert.Equal(t, int64(107369988096), size)

	_, err = c.OsdSize(context.Background(), "6")
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrOsdNotFound))
}

func TestOsdNew(t *testing.T) {
	c, e := fakeClient(t, nil)
	e.AddReaction("ceph osd new 2b0bd3a4", faketestclients.CommandReaction{Stdout: "7\n"})
	e.AddReaction("ceph osd new 9c5a1c8d", faketestclients.CommandReaction{Stdout: `{"osdid": 8}`})
	e.AddReaction("ceph osd new 0f00", faketestclients.CommandReaction{Stdout: "garbage"})

	id, err := c.OsdNew(context.Background(), "2b0bd3a4-d2e5-4bc7-8ed5-6bdc0eb9d54a")
	assert.Nil(t, err)
	assert.Equal(t, "7", id)
	id, err = c.OsdNew(context.Background(), "9c5a1c8d-0d19-4b54-a0a0-3fa9a9c4e1e5")
	assert.Nil(t, err)
	assert.Equal(t, "8", id)
	_, err = c.OsdNew(context.Background(), "0f00")
	assert.EqualError(t, err, "unexpected output for 'osd new 0f00': garbage")
}

func TestOsdRemoveFromCluster(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{
		"ceph osd down osd.3":     {},
		"ceph osd out osd.3":      {},
		"ceph osd crush rm osd.3": {ExitCode: 2, Stderr: "Error ENOENT: device 'osd.3' does not appear in the crush map"},
		"ceph osd rm osd.3":       {},
		"ceph auth del osd.3":     {ExitCode: 2, Stderr: "Error ENOENT: failed to find osd.3 in keyring"},
	})
	assert.Nil(t, c.OsdRemoveFromCluster(context.Background(), "3"))
	assert.Len(t, e.Commands(), 5)

	e.AddReaction("ceph osd out osd.3", faketestclients.CommandReaction{ExitCode: 110, Stderr: "RADOS timed out"})
	e.ResetCommands()
	err := c.OsdRemoveFromCluster(context.Background(), "3")
	assert.True(t, dspcommon.IsConnectError(err))
	assert.Len(t, e.Commands(), 2)
}

func TestPoolCreate(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{"ceph osd pool create": {}})
	ctx := context.Background()
	assert.Nil(t, c.PoolCreate(ctx, PoolSpec{Name: "rbd", PgNum: 64, RuleName: "rbd"}))
	assert.Nil(t, c.PoolCreate(ctx, PoolSpec{Name: "ec1", PgNum: 256, RuleName: "ec1", ErasureProfile: "ec1"}))
	assert.Equal(t, []string{
		"ceph osd pool create rbd 64 64 replicated rbd" + globalArgsNoAuth,
		"ceph osd pool create ec1 256 256 erasure ec1 ec1" + globalArgsNoAuth,
	}, e.Commands())

	e.AddReaction("ceph osd pool create", faketestclients.CommandReaction{ExitCode: 17, Stderr: "Error EEXIST: pool 'rbd' already exists"})
	err := c.PoolCreate(ctx, PoolSpec{Name: "rbd", PgNum: 64})
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrPoolExists))
	assert.True(t, dspcommon.IsAlreadyExists(err))
}

func TestPoolGetSet(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{
		"ceph osd pool get rbd pg_num":     {Stdout: `{"pool":"rbd","pool_id":1,"pg_num":64}`},
		"ceph osd pool get rbd crush_rule": {Stdout: `{"pool":"rbd","pool_id":1,"crush_rule":"rbd"}`},
		"ceph osd pool get missing":        {ExitCode: 2, Stderr: "Error ENOENT: unrecognized pool 'missing'"},
		"ceph osd pool set":                {},
		"ceph osd pool ls":                 {Stdout: `["rbd","ec1","ec1-metadata"]`},
	})
	ctx := context.Background()
	pgNum, err := c.PoolPgNum(ctx, "rbd")
	assert.Nil(t, err)
	assert.Equal(t, 64, pgNum)
	rule, err := c.PoolGet(ctx, "rbd", "crush_rule")
	assert.Nil(t, err)
	assert.Equal(t, "rbd", rule)
	_, err = c.PoolGet(ctx, "missing", "pg_num")
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrPoolNameNotFound))

	assert.Nil(t, c.PoolSetPgNum(ctx, "rbd", 128))
	assert.Equal(t, []string{
		"ceph osd pool set rbd pg_num 128" + globalArgsNoAuth,
		"ceph osd pool set rbd pgp_num 128" + globalArgsNoAuth,
	}, e.CommandsWithPrefix("ceph osd pool set"))

	exists, err := c.PoolExists(ctx, "ec1-metadata")
	assert.Nil(t, err)
	assert.True(t, exists)
}

func TestErasureProfileAndRules(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{
		"ceph osd erasure-code-profile": {},
		"ceph osd crush rule":           {},
		"ceph osd crush rule dump ec1":  {Stdout: unitinputs.CephCrushRuleDumpErasure},
		"ceph osd crush rule ls":        {Stdout: `["replicated_rule","ec1"]`},
	})
	ctx := context.Background()
	assert.Nil(t, c.ErasureProfileSet(ctx, "ec1", 4, 2, "host", "default"))
	assert.Nil(t, c.CrushRuleCreateErasure(ctx, "ec1", "ec1"))
	assert.Nil(t, c.CrushRuleCreateReplicated(ctx, "rbd", "default", "host"))
	assert.Nil(t, c.CrushRuleRename(ctx, "rbd", "rbd-old"))
	assert.Equal(t, []string{
		"ceph osd erasure-code-profile set ec1 k=4 m=2 crush-failure-domain=host crush-root=default --force" + globalArgsNoAuth,
		"ceph osd crush rule create-erasure ec1 ec1" + globalArgsNoAuth,
		"ceph osd crush rule create-replicated rbd default host" + globalArgsNoAuth,
		"ceph osd crush rule rename rbd rbd-old" + globalArgsNoAuth,
	}, e.Commands())

	rule, err := c.CrushRuleDump(ctx, "ec1")
	assert.Nil(t, err)
	assert.Equal(t, 2, rule.RuleID)
	assert.Equal(t, "default", rule.Steps[1].ItemName)
	rules, err := c.CrushRuleList(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"replicated_rule", "ec1"}, rules)
}

func TestWeights(t *testing.T) {
	assert.Equal(t, int64(65536), SizeToWeight(1<<40))
	assert.Equal(t, int64(32768), SizeToWeight(1<<39))
	// 100 GiB
	assert.Equal(t, int64(6400), SizeToWeight(100<<30))
	assert.Equal(t, int64(0), SizeToWeight(0))
	assert.Equal(t, int64(32768), WeightFromFloat(0.5))
	assert.Equal(t, "1", FormatWeight(65536))
	assert.Equal(t, "0.09765625", FormatWeight(6400))
}

func TestCrushBuckets(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{"ceph osd crush": {}})
	ctx := context.Background()
	assert.Nil(t, c.BucketAdd(ctx, "rack1-default", BucketRack))
	assert.Nil(t, c.BucketMove(ctx, "node-1-default", BucketRack, "rack1-default"))
	assert.Nil(t, c.OsdAdd(ctx, "4", 100<<30, "node-1-default"))
	assert.Nil(t, c.OsdCrushReweight(ctx, "4", 65536))
	assert.Nil(t, c.BucketRemove(ctx, "rack2-default"))
	assert.Equal(t, []string{
		"ceph osd crush add-bucket rack1-default rack" + globalArgsNoAuth,
		"ceph osd crush move node-1-default rack=rack1-default" + globalArgsNoAuth,
		"ceph osd crush set osd.4 0.09765625 host=node-1-default" + globalArgsNoAuth,
		"ceph osd crush reweight osd.4 1" + globalArgsNoAuth,
		"ceph osd crush rm rack2-default" + globalArgsNoAuth,
	}, e.Commands())
}

func TestRbdErasureRewrite(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{
		"rbd":                     {},
		"rbd info ec1-metadata/v": {Stdout: `{"name": "v", "size": 1073741824, "objects": 256, "order": 22, "data_pool": "ec1", "features": ["layering"]}`},
		"rbd rm rbd/missing":      {ExitCode: 2, Stderr: "rbd: delete error: (2) No such file or directory"},
	})
	ctx := context.Background()
	replicated := PoolRef{Name: "rbd"}
	erasure := PoolRef{Name: "ec1", Erasure: true}
	assert.Equal(t, "rbd", replicated.RbdPool())
	assert.Equal(t, "ec1-metadata", erasure.RbdPool())

	assert.Nil(t, c.RbdCreate(ctx, replicated, "v", 1<<30))
	assert.Nil(t, c.RbdCreate(ctx, erasure, "v", 1<<30+1))
	assert.Nil(t, c.RbdSnapCreate(ctx, erasure, "v", "s1"))
	assert.Nil(t, c.RbdSnapProtect(ctx, erasure, "v", "s1"))
	assert.Nil(t, c.RbdClone(ctx, erasure, "v", "s1", replicated, "v2"))
	assert.Nil(t, c.RbdClone(ctx, replicated, "v2", "s2", erasure, "v3"))
	assert.Nil(t, c.RbdResize(ctx, erasure, "v3", 2<<30))
	assert.Nil(t, c.RbdSnapRename(ctx, erasure, "v", "s1", "s2"))
	assert.Nil(t, c.RbdRename(ctx, erasure, "v3", "v4"))

	suffix := " -m 10.10.0.11 --auth-client-required none"
	assert.Equal(t, []string{
		"rbd create rbd/v --size 1024M" + suffix,
		"rbd create ec1-metadata/v --size 1025M --data-pool ec1" + suffix,
		"rbd snap create ec1-metadata/v@s1" + suffix,
		"rbd snap protect ec1-metadata/v@s1" + suffix,
		"rbd clone ec1-metadata/v@s1 rbd/v2" + suffix,
		"rbd clone rbd/v2@s2 ec1-metadata/v3 --data-pool ec1" + suffix,
		"rbd resize ec1-metadata/v3 --size 2048M --allow-shrink" + suffix,
		"rbd snap rename ec1-metadata/v@s1 ec1-metadata/v@s2" + suffix,
		"rbd rename ec1-metadata/v3 ec1-metadata/v4" + suffix,
	}, e.Commands())

	info, err := c.RbdInfo(ctx, erasure, "v")
	assert.Nil(t, err)
	assert.Equal(t, "ec1", info.DataPool)
	assert.Equal(t, int64(1073741824), info.Size)

	err = c.RbdRemove(ctx, replicated, "missing")
	assert.True(t, dspcommon.IsNotFound(err))
}

func TestClusterUsage(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{
		"ceph df":              {Stdout: unitinputs.CephDfBase},
		"ceph osd df":          {Stdout: `{"nodes": [{"id": 0, "name": "osd.0", "device_class": "hdd", "kb": 104857600, "kb_used": 1048576, "kb_avail": 103809024, "utilization": 1.0, "pgs": 33, "status": "up"}], "summary": {"total_kb": 104857600, "total_kb_used": 1048576, "total_kb_avail": 103809024, "average_utilization": 1.0}}`},
		"ceph osd in osd.0":    {},
		"ceph osd in osd.9":    {ExitCode: 2, Stderr: "Error ENOENT: osd.9 does not exist"},
		"ceph auth del osd.0":  {},
		"ceph auth del client": {ExitCode: 2, Stderr: "Error ENOENT: failed to find client.gw in keyring"},
	})
	ctx := context.Background()

	details, err := c.Df(ctx)
	assert.Nil(t, err)
	assert.Equal(t, uint64(1649267441664), details.Stats.TotalBytes)
	assert.Len(t, details.Pools, 1)
	assert.Contains(t, details.StatsByClass, "hdd")

	df, err := c.OsdDf(ctx)
	assert.Nil(t, err)
	assert.Len(t, df.Nodes, 1)
	assert.Equal(t, 33, df.Nodes[0].Pgs)
	assert.Equal(t, uint64(104857600), df.Summary.TotalKB)

	assert.Nil(t, c.OsdIn(ctx, "0"))
	assert.True(t, dspcommon.IsKind(c.OsdIn(ctx, "9"), dspcommon.ErrOsdNotFound))

	assert.Nil(t, c.AuthDel(ctx, "osd.0"))
	assert.True(t, dspcommon.IsNotFound(c.AuthDel(ctx, "client.gw")))
	assert.Equal(t, []string{"ceph osd in osd.0" + globalArgsNoAuth, "ceph osd in osd.9" + globalArgsNoAuth}, e.CommandsWithPrefix("ceph osd in"))
}

func TestRbdImageOps(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{
		"rbd":                  {},
		"rbd ls rbd":           {Stdout: `["v1", "v2"]`},
		"rbd ls ec1-metadata":  {Stdout: ""},
		"rbd snap rm rbd/v1@x": {ExitCode: 2, Stderr: "rbd: failed to remove snapshot: (2) No such file or directory"},
	})
	ctx := context.Background()
	replicated := PoolRef{Name: "rbd"}
	erasure := PoolRef{Name: "ec1", Erasure: true}

	images, err := c.RbdList(ctx, replicated)
	assert.Nil(t, err)
	assert.Equal(t, []string{"v1", "v2"}, images)
	images, err = c.RbdList(ctx, erasure)
	assert.Nil(t, err)
	assert.Empty(t, images)

	e.ResetCommands()
	assert.Nil(t, c.RbdSnapUnprotect(ctx, erasure, "v", "s1"))
	assert.Nil(t, c.RbdSnapRollback(ctx, erasure, "v", "s1"))
	assert.Nil(t, c.RbdSnapRemove(ctx, erasure, "v", "s1"))
	assert.Nil(t, c.RbdFlatten(ctx, replicated, "v2"))
	assert.True(t, dspcommon.IsNotFound(c.RbdSnapRemove(ctx, replicated, "v1", "x")))

	suffix := " -m 10.10.0.11 --auth-client-required none"
	assert.Equal(t, []string{
		"rbd snap unprotect ec1-metadata/v@s1" + suffix,
		"rbd snap rollback ec1-metadata/v@s1" + suffix,
		"rbd snap rm ec1-metadata/v@s1" + suffix,
		"rbd flatten rbd/v2" + suffix,
		"rbd snap rm rbd/v1@x" + suffix,
	}, e.Commands())
}
