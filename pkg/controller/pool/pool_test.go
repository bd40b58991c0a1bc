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
	"encoding/json"
	"fmt"
	"testing"

	cephv1 "github.com/rook/rook/pkg/apis/ceph.rook.io/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/crush"
	"github.com/Mirantis/dspace/pkg/objects"
	faketestclients "github.com/Mirantis/dspace/test/unit/clients"
	unitinputs "github.com/Mirantis/dspace/test/unit/inputs"
)

func poolReactions() map[string]faketestclients.CommandReaction {
	return map[string]faketestclients.CommandReaction{
		"ceph osd tree":                 {Stdout: unitinputs.CephOsdTreeThreeOsds},
		"ceph osd crush":                {},
		"ceph osd crush rule dump":      {Stdout: unitinputs.CephCrushRuleDumpErasure},
		"ceph osd erasure-code-profile": {},
		"ceph osd pool":                 {},
		"ceph config get mon":           {Stdout: "32"},
	}
}

// addPoolOsds creates hosts node-1..node-<hosts> with perHost active osds of pool.
func addPoolOsds(t *testing.T, fake *faketestclients.FakeControllerContext, poolName string, hosts, perHost int) {
	osdID := 0
	for h := 1; h <= hosts; h++ {
		node := fake.AddNodes(t, faketestclients.TopologyNode{Hostname: fmt.Sprintf("node-%d", h), IP: fmt.Sprintf("10.10.0.%d", 10+h)})[0]
		for i := 0; i < perHost; i++ {
			osd := fake.AddOsd(t, node, fmt.Sprintf("sd%c", 'b'+i), fmt.Sprint(osdID), objects.OsdStatusActive)
			_, err := fake.Store.Osds().CompareAndUpdate(context.Background(), osd.ID, nil, func(o *objects.Osd) { o.PoolName = poolName })
			require.NoError(t, err)
			osdID++
		}
	}
}

func erasurePool(fake *faketestclients.FakeControllerContext) *objects.Pool {
	return &objects.Pool{
		ClusterID:     fake.Cluster.UUID,
		Name:          "ec1",
		DisplayName:   "ec1",
		Type:          objects.PoolTypeErasure,
		ErasureCoded:  &cephv1.ErasureCodedSpec{DataChunks: 4, CodingChunks: 2},
		FailureDomain: "host",
		Status:        objects.StatusCreating,
	}
}

func TestCreateErasurePool(t *testing.T) {
	ctx := context.Background()
	fake := faketestclients.NewFakeControllerContext(t, poolReactions())
	addPoolOsds(t, fake, "ec1", 6, 3)
	pool := erasurePool(fake)
	require.NoError(t, fake.Store.Pools().Create(ctx, pool))

	require.NoError(t, Create(ctx, fake.Context, pool.ID))

	assert.Equal(t, []string{
		"ceph osd pool create ec1 256 256 erasure ec1 ec1" + faketestclients.CephArgs,
		"ceph osd pool create ec1-metadata 32 32 replicated ec1-metadata" + faketestclients.CephArgs,
	}, fake.Exec.CommandsWithPrefix("ceph osd pool create"))
	assert.Equal(t, []string{
		"ceph osd erasure-code-profile set ec1 k=4 m=2 crush-failure-domain=host crush-root=ec1 --force" + faketestclients.CephArgs,
	}, fake.Exec.CommandsWithPrefix("ceph osd erasure-code-profile"))
	assert.Equal(t, []string{
		"ceph osd crush rule create-erasure ec1 ec1" + faketestclients.CephArgs,
	}, fake.Exec.CommandsWithPrefix("ceph osd crush rule create-erasure"))
	assert.Equal(t, []string{
		"ceph osd crush rule create-replicated ec1-metadata ec1 host" + faketestclients.CephArgs,
	}, fake.Exec.CommandsWithPrefix("ceph osd crush rule create-replicated"))
	assert.Equal(t, []string{"ceph osd pool set ec1 allow_ec_overwrites true" + faketestclients.CephArgs},
		fake.Exec.CommandsWithPrefix("ceph osd pool set"))
	assert.Len(t, fake.Exec.CommandsWithPrefix("ceph osd pool application enable"), 2)
	// root and six hosts
	assert.Len(t, fake.Exec.CommandsWithPrefix("ceph osd crush add-bucket"), 7)
	assert.Len(t, fake.Exec.CommandsWithPrefix("ceph osd crush set"), 18)

	stored, err := fake.Store.Pools().Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, objects.StatusActive, stored.Status)
	assert.Equal(t, 256, stored.PgNum)
	require.NotNil(t, stored.CrushRuleID)

	rule, err := fake.Store.CrushRules().Get(ctx, *stored.CrushRuleID)
	require.NoError(t, err)
	assert.Equal(t, "ec1", rule.Name)
	assert.Equal(t, "ec1", rule.RootName)
	assert.Equal(t, 4, rule.DataChunks)
	assert.Equal(t, 2, rule.CodingChunks)
	require.NotNil(t, rule.RuleID)
	assert.Equal(t, 2, *rule.RuleID)
}

func TestCreatePoolRevertsOnFailure(t *testing.T) {
	ctx := context.Background()
	reactions := poolReactions()
	reactions["ceph osd pool create ec1-metadata"] = faketestclients.CommandReaction{ExitCode: 22, Stderr: "Error EINVAL: pg_num 32 size 3 would mean 1200 total pgs"}
	fake := faketestclients.NewFakeControllerContext(t, reactions)
	addPoolOsds(t, fake, "ec1", 6, 3)
	pool := erasurePool(fake)
	require.NoError(t, fake.Store.Pools().Create(ctx, pool))

	err := Create(ctx, fake.Context, pool.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "would mean 1200 total pgs")

	assert.Equal(t, []string{
		"ceph osd pool delete ec1 ec1 --yes-i-really-really-mean-it" + faketestclients.CephArgs,
	}, fake.Exec.CommandsWithPrefix("ceph osd pool delete"))
	assert.Equal(t, []string{
		"ceph osd crush rule rm ec1-metadata" + faketestclients.CephArgs,
		"ceph osd crush rule rm ec1" + faketestclients.CephArgs,
	}, fake.Exec.CommandsWithPrefix("ceph osd crush rule rm"))
	assert.Len(t, fake.Exec.CommandsWithPrefix("ceph osd erasure-code-profile rm ec1"), 1)

	stored, err := fake.Store.Pools().Get(ctx, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, objects.StatusError, stored.Status)
	rules, err := fake.Store.CrushRules().List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
	flows, err := fake.Store.Taskflows().List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, objects.TaskStatusFailed, flows[0].Status)
}

func TestCreatePoolRemovesCrushRoot(t *testing.T) {
	var withRoot dspcommon.OsdTree
	require.NoError(t, json.Unmarshal([]byte(unitinputs.CephOsdTreeThreeOsds), &withRoot))
	withRoot.Nodes = append(withRoot.Nodes, dspcommon.OsdTreeNode{ID: -20, Name: "ec1", Type: "root", TypeID: 11})
	withRootOutput, err := json.Marshal(withRoot)
	require.NoError(t, err)

	tests := []struct {
		name    string
		failing string
		message string
	}{
		{
			name:    "rule create fails",
			failing: "ceph osd crush rule create-erasure ec1",
			message: "failed to create crush rule 'ec1'",
		},
		{
			name:    "data pool create fails",
			failing: "ceph osd pool create ec1",
			message: "would mean 1200 total pgs",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			reactions := poolReactions()
			reactions["ceph osd tree"] = faketestclients.CommandReaction{Outputs: []faketestclients.CommandReaction{
				{Stdout: unitinputs.CephOsdTreeThreeOsds},
				{Stdout: string(withRootOutput)},
			}}
			reactions[test.failing] = faketestclients.CommandReaction{ExitCode: 22, Stderr: "Error EINVAL: pg_num 32 size 3 would mean 1200 total pgs"}
			fake := faketestclients.NewFakeControllerContext(t, reactions)
			addPoolOsds(t, fake, "ec1", 6, 3)
			pool := erasurePool(fake)
			require.NoError(t, fake.Store.Pools().Create(ctx, pool))

			err := Create(ctx, fake.Context, pool.ID)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.message)

			assert.Equal(t, []string{"ceph osd crush rm ec1" + faketestclients.CephArgs}, fake.Exec.CommandsWithPrefix("ceph osd crush rm ec1 "))
			stored, err := fake.Store.Pools().Get(ctx, pool.ID)
			require.NoError(t, err)
			assert.Equal(t, objects.StatusError, stored.Status)
		})
	}
}

func TestCreatePoolInvalidState(t *testing.T) {
	ctx := context.Background()
	fake := faketestclients.NewFakeControllerContext(t, poolReactions())
	pool := erasurePool(fake)
	pool.Status = objects.StatusActive
	require.NoError(t, fake.Store.Pools().Create(ctx, pool))
	err := Create(ctx, fake.Context, pool.ID)
	assert.EqualError(t, err, "pool 'ec1' is in 'active' status, expected 'creating'")

	pool = erasurePool(fake)
	pool.Name = "empty"
	require.NoError(t, fake.Store.Pools().Create(ctx, pool))
	err = Create(ctx, fake.Context, pool.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool 'empty' has no active osds")
}

func TestCreateDeleteErasurePool(t *testing.T) {
	ctx := context.Background()
	fake := faketestclients.NewFakeControllerContext(t, poolReactions())
	addPoolOsds(t, fake, "ec1", 6, 3)
	pool := erasurePool(fake)
	require.NoError(t, fake.Store.Pools().Create(ctx, pool))
	require.NoError(t, Create(ctx, fake.Context, pool.ID))

	err := Delete(ctx, fake.Context, pool.ID)
	assert.EqualError(t, err, "pool 'ec1' still has 18 osds")

	_, err = fake.Store.Osds().DeleteWhere(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, Delete(ctx, fake.Context, pool.ID))

	assert.Equal(t, []string{
		"ceph osd pool delete ec1 ec1 --yes-i-really-really-mean-it" + faketestclients.CephArgs,
		"ceph osd pool delete ec1-metadata ec1-metadata --yes-i-really-really-mean-it" + faketestclients.CephArgs,
	}, fake.Exec.CommandsWithPrefix("ceph osd pool delete"))
	assert.Equal(t, []string{
		"ceph osd crush rule rm ec1" + faketestclients.CephArgs,
		"ceph osd crush rule rm ec1-metadata" + faketestclients.CephArgs,
	}, fake.Exec.CommandsWithPrefix("ceph osd crush rule rm"))
	assert.Len(t, fake.Exec.CommandsWithPrefix("ceph osd erasure-code-profile rm ec1"), 1)

	pools, err := fake.Store.Pools().List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pools)
	rules, err := fake.Store.CrushRules().List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestOsdsChangedPgBump(t *testing.T) {
	tests := []struct {
		name       string
		currentPg  int
		maxSplit   string
		expectedPg int
		bumped     bool
	}{
		{name: "bump", currentPg: 128, maxSplit: "32", expectedPg: 512, bumped: true},
		{name: "suppressed by split count", currentPg: 128, maxSplit: "16", expectedPg: 128},
		{name: "split equals max split count", currentPg: 134, maxSplit: "21", expectedPg: 134},
		{name: "split just below max split count", currentPg: 134, maxSplit: "22", expectedPg: 512, bumped: true},
		{name: "already enough pgs", currentPg: 512, maxSplit: "32", expectedPg: 512},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			reactions := poolReactions()
			reactions["ceph osd pool get rbd pg_num"] = faketestclients.CommandReaction{Stdout: fmt.Sprintf(`{"pool":"rbd","pool_id":1,"pg_num":%d}`, test.currentPg)}
			reactions["ceph config get mon"] = faketestclients.CommandReaction{Stdout: test.maxSplit}
			fake := faketestclients.NewFakeControllerContext(t, reactions)
			addPoolOsds(t, fake, "rbd", 6, 3)
			pool := &objects.Pool{
				ClusterID:  fake.Cluster.UUID,
				Name:       "rbd",
				Type:       objects.PoolTypeReplicated,
				Replicated: &cephv1.ReplicatedSpec{Size: 3},
				PgNum:      test.currentPg,
				Status:     objects.StatusActive,
			}
			require.NoError(t, fake.Store.Pools().Create(ctx, pool))

			require.NoError(t, OsdsChanged(ctx, fake.Context, "rbd", fake.Cluster.UUID))

			setCmds := fake.Exec.CommandsWithPrefix("ceph osd pool set rbd")
			if test.bumped {
				assert.Equal(t, []string{
					fmt.Sprintf("ceph osd pool set rbd pg_num %d", test.expectedPg) + faketestclients.CephArgs,
					fmt.Sprintf("ceph osd pool set rbd pgp_num %d", test.expectedPg) + faketestclients.CephArgs,
				}, setCmds)
			} else {
				assert.Empty(t, setCmds)
			}
			stored, err := fake.Store.Pools().Get(ctx, pool.ID)
			require.NoError(t, err)
			assert.Equal(t, test.expectedPg, stored.PgNum)
		})
	}
}

func TestPlacements(t *testing.T) {
	ctx := context.Background()
	fake := faketestclients.NewFakeControllerContext(t, nil)
	nodes := fake.AddNodes(t,
		faketestclients.TopologyNode{Hostname: "node-1", IP: "10.10.0.11", Rack: "r1", Datacenter: "dc1"},
		faketestclients.TopologyNode{Hostname: "node-2", IP: "10.10.0.12", Rack: "r2"},
		faketestclients.TopologyNode{Hostname: "node-3", IP: "10.10.0.13"},
	)
	for idx, node := range nodes {
		osd := fake.AddOsd(t, node, "sdb", fmt.Sprint(idx), objects.OsdStatusActive)
		_, err := fake.Store.Osds().CompareAndUpdate(ctx, osd.ID, nil, func(o *objects.Osd) { o.PoolName = "p1" })
		require.NoError(t, err)
	}
	// not activated and foreign osds are skipped
	fake.AddOsd(t, nodes[0], "sdc", "", objects.OsdStatusCreating)
	fake.AddOsd(t, nodes[0], "sdd", "7", objects.OsdStatusActive)

	placements, err := Placements(ctx, fake.Store, &objects.Pool{ClusterID: fake.Cluster.UUID, Name: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []crush.OsdPlacement{
		{OsdID: "0", Size: 1 << 40, Host: "node-1", Rack: "r1", Datacenter: "dc1"},
		{OsdID: "1", Size: 1 << 40, Host: "node-2", Rack: "r2"},
		{OsdID: "2", Size: 1 << 40, Host: "node-3"},
	}, placements)
}
