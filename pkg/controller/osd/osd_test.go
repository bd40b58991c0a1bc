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


package osd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	faketestclients "github.com/Mirantis/dspace/test/unit/clients"
	unitinputs "github.com/Mirantis/dspace/test/unit/inputs"
)

const osdSize = int64(1073741824000)

func init() {
	activeRetryInterval = time.Millisecond
	waitUpInterval = time.Millisecond
}

func osdReactions() map[string]faketestclients.CommandReaction {
	return map[string]faketestclients.CommandReaction{
		"ceph auth get-or-create client.bootstrap-osd": {Stdout: faketestclients.BootstrapOsdKeyring},
		"ceph osd tree":                                {Stdout: unitinputs.BuildOsdTree(unitinputs.OsdTreeEntry{ID: 3, Host: "node-1", Up: true, In: true, SizeTiB: 1})},
		"ceph osd metadata 3":                          {Stdout: unitinputs.CephOsdMetadata(3, osdSize)},
		"ceph osd":                                     {},
		"ceph auth del":                                {},
	}
}

func newOsdContext(t *testing.T, reactions map[string]faketestclients.CommandReaction) (*faketestclients.FakeControllerContext, *objects.Node, *faketestclients.FakeAgent) {
	fake := faketestclients.NewFakeControllerContext(t, reactions)
	node := fake.AddNodes(t, faketestclients.TopologyNode{Hostname: "node-1", IP: unitinputs.MonHost})[0]
	agent := fake.Agents.Get("node-1")
	agent.PrepareResult = rpc.OsdResult{Fsid: "0f8bd3a4-d2e5-4bc7-8ed5-6bdc0eb9d54a"}
	agent.ActiveResult = rpc.OsdResult{OsdID: "3"}
	return fake, node, agent
}

type taskState struct {
	Name   string
	Status objects.TaskStatus
}

func taskStates(t *testing.T, fake *faketestclients.FakeControllerContext) []taskState {
	tasks, err := fake.Store.Tasks().List(context.Background(), nil)
	require.NoError(t, err)
	states := []taskState{}
	for _, task := range tasks {
		states = append(states, taskState{Name: task.Name, Status: task.Status})
	}
	return states
}

func TestLoadGraph(t *testing.T) {
	ctx := context.Background()
	fake, node, _ := newOsdContext(t, nil)
	_, err := fake.Store.Nodes().CompareAndUpdate(ctx, node.ID, nil, func(n *objects.Node) { n.Password = "secret" })
	require.NoError(t, err)
	osd := fake.AddOsd(t, node, "sdb", "", objects.OsdStatusCreating)
	dbPart := &objects.DiskPartition{ClusterID: fake.Cluster.UUID, NodeID: node.ID, Name: "sdc1", Role: objects.PartitionRoleDB, Status: objects.PartitionStatusInUse}
	require.NoError(t, fake.Store.Partitions().Create(ctx, dbPart))
	_, err = fake.Store.Osds().CompareAndUpdate(ctx, osd.ID, nil, func(o *objects.Osd) { o.DBPartitionID = objects.Int64Ptr(dbPart.ID) })
	require.NoError(t, err)

	graph, err := LoadGraph(ctx, fake.Store, osd.ID)
	require.NoError(t, err)
	assert.Equal(t, "node-1", graph.Node.Hostname)
	assert.Empty(t, graph.Node.Password)
	assert.Equal(t, "sdb", graph.Disk.Name)
	require.NotNil(t, graph.DB)
	assert.Equal(t, "sdc1", graph.DB.Name)
	assert.Nil(t, graph.Wal)
	assert.Equal(t, "osd_create_node-1_sdb", CreateFlowName(graph))
	assert.Equal(t, "osd_delete_node-1_sdb", DestroyFlowName(graph))

	stored, err := fake.Store.Nodes().Get(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", stored.Password)
}

func TestCreateOsd(t *testing.T) {
	ctx := context.Background()
	fake, node, agent := newOsdContext(t, osdReactions())
	require.NoError(t, addOsdConfig(ctx, fake))
	osd := fake.AddOsd(t, node, "sdb", "", objects.OsdStatusCreating)

	require.NoError(t, Create(ctx, fake.Context, osd.ID))

	assert.Equal(t, []taskState{
		{Name: "OsdConfigSet", Status: objects.TaskStatusSuccess},
		{Name: "OsdPrepare", Status: objects.TaskStatusSuccess},
		{Name: "OsdActive", Status: objects.TaskStatusSuccess},
		{Name: "OsdWaitUp", Status: objects.TaskStatusSuccess},
	}, taskStates(t, fake))
	assert.Equal(t, []string{
		rpc.MethodCephConfWrite,
		rpc.MethodCephKeyringWrite + " " + dspcommon.CephAdminKeyringFile,
		rpc.MethodCephKeyringWrite + " " + dspcommon.CephBootstrapOsdKey,
		rpc.MethodCephPrepareDisk + " sdb",
		rpc.MethodCephActiveDisk + " sdb",
	}, agent.Calls())
	assert.Equal(t, "[global]\nfsid = "+unitinputs.ClusterFsid+"\nmon_host = "+unitinputs.MonHost+"\n\n[osd]\nosd_max_backfills = 1\n",
		agent.Files[dspcommon.CephConfigFile])
	assert.Equal(t, faketestclients.AdminKeyring, agent.Files[dspcommon.CephAdminKeyringFile])
	assert.Equal(t, faketestclients.BootstrapOsdKeyring, agent.Files[dspcommon.CephBootstrapOsdKey])

	stored, err := fake.Store.Osds().Get(ctx, osd.ID)
	require.NoError(t, err)
	assert.Equal(t, objects.OsdStatusActive, stored.Status)
	require.NotNil(t, stored.OsdID)
	assert.Equal(t, "3", *stored.OsdID)
	require.NotNil(t, stored.Fsid)
	assert.Equal(t, "0f8bd3a4-d2e5-4bc7-8ed5-6bdc0eb9d54a", *stored.Fsid)
	assert.Equal(t, osdSize, stored.Size)
	assert.Empty(t, fake.Alerts.Alerts())
}

// addOsdConfig adds osd and mon sections, mon one is not pushed to osd nodes.
func addOsdConfig(ctx context.Context, fake *faketestclients.FakeControllerContext) error {
	for _, entry := range []objects.CephConfig{
		{ClusterID: fake.Cluster.UUID, Group: "osd", Key: "osd_max_backfills", Value: "1"},
		{ClusterID: fake.Cluster.UUID, Group: "mon", Key: "mon_allow_pool_delete", Value: "true"},
	} {
		if err := fake.Store.CephConfigs().Create(ctx, &entry); err != nil {
			return err
		}
	}
	return nil
}

func TestCreateOsdWaitsUntilUp(t *testing.T) {
	ctx := context.Background()
	reactions := osdReactions()
	reactions["ceph osd tree"] = faketestclients.CommandReaction{Outputs: []faketestclients.CommandReaction{
		{Stdout: unitinputs.BuildOsdTree(unitinputs.OsdTreeEntry{ID: 3, Host: "node-1", In: true, SizeTiB: 1})},
		{Stdout: unitinputs.BuildOsdTree(unitinputs.OsdTreeEntry{ID: 3, Host: "node-1", In: true, SizeTiB: 1})},
		{Stdout: unitinputs.BuildOsdTree(unitinputs.OsdTreeEntry{ID: 3, Host: "node-1", Up: true, In: true, SizeTiB: 1})},
	}}
	fake, node, _ := newOsdContext(t, reactions)
	osd := fake.AddOsd(t, node, "sdb", "", objects.OsdStatusCreating)

	require.NoError(t, Create(ctx, fake.Context, osd.ID))

	assert.Len(t, fake.Exec.CommandsWithPrefix("ceph osd tree"), 3)
	stored, err := fake.Store.Osds().Get(ctx, osd.ID)
	require.NoError(t, err)
	assert.Equal(t, objects.OsdStatusActive, stored.Status)
}

func TestCreateOsdActivateFailure(t *testing.T) {
	ctx := context.Background()
	fake, node, agent := newOsdContext(t, osdReactions())
	agent.SetError(rpc.MethodCephActiveDisk, &dspcommon.CommandError{
		Command:  "ceph-disk activate /dev/sdb1",
		ExitCode: 1,
		Stderr:   "mount: /var/lib/ceph/tmp/mnt.Xb3: wrong fs type",
	})
	osd := fake.AddOsd(t, node, "sdb", "", objects.OsdStatusCreating)

	err := Create(ctx, fake.Context, osd.ID)
	require.Error(t, err)

	assert.Len(t, agent.CallsOf(rpc.MethodCephActiveDisk), activeAttempts)
	assert.Equal(t, []string{rpc.MethodCephOsdDestroy + " sdb"}, agent.CallsOf(rpc.MethodCephOsdDestroy))
	assert.Equal(t, []taskState{
		{Name: "OsdConfigSet", Status: objects.TaskStatusSuccess},
		{Name: "OsdPrepare", Status: objects.TaskStatusSuccess},
		{Name: "OsdActive", Status: objects.TaskStatusFailed},
	}, taskStates(t, fake))

	flows, err := fake.Store.Taskflows().List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, "osd_create_node-1_sdb", flows[0].Name)
	assert.Equal(t, objects.TaskStatusFailed, flows[0].Status)
	assert.Contains(t, flows[0].Reason, "wrong fs type")

	stored, err := fake.Store.Osds().Get(ctx, osd.ID)
	require.NoError(t, err)
	assert.Equal(t, objects.OsdStatusError, stored.Status)
	assert.Nil(t, stored.Fsid)
	assert.Nil(t, stored.OsdID)
	assert.Equal(t, []objects.AlertCategory{objects.AlertOsdError}, fake.Alerts.Categories())
	assert.Empty(t, fake.Exec.CommandsWithPrefix("ceph osd rm"))
}

func TestCreateOsdMissingAdminKeyring(t *testing.T) {
	ctx := context.Background()
	fake, node, agent := newOsdContext(t, osdReactions())
	delete(fake.Exec.Files, dspcommon.ClusterAdminKeyringFile(fake.Cluster.UUID))
	osd := fake.AddOsd(t, node, "sdb", "", objects.OsdStatusCreating)

	err := Create(ctx, fake.Context, osd.ID)
	require.Error(t, err)
	assert.True(t, dspcommon.IsNotFound(err))
	assert.Empty(t, agent.CallsOf(rpc.MethodCephPrepareDisk))

	stored, err := fake.Store.Osds().Get(ctx, osd.ID)
	require.NoError(t, err)
	assert.Equal(t, objects.OsdStatusError, stored.Status)
}

func TestCreateOsdInvalidStatus(t *testing.T) {
	ctx := context.Background()
	fake, node, agent := newOsdContext(t, osdReactions())
	osd := fake.AddOsd(t, node, "sdb", "3", objects.OsdStatusActive)

	err := Create(ctx, fake.Context, osd.ID)
	assert.EqualError(t, err, "osd on disk 'sdb' is in 'active' status, expected 'creating'")
	assert.Empty(t, agent.Calls())
}

func TestDestroyOsd(t *testing.T) {
	ctx := context.Background()
	fake, node, agent := newOsdContext(t, osdReactions())
	osd := fake.AddOsd(t, node, "sdb", "3", objects.OsdStatusActive)
	cacheDisk := &objects.Disk{ClusterID: fake.Cluster.UUID, NodeID: node.ID, Name: "sdc", Role: objects.DiskRoleCache, Status: objects.DiskStatusInUse}
	require.NoError(t, fake.Store.Disks().Create(ctx, cacheDisk))
	dbPart := &objects.DiskPartition{ClusterID: fake.Cluster.UUID, NodeID: node.ID, DiskID: cacheDisk.ID, Name: "sdc1", Role: objects.PartitionRoleDB, Status: objects.PartitionStatusInUse}
	require.NoError(t, fake.Store.Partitions().Create(ctx, dbPart))
	_, err := fake.Store.Osds().CompareAndUpdate(ctx, osd.ID, nil, func(o *objects.Osd) { o.DBPartitionID = objects.Int64Ptr(dbPart.ID) })
	require.NoError(t, err)

	require.NoError(t, Destroy(ctx, fake.Context, osd.ID))

	assert.Equal(t, []string{
		rpc.MethodServiceStop + " ceph-osd@3",
		rpc.MethodCephOsdDestroy + " osd.3",
	}, agent.Calls())
	assert.Equal(t, []string{
		"ceph osd out osd.3" + faketestclients.CephArgs,
		"ceph osd down osd.3" + faketestclients.CephArgs,
		"ceph osd out osd.3" + faketestclients.CephArgs,
		"ceph osd crush rm osd.3" + faketestclients.CephArgs,
		"ceph osd rm osd.3" + faketestclients.CephArgs,
		"ceph auth del osd.3" + faketestclients.CephArgs,
	}, fake.Exec.Commands())
	assert.Equal(t, []taskState{
		{Name: "OsdMarkOut", Status: objects.TaskStatusSuccess},
		{Name: "OsdStopService", Status: objects.TaskStatusSuccess},
		{Name: "OsdZap", Status: objects.TaskStatusSuccess},
		{Name: "OsdRemoveFromCluster", Status: objects.TaskStatusSuccess},
		{Name: "OsdClearPartitions", Status: objects.TaskStatusSuccess},
		{Name: "OsdDeleteRow", Status: objects.TaskStatusSuccess},
	}, taskStates(t, fake))

	_, err = fake.Store.Osds().Get(ctx, osd.ID)
	assert.True(t, dspcommon.IsNotFound(err))
	part, err := fake.Store.Partitions().Get(ctx, dbPart.ID)
	require.NoError(t, err)
	assert.Equal(t, objects.PartitionStatusAvailable, part.Status)
	disk, err := fake.Store.Disks().Get(ctx, osd.DiskID)
	require.NoError(t, err)
	assert.Equal(t, objects.DiskStatusAvailable, disk.Status)
}

func TestDestroyOsdNeverActivated(t *testing.T) {
	ctx := context.Background()
	fake, node, agent := newOsdContext(t, osdReactions())
	osd := fake.AddOsd(t, node, "sdb", "", objects.OsdStatusError)

	require.NoError(t, Destroy(ctx, fake.Context, osd.ID))
	assert.Equal(t, []string{rpc.MethodCephOsdDestroy + " sdb"}, agent.Calls())
	assert.Empty(t, fake.Exec.Commands())
}

func TestDestroyOsdBusy(t *testing.T) {
	ctx := context.Background()
	fake, node, agent := newOsdContext(t, osdReactions())
	osd := fake.AddOsd(t, node, "sdb", "", objects.OsdStatusCreating)

	err := Destroy(ctx, fake.Context, osd.ID)
	assert.EqualError(t, err, "osd on disk 'sdb' is busy")
	assert.Empty(t, agent.Calls())
}

func TestDestroyOsdFailure(t *testing.T) {
	ctx := context.Background()
	fake, node, agent := newOsdContext(t, osdReactions())
	agent.SetError(rpc.MethodServiceStop, dspcommon.NewError(dspcommon.ErrNotReady, "agent on node 'node-1' is not reachable"))
	osd := fake.AddOsd(t, node, "sdb", "3", objects.OsdStatusOffline)

	err := Destroy(ctx, fake.Context, osd.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not reachable")

	stored, err := fake.Store.Osds().Get(ctx, osd.ID)
	require.NoError(t, err)
	assert.Equal(t, objects.OsdStatusError, stored.Status)
}
