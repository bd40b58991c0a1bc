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


package helpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
	"github.com/Mirantis/dspace/pkg/controller"
	"github.com/Mirantis/dspace/pkg/coordinator"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/state"
	"github.com/Mirantis/dspace/pkg/taskflow"
	unitinputs "github.com/Mirantis/dspace/test/unit/inputs"
)

// FakeControllerContext is controller context backed by in-memory store
// and fake collaborators.
type FakeControllerContext struct {
	*controller.Context
	Store     db.Store
	Exec      *FakeExecutor
	Agents    *FakeAgents
	Alerts    *FakeAlerts
	Submitter *FakeSubmitter
	Remotes   *FakeRemotes
	Cluster   *objects.Cluster
}

// NewFakeControllerContext creates cluster unitinputs.ClusterID with
// configured mon_host and admin keyring, cephx is enabled.
func NewFakeControllerContext(t *testing.T, reactions map[string]CommandReaction, hostnames ...string) *FakeControllerContext {
	ctx := context.Background()
	log := dspcommon.InitLogger(true)
	store := db.NewMemoryStore()
	exec := NewFakeExecutor(reactions)
	coord := coordinator.NewMemoryCoordinator()
	cfg := config.Default()
	st := state.New()

	cluster := &objects.Cluster{UUID: unitinputs.ClusterID, Name: "cluster", CephStatus: true, Status: objects.ClusterStatusActive}
	require.NoError(t, store.Clusters().Create(ctx, cluster))
	require.NoError(t, db.SetCephConfigValue(ctx, store, cluster.UUID, "global", "fsid", unitinputs.ClusterFsid))
	require.NoError(t, db.SetCephConfigValue(ctx, store, cluster.UUID, "global", "mon_host", unitinputs.MonHost))
	exec.Files[dspcommon.ClusterAdminKeyringFile(cluster.UUID)] = []byte(AdminKeyring)

	fake := &FakeControllerContext{
		Store:     store,
		Exec:      exec,
		Agents:    NewFakeAgents(hostnames...),
		Alerts:    &FakeAlerts{},
		Submitter: &FakeSubmitter{},
		Remotes:   NewFakeRemotes(nil),
		Cluster:   cluster,
	}
	fake.Context = &controller.Context{
		Log:     log,
		Config:  cfg,
		DB:      store,
		Coord:   coord,
		Flows:   taskflow.NewEngine(log, store, coord, st.Tasks),
		Agents:  fake.Agents,
		Ceph:    controller.NewCephConnector(log, exec, store, cfg.EnableCephx, cfg.CephCommandTimeout),
		Alerts:  fake.Alerts,
		Workers: fake.Submitter,
		State:   st,
		Exec:    exec,
		Remotes: fake.Remotes,
	}
	return fake
}

const AdminKeyring = `[client.admin]
	key = AQDxuVVmAAAAABAAc2p0G2f4vV3hG0dKx7Y4wQ==
	caps mds = "allow *"
	caps mgr = "allow *"
	caps mon = "allow *"
	caps osd = "allow *"
`

const BootstrapOsdKeyring = `[client.bootstrap-osd]
	key = AQDyuVVmAAAAABAAbq1C1m2D8G0b5nqK2yJ2Sw==
`

// CephArgs are appended by ceph client of fake controller context.
const CephArgs = " --format json -m " + unitinputs.MonHost + " --connect-timeout 10 -c /etc/ceph/" + unitinputs.ClusterID +
	"/ceph.conf --keyring /etc/ceph/" + unitinputs.ClusterID + "/ceph.client.admin.keyring"

// TopologyNode describes node created by AddNodes.
type TopologyNode struct {
	Hostname   string
	IP         string
	Rack       string
	Datacenter string
	Roles      objects.NodeRoles
}

// AddNodes creates nodes with optional racks and datacenters shared by name.
func (f *FakeControllerContext) AddNodes(t *testing.T, nodes ...TopologyNode) []*objects.Node {
	ctx := context.Background()
	racks := map[string]int64{}
	dcs := map[string]int64{}
	created := []*objects.Node{}
	for _, spec := range nodes {
		node := &objects.Node{
			ClusterID: f.Cluster.UUID,
			Hostname:  spec.Hostname,
			IPAddress: spec.IP,
			ClusterIP: spec.IP,
			PublicIP:  spec.IP,
			Roles:     spec.Roles,
			Status:    objects.NodeStatusActive,
		}
		if spec.Rack != "" {
			if _, ok := racks[spec.Rack]; !ok {
				rack := &objects.Rack{ClusterID: f.Cluster.UUID, Name: spec.Rack}
				if spec.Datacenter != "" {
					if _, ok := dcs[spec.Datacenter]; !ok {
						dc := &objects.Datacenter{ClusterID: f.Cluster.UUID, Name: spec.Datacenter}
						require.NoError(t, f.Store.Datacenters().Create(ctx, dc))
						dcs[spec.Datacenter] = dc.ID
					}
					rack.DatacenterID = objects.Int64Ptr(dcs[spec.Datacenter])
				}
				require.NoError(t, f.Store.Racks().Create(ctx, rack))
				racks[spec.Rack] = rack.ID
			}
			node.RackID = objects.Int64Ptr(racks[spec.Rack])
		}
		require.NoError(t, f.Store.Nodes().Create(ctx, node))
		if f.Agents.Get(spec.Hostname) == nil {
			f.Agents.Set(spec.Hostname, NewFakeAgent())
		}
		created = append(created, node)
	}
	return created
}

// AddOsd creates data disk and osd row on node, osdID may be empty for
// osd which is not activated yet.
func (f *FakeControllerContext) AddOsd(t *testing.T, node *objects.Node, diskName, osdID string, status objects.OsdStatus) *objects.Osd {
	ctx := context.Background()
	disk := &objects.Disk{
		ClusterID: f.Cluster.UUID,
		NodeID:    node.ID,
		Name:      diskName,
		Size:      1 << 40,
		Type:      objects.DiskTypeHDD,
		Role:      objects.DiskRoleData,
		Status:    objects.DiskStatusInUse,
	}
	require.NoError(t, f.Store.Disks().Create(ctx, disk))
	osd := &objects.Osd{
		ClusterID: f.Cluster.UUID,
		NodeID:    node.ID,
		DiskID:    disk.ID,
		Size:      1 << 40,
		Type:      objects.OsdTypeBluestore,
		DiskType:  objects.DiskTypeHDD,
		Status:    status,
	}
	if osdID != "" {
		osd.OsdID = objects.StringPtr(osdID)
		osd.Fsid = objects.StringPtr("fsid-" + osdID)
	}
	require.NoError(t, f.Store.Osds().Create(ctx, osd))
	return osd
}

// OsdStatuses returns statuses of cluster osds ordered by row id.
func (f *FakeControllerContext) OsdStatuses(t *testing.T) []objects.OsdStatus {
	osds, err := db.ListOsds(context.Background(), f.Store, f.Cluster.UUID)
	require.NoError(t, err)
	statuses := []objects.OsdStatus{}
	for _, osd := range osds {
		statuses = append(statuses, osd.Status)
	}
	return statuses
}

var _ controller.Remotes = &FakeRemotes{}

func (r *FakeRemotes) ForNode(_ context.Context, node *objects.Node) (executor.Executor, error) {
	r.mu.Lock()
	err := r.DialErrors[node.Hostname]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.Get(node.Hostname), nil
}
