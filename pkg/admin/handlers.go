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


package admin

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

// Router builds method table agents call admin with.
func (a *Admin) Router() *rpc.Router {
	r := rpc.NewRouter(rpc.AdminService)
	r.Register(rpc.MethodNodeGet, rpc.Typed(a.NodeGet))
	r.Register(rpc.MethodDiskOnline, rpc.Typed(a.DiskOnline))
	r.Register(rpc.MethodDiskOffline, rpc.Typed(a.DiskOffline))
	r.Register(rpc.MethodNetworkAdd, rpc.Typed(a.NetworkAdd))
	r.Register(rpc.MethodNetworkRemove, rpc.Typed(a.NetworkRemove))
	return r
}

// NodeGet resolves node of calling agent by its admin ip and registers
// agent endpoint when the agent announced its port.
func (a *Admin) NodeGet(ctx context.Context, req rpc.NodeGetRequest) (*objects.Node, error) {
	if req.IPAddress == "" {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "ip address of node '%s' is empty", req.Hostname)
	}
	node, err := db.GetNodeByIP(ctx, a.c.DB, req.IPAddress)
	if err != nil {
		return nil, err
	}
	if req.Hostname != "" && node.Hostname != req.Hostname {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "node with ip '%s' is '%s', not '%s'", req.IPAddress, node.Hostname, req.Hostname)
	}
	if node.Status == objects.NodeStatusDeleting {
		return nil, dspcommon.NewError(dspcommon.ErrNotReady, "node '%s' is being deleted", node.Hostname)
	}
	if req.Port > 0 {
		_, err := rpc.RegisterService(ctx, a.c.DB, objects.RPCService{
			ServiceName: dspcommon.AgentServiceName,
			Hostname:    node.Hostname,
			NodeID:      node.ID,
			ClusterID:   node.ClusterID,
			Endpoint:    objects.Endpoint{IP: req.IPAddress, Port: req.Port},
		})
		if err != nil {
			return nil, err
		}
	}
	a.log.Info().Msgf("agent of node '%s' registered at %s:%d", node.Hostname, req.IPAddress, req.Port)
	node.Password = ""
	return node, nil
}

func findDisk(ctx context.Context, store db.Store, nodeID int64, name string) (*objects.Disk, error) {
	disks, err := store.Disks().List(ctx, func(d *objects.Disk) bool { return d.NodeID == nodeID && d.Name == name })
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list disks of node %d", nodeID)
	}
	if len(disks) == 0 {
		return nil, nil
	}
	return disks[0], nil
}

// DiskOnline records disk found on node. Known disk is refreshed and
// becomes available again when it was removed.
func (a *Admin) DiskOnline(ctx context.Context, req rpc.DiskEventRequest) (rpc.Empty, error) {
	node, err := a.c.DB.Nodes().Get(ctx, req.NodeID)
	if err != nil {
		return rpc.Empty{}, err
	}
	info := req.Disk.Disk
	if info.Name == "" {
		return rpc.Empty{}, dspcommon.NewError(dspcommon.ErrInvalid, "disk name of node '%s' is empty", node.Hostname)
	}
	disk, err := findDisk(ctx, a.c.DB, node.ID, info.Name)
	if err != nil {
		return rpc.Empty{}, err
	}
	if disk == nil {
		disk = &info
		disk.ClusterID = node.ClusterID
		disk.NodeID = node.ID
		disk.Status = objects.DiskStatusAvailable
		if disk.Role == "" {
			disk.Role = objects.DiskRoleData
		}
		if err := a.c.DB.Disks().Create(ctx, disk); err != nil {
			return rpc.Empty{}, errors.Wrapf(err, "failed to create disk '%s' of node '%s'", info.Name, node.Hostname)
		}
		if err := a.addPartitions(ctx, node, disk, req.Disk.Partitions); err != nil {
			return rpc.Empty{}, err
		}
	} else {
		disk.Size = info.Size
		disk.Type = info.Type
		disk.Slot = info.Slot
		disk.Model = info.Model
		disk.Serial = info.Serial
		disk.Wwid = info.Wwid
		disk.SupportLed = info.SupportLed
		if disk.Status == objects.DiskStatusRemoved {
			disk.Status = objects.DiskStatusAvailable
		}
		if err := a.c.DB.Disks().Update(ctx, disk); err != nil {
			return rpc.Empty{}, errors.Wrapf(err, "failed to update disk '%s' of node '%s'", info.Name, node.Hostname)
		}
	}
	a.c.Alert(ctx, diskAlert(node, disk, objects.AlertInfo, objects.AlertDiskOnline,
		fmt.Sprintf("disk '%s' of node '%s' is online", disk.Name, node.Hostname)))
	return rpc.Empty{}, nil
}

func (a *Admin) addPartitions(ctx context.Context, node *objects.Node, disk *objects.Disk, partitions []objects.DiskPartition) error {
	for i := range partitions {
		part := partitions[i]
		part.ClusterID = node.ClusterID
		part.NodeID = node.ID
		part.DiskID = disk.ID
		if part.Status == "" {
			part.Status = objects.PartitionStatusAvailable
		}
		if err := a.c.DB.Partitions().Create(ctx, &part); err != nil {
			return errors.Wrapf(err, "failed to create partition '%s' of node '%s'", part.Name, node.Hostname)
		}
	}
	return nil
}

// DiskOffline marks disk removed, unknown disks are ignored.
func (a *Admin) DiskOffline(ctx context.Context, req rpc.DiskEventRequest) (rpc.Empty, error) {
	node, err := a.c.DB.Nodes().Get(ctx, req.NodeID)
	if err != nil {
		return rpc.Empty{}, err
	}
	disk, err := findDisk(ctx, a.c.DB, node.ID, req.Disk.Disk.Name)
	if err != nil {
		return rpc.Empty{}, err
	}
	if disk == nil {
		a.log.Debug().Msgf("offline disk '%s' of node '%s' is unknown", req.Disk.Disk.Name, node.Hostname)
		return rpc.Empty{}, nil
	}
	if disk.Status == objects.DiskStatusRemoved {
		return rpc.Empty{}, nil
	}
	disk.Status = objects.DiskStatusRemoved
	if err := a.c.DB.Disks().Update(ctx, disk); err != nil {
		return rpc.Empty{}, errors.Wrapf(err, "failed to update disk '%s' of node '%s'", disk.Name, node.Hostname)
	}
	a.c.Alert(ctx, diskAlert(node, disk, objects.AlertWarn, objects.AlertDiskOffline,
		fmt.Sprintf("disk '%s' of node '%s' is offline", disk.Name, node.Hostname)))
	return rpc.Empty{}, nil
}

func diskAlert(node *objects.Node, disk *objects.Disk, level objects.AlertLevel, category objects.AlertCategory, message string) objects.Alert {
	return objects.Alert{
		ClusterID:    node.ClusterID,
		ResourceType: objects.ResourceDisk,
		ResourceID:   strconv.FormatInt(disk.ID, 10),
		ResourceName: disk.Name,
		Level:        level,
		Category:     category,
		Message:      message,
	}
}

func findNetwork(ctx context.Context, store db.Store, nodeID int64, name string) (*objects.Network, error) {
	networks, err := store.Networks().List(ctx, func(n *objects.Network) bool { return n.NodeID == nodeID && n.Name == name })
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list networks of node %d", nodeID)
	}
	if len(networks) == 0 {
		return nil, nil
	}
	return networks[0], nil
}

// NetworkAdd records interface which came up on node.
func (a *Admin) NetworkAdd(ctx context.Context, req rpc.NetworkEventRequest) (rpc.Empty, error) {
	return rpc.Empty{}, a.networkChanged(ctx, req, objects.NetworkStatusUp)
}

// NetworkRemove marks interface of node down, the row is kept.
func (a *Admin) NetworkRemove(ctx context.Context, req rpc.NetworkEventRequest) (rpc.Empty, error) {
	return rpc.Empty{}, a.networkChanged(ctx, req, objects.NetworkStatusDown)
}

func (a *Admin) networkChanged(ctx context.Context, req rpc.NetworkEventRequest, status objects.NetworkStatus) error {
	node, err := a.c.DB.Nodes().Get(ctx, req.NodeID)
	if err != nil {
		return err
	}
	if req.Network.Name == "" {
		return dspcommon.NewError(dspcommon.ErrInvalid, "network name of node '%s' is empty", node.Hostname)
	}
	network, err := findNetwork(ctx, a.c.DB, node.ID, req.Network.Name)
	if err != nil {
		return err
	}
	switch {
	case network == nil && status == objects.NetworkStatusDown:
		a.log.Debug().Msgf("removed network '%s' of node '%s' is unknown", req.Network.Name, node.Hostname)
		return nil
	case network == nil:
		network = &req.Network
		network.ClusterID = node.ClusterID
		network.NodeID = node.ID
		network.Status = status
		if err := a.c.DB.Networks().Create(ctx, network); err != nil {
			return errors.Wrapf(err, "failed to create network '%s' of node '%s'", network.Name, node.Hostname)
		}
	default:
		if status == objects.NetworkStatusUp {
			network.MAC = req.Network.MAC
			network.IPAddress = req.Network.IPAddress
			network.Netmask = req.Network.Netmask
			network.Speed = req.Network.Speed
		}
		network.Status = status
		if err := a.c.DB.Networks().Update(ctx, network); err != nil {
			return errors.Wrapf(err, "failed to update network '%s' of node '%s'", network.Name, node.Hostname)
		}
	}
	level := objects.AlertInfo
	if status == objects.NetworkStatusDown {
		level = objects.AlertWarn
	}
	a.c.Alert(ctx, objects.Alert{
		ClusterID:    node.ClusterID,
		ResourceType: objects.ResourceNetwork,
		ResourceID:   strconv.FormatInt(network.ID, 10),
		ResourceName: network.Name,
		Level:        level,
		Category:     objects.AlertNetworkChange,
		Message:      fmt.Sprintf("network '%s' of node '%s' is %s", network.Name, node.Hostname, status),
	})
	return nil
}
