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


package db

import (
	"context"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/objects"
)

func GetClusterByUUID(ctx context.Context, store Store, uuid string) (*objects.Cluster, error) {
	clusters, err := store.Clusters().List(ctx, func(c *objects.Cluster) bool { return c.UUID == uuid })
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrNotFound, "cluster '%s' not found", uuid)
	}
	return clusters[0], nil
}

func ListNodes(ctx context.Context, store Store, clusterID string) ([]*objects.Node, error) {
	return store.Nodes().List(ctx, func(n *objects.Node) bool { return n.ClusterID == clusterID })
}

func GetNodeByIP(ctx context.Context, store Store, ip string) (*objects.Node, error) {
	nodes, err := store.Nodes().List(ctx, func(n *objects.Node) bool { return n.IPAddress == ip })
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrNotFound, "node with ip '%s' not found", ip)
	}
	return nodes[0], nil
}

func ListOsds(ctx context.Context, store Store, clusterID string) ([]*objects.Osd, error) {
	return store.Osds().List(ctx, func(o *objects.Osd) bool { return o.ClusterID == clusterID })
}

func ListNodeOsds(ctx context.Context, store Store, nodeID int64) ([]*objects.Osd, error) {
	return store.Osds().List(ctx, func(o *objects.Osd) bool { return o.NodeID == nodeID })
}

// OsdStatusCAS moves osd to status only while it is in one of from statuses.
func OsdStatusCAS(ctx context.Context, store Store, id int64, from []objects.OsdStatus, to objects.OsdStatus) (bool, error) {
	return store.Osds().CompareAndUpdate(ctx, id,
		func(o *objects.Osd) bool {
			for _, status := range from {
				if o.Status == status {
					return true
				}
			}
			return false
		},
		func(o *objects.Osd) {
			o.Status = to
			o.LastStatusChange = dspcommon.GetCurrentTime()
		})
}

func NodeStatusCAS(ctx context.Context, store Store, id int64, from, to objects.NodeStatus) (bool, error) {
	return store.Nodes().CompareAndUpdate(ctx, id,
		func(n *objects.Node) bool { return n.Status == from },
		func(n *objects.Node) { n.Status = to })
}

func ClusterCephStatusCAS(ctx context.Context, store Store, id int64, from, to bool) (bool, error) {
	return store.Clusters().CompareAndUpdate(ctx, id,
		func(c *objects.Cluster) bool { return c.CephStatus == from },
		func(c *objects.Cluster) { c.CephStatus = to })
}

// GetCephConfigs returns cluster ceph config grouped by section.
func GetCephConfigs(ctx context.Context, store Store, clusterID string) (map[string]map[string]string, error) {
	rows, err := store.CephConfigs().List(ctx, func(c *objects.CephConfig) bool { return c.ClusterID == clusterID })
	if err != nil {
		return nil, err
	}
	result := map[string]map[string]string{}
	for _, row := range rows {
		if _, ok := result[row.Group]; !ok {
			result[row.Group] = map[string]string{}
		}
		result[row.Group][row.Key] = row.Value
	}
	return result, nil
}

func GetCephConfigValue(ctx context.Context, store Store, clusterID, group, key string) (string, error) {
	rows, err := store.CephConfigs().List(ctx, func(c *objects.CephConfig) bool {
		return c.ClusterID == clusterID && c.Group == group && c.Key == key
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Value, nil
}

// SetCephConfigValue inserts or updates single ceph config entry.
func SetCephConfigValue(ctx context.Context, store Store, clusterID, group, key, value string) error {
	rows, err := store.CephConfigs().List(ctx, func(c *objects.CephConfig) bool {
		return c.ClusterID == clusterID && c.Group == group && c.Key == key
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return store.CephConfigs().Create(ctx, &objects.CephConfig{ClusterID: clusterID, Group: group, Key: key, Value: value})
	}
	rows[0].Value = value
	return store.CephConfigs().Update(ctx, rows[0])
}

func FindRPCService(ctx context.Context, store Store, serviceName, clusterID string, nodeID int64) (*objects.RPCService, error) {
	services, err := store.RPCServices().List(ctx, func(s *objects.RPCService) bool {
		if s.ServiceName != serviceName || s.ClusterID != clusterID {
			return false
		}
		return nodeID == 0 || s.NodeID == nodeID
	})
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrNotFound, "rpc service '%s' for cluster '%s' node %d not found", serviceName, clusterID, nodeID)
	}
	return services[0], nil
}

// EnsureService creates active service row of node unless it exists.
func EnsureService(ctx context.Context, store Store, node *objects.Node, name, role string) error {
	services, err := store.Services().List(ctx, func(s *objects.Service) bool { return s.NodeID == node.ID && s.Name == name })
	if err != nil || len(services) > 0 {
		return err
	}
	return store.Services().Create(ctx, &objects.Service{
		ClusterID: node.ClusterID,
		NodeID:    node.ID,
		Name:      name,
		Role:      role,
		Status:    objects.ServiceStatusActive,
	})
}

func DeleteService(ctx context.Context, store Store, nodeID int64, name string) error {
	_, err := store.Services().DeleteWhere(ctx, func(s *objects.Service) bool { return s.NodeID == nodeID && s.Name == name })
	return err
}

func deleteRows[T any](ctx context.Context, repo Repo[T], filter Filter[T]) error {
	_, err := repo.DeleteWhere(ctx, filter)
	return err
}

// DeleteClusterRows removes every resource row of cluster, dependent rows
// first. Cluster row, taskflow history and alert log are kept.
func DeleteClusterRows(ctx context.Context, store Store, clusterID string) error {
	steps := []func() error{
		func() error {
			return deleteRows(ctx, store.VolumeSnapshots(), func(s *objects.VolumeSnapshot) bool { return s.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.Volumes(), func(v *objects.Volume) bool { return v.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.VolumeAccessPaths(), func(v *objects.VolumeAccessPath) bool { return v.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.VolumeClientGroups(), func(v *objects.VolumeClientGroup) bool { return v.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.RadosgwRouters(), func(r *objects.RadosgwRouter) bool { return r.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.Radosgws(), func(r *objects.Radosgw) bool { return r.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.RadosgwZones(), func(z *objects.RadosgwZone) bool { return z.ClusterID == clusterID })
		},
		func() error { return deleteRows(ctx, store.Osds(), func(o *objects.Osd) bool { return o.ClusterID == clusterID }) },
		func() error {
			return deleteRows(ctx, store.Partitions(), func(p *objects.DiskPartition) bool { return p.ClusterID == clusterID })
		},
		func() error { return deleteRows(ctx, store.Disks(), func(d *objects.Disk) bool { return d.ClusterID == clusterID }) },
		func() error { return deleteRows(ctx, store.Pools(), func(p *objects.Pool) bool { return p.ClusterID == clusterID }) },
		func() error {
			return deleteRows(ctx, store.CrushRules(), func(r *objects.CrushRule) bool { return r.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.Networks(), func(n *objects.Network) bool { return n.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.Services(), func(s *objects.Service) bool { return s.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.RPCServices(), func(s *objects.RPCService) bool { return s.ClusterID == clusterID })
		},
		func() error { return deleteRows(ctx, store.Nodes(), func(n *objects.Node) bool { return n.ClusterID == clusterID }) },
		func() error { return deleteRows(ctx, store.Racks(), func(r *objects.Rack) bool { return r.ClusterID == clusterID }) },
		func() error {
			return deleteRows(ctx, store.Datacenters(), func(d *objects.Datacenter) bool { return d.ClusterID == clusterID })
		},
		func() error {
			return deleteRows(ctx, store.CephConfigs(), func(c *objects.CephConfig) bool { return c.ClusterID == clusterID })
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
