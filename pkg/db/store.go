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

	"github.com/Mirantis/dspace/pkg/objects"
)

// Filter selects rows, nil filter selects everything.
type Filter[T any] func(*T) bool

// Repo is the persistence contract for single entity table. Every status
// transition goes through CompareAndUpdate so concurrent writers never
// overwrite each other's decision.
type Repo[T any] interface {
	Create(ctx context.Context, obj *T) error
	Get(ctx context.Context, id int64) (*T, error)
	List(ctx context.Context, filter Filter[T]) ([]*T, error)
	Update(ctx context.Context, obj *T) error
	// CompareAndUpdate applies mutate only if expect matches the current row.
	CompareAndUpdate(ctx context.Context, id int64, expect Filter[T], mutate func(*T)) (bool, error)
	Delete(ctx context.Context, id int64) error
	DeleteWhere(ctx context.Context, filter Filter[T]) (int, error)
}

type Store interface {
	Clusters() Repo[objects.Cluster]
	Nodes() Repo[objects.Node]
	Racks() Repo[objects.Rack]
	Datacenters() Repo[objects.Datacenter]
	Disks() Repo[objects.Disk]
	Partitions() Repo[objects.DiskPartition]
	Osds() Repo[objects.Osd]
	Pools() Repo[objects.Pool]
	CrushRules() Repo[objects.CrushRule]
	Networks() Repo[objects.Network]
	Services() Repo[objects.Service]
	RadosgwZones() Repo[objects.RadosgwZone]
	Radosgws() Repo[objects.Radosgw]
	RadosgwRouters() Repo[objects.RadosgwRouter]
	Volumes() Repo[objects.Volume]
	VolumeSnapshots() Repo[objects.VolumeSnapshot]
	VolumeAccessPaths() Repo[objects.VolumeAccessPath]
	VolumeClientGroups() Repo[objects.VolumeClientGroup]
	RPCServices() Repo[objects.RPCService]
	CephConfigs() Repo[objects.CephConfig]
	Taskflows() Repo[objects.Taskflow]
	Tasks() Repo[objects.Task]
	AlertLogs() Repo[objects.AlertLog]
}
