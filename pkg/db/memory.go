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
	"sort"
	"sync"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/objects"
)

type table[T any, PT interface {
	*T
	objects.Object
}] struct {
	mu     sync.RWMutex
	name   string
	nextID int64
	rows   map[int64]T
}

func newTable[T any, PT interface {
	*T
	objects.Object
}](name string) *table[T, PT] {
	return &table[T, PT]{name: name, rows: map[int64]T{}}
}

func (t *table[T, PT]) Create(ctx context.Context, obj *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	PT(obj).SetID(t.nextID)
	PT(obj).Touch(dspcommon.GetCurrentTime())
	t.rows[t.nextID] = *obj
	return nil
}

func (t *table[T, PT]) Get(ctx context.Context, id int64) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok {
		return nil, dspcommon.NewError(dspcommon.ErrNotFound, "%s with id %d not found", t.name, id)
	}
	return &row, nil
}

func (t *table[T, PT]) List(ctx context.Context, filter Filter[T]) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := []*T{}
	for _, id := range ids {
		row := t.rows[id]
		if filter == nil || filter(&row) {
			result = append(result, &row)
		}
	}
	return result, nil
}

func (t *table[T, PT]) Update(ctx context.Context, obj *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := PT(obj).GetID()
	if _, ok := t.rows[id]; !ok {
		return dspcommon.NewError(dspcommon.ErrNotFound, "%s with id %d not found", t.name, id)
	}
	PT(obj).Touch(dspcommon.GetCurrentTime())
	t.rows[id] = *obj
	return nil
}

func (t *table[T, PT]) CompareAndUpdate(ctx context.Context, id int64, expect Filter[T], mutate func(*T)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok {
		return false, dspcommon.NewError(dspcommon.ErrNotFound, "%s with id %d not found", t.name, id)
	}
	if expect != nil && !expect(&row) {
		return false, nil
	}
	mutate(&row)
	PT(&row).SetID(id)
	PT(&row).Touch(dspcommon.GetCurrentTime())
	t.rows[id] = row
	return true, nil
}

func (t *table[T, PT]) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return dspcommon.NewError(dspcommon.ErrNotFound, "%s with id %d not found", t.name, id)
	}
	delete(t.rows, id)
	return nil
}

func (t *table[T, PT]) DeleteWhere(ctx context.Context, filter Filter[T]) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, row := range t.rows {
		if filter == nil || filter(&row) {
			delete(t.rows, id)
			removed++
		}
	}
	return removed, nil
}

type memoryStore struct {
	clusters           *table[objects.Cluster, *objects.Cluster]
	nodes              *table[objects.Node, *objects.Node]
	racks              *table[objects.Rack, *objects.Rack]
	datacenters        *table[objects.Datacenter, *objects.Datacenter]
	disks              *table[objects.Disk, *objects.Disk]
	partitions         *table[objects.DiskPartition, *objects.DiskPartition]
	osds               *table[objects.Osd, *objects.Osd]
	pools              *table[objects.Pool, *objects.Pool]
	crushRules         *table[objects.CrushRule, *objects.CrushRule]
	networks           *table[objects.Network, *objects.Network]
	services           *table[objects.Service, *objects.Service]
	radosgwZones       *table[objects.RadosgwZone, *objects.RadosgwZone]
	radosgws           *table[objects.Radosgw, *objects.Radosgw]
	radosgwRouters     *table[objects.RadosgwRouter, *objects.RadosgwRouter]
	volumes            *table[objects.Volume, *objects.Volume]
	volumeSnapshots    *table[objects.VolumeSnapshot, *objects.VolumeSnapshot]
	volumeAccessPaths  *table[objects.VolumeAccessPath, *objects.VolumeAccessPath]
	volumeClientGroups *table[objects.VolumeClientGroup, *objects.VolumeClientGroup]
	rpcServices        *table[objects.RPCService, *objects.RPCService]
	cephConfigs        *table[objects.CephConfig, *objects.CephConfig]
	taskflows          *table[objects.Taskflow, *objects.Taskflow]
	tasks              *table[objects.Task, *objects.Task]
	alertLogs          *table[objects.AlertLog, *objects.AlertLog]
}

// NewMemoryStore returns process local store, used by tests and single node setups.
func NewMemoryStore() Store {
	return &memoryStore{
		clusters:           newTable[objects.Cluster]("cluster"),
		nodes:              newTable[objects.Node]("node"),
		racks:              newTable[objects.Rack]("rack"),
		datacenters:        newTable[objects.Datacenter]("datacenter"),
		disks:              newTable[objects.Disk]("disk"),
		partitions:         newTable[objects.DiskPartition]("disk partition"),
		osds:               newTable[objects.Osd]("osd"),
		pools:              newTable[objects.Pool]("pool"),
		crushRules:         newTable[objects.CrushRule]("crush rule"),
		networks:           newTable[objects.Network]("network"),
		services:           newTable[objects.Service]("service"),
		radosgwZones:       newTable[objects.RadosgwZone]("radosgw zone"),
		radosgws:           newTable[objects.Radosgw]("radosgw"),
		radosgwRouters:     newTable[objects.RadosgwRouter]("radosgw router"),
		volumes:            newTable[objects.Volume]("volume"),
		volumeSnapshots:    newTable[objects.VolumeSnapshot]("volume snapshot"),
		volumeAccessPaths:  newTable[objects.VolumeAccessPath]("volume access path"),
		volumeClientGroups: newTable[objects.VolumeClientGroup]("volume client group"),
		rpcServices:        newTable[objects.RPCService]("rpc service"),
		cephConfigs:        newTable[objects.CephConfig]("ceph config"),
		taskflows:          newTable[objects.Taskflow]("taskflow"),
		tasks:              newTable[objects.Task]("task"),
		alertLogs:          newTable[objects.AlertLog]("alert log"),
	}
}

func (s *memoryStore) Clusters() Repo[objects.Cluster]             { return s.clusters }
func (s *memoryStore) Nodes() Repo[objects.Node]                   { return s.nodes }
func (s *memoryStore) Racks() Repo[objects.Rack]                   { return s.racks }
func (s *memoryStore) Datacenters() Repo[objects.Datacenter]       { return s.datacenters }
func (s *memoryStore) Disks() Repo[objects.Disk]                   { return s.disks }
func (s *memoryStore) Partitions() Repo[objects.DiskPartition]     { return s.partitions }
func (s *memoryStore) Osds() Repo[objects.Osd]                     { return s.osds }
func (s *memoryStore) Pools() Repo[objects.Pool]                   { return s.pools }
func (s *memoryStore) CrushRules() Repo[objects.CrushRule]         { return s.crushRules }
func (s *memoryStore) Networks() Repo[objects.Network]             { return s.networks }
func (s *memoryStore) Services() Repo[objects.Service]             { return s.services }
func (s *memoryStore) RadosgwZones() Repo[objects.RadosgwZone]     { return s.radosgwZones }
func (s *memoryStore) Radosgws() Repo[objects.Radosgw]             { return s.radosgws }
func (s *memoryStore) RadosgwRouters() Repo[objects.RadosgwRouter] { return s.radosgwRouters }
func (s *memoryStore) Volumes() Repo[objects.Volume]               { return s.volumes }
func (s *memoryStore) VolumeSnapshots() Repo[objects.VolumeSnapshot] {
	return s.volumeSnapshots
}
func (s *memoryStore) VolumeAccessPaths() Repo[objects.VolumeAccessPath] {
	return s.volumeAccessPaths
}
func (s *memoryStore) VolumeClientGroups() Repo[objects.VolumeClientGroup] {
	return s.volumeClientGroups
}
func (s *memoryStore) RPCServices() Repo[objects.RPCService] { return s.rpcServices }
func (s *memoryStore) CephConfigs() Repo[objects.CephConfig] { return s.cephConfigs }
func (s *memoryStore) Taskflows() Repo[objects.Taskflow]     { return s.taskflows }
func (s *memoryStore) Tasks() Repo[objects.Task]             { return s.tasks }
func (s *memoryStore) AlertLogs() Repo[objects.AlertLog]     { return s.alertLogs }
