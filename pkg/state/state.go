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


package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	"github.com/Mirantis/dspace/pkg/taskflow"
)

// State holds process wide registries of admin service. Each registry is
// guarded by its own mutex and mutated only by the component owning it.
type State struct {
	Clusters     *ClusterCache
	IgnoredOsds  *IgnoredOsds
	SlowRequests *SlowRequests
	Tasks        *taskflow.Registry
}

func New() *State {
	return &State{
		Clusters:     &ClusterCache{},
		IgnoredOsds:  &IgnoredOsds{ids: map[string]sets.Set[string]{}},
		SlowRequests: &SlowRequests{snapshots: map[string]SlowRequestSnapshot{}},
		Tasks:        taskflow.NewRegistry(),
	}
}

// Init loads cluster cache, called once on admin service start.
func (s *State) Init(ctx context.Context, store db.Store) error {
	if err := s.Clusters.Refresh(ctx, store); err != nil {
		return errors.Wrap(err, "failed to init cluster state")
	}
	return nil
}

func (s *State) Teardown() {
	s.Clusters.clear()
	s.IgnoredOsds.clear()
	s.SlowRequests.clear()
	s.Tasks.Clear()
}

type ClusterCache struct {
	mu        sync.RWMutex
	clusters  []objects.Cluster
	refreshed time.Time
}

// Refresh reloads clusters from db, previous content stays on failure.
func (c *ClusterCache) Refresh(ctx context.Context, store db.Store) error {
	rows, err := store.Clusters().List(ctx, nil)
	if err != nil {
		return err
	}
	clusters := make([]objects.Cluster, 0, len(rows))
	for _, row := range rows {
		clusters = append(clusters, *row)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clusters = clusters
	c.refreshed = dspcommon.GetCurrentTime()
	return nil
}

func (c *ClusterCache) List() []objects.Cluster {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]objects.Cluster{}, c.clusters...)
}

func (c *ClusterCache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}

func (c *ClusterCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clusters = nil
	c.refreshed = time.Time{}
}

// IgnoredOsds lists osd ids the tree reconciler must skip per cluster.
type IgnoredOsds struct {
	mu  sync.RWMutex
	ids map[string]sets.Set[string]
}

func (i *IgnoredOsds) Add(clusterID string, osdIDs ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.ids[clusterID]; !ok {
		i.ids[clusterID] = sets.New[string]()
	}
	i.ids[clusterID].Insert(osdIDs...)
}

func (i *IgnoredOsds) Remove(clusterID string, osdIDs ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ids, ok := i.ids[clusterID]
	if !ok {
		return
	}
	ids.Delete(osdIDs...)
	if ids.Len() == 0 {
		delete(i.ids, clusterID)
	}
}

func (i *IgnoredOsds) Has(clusterID, osdID string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ids[clusterID].Has(osdID)
}

func (i *IgnoredOsds) List(clusterID string) []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return sets.List(i.ids[clusterID])
}

func (i *IgnoredOsds) clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = map[string]sets.Set[string]{}
}

type SlowRequestSnapshot struct {
	UpdatedAt time.Time             `json:"updated_at"`
	Osds      []rpc.OsdSlowRequests `json:"osds"`
}

// SlowRequests keeps last slow request aggregation per cluster.
type SlowRequests struct {
	mu        sync.RWMutex
	snapshots map[string]SlowRequestSnapshot
}

func (s *SlowRequests) Set(clusterID string, osds []rpc.OsdSlowRequests) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[clusterID] = SlowRequestSnapshot{UpdatedAt: dspcommon.GetCurrentTime(), Osds: osds}
}

func (s *SlowRequests) Get(clusterID string) (SlowRequestSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[clusterID]
	return snapshot, ok
}

func (s *SlowRequests) Delete(clusterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, clusterID)
}

func (s *SlowRequests) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = map[string]SlowRequestSnapshot{}
}
