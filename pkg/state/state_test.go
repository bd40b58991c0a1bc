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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

func TestStateLifecycle(t *testing.T) {
	prevTime := dspcommon.GetCurrentTime
	dspcommon.GetCurrentTime = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	defer func() { dspcommon.GetCurrentTime = prevTime }()

	ctx := context.Background()
	store := db.NewMemoryStore()
	require.NoError(t, store.Clusters().Create(ctx, &objects.Cluster{UUID: "c2", Name: "second"}))
	require.NoError(t, store.Clusters().Create(ctx, &objects.Cluster{UUID: "c1", Name: "first"}))

	s := New()
	require.NoError(t, s.Init(ctx, store))
	clusters := s.Clusters.List()
	require.Len(t, clusters, 2)
	assert.Equal(t, "c2", clusters[0].UUID)
	assert.Equal(t, "c1", clusters[1].UUID)
	assert.Equal(t, dspcommon.GetCurrentTime(), s.Clusters.RefreshedAt())

	s.IgnoredOsds.Add("c1", "3", "1")
	s.SlowRequests.Set("c1", []rpc.OsdSlowRequests{{OsdID: "1", Count: 2}})
	s.Tasks.Clear()

	s.Teardown()
	assert.Empty(t, s.Clusters.List())
	assert.Empty(t, s.IgnoredOsds.List("c1"))
	_, found := s.SlowRequests.Get("c1")
	assert.False(t, found)
}

func TestIgnoredOsds(t *testing.T) {
	s := New()
	assert.False(t, s.IgnoredOsds.Has("c1", "1"))
	assert.Empty(t, s.IgnoredOsds.List("c1"))

	s.IgnoredOsds.Add("c1", "3", "1", "3")
	s.IgnoredOsds.Add("c2", "1")
	assert.Equal(t, []string{"1", "3"}, s.IgnoredOsds.List("c1"))
	assert.True(t, s.IgnoredOsds.Has("c1", "3"))
	assert.False(t, s.IgnoredOsds.Has("c2", "3"))

	s.IgnoredOsds.Remove("c1", "1", "3")
	assert.Empty(t, s.IgnoredOsds.List("c1"))
	assert.True(t, s.IgnoredOsds.Has("c2", "1"))
	s.IgnoredOsds.Remove("unknown", "1")
}

func TestSlowRequests(t *testing.T) {
	s := New()
	osds := []rpc.OsdSlowRequests{{OsdID: "2", Hostname: "node-1", Count: 5}}
	s.SlowRequests.Set("c1", osds)
	snapshot, found := s.SlowRequests.Get("c1")
	assert.True(t, found)
	assert.Equal(t, osds, snapshot.Osds)
	s.SlowRequests.Delete("c1")
	_, found = s.SlowRequests.Get("c1")
	assert.False(t, found)
}
