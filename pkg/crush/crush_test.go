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


package crush

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/coordinator"
	input "github.com/Mirantis/dspace/test/unit/inputs"
)

const halfTiB = int64(1) << 39

func parseTree(t *testing.T, output string) *dspcommon.OsdTree {
	tree := &dspcommon.OsdTree{}
	require.NoError(t, json.Unmarshal([]byte(output), tree))
	return tree
}

func threeOsds() []OsdPlacement {
	return []OsdPlacement{
		{OsdID: "0", Size: halfTiB, Host: "node-1"},
		{OsdID: "1", Size: halfTiB, Host: "node-1"},
		{OsdID: "2", Size: halfTiB, Host: "node-1"},
	}
}

func TestPgNum(t *testing.T) {
	tests := []struct {
		osds     int
		size     int
		expected int
	}{
		{osds: 18, size: 6, expected: 256},
		{osds: 3, size: 3, expected: 64},
		{osds: 1, size: 3, expected: 32},
		{osds: 3, size: 1, expected: 128},
		{osds: 100, size: 1, expected: 8192},
		{osds: 2000, size: 1, expected: MaxPgNum},
		{osds: 1, size: 12, expected: MinPgNum},
		{osds: 0, size: 3, expected: MinPgNum},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d osds size %d", test.osds, test.size), func(t *testing.T) {
			pgNum := PgNum(test.osds, test.size)
			assert.Equal(t, test.expected, pgNum)
			assert.Zero(t, pgNum&(pgNum-1), "pg_num must be power of two")
		})
	}
}

func TestShouldBumpPg(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		osds     int
		maxSplit int
		expected int
		bump     bool
	}{
		{name: "grown cluster", current: 64, osds: 12, maxSplit: 32, expected: 256, bump: true},
		{name: "split at limit", current: 64, osds: 12, maxSplit: 16, expected: 64},
		{name: "split below limit", current: 64, osds: 12, maxSplit: 17, expected: 256, bump: true},
		{name: "enough pgs", current: 256, osds: 12, maxSplit: 32, expected: 256},
		{name: "shrunk cluster", current: 256, osds: 3, maxSplit: 32, expected: 256},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pgNum, bump := ShouldBumpPg(test.current, test.osds, 3, test.maxSplit)
			assert.Equal(t, test.expected, pgNum)
			assert.Equal(t, test.bump, bump)
		})
	}
}

func TestDesiredTree(t *testing.T) {
	osds := []OsdPlacement{
		{OsdID: "0", Size: halfTiB, Host: "node-1", Rack: "r1", Datacenter: "dc1"},
		{OsdID: "1", Size: 2 * halfTiB, Host: "node-1", Rack: "r1", Datacenter: "dc1"},
		{OsdID: "2", Size: halfTiB, Host: "node-2"},
	}
	tree := Desired("hdd", osds)
	expected := map[string]Bucket{
		"hdd":        {Name: "hdd", Type: ceph.BucketRoot, Weight: 4 * 32768},
		"dc1-hdd":    {Name: "dc1-hdd", Type: ceph.BucketDatacenter, Parent: "hdd", Weight: 3 * 32768},
		"r1-hdd":     {Name: "r1-hdd", Type: ceph.BucketRack, Parent: "dc1-hdd", Weight: 3 * 32768},
		"node-1-hdd": {Name: "node-1-hdd", Type: ceph.BucketHost, Parent: "r1-hdd", Weight: 3 * 32768},
		"node-2-hdd": {Name: "node-2-hdd", Type: ceph.BucketHost, Parent: "hdd", Weight: 32768},
		"osd.0":      {Name: "osd.0", Type: ceph.BucketOsd, Parent: "node-1-hdd", Weight: 32768},
		"osd.1":      {Name: "osd.1", Type: ceph.BucketOsd, Parent: "node-1-hdd", Weight: 65536},
		"osd.2":      {Name: "osd.2", Type: ceph.BucketOsd, Parent: "node-2-hdd", Weight: 32768},
	}
	actual := map[string]Bucket{}
	for name, bucket := range tree.Buckets {
		actual[name] = *bucket
	}
	assert.Empty(t, cmp.Diff(expected, actual))
	assert.NoError(t, VerifyWeights(tree))

	tree.Buckets["r1-hdd"].Weight += 2
	tree.Buckets["node-2-hdd"].Weight++
	assert.EqualError(t, VerifyWeights(tree), "crush buckets have inconsistent weights: dc1-hdd, r1-hdd")

	assert.Equal(t, map[string]*Bucket{"empty": {Name: "empty", Type: ceph.BucketRoot}}, Desired("empty", nil).Buckets)
}

func TestFromOsdTree(t *testing.T) {
	tree, err := FromOsdTree(parseTree(t, input.CephOsdTreeThreeOsds), "default")
	require.NoError(t, err)
	assert.Len(t, tree.Buckets, 5)
	assert.Equal(t, []string{"osd.0", "osd.1", "osd.2"}, tree.Children("node-1-default"))
	assert.Equal(t, int64(3*32768), tree.Buckets["node-1-default"].Weight)
	assert.Equal(t, int64(3*32768), tree.Buckets["default"].Weight)

	_, err = FromOsdTree(parseTree(t, input.CephOsdTreeThreeOsds), "ssd")
	assert.True(t, dspcommon.IsNotFound(err))
}

func TestDiff(t *testing.T) {
	live, err := FromOsdTree(parseTree(t, input.CephOsdTreeThreeOsds), "default")
	require.NoError(t, err)

	t.Run("same topology produces no operations", func(t *testing.T) {
		assert.Empty(t, Diff(Desired("default", threeOsds()), live))
	})

	t.Run("add move reweight remove", func(t *testing.T) {
		osds := []OsdPlacement{
			{OsdID: "0", Size: 2 * halfTiB, Host: "node-1"},
			{OsdID: "1", Size: halfTiB, Host: "node-2", Rack: "r1"},
			{OsdID: "3", Size: halfTiB, Host: "node-2", Rack: "r1"},
		}
		expected := []Operation{
			{Type: OpAdd, Name: "r1-default", Bucket: ceph.BucketRack, Parent: "default", ParentType: ceph.BucketRoot, Weight: 65536},
			{Type: OpAdd, Name: "node-2-default", Bucket: ceph.BucketHost, Parent: "r1-default", ParentType: ceph.BucketRack, Weight: 65536},
			{Type: OpAdd, Name: "osd.3", Bucket: ceph.BucketOsd, Parent: "node-2-default", ParentType: ceph.BucketHost, Weight: 32768},
			{Type: OpMove, Name: "osd.1", Bucket: ceph.BucketOsd, Parent: "node-2-default", ParentType: ceph.BucketHost, Weight: 32768},
			{Type: OpReweight, Name: "osd.0", Bucket: ceph.BucketOsd, Parent: "node-1-default", ParentType: ceph.BucketHost, Weight: 65536},
			{Type: OpRemove, Name: "osd.2", Bucket: ceph.BucketOsd, Parent: "node-1-default", ParentType: ceph.BucketHost, Weight: 32768},
		}
		ops := Diff(Desired("default", osds), live)
		assert.Empty(t, cmp.Diff(expected, ops))
	})

	t.Run("missing root is created first", func(t *testing.T) {
		ops := Diff(Desired("ssd", []OsdPlacement{{OsdID: "7", Size: halfTiB, Host: "node-3"}}), &Tree{Buckets: map[string]*Bucket{}})
		assert.Equal(t, []string{
			"add root 'ssd' to ''",
			"add host 'node-3-ssd' to 'ssd'",
			"add osd 'osd.7' to 'node-3-ssd'",
		}, opStrings(ops))
	})

	t.Run("emptied host is removed after its osds", func(t *testing.T) {
		ops := Diff(Desired("default", nil), live)
		assert.Equal(t, []string{
			"remove osd 'osd.0'",
			"remove osd 'osd.1'",
			"remove osd 'osd.2'",
			"remove host 'node-1-default'",
		}, opStrings(ops))
	})
}

func opStrings(ops []Operation) []string {
	result := []string{}
	for _, op := range ops {
		result = append(result, op.String())
	}
	return result
}

type fakeClient struct {
	tree    string
	calls   []string
	addErrs map[string]error
}

func (f *fakeClient) OsdTree(_ context.Context) (*dspcommon.OsdTree, error) {
	tree := &dspcommon.OsdTree{}
	return tree, json.Unmarshal([]byte(f.tree), tree)
}

func (f *fakeClient) BucketAdd(_ context.Context, name string, bucketType ceph.BucketType) error {
	f.calls = append(f.calls, fmt.Sprintf("add-bucket %s %s", name, bucketType))
	return f.addErrs[name]
}

func (f *fakeClient) BucketMove(_ context.Context, name string, parentType ceph.BucketType, parentName string) error {
	f.calls = append(f.calls, fmt.Sprintf("move %s %s=%s", name, parentType, parentName))
	return nil
}

func (f *fakeClient) BucketRemove(_ context.Context, name string) error {
	f.calls = append(f.calls, "rm "+name)
	return dspcommon.NewError(dspcommon.ErrNotFound, "bucket '%s' not found", name)
}

func (f *fakeClient) OsdCrushSet(_ context.Context, osdID string, units int64, host string) error {
	f.calls = append(f.calls, fmt.Sprintf("set osd.%s %s host=%s", osdID, ceph.FormatWeight(units), host))
	return nil
}

func (f *fakeClient) OsdCrushReweight(_ context.Context, osdID string, units int64) error {
	f.calls = append(f.calls, fmt.Sprintf("reweight osd.%s %s", osdID, ceph.FormatWeight(units)))
	return nil
}

func (f *fakeClient) OsdCrushRemove(_ context.Context, osdID string) error {
	f.calls = append(f.calls, "rm osd."+osdID)
	return nil
}

func TestSync(t *testing.T) {
	client := &fakeClient{
		tree:    input.CephOsdTreeThreeOsds,
		addErrs: map[string]error{"node-2-default": dspcommon.NewError(dspcommon.ErrAlreadyExists, "exists")},
	}
	coord := coordinator.NewMemoryCoordinator()
	osds := append(threeOsds()[:2], OsdPlacement{OsdID: "3", Size: halfTiB, Host: "node-2"})

	ops, err := Sync(context.Background(), zerolog.Nop(), client, coord, "c1", "default", osds)
	require.NoError(t, err)
	assert.Len(t, ops, 3)
	assert.Equal(t, []string{
		"add-bucket node-2-default host",
		"move node-2-default root=default",
		"set osd.3 0.5 host=node-2-default",
		"rm osd.2",
	}, client.calls)

	// lock is released after apply
	lock := coord.GetLock(coordinator.ClusterLockName("c1", dspcommon.CrushmapModifyLock))
	acquired, err := lock.Acquire(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, lock.Release(context.Background()))

	client.calls = nil
	ops, err = Sync(context.Background(), zerolog.Nop(), client, coord, "c1", "ssd", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"add-bucket ssd root"}, client.calls)
	assert.Len(t, ops, 1)
}

func TestApplyIgnoresMissingBuckets(t *testing.T) {
	client := &fakeClient{}
	ops := []Operation{{Type: OpRemove, Name: "node-9-default", Bucket: ceph.BucketHost}}
	require.NoError(t, Apply(context.Background(), zerolog.Nop(), client, coordinator.NewMemoryCoordinator(), "c1", ops))
	assert.Equal(t, []string{"rm node-9-default"}, client.calls)

	err := Apply(context.Background(), zerolog.Nop(), client, coordinator.NewMemoryCoordinator(), "c1", []Operation{{Type: "noop"}})
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrProgramming))
}
