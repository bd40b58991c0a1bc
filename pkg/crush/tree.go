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
	"sort"
	"strings"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

var levels = map[ceph.BucketType]int{
	ceph.BucketRoot:       0,
	ceph.BucketDatacenter: 1,
	ceph.BucketRack:       2,
	ceph.BucketHost:       3,
	ceph.BucketOsd:        4,
}

// Bucket is crush tree item, osds are leaf buckets named 'osd.N'.
type Bucket struct {
	Name   string
	Type   ceph.BucketType
	Parent string
	// weight in 1/65536 TiB units
	Weight int64
}

type Tree struct {
	Root    string
	Buckets map[string]*Bucket
}

// OsdPlacement describes where osd lives in logical topology.
type OsdPlacement struct {
	OsdID      string
	Size       int64
	Host       string
	Rack       string
	Datacenter string
}

// BucketName scopes topology item name by root, so same host can be
// placed under several roots.
func BucketName(name, rootName string) string {
	return name + "-" + rootName
}

func newTree(rootName string) *Tree {
	return &Tree{
		Root:    rootName,
		Buckets: map[string]*Bucket{rootName: {Name: rootName, Type: ceph.BucketRoot}},
	}
}

func (t *Tree) ensure(name string, bucketType ceph.BucketType, parent string) {
	if _, ok := t.Buckets[name]; !ok {
		t.Buckets[name] = &Bucket{Name: name, Type: bucketType, Parent: parent}
	}
}

// Children returns sorted names of direct children.
func (t *Tree) Children(name string) []string {
	children := []string{}
	for _, bucket := range t.Buckets {
		if bucket.Parent == name && bucket.Name != t.Root {
			children = append(children, bucket.Name)
		}
	}
	sort.Strings(children)
	return children
}

// Desired builds tree for given osds under rootName. Hosts are attached to
// racks, racks to datacenters, when topology has them.
func Desired(rootName string, osds []OsdPlacement) *Tree {
	tree := newTree(rootName)
	for _, osd := range osds {
		parent := rootName
		if osd.Datacenter != "" {
			dc := BucketName(osd.Datacenter, rootName)
			tree.ensure(dc, ceph.BucketDatacenter, parent)
			parent = dc
		}
		if osd.Rack != "" {
			rack := BucketName(osd.Rack, rootName)
			tree.ensure(rack, ceph.BucketRack, parent)
			parent = rack
		}
		host := BucketName(osd.Host, rootName)
		tree.ensure(host, ceph.BucketHost, parent)
		name := "osd." + osd.OsdID
		tree.Buckets[name] = &Bucket{Name: name, Type: ceph.BucketOsd, Parent: host, Weight: ceph.SizeToWeight(osd.Size)}
	}
	tree.prune()
	tree.computeWeights()
	return tree
}

// prune drops non-osd buckets without children.
func (t *Tree) prune() {
	for {
		parents := map[string]bool{}
		for _, bucket := range t.Buckets {
			parents[bucket.Parent] = true
		}
		removed := false
		for name, bucket := range t.Buckets {
			if bucket.Type != ceph.BucketOsd && bucket.Type != ceph.BucketRoot && !parents[name] {
				delete(t.Buckets, name)
				removed = true
			}
		}
		if !removed {
			return
		}
	}
}

// computeWeights sets every bucket weight to sum of its children.
func (t *Tree) computeWeights() {
	for _, level := range []ceph.BucketType{ceph.BucketHost, ceph.BucketRack, ceph.BucketDatacenter, ceph.BucketRoot} {
		for _, bucket := range t.Buckets {
			if bucket.Type != level {
				continue
			}
			bucket.Weight = 0
			for _, child := range t.Children(bucket.Name) {
				bucket.Weight += t.Buckets[child].Weight
			}
		}
	}
}

// FromOsdTree extracts subtree of rootName from ceph osd tree. Bucket
// weights are derived from osd crush weights.
func FromOsdTree(osdTree *dspcommon.OsdTree, rootName string) (*Tree, error) {
	byID := map[int]dspcommon.OsdTreeNode{}
	var root *dspcommon.OsdTreeNode
	for i, node := range osdTree.Nodes {
		byID[node.ID] = node
		if node.ID < 0 && node.Name == rootName && node.Type == string(ceph.BucketRoot) {
			root = &osdTree.Nodes[i]
		}
	}
	tree := newTree(rootName)
	if root == nil {
		return tree, dspcommon.NewError(dspcommon.ErrNotFound, "crush root '%s' not found", rootName)
	}
	var walk func(parent dspcommon.OsdTreeNode)
	walk = func(parent dspcommon.OsdTreeNode) {
		for _, id := range parent.Children {
			child, ok := byID[id]
			if !ok {
				continue
			}
			bucket := &Bucket{Name: child.Name, Type: ceph.BucketType(child.Type), Parent: parent.Name}
			if child.ID >= 0 {
				bucket.Type = ceph.BucketOsd
				bucket.Weight = ceph.WeightFromFloat(child.Weight)
			}
			tree.Buckets[child.Name] = bucket
			walk(child)
		}
	}
	walk(*root)
	tree.computeWeights()
	return tree, nil
}

// VerifyWeights reports buckets whose weight differs from sum of children
// by more than one unit.
func VerifyWeights(tree *Tree) error {
	broken := []string{}
	for name, bucket := range tree.Buckets {
		if bucket.Type == ceph.BucketOsd {
			continue
		}
		children := tree.Children(name)
		if len(children) == 0 {
			continue
		}
		var sum int64
		for _, child := range children {
			sum += tree.Buckets[child].Weight
		}
		if diff := bucket.Weight - sum; diff > 1 || diff < -1 {
			broken = append(broken, name)
		}
	}
	if len(broken) > 0 {
		sort.Strings(broken)
		return dspcommon.NewError(dspcommon.ErrInvalid, "crush buckets have inconsistent weights: %s", strings.Join(broken, ", "))
	}
	return nil
}
