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
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/coordinator"
)

type OpType string

const (
	OpAdd      OpType = "add"
	OpMove     OpType = "move"
	OpReweight OpType = "reweight"
	OpRemove   OpType = "remove"
)

type Operation struct {
	Type       OpType
	Name       string
	Bucket     ceph.BucketType
	Parent     string
	ParentType ceph.BucketType
	Weight     int64
}

func (o Operation) String() string {
	switch o.Type {
	case OpAdd, OpMove:
		return fmt.Sprintf("%s %s '%s' to '%s'", o.Type, o.Bucket, o.Name, o.Parent)
	case OpReweight:
		return fmt.Sprintf("reweight %s '%s' to %s", o.Bucket, o.Name, ceph.FormatWeight(o.Weight))
	}
	return fmt.Sprintf("%s %s '%s'", o.Type, o.Bucket, o.Name)
}

func sortedByLevel(tree *Tree, names []string, topDown bool) []string {
	sort.Slice(names, func(i, j int) bool {
		li, lj := levels[tree.Buckets[names[i]].Type], levels[tree.Buckets[names[j]].Type]
		if li != lj {
			if topDown {
				return li < lj
			}
			return li > lj
		}
		return names[i] < names[j]
	})
	return names
}

// Diff returns operations turning live tree into desired one: additions
// top-down, moves middle-out, osd reweights, removals bottom-up.
func Diff(desired, live *Tree) []Operation {
	added, moved, reweighted, removed := []string{}, []string{}, []string{}, []string{}
	for name, want := range desired.Buckets {
		if name == desired.Root {
			continue
		}
		have, ok := live.Buckets[name]
		switch {
		case !ok:
			added = append(added, name)
		case have.Parent != want.Parent:
			moved = append(moved, name)
		case want.Type == ceph.BucketOsd && (want.Weight-have.Weight > 1 || have.Weight-want.Weight > 1):
			reweighted = append(reweighted, name)
		}
	}
	for name := range live.Buckets {
		if name == live.Root {
			continue
		}
		if _, ok := desired.Buckets[name]; !ok {
			removed = append(removed, name)
		}
	}

	ops := []Operation{}
	toOp := func(opType OpType, tree *Tree, name string) Operation {
		bucket := tree.Buckets[name]
		op := Operation{Type: opType, Name: name, Bucket: bucket.Type, Parent: bucket.Parent, Weight: bucket.Weight}
		if parent, ok := tree.Buckets[bucket.Parent]; ok {
			op.ParentType = parent.Type
		}
		return op
	}
	if _, ok := live.Buckets[desired.Root]; !ok || live.Root != desired.Root {
		ops = append(ops, Operation{Type: OpAdd, Name: desired.Root, Bucket: ceph.BucketRoot})
	}
	for _, name := range sortedByLevel(desired, added, true) {
		ops = append(ops, toOp(OpAdd, desired, name))
	}
	for _, name := range sortedByLevel(desired, moved, true) {
		ops = append(ops, toOp(OpMove, desired, name))
	}
	for _, name := range sortedByLevel(desired, reweighted, true) {
		ops = append(ops, toOp(OpReweight, desired, name))
	}
	for _, name := range sortedByLevel(live, removed, false) {
		ops = append(ops, toOp(OpRemove, live, name))
	}
	return ops
}

// Client is subset of ceph client used to change crush map.
type Client interface {
	OsdTree(ctx context.Context) (*dspcommon.OsdTree, error)
	BucketAdd(ctx context.Context, name string, bucketType ceph.BucketType) error
	BucketMove(ctx context.Context, name string, parentType ceph.BucketType, parentName string) error
	BucketRemove(ctx context.Context, name string) error
	OsdCrushSet(ctx context.Context, osdID string, units int64, host string) error
	OsdCrushReweight(ctx context.Context, osdID string, units int64) error
	OsdCrushRemove(ctx context.Context, osdID string) error
}

func osdID(name string) string {
	return strings.TrimPrefix(name, "osd.")
}

func applyOperation(ctx context.Context, client Client, op Operation) error {
	switch op.Type {
	case OpAdd:
		if op.Bucket == ceph.BucketOsd {
			return client.OsdCrushSet(ctx, osdID(op.Name), op.Weight, op.Parent)
		}
		if err := client.BucketAdd(ctx, op.Name, op.Bucket); err != nil && !dspcommon.IsAlreadyExists(err) {
			return err
		}
		if op.Parent == "" {
			return nil
		}
		return client.BucketMove(ctx, op.Name, op.ParentType, op.Parent)
	case OpMove:
		if op.Bucket == ceph.BucketOsd {
			return client.OsdCrushSet(ctx, osdID(op.Name), op.Weight, op.Parent)
		}
		return client.BucketMove(ctx, op.Name, op.ParentType, op.Parent)
	case OpReweight:
		return client.OsdCrushReweight(ctx, osdID(op.Name), op.Weight)
	case OpRemove:
		var err error
		if op.Bucket == ceph.BucketOsd {
			err = client.OsdCrushRemove(ctx, osdID(op.Name))
		} else {
			err = client.BucketRemove(ctx, op.Name)
		}
		if dspcommon.IsNotFound(err) {
			return nil
		}
		return err
	}
	return dspcommon.NewError(dspcommon.ErrProgramming, "unknown crush operation '%s'", op.Type)
}

// Apply executes operations in order under crushmap modify lock.
func Apply(ctx context.Context, log zerolog.Logger, client Client, coord coordinator.Coordinator, clusterID string, ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}
	lockName := coordinator.ClusterLockName(clusterID, dspcommon.CrushmapModifyLock)
	return coordinator.WithLock(ctx, coord, lockName, true, func() error {
		for _, op := range ops {
			log.Info().Msgf("crush: %s", op)
			if err := applyOperation(ctx, client, op); err != nil {
				return errors.Wrapf(err, "failed to %s", op)
			}
		}
		return nil
	})
}

// Sync brings crush subtree of rootName to placement of given osds and
// returns applied operations.
func Sync(ctx context.Context, log zerolog.Logger, client Client, coord coordinator.Coordinator, clusterID, rootName string, osds []OsdPlacement) ([]Operation, error) {
	desired := Desired(rootName, osds)
	osdTree, err := client.OsdTree(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get osd tree")
	}
	live, err := FromOsdTree(osdTree, rootName)
	if err != nil && !dspcommon.IsNotFound(err) {
		return nil, err
	}
	if err != nil {
		live = &Tree{Buckets: map[string]*Bucket{}}
	}
	dspcommon.ShowObjectDiff(log, live.Buckets, desired.Buckets)
	ops := Diff(desired, live)
	if err := Apply(ctx, log, client, coord, clusterID, ops); err != nil {
		return nil, err
	}
	return ops, nil
}
