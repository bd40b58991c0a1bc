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


package osd

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

// LoadGraph collects osd with its node, data disk and linked partitions.
// Node password is stripped, agents never get it.
func LoadGraph(ctx context.Context, store db.Store, id int64) (*rpc.OsdGraph, error) {
	osd, err := store.Osds().Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get osd %d", id)
	}
	node, err := store.Nodes().Get(ctx, osd.NodeID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get node of osd %d", id)
	}
	node.Password = ""
	disk, err := store.Disks().Get(ctx, osd.DiskID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get disk of osd %d", id)
	}
	graph := &rpc.OsdGraph{Osd: *osd, Node: *node, Disk: *disk}
	partitions := []struct {
		id     *int64
		target **objects.DiskPartition
	}{
		{osd.CacheSourceID, &graph.Cache},
		{osd.DBPartitionID, &graph.DB},
		{osd.WalPartitionID, &graph.Wal},
		{osd.JournalID, &graph.Journal},
	}
	for _, partition := range partitions {
		if partition.id == nil {
			continue
		}
		found, err := store.Partitions().Get(ctx, *partition.id)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get partition %d of osd %d", *partition.id, id)
		}
		*partition.target = found
	}
	return graph, nil
}

// linkedPartitions returns ids of partitions osd keeps on other disks.
func linkedPartitions(osd *objects.Osd) []int64 {
	ids := []int64{}
	for _, id := range []*int64{osd.CacheSourceID, osd.DBPartitionID, osd.WalPartitionID, osd.JournalID} {
		if id != nil {
			ids = append(ids, *id)
		}
	}
	return ids
}

// configGroups keeps sections osd daemon reads.
func configGroups(groups map[string]map[string]string) map[string]map[string]string {
	filtered := map[string]map[string]string{}
	for name, values := range groups {
		if name == "global" || name == "osd" || strings.HasPrefix(name, "osd.") {
			filtered[name] = values
		}
	}
	return filtered
}

func flowName(prefix string, graph *rpc.OsdGraph) string {
	return prefix + "_" + graph.Node.Hostname + "_" + graph.Disk.Name
}
