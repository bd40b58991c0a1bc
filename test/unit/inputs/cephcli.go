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


package input

import (
	"encoding/json"
	"fmt"
	"strings"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

const (
	ClusterID   = "5d1a4dd5-a1b3-4c0c-8e55-0e9a3fa4bbaa"
	ClusterFsid = "8668f062-3faa-358a-85f3-f80fe6c1e306"
	MonHost     = "10.10.0.11"
)

var CephStatusBaseHealthy = BuildCliOutput(CephStatusTmpl, "status", nil)
var CephStatusOsdsDown = BuildCliOutput(CephStatusTmpl, "status", map[string]string{
	"health": `"HEALTH_WARN"`,
	"osdmap": `{"epoch": 32, "num_osds": 3, "num_up_osds": 2, "num_in_osds": 3}`,
})
var CephStatusMostOsdsDown = BuildCliOutput(CephStatusTmpl, "status", map[string]string{
	"health": `"HEALTH_ERR"`,
	"osdmap": `{"epoch": 40, "num_osds": 10, "num_up_osds": 3, "num_in_osds": 10}`,
})

var CephStatusTmpl = `{
  "fsid": "{fsid}",
  "health": {"status": {health}},
  "quorum_names": {quorum_names},
  "monmap": {monmap},
  "osdmap": {osdmap},
  "mgrmap": {mgrmap},
  "pgmap": {pgmap}
}`

var CephQuorumStatus = `{
  "quorum_names": ["node-1"],
  "quorum_leader_name": "node-1",
  "monmap": {"fsid": "8668f062-3faa-358a-85f3-f80fe6c1e306", "mons": [{"name": "node-1", "public_addr": "10.10.0.11:6789/0"}]}
}`

var CephVersionOutput = `{"version": "ceph version 19.2.3 (c92aebb279828e9c3c1f5d24613efca272649e62) squid (stable)"}`

func BuildCliOutput(template string, cmd string, overrideForOutput map[string]string) string {
	replaceParams := map[string]string{}
	switch cmd {
	case "status":
		replaceParams = map[string]string{
			"fsid":         ClusterFsid,
			"health":       `"HEALTH_OK"`,
			"quorum_names": `["node-1"]`,
			"monmap":       `{"num_mons": 1}`,
			"osdmap":       `{"epoch": 30, "num_osds": 3, "num_up_osds": 3, "num_in_osds": 3}`,
			"mgrmap":       `{"available": true, "num_standbys": 0}`,
			"pgmap":        `{"num_pgs": 128}`,
		}
	}
	for k, v := range overrideForOutput {
		replaceParams[k] = v
	}
	args := []string{}
	for k, v := range replaceParams {
		if k == "" {
			continue
		}
		if v == "" {
			v = "{}"
		}
		args = append(args, fmt.Sprintf("{%s}", k), v)
	}
	return strings.NewReplacer(args...).Replace(template)
}

var CephOsdTreeThreeOsds = `{
  "nodes": [
    {"id": -1, "name": "default", "type": "root", "type_id": 11, "children": [-3]},
    {"id": -3, "name": "node-1-default", "type": "host", "type_id": 1, "children": [2, 1, 0]},
    {"id": 0, "device_class": "hdd", "name": "osd.0", "type": "osd", "type_id": 0, "crush_weight": 0.5, "depth": 2, "exists": 1, "status": "up", "reweight": 1, "primary_affinity": 1},
    {"id": 1, "device_class": "hdd", "name": "osd.1", "type": "osd", "type_id": 0, "crush_weight": 0.5, "depth": 2, "exists": 1, "status": "up", "reweight": 1, "primary_affinity": 1},
    {"id": 2, "device_class": "hdd", "name": "osd.2", "type": "osd", "type_id": 0, "crush_weight": 0.5, "depth": 2, "exists": 1, "status": "up", "reweight": 1, "primary_affinity": 1}
  ],
  "stray": []
}`

// OsdTreeEntry describes osd for generated osd tree output.
type OsdTreeEntry struct {
	ID      int
	Host    string
	Up      bool
	In      bool
	SizeTiB float64
	Stray   bool
}

// BuildOsdTree renders osd tree output with single 'default' root.
func BuildOsdTree(osds ...OsdTreeEntry) string {
	tree := dspcommon.OsdTree{Nodes: []dspcommon.OsdTreeNode{}, Stray: []dspcommon.OsdTreeNode{}}
	root := dspcommon.OsdTreeNode{ID: -1, Name: "default", Type: "root", TypeID: 11}
	hosts := map[string]*dspcommon.OsdTreeNode{}
	hostOrder := []string{}
	osdNodes := []dspcommon.OsdTreeNode{}
	for _, osd := range osds {
		node := dspcommon.OsdTreeNode{
			ID:          osd.ID,
			Name:        fmt.Sprintf("osd.%d", osd.ID),
			Type:        "osd",
			DeviceClass: "hdd",
			Status:      "down",
			Weight:      osd.SizeTiB,
		}
		if osd.Up {
			node.Status = "up"
		}
		if osd.In {
			node.Reweight = 1
		}
		if osd.Stray {
			tree.Stray = append(tree.Stray, node)
			continue
		}
		osdNodes = append(osdNodes, node)
		host, ok := hosts[osd.Host]
		if !ok {
			host = &dspcommon.OsdTreeNode{ID: -2 - len(hosts), Name: osd.Host + "-default", Type: "host", TypeID: 1}
			hosts[osd.Host] = host
			hostOrder = append(hostOrder, osd.Host)
		}
		host.Children = append(host.Children, osd.ID)
	}
	for _, name := range hostOrder {
		root.Children = append(root.Children, hosts[name].ID)
	}
	tree.Nodes = append(tree.Nodes, root)
	for _, name := range hostOrder {
		tree.Nodes = append(tree.Nodes, *hosts[name])
	}
	tree.Nodes = append(tree.Nodes, osdNodes...)
	output, _ := json.Marshal(tree)
	return string(output)
}

var CephOsdStat = `{"epoch": 30, "num_osds": 3, "num_up_osds": 3, "osd_up_since": 1754565123, "num_in_osds": 3, "osd_in_since": 1754565100, "num_remapped_pgs": 0}`

func CephOsdMetadata(osdID int, size int64) string {
	return fmt.Sprintf(`{
  "id": %d,
  "hostname": "node-1",
  "osd_objectstore": "bluestore",
  "osd_data": "/var/lib/ceph/osd/ceph-%d",
  "bluestore_bdev_type": "hdd",
  "bluestore_bdev_size": "%d",
  "devices": "sdb"
}`, osdID, osdID, size)
}

var CephOsdDumpPaused = `{"epoch": 31, "flags": "pauserd,pausewr,sortbitwise,recovery_deletes", "osds": []}`

var CephOsdDumpBase = `{"epoch": 31, "flags": "sortbitwise,recovery_deletes", "osds": [{"osd": 0, "uuid": "2b0bd3a4-d2e5-4bc7-8ed5-6bdc0eb9d54a", "up": 1, "in": 1}]}`

var CephDfBase = `{
  "stats": {"total_bytes": 1649267441664, "total_avail_bytes": 1640000000000, "total_used_bytes": 9267441664},
  "stats_by_class": {"hdd": {"total_bytes": 1649267441664, "total_avail_bytes": 1640000000000, "total_used_bytes": 9267441664}},
  "pools": [
    {"name": "rbd", "id": 1, "stats": {"stored": 0, "objects": 4, "bytes_used": 12288, "percent_used": 0.001, "max_avail": 520000000000}}
  ]
}`

var CephCrushRuleDumpErasure = `{
  "rule_id": 2,
  "rule_name": "ec1",
  "type": 3,
  "steps": [
    {"op": "set_chooseleaf_tries", "num": 5},
    {"op": "take", "item": -1, "item_name": "default"},
    {"op": "chooseleaf_indep", "num": 0, "type": "host"},
    {"op": "emit"}
  ]
}`

var CephHistoricSlowOps = `{
  "size": 20,
  "duration": 600,
  "ops": [
    {"description": "osd_op(client.4123.0:10 1.2 1:4c8a2d5e:::rbd_data.1:head [write 0~4096] snapc 0=[] ondisk+write e30)", "initiated_at": "2026-10-10T10:00:00.000000+0000", "age": 40.2, "duration": 35.1},
    {"description": "osd_op(client.4123.0:11 1.3 1:6c8a2d5e:::rbd_data.2:head [write 0~4096] snapc 0=[] ondisk+write e30)", "initiated_at": "2026-10-10T10:00:01.000000+0000", "age": 39.2, "duration": 52.7}
  ]
}`
