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


package dspcommon

type OsdMetadataInfo struct {
	Devices             string `json:"devices"`
	DevicePathes        string `json:"device_paths"`
	Hostname            string `json:"hostname"`
	BluestoreDevices    string `json:"bluestore_bdev_devices"`
	BluestoreDeviceType string `json:"bluestore_bdev_type"`
	BluestorePartition  string `json:"bluestore_bdev_partition_path"`
	BluestoreSize       string `json:"bluestore_bdev_size"`
	MetadataDiskUsed    string `json:"bluefs_dedicated_db"`
	MetadataPartition   string `json:"bluefs_db_partition_path"`
	ObjectStore         string `json:"osd_objectstore"`
	OsdData             string `json:"osd_data"`
	OsdID               int    `json:"id"`
}

type OsdTreeNode struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	TypeID      int     `json:"type_id"`
	Children    []int   `json:"children,omitempty"`
	DeviceClass string  `json:"device_class,omitempty"`
	Status      string  `json:"status,omitempty"`
	Weight      float64 `json:"crush_weight"`
	Reweight    float64 `json:"reweight"`
}

type OsdTree struct {
	Nodes []OsdTreeNode `json:"nodes"`
	Stray []OsdTreeNode `json:"stray"`
}

// Osds returns all osd entries, placed and stray.
func (t *OsdTree) Osds() []OsdTreeNode {
	osds := []OsdTreeNode{}
	for _, node := range t.Nodes {
		if node.ID >= 0 {
			osds = append(osds, node)
		}
	}
	return append(osds, t.Stray...)
}

type OsdStat struct {
	Epoch    int `json:"epoch"`
	NumOsd   int `json:"num_osds"`
	NumUpOsd int `json:"num_up_osds"`
	NumInOsd int `json:"num_in_osds"`
}

type OsdDFNode struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	DeviceClass string  `json:"device_class"`
	KB          uint64  `json:"kb"`
	KBUsed      uint64  `json:"kb_used"`
	KBAvail     uint64  `json:"kb_avail"`
	Utilization float64 `json:"utilization"`
	Pgs         int     `json:"pgs"`
	Status      string  `json:"status"`
}

type OsdDF struct {
	Nodes   []OsdDFNode `json:"nodes"`
	Summary struct {
		TotalKB      uint64  `json:"total_kb"`
		TotalKBUsed  uint64  `json:"total_kb_used"`
		TotalKBAvail uint64  `json:"total_kb_avail"`
		AverageUtil  float64 `json:"average_utilization"`
	} `json:"summary"`
}

type CephDetails struct {
	Stats struct {
		TotalBytes     uint64 `json:"total_bytes"`
		UsedBytes      uint64 `json:"total_used_bytes"`
		AvailableBytes uint64 `json:"total_avail_bytes"`
	} `json:"stats"`
	StatsByClass map[string]ClassStats `json:"stats_by_class"`
	Pools        []PoolDetails         `json:"pools"`
}

type ClassStats struct {
	TotalBytes     uint64 `json:"total_bytes"`
	UsedBytes      uint64 `json:"total_used_bytes"`
	AvailableBytes uint64 `json:"total_avail_bytes"`
}

type PoolDetails struct {
	Name  string    `json:"name"`
	ID    int       `json:"id"`
	Stats PoolStats `json:"stats"`
}

type PoolStats struct {
	TotalBytes  uint64  `json:"max_avail"`
	UsedBytes   uint64  `json:"bytes_used"`
	PercentUsed float64 `json:"percent_used"`
	Objects     uint64  `json:"objects"`
}

type PoolInfo struct {
	Pool      string `json:"pool"`
	PoolID    int    `json:"pool_id"`
	Size      int    `json:"size"`
	MinSize   int    `json:"min_size"`
	PgNum     int    `json:"pg_num"`
	PgpNum    int    `json:"pgp_num"`
	CrushRule string `json:"crush_rule"`
}

type CrushRuleStep struct {
	Op       string `json:"op"`
	Num      int    `json:"num,omitempty"`
	Type     string `json:"type,omitempty"`
	Item     int    `json:"item,omitempty"`
	ItemName string `json:"item_name,omitempty"`
}

type CrushRuleInfo struct {
	RuleID   int             `json:"rule_id"`
	RuleName string          `json:"rule_name"`
	Type     int             `json:"type"`
	Steps    []CrushRuleStep `json:"steps"`
}

type BalancerStatus struct {
	Active bool     `json:"active"`
	Mode   string   `json:"mode"`
	Plans  []string `json:"plans"`
}

type CephStatus struct {
	Fsid        string   `json:"fsid"`
	QuorumNames []string `json:"quorum_names"`
	Health      struct {
		Status string `json:"status"`
	} `json:"health"`
	OsdMap OsdStat `json:"osdmap"`
	MonMap struct {
		NumMons int `json:"num_mons"`
	} `json:"monmap"`
	MgrMap struct {
		Available bool `json:"available"`
		Standbys  int  `json:"num_standbys"`
	} `json:"mgrmap"`
	PgMap struct {
		NumPgs int `json:"num_pgs"`
	} `json:"pgmap"`
}

type CephQuorumStatus struct {
	QuorumNames  []string `json:"quorum_names"`
	QuorumLeader string   `json:"quorum_leader_name"`
	MonMap       struct {
		Fsid string `json:"fsid"`
		Mons []struct {
			Name       string `json:"name"`
			PublicAddr string `json:"public_addr"`
		} `json:"mons"`
	} `json:"monmap"`
}

type CephOsdDump struct {
	Flags string `json:"flags"`
	Osds  []struct {
		OsdID int    `json:"osd"`
		UUID  string `json:"uuid"`
		Up    int    `json:"up"`
		In    int    `json:"in"`
	} `json:"osds"`
}

type HistoricOp struct {
	Description string  `json:"description"`
	InitiatedAt string  `json:"initiated_at"`
	Age         float64 `json:"age"`
	Duration    float64 `json:"duration"`
}

type HistoricOps struct {
	Size     int          `json:"size"`
	Duration float64      `json:"duration"`
	Ops      []HistoricOp `json:"ops"`
}
