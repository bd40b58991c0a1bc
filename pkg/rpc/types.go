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


package rpc

import (
	"time"

	"github.com/Mirantis/dspace/pkg/objects"
)

const (
	AdminService = "dspace.Admin"
	AgentService = "dspace.Agent"
)

// admin methods called by agents
const (
	MethodNodeGet       = "node_get"
	MethodDiskOnline    = "disk_online"
	MethodDiskOffline   = "disk_offline"
	MethodNetworkAdd    = "network_add"
	MethodNetworkRemove = "network_remove"
)

// agent methods called by admin
const (
	MethodCephConfWrite           = "ceph_conf_write"
	MethodCephConfigUpdate        = "ceph_config_update"
	MethodCephKeyringWrite        = "ceph_keyring_write"
	MethodCephMonCreate           = "ceph_mon_create"
	MethodCephMonRemove           = "ceph_mon_remove"
	MethodCephOsdPackageInstall   = "ceph_osd_package_install"
	MethodCephOsdPackageUninstall = "ceph_osd_package_uninstall"
	MethodCephPackageUninstall    = "ceph_package_uninstall"
	MethodCephOsdCreate           = "ceph_osd_create"
	MethodCephOsdDestroy          = "ceph_osd_destroy"
	MethodCephPrepareDisk         = "ceph_prepare_disk"
	MethodCephActiveDisk          = "ceph_active_disk"
	MethodCephOsdServiceStatus    = "ceph_osd_service_status"
	MethodCephSlowRequest         = "ceph_slow_request"
	MethodDiskGetAll              = "disk_get_all"
	MethodDiskSmartGet            = "disk_smart_get"
	MethodDiskLight               = "disk_light"
	MethodDiskPartitionsCreate    = "disk_partitions_create"
	MethodDiskPartitionsRemove    = "disk_partitions_remove"
	MethodNetworkGetAll           = "network_get_all"
	MethodNodeGetSummary          = "node_get_summary"
	MethodMountBgw                = "mount_bgw"
	MethodUnmountBgw              = "unmount_bgw"
	MethodBgwCreateMapping        = "bgw_create_mapping"
	MethodBgwRemoveMapping        = "bgw_remove_mapping"
	MethodBgwAddVolume            = "bgw_add_volume"
	MethodBgwRemoveVolume         = "bgw_remove_volume"
	MethodBgwSetChap              = "bgw_set_chap"
	MethodBgwChangeClientGroup    = "bgw_change_client_group"
	MethodBgwSetMutualChap        = "bgw_set_mutual_chap"
	MethodBgwClearAll             = "bgw_clear_all"
	MethodPrometheusTargetAdd     = "prometheus_target_add"
	MethodPrometheusTargetRemove  = "prometheus_target_remove"
	MethodServiceRestart          = "service_restart"
	MethodServiceStop             = "service_stop"
	MethodCheckDsaStatus          = "check_dsa_status"
	MethodGetLogfileMetadata      = "get_logfile_metadata"
)

type Empty struct{}

type WriteResult struct {
	Changed bool `json:"changed"`
}

type CephConfWriteRequest struct {
	Content string `json:"content"`
}

// KeyringWriteRequest path must be under /etc/ceph or /var/lib/ceph/bootstrap-*.
type KeyringWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type CephConfigValue struct {
	Group string `json:"group"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CephConfigUpdateRequest struct {
	Values []CephConfigValue `json:"values"`
}

type MonCreateRequest struct {
	Fsid     string `json:"fsid"`
	CephAuth bool   `json:"ceph_auth"`
	MgrPort  int    `json:"mgr_port"`
	// keyrings are required when cephx is enabled
	AdminKeyring string `json:"admin_keyring,omitempty"`
	MonKeyring   string `json:"mon_keyring,omitempty"`
}

type MonCreateResult struct {
	Created bool `json:"created"`
}

type MonRemoveRequest struct {
	LastMon bool `json:"last_mon"`
}

// OsdGraph carries osd with every entity agent needs to manage it.
type OsdGraph struct {
	Osd     objects.Osd            `json:"osd"`
	Node    objects.Node           `json:"node"`
	Disk    objects.Disk           `json:"disk"`
	Cache   *objects.DiskPartition `json:"cache_partition,omitempty"`
	DB      *objects.DiskPartition `json:"db_partition,omitempty"`
	Wal     *objects.DiskPartition `json:"wal_partition,omitempty"`
	Journal *objects.DiskPartition `json:"journal_partition,omitempty"`
}

type OsdRequest struct {
	Osd OsdGraph `json:"osd"`
}

type OsdResult struct {
	OsdID string `json:"osd_id,omitempty"`
	Fsid  string `json:"fsid,omitempty"`
}

type OsdIDsRequest struct {
	OsdIDs []string `json:"osd_ids"`
}

// OsdServiceStatus maps osd id to local service activity.
type OsdServiceStatus map[string]bool

type SlowOp struct {
	Description string    `json:"description"`
	InitiatedAt time.Time `json:"initiated_at"`
	Duration    float64   `json:"duration"`
}

type OsdSlowRequests struct {
	OsdID    string   `json:"osd_id"`
	Hostname string   `json:"hostname"`
	Count    int      `json:"count"`
	Ops      []SlowOp `json:"ops"`
}

type DiskInfo struct {
	Disk       objects.Disk            `json:"disk"`
	Partitions []objects.DiskPartition `json:"partitions"`
}

type DiskRequest struct {
	Name string `json:"name"`
}

type DiskLightRequest struct {
	Name string `json:"name"`
	// 'on' or 'off'
	Led string `json:"led"`
}

type PartitionSpec struct {
	Role objects.PartitionRole `json:"role"`
	Size int64                 `json:"size"`
}

type PartitionsCreateRequest struct {
	Disk   objects.Disk    `json:"disk"`
	Values []PartitionSpec `json:"values"`
}

type NodeSummary struct {
	Hostname    string     `json:"hostname"`
	Kernel      string     `json:"kernel"`
	Uptime      float64    `json:"uptime"`
	LoadAverage [3]float64 `json:"load_average"`
	MemTotal    int64      `json:"mem_total"`
	MemFree     int64      `json:"mem_free"`
	CPUs        int        `json:"cpus"`
}

type BgwVolume struct {
	Pool    string `json:"pool"`
	Erasure bool   `json:"erasure"`
	Image   string `json:"image"`
	Size    int64  `json:"size"`
}

type BgwRequest struct {
	AccessPath  objects.VolumeAccessPath   `json:"access_path"`
	Volumes     []BgwVolume                `json:"volumes,omitempty"`
	ClientGroup *objects.VolumeClientGroup `json:"client_group,omitempty"`
	Node        *objects.Node              `json:"node,omitempty"`
}

type PrometheusTarget struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Hostname string `json:"hostname"`
	Path     string `json:"path"`
}

type ServiceRequest struct {
	Name string `json:"name"`
}

type AgentStatus struct {
	Status   string `json:"status"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
}

type LogfileRequest struct {
	ServiceType string `json:"service_type"`
}

type LogfileMetadata struct {
	Name       string    `json:"file_name"`
	Directory  string    `json:"directory"`
	Size       int64     `json:"file_size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NodeGetRequest also announces agent rpc port, admin registers endpoint
// of the agent once node is resolved.
type NodeGetRequest struct {
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
}

type DiskEventRequest struct {
	NodeID int64    `json:"node_id"`
	Disk   DiskInfo `json:"disk"`
}

type NetworkEventRequest struct {
	NodeID  int64           `json:"node_id"`
	Network objects.Network `json:"network"`
}
