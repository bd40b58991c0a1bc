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


package objects

type ClusterStatus string

const (
	ClusterStatusCreating ClusterStatus = "creating"
	ClusterStatusActive   ClusterStatus = "active"
	ClusterStatusDeleting ClusterStatus = "deleting"
	ClusterStatusError    ClusterStatus = "error"
)

type NodeStatus string

const (
	NodeStatusCreating  NodeStatus = "creating"
	NodeStatusDeploying NodeStatus = "deploying"
	NodeStatusActive    NodeStatus = "active"
	NodeStatusWarning   NodeStatus = "warning"
	NodeStatusError     NodeStatus = "error"
	NodeStatusDeleting  NodeStatus = "deleting"
)

type DiskType string

const (
	DiskTypeHDD DiskType = "hdd"
	DiskTypeSSD DiskType = "ssd"
)

type DiskRole string

const (
	DiskRoleData   DiskRole = "data"
	DiskRoleCache  DiskRole = "cache"
	DiskRoleSystem DiskRole = "system"
	DiskRoleMix    DiskRole = "mix"
)

type DiskStatus string

const (
	DiskStatusAvailable  DiskStatus = "available"
	DiskStatusInUse      DiskStatus = "inuse"
	DiskStatusProcessing DiskStatus = "processing"
	DiskStatusError      DiskStatus = "error"
	DiskStatusRemoved    DiskStatus = "removed"
)

type PartitionRole string

const (
	PartitionRoleCache   PartitionRole = "cache"
	PartitionRoleDB      PartitionRole = "db"
	PartitionRoleWal     PartitionRole = "wal"
	PartitionRoleJournal PartitionRole = "journal"
	PartitionRoleData    PartitionRole = "data"
)

type PartitionStatus string

const (
	PartitionStatusAvailable PartitionStatus = "available"
	PartitionStatusInUse     PartitionStatus = "inuse"
)

type OsdType string

const (
	OsdTypeBluestore OsdType = "bluestore"
	OsdTypeFilestore OsdType = "filestore"
)

type OsdStatus string

const (
	OsdStatusCreating   OsdStatus = "creating"
	OsdStatusActive     OsdStatus = "active"
	OsdStatusWarning    OsdStatus = "warning"
	OsdStatusOffline    OsdStatus = "offline"
	OsdStatusRestarting OsdStatus = "restarting"
	OsdStatusError      OsdStatus = "error"
	OsdStatusDeleting   OsdStatus = "deleting"
)

type PoolType string

const (
	PoolTypeReplicated PoolType = "replicated"
	PoolTypeErasure    PoolType = "erasure"
)

type LifecycleStatus string

const (
	StatusCreating LifecycleStatus = "creating"
	StatusActive   LifecycleStatus = "active"
	StatusDeleting LifecycleStatus = "deleting"
	StatusError    LifecycleStatus = "error"
)

type NetworkStatus string

const (
	NetworkStatusUp   NetworkStatus = "up"
	NetworkStatusDown NetworkStatus = "down"
)

type ServiceStatus string

const (
	ServiceStatusActive   ServiceStatus = "active"
	ServiceStatusInactive ServiceStatus = "inactive"
	ServiceStatusStarting ServiceStatus = "starting"
	ServiceStatusError    ServiceStatus = "error"
)

type TaskStatus string

const (
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

type ResourceType string

const (
	ResourceCluster ResourceType = "cluster"
	ResourceNode    ResourceType = "node"
	ResourceOsd     ResourceType = "osd"
	ResourceService ResourceType = "service"
	ResourceRadosgw ResourceType = "radosgw"
	ResourceDisk    ResourceType = "disk"
	ResourceNetwork ResourceType = "network"
	ResourcePool    ResourceType = "pool"
)

type AlertLevel string

const (
	AlertInfo  AlertLevel = "INFO"
	AlertWarn  AlertLevel = "WARN"
	AlertError AlertLevel = "ERROR"
)

type AlertCategory string

const (
	AlertOsdActive      AlertCategory = "OSD_ACTIVE"
	AlertOsdOffline     AlertCategory = "OSD_OFFLINE"
	AlertOsdError       AlertCategory = "OSD_ERROR"
	AlertCephConnect    AlertCategory = "CEPH_CONNECT"
	AlertCephDisconnect AlertCategory = "CEPH_DISCONNECT"
	AlertNodeActive     AlertCategory = "NODE_ACTIVE"
	AlertNodeWarning    AlertCategory = "NODE_WARNING"
	AlertServiceStatus  AlertCategory = "SERVICE_STATUS"
	AlertDiskOnline     AlertCategory = "DISK_ONLINE"
	AlertDiskOffline    AlertCategory = "DISK_OFFLINE"
	AlertNetworkChange  AlertCategory = "NETWORK_CHANGE"
	AlertTaskflowFailed AlertCategory = "TASKFLOW_FAILED"
)

// Alert is single user visible notification before it is persisted.
type Alert struct {
	ClusterID    string        `json:"cluster_id"`
	ResourceType ResourceType  `json:"resource_type"`
	ResourceID   string        `json:"resource_id"`
	ResourceName string        `json:"resource_name"`
	Level        AlertLevel    `json:"level"`
	Category     AlertCategory `json:"category"`
	Message      string        `json:"message"`
}
