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

import (
	"time"

	cephv1 "github.com/rook/rook/pkg/apis/ceph.rook.io/v1"
)

// Object is implemented by every persisted entity.
type Object interface {
	GetID() int64
	SetID(id int64)
	Touch(now time.Time)
}

type Meta struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Meta) GetID() int64 {
	return m.ID
}

func (m *Meta) SetID(id int64) {
	m.ID = id
}

func (m *Meta) Touch(now time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

type Cluster struct {
	Meta
	UUID       string        `json:"uuid"`
	Name       string        `json:"name"`
	CephStatus bool          `json:"ceph_status"`
	Status     ClusterStatus `json:"status"`
}

type NodeRoles struct {
	Monitor       bool `json:"role_monitor"`
	Storage       bool `json:"role_storage"`
	Admin         bool `json:"role_admin"`
	ObjectGateway bool `json:"role_object_gateway"`
	BlockGateway  bool `json:"role_block_gateway"`
	FileGateway   bool `json:"role_file_gateway"`
}

type Node struct {
	Meta
	ClusterID   string     `json:"cluster_id"`
	Hostname    string     `json:"hostname"`
	IPAddress   string     `json:"ip_address"`
	ClusterIP   string     `json:"cluster_ip"`
	PublicIP    string     `json:"public_ip"`
	Password    string     `json:"password,omitempty"`
	Roles       NodeRoles  `json:"roles"`
	Status      NodeStatus `json:"status"`
	RackID      *int64     `json:"rack_id,omitempty"`
	ObjectStore string     `json:"object_store,omitempty"`
}

type Rack struct {
	Meta
	ClusterID    string `json:"cluster_id"`
	Name         string `json:"name"`
	DatacenterID *int64 `json:"datacenter_id,omitempty"`
}

type Datacenter struct {
	Meta
	ClusterID string `json:"cluster_id"`
	Name      string `json:"name"`
}

type Disk struct {
	Meta
	ClusterID    string     `json:"cluster_id"`
	NodeID       int64      `json:"node_id"`
	Name         string     `json:"name"`
	Size         int64      `json:"size"`
	Type         DiskType   `json:"type"`
	Slot         string     `json:"slot,omitempty"`
	Model        string     `json:"model,omitempty"`
	Serial       string     `json:"serial,omitempty"`
	Wwid         string     `json:"wwid,omitempty"`
	GUID         string     `json:"guid,omitempty"`
	Role         DiskRole   `json:"role"`
	Status       DiskStatus `json:"status"`
	PartitionNum int        `json:"partition_num"`
	SupportLed   bool       `json:"support_led"`
	Led          string     `json:"led,omitempty"`
}

type DiskPartition struct {
	Meta
	ClusterID string          `json:"cluster_id"`
	NodeID    int64           `json:"node_id"`
	DiskID    int64           `json:"disk_id"`
	Name      string          `json:"name"`
	Size      int64           `json:"size"`
	Role      PartitionRole   `json:"role"`
	Status    PartitionStatus `json:"status"`
	UUID      string          `json:"uuid"`
}

type Osd struct {
	Meta
	ClusterID        string    `json:"cluster_id"`
	NodeID           int64     `json:"node_id"`
	DiskID           int64     `json:"disk_id"`
	OsdID            *string   `json:"osd_id,omitempty"`
	Fsid             *string   `json:"fsid,omitempty"`
	Size             int64     `json:"size"`
	Type             OsdType   `json:"type"`
	DiskType         DiskType  `json:"disk_type"`
	Status           OsdStatus `json:"status"`
	CacheSourceID    *int64    `json:"cache_partition_id,omitempty"`
	DBPartitionID    *int64    `json:"db_partition_id,omitempty"`
	WalPartitionID   *int64    `json:"wal_partition_id,omitempty"`
	JournalID        *int64    `json:"journal_partition_id,omitempty"`
	CrushRuleID      *int64    `json:"crush_rule_id,omitempty"`
	PoolName         string    `json:"pool_name,omitempty"`
	LastStatusChange time.Time `json:"last_status_change,omitempty"`
}

// Name returns ceph daemon name, empty until osd was activated.
func (o *Osd) Name() string {
	if o.OsdID == nil {
		return ""
	}
	return "osd." + *o.OsdID
}

type Pool struct {
	Meta
	ClusterID     string                   `json:"cluster_id"`
	Name          string                   `json:"name"`
	DisplayName   string                   `json:"display_name"`
	PoolID        *int                     `json:"pool_id,omitempty"`
	Type          PoolType                 `json:"type"`
	Role          string                   `json:"role,omitempty"`
	Replicated    *cephv1.ReplicatedSpec   `json:"replicated,omitempty"`
	ErasureCoded  *cephv1.ErasureCodedSpec `json:"erasure_coded,omitempty"`
	FailureDomain string                   `json:"failure_domain_type"`
	CrushRuleID   *int64                   `json:"crush_rule_id,omitempty"`
	PgNum         int                      `json:"pg_num"`
	Status        LifecycleStatus          `json:"status"`
	// advisory metadata only
	RgwZoneID *int64 `json:"rgw_zone_id,omitempty"`
}

// DataChunksTotal returns replica count or k+m for erasure pools.
func (p *Pool) DataChunksTotal() int {
	if p.Type == PoolTypeErasure && p.ErasureCoded != nil {
		return int(p.ErasureCoded.DataChunks + p.ErasureCoded.CodingChunks)
	}
	if p.Replicated != nil && p.Replicated.Size > 0 {
		return int(p.Replicated.Size)
	}
	return 3
}

type CrushRule struct {
	Meta
	ClusterID     string          `json:"cluster_id"`
	Name          string          `json:"rule_name"`
	RuleID        *int            `json:"rule_id,omitempty"`
	RootName      string          `json:"root_name"`
	Type          PoolType        `json:"type"`
	FailureDomain string          `json:"failure_domain_type"`
	DataChunks    int             `json:"k,omitempty"`
	CodingChunks  int             `json:"m,omitempty"`
	Status        LifecycleStatus `json:"status"`
}

type Network struct {
	Meta
	ClusterID string        `json:"cluster_id"`
	NodeID    int64         `json:"node_id"`
	Name      string        `json:"name"`
	MAC       string        `json:"mac_address"`
	IPAddress string        `json:"ip_address,omitempty"`
	Netmask   string        `json:"netmask,omitempty"`
	Speed     string        `json:"speed,omitempty"`
	Status    NetworkStatus `json:"status"`
}

type Service struct {
	Meta
	ClusterID string        `json:"cluster_id"`
	NodeID    int64         `json:"node_id"`
	Name      string        `json:"name"`
	Role      string        `json:"role"`
	Status    ServiceStatus `json:"status"`
	Counter   int           `json:"counter"`
}

type RadosgwZone struct {
	Meta
	ClusterID string          `json:"cluster_id"`
	Name      string          `json:"name"`
	ZoneID    string          `json:"zone_id"`
	Status    LifecycleStatus `json:"status"`
}

type Radosgw struct {
	Meta
	ClusterID string        `json:"cluster_id"`
	NodeID    int64         `json:"node_id"`
	ZoneID    int64         `json:"zone_id"`
	Name      string        `json:"name"`
	IPAddress string        `json:"ip_address"`
	Port      int           `json:"port"`
	Status    ServiceStatus `json:"status"`
}

type RadosgwRouter struct {
	Meta
	ClusterID  string          `json:"cluster_id"`
	Name       string          `json:"name"`
	VirtualIP  string          `json:"virtual_ip"`
	Port       int             `json:"port"`
	RadosgwIDs []int64         `json:"radosgw_ids"`
	Status     LifecycleStatus `json:"status"`
}

type Volume struct {
	Meta
	ClusterID     string          `json:"cluster_id"`
	PoolID        int64           `json:"pool_id"`
	Name          string          `json:"volume_name"`
	DisplayName   string          `json:"display_name"`
	Size          int64           `json:"size"`
	AccessPathID  *int64          `json:"volume_access_path_id,omitempty"`
	ClientGroupID *int64          `json:"volume_client_group_id,omitempty"`
	IsLink        bool            `json:"is_link"`
	Status        LifecycleStatus `json:"status"`
}

type VolumeSnapshot struct {
	Meta
	ClusterID   string          `json:"cluster_id"`
	VolumeID    int64           `json:"volume_id"`
	Name        string          `json:"uuid"`
	DisplayName string          `json:"display_name"`
	IsProtect   bool            `json:"is_protect"`
	Status      LifecycleStatus `json:"status"`
}

type VolumeAccessPath struct {
	Meta
	ClusterID  string          `json:"cluster_id"`
	Name       string          `json:"name"`
	Iqn        string          `json:"iqn"`
	Type       string          `json:"type"`
	ChapEnable bool            `json:"chap_enable"`
	ChapName   string          `json:"chap_username,omitempty"`
	ChapSecret string          `json:"chap_password,omitempty"`
	NodeIDs    []int64         `json:"node_ids"`
	Status     LifecycleStatus `json:"status"`
}

type VolumeClientGroup struct {
	Meta
	ClusterID        string          `json:"cluster_id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Clients          []string        `json:"clients"`
	AccessPathID     *int64          `json:"access_path_id,omitempty"`
	MutualChapEnable bool            `json:"mutual_chap_enable"`
	MutualChapName   string          `json:"mutual_username,omitempty"`
	MutualChapSecret string          `json:"mutual_password,omitempty"`
	Status           LifecycleStatus `json:"status"`
}

type Endpoint struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type RPCService struct {
	Meta
	ServiceName string   `json:"service_name"`
	Hostname    string   `json:"hostname"`
	NodeID      int64    `json:"node_id"`
	ClusterID   string   `json:"cluster_id"`
	Endpoint    Endpoint `json:"endpoint"`
}

// CephConfig is single ceph.conf entry stored per cluster.
type CephConfig struct {
	Meta
	ClusterID string `json:"cluster_id"`
	Group     string `json:"group"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

type Taskflow struct {
	Meta
	ClusterID   string                 `json:"cluster_id"`
	Name        string                 `json:"name"`
	Status      TaskStatus             `json:"status"`
	Reason      string                 `json:"reason,omitempty"`
	Args        map[string]interface{} `json:"args,omitempty"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	ActionLogID *int64                 `json:"action_log_id,omitempty"`
}

type Task struct {
	Meta
	ClusterID  string     `json:"cluster_id"`
	TaskflowID int64      `json:"taskflow_id"`
	Name       string     `json:"name"`
	Status     TaskStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type AlertLog struct {
	Meta
	ClusterID    string        `json:"cluster_id"`
	ResourceType ResourceType  `json:"resource_type"`
	ResourceID   string        `json:"resource_id"`
	ResourceName string        `json:"resource_name"`
	Level        AlertLevel    `json:"level"`
	Category     AlertCategory `json:"category"`
	Message      string        `json:"alert_value"`
	Readed       bool          `json:"readed"`
}
