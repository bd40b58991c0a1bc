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

import "time"

const (
	// container and service names
	AgentContainerName        = "dspace-agent"
	NodeExporterContainerName = "dspace-node-exporter"
	AdminServiceName          = "dspace-admin"
	AgentServiceName          = "dspace-agent"
	// ceph layout
	CephConfigDir          = "/etc/ceph"
	CephConfigFile         = "/etc/ceph/ceph.conf"
	CephAdminKeyringFile   = "/etc/ceph/ceph.client.admin.keyring"
	CephBootstrapOsdKey    = "/var/lib/ceph/bootstrap-osd/ceph.keyring"
	CephOsdDataDirTmpl     = "/var/lib/ceph/osd/ceph-%s"
	CephMonDataDirTmpl     = "/var/lib/ceph/mon/ceph-%s"
	CephMgrDataDirTmpl     = "/var/lib/ceph/mgr/ceph-%s"
	CephLogDir             = "/var/log/ceph"
	CephOsdServiceTmpl     = "ceph-osd@%s"
	CephMonServiceTmpl     = "ceph-mon@%s"
	CephMgrServiceTmpl     = "ceph-mgr@%s"
	CephRadosgwServiceTmpl = "ceph-radosgw@rgw.%s"
	// dspace layout
	AgentConfigFile      = "/etc/dspace/dsa.yaml"
	DefaultControlSocket = "/var/lib/dspace/dsa.asok"
	// erasure coded pools keep rbd metadata in replicated sibling pool
	ErasurePoolMetadataSuffix = "-metadata"
	// marker for stray osds
	StrayOsdNodeMarker = "__stray"
	// ceph command timeout in seconds
	RunCephCommandTimeout = 10
	// agent readiness marker
	AgentStatusReady = "ready"
	// crush lock
	CrushmapModifyLock = "crushmap_modify"
)

const (
	DefaultRPCTimeout      = 60 * time.Second
	DefaultCommandTimeout  = 60 * time.Second
	MonReadyTimeout        = 30 * time.Second
	AgentReadyAttempts     = 30
	AgentReadyPollInterval = time.Second
)

// ClusterConfigDir returns admin owned directory with per-cluster ceph files.
func ClusterConfigDir(clusterID string) string {
	return CephConfigDir + "/" + clusterID
}

func ClusterConfigFile(clusterID string) string {
	return ClusterConfigDir(clusterID) + "/ceph.conf"
}

func ClusterAdminKeyringFile(clusterID string) string {
	return ClusterConfigDir(clusterID) + "/ceph.client.admin.keyring"
}
