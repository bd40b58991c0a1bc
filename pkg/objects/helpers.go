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
	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

// NetworkRanges holds configured cidrs node addresses must belong to.
type NetworkRanges struct {
	AdminCIDR   string
	ClusterCIDR string
	PublicCIDR  string
}

// ValidateAddresses checks every node ip lies in its configured network.
func (n *Node) ValidateAddresses(ranges NetworkRanges) error {
	if err := dspcommon.IPInCIDR(n.IPAddress, ranges.AdminCIDR); err != nil {
		return dspcommon.WrapError(dspcommon.ErrInvalid, err, "node '%s' has invalid admin ip", n.Hostname)
	}
	if err := dspcommon.IPInCIDR(n.ClusterIP, ranges.ClusterCIDR); err != nil {
		return dspcommon.WrapError(dspcommon.ErrInvalid, err, "node '%s' has invalid cluster ip", n.Hostname)
	}
	if err := dspcommon.IPInCIDR(n.PublicIP, ranges.PublicCIDR); err != nil {
		return dspcommon.WrapError(dspcommon.ErrInvalid, err, "node '%s' has invalid public ip", n.Hostname)
	}
	return nil
}

// InTransientState reports statuses reconcilers must not touch.
func (o *Osd) InTransientState() bool {
	return o.Status == OsdStatusCreating || o.Status == OsdStatusDeleting
}

// Unhealthy reports osd states which degrade owning node.
func (o *Osd) Unhealthy() bool {
	return o.Status == OsdStatusError || o.Status == OsdStatusWarning || o.Status == OsdStatusOffline
}

func (s *Service) Unhealthy() bool {
	return s.Status == ServiceStatusInactive || s.Status == ServiceStatusError
}

func (r *Radosgw) Unhealthy() bool {
	return r.Status == ServiceStatusInactive || r.Status == ServiceStatusError
}

// InDeployment reports node states which must not produce service alerts.
func (n *Node) InDeployment() bool {
	return n.Status == NodeStatusCreating || n.Status == NodeStatusDeploying || n.Status == NodeStatusDeleting
}

// MetadataPoolName returns rbd metadata pool name for erasure pools and the pool name otherwise.
func MetadataPoolName(name string, poolType PoolType) string {
	if poolType == PoolTypeErasure {
		return name + dspcommon.ErasurePoolMetadataSuffix
	}
	return name
}

func StringPtr(s string) *string {
	return &s
}

func Int64Ptr(i int64) *int64 {
	return &i
}
