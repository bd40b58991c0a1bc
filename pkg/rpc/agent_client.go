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
	"context"

	"github.com/Mirantis/dspace/pkg/objects"
)

// AgentClient is typed client of node agent service.
type AgentClient struct {
	caller   Caller
	endpoint objects.Endpoint
}

func NewAgentClient(caller Caller, endpoint objects.Endpoint) *AgentClient {
	return &AgentClient{caller: caller, endpoint: endpoint}
}

func (c *AgentClient) Endpoint() objects.Endpoint {
	return c.endpoint
}

func (c *AgentClient) call(ctx context.Context, method string, req, resp any) error {
	if req == nil {
		req = Empty{}
	}
	return c.caller.Call(ctx, c.endpoint, AgentService, method, req, resp)
}

// CephConfWrite replaces ceph.conf on node, result reports whether file
// content was changed.
func (c *AgentClient) CephConfWrite(ctx context.Context, content string) (bool, error) {
	result := WriteResult{}
	err := c.call(ctx, MethodCephConfWrite, CephConfWriteRequest{Content: content}, &result)
	return result.Changed, err
}

func (c *AgentClient) CephConfigUpdate(ctx context.Context, values []CephConfigValue) (bool, error) {
	result := WriteResult{}
	err := c.call(ctx, MethodCephConfigUpdate, CephConfigUpdateRequest{Values: values}, &result)
	return result.Changed, err
}

func (c *AgentClient) CephKeyringWrite(ctx context.Context, path, content string) (bool, error) {
	result := WriteResult{}
	err := c.call(ctx, MethodCephKeyringWrite, KeyringWriteRequest{Path: path, Content: content}, &result)
	return result.Changed, err
}

func (c *AgentClient) CephMonCreate(ctx context.Context, req MonCreateRequest) (bool, error) {
	result := MonCreateResult{}
	err := c.call(ctx, MethodCephMonCreate, req, &result)
	return result.Created, err
}

func (c *AgentClient) CephMonRemove(ctx context.Context, lastMon bool) error {
	return c.call(ctx, MethodCephMonRemove, MonRemoveRequest{LastMon: lastMon}, nil)
}

func (c *AgentClient) CephOsdPackageInstall(ctx context.Context) error {
	return c.call(ctx, MethodCephOsdPackageInstall, nil, nil)
}

func (c *AgentClient) CephOsdPackageUninstall(ctx context.Context) error {
	return c.call(ctx, MethodCephOsdPackageUninstall, nil, nil)
}

func (c *AgentClient) CephPackageUninstall(ctx context.Context) error {
	return c.call(ctx, MethodCephPackageUninstall, nil, nil)
}

func (c *AgentClient) CephOsdCreate(ctx context.Context, osd OsdGraph) (OsdResult, error) {
	result := OsdResult{}
	err := c.call(ctx, MethodCephOsdCreate, OsdRequest{Osd: osd}, &result)
	return result, err
}

func (c *AgentClient) CephOsdDestroy(ctx context.Context, osd OsdGraph) error {
	return c.call(ctx, MethodCephOsdDestroy, OsdRequest{Osd: osd}, nil)
}

// CephPrepareDisk formats disk for osd, returned result carries osd fsid.
func (c *AgentClient) CephPrepareDisk(ctx context.Context, osd OsdGraph) (OsdResult, error) {
	result := OsdResult{}
	err := c.call(ctx, MethodCephPrepareDisk, OsdRequest{Osd: osd}, &result)
	return result, err
}

func (c *AgentClient) CephActiveDisk(ctx context.Context, osd OsdGraph) (OsdResult, error) {
	result := OsdResult{}
	err := c.call(ctx, MethodCephActiveDisk, OsdRequest{Osd: osd}, &result)
	return result, err
}

func (c *AgentClient) CephOsdServiceStatus(ctx context.Context, osdIDs []string) (OsdServiceStatus, error) {
	result := OsdServiceStatus{}
	err := c.call(ctx, MethodCephOsdServiceStatus, OsdIDsRequest{OsdIDs: osdIDs}, &result)
	return result, err
}

func (c *AgentClient) CephSlowRequest(ctx context.Context, osdIDs []string) ([]OsdSlowRequests, error) {
	result := []OsdSlowRequests{}
	err := c.call(ctx, MethodCephSlowRequest, OsdIDsRequest{OsdIDs: osdIDs}, &result)
	return result, err
}

func (c *AgentClient) DiskGetAll(ctx context.Context) ([]DiskInfo, error) {
	result := []DiskInfo{}
	err := c.call(ctx, MethodDiskGetAll, nil, &result)
	return result, err
}

func (c *AgentClient) DiskSmartGet(ctx context.Context, name string) (map[string]string, error) {
	result := map[string]string{}
	err := c.call(ctx, MethodDiskSmartGet, DiskRequest{Name: name}, &result)
	return result, err
}

func (c *AgentClient) DiskLight(ctx context.Context, name, led string) error {
	return c.call(ctx, MethodDiskLight, DiskLightRequest{Name: name, Led: led}, nil)
}

func (c *AgentClient) DiskPartitionsCreate(ctx context.Context, disk objects.Disk, values []PartitionSpec) ([]objects.DiskPartition, error) {
	result := []objects.DiskPartition{}
	err := c.call(ctx, MethodDiskPartitionsCreate, PartitionsCreateRequest{Disk: disk, Values: values}, &result)
	return result, err
}

func (c *AgentClient) DiskPartitionsRemove(ctx context.Context, name string) error {
	return c.call(ctx, MethodDiskPartitionsRemove, DiskRequest{Name: name}, nil)
}

func (c *AgentClient) NetworkGetAll(ctx context.Context) ([]objects.Network, error) {
	result := []objects.Network{}
	err := c.call(ctx, MethodNetworkGetAll, nil, &result)
	return result, err
}

func (c *AgentClient) NodeGetSummary(ctx context.Context) (NodeSummary, error) {
	result := NodeSummary{}
	err := c.call(ctx, MethodNodeGetSummary, nil, &result)
	return result, err
}

// Bgw calls one of block gateway methods, all of them share request shape.
func (c *AgentClient) Bgw(ctx context.Context, method string, req BgwRequest) error {
	return c.call(ctx, method, req, nil)
}

func (c *AgentClient) PrometheusTargetAdd(ctx context.Context, target PrometheusTarget) error {
	return c.call(ctx, MethodPrometheusTargetAdd, target, nil)
}

func (c *AgentClient) PrometheusTargetRemove(ctx context.Context, target PrometheusTarget) error {
	return c.call(ctx, MethodPrometheusTargetRemove, target, nil)
}

func (c *AgentClient) ServiceRestart(ctx context.Context, name string) error {
	return c.call(ctx, MethodServiceRestart, ServiceRequest{Name: name}, nil)
}

func (c *AgentClient) ServiceStop(ctx context.Context, name string) error {
	return c.call(ctx, MethodServiceStop, ServiceRequest{Name: name}, nil)
}

func (c *AgentClient) CheckDsaStatus(ctx context.Context) (AgentStatus, error) {
	result := AgentStatus{}
	err := c.call(ctx, MethodCheckDsaStatus, nil, &result)
	return result, err
}

func (c *AgentClient) GetLogfileMetadata(ctx context.Context, serviceType string) ([]LogfileMetadata, error) {
	result := []LogfileMetadata{}
	err := c.call(ctx, MethodGetLogfileMetadata, LogfileRequest{ServiceType: serviceType}, &result)
	return result, err
}
