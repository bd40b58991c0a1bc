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

// AdminClient is used by agents to report node events to admin.
type AdminClient struct {
	caller   Caller
	endpoint objects.Endpoint
}

func NewAdminClient(caller Caller, endpoint objects.Endpoint) *AdminClient {
	return &AdminClient{caller: caller, endpoint: endpoint}
}

func (c *AdminClient) call(ctx context.Context, method string, req, resp any) error {
	return c.caller.Call(ctx, c.endpoint, AdminService, method, req, resp)
}

func (c *AdminClient) NodeGet(ctx context.Context, hostname, ip string, port int) (*objects.Node, error) {
	node := &objects.Node{}
	if err := c.call(ctx, MethodNodeGet, NodeGetRequest{Hostname: hostname, IPAddress: ip, Port: port}, node); err != nil {
		return nil, err
	}
	return node, nil
}

func (c *AdminClient) DiskOnline(ctx context.Context, nodeID int64, disk DiskInfo) error {
	return c.call(ctx, MethodDiskOnline, DiskEventRequest{NodeID: nodeID, Disk: disk}, nil)
}

func (c *AdminClient) DiskOffline(ctx context.Context, nodeID int64, name string) error {
	req := DiskEventRequest{NodeID: nodeID, Disk: DiskInfo{Disk: objects.Disk{Name: name}}}
	return c.call(ctx, MethodDiskOffline, req, nil)
}

func (c *AdminClient) NetworkAdd(ctx context.Context, nodeID int64, network objects.Network) error {
	return c.call(ctx, MethodNetworkAdd, NetworkEventRequest{NodeID: nodeID, Network: network}, nil)
}

func (c *AdminClient) NetworkRemove(ctx context.Context, nodeID int64, network objects.Network) error {
	return c.call(ctx, MethodNetworkRemove, NetworkEventRequest{NodeID: nodeID, Network: network}, nil)
}
