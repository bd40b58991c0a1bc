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
	"testing"

	cephv1 "github.com/rook/rook/pkg/apis/ceph.rook.io/v1"
	"github.com/stretchr/testify/assert"
)

func TestNodeValidateAddresses(t *testing.T) {
	ranges := NetworkRanges{AdminCIDR: "10.0.0.0/24", ClusterCIDR: "192.168.1.0/24", PublicCIDR: "192.168.2.0/24"}
	tests := []struct {
		name          string
		node          Node
		expectedError string
	}{
		{
			name: "all addresses in networks",
			node: Node{Hostname: "node-1", IPAddress: "10.0.0.11", ClusterIP: "192.168.1.11", PublicIP: "192.168.2.11"},
		},
		{
			name:          "admin ip outside admin network",
			node:          Node{Hostname: "node-1", IPAddress: "10.0.1.11", ClusterIP: "192.168.1.11", PublicIP: "192.168.2.11"},
			expectedError: "node 'node-1' has invalid admin ip: ip address '10.0.1.11' is not in network '10.0.0.0/24'",
		},
		{
			name:          "cluster ip outside cluster network",
			node:          Node{Hostname: "node-1", IPAddress: "10.0.0.11", ClusterIP: "192.168.2.11", PublicIP: "192.168.2.11"},
			expectedError: "node 'node-1' has invalid cluster ip: ip address '192.168.2.11' is not in network '192.168.1.0/24'",
		},
		{
			name:          "public ip is broken",
			node:          Node{Hostname: "node-1", IPAddress: "10.0.0.11", ClusterIP: "192.168.1.11", PublicIP: "192.168.2"},
			expectedError: "node 'node-1' has invalid public ip: '192.168.2' is not a valid ip address",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.node.ValidateAddresses(ranges)
			if test.expectedError != "" {
				assert.EqualError(t, err, test.expectedError)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestPoolDataChunksTotal(t *testing.T) {
	erasure := Pool{Type: PoolTypeErasure, ErasureCoded: &cephv1.ErasureCodedSpec{DataChunks: 4, CodingChunks: 2}}
	assert.Equal(t, 6, erasure.DataChunksTotal())
	replicated := Pool{Type: PoolTypeReplicated, Replicated: &cephv1.ReplicatedSpec{Size: 2}}
	assert.Equal(t, 2, replicated.DataChunksTotal())
	assert.Equal(t, 3, (&Pool{}).DataChunksTotal())
	assert.Equal(t, "ec1-metadata", MetadataPoolName("ec1", PoolTypeErasure))
	assert.Equal(t, "rbd", MetadataPoolName("rbd", PoolTypeReplicated))
}

func TestOsdName(t *testing.T) {
	osd := Osd{}
	assert.Equal(t, "", osd.Name())
	osd.OsdID = StringPtr("5")
	assert.Equal(t, "osd.5", osd.Name())
}
