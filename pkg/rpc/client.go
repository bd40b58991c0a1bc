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
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/metrics"
	"github.com/Mirantis/dspace/pkg/objects"
)

// Caller performs single request/response call to remote service.
type Caller interface {
	Call(ctx context.Context, endpoint objects.Endpoint, service, method string, req, resp any) error
}

// ClientManager keeps one connection per remote endpoint. Connections
// reconnect on their own after transport loss.
type ClientManager struct {
	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	timeout time.Duration
	log     zerolog.Logger
}

func NewClientManager(log zerolog.Logger, timeout time.Duration) *ClientManager {
	if timeout <= 0 {
		timeout = dspcommon.DefaultRPCTimeout
	}
	return &ClientManager{conns: map[string]*grpc.ClientConn{}, timeout: timeout, log: log}
}

func endpointAddr(endpoint objects.Endpoint) string {
	return net.JoinHostPort(endpoint.IP, fmt.Sprint(endpoint.Port))
}

func (m *ClientManager) conn(endpoint objects.Endpoint) (*grpc.ClientConn, error) {
	addr := endpointAddr(endpoint)
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, dspcommon.WrapError(dspcommon.ErrConnect, err, "failed to create rpc client for %s", addr)
	}
	m.log.Debug().Msgf("created rpc client for %s", addr)
	m.conns[addr] = conn
	return conn, nil
}

// Call invokes remote method. Context deadline is used as call timeout,
// default timeout applies when context has none.
func (m *ClientManager) Call(ctx context.Context, endpoint objects.Endpoint, service, method string, req, resp any) error {
	conn, err := m.conn(endpoint)
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	started := time.Now()
	raw := json.RawMessage{}
	err = conn.Invoke(ctx, "/"+service+"/"+method, req, &raw)
	metrics.RPCCallFinished(service, method, started)
	if err != nil {
		return decodeError(service, method, err)
	}
	if resp != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, resp); err != nil {
			return dspcommon.WrapError(dspcommon.ErrProgramming, err, "failed to decode %s.%s response", service, method)
		}
	}
	return nil
}

func (m *ClientManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, conn := range m.conns {
		if err := conn.Close(); err != nil {
			m.log.Warn().Err(err).Msgf("failed to close rpc client for %s", addr)
		}
		delete(m.conns, addr)
	}
	return nil
}
