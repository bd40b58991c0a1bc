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
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/db"
	"github.com/Mirantis/dspace/pkg/objects"
)

func TestJSONCodec(t *testing.T) {
	codec := jsonCodec{}
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	data, err = codec.Marshal(WriteResult{Changed: true})
	require.NoError(t, err)
	assert.Equal(t, `{"changed":true}`, string(data))

	raw := json.RawMessage{}
	require.NoError(t, codec.Unmarshal([]byte(`{"name":"sdb"}`), &raw))
	assert.Equal(t, `{"name":"sdb"}`, string(raw))

	req := DiskRequest{}
	require.NoError(t, codec.Unmarshal([]byte(`{"name":"sdb"}`), &req))
	assert.Equal(t, "sdb", req.Name)

	assert.Error(t, codec.Unmarshal([]byte(`{`), &req))
}

func TestErrorEncodeDecode(t *testing.T) {
	cmdErr := &dspcommon.CommandError{Command: "ceph osd pool create", ExitCode: 17, Stderr: "pool exists"}
	tests := []struct {
		name     string
		err      error
		code     codes.Code
		kind     dspcommon.ErrorKind
		message  string
		exitCode int
	}{
		{
			name:    "plain kind",
			err:     dspcommon.NewError(dspcommon.ErrNotFound, "disk 'sdb' not found"),
			code:    codes.NotFound,
			kind:    dspcommon.ErrNotFound,
			message: "disk 'sdb' not found",
		},
		{
			name:    "specific kind keeps parent code",
			err:     dspcommon.NewError(dspcommon.ErrPoolExists, "pool 'rbd' exists"),
			code:    codes.AlreadyExists,
			kind:    dspcommon.ErrPoolExists,
			message: "pool 'rbd' exists",
		},
		{
			name:     "command error",
			err:      dspcommon.WrapError(dspcommon.ErrPoolExists, cmdErr, "'osd pool create' failed"),
			code:     codes.AlreadyExists,
			kind:     dspcommon.ErrPoolExists,
			message:  "'osd pool create' failed: " + cmdErr.Error(),
			exitCode: 17,
		},
		{
			name:     "bare command error",
			err:      cmdErr,
			code:     codes.Unknown,
			kind:     dspcommon.ErrRunCommand,
			message:  cmdErr.Error(),
			exitCode: 17,
		},
		{
			name:    "unclassified error",
			err:     json.Unmarshal([]byte("{"), &struct{}{}),
			code:    codes.Internal,
			kind:    dspcommon.ErrProgramming,
			message: "unexpected end of JSON input",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encoded := encodeError(test.err)
			st, ok := status.FromError(encoded)
			require.True(t, ok)
			assert.Equal(t, test.code, st.Code())

			decoded := decodeError(AgentService, MethodCephOsdCreate, encoded)
			assert.Equal(t, test.kind, dspcommon.GetErrorKind(decoded))
			assert.Equal(t, test.message, decoded.Error())
			if test.exitCode != 0 {
				restored, ok := dspcommon.GetCommandError(decoded)
				require.True(t, ok)
				assert.Equal(t, test.exitCode, restored.ExitCode)
				assert.Equal(t, "pool exists", restored.Stderr)
			}
		})
	}
	assert.Nil(t, encodeError(nil))
	assert.Nil(t, decodeError(AgentService, MethodCephOsdCreate, nil))
}

func TestDecodeTransportError(t *testing.T) {
	tests := []struct {
		code codes.Code
		kind dspcommon.ErrorKind
	}{
		{code: codes.Unavailable, kind: dspcommon.ErrNotReady},
		{code: codes.DeadlineExceeded, kind: dspcommon.ErrTimeout},
		{code: codes.Canceled, kind: dspcommon.ErrCanceled},
		{code: codes.Unimplemented, kind: dspcommon.ErrProgramming},
		{code: codes.Internal, kind: dspcommon.ErrConnect},
	}
	for _, test := range tests {
		t.Run(test.code.String(), func(t *testing.T) {
			err := decodeError(AgentService, MethodDiskGetAll, status.Error(test.code, "transport failure"))
			assert.Equal(t, test.kind, dspcommon.GetErrorKind(err))
		})
	}
}

func TestRouter(t *testing.T) {
	router := NewRouter(AgentService)
	router.Register(MethodDiskLight, Typed(func(_ context.Context, req DiskLightRequest) (string, error) {
		return req.Name + ":" + req.Led, nil
	}))
	router.Register(MethodDiskGetAll, Typed(func(_ context.Context, _ Empty) ([]DiskInfo, error) {
		return nil, nil
	}))
	assert.Equal(t, []string{MethodDiskGetAll, MethodDiskLight}, router.Methods())
	assert.Panics(t, func() {
		router.Register(MethodDiskLight, Typed(func(_ context.Context, _ Empty) (any, error) { return nil, nil }))
	})

	resp, err := router.Dispatch(context.Background(), MethodDiskLight, json.RawMessage(`{"name":"sdb","led":"on"}`))
	require.NoError(t, err)
	assert.Equal(t, "sdb:on", resp)

	_, err = router.Dispatch(context.Background(), MethodDiskLight, json.RawMessage(`{"name":`))
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrInvalid))

	_, err = router.Dispatch(context.Background(), MethodDiskSmartGet, nil)
	assert.EqualError(t, err, "method 'disk_smart_get' is not supported by dspace.Agent")

	desc := router.ServiceDesc()
	assert.Equal(t, AgentService, desc.ServiceName)
	assert.Len(t, desc.Methods, 2)
}

func startTestServer(t *testing.T, router *Router) objects.Endpoint {
	server := NewServer(zerolog.Nop(), router)
	addr, err := server.Listen("127.0.0.1", 0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return objects.Endpoint{IP: "127.0.0.1", Port: addr.Port}
}

func TestServerClientCalls(t *testing.T) {
	router := NewRouter(AgentService)
	var mu sync.Mutex
	written := ""
	router.Register(MethodCephConfWrite, Typed(func(_ context.Context, req CephConfWriteRequest) (WriteResult, error) {
		mu.Lock()
		defer mu.Unlock()
		changed := req.Content != written
		written = req.Content
		return WriteResult{Changed: changed}, nil
	}))
	router.Register(MethodCephOsdCreate, Typed(func(_ context.Context, req OsdRequest) (OsdResult, error) {
		if req.Osd.DB == nil {
			return OsdResult{}, dspcommon.NewError(dspcommon.ErrInvalid, "osd on disk '%s' has no db partition", req.Osd.Disk.Name)
		}
		return OsdResult{OsdID: "3", Fsid: req.Osd.DB.UUID}, nil
	}))
	router.Register(MethodDiskPartitionsRemove, Typed(func(_ context.Context, req DiskRequest) (any, error) {
		return nil, &dspcommon.CommandError{Command: "sgdisk -Z /dev/" + req.Name, ExitCode: 2, Stderr: "device busy"}
	}))
	router.Register(MethodServiceRestart, Typed(func(_ context.Context, _ ServiceRequest) (any, error) {
		panic("unexpected")
	}))
	router.Register(MethodCheckDsaStatus, Typed(func(ctx context.Context, _ Empty) (AgentStatus, error) {
		<-ctx.Done()
		return AgentStatus{}, dspcommon.WrapError(dspcommon.ErrTimeout, ctx.Err(), "status check timed out")
	}))
	endpoint := startTestServer(t, router)

	manager := NewClientManager(zerolog.Nop(), time.Second)
	defer manager.Close()
	agent := NewAgentClient(manager, endpoint)
	ctx := context.Background()

	changed, err := agent.CephConfWrite(ctx, "[global]\n")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = agent.CephConfWrite(ctx, "[global]\n")
	require.NoError(t, err)
	assert.False(t, changed)

	graph := OsdGraph{
		Osd:  objects.Osd{NodeID: 1, DiskID: 2},
		Disk: objects.Disk{Name: "sdb"},
		DB:   &objects.DiskPartition{Name: "sdc1", UUID: "5e0f5d5e"},
	}
	result, err := agent.CephOsdCreate(ctx, graph)
	require.NoError(t, err)
	assert.Equal(t, OsdResult{OsdID: "3", Fsid: "5e0f5d5e"}, result)

	graph.DB = nil
	_, err = agent.CephOsdCreate(ctx, graph)
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrInvalid))
	assert.EqualError(t, err, "osd on disk 'sdb' has no db partition")

	err = agent.DiskPartitionsRemove(ctx, "sdb")
	cmdErr, ok := dspcommon.GetCommandError(err)
	require.True(t, ok)
	assert.Equal(t, 2, cmdErr.ExitCode)
	assert.Equal(t, "device busy", cmdErr.Stderr)

	err = agent.ServiceRestart(ctx, "ceph-osd@3")
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrProgramming))

	_, err = agent.DiskGetAll(ctx)
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrProgramming))

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = agent.CheckDsaStatus(shortCtx)
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrTimeout))
}

func TestClientUnavailableEndpoint(t *testing.T) {
	server := NewServer(zerolog.Nop())
	addr, err := server.Listen("127.0.0.1", 0)
	require.NoError(t, err)
	// nothing serves on the port once listener is closed
	require.NoError(t, server.listener.Close())

	manager := NewClientManager(zerolog.Nop(), time.Second)
	defer manager.Close()
	agent := NewAgentClient(manager, objects.Endpoint{IP: "127.0.0.1", Port: addr.Port})
	_, err = agent.NodeGetSummary(context.Background())
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrNotReady))
}

func TestRegisterServiceAndResolve(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	node := &objects.Node{ClusterID: "c1", Hostname: "node-1"}
	require.NoError(t, store.Nodes().Create(ctx, node))

	svc := objects.RPCService{
		ServiceName: dspcommon.AgentServiceName,
		Hostname:    "node-1",
		NodeID:      node.ID,
		ClusterID:   "c1",
		Endpoint:    objects.Endpoint{IP: "10.0.0.1", Port: 2081},
	}
	first, err := RegisterService(ctx, store, svc)
	require.NoError(t, err)
	svc.Endpoint.IP = "10.0.0.2"
	second, err := RegisterService(ctx, store, svc)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rows, err := store.RPCServices().List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "10.0.0.2", rows[0].Endpoint.IP)

	resolver := NewAgentResolver(store, NewClientManager(zerolog.Nop(), 0))
	agent, err := resolver.ForNode(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, objects.Endpoint{IP: "10.0.0.2", Port: 2081}, agent.Endpoint())

	_, err = resolver.Admin(ctx, "c1")
	assert.True(t, dspcommon.IsNotFound(err))
}

type fakeCaller struct {
	calls   int
	results []error
	node    objects.Node
}

func (f *fakeCaller) Call(_ context.Context, _ objects.Endpoint, service, method string, _, resp any) error {
	f.calls++
	if f.calls <= len(f.results) && f.results[f.calls-1] != nil {
		return f.results[f.calls-1]
	}
	if service == AdminService && method == MethodNodeGet {
		*resp.(*objects.Node) = f.node
	}
	return nil
}

func TestWaitNode(t *testing.T) {
	oldInterval := nodeLookupInitialInterval
	nodeLookupInitialInterval = time.Millisecond
	defer func() { nodeLookupInitialInterval = oldInterval }()

	unavailable := dspcommon.NewError(dspcommon.ErrNotReady, "admin is not ready")
	tests := []struct {
		name    string
		results []error
		calls   int
		err     string
	}{
		{
			name:    "retries until admin answers",
			results: []error{unavailable, dspcommon.NewError(dspcommon.ErrNotFound, "node with ip '10.0.0.1' not found")},
			calls:   3,
		},
		{
			name:    "gives up after five attempts",
			results: []error{unavailable, unavailable, unavailable, unavailable, unavailable},
			calls:   5,
			err:     "failed to get node 'node-1' from admin after 5 attempts: admin is not ready",
		},
		{
			name:    "auth failure is not retried",
			results: []error{dspcommon.NewError(dspcommon.ErrAuth, "denied")},
			calls:   1,
			err:     "failed to get node 'node-1' from admin after 1 attempts: denied",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			caller := &fakeCaller{results: test.results, node: objects.Node{Meta: objects.Meta{ID: 7}, Hostname: "node-1"}}
			admin := NewAdminClient(caller, objects.Endpoint{IP: "10.0.0.254", Port: 2080})
			node, err := WaitNode(context.Background(), zerolog.Nop(), admin, "node-1", "10.0.0.1", 2081)
			assert.Equal(t, test.calls, caller.calls)
			if test.err != "" {
				assert.EqualError(t, err, test.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(7), node.ID)
		})
	}
}

type recordingCaller struct {
	requests  map[string]string
	responses map[string]string
}

func (r *recordingCaller) Call(_ context.Context, _ objects.Endpoint, service, method string, req, resp any) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	r.requests[service+"/"+method] = string(raw)
	if out, ok := r.responses[method]; ok && resp != nil {
		return json.Unmarshal([]byte(out), resp)
	}
	return nil
}

func TestAgentClientRequests(t *testing.T) {
	caller := &recordingCaller{
		requests: map[string]string{},
		responses: map[string]string{
			MethodCephConfigUpdate:     `{"changed": true}`,
			MethodCephMonCreate:        `{"created": false}`,
			MethodDiskSmartGet:         `{"health": "PASSED"}`,
			MethodDiskPartitionsCreate: `[{"name": "sdc1", "role": "db", "size": 1073741824}]`,
			MethodNetworkGetAll:        `[{"name": "eth0", "mac_address": "52:54:00:12:34:56", "status": "up"}]`,
			MethodGetLogfileMetadata:   `[{"file_name": "ceph-osd.3.log", "directory": "/var/log/ceph", "file_size": 2048, "modified_at": "2025-03-01T10:00:00Z"}]`,
		},
	}
	agent := NewAgentClient(caller, objects.Endpoint{IP: "10.10.0.12", Port: 2081})
	ctx := context.Background()

	changed, err := agent.CephConfigUpdate(ctx, []CephConfigValue{{Group: "osd", Key: "osd_max_backfills", Value: "2"}})
	require.NoError(t, err)
	assert.True(t, changed)

	created, err := agent.CephMonCreate(ctx, MonCreateRequest{Fsid: "a7f64266", MgrPort: 7000})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, agent.CephOsdPackageInstall(ctx))
	require.NoError(t, agent.DiskLight(ctx, "sdb", "on"))

	smart, err := agent.DiskSmartGet(ctx, "sdb")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"health": "PASSED"}, smart)

	parts, err := agent.DiskPartitionsCreate(ctx, objects.Disk{Name: "sdc"}, []PartitionSpec{{Role: objects.PartitionRoleDB, Size: 1 << 30}})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "sdc1", parts[0].Name)

	networks, err := agent.NetworkGetAll(ctx)
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, objects.NetworkStatusUp, networks[0].Status)

	logs, err := agent.GetLogfileMetadata(ctx, "osd")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(2048), logs[0].Size)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), logs[0].ModifiedAt.UTC())

	assert.Equal(t, `{"values":[{"group":"osd","key":"osd_max_backfills","value":"2"}]}`, caller.requests[AgentService+"/"+MethodCephConfigUpdate])
	assert.Equal(t, `{}`, caller.requests[AgentService+"/"+MethodCephOsdPackageInstall])
	assert.Equal(t, `{"name":"sdb","led":"on"}`, caller.requests[AgentService+"/"+MethodDiskLight])
	assert.Equal(t, `{"service_type":"osd"}`, caller.requests[AgentService+"/"+MethodGetLogfileMetadata])
	assert.Len(t, caller.requests, 8)
}
