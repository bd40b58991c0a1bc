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


package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
	faketestclients "github.com/Mirantis/dspace/test/unit/clients"
	unitinputs "github.com/Mirantis/dspace/test/unit/inputs"
)

const ipAddrShow = `[
  {"ifindex": 1, "ifname": "lo", "flags": ["LOOPBACK", "UP", "LOWER_UP"], "mtu": 65536, "operstate": "UNKNOWN", "link_type": "loopback", "address": "00:00:00:00:00:00",
    "addr_info": [{"family": "inet", "local": "127.0.0.1", "prefixlen": 8, "scope": "host"}]},
  {"ifindex": 2, "ifname": "eth0", "flags": ["BROADCAST", "MULTICAST", "UP", "LOWER_UP"], "mtu": 1500, "operstate": "UP", "link_type": "ether", "address": "52:54:00:12:34:56",
    "addr_info": [{"family": "inet6", "local": "fe80::5054:ff:fe12:3456", "prefixlen": 64}, {"family": "inet", "local": "10.10.0.11", "prefixlen": 24}]},
  {"ifindex": 3, "ifname": "eth1", "flags": ["BROADCAST", "MULTICAST"], "mtu": 1500, "operstate": "DOWN", "link_type": "ether", "address": "52:54:00:12:34:57", "addr_info": []}
]`

func TestNetworkGetAll(t *testing.T) {
	a, e := fakeAgent(map[string]faketestclients.CommandReaction{"ip -j addr show": {Stdout: ipAddrShow}})
	e.Files["/sys/class/net/eth0/speed"] = []byte("10000\n")
	e.Files["/sys/class/net/eth1/speed"] = []byte("-1\n")

	res, err := call(t, a, rpc.MethodNetworkGetAll, nil)
	assert.Nil(t, err)
	assert.Equal(t, []objects.Network{
		{Name: "eth0", MAC: "52:54:00:12:34:56", IPAddress: "10.10.0.11", Netmask: "255.255.255.0", Speed: "10000Mb/s", Status: objects.NetworkStatusUp},
		{Name: "eth1", MAC: "52:54:00:12:34:57", Status: objects.NetworkStatusDown},
	}, res)

	e.AddReaction("ip -j addr show", faketestclients.CommandReaction{Stdout: "Object \"addr\" is unknown"})
	_, err = call(t, a, rpc.MethodNetworkGetAll, nil)
	assert.NotNil(t, err)
}

func TestNodeGetSummary(t *testing.T) {
	a, e := fakeAgent(map[string]faketestclients.CommandReaction{
		"uname -r": {Stdout: "5.15.0-91-generic\n"},
		"nproc":    {Stdout: "16\n"},
	})
	_, err := call(t, a, rpc.MethodNodeGetSummary, nil)
	assert.True(t, dspcommon.IsNotFound(err))

	e.Files["/proc/uptime"] = []byte("351.72 1342.10\n")
	e.Files["/proc/loadavg"] = []byte("0.52 0.58 0.59 1/789 12345\n")
	e.Files["/proc/meminfo"] = []byte("MemTotal:       65842860 kB\nMemFree:         1234567 kB\nMemAvailable:   40000000 kB\nHugePages_Total:       0\n")
	res, err := call(t, a, rpc.MethodNodeGetSummary, nil)
	assert.Nil(t, err)
	assert.Equal(t, rpc.NodeSummary{
		Hostname:    testHostname,
		Kernel:      "5.15.0-91-generic",
		Uptime:      351.72,
		LoadAverage: [3]float64{0.52, 0.58, 0.59},
		MemTotal:    65842860 << 10,
		MemFree:     40000000 << 10,
		CPUs:        16,
	}, res)
}

func TestParseMeminfo(t *testing.T) {
	assert.Equal(t, map[string]int64{"MemTotal": 2048, "MemFree": 1024, "HugePages_Total": 0},
		parseMeminfo("MemTotal: 2 kB\nMemFree: 1 kB\nHugePages_Total: 0\nbroken\nDirty: n/a kB\n"))
}

func readTargets(t *testing.T, e *faketestclients.FakeExecutor) []targetGroup {
	groups := []targetGroup{}
	assert.Nil(t, yaml.Unmarshal(e.Files[testTargetsFile], &groups))
	return groups
}

func TestPrometheusTargets(t *testing.T) {
	a, e := fakeAgent(nil)
	node := rpc.PrometheusTarget{IP: unitinputs.MonHost, Port: 9100, Hostname: testHostname}
	mgr := rpc.PrometheusTarget{IP: "10.10.0.12", Port: 9283, Hostname: "node-2", Path: "/metrics"}

	_, err := call(t, a, rpc.MethodPrometheusTargetAdd, mgr)
	assert.Nil(t, err)
	_, err = call(t, a, rpc.MethodPrometheusTargetAdd, node)
	assert.Nil(t, err)
	assert.Equal(t, executor.FileOptions{Mode: 0644}, e.Modes[testTargetsFile])
	assert.Equal(t, []targetGroup{
		{Targets: []string{"10.10.0.11:9100"}, Labels: map[string]string{"hostname": testHostname}},
		{Targets: []string{"10.10.0.12:9283"}, Labels: map[string]string{"hostname": "node-2", "__metrics_path__": "/metrics"}},
	}, readTargets(t, e))

	node.Hostname = "node-1a"
	_, err = call(t, a, rpc.MethodPrometheusTargetAdd, node)
	assert.Nil(t, err)
	_, err = call(t, a, rpc.MethodPrometheusTargetRemove, mgr)
	assert.Nil(t, err)
	_, err = call(t, a, rpc.MethodPrometheusTargetRemove, mgr)
	assert.Nil(t, err)
	assert.Equal(t, []targetGroup{
		{Targets: []string{"10.10.0.11:9100"}, Labels: map[string]string{"hostname": "node-1a"}},
	}, readTargets(t, e))

	_, err = call(t, a, rpc.MethodPrometheusTargetAdd, rpc.PrometheusTarget{IP: "10.10.0.13"})
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrInvalid))

	a.prometheus.path = ""
	_, err = a.prometheus.targetAdd(context.Background(), node)
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrInvalid))
}

func TestPrometheusTargetsKeepForeignGroups(t *testing.T) {
	a, e := fakeAgent(nil)
	e.Files[testTargetsFile] = []byte("- targets:\n  - 10.10.0.11:9100\n  - 10.10.0.20:9100\n  labels:\n    job: static\n")
	_, err := call(t, a, rpc.MethodPrometheusTargetRemove, rpc.PrometheusTarget{IP: unitinputs.MonHost, Port: 9100})
	assert.Nil(t, err)
	assert.Equal(t, []targetGroup{
		{Targets: []string{"10.10.0.20:9100"}, Labels: map[string]string{"job": "static"}},
	}, readTargets(t, e))
}

func TestServiceRestartStop(t *testing.T) {
	a, e := fakeAgent(map[string]faketestclients.CommandReaction{
		"systemctl restart ceph-osd@3":   {},
		"systemctl stop ceph-mon@node-1": {},
		"systemctl restart ceph-osd@4":   {ExitCode: 5, Stderr: "Failed to restart ceph-osd@4.service: Unit not found."},
	})
	_, err := call(t, a, rpc.MethodServiceRestart, rpc.ServiceRequest{Name: "ceph-osd@3"})
	assert.Nil(t, err)
	_, err = call(t, a, rpc.MethodServiceStop, rpc.ServiceRequest{Name: "ceph-mon@node-1"})
	assert.Nil(t, err)
	_, err = call(t, a, rpc.MethodServiceRestart, rpc.ServiceRequest{Name: "ceph-osd@4"})
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrRunCommand))

	for _, name := range []string{"", "ceph-osd@3; reboot", "../ceph-mon", "ceph osd"} {
		_, err = call(t, a, rpc.MethodServiceRestart, rpc.ServiceRequest{Name: name})
		assert.True(t, dspcommon.IsKind(err, dspcommon.ErrInvalid), name)
	}
	assert.Equal(t, []string{"systemctl restart ceph-osd@3", "systemctl stop ceph-mon@node-1", "systemctl restart ceph-osd@4"}, e.Commands())
}

func TestGetLogfileMetadata(t *testing.T) {
	a, e := fakeAgent(map[string]faketestclients.CommandReaction{
		"find /var/log/ceph -maxdepth 1 -type f -name ceph-osd.*": {Stdout: "ceph-osd.3.log\t1024\t1760090400.250\nceph-osd.1.log\t20480\t1760004000.0000000000\nbroken line\n"},
	})
	res, err := call(t, a, rpc.MethodGetLogfileMetadata, rpc.LogfileRequest{ServiceType: "osd"})
	assert.Nil(t, err)
	assert.Equal(t, []rpc.LogfileMetadata{}, res)
	assert.Empty(t, e.Commands())

	e.Files["/var/log/ceph/ceph-osd.3.log"] = []byte("log")
	res, err = call(t, a, rpc.MethodGetLogfileMetadata, rpc.LogfileRequest{ServiceType: "osd"})
	assert.Nil(t, err)
	assert.Equal(t, []rpc.LogfileMetadata{
		{Name: "ceph-osd.1.log", Directory: "/var/log/ceph", Size: 20480, ModifiedAt: time.Unix(1760004000, 0).UTC()},
		{Name: "ceph-osd.3.log", Directory: "/var/log/ceph", Size: 1024, ModifiedAt: time.Unix(1760090400, 0).UTC()},
	}, res)

	_, err = call(t, a, rpc.MethodGetLogfileMetadata, rpc.LogfileRequest{ServiceType: "kernel"})
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrInvalid))
}

func TestGetLogfileMetadataHostPrefix(t *testing.T) {
	e := faketestclients.NewFakeExecutor(map[string]faketestclients.CommandReaction{
		"find /hostfs/var/log/dspace": {Stdout: "dspace-agent.log\t512\t1760090400\n"},
	})
	e.Files["/var/log/dspace/dspace-agent.log"] = []byte("log")
	a := New(dspcommon.InitLogger(false), e, Options{Hostname: testHostname, HostPrefix: "/hostfs"})
	res, err := call(t, a, rpc.MethodGetLogfileMetadata, rpc.LogfileRequest{ServiceType: "dsa"})
	assert.Nil(t, err)
	assert.Equal(t, []rpc.LogfileMetadata{
		{Name: "dspace-agent.log", Directory: "/var/log/dspace", Size: 512, ModifiedAt: time.Unix(1760090400, 0).UTC()},
	}, res)
	assert.Equal(t, []string{`find /hostfs/var/log/dspace -maxdepth 1 -type f -name * -printf %f\t%s\t%T@\n`}, e.Commands())
}
