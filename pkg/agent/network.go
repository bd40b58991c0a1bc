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
	"encoding/json"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

const sysNetDir = "/sys/class/net/"

type ipAddrInfo struct {
	Family    string `json:"family"`
	Local     string `json:"local"`
	PrefixLen int    `json:"prefixlen"`
}

// ipLink is single interface entry of 'ip -j addr show'.
type ipLink struct {
	Name      string       `json:"ifname"`
	OperState string       `json:"operstate"`
	LinkType  string       `json:"link_type"`
	Address   string       `json:"address"`
	AddrInfo  []ipAddrInfo `json:"addr_info"`
}

type networkModule struct {
	log      zerolog.Logger
	exec     executor.Executor
	hostname string
	timeout  time.Duration
}

func (m networkModule) register(r *rpc.Router) {
	r.Register(rpc.MethodNetworkGetAll, rpc.Typed(m.getAll))
	r.Register(rpc.MethodNodeGetSummary, rpc.Typed(m.summary))
}

func netmask(prefixLen int) string {
	return net.IP(net.CIDRMask(prefixLen, 32)).String()
}

// speed reads link speed from sysfs, virtual links report nothing.
func (m networkModule) speed(ctx context.Context, name string) string {
	content, err := m.exec.ReadFile(ctx, sysNetDir+name+"/speed")
	if err != nil {
		return ""
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil || value <= 0 {
		return ""
	}
	return strconv.Itoa(value) + "Mb/s"
}

func (m networkModule) scan(ctx context.Context) ([]objects.Network, error) {
	output, err := run(ctx, m.exec, m.timeout, "ip", "-j", "addr", "show")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list network interfaces")
	}
	links := []ipLink{}
	if err := json.Unmarshal([]byte(output), &links); err != nil {
		return nil, errors.Wrap(err, "failed to parse 'ip addr' output")
	}
	networks := []objects.Network{}
	for _, link := range links {
		if link.LinkType != "ether" {
			continue
		}
		network := objects.Network{
			Name:   link.Name,
			MAC:    link.Address,
			Speed:  m.speed(ctx, link.Name),
			Status: objects.NetworkStatusDown,
		}
		if strings.EqualFold(link.OperState, "up") {
			network.Status = objects.NetworkStatusUp
		}
		for _, addr := range link.AddrInfo {
			if addr.Family == "inet" {
				network.IPAddress = addr.Local
				network.Netmask = netmask(addr.PrefixLen)
				break
			}
		}
		networks = append(networks, network)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i].Name < networks[j].Name })
	return networks, nil
}

func (m networkModule) getAll(ctx context.Context, _ rpc.Empty) ([]objects.Network, error) {
	return m.scan(ctx)
}

func (m networkModule) readProc(ctx context.Context, name string) ([]string, error) {
	content, err := m.exec.ReadFile(ctx, "/proc/"+name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read /proc/%s", name)
	}
	return strings.Fields(string(content)), nil
}

// parseMeminfo returns values of 'Key: N kB' lines in bytes.
func parseMeminfo(content string) map[string]int64 {
	values := map[string]int64{}
	for _, line := range strings.Split(content, "\n") {
		key, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		value, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		if len(fields) > 1 && fields[1] == "kB" {
			value <<= 10
		}
		values[key] = value
	}
	return values
}

func (m networkModule) summary(ctx context.Context, _ rpc.Empty) (rpc.NodeSummary, error) {
	summary := rpc.NodeSummary{Hostname: m.hostname}
	kernel, err := run(ctx, m.exec, m.timeout, "uname", "-r")
	if err != nil {
		return summary, err
	}
	summary.Kernel = strings.TrimSpace(kernel)
	cpus, err := run(ctx, m.exec, m.timeout, "nproc")
	if err != nil {
		return summary, err
	}
	summary.CPUs, _ = strconv.Atoi(strings.TrimSpace(cpus))

	uptime, err := m.readProc(ctx, "uptime")
	if err != nil {
		return summary, err
	}
	if len(uptime) > 0 {
		summary.Uptime, _ = strconv.ParseFloat(uptime[0], 64)
	}
	load, err := m.readProc(ctx, "loadavg")
	if err != nil {
		return summary, err
	}
	for idx := 0; idx < len(summary.LoadAverage) && idx < len(load); idx++ {
		summary.LoadAverage[idx], _ = strconv.ParseFloat(load[idx], 64)
	}
	meminfo, err := m.exec.ReadFile(ctx, "/proc/meminfo")
	if err != nil {
		return summary, errors.Wrap(err, "failed to read /proc/meminfo")
	}
	mem := parseMeminfo(string(meminfo))
	summary.MemTotal = mem["MemTotal"]
	summary.MemFree = mem["MemFree"]
	if available, ok := mem["MemAvailable"]; ok {
		summary.MemFree = available
	}
	return summary, nil
}
