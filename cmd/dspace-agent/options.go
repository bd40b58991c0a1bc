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


package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Mirantis/dspace/codeversion"
	"github.com/Mirantis/dspace/pkg/agent"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
	"github.com/Mirantis/dspace/pkg/objects"
	"github.com/Mirantis/dspace/pkg/rpc"
)

// mock for tests
var getHostname = os.Hostname

func loadOptions(log zerolog.Logger) (*config.Config, agent.Options, error) {
	v, err := config.NewViper(configFile)
	if err != nil {
		return nil, agent.Options{}, err
	}
	cfg, err := config.Load(log, v)
	if err != nil {
		return nil, agent.Options{}, err
	}
	opts, err := agentOptions(v, cfg)
	return cfg, opts, err
}

func agentOptions(v *viper.Viper, cfg *config.Config) (agent.Options, error) {
	if cfg.RPC.MyIP == "" {
		return agent.Options{}, dspcommon.NewError(dspcommon.ErrInvalid, "my_ip is required")
	}
	hostname := v.GetString("hostname")
	if hostname == "" {
		name, err := getHostname()
		if err != nil {
			return agent.Options{}, errors.Wrap(err, "failed to get hostname")
		}
		hostname = name
	}
	return agent.Options{
		ClusterID:             v.GetString("cluster_id"),
		Hostname:              hostname,
		IP:                    cfg.RPC.MyIP,
		Port:                  cfg.RPC.AgentPort,
		Version:               codeversion.Version,
		HostPrefix:            cfg.HostPrefix,
		CommandTimeout:        cfg.CephCommandTimeout,
		ControlSocket:         cfg.ControlSocket,
		PrometheusTargetsFile: cfg.PrometheusTargetsFile,
		TaskWorkers:           cfg.TaskWorkers,
		ShutdownGracePeriod:   cfg.ShutdownGracePeriod,
	}, nil
}

func adminEndpoint(cfg *config.Config) (objects.Endpoint, error) {
	if cfg.RPC.AdminIP == "" {
		return objects.Endpoint{}, dspcommon.NewError(dspcommon.ErrInvalid, "admin_ip is required")
	}
	return objects.Endpoint{IP: cfg.RPC.AdminIP, Port: cfg.RPC.AdminPort}, nil
}

// localEndpoint is agent endpoint as seen from the same host.
func localEndpoint(cfg *config.Config) objects.Endpoint {
	ip := cfg.RPC.MyIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	return objects.Endpoint{IP: ip, Port: cfg.RPC.AgentPort}
}

type statusChecker interface {
	CheckDsaStatus(ctx context.Context) (rpc.AgentStatus, error)
}

func checkStatus(ctx context.Context, checker statusChecker, out io.Writer) error {
	status, err := checker.CheckDsaStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "agent is unreachable")
	}
	fmt.Fprintf(out, "agent of '%s' (%s) is %s\n", status.Hostname, status.Version, status.Status)
	if status.Status != dspcommon.AgentStatusReady {
		return dspcommon.NewError(dspcommon.ErrNotReady, "agent of '%s' is %s", status.Hostname, status.Status)
	}
	return nil
}
