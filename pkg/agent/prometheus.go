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
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/rpc"
)

const (
	hostnameLabel    = "hostname"
	metricsPathLabel = "__metrics_path__"
)

// targetGroup is prometheus file_sd entry.
type targetGroup struct {
	Targets []string          `yaml:"targets"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

type prometheusModule struct {
	log  zerolog.Logger
	exec executor.Executor
	path string
	// guards read-modify-write of targets file
	mu *sync.Mutex
}

func (m prometheusModule) register(r *rpc.Router) {
	r.Register(rpc.MethodPrometheusTargetAdd, rpc.Typed(m.targetAdd))
	r.Register(rpc.MethodPrometheusTargetRemove, rpc.Typed(m.targetRemove))
}

func targetAddress(target rpc.PrometheusTarget) string {
	return net.JoinHostPort(target.IP, strconv.Itoa(target.Port))
}

func (m prometheusModule) load(ctx context.Context) ([]targetGroup, error) {
	content, err := m.exec.ReadFile(ctx, m.path)
	if err != nil {
		if dspcommon.IsNotFound(err) {
			return []targetGroup{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read '%s'", m.path)
	}
	groups := []targetGroup{}
	if err := yaml.Unmarshal(content, &groups); err != nil {
		return nil, errors.Wrapf(err, "failed to parse '%s'", m.path)
	}
	return groups, nil
}

func (m prometheusModule) save(ctx context.Context, groups []targetGroup) error {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Targets[0] < groups[j].Targets[0] })
	content, err := yaml.Marshal(groups)
	if err != nil {
		return errors.Wrap(err, "failed to render prometheus targets")
	}
	if _, err := writeIfChanged(ctx, m.exec, m.path, string(content), executor.FileOptions{Mode: 0644}); err != nil {
		return errors.Wrapf(err, "failed to write '%s'", m.path)
	}
	return nil
}

// update drops every group of target address and optionally adds new one.
func (m prometheusModule) update(ctx context.Context, target rpc.PrometheusTarget, add bool) error {
	if m.path == "" {
		return dspcommon.NewError(dspcommon.ErrInvalid, "prometheus targets file is not configured")
	}
	if target.IP == "" || target.Port <= 0 {
		return dspcommon.NewError(dspcommon.ErrInvalid, "target ip and port are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	groups, err := m.load(ctx)
	if err != nil {
		return err
	}
	address := targetAddress(target)
	kept := make([]targetGroup, 0, len(groups)+1)
	for _, group := range groups {
		targets := []string{}
		for _, item := range group.Targets {
			if item != address {
				targets = append(targets, item)
			}
		}
		if len(targets) > 0 {
			group.Targets = targets
			kept = append(kept, group)
		}
	}
	if add {
		labels := map[string]string{hostnameLabel: target.Hostname}
		if target.Path != "" {
			labels[metricsPathLabel] = target.Path
		}
		kept = append(kept, targetGroup{Targets: []string{address}, Labels: labels})
	}
	return m.save(ctx, kept)
}

func (m prometheusModule) targetAdd(ctx context.Context, target rpc.PrometheusTarget) (any, error) {
	if err := m.update(ctx, target, true); err != nil {
		return nil, err
	}
	m.log.Info().Msgf("prometheus target '%s' of node '%s' registered", targetAddress(target), target.Hostname)
	return nil, nil
}

func (m prometheusModule) targetRemove(ctx context.Context, target rpc.PrometheusTarget) (any, error) {
	if err := m.update(ctx, target, false); err != nil {
		return nil, err
	}
	m.log.Info().Msgf("prometheus target '%s' removed", targetAddress(target))
	return nil, nil
}
