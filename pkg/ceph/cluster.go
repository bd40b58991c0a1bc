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


package ceph

import (
	"context"
	"strings"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

type ConfigTarget string

const (
	TargetGlobal  ConfigTarget = "global"
	TargetMon     ConfigTarget = "mon"
	TargetAllOsds ConfigTarget = "osd.*"
)

func OsdTarget(osdID string) ConfigTarget {
	return ConfigTarget("osd." + osdID)
}

// who returns config database section for target.
func (t ConfigTarget) who() string {
	if t == TargetAllOsds {
		return "osd"
	}
	return string(t)
}

func (c *Client) Status(ctx context.Context) (*dspcommon.CephStatus, error) {
	status := &dspcommon.CephStatus{}
	if err := c.runAndParse(ctx, genericHints, status, "status"); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) QuorumStatus(ctx context.Context) (*dspcommon.CephQuorumStatus, error) {
	status := &dspcommon.CephQuorumStatus{}
	if err := c.runAndParse(ctx, genericHints, status, "quorum_status"); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) Df(ctx context.Context) (*dspcommon.CephDetails, error) {
	details := &dspcommon.CephDetails{}
	if err := c.runAndParse(ctx, genericHints, details, "df"); err != nil {
		return nil, err
	}
	return details, nil
}

func (c *Client) Version(ctx context.Context) (*dspcommon.CephVersion, error) {
	output, err := c.run(ctx, genericHints, "version")
	if err != nil {
		return nil, err
	}
	return dspcommon.ParseCephVersion(dspcommon.GetCephVersionFromOutput(output))
}

func (c *Client) BalancerStatus(ctx context.Context) (*dspcommon.BalancerStatus, error) {
	status := &dspcommon.BalancerStatus{}
	if err := c.runAndParse(ctx, genericHints, status, "balancer", "status"); err != nil {
		return nil, err
	}
	return status, nil
}

func (c *Client) ConfigSet(ctx context.Context, target ConfigTarget, key, value string) error {
	_, err := c.run(ctx, genericHints, "config", "set", target.who(), key, value)
	return err
}

func (c *Client) ConfigGet(ctx context.Context, target ConfigTarget, key string) (string, error) {
	output, err := c.run(ctx, genericHints, "config", "get", target.who(), key)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(output), `"`), nil
}

func (c *Client) IsPaused(ctx context.Context) (bool, error) {
	dump, err := c.OsdDump(ctx)
	if err != nil {
		return false, err
	}
	flags := strings.Split(dump.Flags, ",")
	return dspcommon.Contains(flags, "pauserd") && dspcommon.Contains(flags, "pausewr"), nil
}

func (c *Client) ClusterPause(ctx context.Context) error {
	if _, err := c.run(ctx, genericHints, "osd", "set", "pause"); err != nil {
		return dspcommon.WrapError(dspcommon.ErrClusterPause, err, "failed to pause cluster")
	}
	return nil
}

func (c *Client) ClusterUnpause(ctx context.Context) error {
	if _, err := c.run(ctx, genericHints, "osd", "unset", "pause"); err != nil {
		return dspcommon.WrapError(dspcommon.ErrClusterUnpause, err, "failed to unpause cluster")
	}
	return nil
}

func (c *Client) AuthGetKey(ctx context.Context, entity string) (string, error) {
	key := struct {
		Key string `json:"key"`
	}{}
	if err := c.runAndParse(ctx, genericHints, &key, "auth", "get-key", entity); err != nil {
		return "", err
	}
	return key.Key, nil
}

// AuthGetOrCreate returns keyring of entity in plain format.
func (c *Client) AuthGetOrCreate(ctx context.Context, entity string, caps ...string) (string, error) {
	args := append([]string{"auth", "get-or-create", entity}, caps...)
	return c.execute(ctx, "ceph", genericHints, false, args...)
}

func (c *Client) AuthDel(ctx context.Context, entity string) error {
	_, err := c.run(ctx, genericHints, "auth", "del", entity)
	return err
}

// MonGetMap stores current monmap into file on executor host.
func (c *Client) MonGetMap(ctx context.Context, path string) error {
	_, err := c.run(ctx, genericHints, "mon", "getmap", "-o", path)
	return err
}

func (c *Client) MonRemove(ctx context.Context, name string) error {
	_, err := c.run(ctx, genericHints, "mon", "remove", name)
	return err
}

// HistoricSlowOps queries local osd admin socket, so it ignores mon_host.
func (c *Client) HistoricSlowOps(ctx context.Context, osdID string) (*dspcommon.HistoricOps, error) {
	ops := &dspcommon.HistoricOps{}
	cmd := "ceph daemon osd." + osdID + " dump_historic_slow_ops"
	result, err := c.exec.RunCommand(ctx, []string{"ceph", "daemon", "osd." + osdID, "dump_historic_slow_ops", "--format", "json"}, c.timeout)
	if err != nil {
		return nil, classifyError(cmd, err, osdHints)
	}
	if err := parseJSON(cmd, result.Stdout, ops); err != nil {
		return nil, err
	}
	return ops, nil
}
