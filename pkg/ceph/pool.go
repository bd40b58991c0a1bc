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
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

type PoolSpec struct {
	Name     string
	PgNum    int
	RuleName string
	// erasure profile name, pool is replicated when empty
	ErasureProfile string
}

func (c *Client) PoolCreate(ctx context.Context, spec PoolSpec) error {
	pg := strconv.Itoa(spec.PgNum)
	args := []string{"osd", "pool", "create", spec.Name, pg, pg}
	if spec.ErasureProfile != "" {
		args = append(args, "erasure", spec.ErasureProfile)
	} else {
		args = append(args, "replicated")
	}
	if spec.RuleName != "" {
		args = append(args, spec.RuleName)
	}
	_, err := c.run(ctx, poolHints, args...)
	return err
}

func (c *Client) PoolDelete(ctx context.Context, name string) error {
	_, err := c.run(ctx, poolHints, "osd", "pool", "delete", name, name, "--yes-i-really-really-mean-it")
	return err
}

func (c *Client) PoolList(ctx context.Context) ([]string, error) {
	pools := []string{}
	if err := c.runAndParse(ctx, poolHints, &pools, "osd", "pool", "ls"); err != nil {
		return nil, err
	}
	return pools, nil
}

func (c *Client) PoolExists(ctx context.Context, name string) (bool, error) {
	pools, err := c.PoolList(ctx)
	if err != nil {
		return false, err
	}
	return dspcommon.Contains(pools, name), nil
}

// PoolGet returns pool parameter value as string.
func (c *Client) PoolGet(ctx context.Context, name, key string) (string, error) {
	values := map[string]json.RawMessage{}
	if err := c.runAndParse(ctx, poolHints, &values, "osd", "pool", "get", name, key); err != nil {
		return "", err
	}
	raw, ok := values[key]
	if !ok {
		return "", errors.Errorf("pool '%s' has no parameter '%s' in output", name, key)
	}
	var str string
	if json.Unmarshal(raw, &str) == nil {
		return str, nil
	}
	return string(raw), nil
}

func (c *Client) PoolSet(ctx context.Context, name, key, value string) error {
	_, err := c.run(ctx, poolHints, "osd", "pool", "set", name, key, value)
	return err
}

func (c *Client) PoolPgNum(ctx context.Context, name string) (int, error) {
	value, err := c.PoolGet(ctx, name, "pg_num")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// PoolSetPgNum changes pg_num and pgp_num in lockstep.
func (c *Client) PoolSetPgNum(ctx context.Context, name string, pgNum int) error {
	for _, key := range []string{"pg_num", "pgp_num"} {
		if err := c.PoolSet(ctx, name, key, strconv.Itoa(pgNum)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) PoolApplicationEnable(ctx context.Context, name, application string) error {
	_, err := c.run(ctx, poolHints, "osd", "pool", "application", "enable", name, application)
	return err
}

func (c *Client) ErasureProfileSet(ctx context.Context, name string, k, m int, failureDomain, root string) error {
	_, err := c.run(ctx, genericHints, "osd", "erasure-code-profile", "set", name,
		fmt.Sprintf("k=%d", k), fmt.Sprintf("m=%d", m),
		"crush-failure-domain="+failureDomain, "crush-root="+root, "--force")
	return err
}

func (c *Client) ErasureProfileRemove(ctx context.Context, name string) error {
	_, err := c.run(ctx, genericHints, "osd", "erasure-code-profile", "rm", name)
	return err
}

func (c *Client) CrushRuleCreateReplicated(ctx context.Context, name, root, failureDomain string) error {
	_, err := c.run(ctx, genericHints, "osd", "crush", "rule", "create-replicated", name, root, failureDomain)
	return err
}

func (c *Client) CrushRuleCreateErasure(ctx context.Context, name, profile string) error {
	_, err := c.run(ctx, genericHints, "osd", "crush", "rule", "create-erasure", name, profile)
	return err
}

func (c *Client) CrushRuleRemove(ctx context.Context, name string) error {
	_, err := c.run(ctx, genericHints, "osd", "crush", "rule", "rm", name)
	return err
}

func (c *Client) CrushRuleRename(ctx context.Context, oldName, newName string) error {
	_, err := c.run(ctx, genericHints, "osd", "crush", "rule", "rename", oldName, newName)
	return err
}

func (c *Client) CrushRuleDump(ctx context.Context, name string) (*dspcommon.CrushRuleInfo, error) {
	rule := &dspcommon.CrushRuleInfo{}
	if err := c.runAndParse(ctx, genericHints, rule, "osd", "crush", "rule", "dump", name); err != nil {
		return nil, err
	}
	return rule, nil
}

func (c *Client) CrushRuleList(ctx context.Context) ([]string, error) {
	rules := []string{}
	if err := c.runAndParse(ctx, genericHints, &rules, "osd", "crush", "rule", "ls"); err != nil {
		return nil, err
	}
	return rules, nil
}
