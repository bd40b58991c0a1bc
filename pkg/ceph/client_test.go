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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	faketestclients "github.com/Mirantis/dspace/test/unit/clients/fakeexec"
	unitinputs "github.com/Mirantis/dspace/test/unit/inputs"
)

const globalArgsNoAuth = " --format json -m 10.10.0.11 --connect-timeout 10 --auth-client-required none"

func fakeClient(t *testing.T, reactions map[string]faketestclients.CommandReaction) (*Client, *faketestclients.FakeExecutor) {
	e := faketestclients.NewFakeExecutor(reactions)
	c, err := Open(dspcommon.InitLogger(false), e, ConnectionConfig{MonHost: unitinputs.MonHost})
	assert.Nil(t, err)
	return c, e
}

func TestOpen(t *testing.T) {
	_, err := Open(dspcommon.InitLogger(false), faketestclients.NewFakeExecutor(nil), ConnectionConfig{})
	assert.EqualError(t, err, "mon_host is not specified")
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrInvalid))

	c, err := Open(dspcommon.InitLogger(false), faketestclients.NewFakeExecutor(nil), ConnectionConfig{MonHost: "10.0.0.1"})
	assert.Nil(t, err)
	assert.Equal(t, 10*time.Second, c.timeout)
	assert.Equal(t, 10*time.Second, c.config.ConnectTimeout)
}

func TestArgv(t *testing.T) {
	c, _ := fakeClient(t, nil)
	assert.Equal(t, "ceph osd tree"+globalArgsNoAuth, strings.Join(c.argv("ceph", []string{"osd", "tree"}, true), " "))

	c.config.Keyring = "/etc/ceph/c1/ceph.client.admin.keyring"
	c.config.ConfFile = "/etc/ceph/c1/ceph.conf"
	assert.Equal(t,
		"rbd ls rbd -m 10.10.0.11 -c /etc/ceph/c1/ceph.conf --keyring /etc/ceph/c1/ceph.client.admin.keyring",
		strings.Join(c.argv("rbd", []string{"ls", "rbd"}, false), " "))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		hints    errorHints
		expected dspcommon.ErrorKind
	}{
		{
			name:     "command timeout",
			err:      dspcommon.NewError(dspcommon.ErrTimeout, "command 'ceph' timed out after 10s"),
			hints:    genericHints,
			expected: dspcommon.ErrTimeout,
		},
		{
			name:     "mon unreachable",
			err:      &dspcommon.CommandError{ExitCode: 1, Stderr: "[errno 110] RADOS timed out (error connecting to the cluster)"},
			hints:    genericHints,
			expected: dspcommon.ErrConnect,
		},
		{
			name:     "auth failure",
			err:      &dspcommon.CommandError{ExitCode: 13, Stderr: "[errno 13] RADOS permission denied (error connecting to the cluster)"},
			hints:    genericHints,
			expected: dspcommon.ErrAuth,
		},
		{
			name:     "access denied",
			err:      &dspcommon.CommandError{ExitCode: 13, Stderr: "Error EACCES: access denied"},
			hints:    genericHints,
			expected: dspcommon.ErrAuth,
		},
		{
			name:     "paused cluster",
			err:      &dspcommon.CommandError{ExitCode: 1, Stderr: "Error: cluster is paused (pauserd,pausewr set)"},
			hints:    genericHints,
			expected: dspcommon.ErrClusterPause,
		},
		{
			name:     "pool not found",
			err:      &dspcommon.CommandError{ExitCode: 2, Stderr: "Error ENOENT: unrecognized pool 'ec1'"},
			hints:    poolHints,
			expected: dspcommon.ErrPoolNameNotFound,
		},
		{
			name:     "osd not found",
			err:      &dspcommon.CommandError{ExitCode: 2, Stderr: "Error ENOENT: osd.7 does not exist"},
			hints:    osdHints,
			expected: dspcommon.ErrOsdNotFound,
		},
		{
			name:     "rbd image not found",
			err:      &dspcommon.CommandError{ExitCode: 2, Stderr: "rbd: error opening image vol1: (2) No such file or directory"},
			hints:    genericHints,
			expected: dspcommon.ErrNotFound,
		},
		{
			name:     "pool exists",
			err:      &dspcommon.CommandError{ExitCode: 17, Stderr: "Error EEXIST: pool 'ec1' already exists"},
			hints:    poolHints,
			expected: dspcommon.ErrPoolExists,
		},
		{
			name:     "other failure",
			err:      &dspcommon.CommandError{ExitCode: 22, Stderr: "Error EINVAL: invalid command"},
			hints:    genericHints,
			expected: dspcommon.ErrCeph,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := classifyError("ceph test", test.err, test.hints)
			assert.Equal(t, test.expected, dspcommon.GetErrorKind(err))
		})
	}
	// pool specific kinds still match generic checks
	err := classifyError("ceph test", &dspcommon.CommandError{ExitCode: 2, Stderr: "Error ENOENT"}, poolHints)
	assert.True(t, dspcommon.IsNotFound(err))
}

func TestClosedClient(t *testing.T) {
	e := faketestclients.NewFakeExecutor(map[string]faketestclients.CommandReaction{"ceph status": {Stdout: unitinputs.CephStatusBaseHealthy}})
	var saved *Client
	err := WithClient(dspcommon.InitLogger(false), e, ConnectionConfig{MonHost: unitinputs.MonHost}, func(c *Client) error {
		saved = c
		status, err := c.Status(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, unitinputs.ClusterFsid, status.Fsid)
		assert.Equal(t, 3, status.OsdMap.NumUpOsd)
		return nil
	})
	assert.Nil(t, err)
	_, err = saved.Status(context.Background())
	assert.EqualError(t, err, "ceph client is closed, can't run 'ceph status'")
	assert.Equal(t, []string{"ceph status" + globalArgsNoAuth}, e.Commands())
}

func TestWithTimeout(t *testing.T) {
	c, _ := fakeClient(t, nil)
	long := c.WithTimeout(300 * time.Second)
	assert.Equal(t, 300*time.Second, long.timeout)
	assert.Equal(t, 10*time.Second, c.timeout)
}

func TestClusterCommands(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{
		"ceph quorum_status":          {Stdout: unitinputs.CephQuorumStatus},
		"ceph version":                {Stdout: unitinputs.CephVersionOutput},
		"ceph osd dump":               {Stdout: unitinputs.CephOsdDumpPaused},
		"ceph config set":             {},
		"ceph config get osd mon_osd": {Stdout: "32\n"},
		"ceph auth get-key":           {Stdout: `{"key": "AQBpc2VjcmV0a2V5"}`},
		"ceph osd set pause":          {ExitCode: 13, Stderr: "Error EACCES: access denied"},
		"ceph osd unset pause":        {},
	})
	ctx := context.Background()

	quorum, err := c.QuorumStatus(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []string{"node-1"}, quorum.QuorumNames)

	version, err := c.Version(ctx)
	assert.Nil(t, err)
	assert.Equal(t, dspcommon.Squid.Name, version.Name)
	assert.Equal(t, "3", version.MinorVersion)

	paused, err := c.IsPaused(ctx)
	assert.Nil(t, err)
	assert.True(t, paused)

	assert.Nil(t, c.ConfigSet(ctx, TargetAllOsds, "osd_max_backfills", "2"))
	assert.Nil(t, c.ConfigSet(ctx, OsdTarget("5"), "osd_max_backfills", "4"))
	assert.Nil(t, c.ConfigSet(ctx, TargetMon, "mon_allow_pool_delete", "true"))
	assert.Equal(t, []string{
		"ceph config set osd osd_max_backfills 2" + globalArgsNoAuth,
		"ceph config set osd.5 osd_max_backfills 4" + globalArgsNoAuth,
		"ceph config set mon mon_allow_pool_delete true" + globalArgsNoAuth,
	}, e.CommandsWithPrefix("ceph config set"))

	value, err := c.ConfigGet(ctx, TargetAllOsds, "mon_osd_max_split_count")
	assert.Nil(t, err)
	assert.Equal(t, "32", value)

	key, err := c.AuthGetKey(ctx, "client.admin")
	assert.Nil(t, err)
	assert.Equal(t, "AQBpc2VjcmV0a2V5", key)

	err = c.ClusterPause(ctx)
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrClusterPause))
	assert.Nil(t, c.ClusterUnpause(ctx))
}

func TestHistoricSlowOps(t *testing.T) {
	c, e := fakeClient(t, map[string]faketestclients.CommandReaction{
		"ceph daemon osd.1 dump_historic_slow_ops": {Stdout: unitinputs.CephHistoricSlowOps},
		"ceph daemon osd.2 dump_historic_slow_ops": {ExitCode: 22, Stderr: "admin_socket: exception getting command descriptions: [Errno 2] No such file or directory"},
	})
	ops, err := c.HistoricSlowOps(context.Background(), "1")
	assert.Nil(t, err)
	assert.Len(t, ops.Ops, 2)
	assert.Equal(t, 52.7, ops.Ops[1].Duration)
	assert.Equal(t, []string{"ceph daemon osd.1 dump_historic_slow_ops --format json"}, e.Commands())

	_, err = c.HistoricSlowOps(context.Background(), "2")
	assert.True(t, dspcommon.IsKind(err, dspcommon.ErrOsdNotFound))
}
