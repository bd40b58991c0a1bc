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


package connector

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	faketestclients "github.com/Mirantis/dspace/test/unit/clients"
	unitinputs "github.com/Mirantis/dspace/test/unit/inputs"
)

const (
	clusterConf = "[global]\nfsid = " + unitinputs.ClusterFsid + "\nmon_host = " + unitinputs.MonHost + "\n"
	clientKey   = "AQDyuVVmAAAAABAAbq1C1m2D8G0b5nqK2yJ2Sw=="
)

func TestPrepareConnectionString(t *testing.T) {
	getKey := "ceph auth get-key client.rbd-user" + faketestclients.CephArgs
	expectedInfo := `{"fsid":"` + unitinputs.ClusterFsid + `","mon_host":"` + unitinputs.MonHost + `","client_name":"rbd-user","client_key":"` + clientKey + `"}`
	tests := []struct {
		name          string
		conf          string
		opts          Opts
		reactions     map[string]faketestclients.CommandReaction
		expectedInfo  string
		expectedError string
		expectedKind  dspcommon.ErrorKind
	}{
		{
			name:         "connection info",
			conf:         clusterConf,
			opts:         Opts{ClusterID: unitinputs.ClusterID, ClientName: "rbd-user", Cephx: true},
			reactions:    map[string]faketestclients.CommandReaction{getKey: {Stdout: `{"key":"` + clientKey + `"}`}},
			expectedInfo: expectedInfo,
		},
		{
			name:         "client prefix is trimmed, base64 encoded",
			conf:         clusterConf,
			opts:         Opts{ClusterID: unitinputs.ClusterID, ClientName: "client.rbd-user", Cephx: true, EncodedBase64: true},
			reactions:    map[string]faketestclients.CommandReaction{getKey: {Stdout: `{"key":"` + clientKey + `"}`}},
			expectedInfo: base64.StdEncoding.EncodeToString([]byte(expectedInfo)),
		},
		{
			name:         "missing client name",
			conf:         clusterConf,
			opts:         Opts{ClusterID: unitinputs.ClusterID},
			expectedKind: dspcommon.ErrInvalid,
		},
		{
			name:          "missing ceph.conf",
			opts:          Opts{ClusterID: unitinputs.ClusterID, ClientName: "rbd-user"},
			expectedError: "failed to prepare connection info: failed to read '/etc/ceph/" + unitinputs.ClusterID + "/ceph.conf'",
		},
		{
			name:         "ceph.conf without mon_host",
			conf:         "[global]\nfsid = " + unitinputs.ClusterFsid + "\n",
			opts:         Opts{ClusterID: unitinputs.ClusterID, ClientName: "rbd-user"},
			expectedKind: dspcommon.ErrNotReady,
		},
		{
			name:          "unknown client",
			conf:          clusterConf,
			opts:          Opts{ClusterID: unitinputs.ClusterID, ClientName: "rbd-user", Cephx: true},
			reactions:     map[string]faketestclients.CommandReaction{getKey: {ExitCode: 2, Stderr: "Error ENOENT: failed to find client.rbd-user in keyring"}},
			expectedError: "failed to prepare connection info: failed to get key of client 'rbd-user'",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			exec := faketestclients.NewFakeExecutor(test.reactions)
			if test.conf != "" {
				exec.Files[dspcommon.ClusterConfigFile(unitinputs.ClusterID)] = []byte(test.conf)
			}
			c := NewCephConnector(dspcommon.InitLogger(false), exec)
			test.opts.Timeout = 10 * time.Second

			info, err := c.PrepareConnectionString(context.Background(), test.opts)
			switch {
			case test.expectedKind != "":
				assert.True(t, dspcommon.IsKind(err, test.expectedKind), "unexpected error %v", err)
			case test.expectedError != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.expectedError)
			default:
				require.NoError(t, err)
				assert.Equal(t, test.expectedInfo, info)
			}
		})
	}
}
