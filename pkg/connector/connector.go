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
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Mirantis/dspace/pkg/ceph"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
)

type Opts struct {
	ClusterID string
	// ceph client without 'client.' prefix
	ClientName    string
	EncodedBase64 bool
	// run ceph commands with admin keyring, otherwise with auth none
	Cephx   bool
	Timeout time.Duration
}

// ConnectionInfo is everything external ceph consumer needs to reach cluster.
type ConnectionInfo struct {
	Fsid       string `json:"fsid"`
	MonHost    string `json:"mon_host"`
	ClientName string `json:"client_name"`
	ClientKey  string `json:"client_key"`
}

// CephConnector reads connection details of clusters managed from this host.
type CephConnector struct {
	log  zerolog.Logger
	exec executor.Executor
}

func NewCephConnector(log zerolog.Logger, exec executor.Executor) *CephConnector {
	return &CephConnector{log: log, exec: exec}
}

func (c *CephConnector) PrepareConnectionString(ctx context.Context, opts Opts) (string, error) {
	info, err := c.GetConnectionInfo(ctx, opts)
	if err != nil {
		return "", errors.Wrap(err, "failed to prepare connection info")
	}
	s, err := json.Marshal(info)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode connection info")
	}
	if opts.EncodedBase64 {
		return base64.StdEncoding.EncodeToString(s), nil
	}
	return string(s), nil
}

// GetConnectionInfo takes fsid and mon_host from cluster ceph.conf and
// client key from the cluster itself.
func (c *CephConnector) GetConnectionInfo(ctx context.Context, opts Opts) (*ConnectionInfo, error) {
	if opts.ClusterID == "" || opts.ClientName == "" {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "cluster id and client name are required")
	}
	confPath := dspcommon.ClusterConfigFile(opts.ClusterID)
	content, err := c.exec.ReadFile(ctx, confPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read '%s'", confPath)
	}
	global := ceph.ParseConfig(string(content))["global"]
	info := &ConnectionInfo{
		Fsid:       global["fsid"],
		MonHost:    global["mon_host"],
		ClientName: strings.TrimPrefix(opts.ClientName, "client."),
	}
	if info.Fsid == "" || info.MonHost == "" {
		return nil, dspcommon.NewError(dspcommon.ErrNotReady, "cluster '%s' has no fsid or mon_host in '%s'", opts.ClusterID, confPath)
	}
	config := ceph.ConnectionConfig{MonHost: info.MonHost, ConfFile: confPath, Timeout: opts.Timeout}
	if opts.Cephx {
		config.Keyring = dspcommon.ClusterAdminKeyringFile(opts.ClusterID)
	}
	err = ceph.WithClient(dspcommon.ObjectLogger(c.log, "cluster", opts.ClusterID), c.exec, config, func(client *ceph.Client) error {
		key, err := client.AuthGetKey(ctx, "client."+info.ClientName)
		if err != nil {
			return errors.Wrapf(err, "failed to get key of client '%s'", info.ClientName)
		}
		info.ClientKey = key
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
