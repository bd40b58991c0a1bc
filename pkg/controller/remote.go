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


package controller

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/objects"
)

// Remotes opens executors on cluster nodes, caller closes them.
type Remotes interface {
	ForNode(ctx context.Context, node *objects.Node) (executor.Executor, error)
}

type sshRemotes struct {
	log        zerolog.Logger
	params     config.InstallParams
	privateKey []byte
}

// NewSSHRemotes connects to nodes over ssh with node password or with
// private key when keyFile is set.
func NewSSHRemotes(log zerolog.Logger, params config.InstallParams, keyFile string) (Remotes, error) {
	r := &sshRemotes{log: log, params: params}
	if keyFile != "" {
		key, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read ssh key '%s'", keyFile)
		}
		r.privateKey = key
	}
	return r, nil
}

func (r *sshRemotes) ForNode(ctx context.Context, node *objects.Node) (executor.Executor, error) {
	return executor.DialSSH(ctx, dspcommon.ObjectLogger(r.log, "node", node.Hostname), executor.SSHConfig{
		Host:           node.IPAddress,
		Port:           r.params.SSHPort,
		User:           r.params.SSHUser,
		Password:       node.Password,
		PrivateKey:     r.privateKey,
		KnownHostsFile: r.params.SSHKnownHosts,
	})
}
