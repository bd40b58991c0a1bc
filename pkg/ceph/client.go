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
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tevino/abool"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
)

type ConnectionConfig struct {
	MonHost string
	// admin keyring path, client runs with auth none profile when empty
	Keyring        string
	ConfFile       string
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

// Client is typed wrapper around ceph and rbd command line tools.
type Client struct {
	exec    executor.Executor
	config  ConnectionConfig
	log     zerolog.Logger
	closed  *abool.AtomicBool
	timeout time.Duration
}

type errorHints struct {
	notFound dspcommon.ErrorKind
	exists   dspcommon.ErrorKind
}

var (
	genericHints = errorHints{notFound: dspcommon.ErrNotFound, exists: dspcommon.ErrAlreadyExists}
	poolHints    = errorHints{notFound: dspcommon.ErrPoolNameNotFound, exists: dspcommon.ErrPoolExists}
	osdHints     = errorHints{notFound: dspcommon.ErrOsdNotFound, exists: dspcommon.ErrAlreadyExists}
)

func Open(log zerolog.Logger, exec executor.Executor, config ConnectionConfig) (*Client, error) {
	if config.MonHost == "" {
		return nil, dspcommon.NewError(dspcommon.ErrInvalid, "mon_host is not specified")
	}
	if config.Timeout <= 0 {
		config.Timeout = dspcommon.RunCephCommandTimeout * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = config.Timeout
	}
	return &Client{
		exec:    exec,
		config:  config,
		log:     log,
		closed:  abool.New(),
		timeout: config.Timeout,
	}, nil
}

// WithClient opens client, runs fn and closes client afterwards.
func WithClient(log zerolog.Logger, exec executor.Executor, config ConnectionConfig, fn func(*Client) error) error {
	client, err := Open(log, exec, config)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *Client) Close() {
	c.closed.Set()
}

// WithTimeout returns client sharing connection with different per command timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	clientCopy := *c
	clientCopy.timeout = timeout
	return &clientCopy
}

func (c *Client) argv(binary string, args []string, format bool) []string {
	argv := append([]string{binary}, args...)
	if format {
		argv = append(argv, "--format", "json")
	}
	argv = append(argv, "-m", c.config.MonHost)
	if binary == "ceph" {
		argv = append(argv, "--connect-timeout", strconv.Itoa(int(c.config.ConnectTimeout.Seconds())))
	}
	if c.config.ConfFile != "" {
		argv = append(argv, "-c", c.config.ConfFile)
	}
	if c.config.Keyring != "" {
		argv = append(argv, "--keyring", c.config.Keyring)
	} else {
		argv = append(argv, "--auth-client-required", "none")
	}
	return argv
}

func (c *Client) execute(ctx context.Context, binary string, hints errorHints, format bool, args ...string) (string, error) {
	cmd := binary + " " + strings.Join(args, " ")
	if c.closed.IsSet() {
		return "", dspcommon.NewError(dspcommon.ErrProgramming, "ceph client is closed, can't run '%s'", cmd)
	}
	c.log.Debug().Msgf("running '%s'", cmd)
	result, err := c.exec.RunCommand(ctx, c.argv(binary, args, format), c.timeout)
	if err != nil {
		return "", classifyError(cmd, err, hints)
	}
	return result.Stdout, nil
}

func (c *Client) run(ctx context.Context, hints errorHints, args ...string) (string, error) {
	return c.execute(ctx, "ceph", hints, true, args...)
}

func (c *Client) runAndParse(ctx context.Context, hints errorHints, data any, args ...string) error {
	output, err := c.run(ctx, hints, args...)
	if err != nil {
		return err
	}
	return parseJSON("ceph "+strings.Join(args, " "), output, data)
}

func parseJSON(cmd, output string, data any) error {
	if err := json.Unmarshal([]byte(output), data); err != nil {
		return errors.Wrapf(err, "failed to parse output for command '%s'", cmd)
	}
	return nil
}

func (c *Client) rbd(ctx context.Context, args ...string) (string, error) {
	return c.execute(ctx, "rbd", genericHints, false, args...)
}

// classifyError maps ceph tool failures onto error kinds.
func classifyError(cmd string, err error, hints errorHints) error {
	if dspcommon.IsKind(err, dspcommon.ErrTimeout) {
		return dspcommon.WrapError(dspcommon.ErrTimeout, err, "'%s' timed out", cmd)
	}
	cmdErr, ok := dspcommon.GetCommandError(err)
	if !ok {
		return errors.Wrapf(err, "failed to run '%s'", cmd)
	}
	text := strings.ToLower(cmdErr.Stderr + "\n" + cmdErr.Stdout)
	has := func(markers ...string) bool {
		for _, marker := range markers {
			if strings.Contains(text, marker) {
				return true
			}
		}
		return false
	}
	kind := dspcommon.ErrCeph
	switch {
	case cmdErr.ExitCode == 13 || has("eacces", "eperm", "permission denied", "operation not permitted", "authentication error"):
		kind = dspcommon.ErrAuth
	case cmdErr.ExitCode == 110 || has("etimedout", "error connecting to the cluster", "rados timed out"):
		kind = dspcommon.ErrConnect
	case has("pauserd", "pausewr", "cluster is paused"):
		kind = dspcommon.ErrClusterPause
	case cmdErr.ExitCode == 2 || has("enoent", "no such file or directory", "does not exist"):
		kind = hints.notFound
	case cmdErr.ExitCode == 17 || has("eexist", "already exists", "file exists"):
		kind = hints.exists
	}
	return dspcommon.WrapError(kind, err, "'%s' failed", cmd)
}
