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


package executor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"os/user"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

// process runner, swapped in tests
var execCommand = runProcess

func runProcess(ctx context.Context, argv []string, stdin []byte) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	err := cmd.Run()
	result := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, err
	}
	return result, nil
}

type LocalOptions struct {
	HostPrefix     string
	User           string
	Password       string
	DefaultTimeout time.Duration
}

type LocalExecutor struct {
	shellFiles
	user           string
	password       string
	defaultTimeout time.Duration
	log            zerolog.Logger
}

func currentUser() string {
	if os.Geteuid() == 0 {
		return "root"
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func NewLocalExecutor(log zerolog.Logger, opts LocalOptions) *LocalExecutor {
	e := &LocalExecutor{
		user:           opts.User,
		password:       opts.Password,
		defaultTimeout: opts.DefaultTimeout,
		log:            log,
	}
	if e.user == "" {
		e.user = currentUser()
	}
	if e.defaultTimeout <= 0 {
		e.defaultTimeout = dspcommon.DefaultCommandTimeout
	}
	e.shellFiles = shellFiles{hostPrefix: opts.HostPrefix, run: e.run}
	return e
}

func (e *LocalExecutor) RunCommand(ctx context.Context, argv []string, timeout time.Duration) (*CommandResult, error) {
	return e.run(ctx, argv, nil, timeout)
}

func (e *LocalExecutor) run(ctx context.Context, argv []string, stdin []byte, timeout time.Duration) (*CommandResult, error) {
	if len(argv) == 0 {
		return nil, dspcommon.NewError(dspcommon.ErrProgramming, "empty command")
	}
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	fullArgv, payload := privilegedArgv(e.user, e.password, argv, stdin)
	e.log.Trace().Msgf("running local command '%s'", dspcommon.ShellQuote(argv))
	result, err := execCommand(runCtx, fullArgv, payload)
	if ctx.Err() != nil {
		return result, dspcommon.WrapError(dspcommon.ErrCanceled, ctx.Err(), "command '%s' canceled", dspcommon.ShellQuote(argv))
	}
	if runCtx.Err() != nil {
		return result, timeoutError(argv, timeout)
	}
	if err != nil {
		return result, dspcommon.WrapError(dspcommon.ErrRunCommand, err, "failed to start command '%s'", dspcommon.ShellQuote(argv))
	}
	return result, commandResultError(argv, result)
}

func (e *LocalExecutor) Close() error {
	return nil
}
