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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type FileOptions struct {
	// permissions to apply, zero keeps umask defaults
	Mode os.FileMode
	// owner in chown format, e.g. 'ceph:ceph'
	Owner string
}

// Executor runs commands and manages files on local or remote host.
type Executor interface {
	RunCommand(ctx context.Context, argv []string, timeout time.Duration) (*CommandResult, error)
	WriteFile(ctx context.Context, path string, content []byte, opts FileOptions) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	PathExists(ctx context.Context, path string) (bool, error)
	RemovePath(ctx context.Context, path string) error
	Close() error
}

type commandFunc func(ctx context.Context, argv []string, stdin []byte, timeout time.Duration) (*CommandResult, error)

// RebasePath moves absolute path under host prefix.
func RebasePath(hostPrefix, path string) string {
	if hostPrefix == "" || !filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(hostPrefix, path)
}

// privilegedArgv prepends sudo when command is run by non-root user.
func privilegedArgv(user, password string, argv []string, stdin []byte) ([]string, []byte) {
	if user == "" || user == "root" {
		return argv, stdin
	}
	if password == "" {
		return append([]string{"sudo", "-n"}, argv...), stdin
	}
	// -k forces password prompt so stdin layout is always password line first
	payload := append([]byte(password+"\n"), stdin...)
	return append([]string{"sudo", "-k", "-S", "-p", ""}, argv...), payload
}

func commandResultError(argv []string, result *CommandResult) error {
	if result.ExitCode == 0 {
		return nil
	}
	return &dspcommon.CommandError{
		Command:  strings.Join(argv, " "),
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
}

func timeoutError(argv []string, timeout time.Duration) error {
	return dspcommon.NewError(dspcommon.ErrTimeout, "command '%s' timed out after %v", strings.Join(argv, " "), timeout)
}

// shellFiles implements file operations on top of plain commands, so both
// local and remote executors share the same atomic write procedure.
type shellFiles struct {
	hostPrefix string
	run        commandFunc
}

func (f shellFiles) WriteFile(ctx context.Context, path string, content []byte, opts FileOptions) error {
	dst := RebasePath(f.hostPrefix, path)
	dir, base := filepath.Split(dst)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))
	defer func() {
		_, _ = f.run(context.Background(), []string{"rm", "-f", tmp}, nil, 0)
	}()
	if _, err := f.run(ctx, []string{"mkdir", "-p", filepath.Clean(dir)}, nil, 0); err != nil {
		return dspcommon.WrapError(dspcommon.ErrRunCommand, err, "failed to create directory for '%s'", path)
	}
	if _, err := f.run(ctx, []string{"dd", "of=" + tmp, "status=none"}, content, 0); err != nil {
		return dspcommon.WrapError(dspcommon.ErrRunCommand, err, "failed to write temporary file for '%s'", path)
	}
	steps := [][]string{{"mv", "-f", tmp, dst}}
	if opts.Mode != 0 {
		steps = append(steps, []string{"chmod", fmt.Sprintf("%o", opts.Mode.Perm()), dst})
	}
	if opts.Owner != "" {
		steps = append(steps, []string{"chown", opts.Owner, dst})
	}
	for _, argv := range steps {
		if _, err := f.run(ctx, argv, nil, 0); err != nil {
			return dspcommon.WrapError(dspcommon.ErrRunCommand, err, "failed to place file '%s'", path)
		}
	}
	return nil
}

func (f shellFiles) ReadFile(ctx context.Context, path string) ([]byte, error) {
	result, err := f.run(ctx, []string{"cat", RebasePath(f.hostPrefix, path)}, nil, 0)
	if err != nil {
		if result != nil && strings.Contains(result.Stderr, "No such file") {
			return nil, dspcommon.NewError(dspcommon.ErrNotFound, "file '%s' not found", path)
		}
		return nil, err
	}
	return []byte(result.Stdout), nil
}

func (f shellFiles) PathExists(ctx context.Context, path string) (bool, error) {
	result, err := f.run(ctx, []string{"test", "-e", RebasePath(f.hostPrefix, path)}, nil, 0)
	if err != nil {
		if result != nil && result.ExitCode == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f shellFiles) RemovePath(ctx context.Context, path string) error {
	_, err := f.run(ctx, []string{"rm", "-rf", RebasePath(f.hostPrefix, path)}, nil, 0)
	return err
}
