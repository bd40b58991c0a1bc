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


package dspcommon

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		kind       ErrorKind
		notFound   bool
		exists     bool
		auth       bool
		connect    bool
		retriable  bool
		errMessage string
	}{
		{
			name:       "plain error has no kind",
			err:        errors.New("boom"),
			errMessage: "boom",
		},
		{
			name:       "pool not found is not found",
			err:        NewError(ErrPoolNameNotFound, "pool '%s' not found", "rbd"),
			kind:       ErrPoolNameNotFound,
			notFound:   true,
			errMessage: "pool 'rbd' not found",
		},
		{
			name:       "pool exists wrapped twice",
			err:        errors.Wrap(errors.Wrap(NewError(ErrPoolExists, "pool 'rbd' exists"), "create"), "flow"),
			kind:       ErrPoolExists,
			exists:     true,
			errMessage: "flow: create: pool 'rbd' exists",
		},
		{
			name:       "ssh bad host key is auth error",
			err:        WrapError(ErrSSHBadHostKey, errors.New("key mismatch"), "failed to connect to '%s'", "10.0.0.1"),
			kind:       ErrSSHBadHostKey,
			auth:       true,
			errMessage: "failed to connect to '10.0.0.1': key mismatch",
		},
		{
			name:       "ssh connect failed is retriable connect error",
			err:        NewError(ErrSSHConnectFailed, "connection refused"),
			kind:       ErrSSHConnectFailed,
			connect:    true,
			retriable:  true,
			errMessage: "connection refused",
		},
		{
			name:       "not ready is retriable",
			err:        NewError(ErrNotReady, "stub is not ready"),
			kind:       ErrNotReady,
			retriable:  true,
			errMessage: "stub is not ready",
		},
		{
			name:       "busy command is retriable",
			err:        errors.Wrap(&CommandError{Command: "ceph osd pool create", ExitCode: 16, Stderr: "Error EBUSY: pool busy"}, "create"),
			kind:       ErrRunCommand,
			retriable:  true,
			errMessage: "create: command 'ceph osd pool create' failed with exit code 16: Error EBUSY: pool busy",
		},
		{
			name:       "outer kind wins over inner command",
			err:        WrapError(ErrCeph, &CommandError{Command: "ceph", ExitCode: 1, Stderr: "bad"}, "ceph failed"),
			kind:       ErrCeph,
			errMessage: "ceph failed: command 'ceph' failed with exit code 1: bad",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.kind, GetErrorKind(test.err))
			assert.Equal(t, test.notFound, IsNotFound(test.err))
			assert.Equal(t, test.exists, IsAlreadyExists(test.err))
			assert.Equal(t, test.auth, IsAuthError(test.err))
			assert.Equal(t, test.connect, IsConnectError(test.err))
			assert.Equal(t, test.retriable, IsRetriable(test.err))
			assert.EqualError(t, test.err, test.errMessage)
		})
	}
}

func TestGetCommandError(t *testing.T) {
	cmdErr := &CommandError{Command: "rbd create", ExitCode: 2, Stdout: "out", Stderr: "err"}
	found, ok := GetCommandError(errors.Wrap(WrapError(ErrCeph, cmdErr, "rbd"), "task"))
	assert.True(t, ok)
	assert.Equal(t, cmdErr, found)
	_, ok = GetCommandError(errors.New("plain"))
	assert.False(t, ok)
	assert.Nil(t, WrapError(ErrCeph, nil, "nothing"))
}
