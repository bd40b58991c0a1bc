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
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind is a stable error classification shared by all components and
// preserved across the RPC boundary.
type ErrorKind string

const (
	ErrConnect           ErrorKind = "ConnectError"
	ErrAuth              ErrorKind = "AuthError"
	ErrNotFound          ErrorKind = "NotFound"
	ErrAlreadyExists     ErrorKind = "AlreadyExists"
	ErrTimeout           ErrorKind = "Timeout"
	ErrActionTimeout     ErrorKind = "ActionTimeout"
	ErrRunCommand        ErrorKind = "RunCommandError"
	ErrLockAcquireFailed ErrorKind = "LockAcquireFailed"
	ErrInvalid           ErrorKind = "Invalid"
	ErrProgramming       ErrorKind = "ProgrammingError"
	ErrNotReady          ErrorKind = "NotReady"
	ErrCanceled          ErrorKind = "Canceled"

	ErrCeph             ErrorKind = "CephException"
	ErrClusterPause     ErrorKind = "ClusterPauseError"
	ErrClusterUnpause   ErrorKind = "ClusterUnpauseError"
	ErrPoolExists       ErrorKind = "PoolExists"
	ErrPoolNameNotFound ErrorKind = "PoolNameNotFound"
	ErrOsdNotFound      ErrorKind = "OsdNotFound"
	ErrOsdStatusNotUp   ErrorKind = "OsdStatusNotUp"
	ErrIscsiTarget      ErrorKind = "IscsiTargetError"

	ErrSSHAuthenticationFailed  ErrorKind = "SSHAuthenticationFailed"
	ErrSSHPasswordRequired      ErrorKind = "SSHPasswordRequired"
	ErrSSHBadAuthenticationType ErrorKind = "SSHBadAuthenticationType"
	ErrSSHPartialAuthentication ErrorKind = "SSHPartialAuthentication"
	ErrSSHChannelOpenFailed     ErrorKind = "SSHChannelOpenFailed"
	ErrSSHBadHostKey            ErrorKind = "SSHBadHostKey"
	ErrSSHProxyCommandFailed    ErrorKind = "SSHProxyCommandFailed"
	ErrSSHConnectFailed         ErrorKind = "SSHConnectFailed"
)

// kindParents maps specific kinds onto the generic kind callers usually test for.
var kindParents = map[ErrorKind]ErrorKind{
	ErrPoolExists:               ErrAlreadyExists,
	ErrPoolNameNotFound:         ErrNotFound,
	ErrOsdNotFound:              ErrNotFound,
	ErrActionTimeout:            ErrTimeout,
	ErrSSHAuthenticationFailed:  ErrAuth,
	ErrSSHPasswordRequired:      ErrAuth,
	ErrSSHBadAuthenticationType: ErrAuth,
	ErrSSHPartialAuthentication: ErrAuth,
	ErrSSHBadHostKey:            ErrAuth,
	ErrSSHChannelOpenFailed:     ErrConnect,
	ErrSSHProxyCommandFailed:    ErrConnect,
	ErrSSHConnectFailed:         ErrConnect,
	ErrClusterPause:             ErrCeph,
	ErrClusterUnpause:           ErrCeph,
}

type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Cause() error {
	return e.cause
}

func NewError(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

// CommandError is returned when a shell or ceph command exits with non-zero code.
type CommandError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	details := strings.TrimSpace(e.Stderr)
	if details == "" {
		details = strings.TrimSpace(e.Stdout)
	}
	return fmt.Sprintf("command '%s' failed with exit code %d: %s", e.Command, e.ExitCode, details)
}

// GetErrorKind returns kind of the first classified error in the chain.
func GetErrorKind(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		switch e := cur.(type) {
		case *Error:
			return e.Kind
		case *CommandError:
			return ErrRunCommand
		}
	}
	return ""
}

// ParentKind returns generic kind for specific one, empty for top level kinds.
func ParentKind(kind ErrorKind) ErrorKind {
	return kindParents[kind]
}

func IsKind(err error, kind ErrorKind) bool {
	current := GetErrorKind(err)
	for current != "" {
		if current == kind {
			return true
		}
		current = kindParents[current]
	}
	return false
}

func IsNotFound(err error) bool {
	return IsKind(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return IsKind(err, ErrAlreadyExists)
}

func IsAuthError(err error) bool {
	return IsKind(err, ErrAuth)
}

func IsConnectError(err error) bool {
	return IsKind(err, ErrConnect)
}

func IsLockAcquireFailed(err error) bool {
	return IsKind(err, ErrLockAcquireFailed)
}

// GetCommandError extracts command details from the error chain.
func GetCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}
	return nil, false
}

// IsRetriable reports transient failures: transport issues, timeouts,
// not ready stubs and busy ceph daemons.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case IsAuthError(err), IsNotFound(err), IsAlreadyExists(err),
		IsKind(err, ErrInvalid), IsKind(err, ErrProgramming), IsKind(err, ErrCanceled):
		return false
	case IsConnectError(err), IsKind(err, ErrTimeout), IsKind(err, ErrNotReady):
		return true
	}
	if cmdErr, ok := GetCommandError(err); ok {
		return strings.Contains(cmdErr.Stderr, "EBUSY") || strings.Contains(cmdErr.Stderr, "EAGAIN")
	}
	return false
}
