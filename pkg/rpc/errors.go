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


package rpc

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

// errorPayload is error representation passed in grpc status message.
type errorPayload struct {
	Kind     dspcommon.ErrorKind `json:"kind"`
	Message  string              `json:"message"`
	Command  string              `json:"command,omitempty"`
	ExitCode int                 `json:"exit_code,omitempty"`
	Stdout   string              `json:"stdout,omitempty"`
	Stderr   string              `json:"stderr,omitempty"`
}

var kindCodes = map[dspcommon.ErrorKind]codes.Code{
	dspcommon.ErrNotFound:          codes.NotFound,
	dspcommon.ErrAlreadyExists:     codes.AlreadyExists,
	dspcommon.ErrAuth:              codes.PermissionDenied,
	dspcommon.ErrInvalid:           codes.InvalidArgument,
	dspcommon.ErrTimeout:           codes.DeadlineExceeded,
	dspcommon.ErrLockAcquireFailed: codes.Aborted,
	dspcommon.ErrCanceled:          codes.Canceled,
	dspcommon.ErrProgramming:       codes.Internal,
}

func statusCode(kind dspcommon.ErrorKind) codes.Code {
	for current := kind; current != ""; current = dspcommon.ParentKind(current) {
		if code, ok := kindCodes[current]; ok {
			return code
		}
	}
	return codes.Unknown
}

// encodeError converts handler error into grpc status keeping its kind and
// command details.
func encodeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && dspcommon.GetErrorKind(err) == "" {
		return err
	}
	payload := errorPayload{Kind: dspcommon.GetErrorKind(err), Message: err.Error()}
	if payload.Kind == "" {
		payload.Kind = dspcommon.ErrProgramming
	}
	if cmdErr, ok := dspcommon.GetCommandError(err); ok {
		payload.Command = cmdErr.Command
		payload.ExitCode = cmdErr.ExitCode
		payload.Stdout = cmdErr.Stdout
		payload.Stderr = cmdErr.Stderr
	}
	data, _ := json.Marshal(payload)
	return status.Error(statusCode(payload.Kind), string(data))
}

// decodeError restores error returned by remote side, transport failures
// are mapped onto NotReady, Timeout and Canceled kinds.
func decodeError(service, method string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return dspcommon.WrapError(dspcommon.ErrConnect, err, "%s.%s call failed", service, method)
	}
	payload := errorPayload{}
	if json.Unmarshal([]byte(st.Message()), &payload) == nil && payload.Kind != "" {
		return payload.toError()
	}
	switch st.Code() {
	case codes.Unavailable:
		return dspcommon.WrapError(dspcommon.ErrNotReady, errors.New(st.Message()), "%s is not ready for '%s' call", service, method)
	case codes.DeadlineExceeded:
		return dspcommon.WrapError(dspcommon.ErrTimeout, errors.New(st.Message()), "%s.%s call timed out", service, method)
	case codes.Canceled:
		return dspcommon.WrapError(dspcommon.ErrCanceled, errors.New(st.Message()), "%s.%s call canceled", service, method)
	case codes.Unimplemented:
		return dspcommon.WrapError(dspcommon.ErrProgramming, errors.New(st.Message()), "%s has no method '%s'", service, method)
	}
	return dspcommon.WrapError(dspcommon.ErrConnect, errors.New(st.Message()), "%s.%s call failed", service, method)
}

func (p errorPayload) toError() error {
	if p.Command == "" && p.ExitCode == 0 {
		return dspcommon.NewError(p.Kind, "%s", p.Message)
	}
	cmdErr := &dspcommon.CommandError{Command: p.Command, ExitCode: p.ExitCode, Stdout: p.Stdout, Stderr: p.Stderr}
	if p.Kind == dspcommon.ErrRunCommand && p.Message == cmdErr.Error() {
		return cmdErr
	}
	return dspcommon.WrapError(p.Kind, cmdErr, "%s", strings.TrimSuffix(p.Message, ": "+cmdErr.Error()))
}
