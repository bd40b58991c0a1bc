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


package taskflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	dspcommon "github.com/Mirantis/dspace/pkg/common"
)

type retryTask struct {
	Task
	attempts int
	initial  time.Duration
	timeout  time.Duration
}

// WithRetry repeats task execution with exponential backoff starting at
// initial interval. Each attempt is limited by timeout when it is set.
func WithRetry(task Task, attempts int, initial, timeout time.Duration) Task {
	if attempts < 1 {
		attempts = 1
	}
	return &retryTask{Task: task, attempts: attempts, initial: initial, timeout: timeout}
}

func (t *retryTask) Execute(fc *FlowContext, store *Store) (any, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.initial
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = t.initial << t.attempts
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() (any, error) {
		attempt++
		if err := fc.CheckCanceled(); err != nil {
			return nil, backoff.Permanent(err)
		}
		attemptFc := fc
		if t.timeout > 0 {
			ctx, cancel := context.WithTimeout(fc.Context(), t.timeout)
			defer cancel()
			attemptFc = fc.withContext(ctx)
		}
		result, err := t.Task.Execute(attemptFc, store)
		if err != nil && !retriable(err) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}
	notify := func(err error, next time.Duration) {
		fc.Log.Warn().Err(err).Msgf("task '%s' attempt %d/%d failed, retry in %v", t.Name(), attempt, t.attempts, next)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(t.attempts-1)), fc.Context())
	return backoff.RetryNotifyWithData(operation, bo, notify)
}

func retriable(err error) bool {
	switch {
	case dspcommon.IsKind(err, dspcommon.ErrCanceled),
		dspcommon.IsKind(err, dspcommon.ErrInvalid),
		dspcommon.IsKind(err, dspcommon.ErrProgramming),
		dspcommon.IsNotFound(err),
		dspcommon.IsAlreadyExists(err),
		dspcommon.IsAuthError(err):
		return false
	}
	return true
}
