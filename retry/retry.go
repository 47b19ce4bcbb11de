// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry runs operations under a bounded retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrInvalidMaxAttempts is returned when a policy allows no attempts.
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// Exponential doubles the delay after every failed attempt.
	Exponential Backoff = iota
	// Constant waits BaseDelay between every attempt.
	Constant
)

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the wait between attempts. Zero means no cap.
	MaxDelay time.Duration

	Backoff Backoff

	// Permanent reports errors that must not be retried. Nil retries everything.
	Permanent func(error) bool
}

// DefaultPolicy returns five exponential attempts starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Backoff:     Exponential,
	}
}

// backOff builds the delay schedule. Delays are deterministic.
func (p Policy) backOff() backoff.BackOff {
	if p.Backoff == Constant {
		return backoff.NewConstantBackOff(p.BaseDelay)
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = time.Duration(math.MaxInt64)
	}
	return &backoff.ExponentialBackOff{
		InitialInterval: p.BaseDelay,
		Multiplier:      2,
		MaxInterval:     maxDelay,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	b := p.backOff()
	b.Reset()
	var delay time.Duration
	for range max(attempt, 1) {
		delay = b.NextBackOff()
	}
	return delay
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls op until it succeeds, fails permanently, the context ends or the
// policy is exhausted. It returns the number of attempts made.
//
// Exhaustion is reported as *ExhaustedError wrapping the last error.
// Permanent and context errors are returned unwrapped.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) (int, error) {
	if p.MaxAttempts <= 0 {
		return 0, ErrInvalidMaxAttempts
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	attempts := 0
	permanent := false
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := op(ctx, attempts)
		if err != nil && p.Permanent != nil && p.Permanent(err) {
			permanent = true
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("operation failed, will retry",
				"attempt", attempts,
				"maxAttempts", p.MaxAttempts,
				"next", next,
				"error", err)
		}),
	)

	switch {
	case err == nil:
		if attempts > 1 {
			slog.Debug("operation succeeded after retry", "attempt", attempts)
		}
		return attempts, nil
	case permanent:
		return attempts, err
	case ctx.Err() != nil && attempts < p.MaxAttempts:
		return attempts, context.Cause(ctx)
	}
	return attempts, &ExhaustedError{Attempts: attempts, Err: err}
}
