// go-lfrfid
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-lfrfid.
//
// go-lfrfid is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-lfrfid is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-lfrfid; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package transport provides command retry helpers for front end links
package transport

import (
	"context"
	"time"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

// RetryOperation represents one attempt of a command exchange
// Returns: data, shouldRetry, error
// - data: the result if successful
// - shouldRetry: true if the link asked for the command again
// - error: any permanent error that should stop retries
type RetryOperation[T any] func() (T, bool, error)

// RetryConfig configures retry behavior
type RetryConfig struct {
	OnRetry    func() error
	Op         string
	Port       string
	MaxRetries int
	RetryDelay time.Duration
}

// WithRetry runs operation until it succeeds, fails permanently, runs out of retries
// or ctx is done. Exhausted retries surface as a transient ErrNoACK front end error.
func WithRetry[T any](ctx context.Context, config RetryConfig, operation RetryOperation[T]) (T, error) {
	var zero T

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}
		if !shouldRetry {
			return result, nil
		}
		if attempt >= config.MaxRetries {
			break
		}

		lfrfid.Debugf("%s: retry %d of %d", config.Op, attempt+1, config.MaxRetries)
		if config.OnRetry != nil {
			if err := config.OnRetry(); err != nil {
				return zero, err
			}
		}
		if err := sleep(ctx, config.RetryDelay); err != nil {
			return zero, err
		}
	}

	return zero, lfrfid.NewFrontendError(config.Op, config.Port, lfrfid.ErrNoACK, lfrfid.ErrorTypeTransient)
}

// TimeoutRetry polls operation every millisecond until it stops asking for a retry
// or timeout elapses
func TimeoutRetry[T any](ctx context.Context, timeout time.Duration, op string, operation RetryOperation[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		result, shouldRetry, err := operation()
		if err != nil {
			return zero, err
		}
		if !shouldRetry {
			return result, nil
		}
		if err := sleep(ctx, time.Millisecond); err != nil {
			return zero, err
		}
	}

	return zero, lfrfid.NewTimeoutError(op, "")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
