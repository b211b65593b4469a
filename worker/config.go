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

package worker

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the worker timing and buffer settings
type Config struct {
	// ReadSwitchInterval is how long an auto read listens to one path before switching
	ReadSwitchInterval time.Duration
	// CardTimeout is how long without a decoded frame ends a card sense
	CardTimeout time.Duration
	// SenseTimeout is how long without edges ends a signal sense
	SenseTimeout time.Duration
	// VerifyTimeout bounds the read back after each write attempt
	VerifyTimeout time.Duration
	// ReadQuant is the tick period while reading
	ReadQuant time.Duration
	// EmulateQuant is the tick period while emulating
	EmulateQuant time.Duration
	// EdgeBufferSize is the capacity of the captured edge ring
	EdgeBufferSize int
	// EmulateBufferSize is the number of pulses in the emulation double buffer
	EmulateBufferSize int
	// WriteAttempts is how many write and verify rounds a write gets
	WriteAttempts int
	// ContinuousRead keeps reading after a confirmed card
	ContinuousRead bool
}

// DefaultConfig returns the default worker configuration
func DefaultConfig() *Config {
	return &Config{
		ReadSwitchInterval: 3 * time.Second,
		CardTimeout:        500 * time.Millisecond,
		SenseTimeout:       200 * time.Millisecond,
		VerifyTimeout:      time.Second,
		ReadQuant:          20 * time.Millisecond,
		EmulateQuant:       5 * time.Millisecond,
		EdgeBufferSize:     4096,
		EmulateBufferSize:  1024,
		WriteAttempts:      3,
	}
}

// Validate checks the configuration for values the worker cannot run with
func (c *Config) Validate() error {
	if c.ReadQuant <= 0 || c.EmulateQuant <= 0 {
		return errors.New("tick periods must be positive")
	}
	if c.EdgeBufferSize <= 0 {
		return fmt.Errorf("edge buffer size %d must be positive", c.EdgeBufferSize)
	}
	if c.EmulateBufferSize < 2 || c.EmulateBufferSize%2 != 0 {
		return fmt.Errorf("emulate buffer size %d must be even and at least 2", c.EmulateBufferSize)
	}
	if c.WriteAttempts < 1 {
		return fmt.Errorf("write attempts %d must be at least 1", c.WriteAttempts)
	}
	return nil
}

// Option is a functional option for configuring a Worker
type Option func(*Worker) error

// WithConfig replaces the whole configuration
func WithConfig(config *Config) Option {
	return func(w *Worker) error {
		if config == nil {
			return errors.New("nil config")
		}
		c := *config
		w.config = &c
		return nil
	}
}

// WithReadSwitchInterval sets how often an auto read switches between ASK and PSK
func WithReadSwitchInterval(interval time.Duration) Option {
	return func(w *Worker) error {
		if interval <= 0 {
			return fmt.Errorf("read switch interval %v must be positive", interval)
		}
		w.config.ReadSwitchInterval = interval
		return nil
	}
}

// WithEdgeBufferSize sets the capacity of the captured edge ring
func WithEdgeBufferSize(size int) Option {
	return func(w *Worker) error {
		w.config.EdgeBufferSize = size
		return nil
	}
}

// WithEmulateBufferSize sets the number of pulses in the emulation double buffer
func WithEmulateBufferSize(size int) Option {
	return func(w *Worker) error {
		w.config.EmulateBufferSize = size
		return nil
	}
}

// WithWriteAttempts sets how many write and verify rounds a write gets
func WithWriteAttempts(attempts int) Option {
	return func(w *Worker) error {
		w.config.WriteAttempts = attempts
		return nil
	}
}

// WithVerifyTimeout sets how long each write attempt listens for its read back
func WithVerifyTimeout(timeout time.Duration) Option {
	return func(w *Worker) error {
		w.config.VerifyTimeout = timeout
		return nil
	}
}

// WithContinuousRead keeps a read running after each confirmed card
func WithContinuousRead(enabled bool) Option {
	return func(w *Worker) error {
		w.config.ContinuousRead = enabled
		return nil
	}
}

// WithModeHook registers a function called after every mode start and stop hook.
// It runs on the worker goroutine.
func WithModeHook(hook func(mode Mode, started bool)) Option {
	return func(w *Worker) error {
		w.modeHook = hook
		return nil
	}
}
