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

package lfrfid

import (
	"errors"
	"fmt"
)

// Protocol and file errors
var (
	ErrUnknownProtocol  = errors.New("unknown protocol")
	ErrKeyFileFormat    = errors.New("invalid key file")
	ErrDataSize         = errors.New("data size mismatch")
	ErrRawFileFormat    = errors.New("invalid raw file")
	ErrWriteUnsupported = errors.New("protocol cannot be written")
)

// Front end errors
var (
	ErrFrontendClosed   = errors.New("front end closed")
	ErrFrontendBusy     = errors.New("front end busy")
	ErrTimeout          = errors.New("operation timeout")
	ErrNoACK            = errors.New("no ACK received")
	ErrFrameCorrupted   = errors.New("frame corrupted")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrNotSupported     = errors.New("not supported by front end")
)

// Worker errors
var (
	ErrWorkerRunning    = errors.New("worker already running")
	ErrWorkerNotRunning = errors.New("worker not running")
)

// ErrorType classifies front end failures for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors will not go away by retrying
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on a retry
	ErrorTypeTransient
	// ErrorTypeTimeout errors are timeouts
	ErrorTypeTimeout
)

// String returns the error type name
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// FrontendError wraps a failure of a front end operation
type FrontendError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *FrontendError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FrontendError) Unwrap() error {
	return e.Err
}

// NewFrontendError creates a front end error with retryability derived from its type
func NewFrontendError(op, port string, err error, errType ErrorType) *FrontendError {
	return &FrontendError{
		Err:       err,
		Op:        op,
		Port:      port,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a timeout front end error
func NewTimeoutError(op, port string) *FrontendError {
	return NewFrontendError(op, port, ErrTimeout, ErrorTypeTimeout)
}

// IsRetryable reports whether an operation that failed with err may be retried
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var fe *FrontendError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrFrontendBusy):
		return true
	default:
		return false
	}
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	var fe *FrontendError
	if errors.As(err, &fe) {
		return fe.Type
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrFrontendBusy):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}
