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
	"context"

	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Frontend defines the interface to the 125 kHz analog front end.
// This can be implemented by GPIO, serial co-processor or in-memory backends.
//
// Sinks and half callbacks are invoked from the front end's own goroutine, which
// plays the role of an interrupt handler: they must return promptly and never block.
type Frontend interface {
	// StartCapture powers the field and begins delivering demodulated edges to sink
	StartCapture(cfg CaptureConfig, sink EdgeSink) error

	// StopCapture stops edge delivery; no sink call happens after it returns
	StopCapture() error

	// StartEmulate plays buf in a loop, reporting each half as it is consumed
	StartEmulate(cfg EmulateConfig, buf []Pulse, onHalf HalfFunc) error

	// StopEmulate stops playback; no half callback happens after it returns
	StopEmulate() error

	// WriteT5577 programs the blocks of a T5577 tag in the field
	WriteT5577(ctx context.Context, req *t5577.Request) error

	// Close releases the front end
	Close() error

	// Type returns the front end type
	Type() FrontendType
}

// EdgeSink receives captured edges in capture order.
type EdgeSink func(LevelDuration)

// Half identifies which half of a double buffer was just consumed.
type Half int

const (
	// HalfTransfer reports that the first half of the buffer was played.
	HalfTransfer Half = iota
	// TransferComplete reports that the second half of the buffer was played.
	TransferComplete
)

// HalfFunc receives double buffer progress notifications.
type HalfFunc func(Half)

// FrontendType represents the type of front end
type FrontendType string

const (
	// FrontendGPIO represents a comparator and carrier wired to host GPIO pins.
	FrontendGPIO FrontendType = "gpio"
	// FrontendSerial represents a co-processor attached over a serial link.
	FrontendSerial FrontendType = "serial"
	// FrontendLoopback represents the in-memory front end used for testing
	FrontendLoopback FrontendType = "loopback"
)

// CaptureConfig selects the carrier used while reading.
type CaptureConfig struct {
	Frequency float32
	DutyCycle float32
	Feature   Feature
}

// ASKCapture is the carrier configuration used for amplitude reads.
func ASKCapture() CaptureConfig {
	return CaptureConfig{Frequency: CarrierFrequency, DutyCycle: 0.5, Feature: FeatureASK}
}

// PSKCapture is the carrier configuration used for phase reads.
func PSKCapture() CaptureConfig {
	return CaptureConfig{Frequency: CarrierFrequency, DutyCycle: 0.25, Feature: FeaturePSK}
}

// EmulateConfig describes the output timer used while emulating.
type EmulateConfig struct {
	Frequency float32
	DutyCycle float32
}

// DefaultEmulateConfig is the output configuration for protocol emulation.
func DefaultEmulateConfig() EmulateConfig {
	return EmulateConfig{Frequency: CarrierFrequency, DutyCycle: 0.5}
}
