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

package frame

import (
	"fmt"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

// Kind tells data frames apart from acknowledgements
type Kind int

const (
	// KindData is a frame carrying a command or event
	KindData Kind = iota
	// KindAck acknowledges the last command
	KindAck
	// KindNack asks for the last command again
	KindNack
)

// Frame is one decoded frame
type Frame struct {
	Data []byte
	Kind Kind
	TFI  byte
	Cmd  byte
}

// Build encodes a data frame
func Build(tfi, cmd byte, data []byte) ([]byte, error) {
	if len(data) > MaxFrameDataLength {
		return nil, fmt.Errorf("frame data of %d bytes exceeds %d: %w", len(data), MaxFrameDataLength, lfrfid.ErrFrameCorrupted)
	}
	length := byte(len(data) + 2)
	out := make([]byte, 0, len(data)+MinFrameLength)
	out = append(out, Preamble, StartCode1, StartCode2, length, CalculateLengthChecksum(length), tfi, cmd)
	out = append(out, data...)
	out = append(out, CalculateDataChecksum(tfi+cmd, data), Postamble)
	return out, nil
}

const (
	stateIdle = iota
	stateStart
	stateLength
	stateLengthChecksum
	stateBody
	stateDataChecksum
)

// Decoder is a byte at a time frame decoder. Bytes outside frames are skipped.
type Decoder struct {
	body   []byte
	state  int
	length byte
}

// NewDecoder creates a frame decoder
func NewDecoder() *Decoder {
	return &Decoder{body: make([]byte, 0, MaxFrameLength)}
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.body = d.body[:0]
	d.length = 0
}

// DecodeByte feeds one byte and returns a frame once one is complete.
// Corrupt frames are reported once and decoding restarts at the next start code.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		if b == StartCode1 {
			d.state = stateStart
		}
		return nil, nil

	case stateStart:
		switch b {
		case StartCode2:
			d.state = stateLength
		case StartCode1:
			// preamble run
		default:
			d.state = stateIdle
		}
		return nil, nil

	case stateLength:
		d.length = b
		d.state = stateLengthChecksum
		return nil, nil

	case stateLengthChecksum:
		length := d.length
		switch {
		case length == 0x00 && b == 0xFF:
			d.Reset()
			return &Frame{Kind: KindAck}, nil
		case length == 0xFF && b == 0x00:
			d.Reset()
			return &Frame{Kind: KindNack}, nil
		case length+b != 0:
			d.Reset()
			return nil, fmt.Errorf("length checksum 0x%02X for length %d: %w", b, length, lfrfid.ErrChecksumMismatch)
		case length < 2:
			d.Reset()
			return nil, fmt.Errorf("frame length %d: %w", length, lfrfid.ErrFrameCorrupted)
		}
		d.body = d.body[:0]
		d.state = stateBody
		return nil, nil

	case stateBody:
		d.body = append(d.body, b)
		if len(d.body) == int(d.length) {
			d.state = stateDataChecksum
		}
		return nil, nil

	case stateDataChecksum:
		if CalculateChecksum(d.body)+b != 0 {
			d.Reset()
			return nil, fmt.Errorf("data checksum 0x%02X: %w", b, lfrfid.ErrChecksumMismatch)
		}
		f := &Frame{
			Kind: KindData,
			TFI:  d.body[0],
			Cmd:  d.body[1],
			Data: append([]byte(nil), d.body[2:]...),
		}
		d.Reset()
		return f, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid decoder state %d: %w", d.state, lfrfid.ErrFrameCorrupted)
	}
}
