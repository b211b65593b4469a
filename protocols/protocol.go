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

// Package protocols implements the LF card formats and the dictionary that feeds them.
package protocols

import (
	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/bitlib"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// ProtocolID identifies a registered protocol
type ProtocolID int

// ProtocolNo means no protocol matched
const ProtocolNo ProtocolID = -1

// Registered protocols, in registration order
const (
	EM4100 ProtocolID = iota
	EM4100RF32
	EM4100RF16
	H10301
	Indala26
	Indala224
	FDXB
	GProxII
	Securakey
	InstaFob
)

// WriteType selects the target tag of a write request
type WriteType int

const (
	// WriteTypeT5577 programs a T5577 tag
	WriteTypeT5577 WriteType = iota
)

// WriteRequest is filled by Protocol.WriteData
type WriteRequest struct {
	T5577 t5577.Request
	Type  WriteType
}

// Protocol is one card format with its decode and encode state.
type Protocol interface {
	// Data returns the decoded record. Its length is the descriptor's DataSize.
	Data() []byte

	// DecoderStart clears all decode state.
	DecoderStart()

	// DecoderFeed consumes one edge and reports a structurally valid frame, in which
	// case Data already holds it.
	DecoderFeed(level bool, duration uint32) bool

	// DecoderReset drops a partially received frame.
	DecoderReset()

	// DecoderIdle reports that no partial frame is held.
	DecoderIdle() bool

	// EncoderStart builds the on-air frame from Data, correcting fixed fields in place.
	EncoderStart() bool

	// EncoderYield returns the next waveform piece in carrier clocks. It loops forever.
	EncoderYield() lfrfid.LevelDuration

	// EncoderReset rewinds the waveform to its first piece.
	EncoderReset()

	// RenderData formats the record on several lines.
	RenderData() string

	// RenderBrief formats the record on one line.
	RenderBrief() string

	// WriteData fills req for the requested tag type; false means unsupported.
	WriteData(req *WriteRequest) bool
}

// Base describes a protocol.
type Base struct {
	New           func() Protocol
	Name          string
	Manufacturer  string
	DataSize      int
	ValidateCount int
	Features      lfrfid.Feature
}

// window is a sliding bit window that knows how many bits it has seen since the last reset.
type window struct {
	buf    []byte
	size   int
	filled int
}

func newWindow(bits int) window {
	return window{buf: make([]byte, (bits+7)/8), size: bits}
}

func (w *window) push(bit bool) {
	bitlib.PushBit(w.buf, bit)
	if w.filled < w.size {
		w.filled++
	}
}

func (w *window) full() bool {
	return w.filled >= w.size
}

func (w *window) empty() bool {
	return w.filled == 0
}

func (w *window) reset() {
	clear(w.buf)
	w.filled = 0
}

// within reports whether d lies within jitter of center.
func within(d, center, jitter uint32) bool {
	return d+jitter >= center && d <= center+jitter
}

// bitsToWords packs a frame into 32 bit T5577 blocks starting at block 1.
func bitsToWords(req *WriteRequest, frame []byte, bits int) {
	words := bits / 32
	for i := 0; i < words; i++ {
		req.T5577.Blocks[i+1] = bitlib.GetBits32(frame, i*32, 32)
	}
	req.T5577.BlockCount = words + 1
}
