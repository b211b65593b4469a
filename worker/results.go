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

// Mode is the state of the worker
type Mode int

const (
	ModeIdle Mode = iota
	ModeRead
	ModeWrite
	ModeEmulate
	ModeReadRaw
	ModeEmulateRaw
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeEmulate:
		return "emulate"
	case ModeReadRaw:
		return "read raw"
	case ModeEmulateRaw:
		return "emulate raw"
	default:
		return "unknown"
	}
}

// ReadType selects the demodulation paths a read uses
type ReadType int

const (
	// ReadAuto alternates between ASK and PSK until a card is found
	ReadAuto ReadType = iota
	// ReadASKOnly only listens to the amplitude capture
	ReadASKOnly
	// ReadPSKOnly only listens to the phase capture
	ReadPSKOnly
)

// String returns the read type name
func (t ReadType) String() string {
	switch t {
	case ReadAuto:
		return "auto"
	case ReadASKOnly:
		return "ask"
	case ReadPSKOnly:
		return "psk"
	default:
		return "unknown"
	}
}

// ReadResult is reported to a ReadCallback
type ReadResult int

const (
	// ReadSenseStart means edges started arriving from the front end
	ReadSenseStart ReadResult = iota
	// ReadSenseEnd means the front end went quiet
	ReadSenseEnd
	// ReadSenseCardStart means a decoder completed a frame
	ReadSenseCardStart
	// ReadSenseCardEnd means no decoder completed a frame for a while
	ReadSenseCardEnd
	// ReadStartASK means the amplitude capture is running
	ReadStartASK
	// ReadStartPSK means the phase capture is running
	ReadStartPSK
	// ReadDone carries a confirmed protocol id
	ReadDone
)

// String returns the result name
func (r ReadResult) String() string {
	switch r {
	case ReadSenseStart:
		return "sense start"
	case ReadSenseEnd:
		return "sense end"
	case ReadSenseCardStart:
		return "card start"
	case ReadSenseCardEnd:
		return "card end"
	case ReadStartASK:
		return "start ASK"
	case ReadStartPSK:
		return "start PSK"
	case ReadDone:
		return "done"
	default:
		return "unknown"
	}
}

// WriteResult is reported to a WriteCallback
type WriteResult int

const (
	// WriteOK means the tag was written and read back
	WriteOK WriteResult = iota
	// WriteProtocolCannotBeWritten means the protocol has no T5577 layout
	WriteProtocolCannotBeWritten
	// WriteFobCannotBeWritten means the tag kept answering with other data
	WriteFobCannotBeWritten
	// WriteTooLongToWrite means no attempt could be verified
	WriteTooLongToWrite
)

// String returns the result name
func (r WriteResult) String() string {
	switch r {
	case WriteOK:
		return "ok"
	case WriteProtocolCannotBeWritten:
		return "protocol cannot be written"
	case WriteFobCannotBeWritten:
		return "fob cannot be written"
	case WriteTooLongToWrite:
		return "too long to write"
	default:
		return "unknown"
	}
}

// ReadRawResult is reported to a ReadRawCallback
type ReadRawResult int

const (
	// ReadRawFileError means the capture file could not be written; the session is over
	ReadRawFileError ReadRawResult = iota
	// ReadRawOverrun means captured edges were dropped
	ReadRawOverrun
)

// String returns the result name
func (r ReadRawResult) String() string {
	if r == ReadRawFileError {
		return "file error"
	}
	return "overrun"
}

// EmulateRawResult is reported to an EmulateRawCallback
type EmulateRawResult int

const (
	// EmulateRawFileError means the capture file could not be read; the session is over
	EmulateRawFileError EmulateRawResult = iota
	// EmulateRawOverrun means the output ran out of pulses
	EmulateRawOverrun
)

// String returns the result name
func (r EmulateRawResult) String() string {
	if r == EmulateRawFileError {
		return "file error"
	}
	return "overrun"
}
