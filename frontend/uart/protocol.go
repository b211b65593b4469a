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

package uart

import (
	"encoding/binary"
	"fmt"
	"math"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/frame"
	"github.com/ZaparooProject/go-lfrfid/rawfile"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Host to co-processor commands. Every command except CmdEmulateData is acknowledged.
const (
	CmdGetVersion    = 0x01
	CmdStartCapture  = 0x10
	CmdStopCapture   = 0x11
	CmdStartEmulate  = 0x12
	CmdEmulateData   = 0x13
	CmdStopEmulate   = 0x14
	CmdDownlinkData  = 0x15
	CmdDownlinkStart = 0x16
)

// Co-processor to host frames
const (
	RespVersion      = 0x02
	EvtEdges         = 0x80
	EvtHalf          = 0x81
	EvtDownlinkDone  = 0x82
	EvtCaptureStatus = 0x83
)

// stepCarrierOn flags a carrier-on downlink step
const stepCarrierOn = 0x8000

func putFloat32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}

func getFloat32(src []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src))
}

// encodeCapture lays out frequency, duty cycle and feature
func encodeCapture(cfg lfrfid.CaptureConfig) []byte {
	out := make([]byte, 9)
	putFloat32(out[0:4], cfg.Frequency)
	putFloat32(out[4:8], cfg.DutyCycle)
	out[8] = byte(cfg.Feature)
	return out
}

func decodeCapture(data []byte) (lfrfid.CaptureConfig, error) {
	if len(data) != 9 {
		return lfrfid.CaptureConfig{}, fmt.Errorf("capture payload of %d bytes: %w", len(data), lfrfid.ErrFrameCorrupted)
	}
	return lfrfid.CaptureConfig{
		Frequency: getFloat32(data[0:4]),
		DutyCycle: getFloat32(data[4:8]),
		Feature:   lfrfid.Feature(data[8]),
	}, nil
}

// encodeEmulate lays out frequency, duty cycle and the double buffer length
func encodeEmulate(cfg lfrfid.EmulateConfig, size int) []byte {
	out := make([]byte, 10)
	putFloat32(out[0:4], cfg.Frequency)
	putFloat32(out[4:8], cfg.DutyCycle)
	binary.LittleEndian.PutUint16(out[8:10], uint16(size))
	return out
}

func decodeEmulate(data []byte) (lfrfid.EmulateConfig, int, error) {
	if len(data) != 10 {
		return lfrfid.EmulateConfig{}, 0, fmt.Errorf("emulate payload of %d bytes: %w", len(data), lfrfid.ErrFrameCorrupted)
	}
	cfg := lfrfid.EmulateConfig{Frequency: getFloat32(data[0:4]), DutyCycle: getFloat32(data[4:8])}
	return cfg, int(binary.LittleEndian.Uint16(data[8:10])), nil
}

// packPulses appends pulses to prefix while the payload fits in one frame and returns
// how many were taken. Pulses use the raw file pair encoding.
func packPulses(prefix []byte, pulses []lfrfid.Pulse) ([]byte, int) {
	out := make([]byte, 0, frame.MaxFrameDataLength)
	out = append(out, prefix...)
	n := 0
	for _, p := range pulses {
		if len(out)+rawfile.PairSize(p) > frame.MaxFrameDataLength {
			break
		}
		out = rawfile.AppendPair(out, p)
		n++
	}
	return out, n
}

func unpackPulses(data []byte) ([]lfrfid.Pulse, error) {
	var out []lfrfid.Pulse
	for len(data) > 0 {
		duration, n := binary.Uvarint(data)
		if n <= 0 || duration > math.MaxUint32 {
			return out, fmt.Errorf("bad pulse duration: %w", lfrfid.ErrFrameCorrupted)
		}
		data = data[n:]
		pulse, n := binary.Uvarint(data)
		if n <= 0 || pulse > duration {
			return out, fmt.Errorf("bad pulse width: %w", lfrfid.ErrFrameCorrupted)
		}
		data = data[n:]
		out = append(out, lfrfid.Pulse{Duration: uint32(duration), Pulse: uint32(pulse)})
	}
	return out, nil
}

// packSteps encodes downlink steps two bytes each, little endian, with the carrier
// state in the top bit.
func packSteps(steps []t5577.Step) ([]byte, int, error) {
	max := frame.MaxFrameDataLength / 2
	if len(steps) < max {
		max = len(steps)
	}
	out := make([]byte, 0, 2*max)
	for _, s := range steps[:max] {
		if s.Clocks >= stepCarrierOn {
			return nil, 0, fmt.Errorf("downlink step of %d clocks: %w", s.Clocks, lfrfid.ErrFrameCorrupted)
		}
		v := uint16(s.Clocks)
		if s.CarrierOn {
			v |= stepCarrierOn
		}
		out = binary.LittleEndian.AppendUint16(out, v)
	}
	return out, max, nil
}

func unpackSteps(data []byte) ([]t5577.Step, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("odd downlink payload: %w", lfrfid.ErrFrameCorrupted)
	}
	out := make([]t5577.Step, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		v := binary.LittleEndian.Uint16(data[i:])
		out = append(out, t5577.Step{Clocks: uint32(v &^ stepCarrierOn), CarrierOn: v&stepCarrierOn != 0})
	}
	return out, nil
}
