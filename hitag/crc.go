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

// Package hitag implements the Hitag S reader and emulator exchanges on top
// of the 125 kHz carrier: reader commands are sent by pulse length
// modulation of the field and tag replies come back as load modulation.
package hitag

const (
	crcPoly   = 0x1D
	crcPreset = 0xFF
)

// crcUpdate feeds the top n bits of data into crc, most significant first.
func crcUpdate(crc, data byte, n int) byte {
	crc ^= data
	for ; n > 0; n-- {
		if crc&0x80 != 0 {
			crc = crc<<1 ^ crcPoly
		} else {
			crc <<= 1
		}
	}
	return crc
}

// CRC8 returns the Hitag CRC of a bit sequence.
func CRC8(bits []bool) byte {
	crc := byte(crcPreset)
	for i := 0; i < len(bits); i += 8 {
		n := min(8, len(bits)-i)
		crc = crcUpdate(crc, packBits(bits[i:i+n]), n)
	}
	return crc
}

// packBits packs up to eight bits into the top of a byte.
func packBits(bits []bool) byte {
	var b byte
	for i, bit := range bits {
		if bit {
			b |= 0x80 >> i
		}
	}
	return b
}

func appendByte(bits []bool, b byte) []bool {
	for i := 7; i >= 0; i-- {
		bits = append(bits, b>>i&1 == 1)
	}
	return bits
}

func appendBytes(bits []bool, data ...byte) []bool {
	for _, b := range data {
		bits = appendByte(bits, b)
	}
	return bits
}

func bitsToBytes(bits []bool) []byte {
	out := make([]byte, 0, (len(bits)+7)/8)
	for i := 0; i < len(bits); i += 8 {
		out = append(out, packBits(bits[i:min(i+8, len(bits))]))
	}
	return out
}
