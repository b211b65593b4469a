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

// Package bitlib treats byte slices as big-endian bit streams addressed from bit 0.
package bitlib

import "math/bits"

// Parity selects the check applied to each group by TestParity.
type Parity int

const (
	// ParityEven expects an even number of ones in the group
	ParityEven Parity = iota
	// ParityOdd expects an odd number of ones in the group
	ParityOdd
	// ParityAlways0 expects the last bit of the group to be 0
	ParityAlways0
	// ParityAlways1 expects the last bit of the group to be 1
	ParityAlways1
)

// GetBit returns bit i of buf.
func GetBit(buf []byte, i int) bool {
	return buf[i/8]>>(7-uint(i%8))&1 == 1
}

// SetBit sets bit i of buf to v.
func SetBit(buf []byte, i int, v bool) {
	mask := byte(1) << (7 - uint(i%8))
	if v {
		buf[i/8] |= mask
	} else {
		buf[i/8] &^= mask
	}
}

// SetBits writes the low count bits of value at offset, MSB first.
func SetBits(buf []byte, offset int, value uint64, count int) {
	for i := 0; i < count; i++ {
		SetBit(buf, offset+i, value>>uint(count-1-i)&1 == 1)
	}
}

// GetBits reads up to 8 bits at offset, MSB first.
func GetBits(buf []byte, offset, count int) uint8 {
	return uint8(GetBits64(buf, offset, count))
}

// GetBits16 reads up to 16 bits at offset, MSB first.
func GetBits16(buf []byte, offset, count int) uint16 {
	return uint16(GetBits64(buf, offset, count))
}

// GetBits32 reads up to 32 bits at offset, MSB first.
func GetBits32(buf []byte, offset, count int) uint32 {
	return uint32(GetBits64(buf, offset, count))
}

// GetBits64 reads up to 64 bits at offset, MSB first.
func GetBits64(buf []byte, offset, count int) uint64 {
	var v uint64
	for i := 0; i < count; i++ {
		v <<= 1
		if GetBit(buf, offset+i) {
			v |= 1
		}
	}
	return v
}

// PushBit shifts the whole buffer left by one bit and stores bit in the last position.
// The oldest bit falls off the front.
func PushBit(buf []byte, bit bool) {
	last := len(buf) - 1
	for i := 0; i < last; i++ {
		buf[i] = buf[i]<<1 | buf[i+1]>>7
	}
	buf[last] <<= 1
	if bit {
		buf[last] |= 1
	}
}

// CopyBits copies count bits from src at srcOffset to dst at dstOffset.
func CopyBits(dst []byte, dstOffset, count int, src []byte, srcOffset int) {
	for i := 0; i < count; i++ {
		SetBit(dst, dstOffset+i, GetBit(src, srcOffset+i))
	}
}

// RemoveBitEveryNth drops the last bit of every n-bit group in the length bits at
// position, compacting the rest towards position. It returns the number of bits kept.
func RemoveBitEveryNth(buf []byte, position, length, n int) int {
	kept := 0
	for i := 0; i < length; i++ {
		if (i+1)%n == 0 {
			continue
		}
		SetBit(buf, position+kept, GetBit(buf, position+i))
		kept++
	}
	return kept
}

// TestParity32 checks the low length bits of value against parity.
func TestParity32(value uint32, length int, parity Parity) bool {
	if length < 32 {
		value &= 1<<uint(length) - 1
	}
	switch parity {
	case ParityEven:
		return bits.OnesCount32(value)%2 == 0
	case ParityOdd:
		return bits.OnesCount32(value)%2 == 1
	case ParityAlways0:
		return value&1 == 0
	case ParityAlways1:
		return value&1 == 1
	default:
		return false
	}
}

// TestParity splits length bits at position into groups of size bits and checks each one.
// A trailing partial group is ignored.
func TestParity(buf []byte, position, length int, parity Parity, size int) bool {
	for i := 0; i+size <= length; i += size {
		if !TestParity32(GetBits32(buf, position+i, size), size, parity) {
			return false
		}
	}
	return true
}

// ReverseBits reverses the order of the low length bits of value.
func ReverseBits(value uint64, length int) uint64 {
	var out uint64
	for i := 0; i < length; i++ {
		out = out<<1 | value&1
		value >>= 1
	}
	return out
}

// Reverse8 reverses the bit order of one byte.
func Reverse8(b byte) byte {
	b = b&0xF0>>4 | b&0x0F<<4
	b = b&0xCC>>2 | b&0x33<<2
	b = b&0xAA>>1 | b&0x55<<1
	return b
}

// CountOnes returns the number of set bits in value.
func CountOnes(value uint64) int {
	return bits.OnesCount64(value)
}
