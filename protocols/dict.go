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

package protocols

import (
	"fmt"
	"strings"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

// Registered returns the descriptors of every supported protocol, indexed by ProtocolID.
func Registered() []*Base {
	return []*Base{
		EM4100:     &EM4100Base,
		EM4100RF32: &EM4100RF32Base,
		EM4100RF16: &EM4100RF16Base,
		H10301:     &H10301Base,
		Indala26:   &Indala26Base,
		Indala224:  &Indala224Base,
		FDXB:       &FDXBBase,
		GProxII:    &GProxIIBase,
		Securakey:  &SecurakeyBase,
		InstaFob:   &InstaFobBase,
	}
}

// Dict owns one instance of every registered protocol. It is not safe for concurrent use.
type Dict struct {
	bases     []*Base
	instances []Protocol
}

// NewDict creates a dictionary of all registered protocols.
func NewDict() *Dict {
	return NewDictFrom(Registered())
}

// NewDictFrom creates a dictionary over bases; ids are indexes into bases.
func NewDictFrom(bases []*Base) *Dict {
	d := &Dict{
		bases:     bases,
		instances: make([]Protocol, len(bases)),
	}
	for i, b := range bases {
		d.instances[i] = b.New()
	}
	return d
}

// Count returns the number of protocols.
func (d *Dict) Count() int {
	return len(d.bases)
}

func (d *Dict) check(id ProtocolID) {
	if id < 0 || int(id) >= len(d.bases) {
		panic(fmt.Sprintf("protocols: invalid protocol id %d", id))
	}
}

// DecodersStart starts every decoder.
func (d *Dict) DecodersStart() {
	for _, p := range d.instances {
		p.DecoderStart()
	}
}

// DecodersIdle reports whether no decoder holds a partial frame.
func (d *Dict) DecodersIdle() bool {
	for _, p := range d.instances {
		if !p.DecoderIdle() {
			return false
		}
	}
	return true
}

// DecodersFeedByFeature feeds the edge to every decoder whose features intersect feature
// and returns the first protocol, in registration order, that completed a frame.
// Every matching decoder sees the edge even after one has completed.
func (d *Dict) DecodersFeedByFeature(feature lfrfid.Feature, level bool, duration uint32) ProtocolID {
	found := ProtocolNo
	for i, p := range d.instances {
		if d.bases[i].Features&feature == 0 {
			continue
		}
		if p.DecoderFeed(level, duration) && found == ProtocolNo {
			found = ProtocolID(i)
		}
	}
	return found
}

// DecodersFeed feeds the edge to every decoder.
func (d *Dict) DecodersFeed(level bool, duration uint32) ProtocolID {
	return d.DecodersFeedByFeature(lfrfid.FeatureASK|lfrfid.FeaturePSK, level, duration)
}

// EncoderStart prepares the encoder of id from its data.
func (d *Dict) EncoderStart(id ProtocolID) bool {
	d.check(id)
	return d.instances[id].EncoderStart()
}

// EncoderYield returns the next waveform piece of id in carrier clocks.
func (d *Dict) EncoderYield(id ProtocolID) lfrfid.LevelDuration {
	d.check(id)
	return d.instances[id].EncoderYield()
}

// EncoderReset rewinds the waveform of id.
func (d *Dict) EncoderReset(id ProtocolID) {
	d.check(id)
	d.instances[id].EncoderReset()
}

// Data returns a copy of the record held by id.
func (d *Dict) Data(id ProtocolID) []byte {
	d.check(id)
	src := d.instances[id].Data()
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// CopyData copies the record of id into dst and returns the number of bytes copied.
func (d *Dict) CopyData(id ProtocolID, dst []byte) int {
	d.check(id)
	return copy(dst, d.instances[id].Data())
}

// SetData replaces the record of id. data must be DataSize(id) bytes long.
func (d *Dict) SetData(id ProtocolID, data []byte) error {
	d.check(id)
	dst := d.instances[id].Data()
	if len(data) != len(dst) {
		return fmt.Errorf("%s: got %d bytes, want %d: %w", d.bases[id].Name, len(data), len(dst), lfrfid.ErrDataSize)
	}
	copy(dst, data)
	return nil
}

// DataSize returns the record size of id.
func (d *Dict) DataSize(id ProtocolID) int {
	d.check(id)
	return d.bases[id].DataSize
}

// MaxDataSize returns the largest record size of any protocol.
func (d *Dict) MaxDataSize() int {
	n := 0
	for _, b := range d.bases {
		n = max(n, b.DataSize)
	}
	return n
}

// ByName looks up a protocol by name, ignoring case.
func (d *Dict) ByName(name string) ProtocolID {
	for i, b := range d.bases {
		if strings.EqualFold(b.Name, name) {
			return ProtocolID(i)
		}
	}
	return ProtocolNo
}

// Name returns the protocol name of id.
func (d *Dict) Name(id ProtocolID) string {
	d.check(id)
	return d.bases[id].Name
}

// Manufacturer returns the manufacturer of id.
func (d *Dict) Manufacturer(id ProtocolID) string {
	d.check(id)
	return d.bases[id].Manufacturer
}

// Features returns the feature mask of id.
func (d *Dict) Features(id ProtocolID) lfrfid.Feature {
	d.check(id)
	return d.bases[id].Features
}

// ValidateCount returns the number of identical reads that confirm id.
func (d *Dict) ValidateCount(id ProtocolID) int {
	d.check(id)
	return d.bases[id].ValidateCount
}

// RenderData formats the record of id on several lines.
func (d *Dict) RenderData(id ProtocolID) string {
	d.check(id)
	return d.instances[id].RenderData()
}

// RenderBrief formats the record of id on one line.
func (d *Dict) RenderBrief(id ProtocolID) string {
	d.check(id)
	return d.instances[id].RenderBrief()
}

// WriteData fills req from the record of id.
func (d *Dict) WriteData(id ProtocolID, req *WriteRequest) bool {
	d.check(id)
	return d.instances[id].WriteData(req)
}
