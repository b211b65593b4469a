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
	"math/rand"
	"testing"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/psk"
)

const maxPieces = 200000

// edgeSource turns an encoder into the edge stream a reader would capture: pieces are
// merged, converted to microseconds and, for PSK protocols, demodulated to NRZ runs.
type edgeSource struct {
	p      Protocol
	demod  *psk.Demod
	merger lfrfid.EdgeMerger
	pieces int
}

func newEdgeSource(p Protocol, features lfrfid.Feature) *edgeSource {
	s := &edgeSource{p: p}
	if features&lfrfid.FeaturePSK != 0 {
		s.demod = psk.NewDemod(lfrfid.UsPerClock)
	}
	return s
}

// next returns the next edge, or false once maxPieces pieces have been consumed.
func (s *edgeSource) next() (lfrfid.LevelDuration, bool) {
	for s.pieces < maxPieces {
		s.pieces++
		ld, ok := s.merger.Push(s.p.EncoderYield())
		if !ok {
			continue
		}
		ld.Duration = lfrfid.ClocksToUs(ld.Duration)
		if s.demod == nil {
			return ld, true
		}
		level, run, ok := s.demod.Feed(ld.Duration)
		if ok {
			return lfrfid.LevelDuration{Level: level, Duration: run}, true
		}
	}
	return lfrfid.LevelDuration{}, false
}

// edgeBudget is how many edges a test can draw from one encoder. Demodulated PSK
// yields one NRZ run per several sub-carrier pieces, so it gets fewer.
func edgeBudget(features lfrfid.Feature) int {
	if features&lfrfid.FeaturePSK != 0 {
		return 2000
	}
	return 4000
}

// collectEdges records n edges of the encoded waveform of p.
func collectEdges(t *testing.T, p Protocol, features lfrfid.Feature, n int) []lfrfid.LevelDuration {
	t.Helper()
	src := newEdgeSource(p, features)
	out := make([]lfrfid.LevelDuration, 0, n)
	for len(out) < n {
		ld, ok := src.next()
		if !ok {
			t.Fatalf("encoder produced only %d edges", len(out))
		}
		out = append(out, ld)
	}
	return out
}

// firstDecode feeds edges to dec and returns the index of the first completed frame or -1.
func firstDecode(dec Protocol, edges []lfrfid.LevelDuration) int {
	for i, ld := range edges {
		if dec.DecoderFeed(ld.Level, ld.Duration) {
			return i
		}
	}
	return -1
}

// decodeStream encodes p and feeds a fresh decoder until it completes a frame.
func decodeStream(p Protocol, base *Base, dec Protocol) bool {
	src := newEdgeSource(p, base.Features)
	for {
		ld, ok := src.next()
		if !ok {
			return false
		}
		if dec.DecoderFeed(ld.Level, ld.Duration) {
			return true
		}
	}
}

// noise returns durations outside every protocol timing window. The last edge is
// always a glitch.
func noise(r *rand.Rand, n int) []lfrfid.LevelDuration {
	out := make([]lfrfid.LevelDuration, n)
	out[n-1] = lfrfid.LevelDuration{Duration: 1}
	for i := range out[:n-1] {
		var d uint32
		if r.Intn(2) == 0 {
			d = uint32(r.Intn(20) + 1)
		} else {
			d = uint32(r.Intn(15001) + 5000)
		}
		out[i] = lfrfid.LevelDuration{Level: r.Intn(2) == 1, Duration: d}
	}
	return out
}

// frameOf exposes the encoded frame of a protocol instance.
func frameOf(t *testing.T, p Protocol) []byte {
	t.Helper()
	switch v := p.(type) {
	case *em4100:
		return v.frame[:]
	case *h10301:
		return v.frame[:]
	case *indala26:
		return v.frame
	case *indala224:
		return v.frame
	case *fdxb:
		return v.frame[:]
	case *gproxii:
		return v.frame[:]
	case *securakey:
		return v.frame[:]
	case *instafob:
		return v.frame[:]
	default:
		t.Fatalf("unknown protocol type %T", p)
		return nil
	}
}

func flipBit(buf []byte, i int) {
	buf[i/8] ^= 0x80 >> uint(i%8)
}
