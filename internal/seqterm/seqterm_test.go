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

package seqterm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	classShort uint8 = iota
	classLong
	classXLong
)

func terminator() [Length]Step {
	return [Length]Step{
		{Level: true, Class: classXLong},
		{Level: false, Class: classXLong},
		{Level: true, Class: classXLong},
		{Level: false, Class: classXLong},
		{Level: true, Class: classXLong},
		{Level: false, Class: classXLong},
	}
}

func TestMatcherComplete(t *testing.T) {
	t.Parallel()

	m := New(terminator())
	for i := 0; i < Length-1; i++ {
		assert.Equal(t, Progress, m.Feed(i%2 == 0, classXLong))
		assert.True(t, m.InProgress())
	}
	assert.Equal(t, Complete, m.Feed(false, classXLong))
	assert.False(t, m.InProgress())
}

func TestMatcherNoMatch(t *testing.T) {
	t.Parallel()

	m := New(terminator())
	assert.Equal(t, NoMatch, m.Feed(true, classShort))
	assert.Equal(t, NoMatch, m.Feed(false, classXLong))
	assert.False(t, m.InProgress())
}

func TestMatcherBroken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		breakLevel bool
		breakClass uint8
		restarted  bool
	}{
		{name: "wrong class", breakLevel: false, breakClass: classShort, restarted: false},
		{name: "restart on first step", breakLevel: true, breakClass: classXLong, restarted: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := New(terminator())
			m.Feed(true, classXLong)
			m.Feed(false, classXLong)
			m.Feed(true, classXLong)
			assert.Equal(t, Broken, m.Feed(tt.breakLevel, tt.breakClass))
			assert.Equal(t, tt.restarted, m.InProgress())
		})
	}
}

func TestMatcherReset(t *testing.T) {
	t.Parallel()

	m := New(terminator())
	m.Feed(true, classXLong)
	m.Reset()
	assert.False(t, m.InProgress())
	assert.Equal(t, NoMatch, m.Feed(false, classXLong))
}
