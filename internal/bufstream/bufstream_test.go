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

package bufstream

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamHandsOffFullBuffers(t *testing.T) {
	t.Parallel()

	s := New(2, 8)
	require.True(t, s.Write([]byte{1, 2, 3, 4, 5}))
	assert.Nil(t, s.TryReceive())

	// does not fit, the first buffer is handed off
	require.True(t, s.Write([]byte{6, 7, 8, 9}))
	b := s.Receive(time.Second)
	require.NotNil(t, b)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, b.Data())
	s.Release(b)

	s.Flush()
	b = s.Receive(time.Second)
	require.NotNil(t, b)
	assert.Equal(t, []byte{6, 7, 8, 9}, b.Data())
	s.Release(b)
	assert.Zero(t, s.Overruns())
}

func TestStreamOverrun(t *testing.T) {
	t.Parallel()

	s := New(2, 4)
	require.True(t, s.Write([]byte{1, 2, 3, 4}))
	require.True(t, s.Write([]byte{5, 6, 7, 8}))
	// both buffers are with the consumer now
	assert.False(t, s.Write([]byte{9}))
	assert.False(t, s.Write([]byte{10}))
	assert.Equal(t, uint32(2), s.Overruns())

	b := s.TryReceive()
	require.NotNil(t, b)
	s.Release(b)
	assert.True(t, s.Write([]byte{11}))

	s.Reset()
	assert.Zero(t, s.Overruns())
	assert.Nil(t, s.TryReceive())
}

func TestStreamReceiveTimeout(t *testing.T) {
	t.Parallel()

	s := New(4, 16)
	start := time.Now()
	assert.Nil(t, s.Receive(10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestStreamConcurrentOrder(t *testing.T) {
	t.Parallel()

	s := New(4, 64)
	var want bytes.Buffer
	done := make(chan struct{})
	var got bytes.Buffer
	go func() {
		defer close(done)
		for {
			b := s.Receive(50 * time.Millisecond)
			if b == nil {
				return
			}
			got.Write(b.Data())
			s.Release(b)
		}
	}()

	for i := 0; i < 500; i++ {
		p := []byte{byte(i), byte(i >> 8), 0xAA}
		for !s.Write(p) {
			time.Sleep(time.Millisecond)
		}
		want.Write(p)
	}
	s.Flush()
	<-done

	assert.Equal(t, want.Bytes(), got.Bytes())
}
