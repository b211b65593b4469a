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

// Package bufstream hands fixed size buffers from a producer that must never block to a
// consumer goroutine.
package bufstream

import (
	"sync/atomic"
	"time"
)

// Buffer is one slot of the pool.
type Buffer struct {
	data     []byte
	size     int
	occupied atomic.Bool
}

// Data returns the bytes written into the buffer.
func (b *Buffer) Data() []byte {
	return b.data[:b.size]
}

// Stream is a single producer, single consumer pool of buffers.
type Stream struct {
	ready   chan *Buffer
	current *Buffer
	bufs    []*Buffer
	next    int
	overrun atomic.Uint32
}

// New allocates count buffers of size bytes each.
func New(count, size int) *Stream {
	s := &Stream{
		ready: make(chan *Buffer, count),
		bufs:  make([]*Buffer, count),
	}
	for i := range s.bufs {
		s.bufs[i] = &Buffer{data: make([]byte, size)}
	}
	return s
}

func (s *Stream) acquire() *Buffer {
	b := s.bufs[s.next]
	if b.occupied.Load() {
		return nil
	}
	s.next = (s.next + 1) % len(s.bufs)
	b.size = 0
	b.occupied.Store(true)
	return b
}

// Write appends p to the current buffer, handing it to the consumer when p does not fit.
// It reports false and counts an overrun when every buffer is still held by the consumer.
// Only the producer may call Write.
func (s *Stream) Write(p []byte) bool {
	if s.current != nil && s.current.size+len(p) > len(s.current.data) {
		s.ready <- s.current
		s.current = nil
	}
	if s.current == nil {
		s.current = s.acquire()
		if s.current == nil {
			s.overrun.Add(1)
			return false
		}
	}
	s.current.size += copy(s.current.data[s.current.size:], p)
	return true
}

// Flush hands the partially filled buffer to the consumer. Only the producer may call it.
func (s *Stream) Flush() {
	if s.current != nil && s.current.size > 0 {
		s.ready <- s.current
		s.current = nil
	}
}

// Receive waits up to timeout for a filled buffer. It returns nil on timeout.
func (s *Stream) Receive(timeout time.Duration) *Buffer {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-s.ready:
		return b
	case <-timer.C:
		return nil
	}
}

// TryReceive returns a filled buffer if one is ready.
func (s *Stream) TryReceive() *Buffer {
	select {
	case b := <-s.ready:
		return b
	default:
		return nil
	}
}

// Release returns a buffer to the pool once the consumer is done with it.
func (*Stream) Release(b *Buffer) {
	b.occupied.Store(false)
}

// Overruns returns how many writes were dropped.
func (s *Stream) Overruns() uint32 {
	return s.overrun.Load()
}

// Reset releases every buffer and clears the overrun count. Neither side may be running.
func (s *Stream) Reset() {
	for {
		select {
		case <-s.ready:
			continue
		default:
		}
		break
	}
	for _, b := range s.bufs {
		b.size = 0
		b.occupied.Store(false)
	}
	s.current = nil
	s.next = 0
	s.overrun.Store(0)
}
