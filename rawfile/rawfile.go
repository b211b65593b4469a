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

// Package rawfile reads and writes raw LF captures.
//
// A raw file is the 8 byte magic "RFID RAW", a little endian header (uint32 maximum record
// size, float32 carrier frequency in Hz, float32 duty cycle) and a sequence of records.
// Each record is a uint32 length followed by that many bytes of uvarint encoded
// (duration, pulse) pairs in microseconds.
package rawfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
)

const (
	// Magic opens every raw file
	Magic = "RFID RAW"
	// HeaderSize is the size of magic plus header
	HeaderSize = len(Magic) + 12
	// MaxBufferSize is the largest record a reader accepts
	MaxBufferSize = 2048
	// MaxFrequency bounds the carrier frequency a reader accepts
	MaxFrequency = 1e6
)

// Header describes the capture.
type Header struct {
	MaxBufferSize uint32
	Frequency     float32
	DutyCycle     float32
}

// Validate checks the header against the values a replay can honor.
func (h Header) Validate() error {
	if h.MaxBufferSize == 0 || h.MaxBufferSize > MaxBufferSize {
		return fmt.Errorf("max buffer size %d: %w", h.MaxBufferSize, lfrfid.ErrRawFileFormat)
	}
	if !(h.Frequency > 0 && h.Frequency < MaxFrequency) {
		return fmt.Errorf("frequency %g: %w", h.Frequency, lfrfid.ErrRawFileFormat)
	}
	if !(h.DutyCycle >= 0 && h.DutyCycle <= 1) {
		return fmt.Errorf("duty cycle %g: %w", h.DutyCycle, lfrfid.ErrRawFileFormat)
	}
	return nil
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	binary.LittleEndian.PutUint32(buf[8:], h.MaxBufferSize)
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(h.Frequency))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(h.DutyCycle))
	return buf
}

func unmarshalHeader(buf []byte) (Header, error) {
	if string(buf[:len(Magic)]) != Magic {
		return Header{}, fmt.Errorf("bad magic %q: %w", buf[:len(Magic)], lfrfid.ErrRawFileFormat)
	}
	h := Header{
		MaxBufferSize: binary.LittleEndian.Uint32(buf[8:]),
		Frequency:     math.Float32frombits(binary.LittleEndian.Uint32(buf[12:])),
		DutyCycle:     math.Float32frombits(binary.LittleEndian.Uint32(buf[16:])),
	}
	return h, h.Validate()
}

// AppendPair appends one varint encoded pair to dst.
func AppendPair(dst []byte, p lfrfid.Pulse) []byte {
	dst = binary.AppendUvarint(dst, uint64(p.Duration))
	return binary.AppendUvarint(dst, uint64(p.Pulse))
}

// PairSize returns the encoded size of p.
func PairSize(p lfrfid.Pulse) int {
	var scratch [2 * binary.MaxVarintLen32]byte
	return len(AppendPair(scratch[:0], p))
}

// Writer appends records to a raw file.
type Writer struct {
	w      *bufio.Writer
	header Header
}

// NewWriter writes the header to w.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(h.marshal()); err != nil {
		return nil, fmt.Errorf("failed to write raw header: %w", err)
	}
	return &Writer{w: bw, header: h}, nil
}

// WriteRecord appends one record of encoded pairs.
func (w *Writer) WriteRecord(record []byte) error {
	if len(record) > int(w.header.MaxBufferSize) {
		return fmt.Errorf("record of %d bytes exceeds %d: %w", len(record), w.header.MaxBufferSize, lfrfid.ErrDataSize)
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(record)))
	if _, err := w.w.Write(size[:]); err != nil {
		return fmt.Errorf("failed to write raw record: %w", err)
	}
	if _, err := w.w.Write(record); err != nil {
		return fmt.Errorf("failed to write raw record: %w", err)
	}
	return nil
}

// WritePairs packs pairs into records no larger than the header allows.
func (w *Writer) WritePairs(pairs []lfrfid.Pulse) error {
	record := make([]byte, 0, w.header.MaxBufferSize)
	for _, p := range pairs {
		if len(record)+PairSize(p) > int(w.header.MaxBufferSize) {
			if err := w.WriteRecord(record); err != nil {
				return err
			}
			record = record[:0]
		}
		record = AppendPair(record, p)
	}
	if len(record) == 0 {
		return nil
	}
	return w.WriteRecord(record)
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush raw file: %w", err)
	}
	return nil
}

// Reader plays back a raw file, looping to the first record at the end.
type Reader struct {
	r      io.ReadSeeker
	record []byte
	header Header
	pos    int
}

// NewReader reads and validates the header.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read raw header: %w: %w", lfrfid.ErrRawFileFormat, err)
	}
	h, err := unmarshalHeader(buf)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, header: h, record: make([]byte, 0, h.MaxBufferSize)}, nil
}

// Header returns the capture parameters.
func (r *Reader) Header() Header {
	return r.header
}

// nextRecord loads the next record, rewinding once at end of file.
func (r *Reader) nextRecord() error {
	for attempt := 0; attempt < 2; attempt++ {
		var size [4]byte
		_, err := io.ReadFull(r.r, size[:])
		if errors.Is(err, io.EOF) {
			if _, err := r.r.Seek(int64(HeaderSize), io.SeekStart); err != nil {
				return fmt.Errorf("failed to rewind raw file: %w", err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read raw record: %w", err)
		}
		n := binary.LittleEndian.Uint32(size[:])
		if n == 0 || n > r.header.MaxBufferSize {
			return fmt.Errorf("record size %d: %w", n, lfrfid.ErrRawFileFormat)
		}
		r.record = r.record[:n]
		if _, err := io.ReadFull(r.r, r.record); err != nil {
			return fmt.Errorf("failed to read raw record: %w", err)
		}
		r.pos = 0
		return nil
	}
	return fmt.Errorf("no records: %w", lfrfid.ErrRawFileFormat)
}

func (r *Reader) uvarint() (uint32, error) {
	v, n := binary.Uvarint(r.record[r.pos:])
	if n <= 0 || v > 0xFFFFFFFF {
		return 0, fmt.Errorf("bad varint at record offset %d: %w", r.pos, lfrfid.ErrRawFileFormat)
	}
	r.pos += n
	return uint32(v), nil
}

// ReadPair returns the next (duration, pulse) pair. It never reports io.EOF: playback
// wraps to the first record.
func (r *Reader) ReadPair() (lfrfid.Pulse, error) {
	if r.pos >= len(r.record) {
		if err := r.nextRecord(); err != nil {
			return lfrfid.Pulse{}, err
		}
	}
	duration, err := r.uvarint()
	if err != nil {
		return lfrfid.Pulse{}, err
	}
	pulse, err := r.uvarint()
	if err != nil {
		return lfrfid.Pulse{}, err
	}
	return lfrfid.Pulse{Duration: duration, Pulse: pulse}, nil
}

// Create opens path for writing and writes the header.
func Create(path string, h Header) (*os.File, *Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create raw file %s: %w", path, err)
	}
	w, err := NewWriter(f, h)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, w, nil
}

// Open opens path for playback.
func Open(path string) (*os.File, *Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open raw file %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, r, nil
}
