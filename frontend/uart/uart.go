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

// Package uart drives an analog front end through a co-processor on a serial link.
//
// The co-processor owns the comparator, carrier and output timers. The host exchanges
// checksummed frames with it: commands are acknowledged, captured edges and buffer
// progress arrive as unsolicited events.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/internal/frame"
	"github.com/ZaparooProject/go-lfrfid/internal/transport"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Config holds the serial link settings
type Config struct {
	// BaudRate of the serial port
	BaudRate int
	// AckTimeout bounds the wait for each command acknowledgement
	AckTimeout time.Duration
	// ConnectTimeout bounds the version handshake
	ConnectTimeout time.Duration
	// DownlinkTimeout is added to the program length when waiting for a T5577 write
	DownlinkTimeout time.Duration
	// RetryDelay is the pause before a command is sent again
	RetryDelay time.Duration
	// MaxRetries is how many times a NACKed or unanswered command is resent
	MaxRetries int
}

// DefaultConfig returns the default link settings
func DefaultConfig() Config {
	return Config{
		BaudRate:        115200,
		AckTimeout:      100 * time.Millisecond,
		ConnectTimeout:  time.Second,
		DownlinkTimeout: time.Second,
		RetryDelay:      10 * time.Millisecond,
		MaxRetries:      3,
	}
}

type emulation struct {
	onHalf lfrfid.HalfFunc
	buf    []lfrfid.Pulse
}

// Frontend is an lfrfid.Frontend backed by a serial co-processor
type Frontend struct {
	port         io.ReadWriteCloser
	sink         lfrfid.EdgeSink
	emu          *emulation
	acks         chan frame.Kind
	versions     chan []byte
	downlinkDone chan struct{}
	readerDone   chan struct{}
	portName     string
	version      [2]byte
	cfg          Config
	frameErrors  atomic.Uint64
	writeMu      sync.Mutex
	cmdMu        sync.Mutex
	sinkMu       sync.Mutex
	emuMu        sync.Mutex
	mu           sync.Mutex
	capturing    bool
	emulating    bool
	writing      bool
	closed       bool
}

// New opens portName with the default settings
func New(portName string) (*Frontend, error) {
	return NewWithConfig(portName, DefaultConfig())
}

// NewWithConfig opens portName and performs the version handshake
func NewWithConfig(portName string, cfg Config) (*Frontend, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, lfrfid.NewFrontendError("open", portName, err, lfrfid.ErrorTypePermanent)
	}
	if err := port.ResetInputBuffer(); err != nil {
		lfrfid.Debugf("uart %s: reset input: %v", portName, err)
	}

	fe, err := NewWithConn(port, portName, cfg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return fe, nil
}

// NewWithConn runs the link over an already open connection
func NewWithConn(conn io.ReadWriteCloser, portName string, cfg Config) (*Frontend, error) {
	def := DefaultConfig()
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.DownlinkTimeout <= 0 {
		cfg.DownlinkTimeout = def.DownlinkTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	f := &Frontend{
		port:         conn,
		portName:     portName,
		cfg:          cfg,
		acks:         make(chan frame.Kind, 1),
		versions:     make(chan []byte, 1),
		downlinkDone: make(chan struct{}, 1),
		readerDone:   make(chan struct{}),
	}
	go f.readLoop()

	if err := f.handshake(); err != nil {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		_ = conn.Close()
		<-f.readerDone
		return nil, err
	}
	lfrfid.Debugf("uart %s: co-processor version %d.%d", portName, f.version[0], f.version[1])
	return f, nil
}

func (f *Frontend) handshake() error {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.ConnectTimeout)
	defer cancel()

	if err := f.command(ctx, "version", CmdGetVersion, nil); err != nil {
		return err
	}
	v, err := transport.TimeoutRetry(ctx, f.cfg.ConnectTimeout, "version", func() ([]byte, bool, error) {
		select {
		case v := <-f.versions:
			return v, false, nil
		default:
			return nil, true, nil
		}
	})
	if err != nil {
		return err
	}
	if len(v) != 2 {
		return lfrfid.NewFrontendError("version", f.portName, lfrfid.ErrFrameCorrupted, lfrfid.ErrorTypePermanent)
	}
	copy(f.version[:], v)
	return nil
}

// Version returns the co-processor firmware version
func (f *Frontend) Version() (major, minor byte) {
	return f.version[0], f.version[1]
}

// PortName returns the serial port path
func (f *Frontend) PortName() string {
	return f.portName
}

// FrameErrors returns how many corrupt frames were dropped
func (f *Frontend) FrameErrors() uint64 {
	return f.frameErrors.Load()
}

// Type returns the front end type
func (*Frontend) Type() lfrfid.FrontendType {
	return lfrfid.FrontendSerial
}

func (f *Frontend) readLoop() {
	defer close(f.readerDone)

	dec := frame.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := f.port.Read(buf)
		for _, b := range buf[:n] {
			fr, derr := dec.DecodeByte(b)
			if derr != nil {
				f.frameErrors.Add(1)
				lfrfid.Debugf("uart %s: %v", f.portName, derr)
				continue
			}
			if fr != nil {
				f.dispatch(fr)
			}
		}
		if err != nil {
			if !f.isClosed() && !errors.Is(err, io.EOF) {
				lfrfid.Debugf("uart %s: read: %v", f.portName, err)
			}
			return
		}
	}
}

func (f *Frontend) dispatch(fr *frame.Frame) {
	if fr.Kind != frame.KindData {
		select {
		case f.acks <- fr.Kind:
		default:
		}
		return
	}
	if fr.TFI != frame.DeviceToHost {
		lfrfid.Debugf("uart %s: ignoring frame with TFI 0x%02X", f.portName, fr.TFI)
		return
	}

	switch fr.Cmd {
	case RespVersion:
		select {
		case f.versions <- fr.Data:
		default:
		}
	case EvtEdges:
		f.deliverEdges(fr.Data)
	case EvtHalf:
		f.refill(fr.Data)
	case EvtDownlinkDone:
		select {
		case f.downlinkDone <- struct{}{}:
		default:
		}
	case EvtCaptureStatus:
		if len(fr.Data) > 0 && fr.Data[0] != 0 {
			lfrfid.Debugf("uart %s: capture overrun, %d edges lost", f.portName, fr.Data[0])
		}
	default:
		lfrfid.Debugf("uart %s: unknown event 0x%02X", f.portName, fr.Cmd)
	}
}

func (f *Frontend) deliverEdges(data []byte) {
	pulses, err := unpackPulses(data)
	if err != nil {
		f.frameErrors.Add(1)
		lfrfid.Debugf("uart %s: edges: %v", f.portName, err)
	}

	f.sinkMu.Lock()
	defer f.sinkMu.Unlock()
	if f.sink == nil {
		return
	}
	for _, p := range pulses {
		high, low := p.Edges()
		if high.Duration > 0 {
			f.sink(high)
		}
		if low.Duration > 0 {
			f.sink(low)
		}
	}
}

// refill hands the consumed half to the callback and streams it back to the co-processor
func (f *Frontend) refill(data []byte) {
	if len(data) != 1 {
		f.frameErrors.Add(1)
		return
	}
	half := lfrfid.Half(data[0])

	f.emuMu.Lock()
	defer f.emuMu.Unlock()
	if f.emu == nil {
		return
	}
	f.emu.onHalf(half)
	if err := f.sendHalf(half, f.emu.buf); err != nil {
		lfrfid.Debugf("uart %s: refill: %v", f.portName, err)
	}
}

// sendHalf streams one half of buf as unacknowledged emulation data frames
func (f *Frontend) sendHalf(half lfrfid.Half, buf []lfrfid.Pulse) error {
	size := len(buf) / 2
	part := buf[:size]
	if half == lfrfid.TransferComplete {
		part = buf[size:]
	}
	for len(part) > 0 {
		payload, n := packPulses([]byte{byte(half)}, part)
		if err := f.writeFrame(CmdEmulateData, payload); err != nil {
			return err
		}
		part = part[n:]
	}
	return nil
}

func (f *Frontend) writeFrame(cmd byte, data []byte) error {
	raw, err := frame.Build(frame.HostToDevice, cmd, data)
	if err != nil {
		return err
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if _, err := f.port.Write(raw); err != nil {
		return fmt.Errorf("write frame 0x%02X: %w", cmd, err)
	}
	return nil
}

func (f *Frontend) drainAcks() {
	for {
		select {
		case <-f.acks:
		default:
			return
		}
	}
}

// command sends one acknowledged command, resending it on NACK or silence
func (f *Frontend) command(ctx context.Context, op string, cmd byte, data []byte) error {
	f.cmdMu.Lock()
	defer f.cmdMu.Unlock()

	cfg := transport.RetryConfig{
		Op:         op,
		Port:       f.portName,
		MaxRetries: f.cfg.MaxRetries,
		RetryDelay: f.cfg.RetryDelay,
	}
	_, err := transport.WithRetry(ctx, cfg, func() (struct{}, bool, error) {
		f.drainAcks()
		if err := f.writeFrame(cmd, data); err != nil {
			return struct{}{}, false, lfrfid.NewFrontendError(op, f.portName, err, lfrfid.ErrorTypePermanent)
		}

		timer := time.NewTimer(f.cfg.AckTimeout)
		defer timer.Stop()
		select {
		case kind := <-f.acks:
			return struct{}{}, kind == frame.KindNack, nil
		case <-timer.C:
			return struct{}{}, true, nil
		case <-f.readerDone:
			return struct{}{}, false, lfrfid.NewFrontendError(op, f.portName, lfrfid.ErrFrontendClosed, lfrfid.ErrorTypePermanent)
		case <-ctx.Done():
			return struct{}{}, false, ctx.Err()
		}
	})
	return err
}

func (f *Frontend) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// claim marks the link busy with one activity
func (f *Frontend) claim(flag *bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return lfrfid.ErrFrontendClosed
	}
	if f.capturing || f.emulating || f.writing {
		return lfrfid.ErrFrontendBusy
	}
	*flag = true
	return nil
}

func (f *Frontend) release(flag *bool) {
	f.mu.Lock()
	*flag = false
	f.mu.Unlock()
}

func (f *Frontend) commandContext() (context.Context, context.CancelFunc) {
	budget := time.Duration(f.cfg.MaxRetries+1) * (f.cfg.AckTimeout + f.cfg.RetryDelay)
	return context.WithTimeout(context.Background(), budget+f.cfg.AckTimeout)
}

// StartCapture starts the carrier and edge streaming
func (f *Frontend) StartCapture(cfg lfrfid.CaptureConfig, sink lfrfid.EdgeSink) error {
	if err := f.claim(&f.capturing); err != nil {
		return err
	}

	f.sinkMu.Lock()
	f.sink = sink
	f.sinkMu.Unlock()

	ctx, cancel := f.commandContext()
	defer cancel()
	if err := f.command(ctx, "start capture", CmdStartCapture, encodeCapture(cfg)); err != nil {
		f.sinkMu.Lock()
		f.sink = nil
		f.sinkMu.Unlock()
		f.release(&f.capturing)
		return err
	}
	return nil
}

// StopCapture stops edge streaming. Edges still in flight are dropped.
func (f *Frontend) StopCapture() error {
	f.mu.Lock()
	active := f.capturing
	f.mu.Unlock()
	if !active {
		return nil
	}

	ctx, cancel := f.commandContext()
	defer cancel()
	err := f.command(ctx, "stop capture", CmdStopCapture, nil)

	f.sinkMu.Lock()
	f.sink = nil
	f.sinkMu.Unlock()
	f.release(&f.capturing)
	return err
}

// StartEmulate uploads buf and starts playback. buf is shared with the caller, which
// refills each half from onHalf.
func (f *Frontend) StartEmulate(cfg lfrfid.EmulateConfig, buf []lfrfid.Pulse, onHalf lfrfid.HalfFunc) error {
	if len(buf) < 2 || len(buf)%2 != 0 || len(buf) > 0xFFFF {
		return fmt.Errorf("emulation buffer of %d pulses: %w", len(buf), lfrfid.ErrDataSize)
	}
	if err := f.claim(&f.emulating); err != nil {
		return err
	}

	ctx, cancel := f.commandContext()
	defer cancel()
	if err := f.command(ctx, "start emulate", CmdStartEmulate, encodeEmulate(cfg, len(buf))); err != nil {
		f.release(&f.emulating)
		return err
	}

	f.emuMu.Lock()
	defer f.emuMu.Unlock()
	f.emu = &emulation{buf: buf, onHalf: onHalf}
	for _, h := range []lfrfid.Half{lfrfid.HalfTransfer, lfrfid.TransferComplete} {
		if err := f.sendHalf(h, buf); err != nil {
			f.emu = nil
			f.release(&f.emulating)
			return lfrfid.NewFrontendError("start emulate", f.portName, err, lfrfid.ErrorTypePermanent)
		}
	}
	return nil
}

// StopEmulate stops playback
func (f *Frontend) StopEmulate() error {
	f.mu.Lock()
	active := f.emulating
	f.mu.Unlock()
	if !active {
		return nil
	}

	ctx, cancel := f.commandContext()
	defer cancel()
	err := f.command(ctx, "stop emulate", CmdStopEmulate, nil)

	f.emuMu.Lock()
	f.emu = nil
	f.emuMu.Unlock()
	f.release(&f.emulating)
	return err
}

// WriteT5577 uploads the downlink program, runs it and waits until the co-processor
// reports it was sent
func (f *Frontend) WriteT5577(ctx context.Context, req *t5577.Request) error {
	if err := f.claim(&f.writing); err != nil {
		return err
	}
	defer f.release(&f.writing)

	steps := t5577.Program(req)
	program := time.Duration(t5577.Duration(steps)) * time.Duration(lfrfid.UsPerClock) * time.Microsecond

	select {
	case <-f.downlinkDone:
	default:
	}

	for rest := steps; len(rest) > 0; {
		payload, n, err := packSteps(rest)
		if err != nil {
			return err
		}
		if err := f.command(ctx, "downlink data", CmdDownlinkData, payload); err != nil {
			return err
		}
		rest = rest[n:]
	}
	if err := f.command(ctx, "downlink start", CmdDownlinkStart, nil); err != nil {
		return err
	}

	timer := time.NewTimer(program + f.cfg.DownlinkTimeout)
	defer timer.Stop()
	select {
	case <-f.downlinkDone:
		lfrfid.Debugf("uart %s: wrote %d blocks", f.portName, req.BlockCount)
		return nil
	case <-timer.C:
		return lfrfid.NewTimeoutError("downlink", f.portName)
	case <-f.readerDone:
		return lfrfid.NewFrontendError("downlink", f.portName, lfrfid.ErrFrontendClosed, lfrfid.ErrorTypePermanent)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops any activity and closes the port
func (f *Frontend) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	_ = f.StopCapture()
	_ = f.StopEmulate()

	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	err := f.port.Close()
	<-f.readerDone
	if err != nil {
		return lfrfid.NewFrontendError("close", f.portName, err, lfrfid.ErrorTypePermanent)
	}
	return nil
}
