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

// Package gpio drives a discrete analog front end wired to host GPIO pins.
//
// The comparator output of the antenna demodulator feeds an input pin, the carrier
// is a PWM pin driving the antenna and a third pin switches the load modulator used
// for emulation. All timing is done in software on locked OS threads, so captures
// are only as precise as the host's edge timestamps.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// Config names the pins and timing of the front end
type Config struct {
	// InputPin receives the demodulated comparator output
	InputPin string
	// CarrierPin drives the antenna and must support PWM
	CarrierPin string
	// ModulationPin switches the load modulator while emulating
	ModulationPin string
	// EdgePoll bounds each wait for an input edge so a stop is noticed
	EdgePoll time.Duration
	// Nice is applied to the timing threads; 0 leaves the priority alone
	Nice int
	// InvertInput flips the comparator polarity
	InvertInput bool
}

// DefaultConfig returns the pinout of the reference Raspberry Pi hat
func DefaultConfig() Config {
	return Config{
		InputPin:      "GPIO17",
		CarrierPin:    "GPIO18",
		ModulationPin: "GPIO23",
		EdgePoll:      20 * time.Millisecond,
		Nice:          -10,
	}
}

var errNoPin = errors.New("no such pin")

type session struct {
	quit chan struct{}
	done chan struct{}
}

func newSession() *session {
	return &session{quit: make(chan struct{}), done: make(chan struct{})}
}

func (s *session) end() {
	close(s.quit)
	<-s.done
}

// Frontend is an lfrfid.Frontend on GPIO pins
type Frontend struct {
	input      gpio.PinIO
	carrier    gpio.PinIO
	modulation gpio.PinIO
	capture    *session
	emulate    *session
	now        func() time.Duration
	cfg        Config
	mu         sync.Mutex
	writing    bool
	closed     bool
}

// New initializes the periph host drivers and opens the configured pins
func New(cfg Config) (*Frontend, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	pins := make([]gpio.PinIO, 0, 3)
	for _, name := range []string{cfg.InputPin, cfg.CarrierPin, cfg.ModulationPin} {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, lfrfid.NewFrontendError("open", name, errNoPin, lfrfid.ErrorTypePermanent)
		}
		pins = append(pins, pin)
	}
	return NewWithPins(pins[0], pins[1], pins[2], cfg)
}

// NewWithPins builds the front end on already resolved pins
func NewWithPins(input, carrier, modulation gpio.PinIO, cfg Config) (*Frontend, error) {
	if cfg.EdgePoll <= 0 {
		cfg.EdgePoll = DefaultConfig().EdgePoll
	}
	start := time.Now()
	f := &Frontend{
		input:      input,
		carrier:    carrier,
		modulation: modulation,
		cfg:        cfg,
		now:        func() time.Duration { return time.Since(start) },
	}
	if err := f.idle(); err != nil {
		return nil, err
	}
	return f, nil
}

// Type returns the front end type
func (*Frontend) Type() lfrfid.FrontendType {
	return lfrfid.FrontendGPIO
}

// idle turns the carrier and modulator off and disables edge detection
func (f *Frontend) idle() error {
	if err := f.carrier.Out(gpio.Low); err != nil {
		return lfrfid.NewFrontendError("carrier off", f.carrier.Name(), err, lfrfid.ErrorTypePermanent)
	}
	if err := f.modulation.Out(gpio.Low); err != nil {
		return lfrfid.NewFrontendError("modulation off", f.modulation.Name(), err, lfrfid.ErrorTypePermanent)
	}
	if err := f.input.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return lfrfid.NewFrontendError("input", f.input.Name(), err, lfrfid.ErrorTypePermanent)
	}
	return nil
}

func toFrequency(hz float32) physic.Frequency {
	return physic.Frequency(float64(hz) * float64(physic.Hertz))
}

func toDuty(ratio float32) gpio.Duty {
	return gpio.Duty(float64(gpio.DutyMax) * float64(ratio))
}

func (f *Frontend) carrierOn(freq, duty float32) error {
	if err := f.carrier.PWM(toDuty(duty), toFrequency(freq)); err != nil {
		return lfrfid.NewFrontendError("carrier on", f.carrier.Name(), err, lfrfid.ErrorTypePermanent)
	}
	return nil
}

// claim checks the front end is open and idle; caller holds mu
func (f *Frontend) claim() error {
	if f.closed {
		return lfrfid.ErrFrontendClosed
	}
	if f.capture != nil || f.emulate != nil || f.writing {
		return lfrfid.ErrFrontendBusy
	}
	return nil
}

// lockTiming pins the calling goroutine to its thread and raises the thread priority
func (f *Frontend) lockTiming() {
	runtime.LockOSThread()
	if err := setThreadPriority(f.cfg.Nice); err != nil {
		lfrfid.Debugf("gpio: priority %d: %v", f.cfg.Nice, err)
	}
}

// waitUntil sleeps most of the way to deadline and spins the rest
func (f *Frontend) waitUntil(deadline time.Duration) {
	const spin = 200 * time.Microsecond
	if remaining := deadline - f.now(); remaining > spin {
		time.Sleep(remaining - spin)
	}
	for f.now() < deadline {
	}
}

// StartCapture starts the carrier and timestamps comparator edges
func (f *Frontend) StartCapture(cfg lfrfid.CaptureConfig, sink lfrfid.EdgeSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.claim(); err != nil {
		return err
	}

	if err := f.input.In(gpio.PullNoChange, gpio.BothEdges); err != nil {
		return lfrfid.NewFrontendError("start capture", f.input.Name(), err, lfrfid.ErrorTypePermanent)
	}
	if err := f.carrierOn(cfg.Frequency, cfg.DutyCycle); err != nil {
		_ = f.idle()
		return err
	}

	s := newSession()
	f.capture = s
	go f.runCapture(s, sink)
	return nil
}

func (f *Frontend) runCapture(s *session, sink lfrfid.EdgeSink) {
	defer close(s.done)
	f.lockTiming()
	defer runtime.UnlockOSThread()

	last := f.now()
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		if !f.input.WaitForEdge(f.cfg.EdgePoll) {
			continue
		}
		t := f.now()
		level := bool(f.input.Read())
		if f.cfg.InvertInput {
			level = !level
		}
		// the edge ends the run at the opposite level
		elapsed := (t - last) / time.Microsecond
		last = t
		if elapsed <= 0 {
			continue
		}
		select {
		case <-s.quit:
			return
		default:
		}
		sink(lfrfid.LevelDuration{Level: !level, Duration: uint32(elapsed)})
	}
}

// StopCapture stops the carrier; no sink call happens after it returns
func (f *Frontend) StopCapture() error {
	f.mu.Lock()
	s := f.capture
	f.mu.Unlock()
	if s == nil {
		return nil
	}
	s.end()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.capture = nil
	return f.idle()
}

// StartEmulate plays buf on the modulation pin in a loop
func (f *Frontend) StartEmulate(cfg lfrfid.EmulateConfig, buf []lfrfid.Pulse, onHalf lfrfid.HalfFunc) error {
	if len(buf) < 2 || len(buf)%2 != 0 {
		return fmt.Errorf("emulation buffer of %d pulses: %w", len(buf), lfrfid.ErrDataSize)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.claim(); err != nil {
		return err
	}
	lfrfid.Debugf("gpio: emulating %d pulses at %.0f Hz", len(buf), cfg.Frequency)

	s := newSession()
	f.emulate = s
	go f.runEmulate(s, buf, onHalf)
	return nil
}

func (f *Frontend) runEmulate(s *session, buf []lfrfid.Pulse, onHalf lfrfid.HalfFunc) {
	defer close(s.done)
	f.lockTiming()
	defer runtime.UnlockOSThread()

	half := len(buf) / 2
	t := f.now()
	for i := 0; ; i = (i + 1) % len(buf) {
		select {
		case <-s.quit:
			_ = f.modulation.Out(gpio.Low)
			return
		default:
		}

		p := buf[i]
		_ = f.modulation.Out(gpio.High)
		f.waitUntil(t + time.Duration(p.Pulse)*time.Microsecond)
		_ = f.modulation.Out(gpio.Low)
		t += time.Duration(p.Duration) * time.Microsecond
		f.waitUntil(t)

		switch i {
		case half - 1:
			onHalf(lfrfid.HalfTransfer)
		case len(buf) - 1:
			onHalf(lfrfid.TransferComplete)
		}
	}
}

// StopEmulate stops playback; no half callback happens after it returns
func (f *Frontend) StopEmulate() error {
	f.mu.Lock()
	s := f.emulate
	f.mu.Unlock()
	if s == nil {
		return nil
	}
	s.end()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.emulate = nil
	return f.idle()
}

// WriteT5577 keys the carrier through the downlink program of req
func (f *Frontend) WriteT5577(ctx context.Context, req *t5577.Request) error {
	f.mu.Lock()
	if err := f.claim(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.writing = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.writing = false
		f.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	steps := t5577.Program(req)
	errc := make(chan error, 1)
	go func() {
		f.lockTiming()
		defer runtime.UnlockOSThread()
		errc <- f.playDownlink(ctx, steps)
	}()
	err := <-errc
	if offErr := f.carrier.Out(gpio.Low); err == nil && offErr != nil {
		err = lfrfid.NewFrontendError("carrier off", f.carrier.Name(), offErr, lfrfid.ErrorTypePermanent)
	}
	return err
}

// playDownlink switches the carrier only when a step changes its state
func (f *Frontend) playDownlink(ctx context.Context, steps []t5577.Step) error {
	t := f.now()
	on := false
	for i, s := range steps {
		if i == 0 || s.CarrierOn != on {
			on = s.CarrierOn
			var err error
			if on {
				err = f.carrierOn(lfrfid.CarrierFrequency, 0.5)
			} else {
				err = f.carrier.Out(gpio.Low)
			}
			if err != nil {
				return err
			}
		}
		t += time.Duration(lfrfid.ClocksToUs(s.Clocks)) * time.Microsecond
		f.waitUntil(t)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close stops any activity and releases the pins
func (f *Frontend) Close() error {
	_ = f.StopCapture()
	_ = f.StopEmulate()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if err := f.idle(); err != nil {
		return err
	}
	if err := f.carrier.Halt(); err != nil {
		return lfrfid.NewFrontendError("close", f.carrier.Name(), err, lfrfid.ErrorTypePermanent)
	}
	return nil
}
