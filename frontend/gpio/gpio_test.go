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

package gpio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/t5577"
)

// recPin logs every output change of a test pin
type recPin struct {
	*gpiotest.Pin
	events []string
	mu     sync.Mutex
}

func newRecPin(name string) *recPin {
	return &recPin{Pin: &gpiotest.Pin{N: name}}
}

func (p *recPin) Out(l gpio.Level) error {
	p.mu.Lock()
	p.events = append(p.events, l.String())
	p.mu.Unlock()
	return p.Pin.Out(l)
}

func (p *recPin) PWM(duty gpio.Duty, f physic.Frequency) error {
	p.mu.Lock()
	p.events = append(p.events, "PWM "+duty.String()+" "+f.String())
	p.mu.Unlock()
	return p.Pin.PWM(duty, f)
}

func (p *recPin) log() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recPin) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// scriptedClock returns the given instants one per call, then repeats the last
type scriptedClock struct {
	times []time.Duration
	mu    sync.Mutex
}

func (c *scriptedClock) now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t
}

type rig struct {
	fe         *Frontend
	input      *gpiotest.Pin
	carrier    *recPin
	modulation *recPin
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	r := &rig{
		input:      &gpiotest.Pin{N: "IN", EdgesChan: make(chan gpio.Level)},
		carrier:    newRecPin("CARRIER"),
		modulation: newRecPin("MOD"),
	}
	fe, err := NewWithPins(r.input, r.carrier, r.modulation, cfg)
	require.NoError(t, err)
	r.fe = fe
	r.carrier.reset()
	r.modulation.reset()
	t.Cleanup(func() { _ = fe.Close() })
	return r
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EdgePoll = time.Millisecond
	cfg.Nice = 0
	return cfg
}

type edgeLog struct {
	edges []lfrfid.LevelDuration
	mu    sync.Mutex
}

func (l *edgeLog) sink(ld lfrfid.LevelDuration) {
	l.mu.Lock()
	l.edges = append(l.edges, ld)
	l.mu.Unlock()
}

func (l *edgeLog) snapshot() []lfrfid.LevelDuration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]lfrfid.LevelDuration(nil), l.edges...)
}

func TestCaptureTimestampsEdges(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		want   []lfrfid.LevelDuration
		invert bool
	}{
		{
			name: "direct",
			want: []lfrfid.LevelDuration{
				{Level: false, Duration: 256},
				{Level: true, Duration: 512},
				{Level: false, Duration: 256},
			},
		},
		{
			name:   "inverted",
			invert: true,
			want: []lfrfid.LevelDuration{
				{Level: true, Duration: 256},
				{Level: false, Duration: 512},
				{Level: true, Duration: 256},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.InvertInput = tt.invert
			r := newRig(t, cfg)
			clock := &scriptedClock{times: []time.Duration{
				0,
				256 * time.Microsecond,
				768 * time.Microsecond,
				1024 * time.Microsecond,
			}}
			r.fe.now = clock.now

			var log edgeLog
			require.NoError(t, r.fe.StartCapture(lfrfid.ASKCapture(), log.sink))
			for _, l := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
				r.input.EdgesChan <- l
			}
			require.Eventually(t, func() bool { return len(log.snapshot()) == 3 }, time.Second, time.Millisecond)
			require.NoError(t, r.fe.StopCapture())

			assert.Equal(t, tt.want, log.snapshot())
		})
	}
}

func TestCaptureDrivesCarrier(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	require.NoError(t, r.fe.StartCapture(lfrfid.PSKCapture(), func(lfrfid.LevelDuration) {}))
	require.NoError(t, r.fe.StopCapture())

	events := r.carrier.log()
	require.Len(t, events, 2)
	assert.Equal(t, "PWM "+toDuty(0.25).String()+" "+toFrequency(lfrfid.CarrierFrequency).String(), events[0])
	assert.Equal(t, gpio.Low.String(), events[1])
	assert.Equal(t, 125*physic.KiloHertz, toFrequency(lfrfid.CarrierFrequency))
	assert.Equal(t, gpio.DutyHalf, toDuty(0.5))
}

func TestEmulateLoopsBuffer(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	buf := []lfrfid.Pulse{
		{Duration: 40, Pulse: 20},
		{Duration: 40, Pulse: 20},
		{Duration: 60, Pulse: 30},
		{Duration: 60, Pulse: 30},
	}

	var mu sync.Mutex
	var halves []lfrfid.Half
	onHalf := func(h lfrfid.Half) {
		mu.Lock()
		halves = append(halves, h)
		mu.Unlock()
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(halves)
	}

	require.NoError(t, r.fe.StartEmulate(lfrfid.DefaultEmulateConfig(), buf, onHalf))
	require.Eventually(t, func() bool { return count() >= 4 }, time.Second, time.Millisecond)
	require.NoError(t, r.fe.StopEmulate())
	stopped := count()

	mu.Lock()
	for i, h := range halves {
		assert.Equal(t, lfrfid.Half(i%2), h)
	}
	mu.Unlock()

	events := r.modulation.log()
	require.GreaterOrEqual(t, len(events), 16)
	for i := 0; i < 16; i++ {
		want := gpio.High
		if i%2 == 1 {
			want = gpio.Low
		}
		assert.Equal(t, want.String(), events[i])
	}
	assert.Equal(t, gpio.Low.String(), events[len(events)-1])

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, stopped, count())
}

func TestStartEmulateRejectsBadBuffer(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	err := r.fe.StartEmulate(lfrfid.DefaultEmulateConfig(), make([]lfrfid.Pulse, 3), func(lfrfid.Half) {})
	assert.ErrorIs(t, err, lfrfid.ErrDataSize)
}

func TestWriteT5577KeysCarrier(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	req := &t5577.Request{BlockCount: 1}
	req.Blocks[0] = t5577.ModulationManchester | t5577.BitrateRF64

	require.NoError(t, r.fe.WriteT5577(context.Background(), req))

	var want []string
	pwm := "PWM " + gpio.DutyHalf.String() + " " + toFrequency(lfrfid.CarrierFrequency).String()
	on := false
	for i, s := range t5577.Program(req) {
		if i > 0 && s.CarrierOn == on {
			continue
		}
		on = s.CarrierOn
		if on {
			want = append(want, pwm)
		} else {
			want = append(want, gpio.Low.String())
		}
	}
	want = append(want, gpio.Low.String())
	assert.Equal(t, want, r.carrier.log())
}

func TestWriteT5577HonorsContext(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.fe.WriteT5577(ctx, &t5577.Request{BlockCount: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.carrier.log())
}

func TestBusyAndClosed(t *testing.T) {
	t.Parallel()

	r := newRig(t, testConfig())
	require.NoError(t, r.fe.StartCapture(lfrfid.ASKCapture(), func(lfrfid.LevelDuration) {}))
	assert.ErrorIs(t, r.fe.StartCapture(lfrfid.ASKCapture(), func(lfrfid.LevelDuration) {}), lfrfid.ErrFrontendBusy)
	assert.ErrorIs(t, r.fe.StartEmulate(lfrfid.DefaultEmulateConfig(), make([]lfrfid.Pulse, 2), func(lfrfid.Half) {}), lfrfid.ErrFrontendBusy)
	assert.ErrorIs(t, r.fe.WriteT5577(context.Background(), &t5577.Request{}), lfrfid.ErrFrontendBusy)

	require.NoError(t, r.fe.Close())
	require.NoError(t, r.fe.Close())
	assert.ErrorIs(t, r.fe.StartCapture(lfrfid.ASKCapture(), func(lfrfid.LevelDuration) {}), lfrfid.ErrFrontendClosed)
	assert.Equal(t, lfrfid.FrontendGPIO, r.fe.Type())
}
