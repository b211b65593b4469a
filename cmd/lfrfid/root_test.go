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

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lfrfid "github.com/ZaparooProject/go-lfrfid"
	"github.com/ZaparooProject/go-lfrfid/frontend/loopback"
	"github.com/ZaparooProject/go-lfrfid/hitag"
	"github.com/ZaparooProject/go-lfrfid/keyfile"
	"github.com/ZaparooProject/go-lfrfid/protocols"
	"github.com/ZaparooProject/go-lfrfid/worker"
)

func TestParseReadType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    worker.ReadType
		wantErr bool
	}{
		{in: "", want: worker.ReadAuto},
		{in: "auto", want: worker.ReadAuto},
		{in: "ASK", want: worker.ReadASKOnly},
		{in: "psk", want: worker.ReadPSKOnly},
		{in: "fsk", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseReadType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The front end flags are package globals, so these tests do not run in parallel.
func TestOpenLoopbackFrontend(t *testing.T) {
	dict := protocols.NewDict()
	require.NoError(t, dict.SetData(protocols.EM4100, []byte{0x12, 0x34, 0x56, 0x78, 0x9A}))
	path := filepath.Join(t.TempDir(), "card.rfid")
	require.NoError(t, keyfile.SaveFile(path, dict, protocols.EM4100))

	frontendKind, tagFile = "loopback", path
	t.Cleanup(func() { frontendKind, tagFile = "serial", "" })

	fe, err := openFrontend()
	require.NoError(t, err)
	defer func() { _ = fe.Close() }()
	assert.Equal(t, lfrfid.FrontendLoopback, fe.Type())

	lb, ok := fe.(*loopback.Frontend)
	require.True(t, ok)
	assert.Zero(t, lb.Tag().Writes())
	assert.NotZero(t, lb.Tag().Blocks()[0])
}

func TestOpenUnknownFrontend(t *testing.T) {
	frontendKind = "nfc"
	t.Cleanup(func() { frontendKind = "serial" })

	_, err := openFrontend()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nfc")
}

func TestOpenLoopbackWithHitag(t *testing.T) {
	src := hitag.NewTag()
	src.SetUID(0x0A0B0C0D)
	src.SetPage(1, [hitag.PageBytes]byte{})
	src.SetPage(60, [hitag.PageBytes]byte{1, 2, 3, 4})
	for p := 61; p < hitag.Pages; p++ {
		src.SetPage(p, [hitag.PageBytes]byte{byte(p)})
	}
	path := filepath.Join(t.TempDir(), "hitag.rfid")
	require.NoError(t, hitag.SaveFile(path, src))

	frontendKind, hitagFile = "loopback", path
	t.Cleanup(func() { frontendKind, hitagFile = "serial", "" })

	fe, err := openFrontend()
	require.NoError(t, err)
	defer func() { _ = fe.Close() }()

	tr, ok := fe.(hitag.Transceiver)
	require.True(t, ok)
	got, err := hitag.Read(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0A0B0C0D), got.UID())
	assert.Equal(t, [hitag.PageBytes]byte{1, 2, 3, 4}, got.Data[60])
}

func TestOpenLoopbackMissingHitagDump(t *testing.T) {
	frontendKind, hitagFile = "loopback", filepath.Join(t.TempDir(), "none.rfid")
	t.Cleanup(func() { frontendKind, hitagFile = "serial", "" })

	_, err := openFrontend()
	require.Error(t, err)
}
