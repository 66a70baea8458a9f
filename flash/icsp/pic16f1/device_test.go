//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package pic16f1

import (
	"bytes"
	"testing"

	"github.com/juju/errors"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/mongoose-os/lvp/flash/icsp"
	"github.com/mongoose-os/lvp/flash/icsp/icsptest"
)

type fixture struct {
	bus *icsptest.Bus
	spy *icsptest.Transport
	tgt *target
	dev *Device
	eng *icsp.Engine
}

func newFixture() *fixture {
	f := &fixture{bus: icsptest.NewBus(), tgt: newTarget()}
	f.spy = &icsptest.Transport{Target: f.tgt}
	f.dev = NewDevice(f.bus.Port(), f.spy)
	f.eng = icsp.NewEngine(f.dev)
	return f
}

func pattern(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return data
}

func TestProgramSingleRow(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.eng.PackRow(0, pattern(64, 1)))
	require.NoError(t, f.eng.ProgramLastRow())

	assert.Equal(t, 1, f.spy.Followed(cmdLoadAddress, 0))
	assert.Equal(t, 31, f.spy.Commands(cmdLatchDataInc))
	assert.Equal(t, 1, f.spy.Commands(cmdLatchData))
	assert.Equal(t, 1, f.spy.Commands(cmdBeginProg))
	assert.Equal(t, 1, f.spy.Commands(cmdBulkErase))
	assert.Equal(t, 1, f.spy.Followed(cmdLoadAddress, configAddress))
	assert.Equal(t, []uint8("MCHP"), f.tgt.key)
	assert.False(t, f.eng.InProgress())
	assert.Equal(t, icsp.Stats{Rows: 1}, f.eng.Stats())
}

func TestBlankRowsAreNotWritten(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.eng.PackRow(0x100, bytes.Repeat([]byte{0xff}, 64)))
	require.NoError(t, f.eng.ProgramLastRow())

	assert.Empty(t, f.spy.Ops)
	assert.Equal(t, 0, f.tgt.erases)
	assert.False(t, f.eng.InProgress())
	assert.Equal(t, icsp.Stats{BlankRows: 1}, f.eng.Stats())
}

func TestRowBoundarySplit(t *testing.T) {
	f := newFixture()
	// Bytes 60..67 cover the last two words of row 0 and the first two of row 1.
	require.NoError(t, f.eng.PackRow(60, pattern(8, 0x10)))
	require.NoError(t, f.eng.ProgramLastRow())

	assert.Equal(t, 2, f.spy.Commands(cmdBeginProg))
	assert.Equal(t, 1, f.spy.Followed(cmdLoadAddress, 0))
	assert.Equal(t, 1, f.spy.Followed(cmdLoadAddress, 32))
	assert.Equal(t, uint16(0x1110), f.tgt.mem[30])
	assert.Equal(t, uint16(0x1312), f.tgt.mem[31])
	assert.Equal(t, uint16(0x1514), f.tgt.mem[32])
	assert.Equal(t, uint16(0x1716), f.tgt.mem[33])
	assert.Equal(t, 1, f.tgt.erases)
}

func TestOddLengthPadding(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.eng.PackRow(4, []byte{0x34, 0x12, 0x56}))
	require.NoError(t, f.eng.ProgramLastRow())

	assert.Equal(t, uint16(0x1234), f.tgt.mem[2])
	assert.Equal(t, uint16(0x3f56), f.tgt.mem[3])
	assert.Equal(t, uint16(0x3fff), f.tgt.mem[4])
}

func TestConfigRow(t *testing.T) {
	f := newFixture()
	cfg := []byte{0x8c, 0x3f, 0x1f, 0x3f, 0x3f, 0x3f, 0x9f, 0x3f, 0x01, 0x00}
	require.NoError(t, f.eng.PackRow(configFirst*2, cfg))
	require.NoError(t, f.eng.ProgramLastRow())

	assert.Equal(t, 1, f.spy.Followed(cmdLoadAddress, configFirst))
	assert.Equal(t, configCount, f.spy.Commands(cmdBeginProg))
	assert.Equal(t, 0, f.spy.Commands(cmdLatchDataInc))
	for i, want := range []uint16{0x3f8c, 0x3f1f, 0x3f3f, 0x3f9f, 0x0001} {
		assert.Equalf(t, want, f.tgt.mem[configFirst+uint32(i)], "config word %d", i)
	}
	assert.Equal(t, icsp.Stats{ConfigRows: 1}, f.eng.Stats())
}

func TestDataEERowSkipsErasedWords(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.eng.PackRow(dataEEAddress*2, []byte{0x42, 0x00, 0xff, 0xff, 0x17, 0x00}))
	require.NoError(t, f.eng.ProgramLastRow())

	assert.Equal(t, 2, f.spy.Commands(cmdBeginProg))
	// One increment per programmed word, one per skipped word.
	assert.Equal(t, Profile.RowSize, f.spy.Commands(cmdIncAddress))
	assert.Equal(t, uint16(0x42), f.tgt.mem[dataEEAddress])
	assert.Equal(t, uint16(0x17), f.tgt.mem[dataEEAddress+2])
	_, ok := f.tgt.mem[dataEEAddress+1]
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture()
	data := pattern(80, 0x20)
	require.NoError(t, f.eng.PackRow(0x20, data[:30]))
	require.NoError(t, f.eng.PackRow(0x20+30, data[30:]))
	require.NoError(t, f.eng.ProgramLastRow())
	require.Equal(t, 1, f.tgt.erases)

	words, err := f.eng.ReadWords(0x10, len(data)/2)
	require.NoError(t, err)
	for i, w := range words {
		want := (uint32(data[2*i]) | uint32(data[2*i+1])<<8) & 0x3fff
		assert.Equalf(t, want, w, "word 0x%04x", 0x10+i)
	}
	assert.False(t, f.eng.InProgress())
}

func TestEraseOnly(t *testing.T) {
	f := newFixture()
	f.tgt.mem[0] = 0x1234
	require.NoError(t, f.eng.Erase())
	assert.Equal(t, 1, f.tgt.erases)
	_, ok := f.tgt.mem[0]
	assert.False(t, ok)
	assert.False(t, f.eng.InProgress())
}

func TestInfo(t *testing.T) {
	f := newFixture()
	for i := uint32(0); i < configCount; i++ {
		f.tgt.mem[configFirst+i] = uint16(0x3f00 + i)
	}
	for i := uint32(0); i < 8; i++ {
		f.tgt.mem[dataEEAddress+8+i] = uint16(0xa0 + i)
	}
	expected := []string{
		"\nDevice ID: 306C \n\nRev ID   : 2002 \n\nFlash    : 16KB\n",
		"\nConfiguration:\n3F00 3F01 3F02 3F03 3F04 \n\nData EE  : 256B\n",
		"\n0000:3FFF 3FFF 3FFF 3FFF 3FFF 3FFF 3FFF 3FFF ",
		"\n0008:00A0 00A1 00A2 00A3 00A4 00A5 00A6 00A7 ",
	}
	require.Equal(t, 7, f.eng.InfoSegments())
	require.Equal(t, 7*icsp.InfoSegmentSize, f.eng.InfoSize())

	buf := make([]byte, icsp.InfoSegmentSize)
	for seg := 0; seg < f.eng.InfoSegments(); seg++ {
		require.NoError(t, f.eng.GetInfo(buf, seg), "segment %d", seg)
		if seg < len(expected) {
			want := expected[seg] + string(bytes.Repeat([]byte{' '}, icsp.InfoSegmentSize-len(expected[seg])))
			if got := string(buf); got != want {
				dmp := diffmatchpatch.New()
				t.Errorf("segment %d mismatch:\n%s", seg, dmp.DiffPrettyText(dmp.DiffMain(want, got, false)))
			}
		}
		if seg < f.eng.InfoSegments()-1 {
			assert.True(t, f.eng.InProgress(), "segment %d", seg)
		}
	}
	assert.False(t, f.eng.InProgress())
	assert.Equal(t, 0, f.tgt.erases)
}

func TestInfoOutOfOrder(t *testing.T) {
	f := newFixture()
	buf := make([]byte, icsp.InfoSegmentSize)
	assert.Error(t, f.eng.GetInfo(buf, 1))
	assert.False(t, f.eng.InProgress())
	assert.Empty(t, f.spy.Ops)

	require.NoError(t, f.eng.GetInfo(buf, 0))
	assert.Error(t, f.eng.GetInfo(buf, 2))
	assert.False(t, f.eng.InProgress())
	assert.Error(t, f.eng.GetInfo(buf[:10], 0))
}

func TestInfoDuringProgramming(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.eng.PackRow(0, pattern(64, 1)))
	require.True(t, f.eng.InProgress())
	buf := make([]byte, icsp.InfoSegmentSize)
	assert.Error(t, f.eng.GetInfo(buf, 0))
	require.NoError(t, f.eng.ProgramLastRow())
}

func TestPinErrorEndsSession(t *testing.T) {
	for _, stuck := range []bool{false, true} {
		f := newFixture()
		require.NoError(t, f.eng.PackRow(0, pattern(64, 1)))
		require.True(t, f.eng.InProgress())
		f.bus.Clock.Err = errors.New("gpio glitch")
		require.Error(t, f.eng.PackRow(0x40, pattern(64, 2)))
		if !stuck {
			f.bus.Clock.Err = nil
		}
		err := f.eng.ProgramLastRow()
		require.Error(t, err, "stuck=%t", stuck)
		assert.Equal(t, "gpio glitch", errors.Cause(err).Error())
		assert.False(t, f.eng.InProgress(), "stuck=%t", stuck)
		assert.Equal(t, gpio.High, f.bus.Reset.L, "stuck=%t", stuck)
	}
}

func TestDataWidths(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.eng.PackRow(0, pattern(64, 1)))
	require.NoError(t, f.eng.ProgramLastRow())

	for i, op := range f.spy.Ops {
		if op.Kind != "data" {
			continue
		}
		require.True(t, i > 0 && f.spy.Ops[i-1].Kind == "cmd", "op %d", i)
		want := wordBits
		if f.spy.Ops[i-1].Value == cmdLoadAddress {
			want = addressBits
		}
		assert.Equal(t, want, op.Width, "op %d", i)
	}
}
