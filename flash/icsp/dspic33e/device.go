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

// Package dspic33e programs dsPIC33EP devices by injecting instructions
// into the target core over the ICSP link.
package dspic33e

import (
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/lvp/flash/icsp"
)

const (
	key1 = 0x4d43
	key2 = 0x4851

	entryClocks = 5
	visiIdle    = 8
)

// Profile is the dsPIC33EP device profile. Addresses are program counter
// values: every instruction takes two 16-bit words and two addresses.
var Profile = icsp.Profile{
	Name:         "dspic33ep",
	RowSize:      64,
	WriteAlign:   4,
	WordsPerRead: 2,

	ConfigAddress: 0x0057ec,
	ConfigEnd:     0x005800,
	ConfigFirst:   0x0057ec,
	ConfigCount:   10,
	AddrStep:      2,

	DeviceIDAddress:   0xff0000,
	RevisionIDAddress: 0xff0002,

	WriteTime:     1 * time.Millisecond,
	ConfigTime:    1 * time.Millisecond,
	BulkEraseTime: 30 * time.Millisecond,

	InfoSegments: 7,
	FlashSize:    "128KB",
	DumpAddress:  0,
	DumpMask:     0xffff,
}

// Device is the dsPIC33EP control sequencer.
type Device struct {
	p      *icsp.Port
	t      icsp.Transport
	active bool
}

func New(p *icsp.Port) *Device {
	return NewDevice(p, NewTransport(p))
}

func NewDevice(p *icsp.Port, t icsp.Transport) *Device {
	return &Device{p: p, t: t}
}

func (d *Device) Profile() *icsp.Profile {
	return &Profile
}

func (d *Device) Enter() error {
	p := d.p
	p.Busy(true)
	p.Init()
	p.ResetRun()
	p.ResetHold()
	p.Delay.Millis(1)
	p.ResetRun()
	p.Delay.Micros(250)
	p.ResetHold()
	p.Delay.Millis(1)
	if err := p.Err(); err != nil {
		return errors.Trace(err)
	}
	for _, k := range []uint32{key1, key2} {
		if err := d.t.SendData(k, keyBits); err != nil {
			return errors.Trace(err)
		}
	}
	p.Delay.Micros(1)
	p.ResetRun()
	p.Delay.Millis(55)
	if err := d.t.Clock(entryClocks); err != nil {
		return errors.Trace(err)
	}
	d.active = true
	glog.V(1).Infof("%s: in programming mode", Profile.Name)
	return nil
}

func (d *Device) Exit() error {
	p := d.p
	p.ResetHold()
	p.Delay.Millis(1)
	p.Release()
	d.active = false
	p.Busy(false)
	return errors.Trace(p.Err())
}

func (d *Device) InProgress() bool {
	return d.active
}

func (d *Device) BulkErase() error {
	err := d.exec(
		resetPC,
		[]uint32{movLit(nvmEraseChip, regW10), movW10NVMCON, nop, nop},
		unlockWrite,
	)
	if err != nil {
		return errors.Trace(err)
	}
	d.p.Wait(Profile.BulkEraseTime)
	return nil
}

// Prepare writes the default FBOOT value and the partition signature: the
// first double word of the first row, at address 0.
func (d *Device) Prepare(first []uint16) error {
	if err := d.writeFBOOT(fbootDefault); err != nil {
		return errors.Annotatef(err, "FBOOT")
	}
	if len(first) < 4 {
		return errors.NotValidf("row of %d words", len(first))
	}
	return errors.Annotatef(d.writeDoubles(0, first[:4], false, Profile.WriteTime), "partition signature")
}

func (d *Device) WriteRow(addr uint32, words []uint16) error {
	return errors.Trace(d.writeDoubles(addr, words, false, Profile.WriteTime))
}

// WriteConfig programs the row a double word at a time, leaving erased
// double words alone.
func (d *Device) WriteConfig(addr uint32, words []uint16) error {
	return errors.Trace(d.writeDoubles(addr, words, true, Profile.ConfigTime))
}

func (d *Device) ReadWord(addr uint32) (uint32, error) {
	err := d.exec(
		resetPC,
		[]uint32{
			movLit(addr>>16, regW0),
			movLit(visiAddress, regW7),
			movW0TBLPAG,
			movLit(addr, regW6),
			nop,
			tblrdhW6W7,
		},
		fiveNOP,
	)
	if err != nil {
		return 0, errors.Trace(err)
	}
	hi, err := d.readVISI()
	if err != nil {
		return 0, errors.Trace(err)
	}
	if err := d.exec([]uint32{nop, tblrdlW6W7}, fiveNOP); err != nil {
		return 0, errors.Trace(err)
	}
	lo, err := d.readVISI()
	if err != nil {
		return 0, errors.Trace(err)
	}
	return hi<<16 | lo, nil
}

// writeDoubles programs words, four at a time, starting at addr. A trailing
// partial double word is dropped.
func (d *Device) writeDoubles(addr uint32, words []uint16, skipBlank bool, wait time.Duration) error {
	n := len(words) &^ 3
	if err := d.exec(resetPC, setLatchPage); err != nil {
		return errors.Trace(err)
	}
	for i := 0; i < n; i, addr = i+4, addr+4 {
		w := words[i : i+4]
		if skipBlank && w[0]&w[1]&w[2]&w[3] == 0xffff {
			continue
		}
		err := d.exec(
			[]uint32{
				movLit(uint32(w[0]), regW0),
				movLit(uint32(w[1]), regW1),
				movLit(uint32(w[2]), regW2),
				movLit(uint32(w[3]), regW3),
			},
			latchDouble,
			[]uint32{
				movLit(addr, regW4),
				movLit(addr>>16, regW5),
				movW4NVMADR,
				movW5NVMADRU,
				movLit(nvmWriteDouble, regW10),
				nop,
				movW10NVMCON,
				nop, nop,
			},
			unlockWrite,
		)
		if err != nil {
			return errors.Annotatef(err, "0x%06x", addr)
		}
		d.p.Wait(wait)
		if err := d.exec(resetPC); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *Device) writeFBOOT(v uint32) error {
	err := d.exec(
		resetPC,
		setLatchPage,
		[]uint32{
			movLit(v, regW0),
			movLit(v>>16, regW1),
			clrW6, nop,
			tblwtlW0, nop, nop,
			tblwthW1, nop, nop,
		},
		fbootCommand,
		[]uint32{nop, nop},
		unlockWrite,
	)
	if err != nil {
		return errors.Trace(err)
	}
	d.p.Wait(Profile.ConfigTime)
	return errors.Trace(d.exec(resetPC))
}

// exec runs instructions on the target, one SIX control code each.
func (d *Device) exec(seqs ...[]uint32) error {
	for _, seq := range seqs {
		for _, ins := range seq {
			if err := d.t.SendCommand(six); err != nil {
				return errors.Trace(err)
			}
			if err := d.t.SendData(ins, instructionBits); err != nil {
				return errors.Annotatef(err, "instruction 0x%06x", ins)
			}
		}
	}
	return nil
}

// readVISI shifts out the target's VISI register.
func (d *Device) readVISI() (uint32, error) {
	if err := d.t.SendCommand(regout); err != nil {
		return 0, errors.Trace(err)
	}
	if err := d.t.Clock(visiIdle); err != nil {
		return 0, errors.Trace(err)
	}
	w, err := d.t.ReadData(visiBits)
	return w, errors.Trace(err)
}
