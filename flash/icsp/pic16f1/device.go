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

// Package pic16f1 drives the low-voltage programming mode of the PIC16F188xx
// family: 8-bit commands followed by 24-bit data frames.
package pic16f1

import (
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/lvp/flash/icsp"
)

const (
	cmdLoadAddress  = 0x80
	cmdIncAddress   = 0xf8
	cmdLatchData    = 0x00
	cmdLatchDataInc = 0x02
	cmdReadData     = 0xfc
	cmdReadDataInc  = 0xfe
	cmdBeginProg    = 0xe0
	cmdBulkErase    = 0x18
)

const (
	addressBits = 16
	wordBits    = 14
)

const (
	configAddress = 0x8000
	configFirst   = 0x8007
	configCount   = 5
	revIDAddress  = 0x8005
	devIDAddress  = 0x8006
	dataEEAddress = 0xf000
)

// Profile is the PIC16F188xx device profile.
var Profile = icsp.Profile{
	Name:         "pic16f188xx",
	RowSize:      32,
	WriteAlign:   2,
	WordsPerRead: 1,

	ConfigAddress: configAddress,
	ConfigFirst:   configFirst,
	ConfigCount:   configCount,
	AddrStep:      1,

	DeviceIDAddress:   devIDAddress,
	RevisionIDAddress: revIDAddress,

	WriteTime:     3 * time.Millisecond,
	ConfigTime:    6 * time.Millisecond,
	BulkEraseTime: 6 * time.Millisecond,

	InfoSegments: 7,
	FlashSize:    "16KB",
	DataEESize:   "256B",
	DumpAddress:  dataEEAddress,
	DumpMask:     0x0fff,
}

// Key sequence entering programming mode, sent as commands.
var key = []uint8{'M', 'C', 'H', 'P'}

// Device is the PIC16F188xx control sequencer.
type Device struct {
	p      *icsp.Port
	t      icsp.Transport
	active bool
}

// New returns a device talking through the bit-banged transport on p.
func New(p *icsp.Port) *Device {
	return NewDevice(p, NewTransport(p))
}

// NewDevice returns a device which uses p for the reset line, delays and
// status, and t for everything on the serial link.
func NewDevice(p *icsp.Port, t icsp.Transport) *Device {
	return &Device{p: p, t: t}
}

func (d *Device) Profile() *icsp.Profile {
	return &Profile
}

func (d *Device) Enter() error {
	p := d.p
	d.active = true
	p.Busy(true)
	p.Init()
	p.ResetHold()
	p.Delay.Millis(10)
	if err := p.Err(); err != nil {
		return errors.Trace(err)
	}
	for _, c := range key {
		if err := d.t.SendCommand(c); err != nil {
			return errors.Trace(err)
		}
	}
	p.Delay.Millis(5)
	glog.V(1).Infof("%s: in programming mode", Profile.Name)
	return nil
}

func (d *Device) Exit() error {
	d.p.Release()
	d.active = false
	d.p.Busy(false)
	return errors.Trace(d.p.Err())
}

// InProgress is true from Enter until the next Exit, whether or not the
// lines could be driven in between.
func (d *Device) InProgress() bool {
	return d.active
}

func (d *Device) BulkErase() error {
	if err := d.loadAddress(configAddress); err != nil {
		return errors.Trace(err)
	}
	if err := d.t.SendCommand(cmdBulkErase); err != nil {
		return errors.Trace(err)
	}
	d.p.Wait(Profile.BulkEraseTime)
	return nil
}

func (d *Device) Prepare(first []uint16) error {
	return nil
}

// WriteRow latches the row into the write buffer, incrementing the address
// after every word but the last, and programs it.
func (d *Device) WriteRow(addr uint32, words []uint16) error {
	if err := d.loadAddress(addr); err != nil {
		return errors.Trace(err)
	}
	last := len(words) - 1
	for i, w := range words {
		cmd := uint8(cmdLatchDataInc)
		if i == last {
			cmd = cmdLatchData
		}
		if err := d.sendWord(cmd, uint32(w), wordBits); err != nil {
			return errors.Annotatef(err, "word %d", i)
		}
	}
	return errors.Trace(d.program(Profile.WriteTime))
}

// WriteConfig programs the configuration words of the configuration row,
// or any row past it (user data EE) word by word. Erased words in the
// latter are skipped.
func (d *Device) WriteConfig(addr uint32, words []uint16) error {
	if addr == configAddress {
		off := configFirst - configAddress
		return errors.Trace(d.writeWords(configFirst, words[off:off+configCount], false))
	}
	return errors.Trace(d.writeWords(addr, words, true))
}

func (d *Device) writeWords(addr uint32, words []uint16, skipBlank bool) error {
	if err := d.loadAddress(addr); err != nil {
		return errors.Trace(err)
	}
	for i, w := range words {
		if skipBlank && w == 0xffff {
			if err := d.t.SendCommand(cmdIncAddress); err != nil {
				return errors.Trace(err)
			}
			continue
		}
		if err := d.sendWord(cmdLatchData, uint32(w), wordBits); err != nil {
			return errors.Annotatef(err, "word 0x%04x", addr+uint32(i))
		}
		if err := d.program(Profile.ConfigTime); err != nil {
			return errors.Annotatef(err, "word 0x%04x", addr+uint32(i))
		}
	}
	return nil
}

func (d *Device) ReadWord(addr uint32) (uint32, error) {
	if err := d.loadAddress(addr); err != nil {
		return 0, errors.Trace(err)
	}
	if err := d.t.SendCommand(cmdReadData); err != nil {
		return 0, errors.Trace(err)
	}
	w, err := d.t.ReadData(wordBits)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if err := d.t.SendCommand(cmdIncAddress); err != nil {
		return 0, errors.Trace(err)
	}
	return w, nil
}

func (d *Device) loadAddress(addr uint32) error {
	return errors.Trace(d.sendWord(cmdLoadAddress, addr, addressBits))
}

func (d *Device) sendWord(cmd uint8, w uint32, width int) error {
	if err := d.t.SendCommand(cmd); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(d.t.SendData(w, width))
}

// program starts an internally timed write of the latched data, waits for
// it to complete and moves to the next address.
func (d *Device) program(t time.Duration) error {
	if err := d.t.SendCommand(cmdBeginProg); err != nil {
		return errors.Trace(err)
	}
	d.p.Wait(t)
	return errors.Trace(d.t.SendCommand(cmdIncAddress))
}
