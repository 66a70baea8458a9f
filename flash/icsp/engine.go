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
package icsp

import (
	"github.com/golang/glog"
	"github.com/juju/errors"
)

const erased = 0xffff

// Stats counts the rows committed during the engine's lifetime.
type Stats struct {
	Rows       int
	ConfigRows int
	BlankRows  int
}

// Engine packs a stream of hex data into device rows and commits each row to
// the Device when the stream moves past it.
//
// The first non-blank row of a session enters programming mode and bulk
// erases the device. Blank rows are never written. ProgramLastRow flushes the
// pending row and leaves programming mode.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	dev  Device
	prof *Profile

	row     []uint16
	rowAddr uint32
	rowSet  bool
	dirty   bool

	info  infoState
	stats Stats
}

func NewEngine(dev Device) *Engine {
	p := dev.Profile()
	e := &Engine{
		dev:  dev,
		prof: p,
		row:  make([]uint16, p.RowSize),
	}
	e.clearRow()
	return e
}

func (e *Engine) Profile() *Profile {
	return e.prof
}

func (e *Engine) Stats() Stats {
	return e.stats
}

// InProgress reports whether the target is in programming mode.
func (e *Engine) InProgress() bool {
	return e.dev.InProgress()
}

// PackRow stores data, which starts at hex byte address addr, in the row
// buffer. The length is rounded up to the profile's write granularity with
// 0xff. Whenever the data moves to another row, the buffered one is
// committed first.
func (e *Engine) PackRow(addr uint32, data []byte) error {
	if e.info.open {
		return errors.Errorf("device info readout in progress")
	}
	n := len(data)
	if a := e.prof.WriteAlign; a > 1 {
		n = (n + a - 1) / a * a
	}
	if n == 0 {
		return nil
	}
	rowBytes := e.prof.RowBytes()
	rowAddr := addr / rowBytes * uint32(e.prof.RowSize)
	if e.rowSet && rowAddr != e.rowAddr {
		if err := e.commitRow(); err != nil {
			return errors.Trace(err)
		}
	}
	e.rowAddr, e.rowSet = rowAddr, true

	idx := int(addr % rowBytes / 2)
	for i := 0; i < n; i += 2 {
		e.row[idx] = uint16(byteAt(data, i)) | uint16(byteAt(data, i+1))<<8
		e.dirty = true
		idx++
		if idx == e.prof.RowSize {
			if err := e.commitRow(); err != nil {
				return errors.Trace(err)
			}
			e.rowAddr += uint32(e.prof.RowSize)
			idx = 0
		}
	}
	return nil
}

func byteAt(data []byte, i int) byte {
	if i < len(data) {
		return data[i]
	}
	return 0xff
}

// ProgramLastRow commits the pending row and leaves programming mode. The
// engine is idle afterwards even if the commit fails.
func (e *Engine) ProgramLastRow() error {
	err := e.commitRow()
	if xerr := e.exit(); err == nil {
		err = xerr
	}
	return errors.Trace(err)
}

// Erase bulk erases the device in a session of its own.
func (e *Engine) Erase() error {
	if e.dev.InProgress() {
		return errors.Errorf("programming session in progress")
	}
	if err := e.dev.Enter(); err != nil {
		e.exit()
		return errors.Annotatef(err, "failed to enter programming mode")
	}
	err := e.dev.BulkErase()
	if xerr := e.exit(); err == nil {
		err = xerr
	}
	return errors.Trace(err)
}

// ReadWord reads one word in the current session.
func (e *Engine) ReadWord(addr uint32) (uint32, error) {
	if !e.dev.InProgress() {
		return 0, errors.Errorf("not in programming mode")
	}
	w, err := e.dev.ReadWord(addr)
	return w, errors.Trace(err)
}

// ReadWords reads n consecutive words starting at addr. If no session is
// active, one is opened for the duration of the call. Device memory is not
// erased.
func (e *Engine) ReadWords(addr uint32, n int) ([]uint32, error) {
	if e.info.open {
		return nil, errors.Errorf("device info readout in progress")
	}
	if !e.dev.InProgress() {
		if err := e.dev.Enter(); err != nil {
			e.exit()
			return nil, errors.Annotatef(err, "failed to enter programming mode")
		}
		defer e.exit()
	}
	res := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		w, err := e.dev.ReadWord(addr)
		if err != nil {
			return nil, errors.Annotatef(err, "read 0x%06x", addr)
		}
		res = append(res, w)
		addr += e.prof.AddrStep
	}
	return res, nil
}

func (e *Engine) commitRow() error {
	if !e.dirty {
		return nil
	}
	if isBlank(e.row) {
		glog.V(2).Infof("row 0x%06x is blank", e.rowAddr)
		e.stats.BlankRows++
		e.dirty = false
		return nil
	}
	defer e.clearRow()
	if !e.dev.InProgress() {
		if err := e.begin(); err != nil {
			return errors.Trace(err)
		}
	}
	if e.prof.InConfig(e.rowAddr) {
		glog.V(1).Infof("writing config row 0x%06x", e.rowAddr)
		if err := e.dev.WriteConfig(e.rowAddr, e.row); err != nil {
			return errors.Annotatef(err, "config row 0x%06x", e.rowAddr)
		}
		e.stats.ConfigRows++
		return nil
	}
	glog.V(2).Infof("writing row 0x%06x", e.rowAddr)
	if err := e.dev.WriteRow(e.rowAddr, e.row); err != nil {
		return errors.Annotatef(err, "row 0x%06x", e.rowAddr)
	}
	e.stats.Rows++
	return nil
}

func (e *Engine) begin() error {
	glog.V(1).Infof("%s: entering programming mode", e.prof.Name)
	if err := e.dev.Enter(); err != nil {
		return errors.Annotatef(err, "failed to enter programming mode")
	}
	if err := e.dev.BulkErase(); err != nil {
		return errors.Annotatef(err, "bulk erase failed")
	}
	if err := e.dev.Prepare(e.row); err != nil {
		return errors.Annotatef(err, "failed to prepare device")
	}
	return nil
}

func (e *Engine) exit() error {
	e.rowSet = false
	e.clearRow()
	glog.V(1).Infof("%s: leaving programming mode", e.prof.Name)
	return errors.Trace(e.dev.Exit())
}

func (e *Engine) clearRow() {
	for i := range e.row {
		e.row[i] = erased
	}
	e.dirty = false
}

func isBlank(row []uint16) bool {
	w := uint16(erased)
	for _, v := range row {
		w &= v
	}
	return w == erased
}
