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

// Package icsp implements low-voltage in-circuit serial programming of
// Microchip microcontrollers over a three-wire clock/data/reset link.
//
// The package holds what is shared by all supported device families: the
// pin-level Port, the Transport and Device contracts, the device Profile and
// the Engine which packs an arbitrary stream of hex data into device rows and
// drives a Device through a programming session.
package icsp

import (
	"time"
)

// Delayer provides blocking delays with microsecond and millisecond
// granularity. Delays must never be shorter than requested.
type Delayer interface {
	Micros(n int)
	Millis(n int)
}

// SpinDelay busy-waits on the monotonic clock for microsecond delays and
// sleeps for millisecond ones.
type SpinDelay struct{}

func (SpinDelay) Micros(n int) {
	spin(time.Duration(n) * time.Microsecond)
}

func (SpinDelay) Millis(n int) {
	if n <= 0 {
		return
	}
	time.Sleep(time.Duration(n) * time.Millisecond)
}

func spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

// Indicator reflects the session state on the programmer, e.g. with a pair
// of LEDs.
type Indicator interface {
	Busy(on bool)
}

// Transport moves commands and data over the serial link. Word widths are
// in bits; what a width means on the wire is defined by the device family.
type Transport interface {
	SendCommand(code uint8) error
	SendData(word uint32, width int) error
	ReadData(width int) (uint32, error)
	// Clock emits n bare clock pulses with the data line untouched.
	Clock(n int) error
}

// Device is a device family's control sequencer: the command sequences which
// put the target in and out of programming mode, erase it and write rows.
//
// Addresses are device word addresses.
type Device interface {
	Profile() *Profile
	Enter() error
	Exit() error
	InProgress() bool
	BulkErase() error
	// Prepare runs once per session after the bulk erase, before the
	// first row is written. first is the first row about to be committed.
	Prepare(first []uint16) error
	WriteRow(addr uint32, words []uint16) error
	// WriteConfig writes a row which overlaps the configuration region,
	// one word at a time.
	WriteConfig(addr uint32, words []uint16) error
	ReadWord(addr uint32) (uint32, error)
}
