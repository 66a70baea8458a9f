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
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	"periph.io/x/conn/v3/gpio"
)

// Port is the set of target lines driven by the programmer.
//
// Pin errors are sticky: the first error is kept and Err returns it. Every
// later pin operation becomes a no-op, except Release which always tries to
// let go of the target. Transports check Err after each transfer.
type Port struct {
	Clock gpio.PinIO
	Data  gpio.PinIO
	// Reset is the target's nMCLR line.
	Reset gpio.PinIO
	Delay Delayer
	// Status is optional.
	Status Indicator
	// ResetActiveHigh inverts the reset line. By default the target is
	// held in reset while Reset is low.
	ResetActiveHigh bool

	inReset bool
	err     error
}

func (p *Port) Err() error {
	return p.err
}

func (p *Port) check(err error, what string) {
	if err != nil && p.err == nil {
		p.err = errors.Annotatef(err, "%s", what)
	}
}

// Init floats the data line and drives the clock low.
func (p *Port) Init() {
	p.DataIn()
	p.SetClock(gpio.Low)
}

// Release floats both the clock and data lines and lets the target run.
// It is attempted even after a pin error, and the port is no longer
// considered in reset afterwards.
func (p *Port) Release() {
	p.check(p.Data.In(gpio.Float, gpio.NoEdge), "data")
	p.check(p.Clock.In(gpio.Float, gpio.NoEdge), "clock")
	l := gpio.Level(!p.ResetActiveHigh)
	p.check(p.Reset.Out(l), "reset")
	p.inReset = false
	glog.V(4).Infof("reset=%s released", l)
}

// ResetHold drives the reset line to its asserted level.
func (p *Port) ResetHold() {
	p.setReset(true)
}

// ResetRun drives the reset line to its released level.
func (p *Port) ResetRun() {
	p.setReset(false)
}

func (p *Port) setReset(hold bool) {
	if p.err != nil {
		return
	}
	l := gpio.Level(hold == p.ResetActiveHigh)
	p.check(p.Reset.Out(l), "reset")
	if p.err == nil {
		p.inReset = hold
		glog.V(4).Infof("reset=%s hold=%t", l, hold)
	}
}

// InReset reports the last level written to the reset line.
func (p *Port) InReset() bool {
	return p.inReset
}

func (p *Port) SetClock(l gpio.Level) {
	if p.err == nil {
		p.check(p.Clock.Out(l), "clock")
	}
}

// SetData drives the data line, switching it to output if needed.
func (p *Port) SetData(l gpio.Level) {
	if p.err == nil {
		p.check(p.Data.Out(l), "data")
	}
}

func (p *Port) DataIn() {
	if p.err == nil {
		p.check(p.Data.In(gpio.Float, gpio.NoEdge), "data")
	}
}

func (p *Port) ReadData() gpio.Level {
	if p.err != nil {
		return gpio.Low
	}
	return p.Data.Read()
}

// Pulse emits one full clock cycle with 1us half-periods.
func (p *Port) Pulse() {
	p.SetClock(gpio.High)
	p.Delay.Micros(1)
	p.SetClock(gpio.Low)
	p.Delay.Micros(1)
}

// Wait blocks for at least d, using millisecond delays for whole
// milliseconds.
func (p *Port) Wait(d time.Duration) {
	if ms := int(d / time.Millisecond); ms > 0 {
		p.Delay.Millis(ms)
		d -= time.Duration(ms) * time.Millisecond
	}
	if d > 0 {
		p.Delay.Micros(int((d + time.Microsecond - 1) / time.Microsecond))
	}
}

// Busy sets the status indicator, if any.
func (p *Port) Busy(on bool) {
	if p.Status != nil {
		p.Status.Busy(on)
	}
}
