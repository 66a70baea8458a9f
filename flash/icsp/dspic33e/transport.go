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
package dspic33e

import (
	"github.com/golang/glog"
	"github.com/juju/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/mongoose-os/lvp/flash/icsp"
)

// Control codes.
const (
	six    = 0x0
	regout = 0x1
)

const (
	controlBits     = 4
	instructionBits = 24
	keyBits         = 16
	visiBits        = 16
)

// Transport implements the 4-bit control code protocol. Control codes,
// instructions and VISI reads are shifted LSB first; 16-bit words sent
// outside of a control code (the entry key) go MSB first.
type Transport struct {
	p *icsp.Port
}

func NewTransport(p *icsp.Port) *Transport {
	return &Transport{p: p}
}

func (t *Transport) SendCommand(code uint8) error {
	t.shiftLSB(uint32(code), controlBits)
	t.p.Delay.Micros(1)
	return errors.Trace(t.p.Err())
}

func (t *Transport) SendData(word uint32, width int) error {
	switch width {
	case instructionBits:
		glog.V(4).Infof("six 0x%06x", word)
		t.shiftLSB(word, instructionBits)
		t.p.Delay.Micros(1)
	case keyBits:
		t.shiftMSB(word, keyBits)
	default:
		return errors.NotSupportedf("%d-bit data", width)
	}
	return errors.Trace(t.p.Err())
}

func (t *Transport) ReadData(width int) (uint32, error) {
	if width != visiBits {
		return 0, errors.NotSupportedf("%d-bit read", width)
	}
	p := t.p
	p.DataIn()
	var w uint32
	for i := 0; i < width; i++ {
		p.SetClock(gpio.High)
		w >>= 1
		p.Delay.Micros(1)
		if p.ReadData() == gpio.High {
			w |= 1 << uint(width-1)
		}
		p.SetClock(gpio.Low)
		p.Delay.Micros(1)
	}
	glog.V(4).Infof("visi 0x%04x", w)
	return w, errors.Trace(p.Err())
}

func (t *Transport) Clock(n int) error {
	for i := 0; i < n; i++ {
		t.p.Pulse()
	}
	return errors.Trace(t.p.Err())
}

func (t *Transport) shiftLSB(v uint32, n int) {
	for i := 0; i < n; i++ {
		t.bit(v&(1<<uint(i)) != 0)
	}
}

func (t *Transport) shiftMSB(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		t.bit(v&(1<<uint(i)) != 0)
	}
}

// bit sets up data a full half period before the rising edge.
func (t *Transport) bit(b bool) {
	p := t.p
	p.SetData(gpio.Level(b))
	p.Delay.Micros(1)
	p.SetClock(gpio.High)
	p.Delay.Micros(1)
	p.SetClock(gpio.Low)
}
