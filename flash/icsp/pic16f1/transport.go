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
	"github.com/golang/glog"
	"github.com/juju/errors"
	"periph.io/x/conn/v3/gpio"

	"github.com/mongoose-os/lvp/flash/icsp"
)

const (
	commandBits = 8
	frameBits   = 24
)

// Transport implements the 8-bit command, 24-bit data frame protocol.
// Everything is shifted MSB first; the target latches data on the falling
// clock edge.
type Transport struct {
	p *icsp.Port
}

func NewTransport(p *icsp.Port) *Transport {
	return &Transport{p: p}
}

func (t *Transport) SendCommand(code uint8) error {
	glog.V(3).Infof("cmd 0x%02x", code)
	t.shiftOut(uint32(code), commandBits)
	t.p.Delay.Micros(1)
	return errors.Trace(t.p.Err())
}

// SendData sends a frame with a zero start bit, word masked to width bits
// and a zero stop bit.
func (t *Transport) SendData(word uint32, width int) error {
	if width < 1 || width > frameBits-2 {
		return errors.NotSupportedf("%d-bit data", width)
	}
	glog.V(4).Infof("data 0x%04x", word)
	t.shiftOut((word&mask(width))<<1, frameBits)
	return errors.Trace(t.p.Err())
}

func (t *Transport) ReadData(width int) (uint32, error) {
	if width < 1 || width > frameBits-2 {
		return 0, errors.NotSupportedf("%d-bit data", width)
	}
	p := t.p
	p.DataIn()
	var w uint32
	for i := 0; i < frameBits; i++ {
		p.SetClock(gpio.High)
		w <<= 1
		p.Delay.Micros(1)
		if p.ReadData() == gpio.High {
			w |= 1
		}
		p.SetClock(gpio.Low)
		p.Delay.Micros(1)
	}
	w = (w >> 1) & mask(width)
	glog.V(4).Infof("read 0x%04x", w)
	return w, errors.Trace(p.Err())
}

func (t *Transport) Clock(n int) error {
	for i := 0; i < n; i++ {
		t.p.Pulse()
	}
	return errors.Trace(t.p.Err())
}

func (t *Transport) shiftOut(v uint32, n int) {
	p := t.p
	for i := n - 1; i >= 0; i-- {
		p.SetData(gpio.Level(v&(1<<uint(i)) != 0))
		p.Pulse()
	}
}

func mask(width int) uint32 {
	return 1<<uint(width) - 1
}
