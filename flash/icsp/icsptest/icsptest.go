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

// Package icsptest provides fakes for testing ICSP transports and devices:
// GPIO pins wired into a Bus, a recording Delayer and a spy Transport.
package icsptest

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/mongoose-os/lvp/flash/icsp"
)

// Pin is a fake GPIO pin. Only the methods used by icsp.Port are
// implemented; the embedded interface is nil.
type Pin struct {
	gpio.PinIO

	N     string
	L     gpio.Level
	Input bool
	// Err, if set, is returned by In and Out.
	Err error

	onOut  func(l gpio.Level)
	onRead func() gpio.Level
}

func (p *Pin) String() string {
	return p.N
}

func (p *Pin) Name() string {
	return p.N
}

func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if p.Err != nil {
		return p.Err
	}
	p.Input = true
	return nil
}

func (p *Pin) Out(l gpio.Level) error {
	if p.Err != nil {
		return p.Err
	}
	prev := p.L
	p.Input = false
	p.L = l
	if p.onOut != nil && prev != l {
		p.onOut(l)
	}
	return nil
}

func (p *Pin) Read() gpio.Level {
	if p.onRead != nil {
		return p.onRead()
	}
	return p.L
}

// Delay records requested delays.
type Delay struct {
	Calls []time.Duration
}

func (d *Delay) Micros(n int) {
	d.Calls = append(d.Calls, time.Duration(n)*time.Microsecond)
}

func (d *Delay) Millis(n int) {
	d.Calls = append(d.Calls, time.Duration(n)*time.Millisecond)
}

func (d *Delay) Total() time.Duration {
	var t time.Duration
	for _, c := range d.Calls {
		t += c
	}
	return t
}

// Longest returns the longest single delay.
func (d *Delay) Longest() time.Duration {
	var t time.Duration
	for _, c := range d.Calls {
		if c > t {
			t = c
		}
	}
	return t
}

// Bus wires fake clock, data and reset pins together and records the data
// line at every rising clock edge.
type Bus struct {
	Clock, Data, Reset *Pin
	Delay              *Delay

	// Sent holds the data levels seen at rising clock edges while the data
	// line was driven by the host.
	Sent []bool
	// Pulses counts rising clock edges while the data line was an input.
	Pulses int
	// Respond, if set, supplies the level the target drives on the data
	// line while the host reads it. It is called once per rising edge.
	Respond func() gpio.Level
	// ResetLevels records every change of the reset line.
	ResetLevels []gpio.Level

	level gpio.Level
}

func NewBus() *Bus {
	b := &Bus{
		Clock: &Pin{N: "CLK", Input: true},
		Data:  &Pin{N: "DAT", Input: true},
		Reset: &Pin{N: "MCLR", Input: true, L: gpio.High},
		Delay: &Delay{},
	}
	b.Clock.onOut = func(l gpio.Level) {
		if l != gpio.High {
			return
		}
		if !b.Data.Input {
			b.Sent = append(b.Sent, bool(b.Data.L))
			return
		}
		b.Pulses++
		if b.Respond != nil {
			b.level = b.Respond()
		}
	}
	b.Data.onRead = func() gpio.Level {
		return b.level
	}
	b.Reset.onOut = func(l gpio.Level) {
		b.ResetLevels = append(b.ResetLevels, l)
	}
	return b
}

// Port returns a port over the bus pins.
func (b *Bus) Port() *icsp.Port {
	return &icsp.Port{
		Clock: b.Clock,
		Data:  b.Data,
		Reset: b.Reset,
		Delay: b.Delay,
	}
}

// Bits returns the sent bits starting at from as a string of 0s and 1s.
func (b *Bus) Bits(from int) string {
	s := make([]byte, 0, len(b.Sent)-from)
	for _, v := range b.Sent[from:] {
		if v {
			s = append(s, '1')
		} else {
			s = append(s, '0')
		}
	}
	return string(s)
}

// Op is one recorded Transport call.
type Op struct {
	Kind  string
	Value uint32
	Width int
}

func (op Op) String() string {
	switch op.Kind {
	case "cmd":
		return fmt.Sprintf("cmd 0x%02x", op.Value)
	case "data":
		return fmt.Sprintf("data 0x%06x/%d", op.Value, op.Width)
	case "read":
		return fmt.Sprintf("read/%d", op.Width)
	}
	return fmt.Sprintf("clock %d", op.Value)
}

// Transport records all calls. If Target is set, every call is forwarded
// to it as well and reads return its results.
type Transport struct {
	Ops    []Op
	Target icsp.Transport
}

func (t *Transport) SendCommand(code uint8) error {
	t.Ops = append(t.Ops, Op{Kind: "cmd", Value: uint32(code)})
	if t.Target != nil {
		return t.Target.SendCommand(code)
	}
	return nil
}

func (t *Transport) SendData(word uint32, width int) error {
	t.Ops = append(t.Ops, Op{Kind: "data", Value: word, Width: width})
	if t.Target != nil {
		return t.Target.SendData(word, width)
	}
	return nil
}

func (t *Transport) ReadData(width int) (uint32, error) {
	t.Ops = append(t.Ops, Op{Kind: "read", Width: width})
	if t.Target != nil {
		return t.Target.ReadData(width)
	}
	return 0, nil
}

func (t *Transport) Clock(n int) error {
	t.Ops = append(t.Ops, Op{Kind: "clock", Value: uint32(n)})
	if t.Target != nil {
		return t.Target.Clock(n)
	}
	return nil
}

// Commands counts SendCommand calls with the given code.
func (t *Transport) Commands(code uint8) int {
	n := 0
	for _, op := range t.Ops {
		if op.Kind == "cmd" && op.Value == uint32(code) {
			n++
		}
	}
	return n
}

// Followed counts SendCommand calls with the given code immediately
// followed by a SendData of value.
func (t *Transport) Followed(code uint8, value uint32) int {
	n := 0
	for i := 0; i+1 < len(t.Ops); i++ {
		a, b := t.Ops[i], t.Ops[i+1]
		if a.Kind == "cmd" && a.Value == uint32(code) && b.Kind == "data" && b.Value == value {
			n++
		}
	}
	return n
}

// Reset drops all recorded calls.
func (t *Transport) Reset() {
	t.Ops = nil
}
