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
	"github.com/juju/errors"
)

// target simulates the programming logic of a PIC16F188xx.
type target struct {
	mem    map[uint32]uint16
	latch  map[uint32]uint16
	pc     uint32
	cmd    int
	key    []uint8
	erases int
}

func newTarget() *target {
	return &target{
		mem: map[uint32]uint16{
			devIDAddress: 0x306c,
			revIDAddress: 0x2002,
		},
		latch: map[uint32]uint16{},
		cmd:   -1,
	}
}

func (t *target) SendCommand(c uint8) error {
	if t.cmd != -1 {
		return errors.Errorf("command 0x%02x while waiting for data of 0x%02x", c, t.cmd)
	}
	switch c {
	case cmdLoadAddress, cmdLatchData, cmdLatchDataInc, cmdReadData:
		t.cmd = int(c)
	case cmdIncAddress:
		t.pc++
	case cmdBeginProg:
		for a, w := range t.latch {
			t.mem[a] = w
		}
		t.latch = map[uint32]uint16{}
	case cmdBulkErase:
		for a := range t.mem {
			if a != devIDAddress && a != revIDAddress {
				delete(t.mem, a)
			}
		}
		t.erases++
	case 'M', 'C', 'H', 'P':
		t.key = append(t.key, c)
	default:
		return errors.Errorf("unexpected command 0x%02x", c)
	}
	return nil
}

func (t *target) SendData(w uint32, width int) error {
	switch t.cmd {
	case cmdLoadAddress:
		t.pc = w
	case cmdLatchData:
		t.latch[t.pc] = uint16(w & 0x3fff)
	case cmdLatchDataInc:
		t.latch[t.pc] = uint16(w & 0x3fff)
		t.pc++
	default:
		return errors.Errorf("unexpected data 0x%04x", w)
	}
	t.cmd = -1
	return nil
}

func (t *target) ReadData(width int) (uint32, error) {
	if t.cmd != cmdReadData {
		return 0, errors.Errorf("unexpected read")
	}
	t.cmd = -1
	if w, ok := t.mem[t.pc]; ok {
		return uint32(w), nil
	}
	return 0x3fff, nil
}

func (t *target) Clock(n int) error {
	return nil
}
