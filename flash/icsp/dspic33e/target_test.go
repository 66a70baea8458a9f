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
	"github.com/juju/errors"
)

const (
	erasedInstruction = 0xffffff
	testDevID         = 0x1f87
	testRevID         = 0x4005
)

// target interprets the instructions the sequencer injects, just enough to
// model table reads, write latches and the NVM controller.
type target struct {
	mem     map[uint32]uint32
	w       [16]uint32
	tblpag  uint32
	nvmadr  uint32
	nvmcon  uint32
	nvmkey  []uint32
	latches [2]uint32
	visi    uint32

	control  int
	keys     []uint32
	erases   int
	doubles  []uint32
	fbootOps int
	executed int
}

func newTarget() *target {
	return &target{
		mem: map[uint32]uint32{
			0xff0000: testDevID,
			0xff0002: testRevID,
		},
		control: -1,
	}
}

func (t *target) read(addr uint32) uint32 {
	if v, ok := t.mem[addr]; ok {
		return v
	}
	return erasedInstruction
}

func (t *target) SendCommand(c uint8) error {
	if c != six && c != regout {
		return errors.Errorf("unknown control code %d", c)
	}
	t.control = int(c)
	return nil
}

func (t *target) SendData(word uint32, width int) error {
	if width == keyBits {
		t.keys = append(t.keys, word)
		return nil
	}
	if t.control != six {
		return errors.Errorf("instruction 0x%06x without SIX", word)
	}
	t.control = -1
	t.executed++
	return t.exec(word)
}

func (t *target) ReadData(width int) (uint32, error) {
	if t.control != regout {
		return 0, errors.Errorf("read without REGOUT")
	}
	t.control = -1
	return t.visi, nil
}

func (t *target) Clock(n int) error {
	return nil
}

func (t *target) exec(ins uint32) error {
	if ins&0xf00000 == 0x200000 {
		t.w[ins&0xf] = (ins >> 4) & 0xffff
		return nil
	}
	switch ins {
	case nop, goto200, 0xa31000, 0xb08000, 0xdd004e, 0x700068:
	case clrW6:
		t.w[6] = 0
	case tblwtlW0, tblwtlW2:
		t.latch(t.w[ins&0xf], false)
	case tblwthW1, tblwthW3:
		t.latch(t.w[ins&0xf], true)
		t.w[6] += 2
	case movW0TBLPAG:
		t.tblpag = t.w[0]
	case movW12TBLPAG:
		t.tblpag = t.w[12]
	case movW4NVMADR:
		t.nvmadr = t.nvmadr&0xff0000 | t.w[4]
	case movW5NVMADRU:
		t.nvmadr = t.nvmadr&0xffff | t.w[5]<<16
	case movW10NVMCON:
		t.nvmcon = t.w[10]
	case movW0NVMCON:
		t.nvmcon = t.w[0]
	case movW1NVMKEY:
		t.nvmkey = append(t.nvmkey, t.w[1])
	case bsetNVMCONWR:
		return t.write()
	case tblrdhW6W7, tblrdlW6W7:
		if t.w[7] != visiAddress {
			return errors.Errorf("table read into 0x%x", t.w[7])
		}
		v := t.read(t.tblpag<<16 | t.w[6])
		if ins == tblrdhW6W7 {
			t.visi = v >> 16
		} else {
			t.visi = v & 0xffff
		}
	default:
		return errors.Errorf("unexpected instruction 0x%06x", ins)
	}
	return nil
}

func (t *target) latch(v uint32, high bool) {
	if t.tblpag != latchPage {
		return
	}
	i := t.w[6] / 2 % 2
	if high {
		t.latches[i] = t.latches[i]&0xffff | (v&0xff)<<16
	} else {
		t.latches[i] = t.latches[i]&0xff0000 | v&0xffff
	}
}

func (t *target) write() error {
	key := t.nvmkey
	t.nvmkey = nil
	if len(key) != 2 || key[0] != nvmKey1 || key[1] != nvmKey2 {
		return errors.Errorf("NVM write without unlock: %x", key)
	}
	switch t.nvmcon {
	case nvmEraseChip:
		for a := range t.mem {
			if a < 0x800000 {
				delete(t.mem, a)
			}
		}
		t.erases++
	case nvmWriteDouble:
		t.mem[t.nvmadr] = t.latches[0]
		t.mem[t.nvmadr+2] = t.latches[1]
		t.doubles = append(t.doubles, t.nvmadr)
	default:
		t.fbootOps++
	}
	return nil
}
