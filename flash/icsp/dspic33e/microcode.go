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

// Instructions executed on the target through SIX.
const (
	nop          = 0x000000
	goto200      = 0x040200 // GOTO 0x200
	clrW6        = 0xeb0300 // CLR W6
	tblwtlW0     = 0xbb0b00 // TBLWTL W0, [W6]
	tblwthW1     = 0xbb9b01 // TBLWTH W1, [W6++]
	tblwtlW2     = 0xbb0b02 // TBLWTL W2, [W6]
	tblwthW3     = 0xbb9b03 // TBLWTH W3, [W6++]
	movW0TBLPAG  = 0x8802a0 // MOV W0, TBLPAG
	movW12TBLPAG = 0x8802ac // MOV W12, TBLPAG
	movW4NVMADR  = 0x883954 // MOV W4, NVMADR
	movW5NVMADRU = 0x883965 // MOV W5, NVMADRU
	movW10NVMCON = 0x88394a // MOV W10, NVMCON
	movW1NVMKEY  = 0x883971 // MOV W1, NVMKEY
	movW0NVMCON  = 0x883940 // MOV W0, NVMCON
	bsetNVMCONWR = 0xa8e729 // BSET NVMCON, #WR
	tblrdhW6W7   = 0xba8b96 // TBLRDH [W6], [W7]
	tblrdlW6W7   = 0xba0b96 // TBLRDL [W6], [W7]
)

const (
	regW0  = 0
	regW1  = 1
	regW2  = 2
	regW3  = 3
	regW4  = 4
	regW5  = 5
	regW6  = 6
	regW7  = 7
	regW10 = 10
	regW12 = 12
)

const (
	visiAddress    = 0xf88
	latchPage      = 0xfa
	nvmEraseChip   = 0x400e
	nvmWriteDouble = 0x4001
	nvmKey1        = 0x55
	nvmKey2        = 0xaa
	fbootDefault   = 0xffffff
)

// movLit is MOV #lit, Wreg.
func movLit(lit uint32, reg uint32) uint32 {
	return 0x200000 | (lit&0xffff)<<4 | reg&0xf
}

// resetPC restarts execution at the reset vector so the program counter
// never runs past the end of the implemented memory.
var resetPC = []uint32{nop, nop, nop, goto200, nop, nop, nop}

var fiveNOP = []uint32{nop, nop, nop, nop, nop}

// unlockWrite runs the NVMKEY unlock sequence and starts the write
// configured in NVMCON.
var unlockWrite = concat(
	[]uint32{
		movLit(nvmKey1, regW1),
		movW1NVMKEY,
		movLit(nvmKey2, regW1),
		movW1NVMKEY,
		bsetNVMCONWR,
	},
	fiveNOP,
)

// setLatchPage points TBLPAG at the write latches.
var setLatchPage = []uint32{movLit(latchPage, regW12), movW12TBLPAG}

// latchDouble writes W0..W3 (two instructions) into the write latches.
var latchDouble = []uint32{
	clrW6, nop,
	tblwtlW0, nop, nop,
	tblwthW1, nop, nop,
	tblwtlW2, nop, nop,
	tblwthW3, nop, nop,
}

// fbootCommand leaves the NVMCON value for the FBOOT write in W0.
var fbootCommand = []uint32{0xa31000, 0xb08000, 0xdd004e, 0x700068, movW0NVMCON}

func concat(seqs ...[]uint32) []uint32 {
	var res []uint32
	for _, s := range seqs {
		res = append(res, s...)
	}
	return res
}
