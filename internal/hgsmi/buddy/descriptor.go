// Copyright 2022 Linkall Inc.
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

package buddy

import (
	// standard libraries.
	"encoding/binary"
	"fmt"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
)

const (
	OrderBase    = 5
	MinBlockSize = 1 << OrderBase
	NumOrders    = 16
	MaxBlockSize = MinBlockSize << (NumOrders - 1)
)

type Order uint8

// InvalidOrder is returned by OrderOf for sizes above MaxBlockSize.
const InvalidOrder Order = NumOrders

// OrderOf returns the smallest order whose block holds size bytes.
func OrderOf(size uint32) Order {
	if size > MaxBlockSize {
		return InvalidOrder
	}
	o := Order(0)
	for SizeOf(o) < size {
		o++
	}
	return o
}

func SizeOf(o Order) uint32 {
	return MinBlockSize << o
}

// Descriptor packs one block: bits 0..3 order, bit 4 free, bits 5..31 area-relative offset.
type Descriptor uint32

const (
	orderMask  = 0x0F
	freeFlag   = 0x10
	offsetMask = ^uint32(MinBlockSize - 1)
)

const DescriptorSize = 4

func MakeDescriptor(offset uint32, order Order, free bool) Descriptor {
	d := offset&offsetMask | uint32(order)&orderMask
	if free {
		d |= freeFlag
	}
	return Descriptor(d)
}

func (d Descriptor) Offset() uint32 {
	return uint32(d) & offsetMask
}

func (d Descriptor) Order() Order {
	return Order(uint32(d) & orderMask)
}

func (d Descriptor) Free() bool {
	return uint32(d)&freeFlag != 0
}

func (d Descriptor) Size() uint32 {
	return SizeOf(d.Order())
}

func (d Descriptor) String() string {
	state := "used"
	if d.Free() {
		state = "free"
	}
	return fmt.Sprintf("[%#x,+%#x %s]", d.Offset(), d.Size(), state)
}

func (d Descriptor) withFree(free bool) Descriptor {
	return MakeDescriptor(d.Offset(), d.Order(), free)
}

// DecodeDescriptors reads a little-endian descriptor table, as published in shared memory.
// Trailing bytes that do not form a whole descriptor are ignored.
func DecodeDescriptors(src []byte) []Descriptor {
	ds := make([]Descriptor, len(src)/DescriptorSize)
	for i := range ds {
		ds[i] = Descriptor(binary.LittleEndian.Uint32(src[i*DescriptorSize:]))
	}
	return ds
}

// EncodeDescriptors writes ds into dst and returns the number of bytes written.
func EncodeDescriptors(dst []byte, ds []Descriptor) (int, error) {
	if len(dst) < len(ds)*DescriptorSize {
		return 0, errors.ErrNoSpace.WithMessagef("descriptor table needs %d bytes, have %d",
			len(ds)*DescriptorSize, len(dst))
	}
	for i, d := range ds {
		binary.LittleEndian.PutUint32(dst[i*DescriptorSize:], uint32(d))
	}
	return len(ds) * DescriptorSize, nil
}
