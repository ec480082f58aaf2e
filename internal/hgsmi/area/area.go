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

// Package area implements the offset addressing of one shared-memory region.
//
// An Offset is the 32-bit value both sides of the transport exchange; a Pointer is a
// host-local byte position inside the mapped memory. Conversions between the two happen
// only here.
package area

import (
	// standard libraries.
	"math"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
)

// FrameOverhead is the size of a buffer header plus its tail.
const FrameOverhead = 24

type Offset uint32

// VoidOffset is never a valid buffer offset.
const VoidOffset Offset = math.MaxUint32

type Pointer uint32

type Interface interface {
	Base() Offset
	Size() uint32
	Last() Offset
	Contains(off Offset) bool
	ContainsPointer(p Pointer) bool
	ToOffset(p Pointer) Offset
	ToPointer(off Offset) Pointer
	Bytes(p Pointer, n uint32) ([]byte, bool)
}

type Area struct {
	mem  []byte
	base Offset
	size uint32
	last Offset
}

var _ Interface = (*Area)(nil)

func New(mem []byte, base Offset) (*Area, error) {
	if len(mem) < FrameOverhead {
		return nil, errors.ErrAreaTooSmall.WithMessagef("size %d is less than %d", len(mem), FrameOverhead)
	}
	if uint64(len(mem)) > math.MaxUint32 || uint64(base)+uint64(len(mem)) > math.MaxUint32 {
		return nil, errors.ErrInvalidConfig.WithMessagef("area [%#x, +%#x) exceeds the offset space",
			uint32(base), len(mem))
	}
	size := uint32(len(mem))
	return &Area{
		mem:  mem,
		base: base,
		size: size,
		last: base + Offset(size) - 1 - FrameOverhead,
	}, nil
}

func (a *Area) Base() Offset {
	return a.base
}

func (a *Area) Size() uint32 {
	return a.size
}

// Last is the largest offset a minimal buffer can start at.
func (a *Area) Last() Offset {
	return a.last
}

func (a *Area) Contains(off Offset) bool {
	return off >= a.base && uint32(off-a.base) < a.size
}

func (a *Area) ContainsPointer(p Pointer) bool {
	return uint32(p) < a.size
}

func (a *Area) ToOffset(p Pointer) Offset {
	return a.base + Offset(p)
}

func (a *Area) ToPointer(off Offset) Pointer {
	return Pointer(off - a.base)
}

// Bytes returns a view of n bytes at p, or false if the range leaves the area. The view
// aliases shared memory.
func (a *Area) Bytes(p Pointer, n uint32) ([]byte, bool) {
	if uint32(p) > a.size || n > a.size-uint32(p) {
		return nil, false
	}
	end := uint32(p) + n
	return a.mem[p:end:end], true
}

// Read copies len(dst) bytes at p into dst.
func (a *Area) Read(p Pointer, dst []byte) bool {
	b, ok := a.Bytes(p, uint32(len(dst)))
	if !ok {
		return false
	}
	copy(dst, b)
	return true
}

// Memory returns the whole mapped region.
func (a *Area) Memory() []byte {
	return a.mem
}
