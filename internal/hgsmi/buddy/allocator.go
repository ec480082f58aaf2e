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

// Package buddy suballocates power-of-two blocks out of a shared area.
package buddy

import (
	// standard libraries.
	"sort"
	"sync"

	// third-party libraries.
	"github.com/huandu/skiplist"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
)

const noFreePos = -1

type block struct {
	desc Descriptor
	// freePos is the position in the free list of its order, or noFreePos when used.
	freePos int
}

type Allocator struct {
	mu sync.Mutex

	area     area.Interface
	maxOrder Order
	env      Env

	// blocks is an arena addressed by index; spare holds recycled slots.
	blocks []block
	spare  []int
	// index maps area-relative block offsets to arena indexes, in address order.
	index *skiplist.SkipList
	free  [NumOrders][]int

	freeBytes uint32
}

// New creates an allocator over a. An empty descriptor table partitions the area into
// free blocks of maxBlockSize; otherwise the table is validated and restored.
func New(a area.Interface, descriptors []Descriptor, maxBlockSize uint32, env Env) (*Allocator, error) {
	if maxBlockSize < MinBlockSize || maxBlockSize > MaxBlockSize || maxBlockSize&(maxBlockSize-1) != 0 {
		return nil, errors.ErrInvalidConfig.WithMessagef("max block size %d is not a power of two in [%d, %d]",
			maxBlockSize, MinBlockSize, MaxBlockSize)
	}
	if a.Size()%maxBlockSize != 0 {
		return nil, errors.ErrInvalidConfig.WithMessagef("area size %d is not a multiple of max block size %d",
			a.Size(), maxBlockSize)
	}
	if env == nil {
		env = unboundedEnv{}
	}

	al := &Allocator{
		area:     a,
		maxOrder: OrderOf(maxBlockSize),
		env:      env,
		index:    skiplist.New(skiplist.Uint32),
	}

	if len(descriptors) == 0 {
		count := int(a.Size() / maxBlockSize)
		if !env.Reserve(count) {
			return nil, errors.ErrNoSpace.WithMessagef("reserve %d blocks", count)
		}
		// pushed from the top so the lowest block is handed out first.
		for i := count - 1; i >= 0; i-- {
			al.push(al.insert(MakeDescriptor(uint32(i)*maxBlockSize, al.maxOrder, true)))
		}
		return al, nil
	}

	if err := al.restore(descriptors); err != nil {
		return nil, err
	}
	return al, nil
}

func (al *Allocator) restore(descriptors []Descriptor) error {
	ds := append([]Descriptor(nil), descriptors...)
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].Offset() < ds[j].Offset()
	})

	next := uint64(0)
	for _, d := range ds {
		if d.Order() > al.maxOrder {
			return errors.ErrInvalidConfig.WithMessagef("descriptor %v exceeds max block size", d)
		}
		if d.Offset()%d.Size() != 0 {
			return errors.ErrInvalidConfig.WithMessagef("descriptor %v is not aligned to its size", d)
		}
		if uint64(d.Offset()) != next {
			return errors.ErrInvalidConfig.WithMessagef("descriptor %v leaves a gap or overlaps at %#x", d, next)
		}
		next += uint64(d.Size())
		if next > uint64(al.area.Size()) {
			return errors.ErrInvalidConfig.WithMessagef("descriptor %v exceeds the area", d)
		}
	}
	if next != uint64(al.area.Size()) {
		return errors.ErrInvalidConfig.WithMessagef("descriptors cover %#x of %#x bytes", next, al.area.Size())
	}

	if !al.env.Reserve(len(ds)) {
		return errors.ErrNoSpace.WithMessagef("reserve %d blocks", len(ds))
	}
	for _, d := range ds {
		idx := al.insert(d)
		if d.Free() {
			al.push(idx)
		}
	}
	return nil
}

// insert adds a block node to the arena and the address index.
func (al *Allocator) insert(d Descriptor) int {
	b := block{desc: d.withFree(false), freePos: noFreePos}
	var idx int
	if n := len(al.spare); n > 0 {
		idx = al.spare[n-1]
		al.spare = al.spare[:n-1]
		al.blocks[idx] = b
	} else {
		idx = len(al.blocks)
		al.blocks = append(al.blocks, b)
	}
	al.index.Set(d.Offset(), idx)
	return idx
}

// drop removes a block node from the address index and recycles its arena slot.
func (al *Allocator) drop(idx int) {
	al.index.Remove(al.blocks[idx].desc.Offset())
	al.blocks[idx] = block{freePos: noFreePos}
	al.spare = append(al.spare, idx)
	al.env.Release(1)
}

// push marks the block free and appends it to the free list of its order.
func (al *Allocator) push(idx int) {
	b := &al.blocks[idx]
	o := b.desc.Order()
	b.desc = b.desc.withFree(true)
	b.freePos = len(al.free[o])
	al.free[o] = append(al.free[o], idx)
	al.freeBytes += b.desc.Size()
}

// unlink marks the block used and removes it from its free list.
func (al *Allocator) unlink(idx int) {
	b := &al.blocks[idx]
	o := b.desc.Order()
	list := al.free[o]
	last := len(list) - 1
	moved := list[last]
	list[b.freePos] = moved
	al.blocks[moved].freePos = b.freePos
	al.free[o] = list[:last]
	b.desc = b.desc.withFree(false)
	b.freePos = noFreePos
	al.freeBytes -= b.desc.Size()
}

func (al *Allocator) lookup(rel uint32) (int, bool) {
	el := al.index.Get(rel)
	if el == nil {
		return 0, false
	}
	idx, ok := el.Value.(int)
	return idx, ok
}

// Allocate returns the offset of a block of at least size bytes, or area.VoidOffset if
// no block is available. A failure only means "try later".
func (al *Allocator) Allocate(size uint32) area.Offset {
	order := OrderOf(size)
	if order > al.maxOrder {
		return area.VoidOffset
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	// smallest fit: the lowest order with a free block wins.
	o := order
	for o <= al.maxOrder && len(al.free[o]) == 0 {
		o++
	}
	if o > al.maxOrder {
		return area.VoidOffset
	}
	if o > order && !al.env.Reserve(int(o-order)) {
		return area.VoidOffset
	}

	list := al.free[o]
	idx := list[len(list)-1]
	al.unlink(idx)

	rel := al.blocks[idx].desc.Offset()
	for o > order {
		o--
		al.blocks[idx].desc = MakeDescriptor(rel, o, false)
		al.push(al.insert(MakeDescriptor(rel+SizeOf(o), o, true)))
	}
	return al.area.Base() + area.Offset(rel)
}

// Free returns the block starting at off and merges it with its buddies.
func (al *Allocator) Free(off area.Offset) error {
	if !al.area.Contains(off) {
		return errors.ErrInvalidOffset.WithMessagef("offset %#x is outside the area", uint32(off))
	}
	rel := uint32(off - al.area.Base())

	al.mu.Lock()
	defer al.mu.Unlock()

	idx, ok := al.lookup(rel)
	if !ok || al.blocks[idx].desc.Free() {
		return errors.ErrInvalidOffset.WithMessagef("offset %#x is not an allocated block", uint32(off))
	}

	for {
		d := al.blocks[idx].desc
		if d.Order() >= al.maxOrder {
			break
		}
		bidx, ok := al.lookup(d.Offset() ^ d.Size())
		if !ok {
			break
		}
		bd := al.blocks[bidx].desc
		if !bd.Free() || bd.Order() != d.Order() {
			break
		}
		al.unlink(bidx)
		low, high := idx, bidx
		if bd.Offset() < d.Offset() {
			low, high = bidx, idx
		}
		al.drop(high)
		al.blocks[low].desc = MakeDescriptor(al.blocks[low].desc.Offset(), d.Order()+1, false)
		idx = low
	}
	al.push(idx)
	return nil
}

// FindByOffset returns the block covering off.
func (al *Allocator) FindByOffset(off area.Offset) (Descriptor, bool) {
	if !al.area.Contains(off) {
		return 0, false
	}
	rel := uint32(off - al.area.Base())

	al.mu.Lock()
	defer al.mu.Unlock()

	// the covering block of order o starts at rel rounded down to SizeOf(o).
	for o := Order(0); o <= al.maxOrder; o++ {
		idx, ok := al.lookup(rel &^ (SizeOf(o) - 1))
		if ok && al.blocks[idx].desc.Order() == o {
			return al.blocks[idx].desc, true
		}
	}
	return 0, false
}

// Walk calls fn for every block in address order until fn returns false.
func (al *Allocator) Walk(fn func(d Descriptor) bool) {
	al.mu.Lock()
	defer al.mu.Unlock()
	for el := al.index.Front(); el != nil; el = el.Next() {
		idx, _ := el.Value.(int)
		if !fn(al.blocks[idx].desc) {
			return
		}
	}
}

// Descriptors snapshots the block table in address order.
func (al *Allocator) Descriptors() []Descriptor {
	var ds []Descriptor
	al.Walk(func(d Descriptor) bool {
		ds = append(ds, d)
		return true
	})
	return ds
}

func (al *Allocator) Area() area.Interface {
	return al.area
}

func (al *Allocator) MaxBlockSize() uint32 {
	return SizeOf(al.maxOrder)
}

type Stats struct {
	Size       uint32
	FreeBytes  uint32
	UsedBytes  uint32
	Blocks     int
	FreeBlocks [NumOrders]int
}

func (al *Allocator) Stats() Stats {
	al.mu.Lock()
	defer al.mu.Unlock()
	s := Stats{
		Size:      al.area.Size(),
		FreeBytes: al.freeBytes,
		UsedBytes: al.area.Size() - al.freeBytes,
		Blocks:    al.index.Len(),
	}
	for o := range al.free {
		s.FreeBlocks[o] = len(al.free[o])
	}
	return s
}

// Verify checks the structural invariants: blocks tile the area, each block is aligned to
// its size, and free lists hold exactly the free blocks.
func (al *Allocator) Verify() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	next := uint32(0)
	free := uint32(0)
	freeCount := 0
	for el := al.index.Front(); el != nil; el = el.Next() {
		idx, _ := el.Value.(int)
		b := al.blocks[idx]
		d := b.desc
		if el.Key().(uint32) != d.Offset() {
			return errors.ErrInternal.WithMessagef("index key %#x points at %v", el.Key(), d)
		}
		if d.Offset() != next {
			return errors.ErrInternal.WithMessagef("block %v does not start at %#x", d, next)
		}
		if d.Offset()%d.Size() != 0 {
			return errors.ErrInternal.WithMessagef("block %v is misaligned", d)
		}
		if d.Free() != (b.freePos != noFreePos) {
			return errors.ErrInternal.WithMessagef("block %v free flag disagrees with free list", d)
		}
		if d.Free() {
			list := al.free[d.Order()]
			if b.freePos >= len(list) || list[b.freePos] != idx {
				return errors.ErrInternal.WithMessagef("block %v is not in its free list", d)
			}
			free += d.Size()
			freeCount++
		}
		next += d.Size()
	}
	if next != al.area.Size() {
		return errors.ErrInternal.WithMessagef("blocks cover %#x of %#x bytes", next, al.area.Size())
	}
	listed := 0
	for o := range al.free {
		listed += len(al.free[o])
	}
	if listed != freeCount || free != al.freeBytes {
		return errors.ErrInternal.WithMessagef("free lists hold %d blocks, %d bytes; expected %d, %d",
			listed, al.freeBytes, freeCount, free)
	}
	return nil
}
