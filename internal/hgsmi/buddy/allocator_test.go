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
	"math/rand"
	"sort"
	"sync"
	"testing"

	// third-party libraries.
	. "github.com/smartystreets/goconvey/convey"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
)

const testBase = area.Offset(0x10000)

func newAllocator(size int, maxBlockSize uint32, env Env) *Allocator {
	a, err := area.New(make([]byte, size), testBase)
	So(err, ShouldBeNil)
	al, err := New(a, nil, maxBlockSize, env)
	So(err, ShouldBeNil)
	So(al.Verify(), ShouldBeNil)
	return al
}

func TestOrder(t *testing.T) {
	Convey("order and size", t, func() {
		So(MaxBlockSize, ShouldEqual, 1<<20)
		for o := Order(0); o < NumOrders; o++ {
			So(OrderOf(SizeOf(o)), ShouldEqual, o)
		}
		So(OrderOf(0), ShouldEqual, 0)
		So(OrderOf(1), ShouldEqual, 0)
		So(OrderOf(33), ShouldEqual, 1)
		So(OrderOf(MaxBlockSize), ShouldEqual, NumOrders-1)
		So(OrderOf(MaxBlockSize+1), ShouldEqual, InvalidOrder)
	})
}

func TestDescriptor(t *testing.T) {
	Convey("descriptor packing", t, func() {
		d := MakeDescriptor(0x1240, 3, true)
		So(uint32(d), ShouldEqual, 0x1240|0x10|0x3)
		So(d.Offset(), ShouldEqual, 0x1240)
		So(d.Order(), ShouldEqual, 3)
		So(d.Free(), ShouldBeTrue)
		So(d.Size(), ShouldEqual, 256)
		So(d.String(), ShouldEqual, "[0x1240,+0x100 free]")

		// low bits of the offset are masked to the 32-byte granularity.
		So(MakeDescriptor(0x1255, 0, false).Offset(), ShouldEqual, 0x1240)

		Convey("table encoding", func() {
			ds := []Descriptor{MakeDescriptor(0, 2, false), MakeDescriptor(128, 2, true)}
			buf := make([]byte, 9)
			n, err := EncodeDescriptors(buf, ds)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 8)
			So(buf[:8], ShouldResemble, []byte{0x02, 0, 0, 0, 0x92, 0, 0, 0})
			So(DecodeDescriptors(buf), ShouldResemble, ds)

			_, err = EncodeDescriptors(buf[:7], ds)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestNew(t *testing.T) {
	Convey("initialize allocator", t, func() {
		a, err := area.New(make([]byte, 4096), 0)
		So(err, ShouldBeNil)

		for _, bad := range []uint32{0, 16, 48, 3000, MaxBlockSize * 2} {
			_, err = New(a, nil, bad, nil)
			So(errors.IsInvalidConfig(err), ShouldBeTrue)
		}

		b, err := area.New(make([]byte, 4096+32), 0)
		So(err, ShouldBeNil)
		_, err = New(b, nil, 1024, nil)
		So(errors.IsInvalidConfig(err), ShouldBeTrue)

		al, err := New(a, nil, 1024, nil)
		So(err, ShouldBeNil)
		st := al.Stats()
		So(st.Blocks, ShouldEqual, 4)
		So(st.FreeBytes, ShouldEqual, 4096)
		So(st.FreeBlocks[OrderOf(1024)], ShouldEqual, 4)
		So(al.MaxBlockSize(), ShouldEqual, 1024)

		_, err = New(a, nil, 1024, NewLimitEnv(3))
		So(errors.IsExhausted(err), ShouldBeTrue)
	})
}

func TestAllocate(t *testing.T) {
	Convey("allocate and split", t, func() {
		al := newAllocator(4096, 1024, nil)

		off := al.Allocate(64)
		So(off, ShouldEqual, testBase)
		So(al.Verify(), ShouldBeNil)

		// 1024 -> 512 + 256 + 128 + 64 + [64 used]
		st := al.Stats()
		So(st.UsedBytes, ShouldEqual, 64)
		So(st.FreeBlocks[OrderOf(64)], ShouldEqual, 1)
		So(st.FreeBlocks[OrderOf(128)], ShouldEqual, 1)
		So(st.FreeBlocks[OrderOf(256)], ShouldEqual, 1)
		So(st.FreeBlocks[OrderOf(512)], ShouldEqual, 1)
		So(st.FreeBlocks[OrderOf(1024)], ShouldEqual, 3)

		d, ok := al.FindByOffset(off + 63)
		So(ok, ShouldBeTrue)
		So(d, ShouldEqual, MakeDescriptor(0, OrderOf(64), false))

		d, ok = al.FindByOffset(testBase + 600)
		So(ok, ShouldBeTrue)
		So(d, ShouldEqual, MakeDescriptor(512, OrderOf(512), true))

		_, ok = al.FindByOffset(testBase - 1)
		So(ok, ShouldBeFalse)

		Convey("exact order is reused before splitting", func() {
			off2 := al.Allocate(50)
			So(off2, ShouldEqual, testBase+64)
			So(al.Stats().Blocks, ShouldEqual, 8)
		})

		Convey("too large", func() {
			So(al.Allocate(1025), ShouldEqual, area.VoidOffset)
			So(al.Allocate(MaxBlockSize+1), ShouldEqual, area.VoidOffset)
		})

		Convey("exhaustion", func() {
			for i := 0; i < 3; i++ {
				So(al.Allocate(1024), ShouldNotEqual, area.VoidOffset)
			}
			So(al.Allocate(1024), ShouldEqual, area.VoidOffset)
			So(al.Allocate(512), ShouldNotEqual, area.VoidOffset)
			So(al.Verify(), ShouldBeNil)
		})
	})
}

func TestFree(t *testing.T) {
	Convey("free and coalesce", t, func() {
		al := newAllocator(4096, 1024, nil)

		Convey("buddies merge into the next order", func() {
			o1 := al.Allocate(32)
			o2 := al.Allocate(32)
			So(o2, ShouldEqual, o1+32)

			So(al.Free(o1), ShouldBeNil)
			d, _ := al.FindByOffset(o1)
			So(d.Order(), ShouldEqual, 0)
			So(d.Free(), ShouldBeTrue)

			So(al.Free(o2), ShouldBeNil)
			So(al.Verify(), ShouldBeNil)
			d, _ = al.FindByOffset(o1)
			So(d, ShouldEqual, MakeDescriptor(0, OrderOf(1024), true))
			So(al.Stats().Blocks, ShouldEqual, 4)
		})

		Convey("merging stops at the max block size", func() {
			offs := make([]area.Offset, 4)
			for i := range offs {
				offs[i] = al.Allocate(1024)
			}
			for _, off := range offs {
				So(al.Free(off), ShouldBeNil)
			}
			So(al.Stats().Blocks, ShouldEqual, 4)
			So(al.Verify(), ShouldBeNil)
		})

		Convey("invalid offsets", func() {
			off := al.Allocate(128)
			So(errors.IsMalformed(al.Free(off+32)), ShouldBeTrue)
			So(errors.IsMalformed(al.Free(testBase+8192)), ShouldBeTrue)
			So(errors.IsMalformed(al.Free(area.VoidOffset)), ShouldBeTrue)
			So(al.Free(off), ShouldBeNil)
			So(errors.IsMalformed(al.Free(off)), ShouldBeTrue)
			So(al.Verify(), ShouldBeNil)
		})
	})
}

type allocation struct {
	off  area.Offset
	size uint32
}

func TestInvariants(t *testing.T) {
	Convey("random allocate/free sequences", t, func() {
		for seed := int64(1); seed <= 8; seed++ {
			r := rand.New(rand.NewSource(seed))
			al := newAllocator(64*1024, 8*1024, nil)
			var live []allocation

			for step := 0; step < 2000; step++ {
				if len(live) > 0 && r.Intn(3) == 0 {
					i := r.Intn(len(live))
					So(al.Free(live[i].off), ShouldBeNil)
					live = append(live[:i], live[i+1:]...)
					continue
				}
				size := uint32(1 + r.Intn(8*1024))
				off := al.Allocate(size)
				if off == area.VoidOffset {
					continue
				}
				d, ok := al.FindByOffset(off)
				So(ok, ShouldBeTrue)
				So(d.Free(), ShouldBeFalse)
				So(d.Size(), ShouldBeGreaterThanOrEqualTo, size)
				live = append(live, allocation{off: off, size: d.Size()})
			}
			So(al.Verify(), ShouldBeNil)

			sort.Slice(live, func(i, j int) bool { return live[i].off < live[j].off })
			used := uint32(0)
			for i := range live {
				used += live[i].size
				if i > 0 {
					So(uint32(live[i-1].off)+live[i-1].size, ShouldBeLessThanOrEqualTo, uint32(live[i].off))
				}
			}
			So(al.Stats().UsedBytes, ShouldEqual, used)

			for _, l := range live {
				So(al.Free(l.off), ShouldBeNil)
			}
			st := al.Stats()
			So(st.FreeBytes, ShouldEqual, 64*1024)
			So(st.Blocks, ShouldEqual, 8)
		}
	})
}

func TestRestore(t *testing.T) {
	Convey("restore from a descriptor table", t, func() {
		al := newAllocator(4096, 1024, nil)
		o1 := al.Allocate(100)
		_ = al.Allocate(700)
		So(al.Free(o1), ShouldBeNil)

		table := make([]byte, 64*DescriptorSize)
		n, err := EncodeDescriptors(table, al.Descriptors())
		So(err, ShouldBeNil)

		restored, err := New(al.Area(), DecodeDescriptors(table[:n]), 1024, nil)
		So(err, ShouldBeNil)
		So(restored.Verify(), ShouldBeNil)
		So(restored.Descriptors(), ShouldResemble, al.Descriptors())
		So(restored.Stats(), ShouldResemble, al.Stats())

		Convey("rejects tampered tables", func() {
			a := al.Area()
			bad := [][]Descriptor{
				{MakeDescriptor(0, 5, true), MakeDescriptor(1024, 5, true), MakeDescriptor(2048, 5, true)},
				{MakeDescriptor(0, 4, true), MakeDescriptor(512, 5, true), MakeDescriptor(1536, 4, true)},
				{MakeDescriptor(32, 0, true)},
				{MakeDescriptor(0, 7, true), MakeDescriptor(2048, 6, true)},
				{MakeDescriptor(0, 5, true), MakeDescriptor(0, 5, false)},
			}
			for _, ds := range bad {
				_, err := New(a, ds, 1024, nil)
				So(errors.IsInvalidConfig(err), ShouldBeTrue)
			}
		})
	})
}

func TestLimitEnv(t *testing.T) {
	Convey("bookkeeping limit", t, func() {
		env := NewLimitEnv(5)
		al := newAllocator(2048, 1024, env)
		So(env.InUse(), ShouldEqual, 2)

		// splitting 1024 down to 32 needs five more nodes.
		So(al.Allocate(32), ShouldEqual, area.VoidOffset)
		So(al.Verify(), ShouldBeNil)

		off := al.Allocate(256)
		So(off, ShouldNotEqual, area.VoidOffset)
		So(env.InUse(), ShouldEqual, 4)
		So(al.Free(off), ShouldBeNil)
		So(env.InUse(), ShouldEqual, 2)
	})
}

func TestConcurrent(t *testing.T) {
	Convey("concurrent producers", t, func() {
		al := newAllocator(256*1024, 16*1024, nil)
		wg := sync.WaitGroup{}
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				r := rand.New(rand.NewSource(seed))
				var mine []area.Offset
				for i := 0; i < 500; i++ {
					if off := al.Allocate(uint32(1 + r.Intn(2048))); off != area.VoidOffset {
						mine = append(mine, off)
					}
					if len(mine) > 4 {
						_ = al.Free(mine[0])
						mine = mine[1:]
					}
				}
				for _, off := range mine {
					_ = al.Free(off)
				}
			}(int64(g))
		}
		wg.Wait()
		So(al.Verify(), ShouldBeNil)
		So(al.Stats().FreeBytes, ShouldEqual, 256*1024)
	})
}
