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

package device

import (
	// standard libraries.
	"context"
	"encoding/binary"
	stderrors "errors"
	"path/filepath"
	"testing"

	// third-party libraries.
	"github.com/prashantv/gostub"
	. "github.com/smartystreets/goconvey/convey"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/config"
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/channel"
	"github.com/linkall-labs/hgsmi/internal/shmem"
	"github.com/linkall-labs/hgsmi/internal/vbva"
	"github.com/linkall-labs/hgsmi/observability/tracing"
)

func smallConfig() config.Config {
	c := config.Default()
	c.Area.Size = 4096
	c.Area.BaseOffset = 0x2000
	c.Heap.MaxBlockSize = 4096
	return c
}

func ringConfig() config.Config {
	c := smallConfig()
	c.VBVA = config.VBVA{Enable: true, DataSize: 8192, PartialThreshold: 1024}
	return c
}

type call struct {
	channel  uint8
	info     uint16
	dataSize int
	first    byte
}

func TestDevice_EndToEnd(t *testing.T) {
	Convey("guest buffers round trip through the heap and a channel", t, func() {
		ctx := context.Background()
		d, err := New(smallConfig())
		So(err, ShouldBeNil)
		defer func() { _ = d.Close() }()
		So(d.ID(), ShouldNotBeEmpty)

		var calls []call
		record := func(id uint8) channel.Handler {
			return channel.HandlerFunc(func(_ context.Context, info uint16, payload []byte) error {
				calls = append(calls, call{channel: id, info: info, dataSize: len(payload), first: payload[0]})
				return nil
			})
		}
		So(d.Register(1, "display", record(1)), ShouldBeNil)

		h, err := d.GuestHeap()
		So(err, ShouldBeNil)
		off1, p1 := h.Alloc(64, 1, 0x11)
		So(off1, ShouldNotEqual, area.VoidOffset)
		off2, p2 := h.Alloc(128, 1, 0x22)
		So(off2, ShouldNotEqual, area.VoidOffset)
		for i := range p1 {
			p1[i] = 0xA1
		}
		for i := range p2 {
			p2[i] = 0xB2
		}

		So(d.Dispatch(ctx, off1), ShouldBeNil)
		So(d.Dispatch(ctx, off2), ShouldBeNil)
		So(calls, ShouldResemble, []call{
			{channel: 1, info: 0x11, dataSize: 64, first: 0xA1},
			{channel: 1, info: 0x22, dataSize: 128, first: 0xB2},
		})

		So(h.Free(off1), ShouldBeNil)
		So(h.Free(off2), ShouldBeNil)
		off3, p3 := h.Alloc(192, 1, 0)
		So(off3, ShouldNotEqual, area.VoidOffset)
		So(p3, ShouldHaveLength, 192)

		s := d.Stats()
		So(s.Dispatch.Delivered, ShouldEqual, 2)
		So(s.Channels, ShouldEqual, 1)
		So(s.Ring, ShouldBeNil)
	})
}

func TestDevice_Ring(t *testing.T) {
	Convey("ring records reach the host", t, func() {
		ctx := context.Background()
		d, err := New(ringConfig())
		So(err, ShouldBeNil)
		defer func() { _ = d.Close() }()

		var got []string
		collect := func(_ context.Context, record []byte) error {
			got = append(got, string(record))
			return nil
		}

		w, err := d.GuestRing(vbva.WithFlusher(vbva.FlusherFunc(func() {
			_, _ = d.DrainRing(ctx, collect)
		})))
		So(err, ShouldBeNil)

		Convey("the host enables the ring", func() {
			So(errors.ErrDisabled.Is(w.BeginRecord()), ShouldBeTrue)
			So(d.EnableVBVA(), ShouldBeNil)

			So(w.WriteRecord([]byte("first")), ShouldBeNil)
			So(w.WriteRecord([]byte("second")), ShouldBeNil)
			n, err := d.DrainRing(ctx, collect)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			So(got, ShouldResemble, []string{"first", "second"})
			So(d.Stats().Ring.Enabled(), ShouldBeTrue)
		})

		Convey("a corrupted ring is disabled", func() {
			So(d.EnableVBVA(), ShouldBeNil)
			So(w.WriteRecord([]byte("broken")), ShouldBeNil)

			mem := d.seg.Bytes()[4096:]
			binary.LittleEndian.PutUint32(mem[12:16], 0xFFFFFF)
			_, err := d.DrainRing(ctx, collect)
			So(errors.ErrCorrupted.Is(err), ShouldBeTrue)
			So(d.Stats().Ring.Enabled(), ShouldBeFalse)
			So(errors.ErrDisabled.Is(w.BeginRecord()), ShouldBeTrue)
		})

		Convey("handler errors stop the drain", func() {
			So(d.EnableVBVA(), ShouldBeNil)
			So(w.WriteRecord([]byte("a")), ShouldBeNil)
			So(w.WriteRecord([]byte("b")), ShouldBeNil)
			sentinel := stderrors.New("stop")
			n, err := d.DrainRing(ctx, func(context.Context, []byte) error { return sentinel })
			So(err, ShouldEqual, sentinel)
			So(n, ShouldEqual, 1)

			n, err = d.DrainRing(ctx, collect)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(got, ShouldResemble, []string{"b"})
		})
	})

	Convey("devices without a ring", t, func() {
		d, err := New(smallConfig())
		So(err, ShouldBeNil)
		defer func() { _ = d.Close() }()

		So(errors.ErrDisabled.Is(d.EnableVBVA()), ShouldBeTrue)
		_, err = d.DrainRing(context.Background(), nil)
		So(errors.ErrDisabled.Is(err), ShouldBeTrue)
		_, err = d.GuestRing()
		So(errors.ErrDisabled.Is(err), ShouldBeTrue)
	})
}

func TestDevice_Lifecycle(t *testing.T) {
	Convey("device lifecycle", t, func() {
		Convey("invalid config", func() {
			c := smallConfig()
			c.Heap.MaxBlockSize = 100
			_, err := New(c)
			So(errors.IsInvalidConfig(err), ShouldBeTrue)
		})

		Convey("segment creation fails", func() {
			stubs := gostub.Stub(&newSegment, func(config.Config) (shmem.Segment, error) {
				return nil, errors.ErrInternal.WithMessage("no memory")
			})
			defer stubs.Reset()
			_, err := New(smallConfig())
			So(stderrors.Is(err, errors.ErrInternal), ShouldBeTrue)
		})

		Convey("segment too small", func() {
			seg, err := shmem.Anonymous(1024)
			So(err, ShouldBeNil)
			_, err = New(smallConfig(), WithSegment(seg))
			So(errors.ErrAreaTooSmall.Is(err), ShouldBeTrue)
			So(seg.Bytes(), ShouldBeNil)
		})

		Convey("closed devices drop signals", func() {
			cfg := ringConfig()
			cfg.Area.File = filepath.Join(t.TempDir(), "segment")
			d, err := New(cfg)
			So(err, ShouldBeNil)
			So(d.EnableVBVA(), ShouldBeNil)
			So(d.Stats().Ring, ShouldNotBeNil)
			So(d.Close(), ShouldBeNil)
			So(d.Close(), ShouldBeNil)

			So(errors.ErrDisabled.Is(d.Dispatch(context.Background(), 0x2000)), ShouldBeTrue)
			_, err = d.DrainRing(context.Background(), nil)
			So(errors.ErrDisabled.Is(err), ShouldBeTrue)
			So(errors.ErrDisabled.Is(d.EnableVBVA()), ShouldBeTrue)
			d.DisableVBVA()
			_, err = d.GuestRing()
			So(errors.ErrDisabled.Is(err), ShouldBeTrue)
			_, err = d.GuestHeap()
			So(errors.ErrDisabled.Is(err), ShouldBeTrue)
			So(d.Image(), ShouldBeNil)

			st := d.Stats()
			So(st.Ring, ShouldBeNil)
			So(st.ID, ShouldEqual, d.ID())
		})

		Convey("dispatch opens a span", func() {
			recorder := tracetest.NewSpanRecorder()
			tracing.Init(tracing.Config{ServerName: "test", Enable: true}, recorder)
			defer tracing.Init(tracing.Config{})

			d, err := New(smallConfig())
			So(err, ShouldBeNil)
			defer func() { _ = d.Close() }()
			So(d.Dispatch(context.Background(), 0x2000), ShouldBeNil)

			ended := recorder.Ended()
			So(ended, ShouldHaveLength, 1)
			So(ended[0].Name(), ShouldEqual, "device/Dispatch")
		})
	})
}
