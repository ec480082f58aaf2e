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

package heap

import (
	// standard libraries.
	"context"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/buddy"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/frame"
	"github.com/linkall-labs/hgsmi/observability/log"
	"github.com/linkall-labs/hgsmi/observability/metrics"
)

type config struct {
	env         buddy.Env
	descriptors []buddy.Descriptor
}

type Option func(*config)

func WithEnv(env buddy.Env) Option {
	return func(cfg *config) {
		cfg.env = env
	}
}

// WithDescriptors restores a previously published block table instead of starting empty.
func WithDescriptors(ds []buddy.Descriptor) Option {
	return func(cfg *config) {
		cfg.descriptors = ds
	}
}

func makeConfig(opts ...Option) config {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Heap hands out framed single buffers carved from an area by a buddy allocator.
type Heap struct {
	area      area.Interface
	allocator *buddy.Allocator
}

func New(a area.Interface, maxBlockSize uint32, opts ...Option) (*Heap, error) {
	cfg := makeConfig(opts...)
	al, err := buddy.New(a, cfg.descriptors, maxBlockSize, cfg.env)
	if err != nil {
		return nil, err
	}
	h := &Heap{
		area:      a,
		allocator: al,
	}
	h.updateGauge()
	return h, nil
}

// Alloc reserves a buffer for dataSize payload bytes on the given channel. It returns the
// header offset and a view of the payload, or area.VoidOffset and nil when the heap is
// exhausted.
func (h *Heap) Alloc(dataSize uint32, channel uint8, channelInfo uint16) (area.Offset, []byte) {
	if dataSize > h.allocator.MaxBlockSize()-frame.MinBufferSize {
		metrics.HeapAllocFailedCounter.Inc()
		return area.VoidOffset, nil
	}
	size := frame.FrameSize(dataSize)

	off := h.allocator.Allocate(size)
	if off == area.VoidOffset {
		metrics.HeapAllocFailedCounter.Inc()
		log.Debug(context.Background(), "no free block for buffer", map[string]interface{}{
			log.KeyDataSize: dataSize,
			log.KeyChannel:  channel,
		})
		return area.VoidOffset, nil
	}

	hdr := h.area.ToPointer(off)
	if frame.InitializeSingle(h.area, hdr, size, channel, channelInfo) == area.VoidOffset {
		// the block is inside the area, so this only happens on a broken area view.
		_ = h.allocator.Free(off)
		metrics.HeapAllocFailedCounter.Inc()
		return area.VoidOffset, nil
	}
	h.updateGauge()

	payload, _ := h.area.Bytes(frame.PayloadPointer(hdr), dataSize)
	return off, payload
}

// Free returns the buffer at off to the heap.
func (h *Heap) Free(off area.Offset) error {
	if err := h.allocator.Free(off); err != nil {
		return err
	}
	h.updateGauge()
	return nil
}

// Payload validates the buffer at off and returns a view of its payload.
func (h *Heap) Payload(off area.Offset) ([]byte, error) {
	buf, err := frame.Validate(h.area, off)
	if err != nil {
		return nil, err
	}
	payload, ok := h.area.Bytes(buf.Payload, buf.DataSize())
	if !ok {
		return nil, errors.ErrInvalidBuffer.WithMessage(frame.ReasonSize)
	}
	return payload, nil
}

func (h *Heap) Area() area.Interface {
	return h.area
}

func (h *Heap) Allocator() *buddy.Allocator {
	return h.allocator
}

func (h *Heap) Stats() buddy.Stats {
	return h.allocator.Stats()
}

func (h *Heap) updateGauge() {
	metrics.HeapFreeBytesGauge.Set(float64(h.allocator.Stats().FreeBytes))
}
