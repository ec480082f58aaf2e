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
	"sync"

	// third-party libraries.
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/config"
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/buddy"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/channel"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/heap"
	"github.com/linkall-labs/hgsmi/internal/shmem"
	"github.com/linkall-labs/hgsmi/internal/vbva"
	"github.com/linkall-labs/hgsmi/observability/log"
	"github.com/linkall-labs/hgsmi/observability/metrics"
	"github.com/linkall-labs/hgsmi/observability/tracing"
)

var newSegment = func(cfg config.Config) (shmem.Segment, error) {
	if cfg.Area.File != "" {
		return shmem.OpenFile(cfg.Area.File, cfg.SegmentSize())
	}
	return shmem.Anonymous(cfg.SegmentSize())
}

type options struct {
	segment shmem.Segment
}

type Option func(*options)

// WithSegment lays the device out in seg instead of a newly created segment. The device
// takes ownership of seg.
func WithSegment(seg shmem.Segment) Option {
	return func(o *options) {
		o.segment = seg
	}
}

// RecordHandler receives each record drained from the ring.
type RecordHandler func(ctx context.Context, record []byte) error

// Device is the host end of one shared segment, laid out as the heap area followed by
// the ring when it is enabled.
type Device struct {
	id     uuid.UUID
	cfg    config.Config
	seg    shmem.Segment
	tracer *tracing.Tracer

	area       *area.Area
	heap       *heap.Heap
	registry   *channel.Registry
	dispatcher *channel.Dispatcher

	ring   []byte
	drainM sync.Mutex
	reader *vbva.Reader

	// mu keeps the segment mapped while a dispatch or drain runs.
	mu     sync.RWMutex
	closed atomic.Bool
}

func New(cfg config.Config, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	metrics.RegisterHGSMIMetrics()

	seg := o.segment
	if seg == nil {
		var err error
		if seg, err = newSegment(cfg); err != nil {
			return nil, err
		}
	}
	d, err := attach(cfg, seg)
	if err != nil {
		_ = seg.Close()
		return nil, err
	}
	log.Info(context.Background(), "device attached", map[string]interface{}{
		log.KeyDeviceID: d.id.String(),
		"area_size":     cfg.Area.Size,
		"base_offset":   cfg.Area.BaseOffset,
		"vbva":          cfg.VBVA.Enable,
	})
	return d, nil
}

func attach(cfg config.Config, seg shmem.Segment) (*Device, error) {
	mem := seg.Bytes()
	if len(mem) < cfg.SegmentSize() {
		return nil, errors.ErrAreaTooSmall.WithMessagef("segment of %d bytes, need %d", len(mem), cfg.SegmentSize())
	}

	a, err := area.New(mem[:cfg.Area.Size], area.Offset(cfg.Area.BaseOffset))
	if err != nil {
		return nil, err
	}
	h, err := heap.New(a, cfg.Heap.MaxBlockSize, cfg.Heap.Options()...)
	if err != nil {
		return nil, err
	}
	registry := channel.NewRegistry()

	d := &Device{
		id:         uuid.New(),
		cfg:        cfg,
		seg:        seg,
		tracer:     tracing.NewTracer("device", oteltrace.SpanKindInternal),
		area:       a,
		heap:       h,
		registry:   registry,
		dispatcher: channel.NewDispatcher(a, registry, cfg.Dispatch.Options()...),
	}

	if cfg.VBVA.Enable {
		end := int(cfg.Area.Size) + vbva.BufferSize(cfg.VBVA.DataSize)
		d.ring = mem[cfg.Area.Size:end]
		if err = vbva.Format(d.ring, cfg.VBVA.DataSize, cfg.VBVA.PartialThreshold); err != nil {
			return nil, err
		}
		if d.reader, err = vbva.NewReader(d.ring); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Device) ID() string {
	return d.id.String()
}

func (d *Device) Area() *area.Area {
	return d.area
}

func (d *Device) Register(id uint8, name string, h channel.Handler) error {
	if err := d.registry.Register(id, name, h); err != nil {
		return err
	}
	log.Info(context.Background(), "channel registered", map[string]interface{}{
		log.KeyDeviceID:    d.id.String(),
		log.KeyChannel:     id,
		log.KeyChannelName: name,
	})
	return nil
}

func (d *Device) Unregister(id uint8) error {
	return d.registry.Unregister(id)
}

// Dispatch handles a "buffer ready" signal for the buffer at off.
func (d *Device) Dispatch(ctx context.Context, off area.Offset) error {
	ctx, span := d.tracer.Start(ctx, "Dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int64(log.KeyOffset, int64(off)))

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return errors.ErrDisabled.WithMessage("device closed")
	}
	if err := d.dispatcher.Dispatch(ctx, off); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}
	return nil
}

func (d *Device) EnableVBVA() error {
	if d.reader == nil {
		return errors.ErrDisabled.WithMessage("ring is not configured")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return errors.ErrDisabled.WithMessage("device closed")
	}
	d.reader.Enable()
	return nil
}

// DisableVBVA does nothing once the device is closed.
func (d *Device) DisableVBVA() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return
	}
	d.disableRing()
}

func (d *Device) disableRing() {
	if d.reader != nil {
		d.reader.Disable()
	}
}

// DrainRing passes every completed record to fn. A corrupted ring is disabled so the
// guest stops producing into it.
func (d *Device) DrainRing(ctx context.Context, fn RecordHandler) (int, error) {
	ctx, span := d.tracer.Start(ctx, "DrainRing")
	defer span.End()

	if d.reader == nil {
		return 0, errors.ErrDisabled.WithMessage("ring is not configured")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return 0, errors.ErrDisabled.WithMessage("device closed")
	}
	d.drainM.Lock()
	defer d.drainM.Unlock()

	n, err := d.reader.Drain(func(record []byte) error {
		return fn(ctx, record)
	})
	span.SetAttributes(attribute.Int("records", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "drain failed")
		if errors.ErrCorrupted.Is(err) {
			d.reader.Disable()
			log.Error(ctx, "ring corrupted, disabled", map[string]interface{}{
				log.KeyDeviceID: d.id.String(),
				log.KeyError:    err,
			})
		}
		return n, err
	}
	return n, nil
}

// GuestHeap is the allocator the guest side uses for command buffers.
// It must not be used after Close.
func (d *Device) GuestHeap() (*heap.Heap, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return nil, errors.ErrDisabled.WithMessage("device closed")
	}
	return d.heap, nil
}

// GuestRing returns a producer view of the ring, as the guest driver would hold it.
func (d *Device) GuestRing(opts ...vbva.WriterOption) (*vbva.Writer, error) {
	if d.ring == nil {
		return nil, errors.ErrDisabled.WithMessage("ring is not configured")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return nil, errors.ErrDisabled.WithMessage("device closed")
	}
	return vbva.NewWriter(d.ring, opts...)
}

// Image copies the whole segment.
func (d *Device) Image() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return nil
	}
	return append([]byte(nil), d.seg.Bytes()...)
}

type Stats struct {
	ID       string                `json:"id"`
	Heap     buddy.Stats           `json:"heap"`
	Dispatch channel.DispatchStats `json:"dispatch"`
	Channels int                   `json:"channels"`
	Ring     *vbva.State           `json:"ring,omitempty"`
}

func (d *Device) Stats() Stats {
	s := Stats{
		ID:       d.id.String(),
		Heap:     d.heap.Stats(),
		Dispatch: d.dispatcher.Stats(),
		Channels: d.registry.Len(),
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.ring != nil && !d.closed.Load() {
		if st, err := vbva.Inspect(d.ring); err == nil {
			s.Ring = &st
		}
	}
	return s
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed.CAS(false, true) {
		return nil
	}
	d.disableRing()
	log.Info(context.Background(), "device detached", map[string]interface{}{
		log.KeyDeviceID: d.id.String(),
	})
	return d.seg.Close()
}
