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

package channel

import (
	// standard libraries.
	"context"
	"strconv"

	// third-party libraries.
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/area"
	"github.com/linkall-labs/hgsmi/internal/hgsmi/frame"
	"github.com/linkall-labs/hgsmi/internal/util"
	"github.com/linkall-labs/hgsmi/observability/log"
	"github.com/linkall-labs/hgsmi/observability/metrics"
)

const (
	defaultRejectLogLimit = rate.Limit(10)
	defaultRejectLogBurst = 10
)

type config struct {
	rejectLogLimit rate.Limit
	rejectLogBurst int
}

func defaultConfig() config {
	return config{
		rejectLogLimit: defaultRejectLogLimit,
		rejectLogBurst: defaultRejectLogBurst,
	}
}

type Option func(*config)

// WithRejectLogLimit caps warnings about dropped buffers to limit per second.
func WithRejectLogLimit(limit rate.Limit, burst int) Option {
	return func(cfg *config) {
		cfg.rejectLogLimit = limit
		cfg.rejectLogBurst = burst
	}
}

func makeConfig(opts ...Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type DispatchStats struct {
	Delivered     uint64
	Rejected      uint64
	Unregistered  uint64
	HandlerFailed uint64
}

// Dispatcher delivers buffers signalled by the guest to the channel handlers. A buffer
// that fails validation or names an unregistered channel is dropped: Dispatch returns nil
// and the guest sees no reply.
type Dispatcher struct {
	area     area.Interface
	registry *Registry
	limiter  *rate.Limiter

	delivered     atomic.Uint64
	rejected      atomic.Uint64
	unregistered  atomic.Uint64
	handlerFailed atomic.Uint64
}

func NewDispatcher(a area.Interface, r *Registry, opts ...Option) *Dispatcher {
	cfg := makeConfig(opts...)
	return &Dispatcher{
		area:     a,
		registry: r,
		limiter:  rate.NewLimiter(cfg.rejectLogLimit, cfg.rejectLogBurst),
	}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch validates the buffer at off and runs its channel's handler. Only the handler's
// own failure is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, off area.Offset) error {
	buf, err := frame.Validate(d.area, off)
	if err != nil {
		d.rejected.Inc()
		d.reject(ctx, frame.Reason(err), off, err)
		return nil
	}

	ch, ok := d.registry.Find(buf.Header.Channel)
	if !ok {
		d.unregistered.Inc()
		d.reject(ctx, metrics.LabelValueUnregistered, off, nil)
		return nil
	}

	payload, ok := d.area.Bytes(buf.Payload, buf.DataSize())
	if !ok {
		d.rejected.Inc()
		d.reject(ctx, frame.ReasonSize, off, nil)
		return nil
	}

	label := strconv.Itoa(int(ch.ID))
	if err = d.invoke(ctx, ch, buf.Header.ChannelInfo, payload); err != nil {
		d.handlerFailed.Inc()
		metrics.DispatchBufferCounterVec.WithLabelValues(label, metrics.LabelValueFail).Inc()
		return err
	}
	d.delivered.Inc()
	metrics.DispatchBufferCounterVec.WithLabelValues(label, metrics.LabelValueSuccess).Inc()
	metrics.DispatchPayloadByteCounterVec.WithLabelValues(label).Add(float64(len(payload)))
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, ch Channel, info uint16, payload []byte) (err error) {
	defer util.HandlePanic(func(r interface{}) {
		err = errors.ErrInternal.WithMessagef("channel %s handler panicked: %v", ch, r)
	})
	if err = ch.Handler.Handle(ctx, info, payload); err != nil {
		return pkgerrors.Wrapf(err, "channel %s", ch)
	}
	return nil
}

func (d *Dispatcher) reject(ctx context.Context, reason string, off area.Offset, err error) {
	metrics.DispatchRejectedCounterVec.WithLabelValues(reason).Inc()
	if !d.limiter.Allow() {
		return
	}
	fields := map[string]interface{}{
		log.KeyReason: reason,
		log.KeyOffset: uint32(off),
	}
	if err != nil {
		fields[log.KeyError] = err
	}
	log.Warning(ctx, "drop guest buffer", fields)
}

func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered:     d.delivered.Load(),
		Rejected:      d.rejected.Load(),
		Unregistered:  d.unregistered.Load(),
		HandlerFailed: d.handlerFailed.Load(),
	}
}
