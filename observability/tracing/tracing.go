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

package tracing

import (
	// standard libraries.
	"context"
	"strings"
	"sync"

	// third-party libraries.
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	// this project.
	"github.com/linkall-labs/hgsmi/observability/log"
)

const (
	hgsmiVersion     = "v0.1.0"
	environmentKey   = "environment"
	environmentValue = "local"
)

type Config struct {
	ServerName string `yaml:"-"`
	Enable     bool   `yaml:"enable"`
}

var (
	mu sync.RWMutex
	tp oteltrace.TracerProvider
)

// Init installs the process wide tracer provider. Extra span processors, for
// example an exporter, are attached as given. A disabled config installs a
// noop provider.
func Init(cfg Config, processors ...trace.SpanProcessor) {
	mu.Lock()
	defer mu.Unlock()

	if !cfg.Enable {
		tp = oteltrace.NewNoopTracerProvider()
		return
	}
	if cfg.ServerName == "" {
		log.Info(context.Background(), "tracing name is empty, use default", nil)
		cfg.ServerName = "hgsmi"
	}

	opts := []trace.TracerProviderOption{trace.WithSampler(trace.AlwaysSample())}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServerName),
		semconv.ServiceVersionKey.String(hgsmiVersion),
		attribute.String(environmentKey, environmentValue),
	))
	if err != nil {
		log.Warning(context.Background(), "failed to merge tracing resource", map[string]interface{}{
			log.KeyError: err,
		})
	} else {
		opts = append(opts, trace.WithResource(res))
	}
	for _, p := range processors {
		opts = append(opts, trace.WithSpanProcessor(p))
	}

	provider := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	tp = provider
}

func provider() oteltrace.TracerProvider {
	mu.RLock()
	defer mu.RUnlock()
	return tp
}

type Tracer struct {
	tracer     oteltrace.Tracer
	kind       oteltrace.SpanKind
	moduleName string
}

func (t *Tracer) Start(ctx context.Context, methodName string,
	opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, strings.Join([]string{t.moduleName, methodName}, "/"),
		append(opts, oteltrace.WithSpanKind(t.kind))...)
}

// NewTracer binds to the provider installed by Init at call time.
func NewTracer(moduleName string, kind oteltrace.SpanKind) *Tracer {
	p := provider()
	if p == nil {
		p = oteltrace.NewNoopTracerProvider()
	}
	return &Tracer{
		tracer:     p.Tracer(moduleName),
		kind:       kind,
		moduleName: moduleName,
	}
}
