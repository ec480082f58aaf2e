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

package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	moduleOfDispatcher = "dispatcher"
	moduleOfHeap       = "heap"

	DispatchBufferCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfDispatcher,
		Name:      "buffer_count",
		Help:      "Total buffers delivered to channel handlers",
	}, []string{LabelChannel, LabelResult})

	DispatchRejectedCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfDispatcher,
		Name:      "rejected_count",
		Help:      "Total buffers dropped before reaching a handler",
	}, []string{LabelReason})

	DispatchPayloadByteCounterVec = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfDispatcher,
		Name:      "payload_byte_count",
		Help:      "Total payload bytes delivered to channel handlers",
	}, []string{LabelChannel})

	HeapAllocFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfHeap,
		Name:      "alloc_failed_count",
		Help:      "Total buffer allocations that found no free block",
	})

	HeapFreeBytesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: moduleOfHeap,
		Name:      "free_bytes",
		Help:      "Free bytes in the shared heap",
	})
)
