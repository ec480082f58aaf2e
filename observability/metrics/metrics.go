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

import (
	// standard libraries.
	"sync"

	// third-party libraries.
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	namespace = "hgsmi"
)

var registerOnce sync.Once

// RegisterHGSMIMetrics registers all transport collectors with the default registry.
// Calling it more than once is harmless.
func RegisterHGSMIMetrics() {
	registerOnce.Do(func() {
		registerGoRuntimeMetrics()
		prometheus.MustRegister(DispatchBufferCounterVec)
		prometheus.MustRegister(DispatchRejectedCounterVec)
		prometheus.MustRegister(DispatchPayloadByteCounterVec)
		prometheus.MustRegister(HeapAllocFailedCounter)
		prometheus.MustRegister(HeapFreeBytesGauge)
		prometheus.MustRegister(VBVARecordCounter)
		prometheus.MustRegister(VBVAByteCounter)
		prometheus.MustRegister(VBVAPartialReadCounter)
		prometheus.MustRegister(VBVAOverflowCounter)
		prometheus.MustRegister(VBVACorruptedCounter)
	})
}

func registerGoRuntimeMetrics() {
	prometheus.MustRegister(collectors.NewBuildInfoCollector())
}
