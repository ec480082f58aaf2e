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
	moduleOfVBVA = "vbva"

	VBVARecordCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfVBVA,
		Name:      "record_count",
		Help:      "Total records consumed from the ring",
	})

	VBVAByteCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfVBVA,
		Name:      "byte_count",
		Help:      "Total bytes consumed from the ring",
	})

	VBVAPartialReadCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfVBVA,
		Name:      "partial_read_count",
		Help:      "Total reads taken from records still being written",
	})

	VBVAOverflowCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfVBVA,
		Name:      "overflow_count",
		Help:      "Total writes stopped because the ring or a record was full",
	})

	VBVACorruptedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: moduleOfVBVA,
		Name:      "corrupted_count",
		Help:      "Total times the ring control words failed validation",
	})
)
