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
	"testing"

	// third-party libraries.
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRegister(t *testing.T) {
	Convey("register transport metrics", t, func() {
		So(RegisterHGSMIMetrics, ShouldNotPanic)
		So(RegisterHGSMIMetrics, ShouldNotPanic)

		err := prometheus.Register(HeapAllocFailedCounter)
		So(err, ShouldHaveSameTypeAs, prometheus.AlreadyRegisteredError{})
	})
}

func TestCounters(t *testing.T) {
	Convey("counter vectors", t, func() {
		before := testutil.ToFloat64(DispatchRejectedCounterVec.WithLabelValues("checksum"))
		DispatchRejectedCounterVec.WithLabelValues("checksum").Inc()
		So(testutil.ToFloat64(DispatchRejectedCounterVec.WithLabelValues("checksum")), ShouldEqual, before+1)

		HeapFreeBytesGauge.Set(4096)
		So(testutil.ToFloat64(HeapFreeBytesGauge), ShouldEqual, 4096)
	})
}
