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

package log

import (
	// standard libraries.
	"bytes"
	"context"
	"testing"

	// third-party libraries.
	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaultLogger(t *testing.T) {
	Convey("default logger", t, func() {
		buf := &bytes.Buffer{}
		SetLogWriter(buf)
		defer SetLogWriter(&bytes.Buffer{})
		defer SetLogLevel("info")

		SetLogLevel("warn")
		Info(context.Background(), "hidden", map[string]interface{}{KeyChannel: 2})
		So(buf.Len(), ShouldEqual, 0)

		Warning(context.Background(), "buffer dropped", map[string]interface{}{
			KeyChannel: 2,
			KeyReason:  "checksum",
		})
		So(buf.String(), ShouldContainSubstring, "buffer dropped")
		So(buf.String(), ShouldContainSubstring, "reason=checksum")

		Convey("empty entries are skipped", func() {
			buf.Reset()
			Error(context.Background(), "", nil)
			So(buf.Len(), ShouldEqual, 0)
		})
	})
}

func TestParseLevel(t *testing.T) {
	Convey("parse level", t, func() {
		So(parseLevel("DEBUG"), ShouldEqual, logrus.DebugLevel)
		So(parseLevel("warning"), ShouldEqual, logrus.WarnLevel)
		So(parseLevel("error"), ShouldEqual, logrus.ErrorLevel)
		So(parseLevel(""), ShouldEqual, logrus.InfoLevel)
	})
}
