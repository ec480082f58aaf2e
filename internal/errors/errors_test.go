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

package errors

import (
	// standard libraries.
	stderrors "errors"
	"fmt"
	"testing"

	// third-party libraries.
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorType(t *testing.T) {
	Convey("error type builder", t, func() {
		err := ErrNoSpace.WithMessage("allocate 64 bytes")
		So(err.Error(), ShouldEqual, "not enough space: allocate 64 bytes")
		So(ErrNoSpace.Message, ShouldEqual, "")
		So(stderrors.Is(err, ErrNoSpace), ShouldBeTrue)
		So(stderrors.Is(err, ErrRecordsFull), ShouldBeFalse)

		Convey("wrapped underlay error", func() {
			cause := fmt.Errorf("boom")
			wrapped := ErrInternal.Wrap(cause)
			So(wrapped.Error(), ShouldEqual, "internal error: boom")
			So(stderrors.Unwrap(wrapped), ShouldEqual, cause)
			So(ErrInternal.Wrap(nil), ShouldEqual, ErrInternal)
		})

		Convey("classification", func() {
			So(IsExhausted(fmt.Errorf("ctx: %w", ErrNoSpace)), ShouldBeTrue)
			So(IsMalformed(ErrInvalidBuffer.WithMessage("checksum")), ShouldBeTrue)
			So(IsInvalidConfig(ErrAlreadyRegistered), ShouldBeTrue)
			So(IsInvalidConfig(fmt.Errorf("plain")), ShouldBeFalse)
			So(ErrorCode_EXHAUSTED.String(), ShouldEqual, "EXHAUSTED")
		})
	})
}

func TestChain(t *testing.T) {
	Convey("chain errors", t, func() {
		So(Chain(), ShouldBeNil)
		So(Chain(nil, nil), ShouldBeNil)
		e1 := fmt.Errorf("e1")
		So(Chain(nil, e1), ShouldEqual, e1)
		So(Chain(e1, nil, fmt.Errorf("e2")).Error(), ShouldEqual, "e2: e1")
	})
}
