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
	"sync"
	"testing"

	// third-party libraries.
	. "github.com/smartystreets/goconvey/convey"

	// this project.
	"github.com/linkall-labs/hgsmi/internal/errors"
)

func nopHandler() Handler {
	return HandlerFunc(func(context.Context, uint16, []byte) error {
		return nil
	})
}

func TestRegistry(t *testing.T) {
	Convey("channel registry", t, func() {
		r := NewRegistry()

		Convey("register and find", func() {
			So(r.Register(3, "video", nopHandler()), ShouldBeNil)
			c, ok := r.Find(3)
			So(ok, ShouldBeTrue)
			So(c.ID, ShouldEqual, 3)
			So(c.Name, ShouldEqual, "video")
			So(c.String(), ShouldEqual, "3(video)")
			So(r.Len(), ShouldEqual, 1)

			_, ok = r.Find(4)
			So(ok, ShouldBeFalse)
		})

		Convey("double registration", func() {
			So(r.Register(3, "video", nopHandler()), ShouldBeNil)
			err := r.Register(3, "other", nopHandler())
			So(errors.IsInvalidConfig(err), ShouldBeTrue)
			So(errors.ErrAlreadyRegistered.Is(err), ShouldBeTrue)

			c, _ := r.Find(3)
			So(c.Name, ShouldEqual, "video")
		})

		Convey("setup mistakes", func() {
			So(errors.IsInvalidConfig(r.Register(ReservedID, "reserved", nopHandler())), ShouldBeTrue)
			So(errors.IsInvalidConfig(r.Register(5, "nil", nil)), ShouldBeTrue)
			So(errors.IsInvalidConfig(r.Unregister(5)), ShouldBeTrue)
			So(r.Len(), ShouldEqual, 0)
		})

		Convey("unregister frees the slot", func() {
			So(r.Register(255, "last", nopHandler()), ShouldBeNil)
			So(r.Unregister(255), ShouldBeNil)
			_, ok := r.Find(255)
			So(ok, ShouldBeFalse)
			So(r.Register(255, "again", nopHandler()), ShouldBeNil)
		})

		Convey("range visits registered channels in id order", func() {
			for _, id := range []uint8{200, 7, 42} {
				So(r.Register(id, "c", nopHandler()), ShouldBeNil)
			}
			var ids []uint8
			r.Range(func(c Channel) bool {
				ids = append(ids, c.ID)
				return true
			})
			So(ids, ShouldResemble, []uint8{7, 42, 200})

			ids = ids[:0]
			r.Range(func(c Channel) bool {
				ids = append(ids, c.ID)
				return false
			})
			So(ids, ShouldResemble, []uint8{7})
		})

		Convey("concurrent registration and lookup", func() {
			wg := sync.WaitGroup{}
			for i := 1; i < NumChannels; i++ {
				wg.Add(2)
				go func(id uint8) {
					defer wg.Done()
					_ = r.Register(id, "c", nopHandler())
				}(uint8(i))
				go func(id uint8) {
					defer wg.Done()
					_, _ = r.Find(id)
				}(uint8(i))
			}
			wg.Wait()
			So(r.Len(), ShouldEqual, NumChannels-1)
		})
	})
}
