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

package buddy

import (
	// third-party libraries.
	"go.uber.org/atomic"
)

// Env accounts for host-side bookkeeping nodes. Reserve returning false makes the
// operation that needed the nodes fail with "no space".
type Env interface {
	Reserve(n int) bool
	Release(n int)
}

type unboundedEnv struct{}

func (unboundedEnv) Reserve(int) bool { return true }
func (unboundedEnv) Release(int)      {}

// LimitEnv allows at most limit bookkeeping nodes at a time.
type LimitEnv struct {
	limit int64
	inUse atomic.Int64
}

var _ Env = (*LimitEnv)(nil)

func NewLimitEnv(limit int) *LimitEnv {
	return &LimitEnv{limit: int64(limit)}
}

func (e *LimitEnv) Reserve(n int) bool {
	for {
		cur := e.inUse.Load()
		if cur+int64(n) > e.limit {
			return false
		}
		if e.inUse.CAS(cur, cur+int64(n)) {
			return true
		}
	}
}

func (e *LimitEnv) Release(n int) {
	e.inUse.Sub(int64(n))
}

func (e *LimitEnv) InUse() int {
	return int(e.inUse.Load())
}
