/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package common provides the basic in-process transports: null://, mem://
// and direct://.
// 包 common 提供基础的进程内传输：null://、mem:// 和 direct://。
package common

import (
	"github.com/bittoy/channel/types"
)

// Registry collects the implementations of this package for the engine's
// default registry.
// Registry 为引擎的默认注册表收集本包的实现。
var Registry = &types.SafeImplSlice{}

func init() {
	Registry.Add(&Null{}, &Direct{}, &Mem{})
}
