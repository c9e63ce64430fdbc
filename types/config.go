/*
 * Copyright 2023 The RuleGo Authors.
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

package types

// Config defines the runtime configuration for a channel context.
// Config 定义通道上下文的运行时配置。
//
// Usage Example:
// 使用示例：
//
//	cfg := types.NewConfig(
//	    types.WithLogger(myLogger),
//	)
//	ctx := engine.NewContext(cfg)
type Config struct {
	// Logger is the logging interface, defaulting to DefaultLogger().
	// Logger 是日志接口，默认为 DefaultLogger()。
	Logger Logger

	// Properties are global properties in key-value format, available to
	// implementations through their context.
	// Properties 是键值格式的全局属性，实现可通过其上下文获取。
	Properties Props
}

// NewConfig creates a new Config with default values and applies the
// provided options.
// NewConfig 创建具有默认值的新 Config 并应用提供的选项。
func NewConfig(opts ...Option) Config {
	c := &Config{
		Logger:     DefaultLogger(),
		Properties: make(Props),
	}
	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}
