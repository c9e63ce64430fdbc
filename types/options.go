/*
 * Copyright 2024 The RuleGo Authors.
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

// Option is a function type that modifies the Config.
// Option 是修改 Config 的函数类型。
//
// Usage Pattern:
// 使用模式：
//
//	cfg := types.NewConfig(
//	    types.WithLogger(customLogger),
//	    types.WithProperties(props),
//	)
type Option func(*Config) error

// WithLogger is an option that sets the logger of the Config.
// WithLogger 是设置 Config 日志记录器的选项。
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithProperties is an option that sets the global properties of the Config.
// WithProperties 是设置 Config 全局属性的选项。
func WithProperties(properties Props) Option {
	return func(c *Config) error {
		c.Properties = properties
		return nil
	}
}
