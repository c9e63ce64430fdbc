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

// Package maps provides conversion helpers between parameter maps and
// configuration structs.
// 包 maps 提供参数映射与配置结构体之间的转换辅助函数。
package maps

import (
	"github.com/fatih/structs"
	"github.com/mitchellh/mapstructure"
)

// Map2Struct decodes a parameter map into a configuration struct. Decoding is
// weakly typed: string values convert to numeric and boolean fields, matching
// how URL parameters arrive.
// Map2Struct 将参数映射解码为配置结构体。解码是弱类型的：字符串值会转换为
// 数值和布尔字段，与 URL 参数的到达形式一致。
func Map2Struct(input interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
		TagName:          "map",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Struct2Map converts a struct into a map keyed by field names.
// Struct2Map 将结构体转换为以字段名为键的映射。
func Struct2Map(input interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}
	s := structs.New(input)
	s.TagName = "map"
	return s.Map()
}

// Copy copies all key-value pairs of src into dst.
// Copy 将 src 的所有键值对复制到 dst。
func Copy[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}
