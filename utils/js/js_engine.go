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

// Package js provides JavaScript execution capabilities for channel filters.
//
// This package implements a JavaScript engine using the goja library. It
// compiles user scripts once at channel initialization and executes named
// functions per message on the channel's loop; the engine is never shared
// between channels.
package js

import (
	"errors"

	"github.com/dop251/goja"
)

const GlobalKey = "global"

// GojaJsEngine goja js engine
type GojaJsEngine struct {
	vm *goja.Runtime
}

// NewGojaJsEngine creates a new instance of the JavaScript engine and runs
// the script so its function definitions become available.
func NewGojaJsEngine(jsScript string, globals map[string]interface{}) (*GojaJsEngine, error) {
	vm := goja.New()
	if _, err := vm.RunString(jsScript); err != nil {
		return nil, err
	}
	if len(globals) != 0 {
		if err := vm.Set(GlobalKey, globals); err != nil {
			return nil, err
		}
	}
	return &GojaJsEngine{vm: vm}, nil
}

// Execute executes a named JavaScript function with the given arguments.
func (g *GojaJsEngine) Execute(funcName string, argumentList ...interface{}) (interface{}, error) {
	var params []goja.Value
	if len(argumentList) > 0 {
		params = make([]goja.Value, len(argumentList))
		for i, v := range argumentList {
			params[i] = g.vm.ToValue(v)
		}
	}

	f, ok := goja.AssertFunction(g.vm.Get(funcName))
	if !ok {
		return nil, errors.New(funcName + " is not a function")
	}

	res, err := f(goja.Undefined(), params...)
	if err != nil {
		return nil, err
	}
	return res.Export(), nil
}

func (g *GojaJsEngine) Stop() {
}
