package scheme

import (
	"fmt"
	"strconv"
	"strings"
)

// Options is the normalized option set of a message or field. Keys use dotted
// paths regardless of how the source spelled them: `options: {json: {x: 1}}`,
// `options: {json.x: 1}` and `options.json.x: 1` all yield key `json.x`.
// Options 是消息或字段的规范化选项集。无论源如何书写，键都使用点分路径。
type Options map[string]string

// Get retrieves an option with a default.
// Get 检索选项，缺失时返回默认值。
func (o Options) Get(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

// Bool interprets an option as a flag: `yes`, `true` and `1` are true.
// Bool 将选项解释为标志：`yes`、`true` 和 `1` 为真。
func (o Options) Bool(key string) bool {
	switch o.Get(key, "") {
	case "yes", "true", "1":
		return true
	}
	return false
}

// Int interprets an option as an integer with a default.
// Int 将选项解释为整数，缺失或无效时返回默认值。
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// collectOptions normalizes the option keys of a YAML definition map into
// dotted form.
func collectOptions(def map[string]interface{}, into Options) {
	for k, v := range def {
		switch {
		case k == "options":
			flattenOption("", v, into)
		case strings.HasPrefix(k, "options."):
			flattenOption(k[len("options."):], v, into)
		}
	}
}

func flattenOption(prefix string, v interface{}, into Options) {
	if m, ok := v.(map[string]interface{}); ok {
		for k, sub := range m {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flattenOption(p, sub, into)
		}
		return
	}
	if prefix == "" {
		return
	}
	switch val := v.(type) {
	case string:
		into[prefix] = val
	case bool:
		if val {
			into[prefix] = "yes"
		} else {
			into[prefix] = "no"
		}
	default:
		into[prefix] = fmt.Sprint(val)
	}
}
