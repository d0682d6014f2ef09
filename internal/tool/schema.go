package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// validator 包装编译后的 schema。根校验器遇到第一处违规即返回，
// 对象层面的 required、additionalProperties 与各属性另行逐项检查。
type validator struct {
	resolved   *jsonschema.Resolved
	required   []string
	closed     bool
	declared   map[string]bool
	properties map[string]*validator
}

// compileSchema 将 map 形式的 schema 解析为可复用的校验器，空 schema 视为任意对象。
func compileSchema(raw Schema) (*validator, error) {
	if len(raw) == 0 {
		raw = Schema{"type": "object"}
	}
	return buildValidator(raw)
}

func buildValidator(raw map[string]any) (*validator, error) {
	resolved, err := resolveSchema(raw)
	if err != nil {
		return nil, err
	}
	v := &validator{resolved: resolved, required: stringList(raw["required"])}
	if allowed, ok := raw["additionalProperties"].(bool); ok && !allowed {
		v.closed = true
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		v.declared = make(map[string]bool, len(props))
		v.properties = make(map[string]*validator, len(props))
		for name, sub := range props {
			v.declared[name] = true
			subRaw, ok := sub.(map[string]any)
			if !ok {
				continue
			}
			// 含 $ref 等无法单独解析的子 schema 只由根校验器负责。
			if pv, err := buildValidator(subRaw); err == nil {
				v.properties[name] = pv
			}
		}
	}
	return v, nil
}

func resolveSchema(raw map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return resolved, nil
}

// Validate 校验 value，失败时错误信息以 "; " 连接全部违规项。
func (v *validator) Validate(value any) error {
	if v.resolved.Validate(value) == nil {
		return nil
	}
	return errors.New(strings.Join(v.violations("", value), "; "))
}

func (v *validator) violations(path string, value any) []string {
	err := v.resolved.Validate(value)
	if err == nil {
		return nil
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return []string{violation(path, cleanMessage(err))}
	}

	var out []string
	for _, name := range v.required {
		if _, present := obj[name]; !present {
			out = append(out, violation(path, fmt.Sprintf("missing required property %q", name)))
		}
	}
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v.closed && !v.declared[name] {
			out = append(out, violation(path, fmt.Sprintf("unexpected property %q", name)))
			continue
		}
		if sub := v.properties[name]; sub != nil {
			out = append(out, sub.violations(path+"/"+name, obj[name])...)
		}
	}
	if len(out) == 0 {
		out = []string{violation(path, cleanMessage(err))}
	}
	return out
}

func violation(path, msg string) string {
	if path == "" {
		path = "/"
	}
	return path + ": " + msg
}

// cleanMessage 去掉校验器附加的根路径前缀，路径由 violations 自行拼接。
func cleanMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "validating root: ")
}

func stringList(value any) []string {
	switch list := value.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// normalize 通过 JSON 往返把适配器返回的 Go 值转换为 JSON 数据模型，
// 保证数字、切片等类型与 schema 校验器的预期一致。
func normalize(value map[string]any) (map[string]any, error) {
	if value == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
