package util

import "strings"

// NormalizeRecord 将 snake_case 的行记录规范化为 camelCase。
// 已经是 camelCase 的记录原样通过（幂等），因此内部调用方可以把
// 规范化后的对象安全地再次送入同一条代码路径。
// 当两种写法同时存在时，camelCase 的值优先。
func NormalizeRecord(raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return nil
	}

	out := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		if nested, ok := value.(map[string]interface{}); ok {
			value = NormalizeRecord(nested)
		}
		out[SnakeToCamel(key)] = value
	}

	// camelCase 原值优先于由 snake_case 转换而来的值
	for key, value := range raw {
		if !strings.Contains(key, "_") {
			if nested, ok := value.(map[string]interface{}); ok {
				value = NormalizeRecord(nested)
			}
			out[key] = value
		}
	}
	return out
}

// NormalizeRecords 批量规范化
func NormalizeRecords(rows []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		out = append(out, NormalizeRecord(row))
	}
	return out
}

// SnakeToCamel 把 snake_case 键转换为 camelCase，非 snake_case 输入原样返回
func SnakeToCamel(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}

	parts := strings.Split(key, "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if b.Len() == 0 && i == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	if b.Len() == 0 {
		return key
	}
	return b.String()
}
