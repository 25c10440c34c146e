package util

import "strconv"

// ParseIntOrDefault 解析整数查询参数，失败时返回默认值
func ParseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
