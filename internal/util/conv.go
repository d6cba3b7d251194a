package util

import (
	"strconv"
)

// ParseUint 路径参数里的数字 id，非法输入交给调用方映射成 400
func ParseUint(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
