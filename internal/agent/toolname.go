package agent

import "strings"

// DotToken 替换工具名中的 "."，模型 API 只接受 [a-zA-Z0-9_-]。
// 网关中的规范名称不会包含该记号，因此映射是可逆的。
const DotToken = "__dot__"

// ToAPIName 把规范工具名转换为模型可接受的名称。
func ToAPIName(name string) string {
	return strings.ReplaceAll(name, ".", DotToken)
}

// FromAPIName 把模型返回的名称还原为规范工具名。
func FromAPIName(name string) string {
	return strings.ReplaceAll(name, DotToken, ".")
}
