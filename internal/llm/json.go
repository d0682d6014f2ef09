package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSONObject 表示文本中没有可解析的 JSON 对象。
var ErrNoJSONObject = errors.New("no JSON object found in model output")

// ExtractJSON 截取文本中第一个 "{" 到最后一个 "}" 之间的内容并解码到 v。
// 模型常把 JSON 包在 markdown 代码块或说明文字中，截取后即可容忍这些包裹。
func ExtractJSON(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ErrNoJSONObject
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
