package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// jsonDuration 在 JSON 中接受 "30s" 形式的字符串，也兼容纳秒整数。
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		parsed, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", text, err)
		}
		*d = jsonDuration(parsed)
		return nil
	}
	var nanos int64
	if err := json.Unmarshal(data, &nanos); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = jsonDuration(nanos)
	return nil
}

// UnmarshalJSON 让 shutdown_timeout 接受时长字符串。
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type plain ServerConfig
	aux := struct {
		*plain
		ShutdownTimeout jsonDuration `json:"shutdown_timeout"`
	}{plain: (*plain)(s), ShutdownTimeout: jsonDuration(s.ShutdownTimeout)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ShutdownTimeout = time.Duration(aux.ShutdownTimeout)
	return nil
}

// UnmarshalJSON 让 timeout 接受时长字符串。
func (l *LLMConfig) UnmarshalJSON(data []byte) error {
	type plain LLMConfig
	aux := struct {
		*plain
		Timeout jsonDuration `json:"timeout"`
	}{plain: (*plain)(l), Timeout: jsonDuration(l.Timeout)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	l.Timeout = time.Duration(aux.Timeout)
	return nil
}
