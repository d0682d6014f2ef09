// Package filesystem provides the reference tool adapters: read, write and
// list operations confined to a sandbox root.
package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"OpenAgents/internal/tool"
	"OpenAgents/internal/tool/sandbox"
)

const (
	ReadToolName  = "filesystem.read"
	WriteToolName = "filesystem.write"
	ListToolName  = "filesystem.list"

	PermissionRead  = "fs:read"
	PermissionWrite = "fs:write"
)

// Adapters 返回绑定到同一沙箱根目录的全部文件系统适配器。
func Adapters(root sandbox.Root) []tool.Adapter {
	return []tool.Adapter{NewReadAdapter(root), NewWriteAdapter(root), NewListAdapter(root)}
}

// ReadAdapter 读取沙箱内的 UTF-8 文本文件。
type ReadAdapter struct {
	root sandbox.Root
}

// NewReadAdapter 创建读文件适配器。
func NewReadAdapter(root sandbox.Root) *ReadAdapter {
	return &ReadAdapter{root: root}
}

// Spec 实现 tool.Adapter。
func (a *ReadAdapter) Spec() tool.Spec {
	return tool.Spec{
		Name:        ReadToolName,
		Description: "Read a UTF-8 text file from the sandbox.",
		InputSchema: tool.Schema{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"path"},
			"properties": map[string]any{
				"path":     map[string]any{"type": "string", "minLength": 1},
				"encoding": map[string]any{"type": "string", "enum": []any{"utf8"}},
			},
		},
		OutputSchema: tool.Schema{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"path", "content"},
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
		},
		Permissions: []string{PermissionRead},
		SideEffects: tool.SideEffectFS,
	}
}

// Invoke 实现 tool.Adapter。
func (a *ReadAdapter) Invoke(_ context.Context, input map[string]any, _ string) tool.Result {
	path, err := a.root.Resolve(stringField(input, "path"))
	if err != nil {
		return tool.FailErr(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tool.Fail(describe(err, "Failed to read file"))
	}
	return tool.OK(map[string]any{
		"path":    path,
		"content": string(data),
	})
}

// WriteAdapter 向沙箱写入 UTF-8 文本，必要时创建中间目录。
type WriteAdapter struct {
	root sandbox.Root
}

// NewWriteAdapter 创建写文件适配器。
func NewWriteAdapter(root sandbox.Root) *WriteAdapter {
	return &WriteAdapter{root: root}
}

// Spec 实现 tool.Adapter。
func (a *WriteAdapter) Spec() tool.Spec {
	return tool.Spec{
		Name:        WriteToolName,
		Description: "Write UTF-8 text content to a file in the sandbox.",
		InputSchema: tool.Schema{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"path", "content"},
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "minLength": 1},
				"content": map[string]any{"type": "string"},
			},
		},
		OutputSchema: tool.Schema{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"path", "bytesWritten"},
			"properties": map[string]any{
				"path":         map[string]any{"type": "string"},
				"bytesWritten": map[string]any{"type": "number", "minimum": 0},
			},
		},
		Permissions: []string{PermissionWrite},
		SideEffects: tool.SideEffectFS,
	}
}

// Invoke 实现 tool.Adapter。
func (a *WriteAdapter) Invoke(_ context.Context, input map[string]any, _ string) tool.Result {
	path, err := a.root.Resolve(stringField(input, "path"))
	if err != nil {
		return tool.FailErr(err)
	}
	content := stringField(input, "content")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return tool.Fail(describe(err, "Failed to write file"))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return tool.Fail(describe(err, "Failed to write file"))
	}
	return tool.OK(map[string]any{
		"path":         path,
		"bytesWritten": len(content),
	})
}

// ListAdapter 列出沙箱内目录的直接子项。
type ListAdapter struct {
	root sandbox.Root
}

// NewListAdapter 创建目录列举适配器。
func NewListAdapter(root sandbox.Root) *ListAdapter {
	return &ListAdapter{root: root}
}

// Spec 实现 tool.Adapter。
func (a *ListAdapter) Spec() tool.Spec {
	return tool.Spec{
		Name:        ListToolName,
		Description: "List the entries of a directory in the sandbox. Defaults to the sandbox root.",
		InputSchema: tool.Schema{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
		OutputSchema: tool.Schema{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"path", "entries"},
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
				"entries": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []any{"name", "dir", "size"},
						"properties": map[string]any{
							"name": map[string]any{"type": "string"},
							"dir":  map[string]any{"type": "boolean"},
							"size": map[string]any{"type": "number", "minimum": 0},
						},
					},
				},
			},
		},
		Permissions: []string{PermissionRead},
		SideEffects: tool.SideEffectFS,
	}
}

// Invoke 实现 tool.Adapter。
func (a *ListAdapter) Invoke(_ context.Context, input map[string]any, _ string) tool.Result {
	path, err := a.root.Resolve(stringField(input, "path"))
	if err != nil {
		return tool.FailErr(err)
	}
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return tool.Fail(describe(err, "Failed to list directory"))
	}
	entries := make([]map[string]any, 0, len(dirEntries))
	for _, de := range dirEntries {
		var size int64
		if info, err := de.Info(); err == nil && !de.IsDir() {
			size = info.Size()
		}
		entries = append(entries, map[string]any{
			"name": de.Name(),
			"dir":  de.IsDir(),
			"size": size,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i]["name"].(string) < entries[j]["name"].(string)
	})
	return tool.OK(map[string]any{
		"path":    path,
		"entries": entries,
	})
}

func stringField(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

func describe(err error, fallback string) string {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Error()
	}
	if err != nil {
		return err.Error()
	}
	return fallback
}
