// Package sandbox confines tool-supplied paths to a root directory.
package sandbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	xerrors "OpenAgents/internal/errors"
)

// CodeViolation 表示路径逃逸出沙箱根目录。
const CodeViolation xerrors.Code = "SANDBOX_VIOLATION"

func init() {
	xerrors.Register(CodeViolation, xerrors.Attributes{
		Message:  "path is outside sandbox",
		Kind:     xerrors.KindDenied,
		Severity: xerrors.SeverityWarning,
	})
}

// Resolve 将 p 解析为沙箱内展开符号链接后的绝对路径。
// 相对路径基于 root 解析，绝对路径按原样清理；字面路径与展开后的路径都必须等于 root
// 或以 root 加路径分隔符开头，否则返回 SANDBOX_VIOLATION。
func Resolve(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", xerrors.Wrap(CodeViolation, err, "无法解析沙箱根目录")
	}
	var candidate string
	if filepath.IsAbs(p) {
		candidate = filepath.Clean(p)
	} else {
		candidate = filepath.Join(absRoot, p)
	}
	if !within(absRoot, candidate) {
		return "", xerrors.New(CodeViolation, "Path is outside sandbox: "+p)
	}

	realRoot, err := canonical(absRoot)
	if err != nil {
		return "", xerrors.Wrap(CodeViolation, err, "无法解析沙箱根目录")
	}
	resolved, err := canonical(candidate)
	if err != nil || !within(realRoot, resolved) {
		return "", xerrors.New(CodeViolation, "Path is outside sandbox: "+p)
	}
	return resolved, nil
}

// canonical 展开 path 中最深的已存在祖先的符号链接，再拼回尚不存在的部分。
// 悬空的符号链接无法确定落点，直接报错。
func canonical(path string) (string, error) {
	existing := path
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if info, lerr := os.Lstat(existing); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			return "", errors.New("dangling symlink: " + existing)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return path, nil
		}
		missing = append(missing, filepath.Base(existing))
		existing = parent
	}
}

func within(root, candidate string) bool {
	if candidate == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(candidate, prefix)
}

// Root 绑定一个沙箱根目录，供多个适配器共享。
type Root struct {
	dir string
}

// NewRoot 返回以 dir 的绝对路径为根的沙箱。
func NewRoot(dir string) (Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, xerrors.Wrap(xerrors.CodeConfiguration, err, "无法解析沙箱根目录")
	}
	return Root{dir: abs}, nil
}

// Dir 返回根目录的绝对路径。
func (r Root) Dir() string { return r.dir }

// Resolve 在当前根目录下解析 p。
func (r Root) Resolve(p string) (string, error) {
	return Resolve(r.dir, p)
}

// Ensure 创建根目录（如不存在）。
func (r Root) Ensure() error {
	return os.MkdirAll(r.dir, 0o755)
}
