package bridge

import (
	"fmt"
	"slices"
)

// Policy 以权限为粒度约束可注册的远端工具。
// Denied 优先；Allowed 非空时工具声明的每个权限都必须在列表内。
type Policy struct {
	Allowed []string `yaml:"allowed"`
	Denied  []string `yaml:"denied"`
}

// Empty 判断策略是否未配置任何约束。
func (p Policy) Empty() bool {
	return len(p.Allowed) == 0 && len(p.Denied) == 0
}

// Merge 返回新的策略，p 中缺失的列表取自 other。
func (p Policy) Merge(other Policy) Policy {
	if len(p.Allowed) == 0 {
		p.Allowed = other.Allowed
	}
	if len(p.Denied) == 0 {
		p.Denied = other.Denied
	}
	return p
}

// Check 校验一组权限是否被策略允许。
func (p Policy) Check(permissions []string) error {
	for _, perm := range permissions {
		if slices.Contains(p.Denied, perm) {
			return fmt.Errorf("permission %s is explicitly denied", perm)
		}
	}
	if len(p.Allowed) == 0 {
		return nil
	}
	for _, perm := range permissions {
		if !slices.Contains(p.Allowed, perm) {
			return fmt.Errorf("permission %s not permitted", perm)
		}
	}
	return nil
}

// MergePolicies 合并默认策略与服务器级策略。
func MergePolicies(defaults Policy, server *Policy) Policy {
	if server == nil {
		return defaults
	}
	merged := server.Merge(defaults)
	if merged.Empty() {
		return defaults
	}
	return merged
}
