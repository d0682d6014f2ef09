package bridge

import (
	"context"
	"log/slog"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/tool"
	"OpenAgents/pkg/logger"
)

// CodeBridgeUnavailable 表示无法从外部服务器获取工具列表或建立连接。
const CodeBridgeUnavailable xerrors.Code = "TOOL_BRIDGE_UNAVAILABLE"

func init() {
	xerrors.Register(CodeBridgeUnavailable, xerrors.Attributes{
		Message:   "external tool server unavailable",
		Kind:      xerrors.KindUpstream,
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// Registrar 是 Register 需要的注册表能力，*tool.Gateway 满足该接口。
type Registrar interface {
	Register(adapter tool.Adapter) error
}

type registerOptions struct {
	prefix string
	policy Policy
	logger *slog.Logger
}

// RegisterOption 定义 Register 的可选配置。
type RegisterOption func(*registerOptions)

// WithPrefix 以 "<server>.<tool>" 的形式注册工具名。
func WithPrefix(server string) RegisterOption {
	return func(o *registerOptions) { o.prefix = server }
}

// WithPolicy 指定注册时应用的权限策略。
func WithPolicy(p Policy) RegisterOption {
	return func(o *registerOptions) { o.policy = p }
}

// WithLogger 指定注册过程的日志输出。
func WithLogger(l *slog.Logger) RegisterOption {
	return func(o *registerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Register 拉取 provider 公布的工具并逐个注册到 reg，返回注册成功的工具名。
// permissionsByTool 以远端原始工具名为键，缺省使用 mcp:invoke。
// 被策略拒绝的工具会被跳过并记录警告；注册冲突立即返回错误。
func Register(ctx context.Context, reg Registrar, provider Provider, permissionsByTool map[string][]string, opts ...RegisterOption) ([]string, error) {
	o := registerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Named("bridge")
	}

	descriptors, err := provider.ListTools(ctx)
	if err != nil {
		return nil, xerrors.Wrap(CodeBridgeUnavailable, err, "获取外部工具列表失败")
	}

	names := make([]string, 0, len(descriptors))
	for _, desc := range descriptors {
		name := desc.Name
		if o.prefix != "" {
			name = o.prefix + "." + desc.Name
		}
		permissions := permissionsByTool[desc.Name]
		if len(permissions) == 0 {
			permissions = []string{DefaultPermission}
		}
		if err := o.policy.Check(permissions); err != nil {
			o.logger.Warn("外部工具被策略拒绝",
				slog.String("tool_name", name),
				slog.Any("permissions", permissions),
				slog.String("error", err.Error()))
			continue
		}
		if err := reg.Register(NewAdapter(provider, desc, name, permissions)); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}
