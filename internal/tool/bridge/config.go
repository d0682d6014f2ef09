package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/pkg/logger"
)

// Config 描述需要接入的外部工具服务器。
type Config struct {
	Defaults Policy                  `yaml:"defaults"`
	Servers  map[string]ServerConfig `yaml:"servers"`
}

// ServerConfig 是单个服务器的配置块。Command 与 URL 二选一。
type ServerConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Command     string              `yaml:"command"`
	Args        []string            `yaml:"args"`
	Env         map[string]string   `yaml:"env"`
	URL         string              `yaml:"url"`
	Prefix      bool                `yaml:"prefix"`
	Permissions map[string][]string `yaml:"permissions"`
	Policy      *Policy             `yaml:"policy"`
}

// LoadConfig 读取 YAML 格式的服务器配置。
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("bridge config path cannot be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read bridge config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal bridge config: %w", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]ServerConfig{}
	}
	return cfg, cfg.Validate()
}

// Validate 校验配置的一致性。
func (c Config) Validate() error {
	for id, server := range c.Servers {
		if id == "" {
			return errors.New("server id cannot be empty")
		}
		if !server.Enabled {
			continue
		}
		if server.Command == "" && server.URL == "" {
			return fmt.Errorf("server %s requires command or url when enabled", id)
		}
		if server.Command != "" && server.URL != "" {
			return fmt.Errorf("server %s cannot set both command and url", id)
		}
	}
	return nil
}

// Transport 根据配置构造 MCP 传输。
func (s ServerConfig) Transport() mcpsdk.Transport {
	if s.URL != "" {
		return &mcpsdk.StreamableClientTransport{
			Endpoint:   s.URL,
			HTTPClient: &http.Client{Timeout: 60 * time.Second},
		}
	}
	cmd := exec.Command(s.Command, s.Args...)
	if len(s.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range s.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return &mcpsdk.CommandTransport{Command: cmd}
}

// Set 持有已连接的外部服务器。
type Set struct {
	providers map[string]Provider
	tools     map[string][]string
}

// Tools 返回各服务器注册的工具名。
func (s *Set) Tools() map[string][]string {
	out := make(map[string][]string, len(s.tools))
	for k, v := range s.tools {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Close 关闭所有会话。
func (s *Set) Close() error {
	var errs []error
	for id, p := range s.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Dialer 为服务器建立 Provider，测试中可替换为内存传输。
type Dialer func(ctx context.Context, id string, server ServerConfig) (Provider, error)

func dialMCP(ctx context.Context, id string, server ServerConfig) (Provider, error) {
	return DialMCP(ctx, id, server.Transport())
}

// Connect 启动所有已启用的服务器并把它们的工具注册到 reg。
// 单个服务器连接失败只记录日志；注册冲突会中止并关闭已建立的连接。
func Connect(ctx context.Context, cfg Config, reg Registrar, dial Dialer) (*Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "外部工具配置无效")
	}
	if dial == nil {
		dial = dialMCP
	}
	log := logger.Named("bridge")
	set := &Set{providers: map[string]Provider{}, tools: map[string][]string{}}

	ids := make([]string, 0, len(cfg.Servers))
	for id := range cfg.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		server := cfg.Servers[id]
		if !server.Enabled {
			continue
		}
		provider, err := dial(ctx, id, server)
		if err != nil {
			log.Error("连接外部工具服务器失败", slog.String("server", id), slog.String("error", err.Error()))
			continue
		}
		set.providers[id] = provider

		opts := []RegisterOption{
			WithPolicy(MergePolicies(cfg.Defaults, server.Policy)),
			WithLogger(log),
		}
		if server.Prefix {
			opts = append(opts, WithPrefix(id))
		}
		names, err := Register(ctx, reg, provider, server.Permissions, opts...)
		if err != nil {
			if xerrors.CodeOf(err) == CodeBridgeUnavailable {
				log.Error("获取外部工具失败", slog.String("server", id), slog.String("error", err.Error()))
				continue
			}
			_ = set.Close()
			return nil, err
		}
		set.tools[id] = names
		log.Info("外部工具已注册", slog.String("server", id), slog.Any("tools", names))
	}
	return set, nil
}
