package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/llm/providers"
)

// PathEnv 指定配置文件路径的环境变量。
const PathEnv = "OPENAGENTS_CONFIG"

const (
	DefaultPort        = 3000
	DefaultSandboxRoot = "tmp/sandbox"
	DefaultSkillDir    = "skills/general-assistant"
)

// Config 描述了 OpenAgents 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	LLM     LLMConfig     `json:"llm" yaml:"llm"`
	Sandbox SandboxConfig `json:"sandbox" yaml:"sandbox"`
	Skill   SkillConfig   `json:"skill" yaml:"skill"`
	Agent   AgentConfig   `json:"agent" yaml:"agent"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Events  EventsConfig  `json:"events" yaml:"events"`
	Bridges BridgesConfig `json:"bridges" yaml:"bridges"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host" envconfig:"HOST"`
	Port            int           `json:"port" yaml:"port" envconfig:"PORT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// MetricsAddress 非空时额外启动独立的 /metrics 监听。
	MetricsAddress string `json:"metrics_address" yaml:"metrics_address" envconfig:"METRICS_ADDR"`
}

// Address 返回 host:port 形式的监听地址。
func (s ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider  string             `json:"provider" yaml:"provider" envconfig:"LLM_PROVIDER"`
	APIKey    string             `json:"api_key" yaml:"api_key" envconfig:"OPENROUTER_API_KEY"`
	BaseURL   string             `json:"base_url" yaml:"base_url" envconfig:"LLM_BASE_URL"`
	Model     string             `json:"model" yaml:"model" envconfig:"LLM_MODEL"`
	MaxTokens int                `json:"max_tokens" yaml:"max_tokens" envconfig:"LLM_MAX_TOKENS"`
	Timeout   time.Duration      `json:"timeout" yaml:"timeout" envconfig:"LLM_TIMEOUT"`
	RateLimit float64            `json:"rate_limit" yaml:"rate_limit" envconfig:"LLM_RATE_LIMIT"`
	RateBurst int                `json:"rate_burst" yaml:"rate_burst" envconfig:"LLM_RATE_BURST"`
	Python    PythonBridgeConfig `json:"python_bridge" yaml:"python_bridge" ignored:"true"`
}

// PythonBridgeConfig 描述通过 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable" yaml:"python_executable" envconfig:"PYTHON_EXECUTABLE"`
	ScriptPath       string `json:"script_path" yaml:"script_path" envconfig:"PYTHON_SCRIPT"`
	WorkingDir       string `json:"working_dir" yaml:"working_dir" envconfig:"PYTHON_WORKDIR"`
}

// SandboxConfig 指定文件工具可访问的根目录。
type SandboxConfig struct {
	Root string `json:"root" yaml:"root" envconfig:"SANDBOX_ROOT"`
}

// SkillConfig 指定默认技能目录。
type SkillConfig struct {
	Dir string `json:"dir" yaml:"dir" envconfig:"SKILL_DIR"`
}

// AgentConfig 控制运行时循环。
type AgentConfig struct {
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" envconfig:"AGENT_MAX_ITERATIONS"`
}

// LogConfig 对应 pkg/logger 的配置。
type LogConfig struct {
	Level        string   `json:"level" yaml:"level" envconfig:"LOG_LEVEL"`
	Format       string   `json:"format" yaml:"format" envconfig:"LOG_FORMAT"`
	Outputs      []string `json:"outputs" yaml:"outputs" envconfig:"LOG_OUTPUTS"`
	AuditEnabled bool     `json:"audit_enabled" yaml:"audit_enabled" envconfig:"LOG_AUDIT_ENABLED"`
	AuditPath    string   `json:"audit_path" yaml:"audit_path" envconfig:"LOG_AUDIT_PATH"`
}

// EventsConfig 配置状态变更事件的外部投递目标，留空表示不启用。
type EventsConfig struct {
	RedisAddress  string `json:"redis_address" yaml:"redis_address" envconfig:"EVENTS_REDIS_ADDR"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" envconfig:"EVENTS_REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" envconfig:"EVENTS_REDIS_DB"`
	RedisChannel  string `json:"redis_channel" yaml:"redis_channel" envconfig:"EVENTS_REDIS_CHANNEL"`
	AMQPURL       string `json:"amqp_url" yaml:"amqp_url" envconfig:"EVENTS_AMQP_URL"`
	AMQPExchange  string `json:"amqp_exchange" yaml:"amqp_exchange" envconfig:"EVENTS_AMQP_EXCHANGE"`
}

// BridgesConfig 指向外部工具桥接的 YAML 配置。
type BridgesConfig struct {
	ConfigPath string `json:"config_path" yaml:"config_path" envconfig:"BRIDGES_CONFIG"`
}

// LoadFromEnv 读取 OPENAGENTS_CONFIG 指定的文件（可选），再应用环境变量。
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(PathEnv))
}

// Load 解析指定路径的 JSON 或 YAML 配置文件，path 为空时只使用环境变量与默认值。
// 文件中的相对路径以文件所在目录为基准。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.resolvePaths(filepath.Dir(path))
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析环境变量失败")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeConfiguration, err, "读取配置文件失败")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, cfg)
	default:
		err = json.Unmarshal(content, cfg)
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeConfiguration, err, "解析配置失败")
	}
	return nil
}

func (c *Config) applyEnv() error {
	targets := []any{
		&c.Server, &c.LLM, &c.LLM.Python, &c.Sandbox, &c.Skill,
		&c.Agent, &c.Log, &c.Events, &c.Bridges,
	}
	for _, target := range targets {
		if err := envconfig.Process("", target); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) resolvePaths(baseDir string) {
	for _, p := range []*string{&c.Sandbox.Root, &c.Skill.Dir, &c.Bridges.ConfigPath, &c.LLM.Python.WorkingDir, &c.Log.AuditPath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = providers.NameAnthropic
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	if c.Sandbox.Root == "" {
		c.Sandbox.Root = DefaultSandboxRoot
	}
	if c.Skill.Dir == "" {
		c.Skill.Dir = DefaultSkillDir
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.AuditEnabled && c.Log.AuditPath == "" {
		c.Log.AuditPath = filepath.Join("logs", "audit.log")
	}
}

// Validate 检查启动所必需的字段。
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return xerrors.Newf(xerrors.CodeConfiguration, "invalid port: %d", c.Server.Port)
	}
	if c.Agent.MaxIterations < 0 {
		return xerrors.Newf(xerrors.CodeConfiguration, "invalid agent max iterations: %d", c.Agent.MaxIterations)
	}
	if providers.RequiresAPIKey(c.LLM.Provider) && strings.TrimSpace(c.LLM.APIKey) == "" {
		return xerrors.New(xerrors.CodeConfiguration, "OPENROUTER_API_KEY is required")
	}
	return nil
}

// ProviderConfig 转换为模型提供方工厂的配置。
func (c *Config) ProviderConfig() providers.Config {
	return providers.Config{
		Provider:   c.LLM.Provider,
		APIKey:     c.LLM.APIKey,
		BaseURL:    c.LLM.BaseURL,
		Model:      c.LLM.Model,
		MaxTokens:  c.LLM.MaxTokens,
		Timeout:    c.LLM.Timeout,
		RateLimit:  c.LLM.RateLimit,
		RateBurst:  c.LLM.RateBurst,
		PythonExec: c.LLM.Python.PythonExecutable,
		Script:     c.LLM.Python.ScriptPath,
		WorkDir:    c.LLM.Python.WorkingDir,
	}
}

// String 返回隐去密钥后的摘要，用于启动日志。
func (c *Config) String() string {
	return fmt.Sprintf("addr=%s provider=%s sandbox=%s skill=%s", c.Server.Address(), c.LLM.Provider, c.Sandbox.Root, c.Skill.Dir)
}
