package main

import (
	"context"
	"errors"
	"log/slog"

	"OpenAgents/internal/agent"
	"OpenAgents/internal/api"
	"OpenAgents/internal/config"
	"OpenAgents/internal/llm/providers"
	"OpenAgents/internal/observability/events"
	"OpenAgents/internal/observability/metrics"
	"OpenAgents/internal/task"
	"OpenAgents/internal/tool"
	"OpenAgents/internal/tool/bridge"
	"OpenAgents/internal/tool/filesystem"
	"OpenAgents/internal/tool/sandbox"
	"OpenAgents/pkg/logger"
)

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.Outputs,
		Audit: logger.AuditConfig{
			Enabled: cfg.Log.AuditEnabled,
			Path:    cfg.Log.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("openagentsd")
	log.Info("配置加载完成", slog.String("config", cfg.String()))

	client, err := providers.New(cfg.ProviderConfig())
	if err != nil {
		return err
	}

	root, err := sandbox.NewRoot(cfg.Sandbox.Root)
	if err != nil {
		return err
	}
	if err := root.Ensure(); err != nil {
		return err
	}

	gateway := tool.NewGateway()
	gateway.MustRegister(filesystem.Adapters(root)...)

	if cfg.Bridges.ConfigPath != "" {
		bridgeCfg, err := bridge.LoadConfig(cfg.Bridges.ConfigPath)
		if err != nil {
			return err
		}
		set, err := bridge.Connect(ctx, bridgeCfg, gateway, nil)
		if err != nil {
			return err
		}
		defer set.Close()
		for server, names := range set.Tools() {
			log.Info("外部工具服务器已接入", slog.String("server", server), slog.Any("tools", names))
		}
	}

	runtime := agent.NewRuntime(client, gateway,
		agent.WithDefaultSkillDir(cfg.Skill.Dir),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
	)

	sink, err := buildSinks(ctx, cfg.Events, log)
	if err != nil {
		return err
	}

	store := task.NewMemoryStore()
	processor := task.NewProcessor(store, task.NewGate(client), runtime, task.WithEventSink(sink))
	orchestrator := task.NewOrchestrator(store, processor)
	defer func() {
		if err := orchestrator.Close(); err != nil {
			log.Warn("关闭编排器出错", slog.Any("error", err))
		}
	}()

	if addr := cfg.Server.MetricsAddress; addr != "" {
		go func() {
			if err := metrics.StartServer(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("指标服务退出", slog.String("addr", addr), slog.Any("error", err))
			}
		}()
	}

	log.Info("工具已注册", slog.Any("tools", gateway.Names()), slog.String("sandbox", root.Dir()))

	server := api.NewServer(cfg.Server.Address(), orchestrator,
		api.WithTools(gateway),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("服务已停止，等待运行中的任务结束")
	return nil
}

// buildSinks 组装事件投递目标，外部 Sink 只在配置了地址时启用。
func buildSinks(ctx context.Context, cfg config.EventsConfig, log *slog.Logger) (*events.Fanout, error) {
	sinks := []events.Sink{events.NewLogSink(nil)}
	if cfg.RedisAddress != "" {
		redisSink, err := events.NewRedisSink(ctx, events.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Redis 事件投递已启用", slog.String("channel", redisSink.Channel()))
		sinks = append(sinks, redisSink)
	}
	if cfg.AMQPURL != "" {
		amqpSink, err := events.NewRabbitMQSink(events.RabbitMQConfig{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
		})
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		log.Info("RabbitMQ 事件投递已启用", slog.String("exchange", amqpSink.Exchange()))
		sinks = append(sinks, amqpSink)
	}
	return events.NewFanout(sinks...), nil
}
