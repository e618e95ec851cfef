package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/api"
	"github.com/signage-server/signage-gateway-pro/internal/config"
	"github.com/signage-server/signage-gateway-pro/internal/gateway"
	"github.com/signage-server/signage-gateway-pro/internal/integration"
	"github.com/signage-server/signage-gateway-pro/internal/scheduler"
	"github.com/signage-server/signage-gateway-pro/internal/server"
	"github.com/signage-server/signage-gateway-pro/internal/storage"
	"github.com/signage-server/signage-gateway-pro/internal/verifier"
	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

func main() {
	// 命令行参数
	var configPath = flag.String("config", "config/device-gateway.yml", "配置文件路径")
	var validateOnly = flag.Bool("validate", false, "仅验证配置文件")
	var showConfig = flag.Bool("show-config", false, "显示配置并退出")
	flag.Parse()

	// 设置日志
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_FORMAT") != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("加载配置失败")
	}

	// 设置日志级别
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("无效的日志级别，使用info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	if *validateOnly {
		cfg.PrintConfigSummary()
		fmt.Println("✅ 配置文件验证通过")
		return
	}

	log.Info().
		Str("config_path", *configPath).
		Str("gateway_addr", cfg.Gateway.Addr()).
		Msg("Device Gateway 启动")

	// 连接数据库
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("连接数据库失败")
	}
	store.ConfigurePool(cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	defer store.Close()

	// 连接NATS，未配置时网关独立运行
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects))
		if err != nil {
			log.Fatal().Err(err).Msg("连接NATS失败")
		}
		defer nc.Close()
	} else {
		log.Warn().Msg("未配置NATS，设备事件不会外发")
	}

	// Redis 规则缓存，可选
	var ruleCache *scheduler.RuleCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		ruleCache = scheduler.NewRuleCache(rdb, cfg.Redis.RuleTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.RuleTTL).Msg("启用排期规则缓存")
	}

	// 协议编解码器
	codec, err := protocol.NewCodec(cfg.Gateway.Markers())
	if err != nil {
		log.Fatal().Err(err).Msg("无效的帧格式配置")
	}

	// 准入校验器与排期求值器
	v := verifier.New(verifier.Config{
		RateLimitPerMinute:    cfg.Gateway.RateLimitPerMinute,
		MaxUnapprovedAttempts: cfg.Gateway.MaxUnapprovedAttempts,
		BlacklistDuration:     cfg.Gateway.BlacklistDuration,
	}, store)

	var evaluator *scheduler.Evaluator
	if ruleCache != nil {
		evaluator = scheduler.NewWithCache(store, ruleCache)
	} else {
		evaluator = scheduler.New(store)
	}

	var events gateway.Events
	if nc != nil {
		events = server.NewEventPublisher(nc)
	}

	gw := gateway.NewServer(cfg.Gateway, codec, v, evaluator, store, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动网关
	if err := gw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("网关启动失败")
	}

	// 启动NATS订阅（下发推送）
	if nc != nil {
		sub := server.NewNATSSubscriber(nc, store, gw)
		go func() {
			if err := sub.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("NATS订阅退出")
			}
		}()
	}

	// 启动事件转发（webhook / MQTT）
	if nc != nil && cfg.Integration.Enabled() {
		forwarder := integration.NewForwarderService(nc, cfg.Integration)
		go func() {
			if err := forwarder.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("事件转发服务退出")
			}
		}()
	}

	// 启动管理API
	restServer := api.NewRESTServer(cfg, store, gw, ruleCache)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := restServer.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("REST API 启动失败")
			cancel()
		}
	}()

	// 处理系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("收到退出信号，正在关闭...")
	case <-ctx.Done():
		log.Info().Msg("上下文取消，正在关闭...")
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("REST API 关闭出错")
	}
	if err := gw.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("网关关闭出错")
	}

	cancel()
	log.Info().Msg("Device Gateway 已关闭")
}
