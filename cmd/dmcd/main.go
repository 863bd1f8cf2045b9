package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hamptokr/dragon-dmc/internal/app"
	cfgpkg "github.com/hamptokr/dragon-dmc/internal/config"
	"github.com/hamptokr/dragon-dmc/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "config file (default: $DMC_CONFIG or configs/example.yaml)")
	simulate := flag.Bool("simulate", false, "talk to an in-process simulated rig instead of the serial port")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 组装链路与会话
	a, err := app.New(cfg, log, *simulate)
	if err != nil {
		log.Fatal("init failed", zap.Error(err))
	}

	// 信号处理，优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Error("dmcd exited", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}
