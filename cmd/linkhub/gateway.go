package main

import (
	"net/http"

	"LinkHub/global/config"
	"LinkHub/logger"
	"LinkHub/service/gateway"
	storeredis "LinkHub/service/storage/redis"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the session affinity gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runGateway(cfg)
	},
}

func runGateway(cfg *config.AppConfig) error {
	ctx, stop := signalContext()
	defer stop()
	gin.SetMode(gin.ReleaseMode)

	workers := cfg.Gateway.Workers
	var table gateway.Table
	if cfg.Gateway.RedisTable {
		rdb, err := storeredis.Open(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if table, err = gateway.NewRedisTable(rdb, workers); err != nil {
			return err
		}
	} else {
		mem, err := gateway.NewMemoryTable(workers)
		if err != nil {
			return err
		}
		table = mem
	}

	proxy, err := gateway.NewProxy(table, workers)
	if err != nil {
		return err
	}
	logger.Info("[Gateway] balancing", zap.Strings("workers", workers), zap.Bool("redisTable", cfg.Gateway.RedisTable))
	return serve(ctx, "Gateway", &http.Server{Addr: cfg.Gateway.Addr, Handler: proxy.Engine()})
}
