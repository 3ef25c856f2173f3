package infra

import (
	"context"
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisConnectTimeout = 5 * time.Second

var globalRedis redis.UniversalClient

// InitRedis 初始化 Redis 连接并验证连通性
// 三种模式统一走 UniversalClient：standalone(单节点)、sentinel(哨兵)、cluster(集群)
func InitRedis(cfg *config.RedisConfig) (redis.UniversalClient, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功",
		zap.String("mode", redisMode(cfg)),
		zap.Strings("addrs", opts.Addrs),
		zap.Int("db", cfg.DB),
	)

	globalRedis = rdb
	return rdb, nil
}

// redisOptions 按连接模式组装 UniversalOptions
func redisOptions(cfg *config.RedisConfig) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}

	switch redisMode(cfg) {
	case "standalone":
		opts.Addrs = []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}

	case "sentinel":
		if cfg.MasterName == "" || len(cfg.SentinelAddrs) == 0 {
			return nil, fmt.Errorf("哨兵模式需要配置 master_name 和 sentinel_addrs")
		}
		opts.Addrs = cfg.SentinelAddrs
		opts.MasterName = cfg.MasterName
		opts.SentinelPassword = cfg.SentinelPassword

	case "cluster":
		if len(cfg.ClusterAddrs) == 0 {
			return nil, fmt.Errorf("集群模式需要配置 cluster_addrs")
		}
		opts.Addrs = cfg.ClusterAddrs
		opts.IsClusterMode = true

	default:
		return nil, fmt.Errorf("不支持的 Redis 模式: %s (可选: standalone, sentinel, cluster)", cfg.Mode)
	}

	return opts, nil
}

func redisMode(cfg *config.RedisConfig) string {
	if cfg.Mode == "" {
		return "standalone"
	}
	return cfg.Mode
}

// CloseRedis 关闭 Redis 连接
func CloseRedis() error {
	if globalRedis == nil {
		return nil
	}
	return globalRedis.Close()
}
