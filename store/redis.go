package store

import (
	"github.com/redis/go-redis/v9"

	"github.com/normgate/normgate/config"
)

// NewRedisClient builds a go-redis client from configuration. Returns
// nil when no address is configured, which NewCache treats as "use the
// in-process cache".
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
