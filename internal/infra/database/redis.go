package database

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis returns the client used for change event pub/sub.
func NewRedis(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		WriteTimeout: time.Second,
	})
}
