package database

import (
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// NewMemcached connects to a comma separated list of memcached servers.
// Cache reads sit on the request path, so the timeout is short.
func NewMemcached(servers string) *memcache.Client {
	client := memcache.New(strings.Split(servers, ",")...)
	client.Timeout = 200 * time.Millisecond
	client.MaxIdleConns = 8
	return client
}
