package service

import (
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestRedis starts an in-process Redis for the store-backed guards and caches.
func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

// requireNoRawSecret fails when any key in server embeds secret verbatim; stores must key on
// fingerprints only.
func requireNoRawSecret(t *testing.T, server *miniredis.Miniredis, secret string) {
	t.Helper()
	for _, key := range server.Keys() {
		if strings.Contains(key, secret) {
			t.Fatalf("redis key %q embeds a raw secret", key)
		}
	}
}
