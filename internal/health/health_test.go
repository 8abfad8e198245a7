package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestCheckRunnerAggregatesAndCaches(t *testing.T) {
	var calls atomic.Int32
	ok := CheckerFunc(func(context.Context) CheckResult {
		calls.Add(1)
		return CheckResult{Name: "ok", Healthy: true}
	})
	bad := CheckerFunc(func(context.Context) CheckResult { return CheckResult{Name: "bad", Error: "down"} })

	ready, results := NewCheckRunner(time.Second, 0, ok, bad).Ready(context.Background())
	if ready || len(results) != 2 || results[0].Name != "ok" || results[1].Name != "bad" {
		t.Fatalf("unexpected result ready=%v results=%+v", ready, results)
	}

	cached := NewCheckRunner(time.Second, time.Minute, ok)
	cached.Ready(context.Background())
	cached.Ready(context.Background())
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected cached second check, checker ran %d times", n)
	}
}

func TestRedisChecker(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if res := RedisChecker(client).Check(context.Background()); !res.Healthy {
		t.Fatalf("expected healthy redis, got %+v", res)
	}
	server.Close()
	if res := RedisChecker(client).Check(context.Background()); res.Healthy {
		t.Fatal("expected unhealthy redis after shutdown")
	}
	if res := RedisChecker(nil).Check(context.Background()); !res.Healthy {
		t.Fatal("missing redis client is not a failure")
	}
}
