package ingestion

import (
	"context"
	"fmt"
	"os"
	"sort"
	"testing"
	"time"
)

func TestRedisDedupMirror_Integration(t *testing.T) {
	redisURL := os.Getenv("REDIS_TEST_URL")
	if redisURL == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	ctx := context.Background()
	key := fmt.Sprintf("collector:test:%d", time.Now().UnixNano())
	mirror, err := NewRedisDedupMirror(ctx, redisURL, key)
	if err != nil {
		t.Fatalf("NewRedisDedupMirror() error = %v", err)
	}
	defer mirror.Close()
	defer mirror.client.Del(ctx, key)

	if err := mirror.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := mirror.Record(ctx); err != nil {
		t.Fatalf("Record() with no ids error = %v", err)
	}
	if err := mirror.Record(ctx, "2", "1", "2"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	ids, err := mirror.Members(ctx)
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Errorf("Members() = %v, want [1 2]", ids)
	}
}

func TestNewRedisDedupMirror_RejectsBadURL(t *testing.T) {
	if _, err := NewRedisDedupMirror(context.Background(), "http://localhost:6379", ""); err == nil {
		t.Fatal("expected error for non-redis url")
	}
}

func TestNewRedisDedupMirrorFromClient_DefaultKey(t *testing.T) {
	m := NewRedisDedupMirrorFromClient(nil, "")
	if m.key != defaultDedupKey {
		t.Errorf("key = %q, want %q", m.key, defaultDedupKey)
	}
}
