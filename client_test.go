package serendex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seren-labs/serendex/internal/domain"
)

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

func TestNew_NoAddress(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("expected error when no address provided")
	}
}

func TestNoopEmbedder(t *testing.T) {
	noop := noopEmbedder{}
	_, err := noop.Embed(context.Background(), "test")
	if err == nil {
		t.Fatal("expected error from noopEmbedder")
	}
	if !errors.Is(err, domain.ErrEmbedderUnavailable) {
		t.Errorf("expected ErrEmbedderUnavailable, got %v", err)
	}
}

func TestEmbedderAdapter(t *testing.T) {
	called := false
	mock := &mockEmbedder{
		fn: func(_ context.Context, text string) (EmbeddingResult, error) {
			called = true
			return EmbeddingResult{
				Embedding:    []float32{1, 2, 3},
				PromptTokens: 5,
				TotalTokens:  10,
			}, nil
		},
	}

	adapter := &embedderAdapter{inner: mock}
	result, err := adapter.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("inner embedder was not called")
	}
	if len(result.Embedding) != 3 {
		t.Errorf("embedding len = %d, want 3", len(result.Embedding))
	}
	if result.TotalTokens != 10 {
		t.Errorf("total tokens = %d, want 10", result.TotalTokens)
	}
}

func TestEmbedderAdapter_Error(t *testing.T) {
	mock := &mockEmbedder{
		fn: func(_ context.Context, _ string) (EmbeddingResult, error) {
			return EmbeddingResult{}, errors.New("provider down")
		},
	}

	adapter := &embedderAdapter{inner: mock}
	_, err := adapter.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error from adapter")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}

	WithRedis("localhost:6379", "secret")(cfg)
	if len(cfg.addrs) != 1 || cfg.addrs[0] != "localhost:6379" {
		t.Errorf("addrs = %v, want [localhost:6379]", cfg.addrs)
	}
	if cfg.password != "secret" {
		t.Errorf("password = %q, want secret", cfg.password)
	}

	WithDimensions(1536)(cfg)
	if cfg.dimensions != 1536 {
		t.Errorf("dimensions = %d, want 1536", cfg.dimensions)
	}

	WithCache(500, time.Minute)(cfg)
	if cfg.cacheSize != 500 || cfg.cacheTTL != time.Minute {
		t.Errorf("cache = %d/%v, want 500/1m", cfg.cacheSize, cfg.cacheTTL)
	}

	WithTextWindow(50)(cfg)
	if cfg.textWindow != 50 {
		t.Errorf("textWindow = %d, want 50", cfg.textWindow)
	}

	WithReindexWorkers(2)(cfg)
	if cfg.reindexWorkers != 2 {
		t.Errorf("reindexWorkers = %d, want 2", cfg.reindexWorkers)
	}

	WithClusterWindow(2000)(cfg)
	if cfg.clusterWindow != 2000 {
		t.Errorf("clusterWindow = %d, want 2000", cfg.clusterWindow)
	}

	emb := &mockEmbedder{}
	WithEmbedder(emb)(cfg)
	if cfg.embedder != emb {
		t.Error("embedder not set")
	}
}

func TestTypesFromStrings(t *testing.T) {
	if typesFromStrings(nil) != nil {
		t.Error("expected nil for empty input")
	}
	types := typesFromStrings([]string{"note", "document"})
	if len(types) != 2 || string(types[0]) != "note" || string(types[1]) != "document" {
		t.Errorf("unexpected types: %v", types)
	}
}
