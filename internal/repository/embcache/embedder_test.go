package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seren-labs/serendex/internal/db"
	"github.com/seren-labs/serendex/internal/domain"
)

type fakeKV struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	setKeys []string
	lastTTL time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func (f *fakeKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.setKeys = append(f.setKeys, key)
	f.lastTTL = ttl
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

type countingEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (e *countingEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	e.calls++
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return e.result, nil
}

func TestEmbed_MissCallsInnerAndStores(t *testing.T) {
	kv := newFakeKV()
	inner := &countingEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{1, 2, 3},
		PromptTokens: 5,
		TotalTokens:  5,
	}}
	cached := New(inner, kv, nil, zap.NewNop())

	result, err := cached.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
	if result.TotalTokens != 5 {
		t.Errorf("expected token usage passed through, got %d", result.TotalTokens)
	}
	if len(kv.setKeys) != 1 {
		t.Errorf("expected embedding cached, got %d sets", len(kv.setKeys))
	}
	if kv.lastTTL != DefaultTTL {
		t.Errorf("expected default TTL, got %v", kv.lastTTL)
	}
}

func TestWithTTL_Override(t *testing.T) {
	kv := newFakeKV()
	inner := &countingEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	cached := New(inner, kv, nil, zap.NewNop()).WithTTL(time.Hour)

	if _, err := cached.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if kv.lastTTL != time.Hour {
		t.Errorf("expected 1h TTL, got %v", kv.lastTTL)
	}
}

func TestEmbed_HitSkipsInnerAndReportsZeroTokens(t *testing.T) {
	kv := newFakeKV()
	inner := &countingEmbedder{result: domain.EmbeddingResult{
		Embedding:   []float32{0.5, -0.5},
		TotalTokens: 7,
	}}
	cached := New(inner, kv, nil, zap.NewNop())

	if _, err := cached.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("warm: %v", err)
	}

	result, err := cached.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected cache hit to skip inner embedder, got %d calls", inner.calls)
	}
	if result.TotalTokens != 0 {
		t.Errorf("expected zero token usage on hit, got %d", result.TotalTokens)
	}
	for i, x := range result.Embedding {
		if x != inner.result.Embedding[i] {
			t.Errorf("component %d: %f != %f", i, x, inner.result.Embedding[i])
		}
	}
}

func TestEmbed_DistinctTextsUseDistinctKeys(t *testing.T) {
	kv := newFakeKV()
	inner := &countingEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	cached := New(inner, kv, nil, zap.NewNop())

	if _, err := cached.Embed(context.Background(), "alpha"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := cached.Embed(context.Background(), "beta"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 inner calls, got %d", inner.calls)
	}
	if kv.setKeys[0] == kv.setKeys[1] {
		t.Error("expected different cache keys for different texts")
	}
}

func TestEmbed_InnerErrorPropagates(t *testing.T) {
	kv := newFakeKV()
	wantErr := errors.New("provider down")
	inner := &countingEmbedder{err: wantErr}
	cached := New(inner, kv, nil, zap.NewNop())

	_, err := cached.Embed(context.Background(), "hello")
	if !errors.Is(err, wantErr) {
		t.Errorf("expected inner error, got %v", err)
	}
	if len(kv.setKeys) != 0 {
		t.Error("expected nothing cached on error")
	}
}

func TestEmbed_StoreFailuresAreNonFatal(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("store down")
	kv.setErr = errors.New("store down")
	inner := &countingEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	cached := New(inner, kv, nil, zap.NewNop())

	result, err := cached.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected embed to survive cache failures, got %v", err)
	}
	if len(result.Embedding) != 1 {
		t.Errorf("unexpected embedding: %v", result.Embedding)
	}
}

func TestEmbed_CorruptCacheEntryFallsThrough(t *testing.T) {
	kv := newFakeKV()
	inner := &countingEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}
	cached := New(inner, kv, nil, zap.NewNop())

	if _, err := cached.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("warm: %v", err)
	}
	// 3 bytes is not a valid float32 payload.
	kv.data[kv.setKeys[0]] = []byte{1, 2, 3}

	if _, err := cached.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected corrupt entry to fall through to inner, got %d calls", inner.calls)
	}
}
