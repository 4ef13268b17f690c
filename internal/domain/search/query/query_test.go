package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/seren-labs/serendex/internal/domain"
	"github.com/seren-labs/serendex/internal/domain/search/mode"
	"github.com/seren-labs/serendex/internal/domain/vector"
)

func TestNew_Defaults(t *testing.T) {
	q, err := New("hello", nil, "", "", "", 0, nil, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Mode() != mode.Similar {
		t.Errorf("expected default mode similar, got %s", q.Mode())
	}
	if q.Perturbation() != mode.Gaussian {
		t.Errorf("expected default perturbation gaussian, got %s", q.Perturbation())
	}
	if q.Limit() != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, q.Limit())
	}
}

func TestNew_RequiresTextOrEmbedding(t *testing.T) {
	_, err := New("", nil, "", "", "", 0, nil, 0, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNew_EmbeddingOnly(t *testing.T) {
	q, err := New("", []float32{0.1, 0.2}, "", "", "", 0, nil, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Text() != "" || len(q.Embedding()) != 2 {
		t.Errorf("unexpected query state: text=%q embedding=%v", q.Text(), q.Embedding())
	}
}

func TestNew_TextTooLong(t *testing.T) {
	_, err := New(strings.Repeat("a", MaxTextLength+1), nil, "", "", "", 0, nil, 0, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNew_InvalidMode(t *testing.T) {
	_, err := New("hello", nil, "", "telepathic", "", 0, nil, 0, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNew_InvalidPerturbation(t *testing.T) {
	_, err := New("hello", nil, "", mode.Exact, "chaotic", 0, nil, 0, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNew_LimitClamped(t *testing.T) {
	q, err := New("hello", nil, "", "", "", MaxLimit+50, nil, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Limit() != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, q.Limit())
	}
}

func TestNew_InvalidEntityType(t *testing.T) {
	_, err := New("hello", nil, "", "", "", 0, []vector.Type{"widget"}, 0, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNew_MinScoreOutOfRange(t *testing.T) {
	for _, bad := range []float64{-0.1, 1.1} {
		_, err := New("hello", nil, "", "", "", 0, nil, bad, nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("min_score %f: expected ErrValidation, got %v", bad, err)
		}
	}
}
