package similarity

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/seren-labs/serendex/internal/domain"
	"github.com/seren-labs/serendex/internal/domain/search/mode"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// --- Mocks ---

type mockVectors struct {
	records   []domvec.Record
	err       error
	dimErr    error
	lastLimit int
	lastTypes []domvec.Type
}

func (m *mockVectors) Candidates(
	_ context.Context, _ string, types []domvec.Type, limit int,
) ([]domvec.Record, error) {
	m.lastLimit = limit
	m.lastTypes = types
	return m.records, m.err
}

func (m *mockVectors) CheckDim(_ int) error { return m.dimErr }

// identityPerturber returns the input unchanged regardless of level.
type identityPerturber struct{}

func (identityPerturber) Apply(_ mode.Perturbation, v []float32, _ float64) ([]float32, error) {
	return v, nil
}

func makeRecord(t *testing.T, typ domvec.Type, id string, vec []float32) domvec.Record {
	t.Helper()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return domvec.Reconstruct(typ, id, "p1", vec, domvec.Magnitude(vec), nil, created, created)
}

// --- Tests ---

func TestSearch_RanksByCosine(t *testing.T) {
	vectors := &mockVectors{records: []domvec.Record{
		makeRecord(t, domvec.TypeNote, "a", []float32{1, 0}),
		makeRecord(t, domvec.TypeNote, "b", []float32{0, 1}),
		makeRecord(t, domvec.TypeNote, "c", []float32{0.9, 0.1}),
	}}
	svc := New(vectors, identityPerturber{})

	matches, err := svc.Search(context.Background(), []float32{1, 0}, "p1", Options{
		Mode: mode.Exact, Limit: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].EntityID != "a" || matches[1].EntityID != "c" {
		t.Errorf("expected [a c], got [%s %s]", matches[0].EntityID, matches[1].EntityID)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("matches not sorted by similarity descending")
	}
	if math.Abs(matches[0].Similarity-1) > 1e-6 {
		t.Errorf("expected similarity 1 for identical vector, got %f", matches[0].Similarity)
	}
}

func TestSearch_DistanceComplementsSimilarity(t *testing.T) {
	vectors := &mockVectors{records: []domvec.Record{
		makeRecord(t, domvec.TypeNote, "a", []float32{1, 0}),
	}}
	svc := New(vectors, identityPerturber{})

	matches, err := svc.Search(context.Background(), []float32{1, 0}, "p1", Options{Mode: mode.Exact})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(matches[0].Distance-(1-matches[0].Similarity)) > 1e-9 {
		t.Errorf("distance %f does not complement similarity %f", matches[0].Distance, matches[0].Similarity)
	}
}

func TestSearch_ThresholdFilters(t *testing.T) {
	vectors := &mockVectors{records: []domvec.Record{
		makeRecord(t, domvec.TypeNote, "a", []float32{1, 0}),
		makeRecord(t, domvec.TypeNote, "b", []float32{0, 1}),
	}}
	svc := New(vectors, identityPerturber{})

	matches, err := svc.Search(context.Background(), []float32{1, 0}, "p1", Options{
		Mode: mode.Exact, Threshold: 0.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].EntityID != "a" {
		t.Errorf("expected only a above threshold, got %v", matches)
	}
}

func TestSearch_ExcludesIDs(t *testing.T) {
	vectors := &mockVectors{records: []domvec.Record{
		makeRecord(t, domvec.TypeNote, "a", []float32{1, 0}),
		makeRecord(t, domvec.TypeNote, "c", []float32{0.9, 0.1}),
	}}
	svc := New(vectors, identityPerturber{})

	matches, err := svc.Search(context.Background(), []float32{1, 0}, "p1", Options{
		Mode: mode.Exact, ExcludeIDs: []string{"note:a"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].EntityID != "c" {
		t.Errorf("expected exclusion of note:a, got %v", matches)
	}
}

func TestSearch_PoolSizeFollowsMode(t *testing.T) {
	vectors := &mockVectors{}
	svc := New(vectors, identityPerturber{})

	for m, want := range map[mode.Mode]int{mode.Exact: 20, mode.Similar: 45, mode.Serendipity: 125} {
		if _, err := svc.Search(context.Background(), []float32{1, 0}, "p1", Options{Mode: m}); err != nil {
			t.Fatalf("%s: unexpected error: %v", m, err)
		}
		if vectors.lastLimit != want {
			t.Errorf("%s: expected pool size %d, got %d", m, want, vectors.lastLimit)
		}
	}
}

func TestSearch_EmptyQueryVector(t *testing.T) {
	svc := New(&mockVectors{}, identityPerturber{})
	_, err := svc.Search(context.Background(), nil, "p1", Options{Mode: mode.Exact})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSearch_DimMismatch(t *testing.T) {
	vectors := &mockVectors{dimErr: domain.ErrDimensionMismatch}
	svc := New(vectors, identityPerturber{})
	_, err := svc.Search(context.Background(), []float32{1, 0, 0}, "p1", Options{Mode: mode.Exact})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearch_RetrievalErrorTagged(t *testing.T) {
	vectors := &mockVectors{err: errors.New("connection refused")}
	svc := New(vectors, identityPerturber{})
	_, err := svc.Search(context.Background(), []float32{1, 0}, "p1", Options{Mode: mode.Exact})
	var stage *domain.StageError
	if !errors.As(err, &stage) || stage.Stage != domain.StageRetrieval {
		t.Errorf("expected retrieval stage error, got %v", err)
	}
}

func TestSearch_InvalidMode(t *testing.T) {
	svc := New(&mockVectors{}, identityPerturber{})
	_, err := svc.Search(context.Background(), []float32{1, 0}, "p1", Options{Mode: "telepathic"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestKNN_ExactTopK(t *testing.T) {
	vectors := &mockVectors{records: []domvec.Record{
		makeRecord(t, domvec.TypeNote, "a", []float32{1, 0}),
		makeRecord(t, domvec.TypeNote, "b", []float32{0, 1}),
		makeRecord(t, domvec.TypeNote, "c", []float32{0.9, 0.1}),
	}}
	svc := New(vectors, identityPerturber{})

	matches, err := svc.KNN(context.Background(), []float32{1, 0}, "p1", 1, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].EntityID != "a" {
		t.Errorf("expected single nearest neighbor a, got %v", matches)
	}
}

func TestKNN_InvalidK(t *testing.T) {
	svc := New(&mockVectors{}, identityPerturber{})
	_, err := svc.KNN(context.Background(), []float32{1, 0}, "p1", 0, Options{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
