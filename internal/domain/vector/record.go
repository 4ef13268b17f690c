// Package vector holds the stored vector record and the cosine geometry
// shared by search, reranking, and clustering.
package vector

import (
	"fmt"
	"time"

	"github.com/seren-labs/serendex/internal/domain"
)

// Type identifies the kind of content entity a vector belongs to.
type Type string

// Entity type constants.
const (
	TypeNote       Type = "note"
	TypeDocument   Type = "document"
	TypeInsight    Type = "insight"
	TypeDiscussion Type = "discussion"
)

// IsValid checks if the type is one of the supported values.
func (t Type) IsValid() bool {
	return t == TypeNote || t == TypeDocument || t == TypeInsight || t == TypeDiscussion
}

// Metadata keys carried on every indexed record.
const (
	MetaTitle   = "title"
	MetaContent = "content"
)

// Record is one stored vector keyed by (entity type, entity id).
// A record with an empty project id belongs to the global scope.
type Record struct {
	entityType Type
	entityID   string
	projectID  string
	vec        []float32
	magnitude  float64
	metadata   map[string]string
	createdAt  time.Time
	updatedAt  time.Time
}

// New validates inputs and creates a record with a precomputed magnitude.
// The vector is not copied; callers hand over ownership.
func New(
	entityType Type, entityID, projectID string,
	vec []float32, metadata map[string]string,
) (Record, error) {
	if !entityType.IsValid() {
		return Record{}, fmt.Errorf("invalid entity type %q: %w", entityType, domain.ErrValidation)
	}
	if entityID == "" {
		return Record{}, fmt.Errorf("entity id is required: %w", domain.ErrValidation)
	}
	if len(vec) == 0 {
		return Record{}, fmt.Errorf("vector is empty: %w", domain.ErrValidation)
	}
	now := time.Now().UTC()
	return Record{
		entityType: entityType,
		entityID:   entityID,
		projectID:  projectID,
		vec:        vec,
		magnitude:  Magnitude(vec),
		metadata:   metadata,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// Reconstruct rebuilds a record from storage without validation.
func Reconstruct(
	entityType Type, entityID, projectID string,
	vec []float32, magnitude float64, metadata map[string]string,
	createdAt, updatedAt time.Time,
) Record {
	return Record{
		entityType: entityType,
		entityID:   entityID,
		projectID:  projectID,
		vec:        vec,
		magnitude:  magnitude,
		metadata:   metadata,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

// EntityType returns the record's entity type.
func (r *Record) EntityType() Type { return r.entityType }

// EntityID returns the record's entity identifier.
func (r *Record) EntityID() string { return r.entityID }

// ProjectID returns the owning project, empty for the global scope.
func (r *Record) ProjectID() string { return r.projectID }

// Vector returns the stored embedding.
func (r *Record) Vector() []float32 { return r.vec }

// Magnitude returns the precomputed L2 norm.
func (r *Record) Magnitude() float64 { return r.magnitude }

// Metadata returns the record's metadata map.
func (r *Record) Metadata() map[string]string { return r.metadata }

// Meta returns a single metadata value, empty when absent.
func (r *Record) Meta(key string) string { return r.metadata[key] }

// CreatedAt returns the record creation time.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last write time.
func (r *Record) UpdatedAt() time.Time { return r.updatedAt }

// SetCreatedAt preserves the original creation time across reindex upserts.
func (r *Record) SetCreatedAt(t time.Time) { r.createdAt = t }

// Key returns the canonical "type:id" identity used for merge and exclusion.
func (r *Record) Key() string { return string(r.entityType) + ":" + r.entityID }
