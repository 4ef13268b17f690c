package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// Reserved hash field names. Metadata keys must not start with "__".
const (
	fieldProject   = "__project"
	fieldVector    = "__vector"
	fieldMagnitude = "__magnitude"
	fieldCreatedAt = "__created_at"
	fieldUpdatedAt = "__updated_at"
)

// buildHashFields converts a record into a flat map[string]string for HSET.
func buildHashFields(rec *domvec.Record) map[string]string {
	m := make(map[string]string, 5+len(rec.Metadata()))
	m[fieldProject] = rec.ProjectID()
	m[fieldVector] = vectorToBytes(rec.Vector())
	m[fieldMagnitude] = strconv.FormatFloat(rec.Magnitude(), 'f', -1, 64)
	m[fieldCreatedAt] = strconv.FormatInt(rec.CreatedAt().UnixMilli(), 10)
	m[fieldUpdatedAt] = strconv.FormatInt(rec.UpdatedAt().UnixMilli(), 10)
	for k, v := range rec.Metadata() {
		if strings.HasPrefix(k, "__") {
			continue
		}
		m[k] = v
	}
	return m
}

// parseHashFields converts a flat hash map back into a record.
func parseHashFields(typ domvec.Type, id string, m map[string]string) (domvec.Record, error) {
	vec := bytesToVector(m[fieldVector])
	if vec == nil {
		return domvec.Record{}, fmt.Errorf("corrupt vector payload for %s:%s", typ, id)
	}

	magnitude, err := strconv.ParseFloat(m[fieldMagnitude], 64)
	if err != nil {
		magnitude = domvec.Magnitude(vec)
	}

	metadata := make(map[string]string)
	for k, v := range m {
		if !strings.HasPrefix(k, "__") {
			metadata[k] = v
		}
	}

	return domvec.Reconstruct(
		typ, id, m[fieldProject],
		vec, magnitude, metadata,
		parseMillis(m[fieldCreatedAt]),
		parseMillis(m[fieldUpdatedAt]),
	), nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
