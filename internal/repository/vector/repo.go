// Package vector implements the durable vector store with a bounded,
// time-boxed read cache in front of it.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/seren-labs/serendex/internal/db"
	"github.com/seren-labs/serendex/internal/domain"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// Cache defaults.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

// globalScope is the sorted-set bucket for records without a project.
const globalScope = "_global"

// store is the consumer interface for vector records (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	ZAdd(ctx context.Context, key, member string, score float64) error
	ZAddMulti(ctx context.Context, items []db.ZAddItem) error
	ZRem(ctx context.Context, key, member string) error
	ZRevRange(ctx context.Context, key string, limit int) ([]db.ZMember, error)
	ZCard(ctx context.Context, key string) (int64, error)
}

// cacheEntry pairs a cached record with its expiry time. Expiry is checked
// on read; the LRU handles capacity eviction independently of TTL.
type cacheEntry struct {
	rec       domvec.Record
	expiresAt time.Time
}

// Repo stores one vector per (entity type, entity id) and pins a single
// vector dimension per deployment. Writes with a mismatched length fail
// before anything is written.
type Repo struct {
	store    store
	cache    *lru.Cache[string, *cacheEntry]
	cacheTTL time.Duration
	now      func() time.Time

	mu  sync.Mutex
	dim int // 0 until pinned by config or the first write
}

// New creates a vector repository. dim 0 means the dimension is discovered
// from the first stored vector.
func New(s store, dim int) *Repo {
	cache, err := lru.New[string, *cacheEntry](DefaultCacheSize)
	if err != nil {
		// Unreachable with a positive size.
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Repo{
		store:    s,
		cache:    cache,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
		dim:      dim,
	}
}

// WithCache configures cache capacity and TTL.
func (r *Repo) WithCache(size int, ttl time.Duration) *Repo {
	if size > 0 {
		cache, err := lru.New[string, *cacheEntry](size)
		if err == nil {
			r.cache = cache
		}
	}
	if ttl > 0 {
		r.cacheTTL = ttl
	}
	return r
}

// Dim returns the pinned vector dimension, 0 when not yet pinned.
func (r *Repo) Dim() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dim
}

// CheckDim validates a vector length against the pinned dimension.
func (r *Repo) CheckDim(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkDimLocked(n)
}

func (r *Repo) checkDimLocked(n int) error {
	if n == 0 {
		return fmt.Errorf("empty vector: %w", domain.ErrValidation)
	}
	if r.dim != 0 && n != r.dim {
		return fmt.Errorf("got %d, pinned %d: %w", n, r.dim, domain.ErrDimensionMismatch)
	}
	return nil
}

// pinDim validates the length and pins the dimension on first use.
func (r *Repo) pinDim(n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkDimLocked(n); err != nil {
		return err
	}
	if r.dim == 0 {
		r.dim = n
	}
	return nil
}

// Put upserts a single record and refreshes its cache entry. A record
// moving to another project is removed from its previous scope index so
// the old scope stops seeing it.
func (r *Repo) Put(ctx context.Context, rec *domvec.Record) error {
	if err := r.pinDim(len(rec.Vector())); err != nil {
		return err
	}

	prev, found, err := r.Get(ctx, rec.EntityType(), rec.EntityID())
	if err != nil {
		return err
	}

	key := recKey(rec.EntityType(), rec.EntityID())
	if err := r.store.HSet(ctx, key, buildHashFields(rec)); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := r.store.ZAdd(ctx, scopeKey(rec.ProjectID()), rec.Key(), recencyScore(rec)); err != nil {
		return fmt.Errorf("index %s: %w", key, err)
	}
	if found && prev.ProjectID() != rec.ProjectID() {
		if err := r.store.ZRem(ctx, scopeKey(prev.ProjectID()), prev.Key()); err != nil {
			return fmt.Errorf("deindex stale scope %s: %w", key, err)
		}
	}

	r.cacheAdd(rec)
	return nil
}

// BatchPut upserts records all-or-nothing: every record is validated
// before any write, so one bad record leaves storage untouched.
func (r *Repo) BatchPut(ctx context.Context, recs []domvec.Record) error {
	if len(recs) == 0 {
		return nil
	}

	for i := range recs {
		if err := r.CheckDim(len(recs[i].Vector())); err != nil {
			return fmt.Errorf("record %s: %w", recs[i].Key(), err)
		}
	}
	// Pin after the whole batch validated, from the first record.
	if err := r.pinDim(len(recs[0].Vector())); err != nil {
		return err
	}

	type staleIndex struct {
		scope  string
		member string
	}
	var stale []staleIndex

	hashes := make([]db.HashSetItem, len(recs))
	zadds := make([]db.ZAddItem, len(recs))
	for i := range recs {
		rec := &recs[i]
		prev, found, err := r.Get(ctx, rec.EntityType(), rec.EntityID())
		if err != nil {
			return err
		}
		if found && prev.ProjectID() != rec.ProjectID() {
			stale = append(stale, staleIndex{scope: scopeKey(prev.ProjectID()), member: prev.Key()})
		}
		hashes[i] = db.HashSetItem{
			Key:    recKey(rec.EntityType(), rec.EntityID()),
			Fields: buildHashFields(rec),
		}
		zadds[i] = db.ZAddItem{
			Key:    scopeKey(rec.ProjectID()),
			Member: rec.Key(),
			Score:  recencyScore(rec),
		}
	}

	if err := r.store.HSetMulti(ctx, hashes); err != nil {
		return fmt.Errorf("batch put: %w", err)
	}
	if err := r.store.ZAddMulti(ctx, zadds); err != nil {
		return fmt.Errorf("batch index: %w", err)
	}
	// Moved records drop out of their previous scope only after the new
	// index entry is in place.
	for _, s := range stale {
		if err := r.store.ZRem(ctx, s.scope, s.member); err != nil {
			return fmt.Errorf("batch deindex %s: %w", s.member, err)
		}
	}

	for i := range recs {
		r.cacheAdd(&recs[i])
	}
	return nil
}

// Get returns a record by key, cache-aside. A missing key returns
// ok=false with no error.
func (r *Repo) Get(ctx context.Context, typ domvec.Type, id string) (domvec.Record, bool, error) {
	key := recKey(typ, id)

	if entry, ok := r.cache.Get(key); ok {
		if r.now().Before(entry.expiresAt) {
			return entry.rec, true, nil
		}
		r.cache.Remove(key)
	}

	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domvec.Record{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	// HGETALL on a missing key yields an empty map.
	if len(fields) == 0 {
		return domvec.Record{}, false, nil
	}

	rec, err := parseHashFields(typ, id, fields)
	if err != nil {
		return domvec.Record{}, false, fmt.Errorf("parse %s: %w", key, err)
	}

	r.cacheAdd(&rec)
	return rec, true, nil
}

// Candidates returns up to limit records scoped to the project plus
// globally-scoped records, optionally filtered by type, most recently
// updated first. Scoring downstream only ever sees this bounded window.
func (r *Repo) Candidates(
	ctx context.Context, projectID string, types []domvec.Type, limit int,
) ([]domvec.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Over-fetch when a type filter applies; filtering happens after
	// hydration because the recency index is not partitioned by type.
	fetch := limit
	if len(types) > 0 {
		fetch = limit * 4
	}

	members, err := r.scopeMembers(ctx, projectID, fetch)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = domain.KeyPrefix + "vec:" + m.Member
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("candidates hydrate: %w", err)
	}

	typeSet := make(map[domvec.Type]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}

	out := make([]domvec.Record, 0, limit)
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue // index entry outlived its record
		}
		typ, id, ok := splitMemberKey(members[i].Member)
		if !ok {
			continue
		}
		if len(typeSet) > 0 {
			if _, want := typeSet[typ]; !want {
				continue
			}
		}
		rec, err := parseHashFields(typ, id, fields)
		if err != nil {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ProjectRecords returns up to limit records strictly owned by the
// project (no global scope), most recently updated first.
func (r *Repo) ProjectRecords(
	ctx context.Context, projectID string, limit int,
) ([]domvec.Record, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required: %w", domain.ErrValidation)
	}
	members, err := r.store.ZRevRange(ctx, scopeKey(projectID), limit)
	if err != nil {
		return nil, fmt.Errorf("project scan: %w", err)
	}
	return r.hydrate(ctx, members, limit)
}

// Delete removes a record from storage, the recency index, and the cache.
// Deleting a missing key is a no-op.
func (r *Repo) Delete(ctx context.Context, typ domvec.Type, id string) error {
	rec, ok, err := r.Get(ctx, typ, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	key := recKey(typ, id)
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if err := r.store.ZRem(ctx, scopeKey(rec.ProjectID()), rec.Key()); err != nil {
		return fmt.Errorf("deindex %s: %w", key, err)
	}
	r.cache.Remove(key)
	return nil
}

// Count returns the number of records visible to the project scope
// (project records plus global records).
func (r *Repo) Count(ctx context.Context, projectID string) (int, error) {
	total, err := r.store.ZCard(ctx, scopeKey(projectID))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if projectID != "" {
		global, err := r.store.ZCard(ctx, scopeKey(""))
		if err != nil {
			return 0, fmt.Errorf("count global: %w", err)
		}
		total += global
	}
	return int(total), nil
}

// scopeMembers merges the project and global recency indexes by score.
func (r *Repo) scopeMembers(ctx context.Context, projectID string, limit int) ([]db.ZMember, error) {
	members, err := r.store.ZRevRange(ctx, scopeKey(projectID), limit)
	if err != nil {
		return nil, fmt.Errorf("candidates scan: %w", err)
	}
	if projectID != "" {
		global, err := r.store.ZRevRange(ctx, scopeKey(""), limit)
		if err != nil {
			return nil, fmt.Errorf("candidates global scan: %w", err)
		}
		members = append(members, global...)
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Score > members[j].Score
		})
		if len(members) > limit {
			members = members[:limit]
		}
	}
	return members, nil
}

func (r *Repo) hydrate(ctx context.Context, members []db.ZMember, limit int) ([]domvec.Record, error) {
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = domain.KeyPrefix + "vec:" + m.Member
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}
	out := make([]domvec.Record, 0, limit)
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue
		}
		typ, id, ok := splitMemberKey(members[i].Member)
		if !ok {
			continue
		}
		rec, err := parseHashFields(typ, id, fields)
		if err != nil {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *Repo) cacheAdd(rec *domvec.Record) {
	key := recKey(rec.EntityType(), rec.EntityID())
	r.cache.Add(key, &cacheEntry{rec: *rec, expiresAt: r.now().Add(r.cacheTTL)})
}

func recKey(typ domvec.Type, id string) string {
	return domain.KeyPrefix + "vec:" + string(typ) + ":" + id
}

func scopeKey(projectID string) string {
	if projectID == "" {
		projectID = globalScope
	}
	return domain.KeyPrefix + "scope:" + projectID
}

func recencyScore(rec *domvec.Record) float64 {
	return float64(rec.UpdatedAt().UnixMilli())
}

// splitMemberKey parses a "type:id" sorted-set member.
func splitMemberKey(member string) (domvec.Type, string, bool) {
	for i := 0; i < len(member); i++ {
		if member[i] == ':' {
			return domvec.Type(member[:i]), member[i+1:], member[i+1:] != ""
		}
	}
	return "", "", false
}
