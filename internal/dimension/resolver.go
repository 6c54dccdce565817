package dimension

import (
	"context"
	"strings"

	"scorebook/api/internal/store"
)

type schoolStore interface {
	EnsureSchoolByName(ctx context.Context, name string) (store.School, bool, error)
}

// Resolver implements the get-or-create protocol for schools. The store call
// is where the concurrent-create race is settled (unique constraint plus
// conflict re-read); the optional cache only short-circuits repeat lookups.
type Resolver struct {
	store schoolStore
	cache *Cache
}

// New builds a resolver. cache may be nil when Redis is not configured.
func New(store schoolStore, cache *Cache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// Resolve returns the durable id for a school name, creating the dimension
// row on first reference. Matching is exact and case-sensitive; only
// surrounding whitespace is trimmed.
func (r *Resolver) Resolve(ctx context.Context, name string) (int, error) {
	name = strings.TrimSpace(name)

	if r.cache != nil {
		if id, ok := r.cache.Get(ctx, name); ok {
			return id, nil
		}
	}

	school, _, err := r.store.EnsureSchoolByName(ctx, name)
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		r.cache.Put(ctx, name, school.ID)
	}
	return school.ID, nil
}
