package field

import (
	"context"

	"github.com/matthewbaird/erpui/internal/data"
	"github.com/matthewbaird/erpui/internal/record"
)

// CacheSource serves option rows from the query cache. Option queries
// ignore filters so every choice is offered.
type CacheSource struct {
	cache *data.Cache
	wait  bool
}

// NewCacheSource creates a CacheSource. When wait is false, a missing list
// is prefetched in the background and reported as loading.
func NewCacheSource(cache *data.Cache, wait bool) *CacheSource {
	return &CacheSource{cache: cache, wait: wait}
}

func (s *CacheSource) Rows(ctx context.Context, endpoint string) ([]record.Record, bool, error) {
	opts := data.QueryOptions{Endpoint: endpoint, NoFilter: true}
	if s.wait {
		res := s.cache.Query(ctx, opts)
		return res.Data.Rows, false, res.Err
	}
	res := s.cache.Peek(opts)
	if !res.HasData {
		if res.Err != nil && !res.IsFetching {
			return nil, false, res.Err
		}
		s.cache.Prefetch(opts)
		return nil, true, nil
	}
	return res.Data.Rows, res.IsFetching, nil
}

// OptionKey is the cache key of a relation field's option list. Nested
// create-new forms invalidate it explicitly when they succeed.
func OptionKey(endpoint string) string {
	return data.QueryOptions{Endpoint: endpoint, NoFilter: true}.Key()
}
