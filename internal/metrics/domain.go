package metrics

// CacheLookup records a hit or miss against a named cache.
func CacheLookup(cache string, hit bool) {
	name := "CacheMiss"
	if hit {
		name = "CacheHit"
	}
	New().Dimension("Cache", cache).Count(name).Flush()
}

// Fallback records that a stale or cached value was served because the
// primary source failed. source is "network" or "store".
func Fallback(cache, source string) {
	New().Dimension("Cache", cache).Count("Fallback").Property("failedSource", source).Flush()
}

// Retry records one scheduled retry of an operation.
func Retry(operation string, attempt int) {
	New().Dimension("Operation", operation).Count("Retry").Property("attempt", attempt).Flush()
}

// Invalidation records the outcome of a full cache sweep.
func Invalidation(storeKeys, buckets int) {
	New().
		Count("Invalidation").
		Metric("InvalidatedKeys", float64(storeKeys), UnitCount).
		Metric("InvalidatedBuckets", float64(buckets), UnitCount).
		Flush()
}
