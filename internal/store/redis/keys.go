package redis

const (
	// KeyPrefixCache is the prefix for cache entry hashes
	KeyPrefixCache = "sdsresolve:cache:"
	// KeyAllEntries is the set of every cache key written
	KeyAllEntries = "sdsresolve:cache-index"
)

// Hash fields of one cache entry.
const (
	fieldScope     = "scope"
	fieldValue     = "value"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldHitCount  = "hit_count"
)

// EntryKey returns the Redis key for a cache entry
func EntryKey(key string) string {
	return KeyPrefixCache + key
}

// AllEntriesKey returns the key for the set of all cache keys
func AllEntriesKey() string {
	return KeyAllEntries
}
