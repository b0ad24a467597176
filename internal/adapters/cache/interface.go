package cache

// Cache maps a key to the result of a successful fetch.
//
// Entries are never evicted or expired, only overwritten. A miss is a normal
// outcome and not an error. Implementations are safe for concurrent use.
type Cache[T any] interface {
	Lookup(key string) (T, bool)
	Store(key string, data T)
	Len() int
}
