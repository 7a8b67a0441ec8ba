package util

// UintKey is a 64 bit hash of a string key
type UintKey uint64

// HashString hashes s with FNV-1a, the seed is mixed into the offset basis.
// The node names of a cluster are mapped onto dragonboat replica ids this way.
func HashString(s string, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed

	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return UintKey(hash)
}
