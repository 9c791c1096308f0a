// Package cache holds the byte-level response cache used by the HTTP
// handlers. Unlike pkg/cache, which stores typed JSON documents, this
// cache keeps pre-marshalled payloads so a hit skips encoding entirely.
package cache

import "time"

// BytesCache stores raw bytes under a key with a TTL.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
