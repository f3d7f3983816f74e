// pkg/syncutil/shardedmutex.go
package syncutil

import (
	"sync"

	"github.com/spaolacci/murmur3"
)

const shardCount = 256

// ShardedMutex is a fixed pool of mutexes keyed by string. Memory stays
// bounded no matter how many keys are seen; keys hashing to the same shard
// share a lock.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex for key and returns the unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := s.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (s *ShardedMutex) shard(key string) *sync.Mutex {
	return &s.shards[murmur3.Sum32([]byte(key))%shardCount]
}
