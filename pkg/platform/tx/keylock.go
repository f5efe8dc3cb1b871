package tx

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "civicdesk/pkg/domain-errors"
)

// numShards trades memory for contention; keys hash onto shards with FNV-1a.
const numShards = 128

// KeyLock serializes work per key inside one process. Distinct keys may
// share a shard and then wait on each other, which is safe.
type KeyLock struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewKeyLock() *KeyLock {
	return &KeyLock{timeout: defaultTxTimeout}
}

// WithKey runs fn while holding the shard for key. A context that is
// already done aborts before and after acquiring the lock.
func (l *KeyLock) WithKey(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	shard := &l.shards[shardFor(key)]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "lock aborted: context cancelled")
	}
	return fn(ctx)
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % numShards
}

// Nop runs fn directly. Used with in-memory stores, which have no
// transactions.
type Nop struct{}

func (Nop) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
