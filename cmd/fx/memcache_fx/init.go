package memcache_fx

import (
	"go.uber.org/fx"

	mem "giftvault/pkg/memcache"
)

var Module = fx.Provide(
	provideCardLocks, provideIdempotencyCache,
)

func provideCardLocks() *mem.CardLocks {
	return mem.NewCardLocks()
}

func provideIdempotencyCache() mem.IdempotencyStore {
	return mem.NewIdempotencyCache()
}
