// Package ids generates the identifiers used as primary keys across the
// service. ULIDs sort by creation time, which keeps database indexes append
// friendly and makes log output scannable.
package ids

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a fresh ULID string. Safe for concurrent use; identifiers
// minted within the same millisecond stay strictly increasing.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
