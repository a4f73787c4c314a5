package cmn

import (
	"sync"

	"github.com/teris-io/shortid"
)

// jobIDGen produces opaque CrawlJob ids. A single generator is shared by
// the process; shortid.Generate is not safe under its package-level
// default generator when called concurrently without this mutex in older
// releases, so the guard is kept even though the current
// upstream is safe - cheap and makes the invariant explicit.
var (
	jobIDMu  sync.Mutex
	idSource = shortid.MustNew(1, shortid.DefaultABC, 2307)
)

// NewJobID returns a new opaque CrawlJob id, per the CrawlJob invariant
// (unique job id, opaque string).
func NewJobID() string {
	jobIDMu.Lock()
	defer jobIDMu.Unlock()
	id, err := idSource.Generate()
	AssertNoErr(err)
	return "j-" + id
}
