package sim

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// dedupTTL bounds how long a tower remembers having flooded a given
// broadcast identity. It only needs to outlive one drain pass, but a wider
// window further damps duplicate delivery in richly-connected rings per
// spec.md §9's open question — the hop-count/via_ip suppression remains the
// mechanism actually required to terminate forwarding.
const dedupTTL = 2 * time.Second

// dedupCache tracks (src_ip, packet_num) identities a tower has already
// flooded to its peers, the same role controller/server.go's ipCache played
// for per-client rate windows — a short-TTL go-cache keyed by a string,
// cleaned up automatically on expiry.
type dedupCache struct {
	c *cache.Cache
}

func newDedupCache() *dedupCache {
	return &dedupCache{c: cache.New(dedupTTL, dedupTTL*2)}
}

func dedupKey(src IPAddr, packetNum uint16) string {
	return strconv.Itoa(int(src)) + ":" + strconv.Itoa(int(packetNum))
}

// seen reports whether this broadcast identity was already flooded within
// the TTL window.
func (d *dedupCache) seen(src IPAddr, packetNum uint16) bool {
	_, found := d.c.Get(dedupKey(src, packetNum))
	return found
}

// mark records that this broadcast identity has now been flooded.
func (d *dedupCache) mark(src IPAddr, packetNum uint16) {
	d.c.Set(dedupKey(src, packetNum), true, cache.DefaultExpiration)
}
