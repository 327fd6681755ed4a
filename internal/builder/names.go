package builder

import (
	"crypto/rand"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/ocibuilder/ocibuilder/internal/containerstore"
)

// randomLayerDigest mints a fresh digest for a layer with no content
// yet (scratch's empty top layer, or the placeholder allocated before
// commit has anything to hash) — any 32 random bytes serve, since the
// overlay directory it names holds nothing at allocation time.
func randomLayerDigest() digest.Digest {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		panic(fmt.Sprintf("builder: read random bytes: %v", err))
	}
	return digest.FromBytes(seed)
}

// defaultContainerName picks base, or base-2, base-3, ... the first
// name not already in use.
func defaultContainerName(taken map[string]bool, base string) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}

func containerNamesInUse(records []containerstore.Record) map[string]bool {
	taken := make(map[string]bool, len(records))
	for _, r := range records {
		taken[r.Name] = true
	}
	return taken
}
